package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"log/slog"

	"github.com/Muminur/auto-claude-resume-after-limit-reset-sub000/pkg/config"
	"github.com/Muminur/auto-claude-resume-after-limit-reset-sub000/pkg/delivery"
	"github.com/Muminur/auto-claude-resume-after-limit-reset-sub000/pkg/logging"
	"github.com/Muminur/auto-claude-resume-after-limit-reset-sub000/pkg/proctree"
	"github.com/Muminur/auto-claude-resume-after-limit-reset-sub000/pkg/queue"
	"github.com/Muminur/auto-claude-resume-after-limit-reset-sub000/pkg/resettime"
	"github.com/Muminur/auto-claude-resume-after-limit-reset-sub000/pkg/supervisor"
	"github.com/Muminur/auto-claude-resume-after-limit-reset-sub000/pkg/transcript"
)

const (
	stopWait = 5 * time.Second
	stopPoll = 100 * time.Millisecond
)

func newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	return fs
}

// stateDirSetup parses the shared -state-dir flag and resolves paths.
func stateDirSetup(name string, args []string) (config.Paths, []string, error) {
	fs := newFlagSet(name)
	override := fs.String("state-dir", "", "state directory")
	if err := fs.Parse(args); err != nil {
		return config.Paths{}, nil, err
	}
	stateDir, err := resolveStateDir(*override)
	if err != nil {
		return config.Paths{}, nil, err
	}
	return config.NewPaths(stateDir), fs.Args(), nil
}

// cmdStop signals the running daemon and waits for it to exit,
// escalating to SIGKILL when it ignores the request.
func cmdStop(args []string) int {
	paths, _, err := stateDirSetup("stop", args)
	if err != nil {
		return 2
	}

	pid, err := supervisor.ReadPIDFile(paths.PIDFile())
	if err != nil {
		if os.IsNotExist(err) {
			fmt.Println("Daemon is not running")
			return 0
		}
		fmt.Printf("Removing unreadable pid file: %v\n", err)
		_ = os.Remove(paths.PIDFile())
		return 0
	}
	if !proctree.Alive(pid) {
		fmt.Printf("Daemon is not running (removed stale pid file for %d)\n", pid)
		_ = os.Remove(paths.PIDFile())
		return 0
	}

	proc, err := os.FindProcess(pid)
	if err != nil {
		fmt.Fprintf(os.Stderr, "finding process %d: %v\n", pid, err)
		return 1
	}
	if err := proc.Signal(syscall.SIGTERM); err != nil {
		// Already gone between the liveness check and the signal.
		fmt.Printf("Daemon exited (pid %d)\n", pid)
		_ = os.Remove(paths.PIDFile())
		return 0
	}

	deadline := time.Now().Add(stopWait)
	for time.Now().Before(deadline) {
		if !proctree.Alive(pid) {
			fmt.Printf("Stopped daemon (pid %d)\n", pid)
			return 0
		}
		time.Sleep(stopPoll)
	}

	fmt.Printf("Daemon did not stop within %s, killing pid %d\n", stopWait, pid)
	_ = proc.Kill()
	_ = os.Remove(paths.PIDFile())
	_ = os.Remove(paths.HeartbeatFile())
	return 0
}

// cmdStatus prints daemon liveness and a queue summary.
func cmdStatus(args []string) int {
	paths, _, err := stateDirSetup("status", args)
	if err != nil {
		return 2
	}

	pid, pidErr := supervisor.ReadPIDFile(paths.PIDFile())
	running := pidErr == nil && proctree.Alive(pid)
	if running {
		fmt.Printf("Daemon:    running (pid %d)\n", pid)
	} else {
		fmt.Println("Daemon:    not running")
	}

	if hb, err := supervisor.ReadHeartbeat(paths.HeartbeatFile()); err == nil {
		fmt.Printf("Heartbeat: %s ago\n", time.Since(hb.Timestamp).Round(time.Second))
	} else if running {
		fmt.Println("Heartbeat: missing")
	}

	store := queue.NewStore(paths.QueueFile())
	doc, err := store.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "reading queue: %v\n", err)
		return 1
	}

	active := 0
	for i := range doc.Queue {
		if doc.Queue[i].Active() {
			active++
		}
	}
	fmt.Printf("Queue:     %d event(s), %d active\n", len(doc.Queue), active)
	if doc.LastHookRun != nil {
		fmt.Printf("Last hook: %s ago\n", time.Since(*doc.LastHookRun).Round(time.Second))
	}

	now := time.Now()
	for i := range doc.Queue {
		e := &doc.Queue[i]
		line := fmt.Sprintf("  [%s] %s reset %s", e.Status, shortID(e.ID),
			e.ResetTime.Local().Format("Jan 2 3:04pm"))
		if e.Active() {
			line += fmt.Sprintf(" (in %s)", resettime.FormatRemaining(resettime.Remaining(e.ResetTime, now)))
		}
		fmt.Println(line)
	}

	if head, err := store.PeekNextPending(); err == nil && head != nil {
		fmt.Printf("Next:      resume in %s (at %s)\n",
			resettime.FormatRemaining(resettime.Remaining(head.ResetTime, now)),
			head.ResetTime.Local().Format("3:04pm MST"))
	}
	return 0
}

// cmdTest runs a synthetic countdown and then performs a real delivery
// aimed at the invoking terminal, exercising the full tier chain.
func cmdTest(args []string) int {
	paths, rest, err := stateDirSetup("test", args)
	if err != nil {
		return 2
	}
	if len(rest) != 1 {
		fmt.Fprintln(os.Stderr, "usage: autoresume test <seconds>")
		return 2
	}
	seconds, err := strconv.Atoi(rest[0])
	if err != nil || seconds < 0 {
		fmt.Fprintf(os.Stderr, "invalid countdown %q: want a non-negative integer\n", rest[0])
		return 2
	}

	cfg, err := config.Initialize(paths.StateDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "loading configuration: %v\n", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	fmt.Printf("Test mode: delivering %q to this terminal in %d second(s)\n", cfg.ResumePrompt, seconds)
	for i := seconds; i > 0; i-- {
		fmt.Printf("\r\x1b[KResume in %ds", i)
		select {
		case <-ctx.Done():
			fmt.Println("\naborted")
			return 0
		case <-time.After(time.Second):
		}
	}
	fmt.Print("\r\x1b[K")

	runner := delivery.NewRunner(delivery.DefaultCommandTimeout)
	orch := delivery.NewOrchestrator(delivery.DefaultTiers(runner), nil, cfg.MaxRetries, cfg.RetryBackoff)
	result := orch.Deliver(ctx, delivery.Target{SessionPID: os.Getppid()}, cfg.ResumePrompt)

	if result.Success {
		fmt.Printf("Delivered via %s tier\n", result.TierUsed)
	} else {
		fmt.Printf("Delivery failed after trying [%s]: %s\n",
			strings.Join(result.TiersAttempted, ", "), result.Error)
	}
	return 0
}

// cmdReset clears the queue document.
func cmdReset(args []string) int {
	paths, _, err := stateDirSetup("reset", args)
	if err != nil {
		return 2
	}
	store := queue.NewStore(paths.QueueFile())
	if err := store.Reset(); err != nil {
		fmt.Fprintf(os.Stderr, "resetting queue: %v\n", err)
		return 1
	}
	fmt.Println("Queue cleared")
	return 0
}

// cmdLogs prints the tail of the daemon log.
func cmdLogs(args []string) int {
	fs := newFlagSet("logs")
	override := fs.String("state-dir", "", "state directory")
	lines := fs.Int("lines", 50, "number of log lines to print")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	stateDir, err := resolveStateDir(*override)
	if err != nil {
		fmt.Fprintf(os.Stderr, "resolving state directory: %v\n", err)
		return 1
	}
	paths := config.NewPaths(stateDir)

	tail, err := logging.TailLines(paths.LogFile(), *lines)
	if err != nil {
		fmt.Fprintf(os.Stderr, "reading log: %v\n", err)
		return 1
	}
	if len(tail) == 0 {
		fmt.Println("No log entries yet")
		return 0
	}
	for _, line := range tail {
		fmt.Println(line)
	}
	return 0
}

// cmdConfig shows the configuration or sets a single key.
func cmdConfig(args []string) int {
	paths, rest, err := stateDirSetup("config", args)
	if err != nil {
		return 2
	}

	switch {
	case len(rest) == 0:
		cfg, err := config.Initialize(paths.StateDir)
		if err != nil {
			fmt.Fprintf(os.Stderr, "loading configuration: %v\n", err)
			return 1
		}
		out, err := json.MarshalIndent(cfg, "", "  ")
		if err != nil {
			fmt.Fprintf(os.Stderr, "encoding configuration: %v\n", err)
			return 1
		}
		fmt.Println(string(out))
		return 0

	case rest[0] == "set" && len(rest) == 3:
		key, value := rest[1], rest[2]
		if _, err := config.Set(paths.StateDir, key, value); err != nil {
			fmt.Fprintf(os.Stderr, "setting %s: %v\n", key, err)
			return 1
		}
		fmt.Printf("%s = %s\n", key, value)
		return 0

	default:
		fmt.Fprintln(os.Stderr, "usage: autoresume config [set <key> <value>]")
		return 2
	}
}

// cmdHook is the transcript hook entry point: payload on stdin, scan the
// transcript it names, enqueue any detection. The hook contract demands
// exit 0 in every case so a broken install never disturbs the session
// that invoked it. Logs go to the rotating file only; stdout and stderr
// stay clean because the caller may capture them.
func cmdHook(args []string) int {
	paths, _, err := stateDirSetup("hook", args)
	if err != nil {
		return 0
	}
	if err := paths.Ensure(); err != nil {
		return 0
	}

	cfg, err := config.Initialize(paths.StateDir)
	if err != nil {
		cfg = config.DefaultConfig()
	}
	logging.Setup(logging.NewRotatingWriter(paths.LogFile(), cfg.MaxLogSizeBytes()), slog.LevelInfo)

	store := queue.NewStore(paths.QueueFile())

	payload, err := transcript.ReadHookPayload(os.Stdin)
	if err != nil {
		slog.Warn("Hook payload unreadable", "error", err)
		_ = store.RecordHookRun("")
		return 0
	}
	if err := store.RecordHookRun(payload.SessionID); err != nil {
		slog.Warn("Could not record hook run", "error", err)
	}

	detection := transcript.NewAnalyzer(cfg.TriggerPhrases).AnalyzeFile(payload.TranscriptPath)
	if detection == nil {
		return 0
	}

	event, duplicate, err := store.Enqueue(queue.RateLimitEvent{
		ResetTime:      detection.ResetTime,
		Timezone:       detection.Timezone,
		Message:        detection.RawMessage,
		SessionID:      payload.SessionID,
		SessionPID:     os.Getppid(),
		TranscriptPath: payload.TranscriptPath,
	})
	if err != nil {
		slog.Error("Could not enqueue detection", "error", err)
		return 0
	}
	if duplicate {
		slog.Info("Hook detection already queued", "id", event.ID)
	} else {
		slog.Info("Hook detection queued", "id", event.ID, "reset_time", event.ResetTime)
	}
	return 0
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
