// autoresume watches assistant sessions for rate-limit banners and
// types a resume prompt back into their terminals once the limit
// lifts. The daemon form supervises a queue of pending resets; the
// other subcommands inspect and control it.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	_ "time/tzdata"

	"github.com/joho/godotenv"

	"github.com/Muminur/auto-claude-resume-after-limit-reset-sub000/pkg/config"
	"github.com/Muminur/auto-claude-resume-after-limit-reset-sub000/pkg/logging"
	"github.com/Muminur/auto-claude-resume-after-limit-reset-sub000/pkg/scheduler"
	"github.com/Muminur/auto-claude-resume-after-limit-reset-sub000/pkg/supervisor"
	"github.com/Muminur/auto-claude-resume-after-limit-reset-sub000/pkg/version"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) == 0 {
		printUsage()
		return 2
	}

	cmd, rest := args[0], args[1:]
	switch cmd {
	case "start":
		return cmdStart(rest, false)
	case "monitor":
		return cmdStart(rest, true)
	case "stop":
		return cmdStop(rest)
	case "status":
		return cmdStatus(rest)
	case "restart":
		if code := cmdStop(stateDirOnly(rest)); code != 0 {
			return code
		}
		return cmdStart(rest, false)
	case "test":
		return cmdTest(rest)
	case "reset":
		return cmdReset(rest)
	case "logs":
		return cmdLogs(rest)
	case "config":
		return cmdConfig(rest)
	case "hook":
		return cmdHook(rest)
	case "version":
		fmt.Println(version.Full())
		return 0
	case "help", "-h", "--help":
		printUsage()
		return 0
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", cmd)
		printUsage()
		return 2
	}
}

// cmdStart runs the supervisor in the foreground. Monitor mode adds a
// live countdown line on stdout.
func cmdStart(args []string, monitor bool) int {
	fs := newFlagSet("start")
	stateDirFlag := fs.String("state-dir", "", "state directory (default: $AUTORESUME_STATE_DIR or ~/.claude/auto-resume)")
	logLevel := fs.String("log-level", "info", "log level: debug, info, warn, error")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	// 1. Resolve the state directory
	stateDir, err := resolveStateDir(*stateDirFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "resolving state directory: %v\n", err)
		return 1
	}
	paths := config.NewPaths(stateDir)
	if err := paths.Ensure(); err != nil {
		fmt.Fprintf(os.Stderr, "preparing state directory: %v\n", err)
		return 1
	}

	// 2. Load optional .env (Slack token and similar secrets)
	envPath := filepath.Join(stateDir, ".env")
	if err := godotenv.Load(envPath); err != nil {
		if !os.IsNotExist(err) {
			slog.Warn("Could not load .env file, continuing with existing environment",
				"path", envPath, "error", err)
		}
	} else {
		slog.Info("Loaded environment", "path", envPath)
	}

	// 3. Initialize configuration
	cfg, err := config.Initialize(stateDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "loading configuration: %v\n", err)
		return 1
	}

	// 4. Wire logging to the rotating daemon log
	rotator := logging.NewRotatingWriter(paths.LogFile(), cfg.MaxLogSizeBytes())
	logging.Setup(io.MultiWriter(os.Stderr, rotator), logging.ParseLevel(*logLevel))

	slog.Info("Starting autoresume",
		"version", version.Full(),
		"state_dir", stateDir,
		"monitor", monitor)

	// 5. Run the supervisor under signal cancellation
	var progress func(scheduler.Update)
	if monitor {
		progress = printCountdown
	}
	sup := supervisor.New(supervisor.Options{
		Config:   cfg,
		Paths:    paths,
		Progress: progress,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := sup.Run(ctx); err != nil {
		if errors.Is(err, supervisor.ErrAlreadyRunning) {
			fmt.Fprintf(os.Stderr, "%v\n", err)
		} else {
			slog.Error("Supervisor exited", "error", err)
		}
		return 1
	}
	return 0
}

// printCountdown renders a single self-overwriting countdown line.
func printCountdown(u scheduler.Update) {
	fmt.Printf("\r\x1b[KResume in %s (reset at %s)",
		u.Display, u.ResetTime.Local().Format("3:04pm MST"))
}

func resolveStateDir(override string) (string, error) {
	if override != "" {
		return override, nil
	}
	return config.DefaultStateDir()
}

// stateDirOnly extracts the -state-dir flag from start's argument list so
// restart can hand it to stop, which takes no other flags.
func stateDirOnly(args []string) []string {
	fs := newFlagSet("restart")
	fs.SetOutput(io.Discard)
	stateDir := fs.String("state-dir", "", "")
	fs.String("log-level", "", "")
	_ = fs.Parse(args)
	if *stateDir == "" {
		return nil
	}
	return []string{"-state-dir", *stateDir}
}

func printUsage() {
	fmt.Print(`autoresume - resume assistant sessions after a rate-limit reset

Usage:
  autoresume <command> [flags]

Commands:
  start                 Run the supervisor in the foreground
  monitor               Run the supervisor with a live countdown display
  stop                  Stop a running daemon (SIGTERM, then SIGKILL after 5s)
  restart               Stop the daemon, then start it again
  status                Show daemon liveness and the queue summary
  test <seconds>        Synthetic countdown, then deliver to this terminal
  reset                 Clear the event queue
  logs [--lines N]      Print the last N daemon log lines (default 50)
  config                Show the active configuration
  config set <k> <v>    Change one configuration value
  hook                  Read a hook payload on stdin and scan its transcript
  version               Print build metadata
  help                  Show this help

Flags (start, monitor, status, test, reset, logs, config, hook):
  -state-dir DIR        State directory (default: $AUTORESUME_STATE_DIR
                        or ~/.claude/auto-resume)
`)
}
