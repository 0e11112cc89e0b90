// Package supervisor runs the daemon: single-instance guard, crash-loop
// throttle, liveness stamping, memory watchdog, and the errgroup of
// services that watch the queue and deliver resume keystrokes.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Muminur/auto-claude-resume-after-limit-reset-sub000/pkg/api"
	"github.com/Muminur/auto-claude-resume-after-limit-reset-sub000/pkg/config"
	"github.com/Muminur/auto-claude-resume-after-limit-reset-sub000/pkg/delivery"
	"github.com/Muminur/auto-claude-resume-after-limit-reset-sub000/pkg/events"
	"github.com/Muminur/auto-claude-resume-after-limit-reset-sub000/pkg/metrics"
	"github.com/Muminur/auto-claude-resume-after-limit-reset-sub000/pkg/notify"
	"github.com/Muminur/auto-claude-resume-after-limit-reset-sub000/pkg/proctree"
	"github.com/Muminur/auto-claude-resume-after-limit-reset-sub000/pkg/queue"
	"github.com/Muminur/auto-claude-resume-after-limit-reset-sub000/pkg/scheduler"
	"github.com/Muminur/auto-claude-resume-after-limit-reset-sub000/pkg/transcript"
	"github.com/Muminur/auto-claude-resume-after-limit-reset-sub000/pkg/verify"
	"github.com/Muminur/auto-claude-resume-after-limit-reset-sub000/pkg/version"
	"github.com/Muminur/auto-claude-resume-after-limit-reset-sub000/pkg/watcher"
)

const (
	heartbeatInterval = 30 * time.Second
	memwatchInterval  = 60 * time.Second
	pruneInterval     = time.Hour

	// hubWriteTimeout bounds a single WebSocket send.
	hubWriteTimeout = 5 * time.Second
)

// Options configures a Supervisor. Config and Paths are required.
type Options struct {
	Config *config.Config
	Paths  config.Paths

	// ProjectsDir overrides the transcript poller's search root. Empty
	// resolves the per-user default.
	ProjectsDir string

	// Progress receives countdown updates for foreground display.
	Progress func(scheduler.Update)
}

// Supervisor owns the daemon run loop.
type Supervisor struct {
	cfg         *config.Config
	paths       config.Paths
	store       *queue.Store
	hub         *events.Hub
	projectsDir string
	progress    func(scheduler.Update)

	pid       int
	startedAt time.Time
	now       func() time.Time

	startWindow    time.Duration
	heartbeatEvery time.Duration
	memwatchEvery  time.Duration
	pruneEvery     time.Duration
}

// New assembles a Supervisor. The event hub exists only when the
// control server is enabled; everywhere else a nil hub no-ops.
func New(opts Options) *Supervisor {
	s := &Supervisor{
		cfg:            opts.Config,
		paths:          opts.Paths,
		store:          queue.NewStore(opts.Paths.QueueFile()),
		projectsDir:    opts.ProjectsDir,
		progress:       opts.Progress,
		pid:            os.Getpid(),
		now:            time.Now,
		startWindow:    throttleWindow,
		heartbeatEvery: heartbeatInterval,
		memwatchEvery:  memwatchInterval,
		pruneEvery:     pruneInterval,
	}
	if opts.Config.ServerEnabled {
		s.hub = events.NewHub(hubWriteTimeout)
	}
	return s
}

// Run executes the daemon until ctx is cancelled or a service fails.
// Clean cancellation returns nil; anything else is the failure that
// brought the group down.
func (s *Supervisor) Run(ctx context.Context) error {
	if err := s.paths.Ensure(); err != nil {
		return fmt.Errorf("preparing state directory: %w", err)
	}
	lock, err := AcquirePIDLock(s.paths.PIDFile(), s.pid, proctree.Alive)
	if err != nil {
		return err
	}
	defer lock.Release()
	if err := throttleStart(ctx, s.paths.LastStartFile(), s.startWindow, s.now); err != nil {
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	}

	metrics.Enable(s.cfg.MetricsEnabled)
	s.startedAt = s.now()

	notifier := s.buildNotifier()
	orch := s.buildOrchestrator()

	projectsDir := s.projectsDir
	pollingEnabled := s.cfg.TranscriptPollingEnabled
	if pollingEnabled && projectsDir == "" {
		dir, derr := config.DefaultProjectsDir()
		if derr != nil {
			slog.Warn("Transcript polling disabled, projects directory unknown", "error", derr)
			pollingEnabled = false
		} else {
			projectsDir = dir
		}
	}

	recheck := make(chan struct{}, 1)
	watch := watcher.New(watcher.Config{
		Store:          s.store,
		Analyzer:       transcript.NewAnalyzer(s.cfg.TriggerPhrases),
		Notifier:       notifier,
		Hub:            s.hub,
		ProjectsDir:    projectsDir,
		CheckInterval:  s.cfg.CheckInterval(),
		PollInterval:   s.cfg.TranscriptPollInterval(),
		PollingEnabled: pollingEnabled,
		Recheck:        recheck,
	})
	sched := scheduler.New(scheduler.Config{
		Store:          s.store,
		Orchestrator:   orch,
		Notifier:       notifier,
		Hub:            s.hub,
		Recheck:        recheck,
		PostResetDelay: s.cfg.PostResetDelay(),
		ResumePrompt:   s.cfg.ResumePrompt,
		Progress:       s.progress,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return watch.Run(gctx) })
	g.Go(func() error { return sched.Run(gctx) })
	g.Go(func() error { return s.runHeartbeat(gctx) })
	g.Go(func() error { return s.runMemwatch(gctx) })
	g.Go(func() error { return s.runPruner(gctx) })
	if s.cfg.ServerEnabled {
		server := api.NewServer(api.Config{
			Addr:           s.cfg.ServerAddr,
			Store:          s.store,
			Hub:            s.hub,
			Resumer:        sched,
			HeartbeatFile:  s.paths.HeartbeatFile(),
			MetricsEnabled: s.cfg.MetricsEnabled,
			StartedAt:      s.startedAt,
			PID:            s.pid,
		})
		g.Go(func() error { return server.Run(gctx) })
	}

	slog.Info("Supervisor started",
		"pid", s.pid,
		"version", version.Full(),
		"state_dir", s.paths.StateDir,
		"server_enabled", s.cfg.ServerEnabled)
	s.publishStatus("running")

	err = g.Wait()
	s.publishStatus("stopping")
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	slog.Info("Supervisor stopped")
	return nil
}

func (s *Supervisor) buildNotifier() *notify.Service {
	var desktop *notify.DesktopNotifier
	if s.cfg.DesktopNotificationsEnabled {
		desktop = notify.NewDesktopNotifier()
	}
	var slackSink *notify.SlackNotifier
	if s.cfg.SlackEnabled {
		slackSink = notify.NewSlackNotifier(os.Getenv(s.cfg.SlackTokenEnv), s.cfg.SlackChannel)
	}
	return notify.NewService(desktop, slackSink)
}

func (s *Supervisor) buildOrchestrator() *delivery.Orchestrator {
	verifier := verify.NewService(
		s.cfg.ActiveVerificationTimeout(),
		s.cfg.ActiveVerificationPoll(),
		s.cfg.VerificationWindow(),
		s.store,
	)
	runner := delivery.NewRunner(delivery.DefaultCommandTimeout)
	return delivery.NewOrchestrator(delivery.DefaultTiers(runner), verifier, s.cfg.MaxRetries, s.cfg.RetryBackoff)
}

// runHeartbeat stamps the heartbeat file on a fixed cadence and removes
// it at shutdown, before the pid file is released.
func (s *Supervisor) runHeartbeat(ctx context.Context) error {
	stamp := func() {
		hb := Heartbeat{Timestamp: s.now().UTC(), PID: s.pid}
		if err := WriteHeartbeat(s.paths.HeartbeatFile(), hb); err != nil {
			slog.Warn("Could not write heartbeat", "error", err)
		}
		s.publishStatus("running")
	}
	stamp()

	ticker := time.NewTicker(s.heartbeatEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			if err := os.Remove(s.paths.HeartbeatFile()); err != nil && !os.IsNotExist(err) {
				slog.Warn("Could not remove heartbeat file", "error", err)
			}
			return ctx.Err()
		case <-ticker.C:
			stamp()
		}
	}
}

// runMemwatch samples the supervisor's resident set and aborts the run
// when it crosses the configured ceiling. Exiting hands the slate back
// to the service manager instead of degrading in place.
func (s *Supervisor) runMemwatch(ctx context.Context) error {
	ceiling := s.cfg.MemoryCeilingBytes()
	ticker := time.NewTicker(s.memwatchEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			rss, err := proctree.ResidentMemory(s.pid)
			if err != nil {
				slog.Warn("Could not sample resident memory", "error", err)
				continue
			}
			metrics.SetResidentMemory(rss)
			if rss >= ceiling {
				slog.Error("Resident memory above ceiling, shutting down",
					"rss_bytes", rss, "ceiling_bytes", ceiling)
				return fmt.Errorf("%w: rss %d, ceiling %d", ErrMemoryCeiling, rss, ceiling)
			}
		}
	}
}

// runPruner drops terminal queue entries older than the retention
// horizon.
func (s *Supervisor) runPruner(ctx context.Context) error {
	prune := func() {
		n, err := s.store.Prune(s.cfg.Retention())
		if err != nil {
			slog.Warn("Could not prune queue", "error", err)
			return
		}
		if n > 0 {
			slog.Info("Pruned old queue entries", "removed", n)
		}
	}
	prune()

	ticker := time.NewTicker(s.pruneEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			prune()
		}
	}
}

func (s *Supervisor) publishStatus(state string) {
	s.hub.Publish(events.TypeDaemonStatus, events.DaemonStatusPayload{
		State:         state,
		PID:           s.pid,
		Version:       version.Full(),
		UptimeSeconds: int64(s.now().Sub(s.startedAt).Seconds()),
	})
}
