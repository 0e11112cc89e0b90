// Package e2e exercises the daemon pipeline in process: a real queue
// store, watcher, scheduler, event hub, and control server over a temp
// state dir, with scripted delivery tiers standing in for tmux, PTY
// writes, and desktop automation.
package e2e

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/Muminur/auto-claude-resume-after-limit-reset-sub000/pkg/api"
	"github.com/Muminur/auto-claude-resume-after-limit-reset-sub000/pkg/config"
	"github.com/Muminur/auto-claude-resume-after-limit-reset-sub000/pkg/delivery"
	"github.com/Muminur/auto-claude-resume-after-limit-reset-sub000/pkg/events"
	"github.com/Muminur/auto-claude-resume-after-limit-reset-sub000/pkg/notify"
	"github.com/Muminur/auto-claude-resume-after-limit-reset-sub000/pkg/queue"
	"github.com/Muminur/auto-claude-resume-after-limit-reset-sub000/pkg/scheduler"
	"github.com/Muminur/auto-claude-resume-after-limit-reset-sub000/pkg/watcher"
)

// TestApp runs the daemon's service group for one test.
type TestApp struct {
	Config    *config.Config
	Paths     config.Paths
	Store     *queue.Store
	Hub       *events.Hub
	Scheduler *scheduler.Scheduler

	// BaseURL and WSURL are set when the control server is enabled.
	BaseURL string
	WSURL   string

	t *testing.T
}

// testAppConfig holds options accumulated before creating the TestApp.
type testAppConfig struct {
	cfg      *config.Config
	tiers    []delivery.Tier
	verifier delivery.Verifier
	notifier *notify.Service
	serverOn bool
}

// TestAppOption configures the test app.
type TestAppOption func(*testAppConfig)

// WithConfig sets a custom config.
func WithConfig(cfg *config.Config) TestAppOption {
	return func(c *testAppConfig) { c.cfg = cfg }
}

// WithTiers sets the delivery tier chain, normally scripted tiers.
func WithTiers(tiers ...delivery.Tier) TestAppOption {
	return func(c *testAppConfig) { c.tiers = tiers }
}

// WithVerifier sets a delivery verifier. Default is nil: every
// successful send counts as confirmed.
func WithVerifier(v delivery.Verifier) TestAppOption {
	return func(c *testAppConfig) { c.verifier = v }
}

// WithNotifier injects a notification service, typically backed by a
// mock Slack API server.
func WithNotifier(svc *notify.Service) TestAppOption {
	return func(c *testAppConfig) { c.notifier = svc }
}

// WithServer enables the loopback control server on a random port.
func WithServer() TestAppOption {
	return func(c *testAppConfig) { c.serverOn = true }
}

// NewTestApp assembles and starts the full service group the supervisor
// would run, minus process-level concerns (PID lock, heartbeat,
// watchdog). Shutdown is registered via t.Cleanup.
func NewTestApp(t *testing.T, opts ...TestAppOption) *TestApp {
	t.Helper()

	tc := &testAppConfig{}
	for _, opt := range opts {
		opt(tc)
	}
	if tc.cfg == nil {
		tc.cfg = defaultTestConfig()
	}
	if len(tc.tiers) == 0 {
		tc.tiers = []delivery.Tier{NewScriptedTier("tmux", 1)}
	}

	// 1. State dir and queue store.
	paths := config.NewPaths(t.TempDir())
	store := queue.NewStore(paths.QueueFile())

	// 2. Event hub, only when something will consume it.
	var hub *events.Hub
	if tc.serverOn {
		hub = events.NewHub(time.Second)
	}

	// 3. Orchestrator over the scripted tiers.
	orch := delivery.NewOrchestrator(tc.tiers, tc.verifier, tc.cfg.MaxRetries, tc.cfg.RetryBackoff)

	// 4. Watcher and scheduler share the recheck signal.
	recheck := make(chan struct{}, 1)
	watch := watcher.New(watcher.Config{
		Store:         store,
		Notifier:      tc.notifier,
		Hub:           hub,
		CheckInterval: tc.cfg.CheckInterval(),
		Recheck:       recheck,
	})
	sched := scheduler.New(scheduler.Config{
		Store:          store,
		Orchestrator:   orch,
		Notifier:       tc.notifier,
		Hub:            hub,
		Recheck:        recheck,
		PostResetDelay: tc.cfg.PostResetDelay(),
		ResumePrompt:   tc.cfg.ResumePrompt,
	})

	// 5. Optional control server on a random loopback port.
	var server *api.Server
	if tc.serverOn {
		server = api.NewServer(api.Config{
			Addr:      "127.0.0.1:0",
			Store:     store,
			Hub:       hub,
			Resumer:   sched,
			StartedAt: time.Now(),
			PID:       os.Getpid(),
		})
	}

	// 6. Run the group; cleanup cancels and waits.
	ctx, cancel := context.WithCancel(context.Background())
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return watch.Run(ctx) })
	g.Go(func() error { return sched.Run(ctx) })
	if server != nil {
		g.Go(func() error { return server.Run(ctx) })
	}

	app := &TestApp{
		Config:    tc.cfg,
		Paths:     paths,
		Store:     store,
		Hub:       hub,
		Scheduler: sched,
		t:         t,
	}

	if server != nil {
		require.Eventually(t, func() bool { return server.Addr() != "" },
			5*time.Second, 10*time.Millisecond, "control server never bound")
		app.BaseURL = fmt.Sprintf("http://%s", server.Addr())
		app.WSURL = fmt.Sprintf("ws://%s/ws", server.Addr())
	}

	t.Cleanup(func() {
		cancel()
		done := make(chan error, 1)
		go func() { done <- g.Wait() }()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Error("service group did not stop within 5s")
		}
	})

	return app
}

// defaultTestConfig tightens every cadence so scenarios finish in
// seconds: fast queue polling, no post-reset safety wait, a single
// immediate retry round.
func defaultTestConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.CheckIntervalMS = 20
	cfg.PostResetDelaySec = 0
	cfg.MaxRetries = 0
	cfg.RetryBackoffSec = []int{0}
	cfg.TranscriptPollingEnabled = false
	cfg.ServerEnabled = false
	cfg.MetricsEnabled = false
	cfg.DesktopNotificationsEnabled = false
	return cfg
}
