package supervisor

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Muminur/auto-claude-resume-after-limit-reset-sub000/pkg/config"
	"github.com/Muminur/auto-claude-resume-after-limit-reset-sub000/pkg/queue"
)

func TestAcquirePIDLock(t *testing.T) {
	path := filepath.Join(t.TempDir(), "daemon.pid")
	alive := func(int) bool { return false }

	lock, err := AcquirePIDLock(path, 1234, alive)
	require.NoError(t, err)

	pid, err := ReadPIDFile(path)
	require.NoError(t, err)
	assert.Equal(t, 1234, pid)

	lock.Release()
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestAcquirePIDLockConflict(t *testing.T) {
	path := filepath.Join(t.TempDir(), "daemon.pid")
	require.NoError(t, os.WriteFile(path, []byte("4242\n"), 0o644))

	alive := func(pid int) bool { return pid == 4242 }
	_, err := AcquirePIDLock(path, 1234, alive)
	require.ErrorIs(t, err, ErrAlreadyRunning)
	assert.Contains(t, err.Error(), "4242")

	// The holder's file is untouched.
	pid, err := ReadPIDFile(path)
	require.NoError(t, err)
	assert.Equal(t, 4242, pid)
}

func TestAcquirePIDLockStaleTakeover(t *testing.T) {
	path := filepath.Join(t.TempDir(), "daemon.pid")
	require.NoError(t, os.WriteFile(path, []byte("4242\n"), 0o644))

	alive := func(int) bool { return false }
	lock, err := AcquirePIDLock(path, 1234, alive)
	require.NoError(t, err)
	defer lock.Release()

	pid, err := ReadPIDFile(path)
	require.NoError(t, err)
	assert.Equal(t, 1234, pid)
}

func TestAcquirePIDLockGarbageFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "daemon.pid")
	require.NoError(t, os.WriteFile(path, []byte("not a pid"), 0o644))

	alive := func(int) bool {
		t.Fatal("alive should not be consulted for an unparseable file")
		return false
	}
	lock, err := AcquirePIDLock(path, 1234, alive)
	require.NoError(t, err)
	lock.Release()
}

func TestHeartbeatRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "heartbeat.json")
	stamp := Heartbeat{Timestamp: time.Date(2026, 2, 10, 7, 30, 0, 0, time.UTC), PID: 99}

	require.NoError(t, WriteHeartbeat(path, stamp))

	got, err := ReadHeartbeat(path)
	require.NoError(t, err)
	assert.Equal(t, stamp.PID, got.PID)
	assert.True(t, stamp.Timestamp.Equal(got.Timestamp))
}

func TestThrottleStartFirstRun(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".last-start")

	start := time.Now()
	require.NoError(t, throttleStart(context.Background(), path, 30*time.Second, time.Now))
	assert.Less(t, time.Since(start), time.Second, "first start must not wait")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotEmpty(t, data)
}

func TestThrottleStartRecentRestartSleeps(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".last-start")

	// The marker has whole-second granularity, so a short window needs a
	// fixed clock: the previous start is 150ms "ago", leaving 100ms of a
	// 250ms window to sleep out.
	base := time.Unix(1_700_000_000, 0)
	writeMarker(t, path, base)
	clock := func() time.Time { return base.Add(150 * time.Millisecond) }

	start := time.Now()
	require.NoError(t, throttleStart(context.Background(), path, 250*time.Millisecond, clock))
	assert.GreaterOrEqual(t, time.Since(start), 80*time.Millisecond)
}

func TestThrottleStartOldMarkerNoWait(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".last-start")
	writeMarker(t, path, time.Now().Add(-time.Hour))

	start := time.Now()
	require.NoError(t, throttleStart(context.Background(), path, 30*time.Second, time.Now))
	assert.Less(t, time.Since(start), time.Second)
}

func TestThrottleStartCancelledDuringWait(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".last-start")
	writeMarker(t, path, time.Now())

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()
	err := throttleStart(ctx, path, time.Minute, time.Now)
	assert.ErrorIs(t, err, context.Canceled)
}

func writeMarker(t *testing.T, path string, at time.Time) {
	t.Helper()
	stamp := strconv.FormatInt(at.Unix(), 10) + "\n"
	require.NoError(t, os.WriteFile(path, []byte(stamp), 0o644))
}

func newTestSupervisor(t *testing.T) *Supervisor {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.TranscriptPollingEnabled = false
	cfg.ServerEnabled = false
	cfg.DesktopNotificationsEnabled = false
	cfg.MetricsEnabled = false
	cfg.CheckIntervalMS = 20

	s := New(Options{Config: cfg, Paths: config.NewPaths(t.TempDir())})
	s.startWindow = 0
	s.heartbeatEvery = 20 * time.Millisecond
	s.memwatchEvery = time.Hour
	s.pruneEvery = time.Hour
	return s
}

func TestSupervisorRunLifecycle(t *testing.T) {
	s := newTestSupervisor(t)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	require.Eventually(t, func() bool {
		pid, err := ReadPIDFile(s.paths.PIDFile())
		return err == nil && pid == os.Getpid()
	}, 3*time.Second, 10*time.Millisecond, "pid file never claimed")

	require.Eventually(t, func() bool {
		hb, err := ReadHeartbeat(s.paths.HeartbeatFile())
		return err == nil && hb.PID == os.Getpid()
	}, 3*time.Second, 10*time.Millisecond, "heartbeat never stamped")

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("supervisor did not stop")
	}

	// Shutdown unlinks the liveness files.
	_, err := os.Stat(s.paths.HeartbeatFile())
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(s.paths.PIDFile())
	assert.True(t, os.IsNotExist(err))
}

func TestSupervisorSecondInstanceRefused(t *testing.T) {
	s := newTestSupervisor(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	require.Eventually(t, func() bool {
		_, err := ReadPIDFile(s.paths.PIDFile())
		return err == nil
	}, 3*time.Second, 10*time.Millisecond)

	second := New(Options{Config: s.cfg, Paths: s.paths})
	second.startWindow = 0
	err := second.Run(context.Background())
	require.ErrorIs(t, err, ErrAlreadyRunning)

	cancel()
	require.NoError(t, <-done)
}

func TestSupervisorMemwatchCeiling(t *testing.T) {
	s := newTestSupervisor(t)
	s.cfg.MemoryCeilingMB = 1 // far below any real Go process RSS
	s.memwatchEvery = 20 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	err := s.runMemwatch(ctx)
	require.ErrorIs(t, err, ErrMemoryCeiling)
}

func TestSupervisorPrunerDropsOldEntries(t *testing.T) {
	s := newTestSupervisor(t)
	s.cfg.RetentionHours = 0
	require.NoError(t, s.paths.Ensure())

	ev, duplicate, err := s.store.Enqueue(queue.RateLimitEvent{
		ResetTime: time.Now().UTC().Add(-time.Hour),
		Timezone:  "UTC",
	})
	require.NoError(t, err)
	require.False(t, duplicate)
	_, err = s.store.UpdateStatus(ev.ID, queue.StatusCompleted)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(100 * time.Millisecond)
		cancel()
	}()
	_ = s.runPruner(ctx)

	doc, err := s.store.Load()
	require.NoError(t, err)
	assert.Empty(t, doc.Queue)
}
