package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestConfig_DurationHelpers(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, 5*time.Second, cfg.CheckInterval())
	assert.Equal(t, 10*time.Second, cfg.PostResetDelay())
	assert.Equal(t, 90*time.Second, cfg.VerificationWindow())
	assert.Equal(t, 30*time.Second, cfg.ActiveVerificationTimeout())
	assert.Equal(t, 2*time.Second, cfg.ActiveVerificationPoll())
	assert.Equal(t, 30*time.Second, cfg.TranscriptPollInterval())
	assert.Equal(t, 24*time.Hour, cfg.Retention())
	assert.Equal(t, int64(1024*1024), cfg.MaxLogSizeBytes())
	assert.Equal(t, uint64(200*1024*1024), cfg.MemoryCeilingBytes())
}

func TestConfig_RetryBackoff(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, 10*time.Second, cfg.RetryBackoff(0))
	assert.Equal(t, 20*time.Second, cfg.RetryBackoff(1))
	assert.Equal(t, 40*time.Second, cfg.RetryBackoff(2))
	assert.Equal(t, 60*time.Second, cfg.RetryBackoff(3))
	// Rounds beyond the schedule reuse the final entry.
	assert.Equal(t, 60*time.Second, cfg.RetryBackoff(9))

	cfg.RetryBackoffSec = nil
	assert.Equal(t, time.Duration(0), cfg.RetryBackoff(0))
}

func TestValidateLoopbackAddr(t *testing.T) {
	assert.NoError(t, validateLoopbackAddr("127.0.0.1:7865"))
	assert.NoError(t, validateLoopbackAddr("localhost:80"))
	assert.NoError(t, validateLoopbackAddr("[::1]:7865"))
	assert.Error(t, validateLoopbackAddr("0.0.0.0:7865"))
	assert.Error(t, validateLoopbackAddr("192.168.1.4:7865"))
	assert.Error(t, validateLoopbackAddr("no-port"))
}

func TestPaths_Layout(t *testing.T) {
	p := NewPaths("/tmp/state")

	assert.Equal(t, "/tmp/state/status.json", p.QueueFile())
	assert.Equal(t, "/tmp/state/daemon.pid", p.PIDFile())
	assert.Equal(t, "/tmp/state/daemon.log", p.LogFile())
	assert.Equal(t, "/tmp/state/daemon.log.1", p.RotatedLogFile())
	assert.Equal(t, "/tmp/state/heartbeat.json", p.HeartbeatFile())
	assert.Equal(t, "/tmp/state/.last-start", p.LastStartFile())
	assert.Equal(t, "/tmp/state/config.json", p.ConfigFile())
}

func TestDefaultStateDir_EnvOverride(t *testing.T) {
	t.Setenv(StateDirEnv, "/custom/state")

	dir, err := DefaultStateDir()
	assert.NoError(t, err)
	assert.Equal(t, "/custom/state", dir)
}
