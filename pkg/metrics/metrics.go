// Package metrics exposes daemon counters over the loopback /metrics
// endpoint. All record functions are safe to call from hot paths: when
// the module is disabled they are no-ops.
package metrics

import (
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var modEnabled atomic.Bool

var (
	detectionsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "autoresume_detections_total",
		Help: "Rate-limit detections extracted from transcripts",
	})
	hookRunsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "autoresume_hook_runs_total",
		Help: "Analyzer invocations, hook and poller combined",
	})
	deliveriesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "autoresume_deliveries_total",
		Help: "Keystroke delivery attempts by tier and result",
	}, []string{"tier", "result"})
	retriesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "autoresume_delivery_retries_total",
		Help: "Delivery retry rounds entered after an unconfirmed first pass",
	})
	verificationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "autoresume_verifications_total",
		Help: "Post-delivery verification outcomes",
	}, []string{"result"})
	queueDepth = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "autoresume_queue_depth",
		Help: "Events currently queued, terminal entries excluded",
	})
	countdownSeconds = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "autoresume_countdown_seconds",
		Help: "Seconds until the head-of-queue event resumes, 0 when idle",
	})
	residentMemoryBytes = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "autoresume_resident_memory_bytes",
		Help: "Daemon RSS as sampled by the memory watchdog",
	})
)

func init() {
	prometheus.MustRegister(
		detectionsTotal,
		hookRunsTotal,
		deliveriesTotal,
		retriesTotal,
		verificationsTotal,
		queueDepth,
		countdownSeconds,
		residentMemoryBytes,
	)
}

// Enable switches recording on or off. Safe to call multiple times.
func Enable(on bool) {
	modEnabled.Store(on)
}

// Enabled reports whether the module is recording.
func Enabled() bool { return modEnabled.Load() }

// Handler serves the Prometheus exposition endpoint.
func Handler() http.Handler { return promhttp.Handler() }

// RecordDetection counts one extracted rate-limit event.
func RecordDetection() {
	if !modEnabled.Load() {
		return
	}
	detectionsTotal.Inc()
}

// RecordHookRun counts one analyzer invocation.
func RecordHookRun() {
	if !modEnabled.Load() {
		return
	}
	hookRunsTotal.Inc()
}

// RecordDelivery counts one tier attempt with its outcome.
func RecordDelivery(tier string, success bool) {
	if !modEnabled.Load() {
		return
	}
	result := "failure"
	if success {
		result = "success"
	}
	deliveriesTotal.WithLabelValues(tier, result).Inc()
}

// RecordRetry counts one retry round.
func RecordRetry() {
	if !modEnabled.Load() {
		return
	}
	retriesTotal.Inc()
}

// RecordVerification counts one verification outcome.
func RecordVerification(verified bool) {
	if !modEnabled.Load() {
		return
	}
	result := "timeout"
	if verified {
		result = "verified"
	}
	verificationsTotal.WithLabelValues(result).Inc()
}

// SetQueueDepth publishes the current non-terminal queue length.
func SetQueueDepth(n int) {
	if !modEnabled.Load() {
		return
	}
	queueDepth.Set(float64(n))
}

// SetCountdown publishes the remaining time on the active countdown.
func SetCountdown(remaining time.Duration) {
	if !modEnabled.Load() {
		return
	}
	if remaining < 0 {
		remaining = 0
	}
	countdownSeconds.Set(remaining.Seconds())
}

// SetResidentMemory publishes the watchdog's latest RSS sample.
func SetResidentMemory(rss uint64) {
	if !modEnabled.Load() {
		return
	}
	residentMemoryBytes.Set(float64(rss))
}
