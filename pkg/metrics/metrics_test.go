package metrics

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordingGatedByEnable(t *testing.T) {
	Enable(false)
	before := testutil.ToFloat64(detectionsTotal)

	RecordDetection()
	assert.Equal(t, before, testutil.ToFloat64(detectionsTotal))

	Enable(true)
	defer Enable(false)
	RecordDetection()
	assert.Equal(t, before+1, testutil.ToFloat64(detectionsTotal))
}

func TestRecordDeliveryLabels(t *testing.T) {
	Enable(true)
	defer Enable(false)

	RecordDelivery("tmux", true)
	RecordDelivery("tmux", false)
	RecordDelivery("pty", false)

	assert.Equal(t, float64(1), testutil.ToFloat64(deliveriesTotal.WithLabelValues("tmux", "success")))
	assert.GreaterOrEqual(t, testutil.ToFloat64(deliveriesTotal.WithLabelValues("tmux", "failure")), float64(1))
	assert.GreaterOrEqual(t, testutil.ToFloat64(deliveriesTotal.WithLabelValues("pty", "failure")), float64(1))
}

func TestGauges(t *testing.T) {
	Enable(true)
	defer Enable(false)

	SetQueueDepth(3)
	assert.Equal(t, float64(3), testutil.ToFloat64(queueDepth))

	SetCountdown(90 * time.Second)
	assert.Equal(t, float64(90), testutil.ToFloat64(countdownSeconds))

	SetCountdown(-5 * time.Second)
	assert.Equal(t, float64(0), testutil.ToFloat64(countdownSeconds))

	SetResidentMemory(64 << 20)
	assert.Equal(t, float64(64<<20), testutil.ToFloat64(residentMemoryBytes))
}

func TestHandlerServesExposition(t *testing.T) {
	Enable(true)
	defer Enable(false)
	RecordVerification(true)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/metrics", nil)
	Handler().ServeHTTP(rec, req)

	require.Equal(t, 200, rec.Code)
	assert.Contains(t, rec.Body.String(), "autoresume_verifications_total")
}
