package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	echo "github.com/labstack/echo/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Muminur/auto-claude-resume-after-limit-reset-sub000/pkg/queue"
)

func TestStatusHandler(t *testing.T) {
	s, store := newTestServer(t)
	ev := enqueueTestEvent(t, store, time.Now().UTC().Add(30*time.Minute))

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/status", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	require.NoError(t, s.statusHandler(c))
	assert.Equal(t, http.StatusOK, rec.Code)

	var resp StatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))

	assert.Equal(t, "running", resp.State)
	assert.Equal(t, 1, resp.QueueDepth)
	assert.True(t, resp.Detected)
	assert.GreaterOrEqual(t, resp.UptimeSeconds, int64(90))
	require.NotNil(t, resp.NextEvent)
	assert.Equal(t, ev.ID, resp.NextEvent.ID)
	assert.Equal(t, string(queue.StatusPending), resp.NextEvent.Status)
	assert.Greater(t, resp.NextEvent.RemainingSeconds, 1700)
	assert.LessOrEqual(t, resp.NextEvent.RemainingSeconds, 1800)
}

func TestStatusHandlerEmptyQueue(t *testing.T) {
	s, _ := newTestServer(t)

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/status", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	require.NoError(t, s.statusHandler(c))

	var resp StatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 0, resp.QueueDepth)
	assert.False(t, resp.Detected)
	assert.Nil(t, resp.NextEvent)
}

func TestStatusHandlerExpiredEventClampsRemaining(t *testing.T) {
	s, store := newTestServer(t)
	enqueueTestEvent(t, store, time.Now().UTC().Add(-time.Hour))

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/status", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	require.NoError(t, s.statusHandler(c))

	var resp StatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotNil(t, resp.NextEvent)
	assert.Equal(t, 0, resp.NextEvent.RemainingSeconds)
}

func TestQueueHandler(t *testing.T) {
	s, store := newTestServer(t)
	ev := enqueueTestEvent(t, store, time.Now().UTC().Add(time.Hour))

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/queue", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	require.NoError(t, s.queueHandler(c))
	assert.Equal(t, http.StatusOK, rec.Code)

	var doc queue.Document
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &doc))
	require.Len(t, doc.Queue, 1)
	assert.Equal(t, ev.ID, doc.Queue[0].ID)
	assert.True(t, doc.Detected)
}
