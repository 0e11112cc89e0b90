package api

import (
	"net/http"
	"time"

	echo "github.com/labstack/echo/v5"

	"github.com/Muminur/auto-claude-resume-after-limit-reset-sub000/pkg/version"
)

// statusHandler handles GET /api/v1/status.
func (s *Server) statusHandler(c *echo.Context) error {
	doc, err := s.cfg.Store.Load()
	if err != nil {
		return mapStoreError(err)
	}

	depth := 0
	for i := range doc.Queue {
		if doc.Queue[i].Active() {
			depth++
		}
	}

	resp := &StatusResponse{
		State:         "running",
		PID:           s.cfg.PID,
		Version:       version.Full(),
		UptimeSeconds: int64(time.Since(s.cfg.StartedAt).Seconds()),
		QueueDepth:    depth,
		Detected:      doc.Detected,
		LastHookRun:   doc.LastHookRun,
		Connections:   s.cfg.Hub.ActiveConnections(),
	}

	head, err := s.cfg.Store.PeekNextPending()
	if err == nil && head != nil {
		remaining := int(time.Until(head.ResetTime).Seconds())
		if remaining < 0 {
			remaining = 0
		}
		resp.NextEvent = &QueueEventSummary{
			ID:               head.ID,
			Status:           string(head.Status),
			ResetTime:        head.ResetTime,
			RemainingSeconds: remaining,
		}
	}

	return c.JSON(http.StatusOK, resp)
}

// queueHandler handles GET /api/v1/queue, returning the full document.
func (s *Server) queueHandler(c *echo.Context) error {
	doc, err := s.cfg.Store.Load()
	if err != nil {
		return mapStoreError(err)
	}
	return c.JSON(http.StatusOK, doc)
}
