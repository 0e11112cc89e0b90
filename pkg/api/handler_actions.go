package api

import (
	"net/http"

	echo "github.com/labstack/echo/v5"
)

// resumeNowHandler handles POST /api/v1/actions/resume-now: immediate
// delivery for the head event, skipping its countdown.
func (s *Server) resumeNowHandler(c *echo.Context) error {
	if s.cfg.Resumer == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "resume action not available")
	}
	head, result, err := s.cfg.Resumer.ResumeNow(c.Request().Context())
	if err != nil {
		return mapStoreError(err)
	}
	return c.JSON(http.StatusOK, &ResumeNowResponse{EventID: head.ID, Result: result})
}

// clearHandler handles POST /api/v1/actions/clear, resetting the queue
// document.
func (s *Server) clearHandler(c *echo.Context) error {
	if err := s.cfg.Store.Reset(); err != nil {
		return mapStoreError(err)
	}
	return c.JSON(http.StatusOK, &ActionResponse{Status: "cleared"})
}
