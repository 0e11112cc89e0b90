package api

import (
	"errors"
	"log/slog"
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/Muminur/auto-claude-resume-after-limit-reset-sub000/pkg/queue"
)

// mapStoreError maps queue-layer errors to HTTP error responses.
func mapStoreError(err error) *echo.HTTPError {
	if errors.Is(err, queue.ErrEventNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "no event to act on")
	}
	if errors.Is(err, queue.ErrInvalidTransition) {
		return echo.NewHTTPError(http.StatusConflict, "event is not in an actionable state")
	}
	if errors.Is(err, queue.ErrInvalidQueueDocument) {
		return echo.NewHTTPError(http.StatusInternalServerError, "queue document unreadable")
	}

	slog.Error("Unexpected store error", "error", err)
	return echo.NewHTTPError(http.StatusInternalServerError, "internal server error")
}
