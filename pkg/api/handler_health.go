package api

import (
	"net/http"
	"os"
	"time"

	echo "github.com/labstack/echo/v5"

	"github.com/Muminur/auto-claude-resume-after-limit-reset-sub000/pkg/version"
)

const (
	healthStatusHealthy   = "healthy"
	healthStatusDegraded  = "degraded"
	healthStatusUnhealthy = "unhealthy"

	// heartbeatStale is how old the liveness stamp may grow before the
	// health check reports the daemon loop as degraded. Three missed
	// 30-second stamps.
	heartbeatStale = 90 * time.Second
)

// healthHandler handles GET /healthz. It checks only the daemon's own
// components so an external-monitor restart loop cannot be triggered by
// someone else's outage.
func (s *Server) healthHandler(c *echo.Context) error {
	checks := make(map[string]HealthCheck)
	status := healthStatusHealthy

	if _, err := s.cfg.Store.Load(); err != nil {
		status = healthStatusUnhealthy
		checks["queue"] = HealthCheck{Status: healthStatusUnhealthy, Message: err.Error()}
	} else {
		checks["queue"] = HealthCheck{Status: healthStatusHealthy}
	}

	if s.cfg.HeartbeatFile != "" {
		check := heartbeatCheck(s.cfg.HeartbeatFile)
		checks["heartbeat"] = check
		if check.Status != healthStatusHealthy && status == healthStatusHealthy {
			status = healthStatusDegraded
		}
	}

	httpStatus := http.StatusOK
	if status == healthStatusUnhealthy {
		httpStatus = http.StatusServiceUnavailable
	}

	return c.JSON(httpStatus, &HealthResponse{
		Status:  status,
		Version: version.GitCommit,
		Checks:  checks,
	})
}

func heartbeatCheck(path string) HealthCheck {
	info, err := os.Stat(path)
	if err != nil {
		return HealthCheck{Status: healthStatusDegraded, Message: "heartbeat missing"}
	}
	if age := time.Since(info.ModTime()); age > heartbeatStale {
		return HealthCheck{
			Status:  healthStatusDegraded,
			Message: "heartbeat stale: " + age.Round(time.Second).String(),
		}
	}
	return HealthCheck{Status: healthStatusHealthy}
}
