package api

import (
	"net/http"

	echo "github.com/labstack/echo/v5"
)

const (
	healthStatusHealthy   = "healthy"
	healthStatusUnhealthy = "unhealthy"
)

// healthHandler handles GET /health. Only the database is checked; the LLM
// endpoint is deliberately excluded so an upstream outage does not get the
// process restarted.
func (s *Server) healthHandler(c *echo.Context) error {
	checks := make(map[string]HealthCheck)
	status := healthStatusHealthy

	if err := s.dbClient.Health(c.Request().Context()); err != nil {
		status = healthStatusUnhealthy
		checks["database"] = HealthCheck{Status: healthStatusUnhealthy, Message: err.Error()}
	} else {
		checks["database"] = HealthCheck{Status: healthStatusHealthy}
	}

	httpStatus := http.StatusOK
	if status == healthStatusUnhealthy {
		httpStatus = http.StatusServiceUnavailable
	}

	return c.JSON(httpStatus, &HealthResponse{
		Status:     status,
		ActiveRuns: s.runs.ActiveCount(),
		Checks:     checks,
	})
}
