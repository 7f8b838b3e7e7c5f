package api

import (
	"fmt"
	"net/http"
	"strings"

	echo "github.com/labstack/echo/v5"

	"github.com/skein-ai/skein/pkg/agent/orchestrator"
)

func (s *Server) runAgentHandler(c *echo.Context) error {
	dir, err := s.projectDir(c)
	if err != nil {
		return err
	}

	var req RunAgentRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if strings.TrimSpace(req.AgentName) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "agent_name is required")
	}
	if strings.TrimSpace(req.Message) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "message is required")
	}

	runID, err := s.runs.StartRun(c.Request().Context(), orchestrator.Request{
		AgentName:  req.AgentName,
		Message:    req.Message,
		ProjectDir: dir,
	})
	if err != nil {
		return mapServiceError(err)
	}

	return c.JSON(http.StatusOK, &RunStartedResponse{
		RunID:     runID,
		AgentName: req.AgentName,
		Status:    "started",
		Message:   fmt.Sprintf("agent %s started", req.AgentName),
	})
}

// stopAllHandler stops every active run, optionally scoped to one project
// via the "project" query parameter.
func (s *Server) stopAllHandler(c *echo.Context) error {
	dir := c.QueryParam("project")
	if dir != "" {
		if _, err := s.projects.GetProjectByDir(c.Request().Context(), dir); err != nil {
			return mapServiceError(err)
		}
	}

	count, err := s.runs.StopAll(c.Request().Context(), dir)
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, &StopResponse{
		StoppedCount: count,
		Message:      fmt.Sprintf("stopped %d runs", count),
	})
}

func (s *Server) stopTreeHandler(c *echo.Context) error {
	count, err := s.runs.StopTree(c.Request().Context(), c.Param("id"))
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, &StopResponse{
		StoppedCount: count,
		Message:      fmt.Sprintf("stopped %d runs", count),
	})
}
