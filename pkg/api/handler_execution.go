package api

import (
	"encoding/json"
	"net/http"
	"os"
	"strconv"

	echo "github.com/labstack/echo/v5"

	"github.com/skein-ai/skein/pkg/models"
)

const defaultExecutionLimit = 100

func (s *Server) listExecutionsHandler(c *echo.Context) error {
	dir, err := s.projectDir(c)
	if err != nil {
		return err
	}

	limit := defaultExecutionLimit
	if raw := c.QueryParam("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			return echo.NewHTTPError(http.StatusBadRequest, "limit must be a positive integer")
		}
		limit = parsed
	}

	runs, err := s.executions.ListAgentRuns(c.Request().Context(), dir, limit)
	if err != nil {
		return mapServiceError(err)
	}

	if c.QueryParam("roots") == "true" {
		roots := make([]*models.AgentRun, 0, len(runs))
		for _, r := range runs {
			if r.ParentRunID == nil {
				roots = append(roots, r)
			}
		}
		runs = roots
	}
	return c.JSON(http.StatusOK, runs)
}

func (s *Server) getExecutionHandler(c *echo.Context) error {
	run, err := s.executions.GetAgentRun(c.Request().Context(), c.Param("id"))
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, run)
}

func (s *Server) getExecutionTreeHandler(c *echo.Context) error {
	ctx := c.Request().Context()
	tree, err := s.executions.ExecutionTree(ctx, c.Param("id"))
	if err != nil {
		return mapServiceError(err)
	}

	resp, err := s.buildTreeResponse(c, tree)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, resp)
}

// buildTreeResponse decorates each tree node with its tool invocations.
func (s *Server) buildTreeResponse(c *echo.Context, node *models.ExecutionTreeNode) (*ExecutionTreeResponse, error) {
	invocations, err := s.executions.ListToolInvocations(c.Request().Context(), node.Run.RunID)
	if err != nil {
		return nil, mapServiceError(err)
	}

	resp := &ExecutionTreeResponse{
		Run:      node.Run,
		Tools:    invocations,
		Children: make([]ExecutionTreeResponse, 0, len(node.Children)),
	}
	for i := range node.Children {
		child, err := s.buildTreeResponse(c, &node.Children[i])
		if err != nil {
			return nil, err
		}
		resp.Children = append(resp.Children, *child)
	}
	return resp, nil
}

func (s *Server) getExecutionToolsHandler(c *echo.Context) error {
	ctx := c.Request().Context()
	runID := c.Param("id")
	if _, err := s.executions.GetAgentRun(ctx, runID); err != nil {
		return mapServiceError(err)
	}

	invocations, err := s.executions.ListToolInvocations(ctx, runID)
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, invocations)
}

// getExecutionLogHandler serves the full conversation log for a run, read
// from the JSON log file the orchestrator rewrites as the run progresses.
func (s *Server) getExecutionLogHandler(c *echo.Context) error {
	run, err := s.executions.GetAgentRun(c.Request().Context(), c.Param("id"))
	if err != nil {
		return mapServiceError(err)
	}
	if run.LogFile == nil {
		return echo.NewHTTPError(http.StatusNotFound, "no log recorded for this run")
	}

	data, err := os.ReadFile(*run.LogFile)
	if err != nil {
		if os.IsNotExist(err) {
			return echo.NewHTTPError(http.StatusNotFound, "log file not found")
		}
		return mapServiceError(err)
	}

	var log models.RunLog
	if err := json.Unmarshal(data, &log); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "log file is corrupted")
	}
	return c.JSON(http.StatusOK, &log)
}
