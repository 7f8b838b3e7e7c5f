package api

import (
	"net/http"
	"strings"

	echo "github.com/labstack/echo/v5"

	"github.com/skein-ai/skein/pkg/services"
)

func (s *Server) listProjectsHandler(c *echo.Context) error {
	projects, err := s.projects.ListProjects(c.Request().Context())
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, projects)
}

func (s *Server) createProjectHandler(c *echo.Context) error {
	var req CreateProjectRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	project, err := s.projects.CreateProject(c.Request().Context(), strings.TrimSpace(req.ProjectName))
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusCreated, project)
}

func (s *Server) cloneProjectHandler(c *echo.Context) error {
	var req CloneProjectRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	project, err := s.projects.CloneProject(c.Request().Context(), req.SourceDir, strings.TrimSpace(req.ProjectName))
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusCreated, project)
}

func (s *Server) deleteProjectHandler(c *echo.Context) error {
	if err := s.projects.DeleteProject(c.Request().Context(), c.Param("dir")); err != nil {
		return mapServiceError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// projectDir resolves the "project" query parameter, defaulting to the
// default project, and verifies the project exists.
func (s *Server) projectDir(c *echo.Context) (string, error) {
	dir := c.QueryParam("project")
	if dir == "" {
		dir = services.DefaultProjectDir
	}
	if _, err := s.projects.GetProjectByDir(c.Request().Context(), dir); err != nil {
		return "", mapServiceError(err)
	}
	return dir, nil
}
