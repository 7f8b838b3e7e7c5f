package api

import (
	"errors"
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/skein-ai/skein/pkg/agent"
)

// agentRegistry returns the agent registry for a project. Agents never fall
// back to the default project, so a project without its own agents dir has
// none.
func (s *Server) agentRegistry(dir string) *agent.Registry {
	return agent.NewRegistry(s.projects.ResolveSubdir(dir, "agents"))
}

func (s *Server) listAgentsHandler(c *echo.Context) error {
	dir, err := s.projectDir(c)
	if err != nil {
		return err
	}

	configs, err := s.agentRegistry(dir).List()
	if err != nil {
		return mapServiceError(err)
	}

	summaries := make([]AgentSummary, 0, len(configs))
	for _, cfg := range configs {
		summaries = append(summaries, AgentSummary{Name: cfg.Name, Description: cfg.Description})
	}
	return c.JSON(http.StatusOK, summaries)
}

func (s *Server) getAgentHandler(c *echo.Context) error {
	dir, err := s.projectDir(c)
	if err != nil {
		return err
	}

	cfg, err := s.agentRegistry(dir).Get(c.Param("name"))
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, AgentSummary{Name: cfg.Name, Description: cfg.Description})
}

func (s *Server) getAgentDetailHandler(c *echo.Context) error {
	dir, err := s.projectDir(c)
	if err != nil {
		return err
	}

	cfg, err := s.agentRegistry(dir).Get(c.Param("name"))
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, cfg)
}

func (s *Server) createAgentHandler(c *echo.Context) error {
	dir, err := s.projectDir(c)
	if err != nil {
		return err
	}

	var req AgentRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	cfg := &agent.Config{
		Name:             req.Name,
		Description:      req.Description,
		SystemPrompt:     req.SystemPrompt,
		AllowedCallables: req.AllowedCallables,
	}
	if err := cfg.Validate(); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	registry := s.agentRegistry(dir)
	if _, err := registry.Get(cfg.Name); err == nil {
		return echo.NewHTTPError(http.StatusConflict, "agent already exists")
	} else if !errors.Is(err, agent.ErrAgentNotFound) {
		return mapServiceError(err)
	}

	if err := registry.Save(cfg); err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusCreated, cfg)
}

func (s *Server) updateAgentHandler(c *echo.Context) error {
	dir, err := s.projectDir(c)
	if err != nil {
		return err
	}

	var req AgentRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	registry := s.agentRegistry(dir)
	name := c.Param("name")
	if _, err := registry.Get(name); err != nil {
		return mapServiceError(err)
	}

	// The path identifies the agent; renames are not supported.
	cfg := &agent.Config{
		Name:             name,
		Description:      req.Description,
		SystemPrompt:     req.SystemPrompt,
		AllowedCallables: req.AllowedCallables,
	}
	if err := cfg.Validate(); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := registry.Save(cfg); err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, cfg)
}

func (s *Server) deleteAgentHandler(c *echo.Context) error {
	dir, err := s.projectDir(c)
	if err != nil {
		return err
	}

	if err := s.agentRegistry(dir).Delete(c.Param("name")); err != nil {
		return mapServiceError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) listToolsHandler(c *echo.Context) error {
	names := s.tools.Names()
	infos := make([]ToolInfo, 0, len(names))
	for _, name := range names {
		tool, ok := s.tools.Get(name)
		if !ok {
			continue
		}
		infos = append(infos, ToolInfo{
			Name:             tool.Name(),
			Description:      tool.Description(),
			ParametersSchema: tool.ParametersSchema(),
		})
	}
	return c.JSON(http.StatusOK, infos)
}
