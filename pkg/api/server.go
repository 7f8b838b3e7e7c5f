// Package api exposes the HTTP surface: project, agent, schedule, and
// execution management plus the WebSocket update channel.
package api

import (
	"context"
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/skein-ai/skein/pkg/database"
	"github.com/skein-ai/skein/pkg/events"
	"github.com/skein-ai/skein/pkg/run"
	"github.com/skein-ai/skein/pkg/services"
	"github.com/skein-ai/skein/pkg/tools"
)

// Server is the HTTP server wiring handlers to the domain services.
type Server struct {
	echo *echo.Echo
	http *http.Server

	dbClient   *database.Client
	projects   *services.ProjectService
	schedules  *services.ScheduleService
	executions *services.ExecutionService
	tools      *tools.Registry
	runs       *run.Manager

	connManager *events.ConnectionManager
}

// NewServer creates the server and registers all routes.
func NewServer(
	dbClient *database.Client,
	projects *services.ProjectService,
	schedules *services.ScheduleService,
	executions *services.ExecutionService,
	toolRegistry *tools.Registry,
	runs *run.Manager,
	connManager *events.ConnectionManager,
) *Server {
	s := &Server{
		echo:        echo.New(),
		dbClient:    dbClient,
		projects:    projects,
		schedules:   schedules,
		executions:  executions,
		tools:       toolRegistry,
		runs:        runs,
		connManager: connManager,
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	e := s.echo
	e.Use(securityHeaders())

	e.GET("/health", s.healthHandler)
	e.GET("/ws", s.wsHandler)

	api := e.Group("/api")

	api.GET("/projects", s.listProjectsHandler)
	api.POST("/projects", s.createProjectHandler)
	api.POST("/projects/clone", s.cloneProjectHandler)
	api.DELETE("/projects/:dir", s.deleteProjectHandler)

	api.GET("/tools", s.listToolsHandler)

	api.GET("/agents", s.listAgentsHandler)
	api.POST("/agents", s.createAgentHandler)
	api.POST("/agents/run", s.runAgentHandler)
	api.POST("/agents/stop-all", s.stopAllHandler)
	api.POST("/agents/stop/:id", s.stopTreeHandler)
	api.GET("/agents/:name", s.getAgentHandler)
	api.GET("/agents/:name/detail", s.getAgentDetailHandler)
	api.PUT("/agents/:name", s.updateAgentHandler)
	api.DELETE("/agents/:name", s.deleteAgentHandler)

	api.GET("/executions", s.listExecutionsHandler)
	api.GET("/executions/:id", s.getExecutionHandler)
	api.GET("/executions/:id/tree", s.getExecutionTreeHandler)
	api.GET("/executions/:id/tools", s.getExecutionToolsHandler)
	api.GET("/executions/:id/log", s.getExecutionLogHandler)

	api.GET("/schedules", s.listSchedulesHandler)
	api.POST("/schedules", s.createScheduleHandler)
	api.GET("/schedules/:id", s.getScheduleHandler)
	api.PUT("/schedules/:id", s.updateScheduleHandler)
	api.DELETE("/schedules/:id", s.deleteScheduleHandler)
	api.POST("/schedules/:id/toggle", s.toggleScheduleHandler)
}

// Handler exposes the routed handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start listens on addr and serves until Shutdown. Blocks.
func (s *Server) Start(addr string) error {
	s.http = &http.Server{Addr: addr, Handler: s.echo}
	return s.http.ListenAndServe()
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}
