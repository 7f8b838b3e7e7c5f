// Skein server — provides the HTTP API, runs scheduled agents, and
// orchestrates multi-agent executions.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/skein-ai/skein/pkg/agent/orchestrator"
	"github.com/skein-ai/skein/pkg/api"
	"github.com/skein-ai/skein/pkg/cleanup"
	"github.com/skein-ai/skein/pkg/config"
	"github.com/skein-ai/skein/pkg/database"
	"github.com/skein-ai/skein/pkg/events"
	"github.com/skein-ai/skein/pkg/llm"
	"github.com/skein-ai/skein/pkg/run"
	"github.com/skein-ai/skein/pkg/scheduler"
	"github.com/skein-ai/skein/pkg/services"
	"github.com/skein-ai/skein/pkg/tools"
	"github.com/skein-ai/skein/pkg/version"
)

func main() {
	// Load .env if present
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file, continuing with existing environment")
	}

	ctx := context.Background()

	// 1. Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	slog.Info("Starting skein", "version", version.Full(), "http_port", cfg.HTTPPort, "user_dir", cfg.UserDir)

	// 2. Open database
	dbClient, err := database.NewClient(ctx, database.LoadConfigFromEnv())
	if err != nil {
		slog.Error("Failed to open database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			slog.Error("Error closing database", "error", err)
		}
	}()

	// 3. Domain services
	projects := services.NewProjectService(dbClient.DB(), cfg.UserDir)
	if err := projects.EnsureDefaultProject(ctx); err != nil {
		slog.Error("Failed to ensure default project", "error", err)
		os.Exit(1)
	}
	executions := services.NewExecutionService(dbClient.DB())
	schedules := services.NewScheduleService(dbClient.DB())

	// 4. Reclaim runs left open by a previous process
	manager := run.NewManager(executions)
	if n, err := manager.ReclaimOrphans(ctx); err != nil {
		slog.Error("Failed to reclaim orphaned runs", "error", err)
	} else if n > 0 {
		slog.Info("Reclaimed orphaned runs", "count", n)
	}

	// 5. Tool registry
	registry, err := tools.NewRegistry(tools.BuiltinTools()...)
	if err != nil {
		slog.Error("Failed to build tool registry", "error", err)
		os.Exit(1)
	}

	// 6. Event layer: bus → notifier → websocket connections
	bus := events.NewBus()
	connManager := events.NewConnectionManager(cfg.WSWriteTimeout)
	notifier := events.NewNotifier(executions, connManager)
	connManager.SetSnapshotProvider(notifier)
	notifier.Start(ctx, bus)
	defer notifier.Stop()

	// 7. Orchestrator over an OpenAI-compatible endpoint
	llmClient := llm.NewOpenAIClient(llm.OpenAIConfig{
		BaseURL:     cfg.LLM.BaseURL,
		APIKey:      cfg.LLM.APIKey,
		Model:       cfg.LLM.Model,
		Temperature: cfg.LLM.Temperature,
		Timeout:     cfg.LLM.Timeout,
	})
	orc := orchestrator.New(orchestrator.Deps{
		LLM:           llmClient,
		Model:         cfg.LLM.Model,
		Tools:         registry,
		Projects:      projects,
		Executions:    executions,
		LogsDir:       cfg.LogsDir,
		MaxIterations: cfg.MaxIterations,
		Workers:       cfg.Workers,
		OnChange:      bus.Publish,
		OnRunStarted:  manager.Track,
		OnRunFinished: manager.Untrack,
	})
	manager.SetOrchestrator(orc)

	// 8. Schedule runner
	runner := scheduler.NewRunner(schedules, manager, cfg.ScheduleTick)
	runner.Start(ctx)
	defer runner.Stop()

	// 8a. Run retention sweeper (optional)
	var retention *cleanup.Service
	if cfg.RunRetention > 0 {
		retention = cleanup.NewService(executions, cfg.RunRetention, cfg.CleanupInterval)
		retention.Start(ctx)
		defer retention.Stop()
	}

	// 9. HTTP server
	server := api.NewServer(dbClient, projects, schedules, executions, registry, manager, connManager)
	go func() {
		addr := ":" + cfg.HTTPPort
		slog.Info("HTTP server listening", "addr", addr)
		if err := server.Start(addr); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server failed", "error", err)
			os.Exit(1)
		}
	}()

	// 10. Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	sig := <-sigCh
	slog.Info("Shutdown signal received", "signal", sig.String())

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	runner.Stop()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}
	if err := manager.Shutdown(shutdownCtx); err != nil {
		slog.Error("Run manager shutdown error", "error", err)
	}
	notifier.Stop()
	slog.Info("Shutdown complete")
}
