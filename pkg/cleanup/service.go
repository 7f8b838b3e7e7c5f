// Package cleanup enforces run retention: old completed runs and their log
// files are deleted on a fixed interval.
package cleanup

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/skein-ai/skein/pkg/services"
)

// Service periodically prunes completed runs older than the retention window,
// removing their database rows and JSON log files. Idempotent; running runs
// are never touched.
type Service struct {
	executions *services.ExecutionService
	retention  time.Duration
	interval   time.Duration

	cancel context.CancelFunc
	done   chan struct{}
}

// NewService creates a cleanup service. Retention is how long completed runs
// are kept; interval is how often the sweep runs.
func NewService(executions *services.ExecutionService, retention, interval time.Duration) *Service {
	return &Service{
		executions: executions,
		retention:  retention,
		interval:   interval,
	}
}

// Start launches the background sweep loop.
func (s *Service) Start(ctx context.Context) {
	if s.cancel != nil {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})

	go s.run(ctx)

	slog.Info("Cleanup service started", "retention", s.retention, "interval", s.interval)
}

// Stop signals the sweep loop to exit and waits for it to finish.
func (s *Service) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	slog.Info("Cleanup service stopped")
}

func (s *Service) run(ctx context.Context) {
	defer close(s.done)

	s.Sweep(ctx, time.Now().UTC())

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep(ctx, time.Now().UTC())
		}
	}
}

// Sweep prunes runs completed before now minus the retention window.
func (s *Service) Sweep(ctx context.Context, now time.Time) {
	logFiles, err := s.executions.PruneCompletedRuns(ctx, now.Add(-s.retention))
	if err != nil {
		slog.Error("Retention: prune runs failed", "error", err)
		return
	}

	removed := 0
	for _, path := range logFiles {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			slog.Warn("Retention: remove log file failed", "path", path, "error", err)
			continue
		}
		removed++
	}
	if len(logFiles) > 0 {
		slog.Info("Retention: pruned old runs", "log_files", removed)
	}
}
