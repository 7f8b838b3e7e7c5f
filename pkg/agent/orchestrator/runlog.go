package orchestrator

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/skein-ai/skein/pkg/models"
)

// streamFlushInterval throttles log rewrites while a response is streaming.
const streamFlushInterval = time.Second

// RunLogWriter maintains a run's JSON log file. The file is rewritten in full
// on every flush so readers always see a complete document; partial LLM
// output is surfaced as a trailing assistant entry flagged streaming.
type RunLogWriter struct {
	mu   sync.Mutex
	path string
	doc  models.RunLog

	lastStreamFlush time.Time
}

// NewRunLogWriter creates the logs directory if needed and opens a writer for
// the run. The file name carries the start timestamp, agent name, and run ID.
func NewRunLogWriter(logsDir string, run *models.AgentRun, model string) (*RunLogWriter, error) {
	if err := os.MkdirAll(logsDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create logs directory: %w", err)
	}

	name := fmt.Sprintf("%s_%s_%s.log",
		run.StartedAt.UTC().Format("2006_01_02_15_04_05"), run.AgentName, run.RunID)

	return &RunLogWriter{
		path: filepath.Join(logsDir, name),
		doc: models.RunLog{
			RunID:           run.RunID,
			AgentName:       run.AgentName,
			ParentRunID:     run.ParentRunID,
			ParentAgentName: run.ParentAgentName,
			StartedAt:       run.StartedAt,
			Model:           model,
			Interactions:    []models.Message{},
		},
	}, nil
}

// Path returns the log file location.
func (w *RunLogWriter) Path() string {
	return w.path
}

// Flush rewrites the log with the current conversation.
func (w *RunLogWriter) Flush(messages []models.Message) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.write(messages, nil)
}

// FlushStreaming rewrites the log with a transient streaming assistant entry
// holding partial content. Calls within streamFlushInterval of the previous
// streaming flush are dropped.
func (w *RunLogWriter) FlushStreaming(messages []models.Message, partial string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := time.Now()
	if now.Sub(w.lastStreamFlush) < streamFlushInterval {
		return
	}
	w.lastStreamFlush = now

	entry := models.Message{
		Role:      models.RoleAssistant,
		Content:   partial,
		Timestamp: now.UTC(),
		Streaming: true,
	}
	w.write(messages, &entry)
}

// Finalize records the run outcome and writes the log one last time.
func (w *RunLogWriter) Finalize(messages []models.Message, finalResponse string, totalIterations int, sessionEnded bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	completedAt := time.Now().UTC()
	w.doc.CompletedAt = &completedAt
	w.doc.FinalResponse = finalResponse
	w.doc.TotalIterations = totalIterations
	w.doc.SessionEndedExplicitly = sessionEnded
	w.write(messages, nil)
}

func (w *RunLogWriter) write(messages []models.Message, extra *models.Message) {
	interactions := make([]models.Message, len(messages), len(messages)+1)
	copy(interactions, messages)
	if extra != nil {
		interactions = append(interactions, *extra)
	}
	w.doc.Interactions = interactions

	data, err := json.MarshalIndent(&w.doc, "", "  ")
	if err != nil {
		slog.Warn("failed to encode run log", "path", w.path, "error", err)
		return
	}
	if err := os.WriteFile(w.path, data, 0o644); err != nil {
		slog.Warn("failed to write run log", "path", w.path, "error", err)
	}
}
