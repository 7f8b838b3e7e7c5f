package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/skein-ai/skein/pkg/models"
	"github.com/skein-ai/skein/pkg/services"
)

// executionsLimit caps how many runs an executions_update or initial_state
// payload carries. Older runs stay reachable through the REST listing.
const executionsLimit = 200

// busBuffer is the notification backlog per Notifier. Notifications only
// mean "re-query now", so a small buffer with drop-on-full coalescing is
// enough.
const busBuffer = 16

// Notifier turns project-change notifications from the Bus into
// executions_update and running_agents broadcasts on the project's channel.
// It also provides the initial_state snapshot delivered on subscribe.
type Notifier struct {
	executions *services.ExecutionService
	manager    *ConnectionManager

	cancel context.CancelFunc
	done   chan struct{}
	unsub  func()
}

// NewNotifier creates a Notifier. Call Start to begin consuming the bus.
func NewNotifier(executions *services.ExecutionService, manager *ConnectionManager) *Notifier {
	return &Notifier{executions: executions, manager: manager}
}

// Start subscribes to the bus and launches the consumer loop.
func (n *Notifier) Start(ctx context.Context, bus *Bus) {
	if n.cancel != nil {
		return
	}
	ctx, n.cancel = context.WithCancel(ctx)
	n.done = make(chan struct{})

	ch, unsub := bus.Subscribe(busBuffer)
	n.unsub = unsub

	go n.loop(ctx, ch)
}

// Stop detaches from the bus and waits for the loop to finish.
func (n *Notifier) Stop() {
	if n.cancel == nil {
		return
	}
	n.cancel()
	n.unsub()
	<-n.done
}

func (n *Notifier) loop(ctx context.Context, ch <-chan string) {
	defer close(n.done)
	for {
		select {
		case <-ctx.Done():
			return
		case projectDir, ok := <-ch:
			if !ok {
				return
			}
			n.publish(ctx, projectDir)
		}
	}
}

// publish broadcasts the project's current execution state to its channel.
func (n *Notifier) publish(ctx context.Context, projectDir string) {
	channel := ProjectChannel(projectDir)
	if n.manager.subscriberCount(channel) == 0 {
		return
	}

	payloads, err := n.statePayloads(ctx, projectDir, EventTypeExecutionsUpdate)
	if err != nil {
		slog.Error("Failed to build execution update",
			"project", projectDir, "error", err)
		return
	}
	for _, payload := range payloads {
		n.manager.Broadcast(channel, payload)
	}
}

// Snapshot implements SnapshotProvider: the initial_state payload (plus
// running_agents when anything is running) for a project channel.
func (n *Notifier) Snapshot(ctx context.Context, channel string) ([][]byte, error) {
	projectDir, ok := strings.CutPrefix(channel, "project:")
	if !ok {
		return nil, nil
	}
	return n.statePayloads(ctx, projectDir, EventTypeInitialState)
}

// statePayloads builds the full execution list payload plus, when any run is
// still open, a running_agents payload.
func (n *Notifier) statePayloads(ctx context.Context, projectDir, listType string) ([][]byte, error) {
	runs, err := n.executions.ListAgentRuns(ctx, projectDir, executionsLimit)
	if err != nil {
		return nil, fmt.Errorf("list runs for %s: %w", projectDir, err)
	}

	executions := make([]executionEntry, 0, len(runs))
	var running []runningEntry
	for _, run := range runs {
		executions = append(executions, executionEntry{
			RunID:        run.RunID,
			AgentName:    run.AgentName,
			ParentRunID:  run.ParentRunID,
			StartedAt:    run.StartedAt,
			CompletedAt:  run.CompletedAt,
			CurrentState: run.CurrentState,
			IsRunning:    !run.Completed(),
		})
		if !run.Completed() {
			running = append(running, runningEntry{
				RunID:        run.RunID,
				AgentName:    run.AgentName,
				CurrentState: run.CurrentState,
			})
		}
	}

	list, err := json.Marshal(executionsPayload{
		Type:       listType,
		ProjectDir: projectDir,
		Executions: executions,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal %s: %w", listType, err)
	}
	payloads := [][]byte{list}

	if len(running) > 0 {
		agents, err := json.Marshal(runningAgentsPayload{
			Type:       EventTypeRunningAgents,
			ProjectDir: projectDir,
			Count:      len(running),
			Agents:     running,
		})
		if err != nil {
			return nil, fmt.Errorf("marshal running agents: %w", err)
		}
		payloads = append(payloads, agents)
	}
	return payloads, nil
}

type executionsPayload struct {
	Type       string           `json:"type"`
	ProjectDir string           `json:"project_dir"`
	Executions []executionEntry `json:"executions"`
}

type executionEntry struct {
	RunID        string          `json:"run_id"`
	AgentName    string          `json:"agent_name"`
	ParentRunID  *string         `json:"parent_run_id"`
	StartedAt    time.Time       `json:"started_at"`
	CompletedAt  *time.Time      `json:"completed_at"`
	CurrentState models.RunState `json:"current_state"`
	IsRunning    bool            `json:"is_running"`
}

type runningAgentsPayload struct {
	Type       string         `json:"type"`
	ProjectDir string         `json:"project_dir"`
	Count      int            `json:"count"`
	Agents     []runningEntry `json:"agents"`
}

type runningEntry struct {
	RunID        string          `json:"run_id"`
	AgentName    string          `json:"agent_name"`
	CurrentState models.RunState `json:"current_state"`
}
