package orchestrator

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/skein-ai/skein/pkg/agent/prompt"
)

// resultsBuffer bounds the completed-results channel. Task goroutines that
// finish while the buffer is full block until the loop drains a result.
const resultsBuffer = 64

// TaskResult is one completed asynchronous task, delivered in completion
// order.
type TaskResult struct {
	TaskID string
	Result string
}

type pendingTask struct {
	toolName   string
	parameters string
	launchedAt time.Time
	done       chan struct{}
}

// TaskManager tracks asynchronous tool and sub-agent tasks for a single run.
// A task counts as outstanding from launch until its result has been taken
// off the results channel AND marked processed; a task no longer pending may
// therefore still block session end.
type TaskManager struct {
	mu      sync.Mutex
	pending map[string]*pendingTask
	workers *WorkerPool
	nextID  int

	launched  int
	processed int

	results chan TaskResult

	// Closed by Cancel so finished task goroutines never block on an
	// abandoned results channel.
	closeCh   chan struct{}
	closeOnce sync.Once
}

// NewTaskManager creates an empty manager executing its tasks on the shared
// workers pool. Task IDs are sequential across all tools within the run.
func NewTaskManager(workers *WorkerPool) *TaskManager {
	return &TaskManager{
		pending: make(map[string]*pendingTask),
		workers: workers,
		results: make(chan TaskResult, resultsBuffer),
		closeCh: make(chan struct{}),
	}
}

// GenerateTaskID mints the next task ID for toolName.
func (m *TaskManager) GenerateTaskID(toolName string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	return toolName + "_" + strconv.Itoa(m.nextID)
}

// Launch starts execute in a goroutine and registers the task as pending.
// execute must map its own failures to result text; a panic is converted to
// an error result so the task still completes.
func (m *TaskManager) Launch(ctx context.Context, taskID, toolName, parameters string, execute func(ctx context.Context) string) {
	task := &pendingTask{
		toolName:   toolName,
		parameters: parameters,
		launchedAt: time.Now().UTC(),
		done:       make(chan struct{}),
	}

	m.mu.Lock()
	m.pending[taskID] = task
	m.launched++
	m.mu.Unlock()

	go func() {
		defer close(task.done)
		defer func() {
			m.mu.Lock()
			delete(m.pending, taskID)
			m.mu.Unlock()
		}()

		var result string
		if m.workers.acquire(ctx) {
			result = m.runTask(ctx, taskID, execute)
			m.workers.release()
		} else {
			result = fmt.Sprintf("Error in task %s: %v", taskID, ctx.Err())
		}
		select {
		case m.results <- TaskResult{TaskID: taskID, Result: result}:
		case <-m.closeCh:
		}
	}()
}

func (m *TaskManager) runTask(ctx context.Context, taskID string, execute func(ctx context.Context) string) (result string) {
	defer func() {
		if r := recover(); r != nil {
			result = fmt.Sprintf("Error in task %s: %v", taskID, r)
		}
	}()
	return execute(ctx)
}

// TryNext returns a completed result without blocking.
func (m *TaskManager) TryNext() (TaskResult, bool) {
	select {
	case result := <-m.results:
		return result, true
	default:
		return TaskResult{}, false
	}
}

// WaitNext blocks until a task result arrives or ctx is cancelled.
func (m *TaskManager) WaitNext(ctx context.Context) (TaskResult, error) {
	select {
	case result := <-m.results:
		return result, nil
	case <-ctx.Done():
		return TaskResult{}, ctx.Err()
	}
}

// PollNext waits up to timeout for a result, returning ok=false on timeout
// or cancellation.
func (m *TaskManager) PollNext(ctx context.Context, timeout time.Duration) (TaskResult, bool) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case result := <-m.results:
		return result, true
	case <-timer.C:
		return TaskResult{}, false
	case <-ctx.Done():
		return TaskResult{}, false
	}
}

// MarkProcessed records that one drained result has been fully handled.
func (m *TaskManager) MarkProcessed() {
	m.mu.Lock()
	m.processed++
	m.mu.Unlock()
}

// HasPending reports whether any task goroutines are still running.
func (m *TaskManager) HasPending() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending) > 0
}

// PendingIDs returns the IDs of still-running tasks in launch order.
func (m *TaskManager) PendingIDs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	ids := make([]string, 0, len(m.pending))
	for id := range m.pending {
		ids = append(ids, id)
	}
	sortTaskIDs(ids)
	return ids
}

// PendingTasks snapshots running tasks for the transient pending-tasks notice.
func (m *TaskManager) PendingTasks() []prompt.PendingTask {
	m.mu.Lock()
	defer m.mu.Unlock()

	ids := make([]string, 0, len(m.pending))
	for id := range m.pending {
		ids = append(ids, id)
	}
	sortTaskIDs(ids)

	tasks := make([]prompt.PendingTask, 0, len(ids))
	for _, id := range ids {
		task := m.pending[id]
		tasks = append(tasks, prompt.PendingTask{
			TaskID:     id,
			ToolName:   task.toolName,
			Parameters: task.parameters,
			LaunchedAt: task.launchedAt,
		})
	}
	return tasks
}

// Outstanding is the number of launched tasks whose results have not been
// processed. This, not HasPending, gates end_session.
func (m *TaskManager) Outstanding() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.launched - m.processed
}

// Cancel signals task goroutines to drop undelivered results. Used when the
// run is abandoned without draining.
func (m *TaskManager) Cancel() {
	m.closeOnce.Do(func() { close(m.closeCh) })
}

// DrainRemaining waits for running tasks to finish and consumes every queued
// result, marking each processed. Returns the drained results so finalization
// can log them.
func (m *TaskManager) DrainRemaining(ctx context.Context) []TaskResult {
	m.mu.Lock()
	running := make([]*pendingTask, 0, len(m.pending))
	for _, task := range m.pending {
		running = append(running, task)
	}
	m.mu.Unlock()

	var drained []TaskResult
	for _, task := range running {
		for {
			select {
			case <-task.done:
			case result := <-m.results:
				m.MarkProcessed()
				drained = append(drained, result)
				continue
			case <-ctx.Done():
				return drained
			}
			break
		}
	}

	for {
		select {
		case result := <-m.results:
			m.MarkProcessed()
			drained = append(drained, result)
		default:
			return drained
		}
	}
}

// sortTaskIDs orders IDs by their numeric suffix so listings follow launch
// order regardless of tool name.
func sortTaskIDs(ids []string) {
	seq := func(id string) int {
		for i := len(id) - 1; i >= 0; i-- {
			if id[i] == '_' {
				n, err := strconv.Atoi(id[i+1:])
				if err != nil {
					return 0
				}
				return n
			}
		}
		return 0
	}
	for i := 1; i < len(ids); i++ {
		for j := i; j > 0 && seq(ids[j]) < seq(ids[j-1]); j-- {
			ids[j], ids[j-1] = ids[j-1], ids[j]
		}
	}
}
