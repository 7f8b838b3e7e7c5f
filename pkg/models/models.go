// Package models defines the shared domain types persisted by the execution
// store and exchanged between the API layer, the runtime, and the scheduler.
package models

import "time"

// RunState is the lifecycle state of an agent run. Transitions are monotone
// toward RunStateCompleted; a completed run is terminal.
type RunState string

const (
	RunStateGenerating    RunState = "generating"
	RunStateExecutingTool RunState = "executing_tool"
	RunStateWaiting       RunState = "waiting"
	RunStateCompleted     RunState = "completed"
)

// CallMode describes how a tool or sub-agent call was issued. It is recorded
// for observability; the runtime never branches on a run's own call mode.
type CallMode string

const (
	CallModeSynchronous  CallMode = "synchronous"
	CallModeAsynchronous CallMode = "asynchronous"
)

// ScheduleKind is the unit of a schedule's repeat interval.
type ScheduleKind string

const (
	ScheduleKindMinutes ScheduleKind = "minutes"
	ScheduleKindHours   ScheduleKind = "hours"
	ScheduleKindWeeks   ScheduleKind = "weeks"
)

// Duration returns the wall-clock length of one interval unit.
func (k ScheduleKind) Duration() time.Duration {
	switch k {
	case ScheduleKindMinutes:
		return time.Minute
	case ScheduleKindHours:
		return time.Hour
	case ScheduleKindWeeks:
		return 7 * 24 * time.Hour
	default:
		return 0
	}
}

// Valid reports whether k is a known schedule kind.
func (k ScheduleKind) Valid() bool {
	switch k {
	case ScheduleKindMinutes, ScheduleKindHours, ScheduleKindWeeks:
		return true
	}
	return false
}

// RootAgentName is recorded as the parent agent name of top-level runs.
const RootAgentName = "root"

// AgentRun is one durable execution of an agent against a user message.
// ParentRunID is nil for top-level runs; child runs reference the run that
// spawned them, forming the execution tree.
type AgentRun struct {
	RunID           string     `json:"run_id"`
	AgentName       string     `json:"agent_name"`
	ParentRunID     *string    `json:"parent_run_id,omitempty"`
	ParentAgentName string     `json:"parent_agent_name"`
	StartedAt       time.Time  `json:"started_at"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
	CurrentState    RunState   `json:"current_state"`
	CallMode        CallMode   `json:"call_mode"`
	ProjectDir      string     `json:"project_dir"`
	LogFile         *string    `json:"log_file,omitempty"`
}

// Completed reports whether the run has reached its terminal state.
func (r *AgentRun) Completed() bool {
	return r.CompletedAt != nil
}

// ToolInvocation is one durable record of a tool or sub-agent call issued by
// an agent run. CompletedAt and Result are set together, exactly once.
type ToolInvocation struct {
	InvocationID string     `json:"invocation_id"`
	RunID        string     `json:"run_id"`
	ToolName     string     `json:"tool_name"`
	Parameters   string     `json:"parameters"`
	CallMode     CallMode   `json:"call_mode"`
	StartedAt    time.Time  `json:"started_at"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	Result       *string    `json:"result,omitempty"`
}

// Schedule is a persisted recurring trigger for (agent, message, project).
// NextRunAt is derived from Kind/Interval/StartFrom/LastRunAt; see
// services.ComputeNextRun.
type Schedule struct {
	ScheduleID string       `json:"schedule_id"`
	Name       string       `json:"name"`
	ProjectDir string       `json:"project_dir"`
	AgentName  string       `json:"agent_name"`
	Message    string       `json:"message"`
	Kind       ScheduleKind `json:"kind"`
	Interval   int          `json:"interval"`
	StartFrom  *time.Time   `json:"start_from,omitempty"`
	Enabled    bool         `json:"enabled"`
	LastRunAt  *time.Time   `json:"last_run_at,omitempty"`
	NextRunAt  time.Time    `json:"next_run_at"`
	CreatedAt  time.Time    `json:"created_at"`
	UpdatedAt  time.Time    `json:"updated_at"`
}

// Project is a named workspace with its own agents and, optionally, tools and
// prompt overrides. The "default" project always exists and cannot be deleted.
type Project struct {
	ProjectName string    `json:"project_name"`
	ProjectDir  string    `json:"project_dir"`
	CreatedAt   time.Time `json:"created_at"`
}

// Role identifies the author of a conversation message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one entry in an agent run's in-memory conversation. Streaming is
// true only on the transient assistant entry written to the run log while a
// response is still being generated.
type Message struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	Streaming bool      `json:"streaming,omitempty"`
}

// RunLog is the JSON document written to a run's log file. It is rewritten in
// full on every conversation mutation so readers always see valid JSON.
type RunLog struct {
	RunID                  string     `json:"run_id"`
	AgentName              string     `json:"agent_name"`
	ParentRunID            *string    `json:"parent_run_id"`
	ParentAgentName        string     `json:"parent_agent_name"`
	StartedAt              time.Time  `json:"started_at"`
	CompletedAt            *time.Time `json:"completed_at"`
	FinalResponse          string     `json:"final_response"`
	TotalIterations        int        `json:"total_iterations"`
	SessionEndedExplicitly bool       `json:"session_ended_explicitly"`
	Model                  string     `json:"model"`
	Interactions           []Message  `json:"interactions"`
}

// ExecutionTreeNode is an AgentRun together with its recursively resolved
// children, as returned by the execution-tree endpoint.
type ExecutionTreeNode struct {
	Run      AgentRun            `json:"run"`
	Children []ExecutionTreeNode `json:"children"`
}
