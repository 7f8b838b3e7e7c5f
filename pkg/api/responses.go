package api

import "github.com/skein-ai/skein/pkg/models"

// HealthResponse is the payload for GET /health.
type HealthResponse struct {
	Status     string                 `json:"status"`
	ActiveRuns int                    `json:"active_runs"`
	Checks     map[string]HealthCheck `json:"checks"`
}

// HealthCheck is a single subsystem check inside HealthResponse.
type HealthCheck struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// ToolInfo describes one registered tool for GET /api/tools.
type ToolInfo struct {
	Name             string `json:"name"`
	Description      string `json:"description"`
	ParametersSchema string `json:"parameters_schema"`
}

// AgentSummary is the list form of an agent definition.
type AgentSummary struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// RunStartedResponse acknowledges an accepted run request.
type RunStartedResponse struct {
	RunID     string `json:"run_id"`
	AgentName string `json:"agent_name"`
	Status    string `json:"status"`
	Message   string `json:"message"`
}

// StopResponse reports the outcome of a stop-all or stop-tree request.
type StopResponse struct {
	StoppedCount int    `json:"stopped_count"`
	Message      string `json:"message"`
}

// ExecutionTreeResponse is one node of the recursive execution tree, with
// the tool invocations recorded for that run.
type ExecutionTreeResponse struct {
	Run      models.AgentRun          `json:"run"`
	Tools    []*models.ToolInvocation `json:"tools"`
	Children []ExecutionTreeResponse  `json:"children"`
}

// MessageResponse is a generic acknowledgement body.
type MessageResponse struct {
	Message string `json:"message"`
}
