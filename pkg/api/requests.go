package api

import "time"

// CreateProjectRequest is the body for POST /api/projects.
type CreateProjectRequest struct {
	ProjectName string `json:"project_name"`
}

// CloneProjectRequest is the body for POST /api/projects/clone.
type CloneProjectRequest struct {
	SourceDir   string `json:"source_dir"`
	ProjectName string `json:"project_name"`
}

// AgentRequest is the body for creating or updating an agent definition.
type AgentRequest struct {
	Name             string   `json:"name"`
	Description      string   `json:"description"`
	SystemPrompt     string   `json:"system_prompt"`
	AllowedCallables []string `json:"allowed_callables"`
}

// RunAgentRequest is the body for POST /api/agents/run.
type RunAgentRequest struct {
	AgentName string `json:"agent_name"`
	Message   string `json:"message"`
}

// ScheduleRequest is the body for creating or updating a schedule.
type ScheduleRequest struct {
	Name      string     `json:"name"`
	AgentName string     `json:"agent_name"`
	Message   string     `json:"message"`
	Kind      string     `json:"kind"`
	Interval  int        `json:"interval"`
	StartFrom *time.Time `json:"start_from,omitempty"`
	Enabled   bool       `json:"enabled"`
}
