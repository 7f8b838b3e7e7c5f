package prompt

import (
	"encoding/json"
	"log/slog"
	"sort"
	"strconv"
	"time"
)

// ToolDescriptor describes a callable tool for system prompt injection.
type ToolDescriptor struct {
	Name             string
	Description      string
	ParametersSchema string
}

// AgentDescriptor describes a callable sub-agent. Sub-agents always take a
// single `message` parameter, so no schema is carried.
type AgentDescriptor struct {
	Name        string
	Description string
}

// PendingTask is the slice of task state the LLM sees in the transient
// pending-tasks notice.
type PendingTask struct {
	TaskID     string
	ToolName   string
	Parameters string
	LaunchedAt time.Time
}

// Builder renders all conversation text for a run. Stateless beyond its
// Loader. Thread-safe.
type Builder struct {
	loader *Loader
}

// NewBuilder creates a Builder over the given template loader. Panics if
// loader is nil, callers must provide one.
func NewBuilder(loader *Loader) *Builder {
	if loader == nil {
		panic("prompt.NewBuilder: loader must not be nil")
	}
	return &Builder{loader: loader}
}

// BuildSystemPrompt composes the full system message: the agent's own prompt,
// a descriptor for every allowed tool and sub-agent, then the calling
// protocol rules. With no callables the base prompt is returned unchanged.
func (b *Builder) BuildSystemPrompt(basePrompt string, tools []ToolDescriptor, agents []AgentDescriptor) string {
	if len(tools) == 0 && len(agents) == 0 {
		return basePrompt
	}

	out := basePrompt
	out += b.loader.System("available_tools_header", nil)

	for _, tool := range tools {
		out += b.loader.System("tool_description_template", map[string]string{
			"tool_name":   tool.Name,
			"description": tool.Description,
		})
		params := schemaParameters(tool.Name, tool.ParametersSchema)
		if len(params) == 0 {
			out += b.loader.System("tool_no_parameters", nil)
		}
		for _, p := range params {
			out += b.loader.System("tool_parameter_line", map[string]string{
				"param_name":        p.name,
				"param_type":        p.typ,
				"required":          p.required,
				"param_description": p.description,
			})
		}
		out += "\n"
	}

	for _, ag := range agents {
		out += b.loader.System("agent_description_template", map[string]string{
			"tool_name":   ag.Name,
			"description": ag.Description,
		})
	}

	out += b.loader.System("tool_calling_format", nil)
	out += b.loader.System("execution_modes", nil)
	out += b.loader.System("tool_call_examples", nil)
	out += b.loader.System("critical_rules", nil)
	out += b.loader.System("task_management", nil)
	out += b.loader.System("end_session_rules", nil)
	return out
}

// ToolResult is the user message appended after a synchronous tool completes.
func (b *Builder) ToolResult(toolName, result string) string {
	return b.loader.Runtime("tool_result", map[string]string{
		"tool_name": toolName,
		"result":    result,
	})
}

// TaskCompleted is the user message appended when an asynchronous task result
// is drained.
func (b *Builder) TaskCompleted(taskID, result string) string {
	return b.loader.Runtime("task_completed", map[string]string{
		"task_id": taskID,
		"result":  result,
	})
}

// TasksLaunched is the system notification appended after asynchronous tasks
// are dispatched, naming each new task ID.
func (b *Builder) TasksLaunched(taskIDs []string) string {
	return b.loader.Runtime("tasks_launched_notification", map[string]string{
		"task_count": strconv.Itoa(len(taskIDs)),
		"task_list":  FormatTaskList(taskIDs),
	})
}

// PendingTasksNotice is the transient system message injected before an LLM
// call while tasks are in flight. It is removed again after the call returns.
func (b *Builder) PendingTasksNotice(tasks []PendingTask) string {
	out := b.loader.Runtime("pending_tasks_header", map[string]string{
		"pending_count": strconv.Itoa(len(tasks)),
	})
	for _, task := range tasks {
		out += b.loader.Runtime("pending_task_item", map[string]string{
			"task_id":     task.TaskID,
			"tool_name":   task.ToolName,
			"parameters":  task.Parameters,
			"launched_at": task.LaunchedAt.UTC().Format(time.RFC3339),
		})
	}
	out += b.loader.Runtime("pending_tasks_reminder", nil)
	return out
}

// EndSessionReminder is appended when a turn produced no tool-call blocks.
func (b *Builder) EndSessionReminder() string {
	return b.loader.Runtime("no_tool_call_warning", nil)
}

// EndSessionRejected is the warning appended when end_session arrives while
// tasks are still outstanding. pendingIDs may be empty when every task has
// finished running but results still await processing.
func (b *Builder) EndSessionRejected(outstanding int, pendingIDs []string) string {
	taskList := FormatTaskList(pendingIDs)
	if len(pendingIDs) == 0 {
		taskList = "(" + strconv.Itoa(outstanding) + " task result(s) awaiting processing)"
	}
	return b.loader.Runtime("end_session_with_pending_tasks_error", map[string]string{
		"pending_count": strconv.Itoa(outstanding),
		"task_list":     taskList,
	})
}

// NotAuthorized is the textual security error returned for a callable outside
// the agent's allow list.
func (b *Builder) NotAuthorized(toolName, agentName string, authorized []string, toolsFile string) string {
	return b.loader.Error("tool_not_authorized", map[string]string{
		"tool_name":        toolName,
		"agent_name":       agentName,
		"authorized_tools": joinNames(authorized),
		"tools_file":       toolsFile,
	})
}

// NotFound is the error text for a callable that resolves to neither a tool
// nor an agent.
func (b *Builder) NotFound(toolName string) string {
	return b.loader.Error("tool_not_found", map[string]string{"tool_name": toolName})
}

// ExecutionError is the error text for a callable that failed mid-execution.
func (b *Builder) ExecutionError(toolName string, err error) string {
	return b.loader.Error("tool_execution_error", map[string]string{
		"tool_name":     toolName,
		"error_details": err.Error(),
	})
}

// LLMError is the conversation text for a failed generation call.
func (b *Builder) LLMError(err error) string {
	return b.loader.Error("llm_call_error", map[string]string{"error_details": err.Error()})
}

type schemaParam struct {
	name        string
	typ         string
	required    string
	description string
}

// schemaParameters flattens a JSON Schema's top-level properties into display
// rows, sorted by name for stable prompts.
func schemaParameters(toolName, rawSchema string) []schemaParam {
	if rawSchema == "" {
		return nil
	}
	var schema struct {
		Properties map[string]struct {
			Type        string `json:"type"`
			Description string `json:"description"`
		} `json:"properties"`
		Required []string `json:"required"`
	}
	if err := json.Unmarshal([]byte(rawSchema), &schema); err != nil {
		slog.Debug("failed to parse tool parameters schema", "tool", toolName, "error", err)
		return nil
	}

	required := make(map[string]bool, len(schema.Required))
	for _, name := range schema.Required {
		required[name] = true
	}

	params := make([]schemaParam, 0, len(schema.Properties))
	for name, info := range schema.Properties {
		req := " (optional)"
		if required[name] {
			req = " (required)"
		}
		desc := info.Description
		if desc == "" {
			desc = "No description"
		}
		typ := info.Type
		if typ == "" {
			typ = "string"
		}
		params = append(params, schemaParam{name: name, typ: typ, required: req, description: desc})
	}
	sort.Slice(params, func(i, j int) bool { return params[i].name < params[j].name })
	return params
}

func joinNames(names []string) string {
	out := ""
	for i, n := range names {
		if i > 0 {
			out += ", "
		}
		out += n
	}
	return out
}
