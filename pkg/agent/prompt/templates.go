// Package prompt provides the centralized template framework for all agent
// conversation text. It composes system messages, runtime notifications, and
// error texts, with per-project YAML overrides layered over built-in defaults.
package prompt

// Template keys are grouped by category. Overrides use the same category and
// key names in YAML, with `{variable}` placeholders substituted at render time.

const (
	categorySystemPrompts   = "system_prompts"
	categoryRuntimeMessages = "runtime_messages"
	categoryErrorMessages   = "error_messages"
)

// defaultTemplates are the built-in fallbacks, used verbatim when no override
// file exists and as the base layer when one does.
func defaultTemplates() Templates {
	return Templates{
		SystemPrompts: map[string]string{
			"available_tools_header": "\n\n## Available Tools\n\nYou have access to the following tools:\n\n",

			"tool_description_template": "### {tool_name}\n{description}\n\nParameters:\n",

			"tool_no_parameters": "  No parameters\n",

			"tool_parameter_line": "  - {param_name} ({param_type}){required}: {param_description}\n",

			"agent_description_template": "### {tool_name} (Agent)\n{description}\n\nParameters:\n  - message (string) (required): Message or query to send to the agent\n\n",

			"tool_calling_format": "\n## Tool Calling Format\n\nTo call a tool or agent, use this XML format:\n<tool_call>\n<tool_name>name_of_tool</tool_name>\n<call_mode>synchronous|asynchronous</call_mode>\n<parameters>\n{\"param1\": \"value1\"}\n</parameters>\n</tool_call>\n\n",

			"execution_modes": "## Execution Modes\n\n**synchronous**: Tool executes immediately\n**asynchronous**: Tool runs in background\n\n",

			"tool_call_examples": "EXAMPLES:\n\n<tool_call>\n<tool_name>calculator</tool_name>\n<parameters>\n{\"operation\": \"add\", \"a\": 5, \"b\": 3}\n</parameters>\n</tool_call>\n\n",

			"critical_rules": "CRITICAL RULES:\n- Use <tool_name> tags\n- Use <parameters> tags for JSON\n- <call_mode> is optional\n\n",

			"task_management": "## Task Management\n\nEach tool call gets a unique TASK ID. Do not create duplicate tasks.\n\n",

			"end_session_rules": "## CRITICAL: When to Call end_session\n\nYOU MUST NOT call end_session if there are pending tasks!\n\n",
		},
		RuntimeMessages: map[string]string{
			"pending_tasks_header": "=== CURRENTLY PENDING TASKS ===\n\nYou have {pending_count} task(s) running:\n\n",

			"pending_task_item": "Task ID: {task_id}\n  Tool/Agent: {tool_name}\n  Parameters: {parameters}\n  Launched at: {launched_at}\n\n",

			"pending_tasks_reminder": "REMINDER: Do not create duplicate tasks.\n================================\n",

			"tasks_launched_notification": "SYSTEM NOTIFICATION: {task_count} task(s) launched:\n{task_list}\n\nDO NOT create duplicate tasks.\n",

			"task_completed": "Task '{task_id}' completed:\n{result}",

			"tool_result": "Tool '{tool_name}' result:\n{result}",

			"no_tool_call_warning": "SYSTEM REMINDER: You must call end_session to terminate.\n\n<tool_call>\n<tool_name>end_session</tool_name>\n<parameters>\n{\"final_message\": \"Your response\"}\n</parameters>\n</tool_call>\n",

			"end_session_with_pending_tasks_error": "❌ CRITICAL ERROR: You called end_session with {pending_count} pending tasks!\n\nPending: {task_list}\n\nend_session call IGNORED.\n",
		},
		ErrorMessages: map[string]string{
			"tool_not_authorized": "SECURITY ERROR: Tool/agent '{tool_name}' is not authorized for agent '{agent_name}'. Authorized tools: {authorized_tools}. To use this tool, add it to the file: {tools_file}",

			"tool_not_found": "Tool or agent '{tool_name}' not found",

			"tool_execution_error": "Error executing tool/agent '{tool_name}': {error_details}",

			"llm_call_error": "Error calling LLM: {error_details}",
		},
	}
}
