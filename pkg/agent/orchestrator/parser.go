package orchestrator

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/skein-ai/skein/pkg/models"
)

// EndSessionTool is the built-in callable that terminates a run.
const EndSessionTool = "end_session"

var (
	toolCallRe = regexp.MustCompile(`(?s)<tool_call>\s*<tool_name>(.*?)</tool_name>(?:\s*<call_mode>(.*?)</call_mode>)?\s*<parameters>(.*?)</parameters>\s*</tool_call>`)

	// Some models drop the <tool_call> wrapper. The lenient pattern accepts a
	// single bare block when no wrapped blocks are present.
	bareToolCallRe = regexp.MustCompile(`(?s)(?:<tool_call>\s*)?<tool_name>(.*?)</tool_name>\s*<parameters>(.*?)</parameters>(?:\s*</tool_call>)?`)

	endSessionBlockRe = regexp.MustCompile(`(?s)<tool_call>\s*<tool_name>` + EndSessionTool + `</tool_name>.*?</tool_call>`)

	thinkBlockRe = regexp.MustCompile(`(?s)<think>.*?</think>`)
	blankRunsRe  = regexp.MustCompile(`\n\s*\n\s*\n+`)
)

// ToolCall is one parsed tool-call block from an LLM response. A block whose
// parameters failed to decode carries ParseError and empty Parameters; it is
// reported back to the conversation instead of being executed.
type ToolCall struct {
	ToolName   string
	CallMode   models.CallMode
	Parameters map[string]any
	ParseError string
}

// Synchronous reports whether the call executes inline. Any mode other than
// the literal "synchronous" runs in the background.
func (c *ToolCall) Synchronous() bool {
	return c.CallMode == models.CallModeSynchronous
}

// ParamsJSON renders the call's parameters as compact JSON for persistence
// and display.
func (c *ToolCall) ParamsJSON() string {
	data, err := json.Marshal(c.Parameters)
	if err != nil {
		return "{}"
	}
	return string(data)
}

// ParseToolCalls extracts every tool-call block from an LLM response, in
// textual order. When no wrapped blocks exist it falls back to a single bare
// <tool_name>/<parameters> pair, which always parses as synchronous.
func ParseToolCalls(text string) []ToolCall {
	matches := toolCallRe.FindAllStringSubmatch(text, -1)

	calls := make([]ToolCall, 0, len(matches))
	for _, m := range matches {
		call := ToolCall{
			ToolName: strings.TrimSpace(m[1]),
			CallMode: models.CallModeSynchronous,
		}
		if mode := strings.TrimSpace(m[2]); mode != "" {
			call.CallMode = models.CallMode(mode)
		}
		decodeParams(&call, strings.TrimSpace(m[3]))
		calls = append(calls, call)
	}
	if len(calls) > 0 {
		return calls
	}

	if m := bareToolCallRe.FindStringSubmatch(text); m != nil {
		call := ToolCall{
			ToolName: strings.TrimSpace(m[1]),
			CallMode: models.CallModeSynchronous,
		}
		decodeParams(&call, strings.TrimSpace(m[2]))
		return []ToolCall{call}
	}
	return nil
}

func decodeParams(call *ToolCall, raw string) {
	call.Parameters = map[string]any{}
	if raw == "" {
		return
	}
	if err := json.Unmarshal([]byte(raw), &call.Parameters); err != nil {
		call.Parameters = map[string]any{}
		call.ParseError = fmt.Sprintf("Invalid JSON in parameters: %s", err)
	}
}

// PartitionToolCalls splits parsed calls into the (at most one) end_session
// call, synchronous calls, and asynchronous calls. A later end_session block
// wins if the model emitted several.
func PartitionToolCalls(calls []ToolCall) (endSession *ToolCall, syncCalls, asyncCalls []ToolCall) {
	for i := range calls {
		call := &calls[i]
		switch {
		case call.ToolName == EndSessionTool:
			endSession = call
		case call.Synchronous():
			syncCalls = append(syncCalls, *call)
		default:
			asyncCalls = append(asyncCalls, *call)
		}
	}
	return endSession, syncCalls, asyncCalls
}

// TextBeforeEndSession strips the end_session block from a response, leaving
// the surrounding prose as the fallback final answer.
func TextBeforeEndSession(response string) string {
	return strings.TrimSpace(endSessionBlockRe.ReplaceAllString(response, ""))
}

// StringParam returns a string-valued parameter, or "" when absent or not a
// string.
func StringParam(params map[string]any, key string) string {
	if v, ok := params[key].(string); ok {
		return v
	}
	return ""
}

// CleanResult drops <think> reasoning blocks from a sub-agent result and
// collapses the blank runs they leave behind.
func CleanResult(result string) string {
	cleaned := thinkBlockRe.ReplaceAllString(result, "")
	cleaned = blankRunsRe.ReplaceAllString(cleaned, "\n\n")
	return strings.TrimSpace(cleaned)
}
