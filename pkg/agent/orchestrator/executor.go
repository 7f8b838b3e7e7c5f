package orchestrator

import (
	"context"
	"errors"

	"github.com/skein-ai/skein/pkg/models"
)

// executeCall runs one authorized tool or sub-agent call and returns its
// result text. Every failure mode (authorization, lookup, validation,
// execution) is returned as text so it can be fed back to the conversation.
// Authorized calls get a ToolInvocation row completed with the result.
func (s *session) executeCall(ctx context.Context, call *ToolCall) string {
	if call.ToolName != EndSessionTool && !s.cfg.Allowed(call.ToolName) {
		errText := s.prompts.NotAuthorized(call.ToolName, s.cfg.Name, s.cfg.AllowedCallables, s.toolsFile)
		s.logger.Error("unauthorized callable", "tool", call.ToolName)
		return errText
	}

	invocationID := ""
	inv, err := s.deps.Executions.CreateToolInvocation(ctx, s.rec.RunID, call.ToolName, call.ParamsJSON(), call.CallMode)
	if err != nil {
		s.logger.Warn("failed to record tool invocation", "tool", call.ToolName, "error", err)
	} else {
		invocationID = inv.InvocationID
	}
	s.setState(ctx, models.RunStateExecutingTool)

	result := s.dispatch(ctx, call)

	if invocationID != "" {
		if err := s.deps.Executions.CompleteToolInvocation(ctx, invocationID, result); err != nil {
			s.logger.Warn("failed to complete tool invocation", "tool", call.ToolName, "error", err)
		}
		s.notifyChange()
	}
	return result
}

// dispatch routes a call to the built-in end_session sentinel, a registered
// tool, or a sub-agent, in that order.
func (s *session) dispatch(ctx context.Context, call *ToolCall) string {
	if call.ToolName == EndSessionTool {
		if msg := StringParam(call.Parameters, "final_message"); msg != "" {
			return "SESSION_END: " + msg
		}
		return "SESSION_END"
	}

	if tool, ok := s.deps.Tools.Get(call.ToolName); ok {
		if err := s.deps.Tools.ValidateParams(call.ToolName, call.Parameters); err != nil {
			return s.prompts.ExecutionError(call.ToolName, err)
		}
		result, err := tool.Execute(ctx, call.Parameters)
		if err != nil {
			return s.prompts.ExecutionError(call.ToolName, err)
		}
		return result
	}

	if _, err := s.agents.Get(call.ToolName); err == nil {
		return s.dispatchSubAgent(ctx, call)
	}

	return s.prompts.NotFound(call.ToolName)
}

// dispatchSubAgent runs another agent as a child run. The sub-agent's user
// message comes from the query or message parameter, falling back to the raw
// parameter JSON, and its answer is stripped of <think> reasoning blocks.
func (s *session) dispatchSubAgent(ctx context.Context, call *ToolCall) string {
	message := StringParam(call.Parameters, "query")
	if message == "" {
		message = StringParam(call.Parameters, "message")
	}
	if message == "" {
		message = call.ParamsJSON()
	}

	parentID := s.rec.RunID
	result, err := s.orc.Run(ctx, Request{
		AgentName:       call.ToolName,
		Message:         message,
		ProjectDir:      s.rec.ProjectDir,
		ParentRunID:     &parentID,
		ParentAgentName: s.cfg.Name,
		CallMode:        call.CallMode,
	})
	if err != nil {
		return s.prompts.ExecutionError(call.ToolName, err)
	}
	if errors.Is(ctx.Err(), context.Canceled) && result.FinalResponse == "" {
		return s.prompts.ExecutionError(call.ToolName, ctx.Err())
	}
	return CleanResult(result.FinalResponse)
}
