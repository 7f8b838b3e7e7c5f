// Package orchestrator runs agent conversations: it drives the LLM iteration
// loop, parses and dispatches tool calls, tracks asynchronous tasks, and
// persists run state and logs.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/skein-ai/skein/pkg/agent"
	"github.com/skein-ai/skein/pkg/agent/prompt"
	"github.com/skein-ai/skein/pkg/llm"
	"github.com/skein-ai/skein/pkg/models"
	"github.com/skein-ai/skein/pkg/services"
	"github.com/skein-ai/skein/pkg/tools"
)

// DefaultMaxIterations caps LLM turns per run.
const DefaultMaxIterations = 50

// pollTimeout is the quick check for straggler results when neither waiting
// nor continuing is indicated.
const pollTimeout = 100 * time.Millisecond

// Deps bundles the shared collaborators every run needs.
type Deps struct {
	LLM        llm.Client
	Model      string
	Tools      *tools.Registry
	Projects   *services.ProjectService
	Executions *services.ExecutionService
	LogsDir    string

	// MaxIterations defaults to DefaultMaxIterations when zero.
	MaxIterations int

	// Workers bounds concurrent asynchronous executions process-wide.
	// Defaults to DefaultWorkers when zero.
	Workers int

	// OnChange, when set, is invoked after store writes so the event layer
	// can push updates. Must not block.
	OnChange func(projectDir string)

	// OnRunStarted and OnRunFinished, when set, bracket every run (sub-agent
	// runs included) so a run manager can track cancel functions.
	OnRunStarted  func(runID string, cancel context.CancelFunc)
	OnRunFinished func(runID string)
}

// Request describes one agent run to start.
type Request struct {
	AgentName       string
	Message         string
	ProjectDir      string
	ParentRunID     *string
	ParentAgentName string
	CallMode        models.CallMode
}

// Result is the outcome of a finished run.
type Result struct {
	RunID           string
	FinalResponse   string
	TotalIterations int
	SessionEnded    bool
}

// Orchestrator starts and drives agent runs. Safe for concurrent use; each
// run carries its own state.
type Orchestrator struct {
	deps    Deps
	workers *WorkerPool
}

// New creates an Orchestrator, applying defaults.
func New(deps Deps) *Orchestrator {
	if deps.MaxIterations <= 0 {
		deps.MaxIterations = DefaultMaxIterations
	}
	return &Orchestrator{deps: deps, workers: NewWorkerPool(deps.Workers)}
}

// Run executes one agent conversation to completion and returns its final
// response. Non-fatal failures (LLM errors, tool errors, unauthorized calls)
// become conversation text and the run continues; only setup failures return
// an error. The run row is always completed and the log always written, even
// on cancellation.
func (o *Orchestrator) Run(ctx context.Context, req Request) (*Result, error) {
	prepared, err := o.Prepare(ctx, req)
	if err != nil {
		return nil, err
	}
	return prepared.Execute(ctx), nil
}

// Run is a prepared agent run: its row exists and its ID is known, but the
// conversation has not started. Callers that need the run ID before the loop
// finishes (the HTTP API, the scheduler) Prepare first and Execute in a
// goroutine.
type Run struct {
	s       *session
	message string
}

// Prepare resolves the agent, creates the run row and log file, and composes
// the system prompt, without invoking the LLM.
func (o *Orchestrator) Prepare(ctx context.Context, req Request) (*Run, error) {
	if req.ProjectDir == "" {
		req.ProjectDir = services.DefaultProjectDir
	}
	if req.ParentAgentName == "" {
		req.ParentAgentName = models.RootAgentName
	}
	if req.CallMode == "" {
		req.CallMode = models.CallModeSynchronous
	}

	s, err := o.newSession(ctx, req)
	if err != nil {
		return nil, err
	}
	return &Run{s: s, message: req.Message}, nil
}

// ID returns the persisted run ID.
func (r *Run) ID() string {
	return r.s.rec.RunID
}

// Execute drives the prepared run to completion under its own cancellable
// context, reporting lifecycle to the configured callbacks.
func (r *Run) Execute(ctx context.Context) *Result {
	s := r.s
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	if s.deps.OnRunStarted != nil {
		s.deps.OnRunStarted(s.rec.RunID, cancel)
	}
	if s.deps.OnRunFinished != nil {
		defer s.deps.OnRunFinished(s.rec.RunID)
	}
	return s.run(runCtx, r.message)
}

// session is the per-run state: conversation, task manager, log writer, and
// the resolved agent configuration.
type session struct {
	orc     *Orchestrator
	deps    *Deps
	cfg     *agent.Config
	agents  *agent.Registry
	prompts *prompt.Builder
	rec     *models.AgentRun
	tasks   *TaskManager
	log     *RunLogWriter
	logger  *slog.Logger

	toolsFile string
	messages  []models.Message
}

func (o *Orchestrator) newSession(ctx context.Context, req Request) (*session, error) {
	agentsDir := filepath.Join(o.deps.Projects.ProjectPath(req.ProjectDir), "agents")
	agents := agent.NewRegistry(agentsDir)

	cfg, err := agents.Get(req.AgentName)
	if err != nil {
		return nil, fmt.Errorf("failed to load agent %q: %w", req.AgentName, err)
	}

	rec, err := o.deps.Executions.CreateAgentRun(ctx, services.CreateAgentRunRequest{
		AgentName:       req.AgentName,
		ParentRunID:     req.ParentRunID,
		ParentAgentName: req.ParentAgentName,
		CallMode:        req.CallMode,
		ProjectDir:      req.ProjectDir,
	})
	if err != nil {
		return nil, err
	}

	promptsDir := o.deps.Projects.ResolveSubdir(req.ProjectDir, "prompts")
	builder := prompt.NewBuilder(prompt.NewLoader(promptsDir))

	logWriter, err := NewRunLogWriter(o.deps.LogsDir, rec, o.deps.Model)
	if err != nil {
		return nil, err
	}
	if err := o.deps.Executions.SetRunLogFile(ctx, rec.RunID, logWriter.Path()); err != nil {
		slog.Warn("failed to record log file", "run_id", rec.RunID, "error", err)
	}

	s := &session{
		orc:       o,
		deps:      &o.deps,
		cfg:       cfg,
		agents:    agents,
		prompts:   builder,
		rec:       rec,
		tasks:     NewTaskManager(o.workers),
		log:       logWriter,
		toolsFile: filepath.Join(agentsDir, cfg.Name, "tools.txt"),
		logger: slog.With(
			"run_id", rec.RunID,
			"agent", cfg.Name,
			"project", req.ProjectDir,
		),
	}
	s.appendMessage(models.RoleSystem, s.buildSystemPrompt())
	s.notifyChange()
	return s, nil
}

// buildSystemPrompt resolves each allowed callable to a tool or sub-agent
// descriptor and composes the full system message.
func (s *session) buildSystemPrompt() string {
	var toolDescs []prompt.ToolDescriptor
	var agentDescs []prompt.AgentDescriptor
	for _, name := range s.cfg.AllowedCallables {
		if tool, ok := s.deps.Tools.Get(name); ok {
			toolDescs = append(toolDescs, prompt.ToolDescriptor{
				Name:             tool.Name(),
				Description:      tool.Description(),
				ParametersSchema: tool.ParametersSchema(),
			})
			continue
		}
		if sub, err := s.agents.Get(name); err == nil {
			agentDescs = append(agentDescs, prompt.AgentDescriptor{
				Name:        sub.Name,
				Description: sub.Description,
			})
			continue
		}
		s.logger.Warn("allowed callable resolves to neither tool nor agent", "callable", name)
	}
	return s.prompts.BuildSystemPrompt(s.cfg.SystemPrompt, toolDescs, agentDescs)
}

func (s *session) run(ctx context.Context, userMessage string) *Result {
	s.appendMessage(models.RoleUser, userMessage)
	s.logger.Info("run started", "message_len", len(userMessage))

	iterations := 0
	finalResponse := ""
	shouldContinue := true
	sessionEnded := false

	defer func() {
		s.finalize(finalResponse, iterations, sessionEnded)
	}()

	for iterations < s.deps.MaxIterations && !sessionEnded {
		if ctx.Err() != nil {
			s.logger.Info("run cancelled", "iterations", iterations)
			return &Result{RunID: s.rec.RunID, FinalResponse: finalResponse, TotalIterations: iterations, SessionEnded: false}
		}

		if shouldContinue {
			iterations++
			finalResponse, shouldContinue, sessionEnded = s.handleIteration(ctx, iterations)
		}

		hasPending := s.tasks.HasPending()
		result, ok := s.waitForTaskResult(ctx, hasPending, shouldContinue)
		switch {
		case ok:
			shouldContinue = s.processTaskResult(result, sessionEnded)
		case !hasPending && !shouldContinue:
			if sessionEnded {
				break
			}
			if ctx.Err() != nil {
				break
			}
			// Nothing arrived and nothing is running; resume generating.
			shouldContinue = true
		}
	}

	if !sessionEnded && iterations >= s.deps.MaxIterations {
		s.logger.Warn("iteration limit reached without end_session", "iterations", iterations)
	}
	s.logger.Info("run finished", "iterations", iterations, "session_ended", sessionEnded)

	return &Result{
		RunID:           s.rec.RunID,
		FinalResponse:   finalResponse,
		TotalIterations: iterations,
		SessionEnded:    sessionEnded,
	}
}

// handleIteration performs one LLM turn: inject the transient pending-tasks
// notice, call the model, remove the notice, then act on the parsed tool
// calls. Returns (response, shouldContinue, sessionEnded).
func (s *session) handleIteration(ctx context.Context, iteration int) (string, bool, bool) {
	s.logger.Debug("iteration", "n", iteration, "max", s.deps.MaxIterations)
	s.setState(ctx, models.RunStateGenerating)

	noticeAdded := false
	if pending := s.tasks.PendingTasks(); len(pending) > 0 {
		s.appendMessage(models.RoleSystem, s.prompts.PendingTasksNotice(pending))
		noticeAdded = true
	}

	response := s.callLLM(ctx)

	if noticeAdded {
		s.removeLastMessage()
	}

	calls := ParseToolCalls(response)
	if len(calls) == 0 {
		s.logger.Warn("no tool call in response, reminding about end_session")
		s.appendMessage(models.RoleSystem, s.prompts.EndSessionReminder())
		return response, true, false
	}
	return s.processToolCalls(ctx, response, calls)
}

func (s *session) processToolCalls(ctx context.Context, response string, calls []ToolCall) (string, bool, bool) {
	s.logger.Debug("tool calls detected", "count", len(calls))

	valid := calls[:0:0]
	for _, call := range calls {
		if call.ParseError != "" {
			s.appendMessage(models.RoleUser,
				fmt.Sprintf("Error parsing tool call for '%s': %s", call.ToolName, call.ParseError))
			continue
		}
		valid = append(valid, call)
	}

	endSession, syncCalls, asyncCalls := PartitionToolCalls(valid)

	s.appendMessage(models.RoleAssistant, response)

	for _, call := range syncCalls {
		s.logger.Debug("executing synchronous call", "tool", call.ToolName)
		result := s.executeCall(ctx, &call)
		s.appendMessage(models.RoleUser, s.prompts.ToolResult(call.ToolName, result))
	}

	var launchedIDs []string
	for i := range asyncCalls {
		call := asyncCalls[i]
		taskID := s.tasks.GenerateTaskID(call.ToolName)
		s.logger.Debug("launching asynchronous call", "tool", call.ToolName, "task_id", taskID)
		s.tasks.Launch(ctx, taskID, call.ToolName, call.ParamsJSON(), func(taskCtx context.Context) string {
			return s.executeCall(taskCtx, &call)
		})
		launchedIDs = append(launchedIDs, taskID)
	}

	if endSession != nil {
		return s.handleEndSession(ctx, endSession, response)
	}

	if len(launchedIDs) > 0 {
		s.appendMessage(models.RoleSystem, s.prompts.TasksLaunched(launchedIDs))
	}

	shouldContinue := len(syncCalls) > 0 && len(asyncCalls) == 0
	if shouldContinue {
		s.setState(ctx, models.RunStateGenerating)
	} else {
		s.setState(ctx, models.RunStateWaiting)
	}
	return response, shouldContinue, false
}

// handleEndSession accepts or rejects session termination. Acceptance
// requires every launched task result to have been processed, not merely
// every task to have finished running.
func (s *session) handleEndSession(ctx context.Context, call *ToolCall, response string) (string, bool, bool) {
	if outstanding := s.tasks.Outstanding(); outstanding > 0 {
		pendingIDs := s.tasks.PendingIDs()
		s.logger.Warn("end_session rejected, tasks outstanding",
			"outstanding", outstanding, "pending", strings.Join(pendingIDs, ","))
		s.appendMessage(models.RoleSystem, s.prompts.EndSessionRejected(outstanding, pendingIDs))
		s.setState(ctx, models.RunStateWaiting)
		return response, false, false
	}

	finalResponse := TextBeforeEndSession(response)
	if finalResponse == "" {
		finalResponse = response
	}

	result := s.executeCall(ctx, call)
	s.logger.Debug("end_session executed", "result", result)

	if msg := StringParam(call.Parameters, "final_message"); msg != "" {
		finalResponse = msg
	}
	return finalResponse, false, true
}

// waitForTaskResult fetches the next completed task according to loop state:
// queued results are returned immediately; with tasks running it blocks;
// otherwise a quick poll catches stragglers unless generation should resume.
func (s *session) waitForTaskResult(ctx context.Context, hasPending, shouldContinue bool) (TaskResult, bool) {
	if result, ok := s.tasks.TryNext(); ok {
		return result, true
	}
	if hasPending {
		s.setState(ctx, models.RunStateWaiting)
		result, err := s.tasks.WaitNext(ctx)
		if err != nil {
			return TaskResult{}, false
		}
		return result, true
	}
	if !shouldContinue {
		return s.tasks.PollNext(ctx, pollTimeout)
	}
	return TaskResult{}, false
}

// processTaskResult folds a completed task into the conversation and marks it
// processed. Returns whether generation should resume.
func (s *session) processTaskResult(result TaskResult, sessionEnded bool) bool {
	s.logger.Debug("task completed", "task_id", result.TaskID)
	if !sessionEnded {
		s.appendMessage(models.RoleUser, s.prompts.TaskCompleted(result.TaskID, result.Result))
	}
	s.tasks.MarkProcessed()
	return !sessionEnded
}

// callLLM invokes the model over the current conversation, mirroring partial
// output into the run log. Errors become response text, never failures.
func (s *session) callLLM(ctx context.Context) string {
	var partial strings.Builder
	content, _, err := s.deps.LLM.GenerateStream(ctx, s.snapshotMessages(), func(delta string) {
		partial.WriteString(delta)
		s.log.FlushStreaming(s.messages, partial.String())
	})
	if err != nil {
		errText := s.prompts.LLMError(err)
		s.logger.Error("llm call failed", "error", err)
		s.log.Flush(s.messages)
		return errText
	}
	if content == "" {
		s.logger.Warn("empty response from llm")
	}
	s.log.Flush(s.messages)
	return content
}

// finalize drains stragglers, completes the run row, and writes the final
// log. Runs on every exit path, including cancellation.
func (s *session) finalize(finalResponse string, iterations int, sessionEnded bool) {
	drainCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	drained := s.tasks.DrainRemaining(drainCtx)
	for _, result := range drained {
		s.logger.Warn("task result drained unprocessed", "task_id", result.TaskID)
	}
	s.tasks.Cancel()

	if err := s.deps.Executions.CompleteAgentRun(drainCtx, s.rec.RunID); err != nil {
		s.logger.Error("failed to complete run", "error", err)
	}
	s.log.Finalize(s.messages, finalResponse, iterations, sessionEnded)
	s.notifyChange()
}

func (s *session) appendMessage(role models.Role, content string) {
	s.messages = append(s.messages, models.Message{
		Role:      role,
		Content:   content,
		Timestamp: time.Now().UTC(),
	})
	s.log.Flush(s.messages)
}

func (s *session) removeLastMessage() {
	if len(s.messages) > 0 {
		s.messages = s.messages[:len(s.messages)-1]
	}
}

func (s *session) snapshotMessages() []models.Message {
	out := make([]models.Message, len(s.messages))
	copy(out, s.messages)
	return out
}

func (s *session) setState(ctx context.Context, state models.RunState) {
	if err := s.deps.Executions.UpdateRunState(ctx, s.rec.RunID, state); err != nil {
		s.logger.Warn("failed to update run state", "state", state, "error", err)
		return
	}
	s.notifyChange()
}

func (s *session) notifyChange() {
	if s.deps.OnChange != nil {
		s.deps.OnChange(s.rec.ProjectDir)
	}
}
