package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// autoExecuteLimit is the maximum number of fully-automatic continuation
// cycles before the engine pauses and asks the user to confirm.
const autoExecuteLimit = 10

const placeholderText = "Thinking..."

var (
	ErrNotPaused    = errors.New("conversation is not paused")
	ErrCycleActive  = errors.New("a cycle is already running for this conversation")
	ErrEngineClosed = errors.New("engine is shut down")
)

// CompletionRequest is what the engine hands to the upstream chat-completion
// collaborator. Messages carry no system or transient entries; the system
// instructions are concatenated into System.
type CompletionRequest struct {
	System          string
	Messages        []Message
	MaxTokens       int
	ThinkingEnabled bool
	ThinkingBudget  int
}

// CompletionResponse is the upstream reply.
type CompletionResponse struct {
	Content  []ContentBlock
	Thinking string
}

// Completer is the upstream chat-completion collaborator.
type Completer interface {
	Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error)
}

// Dispatcher executes a single tool call. Failures are data: implementations
// return an error-shaped ToolResult and never an error value.
type Dispatcher interface {
	Dispatch(ctx context.Context, call ToolCall, conversationID string, workDir string) ToolResult
}

// CycleOptions carries the per-conversation model parameters for a cycle.
type CycleOptions struct {
	MaxTokens       int
	ThinkingEnabled bool
	ThinkingBudget  int
	AutoExecute     bool
}

func (o CycleOptions) withDefaults() CycleOptions {
	if o.MaxTokens <= 0 {
		o.MaxTokens = 4096
	}
	if o.ThinkingEnabled && o.ThinkingBudget <= 0 {
		o.ThinkingBudget = 2000
	}
	return o
}

// Engine drives the execute -> call -> decide loop for conversations. At most
// one live cycle per conversation id is allowed; concurrent triggers are
// rejected at the entry point.
type Engine struct {
	log        *slog.Logger
	store      *Store
	progress   *ProgressTracker
	dispatcher Dispatcher
	completer  Completer
	system     string

	tasks *taskSupervisor
}

type EngineOptions struct {
	Log        *slog.Logger
	Store      *Store
	Progress   *ProgressTracker
	Dispatcher Dispatcher
	Completer  Completer
	// SystemPrompt is the base instruction block prepended to any system
	// messages found in the history.
	SystemPrompt string
}

func NewEngine(opts EngineOptions) (*Engine, error) {
	if opts.Store == nil || opts.Progress == nil {
		return nil, errors.New("missing store or progress tracker")
	}
	if opts.Dispatcher == nil || opts.Completer == nil {
		return nil, errors.New("missing dispatcher or completer")
	}
	log := opts.Log
	if log == nil {
		log = slog.Default()
	}
	return &Engine{
		log:        log,
		store:      opts.Store,
		progress:   opts.Progress,
		dispatcher: opts.Dispatcher,
		completer:  opts.Completer,
		system:     strings.TrimSpace(opts.SystemPrompt),
		tasks:      newTaskSupervisor(),
	}, nil
}

// StartCycle begins a detached continuation cycle for the given tool batch.
// It returns immediately; callers observe outcomes through polling. A second
// start while a cycle is live fails with ErrCycleActive.
func (e *Engine) StartCycle(conversationID string, calls []ToolCall, opts CycleOptions) error {
	if e == nil {
		return errors.New("nil engine")
	}
	conversationID = strings.TrimSpace(conversationID)
	if !e.store.Exists(conversationID) {
		return ErrConversationNotFound
	}
	opts = opts.withDefaults()
	e.tasks.rememberOptions(conversationID, opts)
	return e.tasks.spawn(conversationID, func(ctx context.Context) {
		e.runCycle(ctx, conversationID, calls, opts)
	})
}

// Converse appends the user's message, performs one synchronous upstream call
// and decides how the turn continues: no tool requests completes the turn,
// auto-execute hands the requested batch to a detached cycle, manual mode
// leaves the invocations pending for the caller. The reply is returned either
// way so the caller can show it immediately.
func (e *Engine) Converse(ctx context.Context, conversationID string, userText string, opts CycleOptions) (CompletionResponse, error) {
	conversationID = strings.TrimSpace(conversationID)
	if !e.store.Exists(conversationID) {
		return CompletionResponse{}, ErrConversationNotFound
	}
	opts = opts.withDefaults()

	slot, err := e.tasks.reserve(conversationID)
	if err != nil {
		return CompletionResponse{}, err
	}
	defer slot.release()

	e.tasks.rememberOptions(conversationID, opts)
	if strings.TrimSpace(userText) != "" {
		e.store.Append(conversationID, Message{Role: "user", Content: []ContentBlock{TextBlock(userText)}})
	}
	e.store.SetStatus(conversationID, StatusRunning)

	reply, calls, err := e.advance(ctx, conversationID, opts, 10)
	if err != nil {
		return CompletionResponse{}, err
	}
	if len(calls) > 0 && opts.AutoExecute {
		// The slot passes straight to the detached cycle so no concurrent
		// trigger can claim the conversation between the turn and the cycle.
		slot.handoff(func(ctx context.Context) {
			e.runCycle(ctx, conversationID, calls, opts)
		})
	}
	return reply, nil
}

// SubmitToolResults continues a manual-mode turn with results the caller
// executed itself. The bundled results are appended as a single user message
// and the upstream model is called once, synchronously.
func (e *Engine) SubmitToolResults(ctx context.Context, conversationID string, results []ToolResult, opts CycleOptions) (CompletionResponse, error) {
	conversationID = strings.TrimSpace(conversationID)
	if !e.store.Exists(conversationID) {
		return CompletionResponse{}, ErrConversationNotFound
	}
	if len(results) == 0 {
		return CompletionResponse{}, errors.New("no tool results provided")
	}
	opts = opts.withDefaults()

	slot, err := e.tasks.reserve(conversationID)
	if err != nil {
		return CompletionResponse{}, err
	}
	defer slot.release()

	e.tasks.rememberOptions(conversationID, opts)
	blocks := make([]ContentBlock, 0, len(results))
	for _, r := range results {
		blocks = append(blocks, ToolResultBlock(r.ToolUseID, r.Content))
	}
	e.store.Append(conversationID, Message{Role: "user", Content: blocks})
	e.store.SetStatus(conversationID, StatusRunning)

	reply, calls, err := e.advance(ctx, conversationID, opts, 60)
	if err != nil {
		return CompletionResponse{}, err
	}
	if len(calls) > 0 && opts.AutoExecute {
		slot.handoff(func(ctx context.Context) {
			e.runCycle(ctx, conversationID, calls, opts)
		})
	}
	return reply, nil
}

// advance performs one upstream call and records the outcome. It returns the
// reply together with any tool calls it requested; status transitions for the
// no-call and manual cases are applied here.
func (e *Engine) advance(ctx context.Context, conversationID string, opts CycleOptions, waitPercent int) (CompletionResponse, []ToolCall, error) {
	reply, err := e.callUpstreamAt(ctx, conversationID, opts, waitPercent)
	if err != nil {
		e.log.Error("upstream call failed", "conversation_id", conversationID, "error", err)
		e.store.Append(conversationID, Message{
			Role:    "system",
			Content: []ContentBlock{TextBlock("Error calling model API: " + err.Error())},
		})
		e.store.SetStatus(conversationID, StatusError)
		e.progress.Update(conversationID, string(StatusError), "api_error", err.Error(), 0)
		return CompletionResponse{}, nil, err
	}

	e.store.Append(conversationID, Message{Role: "assistant", Content: reply.Content})
	e.progress.Update(conversationID, "processing_response", "parsing_response", "Processing model response...", 75)

	calls := ExtractToolCalls(reply.Content)
	if len(calls) == 0 {
		e.store.SetStatus(conversationID, StatusCompleted)
		e.progress.Update(conversationID, string(StatusCompleted), "done", "Conversation turn completed", 100)
		return reply, nil, nil
	}
	if !opts.AutoExecute {
		e.store.SetStatus(conversationID, StatusIdle)
	}
	return reply, calls, nil
}

// Cancel flags the conversation's automatic execution as cancelled. The
// running cycle observes the flag at its next checkpoint; a tool already
// executing is allowed to finish. Cancel is idempotent and is a no-op once
// the task has completed.
func (e *Engine) Cancel(conversationID string) error {
	if !e.store.Exists(conversationID) {
		return ErrConversationNotFound
	}
	moved := e.store.CompareAndSetStatus(conversationID, StatusCancelled,
		StatusIdle, StatusRunning, StatusWaitingForModel, StatusExecutingTool, StatusPaused)
	if !moved {
		return nil
	}
	e.store.Append(conversationID, Message{
		Role:    "system",
		Content: []ContentBlock{TextBlock("Automatic tool execution cancelled by user")},
	})
	e.progress.Update(conversationID, string(StatusCancelled), "cancelled", "Automatic execution cancelled", 0)
	e.log.Info("cancelled automatic execution", "conversation_id", conversationID)
	return nil
}

// Resume restarts automatic execution for a paused conversation: the counter
// is reset and the pending invocations of the last assistant turn re-enter
// the loop. Valid only from the paused state.
func (e *Engine) Resume(conversationID string) error {
	if !e.store.Exists(conversationID) {
		return ErrConversationNotFound
	}
	if e.store.Status(conversationID) != StatusPaused {
		return ErrNotPaused
	}
	e.store.ResetAutoExecute(conversationID)
	e.store.SetStatus(conversationID, StatusRunning)

	calls := e.store.LastAssistantToolCalls(conversationID)
	if len(calls) == 0 {
		// Nothing pending; the pause consumed the last invocation batch.
		e.store.SetStatus(conversationID, StatusCompleted)
		e.progress.Update(conversationID, string(StatusCompleted), "done", "No pending tool calls", 100)
		return nil
	}
	opts := e.tasks.lastOptions(conversationID).withDefaults()
	opts.AutoExecute = true
	return e.tasks.spawn(conversationID, func(ctx context.Context) {
		e.runCycle(ctx, conversationID, calls, opts)
	})
}

// Progress returns the latest progress snapshot, or nil when none exists.
func (e *Engine) Progress(conversationID string) *ProgressSnapshot {
	return e.progress.Read(conversationID)
}

// History returns the conversation history with placeholder, status and
// temporary messages filtered out.
func (e *Engine) History(conversationID string) []Message {
	return FilterTransient(e.store.History(conversationID))
}

// AwaitIdle blocks until no cycle is live for the conversation, or ctx ends.
// Intended for tests and shutdown paths; pollers never need it.
func (e *Engine) AwaitIdle(ctx context.Context, conversationID string) error {
	return e.tasks.await(ctx, conversationID)
}

// Close cancels all detached cycles and waits for them to drain.
func (e *Engine) Close() {
	e.tasks.close()
}

func (e *Engine) cancelled(conversationID string) bool {
	return e.store.Status(conversationID) == StatusCancelled
}

// runCycle is one or more passes of the continuation loop. Automatic
// recursion is expressed as iteration so the auto-execute ceiling stays
// trivially testable.
func (e *Engine) runCycle(ctx context.Context, conversationID string, calls []ToolCall, opts CycleOptions) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Error("cycle panic", "conversation_id", conversationID, "panic", r)
			e.store.Append(conversationID, Message{
				Role:    "system",
				Content: []ContentBlock{TextBlock(fmt.Sprintf("Internal error during automatic execution: %v", r))},
			})
			e.store.SetStatus(conversationID, StatusError)
			e.progress.Update(conversationID, string(StatusError), "internal_error", fmt.Sprintf("Internal error: %v", r), 0)
		}
	}()

	for {
		if len(calls) == 0 {
			e.store.SetStatus(conversationID, StatusCompleted)
			e.progress.Update(conversationID, string(StatusCompleted), "done", "Nothing to execute", 100)
			return
		}
		if e.cancelled(conversationID) {
			return
		}
		e.store.SetStatus(conversationID, StatusRunning)

		results := e.executeBatch(ctx, conversationID, calls)

		// Re-check before mutating history: a cancel that landed during the
		// batch leaves the transient completion notes behind but suppresses
		// the bundled result message and the upstream call.
		if e.cancelled(conversationID) {
			return
		}

		e.store.StripTemporary(conversationID)
		blocks := make([]ContentBlock, 0, len(results))
		for _, r := range results {
			blocks = append(blocks, ToolResultBlock(r.ToolUseID, r.Content))
		}
		e.store.Append(conversationID, Message{Role: "user", Content: blocks})

		if e.cancelled(conversationID) {
			return
		}

		_, next, err := e.advance(ctx, conversationID, opts, 60)
		if err != nil {
			return
		}
		calls = next
		if len(calls) == 0 {
			// advance marked the turn completed.
			return
		}
		if !opts.AutoExecute {
			// Manual mode: advance left the invocations pending for the
			// caller. Pollers derive an in-progress status from them.
			return
		}

		count := e.store.IncrementAutoExecute(conversationID)
		if count > autoExecuteLimit {
			e.store.Append(conversationID, Message{
				Role: "system",
				Content: []ContentBlock{TextBlock(fmt.Sprintf(
					"Automatic tool execution paused after %d consecutive rounds. Reply to confirm continuing.", autoExecuteLimit))},
			})
			e.store.SetStatus(conversationID, StatusPaused)
			e.progress.Update(conversationID, string(StatusPaused), "confirmation_required", "Waiting for user confirmation", 100)
			e.log.Info("auto-execute ceiling reached", "conversation_id", conversationID, "count", count)
			return
		}
	}
}

// executeBatch dispatches the batch sequentially, in input order. A failed
// tool becomes an error result and the batch continues.
func (e *Engine) executeBatch(ctx context.Context, conversationID string, calls []ToolCall) []ToolResult {
	workDir, _ := e.store.WorkDir(conversationID)
	e.store.SetStatus(conversationID, StatusExecutingTool)

	results := make([]ToolResult, 0, len(calls))
	for i, call := range calls {
		e.store.Append(conversationID, Message{
			Role:        "system",
			Content:     []ContentBlock{TextBlock("Executing tool: " + call.Name)},
			IsTemporary: true,
		})
		e.progress.Update(conversationID, string(StatusExecutingTool), call.Name,
			fmt.Sprintf("Executing tool %d/%d: %s", i+1, len(calls), call.Name),
			25+25*i/len(calls))

		res := e.dispatcher.Dispatch(ctx, call, conversationID, workDir)
		results = append(results, res)

		e.store.StripTemporary(conversationID)
		e.store.Append(conversationID, Message{
			Role:        "system",
			Content:     []ContentBlock{TextBlock("Completed tool: " + call.Name)},
			IsTemporary: true,
		})
	}
	return results
}

// callUpstreamAt inserts the placeholder turn, repairs the outbound history
// and invokes the completer. The placeholder is removed whether or not the
// call succeeds.
func (e *Engine) callUpstreamAt(ctx context.Context, conversationID string, opts CycleOptions, waitPercent int) (CompletionResponse, error) {
	e.store.Append(conversationID, Message{
		Role:          "assistant",
		Content:       []ContentBlock{TextBlock(placeholderText)},
		IsPlaceholder: true,
	})
	e.store.SetStatus(conversationID, StatusWaitingForModel)
	e.progress.Update(conversationID, string(StatusWaitingForModel), "api_request", "Waiting for model response...", waitPercent)

	system, outbound := e.outboundHistory(conversationID)
	reply, err := e.completer.Complete(ctx, CompletionRequest{
		System:          system,
		Messages:        outbound,
		MaxTokens:       opts.MaxTokens,
		ThinkingEnabled: opts.ThinkingEnabled,
		ThinkingBudget:  opts.ThinkingBudget,
	})
	e.store.StripPlaceholder(conversationID)
	return reply, err
}

// outboundHistory builds the upstream view of the conversation: transient
// messages dropped, system messages concatenated into one instruction block
// behind the base prompt, and the pairing invariant repaired.
func (e *Engine) outboundHistory(conversationID string) (string, []Message) {
	history := FilterTransient(e.store.History(conversationID))

	systemParts := make([]string, 0, 2)
	if e.system != "" {
		systemParts = append(systemParts, e.system)
	}
	kept := make([]Message, 0, len(history))
	for _, m := range history {
		if m.Role == "system" {
			if t := m.Text(); t != "" {
				systemParts = append(systemParts, t)
			}
			continue
		}
		kept = append(kept, m)
	}
	return strings.Join(systemParts, "\n\n"), Repair(kept)
}
