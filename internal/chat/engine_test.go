package chat

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
)

// scriptedCompleter replays a fixed sequence of replies. When the script runs
// out it answers with plain text, which ends the continuation loop.
type scriptedCompleter struct {
	mu       sync.Mutex
	script   []CompletionResponse
	errs     []error
	requests []CompletionRequest

	// alwaysToolUse makes every unscripted reply request another tool.
	alwaysToolUse bool
	// gate, when set, blocks each Complete call until the channel is closed.
	gate    chan struct{}
	started chan struct{}
}

func (c *scriptedCompleter) Complete(_ context.Context, req CompletionRequest) (CompletionResponse, error) {
	c.mu.Lock()
	c.requests = append(c.requests, req)
	var resp *CompletionResponse
	var err error
	if len(c.errs) > 0 {
		err = c.errs[0]
		c.errs = c.errs[1:]
	} else if len(c.script) > 0 {
		r := c.script[0]
		c.script = c.script[1:]
		resp = &r
	}
	started := c.started
	gate := c.gate
	alwaysToolUse := c.alwaysToolUse
	c.mu.Unlock()

	if started != nil {
		select {
		case started <- struct{}{}:
		default:
		}
	}
	if gate != nil {
		<-gate
	}
	if err != nil {
		return CompletionResponse{}, err
	}
	if resp != nil {
		return *resp, nil
	}
	if alwaysToolUse {
		return CompletionResponse{Content: []ContentBlock{
			ToolUseBlock("toolu_next", "read_file", map[string]any{"file_path": "a.txt"}),
		}}, nil
	}
	return CompletionResponse{Content: []ContentBlock{TextBlock("done")}}, nil
}

func (c *scriptedCompleter) requestCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.requests)
}

type fakeDispatcher struct {
	mu         sync.Mutex
	calls      []ToolCall
	onDispatch func(call ToolCall)
}

func (d *fakeDispatcher) Dispatch(_ context.Context, call ToolCall, _ string, _ string) ToolResult {
	d.mu.Lock()
	d.calls = append(d.calls, call)
	fn := d.onDispatch
	d.mu.Unlock()
	if fn != nil {
		fn(call)
	}
	return ToolResult{ToolUseID: call.ID, Content: `{"status":"success"}`}
}

func (d *fakeDispatcher) callCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.calls)
}

func newTestEngine(t *testing.T, completer Completer, dispatcher Dispatcher) (*Engine, *Store) {
	t.Helper()
	store := NewStore()
	engine, err := NewEngine(EngineOptions{
		Store:        store,
		Progress:     NewProgressTracker(),
		Dispatcher:   dispatcher,
		Completer:    completer,
		SystemPrompt: "You are a helpful assistant.",
	})
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	t.Cleanup(engine.Close)
	return engine, store
}

func awaitIdle(t *testing.T, engine *Engine, conversationID string) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := engine.AwaitIdle(ctx, conversationID); err != nil {
		t.Fatalf("AwaitIdle: %v", err)
	}
}

func batch(ids ...string) []ToolCall {
	calls := make([]ToolCall, 0, len(ids))
	for _, id := range ids {
		calls = append(calls, ToolCall{ID: id, Name: "read_file", Input: map[string]any{"file_path": "a.txt"}})
	}
	return calls
}

func TestEngine_AutoCycleRunsUntilTextReply(t *testing.T) {
	t.Parallel()

	completer := &scriptedCompleter{script: []CompletionResponse{
		{Content: []ContentBlock{
			TextBlock("continuing"),
			ToolUseBlock("toolu_02", "read_file", map[string]any{"file_path": "b.txt"}),
		}},
	}}
	dispatcher := &fakeDispatcher{}
	engine, store := newTestEngine(t, completer, dispatcher)
	store.Create("conv_a", t.TempDir())

	if err := engine.StartCycle("conv_a", batch("toolu_01"), CycleOptions{AutoExecute: true}); err != nil {
		t.Fatalf("StartCycle: %v", err)
	}
	awaitIdle(t, engine, "conv_a")

	if got := store.Status("conv_a"); got != StatusCompleted {
		t.Fatalf("status=%q, want %q", got, StatusCompleted)
	}
	if got := dispatcher.callCount(); got != 2 {
		t.Fatalf("dispatched calls=%d, want 2", got)
	}
	if got := completer.requestCount(); got != 2 {
		t.Fatalf("upstream calls=%d, want 2", got)
	}
}

func TestEngine_HistoryKeepsPairingInvariant(t *testing.T) {
	t.Parallel()

	completer := &scriptedCompleter{script: []CompletionResponse{
		{Content: []ContentBlock{
			ToolUseBlock("toolu_02", "read_file", map[string]any{"file_path": "b.txt"}),
		}},
	}}
	engine, store := newTestEngine(t, completer, &fakeDispatcher{})
	store.Create("conv_a", t.TempDir())

	if err := engine.StartCycle("conv_a", batch("toolu_01"), CycleOptions{AutoExecute: true}); err != nil {
		t.Fatalf("StartCycle: %v", err)
	}
	awaitIdle(t, engine, "conv_a")

	history := engine.History("conv_a")
	for i, m := range history {
		if m.Transient() {
			t.Fatalf("transient message survived in served history at %d: %+v", i, m)
		}
		if m.Role != "assistant" {
			continue
		}
		for _, b := range m.Content {
			if b.Type != BlockToolUse {
				continue
			}
			if i+1 >= len(history) || history[i+1].Role != "user" {
				t.Fatalf("tool_use %q at %d has no following user message", b.ID, i)
			}
			answered := false
			for _, rb := range history[i+1].Content {
				if rb.Type == BlockToolResult && rb.ToolUseID == b.ID {
					answered = true
				}
			}
			if !answered {
				t.Fatalf("tool_use %q at %d has no matching tool_result", b.ID, i)
			}
		}
	}
}

func TestEngine_PausesAfterAutoExecuteCeiling(t *testing.T) {
	t.Parallel()

	completer := &scriptedCompleter{alwaysToolUse: true}
	engine, store := newTestEngine(t, completer, &fakeDispatcher{})
	store.Create("conv_a", t.TempDir())

	if err := engine.StartCycle("conv_a", batch("toolu_01"), CycleOptions{AutoExecute: true}); err != nil {
		t.Fatalf("StartCycle: %v", err)
	}
	awaitIdle(t, engine, "conv_a")

	if got := store.Status("conv_a"); got != StatusPaused {
		t.Fatalf("status=%q, want %q", got, StatusPaused)
	}
	if got := store.AutoExecuteCount("conv_a"); got != autoExecuteLimit+1 {
		t.Fatalf("auto-execute count=%d, want %d", got, autoExecuteLimit+1)
	}

	history := engine.History("conv_a")
	last := history[len(history)-1]
	if last.Role != "system" || !strings.Contains(last.Text(), "paused") {
		t.Fatalf("last message=%+v, want a system pause notice", last)
	}
}

func TestEngine_ResumeResetsCounterAndFinishesTurn(t *testing.T) {
	t.Parallel()

	completer := &scriptedCompleter{alwaysToolUse: true}
	engine, store := newTestEngine(t, completer, &fakeDispatcher{})
	store.Create("conv_a", t.TempDir())

	if err := engine.StartCycle("conv_a", batch("toolu_01"), CycleOptions{AutoExecute: true}); err != nil {
		t.Fatalf("StartCycle: %v", err)
	}
	awaitIdle(t, engine, "conv_a")
	if got := store.Status("conv_a"); got != StatusPaused {
		t.Fatalf("status=%q, want %q before resume", got, StatusPaused)
	}

	// Next upstream reply ends the turn.
	completer.mu.Lock()
	completer.alwaysToolUse = false
	completer.mu.Unlock()

	if err := engine.Resume("conv_a"); err != nil {
		t.Fatalf("Resume: %v", err)
	}
	awaitIdle(t, engine, "conv_a")

	if got := store.Status("conv_a"); got != StatusCompleted {
		t.Fatalf("status=%q, want %q after resume", got, StatusCompleted)
	}
	if got := store.AutoExecuteCount("conv_a"); got != 0 {
		t.Fatalf("auto-execute count=%d, want 0 after reset", got)
	}
}

func TestEngine_ResumeRequiresPausedState(t *testing.T) {
	t.Parallel()

	engine, store := newTestEngine(t, &scriptedCompleter{}, &fakeDispatcher{})
	store.Create("conv_a", t.TempDir())

	if err := engine.Resume("conv_a"); !errors.Is(err, ErrNotPaused) {
		t.Fatalf("Resume error=%v, want ErrNotPaused", err)
	}
	if err := engine.Resume("conv_missing"); !errors.Is(err, ErrConversationNotFound) {
		t.Fatalf("Resume error=%v, want ErrConversationNotFound", err)
	}
}

func TestEngine_ManualModeLeavesInvocationsPending(t *testing.T) {
	t.Parallel()

	completer := &scriptedCompleter{script: []CompletionResponse{
		{Content: []ContentBlock{
			ToolUseBlock("toolu_02", "web_search", map[string]any{"query": "go"}),
		}},
	}}
	engine, store := newTestEngine(t, completer, &fakeDispatcher{})
	store.Create("conv_a", t.TempDir())

	if err := engine.StartCycle("conv_a", batch("toolu_01"), CycleOptions{AutoExecute: false}); err != nil {
		t.Fatalf("StartCycle: %v", err)
	}
	awaitIdle(t, engine, "conv_a")

	if got := store.Status("conv_a"); got != StatusIdle {
		t.Fatalf("status=%q, want %q", got, StatusIdle)
	}
	calls := store.LastAssistantToolCalls("conv_a")
	if len(calls) != 1 || calls[0].ID != "toolu_02" {
		t.Fatalf("pending calls=%+v, want toolu_02", calls)
	}
}

func TestEngine_UpstreamErrorRecordsSystemMessage(t *testing.T) {
	t.Parallel()

	completer := &scriptedCompleter{errs: []error{errors.New("overloaded")}}
	engine, store := newTestEngine(t, completer, &fakeDispatcher{})
	store.Create("conv_a", t.TempDir())

	if err := engine.StartCycle("conv_a", batch("toolu_01"), CycleOptions{AutoExecute: true}); err != nil {
		t.Fatalf("StartCycle: %v", err)
	}
	awaitIdle(t, engine, "conv_a")

	if got := store.Status("conv_a"); got != StatusError {
		t.Fatalf("status=%q, want %q", got, StatusError)
	}
	history := engine.History("conv_a")
	last := history[len(history)-1]
	if !strings.HasPrefix(last.Text(), "Error calling model API: ") {
		t.Fatalf("last message=%q, want the model API error notice", last.Text())
	}
	if snap := engine.Progress("conv_a"); snap == nil || snap.Percent != 0 {
		t.Fatalf("progress=%+v, want percent 0 on error", snap)
	}
}

func TestEngine_CancelDuringBatchSkipsUpstreamCall(t *testing.T) {
	t.Parallel()

	completer := &scriptedCompleter{}
	dispatcher := &fakeDispatcher{}
	engine, store := newTestEngine(t, completer, dispatcher)
	store.Create("conv_a", t.TempDir())

	dispatcher.onDispatch = func(ToolCall) {
		if err := engine.Cancel("conv_a"); err != nil {
			t.Errorf("Cancel: %v", err)
		}
	}

	if err := engine.StartCycle("conv_a", batch("toolu_01"), CycleOptions{AutoExecute: true}); err != nil {
		t.Fatalf("StartCycle: %v", err)
	}
	awaitIdle(t, engine, "conv_a")

	if got := store.Status("conv_a"); got != StatusCancelled {
		t.Fatalf("status=%q, want %q", got, StatusCancelled)
	}
	if got := completer.requestCount(); got != 0 {
		t.Fatalf("upstream calls=%d, want 0 after cancel", got)
	}
}

func TestEngine_CancelIsIdempotent(t *testing.T) {
	t.Parallel()

	engine, store := newTestEngine(t, &scriptedCompleter{}, &fakeDispatcher{})
	store.Create("conv_a", t.TempDir())
	store.SetStatus("conv_a", StatusRunning)

	if err := engine.Cancel("conv_a"); err != nil {
		t.Fatalf("first Cancel: %v", err)
	}
	if err := engine.Cancel("conv_a"); err != nil {
		t.Fatalf("second Cancel: %v", err)
	}

	notices := 0
	for _, m := range engine.History("conv_a") {
		if strings.Contains(m.Text(), "cancelled by user") {
			notices++
		}
	}
	if notices != 1 {
		t.Fatalf("cancel notices=%d, want exactly 1", notices)
	}
}

func TestEngine_SecondStartCycleIsRejectedWhileLive(t *testing.T) {
	t.Parallel()

	completer := &scriptedCompleter{
		gate:    make(chan struct{}),
		started: make(chan struct{}, 1),
	}
	engine, store := newTestEngine(t, completer, &fakeDispatcher{})
	store.Create("conv_a", t.TempDir())

	if err := engine.StartCycle("conv_a", batch("toolu_01"), CycleOptions{AutoExecute: true}); err != nil {
		t.Fatalf("StartCycle: %v", err)
	}
	<-completer.started

	if err := engine.StartCycle("conv_a", batch("toolu_99"), CycleOptions{AutoExecute: true}); !errors.Is(err, ErrCycleActive) {
		t.Fatalf("second StartCycle error=%v, want ErrCycleActive", err)
	}

	close(completer.gate)
	awaitIdle(t, engine, "conv_a")
}

func TestEngine_StartCycleRejectsUnknownConversation(t *testing.T) {
	t.Parallel()

	engine, _ := newTestEngine(t, &scriptedCompleter{}, &fakeDispatcher{})
	err := engine.StartCycle("conv_missing", batch("toolu_01"), CycleOptions{AutoExecute: true})
	if !errors.Is(err, ErrConversationNotFound) {
		t.Fatalf("StartCycle error=%v, want ErrConversationNotFound", err)
	}
}

func TestEngine_ConverseCompletesTextOnlyTurn(t *testing.T) {
	t.Parallel()

	completer := &scriptedCompleter{}
	engine, store := newTestEngine(t, completer, &fakeDispatcher{})
	store.Create("conv_a", t.TempDir())

	reply, err := engine.Converse(context.Background(), "conv_a", "hello", CycleOptions{AutoExecute: true})
	if err != nil {
		t.Fatalf("Converse: %v", err)
	}
	if len(reply.Content) != 1 || reply.Content[0].Text != "done" {
		t.Fatalf("reply=%+v, want single text block %q", reply.Content, "done")
	}
	if got := store.Status("conv_a"); got != StatusCompleted {
		t.Fatalf("status=%q, want %q", got, StatusCompleted)
	}

	history := engine.History("conv_a")
	if len(history) != 2 || history[0].Role != "user" || history[1].Role != "assistant" {
		t.Fatalf("history=%+v, want user then assistant", history)
	}
}

func TestEngine_ConverseStartsDetachedCycleForToolReply(t *testing.T) {
	t.Parallel()

	completer := &scriptedCompleter{script: []CompletionResponse{
		{Content: []ContentBlock{
			ToolUseBlock("toolu_01", "read_file", map[string]any{"file_path": "a.txt"}),
		}},
	}}
	dispatcher := &fakeDispatcher{}
	engine, store := newTestEngine(t, completer, dispatcher)
	store.Create("conv_a", t.TempDir())

	_, err := engine.Converse(context.Background(), "conv_a", "read it", CycleOptions{AutoExecute: true})
	if err != nil {
		t.Fatalf("Converse: %v", err)
	}
	awaitIdle(t, engine, "conv_a")

	if got := store.Status("conv_a"); got != StatusCompleted {
		t.Fatalf("status=%q, want %q", got, StatusCompleted)
	}
	if got := dispatcher.callCount(); got != 1 {
		t.Fatalf("dispatched calls=%d, want 1", got)
	}
}

func TestEngine_ConverseHandsSlotToDetachedCycle(t *testing.T) {
	t.Parallel()

	completer := &scriptedCompleter{script: []CompletionResponse{
		{Content: []ContentBlock{
			ToolUseBlock("toolu_01", "read_file", map[string]any{"file_path": "a.txt"}),
		}},
	}}
	dispatcher := &fakeDispatcher{}
	gate := make(chan struct{})
	dispatcher.onDispatch = func(ToolCall) { <-gate }
	engine, store := newTestEngine(t, completer, dispatcher)
	store.Create("conv_a", t.TempDir())

	if _, err := engine.Converse(context.Background(), "conv_a", "read it", CycleOptions{AutoExecute: true}); err != nil {
		t.Fatalf("Converse: %v", err)
	}

	// The turn's slot passes to the continuation cycle without ever being
	// free, so a trigger arriving right after Converse returns is rejected
	// instead of stranding the turn.
	if err := engine.StartCycle("conv_a", batch("toolu_99"), CycleOptions{AutoExecute: true}); !errors.Is(err, ErrCycleActive) {
		t.Fatalf("StartCycle error=%v, want ErrCycleActive", err)
	}

	close(gate)
	awaitIdle(t, engine, "conv_a")
	if got := store.Status("conv_a"); got != StatusCompleted {
		t.Fatalf("status=%q, want %q", got, StatusCompleted)
	}
}

func TestEngine_OutboundHistoryFoldsSystemMessages(t *testing.T) {
	t.Parallel()

	completer := &scriptedCompleter{}
	engine, store := newTestEngine(t, completer, &fakeDispatcher{})
	store.Create("conv_a", t.TempDir())
	store.Append("conv_a", Message{Role: "system", Content: []ContentBlock{TextBlock("Prior note")}})

	if _, err := engine.Converse(context.Background(), "conv_a", "hello", CycleOptions{}); err != nil {
		t.Fatalf("Converse: %v", err)
	}

	completer.mu.Lock()
	defer completer.mu.Unlock()
	if len(completer.requests) != 1 {
		t.Fatalf("upstream calls=%d, want 1", len(completer.requests))
	}
	req := completer.requests[0]
	if req.System != "You are a helpful assistant.\n\nPrior note" {
		t.Fatalf("system=%q, want base prompt joined with the prior note", req.System)
	}
	for _, m := range req.Messages {
		if m.Role == "system" {
			t.Fatalf("system message leaked into outbound messages: %+v", m)
		}
		if m.IsPlaceholder {
			t.Fatalf("placeholder leaked into outbound messages: %+v", m)
		}
	}
}

func TestEngine_ConverseAppliesDefaultModelParameters(t *testing.T) {
	t.Parallel()

	completer := &scriptedCompleter{}
	engine, store := newTestEngine(t, completer, &fakeDispatcher{})
	store.Create("conv_a", t.TempDir())

	if _, err := engine.Converse(context.Background(), "conv_a", "hello", CycleOptions{ThinkingEnabled: true}); err != nil {
		t.Fatalf("Converse: %v", err)
	}

	completer.mu.Lock()
	defer completer.mu.Unlock()
	req := completer.requests[0]
	if req.MaxTokens != 4096 {
		t.Fatalf("max tokens=%d, want 4096", req.MaxTokens)
	}
	if !req.ThinkingEnabled || req.ThinkingBudget != 2000 {
		t.Fatalf("thinking=%v budget=%d, want enabled with budget 2000", req.ThinkingEnabled, req.ThinkingBudget)
	}
}
