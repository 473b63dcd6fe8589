// Package chat implements the conversation continuation engine: it executes
// batches of tool calls requested by the model, repairs and resubmits the
// conversation history upstream, and decides whether to continue automatically,
// pause for confirmation, or stop.
package chat

import (
	"encoding/json"
	"strings"
)

// TaskStatus is the lifecycle state of a conversation's automatic execution task.
type TaskStatus string

const (
	StatusIdle            TaskStatus = "idle"
	StatusRunning         TaskStatus = "running"
	StatusWaitingForModel TaskStatus = "waiting_for_model"
	StatusExecutingTool   TaskStatus = "executing_tool"
	StatusPaused          TaskStatus = "paused"
	StatusCancelled       TaskStatus = "cancelled"
	StatusError           TaskStatus = "error"
	StatusCompleted       TaskStatus = "completed"
)

// Block type tags for ContentBlock.
const (
	BlockText       = "text"
	BlockToolUse    = "tool_use"
	BlockToolResult = "tool_result"
	BlockThinking   = "thinking"
)

// ContentBlock is one tagged content part of a message. Exactly the fields for
// the block's Type are set; consumers switch on Type instead of probing keys.
type ContentBlock struct {
	Type string `json:"type"`

	// text / thinking
	Text string `json:"text,omitempty"`

	// thinking. The provider signature must round-trip with the block: the
	// upstream API refuses tool results whose preceding assistant turn lost
	// its signed thinking block.
	Signature string `json:"signature,omitempty"`

	// tool_use
	ID    string         `json:"id,omitempty"`
	Name  string         `json:"name,omitempty"`
	Input map[string]any `json:"input,omitempty"`

	// tool_result. Content is always a JSON-encoded string so it round-trips
	// through the upstream protocol regardless of the tool's native shape.
	ToolUseID string `json:"tool_use_id,omitempty"`
	Content   string `json:"content,omitempty"`
}

func TextBlock(text string) ContentBlock {
	return ContentBlock{Type: BlockText, Text: text}
}

func ToolUseBlock(id string, name string, input map[string]any) ContentBlock {
	return ContentBlock{Type: BlockToolUse, ID: id, Name: name, Input: input}
}

func ToolResultBlock(toolUseID string, content string) ContentBlock {
	return ContentBlock{Type: BlockToolResult, ToolUseID: toolUseID, Content: content}
}

func ThinkingBlock(thinking string, signature string) ContentBlock {
	return ContentBlock{Type: BlockThinking, Text: thinking, Signature: signature}
}

// Message is one turn in a conversation history. Placeholder, status and
// temporary messages exist only for UI feedback; they are stripped before the
// history is sent upstream and before it is served to callers.
type Message struct {
	Role    string         `json:"role"` // user | assistant | system
	Content []ContentBlock `json:"content"`

	// UI-only flags.
	IsPlaceholder bool `json:"is_placeholder,omitempty"`
	IsStatus      bool `json:"is_status,omitempty"`
	IsTemporary   bool `json:"is_temporary,omitempty"`
}

// Transient reports whether the message must never reach the upstream model
// or a polling caller.
func (m Message) Transient() bool {
	return m.IsPlaceholder || m.IsStatus || m.IsTemporary
}

// Text joins the message's text blocks.
func (m Message) Text() string {
	parts := make([]string, 0, len(m.Content))
	for _, b := range m.Content {
		if b.Type != BlockText {
			continue
		}
		if t := strings.TrimSpace(b.Text); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, "\n")
}

// ToolCall is a tool invocation requested by the model.
type ToolCall struct {
	ID    string         `json:"id"`
	Name  string         `json:"name"`
	Input map[string]any `json:"input"`
}

// ToolResult is the outcome of one dispatched tool call.
type ToolResult struct {
	ToolUseID string `json:"tool_use_id"`
	Content   string `json:"content"`
}

// ErrorResult builds a ToolResult carrying the standard error envelope.
func ErrorResult(toolUseID string, message string) ToolResult {
	raw, err := json.Marshal(map[string]string{"status": "error", "message": message})
	if err != nil {
		raw = []byte(`{"status":"error","message":"internal error"}`)
	}
	return ToolResult{ToolUseID: toolUseID, Content: string(raw)}
}

// ExtractToolCalls pulls tool_use blocks, in order, out of a content list.
func ExtractToolCalls(content []ContentBlock) []ToolCall {
	var calls []ToolCall
	for _, b := range content {
		if b.Type != BlockToolUse {
			continue
		}
		if strings.TrimSpace(b.ID) == "" || strings.TrimSpace(b.Name) == "" {
			continue
		}
		calls = append(calls, ToolCall{ID: b.ID, Name: b.Name, Input: b.Input})
	}
	return calls
}

// FilterTransient returns messages with all placeholder/status/temporary
// entries removed. The input slice is not modified.
func FilterTransient(messages []Message) []Message {
	out := make([]Message, 0, len(messages))
	for _, m := range messages {
		if m.Transient() {
			continue
		}
		out = append(out, m)
	}
	return out
}
