package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/caldero/toolbridge/internal/chat"
	"github.com/caldero/toolbridge/internal/toollog"
)

// Handler executes one tool invocation. Returning an error (or panicking) is
// converted by Dispatch into the standard error envelope.
type Handler func(ctx context.Context, call Call) (map[string]any, error)

// Dispatch looks the tool up, runs it with the conversation's working
// directory, and normalizes the outcome to a ToolResult whose content is a
// JSON-encoded envelope. It never returns an error and never panics past its
// own boundary.
func (r *Registry) Dispatch(ctx context.Context, call chat.ToolCall, conversationID string, workDir string) chat.ToolResult {
	start := time.Now()

	reg, ok := r.tools[call.Name]
	if !ok {
		r.log.Warn("unknown tool requested", "tool", call.Name, "conversation_id", conversationID)
		res := chat.ErrorResult(call.ID, "unknown tool "+call.Name)
		r.record(ctx, conversationID, call, "error", start)
		return res
	}

	payload, err := r.invoke(ctx, reg.handler, Call{
		ConversationID: conversationID,
		WorkDir:        workDir,
		Input:          call.Input,
	})
	if err != nil {
		r.log.Warn("tool execution failed", "tool", call.Name, "conversation_id", conversationID, "error", err)
		res := chat.ErrorResult(call.ID, fmt.Sprintf("Error executing tool %s: %v", call.Name, err))
		r.record(ctx, conversationID, call, "error", start)
		return res
	}

	r.annotateArtifact(conversationID, workDir, payload)

	raw, err := json.Marshal(payload)
	if err != nil {
		res := chat.ErrorResult(call.ID, fmt.Sprintf("Error encoding result of tool %s: %v", call.Name, err))
		r.record(ctx, conversationID, call, "error", start)
		return res
	}

	status, _ := payload["status"].(string)
	if status == "" {
		status = "success"
	}
	r.record(ctx, conversationID, call, status, start)
	return chat.ToolResult{ToolUseID: call.ID, Content: string(raw)}
}

// invoke runs the handler behind a panic barrier.
func (r *Registry) invoke(ctx context.Context, h Handler, call Call) (payload map[string]any, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			payload = nil
			err = fmt.Errorf("tool panicked: %v", rec)
		}
	}()
	return h(ctx, call)
}

func (r *Registry) record(ctx context.Context, conversationID string, call chat.ToolCall, status string, start time.Time) {
	if r.audit == nil {
		return
	}
	inputJSON, _ := json.Marshal(call.Input)
	err := r.audit.Record(ctx, toollog.Entry{
		ConversationID: conversationID,
		ToolName:       call.Name,
		ToolUseID:      call.ID,
		Status:         status,
		InputJSON:      string(inputJSON),
		DurationMs:     time.Since(start).Milliseconds(),
	})
	if err != nil {
		r.log.Debug("audit record failed", "tool", call.Name, "error", err)
	}
}
