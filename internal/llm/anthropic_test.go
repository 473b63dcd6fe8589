package llm

import (
	"testing"

	"github.com/caldero/toolbridge/internal/chat"
)

func TestAnthropicMessages_ReplaysSignedThinkingBlocks(t *testing.T) {
	t.Parallel()

	msgs := []chat.Message{
		{Role: "user", Content: []chat.ContentBlock{chat.TextBlock("list the files")}},
		{Role: "assistant", Content: []chat.ContentBlock{
			chat.ThinkingBlock("planning the call", "sig_abc"),
			chat.ToolUseBlock("toolu_01", "list_files", map[string]any{"path": "."}),
		}},
		{Role: "user", Content: []chat.ContentBlock{
			chat.ToolResultBlock("toolu_01", `{"status":"success"}`),
		}},
	}

	out := anthropicMessages(msgs)
	if len(out) != 3 {
		t.Fatalf("messages=%d, want 3", len(out))
	}

	assistant := out[1]
	if len(assistant.Content) != 2 {
		t.Fatalf("assistant blocks=%d, want thinking then tool_use", len(assistant.Content))
	}
	thinking := assistant.Content[0].OfThinking
	if thinking == nil {
		t.Fatalf("first assistant block=%+v, want a thinking block", assistant.Content[0])
	}
	if thinking.Thinking != "planning the call" || thinking.Signature != "sig_abc" {
		t.Fatalf("thinking=%q signature=%q, want the captured pair", thinking.Thinking, thinking.Signature)
	}
	if assistant.Content[1].OfToolUse == nil {
		t.Fatalf("second assistant block=%+v, want the tool_use block", assistant.Content[1])
	}
}

func TestAnthropicMessages_DropsUnsignedThinkingBlocks(t *testing.T) {
	t.Parallel()

	out := anthropicMessages([]chat.Message{
		{Role: "assistant", Content: []chat.ContentBlock{
			chat.ThinkingBlock("unsigned", ""),
			chat.TextBlock("hello"),
		}},
	})
	if len(out) != 1 || len(out[0].Content) != 1 {
		t.Fatalf("messages=%+v, want a single text-only assistant message", out)
	}
	if out[0].Content[0].OfText == nil {
		t.Fatalf("block=%+v, want text", out[0].Content[0])
	}
}
