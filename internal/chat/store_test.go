package chat

import "testing"

func TestStore_CreateIsNoOpForExistingConversation(t *testing.T) {
	t.Parallel()

	s := NewStore()
	s.Create("conv_a", "/tmp/one")
	s.Append("conv_a", Message{Role: "user", Content: []ContentBlock{TextBlock("hi")}})

	s.Create("conv_a", "/tmp/two")

	if got := len(s.History("conv_a")); got != 1 {
		t.Fatalf("history length=%d, want 1", got)
	}
	dir, ok := s.WorkDir("conv_a")
	if !ok || dir != "/tmp/one" {
		t.Fatalf("workdir=%q ok=%v, want %q", dir, ok, "/tmp/one")
	}
}

func TestStore_HistoryReturnsACopy(t *testing.T) {
	t.Parallel()

	s := NewStore()
	s.Create("conv_a", "")
	s.Append("conv_a", Message{Role: "user", Content: []ContentBlock{TextBlock("hi")}})

	h := s.History("conv_a")
	h[0].Role = "assistant"

	if got := s.History("conv_a")[0].Role; got != "user" {
		t.Fatalf("stored role=%q, want %q", got, "user")
	}
}

func TestStore_StripTemporaryAndPlaceholder(t *testing.T) {
	t.Parallel()

	s := NewStore()
	s.Create("conv_a", "")
	s.Append("conv_a", Message{Role: "user", Content: []ContentBlock{TextBlock("hi")}})
	s.Append("conv_a", Message{Role: "system", Content: []ContentBlock{TextBlock("Executing tool: read_file")}, IsTemporary: true})
	s.Append("conv_a", Message{Role: "assistant", Content: []ContentBlock{TextBlock("Thinking...")}, IsPlaceholder: true})

	s.StripTemporary("conv_a")
	if got := len(s.History("conv_a")); got != 2 {
		t.Fatalf("after StripTemporary length=%d, want 2", got)
	}

	s.StripPlaceholder("conv_a")
	h := s.History("conv_a")
	if len(h) != 1 || h[0].Role != "user" {
		t.Fatalf("after StripPlaceholder history=%+v, want only the user message", h)
	}
}

func TestStore_CompareAndSetStatus(t *testing.T) {
	t.Parallel()

	s := NewStore()
	s.Create("conv_a", "")
	s.SetStatus("conv_a", StatusRunning)

	if !s.CompareAndSetStatus("conv_a", StatusCancelled, StatusIdle, StatusRunning) {
		t.Fatalf("expected transition from running to cancelled")
	}
	if got := s.Status("conv_a"); got != StatusCancelled {
		t.Fatalf("status=%q, want %q", got, StatusCancelled)
	}
	if s.CompareAndSetStatus("conv_a", StatusCancelled, StatusIdle, StatusRunning) {
		t.Fatalf("second transition should fail: status no longer matches")
	}
}

func TestStore_AutoExecuteCounter(t *testing.T) {
	t.Parallel()

	s := NewStore()
	s.Create("conv_a", "")

	for i := 1; i <= 3; i++ {
		if got := s.IncrementAutoExecute("conv_a"); got != i {
			t.Fatalf("increment %d returned %d", i, got)
		}
	}
	s.ResetAutoExecute("conv_a")
	if got := s.AutoExecuteCount("conv_a"); got != 0 {
		t.Fatalf("count after reset=%d, want 0", got)
	}
}

func TestStore_LastAssistantToolCallsSkipsTransientTurns(t *testing.T) {
	t.Parallel()

	s := NewStore()
	s.Create("conv_a", "")
	s.Append("conv_a", Message{Role: "assistant", Content: []ContentBlock{
		ToolUseBlock("toolu_01", "read_file", map[string]any{"file_path": "a.txt"}),
	}})
	s.Append("conv_a", Message{Role: "assistant", Content: []ContentBlock{TextBlock("Thinking...")}, IsPlaceholder: true})

	calls := s.LastAssistantToolCalls("conv_a")
	if len(calls) != 1 || calls[0].ID != "toolu_01" {
		t.Fatalf("calls=%+v, want the toolu_01 invocation", calls)
	}
}

func TestStore_UnknownConversation(t *testing.T) {
	t.Parallel()

	s := NewStore()
	if s.Exists("conv_missing") {
		t.Fatalf("Exists returned true for unknown conversation")
	}
	if got := s.Status("conv_missing"); got != StatusIdle {
		t.Fatalf("status=%q, want %q", got, StatusIdle)
	}
	if h := s.History("conv_missing"); h != nil {
		t.Fatalf("history=%v, want nil", h)
	}
}
