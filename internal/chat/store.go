package chat

import (
	"errors"
	"strings"
	"sync"
)

var ErrConversationNotFound = errors.New("conversation not found")

// conversation is the mutable per-conversation record. All access goes through
// Store methods; nothing outside this file touches the fields directly.
type conversation struct {
	history       []Message
	workDir       string
	status        TaskStatus
	autoExecCount int
}

// Store owns all in-memory conversation state. Ownership and locking are
// explicit here rather than spread over package-level maps.
type Store struct {
	mu    sync.Mutex
	convs map[string]*conversation
}

func NewStore() *Store {
	return &Store{convs: make(map[string]*conversation)}
}

// Create registers a conversation with its working directory. Creating an
// existing id is a no-op so that a retried first turn cannot wipe history.
func (s *Store) Create(conversationID string, workDir string) {
	conversationID = strings.TrimSpace(conversationID)
	if conversationID == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.convs[conversationID]; ok {
		return
	}
	s.convs[conversationID] = &conversation{workDir: workDir, status: StatusIdle}
}

func (s *Store) Exists(conversationID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.convs[conversationID]
	return ok
}

// WorkDir returns the conversation-scoped working directory.
func (s *Store) WorkDir(conversationID string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.convs[conversationID]
	if !ok {
		return "", false
	}
	return c.workDir, true
}

// History returns a copy of the full history, transient messages included.
func (s *Store) History(conversationID string) []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.convs[conversationID]
	if !ok {
		return nil
	}
	out := make([]Message, len(c.history))
	copy(out, c.history)
	return out
}

// Append adds a message at the end of the history.
func (s *Store) Append(conversationID string, msg Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.convs[conversationID]
	if !ok {
		return
	}
	c.history = append(c.history, msg)
}

// StripTemporary removes every is_temporary message from the history.
func (s *Store) StripTemporary(conversationID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.convs[conversationID]
	if !ok {
		return
	}
	kept := c.history[:0]
	for _, m := range c.history {
		if m.IsTemporary {
			continue
		}
		kept = append(kept, m)
	}
	c.history = kept
}

// StripPlaceholder removes every is_placeholder message from the history.
func (s *Store) StripPlaceholder(conversationID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.convs[conversationID]
	if !ok {
		return
	}
	kept := c.history[:0]
	for _, m := range c.history {
		if m.IsPlaceholder {
			continue
		}
		kept = append(kept, m)
	}
	c.history = kept
}

func (s *Store) Status(conversationID string) TaskStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.convs[conversationID]
	if !ok {
		return StatusIdle
	}
	return c.status
}

func (s *Store) SetStatus(conversationID string, status TaskStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.convs[conversationID]; ok {
		c.status = status
	}
}

// CompareAndSetStatus transitions status only when the current value matches
// one of from. It reports whether the transition happened.
func (s *Store) CompareAndSetStatus(conversationID string, to TaskStatus, from ...TaskStatus) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.convs[conversationID]
	if !ok {
		return false
	}
	for _, f := range from {
		if c.status == f {
			c.status = to
			return true
		}
	}
	return false
}

// IncrementAutoExecute bumps the automatic continuation counter and returns
// the new value.
func (s *Store) IncrementAutoExecute(conversationID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.convs[conversationID]
	if !ok {
		return 0
	}
	c.autoExecCount++
	return c.autoExecCount
}

func (s *Store) AutoExecuteCount(conversationID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.convs[conversationID]
	if !ok {
		return 0
	}
	return c.autoExecCount
}

func (s *Store) ResetAutoExecute(conversationID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.convs[conversationID]; ok {
		c.autoExecCount = 0
	}
}

// LastAssistantToolCalls returns the tool_use calls of the most recent
// non-transient assistant message. Used by resume.
func (s *Store) LastAssistantToolCalls(conversationID string) []ToolCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.convs[conversationID]
	if !ok {
		return nil
	}
	for i := len(c.history) - 1; i >= 0; i-- {
		m := c.history[i]
		if m.Role != "assistant" || m.Transient() {
			continue
		}
		return ExtractToolCalls(m.Content)
	}
	return nil
}
