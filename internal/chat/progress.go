package chat

import (
	"strings"
	"sync"
	"time"
)

// ProgressSnapshot is the latest progress record for a conversation. Only the
// most recent value is retained; pollers never see intermediate history.
type ProgressSnapshot struct {
	Status    string    `json:"status"`
	Step      string    `json:"step"`
	Message   string    `json:"message"`
	Percent   int       `json:"progress_pct"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ProgressTracker holds the latest snapshot per conversation. Writes are
// serialized: a snapshot is fully assigned, timestamp included, before any
// other write or read on the same conversation is observed.
type ProgressTracker struct {
	mu     sync.Mutex
	byConv map[string]ProgressSnapshot
	now    func() time.Time
}

func NewProgressTracker() *ProgressTracker {
	return &ProgressTracker{
		byConv: make(map[string]ProgressSnapshot),
		now:    time.Now,
	}
}

// Update overwrites the snapshot for a conversation. Percent is clamped to
// [0,100]; it is advisory and callers may move it backward on error paths.
func (t *ProgressTracker) Update(conversationID string, status string, step string, message string, percent int) {
	conversationID = strings.TrimSpace(conversationID)
	if t == nil || conversationID == "" {
		return
	}
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.byConv[conversationID] = ProgressSnapshot{
		Status:    status,
		Step:      step,
		Message:   message,
		Percent:   percent,
		UpdatedAt: t.now(),
	}
}

// Read returns the latest snapshot, or nil when the conversation has never
// reported progress.
func (t *ProgressTracker) Read(conversationID string) *ProgressSnapshot {
	if t == nil {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	snap, ok := t.byConv[strings.TrimSpace(conversationID)]
	if !ok {
		return nil
	}
	out := snap
	return &out
}
