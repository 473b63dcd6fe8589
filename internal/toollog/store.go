// Package toollog keeps a SQLite audit trail of every tool invocation.
package toollog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// Entry records one tool invocation.
type Entry struct {
	ID             int64  `json:"id"`
	ConversationID string `json:"conversation_id"`
	ToolName       string `json:"tool_name"`
	ToolUseID      string `json:"tool_use_id"`
	Status         string `json:"status"`
	InputJSON      string `json:"input_json"`
	DurationMs     int64  `json:"duration_ms"`
	CreatedAt      int64  `json:"created_at"`
}

// Store is a SQLite-backed audit log. Safe for concurrent use.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the audit database at path and initializes the
// schema.
func Open(path string) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("missing tool log path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create tool log dir: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open tool log: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := initSchema(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func initSchema(db *sql.DB) error {
	_, err := db.Exec(`
CREATE TABLE IF NOT EXISTS tool_calls (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	conversation_id TEXT NOT NULL,
	tool_name TEXT NOT NULL,
	tool_use_id TEXT NOT NULL,
	status TEXT NOT NULL,
	input_json TEXT NOT NULL,
	duration_ms INTEGER NOT NULL,
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_tool_calls_conversation ON tool_calls(conversation_id, id);
`)
	if err != nil {
		return fmt.Errorf("init tool log schema: %w", err)
	}
	return nil
}

// Record appends one entry. A nil store is a no-op so callers can run with
// auditing disabled.
func (s *Store) Record(ctx context.Context, e Entry) error {
	if s == nil || s.db == nil {
		return nil
	}
	if e.CreatedAt == 0 {
		e.CreatedAt = time.Now().UnixMilli()
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO tool_calls (conversation_id, tool_name, tool_use_id, status, input_json, duration_ms, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.ConversationID, e.ToolName, e.ToolUseID, e.Status, e.InputJSON, e.DurationMs, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("record tool call: %w", err)
	}
	return nil
}

// Recent returns up to limit entries for a conversation, newest first.
func (s *Store) Recent(ctx context.Context, conversationID string, limit int) ([]Entry, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT id, conversation_id, tool_name, tool_use_id, status, input_json, duration_ms, created_at
FROM tool_calls WHERE conversation_id = ? ORDER BY id DESC LIMIT ?`,
		conversationID, limit)
	if err != nil {
		return nil, fmt.Errorf("query tool calls: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.ConversationID, &e.ToolName, &e.ToolUseID, &e.Status, &e.InputJSON, &e.DurationMs, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan tool call: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Close closes the underlying database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
