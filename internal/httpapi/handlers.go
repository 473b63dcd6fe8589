package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/caldero/toolbridge/internal/chat"
)

type chatRequest struct {
	ConversationID       string `json:"conversation_id,omitempty"`
	Message              string `json:"message"`
	MaxTokens            int    `json:"max_tokens,omitempty"`
	ThinkingMode         *bool  `json:"thinking_mode,omitempty"`
	ThinkingBudgetTokens int    `json:"thinking_budget_tokens,omitempty"`
	AutoExecuteTools     *bool  `json:"auto_execute_tools,omitempty"`
}

type toolResultsRequest struct {
	ConversationID   string `json:"conversation_id"`
	AutoExecuteTools *bool  `json:"auto_execute_tools,omitempty"`
	ToolResults      []struct {
		ToolUseID string `json:"tool_use_id"`
		Content   string `json:"content"`
	} `json:"tool_results"`
}

type turnResponse struct {
	ConversationID string                 `json:"conversation_id"`
	Status         string                 `json:"status"`
	Message        *chat.Message          `json:"message,omitempty"`
	Thinking       string                 `json:"thinking,omitempty"`
	ToolCalls      []chat.ToolCall        `json:"tool_calls,omitempty"`
	Progress       *chat.ProgressSnapshot `json:"progress,omitempty"`
}

func cycleOptions(maxTokens int, thinkingMode *bool, thinkingBudget int, autoExecute *bool) chat.CycleOptions {
	opts := chat.CycleOptions{
		MaxTokens:       maxTokens,
		ThinkingEnabled: true,
		ThinkingBudget:  thinkingBudget,
		AutoExecute:     true,
	}
	if thinkingMode != nil {
		opts.ThinkingEnabled = *thinkingMode
	}
	if autoExecute != nil {
		opts.AutoExecute = *autoExecute
	}
	return opts
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		s.writeError(w, http.StatusBadRequest, "missing message")
		return
	}

	conversationID := strings.TrimSpace(req.ConversationID)
	if conversationID == "" {
		conversationID = newConversationID()
	}
	if !s.store.Exists(conversationID) {
		workDir, err := s.newWorkDir()
		if err != nil {
			s.writeError(w, http.StatusInternalServerError, "failed to create working directory: "+err.Error())
			return
		}
		s.store.Create(conversationID, workDir)
	}

	opts := cycleOptions(req.MaxTokens, req.ThinkingMode, req.ThinkingBudgetTokens, req.AutoExecuteTools)
	reply, err := s.engine.Converse(r.Context(), conversationID, req.Message, opts)
	if err != nil {
		s.writeTurnError(w, conversationID, err)
		return
	}
	s.writeTurn(w, conversationID, reply, opts)
}

func (s *Server) handleToolResults(w http.ResponseWriter, r *http.Request) {
	var req toolResultsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	conversationID := strings.TrimSpace(req.ConversationID)
	if conversationID == "" {
		s.writeError(w, http.StatusBadRequest, "missing conversation_id")
		return
	}
	if len(req.ToolResults) == 0 {
		s.writeError(w, http.StatusBadRequest, "missing tool_results")
		return
	}

	results := make([]chat.ToolResult, 0, len(req.ToolResults))
	for _, tr := range req.ToolResults {
		results = append(results, chat.ToolResult{ToolUseID: tr.ToolUseID, Content: tr.Content})
	}

	opts := cycleOptions(0, nil, 0, req.AutoExecuteTools)
	reply, err := s.engine.SubmitToolResults(r.Context(), conversationID, results, opts)
	if err != nil {
		s.writeTurnError(w, conversationID, err)
		return
	}
	s.writeTurn(w, conversationID, reply, opts)
}

func (s *Server) writeTurn(w http.ResponseWriter, conversationID string, reply chat.CompletionResponse, opts chat.CycleOptions) {
	resp := turnResponse{
		ConversationID: conversationID,
		Status:         deriveStatus(s.store.Status(conversationID)),
		Thinking:       reply.Thinking,
		Progress:       s.engine.Progress(conversationID),
	}
	if len(reply.Content) > 0 {
		resp.Message = &chat.Message{Role: "assistant", Content: reply.Content}
	}
	if !opts.AutoExecute {
		resp.ToolCalls = chat.ExtractToolCalls(reply.Content)
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) writeTurnError(w http.ResponseWriter, conversationID string, err error) {
	switch {
	case errors.Is(err, chat.ErrConversationNotFound):
		s.writeError(w, http.StatusNotFound, "conversation not found: "+conversationID)
	case errors.Is(err, chat.ErrCycleActive):
		s.writeError(w, http.StatusConflict, "a cycle is already running for this conversation")
	case errors.Is(err, chat.ErrEngineClosed):
		s.writeError(w, http.StatusServiceUnavailable, "server is shutting down")
	default:
		s.writeError(w, http.StatusBadGateway, err.Error())
	}
}

// deriveStatus maps internal task states onto the coarse lifecycle the
// polling client understands.
func deriveStatus(status chat.TaskStatus) string {
	switch status {
	case chat.StatusRunning, chat.StatusWaitingForModel, chat.StatusExecutingTool:
		return "in_progress"
	case chat.StatusIdle:
		return "idle"
	default:
		return string(status)
	}
}

func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request) {
	conversationID := r.PathValue("id")
	if !s.store.Exists(conversationID) {
		s.writeError(w, http.StatusNotFound, "conversation not found: "+conversationID)
		return
	}
	messages := s.engine.History(conversationID)
	if messages == nil {
		messages = []chat.Message{}
	}
	workDir, _ := s.store.WorkDir(conversationID)
	s.writeJSON(w, http.StatusOK, map[string]any{
		"conversation_id": conversationID,
		"status":          deriveStatus(s.store.Status(conversationID)),
		"messages":        messages,
		"root_dir":        workDir,
	})
}

// handleRoot reports the conversation's working directory, where tool-created
// artifacts land.
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	conversationID := r.PathValue("id")
	workDir, ok := s.store.WorkDir(conversationID)
	if !ok {
		s.writeError(w, http.StatusNotFound, "conversation not found: "+conversationID)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{
		"conversation_id": conversationID,
		"root_dir":        workDir,
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	conversationID := r.PathValue("id")
	if !s.store.Exists(conversationID) {
		s.writeError(w, http.StatusNotFound, "conversation not found: "+conversationID)
		return
	}
	resp := map[string]any{
		"conversation_id": conversationID,
		"status":          deriveStatus(s.store.Status(conversationID)),
	}
	if snap := s.engine.Progress(conversationID); snap != nil {
		resp["progress"] = snap
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	conversationID := r.PathValue("id")
	if err := s.engine.Cancel(conversationID); err != nil {
		if errors.Is(err, chat.ErrConversationNotFound) {
			s.writeError(w, http.StatusNotFound, "conversation not found: "+conversationID)
			return
		}
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{
		"conversation_id": conversationID,
		"status":          "cancelled",
	})
}

func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	conversationID := r.PathValue("id")
	err := s.engine.Resume(conversationID)
	switch {
	case err == nil:
		s.writeJSON(w, http.StatusOK, map[string]string{
			"conversation_id": conversationID,
			"status":          "resumed",
		})
	case errors.Is(err, chat.ErrConversationNotFound):
		s.writeError(w, http.StatusNotFound, "conversation not found: "+conversationID)
	case errors.Is(err, chat.ErrNotPaused):
		s.writeError(w, http.StatusConflict, "conversation is not paused")
	case errors.Is(err, chat.ErrCycleActive):
		s.writeError(w, http.StatusConflict, "a cycle is already running for this conversation")
	default:
		s.writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func (s *Server) handleTools(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{"tools": s.registry.Definitions()})
}

func (s *Server) handleSystem(w http.ResponseWriter, r *http.Request) {
	if s.mon == nil {
		s.writeError(w, http.StatusNotFound, "system monitoring is disabled")
		return
	}
	s.writeJSON(w, http.StatusOK, s.mon.Read(r.Context()))
}

func (s *Server) handleToolCalls(w http.ResponseWriter, r *http.Request) {
	conversationID := r.PathValue("id")
	if !s.store.Exists(conversationID) {
		s.writeError(w, http.StatusNotFound, "conversation not found: "+conversationID)
		return
	}
	if s.audit == nil {
		s.writeError(w, http.StatusNotFound, "tool call auditing is disabled")
		return
	}
	entries, err := s.audit.Recent(r.Context(), conversationID, 100)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"conversation_id": conversationID,
		"tool_calls":      entries,
	})
}
