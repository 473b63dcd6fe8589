// Package httpapi implements the HTTP API for the continuation engine.
package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/caldero/toolbridge/internal/chat"
	"github.com/caldero/toolbridge/internal/monitor"
	"github.com/caldero/toolbridge/internal/toollog"
	"github.com/caldero/toolbridge/internal/tools"
)

// Server is the HTTP API server.
type Server struct {
	addr     string
	logger   *slog.Logger
	engine   *chat.Engine
	store    *chat.Store
	registry *tools.Registry
	audit    *toollog.Store
	mon      *monitor.Service
	runsDir  string

	server *http.Server
}

type Options struct {
	Addr     string
	Logger   *slog.Logger
	Engine   *chat.Engine
	Store    *chat.Store
	Registry *tools.Registry

	// Audit backs the tool-calls endpoint. Nil disables it.
	Audit *toollog.Store
	// Monitor backs the system endpoint. Nil disables it.
	Monitor *monitor.Service

	// RunsDir is where per-conversation working directories are created.
	RunsDir string
}

func NewServer(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	runsDir := strings.TrimSpace(opts.RunsDir)
	if runsDir == "" {
		runsDir = "runs"
	}
	return &Server{
		addr:     opts.Addr,
		logger:   logger,
		engine:   opts.Engine,
		store:    opts.Store,
		registry: opts.Registry,
		audit:    opts.Audit,
		mon:      opts.Monitor,
		runsDir:  runsDir,
	}
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/chat", s.handleChat)
	mux.HandleFunc("POST /api/tool-results", s.handleToolResults)

	mux.HandleFunc("GET /api/conversation/{id}/messages", s.handleMessages)
	mux.HandleFunc("GET /api/conversation/{id}/root", s.handleRoot)
	mux.HandleFunc("GET /api/conversation/{id}/status", s.handleStatus)
	mux.HandleFunc("POST /api/conversation/{id}/cancel", s.handleCancel)
	mux.HandleFunc("POST /api/conversation/{id}/resume", s.handleResume)
	mux.HandleFunc("GET /api/conversation/{id}/files", s.handleListFiles)
	mux.HandleFunc("GET /api/conversation/{id}/files/{path...}", s.handleServeFile)
	mux.HandleFunc("GET /api/conversation/{id}/tool-calls", s.handleToolCalls)

	mux.HandleFunc("GET /api/tools", s.handleTools)
	mux.HandleFunc("GET /api/system", s.handleSystem)
	mux.HandleFunc("GET /health", s.handleHealth)

	return s.withLogging(mux)
}

// Start begins serving HTTP requests. It blocks until the listener fails or
// Shutdown is called.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.addr,
		Handler:      s.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
	}
	s.logger.Info("starting API server", "addr", s.addr)
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"duration", time.Since(start),
		)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Debug("failed to write JSON response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, code int, msg string) {
	s.writeJSON(w, code, map[string]string{"status": "error", "message": msg})
}

// newConversationID returns a fresh "conv_"-prefixed id.
func newConversationID() string {
	return "conv_" + strings.ReplaceAll(uuid.NewString(), "-", "")
}

// newWorkDir creates a timestamp-named working directory under runsDir.
func (s *Server) newWorkDir() (string, error) {
	base := time.Now().Format("20060102_150405")
	for i := 0; ; i++ {
		name := base
		if i > 0 {
			name = fmt.Sprintf("%s_%d", base, i)
		}
		dir := filepath.Join(s.runsDir, name)
		err := os.MkdirAll(s.runsDir, 0o755)
		if err != nil {
			return "", err
		}
		err = os.Mkdir(dir, 0o755)
		if err == nil {
			abs, aerr := filepath.Abs(dir)
			if aerr != nil {
				return dir, nil
			}
			return abs, nil
		}
		if !os.IsExist(err) {
			return "", err
		}
	}
}
