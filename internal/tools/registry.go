// Package tools holds the fixed tool registry and the dispatcher that turns
// model-requested tool calls into uniform result envelopes. Tool failures are
// data, never control flow: every path out of Dispatch produces a ToolResult.
package tools

import (
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/caldero/toolbridge/internal/monitor"
	"github.com/caldero/toolbridge/internal/toollog"
	"github.com/caldero/toolbridge/internal/websearch"
)

// Definition describes one tool to the upstream model.
type Definition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"input_schema"`
}

// Call is the resolved context a handler runs with.
type Call struct {
	ConversationID string
	WorkDir        string
	Input          map[string]any
}

type registered struct {
	def     Definition
	handler Handler
}

// Registry maps tool names to handlers. The set is fixed at construction.
type Registry struct {
	log   *slog.Logger
	tools map[string]registered

	audit          *toollog.Store
	search         websearch.Config
	mon            *monitor.Service
	commandTimeout time.Duration

	// fileBaseURL prefixes servable artifact URLs, e.g. "/api/conversation".
	fileBaseURL string
}

type Options struct {
	Log *slog.Logger

	// Audit, when set, records every dispatched call. Nil disables auditing.
	Audit *toollog.Store

	// Search configures the web_search tool provider.
	Search websearch.Config

	// Monitor backs the system_info tool. Nil disables it.
	Monitor *monitor.Service

	// CommandTimeout bounds run_terminal_command. Zero means 5 minutes.
	CommandTimeout time.Duration

	// FileBaseURL is the route prefix under which conversation files are
	// served. Defaults to "/api/conversation".
	FileBaseURL string
}

func NewRegistry(opts Options) *Registry {
	log := opts.Log
	if log == nil {
		log = slog.Default()
	}
	timeout := opts.CommandTimeout
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	base := strings.TrimSpace(opts.FileBaseURL)
	if base == "" {
		base = "/api/conversation"
	}

	r := &Registry{
		log:            log,
		tools:          make(map[string]registered),
		audit:          opts.Audit,
		search:         opts.Search,
		mon:            opts.Monitor,
		commandTimeout: timeout,
		fileBaseURL:    strings.TrimRight(base, "/"),
	}
	r.registerBuiltins()
	return r
}

func (r *Registry) register(def Definition, h Handler) {
	name := strings.TrimSpace(def.Name)
	if name == "" || h == nil {
		return
	}
	def.Name = name
	r.tools[name] = registered{def: def, handler: h}
}

func (r *Registry) registerBuiltins() {
	r.register(saveFileDefinition(), r.handleSaveFile)
	r.register(readFileDefinition(), r.handleReadFile)
	r.register(runCommandDefinition(), r.handleRunCommand)
	r.register(installPackageDefinition(), r.handleInstallPackage)
	r.register(webSearchDefinition(), r.handleWebSearch)
	r.register(extractContentDefinition(), r.handleExtractContent)
	if r.mon != nil {
		r.register(systemInfoDefinition(), r.handleSystemInfo)
	}
}

// Definitions returns the tool schemas in stable name order.
func (r *Registry) Definitions() []Definition {
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	out := make([]Definition, 0, len(names))
	for _, name := range names {
		out = append(out, r.tools[name].def)
	}
	return out
}
