package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/caldero/toolbridge/internal/chat"
	"github.com/caldero/toolbridge/internal/config"
	"github.com/caldero/toolbridge/internal/httpapi"
	"github.com/caldero/toolbridge/internal/llm"
	"github.com/caldero/toolbridge/internal/monitor"
	"github.com/caldero/toolbridge/internal/toollog"
	"github.com/caldero/toolbridge/internal/tools"
	"github.com/caldero/toolbridge/internal/websearch"
)

var (
	// Version is set via -ldflags at build time.
	Version = "dev"
	// Commit is set via -ldflags at build time.
	Commit = "unknown"
	// BuildTime is set via -ldflags at build time.
	BuildTime = "unknown"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(2)
	}

	switch os.Args[1] {
	case "run":
		runCmd(os.Args[2:])
	case "version":
		fmt.Printf("toolbridge %s (%s) %s\n", Version, Commit, BuildTime)
	default:
		printUsage()
		os.Exit(2)
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `toolbridge

Usage:
  toolbridge run [flags]
  toolbridge version

Commands:
  run       Run the API server using the local config file.
  version   Print build information.

`)
}

func runCmd(args []string) {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	cfgPath := fs.String("config", config.DefaultConfigPath(), "Config file path")
	listen := fs.String("listen", "", "Override listen address from config")
	_ = fs.Parse(args)

	cfg, err := config.Load(filepath.Clean(*cfgPath))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if strings.TrimSpace(*listen) != "" {
		cfg.ListenAddr = *listen
	}

	logger, err := newLogger(strings.TrimSpace(cfg.LogFormat), strings.TrimSpace(cfg.LogLevel))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}

	var audit *toollog.Store
	if strings.TrimSpace(cfg.StateDir) != "" {
		audit, err = toollog.Open(filepath.Join(cfg.StateDir, "toolcalls.db"))
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to open tool audit log: %v\n", err)
			os.Exit(1)
		}
		defer audit.Close()
	}

	mon := monitor.NewService(logger.With("component", "monitor"))

	registry := tools.NewRegistry(tools.Options{
		Log:   logger.With("component", "tools"),
		Audit: audit,
		Search: websearch.Config{
			Provider: cfg.Search.Provider,
			APIKey:   cfg.Search.APIKey,
		},
		Monitor:        mon,
		CommandTimeout: cfg.CommandTimeout(),
	})

	completer, err := llm.NewCompleter(llm.Config{
		Provider: cfg.Model.Provider,
		Model:    cfg.Model.Model,
		APIKey:   cfg.Model.APIKey,
		BaseURL:  cfg.Model.BaseURL,
	}, registry.Definitions(), logger.With("component", "llm"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init model client: %v\n", err)
		os.Exit(1)
	}

	store := chat.NewStore()
	progress := chat.NewProgressTracker()
	engine, err := chat.NewEngine(chat.EngineOptions{
		Log:          logger.With("component", "engine"),
		Store:        store,
		Progress:     progress,
		Dispatcher:   registry,
		Completer:    completer,
		SystemPrompt: cfg.SystemPrompt,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init engine: %v\n", err)
		os.Exit(1)
	}

	server := httpapi.NewServer(httpapi.Options{
		Addr:     cfg.ListenAddr,
		Logger:   logger.With("component", "httpapi"),
		Engine:   engine,
		Store:    store,
		Registry: registry,
		Audit:    audit,
		Monitor:  mon,
		RunsDir:  cfg.RunsDir,
	})

	// Graceful shutdown on SIGINT/SIGTERM.
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-stop
		logger.Info("shutting down")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			logger.Warn("server shutdown failed", "error", err)
		}
		engine.Close()
	}()

	if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		fmt.Fprintf(os.Stderr, "server exited with error: %v\n", err)
		os.Exit(1)
	}
}

func newLogger(format string, level string) (*slog.Logger, error) {
	var h slog.Handler

	var lvl slog.Level
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "", "info":
		lvl = slog.LevelInfo
	case "debug":
		lvl = slog.LevelDebug
	case "warn", "warning":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		return nil, fmt.Errorf("unknown log level: %s", level)
	}

	opts := &slog.HandlerOptions{Level: lvl}

	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", "json":
		h = slog.NewJSONHandler(os.Stdout, opts)
	case "text":
		h = slog.NewTextHandler(os.Stdout, opts)
	default:
		return nil, fmt.Errorf("unknown log format: %s", format)
	}

	return slog.New(h), nil
}
