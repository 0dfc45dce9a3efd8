package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/WojciechxFalkowski/bot-plemiona-sub000/internal/api"
	"github.com/WojciechxFalkowski/bot-plemiona-sub000/internal/automation"
	"github.com/WojciechxFalkowski/bot-plemiona-sub000/internal/config"
	"github.com/WojciechxFalkowski/bot-plemiona-sub000/internal/core"
	"github.com/WojciechxFalkowski/bot-plemiona-sub000/internal/logging"
	plemionamcp "github.com/WojciechxFalkowski/bot-plemiona-sub000/internal/mcp"
	"github.com/WojciechxFalkowski/bot-plemiona-sub000/internal/metrics"
	"github.com/WojciechxFalkowski/bot-plemiona-sub000/internal/notify"
	"github.com/WojciechxFalkowski/bot-plemiona-sub000/internal/store"
)

func main() {
	cfg, err := config.Parse()
	if err != nil {
		log.Fatalf("failed to parse config: %v", err)
	}

	// In MCP mode stdout carries the protocol stream.
	var logger *slog.Logger
	if cfg.Mode == "mcp" {
		logger = logging.NewWithWriter(cfg.LogLevel, os.Stderr)
	} else {
		logger = logging.New(cfg.LogLevel)
	}

	baseCtx := context.Background()
	storeInst, err := store.Open(baseCtx, cfg.StateDir, logger)
	if err != nil {
		logger.Error("open store", "err", err)
		os.Exit(1)
	}
	defer storeInst.DB.Close()

	ops, err := automation.New(cfg.Automation.URL, cfg.Automation.Timeout, logger)
	if err != nil {
		logger.Error("create automation client", "err", err)
		os.Exit(1)
	}

	var notifier notify.Notifier = &notify.NoOpNotifier{}
	if cfg.Notification.Bark.Enabled && cfg.Notification.Bark.URL != "" {
		bark, err := notify.NewBarkNotifier(cfg.Notification.Bark.URL)
		if err != nil {
			logger.Error("create bark notifier", "err", err)
			os.Exit(1)
		}
		notifier = bark
	}
	activityLog := notify.NewActivityNotifier(storeInst, notifier, logger)

	collector := metrics.NewCollector()
	dispatcher := core.NewDispatcher(ops, storeInst, activityLog, collector, core.SystemClock, logger)
	policy := core.NewIntervalPolicy(storeInst, logger)

	orch := core.New(core.Config{
		MonitorInterval: cfg.Orchestrator.MonitorInterval,
	}, storeInst, storeInst, dispatcher, policy, core.SystemClock, collector, logger)

	ctx, cancel := context.WithCancel(baseCtx)
	defer cancel()

	if cfg.Orchestrator.AutoStart {
		if err := orch.StartMonitoring(ctx); err != nil {
			logger.Error("start monitoring", "err", err)
		}
	}

	mcpServer := plemionamcp.NewMCPServer(storeInst, orch, logger)

	switch cfg.Mode {
	case "mcp":
		runMCPMode(mcpServer, orch, logger, cancel)
	default:
		runHTTPMode(ctx, cfg, storeInst, orch, mcpServer, collector, logger)
	}
}

// runHTTPMode starts the HTTP server and blocks until a signal or a
// server failure, then shuts everything down within the grace period.
func runHTTPMode(ctx context.Context, cfg *config.Config, st *store.Store, orch *core.Orchestrator, mcpServer *plemionamcp.MCPServer, collector *metrics.Collector, logger *slog.Logger) {
	server, err := api.NewServer(ctx, cfg.Server.Addr, cfg.Server.AuthToken, st, orch, mcpServer.Handler(), collector.Handler(), logger)
	if err != nil {
		logger.Error("create server", "err", err)
		os.Exit(1)
	}

	serverErr := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigs:
		logger.Info("received signal", "signal", sig.String())
	case err := <-serverErr:
		logger.Error("server error", "err", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownGrace)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", "err", err)
	}

	orch.Close()
	logger.Info("shutdown complete")
}

// runMCPMode serves the MCP protocol on stdio.
func runMCPMode(mcpServer *plemionamcp.MCPServer, orch *core.Orchestrator, logger *slog.Logger, cancel context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigs
		logger.Info("received signal, shutting down...")
		orch.Close()
		cancel()
	}()

	if err := mcpServer.Run(); err != nil {
		logger.Error("mcp server error", "err", err)
		os.Exit(1)
	}
}
