package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"analytics-mcp-server/internal/config"
	"analytics-mcp-server/internal/persistence"
	"analytics-mcp-server/internal/server"
	"analytics-mcp-server/internal/tracing"
	"analytics-mcp-server/internal/zoho"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	setupLogging(cfg.Logging)

	// Setup graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracing, err := tracing.Setup(ctx, cfg.Tracing, server.Name, server.Version)
	if err != nil {
		slog.Error("Failed to setup tracing", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			slog.Warn("Failed to flush traces", "error", err)
		}
	}()

	// Create Zoho Analytics client
	client, err := zoho.NewClient(cfg.Zoho, cfg.Cache)
	if err != nil {
		slog.Error("Failed to create Analytics client", "error", err)
		os.Exit(1)
	}

	// Create storage provider
	provider, err := persistence.New(cfg.Storage)
	if err != nil {
		slog.Error("Failed to create storage provider", "error", err)
		os.Exit(1)
	}
	defer func() { _ = provider.Close() }()

	// Create MCP server
	mcpServer, err := server.NewMCPServer(cfg, client, provider)
	if err != nil {
		slog.Error("Failed to create MCP server", "error", err)
		os.Exit(1)
	}

	// Handle shutdown signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		slog.Info("Received shutdown signal, gracefully shutting down...")
		cancel()
	}()

	// Start server
	slog.Info("Starting Zoho Analytics MCP Server", "version", server.Version)
	if err := mcpServer.Run(ctx); err != nil {
		slog.Error("Server error", "error", err)
		os.Exit(1)
	}

	slog.Info("Server shutdown complete")
}

// setupLogging installs the configured slog handler as the default logger.
func setupLogging(cfg config.LoggingConfig) {
	level := slog.LevelInfo
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	var handler slog.Handler
	if strings.ToLower(cfg.Format) == "text" {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	} else {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	}
	slog.SetDefault(slog.New(handler))
}
