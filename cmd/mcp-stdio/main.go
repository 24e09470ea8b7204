// Command mcp-stdio runs the Analytics MCP server over stdin/stdout for
// clients that spawn the server as a subprocess. All logging goes to stderr
// so it cannot corrupt the protocol stream.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"analytics-mcp-server/internal/config"
	"analytics-mcp-server/internal/server"
	"analytics-mcp-server/internal/tools"
	"analytics-mcp-server/internal/zoho"
)

func main() {
	configPath := flag.String("config", "", "Path to configuration file")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if os.Getenv("CONFIG_FILE") == "" && *configPath != "" {
		_ = os.Setenv("CONFIG_FILE", *configPath)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	client, err := zoho.NewClient(cfg.Zoho, cfg.Cache)
	if err != nil {
		slog.Error("Failed to create Analytics client", "error", err)
		os.Exit(1)
	}

	mcpServer := mcp.NewServer(&mcp.Implementation{Name: server.Name, Version: server.Version}, nil)
	tools.NewRegistry(client, cfg).Register(mcpServer)

	slog.Info("Starting Analytics MCP server on stdio")
	if err := mcpServer.Run(context.Background(), &mcp.StdioTransport{}); err != nil {
		slog.Error("Server error", "error", err)
		os.Exit(1)
	}
}
