// Command test-client is a small smoke-test client for a running Analytics
// MCP server: it checks /health, lists the registered tools and optionally
// invokes one with JSON arguments.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

func main() {
	var (
		serverURL = flag.String("url", "http://localhost:4000", "MCP server base URL")
		tool      = flag.String("tool", "", "tool to invoke after listing, e.g. list_organizations")
		args      = flag.String("args", "{}", "JSON arguments for the tool invocation")
	)
	flag.Parse()

	if err := godotenv.Load(); err == nil {
		fmt.Println("Loaded environment from .env")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	if err := checkHealth(ctx, *serverURL); err != nil {
		fmt.Fprintf(os.Stderr, "health check failed: %v\n", err)
		os.Exit(1)
	}

	client := mcp.NewClient(&mcp.Implementation{Name: "analytics-test-client", Version: "1.0.0"}, nil)
	session, err := client.Connect(ctx, &mcp.StreamableClientTransport{Endpoint: *serverURL + "/mcp"}, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to connect: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = session.Close() }()

	toolList, err := session.ListTools(ctx, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to list tools: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Server exposes %d tools:\n", len(toolList.Tools))
	for _, t := range toolList.Tools {
		fmt.Printf("  %-20s %s\n", t.Name, t.Description)
	}

	if *tool == "" {
		return
	}

	var arguments map[string]any
	if err := json.Unmarshal([]byte(*args), &arguments); err != nil {
		fmt.Fprintf(os.Stderr, "invalid -args JSON: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("\nCalling %s...\n", *tool)
	result, err := session.CallTool(ctx, &mcp.CallToolParams{Name: *tool, Arguments: arguments})
	if err != nil {
		fmt.Fprintf(os.Stderr, "tool call failed: %v\n", err)
		os.Exit(1)
	}
	for _, content := range result.Content {
		if text, ok := content.(*mcp.TextContent); ok {
			fmt.Println(text.Text)
		}
	}
}

func checkHealth(ctx context.Context, baseURL string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	body, _ := io.ReadAll(resp.Body)
	fmt.Printf("Health: %s %s\n", resp.Status, string(body))
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return nil
}
