package tools

// Package tools exposes the Zoho Analytics operations as MCP tools. Every
// workspace- or view-scoped tool runs its remote calls under the
// organization-fallback wrapper so entities owned by a different
// organization than the configured default are still reachable.

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"analytics-mcp-server/internal/config"
	"analytics-mcp-server/internal/jobs"
	"analytics-mcp-server/internal/zoho"
)

var (
	toolInvocations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "analytics_mcp_tool_invocations_total",
		Help: "Tool invocations by tool name and outcome.",
	}, []string{"tool", "outcome"})

	toolDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "analytics_mcp_tool_duration_seconds",
		Help:    "Tool invocation latency in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"tool"})
)

// Registry contains all the MCP tools
type Registry struct {
	client *zoho.Client
	poller *jobs.Poller
	cfg    *config.Config
}

// NewRegistry creates a new tool registry
func NewRegistry(client *zoho.Client, cfg *config.Config) *Registry {
	return &Registry{
		client: client,
		cfg:    cfg,
		poller: jobs.New(
			jobs.WithInterval(cfg.Polling.Interval),
			jobs.WithQueueTimeout(cfg.Polling.QueueTimeout),
			jobs.WithExecutionTimeout(cfg.Polling.ExecutionTimeout),
		),
	}
}

// Register adds every tool to the MCP server.
func (t *Registry) Register(server *mcp.Server) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_organizations",
		Description: "List all Zoho Analytics organizations the authenticated account belongs to.",
	}, instrument("list_organizations", t.ListOrganizations))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_workspaces",
		Description: "List owned and shared Zoho Analytics workspaces, optionally filtered by a name substring.",
	}, instrument("list_workspaces", t.ListWorkspaces))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_views",
		Description: "List the views (tables, charts, dashboards) of a workspace.",
	}, instrument("list_views", t.ListViews))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_view_details",
		Description: "Get metadata for a single view by id.",
	}, instrument("get_view_details", t.GetViewDetails))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "query_data",
		Description: "Run a SQL query against a workspace and return the result rows as CSV. Large results are truncated.",
	}, instrument("query_data", t.QueryData))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "export_view",
		Description: "Export a view to a file (csv, json or pdf). Dashboards are exported as PDF through the bulk API.",
	}, instrument("export_view", t.ExportView))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "import_data",
		Description: "Import CSV or JSON data into a table from a local file or an inline string.",
	}, instrument("import_data", t.ImportData))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "add_row",
		Description: "Insert a single row into a table.",
	}, instrument("add_row", t.AddRow))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "update_rows",
		Description: "Update the rows of a table matching a criteria expression.",
	}, instrument("update_rows", t.UpdateRows))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "delete_rows",
		Description: "Delete the rows of a table matching a criteria expression.",
	}, instrument("delete_rows", t.DeleteRows))
}

// instrument wraps a typed tool handler with invocation metrics and logging.
func instrument[In any](name string, h func(context.Context, *mcp.CallToolRequest, In) (*mcp.CallToolResult, any, error)) func(context.Context, *mcp.CallToolRequest, In) (*mcp.CallToolResult, any, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, in In) (*mcp.CallToolResult, any, error) {
		start := time.Now()
		result, out, err := h(ctx, req, in)

		outcome := "success"
		if err != nil {
			outcome = "error"
			slog.Error("Tool invocation failed", "tool", name, "error", err)
		}
		toolInvocations.WithLabelValues(name, outcome).Inc()
		toolDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())

		return result, out, err
	}
}

// textResult wraps a plain string as a tool result.
func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}
}

// jsonResult marshals v as indented JSON, prefixed with a one-line summary.
func jsonResult(summary string, v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal response: %w", err)
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: summary},
			&mcp.TextContent{Text: string(data)},
		},
	}, nil
}
