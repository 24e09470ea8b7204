package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"analytics-mcp-server/internal/orgs"
	"analytics-mcp-server/internal/types"
)

// ListOrganizationsInput has no parameters.
type ListOrganizationsInput struct{}

// ListOrganizations lists all organizations of the authenticated account.
func (t *Registry) ListOrganizations(ctx context.Context, req *mcp.CallToolRequest, in ListOrganizationsInput) (*mcp.CallToolResult, any, error) {
	organizations, err := t.client.Organizations(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list organizations: %w", err)
	}

	result, err := jsonResult(fmt.Sprintf("Found %d organizations", len(organizations)), organizations)
	return result, nil, err
}

// ListWorkspacesInput selects and filters the workspace listing.
type ListWorkspacesInput struct {
	Filter string `json:"filter,omitempty" jsonschema:"case-insensitive substring matched against workspace names"`
}

// ListWorkspaces lists owned and shared workspaces. The listing is capped;
// when the cap is hit the caller is asked to narrow the filter.
func (t *Registry) ListWorkspaces(ctx context.Context, req *mcp.CallToolRequest, in ListWorkspacesInput) (*mcp.CallToolResult, any, error) {
	owned, shared, err := t.client.Workspaces(ctx, t.cfg.Zoho.OrgID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list workspaces: %w", err)
	}

	for i := range owned {
		owned[i].Owned = true
	}

	all := append(owned, shared...)
	if in.Filter != "" {
		needle := strings.ToLower(in.Filter)
		filtered := all[:0]
		for _, ws := range all {
			if strings.Contains(strings.ToLower(ws.WorkspaceName), needle) {
				filtered = append(filtered, ws)
			}
		}
		all = filtered
	}

	total := len(all)
	truncated := false
	if limit := t.cfg.Polling.WorkspaceLimit; limit > 0 && total > limit {
		all = all[:limit]
		truncated = true
	}

	summary := fmt.Sprintf("Found %d workspaces", total)
	if truncated {
		summary = fmt.Sprintf("Found %d workspaces, showing the first %d. Refine your search with the filter parameter to narrow the results.", total, len(all))
	}

	result, err := jsonResult(summary, all)
	return result, nil, err
}

// ListViewsInput selects the workspace and optional view-type filter.
type ListViewsInput struct {
	WorkspaceID string   `json:"workspace_id" jsonschema:"the workspace whose views to list"`
	ViewTypes   []string `json:"view_types,omitempty" jsonschema:"view types to include, e.g. Table, Pivot, Chart, Dashboard; all types when empty"`
}

// ListViews lists the views of a workspace, retrying under the corrected
// organization when the workspace belongs to a different one.
func (t *Registry) ListViews(ctx context.Context, req *mcp.CallToolRequest, in ListViewsInput) (*mcp.CallToolResult, any, error) {
	if in.WorkspaceID == "" {
		return nil, nil, fmt.Errorf("workspace_id is required")
	}

	ref := orgs.NewRef(t.cfg.Zoho.OrgID)
	views, err := orgs.WithFallback(ctx, t.client, ref, in.WorkspaceID, orgs.EntityWorkspace,
		func(ctx context.Context, orgID string) ([]types.View, error) {
			return t.client.Views(ctx, orgID, in.WorkspaceID, in.ViewTypes)
		})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list views: %w", err)
	}

	total := len(views)
	truncated := false
	if limit := t.cfg.Polling.ViewListSize; limit > 0 && total > limit {
		views = views[:limit]
		truncated = true
	}

	summary := fmt.Sprintf("Found %d views in workspace %s", total, in.WorkspaceID)
	if truncated {
		summary = fmt.Sprintf("Found %d views in workspace %s, showing the first %d. Use view_types to narrow the results.", total, in.WorkspaceID, len(views))
	}

	result, err := jsonResult(summary, views)
	return result, nil, err
}

// GetViewDetailsInput selects the view.
type GetViewDetailsInput struct {
	ViewID               string `json:"view_id" jsonschema:"the view to describe"`
	WithInvolvedMetadata bool   `json:"with_involved_metadata,omitempty" jsonschema:"include related table and column metadata"`
}

// GetViewDetails fetches metadata for a single view.
func (t *Registry) GetViewDetails(ctx context.Context, req *mcp.CallToolRequest, in GetViewDetailsInput) (*mcp.CallToolResult, any, error) {
	if in.ViewID == "" {
		return nil, nil, fmt.Errorf("view_id is required")
	}

	view, err := t.client.ViewDetails(ctx, in.ViewID, in.WithInvolvedMetadata)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get view details: %w", err)
	}

	result, err := jsonResult(fmt.Sprintf("View %s (%s)", view.ViewName, view.ViewType), view)
	return result, nil, err
}
