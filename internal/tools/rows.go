package tools

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"analytics-mcp-server/internal/orgs"
)

// AddRowInput carries the row to insert.
type AddRowInput struct {
	WorkspaceID string         `json:"workspace_id" jsonschema:"the workspace containing the table"`
	ViewID      string         `json:"view_id" jsonschema:"the table to insert into"`
	Columns     map[string]any `json:"columns" jsonschema:"column name to value mapping for the new row"`
}

// AddRow inserts a single row into a table.
func (t *Registry) AddRow(ctx context.Context, req *mcp.CallToolRequest, in AddRowInput) (*mcp.CallToolResult, any, error) {
	if in.WorkspaceID == "" || in.ViewID == "" {
		return nil, nil, fmt.Errorf("workspace_id and view_id are required")
	}
	if len(in.Columns) == 0 {
		return nil, nil, fmt.Errorf("columns must not be empty")
	}

	ref := orgs.NewRef(t.cfg.Zoho.OrgID)
	inserted, err := orgs.WithFallback(ctx, t.client, ref, in.WorkspaceID, orgs.EntityWorkspace,
		func(ctx context.Context, orgID string) (map[string]any, error) {
			return t.client.AddRow(ctx, orgID, in.WorkspaceID, in.ViewID, in.Columns)
		})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to add row: %w", err)
	}

	result, err := jsonResult(fmt.Sprintf("Added a row to view %s", in.ViewID), inserted)
	return result, nil, err
}

// UpdateRowsInput carries the new values and the selection criteria.
type UpdateRowsInput struct {
	WorkspaceID string         `json:"workspace_id" jsonschema:"the workspace containing the table"`
	ViewID      string         `json:"view_id" jsonschema:"the table to update"`
	Columns     map[string]any `json:"columns" jsonschema:"column name to new value mapping"`
	Criteria    string         `json:"criteria,omitempty" jsonschema:"selection criteria, e.g. \"Department\" = 'Sales'; all rows when empty"`
}

// UpdateRows updates every row matching the criteria.
func (t *Registry) UpdateRows(ctx context.Context, req *mcp.CallToolRequest, in UpdateRowsInput) (*mcp.CallToolResult, any, error) {
	if in.WorkspaceID == "" || in.ViewID == "" {
		return nil, nil, fmt.Errorf("workspace_id and view_id are required")
	}
	if len(in.Columns) == 0 {
		return nil, nil, fmt.Errorf("columns must not be empty")
	}

	ref := orgs.NewRef(t.cfg.Zoho.OrgID)
	updated, err := orgs.WithFallback(ctx, t.client, ref, in.WorkspaceID, orgs.EntityWorkspace,
		func(ctx context.Context, orgID string) (int64, error) {
			return t.client.UpdateRows(ctx, orgID, in.WorkspaceID, in.ViewID, in.Columns, in.Criteria)
		})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to update rows: %w", err)
	}

	return textResult(fmt.Sprintf("Updated %d rows in view %s", updated, in.ViewID)), nil, nil
}

// DeleteRowsInput carries the selection criteria.
type DeleteRowsInput struct {
	WorkspaceID string `json:"workspace_id" jsonschema:"the workspace containing the table"`
	ViewID      string `json:"view_id" jsonschema:"the table to delete from"`
	Criteria    string `json:"criteria" jsonschema:"selection criteria, e.g. \"Region\" = 'East'"`
}

// DeleteRows deletes every row matching the criteria. An empty criteria is
// rejected to avoid wiping a table by accident.
func (t *Registry) DeleteRows(ctx context.Context, req *mcp.CallToolRequest, in DeleteRowsInput) (*mcp.CallToolResult, any, error) {
	if in.WorkspaceID == "" || in.ViewID == "" {
		return nil, nil, fmt.Errorf("workspace_id and view_id are required")
	}
	if in.Criteria == "" {
		return nil, nil, fmt.Errorf("criteria is required; deleting all rows of a table must be done explicitly in the Analytics UI")
	}

	ref := orgs.NewRef(t.cfg.Zoho.OrgID)
	deleted, err := orgs.WithFallback(ctx, t.client, ref, in.WorkspaceID, orgs.EntityWorkspace,
		func(ctx context.Context, orgID string) (int64, error) {
			return t.client.DeleteRows(ctx, orgID, in.WorkspaceID, in.ViewID, in.Criteria)
		})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to delete rows: %w", err)
	}

	return textResult(fmt.Sprintf("Deleted %d rows from view %s", deleted, in.ViewID)), nil, nil
}
