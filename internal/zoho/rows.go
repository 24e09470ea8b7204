package zoho

import (
	"context"
	"fmt"
	"net/http"
)

// AddRow inserts a single row into a table view and returns the inserted
// column values as reported by the remote system.
func (c *Client) AddRow(ctx context.Context, orgID, workspaceID, viewID string, columns map[string]any) (map[string]any, error) {
	var data struct {
		Columns map[string]any `json:"columns"`
	}
	err := c.call(ctx, request{
		method:   http.MethodPost,
		endpoint: "/workspaces/" + workspaceID + "/views/" + viewID + "/rows",
		orgID:    orgID,
		config:   map[string]any{"columns": columns},
	}, &data)
	if err != nil {
		return nil, fmt.Errorf("failed to add row to view %s: %w", viewID, err)
	}
	return data.Columns, nil
}

// UpdateRows updates all rows of a table view matching criteria and returns
// the number of rows changed. Criteria uses the remote system's SQL-like
// syntax, for example `"Department" = 'Sales'`.
func (c *Client) UpdateRows(ctx context.Context, orgID, workspaceID, viewID string, columns map[string]any, criteria string) (int64, error) {
	cfg := map[string]any{"columns": columns}
	if criteria != "" {
		cfg["criteria"] = criteria
	}
	var data struct {
		UpdatedRows int64 `json:"updatedRows"`
	}
	err := c.call(ctx, request{
		method:   http.MethodPut,
		endpoint: "/workspaces/" + workspaceID + "/views/" + viewID + "/rows",
		orgID:    orgID,
		config:   cfg,
	}, &data)
	if err != nil {
		return 0, fmt.Errorf("failed to update rows in view %s: %w", viewID, err)
	}
	return data.UpdatedRows, nil
}

// DeleteRows deletes all rows of a table view matching criteria and returns
// the number of rows removed.
func (c *Client) DeleteRows(ctx context.Context, orgID, workspaceID, viewID string, criteria string) (int64, error) {
	cfg := map[string]any{}
	if criteria != "" {
		cfg["criteria"] = criteria
	}
	var data struct {
		DeletedRows int64 `json:"deletedRows"`
	}
	err := c.call(ctx, request{
		method:   http.MethodDelete,
		endpoint: "/workspaces/" + workspaceID + "/views/" + viewID + "/rows",
		orgID:    orgID,
		config:   cfg,
	}, &data)
	if err != nil {
		return 0, fmt.Errorf("failed to delete rows from view %s: %w", viewID, err)
	}
	return data.DeletedRows, nil
}
