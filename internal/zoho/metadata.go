package zoho

import (
	"context"
	"fmt"
	"net/http"

	"analytics-mcp-server/internal/types"
)

// Organizations lists all organizations the authenticated account belongs to.
func (c *Client) Organizations(ctx context.Context) ([]types.Organization, error) {
	var data struct {
		Orgs []types.Organization `json:"orgs"`
	}
	err := c.call(ctx, request{
		method:   http.MethodGet,
		endpoint: "/orgs",
	}, &data)
	if err != nil {
		return nil, fmt.Errorf("failed to list organizations: %w", err)
	}
	return data.Orgs, nil
}

// Workspaces lists owned and shared workspaces visible in the given
// organization.
func (c *Client) Workspaces(ctx context.Context, orgID string) (owned, shared []types.Workspace, err error) {
	var data struct {
		OwnedWorkspaces  []types.Workspace `json:"ownedWorkspaces"`
		SharedWorkspaces []types.Workspace `json:"sharedWorkspaces"`
	}
	err = c.call(ctx, request{
		method:   http.MethodGet,
		endpoint: "/workspaces",
		orgID:    orgID,
	}, &data)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list workspaces: %w", err)
	}
	return data.OwnedWorkspaces, data.SharedWorkspaces, nil
}

// WorkspaceDetails fetches a single workspace's metadata by id. Results
// include the owning organization id and are cached.
func (c *Client) WorkspaceDetails(ctx context.Context, workspaceID string) (*types.Workspace, error) {
	cacheKey := "workspace:" + workspaceID
	if cached, found := c.cache.Get(cacheKey); found {
		return cached.(*types.Workspace), nil
	}

	var data struct {
		Workspaces types.Workspace `json:"workspaces"`
	}
	err := c.call(ctx, request{
		method:   http.MethodGet,
		endpoint: "/workspaces/" + workspaceID,
		config:   map[string]any{"withInvolvedMetaInfo": false},
	}, &data)
	if err != nil {
		return nil, fmt.Errorf("failed to get workspace %s: %w", workspaceID, err)
	}

	ws := data.Workspaces
	c.cache.SetDefault(cacheKey, &ws)
	return &ws, nil
}

// Views lists the views of a workspace, optionally filtered server-side by
// view types (e.g. "Table,Pivot").
func (c *Client) Views(ctx context.Context, orgID, workspaceID string, viewTypes []string) ([]types.View, error) {
	cfg := map[string]any{}
	if len(viewTypes) > 0 {
		cfg["viewTypes"] = viewTypes
	}
	var data struct {
		Views []types.View `json:"views"`
	}
	err := c.call(ctx, request{
		method:   http.MethodGet,
		endpoint: "/workspaces/" + workspaceID + "/views",
		orgID:    orgID,
		config:   cfg,
	}, &data)
	if err != nil {
		return nil, fmt.Errorf("failed to list views for workspace %s: %w", workspaceID, err)
	}
	return data.Views, nil
}

// ViewDetails fetches a single view's metadata by id. When withInvolvedMeta
// is false only the minimal metadata is requested and the result is cached;
// full lookups bypass the cache.
func (c *Client) ViewDetails(ctx context.Context, viewID string, withInvolvedMeta bool) (*types.View, error) {
	cacheKey := "view:" + viewID
	if !withInvolvedMeta {
		if cached, found := c.cache.Get(cacheKey); found {
			return cached.(*types.View), nil
		}
	}

	var data struct {
		Views types.View `json:"views"`
	}
	err := c.call(ctx, request{
		method:   http.MethodGet,
		endpoint: "/views/" + viewID,
		config:   map[string]any{"withInvolvedMetaInfo": withInvolvedMeta},
	}, &data)
	if err != nil {
		return nil, fmt.Errorf("failed to get view %s: %w", viewID, err)
	}

	view := data.Views
	if !withInvolvedMeta {
		c.cache.SetDefault(cacheKey, &view)
	}
	return &view, nil
}

// WorkspaceOrgID resolves the organization that owns a workspace.
func (c *Client) WorkspaceOrgID(ctx context.Context, workspaceID string) (string, error) {
	ws, err := c.WorkspaceDetails(ctx, workspaceID)
	if err != nil {
		return "", err
	}
	if ws.OrgID == "" {
		return "", fmt.Errorf("workspace %s has no organization id in its metadata", workspaceID)
	}
	return ws.OrgID, nil
}

// ViewOrgID resolves the organization that owns a view.
func (c *Client) ViewOrgID(ctx context.Context, viewID string) (string, error) {
	view, err := c.ViewDetails(ctx, viewID, false)
	if err != nil {
		return "", err
	}
	if view.OrgID == "" {
		return "", fmt.Errorf("view %s has no organization id in its metadata", viewID)
	}
	return view.OrgID, nil
}
