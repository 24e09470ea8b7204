package zoho

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"analytics-mcp-server/internal/types"
)

// ExportWithSQL initiates an asynchronous bulk export of a SQL query result
// and returns the job id to poll.
func (c *Client) ExportWithSQL(ctx context.Context, orgID, workspaceID, sqlQuery, responseFormat string) (string, error) {
	var data struct {
		JobID string `json:"jobId"`
	}
	err := c.call(ctx, request{
		method:   http.MethodGet,
		endpoint: "/bulk/workspaces/" + workspaceID + "/data",
		orgID:    orgID,
		config: map[string]any{
			"sqlQuery":       sqlQuery,
			"responseFormat": responseFormat,
		},
	}, &data)
	if err != nil {
		return "", fmt.Errorf("failed to initiate SQL export: %w", err)
	}
	if data.JobID == "" {
		return "", fmt.Errorf("export initiation returned no job id")
	}
	return data.JobID, nil
}

// ExportView initiates an asynchronous bulk export of a view. Extra export
// options (for example dashboardLayout for dashboard PDFs) are merged into
// the request configuration.
func (c *Client) ExportView(ctx context.Context, orgID, workspaceID, viewID, responseFormat string, extra map[string]any) (string, error) {
	cfg := map[string]any{"responseFormat": responseFormat}
	for k, v := range extra {
		cfg[k] = v
	}
	var data struct {
		JobID string `json:"jobId"`
	}
	err := c.call(ctx, request{
		method:   http.MethodGet,
		endpoint: "/bulk/workspaces/" + workspaceID + "/views/" + viewID + "/data",
		orgID:    orgID,
		config:   cfg,
	}, &data)
	if err != nil {
		return "", fmt.Errorf("failed to initiate view export: %w", err)
	}
	if data.JobID == "" {
		return "", fmt.Errorf("export initiation returned no job id")
	}
	return data.JobID, nil
}

// ExportJobDetails fetches the current status of an asynchronous export job.
func (c *Client) ExportJobDetails(ctx context.Context, orgID, workspaceID, jobID string) (*types.ExportJob, error) {
	var job types.ExportJob
	err := c.call(ctx, request{
		method:   http.MethodGet,
		endpoint: "/bulk/workspaces/" + workspaceID + "/exportjobs/" + jobID,
		orgID:    orgID,
	}, &job)
	if err != nil {
		return nil, fmt.Errorf("failed to get export job %s: %w", jobID, err)
	}
	job.JobID = jobID
	return &job, nil
}

// DownloadExportResult streams the payload of a completed export job into w.
func (c *Client) DownloadExportResult(ctx context.Context, orgID, workspaceID, jobID string, w io.Writer) error {
	err := c.download(ctx, request{
		method:   http.MethodGet,
		endpoint: "/bulk/workspaces/" + workspaceID + "/exportjobs/" + jobID + "/data",
		orgID:    orgID,
	}, w)
	if err != nil {
		return fmt.Errorf("failed to download export job %s: %w", jobID, err)
	}
	return nil
}

// ExportViewData performs a synchronous export of a view into w. Dashboards
// are rejected by the remote system with an error carrying
// types.ErrCodeDashboardAsync; callers fall back to the bulk path.
func (c *Client) ExportViewData(ctx context.Context, orgID, workspaceID, viewID, responseFormat string) ([]byte, error) {
	var buf bytes.Buffer
	err := c.download(ctx, request{
		method:   http.MethodGet,
		endpoint: "/workspaces/" + workspaceID + "/views/" + viewID + "/data",
		orgID:    orgID,
		config:   map[string]any{"responseFormat": responseFormat},
	}, &buf)
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ImportFile uploads file content into a view. importConfig carries the
// remote import options (importType, fileType, autoIdentify, delimiter).
func (c *Client) ImportFile(ctx context.Context, orgID, workspaceID, viewID string, importConfig map[string]any, fileName string, content []byte) (*types.ImportResult, error) {
	var data struct {
		ImportSummary types.ImportResult `json:"importSummary"`
	}
	err := c.call(ctx, request{
		method:   http.MethodPost,
		endpoint: "/bulk/workspaces/" + workspaceID + "/views/" + viewID + "/data",
		orgID:    orgID,
		config:   importConfig,
		upload: &fileUpload{
			fieldName: "FILE",
			fileName:  fileName,
			content:   content,
		},
	}, &data)
	if err != nil {
		return nil, fmt.Errorf("failed to import file into view %s: %w", viewID, err)
	}
	return &data.ImportSummary, nil
}

// ImportRaw imports inline data (a JSON or CSV string) into a view without
// an intermediate file.
func (c *Client) ImportRaw(ctx context.Context, orgID, workspaceID, viewID string, importConfig map[string]any, raw string) (*types.ImportResult, error) {
	form := url.Values{}
	form.Set("DATA", raw)

	var data struct {
		ImportSummary types.ImportResult `json:"importSummary"`
	}
	err := c.call(ctx, request{
		method:   http.MethodPost,
		endpoint: "/bulk/workspaces/" + workspaceID + "/views/" + viewID + "/data",
		orgID:    orgID,
		config:   importConfig,
		form:     form,
	}, &data)
	if err != nil {
		return nil, fmt.Errorf("failed to import data into view %s: %w", viewID, err)
	}
	return &data.ImportSummary, nil
}
