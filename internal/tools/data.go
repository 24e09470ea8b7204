package tools

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"analytics-mcp-server/internal/jobs"
	"analytics-mcp-server/internal/orgs"
	"analytics-mcp-server/internal/types"
)

// QueryDataInput carries a SQL query to run against a workspace.
type QueryDataInput struct {
	WorkspaceID string `json:"workspace_id" jsonschema:"the workspace to query"`
	SQLQuery    string `json:"sql_query" jsonschema:"the SQL SELECT statement to execute"`
}

// QueryData runs a SQL query through the asynchronous bulk-export pipeline:
// initiate the export, poll the job to completion, download the CSV result
// and return it truncated to the configured row limit. The downloaded file
// is always removed afterwards.
func (t *Registry) QueryData(ctx context.Context, req *mcp.CallToolRequest, in QueryDataInput) (*mcp.CallToolResult, any, error) {
	if in.WorkspaceID == "" || in.SQLQuery == "" {
		return nil, nil, fmt.Errorf("workspace_id and sql_query are required")
	}

	ref := orgs.NewRef(t.cfg.Zoho.OrgID)
	jobID, err := orgs.WithFallback(ctx, t.client, ref, in.WorkspaceID, orgs.EntityWorkspace,
		func(ctx context.Context, orgID string) (string, error) {
			return t.client.ExportWithSQL(ctx, orgID, in.WorkspaceID, in.SQLQuery, "csv")
		})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initiate query: %w", err)
	}

	// The poller reads the holder on each probe so a mid-flight org
	// correction is picked up.
	status := func(ctx context.Context, jobID string) (string, error) {
		job, err := t.client.ExportJobDetails(ctx, ref.OrgID(), in.WorkspaceID, jobID)
		if err != nil {
			return "", err
		}
		return job.JobCode, nil
	}

	failure, err := t.poller.Wait(ctx, status, jobID, jobs.StatusMessages{})
	if err != nil {
		return nil, nil, fmt.Errorf("query job %s: %w", jobID, err)
	}
	if failure != "" {
		return textResult(failure), nil, nil
	}

	resultPath := filepath.Join(t.cfg.Polling.DataDir, "query_"+uuid.NewString()+".csv")
	file, err := os.Create(resultPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create result file: %w", err)
	}
	defer func() { _ = os.Remove(resultPath) }()

	if err := t.client.DownloadExportResult(ctx, ref.OrgID(), in.WorkspaceID, jobID, file); err != nil {
		_ = file.Close()
		return nil, nil, fmt.Errorf("failed to download query result: %w", err)
	}
	if err := file.Close(); err != nil {
		return nil, nil, fmt.Errorf("failed to finalize result file: %w", err)
	}

	csvText, truncated, rows, err := readCSVLimited(resultPath, t.cfg.Polling.QueryRowLimit)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read query result: %w", err)
	}

	text := csvText
	if truncated {
		text = fmt.Sprintf("Result truncated to the first %d rows. Add a LIMIT clause or refine the query to see other rows.\n\n%s", rows, csvText)
	}
	return textResult(text), nil, nil
}

// readCSVLimited returns the header plus at most limit data lines of the
// file, reporting whether more lines were left unread.
func readCSVLimited(path string, limit int) (text string, truncated bool, rows int, err error) {
	file, err := os.Open(path)
	if err != nil {
		return "", false, 0, err
	}
	defer func() { _ = file.Close() }()

	var b strings.Builder
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	line := 0
	for scanner.Scan() {
		if limit > 0 && line > limit {
			truncated = true
			break
		}
		b.WriteString(scanner.Text())
		b.WriteByte('\n')
		line++
	}
	if err := scanner.Err(); err != nil {
		return "", false, 0, err
	}
	if line > 0 {
		rows = line - 1 // minus the header
	}
	return b.String(), truncated, rows, nil
}

// ExportViewInput selects the view and output format.
type ExportViewInput struct {
	WorkspaceID    string `json:"workspace_id" jsonschema:"the workspace containing the view"`
	ViewID         string `json:"view_id" jsonschema:"the view to export"`
	ResponseFormat string `json:"response_format,omitempty" jsonschema:"csv, json or pdf; defaults to csv"`
}

// ExportView exports a view to a file in the data directory. Tables and
// charts use the synchronous endpoint; dashboards are rejected there by the
// remote system and fall back to an asynchronous PDF bulk export.
func (t *Registry) ExportView(ctx context.Context, req *mcp.CallToolRequest, in ExportViewInput) (*mcp.CallToolResult, any, error) {
	if in.WorkspaceID == "" || in.ViewID == "" {
		return nil, nil, fmt.Errorf("workspace_id and view_id are required")
	}
	format := strings.ToLower(in.ResponseFormat)
	if format == "" {
		format = "csv"
	}
	switch format {
	case "csv", "json", "pdf":
	default:
		return nil, nil, fmt.Errorf("unsupported response format %q, expected csv, json or pdf", in.ResponseFormat)
	}

	ref := orgs.NewRef(t.cfg.Zoho.OrgID)
	payload, err := orgs.WithFallback(ctx, t.client, ref, in.ViewID, orgs.EntityView,
		func(ctx context.Context, orgID string) ([]byte, error) {
			return t.client.ExportViewData(ctx, orgID, in.WorkspaceID, in.ViewID, format)
		})
	if err != nil {
		var apiErr *types.AnalyticsError
		if !errors.As(err, &apiErr) || apiErr.ErrorCode != types.ErrCodeDashboardAsync {
			return nil, nil, fmt.Errorf("failed to export view: %w", err)
		}
		if format != "pdf" {
			return textResult(fmt.Sprintf("View %s is a dashboard and can only be exported as PDF. Retry with response_format set to pdf.", in.ViewID)), nil, nil
		}
		var failure string
		payload, failure, err = t.exportDashboard(ctx, ref, in.WorkspaceID, in.ViewID)
		if err != nil {
			return nil, nil, err
		}
		if failure != "" {
			return textResult(failure), nil, nil
		}
	}

	path := filepath.Join(t.cfg.Polling.DataDir, "export_"+uuid.NewString()+"."+format)
	if err := os.WriteFile(path, payload, 0o644); err != nil {
		return nil, nil, fmt.Errorf("failed to write export file: %w", err)
	}

	return textResult(fmt.Sprintf("Exported view %s to %s (%d bytes)", in.ViewID, path, len(payload))), nil, nil
}

// exportDashboard runs the asynchronous PDF bulk export used for dashboards.
// A classified polling failure comes back as a message, not an error.
func (t *Registry) exportDashboard(ctx context.Context, ref *orgs.Ref, workspaceID, viewID string) ([]byte, string, error) {
	jobID, err := orgs.WithFallback(ctx, t.client, ref, viewID, orgs.EntityView,
		func(ctx context.Context, orgID string) (string, error) {
			return t.client.ExportView(ctx, orgID, workspaceID, viewID, "pdf", map[string]any{"dashboardLayout": 1})
		})
	if err != nil {
		return nil, "", fmt.Errorf("failed to initiate dashboard export: %w", err)
	}

	status := func(ctx context.Context, jobID string) (string, error) {
		job, err := t.client.ExportJobDetails(ctx, ref.OrgID(), workspaceID, jobID)
		if err != nil {
			return "", err
		}
		return job.JobCode, nil
	}

	failure, err := t.poller.Wait(ctx, status, jobID, jobs.StatusMessages{
		Error: "Dashboard export failed on the server. Check that the dashboard renders correctly and try again.",
	})
	if err != nil {
		return nil, "", fmt.Errorf("dashboard export job %s: %w", jobID, err)
	}
	if failure != "" {
		return nil, failure, nil
	}

	var buf bytes.Buffer
	if err := t.client.DownloadExportResult(ctx, ref.OrgID(), workspaceID, jobID, &buf); err != nil {
		return nil, "", fmt.Errorf("failed to download dashboard export: %w", err)
	}
	return buf.Bytes(), "", nil
}

// ImportDataInput carries the data to import and its destination.
type ImportDataInput struct {
	WorkspaceID  string `json:"workspace_id" jsonschema:"the workspace containing the table"`
	ViewID       string `json:"view_id" jsonschema:"the table to import into"`
	FilePath     string `json:"file_path,omitempty" jsonschema:"path of a local CSV or JSON file to import; mutually exclusive with data"`
	Data         string `json:"data,omitempty" jsonschema:"inline CSV or JSON content to import; mutually exclusive with file_path"`
	FileType     string `json:"file_type,omitempty" jsonschema:"csv or json; inferred from the file extension when omitted"`
	ImportType   string `json:"import_type,omitempty" jsonschema:"append, truncateadd or updateadd; defaults to append"`
	AutoIdentify *bool  `json:"auto_identify,omitempty" jsonschema:"let the server detect column types; defaults to true"`
}

// ImportData imports rows into a table from a local file or inline content.
// Remote URLs are rejected; the server only reads files it can reach on its
// own filesystem.
func (t *Registry) ImportData(ctx context.Context, req *mcp.CallToolRequest, in ImportDataInput) (*mcp.CallToolResult, any, error) {
	if in.WorkspaceID == "" || in.ViewID == "" {
		return nil, nil, fmt.Errorf("workspace_id and view_id are required")
	}
	if (in.FilePath == "") == (in.Data == "") {
		return nil, nil, fmt.Errorf("exactly one of file_path or data is required")
	}

	fileType := strings.ToLower(in.FileType)
	var content []byte
	var fileName string

	if in.FilePath != "" {
		if strings.HasPrefix(in.FilePath, "http://") || strings.HasPrefix(in.FilePath, "https://") {
			return nil, nil, fmt.Errorf("remote URLs are not supported; download the file first and pass a local path")
		}
		data, err := os.ReadFile(in.FilePath)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to read import file: %w", err)
		}
		content = data
		fileName = filepath.Base(in.FilePath)
		if fileType == "" {
			fileType = strings.TrimPrefix(filepath.Ext(in.FilePath), ".")
		}
	} else {
		content = []byte(in.Data)
		if fileType == "" {
			if strings.HasPrefix(strings.TrimSpace(in.Data), "[") || strings.HasPrefix(strings.TrimSpace(in.Data), "{") {
				fileType = "json"
			} else {
				fileType = "csv"
			}
		}
		fileName = "inline." + fileType
	}

	fileType = strings.ToLower(fileType)
	if fileType != "csv" && fileType != "json" {
		return nil, nil, fmt.Errorf("unsupported file type %q, expected csv or json", fileType)
	}

	importType := in.ImportType
	if importType == "" {
		importType = "append"
	}
	autoIdentify := "true"
	if in.AutoIdentify != nil && !*in.AutoIdentify {
		autoIdentify = "false"
	}

	importConfig := map[string]any{
		"importType":   importType,
		"fileType":     fileType,
		"autoIdentify": autoIdentify,
	}
	if fileType == "csv" {
		// 0 selects the comma delimiter on the remote side
		importConfig["delimiter"] = 0
	}

	ref := orgs.NewRef(t.cfg.Zoho.OrgID)
	summary, err := orgs.WithFallback(ctx, t.client, ref, in.WorkspaceID, orgs.EntityWorkspace,
		func(ctx context.Context, orgID string) (*types.ImportResult, error) {
			if in.FilePath != "" {
				return t.client.ImportFile(ctx, orgID, in.WorkspaceID, in.ViewID, importConfig, fileName, content)
			}
			return t.client.ImportRaw(ctx, orgID, in.WorkspaceID, in.ViewID, importConfig, in.Data)
		})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to import data: %w", err)
	}

	result, err := jsonResult(fmt.Sprintf("Imported %d of %d rows into view %s", summary.SuccessRowCount, summary.TotalRowCount, in.ViewID), summary)
	return result, nil, err
}
