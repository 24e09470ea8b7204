package types

import "fmt"

// AnalyticsError represents an error response from the Zoho Analytics API.
// ErrorCode carries the remote numeric code; it drives retry classification
// and must be preserved exactly as received.
type AnalyticsError struct {
	Message    string `json:"errorMessage"`
	ErrorCode  int    `json:"errorCode"`
	StatusCode int    `json:"status_code"`
}

func (e *AnalyticsError) Error() string {
	if e.ErrorCode != 0 {
		return fmt.Sprintf("analytics API error %d: %s", e.ErrorCode, e.Message)
	}
	return e.Message
}

// Remote bulk-job status codes. The remote system is the sole source of truth
// for a job's phase; these literals are the integration contract.
const (
	JobNotInitiated = "1001"
	JobInProgress   = "1002"
	JobError        = "1003"
	JobCompleted    = "1004"
)

// Error codes the remote system uses to signal that an entity belongs to a
// different organization than the one assumed by the caller, plus the code
// returned when a dashboard is exported through the synchronous endpoint.
const (
	ErrCodeOrgMismatch       = 8084
	ErrCodeWorkspaceNotInOrg = 7387
	ErrCodeDashboardAsync    = 8133
)

// Organization represents a Zoho Analytics organization.
type Organization struct {
	OrgID     string `json:"orgId"`
	OrgName   string `json:"orgName"`
	IsDefault bool   `json:"isDefaultOrg,omitempty"`
}

// Workspace represents a Zoho Analytics workspace.
type Workspace struct {
	WorkspaceID   string `json:"workspaceId"`
	WorkspaceName string `json:"workspaceName"`
	OrgID         string `json:"orgId"`
	WorkspaceDesc string `json:"workspaceDesc,omitempty"`
	CreatedTime   string `json:"createdTime,omitempty"`
	Owned         bool   `json:"owned"`
}

// View represents a view (table, chart, dashboard, ...) inside a workspace.
type View struct {
	ViewID      string `json:"viewId"`
	ViewName    string `json:"viewName"`
	ViewType    string `json:"viewType"`
	OrgID       string `json:"orgId,omitempty"`
	WorkspaceID string `json:"workspaceId,omitempty"`
	Description string `json:"viewDesc,omitempty"`
}

// ExportJob is the remote system's view of one asynchronous bulk job.
type ExportJob struct {
	JobID   string `json:"jobId"`
	JobCode string `json:"jobCode"`
	Detail  string `json:"jobDetail,omitempty"`
}

// ImportResult summarizes a completed data import.
type ImportResult struct {
	ImportType      string `json:"importType,omitempty"`
	TotalRowCount   int64  `json:"totalRowCount,omitempty"`
	SuccessRowCount int64  `json:"successRowCount,omitempty"`
	Warnings        int64  `json:"warnings,omitempty"`
	ImportSummary   string `json:"importSummary,omitempty"`
}

// User represents an authenticated caller on the HTTP surface.
type User struct {
	Email    string `json:"email"`
	ClientID string `json:"client_id,omitempty"`
	Scope    string `json:"scope,omitempty"`
}
