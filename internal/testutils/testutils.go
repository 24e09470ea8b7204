package testutils

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// Well-known fixture ids served by the mock Analytics server.
const (
	TestOrgID        = "100001"
	AltOrgID         = "200002"
	TestWorkspaceID  = "17000000001"
	AltWorkspaceID   = "17000000002"
	TestViewID       = "17000000101"
	DashboardViewID  = "17000000102"
	TestJobID        = "28000000001"
	TestAccessToken  = "test-access-token"
	TestRefreshToken = "test-refresh-token"
)

// MockAccountsServer creates a mock OAuth accounts server that exchanges the
// fixture refresh token for the fixture access token.
func MockAccountsServer(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Path != "/oauth/v2/token" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if err := r.ParseForm(); err != nil || r.PostFormValue("refresh_token") != TestRefreshToken {
			w.WriteHeader(http.StatusBadRequest)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "invalid_code"})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": TestAccessToken,
			"expires_in":   3600,
			"token_type":   "Bearer",
		})
	}))
}

// MockAnalyticsServer creates a mock Zoho Analytics API server serving a
// small fixed catalog of organizations, workspaces, views and export jobs.
func MockAnalyticsServer(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		if !strings.HasPrefix(r.Header.Get("Authorization"), "Zoho-oauthtoken ") {
			WriteAPIError(w, http.StatusUnauthorized, 8535, "Invalid OAuth token")
			return
		}

		path := strings.TrimPrefix(r.URL.Path, "/restapi/v2")
		switch {
		case path == "/orgs":
			handleOrgs(w)
		case path == "/workspaces":
			handleWorkspaces(w)
		case path == "/workspaces/"+TestWorkspaceID:
			WriteData(w, map[string]any{"workspaces": map[string]any{
				"workspaceId":   TestWorkspaceID,
				"workspaceName": "Sales Analytics",
				"orgId":         TestOrgID,
			}})
		case path == "/workspaces/"+AltWorkspaceID:
			WriteData(w, map[string]any{"workspaces": map[string]any{
				"workspaceId":   AltWorkspaceID,
				"workspaceName": "Finance Analytics",
				"orgId":         AltOrgID,
			}})
		case path == "/workspaces/"+TestWorkspaceID+"/views":
			handleViews(w)
		case path == "/views/"+TestViewID:
			WriteData(w, map[string]any{"views": map[string]any{
				"viewId":      TestViewID,
				"viewName":    "Orders",
				"viewType":    "Table",
				"orgId":       TestOrgID,
				"workspaceId": TestWorkspaceID,
			}})
		case path == "/bulk/workspaces/"+TestWorkspaceID+"/data":
			WriteData(w, map[string]any{"jobId": TestJobID})
		case path == "/bulk/workspaces/"+AltWorkspaceID+"/data":
			// This workspace belongs to the alternate org; the remote
			// rejects calls made under any other org id.
			if r.Header.Get("ZANALYTICS-ORGID") != AltOrgID {
				WriteAPIError(w, http.StatusBadRequest, 8084, "Workspace is not part of the organization")
				return
			}
			WriteData(w, map[string]any{"jobId": TestJobID})
		case path == "/bulk/workspaces/"+AltWorkspaceID+"/exportjobs/"+TestJobID:
			WriteData(w, map[string]any{"jobId": TestJobID, "jobCode": "1004"})
		case path == "/bulk/workspaces/"+AltWorkspaceID+"/exportjobs/"+TestJobID+"/data":
			w.Header().Set("Content-Type", "text/csv")
			_, _ = w.Write([]byte("Account,Balance\nOps,4100\n"))
		case path == "/bulk/workspaces/"+TestWorkspaceID+"/views/"+DashboardViewID+"/data" && r.Method == http.MethodGet:
			WriteData(w, map[string]any{"jobId": TestJobID})
		case path == "/bulk/workspaces/"+TestWorkspaceID+"/views/"+TestViewID+"/data" && r.Method == http.MethodGet:
			WriteData(w, map[string]any{"jobId": TestJobID})
		case path == "/bulk/workspaces/"+TestWorkspaceID+"/exportjobs/"+TestJobID:
			WriteData(w, map[string]any{"jobId": TestJobID, "jobCode": "1004"})
		case path == "/bulk/workspaces/"+TestWorkspaceID+"/exportjobs/"+TestJobID+"/data":
			w.Header().Set("Content-Type", "text/csv")
			_, _ = w.Write([]byte("Region,Sales\nWest,1200\nEast,900\n"))
		case path == "/workspaces/"+TestWorkspaceID+"/views/"+TestViewID+"/data":
			w.Header().Set("Content-Type", "text/csv")
			_, _ = w.Write([]byte("Region,Sales\nWest,1200\n"))
		case path == "/workspaces/"+TestWorkspaceID+"/views/"+DashboardViewID+"/data":
			WriteAPIError(w, http.StatusBadRequest, 8133, "Dashboards can be exported only through the bulk API")
		case path == "/bulk/workspaces/"+TestWorkspaceID+"/views/"+TestViewID+"/data" && r.Method == http.MethodPost:
			WriteData(w, map[string]any{"importSummary": map[string]any{
				"importType":      "append",
				"totalRowCount":   2,
				"successRowCount": 2,
			}})
		case path == "/workspaces/"+TestWorkspaceID+"/views/"+TestViewID+"/rows":
			handleRows(w, r)
		default:
			WriteAPIError(w, http.StatusNotFound, 7103, "No such resource: "+path)
		}
	}))
}

// WriteData writes a success envelope with the given data payload.
func WriteData(w http.ResponseWriter, data any) {
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status": map[string]any{"isSuccess": true},
		"data":   data,
	})
}

// WriteAPIError writes an Analytics error envelope with the given HTTP
// status and remote error code.
func WriteAPIError(w http.ResponseWriter, status, errorCode int, message string) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status": map[string]any{
			"isSuccess":    false,
			"errorCode":    errorCode,
			"errorMessage": message,
		},
	})
}

func handleOrgs(w http.ResponseWriter) {
	WriteData(w, map[string]any{"orgs": []map[string]any{
		{"orgId": TestOrgID, "orgName": "Acme Corp", "isDefaultOrg": true},
		{"orgId": AltOrgID, "orgName": "Acme Subsidiary"},
	}})
}

func handleWorkspaces(w http.ResponseWriter) {
	WriteData(w, map[string]any{
		"ownedWorkspaces": []map[string]any{
			{"workspaceId": TestWorkspaceID, "workspaceName": "Sales Analytics", "orgId": TestOrgID},
		},
		"sharedWorkspaces": []map[string]any{
			{"workspaceId": AltWorkspaceID, "workspaceName": "Finance Analytics", "orgId": AltOrgID},
		},
	})
}

func handleViews(w http.ResponseWriter) {
	WriteData(w, map[string]any{"views": []map[string]any{
		{"viewId": TestViewID, "viewName": "Orders", "viewType": "Table"},
		{"viewId": DashboardViewID, "viewName": "Sales Overview", "viewType": "Dashboard"},
	}})
}

func handleRows(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		WriteData(w, map[string]any{"columns": map[string]any{"Region": "West", "Sales": 1200}})
	case http.MethodPut:
		WriteData(w, map[string]any{"updatedRows": 3})
	case http.MethodDelete:
		WriteData(w, map[string]any{"deletedRows": 2})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}
