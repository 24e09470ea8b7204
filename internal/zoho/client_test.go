package zoho

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"analytics-mcp-server/internal/config"
	"analytics-mcp-server/internal/testutils"
	"analytics-mcp-server/internal/types"
)

func newTestClient(t *testing.T, accountsURL, analyticsURL string) *Client {
	t.Helper()
	client, err := NewClient(config.ZohoConfig{
		ClientID:           "test-client-id",
		ClientSecret:       "test-client-secret",
		RefreshToken:       testutils.TestRefreshToken,
		AccountsServerURL:  accountsURL,
		AnalyticsServerURL: analyticsURL,
		Timeout:            5 * time.Second,
		RateLimit:          config.ClientRateLimit{RequestsPerSecond: 1000, Burst: 1000},
		Retry:              config.RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond},
	}, config.CacheConfig{TTL: time.Minute, CleanupInterval: time.Minute})
	require.NoError(t, err)
	return client
}

func TestNewClientValidation(t *testing.T) {
	_, err := NewClient(config.ZohoConfig{}, config.CacheConfig{})
	assert.Error(t, err)

	_, err = NewClient(config.ZohoConfig{
		ClientID:     "id",
		ClientSecret: "secret",
		RefreshToken: "token",
	}, config.CacheConfig{})
	assert.Error(t, err)
}

func TestOrganizations(t *testing.T) {
	accounts := testutils.MockAccountsServer(t)
	defer accounts.Close()
	analytics := testutils.MockAnalyticsServer(t)
	defer analytics.Close()

	client := newTestClient(t, accounts.URL, analytics.URL)

	orgs, err := client.Organizations(context.Background())
	require.NoError(t, err)
	require.Len(t, orgs, 2)
	assert.Equal(t, testutils.TestOrgID, orgs[0].OrgID)
	assert.True(t, orgs[0].IsDefault)
	assert.Equal(t, "Acme Subsidiary", orgs[1].OrgName)
}

func TestWorkspaces(t *testing.T) {
	accounts := testutils.MockAccountsServer(t)
	defer accounts.Close()
	analytics := testutils.MockAnalyticsServer(t)
	defer analytics.Close()

	client := newTestClient(t, accounts.URL, analytics.URL)

	owned, shared, err := client.Workspaces(context.Background(), testutils.TestOrgID)
	require.NoError(t, err)
	require.Len(t, owned, 1)
	require.Len(t, shared, 1)
	assert.Equal(t, "Sales Analytics", owned[0].WorkspaceName)
	assert.Equal(t, testutils.AltOrgID, shared[0].OrgID)
}

func TestWorkspaceDetailsCached(t *testing.T) {
	accounts := testutils.MockAccountsServer(t)
	defer accounts.Close()

	var hits atomic.Int32
	analytics := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		testutils.WriteData(w, map[string]any{"workspaces": map[string]any{
			"workspaceId":   testutils.TestWorkspaceID,
			"workspaceName": "Sales Analytics",
			"orgId":         testutils.TestOrgID,
		}})
	}))
	defer analytics.Close()

	client := newTestClient(t, accounts.URL, analytics.URL)

	for i := 0; i < 3; i++ {
		ws, err := client.WorkspaceDetails(context.Background(), testutils.TestWorkspaceID)
		require.NoError(t, err)
		assert.Equal(t, testutils.TestOrgID, ws.OrgID)
	}
	assert.Equal(t, int32(1), hits.Load(), "repeated lookups should be served from cache")
}

func TestViewDetails(t *testing.T) {
	accounts := testutils.MockAccountsServer(t)
	defer accounts.Close()
	analytics := testutils.MockAnalyticsServer(t)
	defer analytics.Close()

	client := newTestClient(t, accounts.URL, analytics.URL)

	view, err := client.ViewDetails(context.Background(), testutils.TestViewID, false)
	require.NoError(t, err)
	assert.Equal(t, "Orders", view.ViewName)
	assert.Equal(t, "Table", view.ViewType)
	assert.Equal(t, testutils.TestOrgID, view.OrgID)
}

func TestOrgIDResolution(t *testing.T) {
	accounts := testutils.MockAccountsServer(t)
	defer accounts.Close()
	analytics := testutils.MockAnalyticsServer(t)
	defer analytics.Close()

	client := newTestClient(t, accounts.URL, analytics.URL)

	orgID, err := client.WorkspaceOrgID(context.Background(), testutils.AltWorkspaceID)
	require.NoError(t, err)
	assert.Equal(t, testutils.AltOrgID, orgID)

	orgID, err = client.ViewOrgID(context.Background(), testutils.TestViewID)
	require.NoError(t, err)
	assert.Equal(t, testutils.TestOrgID, orgID)
}

func TestExportLifecycle(t *testing.T) {
	accounts := testutils.MockAccountsServer(t)
	defer accounts.Close()
	analytics := testutils.MockAnalyticsServer(t)
	defer analytics.Close()

	client := newTestClient(t, accounts.URL, analytics.URL)
	ctx := context.Background()

	jobID, err := client.ExportWithSQL(ctx, testutils.TestOrgID, testutils.TestWorkspaceID, "SELECT * FROM Orders", "csv")
	require.NoError(t, err)
	assert.Equal(t, testutils.TestJobID, jobID)

	job, err := client.ExportJobDetails(ctx, testutils.TestOrgID, testutils.TestWorkspaceID, jobID)
	require.NoError(t, err)
	assert.Equal(t, types.JobCompleted, job.JobCode)

	var buf bytes.Buffer
	err = client.DownloadExportResult(ctx, testutils.TestOrgID, testutils.TestWorkspaceID, jobID, &buf)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "Region,Sales")
}

func TestExportViewDataDashboardRejected(t *testing.T) {
	accounts := testutils.MockAccountsServer(t)
	defer accounts.Close()
	analytics := testutils.MockAnalyticsServer(t)
	defer analytics.Close()

	client := newTestClient(t, accounts.URL, analytics.URL)

	_, err := client.ExportViewData(context.Background(), testutils.TestOrgID, testutils.TestWorkspaceID, testutils.DashboardViewID, "csv")
	require.Error(t, err)

	var apiErr *types.AnalyticsError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, types.ErrCodeDashboardAsync, apiErr.ErrorCode)
}

func TestErrorCodePreserved(t *testing.T) {
	accounts := testutils.MockAccountsServer(t)
	defer accounts.Close()

	analytics := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		testutils.WriteAPIError(w, http.StatusBadRequest, types.ErrCodeOrgMismatch, "View not part of the organization")
	}))
	defer analytics.Close()

	client := newTestClient(t, accounts.URL, analytics.URL)

	_, err := client.ViewDetails(context.Background(), "999", false)
	require.Error(t, err)

	var apiErr *types.AnalyticsError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, types.ErrCodeOrgMismatch, apiErr.ErrorCode)
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Contains(t, apiErr.Message, "not part of the organization")
}

func TestTokenRefreshedOnceAndReplayed(t *testing.T) {
	var mints atomic.Int32
	accounts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mints.Add(1)
		_ = r.ParseForm()
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"token-` + string(rune('0'+mints.Load())) + `"}`))
	}))
	defer accounts.Close()

	var apiCalls atomic.Int32
	analytics := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Reject the first token as expired, accept everything after
		if apiCalls.Add(1) == 1 {
			testutils.WriteAPIError(w, http.StatusUnauthorized, 8535, "OAuth token expired")
			return
		}
		testutils.WriteData(w, map[string]any{"orgs": []map[string]any{
			{"orgId": testutils.TestOrgID, "orgName": "Acme Corp"},
		}})
	}))
	defer analytics.Close()

	client := newTestClient(t, accounts.URL, analytics.URL)
	client.refreshToken = "anything"

	orgs, err := client.Organizations(context.Background())
	require.NoError(t, err)
	require.Len(t, orgs, 1)
	assert.Equal(t, int32(2), mints.Load(), "expiry should mint exactly one replacement token")
	assert.Equal(t, int32(2), apiCalls.Load(), "request should be replayed exactly once")
}

func TestRetryOnServerError(t *testing.T) {
	accounts := testutils.MockAccountsServer(t)
	defer accounts.Close()

	var apiCalls atomic.Int32
	analytics := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if apiCalls.Add(1) < 3 {
			testutils.WriteAPIError(w, http.StatusInternalServerError, 0, "internal error")
			return
		}
		testutils.WriteData(w, map[string]any{"orgs": []map[string]any{
			{"orgId": testutils.TestOrgID, "orgName": "Acme Corp"},
		}})
	}))
	defer analytics.Close()

	client := newTestClient(t, accounts.URL, analytics.URL)

	orgs, err := client.Organizations(context.Background())
	require.NoError(t, err)
	require.Len(t, orgs, 1)
	assert.Equal(t, int32(3), apiCalls.Load())
}

func TestClientErrorNotRetried(t *testing.T) {
	accounts := testutils.MockAccountsServer(t)
	defer accounts.Close()

	var apiCalls atomic.Int32
	analytics := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		apiCalls.Add(1)
		testutils.WriteAPIError(w, http.StatusBadRequest, 7103, "No view found")
	}))
	defer analytics.Close()

	client := newTestClient(t, accounts.URL, analytics.URL)

	_, err := client.Organizations(context.Background())
	require.Error(t, err)
	assert.Equal(t, int32(1), apiCalls.Load(), "4xx responses must not be retried")
}

func TestRowOperations(t *testing.T) {
	accounts := testutils.MockAccountsServer(t)
	defer accounts.Close()
	analytics := testutils.MockAnalyticsServer(t)
	defer analytics.Close()

	client := newTestClient(t, accounts.URL, analytics.URL)
	ctx := context.Background()

	columns, err := client.AddRow(ctx, testutils.TestOrgID, testutils.TestWorkspaceID, testutils.TestViewID,
		map[string]any{"Region": "West", "Sales": 1200})
	require.NoError(t, err)
	assert.Equal(t, "West", columns["Region"])

	updated, err := client.UpdateRows(ctx, testutils.TestOrgID, testutils.TestWorkspaceID, testutils.TestViewID,
		map[string]any{"Sales": 1300}, `"Region" = 'West'`)
	require.NoError(t, err)
	assert.Equal(t, int64(3), updated)

	deleted, err := client.DeleteRows(ctx, testutils.TestOrgID, testutils.TestWorkspaceID, testutils.TestViewID,
		`"Region" = 'East'`)
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)
}

func TestImportData(t *testing.T) {
	accounts := testutils.MockAccountsServer(t)
	defer accounts.Close()
	analytics := testutils.MockAnalyticsServer(t)
	defer analytics.Close()

	client := newTestClient(t, accounts.URL, analytics.URL)
	ctx := context.Background()

	importConfig := map[string]any{
		"importType":   "append",
		"fileType":     "csv",
		"autoIdentify": "true",
	}

	result, err := client.ImportFile(ctx, testutils.TestOrgID, testutils.TestWorkspaceID, testutils.TestViewID,
		importConfig, "orders.csv", []byte("Region,Sales\nWest,1200\nEast,900\n"))
	require.NoError(t, err)
	assert.Equal(t, int64(2), result.SuccessRowCount)

	result, err = client.ImportRaw(ctx, testutils.TestOrgID, testutils.TestWorkspaceID, testutils.TestViewID,
		importConfig, `[{"Region":"West","Sales":1200}]`)
	require.NoError(t, err)
	assert.Equal(t, "append", result.ImportType)
}
