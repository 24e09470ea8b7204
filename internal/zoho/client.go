package zoho

// Package zoho provides a client for the Zoho Analytics REST API (v2).
// All requests carry an OAuth access token minted from the configured
// refresh token; an expired token is regenerated once and the request
// replayed. Error responses are mapped to types.AnalyticsError with the
// remote numeric error code preserved.

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"analytics-mcp-server/internal/config"
	"analytics-mcp-server/internal/types"
)

// tokenExpiredCode is returned by the API when the OAuth access token has
// lapsed; it triggers a single token regeneration and replay.
const tokenExpiredCode = 8535

// Client is a Zoho Analytics API client.
type Client struct {
	accountsURL  string
	analyticsURL string
	clientID     string
	clientSecret string
	refreshToken string

	httpClient  *http.Client
	rateLimiter *rate.Limiter
	retryConfig config.RetryConfig
	cache       *gocache.Cache
	tracer      trace.Tracer

	mu          sync.Mutex
	accessToken string
}

// NewClient creates a new Zoho Analytics client from configuration.
func NewClient(cfg config.ZohoConfig, cacheCfg config.CacheConfig) (*Client, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" || cfg.RefreshToken == "" {
		return nil, fmt.Errorf("client id, client secret and refresh token are required")
	}
	if cfg.AccountsServerURL == "" || cfg.AnalyticsServerURL == "" {
		return nil, fmt.Errorf("accounts and analytics server URLs are required")
	}

	transport := &http.Transport{
		MaxIdleConns:        100,
		IdleConnTimeout:     90 * time.Second,
		MaxIdleConnsPerHost: 10,
	}

	httpClient := &http.Client{
		Transport: otelhttp.NewTransport(transport),
		Timeout:   cfg.Timeout,
	}

	rateLimiter := rate.NewLimiter(
		rate.Limit(cfg.RateLimit.RequestsPerSecond),
		cfg.RateLimit.Burst,
	)

	return &Client{
		accountsURL:  strings.TrimSuffix(cfg.AccountsServerURL, "/"),
		analyticsURL: strings.TrimSuffix(cfg.AnalyticsServerURL, "/"),
		clientID:     cfg.ClientID,
		clientSecret: cfg.ClientSecret,
		refreshToken: cfg.RefreshToken,
		httpClient:   httpClient,
		rateLimiter:  rateLimiter,
		retryConfig:  cfg.Retry,
		cache:        gocache.New(cacheCfg.TTL, cacheCfg.CleanupInterval),
		tracer:       otel.Tracer("analytics-mcp-server/internal/zoho"),
	}, nil
}

// apiEnvelope is the common response wrapper of the Analytics API.
type apiEnvelope struct {
	Status struct {
		IsSuccess    bool   `json:"isSuccess"`
		ErrorCode    int    `json:"errorCode"`
		ErrorMessage string `json:"errorMessage"`
	} `json:"status"`
	Data json.RawMessage `json:"data"`
}

// token returns a valid access token, minting one if none is cached.
func (c *Client) token(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.accessToken != "" {
		return c.accessToken, nil
	}
	return c.mintTokenLocked(ctx)
}

// regenerateToken discards the cached access token and mints a fresh one.
func (c *Client) regenerateToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.accessToken = ""
	return c.mintTokenLocked(ctx)
}

func (c *Client) mintTokenLocked(ctx context.Context) (string, error) {
	form := url.Values{}
	form.Set("client_id", c.clientID)
	form.Set("client_secret", c.clientSecret)
	form.Set("refresh_token", c.refreshToken)
	form.Set("grant_type", "refresh_token")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.accountsURL+"/oauth/v2/token", strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("failed to create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("token request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read token response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("token endpoint returned %d: %s", resp.StatusCode, string(body))
	}

	var tokenResp struct {
		AccessToken string `json:"access_token"`
		Error       string `json:"error"`
	}
	if err := json.Unmarshal(body, &tokenResp); err != nil {
		return "", fmt.Errorf("failed to parse token response: %w", err)
	}
	if tokenResp.Error != "" {
		return "", fmt.Errorf("token refresh rejected: %s", tokenResp.Error)
	}
	if tokenResp.AccessToken == "" {
		return "", fmt.Errorf("token response contained no access token")
	}

	c.accessToken = tokenResp.AccessToken
	slog.Debug("Minted analytics access token")
	return c.accessToken, nil
}

// request describes one Analytics API call.
type request struct {
	method   string
	endpoint string            // path under /restapi/v2
	orgID    string            // ZANALYTICS-ORGID header, optional
	config   map[string]any    // serialized into the CONFIG query parameter
	form     url.Values        // form body, optional
	upload   *fileUpload       // multipart body, optional
	query    map[string]string // extra query parameters
}

// fileUpload holds the content as bytes so the request can be safely
// replayed after a token refresh or retry.
type fileUpload struct {
	fieldName string
	fileName  string
	content   []byte
}

// call performs an API request with rate limiting, bounded retry on server
// errors, and a single token-regeneration replay on OAuth expiry. The
// response envelope's data field is unmarshaled into result when non-nil.
func (c *Client) call(ctx context.Context, req request, result any) error {
	ctx, span := c.tracer.Start(ctx, "zoho.call",
		trace.WithAttributes(
			attribute.String("http.method", req.method),
			attribute.String("zoho.endpoint", req.endpoint),
		))
	defer span.End()

	data, err := c.callRaw(ctx, req)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	if result != nil && len(data) > 0 {
		if err := json.Unmarshal(data, result); err != nil {
			return fmt.Errorf("failed to parse response data: %w", err)
		}
	}
	return nil
}

func (c *Client) callRaw(ctx context.Context, req request) (json.RawMessage, error) {
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit error: %w", err)
	}

	var attempt int
	var lastErr error
	for attempt = 0; attempt < c.retryConfig.MaxAttempts; attempt++ {
		if attempt > 0 {
			delay := time.Duration(attempt) * c.retryConfig.InitialDelay
			if delay > c.retryConfig.MaxDelay {
				delay = c.retryConfig.MaxDelay
			}
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
			slog.Debug("Retrying analytics request", "attempt", attempt+1, "delay", delay)
		}

		data, err := c.doRequest(ctx, req, nil)
		if err == nil {
			return data, nil
		}
		lastErr = err

		if expired(err) {
			if _, terr := c.regenerateToken(ctx); terr != nil {
				return nil, fmt.Errorf("access token expired and refresh failed: %w", terr)
			}
			data, err = c.doRequest(ctx, req, nil)
			if err == nil {
				return data, nil
			}
			lastErr = err
		}

		if !isRetryableError(err) {
			return nil, err
		}
		slog.Warn("Analytics request failed, will retry", "error", err, "attempt", attempt+1)
	}

	return nil, fmt.Errorf("request failed after %d attempts: %w", attempt, lastErr)
}

// download streams a raw (non-JSON) response body to w. Used for fetching
// completed bulk-export payloads.
func (c *Client) download(ctx context.Context, req request, w io.Writer) error {
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit error: %w", err)
	}
	_, err := c.doRequest(ctx, req, w)
	if expired(err) {
		if _, terr := c.regenerateToken(ctx); terr != nil {
			return fmt.Errorf("access token expired and refresh failed: %w", terr)
		}
		_, err = c.doRequest(ctx, req, w)
	}
	return err
}

// doRequest performs the actual HTTP request. When sink is non-nil the raw
// body is streamed into it and no envelope parsing happens on success.
func (c *Client) doRequest(ctx context.Context, r request, sink io.Writer) (json.RawMessage, error) {
	token, err := c.token(ctx)
	if err != nil {
		return nil, err
	}

	fullURL := c.analyticsURL + "/restapi/v2" + r.endpoint

	params := url.Values{}
	if len(r.config) > 0 {
		cfgJSON, err := json.Marshal(r.config)
		if err != nil {
			return nil, fmt.Errorf("failed to encode CONFIG parameter: %w", err)
		}
		params.Set("CONFIG", string(cfgJSON))
	}
	for k, v := range r.query {
		params.Set(k, v)
	}
	if enc := params.Encode(); enc != "" {
		fullURL += "?" + enc
	}

	var body io.Reader
	contentType := ""
	if r.upload != nil {
		pr, ct, err := multipartBody(r.upload)
		if err != nil {
			return nil, err
		}
		body = pr
		contentType = ct
	} else if len(r.form) > 0 {
		body = strings.NewReader(r.form.Encode())
		contentType = "application/x-www-form-urlencoded"
	}

	req, err := http.NewRequestWithContext(ctx, r.method, fullURL, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Zoho-oauthtoken "+token)
	if r.orgID != "" {
		req.Header.Set("ZANALYTICS-ORGID", r.orgID)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	slog.Debug("Making analytics API request", "method", r.method, "endpoint", r.endpoint, "org_id", r.orgID)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		responseBody, rerr := io.ReadAll(resp.Body)
		if rerr != nil {
			return nil, fmt.Errorf("failed to read error response: %w", rerr)
		}
		return nil, apiError(resp.StatusCode, responseBody, r.endpoint)
	}

	if sink != nil {
		if _, err := io.Copy(sink, resp.Body); err != nil {
			return nil, fmt.Errorf("failed to stream response body: %w", err)
		}
		return nil, nil
	}

	responseBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if len(responseBody) == 0 {
		return nil, nil
	}

	var envelope apiEnvelope
	if err := json.Unmarshal(responseBody, &envelope); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	if envelope.Status.ErrorCode != 0 {
		return nil, &types.AnalyticsError{
			Message:    envelope.Status.ErrorMessage,
			ErrorCode:  envelope.Status.ErrorCode,
			StatusCode: resp.StatusCode,
		}
	}
	return envelope.Data, nil
}

// apiError maps an HTTP error response to a typed AnalyticsError.
func apiError(statusCode int, body []byte, endpoint string) error {
	var envelope apiEnvelope
	apiErr := &types.AnalyticsError{StatusCode: statusCode}
	if err := json.Unmarshal(body, &envelope); err == nil {
		apiErr.ErrorCode = envelope.Status.ErrorCode
		apiErr.Message = envelope.Status.ErrorMessage
	}
	if apiErr.Message == "" {
		apiErr.Message = fmt.Sprintf("HTTP %d from %s: %s", statusCode, endpoint, string(body))
	}
	slog.Error("Analytics API error",
		"status_code", statusCode,
		"error_code", apiErr.ErrorCode,
		"endpoint", endpoint,
		"message", apiErr.Message)
	return apiErr
}

// expired reports whether err signals a lapsed OAuth access token.
func expired(err error) bool {
	if apiErr, ok := asAPIError(err); ok {
		return apiErr.StatusCode == http.StatusUnauthorized || apiErr.ErrorCode == tokenExpiredCode
	}
	return false
}

// isRetryableError determines if an error is retryable
func isRetryableError(err error) bool {
	if apiErr, ok := asAPIError(err); ok {
		// Retry on server errors but not client errors
		return apiErr.StatusCode >= 500
	}
	// Retry on network errors
	return true
}

func asAPIError(err error) (*types.AnalyticsError, bool) {
	var apiErr *types.AnalyticsError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}

// multipartBody builds a multipart form body for a file upload. The whole
// payload is buffered; import files are bounded in practice.
func multipartBody(u *fileUpload) (io.Reader, string, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile(u.fieldName, u.fileName)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create multipart field: %w", err)
	}
	if _, err := io.Copy(part, bytes.NewReader(u.content)); err != nil {
		return nil, "", fmt.Errorf("failed to copy upload content: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("failed to finalize multipart body: %w", err)
	}
	return &buf, writer.FormDataContentType(), nil
}
