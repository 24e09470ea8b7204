package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	gocache "github.com/patrickmn/go-cache"

	"analytics-mcp-server/internal/config"
	"analytics-mcp-server/internal/types"
)

// Introspector validates bearer tokens against a token-info endpoint and
// caches successful validations for a short TTL.
type Introspector struct {
	tokenInfoURL string
	httpClient   *http.Client
	cache        *gocache.Cache
}

// NewIntrospector creates a token introspector from configuration.
func NewIntrospector(cfg config.AuthConfig) *Introspector {
	return &Introspector{
		tokenInfoURL: cfg.TokenInfoURL,
		httpClient:   &http.Client{Timeout: cfg.Timeout},
		cache:        gocache.New(cfg.CacheTTL, 2*cfg.CacheTTL),
	}
}

// Authenticate validates a bearer token and returns the user it belongs to.
func (i *Introspector) Authenticate(ctx context.Context, token string) (*types.User, error) {
	if token == "" {
		return nil, fmt.Errorf("no token provided")
	}

	if cached, found := i.cache.Get(token); found {
		return cached.(*types.User), nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, i.tokenInfoURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create introspection request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := i.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("token introspection failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read introspection response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("token rejected with status %d", resp.StatusCode)
	}

	var user types.User
	if err := json.Unmarshal(body, &user); err != nil {
		return nil, fmt.Errorf("failed to parse introspection response: %w", err)
	}
	if user.Email == "" {
		return nil, fmt.Errorf("introspection response contained no user identity")
	}

	i.cache.SetDefault(token, &user)
	return &user, nil
}

// Middleware provides authentication middleware for HTTP handlers
type Middleware struct {
	introspector *Introspector
	enabled      bool
}

// NewMiddleware creates a new authentication middleware
func NewMiddleware(introspector *Introspector, enabled bool) *Middleware {
	return &Middleware{
		introspector: introspector,
		enabled:      enabled,
	}
}

// Handler wraps an HTTP handler with bearer-token authentication
func (m *Middleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !m.enabled {
			next.ServeHTTP(w, r)
			return
		}

		token := bearerToken(r)
		user, err := m.introspector.Authenticate(r.Context(), token)
		if err != nil {
			slog.Debug("Request rejected by auth middleware", "path", r.URL.Path, "error", err)
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(map[string]string{
				"error":   "Unauthorized",
				"message": "Valid authentication required",
			})
			return
		}

		next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
	})
}

// bearerToken extracts the token from the Authorization header.
func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return ""
}
