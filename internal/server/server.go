package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"analytics-mcp-server/internal/auth"
	"analytics-mcp-server/internal/config"
	"analytics-mcp-server/internal/persistence"
	"analytics-mcp-server/internal/ratelimit"
	"analytics-mcp-server/internal/tools"
	"analytics-mcp-server/internal/zoho"
)

// Name and Version identify this server to MCP clients.
const (
	Name    = "analytics-mcp-server"
	Version = "1.0.0"
)

// MCPServer serves the MCP protocol over streamable HTTP alongside health
// and metrics endpoints.
type MCPServer struct {
	config     *config.Config
	client     *zoho.Client
	mcpServer  *mcp.Server
	httpServer *http.Server
	provider   persistence.Provider
	tools      *tools.Registry
}

// NewMCPServer creates a new MCP server instance
func NewMCPServer(cfg *config.Config, client *zoho.Client, provider persistence.Provider) (*MCPServer, error) {
	mcpServer := mcp.NewServer(&mcp.Implementation{Name: Name, Version: Version}, nil)

	registry := tools.NewRegistry(client, cfg)
	registry.Register(mcpServer)

	s := &MCPServer{
		config:    cfg,
		client:    client,
		mcpServer: mcpServer,
		provider:  provider,
		tools:     registry,
	}

	mcpHandler := http.Handler(mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server {
		return mcpServer
	}, nil))

	// Auth and rate limiting guard only the protocol endpoint; health and
	// metrics stay reachable by probes and scrapers.
	if cfg.RateLimit.Enabled {
		limiter, err := newLimiter(cfg, provider)
		if err != nil {
			return nil, err
		}
		mcpHandler = ratelimit.Middleware(limiter, cfg.RateLimit)(mcpHandler)
	}
	if cfg.Auth.Enabled {
		introspector := auth.NewIntrospector(cfg.Auth)
		mcpHandler = auth.NewMiddleware(introspector, true).Handler(mcpHandler)
	}

	mux := http.NewServeMux()
	mux.Handle("/mcp", mcpHandler)
	mux.HandleFunc("/health", s.healthCheck)
	mux.Handle("/metrics", promhttp.Handler())

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      s.withMiddleware(mux),
		ReadTimeout:  cfg.Server.Timeout,
		WriteTimeout: cfg.Server.Timeout,
		IdleTimeout:  120 * time.Second,
	}

	return s, nil
}

// newLimiter picks the rate-limit backend matching the storage mode.
func newLimiter(cfg *config.Config, provider persistence.Provider) (ratelimit.Limiter, error) {
	window := time.Duration(cfg.RateLimit.WindowSeconds) * time.Second
	if redisProvider, ok := provider.(*persistence.RedisProvider); ok {
		return ratelimit.NewRedisLimiter(redisProvider.Client(), cfg.RateLimit.Capacity, window), nil
	}
	return ratelimit.NewMemoryLimiter(cfg.RateLimit.Capacity, window), nil
}

// Run starts the server and blocks until the context is canceled or the
// listener fails.
func (s *MCPServer) Run(ctx context.Context) error {
	errChan := make(chan error, 1)
	go func() {
		slog.Info("Starting HTTP server", "address", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		slog.Info("Shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	}
}

// healthCheck reports liveness plus the state of the storage backend.
func (s *MCPServer) healthCheck(w http.ResponseWriter, r *http.Request) {
	status := http.StatusOK
	storage := "ok"
	if err := s.provider.Ping(r.Context()); err != nil {
		status = http.StatusServiceUnavailable
		storage = err.Error()
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"status":  http.StatusText(status),
		"service": Name,
		"version": Version,
		"storage": storage,
	})
}

// withMiddleware applies middleware to HTTP handlers
func (s *MCPServer) withMiddleware(handler http.Handler) http.Handler {
	return s.loggingMiddleware(s.corsMiddleware(s.bodySizeMiddleware(handler)))
}

// loggingMiddleware logs HTTP requests
func (s *MCPServer) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)
		slog.Info("HTTP request completed",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.status,
			"duration", time.Since(start),
			"remote_addr", r.RemoteAddr)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (w *statusRecorder) WriteHeader(statusCode int) {
	w.status = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

// corsMiddleware adds CORS headers
func (s *MCPServer) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, Mcp-Session-Id")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// bodySizeMiddleware caps request body size so an oversized payload fails
// with a clear error instead of exhausting memory.
func (s *MCPServer) bodySizeMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.config.Server.MaxBodySize > 0 && r.Body != nil {
			r.Body = http.MaxBytesReader(w, r.Body, s.config.Server.MaxBodySize)
		}
		next.ServeHTTP(w, r)
	})
}
