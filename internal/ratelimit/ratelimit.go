package ratelimit

// Package ratelimit enforces a per-client token bucket on the HTTP surface.
// The in-memory backend keeps one bucket per client key; the Redis backend
// shares bucket state across replicas through a Lua script so a client
// cannot multiply its quota by spraying requests over instances.

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	"analytics-mcp-server/internal/config"
)

// Limiter decides whether a request identified by key may proceed.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// MemoryLimiter keeps one token bucket per client key in process memory.
type MemoryLimiter struct {
	capacity int
	window   time.Duration

	mu      sync.Mutex
	buckets map[string]*bucket
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewMemoryLimiter creates an in-memory limiter allowing capacity requests
// per window for each key. Idle buckets are dropped after three windows.
func NewMemoryLimiter(capacity int, window time.Duration) *MemoryLimiter {
	return &MemoryLimiter{
		capacity: capacity,
		window:   window,
		buckets:  make(map[string]*bucket),
	}
}

// Allow reports whether the key has budget left in its bucket.
func (m *MemoryLimiter) Allow(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	b, ok := m.buckets[key]
	if !ok {
		b = &bucket{
			limiter: rate.NewLimiter(rate.Limit(float64(m.capacity)/m.window.Seconds()), m.capacity),
		}
		m.buckets[key] = b
	}
	b.lastSeen = now

	m.evictIdleLocked(now)
	return b.limiter.Allow(), nil
}

func (m *MemoryLimiter) evictIdleLocked(now time.Time) {
	idle := 3 * m.window
	for key, b := range m.buckets {
		if now.Sub(b.lastSeen) > idle {
			delete(m.buckets, key)
		}
	}
}

// tokenBucketScript refills and consumes a token bucket atomically.
// KEYS[1] bucket key, ARGV[1] capacity, ARGV[2] window seconds,
// ARGV[3] now (unix milliseconds). Returns 1 when allowed.
var tokenBucketScript = redis.NewScript(`
local key = KEYS[1]
local capacity = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local now = tonumber(ARGV[3])

local state = redis.call('HMGET', key, 'tokens', 'ts')
local tokens = tonumber(state[1])
local ts = tonumber(state[2])
if tokens == nil then
  tokens = capacity
  ts = now
end

local elapsed = (now - ts) / 1000.0
local refill = elapsed * capacity / window
tokens = math.min(capacity, tokens + refill)

local allowed = 0
if tokens >= 1 then
  tokens = tokens - 1
  allowed = 1
end

redis.call('HSET', key, 'tokens', tokens, 'ts', now)
redis.call('EXPIRE', key, math.ceil(window * 3))
return allowed
`)

// RedisLimiter shares token buckets across instances through Redis.
type RedisLimiter struct {
	client   *redis.Client
	capacity int
	window   time.Duration
}

// NewRedisLimiter creates a Redis-backed limiter.
func NewRedisLimiter(client *redis.Client, capacity int, window time.Duration) *RedisLimiter {
	return &RedisLimiter{client: client, capacity: capacity, window: window}
}

// Allow consumes one token from the key's shared bucket.
func (r *RedisLimiter) Allow(ctx context.Context, key string) (bool, error) {
	result, err := tokenBucketScript.Run(ctx, r.client,
		[]string{"ratelimit:" + key},
		r.capacity, int(r.window.Seconds()), time.Now().UnixMilli()).Int()
	if err != nil {
		return false, err
	}
	return result == 1, nil
}

// Middleware enforces the limiter per client IP. When the limiter backend
// fails the request is allowed through; throttling is best effort and must
// not take the service down with it.
func Middleware(limiter Limiter, cfg config.RateLimitConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := ClientIP(r, cfg)
			allowed, err := limiter.Allow(r.Context(), key)
			if err != nil {
				slog.Warn("Rate limiter backend error, allowing request", "error", err)
				next.ServeHTTP(w, r)
				return
			}
			if !allowed {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				_ = json.NewEncoder(w).Encode(map[string]string{
					"error":   "Too Many Requests",
					"message": "Rate limit exceeded, retry later",
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ClientIP extracts the client address used as the rate-limit key. The
// X-Forwarded-For header is only honored when the direct peer is a trusted
// proxy; otherwise a client could spoof its way past the limiter.
func ClientIP(r *http.Request, cfg config.RateLimitConfig) string {
	peer := remoteHost(r.RemoteAddr)
	if !cfg.BehindProxy || !trustedPeer(peer, cfg.TrustedProxies) {
		return peer
	}
	forwarded := r.Header.Get("X-Forwarded-For")
	if forwarded == "" {
		return peer
	}
	first := strings.TrimSpace(strings.Split(forwarded, ",")[0])
	if first == "" {
		return peer
	}
	return first
}

func remoteHost(remoteAddr string) string {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return remoteAddr
	}
	return host
}

func trustedPeer(peer string, trusted []string) bool {
	if len(trusted) == 0 {
		return true
	}
	for _, t := range trusted {
		if peer == t {
			return true
		}
	}
	return false
}
