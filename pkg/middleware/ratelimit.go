package middleware

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/platinummonkey/potkeeper/pkg/async"
	"github.com/platinummonkey/potkeeper/pkg/httputil"
	"github.com/platinummonkey/potkeeper/pkg/observability"
)

// RateLimitConfig defines rate limiting configuration
type RateLimitConfig struct {
	// RequestsPerWindow is the max requests allowed in the time window
	RequestsPerWindow int
	// WindowDuration is the time window for rate limiting
	WindowDuration time.Duration
	// BurstSize allows temporary bursts above the rate
	BurstSize int
}

// IdentifyRateLimitConfig bounds how many anonymous accounts one client
// address may create.
func IdentifyRateLimitConfig() *RateLimitConfig {
	return &RateLimitConfig{
		RequestsPerWindow: 20,
		WindowDuration:    time.Hour,
		BurstSize:         5,
	}
}

// Limiter decides whether another request for key is allowed. An error
// means the decision could not be made.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// RateLimiter implements rate limiting using token bucket algorithm.
// Buckets live in process memory.
type RateLimiter struct {
	config  *RateLimitConfig
	buckets map[string]*bucket
	mu      sync.RWMutex
	now     func() time.Time
}

type bucket struct {
	tokens     int
	lastUpdate time.Time
	mu         sync.Mutex
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(config *RateLimitConfig) *RateLimiter {
	if config == nil {
		config = IdentifyRateLimitConfig()
	}

	return &RateLimiter{
		config:  config,
		buckets: make(map[string]*bucket),
		now:     time.Now,
	}
}

func (rl *RateLimiter) capacity() int {
	return rl.config.RequestsPerWindow + rl.config.BurstSize
}

// Allow checks if a request is allowed for the given key
func (rl *RateLimiter) Allow(_ context.Context, key string) (bool, error) {
	rl.mu.Lock()
	b, exists := rl.buckets[key]
	if !exists {
		b = &bucket{
			tokens:     rl.capacity(),
			lastUpdate: rl.now(),
		}
		rl.buckets[key] = b
	}
	rl.mu.Unlock()

	b.mu.Lock()
	defer b.mu.Unlock()

	now := rl.now()
	elapsed := now.Sub(b.lastUpdate)

	// Refill tokens based on elapsed time
	tokensToAdd := int(elapsed.Seconds() * float64(rl.config.RequestsPerWindow) / rl.config.WindowDuration.Seconds())
	if tokensToAdd > 0 {
		b.tokens += tokensToAdd
		if b.tokens > rl.capacity() {
			b.tokens = rl.capacity()
		}
		b.lastUpdate = now
	}

	if b.tokens > 0 {
		b.tokens--
		return true, nil
	}

	return false, nil
}

// Remaining returns the number of remaining tokens for a key
func (rl *RateLimiter) Remaining(key string) int {
	rl.mu.RLock()
	b, exists := rl.buckets[key]
	rl.mu.RUnlock()

	if !exists {
		return rl.capacity()
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	return b.tokens
}

// Cleanup removes idle buckets
func (rl *RateLimiter) Cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	for key, b := range rl.buckets {
		b.mu.Lock()
		if now.Sub(b.lastUpdate) > rl.config.WindowDuration*2 {
			delete(rl.buckets, key)
		}
		b.mu.Unlock()
	}
}

// StartCleanup removes idle buckets once per window until ctx is done.
// A panic in the sweep is logged and ends the loop.
func (rl *RateLimiter) StartCleanup(ctx context.Context, logger *observability.Logger) {
	async.SafeGoNoError(ctx, logger, 0, "ratelimit_cleanup", func(ctx context.Context) {
		ticker := time.NewTicker(rl.config.WindowDuration)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				rl.Cleanup()
			case <-ctx.Done():
				return
			}
		}
	})
}

// RateLimitMiddleware throttles requests per client address.
type RateLimitMiddleware struct {
	limiter Limiter
	config  *RateLimitConfig
	prefix  string
	logger  *observability.Logger
}

// NewRateLimitMiddleware creates a new rate limit middleware. prefix
// namespaces the keys of one throttled route.
func NewRateLimitMiddleware(limiter Limiter, config *RateLimitConfig, prefix string, logger *observability.Logger) *RateLimitMiddleware {
	if config == nil {
		config = IdentifyRateLimitConfig()
	}
	return &RateLimitMiddleware{limiter: limiter, config: config, prefix: prefix, logger: logger}
}

// Handler wraps an HTTP handler with rate limiting. Limiter errors let the
// request through.
func (m *RateLimitMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := m.prefix + ":ip:" + ClientIP(r)

		allowed, err := m.limiter.Allow(r.Context(), key)
		if err != nil {
			observability.FromContextOr(r.Context(), m.logger).
				WithError(err).
				WithField("key", key).
				Warn("rate limiter unavailable, allowing request")
			next.ServeHTTP(w, r)
			return
		}
		if !allowed {
			m.rateLimitExceeded(w)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (m *RateLimitMiddleware) rateLimitExceeded(w http.ResponseWriter) {
	w.Header().Set("Retry-After", fmt.Sprintf("%.0f", m.config.WindowDuration.Seconds()))
	w.Header().Set("X-RateLimit-Limit", fmt.Sprintf("%d", m.config.RequestsPerWindow))
	w.Header().Set("X-RateLimit-Remaining", "0")
	httputil.WriteTooManyRequests(w, "too many requests, please try again later")
}

// ClientIP returns the originating address of r. The first X-Forwarded-For
// hop wins over X-Real-IP, which wins over the socket address.
func ClientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}

	if realIP := strings.TrimSpace(r.Header.Get("X-Real-IP")); realIP != "" {
		return realIP
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
