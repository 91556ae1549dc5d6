package middleware

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// RateLimitConfig is a fixed window limit: at most RequestsPerWindow
// requests per client in each WindowDuration.
type RateLimitConfig struct {
	RequestsPerWindow int
	WindowDuration    time.Duration
}

// Validate reports a non-positive limit or window.
func (c RateLimitConfig) Validate() error {
	if c.RequestsPerWindow <= 0 {
		return fmt.Errorf("rate limit must be positive, got %d requests", c.RequestsPerWindow)
	}
	if c.WindowDuration <= 0 {
		return fmt.Errorf("rate limit window must be positive, got %s", c.WindowDuration)
	}
	return nil
}

// RateLimitStore counts requests per key in fixed windows. Allow records one
// request for key and reports whether it fits in the current window, how
// many requests the window has left, and when blocked, how many seconds
// until the window resets.
type RateLimitStore interface {
	Allow(ctx context.Context, key string, config RateLimitConfig) (allowed bool, remaining int, retryAfter int)
}

type window struct {
	count int
	end   time.Time
}

// InMemoryRateLimitStore keeps windows in process memory. It serves a single
// API replica; replicas sharing one limit use RedisRateLimitStore.
type InMemoryRateLimitStore struct {
	mu      sync.RWMutex
	buckets map[string]*window
	now     func() time.Time
}

func NewInMemoryRateLimitStore() *InMemoryRateLimitStore {
	return &InMemoryRateLimitStore{
		buckets: make(map[string]*window),
		now:     time.Now,
	}
}

func (s *InMemoryRateLimitStore) Allow(_ context.Context, key string, config RateLimitConfig) (bool, int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	w, ok := s.buckets[key]
	if !ok || now.After(w.end) {
		w = &window{end: now.Add(config.WindowDuration)}
		s.buckets[key] = w
	}
	if w.count >= config.RequestsPerWindow {
		return false, 0, retryAfterSeconds(w.end.Sub(now))
	}
	w.count++
	return true, config.RequestsPerWindow - w.count, 0
}

// retryAfterSeconds rounds d up to whole seconds, at least one.
func retryAfterSeconds(d time.Duration) int {
	secs := int((d + time.Second - 1) / time.Second)
	return max(secs, 1)
}

// Cleanup drops windows that have ended. The API server runs it on a ticker.
func (s *InMemoryRateLimitStore) Cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for key, w := range s.buckets {
		if now.After(w.end) {
			delete(s.buckets, key)
		}
	}
}

// KeyFunc extracts a rate limit key from an HTTP request.
type KeyFunc func(r *http.Request) string

// IPKeyFunc keys requests by client address: the first X-Forwarded-For hop,
// then X-Real-IP, then the host of RemoteAddr.
func IPKeyFunc() KeyFunc {
	return func(r *http.Request) string {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			first, _, _ := strings.Cut(xff, ",")
			return strings.TrimSpace(first)
		}
		if xri := r.Header.Get("X-Real-IP"); xri != "" {
			return strings.TrimSpace(xri)
		}
		if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
			return host
		}
		return r.RemoteAddr
	}
}

// rateLimitKeyType labels rate limit metrics for client-address keys.
const rateLimitKeyType = "ip"

// rateLimitedBody is the error envelope of a 429, matching the API's own
// error responses.
const rateLimitedBody = `{"error":{"code":"rate_limited","message":"Too many requests"}}` + "\n"

// RateLimiter rejects requests over config with 429 and a rate_limited error
// envelope. Every response carries X-RateLimit-Limit and
// X-RateLimit-Remaining; a 429 adds Retry-After (seconds) and
// X-RateLimit-Reset (Unix time). metrics may be nil.
func RateLimiter(store RateLimitStore, config RateLimitConfig, keyFunc KeyFunc, metrics *Metrics) func(http.Handler) http.Handler {
	limit := strconv.Itoa(config.RequestsPerWindow)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			endpoint := normalizePath(r.URL.Path)
			if metrics != nil {
				metrics.IncRateLimitRequests(endpoint, rateLimitKeyType)
			}

			allowed, remaining, retryAfter := store.Allow(r.Context(), keyFunc(r), config)

			h := w.Header()
			h.Set("X-RateLimit-Limit", limit)
			h.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
			if allowed {
				next.ServeHTTP(w, r)
				return
			}

			if metrics != nil {
				metrics.IncRateLimitBlocked(endpoint, rateLimitKeyType)
			}
			UpdateResponseContext(w, SetErrorCode(r.Context(), "rate_limited"))

			reset := time.Now().Add(time.Duration(retryAfter) * time.Second).Unix()
			h.Set("Retry-After", strconv.Itoa(retryAfter))
			h.Set("X-RateLimit-Reset", strconv.FormatInt(reset, 10))
			h.Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(rateLimitedBody))
		})
	}
}
