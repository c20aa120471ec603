package middleware

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// RateLimitConfig holds per-client rate limiting settings.
type RateLimitConfig struct {
	Enabled           bool          `yaml:"enabled"`
	RequestsPerMinute int           `yaml:"requests_per_minute"`
	CleanupInterval   time.Duration `yaml:"cleanup_interval"`
}

// RateLimiter is a fixed-window per-client limiter kept in process memory.
// Good enough for a single instance; multiple replicas need a shared store.
type RateLimiter struct {
	mu      sync.Mutex
	windows map[string]*window

	limit    int
	logger   *logrus.Logger
	stopCh   chan struct{}
	stopOnce sync.Once
}

type window struct {
	count int
	start time.Time
}

// NewRateLimiter creates a limiter and starts its cleanup loop.
func NewRateLimiter(config *RateLimitConfig, logger *logrus.Logger) *RateLimiter {
	limit := config.RequestsPerMinute
	if limit <= 0 {
		limit = 60
	}
	cleanup := config.CleanupInterval
	if cleanup <= 0 {
		cleanup = 5 * time.Minute
	}

	rl := &RateLimiter{
		windows: make(map[string]*window),
		limit:   limit,
		logger:  logger,
		stopCh:  make(chan struct{}),
	}
	go rl.cleanupLoop(cleanup)
	return rl
}

// Allow counts one request for the client and reports whether it fits the
// current window.
func (rl *RateLimiter) Allow(client string) bool {
	now := time.Now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	w, ok := rl.windows[client]
	if !ok || now.Sub(w.start) >= time.Minute {
		rl.windows[client] = &window{count: 1, start: now}
		return true
	}

	w.count++
	return w.count <= rl.limit
}

// Stop terminates the cleanup loop. Safe to call more than once.
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stopCh) })
}

func (rl *RateLimiter) cleanupLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			cutoff := time.Now().Add(-2 * time.Minute)
			rl.mu.Lock()
			for client, w := range rl.windows {
				if w.start.Before(cutoff) {
					delete(rl.windows, client)
				}
			}
			rl.mu.Unlock()
		case <-rl.stopCh:
			return
		}
	}
}

// Middleware rejects over-limit clients with 429.
func (rl *RateLimiter) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			client := clientIP(r)
			if !rl.Allow(client) {
				rl.logger.WithField("client", client).Warn("Rate limit exceeded")
				w.Header().Set("Retry-After", "60")
				http.Error(w, "Rate limit exceeded", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		ips := strings.Split(xff, ",")
		return strings.TrimSpace(ips[0])
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}

	ip := r.RemoteAddr
	if colonIndex := strings.LastIndex(ip, ":"); colonIndex != -1 {
		ip = ip[:colonIndex]
	}
	return ip
}
