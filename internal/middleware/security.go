package middleware

import (
	"net/http"

	"github.com/sirupsen/logrus"
)

// SecurityConfig groups the middleware stack's settings.
type SecurityConfig struct {
	Auth           *AuthConfig      `yaml:"auth"`
	RateLimit      *RateLimitConfig `yaml:"rate_limit"`
	MaxRequestSize int64            `yaml:"max_request_size"`
}

// Security combines authentication, rate limiting, body size limiting and
// security headers into one chain.
type Security struct {
	auth        *APIKeyAuth
	rateLimiter *RateLimiter
	maxBody     int64
	logger      *logrus.Logger
}

// NewSecurity builds the stack. Nil sub-configs disable the corresponding
// component.
func NewSecurity(config *SecurityConfig, logger *logrus.Logger) *Security {
	s := &Security{logger: logger, maxBody: config.MaxRequestSize}

	if config.Auth != nil {
		s.auth = NewAPIKeyAuth(config.Auth, logger)
	}
	if config.RateLimit != nil && config.RateLimit.Enabled {
		s.rateLimiter = NewRateLimiter(config.RateLimit, logger)
	}

	return s
}

// Handler returns the full chain. Order: headers, body limit, rate limit,
// auth, then the application.
func (s *Security) Handler() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		handler := next

		if s.auth != nil {
			handler = s.auth.Middleware()(handler)
		}
		if s.rateLimiter != nil {
			handler = s.rateLimiter.Middleware()(handler)
		}
		if s.maxBody > 0 {
			handler = s.bodyLimitMiddleware()(handler)
		}
		handler = s.headersMiddleware()(handler)

		return handler
	}
}

// Stop terminates background loops.
func (s *Security) Stop() {
	if s.rateLimiter != nil {
		s.rateLimiter.Stop()
	}
}

func (s *Security) bodyLimitMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.ContentLength > s.maxBody {
				http.Error(w, "Request too large", http.StatusRequestEntityTooLarge)
				return
			}
			r.Body = http.MaxBytesReader(w, r.Body, s.maxBody)
			next.ServeHTTP(w, r)
		})
	}
}

func (s *Security) headersMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			w.Header().Set("X-Frame-Options", "DENY")
			w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
			next.ServeHTTP(w, r)
		})
	}
}
