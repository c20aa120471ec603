package middleware

import (
	"net/http"

	"github.com/sirupsen/logrus"
)

// AuthConfig holds API key authentication settings. An empty key set
// disables authentication, which is the expected mode behind a private
// gateway.
type AuthConfig struct {
	APIKeys []string `yaml:"api_keys"`
}

// APIKeyAuth validates the X-API-Key header against a static key set.
type APIKeyAuth struct {
	keys   map[string]struct{}
	logger *logrus.Logger
}

// NewAPIKeyAuth creates the authenticator.
func NewAPIKeyAuth(config *AuthConfig, logger *logrus.Logger) *APIKeyAuth {
	keys := make(map[string]struct{}, len(config.APIKeys))
	for _, k := range config.APIKeys {
		if k != "" {
			keys[k] = struct{}{}
		}
	}
	return &APIKeyAuth{keys: keys, logger: logger}
}

// Enabled reports whether any key is configured.
func (a *APIKeyAuth) Enabled() bool {
	return len(a.keys) > 0
}

// Middleware rejects requests without a valid key. A disabled authenticator
// passes everything through.
func (a *APIKeyAuth) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !a.Enabled() {
				next.ServeHTTP(w, r)
				return
			}

			key := r.Header.Get("X-API-Key")
			if key == "" {
				http.Error(w, "API key required", http.StatusUnauthorized)
				return
			}

			if _, ok := a.keys[key]; !ok {
				a.logger.WithField("api_key_prefix", maskAPIKey(key)).Warn("Invalid API key")
				http.Error(w, "Invalid API key", http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func maskAPIKey(apiKey string) string {
	if len(apiKey) <= 8 {
		return "****"
	}
	return apiKey[:4] + "****" + apiKey[len(apiKey)-4:]
}
