package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/flowpilot-ai/flowpilot/internal/masking"
	"github.com/flowpilot-ai/flowpilot/internal/middleware"
	"github.com/flowpilot-ai/flowpilot/internal/providers/anthropic"
	"github.com/flowpilot-ai/flowpilot/internal/providers/openai"
	"github.com/flowpilot-ai/flowpilot/internal/routing"
	"github.com/flowpilot-ai/flowpilot/internal/server"
	"github.com/flowpilot-ai/flowpilot/internal/types"
)

// Config is the complete application configuration. Values resolve in three
// layers: built-in defaults, then the YAML file, then environment variables.
type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Router       routing.Config     `yaml:"router"`
	Tiers        TiersConfig        `yaml:"tiers"`
	Providers    ProvidersConfig    `yaml:"providers"`
	Redis        RedisConfig        `yaml:"redis"`
	Cache        CacheConfig        `yaml:"cache"`
	Conversation ConversationConfig `yaml:"conversation"`
	FastPath     FastPathConfig     `yaml:"fast_path"`
	Masking      MaskingConfig      `yaml:"masking"`
	Pipeline     PipelineConfig     `yaml:"pipeline"`
	Usage        UsageConfig        `yaml:"usage"`
	Logging      LoggingConfig      `yaml:"logging"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port           string        `yaml:"port"`
	ReadTimeout    time.Duration `yaml:"read_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
	MaxHeaderBytes int           `yaml:"max_header_bytes"`
	MaxRequestSize int64         `yaml:"max_request_size"`

	APIKeys   []string                    `yaml:"api_keys"`
	RateLimit *middleware.RateLimitConfig `yaml:"rate_limit"`
}

// TiersConfig binds each cost tier to a provider and model.
type TiersConfig struct {
	Economy  routing.TierBinding `yaml:"economy"`
	Standard routing.TierBinding `yaml:"standard"`
	Premium  routing.TierBinding `yaml:"premium"`
}

// ProvidersConfig holds configuration for all providers. A nil entry disables
// that provider.
type ProvidersConfig struct {
	OpenAI    *openai.Config    `yaml:"openai"`
	Anthropic *anthropic.Config `yaml:"anthropic"`
}

// RedisConfig holds the shared Redis connection settings for the cache and
// the conversation store.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// CacheConfig holds result cache settings.
type CacheConfig struct {
	Enabled bool          `yaml:"enabled"`
	TTL     time.Duration `yaml:"ttl"`
}

// ConversationConfig holds session memory settings.
type ConversationConfig struct {
	TTL        time.Duration `yaml:"ttl"`
	MaxHistory int           `yaml:"max_history"`
}

// FastPathConfig overrides the built-in keyword sets; empty lists keep the
// defaults.
type FastPathConfig struct {
	DangerKeywords []string `yaml:"danger_keywords"`
	Greetings      []string `yaml:"greetings"`
}

// MaskingConfig overrides the built-in terminology policy; an empty list
// keeps the defaults.
type MaskingConfig struct {
	Rules []masking.Rule `yaml:"rules"`
}

// PipelineConfig holds end-to-end request settings.
type PipelineConfig struct {
	Timeout time.Duration `yaml:"timeout"`
}

// UsageConfig holds cost accounting settings.
type UsageConfig struct {
	FlushInterval time.Duration `yaml:"flush_interval"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "json" or "text"
	Output string `yaml:"output"` // "stdout", "stderr", or file path
}

// Load resolves configuration from defaults, an optional YAML file and the
// environment, then validates the result.
func Load(configPath string) (*Config, error) {
	config := &Config{}

	config.setDefaults()

	if configPath != "" {
		if err := config.loadFromFile(configPath); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	config.loadFromEnv()

	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

func (c *Config) setDefaults() {
	c.Server = ServerConfig{
		Port:           "8080",
		ReadTimeout:    30 * time.Second,
		WriteTimeout:   60 * time.Second,
		MaxHeaderBytes: 1 << 20, // 1MB
		MaxRequestSize: 64 << 10,
	}

	c.Router = routing.Config{
		FailureThreshold:  3,
		Cooldown:          30 * time.Second,
		LearnedConfidence: 0.85,
		ComplexityPremium: 0.6,
	}

	c.Tiers = TiersConfig{
		Economy: routing.TierBinding{
			Provider: "openai",
			Model: types.ModelInfo{
				Name:            "gpt-4o-mini",
				ProviderModelID: "gpt-4o-mini",
				InputCostPer1K:  0.00015,
				OutputCostPer1K: 0.0006,
				MaxTokens:       16384,
			},
		},
		Standard: routing.TierBinding{
			Provider: "openai",
			Model: types.ModelInfo{
				Name:            "gpt-4o",
				ProviderModelID: "gpt-4o",
				InputCostPer1K:  0.005,
				OutputCostPer1K: 0.015,
				MaxTokens:       4096,
			},
		},
		Premium: routing.TierBinding{
			Provider: "anthropic",
			Model: types.ModelInfo{
				Name:            "claude-3-5-sonnet-20241022",
				ProviderModelID: "claude-3-5-sonnet-20241022",
				InputCostPer1K:  0.003,
				OutputCostPer1K: 0.015,
				MaxTokens:       8192,
			},
		},
	}

	c.Providers = ProvidersConfig{
		OpenAI:    &openai.Config{Timeout: 60 * time.Second},
		Anthropic: &anthropic.Config{Timeout: 60 * time.Second, MaxTokens: 1024},
	}

	c.Redis = RedisConfig{
		Addr: "localhost:6379",
		DB:   0,
	}

	c.Cache = CacheConfig{
		Enabled: true,
		TTL:     5 * time.Minute,
	}

	c.Conversation = ConversationConfig{
		TTL:        30 * time.Minute,
		MaxHistory: 10,
	}

	c.Pipeline = PipelineConfig{
		Timeout: 30 * time.Second,
	}

	c.Usage = UsageConfig{
		FlushInterval: time.Minute,
	}

	c.Logging = LoggingConfig{
		Level:  "info",
		Format: "json",
		Output: "stdout",
	}
}

func (c *Config) loadFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse YAML config: %w", err)
	}

	return nil
}

func (c *Config) loadFromEnv() {
	if port := os.Getenv("FLOWPILOT_PORT"); port != "" {
		c.Server.Port = port
	}

	if openaiKey := os.Getenv("OPENAI_API_KEY"); openaiKey != "" {
		if c.Providers.OpenAI != nil {
			c.Providers.OpenAI.APIKey = openaiKey
		}
	}

	if anthropicKey := os.Getenv("ANTHROPIC_API_KEY"); anthropicKey != "" {
		if c.Providers.Anthropic != nil {
			c.Providers.Anthropic.APIKey = anthropicKey
		}
	}

	if addr := os.Getenv("FLOWPILOT_REDIS_ADDR"); addr != "" {
		c.Redis.Addr = addr
	}

	if password := os.Getenv("FLOWPILOT_REDIS_PASSWORD"); password != "" {
		c.Redis.Password = password
	}

	if level := os.Getenv("FLOWPILOT_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}

	if format := os.Getenv("FLOWPILOT_LOG_FORMAT"); format != "" {
		c.Logging.Format = format
	}
}

func (c *Config) validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port cannot be empty")
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
		"fatal": true,
	}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}

	providerCount := 0
	enabled := map[string]bool{}

	if c.Providers.OpenAI != nil && c.Providers.OpenAI.APIKey != "" {
		enabled["openai"] = true
		providerCount++
	}
	if c.Providers.Anthropic != nil && c.Providers.Anthropic.APIKey != "" {
		enabled["anthropic"] = true
		providerCount++
	}
	if providerCount == 0 {
		return fmt.Errorf("at least one provider must be configured")
	}

	for tier, binding := range c.TierBindings() {
		if binding.Provider == "" {
			return fmt.Errorf("tier %s has no provider", tier)
		}
		if !enabled[binding.Provider] {
			return fmt.Errorf("tier %s references provider %q which is not configured", tier, binding.Provider)
		}
		if binding.Model.ProviderModelID == "" {
			return fmt.Errorf("tier %s has no model", tier)
		}
	}

	if c.Router.FailureThreshold < 0 {
		return fmt.Errorf("router failure threshold cannot be negative")
	}
	if c.Router.LearnedConfidence < 0 || c.Router.LearnedConfidence > 1 {
		return fmt.Errorf("learned confidence threshold must be within [0,1]")
	}

	if c.Redis.Addr == "" {
		return fmt.Errorf("redis address cannot be empty")
	}

	return nil
}

// ToServerConfig converts to server.Config.
func (c *Config) ToServerConfig() *server.Config {
	return &server.Config{
		Port:           c.Server.Port,
		ReadTimeout:    c.Server.ReadTimeout,
		WriteTimeout:   c.Server.WriteTimeout,
		MaxHeaderBytes: c.Server.MaxHeaderBytes,
		Security: &middleware.SecurityConfig{
			Auth:           &middleware.AuthConfig{APIKeys: c.Server.APIKeys},
			RateLimit:      c.Server.RateLimit,
			MaxRequestSize: c.Server.MaxRequestSize,
		},
	}
}

// TierBindings returns the tier table as a map keyed by tier.
func (c *Config) TierBindings() map[types.Tier]routing.TierBinding {
	return map[types.Tier]routing.TierBinding{
		types.TierEconomy:  c.Tiers.Economy,
		types.TierStandard: c.Tiers.Standard,
		types.TierPremium:  c.Tiers.Premium,
	}
}

// EnabledProviders returns the names of providers with an API key set.
func (c *Config) EnabledProviders() []string {
	var providers []string
	if c.Providers.OpenAI != nil && c.Providers.OpenAI.APIKey != "" {
		providers = append(providers, "openai")
	}
	if c.Providers.Anthropic != nil && c.Providers.Anthropic.APIKey != "" {
		providers = append(providers, "anthropic")
	}
	return providers
}

// SaveToFile writes the resolved configuration as YAML.
func (c *Config) SaveToFile(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config to YAML: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
