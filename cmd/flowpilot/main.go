package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/flowpilot-ai/flowpilot/internal/cache"
	"github.com/flowpilot-ai/flowpilot/internal/classifier"
	"github.com/flowpilot-ai/flowpilot/internal/config"
	"github.com/flowpilot-ai/flowpilot/internal/conversation"
	"github.com/flowpilot-ai/flowpilot/internal/executor"
	"github.com/flowpilot-ai/flowpilot/internal/fastpath"
	"github.com/flowpilot-ai/flowpilot/internal/mapping"
	"github.com/flowpilot-ai/flowpilot/internal/masking"
	"github.com/flowpilot-ai/flowpilot/internal/operations"
	"github.com/flowpilot-ai/flowpilot/internal/pipeline"
	"github.com/flowpilot-ai/flowpilot/internal/providers/anthropic"
	"github.com/flowpilot-ai/flowpilot/internal/providers/openai"
	"github.com/flowpilot-ai/flowpilot/internal/routing"
	"github.com/flowpilot-ai/flowpilot/internal/server"
	"github.com/flowpilot-ai/flowpilot/internal/synthesis"
	"github.com/flowpilot-ai/flowpilot/internal/usage"
)

// Application ties together configuration, the pipeline and the HTTP server.
type Application struct {
	config   *config.Config
	server   *server.Server
	tracker  *usage.Tracker
	sessions *conversation.Store
	logger   *logrus.Logger
}

// NewApplication builds the full stack from configuration.
func NewApplication(configPath string) (*Application, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger := logrus.New()
	if err := setupLogger(logger, cfg.Logging); err != nil {
		return nil, fmt.Errorf("failed to setup logger: %w", err)
	}

	tracker := usage.NewTracker(cfg.Usage.FlushInterval, logger)

	router := routing.NewRouter(cfg.Router, tracker, logger)
	if err := registerProviders(router, cfg, logger); err != nil {
		return nil, fmt.Errorf("failed to register providers: %w", err)
	}
	for tier, binding := range cfg.TierBindings() {
		router.BindTier(tier, binding)
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	enforcer, err := masking.New(cfg.Masking.Rules, logger)
	if err != nil {
		return nil, fmt.Errorf("invalid masking policy: %w", err)
	}

	resultCache := cache.NewDisabled()
	if cfg.Cache.Enabled {
		resultCache = cache.New(redisClient, cfg.Cache.TTL, logger)
	}

	filter := fastpath.New(cfg.FastPath.DangerKeywords, cfg.FastPath.Greetings, logger)

	registry := operations.NewRegistry()
	registerDemoOperations(registry)

	sessions := conversation.NewStore(redisClient, cfg.Conversation.TTL, cfg.Conversation.MaxHistory, logger)

	p := pipeline.New(pipeline.Config{
		FastPath:   filter,
		Classifier: classifier.New(filter, router, logger),
		Executor:   executor.New(registry, logger),
		Synth:      synthesis.New(router, logger),
		Enforcer:   enforcer,
		Cache:      resultCache,
		Sessions:   sessions,
		Logger:     logger,
		Timeout:    cfg.Pipeline.Timeout,
	})

	srv := server.New(p, router, tracker, cfg.ToServerConfig(), logger)

	return &Application{
		config:   cfg,
		server:   srv,
		tracker:  tracker,
		sessions: sessions,
		logger:   logger,
	}, nil
}

// Run starts the application and blocks until shutdown.
func (app *Application) Run() error {
	app.logger.Info("Starting flowpilot")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	serverErrors := make(chan error, 1)
	go func() {
		app.logger.WithField("address", ":"+app.config.Server.Port).Info("HTTP server starting")
		if err := app.server.Start(); err != nil {
			serverErrors <- fmt.Errorf("server failed to start: %w", err)
		}
	}()

	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)
	case sig := <-sigChan:
		app.logger.WithField("signal", sig.String()).Info("Shutdown signal received")
	}

	app.logger.Info("Starting graceful shutdown...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := app.server.Stop(shutdownCtx); err != nil {
		app.logger.WithError(err).Error("Server shutdown error")
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	app.tracker.Stop()
	app.sessions.Stop()

	app.logger.Info("Graceful shutdown completed")
	return nil
}

// setupLogger configures the logger based on configuration.
func setupLogger(logger *logrus.Logger, cfg config.LoggingConfig) error {
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		return fmt.Errorf("invalid log level %s: %w", cfg.Level, err)
	}
	logger.SetLevel(level)

	switch cfg.Format {
	case "json":
		logger.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: time.RFC3339,
		})
	case "text":
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: time.RFC3339,
		})
	default:
		return fmt.Errorf("invalid log format: %s", cfg.Format)
	}

	switch cfg.Output {
	case "stdout":
		logger.SetOutput(os.Stdout)
	case "stderr":
		logger.SetOutput(os.Stderr)
	default:
		file, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
		if err != nil {
			return fmt.Errorf("failed to open log file %s: %w", cfg.Output, err)
		}
		logger.SetOutput(file)
	}

	return nil
}

// registerProviders registers all configured providers with the router.
func registerProviders(router *routing.Router, cfg *config.Config, logger *logrus.Logger) error {
	registered := 0

	if cfg.Providers.OpenAI != nil && cfg.Providers.OpenAI.APIKey != "" {
		router.RegisterProvider(openai.New(cfg.Providers.OpenAI, logger))
		registered++
	}

	if cfg.Providers.Anthropic != nil && cfg.Providers.Anthropic.APIKey != "" {
		router.RegisterProvider(anthropic.New(cfg.Providers.Anthropic, logger))
		registered++
	}

	if registered == 0 {
		return fmt.Errorf("no providers were registered - check your configuration and API keys")
	}

	logger.WithField("count", registered).Info("Provider registration completed")
	return nil
}

// registerDemoOperations fills the registry with static sample data. A real
// deployment replaces these with calls into the automation backend.
func registerDemoOperations(registry *operations.Registry) {
	static := func(v interface{}) operations.Func {
		payload, _ := json.Marshal(v)
		return func(_ context.Context, _ map[string]string) (string, error) {
			return string(payload), nil
		}
	}

	workflows := []map[string]interface{}{
		{"id": "wf-invoicing", "name": "Fatturazione", "active": true},
		{"id": "wf-crm-sync", "name": "Sincronizzazione CRM", "active": true},
		{"id": "wf-reports", "name": "Report Settimanale", "active": false},
	}

	registry.Register(mapping.OpListWorkflows, static(workflows))
	registry.Register(mapping.OpWorkflowDetail, static(workflows[0]))
	registry.Register(mapping.OpWorkflowStatus, static(map[string]interface{}{
		"id": "wf-invoicing", "active": true, "last_run": "success",
	}))
	registry.Register(mapping.OpAllErrorsSummary, static(map[string]interface{}{
		"total_errors": 2, "affected": []string{"wf-crm-sync"},
	}))
	registry.Register(mapping.OpWorkflowErrors, static(map[string]interface{}{
		"id": "wf-crm-sync", "errors": []string{"connection refused at 03:12"},
	}))
	registry.Register(mapping.OpNodeDetail, static(map[string]interface{}{
		"id": "step-1", "name": "Invio email", "status": "ok",
	}))
	registry.Register(mapping.OpExecutionHistory, static([]map[string]interface{}{
		{"run": 1, "status": "success"},
		{"run": 2, "status": "error"},
	}))
	registry.Register(mapping.OpPerformanceStats, static(map[string]interface{}{
		"avg_duration_ms": 840, "runs_per_day": 24,
	}))
	registry.Register(mapping.OpSetWorkflowActive, func(_ context.Context, params map[string]string) (string, error) {
		result := map[string]string{
			"id":     params[mapping.ParamWorkflowID],
			"active": params[mapping.ParamActive],
		}
		payload, _ := json.Marshal(result)
		return string(payload), nil
	})
}

// printUsage prints application usage information.
func printUsage() {
	fmt.Fprintf(os.Stderr, "Usage: %s [options]\n", os.Args[0])
	fmt.Fprintf(os.Stderr, "\nOptions:\n")
	flag.PrintDefaults()
	fmt.Fprintf(os.Stderr, "\nEnvironment Variables:\n")
	fmt.Fprintf(os.Stderr, "  OPENAI_API_KEY            OpenAI API key\n")
	fmt.Fprintf(os.Stderr, "  ANTHROPIC_API_KEY         Anthropic API key\n")
	fmt.Fprintf(os.Stderr, "  FLOWPILOT_PORT            Server port (default: 8080)\n")
	fmt.Fprintf(os.Stderr, "  FLOWPILOT_REDIS_ADDR      Redis address (default: localhost:6379)\n")
	fmt.Fprintf(os.Stderr, "  FLOWPILOT_LOG_LEVEL       Log level (debug,info,warn,error,fatal)\n")
	fmt.Fprintf(os.Stderr, "  FLOWPILOT_LOG_FORMAT      Log format (json,text)\n")
	fmt.Fprintf(os.Stderr, "\nExamples:\n")
	fmt.Fprintf(os.Stderr, "  %s --config configs/config.yaml\n", os.Args[0])
	fmt.Fprintf(os.Stderr, "  OPENAI_API_KEY=sk-xxx %s\n", os.Args[0])
}

func main() {
	var (
		configPath = flag.String("config", "", "Path to configuration file")
		showHelp   = flag.Bool("help", false, "Show help message")
		version    = flag.Bool("version", false, "Show version information")
	)
	flag.Parse()

	if *showHelp {
		printUsage()
		os.Exit(0)
	}

	if *version {
		fmt.Printf("flowpilot v1.0.0\n")
		os.Exit(0)
	}

	// Local development convenience; missing .env is fine.
	_ = godotenv.Load()

	app, err := NewApplication(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create application: %v\n", err)
		os.Exit(1)
	}

	if err := app.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Application error: %v\n", err)
		os.Exit(1)
	}
}
