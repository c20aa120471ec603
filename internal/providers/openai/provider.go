package openai

import (
	"context"
	"fmt"
	"time"

	goopenai "github.com/sashabaranov/go-openai"
	"github.com/sirupsen/logrus"

	"github.com/flowpilot-ai/flowpilot/internal/providers"
	"github.com/flowpilot-ai/flowpilot/internal/types"
)

// Config holds OpenAI-specific configuration.
type Config struct {
	APIKey  string        `yaml:"api_key"`
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
}

// Provider implements providers.LLMProvider for the OpenAI chat API.
type Provider struct {
	client *goopenai.Client
	config *Config
	logger *logrus.Logger
}

// New creates an OpenAI provider instance.
func New(config *Config, logger *logrus.Logger) *Provider {
	clientCfg := goopenai.DefaultConfig(config.APIKey)
	if config.BaseURL != "" {
		clientCfg.BaseURL = config.BaseURL
	}

	return &Provider{
		client: goopenai.NewClientWithConfig(clientCfg),
		config: config,
		logger: logger,
	}
}

// Name returns the provider name.
func (p *Provider) Name() string {
	return "openai"
}

// Complete performs a single-shot chat completion.
func (p *Provider) Complete(ctx context.Context, model string, prompt string) (string, types.Usage, error) {
	if p.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.config.Timeout)
		defer cancel()
	}

	resp, err := p.client.CreateChatCompletion(ctx, goopenai.ChatCompletionRequest{
		Model: model,
		Messages: []goopenai.ChatCompletionMessage{
			{Role: goopenai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: 0.1,
	})
	if err != nil {
		p.logger.WithError(err).WithField("model", model).Error("OpenAI call failed")
		return "", types.Usage{}, fmt.Errorf("openai completion failed: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", types.Usage{}, fmt.Errorf("openai returned no choices for model %s", model)
	}

	usage := types.Usage{
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
		TotalTokens:      resp.Usage.TotalTokens,
	}

	return resp.Choices[0].Message.Content, usage, nil
}

// HealthCheck probes the API with a minimal request.
func (p *Provider) HealthCheck(ctx context.Context) error {
	_, err := p.client.ListModels(ctx)
	if err != nil {
		return fmt.Errorf("openai health check failed: %w", err)
	}
	return nil
}

var _ providers.LLMProvider = (*Provider)(nil)
