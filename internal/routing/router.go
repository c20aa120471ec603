package routing

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/flowpilot-ai/flowpilot/internal/features"
	"github.com/flowpilot-ai/flowpilot/internal/providers"
	"github.com/flowpilot-ai/flowpilot/internal/types"
	"github.com/flowpilot-ai/flowpilot/internal/usage"
)

// ErrAllTiersUnavailable is returned when every tier in the fallback chain is
// open or failing. The pipeline translates it into a generic "temporarily
// unavailable" message; the raw error never reaches the user.
var ErrAllTiersUnavailable = errors.New("all model tiers unavailable")

// ErrTierNotConfigured is returned when a forced tier has no binding.
var ErrTierNotConfigured = errors.New("tier not configured")

// TierBinding attaches a tier to a provider and one of its models.
type TierBinding struct {
	Provider string          `yaml:"provider"`
	Model    types.ModelInfo `yaml:"model"`
}

// LearnedSelector is the optional learned tier classifier. Its prediction is
// honored only above the configured confidence threshold; otherwise the
// rule-based decision wins, keeping routing auditable.
type LearnedSelector func(f features.Features) (types.Tier, float64)

// Config holds router tunables.
type Config struct {
	FailureThreshold  int           `yaml:"failure_threshold"`
	Cooldown          time.Duration `yaml:"cooldown"`
	LearnedConfidence float64       `yaml:"learned_confidence_threshold"`
	ComplexityPremium float64       `yaml:"complexity_premium_threshold"`
}

// Router selects a model tier per call, tracks usage and cost, and fails
// over through the fixed tier chain when a circuit opens.
type Router struct {
	mu        sync.RWMutex
	providers map[string]providers.LLMProvider
	tiers     map[types.Tier]TierBinding
	breakers  map[types.Tier]*Breaker

	learned LearnedSelector
	tracker *usage.Tracker
	config  Config
	logger  *logrus.Logger
}

// NewRouter creates a router with no providers or tiers bound yet.
func NewRouter(config Config, tracker *usage.Tracker, logger *logrus.Logger) *Router {
	if config.ComplexityPremium == 0 {
		config.ComplexityPremium = 0.6
	}
	if config.Cooldown == 0 {
		config.Cooldown = 30 * time.Second
	}

	return &Router{
		providers: make(map[string]providers.LLMProvider),
		tiers:     make(map[types.Tier]TierBinding),
		breakers:  make(map[types.Tier]*Breaker),
		tracker:   tracker,
		config:    config,
		logger:    logger,
	}
}

// RegisterProvider adds a provider under its name.
func (r *Router) RegisterProvider(p providers.LLMProvider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[p.Name()] = p
	r.logger.WithField("provider", p.Name()).Info("Provider registered")
}

// BindTier attaches a tier to a provider/model pair and arms its breaker.
func (r *Router) BindTier(tier types.Tier, binding TierBinding) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tiers[tier] = binding
	r.breakers[tier] = NewBreaker(r.config.FailureThreshold, r.config.Cooldown)
	r.logger.WithFields(logrus.Fields{
		"tier":     tier,
		"provider": binding.Provider,
		"model":    binding.Model.Name,
	}).Info("Tier bound")
}

// SetLearnedSelector installs the optional learned tier classifier.
func (r *Router) SetLearnedSelector(s LearnedSelector) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.learned = s
}

// Route picks the tier for a query. forcedTier overrides selection (used by
// callers that already know the call class, e.g. synthesis reusing the
// classification tier). The decision is advisory: Invoke still applies
// failover if the chosen tier is unhealthy.
func (r *Router) Route(query string, forcedTier types.Tier) *types.RouterDecision {
	f := features.Extract(query)

	if forcedTier != "" {
		return r.decisionFor(forcedTier, f, 1.0, "tier forced by caller")
	}

	tier, reasoning := r.ruleBasedTier(f)
	confidence := 0.7

	r.mu.RLock()
	learned := r.learned
	threshold := r.config.LearnedConfidence
	r.mu.RUnlock()

	if learned != nil {
		if predicted, conf := learned(f); conf >= threshold && threshold > 0 {
			tier = predicted
			confidence = conf
			reasoning = fmt.Sprintf("learned selector (confidence %.2f)", conf)
		}
	}

	return r.decisionFor(tier, f, confidence, reasoning)
}

// ruleBasedTier is the explicit, auditable selection baseline.
func (r *Router) ruleBasedTier(f features.Features) (types.Tier, string) {
	switch {
	case f.Complexity >= r.config.ComplexityPremium || f.HasAnalytical:
		return types.TierPremium, "analytical or complex phrasing"
	case f.HasListPhrasing:
		return types.TierStandard, "batch/list phrasing"
	default:
		return types.TierEconomy, "simple query"
	}
}

func (r *Router) decisionFor(tier types.Tier, f features.Features, confidence float64, reasoning string) *types.RouterDecision {
	r.mu.RLock()
	binding, ok := r.tiers[tier]
	r.mu.RUnlock()

	decision := &types.RouterDecision{
		Tier:       tier,
		Confidence: confidence,
		Reasoning:  reasoning,
	}
	if !ok {
		return decision
	}

	// Rough token estimate: ~4 chars per token plus a completion allowance.
	promptTokens := f.Length / 4
	completionTokens := 300
	decision.Model = binding.Model.Name
	decision.EstimatedTokens = promptTokens + completionTokens
	decision.EstimatedCost = float64(promptTokens)*binding.Model.InputCostPer1K/1000 +
		float64(completionTokens)*binding.Model.OutputCostPer1K/1000

	return decision
}

// Invoke sends prompt through the tier's fallback chain. Open tiers are
// skipped without being attempted; a failure marks the breaker and moves to
// the next tier. Every call is recorded in the usage tracker.
func (r *Router) Invoke(ctx context.Context, tier types.Tier, prompt string) (string, types.Tier, error) {
	for _, candidate := range tier.FallbackOrder() {
		r.mu.RLock()
		binding, bound := r.tiers[candidate]
		breaker := r.breakers[candidate]
		var provider providers.LLMProvider
		if bound {
			provider = r.providers[binding.Provider]
		}
		r.mu.RUnlock()

		if !bound || provider == nil {
			continue
		}
		if !breaker.Allow() {
			r.logger.WithField("tier", candidate).Debug("Tier circuit open, skipping")
			continue
		}

		text, tokenUsage, err := provider.Complete(ctx, binding.Model.ProviderModelID, prompt)
		if err != nil {
			breaker.RecordFailure()
			r.tracker.Record(candidate, types.Usage{}, 0, true)
			r.logger.WithError(err).WithFields(logrus.Fields{
				"tier":     candidate,
				"provider": binding.Provider,
				"state":    breaker.State(),
			}).Warn("Tier call failed, trying next tier")
			continue
		}

		breaker.RecordSuccess()
		r.tracker.Record(candidate, tokenUsage, callCost(binding.Model, tokenUsage), false)
		return text, candidate, nil
	}

	return "", "", ErrAllTiersUnavailable
}

// InvokeForced sends prompt through exactly one tier, without failover.
func (r *Router) InvokeForced(ctx context.Context, tier types.Tier, prompt string) (string, error) {
	r.mu.RLock()
	binding, bound := r.tiers[tier]
	breaker := r.breakers[tier]
	var provider providers.LLMProvider
	if bound {
		provider = r.providers[binding.Provider]
	}
	r.mu.RUnlock()

	if !bound || provider == nil {
		return "", fmt.Errorf("%w: %s", ErrTierNotConfigured, tier)
	}
	if !breaker.Allow() {
		return "", fmt.Errorf("tier %s circuit open: %w", tier, ErrAllTiersUnavailable)
	}

	text, tokenUsage, err := provider.Complete(ctx, binding.Model.ProviderModelID, prompt)
	if err != nil {
		breaker.RecordFailure()
		r.tracker.Record(tier, types.Usage{}, 0, true)
		return "", err
	}

	breaker.RecordSuccess()
	r.tracker.Record(tier, tokenUsage, callCost(binding.Model, tokenUsage), false)
	return text, nil
}

// BreakerStates reports the circuit state of every bound tier, for health
// reporting.
func (r *Router) BreakerStates() map[types.Tier]BreakerState {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[types.Tier]BreakerState, len(r.breakers))
	for tier, b := range r.breakers {
		out[tier] = b.State()
	}
	return out
}

func callCost(model types.ModelInfo, u types.Usage) float64 {
	return float64(u.PromptTokens)*model.InputCostPer1K/1000 +
		float64(u.CompletionTokens)*model.OutputCostPer1K/1000
}
