package types

// Tier is a cost/latency class of model provider.
type Tier string

const (
	TierEconomy  Tier = "economy"
	TierStandard Tier = "standard"
	TierPremium  Tier = "premium"
)

// FallbackOrder returns the fixed failover chain starting at t. An unhealthy
// tier hands its calls to the next entry without being attempted.
func (t Tier) FallbackOrder() []Tier {
	switch t {
	case TierEconomy:
		return []Tier{TierEconomy, TierStandard, TierPremium}
	case TierStandard:
		return []Tier{TierStandard, TierPremium, TierEconomy}
	case TierPremium:
		return []Tier{TierPremium, TierStandard, TierEconomy}
	default:
		return []Tier{TierEconomy, TierStandard, TierPremium}
	}
}

// ModelInfo describes one model a provider exposes, with pricing used for
// cost estimates and usage accounting.
type ModelInfo struct {
	Name            string  `yaml:"name" json:"name"`
	ProviderModelID string  `yaml:"provider_model_id" json:"provider_model_id"`
	InputCostPer1K  float64 `yaml:"input_cost_per_1k" json:"input_cost_per_1k"`
	OutputCostPer1K float64 `yaml:"output_cost_per_1k" json:"output_cost_per_1k"`
	MaxTokens       int     `yaml:"max_tokens" json:"max_tokens"`
}

// RouterDecision explains one tier selection. It is produced per LLM call and
// not retained beyond usage statistics.
type RouterDecision struct {
	Tier            Tier    `json:"tier"`
	Model           string  `json:"model"`
	Confidence      float64 `json:"confidence"`
	EstimatedCost   float64 `json:"estimated_cost"`
	EstimatedTokens int     `json:"estimated_tokens"`
	Reasoning       string  `json:"reasoning"`
}

// Usage holds token counts reported by a provider for one call.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}
