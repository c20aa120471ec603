package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseCategory(t *testing.T) {
	for _, c := range AllCategories {
		parsed, ok := ParseCategory(string(c))
		assert.True(t, ok, "category %s must parse", c)
		assert.Equal(t, c, parsed)
	}

	_, ok := ParseCategory("BANANA")
	assert.False(t, ok)
	_, ok = ParseCategory("")
	assert.False(t, ok)
	_, ok = ParseCategory("workflow_list")
	assert.False(t, ok, "parsing is case sensitive")
}

func TestCategory_Cacheable(t *testing.T) {
	cacheable := []Category{
		CategoryWorkflowList, CategoryWorkflowDetail, CategoryWorkflowStatus,
		CategoryStatusOverview, CategoryErrorAnalysis, CategoryStepDetail,
		CategoryExecutionHistory, CategoryPerformance,
	}
	for _, c := range cacheable {
		assert.True(t, c.Cacheable(), "%s should be cacheable", c)
	}

	notCacheable := []Category{
		CategoryGreeting, CategoryDanger, CategoryHelp,
		CategoryClarification, CategoryActivation,
	}
	for _, c := range notCacheable {
		assert.False(t, c.Cacheable(), "%s must not be cacheable", c)
	}
}

func TestTier_FallbackOrder(t *testing.T) {
	tests := []struct {
		tier Tier
		want []Tier
	}{
		{TierEconomy, []Tier{TierEconomy, TierStandard, TierPremium}},
		{TierStandard, []Tier{TierStandard, TierPremium, TierEconomy}},
		{TierPremium, []Tier{TierPremium, TierStandard, TierEconomy}},
		{Tier("unknown"), []Tier{TierEconomy, TierStandard, TierPremium}},
	}
	for _, tt := range tests {
		order := tt.tier.FallbackOrder()
		assert.Equal(t, tt.want, order, "tier %s", tt.tier)
		assert.Len(t, order, 3, "every tier is reachable from %s", tt.tier)
	}
}
