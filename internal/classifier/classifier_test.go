package classifier

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowpilot-ai/flowpilot/internal/fastpath"
	"github.com/flowpilot-ai/flowpilot/internal/routing"
	"github.com/flowpilot-ai/flowpilot/internal/types"
	"github.com/flowpilot-ai/flowpilot/internal/usage"
)

// scriptedProvider returns a fixed body for every completion call.
type scriptedProvider struct {
	body string
	err  error
}

func (s *scriptedProvider) Name() string { return "scripted" }

func (s *scriptedProvider) Complete(_ context.Context, _ string, _ string) (string, types.Usage, error) {
	if s.err != nil {
		return "", types.Usage{}, s.err
	}
	return s.body, types.Usage{TotalTokens: 10}, nil
}

func (s *scriptedProvider) HealthCheck(_ context.Context) error { return nil }

func newTestClassifier(t *testing.T, p *scriptedProvider) *Classifier {
	t.Helper()
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)

	tracker := usage.NewTracker(0, logger)
	t.Cleanup(tracker.Stop)

	router := routing.NewRouter(routing.Config{FailureThreshold: 3, Cooldown: time.Minute}, tracker, logger)
	router.RegisterProvider(p)
	binding := routing.TierBinding{Provider: "scripted", Model: types.ModelInfo{Name: "m", ProviderModelID: "m-1"}}
	router.BindTier(types.TierEconomy, binding)
	router.BindTier(types.TierStandard, binding)
	router.BindTier(types.TierPremium, binding)

	return New(fastpath.New(nil, nil, logger), router, logger)
}

func TestClassify_FastPathShortCircuits(t *testing.T) {
	p := &scriptedProvider{err: errors.New("must not be called")}
	c := newTestClassifier(t, p)

	decision, err := c.Classify(context.Background(), "qual è la password del server?", nil)

	require.NoError(t, err)
	assert.Equal(t, types.CategoryDanger, decision.Category)
	assert.Equal(t, types.ActionRespond, decision.Action)
}

func TestClassify_ValidJSON(t *testing.T) {
	p := &scriptedProvider{body: `{"category":"WORKFLOW_STATUS","confidence":0.92,"reasoning":"asks about a named process","parameters":{"workflow_name":"Fatturazione"}}`}
	c := newTestClassifier(t, p)

	decision, err := c.Classify(context.Background(), "come sta andando Fatturazione?", nil)

	require.NoError(t, err)
	assert.Equal(t, types.CategoryWorkflowStatus, decision.Category)
	assert.Equal(t, types.ActionInvoke, decision.Action)
	assert.Equal(t, 0.92, decision.Confidence)
	assert.Equal(t, "Fatturazione", decision.Parameters["workflow_name"])
	assert.NotEmpty(t, decision.Tier)
}

func TestClassify_CodeFencedJSON(t *testing.T) {
	p := &scriptedProvider{body: "```json\n{\"category\":\"WORKFLOW_LIST\",\"confidence\":0.9,\"reasoning\":\"list request\"}\n```"}
	c := newTestClassifier(t, p)

	decision, err := c.Classify(context.Background(), "elenca i processi", nil)

	require.NoError(t, err)
	assert.Equal(t, types.CategoryWorkflowList, decision.Category)
}

func TestClassify_ChattyPreambleJSON(t *testing.T) {
	p := &scriptedProvider{body: `Sure, here is the classification: {"category":"PERFORMANCE","confidence":0.8,"reasoning":"timing question"} hope that helps`}
	c := newTestClassifier(t, p)

	decision, err := c.Classify(context.Background(), "quanto è lento il sync?", nil)

	require.NoError(t, err)
	assert.Equal(t, types.CategoryPerformance, decision.Category)
}

func TestClassify_GarbageFallsBackToClarification(t *testing.T) {
	p := &scriptedProvider{body: "I think this might be about workflows?"}
	c := newTestClassifier(t, p)

	decision, err := c.Classify(context.Background(), "boh", nil)

	require.NoError(t, err)
	assert.Equal(t, types.CategoryClarification, decision.Category)
	assert.Equal(t, types.ActionRespond, decision.Action)
	assert.Equal(t, 0.5, decision.Confidence)
	assert.True(t, decision.NeedsClarification)
	assert.Equal(t, ClarificationMessage, decision.DirectResponse)
}

func TestClassify_UnknownCategoryFallsBackToClarification(t *testing.T) {
	p := &scriptedProvider{body: `{"category":"BANANA","confidence":0.99,"reasoning":"?"}`}
	c := newTestClassifier(t, p)

	decision, err := c.Classify(context.Background(), "fammi una banana", nil)

	require.NoError(t, err)
	assert.Equal(t, types.CategoryClarification, decision.Category)
	assert.True(t, decision.NeedsClarification)
}

func TestClassify_TerminalCategoriesRespondDirectly(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		category types.Category
		response string
	}{
		{"help", `{"category":"HELP","confidence":0.9}`, types.CategoryHelp, HelpMessage},
		{"danger", `{"category":"DANGER","confidence":0.9}`, types.CategoryDanger, fastpath.RefusalMessage},
		{"greeting", `{"category":"GREETING","confidence":0.9}`, types.CategoryGreeting, fastpath.GreetingMessage},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClassifier(t, &scriptedProvider{body: tt.body})

			decision, err := c.Classify(context.Background(), "cosa sai fare di preciso", nil)

			require.NoError(t, err)
			assert.Equal(t, tt.category, decision.Category)
			assert.Equal(t, types.ActionRespond, decision.Action)
			assert.Equal(t, tt.response, decision.DirectResponse)
		})
	}
}

func TestClassify_OutOfRangeConfidenceClamped(t *testing.T) {
	p := &scriptedProvider{body: `{"category":"WORKFLOW_LIST","confidence":7.5,"reasoning":"x"}`}
	c := newTestClassifier(t, p)

	decision, err := c.Classify(context.Background(), "lista completa", nil)

	require.NoError(t, err)
	assert.Equal(t, 0.5, decision.Confidence)
}

func TestClassify_ProviderFailureReturnsError(t *testing.T) {
	p := &scriptedProvider{err: errors.New("upstream down")}
	c := newTestClassifier(t, p)

	_, err := c.Classify(context.Background(), "stato dei processi per favore", nil)

	assert.ErrorIs(t, err, routing.ErrAllTiersUnavailable)
}

func TestBuildPrompt_IncludesHistoryAndCategories(t *testing.T) {
	history := []types.Message{
		{Role: "user", Content: "come va il sync?"},
		{Role: "assistant", Content: "Il processo è attivo."},
	}

	prompt := buildPrompt("e gli errori?", history)

	for _, cat := range types.AllCategories {
		assert.Contains(t, prompt, string(cat))
	}
	assert.Contains(t, prompt, "come va il sync?")
	assert.Contains(t, prompt, "e gli errori?")
}
