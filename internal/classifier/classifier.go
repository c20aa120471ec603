package classifier

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/flowpilot-ai/flowpilot/internal/fastpath"
	"github.com/flowpilot-ai/flowpilot/internal/routing"
	"github.com/flowpilot-ai/flowpilot/internal/types"
)

// HelpMessage answers HELP queries without a second model call.
const HelpMessage = "I can list your business processes, report their status, " +
	"dig into errors, show execution history and performance, and activate or " +
	"deactivate a process. Ask me in plain language."

// ClarificationMessage is the fallback answer when intent cannot be
// determined.
const ClarificationMessage = "I'm not sure I understood. Could you rephrase, " +
	"or tell me which process you mean?"

// Classifier turns free-form text into a structured Decision. It re-runs the
// keyword fast path first so callers can use it standalone, then asks a model
// through the tier router. Model output that cannot be parsed degrades to a
// clarification request, never to an error.
type Classifier struct {
	filter *fastpath.Filter
	router *routing.Router
	logger *logrus.Logger
}

// New creates a classifier on top of the fast path and the tier router.
func New(filter *fastpath.Filter, router *routing.Router, logger *logrus.Logger) *Classifier {
	return &Classifier{filter: filter, router: router, logger: logger}
}

// modelOutput is the JSON shape the classification prompt asks for.
type modelOutput struct {
	Category   string            `json:"category"`
	Confidence float64           `json:"confidence"`
	Reasoning  string            `json:"reasoning"`
	Parameters map[string]string `json:"parameters"`
}

// Classify produces a Decision for the query. history gives the model the
// recent turns so follow-ups like "and the second one?" resolve; it may be
// nil.
func (c *Classifier) Classify(ctx context.Context, query string, history []types.Message) (*types.Decision, error) {
	if decision, hit := c.filter.Check(query); hit {
		return decision, nil
	}

	routeDecision := c.router.Route(query, "")
	prompt := buildPrompt(query, history)

	raw, servedTier, err := c.router.Invoke(ctx, routeDecision.Tier, prompt)
	if err != nil {
		return nil, fmt.Errorf("classification call failed: %w", err)
	}

	decision := c.parse(raw)
	decision.Tier = string(servedTier)
	return decision, nil
}

// parse extracts and validates the model's JSON. Any defect falls back to
// CLARIFICATION at confidence 0.5 rather than surfacing a parse error.
func (c *Classifier) parse(raw string) *types.Decision {
	payload := extractJSON(raw)

	var out modelOutput
	if err := json.Unmarshal([]byte(payload), &out); err != nil {
		c.logger.WithError(err).WithField("raw", truncate(raw, 200)).
			Warn("Classifier output not parseable, asking for clarification")
		return clarificationDecision("model output was not valid JSON")
	}

	category, known := types.ParseCategory(strings.TrimSpace(out.Category))
	if !known {
		c.logger.WithField("category", out.Category).
			Warn("Classifier produced unknown category, asking for clarification")
		return clarificationDecision("model produced an unknown category")
	}

	if out.Confidence <= 0 || out.Confidence > 1 {
		out.Confidence = 0.5
	}

	decision := &types.Decision{
		Category:   category,
		Confidence: out.Confidence,
		Reasoning:  out.Reasoning,
		Parameters: out.Parameters,
	}

	switch category {
	case types.CategoryGreeting:
		decision.Action = types.ActionRespond
		decision.DirectResponse = fastpath.GreetingMessage
	case types.CategoryDanger:
		decision.Action = types.ActionRespond
		decision.DirectResponse = fastpath.RefusalMessage
	case types.CategoryHelp:
		decision.Action = types.ActionRespond
		decision.DirectResponse = HelpMessage
	case types.CategoryClarification:
		decision.Action = types.ActionRespond
		decision.DirectResponse = ClarificationMessage
		decision.NeedsClarification = true
	default:
		decision.Action = types.ActionInvoke
	}

	return decision
}

func clarificationDecision(reasoning string) *types.Decision {
	return &types.Decision{
		Action:             types.ActionRespond,
		Category:           types.CategoryClarification,
		Confidence:         0.5,
		Reasoning:          reasoning,
		DirectResponse:     ClarificationMessage,
		NeedsClarification: true,
	}
}

// buildPrompt enumerates the closed category set so the model cannot invent
// labels, and pins the output contract to a single JSON object.
func buildPrompt(query string, history []types.Message) string {
	var b strings.Builder

	b.WriteString("You classify business process questions. Pick exactly one category from this list:\n")
	for _, cat := range types.AllCategories {
		b.WriteString("- ")
		b.WriteString(string(cat))
		b.WriteByte('\n')
	}

	b.WriteString("\nExtract parameters when the text names them: workflow_name, workflow_id, node_name, node_id, period, limit, active.\n")
	b.WriteString("Respond with only a JSON object: {\"category\": ..., \"confidence\": 0.0-1.0, \"reasoning\": ..., \"parameters\": {...}}\n")
	b.WriteString("Use CLARIFICATION when the intent is ambiguous.\n")

	if len(history) > 0 {
		b.WriteString("\nRecent conversation:\n")
		for _, m := range history {
			b.WriteString(m.Role)
			b.WriteString(": ")
			b.WriteString(truncate(m.Content, 300))
			b.WriteByte('\n')
		}
	}

	b.WriteString("\nQuery: ")
	b.WriteString(query)
	return b.String()
}

// extractJSON tolerates chatty models: it strips markdown code fences and
// falls back to the outermost brace pair before giving the text to the JSON
// decoder.
func extractJSON(raw string) string {
	s := strings.TrimSpace(raw)

	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		if end := strings.LastIndex(s, "```"); end >= 0 {
			s = s[:end]
		}
		s = strings.TrimSpace(s)
	}

	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start >= 0 && end > start {
		return s[start : end+1]
	}
	return s
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
