package synthesis

import (
	"context"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/flowpilot-ai/flowpilot/internal/routing"
	"github.com/flowpilot-ai/flowpilot/internal/types"
)

// NoDataMessage is returned when every operation came back empty or failed.
const NoDataMessage = "I couldn't find any data for that. The process may not " +
	"exist yet, or nothing has run recently."

// maxRawPayload bounds the degraded answer built straight from operation
// output when the model is unavailable.
const maxRawPayload = 1200

// Synthesizer turns raw operation results into a user-facing answer through
// the tier router. Partial failures are tolerated: any successful payload is
// enough to answer.
type Synthesizer struct {
	router *routing.Router
	logger *logrus.Logger
}

// New creates a synthesizer on top of the tier router.
func New(router *routing.Router, logger *logrus.Logger) *Synthesizer {
	return &Synthesizer{router: router, logger: logger}
}

// Synthesize writes a natural-language answer to query from results. tier is
// the tier that classified the query, reused so one request stays in one cost
// class. A provider outage degrades to the first successful raw payload
// instead of failing the request.
func (s *Synthesizer) Synthesize(ctx context.Context, query string, results []types.OperationResult, tier types.Tier) (string, error) {
	successes := successfulResults(results)
	if len(successes) == 0 {
		return NoDataMessage, nil
	}

	prompt := buildPrompt(query, successes)

	text, _, err := s.router.Invoke(ctx, tier, prompt)
	if err != nil {
		s.logger.WithError(err).Warn("Synthesis call failed, degrading to raw payload")
		return degradedAnswer(successes), nil
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return degradedAnswer(successes), nil
	}
	return text, nil
}

func successfulResults(results []types.OperationResult) []types.OperationResult {
	out := make([]types.OperationResult, 0, len(results))
	for _, r := range results {
		if r.Success && strings.TrimSpace(r.Payload) != "" {
			out = append(out, r)
		}
	}
	return out
}

// buildPrompt tags each payload with the operation that produced it so the
// model can attribute facts, and pins tone and language.
func buildPrompt(query string, results []types.OperationResult) string {
	var b strings.Builder

	b.WriteString("You answer questions about business processes for a non-technical user.\n")
	b.WriteString("Answer in the language of the question. Be concise and concrete.\n")
	b.WriteString("Use only the data below; do not invent numbers or names.\n")
	b.WriteString("Never mention internal tool or system names.\n\n")

	b.WriteString("Question: ")
	b.WriteString(query)
	b.WriteString("\n\nData:\n")

	for _, r := range results {
		b.WriteString("[")
		b.WriteString(r.Operation)
		b.WriteString("]\n")
		b.WriteString(r.Payload)
		b.WriteString("\n\n")
	}

	return b.String()
}

// degradedAnswer is the no-model fallback: the first successful payload,
// bounded so a huge export does not flood the chat.
func degradedAnswer(successes []types.OperationResult) string {
	payload := strings.TrimSpace(successes[0].Payload)
	if len(payload) > maxRawPayload {
		payload = payload[:maxRawPayload] + "..."
	}
	return "Here is what I found:\n" + payload
}
