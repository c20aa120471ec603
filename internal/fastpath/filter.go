package fastpath

import (
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/flowpilot-ai/flowpilot/internal/types"
)

// RefusalMessage is the fixed safe answer for safety-critical queries. It
// deliberately says nothing about what was matched.
const RefusalMessage = "I'm sorry, I can't help with that. I can answer questions " +
	"about your business processes, their status and their results."

// GreetingMessage is the fixed friendly answer for exact-match greetings.
const GreetingMessage = "Hello! Ask me anything about your business processes: " +
	"status, errors, history or performance."

// defaultDangerKeywords short-circuit before any model call. Substring match,
// lower-cased; a single hit anywhere in the query wins over any other intent.
var defaultDangerKeywords = []string{
	"password", "credential", "credenziali", "api key", "apikey", "token",
	"secret", "chiave di accesso", "database", "server", "architettura",
	"architecture", "infrastruttura", "infrastructure", "host", "docker",
	"kubernetes", "n8n", "endpoint", "connection string",
}

// defaultGreetings are matched exactly after lower-casing and trimming.
var defaultGreetings = []string{
	"ciao", "salve", "buongiorno", "buonasera", "hey", "hi", "hello",
	"good morning", "good evening", "hola",
}

// Filter is the keyword short-circuit sitting ahead of every other stage.
// All state is read-only after construction, safe for concurrent use.
type Filter struct {
	danger    []string
	greetings map[string]struct{}
	logger    *logrus.Logger
}

// New builds a filter. Empty slices fall back to the built-in keyword sets.
func New(danger, greetings []string, logger *logrus.Logger) *Filter {
	if len(danger) == 0 {
		danger = defaultDangerKeywords
	}
	if len(greetings) == 0 {
		greetings = defaultGreetings
	}

	gset := make(map[string]struct{}, len(greetings))
	for _, g := range greetings {
		gset[strings.ToLower(strings.TrimSpace(g))] = struct{}{}
	}

	lowered := make([]string, len(danger))
	for i, d := range danger {
		lowered[i] = strings.ToLower(d)
	}

	return &Filter{danger: lowered, greetings: gset, logger: logger}
}

// Check tests the query against the danger set first, then the greeting set.
// The second return is false when neither matched and the classifier must run.
func (f *Filter) Check(query string) (*types.Decision, bool) {
	normalized := strings.ToLower(strings.TrimSpace(query))
	if normalized == "" {
		return nil, false
	}

	// Security first: a danger keyword anywhere overrides everything else.
	for _, kw := range f.danger {
		if strings.Contains(normalized, kw) {
			f.logger.WithFields(logrus.Fields{
				"keyword":  kw,
				"category": types.CategoryDanger,
			}).Warn("Fast path blocked query")

			return &types.Decision{
				Action:         types.ActionRespond,
				Category:       types.CategoryDanger,
				Confidence:     1.0,
				Reasoning:      "danger keyword matched",
				DirectResponse: RefusalMessage,
			}, true
		}
	}

	if _, ok := f.greetings[normalized]; ok {
		f.logger.WithField("category", types.CategoryGreeting).Debug("Fast path greeting")
		return &types.Decision{
			Action:         types.ActionRespond,
			Category:       types.CategoryGreeting,
			Confidence:     1.0,
			Reasoning:      "greeting exact match",
			DirectResponse: GreetingMessage,
		}, true
	}

	return nil, false
}
