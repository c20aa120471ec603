package masking

import (
	"regexp"
	"strings"

	"github.com/sirupsen/logrus"
)

// Rule maps one forbidden internal term to its business-level replacement.
// Rules are ordered: earlier rules run first, which matters when terms
// overlap ("workflow node" before "node").
type Rule struct {
	Forbidden   string `yaml:"forbidden"`
	Replacement string `yaml:"replacement"`
}

// DefaultRules is the built-in policy: internal platform vocabulary a
// business user must never see, in most-specific-first order.
var DefaultRules = []Rule{
	{Forbidden: "n8n", Replacement: "the automation platform"},
	{Forbidden: "workflow node", Replacement: "process step"},
	{Forbidden: "webhook", Replacement: "trigger"},
	{Forbidden: "workflow", Replacement: "process"},
	{Forbidden: "node", Replacement: "step"},
	{Forbidden: "execution", Replacement: "run"},
	{Forbidden: "payload", Replacement: "data"},
	{Forbidden: "api", Replacement: "integration"},
	{Forbidden: "endpoint", Replacement: "integration point"},
	{Forbidden: "database", Replacement: "archive"},
	{Forbidden: "query", Replacement: "request"},
}

// Enforcer applies the masking policy: deterministic substitution followed by
// a leak re-scan. Loaded once at startup; read-only while serving.
type Enforcer struct {
	rules    []Rule
	scanners []*regexp.Regexp // one whole-occurrence matcher per forbidden term
	logger   *logrus.Logger
}

// New compiles the policy. Empty rules fall back to DefaultRules. A rule
// whose replacement itself contains a forbidden term is a configuration
// error surfaced at startup, not at request time.
func New(rules []Rule, logger *logrus.Logger) (*Enforcer, error) {
	if len(rules) == 0 {
		rules = DefaultRules
	}

	// Whole-word matching keeps "api" from firing inside "rapidly"; the
	// substitution and the leak re-scan must share the same matcher or the
	// post-mask invariant cannot hold.
	e := &Enforcer{rules: rules, logger: logger}
	for _, r := range rules {
		e.scanners = append(e.scanners, regexp.MustCompile(`(?i)\b`+regexp.QuoteMeta(r.Forbidden)+`\b`))
	}

	for _, r := range rules {
		if clean, violations := e.Validate(r.Replacement); !clean {
			return nil, &PolicyError{Term: r.Forbidden, Violations: violations}
		}
	}

	return e, nil
}

// PolicyError reports a self-contradictory masking rule.
type PolicyError struct {
	Term       string
	Violations []string
}

func (e *PolicyError) Error() string {
	return "masking rule for " + e.Term + " reintroduces forbidden terms: " +
		strings.Join(e.Violations, ", ")
}

// Mask substitutes every forbidden term, then re-scans. If a term survives
// substitution (a rule gap, e.g. an obfuscated spelling slipping through a
// later rule's replacement), the offending sentence is suppressed rather
// than leaked, and the gap is logged for a policy update.
func (e *Enforcer) Mask(text string) string {
	masked := text
	for i, r := range e.rules {
		masked = e.scanners[i].ReplaceAllString(masked, r.Replacement)
	}

	clean, violations := e.Validate(masked)
	if clean {
		return masked
	}

	e.logger.WithField("violations", violations).
		Error("Masking policy gap: suppressing leaking segments")
	return e.suppress(masked)
}

// Validate re-scans text for any remaining forbidden term. The returned
// violations are the offending terms, lower-cased, deduplicated in rule
// order.
func (e *Enforcer) Validate(text string) (bool, []string) {
	var violations []string
	seen := make(map[string]struct{})
	for i, scanner := range e.scanners {
		if scanner.MatchString(text) {
			term := strings.ToLower(e.rules[i].Forbidden)
			if _, dup := seen[term]; !dup {
				seen[term] = struct{}{}
				violations = append(violations, term)
			}
		}
	}
	return len(violations) == 0, violations
}

// suppress removes every sentence still carrying a forbidden term. When
// nothing survives, a neutral apology is returned so the caller never emits
// an empty response.
func (e *Enforcer) suppress(text string) string {
	sentences := splitSentences(text)
	kept := sentences[:0]
	for _, s := range sentences {
		if clean, _ := e.Validate(s); clean {
			kept = append(kept, s)
		}
	}

	out := strings.TrimSpace(strings.Join(kept, " "))
	if out == "" {
		return "Part of the answer could not be shown. Please rephrase your question."
	}
	return out
}

var sentenceSplit = regexp.MustCompile(`(?s)[^.!?\n]+[.!?\n]?`)

func splitSentences(text string) []string {
	parts := sentenceSplit.FindAllString(text, -1)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if strings.TrimSpace(p) != "" {
			out = append(out, strings.TrimSpace(p))
		}
	}
	return out
}
