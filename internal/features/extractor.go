package features

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Features holds the lightweight signals the router's rule-based tier
// selection works from. Extraction is pure and never touches the network.
type Features struct {
	Length          int
	WordCount       int
	HasListPhrasing bool
	HasAnalytical   bool
	HasQuestionMark bool
	Complexity      float64 // [0,1]
	Language        string  // "it", "en" or "" when unclear
}

var listMarkers = []string{
	"list", "show all", "all the", "every", "elenco", "elenca",
	"tutti", "tutte", "quali sono", "mostrami",
}

var analyticalMarkers = []string{
	"why", "analy", "compare", "trend", "explain", "perché", "perche",
	"analisi", "confronta", "andamento", "spiega", "ottimizza", "optimize",
}

var italianStopwords = []string{
	"il", "la", "le", "gli", "che", "come", "sono", "del", "della",
	"quale", "quali", "dei", "delle", "un", "una", "mi", "di",
}

var englishStopwords = []string{
	"the", "is", "are", "what", "which", "how", "of", "my", "me", "a", "an",
}

// Extract derives signals from raw query text.
func Extract(text string) Features {
	lower := strings.ToLower(strings.TrimSpace(text))
	words := strings.Fields(lower)

	f := Features{
		Length:          utf8.RuneCountInString(lower),
		WordCount:       len(words),
		HasQuestionMark: strings.Contains(lower, "?"),
		Language:        guessLanguage(words),
	}

	for _, m := range listMarkers {
		if strings.Contains(lower, m) {
			f.HasListPhrasing = true
			break
		}
	}
	for _, m := range analyticalMarkers {
		if strings.Contains(lower, m) {
			f.HasAnalytical = true
			break
		}
	}

	f.Complexity = complexityScore(f, lower)
	return f
}

// complexityScore blends length, phrasing and punctuation into [0,1].
func complexityScore(f Features, lower string) float64 {
	score := 0.0

	switch {
	case f.WordCount > 25:
		score += 0.4
	case f.WordCount > 12:
		score += 0.25
	case f.WordCount > 5:
		score += 0.1
	}

	if f.HasAnalytical {
		score += 0.35
	}
	if f.HasListPhrasing {
		score += 0.1
	}

	// Multiple clauses hint at a compound question.
	clauses := 0
	for _, r := range lower {
		if r == ',' || r == ';' {
			clauses++
		}
	}
	if clauses >= 2 {
		score += 0.15
	} else if clauses == 1 {
		score += 0.05
	}

	if score > 1.0 {
		score = 1.0
	}
	return score
}

// guessLanguage counts stopword hits per language; ties and empty input stay
// undetermined.
func guessLanguage(words []string) string {
	it, en := 0, 0
	for _, w := range words {
		w = strings.TrimFunc(w, unicode.IsPunct)
		for _, s := range italianStopwords {
			if w == s {
				it++
				break
			}
		}
		for _, s := range englishStopwords {
			if w == s {
				en++
				break
			}
		}
	}
	switch {
	case it > en:
		return "it"
	case en > it:
		return "en"
	default:
		return ""
	}
}
