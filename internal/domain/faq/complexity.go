package faq

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

var repeatedPunct = regexp.MustCompile(`[?!]{2,}`)

// ComplexityFilter decides whether a question needs the full reasoning path
// instead of a canned answer. False negatives are preferred over wrong canned answers.
type ComplexityFilter struct {
	// Triggers are substrings that mark temporal, causal or evaluative questions.
	Triggers []string
	// MaxTokens is the largest whitespace-token count still eligible for a canned answer.
	MaxTokens int
	// PersonaName is the lowercase name whose mention, combined with MaxNamedLength, disqualifies.
	PersonaName string
	// MaxNamedLength is the largest rune length allowed for questions that mention PersonaName.
	MaxNamedLength int
}

// DefaultComplexityFilter returns the trigger list and thresholds tuned for the Abai persona.
func DefaultComplexityFilter() ComplexityFilter {
	return ComplexityFilter{
		Triggers: []string{
			"период", "год", "когда", "в каком", "в какие", "время", "эпоха",
			"сложно", "трудно", "тяжело", "легко", "жизнь была", "жилось",
			"умер", "смерть", "родился", "год рождения", "возраст", "сколько лет",
			"было ли", "почему", "за что", "как он", "что с ним", "а если", "а что",
		},
		MaxTokens:      9,
		PersonaName:    "абай",
		MaxNamedLength: 35,
	}
}

// IsComplex reports whether q is disqualified from canned answers.
// q must already be normalized (lowercased, trimmed).
func (f ComplexityFilter) IsComplex(q string) bool {
	for _, trig := range f.Triggers {
		if trig != "" && strings.Contains(q, trig) {
			return true
		}
	}
	if f.MaxTokens > 0 && len(strings.Fields(q)) > f.MaxTokens {
		return true
	}
	if repeatedPunct.MatchString(q) {
		return true
	}
	if f.PersonaName != "" && strings.Contains(q, f.PersonaName) &&
		utf8.RuneCountInString(q) > f.MaxNamedLength {
		return true
	}
	return false
}
