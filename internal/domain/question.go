package domain

import "strings"

// NormalizeQuestion lowercases and trims a question before matching or embedding.
func NormalizeQuestion(q string) string {
	return strings.ToLower(strings.TrimSpace(q))
}
