// Package faq holds canned-answer topics and the heuristic that decides
// whether a question is simple enough to be answered from them.
package faq

import (
	"fmt"
	"strings"

	"github.com/kailas-cloud/abai/internal/domain/vector"
)

// Topic is a canned answer with the phrases that should trigger it.
type Topic struct {
	id        string
	canonical []string
	response  string
}

// New validates and creates a Topic. Canonical phrases are lowercased and trimmed.
func New(id string, canonical []string, response string) (Topic, error) {
	if id == "" {
		return Topic{}, fmt.Errorf("faq topic id is required")
	}
	if strings.TrimSpace(response) == "" {
		return Topic{}, fmt.Errorf("faq topic %q: response is required", id)
	}

	phrases := make([]string, 0, len(canonical))
	for _, p := range canonical {
		p = strings.ToLower(strings.TrimSpace(p))
		if p == "" {
			continue
		}
		phrases = append(phrases, p)
	}
	if len(phrases) == 0 {
		return Topic{}, fmt.Errorf("faq topic %q: at least one canonical phrase is required", id)
	}

	return Topic{id: id, canonical: phrases, response: response}, nil
}

// ID returns the topic identifier.
func (t Topic) ID() string { return t.id }

// Canonical returns the canonical phrases in configured order.
func (t Topic) Canonical() []string { return t.canonical }

// Response returns the canned answer.
func (t Topic) Response() string { return t.response }

// EmbeddedTopic pairs a topic with one embedding per canonical phrase.
type EmbeddedTopic struct {
	topic   Topic
	vectors []vector.Vector
}

// Embed attaches phrase embeddings. len(vectors) must equal len(Canonical()).
func Embed(t Topic, vectors []vector.Vector) (EmbeddedTopic, error) {
	if len(vectors) != len(t.canonical) {
		return EmbeddedTopic{}, fmt.Errorf(
			"faq topic %q: %d vectors for %d phrases", t.id, len(vectors), len(t.canonical))
	}
	vs := make([]vector.Vector, len(vectors))
	copy(vs, vectors)
	return EmbeddedTopic{topic: t, vectors: vs}, nil
}

// Topic returns the underlying topic.
func (e EmbeddedTopic) Topic() Topic { return e.topic }

// Vectors returns the phrase embeddings, index-aligned with Topic().Canonical().
func (e EmbeddedTopic) Vectors() []vector.Vector { return e.vectors }
