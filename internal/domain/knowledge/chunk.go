// Package knowledge holds the factual passages injected into prompts.
package knowledge

import (
	"fmt"
	"strings"

	"github.com/kailas-cloud/abai/internal/domain/vector"
)

// Chunk is a short factual passage. Index is its position in the corpus,
// used as the stable tie-break when scores are equal.
type Chunk struct {
	index int
	text  string
}

// New validates and creates a Chunk.
func New(index int, text string) (Chunk, error) {
	if strings.TrimSpace(text) == "" {
		return Chunk{}, fmt.Errorf("knowledge chunk %d is empty", index)
	}
	return Chunk{index: index, text: text}, nil
}

// Index returns the corpus position.
func (c Chunk) Index() int { return c.index }

// Text returns the passage.
func (c Chunk) Text() string { return c.text }

// EmbeddedChunk pairs a chunk with its embedding.
type EmbeddedChunk struct {
	chunk  Chunk
	vector vector.Vector
}

// Embed attaches an embedding to a chunk.
func Embed(c Chunk, v vector.Vector) EmbeddedChunk {
	return EmbeddedChunk{chunk: c, vector: v}
}

// Chunk returns the passage.
func (e EmbeddedChunk) Chunk() Chunk { return e.chunk }

// Vector returns the passage embedding.
func (e EmbeddedChunk) Vector() vector.Vector { return e.vector }
