// Package warmup embeds the persona's FAQ phrases and knowledge corpus once at
// startup and publishes them as an immutable snapshot behind a readiness gate.
package warmup

import (
	"sync/atomic"

	"github.com/kailas-cloud/abai/internal/domain/faq"
	"github.com/kailas-cloud/abai/internal/domain/knowledge"
)

// Snapshot is the read-only embedding state shared by all requests.
type Snapshot struct {
	topics []faq.EmbeddedTopic
	chunks []knowledge.EmbeddedChunk
}

// NewSnapshot copies the inputs; later changes to the caller's slices are not observed.
func NewSnapshot(topics []faq.EmbeddedTopic, chunks []knowledge.EmbeddedChunk) *Snapshot {
	return &Snapshot{
		topics: append([]faq.EmbeddedTopic(nil), topics...),
		chunks: append([]knowledge.EmbeddedChunk(nil), chunks...),
	}
}

// Topics returns the embedded FAQ topics in configured order. Callers must not modify the slice.
func (s *Snapshot) Topics() []faq.EmbeddedTopic { return s.topics }

// Chunks returns the embedded knowledge chunks in corpus order. Callers must not modify the slice.
func (s *Snapshot) Chunks() []knowledge.EmbeddedChunk { return s.chunks }

// Gate exposes the snapshot once it exists. The zero value is a closed gate.
type Gate struct {
	snap atomic.Pointer[Snapshot]
}

// Publish opens the gate. Only the first publish takes effect; it reports whether this call won.
func (g *Gate) Publish(s *Snapshot) bool {
	return g.snap.CompareAndSwap(nil, s)
}

// Snapshot returns the published snapshot; ok is false until Publish.
func (g *Gate) Snapshot() (*Snapshot, bool) {
	s := g.snap.Load()
	return s, s != nil
}

// Ready reports whether the snapshot is published.
func (g *Gate) Ready() bool {
	return g.snap.Load() != nil
}
