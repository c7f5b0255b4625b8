// Package knowledge selects the corpus passages most relevant to a question.
package knowledge

import (
	"context"
	"errors"
	"sort"

	"go.uber.org/zap"

	"github.com/kailas-cloud/abai/internal/domain"
	"github.com/kailas-cloud/abai/internal/domain/vector"
	"github.com/kailas-cloud/abai/internal/metrics"
)

const (
	// DefaultTopK is the maximum number of passages returned.
	DefaultTopK = 5
	// DefaultMinScore is the lowest similarity a passage may have.
	DefaultMinScore = 0.52
)

// Option tunes a single Retrieve call.
type Option func(*options)

type options struct {
	topK     int
	minScore float64
}

// WithTopK overrides the number of passages kept before score filtering.
func WithTopK(k int) Option {
	return func(o *options) { o.topK = k }
}

// WithMinScore overrides the similarity floor.
func WithMinScore(s float64) Option {
	return func(o *options) { o.minScore = s }
}

// Retriever ranks knowledge chunks against a question.
type Retriever struct {
	embed     Embedder
	snapshots SnapshotSource
	defaults  options
	logger    *zap.Logger
}

// New creates a retriever. opts set the defaults for every call.
func New(embed Embedder, snapshots SnapshotSource, logger *zap.Logger, opts ...Option) *Retriever {
	d := options{topK: DefaultTopK, minScore: DefaultMinScore}
	for _, o := range opts {
		o(&d)
	}
	return &Retriever{embed: embed, snapshots: snapshots, defaults: d, logger: logger}
}

type scored struct {
	text  string
	score float64
}

// Retrieve returns up to topK passage texts, best first. Failures yield nil.
func (r *Retriever) Retrieve(ctx context.Context, question string, opts ...Option) []string {
	o := r.defaults
	for _, opt := range opts {
		opt(&o)
	}

	texts, err := r.retrieve(ctx, question, o)
	if err != nil {
		if errors.Is(err, domain.ErrNotReady) {
			r.logger.Debug("Knowledge retrieval skipped", zap.Error(err))
		} else {
			r.logger.Warn("Knowledge retrieval failed", zap.Error(err))
		}
		return nil
	}
	metrics.RetrievedChunks.Observe(float64(len(texts)))
	return texts
}

func (r *Retriever) retrieve(ctx context.Context, question string, o options) ([]string, error) {
	snap, ok := r.snapshots.Snapshot()
	if !ok {
		return nil, domain.ErrNotReady
	}
	q := domain.NormalizeQuestion(question)
	if q == "" || o.topK <= 0 {
		return nil, nil
	}

	res, err := r.embed.Embed(ctx, q)
	if err != nil {
		return nil, err
	}
	qv, err := vector.Normalize(res.Embedding)
	if err != nil {
		return nil, err
	}

	chunks := snap.Chunks()
	ranked := make([]scored, len(chunks))
	for i, c := range chunks {
		ranked[i] = scored{text: c.Chunk().Text(), score: vector.Similarity(qv, c.Vector())}
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })

	if len(ranked) > o.topK {
		ranked = ranked[:o.topK]
	}
	out := make([]string, 0, len(ranked))
	for _, s := range ranked {
		if s.score < o.minScore {
			break
		}
		out = append(out, s.text)
	}
	return out, nil
}
