// Package faq answers simple questions with canned responses when a question
// is close enough to a configured phrase.
package faq

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/kailas-cloud/abai/internal/domain"
	faqdomain "github.com/kailas-cloud/abai/internal/domain/faq"
	"github.com/kailas-cloud/abai/internal/domain/vector"
)

// DefaultThreshold is the minimum similarity for a canned answer.
const DefaultThreshold = 0.78

// Matcher picks the best FAQ topic for a question.
type Matcher struct {
	embed     Embedder
	snapshots SnapshotSource
	filter    faqdomain.ComplexityFilter
	threshold float64
	logger    *zap.Logger
}

// New creates a matcher. A non-positive threshold falls back to DefaultThreshold.
func New(
	embed Embedder, snapshots SnapshotSource, filter faqdomain.ComplexityFilter,
	threshold float64, logger *zap.Logger,
) *Matcher {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Matcher{
		embed:     embed,
		snapshots: snapshots,
		filter:    filter,
		threshold: threshold,
		logger:    logger,
	}
}

// Match returns the canned response for q, or ok=false. It never fails:
// a missing snapshot, a complex question or an embedding error all mean no match.
func (m *Matcher) Match(ctx context.Context, q string) (string, bool) {
	topic, score, err := m.best(ctx, q)
	if err != nil {
		if !errors.Is(err, domain.ErrNotReady) {
			m.logger.Warn("FAQ match failed", zap.Error(err))
		}
		return "", false
	}
	if topic == nil || score < m.threshold {
		return "", false
	}
	m.logger.Debug("FAQ matched", zap.String("topic", topic.ID()), zap.Float64("score", score))
	return topic.Response(), true
}

func (m *Matcher) best(ctx context.Context, q string) (*faqdomain.Topic, float64, error) {
	snap, ok := m.snapshots.Snapshot()
	if !ok {
		return nil, 0, domain.ErrNotReady
	}

	q = domain.NormalizeQuestion(q)
	if q == "" || m.filter.IsComplex(q) {
		return nil, 0, nil
	}

	res, err := m.embed.Embed(ctx, q)
	if err != nil {
		return nil, 0, err
	}
	qv, err := vector.Normalize(res.Embedding)
	if err != nil {
		return nil, 0, err
	}

	var (
		best      *faqdomain.Topic
		bestScore float64
	)
	for _, et := range snap.Topics() {
		for _, pv := range et.Vectors() {
			// Strict comparison keeps the first topic on ties.
			if s := vector.Similarity(qv, pv); s > bestScore {
				t := et.Topic()
				best, bestScore = &t, s
			}
		}
	}
	return best, bestScore, nil
}
