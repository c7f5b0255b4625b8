package warmup

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kailas-cloud/abai/internal/domain/faq"
	"github.com/kailas-cloud/abai/internal/domain/knowledge"
	"github.com/kailas-cloud/abai/internal/domain/vector"
	"github.com/kailas-cloud/abai/internal/metrics"
)

const defaultConcurrency = 4

// Loader computes the snapshot. FAQ phrases are embedded as queries, knowledge
// chunks as documents, so instruction-tuned models see the right prefix.
type Loader struct {
	queries     Embedder
	documents   Embedder
	gate        *Gate
	concurrency int
	logger      *zap.Logger
}

// NewLoader creates a loader publishing into gate.
func NewLoader(queries, documents Embedder, gate *Gate, concurrency int, logger *zap.Logger) *Loader {
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}
	return &Loader{
		queries:     queries,
		documents:   documents,
		gate:        gate,
		concurrency: concurrency,
		logger:      logger,
	}
}

// Load embeds everything and publishes the snapshot. Any failure leaves the gate closed.
func (l *Loader) Load(ctx context.Context, topics []faq.Topic, chunks []knowledge.Chunk) error {
	if l.gate.Ready() {
		return nil
	}
	start := time.Now()

	phraseVecs := make([][]vector.Vector, len(topics))
	for i := range topics {
		phraseVecs[i] = make([]vector.Vector, len(topics[i].Canonical()))
	}
	chunkVecs := make([]vector.Vector, len(chunks))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(l.concurrency)

	for ti := range topics {
		for pi, phrase := range topics[ti].Canonical() {
			g.Go(func() error {
				v, err := embedNormalized(gctx, l.queries, phrase)
				if err != nil {
					return fmt.Errorf("faq topic %q phrase %d: %w", topics[ti].ID(), pi, err)
				}
				phraseVecs[ti][pi] = v
				return nil
			})
		}
	}
	for ci := range chunks {
		g.Go(func() error {
			v, err := embedNormalized(gctx, l.documents, strings.ToLower(chunks[ci].Text()))
			if err != nil {
				return fmt.Errorf("knowledge chunk %d: %w", chunks[ci].Index(), err)
			}
			chunkVecs[ci] = v
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return fmt.Errorf("warmup: %w", err)
	}

	embeddedTopics := make([]faq.EmbeddedTopic, 0, len(topics))
	for i, t := range topics {
		et, err := faq.Embed(t, phraseVecs[i])
		if err != nil {
			return fmt.Errorf("warmup: %w", err)
		}
		embeddedTopics = append(embeddedTopics, et)
	}
	embeddedChunks := make([]knowledge.EmbeddedChunk, 0, len(chunks))
	for i, c := range chunks {
		embeddedChunks = append(embeddedChunks, knowledge.Embed(c, chunkVecs[i]))
	}

	if l.gate.Publish(NewSnapshot(embeddedTopics, embeddedChunks)) {
		elapsed := time.Since(start)
		metrics.WarmupDuration.Set(elapsed.Seconds())
		metrics.WarmupReady.Set(1)
		l.logger.Info("Embeddings ready",
			zap.Int("faq_topics", len(embeddedTopics)),
			zap.Int("knowledge_chunks", len(embeddedChunks)),
			zap.Duration("duration", elapsed),
		)
	}
	return nil
}

// Run retries Load with exponential backoff until it succeeds or ctx ends.
// Meant to be started in its own goroutine; the pipeline degrades while it runs.
func (l *Loader) Run(
	ctx context.Context, topics []faq.Topic, chunks []knowledge.Chunk,
	initialBackoff, maxBackoff time.Duration,
) error {
	backoff := initialBackoff
	for attempt := 1; ; attempt++ {
		err := l.Load(ctx, topics, chunks)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return errors.Join(err, ctx.Err())
		}

		l.logger.Warn("Warmup failed, retrying",
			zap.Int("attempt", attempt),
			zap.Duration("backoff", backoff),
			zap.Error(err),
		)

		select {
		case <-ctx.Done():
			return fmt.Errorf("warmup aborted: %w", ctx.Err())
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, maxBackoff)
	}
}

func embedNormalized(ctx context.Context, e Embedder, text string) (vector.Vector, error) {
	res, err := e.Embed(ctx, text)
	if err != nil {
		return vector.Vector{}, fmt.Errorf("embed: %w", err)
	}
	v, err := vector.Normalize(res.Embedding)
	if err != nil {
		return vector.Vector{}, fmt.Errorf("normalize: %w", err)
	}
	return v, nil
}
