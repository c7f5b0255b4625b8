// Package embedding holds the budget-aware decorator around the embedding provider.
package embedding

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/abai/internal/domain"
	"github.com/kailas-cloud/abai/internal/usecase/budget"
)

// Budget is the shared token budget.
type Budget interface {
	Check(ctx context.Context) error
	Record(backend string, tokens int64)
}

// InstrumentedEmbedder charges embedding calls to the token budget and the
// per-request usage. Transport metrics live in transport/openai.
type InstrumentedEmbedder struct {
	inner    domain.Embedder
	provider string
	model    string
	budget   Budget
	logger   *zap.Logger
}

// NewInstrumentedEmbedder wraps inner. A nil budget disables enforcement.
func NewInstrumentedEmbedder(
	inner domain.Embedder, provider, model string,
	b Budget, logger *zap.Logger,
) *InstrumentedEmbedder {
	return &InstrumentedEmbedder{
		inner:    inner,
		provider: provider,
		model:    model,
		budget:   b,
		logger:   logger.With(zap.String("provider", provider), zap.String("model", model)),
	}
}

// Embed checks the budget, delegates and records the tokens spent.
// Cache hits report zero tokens and cost nothing.
func (e *InstrumentedEmbedder) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	if e.budget != nil {
		if err := e.budget.Check(ctx); err != nil {
			e.logger.Error("Embedding refused by budget", zap.Error(err))
			return domain.EmbeddingResult{}, fmt.Errorf("budget check: %w", err)
		}
	}

	start := time.Now()
	result, err := e.inner.Embed(ctx, text)
	elapsed := time.Since(start)
	if err != nil {
		e.logger.Error("Embedding request failed", zap.Duration("duration", elapsed), zap.Error(err))
		return domain.EmbeddingResult{}, fmt.Errorf("embed: %w", err)
	}

	domain.UsageFromContext(ctx).AddEmbeddingTokens(result.TotalTokens)
	if e.budget != nil {
		e.budget.Record(budget.BackendEmbedding, int64(result.TotalTokens))
	}

	e.logger.Debug("Embedding request completed",
		zap.Duration("duration", elapsed),
		zap.Int("dimensions", len(result.Embedding)),
		zap.Int("total_tokens", result.TotalTokens),
	)
	return result, nil
}

// HealthCheck forwards to the inner embedder when it supports health checks.
func (e *InstrumentedEmbedder) HealthCheck(ctx context.Context) error {
	if hc, ok := e.inner.(domain.HealthChecker); ok {
		return hc.HealthCheck(ctx) //nolint:wrapcheck // transparent decorator
	}
	return nil
}
