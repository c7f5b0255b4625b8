// Package generation holds the budget-aware decorator around the chat completion backend.
package generation

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/abai/internal/domain"
	"github.com/kailas-cloud/abai/internal/usecase/budget"
)

// Generator produces a reply from a system prompt and a conversation.
type Generator interface {
	Generate(ctx context.Context, systemPrompt string, messages []domain.Message) (string, error)
}

// Budget is the shared token budget.
type Budget interface {
	Check(ctx context.Context) error
	Record(backend string, tokens int64)
}

// InstrumentedGenerator charges completions to the token budget.
type InstrumentedGenerator struct {
	inner  Generator
	budget Budget
	logger *zap.Logger
}

// NewInstrumentedGenerator wraps inner. A nil budget disables enforcement.
func NewInstrumentedGenerator(inner Generator, b Budget, logger *zap.Logger) *InstrumentedGenerator {
	return &InstrumentedGenerator{inner: inner, budget: b, logger: logger}
}

// Generate checks the budget, delegates and records the tokens the backend reported.
func (g *InstrumentedGenerator) Generate(
	ctx context.Context, systemPrompt string, messages []domain.Message,
) (string, error) {
	if g.budget != nil {
		if err := g.budget.Check(ctx); err != nil {
			g.logger.Error("Generation refused by budget", zap.Error(err))
			return "", fmt.Errorf("budget check: %w", err)
		}
	}

	// the backend reports tokens through the context; count this call on its own
	callCtx, call := domain.NewContextWithUsage(ctx)

	start := time.Now()
	text, err := g.inner.Generate(callCtx, systemPrompt, messages)
	elapsed := time.Since(start)

	domain.UsageFromContext(ctx).AddGenerationTokens(call.GenerationTokens)
	if g.budget != nil {
		g.budget.Record(budget.BackendGeneration, int64(call.GenerationTokens))
	}

	if err != nil {
		return "", fmt.Errorf("generate: %w", err)
	}

	g.logger.Debug("Generation completed",
		zap.Duration("duration", elapsed),
		zap.Int("messages", len(messages)),
		zap.Int("total_tokens", call.GenerationTokens),
	)
	return text, nil
}

// HealthCheck forwards to the inner generator when it supports health checks.
func (g *InstrumentedGenerator) HealthCheck(ctx context.Context) error {
	if hc, ok := g.inner.(domain.HealthChecker); ok {
		return hc.HealthCheck(ctx) //nolint:wrapcheck // transparent decorator
	}
	return nil
}
