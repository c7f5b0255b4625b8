package openai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/kailas-cloud/abai/internal/domain"
	"github.com/kailas-cloud/abai/internal/metrics"
)

// Generator produces persona replies through the chat completions API.
type Generator struct {
	client      *openai.Client
	model       string
	maxTokens   int
	temperature float32
	logger      *zap.Logger
}

// GeneratorConfig holds the chat completion settings.
type GeneratorConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	MaxTokens   int
	Temperature float32
	Logger      *zap.Logger
}

// NewGenerator creates an OpenAI-compatible chat completion client.
func NewGenerator(cfg *GeneratorConfig) *Generator {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Generator{
		client:      newClient(cfg.APIKey, cfg.BaseURL),
		model:       cfg.Model,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
		logger:      logger,
	}
}

// Generate sends the system prompt followed by messages and returns the reply text.
// Errors wrap domain.ErrBackendTimeout, domain.ErrBackendTransport or domain.ErrBackendMalformed.
// The deadline comes from ctx; the call is not retried.
func (g *Generator) Generate(ctx context.Context, systemPrompt string, messages []domain.Message) (string, error) {
	req := openai.ChatCompletionRequest{
		Model:       g.model,
		Messages:    toChatMessages(systemPrompt, messages),
		MaxTokens:   g.maxTokens,
		Temperature: g.temperature,
	}

	start := time.Now()
	resp, err := g.client.CreateChatCompletion(ctx, req)
	duration := time.Since(start)

	if err != nil {
		err = classifyGenerationError(ctx, err)
		g.observeError(err)
		return "", err
	}

	if len(resp.Choices) == 0 {
		err = fmt.Errorf("no choices in completion: %w", domain.ErrBackendMalformed)
		g.observeError(err)
		return "", err
	}
	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		err = fmt.Errorf("empty completion content (finish_reason=%s): %w",
			resp.Choices[0].FinishReason, domain.ErrBackendMalformed)
		g.observeError(err)
		return "", err
	}

	metrics.GenerationRequestsTotal.WithLabelValues(g.model, "success").Inc()
	metrics.GenerationRequestDuration.WithLabelValues(g.model).Observe(duration.Seconds())
	metrics.GenerationTokensTotal.WithLabelValues(g.model, "prompt").Add(float64(resp.Usage.PromptTokens))
	metrics.GenerationTokensTotal.WithLabelValues(g.model, "completion").Add(float64(resp.Usage.CompletionTokens))
	domain.UsageFromContext(ctx).AddGenerationTokens(resp.Usage.TotalTokens)

	g.logger.Debug("completion done",
		zap.String("model", g.model),
		zap.Int("messages", len(req.Messages)),
		zap.Int("total_tokens", resp.Usage.TotalTokens),
		zap.Duration("duration", duration),
	)

	return text, nil
}

// HealthCheck verifies API availability via ListModels.
func (g *Generator) HealthCheck(ctx context.Context) error {
	if _, err := g.client.ListModels(ctx); err != nil {
		return fmt.Errorf("list models: %w", err)
	}
	return nil
}

func (g *Generator) observeError(err error) {
	errType := "transport"
	switch {
	case errors.Is(err, domain.ErrBackendTimeout):
		errType = "timeout"
	case errors.Is(err, domain.ErrBackendMalformed):
		errType = "malformed"
	}
	metrics.GenerationRequestsTotal.WithLabelValues(g.model, "error").Inc()
	metrics.GenerationErrorsTotal.WithLabelValues(g.model, errType).Inc()
}

func toChatMessages(systemPrompt string, messages []domain.Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(messages)+1)
	out = append(out, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleSystem,
		Content: systemPrompt,
	})
	for _, m := range messages {
		role := openai.ChatMessageRoleUser
		if m.Role == domain.RoleAssistant {
			role = openai.ChatMessageRoleAssistant
		}
		out = append(out, openai.ChatCompletionMessage{Role: role, Content: m.Content})
	}
	return out
}

// classifyGenerationError maps client errors onto the backend error kinds.
func classifyGenerationError(ctx context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("chat completion: %w", domain.ErrBackendTimeout)
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		detail := extractDetail(reqErr.Body)
		if detail == "" {
			detail = string(reqErr.Body)
		}
		return fmt.Errorf("chat completion API error %d: %s: %w",
			reqErr.HTTPStatusCode, detail, domain.ErrBackendTransport)
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("chat completion API error %d: %s: %w",
			apiErr.HTTPStatusCode, apiErr.Message, domain.ErrBackendTransport)
	}

	return fmt.Errorf("chat completion: %v: %w", err, domain.ErrBackendTransport)
}
