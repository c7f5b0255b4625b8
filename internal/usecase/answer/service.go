// Package answer runs the persona pipeline: canned answer, then retrieval-grounded
// generation, then a fixed apology when the backend fails.
package answer

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/abai/internal/domain"
	"github.com/kailas-cloud/abai/internal/domain/language"
	"github.com/kailas-cloud/abai/internal/metrics"
	"github.com/kailas-cloud/abai/internal/usecase/memory"
)

// DefaultTimeout bounds a single backend call.
const DefaultTimeout = 20 * time.Second

// Request is one question to answer.
type Request struct {
	Question       string
	ConversationID int64
	Language       language.Code
	// QuestionTurnID is the id of the stored question turn when the caller already
	// appended it. History is cut strictly before it, so turns recorded later by
	// concurrent sends never leak into this answer.
	QuestionTurnID int64
}

// Reply is an answer together with the pipeline path that produced it.
type Reply struct {
	Text string
	Path string
}

// Deps are the pipeline stages.
type Deps struct {
	FAQ       FAQMatcher
	Retriever Retriever
	Composer  Composer
	History   History
	Generator Generator
}

// Config tunes the pipeline.
type Config struct {
	HistoryLimit int
	Timeout      time.Duration
	Apologies    map[language.Code]string
}

// Service answers questions. It holds no per-request state.
type Service struct {
	deps      Deps
	limit     int
	timeout   time.Duration
	apologies map[language.Code]string
	logger    *zap.Logger
}

// New creates the pipeline.
func New(deps Deps, cfg Config, logger *zap.Logger) *Service {
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = memory.DefaultLimit
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	apologies := make(map[language.Code]string, len(cfg.Apologies))
	for k, v := range cfg.Apologies {
		apologies[k] = v
	}
	return &Service{
		deps:      deps,
		limit:     cfg.HistoryLimit,
		timeout:   cfg.Timeout,
		apologies: apologies,
		logger:    logger,
	}
}

// Answer returns the reply text. It never fails: empty input gives "",
// backend failures give the apology for the request language.
func (s *Service) Answer(ctx context.Context, req Request) string {
	return s.Respond(ctx, req).Text
}

// Respond is Answer with the path taken.
func (s *Service) Respond(ctx context.Context, req Request) Reply {
	reply := s.respond(ctx, req)
	metrics.AnswersTotal.WithLabelValues(reply.Path).Inc()
	return reply
}

func (s *Service) respond(ctx context.Context, req Request) Reply {
	question := strings.TrimSpace(req.Question)
	if question == "" {
		return Reply{Path: metrics.PathEmpty}
	}
	lang := req.Language.OrDefault()

	if text, ok := s.deps.FAQ.Match(ctx, question); ok {
		return Reply{Text: text, Path: metrics.PathFAQ}
	}

	chunks := s.deps.Retriever.Retrieve(ctx, question)
	systemPrompt := s.deps.Composer.Compose(lang, chunks)

	messages := s.deps.History.Load(ctx, req.ConversationID, req.QuestionTurnID, s.limit)
	messages = append(messages, domain.Message{Role: domain.RoleUser, Content: question})

	genCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	text, err := s.deps.Generator.Generate(genCtx, systemPrompt, messages)
	if err == nil {
		text = strings.TrimSpace(text)
	}
	if err != nil || text == "" {
		s.logger.Warn("Generation failed, answering with apology",
			zap.Int64("conversation_id", req.ConversationID),
			zap.String("language", lang.String()),
			zap.Int("chunks", len(chunks)),
			zap.Int("history", len(messages)-1),
			zap.Error(err),
		)
		return Reply{Text: s.apology(lang), Path: metrics.PathFallback}
	}
	return Reply{Text: text, Path: metrics.PathGenerated}
}

func (s *Service) apology(lang language.Code) string {
	if a, ok := s.apologies[lang]; ok {
		return a
	}
	return s.apologies[language.Default]
}
