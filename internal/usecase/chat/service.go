// Package chat records a user message, answers it and records the answer.
package chat

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/kailas-cloud/abai/internal/domain"
	domconv "github.com/kailas-cloud/abai/internal/domain/conversation"
	"github.com/kailas-cloud/abai/internal/domain/language"
	"github.com/kailas-cloud/abai/internal/logger"
	"github.com/kailas-cloud/abai/internal/usecase/answer"
)

// Service handles a single chat exchange.
type Service struct {
	convs  Conversations
	turns  TurnLog
	answer Answerer
}

// New creates a chat service.
func New(convs Conversations, turns TurnLog, answerer Answerer) *Service {
	return &Service{convs: convs, turns: turns, answer: answerer}
}

// Send stores the user turn, answers it and stores the reply.
// The user turn is durable before the backend is called.
func (s *Service) Send(
	ctx context.Context, userID string, conversationID int64, text string, lang language.Code,
) (answer.Reply, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return answer.Reply{}, domain.ErrEmptyMessage
	}
	if _, err := s.convs.Get(ctx, userID, conversationID); err != nil {
		return answer.Reply{}, err
	}

	ctx = logger.With(ctx, zap.Int64("conversation_id", conversationID))
	log := logger.FromContext(ctx)

	userTurn, err := domconv.NewTurn(domain.RoleUser, text)
	if err != nil {
		return answer.Reply{}, err
	}
	questionID, err := s.turns.AppendTurn(ctx, conversationID, userTurn)
	if err != nil {
		return answer.Reply{}, fmt.Errorf("record question: %w", err)
	}

	reply := s.answer.Respond(ctx, answer.Request{
		Question:       text,
		ConversationID: conversationID,
		Language:       lang,
		QuestionTurnID: questionID,
	})
	log.Debug("Answered", zap.String("path", reply.Path))

	botTurn, err := domconv.NewTurn(domain.RoleAssistant, reply.Text)
	if err != nil {
		return answer.Reply{}, fmt.Errorf("record answer: %w", err)
	}
	if _, err := s.turns.AppendTurn(ctx, conversationID, botTurn); err != nil {
		return answer.Reply{}, fmt.Errorf("record answer: %w", err)
	}
	return reply, nil
}
