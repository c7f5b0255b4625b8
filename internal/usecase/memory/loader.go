// Package memory loads the conversation history sent to the generative backend.
package memory

import (
	"context"

	"go.uber.org/zap"

	"github.com/kailas-cloud/abai/internal/domain"
)

// DefaultLimit is the number of turns loaded when the caller passes no limit.
const DefaultLimit = 20

// Loader turns stored turns into backend messages.
type Loader struct {
	turns  TurnReader
	logger *zap.Logger
}

// NewLoader creates a history loader.
func NewLoader(turns TurnReader, logger *zap.Logger) *Loader {
	return &Loader{turns: turns, logger: logger}
}

// Load returns up to limit most recent turns stored before beforeTurnID, oldest
// first. A zero beforeTurnID loads the tail of the log.
// A failed read yields an empty history; the answer is still produced without it.
func (l *Loader) Load(ctx context.Context, conversationID, beforeTurnID int64, limit int) []domain.Message {
	if limit <= 0 {
		limit = DefaultLimit
	}
	turns, err := l.turns.RecentTurns(ctx, conversationID, beforeTurnID, limit)
	if err != nil {
		l.logger.Warn("History unavailable",
			zap.Int64("conversation_id", conversationID),
			zap.Error(err),
		)
		return nil
	}

	msgs := make([]domain.Message, 0, len(turns))
	for _, t := range turns {
		msgs = append(msgs, t.Message())
	}
	return msgs
}
