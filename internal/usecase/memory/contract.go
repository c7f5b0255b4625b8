package memory

import (
	"context"

	"github.com/kailas-cloud/abai/internal/domain/conversation"
)

// TurnReader reads the tail of a conversation's turn log, oldest first.
// A positive beforeID bounds the tail to turns stored before that turn.
type TurnReader interface {
	RecentTurns(ctx context.Context, conversationID, beforeID int64, limit int) ([]conversation.Turn, error)
}
