package chat

import (
	"context"

	domconv "github.com/kailas-cloud/abai/internal/domain/conversation"
	"github.com/kailas-cloud/abai/internal/usecase/answer"
)

// Conversations resolves a conversation owned by a user.
type Conversations interface {
	Get(ctx context.Context, userID string, id int64) (domconv.Conversation, error)
}

// TurnLog appends turns to a conversation and returns the stored turn's id.
type TurnLog interface {
	AppendTurn(ctx context.Context, conversationID int64, turn domconv.Turn) (int64, error)
}

// Answerer produces the persona reply.
type Answerer interface {
	Respond(ctx context.Context, req answer.Request) answer.Reply
}
