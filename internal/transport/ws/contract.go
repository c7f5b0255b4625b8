package ws

import (
	"context"

	domconv "github.com/kailas-cloud/abai/internal/domain/conversation"
	"github.com/kailas-cloud/abai/internal/domain/language"
	"github.com/kailas-cloud/abai/internal/usecase/answer"
)

// Conversations manages the user's conversations.
type Conversations interface {
	EnsureUser(ctx context.Context, userID string) error
	Create(ctx context.Context, userID, title string) (domconv.Conversation, error)
	Get(ctx context.Context, userID string, id int64) (domconv.Conversation, error)
	List(ctx context.Context, userID string) ([]domconv.Conversation, error)
	Current(ctx context.Context, userID string) (domconv.Conversation, error)
	Messages(ctx context.Context, id int64) ([]domconv.Turn, error)
	Rename(ctx context.Context, id int64, title string) (string, error)
	Delete(ctx context.Context, userID string, id int64) error
}

// Chat answers a message inside a conversation.
type Chat interface {
	Send(ctx context.Context, userID string, conversationID int64, text string, lang language.Code) (answer.Reply, error)
}
