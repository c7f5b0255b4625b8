package conversation

import (
	"context"

	domconv "github.com/kailas-cloud/abai/internal/domain/conversation"
)

// Repository stores users, conversations and turns.
type Repository interface {
	EnsureUser(ctx context.Context, userID string) error
	Create(ctx context.Context, userID, title string) (domconv.Conversation, error)
	Get(ctx context.Context, id int64) (domconv.Conversation, error)
	Latest(ctx context.Context, userID string) (domconv.Conversation, error)
	ListByUser(ctx context.Context, userID string) ([]domconv.Conversation, error)
	Rename(ctx context.Context, id int64, title string) error
	DeleteUnlessLast(ctx context.Context, userID string, id int64) error
	Turns(ctx context.Context, conversationID int64) ([]domconv.Turn, error)
}
