package conversation

import (
	"time"

	"github.com/kailas-cloud/abai/internal/domain"
	domconv "github.com/kailas-cloud/abai/internal/domain/conversation"
)

var conversationColumns = []string{"id", "user_id", "title", "created_at", "updated_at"}

// conversationRow is the scanned form of a conversations row.
type conversationRow struct {
	ID        int64
	UserID    string
	Title     string
	CreatedAt int64
	UpdatedAt int64
}

func (r *conversationRow) dest() []any {
	return []any{&r.ID, &r.UserID, &r.Title, &r.CreatedAt, &r.UpdatedAt}
}

func (r *conversationRow) toDomain() domconv.Conversation {
	return domconv.Reconstruct(r.ID, r.UserID, r.Title, fromMillis(r.CreatedAt), fromMillis(r.UpdatedAt))
}

var turnColumns = []string{"role", "content", "created_at"}

// turnRow is the scanned form of a messages row.
type turnRow struct {
	Role      string
	Content   string
	CreatedAt int64
}

func (r *turnRow) dest() []any {
	return []any{&r.Role, &r.Content, &r.CreatedAt}
}

func (r *turnRow) toDomain() domconv.Turn {
	return domconv.ReconstructTurn(roleFromColumn(r.Role), r.Content, fromMillis(r.CreatedAt))
}

// roleFromColumn maps legacy "bot" rows onto the assistant role.
func roleFromColumn(s string) domain.Role {
	if s == string(domain.RoleUser) {
		return domain.RoleUser
	}
	return domain.RoleAssistant
}

func toMillis(t time.Time) int64 { return t.UnixMilli() }

func fromMillis(ms int64) time.Time { return time.UnixMilli(ms).UTC() }
