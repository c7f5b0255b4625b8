// Package conversation holds the chat aggregate: a titled conversation and its append-only turns.
package conversation

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/kailas-cloud/abai/internal/domain"
)

// DefaultTitle is used when a conversation is created without a title.
const DefaultTitle = "Новый чат с Абаем"

// MaxTitleLength is the longest title accepted, in runes.
const MaxTitleLength = 200

// Conversation is the conversation aggregate (immutable value object).
type Conversation struct {
	id        int64
	userID    string
	title     string
	createdAt time.Time
	updatedAt time.Time
}

// NormalizeTitle trims a title, substitutes DefaultTitle for blanks and enforces MaxTitleLength.
func NormalizeTitle(title string) (string, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return DefaultTitle, nil
	}
	if utf8.RuneCountInString(title) > MaxTitleLength {
		return "", fmt.Errorf("title too long (max %d characters): %w", MaxTitleLength, domain.ErrInvalidArgument)
	}
	return title, nil
}

// Reconstruct creates a Conversation without validation (storage hydration).
func Reconstruct(id int64, userID, title string, createdAt, updatedAt time.Time) Conversation {
	return Conversation{id: id, userID: userID, title: title, createdAt: createdAt, updatedAt: updatedAt}
}

// ID returns the conversation identifier.
func (c Conversation) ID() int64 { return c.id }

// UserID returns the owner.
func (c Conversation) UserID() string { return c.userID }

// Title returns the display title.
func (c Conversation) Title() string { return c.title }

// CreatedAt returns the creation time.
func (c Conversation) CreatedAt() time.Time { return c.createdAt }

// UpdatedAt returns the time of the latest turn (or creation).
func (c Conversation) UpdatedAt() time.Time { return c.updatedAt }

// Turn is a single stored message of a conversation.
type Turn struct {
	role      domain.Role
	content   string
	createdAt time.Time
}

// NewTurn validates and creates a Turn.
func NewTurn(role domain.Role, content string) (Turn, error) {
	if role != domain.RoleUser && role != domain.RoleAssistant {
		return Turn{}, fmt.Errorf("unknown role %q: %w", role, domain.ErrInvalidArgument)
	}
	if strings.TrimSpace(content) == "" {
		return Turn{}, domain.ErrEmptyMessage
	}
	return Turn{role: role, content: content}, nil
}

// ReconstructTurn creates a Turn without validation (storage hydration).
func ReconstructTurn(role domain.Role, content string, createdAt time.Time) Turn {
	return Turn{role: role, content: content, createdAt: createdAt}
}

// Role returns the author.
func (t Turn) Role() domain.Role { return t.role }

// Content returns the message text.
func (t Turn) Content() string { return t.content }

// CreatedAt returns the storage timestamp (zero before persistence).
func (t Turn) CreatedAt() time.Time { return t.createdAt }

// Message converts the turn for the generative backend.
func (t Turn) Message() domain.Message {
	return domain.Message{Role: t.role, Content: t.content}
}
