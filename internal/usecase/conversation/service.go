// Package conversation manages a user's conversations and their transcripts.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/kailas-cloud/abai/internal/domain"
	domconv "github.com/kailas-cloud/abai/internal/domain/conversation"
)

// Service implements conversation management.
type Service struct {
	repo Repository
}

// New creates a conversation service.
func New(repo Repository) *Service {
	return &Service{repo: repo}
}

// EnsureUser registers userID if it is new.
func (s *Service) EnsureUser(ctx context.Context, userID string) error {
	if err := validateUser(userID); err != nil {
		return err
	}
	if err := s.repo.EnsureUser(ctx, userID); err != nil {
		return fmt.Errorf("ensure user: %w", err)
	}
	return nil
}

// Create starts a conversation. A blank title becomes the default one.
func (s *Service) Create(ctx context.Context, userID, title string) (domconv.Conversation, error) {
	if err := validateUser(userID); err != nil {
		return domconv.Conversation{}, err
	}
	title, err := domconv.NormalizeTitle(title)
	if err != nil {
		return domconv.Conversation{}, err
	}
	if err := s.repo.EnsureUser(ctx, userID); err != nil {
		return domconv.Conversation{}, fmt.Errorf("ensure user: %w", err)
	}
	conv, err := s.repo.Create(ctx, userID, title)
	if err != nil {
		return domconv.Conversation{}, fmt.Errorf("create conversation: %w", err)
	}
	return conv, nil
}

// Get returns a conversation owned by userID.
// Someone else's conversation is reported as not found.
func (s *Service) Get(ctx context.Context, userID string, id int64) (domconv.Conversation, error) {
	conv, err := s.repo.Get(ctx, id)
	if err != nil {
		return domconv.Conversation{}, fmt.Errorf("get conversation %d: %w", id, err)
	}
	if conv.UserID() != userID {
		return domconv.Conversation{}, fmt.Errorf("get conversation %d: %w", id, domain.ErrConversationNotFound)
	}
	return conv, nil
}

// List returns the user's conversations, most recently updated first.
func (s *Service) List(ctx context.Context, userID string) ([]domconv.Conversation, error) {
	if err := validateUser(userID); err != nil {
		return nil, err
	}
	convs, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	return convs, nil
}

// Current returns the most recently updated conversation, creating one when the user has none.
func (s *Service) Current(ctx context.Context, userID string) (domconv.Conversation, error) {
	if err := validateUser(userID); err != nil {
		return domconv.Conversation{}, err
	}
	conv, err := s.repo.Latest(ctx, userID)
	switch {
	case err == nil:
		return conv, nil
	case errors.Is(err, domain.ErrConversationNotFound):
		return s.Create(ctx, userID, "")
	default:
		return domconv.Conversation{}, fmt.Errorf("latest conversation: %w", err)
	}
}

// Messages returns the full transcript in chronological order.
func (s *Service) Messages(ctx context.Context, id int64) ([]domconv.Turn, error) {
	turns, err := s.repo.Turns(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("conversation %d turns: %w", id, err)
	}
	return turns, nil
}

// Rename changes the title. A blank title resets it to the default.
func (s *Service) Rename(ctx context.Context, id int64, title string) (string, error) {
	title, err := domconv.NormalizeTitle(title)
	if err != nil {
		return "", err
	}
	if err := s.repo.Rename(ctx, id, title); err != nil {
		return "", fmt.Errorf("rename conversation %d: %w", id, err)
	}
	return title, nil
}

// Delete removes a conversation with its turns. The user's last conversation cannot be deleted.
func (s *Service) Delete(ctx context.Context, userID string, id int64) error {
	if err := validateUser(userID); err != nil {
		return err
	}
	if err := s.repo.DeleteUnlessLast(ctx, userID, id); err != nil {
		return fmt.Errorf("delete conversation %d: %w", id, err)
	}
	return nil
}

func validateUser(userID string) error {
	if strings.TrimSpace(userID) == "" {
		return fmt.Errorf("user id is required: %w", domain.ErrInvalidArgument)
	}
	return nil
}
