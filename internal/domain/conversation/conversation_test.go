package conversation

import (
	"errors"
	"strings"
	"testing"

	"github.com/kailas-cloud/abai/internal/domain"
)

func TestNormalizeTitle(t *testing.T) {
	got, err := NormalizeTitle("   ")
	if err != nil || got != DefaultTitle {
		t.Errorf("blank title: got %q, %v", got, err)
	}

	got, err = NormalizeTitle("  Слова назидания ")
	if err != nil || got != "Слова назидания" {
		t.Errorf("trimmed title: got %q, %v", got, err)
	}

	_, err = NormalizeTitle(strings.Repeat("я", MaxTitleLength+1))
	if !errors.Is(err, domain.ErrInvalidArgument) {
		t.Errorf("expected ErrInvalidArgument for long title, got %v", err)
	}
}

func TestNewTurn(t *testing.T) {
	turn, err := NewTurn(domain.RoleUser, "кто такой абай")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	msg := turn.Message()
	if msg.Role != domain.RoleUser || msg.Content != "кто такой абай" {
		t.Errorf("unexpected message: %+v", msg)
	}

	if _, err := NewTurn(domain.RoleUser, "  "); !errors.Is(err, domain.ErrEmptyMessage) {
		t.Errorf("expected ErrEmptyMessage, got %v", err)
	}
	if _, err := NewTurn("system", "x"); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Errorf("expected ErrInvalidArgument for system role, got %v", err)
	}
}
