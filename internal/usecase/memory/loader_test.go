package memory

import (
	"context"
	"fmt"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/abai/internal/domain"
	"github.com/kailas-cloud/abai/internal/domain/conversation"
)

type fakeTurns struct {
	turns     []conversation.Turn
	err       error
	lastLimit int
	lastBound int64
}

func (f *fakeTurns) RecentTurns(_ context.Context, _, beforeID int64, limit int) ([]conversation.Turn, error) {
	f.lastLimit = limit
	f.lastBound = beforeID
	if f.err != nil {
		return nil, f.err
	}
	if len(f.turns) > limit {
		return f.turns[len(f.turns)-limit:], nil
	}
	return f.turns, nil
}

func makeTurns(n int) []conversation.Turn {
	base := time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)
	out := make([]conversation.Turn, 0, n)
	for i := range n {
		role := domain.RoleUser
		if i%2 == 1 {
			role = domain.RoleAssistant
		}
		out = append(out, conversation.ReconstructTurn(role, fmt.Sprintf("turn-%02d", i), base.Add(time.Duration(i)*time.Second)))
	}
	return out
}

func TestLoad_MostRecentOldestFirst(t *testing.T) {
	store := &fakeTurns{turns: makeTurns(25)}
	l := NewLoader(store, zap.NewNop())

	got := l.Load(context.Background(), 1, 0, 20)
	if len(got) != 20 {
		t.Fatalf("expected 20 messages, got %d", len(got))
	}
	if got[0].Content != "turn-05" || got[19].Content != "turn-24" {
		t.Errorf("unexpected window %q..%q", got[0].Content, got[19].Content)
	}
	if got[0].Role != domain.RoleAssistant {
		t.Errorf("expected assistant role for odd turn, got %q", got[0].Role)
	}
}

func TestLoad_DefaultLimit(t *testing.T) {
	store := &fakeTurns{turns: makeTurns(3)}
	l := NewLoader(store, zap.NewNop())

	got := l.Load(context.Background(), 1, 0, 0)
	if store.lastLimit != DefaultLimit {
		t.Errorf("expected limit %d, got %d", DefaultLimit, store.lastLimit)
	}
	if len(got) != 3 {
		t.Errorf("expected 3 messages, got %d", len(got))
	}
}

func TestLoad_StorageErrorGivesEmptyHistory(t *testing.T) {
	store := &fakeTurns{err: fmt.Errorf("select: %w", domain.ErrStorageRead)}
	l := NewLoader(store, zap.NewNop())

	if got := l.Load(context.Background(), 1, 0, 20); len(got) != 0 {
		t.Errorf("expected empty history, got %d messages", len(got))
	}
}

func TestLoad_PassesTurnBound(t *testing.T) {
	store := &fakeTurns{turns: makeTurns(4)}
	l := NewLoader(store, zap.NewNop())

	l.Load(context.Background(), 1, 17, 20)
	if store.lastBound != 17 {
		t.Errorf("expected bound 17, got %d", store.lastBound)
	}
}
