package conversation

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/kailas-cloud/abai/internal/db/sqlite"
	"github.com/kailas-cloud/abai/internal/domain"
	domconv "github.com/kailas-cloud/abai/internal/domain/conversation"
)

// tickingClock advances one second per call so ordering by updated_at is deterministic.
type tickingClock struct{ t time.Time }

func (c *tickingClock) now() time.Time {
	c.t = c.t.Add(time.Second)
	return c.t
}

func newTestRepo(t *testing.T) *Repo {
	t.Helper()
	db, err := sqlite.Open(context.Background(), sqlite.Memory)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	clock := &tickingClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	return New(db).WithClock(clock.now)
}

func mustTurn(t *testing.T, role domain.Role, content string) domconv.Turn {
	t.Helper()
	turn, err := domconv.NewTurn(role, content)
	if err != nil {
		t.Fatalf("new turn: %v", err)
	}
	return turn
}

func mustCreate(t *testing.T, r *Repo, userID, title string) domconv.Conversation {
	t.Helper()
	ctx := context.Background()
	if err := r.EnsureUser(ctx, userID); err != nil {
		t.Fatalf("ensure user: %v", err)
	}
	c, err := r.Create(ctx, userID, title)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	return c
}

func TestEnsureUser_Idempotent(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()

	for range 2 {
		if err := r.EnsureUser(ctx, "u1"); err != nil {
			t.Fatalf("ensure user: %v", err)
		}
	}
}

func TestCreateAndGet(t *testing.T) {
	r := newTestRepo(t)
	created := mustCreate(t, r, "u1", domconv.DefaultTitle)

	got, err := r.Get(context.Background(), created.ID())
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Title() != domconv.DefaultTitle || got.UserID() != "u1" {
		t.Errorf("unexpected conversation: %+v", got)
	}
	if !got.CreatedAt().Equal(created.CreatedAt()) {
		t.Errorf("created_at mismatch: %v vs %v", got.CreatedAt(), created.CreatedAt())
	}
}

func TestGet_NotFound(t *testing.T) {
	r := newTestRepo(t)

	_, err := r.Get(context.Background(), 404)
	if !errors.Is(err, domain.ErrConversationNotFound) {
		t.Fatalf("expected ErrConversationNotFound, got %v", err)
	}
}

func TestListAndLatest_OrderByActivity(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()

	first := mustCreate(t, r, "u1", "первый")
	second := mustCreate(t, r, "u1", "второй")
	mustCreate(t, r, "u2", "чужой")

	// a new turn makes the older conversation the most recent
	if _, err := r.AppendTurn(ctx, first.ID(), mustTurn(t, domain.RoleUser, "салем")); err != nil {
		t.Fatalf("append: %v", err)
	}

	list, err := r.ListByUser(ctx, "u1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 || list[0].ID() != first.ID() || list[1].ID() != second.ID() {
		t.Fatalf("unexpected order: %+v", list)
	}

	latest, err := r.Latest(ctx, "u1")
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if latest.ID() != first.ID() {
		t.Errorf("expected latest=%d, got %d", first.ID(), latest.ID())
	}

	if _, err := r.Latest(ctx, "nobody"); !errors.Is(err, domain.ErrConversationNotFound) {
		t.Errorf("expected ErrConversationNotFound for unknown user, got %v", err)
	}
}

func TestRename(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	c := mustCreate(t, r, "u1", "старое")

	if err := r.Rename(ctx, c.ID(), "новое"); err != nil {
		t.Fatalf("rename: %v", err)
	}
	got, _ := r.Get(ctx, c.ID())
	if got.Title() != "новое" {
		t.Errorf("expected renamed title, got %q", got.Title())
	}

	if err := r.Rename(ctx, 999, "x"); !errors.Is(err, domain.ErrConversationNotFound) {
		t.Errorf("expected ErrConversationNotFound, got %v", err)
	}
}

func TestDeleteUnlessLast(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()

	only := mustCreate(t, r, "u1", "единственный")
	if err := r.DeleteUnlessLast(ctx, "u1", only.ID()); !errors.Is(err, domain.ErrLastConversation) {
		t.Fatalf("expected ErrLastConversation, got %v", err)
	}

	other := mustCreate(t, r, "u1", "второй")
	if _, err := r.AppendTurn(ctx, other.ID(), mustTurn(t, domain.RoleUser, "вопрос")); err != nil {
		t.Fatalf("append: %v", err)
	}

	if err := r.DeleteUnlessLast(ctx, "u1", other.ID()); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := r.Get(ctx, other.ID()); !errors.Is(err, domain.ErrConversationNotFound) {
		t.Errorf("expected deleted conversation to be gone, got %v", err)
	}
	turns, err := r.Turns(ctx, other.ID())
	if err != nil {
		t.Fatalf("turns: %v", err)
	}
	if len(turns) != 0 {
		t.Errorf("expected turns to be deleted, got %d", len(turns))
	}

	n, err := r.CountByUser(ctx, "u1")
	if err != nil || n != 1 {
		t.Errorf("expected 1 conversation left, got %d (%v)", n, err)
	}
}

func TestDeleteUnlessLast_ForeignConversation(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()

	mustCreate(t, r, "u1", "a")
	mustCreate(t, r, "u1", "b")
	foreign := mustCreate(t, r, "u2", "c")

	if err := r.DeleteUnlessLast(ctx, "u1", foreign.ID()); !errors.Is(err, domain.ErrConversationNotFound) {
		t.Fatalf("expected ErrConversationNotFound, got %v", err)
	}
	if _, err := r.Get(ctx, foreign.ID()); err != nil {
		t.Errorf("foreign conversation must survive: %v", err)
	}
}

func TestAppendTurn_UnknownConversation(t *testing.T) {
	r := newTestRepo(t)

	_, err := r.AppendTurn(context.Background(), 42, mustTurn(t, domain.RoleUser, "x"))
	if !errors.Is(err, domain.ErrConversationNotFound) {
		t.Fatalf("expected ErrConversationNotFound, got %v", err)
	}
}

func TestRecentTurns_MostRecentOldestFirst(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	c := mustCreate(t, r, "u1", "история")

	for i := range 25 {
		role := domain.RoleUser
		if i%2 == 1 {
			role = domain.RoleAssistant
		}
		if _, err := r.AppendTurn(ctx, c.ID(), mustTurn(t, role, fmt.Sprintf("turn-%02d", i))); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}

	turns, err := r.RecentTurns(ctx, c.ID(), 0, 20)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(turns) != 20 {
		t.Fatalf("expected 20 turns, got %d", len(turns))
	}
	if turns[0].Content() != "turn-05" || turns[19].Content() != "turn-24" {
		t.Errorf("expected turn-05..turn-24, got %s..%s", turns[0].Content(), turns[19].Content())
	}
	if turns[1].Role() != domain.RoleUser || turns[0].Role() != domain.RoleAssistant {
		t.Errorf("unexpected roles: %s, %s", turns[0].Role(), turns[1].Role())
	}

	all, err := r.Turns(ctx, c.ID())
	if err != nil || len(all) != 25 {
		t.Fatalf("expected full log of 25, got %d (%v)", len(all), err)
	}
}

func TestRecentTurns_BeforeTurn(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	c := mustCreate(t, r, "u1", "параллельно")

	if _, err := r.AppendTurn(ctx, c.ID(), mustTurn(t, domain.RoleUser, "ранний")); err != nil {
		t.Fatalf("append: %v", err)
	}
	idA, err := r.AppendTurn(ctx, c.ID(), mustTurn(t, domain.RoleUser, "вопрос A"))
	if err != nil {
		t.Fatalf("append A: %v", err)
	}
	idB, err := r.AppendTurn(ctx, c.ID(), mustTurn(t, domain.RoleUser, "вопрос B"))
	if err != nil {
		t.Fatalf("append B: %v", err)
	}
	if idB <= idA {
		t.Fatalf("expected increasing turn ids, got %d then %d", idA, idB)
	}

	turns, err := r.RecentTurns(ctx, c.ID(), idA, 20)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(turns) != 1 || turns[0].Content() != "ранний" {
		t.Fatalf("expected only the turn before A, got %+v", turns)
	}

	turns, err = r.RecentTurns(ctx, c.ID(), idB, 20)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(turns) != 2 || turns[1].Content() != "вопрос A" {
		t.Fatalf("expected turns up to A, got %+v", turns)
	}
}

func TestRecentTurns_ZeroLimit(t *testing.T) {
	r := newTestRepo(t)
	turns, err := r.RecentTurns(context.Background(), 1, 0, 0)
	if err != nil || len(turns) != 0 {
		t.Fatalf("expected empty result, got %v (%v)", turns, err)
	}
}

func TestRecentTurns_ClosedDBIsStorageRead(t *testing.T) {
	db, err := sqlite.Open(context.Background(), sqlite.Memory)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	r := New(db)
	_ = db.Close()

	_, err = r.RecentTurns(context.Background(), 1, 0, 20)
	if !errors.Is(err, domain.ErrStorageRead) {
		t.Fatalf("expected ErrStorageRead, got %v", err)
	}
}

func TestRoleFromColumn_LegacyBot(t *testing.T) {
	if roleFromColumn("bot") != domain.RoleAssistant {
		t.Error("legacy bot rows must map to assistant")
	}
}
