package chat

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kailas-cloud/abai/internal/db/sqlite"
	"github.com/kailas-cloud/abai/internal/domain"
	domconv "github.com/kailas-cloud/abai/internal/domain/conversation"
	"github.com/kailas-cloud/abai/internal/domain/language"
	convrepo "github.com/kailas-cloud/abai/internal/repository/conversation"
	"github.com/kailas-cloud/abai/internal/usecase/answer"
	"github.com/kailas-cloud/abai/internal/usecase/conversation"
)

type recordingAnswerer struct {
	reply  answer.Reply
	req    answer.Request
	calls  int
	onCall func()
}

func (r *recordingAnswerer) Respond(_ context.Context, req answer.Request) answer.Reply {
	r.calls++
	r.req = req
	if r.onCall != nil {
		r.onCall()
	}
	return r.reply
}

type failingLog struct {
	err error
}

func (f failingLog) AppendTurn(context.Context, int64, domconv.Turn) (int64, error) { return 0, f.err }

type fixture struct {
	svc      *Service
	convs    *conversation.Service
	repo     *convrepo.Repo
	answerer *recordingAnswerer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := sqlite.Open(context.Background(), sqlite.Memory)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	now := time.Date(2026, 10, 15, 10, 0, 0, 0, time.UTC)
	repo := convrepo.New(db).WithClock(func() time.Time {
		now = now.Add(time.Second)
		return now
	})
	convs := conversation.New(repo)
	a := &recordingAnswerer{reply: answer.Reply{Text: "Здравствуй, друг.", Path: "generated"}}
	return &fixture{svc: New(convs, repo, a), convs: convs, repo: repo, answerer: a}
}

func TestSend_RecordsBothTurns(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	conv, err := f.convs.Create(ctx, "u1", "")
	if err != nil {
		t.Fatal(err)
	}

	reply, err := f.svc.Send(ctx, "u1", conv.ID(), "  Привет  ", language.Kazakh)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reply.Text != "Здравствуй, друг." {
		t.Errorf("unexpected reply %q", reply.Text)
	}

	req := f.answerer.req
	if req.Question != "Привет" || req.Language != language.Kazakh || req.ConversationID != conv.ID() {
		t.Errorf("unexpected request %+v", req)
	}
	if req.QuestionTurnID <= 0 {
		t.Errorf("expected stored question turn id, got %d", req.QuestionTurnID)
	}
	before, err := f.repo.RecentTurns(ctx, conv.ID(), req.QuestionTurnID, 20)
	if err != nil || len(before) != 0 {
		t.Errorf("expected no turns before the first question, got %d (%v)", len(before), err)
	}

	turns, err := f.repo.Turns(ctx, conv.ID())
	if err != nil {
		t.Fatal(err)
	}
	if len(turns) != 2 {
		t.Fatalf("expected 2 turns, got %d", len(turns))
	}
	if turns[0].Role() != domain.RoleUser || turns[0].Content() != "Привет" {
		t.Errorf("unexpected user turn %+v", turns[0])
	}
	if turns[1].Role() != domain.RoleAssistant || turns[1].Content() != "Здравствуй, друг." {
		t.Errorf("unexpected assistant turn %+v", turns[1])
	}
}

func TestSend_QuestionDurableBeforeAnswer(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	conv, _ := f.convs.Create(ctx, "u1", "")

	var seen int
	f.answerer.onCall = func() {
		turns, err := f.repo.Turns(ctx, conv.ID())
		if err != nil {
			t.Errorf("read turns: %v", err)
		}
		seen = len(turns)
	}

	if _, err := f.svc.Send(ctx, "u1", conv.ID(), "вопрос", language.Russian); err != nil {
		t.Fatal(err)
	}
	if seen != 1 {
		t.Errorf("expected the question stored before answering, saw %d turns", seen)
	}
}

func TestSend_EmptyMessage(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Send(context.Background(), "u1", 1, "   ", language.Russian)
	if !errors.Is(err, domain.ErrEmptyMessage) {
		t.Fatalf("expected ErrEmptyMessage, got %v", err)
	}
	if f.answerer.calls != 0 {
		t.Error("answerer must not be called")
	}
}

func TestSend_UnknownConversation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	conv, _ := f.convs.Create(ctx, "owner", "")

	tests := []struct {
		name   string
		userID string
		convID int64
	}{
		{"missing", "owner", 9999},
		{"foreign", "stranger", conv.ID()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Send(ctx, tt.userID, tt.convID, "привет", language.Russian)
			if !errors.Is(err, domain.ErrConversationNotFound) {
				t.Fatalf("expected ErrConversationNotFound, got %v", err)
			}
		})
	}
	if f.answerer.calls != 0 {
		t.Error("answerer must not be called")
	}
}

func TestSend_StorageFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	conv, _ := f.convs.Create(ctx, "u1", "")

	storeErr := errors.New("disk full")
	svc := New(f.convs, failingLog{err: storeErr}, f.answerer)

	if _, err := svc.Send(ctx, "u1", conv.ID(), "привет", language.Russian); !errors.Is(err, storeErr) {
		t.Fatalf("expected storage error, got %v", err)
	}
	if f.answerer.calls != 0 {
		t.Error("no answer without a durable question")
	}
}
