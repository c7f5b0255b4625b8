package chi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	chirouter "github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/kailas-cloud/abai/internal/db/sqlite"
	"github.com/kailas-cloud/abai/internal/domain"
	"github.com/kailas-cloud/abai/internal/domain/language"
	convrepo "github.com/kailas-cloud/abai/internal/repository/conversation"
	"github.com/kailas-cloud/abai/internal/usecase/answer"
	chatuc "github.com/kailas-cloud/abai/internal/usecase/chat"
	conversationuc "github.com/kailas-cloud/abai/internal/usecase/conversation"
	healthuc "github.com/kailas-cloud/abai/internal/usecase/health"
	usageuc "github.com/kailas-cloud/abai/internal/usecase/usage"
)

// --- Mocks ---

type stubAnswerer struct {
	lang language.Code
}

func (s *stubAnswerer) Respond(ctx context.Context, req answer.Request) answer.Reply {
	s.lang = req.Language
	domain.UsageFromContext(ctx).AddGenerationTokens(42)
	return answer.Reply{Text: "Ответ на: " + req.Question, Path: "generated"}
}

type stubPinger struct {
	err error
}

func (p stubPinger) Ping(context.Context) error { return p.err }

type stubBudget struct{}

func (stubBudget) DailyLimit() int64       { return 1000 }
func (stubBudget) MonthlyLimit() int64     { return 30000 }
func (stubBudget) DailyUsed() int64        { return 250 }
func (stubBudget) MonthlyUsed() int64      { return 4000 }
func (stubBudget) RemainingDaily() int64   { return 750 }
func (stubBudget) RemainingMonthly() int64 { return 26000 }

type testAPI struct {
	handler  http.Handler
	convs    *conversationuc.Service
	answerer *stubAnswerer
}

func newTestAPI(t *testing.T, dbErr error) *testAPI {
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
	convs := conversationuc.New(repo)
	ans := &stubAnswerer{}
	srv := NewServer(
		convs,
		chatuc.New(convs, repo, ans),
		usageuc.New(stubBudget{}),
		healthuc.New(healthuc.Deps{Database: stubPinger{err: dbErr}}),
		zap.NewNop(),
	)

	r := chirouter.NewRouter()
	srv.Mount(r)
	return &testAPI{handler: r, convs: convs, answerer: ans}
}

func (a *testAPI) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, http.NoBody)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	a.handler.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rr.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return v
}

// --- Tests ---

func TestCreateConversation(t *testing.T) {
	api := newTestAPI(t, nil)

	rr := api.do(t, http.MethodPost, "/users/u1/conversations", `{"title":"О поэзии"}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	conv := decode[conversationResponse](t, rr)
	if conv.ID == 0 || conv.Title != "О поэзии" {
		t.Errorf("unexpected conversation %+v", conv)
	}
}

func TestCreateConversation_EmptyBodyUsesDefaultTitle(t *testing.T) {
	api := newTestAPI(t, nil)

	rr := api.do(t, http.MethodPost, "/users/u1/conversations", "")
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	if conv := decode[conversationResponse](t, rr); conv.Title != "Новый чат с Абаем" {
		t.Errorf("expected default title, got %q", conv.Title)
	}
}

func TestCreateConversation_InvalidBody(t *testing.T) {
	api := newTestAPI(t, nil)

	rr := api.do(t, http.MethodPost, "/users/u1/conversations", `{"title":`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
	if e := decode[ErrorResponse](t, rr); e.Code != CodeBadRequest {
		t.Errorf("expected %q, got %q", CodeBadRequest, e.Code)
	}
}

func TestListAndCurrentConversations(t *testing.T) {
	api := newTestAPI(t, nil)

	rr := api.do(t, http.MethodGet, "/users/u1/conversations/current", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	current := decode[conversationResponse](t, rr)

	api.do(t, http.MethodPost, "/users/u1/conversations", `{"title":"второй"}`)

	rr = api.do(t, http.MethodGet, "/users/u1/conversations", "")
	list := decode[conversationListResponse](t, rr)
	if len(list.Items) != 2 {
		t.Fatalf("expected 2 conversations, got %d", len(list.Items))
	}
	if list.Items[0].Title != "второй" || list.Items[1].ID != current.ID {
		t.Errorf("unexpected order %+v", list.Items)
	}
}

func TestRenameConversation(t *testing.T) {
	api := newTestAPI(t, nil)
	conv, _ := api.convs.Create(context.Background(), "u1", "")

	rr := api.do(t, http.MethodPatch, fmt.Sprintf("/users/u1/conversations/%d", conv.ID()), `{"title":"  Слова назидания "}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if got := decode[renameResponse](t, rr); got.Title != "Слова назидания" {
		t.Errorf("unexpected title %q", got.Title)
	}

	rr = api.do(t, http.MethodPatch, "/users/u1/conversations/999", `{"title":"x"}`)
	if rr.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rr.Code)
	}
}

func TestConversationRoutes_ForeignUser(t *testing.T) {
	api := newTestAPI(t, nil)
	ctx := context.Background()
	conv, _ := api.convs.Create(ctx, "u1", "моё")

	tests := []struct {
		name   string
		method string
		path   string
		body   string
	}{
		{"rename", http.MethodPatch, fmt.Sprintf("/users/u2/conversations/%d", conv.ID()), `{"title":"чужое"}`},
		{"messages", http.MethodGet, fmt.Sprintf("/users/u2/conversations/%d/messages", conv.ID()), ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := api.do(t, tt.method, tt.path, tt.body)
			if rr.Code != http.StatusNotFound {
				t.Fatalf("expected 404, got %d: %s", rr.Code, rr.Body.String())
			}
			if e := decode[ErrorResponse](t, rr); e.Code != CodeConversationNotFound {
				t.Errorf("expected %q, got %q", CodeConversationNotFound, e.Code)
			}
		})
	}

	got, err := api.convs.Get(ctx, "u1", conv.ID())
	if err != nil {
		t.Fatal(err)
	}
	if got.Title() != "моё" {
		t.Errorf("foreign rename must not apply, title is %q", got.Title())
	}
}

func TestDeleteConversation(t *testing.T) {
	api := newTestAPI(t, nil)
	ctx := context.Background()
	first, _ := api.convs.Create(ctx, "u1", "")

	rr := api.do(t, http.MethodDelete, fmt.Sprintf("/users/u1/conversations/%d", first.ID()), "")
	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409 for the last conversation, got %d", rr.Code)
	}
	if e := decode[ErrorResponse](t, rr); e.Code != CodeLastConversation {
		t.Errorf("expected %q, got %q", CodeLastConversation, e.Code)
	}

	second, _ := api.convs.Create(ctx, "u1", "")
	rr = api.do(t, http.MethodDelete, fmt.Sprintf("/users/u1/conversations/%d", second.ID()), "")
	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rr.Code)
	}
}

func TestSendMessage(t *testing.T) {
	api := newTestAPI(t, nil)
	conv, _ := api.convs.Create(context.Background(), "u1", "")

	rr := api.do(t, http.MethodPost, fmt.Sprintf("/users/u1/conversations/%d/messages", conv.ID()),
		`{"text":"Что такое совесть?","language":"kk"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	got := decode[sendResponse](t, rr)
	if got.Reply != "Ответ на: Что такое совесть?" || got.Path != "generated" {
		t.Errorf("unexpected reply %+v", got)
	}
	if api.answerer.lang != language.Kazakh {
		t.Errorf("expected kk, got %q", api.answerer.lang)
	}
	if rr.Header().Get("X-Generation-Tokens") != "42" {
		t.Errorf("expected generation tokens header, got %q", rr.Header().Get("X-Generation-Tokens"))
	}

	rr = api.do(t, http.MethodGet, fmt.Sprintf("/users/u1/conversations/%d/messages", conv.ID()), "")
	msgs := decode[messageListResponse](t, rr)
	if len(msgs.Items) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs.Items))
	}
	if msgs.Items[0].Role != domain.RoleUser || msgs.Items[1].Role != domain.RoleAssistant {
		t.Errorf("unexpected roles %+v", msgs.Items)
	}
}

func TestSendMessage_Errors(t *testing.T) {
	api := newTestAPI(t, nil)
	conv, _ := api.convs.Create(context.Background(), "u1", "")
	path := fmt.Sprintf("/users/u1/conversations/%d/messages", conv.ID())

	tests := []struct {
		name   string
		path   string
		body   string
		status int
		code   ErrorCode
	}{
		{"empty text", path, `{"text":"   "}`, http.StatusBadRequest, CodeEmptyMessage},
		{"bad language", path, `{"text":"привет","language":"en"}`, http.StatusBadRequest, CodeValidationFailed},
		{"foreign conversation", fmt.Sprintf("/users/u2/conversations/%d/messages", conv.ID()),
			`{"text":"привет"}`, http.StatusNotFound, CodeConversationNotFound},
		{"bad id", "/users/u1/conversations/abc/messages", `{"text":"привет"}`, http.StatusBadRequest, CodeBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := api.do(t, http.MethodPost, tt.path, tt.body)
			if rr.Code != tt.status {
				t.Fatalf("expected %d, got %d: %s", tt.status, rr.Code, rr.Body.String())
			}
			if e := decode[ErrorResponse](t, rr); e.Code != tt.code {
				t.Errorf("expected %q, got %q", tt.code, e.Code)
			}
		})
	}
}

func TestGetUsage(t *testing.T) {
	api := newTestAPI(t, nil)

	rr := api.do(t, http.MethodGet, "/usage?period=day", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	got := decode[usageuc.Report](t, rr)
	if got.Period != usageuc.PeriodDay || got.TokensUsed != 250 || got.TokensRemaining != 750 {
		t.Errorf("unexpected report %+v", got)
	}
}

func TestHealthCheck(t *testing.T) {
	tests := []struct {
		name   string
		dbErr  error
		status int
		want   string
	}{
		{"healthy", nil, http.StatusOK, "ok"},
		{"degraded", errors.New("locked"), http.StatusServiceUnavailable, "degraded"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := newTestAPI(t, tt.dbErr)
			rr := api.do(t, http.MethodGet, "/health", "")
			if rr.Code != tt.status {
				t.Fatalf("expected %d, got %d", tt.status, rr.Code)
			}
			if got := decode[healthResponse](t, rr); got.Status != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got.Status)
			}
		})
	}
}

func TestHandleDomainError_Internal(t *testing.T) {
	s := &Server{logger: zap.NewNop()}
	rr := httptest.NewRecorder()
	s.handleDomainError(rr, errors.New("select: database is locked"))

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rr.Code)
	}
	e := decode[ErrorResponse](t, rr)
	if e.Message != "internal error" {
		t.Errorf("internal details must not leak, got %q", e.Message)
	}
}

func TestHandleDomainError_Sentinels(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{fmt.Errorf("wrap: %w", domain.ErrTokenBudgetExceeded), http.StatusPaymentRequired},
		{fmt.Errorf("wrap: %w", domain.ErrEmbeddingProviderError), http.StatusBadGateway},
		{fmt.Errorf("wrap: %w", domain.ErrInvalidArgument), http.StatusBadRequest},
	}
	s := &Server{logger: zap.NewNop()}
	for _, tt := range tests {
		rr := httptest.NewRecorder()
		s.handleDomainError(rr, tt.err)
		if rr.Code != tt.status {
			t.Errorf("%v: expected %d, got %d", tt.err, tt.status, rr.Code)
		}
	}
}
