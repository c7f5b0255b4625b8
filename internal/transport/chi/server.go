package chi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	chirouter "github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kailas-cloud/abai/internal/domain"
	domconv "github.com/kailas-cloud/abai/internal/domain/conversation"
	"github.com/kailas-cloud/abai/internal/domain/language"
	chatuc "github.com/kailas-cloud/abai/internal/usecase/chat"
	conversationuc "github.com/kailas-cloud/abai/internal/usecase/conversation"
	healthuc "github.com/kailas-cloud/abai/internal/usecase/health"
	usageuc "github.com/kailas-cloud/abai/internal/usecase/usage"
)

// Server serves the REST API.
type Server struct {
	conversations *conversationuc.Service
	chat          *chatuc.Service
	usage         *usageuc.Service
	health        *healthuc.Service
	logger        *zap.Logger
}

// NewServer creates an HTTP API server.
func NewServer(
	conversations *conversationuc.Service,
	chat *chatuc.Service,
	usage *usageuc.Service,
	health *healthuc.Service,
	logger *zap.Logger,
) *Server {
	return &Server{
		conversations: conversations,
		chat:          chat,
		usage:         usage,
		health:        health,
		logger:        logger,
	}
}

// Mount registers the API routes on r.
func (s *Server) Mount(r chirouter.Router) {
	r.Route("/users/{userID}/conversations", func(r chirouter.Router) {
		r.Post("/", s.CreateConversation)
		r.Get("/", s.ListConversations)
		r.Get("/current", s.CurrentConversation)
		r.Patch("/{convID}", s.RenameConversation)
		r.Delete("/{convID}", s.DeleteConversation)
		r.Get("/{convID}/messages", s.ListMessages)
		r.Post("/{convID}/messages", s.SendMessage)
	})
	r.Get("/usage", s.GetUsage)
	r.Get("/health", s.HealthCheck)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
}

// --- DTOs ---

type conversationResponse struct {
	ID        int64     `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type conversationListResponse struct {
	Items []conversationResponse `json:"items"`
}

type messageResponse struct {
	Role      domain.Role `json:"role"`
	Content   string      `json:"content"`
	CreatedAt time.Time   `json:"created_at"`
}

type messageListResponse struct {
	Items []messageResponse `json:"items"`
}

type titleRequest struct {
	Title string `json:"title"`
}

type renameResponse struct {
	ID    int64  `json:"id"`
	Title string `json:"title"`
}

type sendRequest struct {
	Text     string `json:"text"`
	Language string `json:"language"`
}

type sendResponse struct {
	Reply string `json:"reply"`
	Path  string `json:"path"`
}

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// --- Handlers ---

// CreateConversation handles POST /users/{userID}/conversations.
func (s *Server) CreateConversation(w http.ResponseWriter, r *http.Request) {
	var req titleRequest
	if !decodeOptionalBody(w, r, &req) {
		return
	}
	conv, err := s.conversations.Create(r.Context(), chirouter.URLParam(r, "userID"), req.Title)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, conversationToResponse(conv))
}

// ListConversations handles GET /users/{userID}/conversations.
func (s *Server) ListConversations(w http.ResponseWriter, r *http.Request) {
	convs, err := s.conversations.List(r.Context(), chirouter.URLParam(r, "userID"))
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	items := make([]conversationResponse, len(convs))
	for i, c := range convs {
		items[i] = conversationToResponse(c)
	}
	writeJSON(w, http.StatusOK, conversationListResponse{Items: items})
}

// CurrentConversation handles GET /users/{userID}/conversations/current.
func (s *Server) CurrentConversation(w http.ResponseWriter, r *http.Request) {
	conv, err := s.conversations.Current(r.Context(), chirouter.URLParam(r, "userID"))
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, conversationToResponse(conv))
}

// RenameConversation handles PATCH /users/{userID}/conversations/{convID}.
func (s *Server) RenameConversation(w http.ResponseWriter, r *http.Request) {
	id, ok := s.ownedConvID(w, r)
	if !ok {
		return
	}
	var req titleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "Invalid request body: "+err.Error())
		return
	}
	title, err := s.conversations.Rename(r.Context(), id, req.Title)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, renameResponse{ID: id, Title: title})
}

// DeleteConversation handles DELETE /users/{userID}/conversations/{convID}.
func (s *Server) DeleteConversation(w http.ResponseWriter, r *http.Request) {
	id, ok := convIDParam(w, r)
	if !ok {
		return
	}
	if err := s.conversations.Delete(r.Context(), chirouter.URLParam(r, "userID"), id); err != nil {
		s.handleDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListMessages handles GET /users/{userID}/conversations/{convID}/messages.
func (s *Server) ListMessages(w http.ResponseWriter, r *http.Request) {
	id, ok := s.ownedConvID(w, r)
	if !ok {
		return
	}
	turns, err := s.conversations.Messages(r.Context(), id)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	items := make([]messageResponse, len(turns))
	for i, t := range turns {
		items[i] = messageResponse{Role: t.Role(), Content: t.Content(), CreatedAt: t.CreatedAt()}
	}
	writeJSON(w, http.StatusOK, messageListResponse{Items: items})
}

// SendMessage handles POST /users/{userID}/conversations/{convID}/messages.
func (s *Server) SendMessage(w http.ResponseWriter, r *http.Request) {
	id, ok := convIDParam(w, r)
	if !ok {
		return
	}
	var req sendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "Invalid request body: "+err.Error())
		return
	}
	lang, err := language.Parse(req.Language)
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeValidationFailed, err.Error())
		return
	}

	ctx, usage := domain.NewContextWithUsage(r.Context())
	reply, err := s.chat.Send(ctx, chirouter.URLParam(r, "userID"), id, req.Text, lang)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	setUsageHeaders(w, usage)
	writeJSON(w, http.StatusOK, sendResponse{Reply: reply.Text, Path: reply.Path})
}

// GetUsage handles GET /usage?period=day|month|total.
func (s *Server) GetUsage(w http.ResponseWriter, r *http.Request) {
	period := usageuc.ParsePeriod(r.URL.Query().Get("period"))
	writeJSON(w, http.StatusOK, s.usage.GetReport(r.Context(), period))
}

// HealthCheck handles GET /health.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	checks := make(map[string]string, len(report.Checks))
	for k, v := range report.Checks {
		checks[k] = string(v)
	}

	httpStatus := http.StatusOK
	if report.Status != healthuc.Healthy {
		httpStatus = http.StatusServiceUnavailable
	}
	writeJSON(w, httpStatus, healthResponse{Status: string(report.Status), Checks: checks})
}

// --- helpers ---

func setUsageHeaders(w http.ResponseWriter, usage *domain.Usage) {
	if usage.Embedded {
		w.Header().Set("X-Embedding-Tokens", strconv.Itoa(usage.EmbeddingTokens))
	}
	if usage.GenerationTokens > 0 {
		w.Header().Set("X-Generation-Tokens", strconv.Itoa(usage.GenerationTokens))
	}
}

func convIDParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	raw := chirouter.URLParam(r, "convID")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, CodeBadRequest, fmt.Sprintf("invalid conversation id %q", raw))
		return 0, false
	}
	return id, true
}

// ownedConvID parses {convID} and checks it belongs to {userID}.
// A foreign conversation is reported as not found.
func (s *Server) ownedConvID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, ok := convIDParam(w, r)
	if !ok {
		return 0, false
	}
	if _, err := s.conversations.Get(r.Context(), chirouter.URLParam(r, "userID"), id); err != nil {
		s.handleDomainError(w, err)
		return 0, false
	}
	return id, true
}

// decodeOptionalBody decodes a JSON body if present. An empty body leaves v untouched.
func decodeOptionalBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if r.Body == nil || r.ContentLength == 0 {
		return true
	}
	err := json.NewDecoder(r.Body).Decode(v)
	if err == nil || errors.Is(err, io.EOF) {
		return true
	}
	writeError(w, http.StatusBadRequest, CodeBadRequest, "Invalid request body: "+err.Error())
	return false
}

func conversationToResponse(c domconv.Conversation) conversationResponse {
	return conversationResponse{
		ID:        c.ID(),
		Title:     c.Title(),
		CreatedAt: c.CreatedAt(),
		UpdatedAt: c.UpdatedAt(),
	}
}
