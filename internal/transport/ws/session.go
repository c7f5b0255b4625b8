package ws

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/kailas-cloud/abai/internal/domain"
	"github.com/kailas-cloud/abai/internal/domain/language"
	"github.com/kailas-cloud/abai/internal/logger"
)

// session is the per-socket state. Events are read sequentially; chat messages
// are answered in the background so the client can keep switching chats.
type session struct {
	conn   *websocket.Conn
	userID string
	convs  Conversations
	chat   Chat
	logger *zap.Logger

	writeMu sync.Mutex

	mu       sync.Mutex
	lang     language.Code
	current  int64
	stopping bool

	inflight sync.WaitGroup
}

func newSession(conn *websocket.Conn, userID string, convs Conversations, chat Chat, logger *zap.Logger) *session {
	return &session{
		conn:   conn,
		userID: userID,
		convs:  convs,
		chat:   chat,
		logger: logger,
		lang:   language.Default,
	}
}

func (s *session) run(parent context.Context) {
	ctx, cancel := context.WithCancel(logger.ContextWithLogger(parent, s.logger))
	defer cancel()
	defer s.inflight.Wait()

	go s.keepalive(ctx)

	if err := s.convs.EnsureUser(ctx, s.userID); err != nil {
		s.logger.Error("register user", zap.Error(err))
		return
	}
	s.emit(EventSession, sessionOut{UserID: s.userID})
	s.loadCurrent(ctx)
	s.loadConversations(ctx)

	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Debug("websocket read", zap.Error(err))
			}
			return
		}

		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			s.emit(EventError, noticeOut{Message: "invalid json"})
			continue
		}
		s.dispatch(ctx, env)
	}
}

// stop refuses new messages, waits for in-flight answers and closes the socket.
// The read loop then fails and run returns.
func (s *session) stop() {
	s.mu.Lock()
	s.stopping = true
	s.mu.Unlock()
	s.inflight.Wait()

	msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down")
	s.writeMu.Lock()
	_ = s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
	s.writeMu.Unlock()
	_ = s.conn.Close()
}

func (s *session) keepalive(ctx context.Context) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.writeMu.Lock()
			err := s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
			s.writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

func (s *session) dispatch(ctx context.Context, env Envelope) {
	switch env.Event {
	case EventSetLanguage:
		var code string
		if json.Unmarshal(env.Data, &code) != nil {
			return
		}
		if lang, err := language.Parse(code); err == nil {
			s.mu.Lock()
			s.lang = lang
			s.mu.Unlock()
		}

	case EventMessage:
		var in messageIn
		if json.Unmarshal(env.Data, &in) != nil || strings.TrimSpace(in.Text) == "" || in.ConvID == 0 {
			return
		}
		s.mu.Lock()
		if s.stopping {
			s.mu.Unlock()
			s.emit(EventError, noticeOut{Message: msgShuttingDown})
			return
		}
		s.inflight.Add(1)
		s.mu.Unlock()
		go func() {
			defer s.inflight.Done()
			s.handleMessage(ctx, in)
		}()

	case EventNewConversation:
		var in newConversationIn
		_ = json.Unmarshal(env.Data, &in)
		s.createConversation(ctx, in.Title)

	case EventSwitchConversation:
		var id int64
		if json.Unmarshal(env.Data, &id) != nil {
			return
		}
		s.switchConversation(ctx, id)

	case EventRenameConversation:
		var in renameIn
		if json.Unmarshal(env.Data, &in) != nil {
			return
		}
		s.renameConversation(ctx, in)

	case EventDeleteConversation:
		var id int64
		if json.Unmarshal(env.Data, &id) != nil {
			return
		}
		s.deleteConversation(ctx, id)

	default:
		s.emit(EventError, noticeOut{Message: "unknown event"})
	}
}

func (s *session) handleMessage(ctx context.Context, in messageIn) {
	if _, err := s.convs.Get(ctx, s.userID, in.ConvID); err != nil {
		s.invalid(ctx, err, msgChatDeleted)
		return
	}

	s.mu.Lock()
	lang := s.lang
	s.mu.Unlock()

	s.emit(EventBotTyping, true)
	reply, err := s.chat.Send(ctx, s.userID, in.ConvID, in.Text, lang)
	s.emit(EventBotTyping, false)

	switch {
	case err == nil:
		s.emit(EventBotMessage, botMessageOut{From: botName, Text: reply.Text, ConvID: in.ConvID, Path: reply.Path})
	case errors.Is(err, domain.ErrEmptyMessage):
	case errors.Is(err, domain.ErrConversationNotFound):
		s.invalid(ctx, err, msgChatDeleted)
	default:
		s.logger.Error("chat send", zap.Int64("conversation_id", in.ConvID), zap.Error(err))
		s.emit(EventBotMessage, botMessageOut{From: botName, Text: msgAnswerFailure, ConvID: in.ConvID})
	}
}

func (s *session) createConversation(ctx context.Context, title string) {
	conv, err := s.convs.Create(ctx, s.userID, title)
	if err != nil {
		s.logger.Warn("create conversation", zap.Error(err))
		s.emit(EventError, noticeOut{Message: safeMessage(err)})
		return
	}
	s.setCurrent(conv.ID())
	s.emit(EventNewConversation, newConversationOut{ConvID: conv.ID(), Title: conv.Title(), IsNew: true})
	s.loadConversations(ctx)
	s.loadChat(ctx, conv.ID())
}

func (s *session) switchConversation(ctx context.Context, id int64) {
	if _, err := s.convs.Get(ctx, s.userID, id); err != nil {
		s.invalid(ctx, err, msgChatNotFound)
		return
	}
	s.setCurrent(id)
	s.loadChat(ctx, id)
}

func (s *session) renameConversation(ctx context.Context, in renameIn) {
	if _, err := s.convs.Get(ctx, s.userID, in.ConvID); err != nil {
		s.invalid(ctx, err, msgChatNotFound)
		return
	}
	if _, err := s.convs.Rename(ctx, in.ConvID, in.NewTitle); err != nil {
		s.logger.Warn("rename conversation", zap.Int64("conversation_id", in.ConvID), zap.Error(err))
		s.emit(EventError, noticeOut{Message: safeMessage(err)})
		return
	}
	s.loadConversations(ctx)
}

func (s *session) deleteConversation(ctx context.Context, id int64) {
	err := s.convs.Delete(ctx, s.userID, id)
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrLastConversation):
		s.emit(EventDeleteFailed, deleteFailedOut{Reason: msgDeleteLast})
		return
	case errors.Is(err, domain.ErrConversationNotFound):
		s.invalid(ctx, err, msgChatNotFound)
		return
	default:
		s.logger.Error("delete conversation", zap.Int64("conversation_id", id), zap.Error(err))
		s.emit(EventError, noticeOut{Message: safeMessage(err)})
		return
	}

	s.loadConversations(ctx)
	s.emit(EventChatDeleted, deletedOut{ConvID: id})

	s.mu.Lock()
	wasCurrent := s.current == id
	s.mu.Unlock()
	if wasCurrent {
		s.loadCurrent(ctx)
	}
}

// invalid tells the client its conversation is gone and falls back to the latest one.
func (s *session) invalid(ctx context.Context, err error, message string) {
	if !errors.Is(err, domain.ErrConversationNotFound) {
		s.logger.Error("load conversation", zap.Error(err))
	}
	s.emit(EventChatInvalid, noticeOut{Message: message})
	s.loadCurrent(ctx)
}

func (s *session) loadCurrent(ctx context.Context) {
	conv, err := s.convs.Current(ctx, s.userID)
	if err != nil {
		s.logger.Error("current conversation", zap.Error(err))
		return
	}
	s.setCurrent(conv.ID())
	s.loadChat(ctx, conv.ID())
}

func (s *session) loadConversations(ctx context.Context) {
	convs, err := s.convs.List(ctx, s.userID)
	if err != nil {
		s.logger.Error("list conversations", zap.Error(err))
		return
	}
	s.emit(EventLoadConversations, conversationsOut(convs))
}

func (s *session) loadChat(ctx context.Context, id int64) {
	turns, err := s.convs.Messages(ctx, id)
	if err != nil {
		s.logger.Error("load messages", zap.Int64("conversation_id", id), zap.Error(err))
		return
	}
	s.emit(EventLoadChat, loadChatOut{ConvID: id, Messages: turnsOut(turns)})
}

func (s *session) setCurrent(id int64) {
	s.mu.Lock()
	s.current = id
	s.mu.Unlock()
}

func (s *session) emit(event string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		s.logger.Error("encode event", zap.String("event", event), zap.Error(err))
		return
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := s.conn.WriteJSON(Envelope{Event: event, Data: data}); err != nil {
		s.logger.Debug("websocket write", zap.String("event", event), zap.Error(err))
	}
}

func safeMessage(err error) string {
	for _, sentinel := range []error{domain.ErrInvalidArgument, domain.ErrConversationNotFound} {
		if errors.Is(err, sentinel) {
			return err.Error()
		}
	}
	return "internal error"
}
