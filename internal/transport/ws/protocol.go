package ws

import (
	"encoding/json"
	"time"

	"github.com/kailas-cloud/abai/internal/domain"
	domconv "github.com/kailas-cloud/abai/internal/domain/conversation"
)

// Client events.
const (
	EventSetLanguage        = "set-language"
	EventMessage            = "message"
	EventNewConversation    = "new-conversation"
	EventSwitchConversation = "switch-conversation"
	EventRenameConversation = "rename-conversation"
	EventDeleteConversation = "delete-conversation"
)

// Server events. EventNewConversation is sent in both directions.
const (
	EventSession           = "session"
	EventLoadConversations = "load-conversations"
	EventLoadChat          = "load-chat"
	EventBotTyping         = "bot-typing"
	EventBotMessage        = "bot-message"
	EventChatInvalid       = "chat-invalid"
	EventChatDeleted       = "chat-deleted"
	EventDeleteFailed      = "delete-failed"
	EventError             = "error"
)

const (
	botName          = "abay"
	msgChatDeleted   = "Чат удалён. Переключаемся..."
	msgChatNotFound  = "Чат не найден."
	msgDeleteLast    = "Нельзя удалить единственный чат."
	msgAnswerFailure = "Ошибка. Попробуй ещё."
	msgShuttingDown  = "Сервер перезапускается. Попробуй чуть позже."
)

// Envelope is one websocket frame.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type messageIn struct {
	Text   string `json:"text"`
	ConvID int64  `json:"convId"`
}

type newConversationIn struct {
	Title string `json:"title"`
}

type renameIn struct {
	ConvID   int64  `json:"convId"`
	NewTitle string `json:"newTitle"`
}

type sessionOut struct {
	UserID string `json:"userId"`
}

type conversationOut struct {
	ID        int64     `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type turnOut struct {
	Role      domain.Role `json:"role"`
	Content   string      `json:"content"`
	Timestamp time.Time   `json:"timestamp"`
}

type loadChatOut struct {
	ConvID   int64     `json:"convId"`
	Messages []turnOut `json:"messages"`
	IsNew    bool      `json:"isNew"`
}

type newConversationOut struct {
	ConvID int64  `json:"convId"`
	Title  string `json:"title"`
	IsNew  bool   `json:"isNew"`
}

type botMessageOut struct {
	From   string `json:"from"`
	Text   string `json:"text"`
	ConvID int64  `json:"convId"`
	Path   string `json:"path,omitempty"`
}

type noticeOut struct {
	Message string `json:"message"`
}

type deletedOut struct {
	ConvID int64 `json:"convId"`
}

type deleteFailedOut struct {
	Reason string `json:"reason"`
}

func conversationsOut(convs []domconv.Conversation) []conversationOut {
	out := make([]conversationOut, len(convs))
	for i, c := range convs {
		out[i] = conversationOut{ID: c.ID(), Title: c.Title(), CreatedAt: c.CreatedAt(), UpdatedAt: c.UpdatedAt()}
	}
	return out
}

func turnsOut(turns []domconv.Turn) []turnOut {
	out := make([]turnOut, len(turns))
	for i, t := range turns {
		out[i] = turnOut{Role: t.Role(), Content: t.Content(), Timestamp: t.CreatedAt()}
	}
	return out
}
