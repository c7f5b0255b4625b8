package answer

import (
	"context"

	"github.com/kailas-cloud/abai/internal/domain"
	"github.com/kailas-cloud/abai/internal/domain/language"
	"github.com/kailas-cloud/abai/internal/usecase/knowledge"
)

// FAQMatcher returns a canned response for simple questions.
type FAQMatcher interface {
	Match(ctx context.Context, question string) (string, bool)
}

// Retriever returns passages relevant to the question.
type Retriever interface {
	Retrieve(ctx context.Context, question string, opts ...knowledge.Option) []string
}

// Composer renders the system prompt.
type Composer interface {
	Compose(lang language.Code, chunks []string) string
}

// History loads the recent turns of a conversation, oldest first. A positive
// beforeTurnID keeps only turns stored before that turn.
type History interface {
	Load(ctx context.Context, conversationID, beforeTurnID int64, limit int) []domain.Message
}

// Generator calls the generative backend.
type Generator interface {
	Generate(ctx context.Context, systemPrompt string, messages []domain.Message) (string, error)
}
