package domain

import "errors"

var (
	// ErrNotReady signals that the embedding snapshot is not published yet.
	ErrNotReady = errors.New("embeddings not ready")

	// ErrBackendTimeout signals that the generative backend exceeded its deadline.
	ErrBackendTimeout = errors.New("generation backend timeout")
	// ErrBackendTransport signals a network or API failure talking to the backend.
	ErrBackendTransport = errors.New("generation backend transport error")
	// ErrBackendMalformed signals a response without usable content.
	ErrBackendMalformed = errors.New("generation backend malformed response")

	// ErrStorageRead signals a failed read from the turn log.
	ErrStorageRead = errors.New("storage read error")

	// ErrConversationNotFound signals a missing conversation.
	ErrConversationNotFound = errors.New("conversation not found")
	// ErrLastConversation signals an attempt to delete the only conversation of a user.
	ErrLastConversation = errors.New("cannot delete the only conversation")
	// ErrEmptyMessage signals a blank chat message.
	ErrEmptyMessage = errors.New("empty message")
	// ErrInvalidArgument signals malformed input from a client.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrTokenBudgetExceeded signals a spent token budget under the reject action.
	ErrTokenBudgetExceeded = errors.New("token budget exceeded")
	// ErrEmbeddingProviderError signals an embedding provider failure.
	ErrEmbeddingProviderError = errors.New("embedding provider error")
)
