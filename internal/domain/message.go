package domain

// Role is the author of a chat message.
type Role string

const (
	// RoleUser marks a message written by the person asking.
	RoleUser Role = "user"
	// RoleAssistant marks a message produced by the persona.
	RoleAssistant Role = "assistant"
)

// Message is one entry of the sequence sent to the generative backend.
type Message struct {
	Role    Role
	Content string
}
