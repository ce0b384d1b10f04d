package types

import "context"

const (
	MessageRoleUser      = "user"
	MessageRoleAssistant = "assistant"
)

// Message is one inbound user message or outbound reply.
type Message struct {
	ID        string
	Content   string
	Role      string
	ChannelID string // Source channel identifier (e.g., "cli", "http")
	UserID    string
	SessionID string
	RequestID string
	Meta      map[string]interface{}
}

// Agent turns an inbound message into a reply.
type Agent interface {
	Process(ctx context.Context, msg Message) (Message, error)
	Name() string
}

// Channel is an input/output surface (CLI, HTTP, Telegram).
type Channel interface {
	Start(ctx context.Context, handler func(Message)) error
	Send(ctx context.Context, msg Message) error
	ID() string
}

// Gateway connects channels to the agent.
type Gateway interface {
	RegisterChannel(c Channel)
	Start(ctx context.Context) error
}
