package chat

import (
	"time"

	"github.com/google/uuid"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one turn entry in a conversation. Steps, Sources, Mode
// and Model are only set on assistant messages; Mode and Model echo
// what the backend reported it actually used for the reply.
type Message struct {
	ID        string   `json:"id"`
	Role      Role     `json:"role"`
	Text      string   `json:"text"`
	Sources   []string `json:"sources,omitempty"`
	Steps     []string `json:"steps,omitempty"`
	Mode      string   `json:"mode,omitempty"`
	Model     string   `json:"model,omitempty"`
	Failed    bool     `json:"failed,omitempty"`
	CreatedAt int64    `json:"created_at_ms"`
}

func NewMessage(role Role, text string) Message {
	return Message{
		ID:        "msg-" + uuid.NewString(),
		Role:      role,
		Text:      text,
		CreatedAt: time.Now().UnixMilli(),
	}
}

// MemoryMode selects how much history travels with each request.
type MemoryMode string

const (
	MemoryStateless MemoryMode = "stateless"
	MemoryShortTerm MemoryMode = "short-term"
	MemoryLongTerm  MemoryMode = "long-term"
)

func (m MemoryMode) Valid() bool {
	switch m {
	case MemoryStateless, MemoryShortTerm, MemoryLongTerm:
		return true
	}
	return false
}
