package models

import (
	"errors"
	"time"
)

// User is one gateway tenant, keyed by an external account id
// (a phone number or similar). A user acquires a conversation
// thread lazily on their first chat turn.
type User struct {
	ID        string            `json:"id"`
	ThreadID  string            `json:"thread_id,omitempty"`
	Character *CharacterProfile `json:"character,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// CharacterProfile is a structured behavioral profile that can be
// instantiated into a runnable assistant.
type CharacterProfile struct {
	AgentName string   `json:"agent_name"`
	Bio       string   `json:"bio"`
	Traits    []string `json:"traits"`
	Knowledge []string `json:"knowledge"`
	Examples  []string `json:"examples"`
	Tasks     []string `json:"tasks"`
}

var ErrUnnamedProfile = errors.New("character profile has no agent name")

// Validate reports whether the profile can back a runnable agent.
func (p *CharacterProfile) Validate() error {
	if p == nil || p.AgentName == "" {
		return ErrUnnamedProfile
	}
	return nil
}

// Assistant is a registered persona bound to a remote execution
// identity and, optionally, a knowledge base.
type Assistant struct {
	ID            int64     `json:"id"`
	UserID        string    `json:"user_id"`
	AssistantID   string    `json:"assistant_id"`
	Name          string    `json:"name"`
	Description   string    `json:"description,omitempty"`
	Instructions  string    `json:"instructions"`
	IsDefault     bool      `json:"is_default"`
	VectorStoreID string    `json:"vector_store_id,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// Message roles as persisted in history.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one persisted conversation turn.
type Message struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}
