package storage

import (
	"context"
	"errors"

	"github.com/xaenox/persona-gateway/internal/models"
)

// ErrNotFound is returned by lookups that match no row.
var ErrNotFound = errors.New("not found")

type Storage interface {
	// GetUser returns the user record, or a zero-value user with the
	// given id if none has been persisted yet.
	GetUser(ctx context.Context, id string) (*models.User, error)

	// AssignThread records a thread handle for the user unless one is
	// already recorded, and returns the handle that won. Callers must
	// adopt the returned handle, which may differ from the one passed
	// in when a concurrent assignment got there first.
	AssignThread(ctx context.Context, userID, threadID string) (string, error)

	// SaveCharacter attaches a character profile to the user (upsert).
	SaveCharacter(ctx context.Context, userID string, profile *models.CharacterProfile) error

	// CreateAssistant persists a registered assistant. The first
	// assistant created for a user becomes that user's default.
	CreateAssistant(ctx context.Context, a *models.Assistant) error

	// GetAssistantByName matches case-insensitively on the assistant's
	// human name within one user's assistants.
	GetAssistantByName(ctx context.Context, userID, name string) (*models.Assistant, error)

	GetDefaultAssistant(ctx context.Context, userID string) (*models.Assistant, error)

	// GetAssistantByRemoteID looks up by the provider-side assistant id.
	GetAssistantByRemoteID(ctx context.Context, assistantID string) (*models.Assistant, error)

	SaveMessage(ctx context.Context, m *models.Message) error
	GetUserMessages(ctx context.Context, userID string, limit, offset int) ([]*models.Message, error)

	Close() error
}
