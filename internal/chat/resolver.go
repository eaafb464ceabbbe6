package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/xaenox/persona-gateway/internal/storage"
	"go.uber.org/zap"
)

// ErrNoGeneralAssistant means the process-wide fallback assistant is
// not configured. This is a deployment problem, distinct from a
// per-request "assistant not found".
var ErrNoGeneralAssistant = errors.New("general-purpose assistant is not configured")

// Selection is the outcome of resolving one inbound message.
type Selection struct {
	AssistantID   string
	VectorStoreID string
	// Name is empty for the general-purpose fallback.
	Name string
	// Message is the effective message with any leading persona
	// address token consumed. May be empty when the whole message was
	// the address token.
	Message string
}

// Resolver maps a user plus raw message text to the assistant that
// should handle the turn.
type Resolver struct {
	store              storage.Storage
	generalAssistantID string
	logger             *zap.Logger
}

func NewResolver(store storage.Storage, generalAssistantID string, logger *zap.Logger) *Resolver {
	return &Resolver{
		store:              store,
		generalAssistantID: generalAssistantID,
		logger:             logger,
	}
}

// Resolve treats the first whitespace token, with a trailing comma
// stripped, as a candidate persona name. A case-insensitive match
// among the user's assistants consumes the token; otherwise the
// message goes untouched to the user's default assistant, and failing
// that, to the general-purpose one.
func (r *Resolver) Resolve(ctx context.Context, userID, rawMessage string) (*Selection, error) {
	words := strings.Fields(strings.TrimSpace(rawMessage))

	if len(words) > 0 {
		candidate := strings.TrimSuffix(words[0], ",")

		named, err := r.store.GetAssistantByName(ctx, userID, candidate)
		if err != nil && !errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("resolve persona %q: %w", candidate, err)
		}
		if named != nil {
			return &Selection{
				AssistantID:   named.AssistantID,
				VectorStoreID: named.VectorStoreID,
				Name:          named.Name,
				Message:       strings.Join(words[1:], " "),
			}, nil
		}
	}

	fallback, err := r.store.GetDefaultAssistant(ctx, userID)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("resolve default assistant: %w", err)
	}
	if fallback != nil {
		return &Selection{
			AssistantID:   fallback.AssistantID,
			VectorStoreID: fallback.VectorStoreID,
			Name:          fallback.Name,
			Message:       rawMessage,
		}, nil
	}

	if r.generalAssistantID == "" {
		return nil, ErrNoGeneralAssistant
	}

	r.logger.Debug("Falling back to general-purpose assistant",
		zap.String("user_id", userID))
	return &Selection{
		AssistantID: r.generalAssistantID,
		Message:     rawMessage,
	}, nil
}
