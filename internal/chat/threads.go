package chat

import (
	"context"
	"fmt"

	"github.com/xaenox/persona-gateway/internal/provider"
	"github.com/xaenox/persona-gateway/internal/storage"
	"go.uber.org/zap"
)

// ThreadStore maps users to their durable remote conversation thread,
// creating one lazily on first use.
type ThreadStore struct {
	store  storage.Storage
	client provider.Client
	logger *zap.Logger
	locks  *keyedMutex
}

func NewThreadStore(store storage.Storage, client provider.Client, logger *zap.Logger) *ThreadStore {
	return &ThreadStore{
		store:  store,
		client: client,
		logger: logger,
		locks:  newKeyedMutex(),
	}
}

// GetOrCreate returns the user's thread handle, creating and
// persisting one if needed. The per-user lock plus the store's
// conditional assignment keep concurrent first messages from forking
// conversation state: at most one handle is ever persisted, and every
// caller adopts it. A remote thread that loses the persist race is
// abandoned (the provider has no thread deletion worth compensating
// with), which is logged and harmless.
func (t *ThreadStore) GetOrCreate(ctx context.Context, userID string) (string, error) {
	unlock := t.locks.Lock(userID)
	defer unlock()

	user, err := t.store.GetUser(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("load user %s: %w", userID, err)
	}
	if user.ThreadID != "" {
		return user.ThreadID, nil
	}

	created, err := t.client.CreateThread(ctx)
	if err != nil {
		return "", fmt.Errorf("create thread for %s: %w", userID, err)
	}

	// A thread must never exist remotely without being durably
	// recorded, so a persist failure fails the whole request.
	winner, err := t.store.AssignThread(ctx, userID, created)
	if err != nil {
		return "", fmt.Errorf("persist thread %s for %s: %w", created, userID, err)
	}

	if winner != created {
		t.logger.Warn("Lost thread-creation race, adopting persisted handle",
			zap.String("user_id", userID),
			zap.String("created", created),
			zap.String("persisted", winner))
	} else {
		t.logger.Info("Created conversation thread",
			zap.String("user_id", userID),
			zap.String("thread_id", created))
	}
	return winner, nil
}
