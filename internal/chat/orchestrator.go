package chat

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/xaenox/persona-gateway/internal/models"
	"github.com/xaenox/persona-gateway/internal/storage"
	"go.uber.org/zap"
)

// Orchestrator composes resolver, thread store and run driver into
// the single "submit message, get reply" operation.
type Orchestrator struct {
	resolver *Resolver
	threads  *ThreadStore
	driver   *Driver
	store    storage.Storage
	logger   *zap.Logger

	// PersistHistory records both sides of each turn as history rows,
	// for reconstruction when the remote thread model does not retain
	// cross-session history.
	PersistHistory bool
}

func NewOrchestrator(resolver *Resolver, threads *ThreadStore, driver *Driver, store storage.Storage, logger *zap.Logger) *Orchestrator {
	return &Orchestrator{
		resolver:       resolver,
		threads:        threads,
		driver:         driver,
		store:          store,
		logger:         logger,
		PersistHistory: true,
	}
}

// HandleTurn runs one conversation turn and returns the reply as
// plain text. Surface-specific presentation (HTML line breaks and the
// like) is the caller's concern; see FormatHTML.
func (o *Orchestrator) HandleTurn(ctx context.Context, userID, rawMessage string) (string, error) {
	selection, err := o.resolver.Resolve(ctx, userID, rawMessage)
	if err != nil {
		return "", err
	}

	threadID, err := o.threads.GetOrCreate(ctx, userID)
	if err != nil {
		return "", err
	}

	o.logger.Info("Handling turn",
		zap.String("user_id", userID),
		zap.String("thread_id", threadID),
		zap.String("assistant_id", selection.AssistantID),
		zap.String("persona", selection.Name))

	submitted := time.Now()
	result, err := o.driver.Execute(ctx, threadID, selection.AssistantID, selection.Message)
	if err != nil {
		return "", err
	}

	reply := strings.TrimSpace(result.Text())
	o.persistTurn(ctx, userID, rawMessage, reply, submitted)
	return reply, nil
}

// persistTurn saves both messages ordered by submission time. History
// is best effort: a storage hiccup is logged, not surfaced, because
// the reply already exists.
func (o *Orchestrator) persistTurn(ctx context.Context, userID, inbound, outbound string, submitted time.Time) {
	if !o.PersistHistory {
		return
	}

	records := []*models.Message{
		{
			ID:        uuid.New().String(),
			UserID:    userID,
			Role:      models.RoleUser,
			Content:   inbound,
			CreatedAt: submitted,
		},
		{
			ID:        uuid.New().String(),
			UserID:    userID,
			Role:      models.RoleAssistant,
			Content:   outbound,
			CreatedAt: time.Now(),
		},
	}
	for _, record := range records {
		if err := o.store.SaveMessage(ctx, record); err != nil {
			o.logger.Error("Failed to persist history message",
				zap.Error(err),
				zap.String("user_id", userID),
				zap.String("role", record.Role))
		}
	}
}

// History returns the user's most recent persisted turns.
func (o *Orchestrator) History(ctx context.Context, userID string, limit, offset int) ([]*models.Message, error) {
	messages, err := o.store.GetUserMessages(ctx, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("load history for %s: %w", userID, err)
	}
	return messages, nil
}

// FormatHTML renders a reply for HTML surfaces, turning newlines into
// line breaks.
func FormatHTML(reply string) string {
	return strings.ReplaceAll(strings.TrimSpace(reply), "\n", "<br />")
}
