package chat

import (
	"context"
	"testing"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xaenox/persona-gateway/internal/models"
	"github.com/xaenox/persona-gateway/internal/provider"
	"github.com/xaenox/persona-gateway/internal/provider/providertest"
	"github.com/xaenox/persona-gateway/internal/storage"
	"github.com/xaenox/persona-gateway/internal/tools"
	"go.uber.org/zap"
)

func testOrchestrator(t *testing.T, store storage.Storage, fake *providertest.Fake) *Orchestrator {
	t.Helper()
	logger := zap.NewNop()
	resolver := NewResolver(store, "asst_general", logger)
	threads := NewThreadStore(store, fake, logger)
	driver := NewDriver(fake, tools.NewRegistry(logger), DriverConfig{
		PollInterval: time.Millisecond,
		Timeout:      time.Second,
	}, logger)
	return NewOrchestrator(resolver, threads, driver, store, logger)
}

func TestHandleTurnEndToEnd(t *testing.T) {
	store := storage.NewMemoryStorage()
	require.NoError(t, store.CreateAssistant(context.Background(), &models.Assistant{
		UserID:      "628xxxx",
		AssistantID: "asst_fina",
		Name:        "Fina",
	}))

	fake := &providertest.Fake{}
	fake.CreateRunFn = func(ctx context.Context, threadID, assistantID string) (provider.Run, error) {
		assert.Equal(t, "asst_fina", assistantID)
		return provider.Run{ID: "run_1", Status: openai.RunStatusCompleted}, nil
	}
	fake.RunMessagesFn = func(ctx context.Context, threadID, runID string) ([]provider.ThreadMessage, error) {
		return []provider.ThreadMessage{{
			ID:   "msg_1",
			Role: openai.ChatMessageRoleAssistant,
			Segments: []provider.Segment{
				{Type: provider.SegmentText, Text: "Your balance is 1 ETH.\n"},
			},
		}}, nil
	}

	orch := testOrchestrator(t, store, fake)
	reply, err := orch.HandleTurn(context.Background(), "628xxxx", "Fina, what's my wallet balance?")
	require.NoError(t, err)

	assert.Equal(t, "Your balance is 1 ETH.", reply)
	// The address token is consumed before submission.
	require.Len(t, fake.UserMessages, 1)
	assert.Equal(t, "what's my wallet balance?", fake.UserMessages[0])
}

func TestHandleTurnPersistsHistoryInOrder(t *testing.T) {
	store := storage.NewMemoryStorage()
	fake := &providertest.Fake{}
	fake.CreateRunFn = func(ctx context.Context, threadID, assistantID string) (provider.Run, error) {
		return provider.Run{ID: "run_1", Status: openai.RunStatusCompleted}, nil
	}
	fake.RunMessagesFn = func(ctx context.Context, threadID, runID string) ([]provider.ThreadMessage, error) {
		return []provider.ThreadMessage{{
			ID:   "msg_1",
			Role: openai.ChatMessageRoleAssistant,
			Segments: []provider.Segment{
				{Type: provider.SegmentText, Text: "hi there"},
			},
		}}, nil
	}

	orch := testOrchestrator(t, store, fake)
	_, err := orch.HandleTurn(context.Background(), "user1", "hello")
	require.NoError(t, err)

	history, err := orch.History(context.Background(), "user1", 10, 0)
	require.NoError(t, err)
	require.Len(t, history, 2)

	// Newest first: the assistant reply follows the user message.
	assert.Equal(t, models.RoleAssistant, history[0].Role)
	assert.Equal(t, "hi there", history[0].Content)
	assert.Equal(t, models.RoleUser, history[1].Role)
	assert.Equal(t, "hello", history[1].Content)
	assert.False(t, history[0].CreatedAt.Before(history[1].CreatedAt))
}

func TestHandleTurnHistoryDisabled(t *testing.T) {
	store := storage.NewMemoryStorage()
	fake := &providertest.Fake{}
	fake.CreateRunFn = func(ctx context.Context, threadID, assistantID string) (provider.Run, error) {
		return provider.Run{ID: "run_1", Status: openai.RunStatusCompleted}, nil
	}
	fake.RunMessagesFn = func(ctx context.Context, threadID, runID string) ([]provider.ThreadMessage, error) {
		return nil, nil
	}

	orch := testOrchestrator(t, store, fake)
	orch.PersistHistory = false

	_, err := orch.HandleTurn(context.Background(), "user1", "hello")
	require.NoError(t, err)

	history, err := orch.History(context.Background(), "user1", 10, 0)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestFormatHTML(t *testing.T) {
	assert.Equal(t, "a<br />b", FormatHTML("a\nb\n"))
	assert.Equal(t, "", FormatHTML("\n\n"))
}
