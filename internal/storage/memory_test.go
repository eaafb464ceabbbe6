package storage

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xaenox/persona-gateway/internal/models"
)

func TestAssignThreadFirstWriteWins(t *testing.T) {
	store := NewMemoryStorage()
	ctx := context.Background()

	winner, err := store.AssignThread(ctx, "user1", "thread_a")
	require.NoError(t, err)
	assert.Equal(t, "thread_a", winner)

	// A later assignment must observe and return the existing handle.
	winner, err = store.AssignThread(ctx, "user1", "thread_b")
	require.NoError(t, err)
	assert.Equal(t, "thread_a", winner)

	user, err := store.GetUser(ctx, "user1")
	require.NoError(t, err)
	assert.Equal(t, "thread_a", user.ThreadID)
}

func TestGetUserUnknownReturnsZeroValue(t *testing.T) {
	store := NewMemoryStorage()

	user, err := store.GetUser(context.Background(), "ghost")
	require.NoError(t, err)
	assert.Equal(t, "ghost", user.ID)
	assert.Empty(t, user.ThreadID)
}

func TestCreateAssistantFirstIsDefault(t *testing.T) {
	store := NewMemoryStorage()
	ctx := context.Background()

	first := &models.Assistant{UserID: "user1", AssistantID: "asst_1", Name: "Fina"}
	require.NoError(t, store.CreateAssistant(ctx, first))
	assert.True(t, first.IsDefault)

	second := &models.Assistant{UserID: "user1", AssistantID: "asst_2", Name: "Bram"}
	require.NoError(t, store.CreateAssistant(ctx, second))
	assert.False(t, second.IsDefault)

	// A different owner's first assistant is still their default.
	other := &models.Assistant{UserID: "user2", AssistantID: "asst_3", Name: "Cora"}
	require.NoError(t, store.CreateAssistant(ctx, other))
	assert.True(t, other.IsDefault)

	found, err := store.GetDefaultAssistant(ctx, "user1")
	require.NoError(t, err)
	assert.Equal(t, "asst_1", found.AssistantID)
}

func TestCreateAssistantConcurrentSingleDefault(t *testing.T) {
	store := NewMemoryStorage()
	ctx := context.Background()

	// Racing first registrations for one owner must elect exactly one
	// default.
	const racers = 16
	var wg sync.WaitGroup
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, store.CreateAssistant(ctx, &models.Assistant{
				UserID:      "user1",
				AssistantID: fmt.Sprintf("asst_%d", i),
				Name:        fmt.Sprintf("Persona%d", i),
			}))
		}(i)
	}
	wg.Wait()

	defaults := 0
	for i := 0; i < racers; i++ {
		a, err := store.GetAssistantByName(ctx, "user1", fmt.Sprintf("Persona%d", i))
		require.NoError(t, err)
		if a.IsDefault {
			defaults++
		}
	}
	assert.Equal(t, 1, defaults)
}

func TestGetAssistantByNameCaseInsensitive(t *testing.T) {
	store := NewMemoryStorage()
	ctx := context.Background()
	require.NoError(t, store.CreateAssistant(ctx, &models.Assistant{
		UserID: "user1", AssistantID: "asst_1", Name: "Fina",
	}))

	for _, name := range []string{"fina", "FINA", "Fina"} {
		found, err := store.GetAssistantByName(ctx, "user1", name)
		require.NoError(t, err, "name %q", name)
		assert.Equal(t, "asst_1", found.AssistantID)
	}

	_, err := store.GetAssistantByName(ctx, "user2", "Fina")
	assert.ErrorIs(t, err, ErrNotFound, "names do not cross user boundaries")
}

func TestSaveCharacter(t *testing.T) {
	store := NewMemoryStorage()
	ctx := context.Background()

	profile := &models.CharacterProfile{AgentName: "Fina", Bio: "a helpful witch"}
	require.NoError(t, store.SaveCharacter(ctx, "user1", profile))

	user, err := store.GetUser(ctx, "user1")
	require.NoError(t, err)
	require.NotNil(t, user.Character)
	assert.Equal(t, "Fina", user.Character.AgentName)
}

func TestMessagesOrderedNewestFirst(t *testing.T) {
	store := NewMemoryStorage()
	ctx := context.Background()

	base := time.Now()
	for i, content := range []string{"oldest", "middle", "newest"} {
		require.NoError(t, store.SaveMessage(ctx, &models.Message{
			ID:        content,
			UserID:    "user1",
			Role:      models.RoleUser,
			Content:   content,
			CreatedAt: base.Add(time.Duration(i) * time.Second),
		}))
	}

	messages, err := store.GetUserMessages(ctx, "user1", 2, 0)
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, "newest", messages[0].Content)
	assert.Equal(t, "middle", messages[1].Content)

	rest, err := store.GetUserMessages(ctx, "user1", 10, 2)
	require.NoError(t, err)
	require.Len(t, rest, 1)
	assert.Equal(t, "oldest", rest[0].Content)
}
