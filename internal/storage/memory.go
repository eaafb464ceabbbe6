package storage

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/xaenox/persona-gateway/internal/models"
)

// MemoryStorage keeps everything in process memory. Used by tests and
// for local development without a database.
type MemoryStorage struct {
	mu         sync.RWMutex
	users      map[string]*models.User
	assistants []*models.Assistant
	messages   []*models.Message
	nextID     int64
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		users:  make(map[string]*models.User),
		nextID: 1,
	}
}

func (s *MemoryStorage) GetUser(ctx context.Context, id string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if user, exists := s.users[id]; exists {
		copied := *user
		return &copied, nil
	}
	return &models.User{ID: id}, nil
}

func (s *MemoryStorage) AssignThread(ctx context.Context, userID, threadID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, exists := s.users[userID]
	if !exists {
		user = &models.User{ID: userID, CreatedAt: time.Now()}
		s.users[userID] = user
	}
	if user.ThreadID == "" {
		user.ThreadID = threadID
	}
	user.UpdatedAt = time.Now()
	return user.ThreadID, nil
}

func (s *MemoryStorage) SaveCharacter(ctx context.Context, userID string, profile *models.CharacterProfile) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, exists := s.users[userID]
	if !exists {
		user = &models.User{ID: userID, CreatedAt: time.Now()}
		s.users[userID] = user
	}
	user.Character = profile
	user.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryStorage) CreateAssistant(ctx context.Context, a *models.Assistant) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a.IsDefault = true
	for _, existing := range s.assistants {
		if existing.UserID == a.UserID {
			a.IsDefault = false
			break
		}
	}

	a.ID = s.nextID
	s.nextID++
	a.CreatedAt = time.Now()

	copied := *a
	s.assistants = append(s.assistants, &copied)
	return nil
}

func (s *MemoryStorage) GetAssistantByName(ctx context.Context, userID, name string) (*models.Assistant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, a := range s.assistants {
		if a.UserID == userID && strings.EqualFold(a.Name, name) {
			copied := *a
			return &copied, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStorage) GetDefaultAssistant(ctx context.Context, userID string) (*models.Assistant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, a := range s.assistants {
		if a.UserID == userID && a.IsDefault {
			copied := *a
			return &copied, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStorage) GetAssistantByRemoteID(ctx context.Context, assistantID string) (*models.Assistant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, a := range s.assistants {
		if a.AssistantID == assistantID {
			copied := *a
			return &copied, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStorage) SaveMessage(ctx context.Context, m *models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now()
	}
	copied := *m
	s.messages = append(s.messages, &copied)
	return nil
}

func (s *MemoryStorage) GetUserMessages(ctx context.Context, userID string, limit, offset int) ([]*models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []*models.Message
	for _, m := range s.messages {
		if m.UserID == userID {
			copied := *m
			matched = append(matched, &copied)
		}
	}
	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	if offset >= len(matched) {
		return nil, nil
	}
	matched = matched[offset:]
	if limit > 0 && limit < len(matched) {
		matched = matched[:limit]
	}
	return matched, nil
}

func (s *MemoryStorage) Close() error {
	return nil
}
