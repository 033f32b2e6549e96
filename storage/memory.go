package storage

import (
	"context"
	"sync"
	"time"
)

type MemoryStorage struct {
	users       map[int64]*User
	assignments map[string]*Assignment
	topics      []Topic
	mutex       sync.RWMutex
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		users:       make(map[int64]*User),
		assignments: make(map[string]*Assignment),
	}
}

// SetTopics replaces the topic catalog. The memory backend has no admin
// process feeding it, so tests and local runs seed the catalog here.
func (m *MemoryStorage) SetTopics(topics []Topic) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.topics = topics
}

func (m *MemoryStorage) GetUser(_ context.Context, telegramID int64) (*User, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	user, ok := m.users[telegramID]
	if !ok {
		return nil, nil
	}
	copied := *user
	return &copied, nil
}

func (m *MemoryStorage) SaveUser(_ context.Context, user *User) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	copied := *user
	if copied.CreatedAt.IsZero() {
		copied.CreatedAt = time.Now()
	}
	m.users[user.TelegramID] = &copied
	return nil
}

func (m *MemoryStorage) ActiveAssignments(_ context.Context, userID int64) ([]Assignment, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	var active []Assignment
	for _, a := range m.assignments {
		if a.UserID == userID && !a.State.Terminal() {
			active = append(active, *a)
		}
	}
	return active, nil
}

func (m *MemoryStorage) SeenTopicIDs(_ context.Context, userID int64) ([]string, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	var seen []string
	for _, a := range m.assignments {
		if a.UserID == userID {
			seen = append(seen, a.TopicID)
		}
	}
	return seen, nil
}

func (m *MemoryStorage) InsertAssignment(_ context.Context, a *Assignment) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	copied := *a
	m.assignments[a.ID] = &copied
	return nil
}

func (m *MemoryStorage) UpdateAssignment(_ context.Context, a *Assignment) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	copied := *a
	copied.UpdatedAt = time.Now()
	m.assignments[a.ID] = &copied
	return nil
}

func (m *MemoryStorage) ActiveTopics(_ context.Context) ([]Topic, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	var active []Topic
	for _, t := range m.topics {
		if t.Active {
			active = append(active, t)
		}
	}
	return active, nil
}

func (m *MemoryStorage) GetTopic(_ context.Context, id string) (*Topic, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	for _, t := range m.topics {
		if t.ID == id {
			copied := t
			return &copied, nil
		}
	}
	return nil, nil
}

func (m *MemoryStorage) Close() error {
	return nil
}
