// Package gate provides the per-user single-flight guard. While a user
// has an event in flight, every further event from the same user is
// dropped, not queued; users never block each other.
package gate

import "sync"

type Gate interface {
	// TryAcquire marks the user as in flight. It returns false if the
	// user already holds the slot, in which case the caller drops the
	// event.
	TryAcquire(userID int64) bool
	// Release frees the slot. It must run on every exit path of the
	// admitted event, failures included.
	Release(userID int64)
}

// Memory is the in-process gate, sufficient when a single bot instance
// consumes the update stream.
type Memory struct {
	inFlight map[int64]struct{}
	mutex    sync.Mutex
}

func NewMemory() *Memory {
	return &Memory{inFlight: make(map[int64]struct{})}
}

func (m *Memory) TryAcquire(userID int64) bool {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if _, held := m.inFlight[userID]; held {
		return false
	}
	m.inFlight[userID] = struct{}{}
	return true
}

func (m *Memory) Release(userID int64) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	delete(m.inFlight, userID)
}
