package eventstore

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/sweeney/fall-sensor/internal/logic"
)

// ErrClosed is returned by a MemoryStore after Close.
var ErrClosed = errors.New("store closed")

// MemoryStore keeps events in process memory. Safe for concurrent use.
type MemoryStore struct {
	mu     sync.RWMutex
	events []logic.FallEvent
	closed bool

	// InsertError, if set, is returned by Insert (test hook).
	InsertError error
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Insert appends the event.
func (s *MemoryStore) Insert(_ context.Context, event logic.FallEvent) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return "", &PersistenceError{Op: "insert", Err: ErrClosed}
	}
	if s.InsertError != nil {
		return "", &PersistenceError{Op: "insert", Err: s.InsertError}
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	s.events = append(s.events, event)
	return event.ID, nil
}

// ListDesc returns a snapshot ordered by timestamp, most recent first.
// Events with equal timestamps are returned newest insertion first.
func (s *MemoryStore) ListDesc(_ context.Context) ([]logic.FallEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, &PersistenceError{Op: "list", Err: ErrClosed}
	}
	out := make([]logic.FallEvent, len(s.events))
	for i := range s.events {
		out[len(out)-1-i] = s.events[i]
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	return out, nil
}

// DeleteAll removes every event.
func (s *MemoryStore) DeleteAll(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return &PersistenceError{Op: "delete", Err: ErrClosed}
	}
	s.events = nil
	return nil
}

// Len returns the number of stored events.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.events)
}

// Close marks the store closed.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}
