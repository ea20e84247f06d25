// Package eventstore persists confirmed fall detections as an append-only log.
package eventstore

import (
	"context"
	"fmt"

	"github.com/sweeney/fall-sensor/internal/logic"
)

// Store is the durable log of past detections.
type Store interface {
	// Insert appends an event and returns its persisted id. If the event
	// already carries an id it is kept.
	Insert(ctx context.Context, event logic.FallEvent) (string, error)

	// ListDesc returns all events, most recent first.
	ListDesc(ctx context.Context) ([]logic.FallEvent, error)

	// DeleteAll removes every event.
	DeleteAll(ctx context.Context) error

	// Close releases resources.
	Close() error
}

// PersistenceError is a failed store operation.
type PersistenceError struct {
	Op  string // insert, list, delete
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("eventstore %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }
