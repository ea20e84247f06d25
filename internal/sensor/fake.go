package sensor

import (
	"fmt"
	"sync"

	"github.com/sweeney/fall-sensor/internal/logic"
)

// FakeFeed is a test double that delivers scripted samples on demand.
type FakeFeed struct {
	mu       sync.Mutex
	handlers map[logic.Source]Handler

	// Missing lists sources reported as unavailable.
	Missing map[logic.Source]bool

	// SubscribeCalls and UnsubscribeCalls count API calls.
	SubscribeCalls   int
	UnsubscribeCalls int
}

// NewFakeFeed creates a FakeFeed with every source available.
func NewFakeFeed() *FakeFeed {
	return &FakeFeed{
		handlers: make(map[logic.Source]Handler),
		Missing:  make(map[logic.Source]bool),
	}
}

// Subscribe registers h for source.
func (f *FakeFeed) Subscribe(source logic.Source, h Handler) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.SubscribeCalls++
	if f.Missing[source] {
		return fmt.Errorf("%s: %w", source, ErrSensorUnavailable)
	}
	f.handlers[source] = h
	return nil
}

// Unsubscribe removes every handler.
func (f *FakeFeed) Unsubscribe() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.UnsubscribeCalls++
	f.handlers = make(map[logic.Source]Handler)
	return nil
}

// Subscribed reports whether source currently has a handler.
func (f *FakeFeed) Subscribed(source logic.Source) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.handlers[source]
	return ok
}

// Deliver sends s to the handler subscribed for its source.
// Returns false if nothing is subscribed.
func (f *FakeFeed) Deliver(s logic.Sample) bool {
	f.mu.Lock()
	h, ok := f.handlers[s.Source]
	f.mu.Unlock()
	if !ok {
		return false
	}
	h(s)
	return true
}
