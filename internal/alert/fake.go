package alert

import (
	"context"
	"sync"
)

// SentMessage is a message recorded by FakeGateway.
type SentMessage struct {
	Phone string
	Body  string
}

// FakeGateway records sends for test assertions. Safe for concurrent use.
type FakeGateway struct {
	mu sync.Mutex

	// Sent contains every successful send.
	Sent []SentMessage

	// Calls counts every Send call, including failures.
	Calls int

	// Errors maps a phone number to the error returned for it.
	Errors map[string]error

	// SendError, if set, is returned for every number not in Errors.
	SendError error

	// Block, if set, is waited on before each send completes.
	Block chan struct{}
}

// NewFakeGateway creates a FakeGateway for testing.
func NewFakeGateway() *FakeGateway {
	return &FakeGateway{Errors: make(map[string]error)}
}

// Send records the message or returns the scripted error.
func (f *FakeGateway) Send(ctx context.Context, phone, body string) error {
	f.mu.Lock()
	f.Calls++
	block := f.Block
	f.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.Errors[phone]; ok {
		return err
	}
	if f.SendError != nil {
		return f.SendError
	}
	f.Sent = append(f.Sent, SentMessage{Phone: phone, Body: body})
	return nil
}

// FailFor scripts an error for one phone number.
func (f *FakeGateway) FailFor(phone string, err error) {
	f.mu.Lock()
	f.Errors[phone] = err
	f.mu.Unlock()
}

// SentCount returns the number of successful sends.
func (f *FakeGateway) SentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Sent)
}

// CallCount returns the number of Send calls.
func (f *FakeGateway) CallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Calls
}

// Messages returns a copy of the successful sends.
func (f *FakeGateway) Messages() []SentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]SentMessage(nil), f.Sent...)
}
