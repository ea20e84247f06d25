package mqtt

import (
	"errors"
	"sync"

	"github.com/sweeney/fall-sensor/internal/logic"
)

// FakePublisher records published events for test assertions.
type FakePublisher struct {
	mu sync.Mutex

	// Falls contains all fall announcements that were published.
	Falls []logic.FallEvent

	// Payloads contains the JSON payloads for fall announcements.
	Payloads [][]byte

	// SystemEvents contains all system events that were published.
	SystemEvents []SystemEvent

	// SystemPayloads contains the JSON payloads for system events.
	SystemPayloads [][]byte

	// PublishError, if set, will be returned by PublishFall.
	PublishError error

	// PublishSystemError, if set, will be returned by PublishSystem.
	PublishSystemError error

	// Closed tracks if Close was called.
	Closed bool

	// Connected controls the return value of IsConnected.
	Connected bool
}

// NewFakePublisher creates a FakePublisher for testing.
func NewFakePublisher() *FakePublisher {
	return &FakePublisher{}
}

// PublishFall records the fall announcement.
func (f *FakePublisher) PublishFall(event logic.FallEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PublishError != nil {
		return f.PublishError
	}

	payload, err := FormatFallPayload(event)
	if err != nil {
		return err
	}
	f.Falls = append(f.Falls, event)
	f.Payloads = append(f.Payloads, payload)
	return nil
}

// PublishSystem records the system event.
func (f *FakePublisher) PublishSystem(event SystemEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PublishSystemError != nil {
		return f.PublishSystemError
	}

	payload, err := FormatSystemPayload(event)
	if err != nil {
		return err
	}
	f.SystemEvents = append(f.SystemEvents, event)
	f.SystemPayloads = append(f.SystemPayloads, payload)
	return nil
}

// FallCount returns the number of recorded fall announcements.
func (f *FakePublisher) FallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Falls)
}

// SystemEventNames returns the Event field of each recorded system event.
func (f *FakePublisher) SystemEventNames() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	names := make([]string, len(f.SystemEvents))
	for i, e := range f.SystemEvents {
		names[i] = e.Event
	}
	return names
}

// Close marks the publisher as closed.
func (f *FakePublisher) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Closed = true
	return nil
}

// IsConnected reports whether the fake publisher is "connected".
func (f *FakePublisher) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Connected
}

// SentMessage is a message recorded by FakeTransport.
type SentMessage struct {
	Topic    string
	QoS      byte
	Retained bool
	Payload  []byte
}

// ErrNotConnected is returned by FakeTransport.Send when Disconnected is set.
var ErrNotConnected = errors.New("not connected")

// FakeTransport is an in-memory Transport. Inject delivers to subscribers.
type FakeTransport struct {
	mu           sync.Mutex
	handlers     map[string]MessageHandler
	Sent         []SentMessage
	Disconnected bool
	Block        chan struct{} // if non-nil, Send waits on it
}

// NewFakeTransport creates a connected FakeTransport.
func NewFakeTransport() *FakeTransport {
	return &FakeTransport{handlers: make(map[string]MessageHandler)}
}

// Send records the message.
func (f *FakeTransport) Send(topic string, qos byte, retained bool, payload []byte) error {
	f.mu.Lock()
	block := f.Block
	f.mu.Unlock()
	if block != nil {
		<-block
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Disconnected {
		return ErrNotConnected
	}
	f.Sent = append(f.Sent, SentMessage{Topic: topic, QoS: qos, Retained: retained, Payload: payload})
	return nil
}

// Subscribe registers h for topic.
func (f *FakeTransport) Subscribe(topic string, _ byte, h MessageHandler) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Disconnected {
		return ErrNotConnected
	}
	f.handlers[topic] = h
	return nil
}

// Unsubscribe removes the handlers for topics.
func (f *FakeTransport) Unsubscribe(topics ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range topics {
		delete(f.handlers, t)
	}
	return nil
}

// Inject delivers payload to the handler for topic. Returns false if none.
func (f *FakeTransport) Inject(topic string, payload []byte) bool {
	f.mu.Lock()
	h, ok := f.handlers[topic]
	f.mu.Unlock()
	if !ok {
		return false
	}
	h(topic, payload)
	return true
}

// SentMessages returns a copy of the recorded messages.
func (f *FakeTransport) SentMessages() []SentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]SentMessage, len(f.Sent))
	copy(out, f.Sent)
	return out
}
