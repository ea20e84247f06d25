// Package mqtt provides the shared broker connection: lifecycle and fall
// announcements, an SMS-bridge alert gateway and a sample feed, with
// abstraction for testing.
package mqtt

import (
	"encoding/json"
	"time"

	"github.com/sweeney/fall-sensor/internal/logic"
)

// DefaultPrefix is the topic prefix used when none is configured.
const DefaultPrefix = "home/fall-sensor"

// Topics holds the topic names derived from a prefix.
type Topics struct {
	Events string // fall announcements
	System string // lifecycle events
	SMS    string // outbound alert requests for the SMS bridge
	Accel  string // inbound accelerometer samples
	Gyro   string // inbound gyroscope samples
}

// TopicsFor derives the standard topics under prefix.
func TopicsFor(prefix string) Topics {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return Topics{
		Events: prefix + "/events",
		System: prefix + "/system",
		SMS:    prefix + "/sms/outbox",
		Accel:  prefix + "/samples/accelerometer",
		Gyro:   prefix + "/samples/gyroscope",
	}
}

// Publisher publishes events to MQTT.
type Publisher interface {
	// PublishFall announces a confirmed fall.
	// Returns error if publishing fails (should not crash the process).
	PublishFall(event logic.FallEvent) error

	// PublishSystem sends a system lifecycle event to the broker.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// MessageHandler receives an inbound message.
type MessageHandler func(topic string, payload []byte)

// Transport is the raw broker API used by the gateway and the feed.
type Transport interface {
	// Send publishes without buffering. It fails when disconnected.
	Send(topic string, qos byte, retained bool, payload []byte) error
	Subscribe(topic string, qos byte, h MessageHandler) error
	Unsubscribe(topics ...string) error
}

// SystemEvent represents a system lifecycle event (e.g., startup, shutdown, heartbeat).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string // e.g., "STARTUP", "SHUTDOWN", "HEARTBEAT"
	Reason     string // e.g., "SIGTERM", "SIGINT" (shutdown only)
	RawPayload []byte // Pre-formatted JSON payload; if set, FormatSystemPayload returns it directly
	Retained   bool   // Whether the message should be retained by the broker
}

// FallPayload is the MQTT message payload for a fall announcement.
type FallPayload struct {
	Fall FallPayloadInner `json:"fall"`
}

// FallPayloadInner contains the fall details.
type FallPayloadInner struct {
	ID          string  `json:"id"`
	Timestamp   string  `json:"timestamp"`
	Probability float32 `json:"probability"`
}

// FormatFallPayload creates the JSON payload for a fall announcement.
func FormatFallPayload(event logic.FallEvent) ([]byte, error) {
	return json.Marshal(FallPayload{
		Fall: FallPayloadInner{
			ID:          event.ID,
			Timestamp:   event.Timestamp.UTC().Format(time.RFC3339Nano),
			Probability: event.Probability,
		},
	})
}

// SystemPayload represents the MQTT message payload for system events.
// Used for simple events (LWT, RECONNECTED) that don't carry a full status snapshot.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
// If event.RawPayload is set, it is returned directly (used for full status snapshots).
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}

	payload := SystemPayload{
		System: SystemPayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     event.Event,
			Reason:    event.Reason,
		},
	}
	return json.Marshal(payload)
}

// SMSRequest is the message the SMS bridge consumes.
type SMSRequest struct {
	To   string `json:"to"`
	Body string `json:"body"`
}

// SamplePayload is the JSON body of an inbound sample message.
type SamplePayload struct {
	X         float32 `json:"x"`
	Y         float32 `json:"y"`
	Z         float32 `json:"z"`
	Timestamp string  `json:"timestamp,omitempty"` // sender clock, informational; samples use receive time
}
