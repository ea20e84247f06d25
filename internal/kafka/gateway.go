// Package kafka provides an alert gateway that writes SMS requests to a
// Kafka outbox topic for a downstream messaging service.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"github.com/sweeney/fall-sensor/internal/logging"
)

// DefaultTopic is the outbox topic used when none is configured.
const DefaultTopic = "fall-sensor.alerts"

// Config holds Kafka gateway configuration.
type Config struct {
	Brokers []string
	Topic   string
	Source  string // producer identity, sent as a header
	Enabled bool
}

// messageWriter is the subset of *kafka.Writer the gateway needs.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Request is the outbox message body.
type Request struct {
	To     string `json:"to"`
	Body   string `json:"body"`
	SentAt string `json:"sent_at"`
}

// Gateway publishes one outbox message per recipient. When disabled it only
// logs, and every send counts as delivered.
type Gateway struct {
	writer  messageWriter
	topic   string
	source  string
	enabled bool
	logger  zerolog.Logger
	now     func() time.Time
}

// New creates a gateway. A nil config, Enabled=false or no brokers yield
// log-only mode.
func New(cfg *Config) *Gateway {
	logger := logging.WithComponent("kafka")
	g := &Gateway{
		topic:  DefaultTopic,
		logger: logger,
		now:    time.Now,
	}

	if cfg == nil {
		logger.Info().Msg("Kafka disabled (nil config), using log-only mode")
		return g
	}
	if cfg.Topic != "" {
		g.topic = cfg.Topic
	}
	g.source = cfg.Source

	if !cfg.Enabled || len(cfg.Brokers) == 0 {
		logger.Info().Msg("Kafka disabled, using log-only mode")
		return g
	}

	dialer := &kafka.Dialer{
		Timeout:   10 * time.Second,
		DualStack: true,
	}

	g.writer = &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        g.topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
		WriteTimeout: 10 * time.Second,
		RequiredAcks: kafka.RequireAll,
		Transport:    &kafka.Transport{Dial: dialer.DialFunc},
	}
	g.enabled = true

	logger.Info().
		Strs("brokers", cfg.Brokers).
		Str("topic", g.topic).
		Msg("Kafka gateway initialized")
	return g
}

// newWithWriter is used by tests to substitute the writer.
func newWithWriter(w messageWriter, topic string) *Gateway {
	return &Gateway{
		writer:  w,
		topic:   topic,
		enabled: true,
		logger:  logging.WithComponent("kafka"),
		now:     time.Now,
	}
}

// Enabled reports whether messages reach a broker.
func (g *Gateway) Enabled() bool {
	return g.enabled
}

// Send writes one request keyed by phone so retries for a recipient stay ordered.
func (g *Gateway) Send(ctx context.Context, phone, body string) error {
	payload, err := json.Marshal(Request{
		To:     phone,
		Body:   body,
		SentAt: g.now().UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	if !g.enabled || g.writer == nil {
		g.logger.Info().Str("topic", g.topic).RawJSON("payload", payload).Msg("alert (log-only)")
		return nil
	}

	msg := kafka.Message{
		Key:   []byte(phone),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "eventType", Value: []byte("fall.alert")},
			{Key: "source", Value: []byte(g.source)},
		},
	}
	if err := g.writer.WriteMessages(ctx, msg); err != nil {
		g.logger.Error().Err(err).Str("topic", g.topic).Msg("Failed to write to Kafka")
		return fmt.Errorf("write %s: %w", g.topic, err)
	}
	return nil
}

// Close closes the writer.
func (g *Gateway) Close() error {
	if g.writer == nil {
		return nil
	}
	return g.writer.Close()
}
