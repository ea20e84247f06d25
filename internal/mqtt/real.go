package mqtt

import (
	"fmt"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"

	"github.com/sweeney/fall-sensor/internal/logging"
	"github.com/sweeney/fall-sensor/internal/logic"
)

// bufferCapacity bounds the messages kept while disconnected.
const bufferCapacity = 100

// Options configures a RealPublisher.
type Options struct {
	Broker   string
	ClientID string
	Prefix   string
}

// RealPublisher publishes to an actual MQTT broker. Announcements made while
// disconnected are buffered and replayed on reconnect.
type RealPublisher struct {
	client paho.Client
	topics Topics
	logger zerolog.Logger

	mu        sync.Mutex
	buf       *ringBuffer
	connected bool
	handlers  map[string]subscription
}

type subscription struct {
	qos byte
	h   MessageHandler
}

// NewRealPublisher creates a publisher for the given broker. Connection
// happens in the background; paho keeps retrying until it succeeds.
func NewRealPublisher(opts Options) *RealPublisher {
	if opts.ClientID == "" {
		opts.ClientID = "fall-sensor"
	}
	p := &RealPublisher{
		topics:   TopicsFor(opts.Prefix),
		logger:   logging.WithComponent("mqtt"),
		buf:      newRingBuffer(bufferCapacity),
		handlers: make(map[string]subscription),
	}

	will, _ := FormatSystemPayload(SystemEvent{
		Timestamp: time.Now(),
		Event:     "SHUTDOWN",
		Reason:    "MQTT_DISCONNECT",
	})

	co := paho.NewClientOptions().
		AddBroker(opts.Broker).
		SetClientID(opts.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5*time.Second).
		SetBinaryWill(p.topics.System, will, 1, true).
		SetOnConnectHandler(p.onConnect).
		SetConnectionLostHandler(p.onConnectionLost)

	p.client = paho.NewClient(co)
	p.client.Connect()
	return p
}

func (p *RealPublisher) onConnect(c paho.Client) {
	p.mu.Lock()
	p.connected = true
	pending := p.buf.drainAll()
	subs := make(map[string]subscription, len(p.handlers))
	for t, s := range p.handlers {
		subs[t] = s
	}
	p.mu.Unlock()

	p.logger.Info().Int("buffered", len(pending)).Msg("connected to broker")

	// Clean sessions drop subscriptions, so restore them
	for topic, s := range subs {
		c.Subscribe(topic, s.qos, wrap(s.h))
	}

	for _, m := range pending {
		if err := p.send(m.topic, m.qos, m.retained, m.payload); err != nil {
			p.logger.Warn().Err(err).Str("topic", m.topic).Msg("replay failed")
		}
	}
}

func (p *RealPublisher) onConnectionLost(_ paho.Client, err error) {
	p.mu.Lock()
	p.connected = false
	p.mu.Unlock()
	p.logger.Warn().Err(err).Msg("connection lost")
}

// IsConnected reports whether the broker connection is up.
func (p *RealPublisher) IsConnected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.connected
}

// PublishFall announces a fall, buffering it while disconnected.
func (p *RealPublisher) PublishFall(event logic.FallEvent) error {
	payload, err := FormatFallPayload(event)
	if err != nil {
		return fmt.Errorf("format payload: %w", err)
	}
	return p.publish(p.topics.Events, 1, false, payload)
}

// PublishSystem sends a system lifecycle event, buffering it while disconnected.
func (p *RealPublisher) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}
	return p.publish(p.topics.System, 1, event.Retained, payload)
}

func (p *RealPublisher) publish(topic string, qos byte, retained bool, payload []byte) error {
	p.mu.Lock()
	if !p.connected {
		p.buf.push(bufferedMsg{topic: topic, payload: payload, qos: qos, retained: retained})
		p.mu.Unlock()
		return nil
	}
	p.mu.Unlock()
	return p.send(topic, qos, retained, payload)
}

// Send publishes immediately and fails when the broker is unreachable.
func (p *RealPublisher) Send(topic string, qos byte, retained bool, payload []byte) error {
	if !p.IsConnected() {
		return fmt.Errorf("publish %s: not connected", topic)
	}
	return p.send(topic, qos, retained, payload)
}

func (p *RealPublisher) send(topic string, qos byte, retained bool, payload []byte) error {
	token := p.client.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("publish timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish: %w", err)
	}
	return nil
}

// Subscribe registers h for topic. The subscription is restored after reconnects.
func (p *RealPublisher) Subscribe(topic string, qos byte, h MessageHandler) error {
	p.mu.Lock()
	p.handlers[topic] = subscription{qos: qos, h: h}
	connected := p.connected
	p.mu.Unlock()

	if !connected {
		return nil
	}
	token := p.client.Subscribe(topic, qos, wrap(h))
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("subscribe %s: timeout", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("subscribe %s: %w", topic, err)
	}
	return nil
}

// Unsubscribe drops the given topics.
func (p *RealPublisher) Unsubscribe(topics ...string) error {
	p.mu.Lock()
	for _, t := range topics {
		delete(p.handlers, t)
	}
	connected := p.connected
	p.mu.Unlock()

	if !connected || len(topics) == 0 {
		return nil
	}
	token := p.client.Unsubscribe(topics...)
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("unsubscribe: timeout")
	}
	return token.Error()
}

// Close disconnects from the broker.
func (p *RealPublisher) Close() error {
	p.client.Disconnect(1000) // 1 second timeout
	return nil
}

func wrap(h MessageHandler) paho.MessageHandler {
	return func(_ paho.Client, m paho.Message) {
		h(m.Topic(), m.Payload())
	}
}
