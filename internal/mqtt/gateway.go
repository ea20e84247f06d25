package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
)

// SMSGateway hands alerts to an SMS bridge listening on an MQTT topic.
// A send counts as delivered once the broker acknowledges it (QoS 1).
type SMSGateway struct {
	transport Transport
	topic     string
}

// NewSMSGateway creates a gateway publishing requests to topic.
func NewSMSGateway(t Transport, topic string) *SMSGateway {
	return &SMSGateway{transport: t, topic: topic}
}

// Send publishes one SMS request.
func (g *SMSGateway) Send(ctx context.Context, phone, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	payload, err := json.Marshal(SMSRequest{To: phone, Body: body})
	if err != nil {
		return fmt.Errorf("format sms request: %w", err)
	}

	done := make(chan error, 1)
	go func() { done <- g.transport.Send(g.topic, 1, false, payload) }()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
