package mqtt

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/sweeney/fall-sensor/internal/logging"
	"github.com/sweeney/fall-sensor/internal/logic"
	"github.com/sweeney/fall-sensor/internal/sensor"
)

// SampleFeed receives motion samples published by a phone or wearable
// bridge. Each source has its own topic carrying SamplePayload JSON.
type SampleFeed struct {
	transport Transport
	topics    map[logic.Source]string
	now       func() time.Time
	logger    zerolog.Logger

	mu         sync.Mutex
	subscribed []string
}

// NewSampleFeed creates a feed reading the sample topics in topics.
func NewSampleFeed(t Transport, topics Topics) *SampleFeed {
	return &SampleFeed{
		transport: t,
		topics: map[logic.Source]string{
			logic.SourceAccelerometer: topics.Accel,
			logic.SourceGyroscope:     topics.Gyro,
		},
		now:    time.Now,
		logger: logging.WithComponent("mqtt"),
	}
}

// Subscribe delivers samples for source to h.
func (f *SampleFeed) Subscribe(source logic.Source, h sensor.Handler) error {
	topic, ok := f.topics[source]
	if !ok || topic == "" {
		return fmt.Errorf("%s: %w", source, sensor.ErrSensorUnavailable)
	}

	err := f.transport.Subscribe(topic, 0, func(_ string, payload []byte) {
		s, err := f.decode(source, payload)
		if err != nil {
			f.logger.Warn().Err(err).Str("topic", topic).Msg("dropping malformed sample")
			return
		}
		h(s)
	})
	if err != nil {
		return err
	}

	f.mu.Lock()
	f.subscribed = append(f.subscribed, topic)
	f.mu.Unlock()
	return nil
}

// Unsubscribe drops every sample topic. Safe to call repeatedly.
func (f *SampleFeed) Unsubscribe() error {
	f.mu.Lock()
	topics := f.subscribed
	f.subscribed = nil
	f.mu.Unlock()

	if len(topics) == 0 {
		return nil
	}
	return f.transport.Unsubscribe(topics...)
}

// SetClock replaces the receive clock used to stamp samples.
func (f *SampleFeed) SetClock(now func() time.Time) {
	f.now = now
}

// decode stamps the sample with the receive time. The sender's timestamp
// is not trusted as a clock: a skewed phone would move the cooldown.
func (f *SampleFeed) decode(source logic.Source, payload []byte) (logic.Sample, error) {
	var p SamplePayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return logic.Sample{}, fmt.Errorf("decode sample: %w", err)
	}

	return logic.Sample{
		Source: source,
		Axes:   [3]float32{p.X, p.Y, p.Z},
		Time:   f.now(),
	}, nil
}
