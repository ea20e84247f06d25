// Package sensor provides motion sample feeds with hardware abstraction.
// The IIO implementation reads a Linux industrial-I/O IMU, optionally paced
// by the chip's data-ready GPIO line. The fake implementation allows testing
// without hardware.
package sensor

import (
	"errors"
	"fmt"

	"github.com/sweeney/fall-sensor/internal/logic"
)

// ErrSensorUnavailable is returned when the host has no such sensor.
var ErrSensorUnavailable = errors.New("sensor unavailable")

// Handler receives samples. Feeds may call it from any goroutine.
type Handler func(logic.Sample)

// Feed is a subscription API for motion samples.
type Feed interface {
	// Subscribe starts delivering samples from source to h.
	// Returns an error wrapping ErrSensorUnavailable if the host lacks the source.
	Subscribe(source logic.Source, h Handler) error

	// Unsubscribe stops all deliveries. Safe to call repeatedly.
	Unsubscribe() error
}

// Sources lists every source the session subscribes to.
var Sources = []logic.Source{logic.SourceAccelerometer, logic.SourceGyroscope}

// Disabled is a feed for hosts without motion sensors. Every source is
// reported unavailable.
type Disabled struct{}

// Subscribe always fails with ErrSensorUnavailable.
func (Disabled) Subscribe(source logic.Source, _ Handler) error {
	return fmt.Errorf("%s: %w", source, ErrSensorUnavailable)
}

// Unsubscribe is a no-op.
func (Disabled) Unsubscribe() error { return nil }
