// Package logic contains pure business logic for fall detection.
// This package has NO external dependencies (no sensors, model runtime, MQTT, OS, or time.Sleep).
// Time is always injectable via time.Time parameters.
package logic

import "time"

// Source identifies the motion sensor that produced a sample.
type Source string

const (
	SourceAccelerometer Source = "ACCELEROMETER"
	SourceGyroscope     Source = "GYROSCOPE"
)

// AxesPerSample is the number of scalar values carried by every sample.
const AxesPerSample = 3

// DefaultWindowSize is three accelerometer axes plus three gyroscope axes.
const DefaultWindowSize = 2 * AxesPerSample

// DefaultThreshold is the confidence a window must exceed to count as a fall.
const DefaultThreshold = 0.8

// Sample is a single motion sensor reading. Immutable once created.
type Sample struct {
	Source Source
	Axes   [AxesPerSample]float32
	Time   time.Time // monotonic arrival instant
}

// Window is a completed, fixed-size classification input.
type Window []float32

// FallEvent is a confirmed positive classification.
type FallEvent struct {
	ID          string
	Timestamp   time.Time
	Probability float32
}

// Contact is an alert recipient, read from the recipient directory.
type Contact struct {
	ID    string
	Name  string
	Phone string
}

// DispatchOutcome is the result of alerting one contact for one event.
type DispatchOutcome struct {
	ContactID string
	Delivered bool
	Err       error
}

// DecisionState is the state of the Decider.
type DecisionState string

const (
	StateIdle     DecisionState = "IDLE"
	StateCooldown DecisionState = "COOLDOWN"
)

// DecisionCounts tracks decision outcomes since the decider was created.
type DecisionCounts struct {
	Evaluated  int
	Detections int
	Suppressed int
}
