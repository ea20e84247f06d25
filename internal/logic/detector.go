package logic

import (
	"math"
	"time"
)

// Input is a single classifier result fed to the Detector.
type Input struct {
	Probability float32
	Time        time.Time // instant of the sample that completed the window
}

// HeartbeatData contains information for a heartbeat event.
type HeartbeatData struct {
	Timestamp time.Time
	Uptime    time.Duration
	Counts    DecisionCounts
}

// Detector applies the confidence threshold and the cooldown policy to
// classifier probabilities. At most one FallEvent is emitted per cooldown.
type Detector struct {
	threshold     float32
	cooldown      time.Duration
	state         DecisionState
	lastAlertAt   time.Time
	startTime     time.Time
	counts        DecisionCounts
	lastHeartbeat time.Time
}

// NewDetector creates a detector in the Idle state.
// The startTime is used for calculating uptime in heartbeat events.
func NewDetector(threshold float32, cooldown time.Duration, startTime time.Time) *Detector {
	return &Detector{
		threshold:     threshold,
		cooldown:      cooldown,
		state:         StateIdle,
		startTime:     startTime,
		lastHeartbeat: startTime,
	}
}

// Process evaluates one probability. It returns a FallEvent when the
// detector is Idle and the probability exceeds the threshold; the detector
// then enters Cooldown. While in Cooldown every probability is suppressed.
// Cooldown expires lazily: the first input at or after lastAlertAt+cooldown
// returns the detector to Idle before it is evaluated.
func (d *Detector) Process(input Input) *FallEvent {
	d.counts.Evaluated++

	if d.state == StateCooldown && input.Time.Sub(d.lastAlertAt) >= d.cooldown {
		d.state = StateIdle
	}

	if !d.exceeds(input.Probability) {
		return nil
	}

	if d.state == StateCooldown {
		d.counts.Suppressed++
		return nil
	}

	d.state = StateCooldown
	d.lastAlertAt = input.Time
	d.counts.Detections++
	return &FallEvent{
		Timestamp:   input.Time,
		Probability: input.Probability,
	}
}

func (d *Detector) exceeds(p float32) bool {
	if math.IsNaN(float64(p)) {
		return false
	}
	return p > d.threshold
}

// State returns the current decision state without expiring the cooldown.
func (d *Detector) State() DecisionState {
	return d.state
}

// LastAlertAt returns the instant of the most recent detection, or the zero
// time if there has been none.
func (d *Detector) LastAlertAt() time.Time {
	return d.lastAlertAt
}

// Threshold returns the configured confidence threshold.
func (d *Detector) Threshold() float32 {
	return d.threshold
}

// Cooldown returns the configured cooldown duration.
func (d *Detector) Cooldown() time.Duration {
	return d.cooldown
}

// CountsSnapshot returns a copy of the decision counters.
func (d *Detector) CountsSnapshot() DecisionCounts {
	return d.counts
}

// CheckHeartbeat returns heartbeat data if the interval has elapsed since the
// last heartbeat (or startup). Returns nil if the interval has not elapsed,
// or if interval is <= 0 (disabled).
func (d *Detector) CheckHeartbeat(now time.Time, interval time.Duration) *HeartbeatData {
	if interval <= 0 {
		return nil
	}

	if now.Sub(d.lastHeartbeat) < interval {
		return nil
	}

	d.lastHeartbeat = now
	return &HeartbeatData{
		Timestamp: now,
		Uptime:    now.Sub(d.startTime),
		Counts:    d.counts,
	}
}
