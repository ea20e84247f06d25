// Package status provides a thread-safe status tracker for the fall-sensor daemon.
// It is read by the HTTP handlers and the MQTT lifecycle announcements.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/fall-sensor/internal/logic"
)

// NetworkInfo contains network state as reported by pi-helper.
type NetworkInfo struct {
	Type       string
	IP         string
	Status     string
	Gateway    string
	WifiStatus string
	SSID       string
}

// Config contains daemon configuration for display.
type Config struct {
	Threshold   float32
	CooldownMs  int64
	WindowSize  int
	WindowMode  string
	HeartbeatMs int64
	Sensor      string
	Gateway     string
	Store       string
	Broker      string
	HTTPAddr    string
}

// Dispatch summarizes the most recent alert dispatch.
type Dispatch struct {
	EventID   string
	Attempted int
	Delivered int
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type; safe to use after the lock is released.
type Snapshot struct {
	Session         string
	ModelLoaded     bool
	LastError       string
	Counts          logic.DecisionCounts
	Windows         int
	InferenceErrors int
	LastDetection   *logic.FallEvent
	LastDispatch    *Dispatch
	StartTime       time.Time
	Now             time.Time
	MQTTConnected   bool
	Network         *NetworkInfo
	Config          Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			Session:   "STOPPED",
			StartTime: startTime,
			Config:    cfg,
		},
	}
}

// SetSession records the monitoring session state.
func (t *Tracker) SetSession(state string) {
	t.mu.Lock()
	t.snap.Session = state
	t.mu.Unlock()
}

// SetModelLoaded records whether the classifier is available.
func (t *Tracker) SetModelLoaded(loaded bool) {
	t.mu.Lock()
	t.snap.ModelLoaded = loaded
	t.mu.Unlock()
}

// SetError records the most recent error. A nil err clears it.
func (t *Tracker) SetError(err error) {
	t.mu.Lock()
	if err == nil {
		t.snap.LastError = ""
	} else {
		t.snap.LastError = err.Error()
	}
	t.mu.Unlock()
}

// Update sets the decision counters and pipeline totals.
func (t *Tracker) Update(counts logic.DecisionCounts, windows, inferenceErrors int) {
	t.mu.Lock()
	t.snap.Counts = counts
	t.snap.Windows = windows
	t.snap.InferenceErrors = inferenceErrors
	t.mu.Unlock()
}

// SetLastDetection records the most recent confirmed fall.
func (t *Tracker) SetLastDetection(e logic.FallEvent) {
	t.mu.Lock()
	t.snap.LastDetection = &e
	t.mu.Unlock()
}

// SetLastDispatch records the outcome summary of the most recent dispatch.
func (t *Tracker) SetLastDispatch(d Dispatch) {
	t.mu.Lock()
	t.snap.LastDispatch = &d
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// SetNetwork sets the network info.
func (t *Tracker) SetNetwork(info *NetworkInfo) {
	t.mu.Lock()
	t.snap.Network = info
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	t.mu.RUnlock()
	s.Now = time.Now()
	return s
}
