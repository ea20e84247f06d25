package status

import (
	"encoding/json"
	"time"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string         `json:"event,omitempty"`
	Reason        string         `json:"reason,omitempty"`
	Session       string         `json:"session"`
	ModelLoaded   bool           `json:"model_loaded"`
	LastError     string         `json:"last_error,omitempty"`
	UptimeSeconds int64          `json:"uptime_seconds"`
	StartTime     string         `json:"start_time"`
	Timestamp     string         `json:"timestamp"`
	MQTT          MQTTStatus     `json:"mqtt"`
	Counts        CountsJSON     `json:"counts"`
	LastDetection *DetectionJSON `json:"last_detection,omitempty"`
	LastDispatch  *DispatchJSON  `json:"last_dispatch,omitempty"`
	Network       *NetworkJSON   `json:"network,omitempty"`
	Config        ConfigJSON     `json:"config"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// CountsJSON is the JSON representation of pipeline counters.
type CountsJSON struct {
	Windows         int `json:"windows"`
	InferenceErrors int `json:"inference_errors"`
	Evaluated       int `json:"evaluated"`
	Detections      int `json:"detections"`
	Suppressed      int `json:"suppressed"`
}

// DetectionJSON is the JSON representation of a fall event.
type DetectionJSON struct {
	ID          string  `json:"id"`
	Timestamp   string  `json:"timestamp"`
	Probability float32 `json:"probability"`
}

// DispatchJSON is the JSON representation of a dispatch summary.
type DispatchJSON struct {
	EventID   string `json:"event_id"`
	Attempted int    `json:"attempted"`
	Delivered int    `json:"delivered"`
}

// NetworkJSON is the JSON representation of network info.
type NetworkJSON struct {
	Type       string `json:"type"`
	IP         string `json:"ip"`
	Status     string `json:"status"`
	Gateway    string `json:"gateway"`
	WifiStatus string `json:"wifi_status"`
	SSID       string `json:"ssid"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	Threshold   float32 `json:"threshold"`
	CooldownMs  int64   `json:"cooldown_ms"`
	WindowSize  int     `json:"window_size"`
	WindowMode  string  `json:"window_mode"`
	HeartbeatMs int64   `json:"heartbeat_ms"`
	Sensor      string  `json:"sensor"`
	Gateway     string  `json:"gateway"`
	Store       string  `json:"store"`
	Broker      string  `json:"broker"`
	HTTPAddr    string  `json:"http_addr"`
}

func buildInner(snap Snapshot) StatusInner {
	session := snap.Session
	if session == "" {
		session = "UNKNOWN"
	}

	inner := StatusInner{
		Session:       session,
		ModelLoaded:   snap.ModelLoaded,
		LastError:     snap.LastError,
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		MQTT:          MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Counts: CountsJSON{
			Windows:         snap.Windows,
			InferenceErrors: snap.InferenceErrors,
			Evaluated:       snap.Counts.Evaluated,
			Detections:      snap.Counts.Detections,
			Suppressed:      snap.Counts.Suppressed,
		},
		Config: ConfigJSON{
			Threshold:   snap.Config.Threshold,
			CooldownMs:  snap.Config.CooldownMs,
			WindowSize:  snap.Config.WindowSize,
			WindowMode:  snap.Config.WindowMode,
			HeartbeatMs: snap.Config.HeartbeatMs,
			Sensor:      snap.Config.Sensor,
			Gateway:     snap.Config.Gateway,
			Store:       snap.Config.Store,
			Broker:      snap.Config.Broker,
			HTTPAddr:    snap.Config.HTTPAddr,
		},
	}

	if d := snap.LastDetection; d != nil {
		inner.LastDetection = &DetectionJSON{
			ID:          d.ID,
			Timestamp:   d.Timestamp.UTC().Format(time.RFC3339Nano),
			Probability: d.Probability,
		}
	}
	if d := snap.LastDispatch; d != nil {
		inner.LastDispatch = &DispatchJSON{
			EventID:   d.EventID,
			Attempted: d.Attempted,
			Delivered: d.Delivered,
		}
	}
	if snap.Network != nil {
		inner.Network = &NetworkJSON{
			Type:       snap.Network.Type,
			IP:         snap.Network.IP,
			Status:     snap.Network.Status,
			Gateway:    snap.Network.Gateway,
			WifiStatus: snap.Network.WifiStatus,
			SSID:       snap.Network.SSID,
		}
	}
	return inner
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	data, _ := json.MarshalIndent(StatusJSON{Status: buildInner(snap)}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
