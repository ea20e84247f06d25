package web

import (
	"encoding/json"
	"time"

	"github.com/sweeney/fall-sensor/internal/logic"
)

// EventsJSON is the JSON representation of the event log.
type EventsJSON struct {
	Events []EventJSON `json:"events"`
}

// EventJSON is one recorded fall.
type EventJSON struct {
	ID          string  `json:"id"`
	Timestamp   string  `json:"timestamp"`
	Probability float32 `json:"probability"`
}

func formatEvents(events []logic.FallEvent) []byte {
	ej := EventsJSON{Events: make([]EventJSON, 0, len(events))}
	for _, e := range events {
		ej.Events = append(ej.Events, EventJSON{
			ID:          e.ID,
			Timestamp:   e.Timestamp.UTC().Format(time.RFC3339Nano),
			Probability: e.Probability,
		})
	}

	data, _ := json.MarshalIndent(ej, "", "  ")
	return data
}
