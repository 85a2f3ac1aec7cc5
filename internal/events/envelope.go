package events

import (
	"encoding/json"
	"fmt"
)

// Frame is the wire envelope used in both directions on the websocket.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Encode wraps data in a frame.
func Encode(event string, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", event, err)
	}
	return json.Marshal(Frame{Event: event, Data: raw})
}
