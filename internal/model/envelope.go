package model

import "encoding/json"

// Envelope is the JSON wrapper most backend endpoints respond with.
// Errors carries field-level validation failures when present; backends send
// either field→message or field→[messages].
type Envelope struct {
	Success *bool                      `json:"success"`
	Message string                     `json:"message"`
	Data    json.RawMessage            `json:"data"`
	Errors  map[string]json.RawMessage `json:"errors"`
}
