package contracts

import (
	"encoding/json"
	"fmt"
)

// Envelope is the wire message every service exchanges over the bus.
// MessageID is the idempotency token: it is assigned once when the envelope is
// created and survives redelivery unchanged.
type Envelope struct {
	MessageID      string          `json:"messageId"`
	Name           EventName       `json:"name"`
	SiteID         string          `json:"siteId"`
	RoomID         string          `json:"roomId"`
	VisitSessionID string          `json:"visitSessionId"`
	Payload        json.RawMessage `json:"payload,omitempty"`
}

// Encode serializes the envelope for publishing.
func (e Envelope) Encode() ([]byte, error) {
	if !e.Name.Valid() {
		return nil, fmt.Errorf("envelope: unknown event name %q", e.Name)
	}
	return json.Marshal(e)
}

// DecodeEnvelope parses a wire message and validates the event name.
func DecodeEnvelope(body []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return Envelope{}, fmt.Errorf("envelope: decode: %w", err)
	}
	if !env.Name.Valid() {
		return Envelope{}, fmt.Errorf("envelope: unknown event name %q", env.Name)
	}
	if env.MessageID == "" {
		return Envelope{}, fmt.Errorf("envelope: missing messageId")
	}
	return env, nil
}
