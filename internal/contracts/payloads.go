package contracts

import (
	"encoding/json"
	"fmt"
)

// Payload shapes, one per event name. The envelope's payload field is an open
// JSON value on the wire; DecodePayload turns it into exactly one of these.

type EntryScanAcceptedPayload struct {
	VisitSessionID string `json:"visitSessionId"`
	EnlisteeName   string `json:"enlisteeName"`
	PackLocation   string `json:"packLocation"`
}

type ExitScanAcceptedPayload struct {
	VisitSessionID string `json:"visitSessionId"`
}

type DoorOpenRequestedPayload struct {
	Reason string `json:"reason"`
}

type EntryGrantedPayload struct {
	VisitSessionID string `json:"visitSessionId"`
	PackLocation   string `json:"packLocation"`
}

type DisplayAppendPayload struct {
	VisitSessionID string `json:"visitSessionId"`
	EnlisteeName   string `json:"enlisteeName"`
	PackLocation   string `json:"packLocation"`
}

type DisplayRemovePayload struct {
	VisitSessionID string `json:"visitSessionId"`
}

type VisitTimedOutPayload struct {
	VisitSessionID string `json:"visitSessionId"`
}

// DecodePayload dispatches on the envelope's name and returns the matching
// typed payload. The name is checked before the payload bytes are interpreted.
func DecodePayload(env Envelope) (any, error) {
	decode := func(v any) (any, error) {
		if len(env.Payload) == 0 {
			return nil, fmt.Errorf("payload: %s: empty payload", env.Name)
		}
		if err := json.Unmarshal(env.Payload, v); err != nil {
			return nil, fmt.Errorf("payload: %s: %w", env.Name, err)
		}
		return v, nil
	}

	switch env.Name {
	case EntryScanAccepted:
		return decode(&EntryScanAcceptedPayload{})
	case ExitScanAccepted:
		return decode(&ExitScanAcceptedPayload{})
	case DoorOpenRequested:
		return decode(&DoorOpenRequestedPayload{})
	case EntryGranted:
		return decode(&EntryGrantedPayload{})
	case DisplayAppend:
		return decode(&DisplayAppendPayload{})
	case DisplayRemove:
		return decode(&DisplayRemovePayload{})
	case VisitTimedOut:
		return decode(&VisitTimedOutPayload{})
	default:
		return nil, fmt.Errorf("payload: unknown event name %q", env.Name)
	}
}

// MarshalPayload serializes a typed payload for embedding in an envelope.
func MarshalPayload(v any) (json.RawMessage, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("payload: marshal: %w", err)
	}
	return b, nil
}
