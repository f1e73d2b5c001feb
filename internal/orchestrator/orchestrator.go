package orchestrator

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/tagops/visitflow/internal/contracts"
)

// React is the saga's reaction table. For each inbound domain event it returns
// the follow-up envelopes to publish, in emission order. Every emission is a
// new logical message: it carries a fresh message id, not the trigger's.
// Names outside the table are ignored, not errors.
func React(env contracts.Envelope) ([]contracts.Envelope, error) {
	switch env.Name {
	case contracts.EntryScanAccepted:
		v, err := contracts.DecodePayload(env)
		if err != nil {
			return nil, err
		}
		entry := v.(*contracts.EntryScanAcceptedPayload)

		// order matters: the door opens before the display narrates it
		return emissions(env,
			emission{contracts.DoorOpenRequested, contracts.DoorOpenRequestedPayload{Reason: "entry"}},
			emission{contracts.EntryGranted, contracts.EntryGrantedPayload{
				VisitSessionID: env.VisitSessionID,
				PackLocation:   entry.PackLocation,
			}},
			emission{contracts.DisplayAppend, contracts.DisplayAppendPayload{
				VisitSessionID: env.VisitSessionID,
				EnlisteeName:   entry.EnlisteeName,
				PackLocation:   entry.PackLocation,
			}},
		)

	case contracts.ExitScanAccepted:
		if _, err := contracts.DecodePayload(env); err != nil {
			return nil, err
		}
		return emissions(env,
			emission{contracts.DisplayRemove, contracts.DisplayRemovePayload{
				VisitSessionID: env.VisitSessionID,
			}},
		)

	default:
		return nil, nil
	}
}

type emission struct {
	name    contracts.EventName
	payload any
}

func emissions(trigger contracts.Envelope, ems ...emission) ([]contracts.Envelope, error) {
	out := make([]contracts.Envelope, 0, len(ems))
	for _, em := range ems {
		raw, err := contracts.MarshalPayload(em.payload)
		if err != nil {
			return nil, fmt.Errorf("orchestrator: %s: %w", em.name, err)
		}
		out = append(out, contracts.Envelope{
			MessageID:      uuid.NewString(),
			Name:           em.name,
			SiteID:         trigger.SiteID,
			RoomID:         trigger.RoomID,
			VisitSessionID: trigger.VisitSessionID,
			Payload:        raw,
		})
	}
	return out, nil
}
