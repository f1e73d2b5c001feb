package orchestrator

import (
	"encoding/json"
	"testing"

	"github.com/tagops/visitflow/internal/contracts"
)

func entryEnvelope(t *testing.T) contracts.Envelope {
	t.Helper()
	payload, err := contracts.MarshalPayload(contracts.EntryScanAcceptedPayload{
		VisitSessionID: "v-1",
		EnlisteeName:   "Alice",
		PackLocation:   "Locker-7",
	})
	if err != nil {
		t.Fatal(err)
	}
	return contracts.Envelope{
		MessageID:      "trigger-1",
		Name:           contracts.EntryScanAccepted,
		SiteID:         "S1",
		RoomID:         "R1",
		VisitSessionID: "v-1",
		Payload:        payload,
	}
}

func TestEntryScanEmitsThreeInOrder(t *testing.T) {
	out, err := React(entryEnvelope(t))
	if err != nil {
		t.Fatalf("react: %v", err)
	}
	if len(out) != 3 {
		t.Fatalf("emissions = %d, want 3", len(out))
	}

	wantNames := []contracts.EventName{
		contracts.DoorOpenRequested,
		contracts.EntryGranted,
		contracts.DisplayAppend,
	}
	for i, env := range out {
		if env.Name != wantNames[i] {
			t.Fatalf("emission %d = %s, want %s", i, env.Name, wantNames[i])
		}
		if env.SiteID != "S1" || env.RoomID != "R1" || env.VisitSessionID != "v-1" {
			t.Fatalf("emission %d lost trigger scope: %+v", i, env)
		}
		wantKey := "site.S1.room.R1." + env.Name.String()
		if got := contracts.RoutingKey(env.SiteID, env.RoomID, env.Name); got != wantKey {
			t.Fatalf("routing key = %q, want %q", got, wantKey)
		}
	}

	var door contracts.DoorOpenRequestedPayload
	if err := json.Unmarshal(out[0].Payload, &door); err != nil {
		t.Fatal(err)
	}
	if door.Reason != "entry" {
		t.Fatalf("door reason = %q, want entry", door.Reason)
	}

	var granted contracts.EntryGrantedPayload
	if err := json.Unmarshal(out[1].Payload, &granted); err != nil {
		t.Fatal(err)
	}
	if granted.VisitSessionID != "v-1" || granted.PackLocation != "Locker-7" {
		t.Fatalf("granted payload: %+v", granted)
	}

	var appendP contracts.DisplayAppendPayload
	if err := json.Unmarshal(out[2].Payload, &appendP); err != nil {
		t.Fatal(err)
	}
	if appendP.EnlisteeName != "Alice" || appendP.PackLocation != "Locker-7" {
		t.Fatalf("append payload: %+v", appendP)
	}

	if out[0].Name.Exchange() != contracts.CommandsExchange {
		t.Fatal("Door.OpenRequested must go out on the commands exchange")
	}
	if out[1].Name.Exchange() != contracts.EventsExchange || out[2].Name.Exchange() != contracts.EventsExchange {
		t.Fatal("events must go out on the events exchange")
	}
}

func TestExitScanEmitsDisplayRemove(t *testing.T) {
	payload, _ := contracts.MarshalPayload(contracts.ExitScanAcceptedPayload{VisitSessionID: "v-9"})
	env := contracts.Envelope{
		MessageID:      "trigger-2",
		Name:           contracts.ExitScanAccepted,
		SiteID:         "S2",
		RoomID:         "R3",
		VisitSessionID: "v-9",
		Payload:        payload,
	}

	out, err := React(env)
	if err != nil {
		t.Fatalf("react: %v", err)
	}
	if len(out) != 1 || out[0].Name != contracts.DisplayRemove {
		t.Fatalf("emissions = %v, want single Display.Remove", out)
	}

	var rm contracts.DisplayRemovePayload
	if err := json.Unmarshal(out[0].Payload, &rm); err != nil {
		t.Fatal(err)
	}
	if rm.VisitSessionID != "v-9" {
		t.Fatalf("remove payload: %+v", rm)
	}
}

func TestOtherEventsAreIgnored(t *testing.T) {
	for _, name := range []contracts.EventName{
		contracts.EntryGranted,
		contracts.DisplayAppend,
		contracts.DisplayRemove,
		contracts.DoorOpenRequested,
		contracts.VisitTimedOut,
	} {
		env := contracts.Envelope{MessageID: "m", Name: name, SiteID: "S1", RoomID: "R1"}
		out, err := React(env)
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", name, err)
		}
		if out != nil {
			t.Fatalf("%s: expected no-op, got %d emissions", name, len(out))
		}
	}
}

func TestEmissionsCarryFreshMessageIDs(t *testing.T) {
	env := entryEnvelope(t)

	first, err := React(env)
	if err != nil {
		t.Fatal(err)
	}
	second, err := React(env)
	if err != nil {
		t.Fatal(err)
	}

	seen := map[string]bool{env.MessageID: true}
	for _, batch := range [][]contracts.Envelope{first, second} {
		for _, e := range batch {
			if e.MessageID == "" {
				t.Fatal("emission missing message id")
			}
			if seen[e.MessageID] {
				t.Fatalf("message id %s reused across emissions", e.MessageID)
			}
			seen[e.MessageID] = true
		}
	}
}

func TestEntryScanBadPayloadIsAnError(t *testing.T) {
	env := entryEnvelope(t)
	env.Payload = []byte(`{`)
	if _, err := React(env); err == nil {
		t.Fatal("expected error for corrupt payload on a reacted name")
	}
}
