package relay

import (
	"testing"

	"github.com/tagops/visitflow/internal/contracts"
)

func encodeDisplayEvent(t *testing.T, name contracts.EventName, payload any) []byte {
	t.Helper()
	raw, err := contracts.MarshalPayload(payload)
	if err != nil {
		t.Fatal(err)
	}
	env := contracts.Envelope{
		MessageID:      "m-1",
		Name:           name,
		SiteID:         "S1",
		RoomID:         "R1",
		VisitSessionID: "v-1",
		Payload:        raw,
	}
	body, err := env.Encode()
	if err != nil {
		t.Fatal(err)
	}
	return body
}

func TestTranslateAppend(t *testing.T) {
	body := encodeDisplayEvent(t, contracts.DisplayAppend, contracts.DisplayAppendPayload{
		VisitSessionID: "v-1",
		EnlisteeName:   "Alice",
		PackLocation:   "Locker-7",
	})

	msg, group, err := translate(body)
	if err != nil {
		t.Fatalf("translate: %v", err)
	}
	if group != "S1:R1" {
		t.Fatalf("group = %q, want S1:R1", group)
	}
	want := PushMessage{Type: "append", VisitSessionID: "v-1", EnlisteeName: "Alice", PackLocation: "Locker-7"}
	if msg != want {
		t.Fatalf("msg = %+v, want %+v", msg, want)
	}
}

func TestTranslateRemove(t *testing.T) {
	body := encodeDisplayEvent(t, contracts.DisplayRemove, contracts.DisplayRemovePayload{
		VisitSessionID: "v-1",
	})

	msg, group, err := translate(body)
	if err != nil {
		t.Fatalf("translate: %v", err)
	}
	if group != "S1:R1" {
		t.Fatalf("group = %q", group)
	}
	want := PushMessage{Type: "remove", VisitSessionID: "v-1"}
	if msg != want {
		t.Fatalf("msg = %+v, want %+v", msg, want)
	}
}

func TestTranslateRejectsGarbage(t *testing.T) {
	if _, _, err := translate([]byte(`not json`)); err == nil {
		t.Fatal("expected error for undecodable body")
	}
}

func TestTranslateRejectsCorruptPayload(t *testing.T) {
	body := []byte(`{"messageId":"m-1","name":"Display.Append","siteId":"S1","roomId":"R1","visitSessionId":"v-1","payload":{"visitSessionId":42}}`)
	if _, _, err := translate(body); err == nil {
		t.Fatal("expected error for payload of the wrong shape")
	}
}
