package sweeper

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/tagops/visitflow/internal/contracts"
	"github.com/tagops/visitflow/internal/model"
)

func TestTimeoutRecords(t *testing.T) {
	session := model.VisitSession{
		ID:     "v-1",
		SiteID: "S1",
		RoomID: "R1",
		State:  model.StateStale,
	}
	now := time.Now().UTC()

	recs := TimeoutRecords(session, now)
	if len(recs) != 2 {
		t.Fatalf("records = %d, want 2", len(recs))
	}

	if recs[0].Name != string(contracts.VisitTimedOut) {
		t.Fatalf("first record = %s, want VisitSession.TimedOut", recs[0].Name)
	}
	if recs[1].Name != string(contracts.DisplayRemove) {
		t.Fatalf("second record = %s, want Display.Remove", recs[1].Name)
	}

	seen := map[string]bool{}
	for _, rec := range recs {
		if rec.SiteID != "S1" || rec.RoomID != "R1" || rec.VisitSessionID != "v-1" {
			t.Fatalf("record lost session scope: %+v", rec)
		}
		if rec.MessageID == "" || seen[rec.MessageID] {
			t.Fatalf("message ids must be fresh and distinct, got %q", rec.MessageID)
		}
		seen[rec.MessageID] = true
		if !rec.CreatedAt.Equal(now) {
			t.Fatalf("created_at = %v, want %v", rec.CreatedAt, now)
		}
	}

	var rm contracts.DisplayRemovePayload
	if err := json.Unmarshal(recs[1].Payload, &rm); err != nil {
		t.Fatal(err)
	}
	if rm.VisitSessionID != "v-1" {
		t.Fatalf("remove payload: %+v", rm)
	}
}
