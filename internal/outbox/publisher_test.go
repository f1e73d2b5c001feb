package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/tagops/visitflow/internal/contracts"
	"github.com/tagops/visitflow/internal/model"
)

type fakeStore struct {
	records []model.OutboxRecord
}

func (s *fakeStore) FetchPending(_ context.Context, limit int) ([]model.OutboxRecord, error) {
	out := []model.OutboxRecord{}
	for _, r := range s.records {
		if r.PublishedAt.Valid || r.DeadAt.Valid {
			continue
		}
		out = append(out, r)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *fakeStore) MarkPublished(_ context.Context, ids []int64, at time.Time) error {
	for _, id := range ids {
		for i := range s.records {
			if s.records[i].ID == id {
				s.records[i].PublishedAt.Valid = true
				s.records[i].PublishedAt.Time = at
			}
		}
	}
	return nil
}

func (s *fakeStore) IncrementAttempts(_ context.Context, id int64) error {
	for i := range s.records {
		if s.records[i].ID == id {
			s.records[i].Attempts++
		}
	}
	return nil
}

func (s *fakeStore) MarkDead(_ context.Context, id int64, at time.Time) error {
	for i := range s.records {
		if s.records[i].ID == id {
			s.records[i].DeadAt.Valid = true
			s.records[i].DeadAt.Time = at
		}
	}
	return nil
}

func (s *fakeStore) pending() int {
	n := 0
	for _, r := range s.records {
		if !r.PublishedAt.Valid && !r.DeadAt.Valid {
			n++
		}
	}
	return n
}

type fakeBroker struct {
	sent   []contracts.Envelope
	failOn map[string]error // message id -> error
}

func (b *fakeBroker) PublishEnvelope(_ context.Context, env contracts.Envelope) error {
	if err, ok := b.failOn[env.MessageID]; ok {
		return err
	}
	b.sent = append(b.sent, env)
	return nil
}

func record(id int64, msgID string) model.OutboxRecord {
	payload, _ := json.Marshal(contracts.DisplayRemovePayload{VisitSessionID: "v-1"})
	return model.OutboxRecord{
		ID:             id,
		MessageID:      msgID,
		Name:           string(contracts.DisplayRemove),
		SiteID:         "S1",
		RoomID:         "R1",
		VisitSessionID: "v-1",
		Payload:        payload,
		CreatedAt:      time.Now(),
	}
}

func newTestPublisher(s Store, b Broker) *Publisher {
	p := NewPublisher(s, b, zap.NewNop())
	p.BatchSize = 10
	return p
}

func TestPublishOrderAndMarking(t *testing.T) {
	store := &fakeStore{records: []model.OutboxRecord{
		record(1, "m-1"), record(2, "m-2"), record(3, "m-3"),
	}}
	broker := &fakeBroker{}
	p := newTestPublisher(store, broker)

	n, err := p.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("cycle: %v", err)
	}
	if n != 3 {
		t.Fatalf("published = %d, want 3", n)
	}
	for i, want := range []string{"m-1", "m-2", "m-3"} {
		if broker.sent[i].MessageID != want {
			t.Fatalf("send order: got %s at %d, want %s", broker.sent[i].MessageID, i, want)
		}
	}
	if store.pending() != 0 {
		t.Fatalf("pending = %d after full drain", store.pending())
	}
}

func TestFailedSendHaltsBatch(t *testing.T) {
	store := &fakeStore{records: []model.OutboxRecord{
		record(1, "m-1"), record(2, "m-2"), record(3, "m-3"),
	}}
	broker := &fakeBroker{failOn: map[string]error{"m-2": errors.New("broker down")}}
	p := newTestPublisher(store, broker)

	n, err := p.RunOnce(context.Background())
	if err == nil {
		t.Fatal("expected send error to surface")
	}
	if n != 1 {
		t.Fatalf("published = %d, want 1 (only m-1)", n)
	}
	// m-3 must not be sent ahead of the stalled m-2
	for _, env := range broker.sent {
		if env.MessageID == "m-3" {
			t.Fatal("m-3 published out of order past failed m-2")
		}
	}
	if store.records[1].Attempts != 1 {
		t.Fatalf("attempts on m-2 = %d, want 1", store.records[1].Attempts)
	}
	if store.records[0].PublishedAt.Valid == false {
		t.Fatal("m-1 should be marked published")
	}
}

func TestRetryResendsWithSameMessageID(t *testing.T) {
	store := &fakeStore{records: []model.OutboxRecord{record(1, "m-1")}}
	broker := &fakeBroker{failOn: map[string]error{"m-1": errors.New("timeout")}}
	p := newTestPublisher(store, broker)

	if _, err := p.RunOnce(context.Background()); err == nil {
		t.Fatal("expected failure on first cycle")
	}

	delete(broker.failOn, "m-1")
	n, err := p.RunOnce(context.Background())
	if err != nil || n != 1 {
		t.Fatalf("second cycle: n=%d err=%v", n, err)
	}
	if broker.sent[0].MessageID != "m-1" {
		t.Fatal("redelivery must keep the original message id")
	}
}

func TestDeadLetterAfterMaxAttempts(t *testing.T) {
	rec := record(1, "m-1")
	rec.Attempts = 3
	store := &fakeStore{records: []model.OutboxRecord{rec, record(2, "m-2")}}
	broker := &fakeBroker{}
	p := newTestPublisher(store, broker)
	p.MaxAttempts = 3

	n, err := p.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("cycle: %v", err)
	}
	if !store.records[0].DeadAt.Valid {
		t.Fatal("exhausted record should be dead-lettered")
	}
	if store.records[0].PublishedAt.Valid {
		t.Fatal("dead record must not be marked published")
	}
	// the stream keeps flowing past the dead record
	if n != 1 || len(broker.sent) != 1 || broker.sent[0].MessageID != "m-2" {
		t.Fatalf("expected m-2 to publish past the dead record, sent=%v", broker.sent)
	}
}

func TestUnencodableRecordDeadLettersImmediately(t *testing.T) {
	bad := record(1, "m-1")
	bad.Name = "Nope.Invalid"
	store := &fakeStore{records: []model.OutboxRecord{bad}}
	p := newTestPublisher(store, &fakeBroker{})

	if _, err := p.RunOnce(context.Background()); err != nil {
		t.Fatalf("cycle: %v", err)
	}
	if !store.records[0].DeadAt.Valid {
		t.Fatal("unencodable record should be dead-lettered, not retried")
	}
}

func TestFetchRespectsBatchSize(t *testing.T) {
	store := &fakeStore{}
	for i := 1; i <= 25; i++ {
		store.records = append(store.records, record(int64(i), fmt.Sprintf("m-%d", i)))
	}
	broker := &fakeBroker{}
	p := newTestPublisher(store, broker)

	n, err := p.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("cycle: %v", err)
	}
	if n != p.BatchSize {
		t.Fatalf("published = %d, want %d", n, p.BatchSize)
	}
	if store.pending() != 15 {
		t.Fatalf("pending = %d, want 15", store.pending())
	}
}
