package sweeper

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/tagops/visitflow/internal/contracts"
	"github.com/tagops/visitflow/internal/model"
	"github.com/tagops/visitflow/internal/repository"
)

// Worker is the timeout mechanism behind the stale visit state: sessions
// active longer than VisitTTL are flipped to stale, and the state change is
// narrated through the outbox like any other mutation.
type Worker struct {
	DB     *sqlx.DB
	Visits repository.VisitsRepository
	Outbox repository.OutboxRepository
	Log    *zap.Logger

	Interval time.Duration // default 1m
	VisitTTL time.Duration // default 8h
}

func (w *Worker) Run(ctx context.Context) error {
	if w.Interval <= 0 {
		w.Interval = time.Minute
	}
	if w.VisitTTL <= 0 {
		w.VisitTTL = 8 * time.Hour
	}

	tick := time.NewTicker(w.Interval)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-tick.C:
			if err := w.sweep(ctx); err != nil {
				w.Log.Error("sweep failed", zap.Error(err))
			}
		}
	}
}

// sweep marks expired sessions stale and queues their timeout events in the
// same transaction as the state change.
func (w *Worker) sweep(ctx context.Context) error {
	now := time.Now().UTC()

	tx, err := w.DB.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	expired, err := w.Visits.MarkStaleOlderThan(ctx, tx, now.Add(-w.VisitTTL))
	if err != nil {
		return fmt.Errorf("mark stale: %w", err)
	}
	if len(expired) == 0 {
		return tx.Commit()
	}

	for _, session := range expired {
		for _, rec := range TimeoutRecords(session, now) {
			if err := w.Outbox.Insert(ctx, tx, rec); err != nil {
				return fmt.Errorf("insert outbox: %w", err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	w.Log.Info("swept stale visits", zap.Int("count", len(expired)))
	return nil
}

// TimeoutRecords builds the outbox rows for one timed-out session: the
// timeout fact itself, plus the display removal no exit scan will ever send.
func TimeoutRecords(session model.VisitSession, now time.Time) []model.OutboxRecord {
	timedOut, _ := json.Marshal(contracts.VisitTimedOutPayload{VisitSessionID: session.ID})
	removed, _ := json.Marshal(contracts.DisplayRemovePayload{VisitSessionID: session.ID})

	base := model.OutboxRecord{
		SiteID:         session.SiteID,
		RoomID:         session.RoomID,
		VisitSessionID: session.ID,
		CreatedAt:      now,
	}

	a := base
	a.MessageID = uuid.NewString()
	a.Name = string(contracts.VisitTimedOut)
	a.Payload = timedOut

	b := base
	b.MessageID = uuid.NewString()
	b.Name = string(contracts.DisplayRemove)
	b.Payload = removed

	return []model.OutboxRecord{a, b}
}
