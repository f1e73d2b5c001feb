package outbox

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/tagops/visitflow/internal/contracts"
	"github.com/tagops/visitflow/internal/metrics"
	"github.com/tagops/visitflow/internal/model"
)

// Store is the slice of the outbox repository the publisher needs.
type Store interface {
	FetchPending(ctx context.Context, limit int) ([]model.OutboxRecord, error)
	MarkPublished(ctx context.Context, ids []int64, at time.Time) error
	IncrementAttempts(ctx context.Context, id int64) error
	MarkDead(ctx context.Context, id int64, at time.Time) error
}

// Broker sends one envelope to the routing substrate.
type Broker interface {
	PublishEnvelope(ctx context.Context, env contracts.Envelope) error
}

// Publisher drains pending outbox records to the broker in id order.
// Exactly one publisher instance may run against a given outbox table.
type Publisher struct {
	Store  Store
	Broker Broker
	Log    *zap.Logger

	BatchSize    int           // default 200
	PollInterval time.Duration // idle sleep, default 500ms
	ErrorBackoff time.Duration // sleep after a failed send, default 1s
	MaxAttempts  int           // sends before dead-lettering, default 10
}

func NewPublisher(store Store, broker Broker, log *zap.Logger) *Publisher {
	return &Publisher{
		Store:        store,
		Broker:       broker,
		Log:          log,
		BatchSize:    200,
		PollInterval: 500 * time.Millisecond,
		ErrorBackoff: time.Second,
		MaxAttempts:  10,
	}
}

// Run polls until ctx is cancelled. A full batch triggers an immediate
// re-poll so backlogs drain without idle waits.
func (p *Publisher) Run(ctx context.Context) error {
	for {
		n, err := p.RunOnce(ctx)

		var wait time.Duration
		switch {
		case err != nil:
			p.Log.Error("outbox cycle failed", zap.Error(err))
			wait = p.ErrorBackoff
		case n >= p.BatchSize:
			// backlog: drain immediately
		case n == 0:
			wait = p.PollInterval
		default:
			wait = p.PollInterval
		}

		if wait > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}
		} else if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

// RunOnce performs one polling cycle and returns how many records were
// published. A failed send halts the batch to preserve publish order; only
// records past MaxAttempts are dead-lettered and skipped.
func (p *Publisher) RunOnce(ctx context.Context) (int, error) {
	batch, err := p.Store.FetchPending(ctx, p.BatchSize)
	if err != nil {
		return 0, err
	}

	now := time.Now().UTC()
	published := make([]int64, 0, len(batch))

	var sendErr error
	for _, rec := range batch {
		if rec.Attempts >= p.MaxAttempts {
			p.deadLetter(ctx, rec, now, "max attempts exhausted", nil)
			continue
		}

		env := contracts.Envelope{
			MessageID:      rec.MessageID,
			Name:           contracts.EventName(rec.Name),
			SiteID:         rec.SiteID,
			RoomID:         rec.RoomID,
			VisitSessionID: rec.VisitSessionID,
			Payload:        json.RawMessage(rec.Payload),
		}
		if _, err := env.Encode(); err != nil {
			// deterministic: the record can never be sent
			p.deadLetter(ctx, rec, now, "unencodable record", err)
			continue
		}

		if err := p.Broker.PublishEnvelope(ctx, env); err != nil {
			if ierr := p.Store.IncrementAttempts(ctx, rec.ID); ierr != nil {
				p.Log.Error("increment attempts failed", zap.Int64("outbox_id", rec.ID), zap.Error(ierr))
			}
			p.Log.Warn("publish failed, halting batch",
				zap.Int64("outbox_id", rec.ID),
				zap.String("message_id", rec.MessageID),
				zap.Int("attempts", rec.Attempts+1),
				zap.Error(err))
			sendErr = err
			break
		}

		published = append(published, rec.ID)
	}

	if len(published) > 0 {
		if err := p.Store.MarkPublished(ctx, published, now); err != nil {
			// records stay pending and will be resent: at-least-once
			p.Log.Error("mark published failed, records will be redelivered", zap.Error(err))
			return len(published), err
		}
		metrics.OutboxPublishedTotal.Add(float64(len(published)))
	}

	return len(published), sendErr
}

func (p *Publisher) deadLetter(ctx context.Context, rec model.OutboxRecord, at time.Time, reason string, cause error) {
	if err := p.Store.MarkDead(ctx, rec.ID, at); err != nil {
		p.Log.Error("mark dead failed", zap.Int64("outbox_id", rec.ID), zap.Error(err))
		return
	}
	metrics.OutboxDeadLetteredTotal.Inc()
	p.Log.Error("outbox record dead-lettered",
		zap.Int64("outbox_id", rec.ID),
		zap.String("message_id", rec.MessageID),
		zap.String("name", rec.Name),
		zap.String("reason", reason),
		zap.Error(cause))
}
