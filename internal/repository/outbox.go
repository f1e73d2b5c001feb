package repository

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/tagops/visitflow/internal/model"
)

// OutboxRepository defines persistence for the outbox table. Insert runs
// inside the caller's transaction so the record commits with the domain
// mutation it narrates; the remaining methods belong to the publisher.
type OutboxRepository interface {
	Insert(ctx context.Context, tx *sqlx.Tx, rec model.OutboxRecord) error
	// FetchPending returns up to limit unpublished, non-dead records in id order.
	FetchPending(ctx context.Context, limit int) ([]model.OutboxRecord, error)
	// MarkPublished stamps published_at on the given ids in one statement.
	MarkPublished(ctx context.Context, ids []int64, at time.Time) error
	IncrementAttempts(ctx context.Context, id int64) error
	MarkDead(ctx context.Context, id int64, at time.Time) error
}

type OutboxRepositoryImpl struct {
	db *sqlx.DB
}

func NewOutboxRepository(db *sqlx.DB) *OutboxRepositoryImpl {
	return &OutboxRepositoryImpl{db: db}
}

func (r *OutboxRepositoryImpl) withTx(ctx context.Context, tx *sqlx.Tx, fn func(*sqlx.Tx) error) error {
	if tx != nil {
		return fn(tx)
	}
	t, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = t.Rollback() }()
	if err := fn(t); err != nil {
		return err
	}
	return t.Commit()
}

func (r *OutboxRepositoryImpl) Insert(ctx context.Context, tx *sqlx.Tx, rec model.OutboxRecord) error {
	const q = `
		INSERT INTO outbox
		    (message_id, name, site_id, room_id, visit_session_id, payload, attempts, created_at)
		VALUES
		    (?,          ?,    ?,       ?,       ?,                ?,       0,        ?)
	`
	return r.withTx(ctx, tx, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx, q,
			rec.MessageID, rec.Name, rec.SiteID, rec.RoomID, rec.VisitSessionID,
			rec.Payload, rec.CreatedAt,
		)
		return err
	})
}

func (r *OutboxRepositoryImpl) FetchPending(ctx context.Context, limit int) ([]model.OutboxRecord, error) {
	const q = `
		SELECT * FROM outbox
		WHERE published_at IS NULL AND dead_at IS NULL
		ORDER BY id
		LIMIT ?
	`
	var recs []model.OutboxRecord
	if err := r.db.SelectContext(ctx, &recs, q, limit); err != nil {
		return nil, err
	}
	return recs, nil
}

func (r *OutboxRepositoryImpl) MarkPublished(ctx context.Context, ids []int64, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	query, args, err := sqlx.In(`UPDATE outbox SET published_at = ? WHERE id IN (?)`, at, ids)
	if err != nil {
		return err
	}
	query = r.db.Rebind(query)
	_, err = r.db.ExecContext(ctx, query, args...)
	return err
}

func (r *OutboxRepositoryImpl) IncrementAttempts(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx, `UPDATE outbox SET attempts = attempts + 1 WHERE id = ?`, id)
	return err
}

func (r *OutboxRepositoryImpl) MarkDead(ctx context.Context, id int64, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `UPDATE outbox SET dead_at = ? WHERE id = ?`, at, id)
	return err
}
