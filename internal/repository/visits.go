package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/tagops/visitflow/internal/model"
)

var ErrVisitNotFound = errors.New("visit session not found")

// VisitsRepository defines persistence for the visit_sessions table.
type VisitsRepository interface {
	// UpsertEntry inserts a new active session or reactivates an existing one.
	UpsertEntry(ctx context.Context, tx *sqlx.Tx, v model.VisitSession) error
	// GetByID loads a session; ErrVisitNotFound when absent.
	GetByID(ctx context.Context, id string) (model.VisitSession, error)
	// Complete marks a session completed and stamps ended_at.
	Complete(ctx context.Context, tx *sqlx.Tx, id string, endedAt time.Time) error
	// ActiveEntries returns the display snapshot for a room: pending and
	// active sessions in start order.
	ActiveEntries(ctx context.Context, siteID, roomID string) ([]model.DisplayEntry, error)
	// MarkStaleOlderThan flips active sessions started before cutoff to stale
	// and returns the affected rows.
	MarkStaleOlderThan(ctx context.Context, tx *sqlx.Tx, cutoff time.Time) ([]model.VisitSession, error)
}

type VisitsRepositoryImpl struct {
	db *sqlx.DB
}

func NewVisitsRepository(db *sqlx.DB) *VisitsRepositoryImpl {
	return &VisitsRepositoryImpl{db: db}
}

func (r *VisitsRepositoryImpl) withTx(ctx context.Context, tx *sqlx.Tx, fn func(*sqlx.Tx) error) error {
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

func (r *VisitsRepositoryImpl) UpsertEntry(ctx context.Context, tx *sqlx.Tx, v model.VisitSession) error {
	const q = `
		INSERT INTO visit_sessions
		    (id, site_id, room_id, enlistee_id, enlistee_name, pack_location, state, started_at)
		VALUES
		    (?,  ?,       ?,       ?,           ?,             ?,             'active', ?)
		ON DUPLICATE KEY UPDATE
		    enlistee_name = VALUES(enlistee_name),
		    pack_location = VALUES(pack_location),
		    state         = 'active',
		    ended_at      = NULL
	`
	return r.withTx(ctx, tx, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx, q,
			v.ID, v.SiteID, v.RoomID, v.EnlisteeID, v.EnlisteeName, v.PackLocation, v.StartedAt,
		)
		return err
	})
}

func (r *VisitsRepositoryImpl) GetByID(ctx context.Context, id string) (model.VisitSession, error) {
	const q = `SELECT * FROM visit_sessions WHERE id = ?`
	var v model.VisitSession
	if err := r.db.GetContext(ctx, &v, q, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.VisitSession{}, ErrVisitNotFound
		}
		return model.VisitSession{}, err
	}
	return v, nil
}

func (r *VisitsRepositoryImpl) Complete(ctx context.Context, tx *sqlx.Tx, id string, endedAt time.Time) error {
	const q = `
		UPDATE visit_sessions
		SET state = 'completed', ended_at = ?
		WHERE id = ?
	`
	return r.withTx(ctx, tx, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, q, endedAt, id)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return ErrVisitNotFound
		}
		return nil
	})
}

func (r *VisitsRepositoryImpl) ActiveEntries(ctx context.Context, siteID, roomID string) ([]model.DisplayEntry, error) {
	const q = `
		SELECT id, enlistee_name, pack_location
		FROM visit_sessions
		WHERE site_id = ? AND room_id = ? AND state IN ('pending', 'active')
		ORDER BY started_at
	`
	entries := []model.DisplayEntry{}
	if err := r.db.SelectContext(ctx, &entries, q, siteID, roomID); err != nil {
		return nil, err
	}
	return entries, nil
}

func (r *VisitsRepositoryImpl) MarkStaleOlderThan(ctx context.Context, tx *sqlx.Tx, cutoff time.Time) ([]model.VisitSession, error) {
	const sel = `
		SELECT * FROM visit_sessions
		WHERE state = 'active' AND started_at < ?
		FOR UPDATE
	`
	const upd = `UPDATE visit_sessions SET state = 'stale' WHERE id IN (?)`

	var expired []model.VisitSession
	err := r.withTx(ctx, tx, func(tx *sqlx.Tx) error {
		if err := tx.SelectContext(ctx, &expired, sel, cutoff); err != nil {
			return err
		}
		if len(expired) == 0 {
			return nil
		}
		ids := make([]string, 0, len(expired))
		for _, v := range expired {
			ids = append(ids, v.ID)
		}
		query, args, err := sqlx.In(upd, ids)
		if err != nil {
			return err
		}
		query = tx.Rebind(query)
		_, err = tx.ExecContext(ctx, query, args...)
		return err
	})
	if err != nil {
		return nil, err
	}
	return expired, nil
}
