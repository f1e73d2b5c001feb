package repository

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/tagops/visitflow/internal/contracts"
)

// ArchivedEvent is one envelope as stored in the ClickHouse events table.
type ArchivedEvent struct {
	MessageID      string    `db:"message_id" json:"messageId"`
	Name           string    `db:"name" json:"name"`
	SiteID         string    `db:"site_id" json:"siteId"`
	RoomID         string    `db:"room_id" json:"roomId"`
	VisitSessionID string    `db:"visit_session_id" json:"visitSessionId"`
	Payload        string    `db:"payload" json:"payload"`
	ReceivedAt     time.Time `db:"received_at" json:"receivedAt"`
}

// ArchiveRepository writes and reads the event audit log (ClickHouse).
type ArchiveRepository interface {
	InsertEnvelope(ctx context.Context, env contracts.Envelope, receivedAt time.Time) error
	ListEvents(ctx context.Context, siteID, roomID, name string, limit, offset int) ([]ArchivedEvent, error)
}

type archiveRepository struct {
	ch *sqlx.DB // ClickHouse connection
}

func NewArchiveRepository(ch *sqlx.DB) ArchiveRepository {
	return &archiveRepository{ch: ch}
}

func (r *archiveRepository) InsertEnvelope(ctx context.Context, env contracts.Envelope, receivedAt time.Time) error {
	const q = `
		INSERT INTO tag.events
		    (message_id, name, site_id, room_id, visit_session_id, payload, received_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.ch.ExecContext(ctx, q,
		env.MessageID, env.Name.String(), env.SiteID, env.RoomID,
		env.VisitSessionID, string(env.Payload), receivedAt,
	)
	return err
}

func (r *archiveRepository) ListEvents(ctx context.Context, siteID, roomID, name string, limit, offset int) ([]ArchivedEvent, error) {
	if limit <= 0 || limit > 1000 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	q := `
		SELECT message_id, name, site_id, room_id, visit_session_id, payload, received_at
		FROM tag.events
		WHERE 1 = 1
	`
	args := []any{}

	if siteID != "" {
		q += " AND site_id = ?"
		args = append(args, siteID)
	}
	if roomID != "" {
		q += " AND room_id = ?"
		args = append(args, roomID)
	}
	if name != "" {
		q += " AND name = ?"
		args = append(args, name)
	}

	q += " ORDER BY received_at DESC LIMIT ? OFFSET ?"
	args = append(args, limit, offset)

	var rows []ArchivedEvent
	if err := r.ch.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, err
	}
	return rows, nil
}
