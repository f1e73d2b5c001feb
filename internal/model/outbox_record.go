package model

import (
	"database/sql"
	"time"
)

// OutboxRecord is one event waiting to be published. Rows are written in the
// same transaction as the domain mutation they narrate; the publisher is the
// only writer afterwards. published_at is set once and never cleared.
type OutboxRecord struct {
	ID             int64        `db:"id"`         // publish order
	MessageID      string       `db:"message_id"` // uuid, unique; consumer dedup key
	Name           string       `db:"name"`
	SiteID         string       `db:"site_id"`
	RoomID         string       `db:"room_id"`
	VisitSessionID string       `db:"visit_session_id"`
	Payload        []byte       `db:"payload"` // JSON
	Attempts       int          `db:"attempts"`
	CreatedAt      time.Time    `db:"created_at"`
	PublishedAt    sql.NullTime `db:"published_at"`
	DeadAt         sql.NullTime `db:"dead_at"`
}
