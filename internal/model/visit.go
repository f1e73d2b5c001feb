package model

import (
	"database/sql"
	"time"
)

type VisitState string

const (
	StatePending   VisitState = "pending"
	StateActive    VisitState = "active"
	StateCompleted VisitState = "completed"
	StateStale     VisitState = "stale"
)

func (s VisitState) String() string { return string(s) }

func (s VisitState) Valid() bool {
	return s == StatePending || s == StateActive || s == StateCompleted || s == StateStale
}

// VisitSession is the DB entity persisted in visit_sessions.
// At most one active session per (site, room, enlistee) in steady state.
type VisitSession struct {
	ID           string       `db:"id"` // uuid
	SiteID       string       `db:"site_id"`
	RoomID       string       `db:"room_id"`
	EnlisteeID   string       `db:"enlistee_id"`
	EnlisteeName string       `db:"enlistee_name"`
	PackLocation string       `db:"pack_location"`
	State        VisitState   `db:"state"`
	StartedAt    time.Time    `db:"started_at"`
	EndedAt      sql.NullTime `db:"ended_at"`
}

// DisplayEntry is the projection a viewer renders: one row per visit on the
// room display.
type DisplayEntry struct {
	VisitSessionID string `db:"id" json:"visitSessionId"`
	EnlisteeName   string `db:"enlistee_name" json:"enlisteeName"`
	PackLocation   string `db:"pack_location" json:"packLocation"`
}
