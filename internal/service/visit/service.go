package visit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/tagops/visitflow/internal/contracts"
	"github.com/tagops/visitflow/internal/model"
	"github.com/tagops/visitflow/internal/repository"
)

// Service applies scan requests: the visit session mutation and the outbox
// record that narrates it commit in one transaction, so no mutation is ever
// silently unobserved and no event outlives a rolled-back mutation.
type Service struct {
	db     *sqlx.DB
	visits repository.VisitsRepository
	outbox repository.OutboxRepository
}

func New(db *sqlx.DB, visits repository.VisitsRepository, outbox repository.OutboxRepository) *Service {
	return &Service{db: db, visits: visits, outbox: outbox}
}

type EntryScan struct {
	SiteID         string
	RoomID         string
	EnlisteeID     string
	EnlisteeName   string
	PackLocation   string
	VisitSessionID string // optional; fresh uuid when empty
}

// RecordEntry activates (or creates) the visit session and queues
// Entry.ScanAccepted. Returns the visit session id.
func (s *Service) RecordEntry(ctx context.Context, req EntryScan) (string, error) {
	vsID := req.VisitSessionID
	if vsID == "" {
		vsID = uuid.NewString()
	}
	now := time.Now().UTC()

	session := model.VisitSession{
		ID:           vsID,
		SiteID:       req.SiteID,
		RoomID:       req.RoomID,
		EnlisteeID:   req.EnlisteeID,
		EnlisteeName: req.EnlisteeName,
		PackLocation: req.PackLocation,
		State:        model.StateActive,
		StartedAt:    now,
	}

	payload, err := json.Marshal(contracts.EntryScanAcceptedPayload{
		VisitSessionID: vsID,
		EnlisteeName:   req.EnlisteeName,
		PackLocation:   req.PackLocation,
	})
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return "", err
	}
	defer func() { _ = tx.Rollback() }()

	if err := s.visits.UpsertEntry(ctx, tx, session); err != nil {
		return "", fmt.Errorf("upsert visit: %w", err)
	}

	rec := model.OutboxRecord{
		MessageID:      uuid.NewString(),
		Name:           string(contracts.EntryScanAccepted),
		SiteID:         req.SiteID,
		RoomID:         req.RoomID,
		VisitSessionID: vsID,
		Payload:        payload,
		CreatedAt:      now,
	}
	if err := s.outbox.Insert(ctx, tx, rec); err != nil {
		return "", fmt.Errorf("insert outbox: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return "", err
	}
	return vsID, nil
}

// RecordExit completes the session and queues Exit.ScanAccepted.
// Returns repository.ErrVisitNotFound for unknown sessions.
func (s *Service) RecordExit(ctx context.Context, visitSessionID string) error {
	session, err := s.visits.GetByID(ctx, visitSessionID)
	if err != nil {
		return err
	}
	now := time.Now().UTC()

	payload, err := json.Marshal(contracts.ExitScanAcceptedPayload{
		VisitSessionID: visitSessionID,
	})
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if err := s.visits.Complete(ctx, tx, visitSessionID, now); err != nil {
		return fmt.Errorf("complete visit: %w", err)
	}

	rec := model.OutboxRecord{
		MessageID:      uuid.NewString(),
		Name:           string(contracts.ExitScanAccepted),
		SiteID:         session.SiteID,
		RoomID:         session.RoomID,
		VisitSessionID: visitSessionID,
		Payload:        payload,
		CreatedAt:      now,
	}
	if err := s.outbox.Insert(ctx, tx, rec); err != nil {
		return fmt.Errorf("insert outbox: %w", err)
	}

	return tx.Commit()
}
