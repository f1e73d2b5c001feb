package http

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/labstack/gommon/log"

	"github.com/tagops/visitflow/internal/repository"
	"github.com/tagops/visitflow/internal/service/visit"
)

// scanService is the slice of the visit service the handlers need.
type scanService interface {
	RecordEntry(ctx context.Context, req visit.EntryScan) (string, error)
	RecordExit(ctx context.Context, visitSessionID string) error
}

type entryReq struct {
	SiteID         string `json:"siteId"`
	RoomID         string `json:"roomId"`
	EnlisteeID     string `json:"enlisteeId"`
	EnlisteeName   string `json:"enlisteeName"`
	PackLocation   string `json:"packLocation"`
	VisitSessionID string `json:"visitSessionId"`
}

type exitReq struct {
	VisitSessionID string `json:"visitSessionId"`
}

func entryScanHandler(svc scanService) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req entryReq
		if err := c.Bind(&req); err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "bad request"})
		}

		req.SiteID = strings.TrimSpace(req.SiteID)
		req.RoomID = strings.TrimSpace(req.RoomID)
		req.EnlisteeID = strings.TrimSpace(req.EnlisteeID)
		req.EnlisteeName = strings.TrimSpace(req.EnlisteeName)
		req.PackLocation = strings.TrimSpace(req.PackLocation)

		if req.SiteID == "" || req.RoomID == "" || req.EnlisteeID == "" ||
			req.EnlisteeName == "" || req.PackLocation == "" {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "bad request"})
		}

		vsID, err := svc.RecordEntry(c.Request().Context(), visit.EntryScan{
			SiteID:         req.SiteID,
			RoomID:         req.RoomID,
			EnlisteeID:     req.EnlisteeID,
			EnlisteeName:   req.EnlisteeName,
			PackLocation:   req.PackLocation,
			VisitSessionID: strings.TrimSpace(req.VisitSessionID),
		})
		if err != nil {
			log.Errorf("entry scan failed: %v", err)
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "db error"})
		}

		return c.JSON(http.StatusAccepted, map[string]string{"visitSessionId": vsID})
	}
}

func exitScanHandler(svc scanService) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req exitReq
		if err := c.Bind(&req); err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "bad request"})
		}
		req.VisitSessionID = strings.TrimSpace(req.VisitSessionID)
		if req.VisitSessionID == "" {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "bad request"})
		}

		if err := svc.RecordExit(c.Request().Context(), req.VisitSessionID); err != nil {
			if errors.Is(err, repository.ErrVisitNotFound) {
				return c.JSON(http.StatusNotFound, map[string]string{"error": "visit session not found"})
			}
			log.Errorf("exit scan failed: %v", err)
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "db error"})
		}

		return c.JSON(http.StatusOK, map[string]bool{"ok": true})
	}
}
