package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/tagops/visitflow/internal/repository"
	"github.com/tagops/visitflow/internal/service/visit"
)

type fakeScanService struct {
	entries []visit.EntryScan
	exits   []string
	exitErr error
}

func (f *fakeScanService) RecordEntry(_ context.Context, req visit.EntryScan) (string, error) {
	f.entries = append(f.entries, req)
	if req.VisitSessionID != "" {
		return req.VisitSessionID, nil
	}
	return "generated-id", nil
}

func (f *fakeScanService) RecordExit(_ context.Context, id string) error {
	if f.exitErr != nil {
		return f.exitErr
	}
	f.exits = append(f.exits, id)
	return nil
}

func doJSON(t *testing.T, h echo.HandlerFunc, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	if err := h(e.NewContext(req, rec)); err != nil {
		t.Fatalf("handler: %v", err)
	}
	return rec
}

func TestEntryScanAccepted(t *testing.T) {
	svc := &fakeScanService{}
	body := `{"siteId":"S1","roomId":"R1","enlisteeId":"e-1","enlisteeName":"Alice","packLocation":"Locker-7"}`
	rec := doJSON(t, entryScanHandler(svc), http.MethodPost, "/entry-scan", body)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", rec.Code)
	}
	var resp map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp["visitSessionId"] == "" {
		t.Fatal("response missing visitSessionId")
	}
	if len(svc.entries) != 1 || svc.entries[0].EnlisteeName != "Alice" {
		t.Fatalf("service saw %+v", svc.entries)
	}
}

func TestEntryScanRejectsMissingFields(t *testing.T) {
	svc := &fakeScanService{}
	body := `{"siteId":"S1","roomId":"R1"}`
	rec := doJSON(t, entryScanHandler(svc), http.MethodPost, "/entry-scan", body)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if len(svc.entries) != 0 {
		t.Fatal("invalid request must not reach the service")
	}
}

func TestExitScanOK(t *testing.T) {
	svc := &fakeScanService{}
	rec := doJSON(t, exitScanHandler(svc), http.MethodPost, "/exit-scan", `{"visitSessionId":"v-1"}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if len(svc.exits) != 1 || svc.exits[0] != "v-1" {
		t.Fatalf("service saw %+v", svc.exits)
	}
}

func TestExitScanUnknownSession(t *testing.T) {
	svc := &fakeScanService{exitErr: repository.ErrVisitNotFound}
	rec := doJSON(t, exitScanHandler(svc), http.MethodPost, "/exit-scan", `{"visitSessionId":"v-404"}`)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}
