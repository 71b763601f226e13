package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	household "medtrack/internal/household/domain"
	inventory "medtrack/internal/inventory/domain"
	inventorymem "medtrack/internal/inventory/infrastructure/memory"
)

func newTestHandler(t *testing.T) (*Handler, *inventory.Ledger) {
	t.Helper()

	meds := map[string]household.Medication{
		"ibuprofen": {ID: "ibuprofen", Name: "Ibuprofen", DoseUnits: 1, LowStockThreshold: 5},
	}
	repo := inventorymem.NewInventoryRepository()
	ledger, err := inventory.NewLedger(repo, meds, nil)
	if err != nil {
		t.Fatalf("new ledger: %v", err)
	}
	if err := ledger.Seed(context.Background(), "ibuprofen", 10); err != nil {
		t.Fatalf("seed: %v", err)
	}

	handler, err := NewHandler(ledger, repo, nil)
	if err != nil {
		t.Fatalf("new handler: %v", err)
	}
	return handler, ledger
}

func TestHandlerList(t *testing.T) {
	handler, _ := newTestHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/inventory", nil)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("code = %d", resp.Code)
	}
	var records []inventory.Record
	if err := json.Unmarshal(resp.Body.Bytes(), &records); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(records) != 1 || records[0].Count != 10 {
		t.Fatalf("records = %+v", records)
	}
}

func TestHandlerRefill(t *testing.T) {
	handler, ledger := newTestHandler(t)

	payload := `{"medication_id":"ibuprofen","units":30}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/inventory/refill", strings.NewReader(payload))
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("code = %d: %s", resp.Code, resp.Body.String())
	}

	count, err := ledger.Count(context.Background(), "ibuprofen")
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 40 {
		t.Fatalf("count = %d, want 40", count)
	}
}

func TestHandlerSetCount(t *testing.T) {
	handler, ledger := newTestHandler(t)

	payload := `{"medication_id":"ibuprofen","set_count":7}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/inventory/refill", strings.NewReader(payload))
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("code = %d: %s", resp.Code, resp.Body.String())
	}

	count, err := ledger.Count(context.Background(), "ibuprofen")
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 7 {
		t.Fatalf("count = %d, want 7", count)
	}
}

func TestHandlerRefillRequiresUnits(t *testing.T) {
	handler, _ := newTestHandler(t)

	payload := `{"medication_id":"ibuprofen"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/inventory/refill", strings.NewReader(payload))
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("code = %d, want 400", resp.Code)
	}
}
