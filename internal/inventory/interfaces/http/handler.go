package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"medtrack/internal/audit"
	"medtrack/internal/auth"
	"medtrack/internal/dosing/application/events"
	inventory "medtrack/internal/inventory/domain"
)

// Publisher emits domain events.
type Publisher interface {
	Publish(ctx context.Context, event any) error
}

// Handler provides inventory HTTP endpoints.
type Handler struct {
	ledger      *inventory.Ledger
	repo        inventory.Repository
	auditLogger audit.Logger
	publisher   Publisher
}

// NewHandler constructs an inventory handler.
func NewHandler(ledger *inventory.Ledger, repo inventory.Repository, auditLogger audit.Logger) (*Handler, error) {
	if ledger == nil {
		return nil, errors.New("inventory handler: nil ledger")
	}
	if repo == nil {
		return nil, errors.New("inventory handler: nil repository")
	}
	return &Handler{ledger: ledger, repo: repo, auditLogger: auditLogger}, nil
}

// WithPublisher attaches an event publisher for refill adjustments.
func (h *Handler) WithPublisher(publisher Publisher) *Handler {
	if h != nil {
		h.publisher = publisher
	}
	return h
}

// ServeHTTP handles GET /api/v1/inventory and POST /api/v1/inventory/refill.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.Method == http.MethodGet:
		h.handleList(w, r)
	case r.Method == http.MethodPost && r.URL.Path == "/api/v1/inventory/refill":
		h.handleRefill(w, r)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	records, err := h.repo.List(r.Context())
	if err != nil {
		http.Error(w, "list inventory error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(records)
}

func (h *Handler) handleRefill(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "read body error", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	var req refillRequest
	if err := json.Unmarshal(body, &req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if req.MedicationID == "" {
		http.Error(w, "medication_id required", http.StatusBadRequest)
		return
	}

	var count int
	reason := "refill"
	delta := req.Units
	switch {
	case req.SetCount != nil:
		before, countErr := h.ledger.Count(r.Context(), req.MedicationID)
		if countErr == nil {
			delta = *req.SetCount - before
		}
		reason = "set_count"
		count, err = h.ledger.SetCount(r.Context(), req.MedicationID, *req.SetCount)
	case req.Units > 0:
		count, err = h.ledger.Refill(r.Context(), req.MedicationID, req.Units)
	default:
		http.Error(w, "units or set_count required", http.StatusBadRequest)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if h.publisher != nil {
		_ = h.publisher.Publish(r.Context(), events.InventoryAdjusted{
			MedicationID: req.MedicationID,
			Delta:        delta,
			Remaining:    count,
			Reason:       reason,
			OccurredAt:   time.Now().UTC(),
		})
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"medication_id": req.MedicationID, "count": count})

	h.logAudit(r, req)
}

func (h *Handler) logAudit(r *http.Request, req refillRequest) {
	if h.auditLogger == nil {
		return
	}
	householdID := auth.HouseholdIDFromContext(r.Context())
	if householdID == "" {
		return
	}
	meta, _ := json.Marshal(map[string]any{"units": req.Units, "set_count": req.SetCount})
	_ = h.auditLogger.Log(r.Context(), audit.Entry{
		HouseholdID:  householdID,
		Actor:        auth.SubjectFromContext(r.Context()),
		Role:         string(auth.RoleFromContext(r.Context())),
		Action:       "inventory.refill",
		ResourceType: "inventory",
		ResourceID:   req.MedicationID,
		Metadata:     meta,
		IP:           audit.ClientIP(r),
		UserAgent:    r.UserAgent(),
	})
}

type refillRequest struct {
	MedicationID string `json:"medication_id"`
	Units        int    `json:"units"`
	SetCount     *int   `json:"set_count"`
}
