package http

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"time"

	"medtrack/internal/audit"
	"medtrack/internal/auth"
	dosingapp "medtrack/internal/dosing/application"
	dosing "medtrack/internal/dosing/domain"
	"medtrack/internal/observability/metrics"
)

// ScanIngestHandler accepts NFC scan reports from household readers.
type ScanIngestHandler struct {
	processor *dosingapp.Processor
	logger    *log.Logger
}

// NewScanIngestHandler constructs a scan ingest handler.
func NewScanIngestHandler(processor *dosingapp.Processor, logger *log.Logger) (*ScanIngestHandler, error) {
	if processor == nil {
		return nil, errors.New("scan ingest: nil processor")
	}
	if logger == nil {
		logger = log.Default()
	}
	return &ScanIngestHandler{processor: processor, logger: logger}, nil
}

// ServeHTTP handles POST /ingest/scan.
func (h *ScanIngestHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	start := time.Now()

	body, err := io.ReadAll(r.Body)
	if err != nil {
		metrics.IncIngestError("read_body")
		metrics.ObserveIngest(metrics.ResultError, time.Since(start))
		h.logger.Printf("scan ingest: read body error: %v", err)
		http.Error(w, "read body error", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	var req scanRequest
	if err := json.Unmarshal(body, &req); err != nil {
		metrics.IncIngestError("decode")
		metrics.ObserveIngest(metrics.ResultError, time.Since(start))
		h.logger.Printf("scan ingest: decode error: %v", err)
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}

	scan, err := req.toScan()
	if err != nil {
		metrics.IncIngestError("payload")
		metrics.ObserveIngest(metrics.ResultError, time.Since(start))
		h.logger.Printf("scan ingest: invalid payload: %v", err)
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}

	event, err := h.processor.ProcessScan(r.Context(), scan)
	switch {
	case errors.Is(err, dosing.ErrDuplicateScan):
		// Idempotent ack so readers stop retrying a delivered scan.
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"status": "duplicate_delivery"})
		metrics.ObserveIngest(metrics.ResultSuccess, time.Since(start))
	case errors.Is(err, dosing.ErrUnboundTag):
		metrics.IncIngestError("unbound_tag")
		metrics.ObserveIngest(metrics.ResultError, time.Since(start))
		http.Error(w, "unknown tag", http.StatusUnprocessableEntity)
	case err != nil:
		metrics.IncIngestError("process")
		metrics.ObserveIngest(metrics.ResultError, time.Since(start))
		h.logger.Printf("scan ingest: process error: %v", err)
		http.Error(w, "process error", http.StatusInternalServerError)
	default:
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		_ = json.NewEncoder(w).Encode(event)
		metrics.ObserveIngest(metrics.ResultSuccess, time.Since(start))
	}
}

type scanRequest struct {
	TagID     string `json:"tag_id"`
	TS        int64  `json:"ts"`
	ScannedAt string `json:"scanned_at"`
	DeviceID  string `json:"device_id"`
}

func (r scanRequest) toScan() (dosingapp.Scan, error) {
	if r.TagID == "" {
		return dosingapp.Scan{}, errors.New("missing tag_id")
	}
	at, err := r.timestamp()
	if err != nil {
		return dosingapp.Scan{}, err
	}
	return dosingapp.Scan{TagID: r.TagID, ScannedAt: at, DeviceID: r.DeviceID}, nil
}

func (r scanRequest) timestamp() (time.Time, error) {
	if r.ScannedAt != "" {
		at, err := time.Parse(time.RFC3339, r.ScannedAt)
		if err != nil {
			return time.Time{}, errors.New("scanned_at must be RFC3339")
		}
		return at.UTC(), nil
	}
	if r.TS <= 0 {
		return time.Time{}, errors.New("missing ts or scanned_at")
	}
	// Accept milliseconds or seconds.
	if r.TS > 1_000_000_000_000 {
		return time.UnixMilli(r.TS).UTC(), nil
	}
	return time.Unix(r.TS, 0).UTC(), nil
}

// DoseHandler provides dose history endpoints.
type DoseHandler struct {
	processor   *dosingapp.Processor
	events      dosing.EventRepository
	auditLogger audit.Logger
}

// NewDoseHandler constructs a dose handler.
func NewDoseHandler(processor *dosingapp.Processor, events dosing.EventRepository, auditLogger audit.Logger) (*DoseHandler, error) {
	if processor == nil {
		return nil, errors.New("dose handler: nil processor")
	}
	if events == nil {
		return nil, errors.New("dose handler: nil event repository")
	}
	return &DoseHandler{processor: processor, events: events, auditLogger: auditLogger}, nil
}

// ServeHTTP handles POST/GET /api/v1/doses.
func (h *DoseHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.handlePost(w, r)
	case http.MethodGet:
		h.handleGet(w, r)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *DoseHandler) handlePost(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "read body error", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	var req manualDoseRequest
	if err := json.Unmarshal(body, &req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if req.PersonID == "" || req.MedicationID == "" {
		http.Error(w, "person_id/medication_id required", http.StatusBadRequest)
		return
	}
	at := time.Now().UTC()
	if req.RecordedAt != "" {
		at, err = time.Parse(time.RFC3339, req.RecordedAt)
		if err != nil {
			http.Error(w, "recorded_at must be RFC3339", http.StatusBadRequest)
			return
		}
		at = at.UTC()
	}

	event, err := h.processor.RecordManual(r.Context(), req.PersonID, req.MedicationID, at)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(event)

	h.logAudit(r, "dose.record_manual", event.ID, req.MedicationID)
}

func (h *DoseHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	from, to, err := parseRange(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	events, err := h.events.List(r.Context(), from, to)
	if err != nil {
		http.Error(w, "list doses error", http.StatusInternalServerError)
		return
	}

	personID := r.URL.Query().Get("person_id")
	medicationID := r.URL.Query().Get("medication_id")
	filtered := events[:0]
	for _, event := range events {
		if personID != "" && event.PersonID != personID {
			continue
		}
		if medicationID != "" && event.MedicationID != medicationID {
			continue
		}
		filtered = append(filtered, event)
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(filtered)
}

func (h *DoseHandler) logAudit(r *http.Request, action, resourceID, medicationID string) {
	if h.auditLogger == nil {
		return
	}
	householdID := auth.HouseholdIDFromContext(r.Context())
	if householdID == "" {
		return
	}
	meta, _ := json.Marshal(map[string]any{"medication_id": medicationID})
	_ = h.auditLogger.Log(r.Context(), audit.Entry{
		HouseholdID:  householdID,
		Actor:        auth.SubjectFromContext(r.Context()),
		Role:         string(auth.RoleFromContext(r.Context())),
		Action:       action,
		ResourceType: "dose_event",
		ResourceID:   resourceID,
		Metadata:     meta,
		IP:           audit.ClientIP(r),
		UserAgent:    r.UserAgent(),
	})
}

type manualDoseRequest struct {
	PersonID     string `json:"person_id"`
	MedicationID string `json:"medication_id"`
	RecordedAt   string `json:"recorded_at"`
}

// ReplayHandler re-runs classification over a stored history window.
type ReplayHandler struct {
	processor *dosingapp.Processor
	logger    *log.Logger
}

// NewReplayHandler constructs a replay handler.
func NewReplayHandler(processor *dosingapp.Processor, logger *log.Logger) (*ReplayHandler, error) {
	if processor == nil {
		return nil, errors.New("replay handler: nil processor")
	}
	if logger == nil {
		logger = log.Default()
	}
	return &ReplayHandler{processor: processor, logger: logger}, nil
}

// ServeHTTP handles POST /api/v1/doses/replay.
func (h *ReplayHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req replayRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	from, err := time.Parse(time.RFC3339, req.From)
	if err != nil {
		http.Error(w, "from must be RFC3339", http.StatusBadRequest)
		return
	}
	to, err := time.Parse(time.RFC3339, req.To)
	if err != nil {
		http.Error(w, "to must be RFC3339", http.StatusBadRequest)
		return
	}
	if !to.After(from) {
		http.Error(w, "to must be after from", http.StatusBadRequest)
		return
	}

	events, err := h.processor.Replay(r.Context(), from.UTC(), to.UTC())
	if err != nil {
		h.logger.Printf("dose replay: %v", err)
		http.Error(w, "replay error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(events)
}

type replayRequest struct {
	From string `json:"from"`
	To   string `json:"to"`
}

func parseRange(r *http.Request) (time.Time, time.Time, error) {
	fromValue := r.URL.Query().Get("from")
	toValue := r.URL.Query().Get("to")
	var from, to time.Time
	var err error
	if fromValue != "" {
		if from, err = time.Parse(time.RFC3339, fromValue); err != nil {
			return time.Time{}, time.Time{}, errors.New("from must be RFC3339")
		}
	}
	if toValue != "" {
		if to, err = time.Parse(time.RFC3339, toValue); err != nil {
			return time.Time{}, time.Time{}, errors.New("to must be RFC3339")
		}
	}
	if !from.IsZero() && !to.IsZero() && !to.After(from) {
		return time.Time{}, time.Time{}, errors.New("to must be after from")
	}
	return from.UTC(), to.UTC(), nil
}
