package apihttp

import (
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"time"

	dosing "medtrack/internal/dosing/domain"
	dosinginterfaces "medtrack/internal/dosing/interfaces"
	household "medtrack/internal/household/domain"
	inventory "medtrack/internal/inventory/domain"
	"medtrack/internal/observability/metrics"
	schedule "medtrack/internal/schedule/domain"
)

const timeLayout = time.RFC3339

// DiagnosticsHandler dumps runtime state for troubleshooting. Tag ids are
// redacted so the dump can be shared.
type DiagnosticsHandler struct {
	householdID string
	people      map[string]household.Person
	meds        map[string]household.Medication
	schedules   []schedule.Schedule
	bindings    []household.TagBinding
	inventory   inventory.Repository
	events      dosing.EventRepository
	started     time.Time
}

// NewDiagnosticsHandler constructs a DiagnosticsHandler.
func NewDiagnosticsHandler(
	householdID string,
	people map[string]household.Person,
	meds map[string]household.Medication,
	schedules []schedule.Schedule,
	bindings []household.TagBinding,
	inventoryRepo inventory.Repository,
	events dosing.EventRepository,
) *DiagnosticsHandler {
	return &DiagnosticsHandler{
		householdID: householdID,
		people:      people,
		meds:        meds,
		schedules:   schedules,
		bindings:    bindings,
		inventory:   inventoryRepo,
		events:      events,
		started:     time.Now().UTC(),
	}
}

// ServeHTTP handles GET /api/v1/diagnostics.
func (h *DiagnosticsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if h == nil {
		http.Error(w, "server not ready", http.StatusServiceUnavailable)
		return
	}

	now := time.Now().UTC()
	report := diagnosticsReport{
		HouseholdID:   h.householdID,
		Now:           now,
		UptimeSeconds: int64(now.Sub(h.started).Seconds()),
	}

	for _, person := range h.people {
		report.People = append(report.People, person)
	}
	sort.Slice(report.People, func(i, j int) bool { return report.People[i].ID < report.People[j].ID })

	for _, med := range h.meds {
		report.Medications = append(report.Medications, medicationSummary{
			ID:                med.ID,
			Name:              med.Name,
			DoseUnits:         med.DoseUnits,
			LowStockThreshold: med.LowStockThreshold,
			RefillsRemaining:  med.RefillsRemaining,
		})
	}
	sort.Slice(report.Medications, func(i, j int) bool { return report.Medications[i].ID < report.Medications[j].ID })

	for _, sched := range h.schedules {
		summary := scheduleSummary{
			PersonID:     sched.PersonID,
			MedicationID: sched.MedicationID,
			Kind:         string(sched.Kind),
			Grace:        sched.Grace.String(),
			MinSpacing:   sched.MinSpacing.String(),
		}
		for _, tod := range sched.Times {
			summary.Times = append(summary.Times, tod.String())
		}
		if sched.Every > 0 {
			summary.Every = sched.Every.String()
		}
		report.Schedules = append(report.Schedules, summary)
	}

	for _, binding := range h.bindings {
		report.Bindings = append(report.Bindings, bindingSummary{
			TagID:        redactTag(binding.TagID),
			PersonID:     binding.PersonID,
			MedicationID: binding.MedicationID,
		})
	}

	if h.inventory != nil {
		records, err := h.inventory.List(r.Context())
		if err == nil {
			report.Inventory = records
		} else {
			report.Errors = append(report.Errors, "inventory: "+err.Error())
		}
	}

	if h.events != nil {
		from := now.AddDate(0, 0, -7)
		events, err := h.events.List(r.Context(), from, now)
		if err == nil {
			for _, sched := range h.schedules {
				report.Adherence = append(report.Adherence, dosing.DailyAdherence(sched, events)...)
			}
		} else {
			report.Errors = append(report.Errors, "doses: "+err.Error())
		}
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(report)
}

type diagnosticsReport struct {
	HouseholdID   string                `json:"household_id"`
	Now           time.Time             `json:"now"`
	UptimeSeconds int64                 `json:"uptime_seconds"`
	People        []household.Person    `json:"people"`
	Medications   []medicationSummary   `json:"medications"`
	Schedules     []scheduleSummary     `json:"schedules"`
	Bindings      []bindingSummary      `json:"bindings"`
	Inventory     []inventory.Record    `json:"inventory"`
	Adherence     []dosing.DayAdherence `json:"adherence_last_7d"`
	Errors        []string              `json:"errors,omitempty"`
}

type medicationSummary struct {
	ID                string `json:"id"`
	Name              string `json:"name"`
	DoseUnits         int    `json:"dose_units"`
	LowStockThreshold int    `json:"low_stock_threshold"`
	RefillsRemaining  int    `json:"refills_remaining"`
}

type scheduleSummary struct {
	PersonID     string   `json:"person_id"`
	MedicationID string   `json:"medication_id"`
	Kind         string   `json:"kind"`
	Times        []string `json:"times,omitempty"`
	Every        string   `json:"every,omitempty"`
	Grace        string   `json:"grace"`
	MinSpacing   string   `json:"min_spacing"`
}

type bindingSummary struct {
	TagID        string `json:"tag_id"`
	PersonID     string `json:"person_id"`
	MedicationID string `json:"medication_id"`
}

// ExportDosesXLSXHandler serves dose history workbook exports.
type ExportDosesXLSXHandler struct {
	events dosing.EventRepository
	people map[string]household.Person
	meds   map[string]household.Medication
}

// NewExportDosesXLSXHandler constructs an ExportDosesXLSXHandler.
func NewExportDosesXLSXHandler(events dosing.EventRepository, people map[string]household.Person, meds map[string]household.Medication) *ExportDosesXLSXHandler {
	return &ExportDosesXLSXHandler{events: events, people: people, meds: meds}
}

// ServeHTTP handles GET /api/v1/exports/doses.xlsx.
func (h *ExportDosesXLSXHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if h == nil || h.events == nil {
		http.Error(w, "server not ready", http.StatusServiceUnavailable)
		return
	}
	start := time.Now()

	from, to, err := parseOptionalRange(r, 30)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	events, err := h.events.List(r.Context(), from, to)
	if err != nil {
		metrics.ObserveExport("xlsx", metrics.ResultError, time.Since(start))
		http.Error(w, "list doses error", http.StatusInternalServerError)
		return
	}

	data, err := dosinginterfaces.BuildDoseHistoryXLSX(events, h.people, h.meds)
	if err != nil {
		metrics.ObserveExport("xlsx", metrics.ResultError, time.Since(start))
		http.Error(w, "build workbook error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="doses.xlsx"`)
	_, _ = w.Write(data)
	metrics.ObserveExport("xlsx", metrics.ResultSuccess, time.Since(start))
}

// AdherencePDFHandler serves the adherence report.
type AdherencePDFHandler struct {
	events    dosing.EventRepository
	schedules []schedule.Schedule
	people    map[string]household.Person
	meds      map[string]household.Medication
}

// NewAdherencePDFHandler constructs an AdherencePDFHandler.
func NewAdherencePDFHandler(events dosing.EventRepository, schedules []schedule.Schedule, people map[string]household.Person, meds map[string]household.Medication) *AdherencePDFHandler {
	return &AdherencePDFHandler{events: events, schedules: schedules, people: people, meds: meds}
}

// ServeHTTP handles GET /api/v1/reports/adherence.pdf.
func (h *AdherencePDFHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if h == nil || h.events == nil {
		http.Error(w, "server not ready", http.StatusServiceUnavailable)
		return
	}
	start := time.Now()

	from, to, err := parseOptionalRange(r, 30)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	events, err := h.events.List(r.Context(), from, to)
	if err != nil {
		metrics.ObserveExport("pdf", metrics.ResultError, time.Since(start))
		http.Error(w, "list doses error", http.StatusInternalServerError)
		return
	}

	report := dosinginterfaces.AdherenceReport{
		From:      from,
		To:        to,
		Generated: time.Now().UTC(),
	}
	for _, sched := range h.schedules {
		report.Sections = append(report.Sections, dosinginterfaces.AdherenceSection{
			Schedule: sched,
			Person:   h.people[sched.PersonID],
			Med:      h.meds[sched.MedicationID],
			Days:     dosing.DailyAdherence(sched, events),
		})
	}

	data, err := dosinginterfaces.BuildAdherencePDF(report)
	if err != nil {
		metrics.ObserveExport("pdf", metrics.ResultError, time.Since(start))
		http.Error(w, "build report error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `attachment; filename="adherence.pdf"`)
	_, _ = w.Write(data)
	metrics.ObserveExport("pdf", metrics.ResultSuccess, time.Since(start))
}

func parseOptionalRange(r *http.Request, defaultDays int) (time.Time, time.Time, error) {
	now := time.Now().UTC()
	from := now.AddDate(0, 0, -defaultDays)
	to := now

	if value := r.URL.Query().Get("from"); value != "" {
		parsed, err := time.Parse(timeLayout, value)
		if err != nil {
			return time.Time{}, time.Time{}, errors.New("from must be RFC3339")
		}
		from = parsed.UTC()
	}
	if value := r.URL.Query().Get("to"); value != "" {
		parsed, err := time.Parse(timeLayout, value)
		if err != nil {
			return time.Time{}, time.Time{}, errors.New("to must be RFC3339")
		}
		to = parsed.UTC()
	}
	if !to.After(from) {
		return time.Time{}, time.Time{}, errors.New("to must be after from")
	}
	return from, to, nil
}

func redactTag(tagID string) string {
	if len(tagID) <= 4 {
		return "****"
	}
	return "****" + tagID[len(tagID)-4:]
}
