package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	reminderapp "medtrack/internal/reminder/application"
)

// AlertsHandler serves the current outstanding alerts.
type AlertsHandler struct {
	scheduler *reminderapp.Scheduler
}

// NewAlertsHandler constructs an alerts handler.
func NewAlertsHandler(scheduler *reminderapp.Scheduler) (*AlertsHandler, error) {
	if scheduler == nil {
		return nil, errors.New("alerts handler: nil scheduler")
	}
	return &AlertsHandler{scheduler: scheduler}, nil
}

// ServeHTTP handles GET /api/v1/alerts. Alerts are recomputed on demand and
// bypass delivery cooldowns.
func (h *AlertsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	alerts, err := h.scheduler.Evaluate(r.Context(), time.Now().UTC())
	if err != nil {
		http.Error(w, "evaluate alerts error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(alerts)
}
