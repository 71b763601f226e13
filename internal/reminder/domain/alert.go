package reminder

import (
	"context"
	"errors"
	"time"
)

// Kind identifies the alert category.
type Kind string

const (
	KindMissedDose     Kind = "missed_dose"
	KindDuplicateDose  Kind = "duplicate_dose"
	KindUnexpectedDose Kind = "unexpected_dose"
	KindLowInventory   Kind = "low_inventory"
	KindRenewalDue     Kind = "renewal_due"
)

// Severity grades an alert.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Alert is an ephemeral derived value. It is recomputed on every scheduler
// sweep and discarded after delivery, never persisted.
type Alert struct {
	Kind         Kind      `json:"kind"`
	PersonID     string    `json:"person_id,omitempty"`
	MedicationID string    `json:"medication_id"`
	Severity     Severity  `json:"severity"`
	Message      string    `json:"message"`
	GeneratedAt  time.Time `json:"generated_at"`
	ForecastAt   time.Time `json:"forecast_at,omitempty"` // depletion forecast, low-inventory only
}

// Validate checks alert invariants.
func (a Alert) Validate() error {
	if a.Kind == "" {
		return errors.New("alert: empty kind")
	}
	if a.MedicationID == "" {
		return errors.New("alert: empty medication id")
	}
	if a.Severity == "" {
		return errors.New("alert: empty severity")
	}
	if a.Message == "" {
		return errors.New("alert: empty message")
	}
	return nil
}

// Key identifies the (kind, subject) pair for re-notify suppression.
func (a Alert) Key() string {
	return string(a.Kind) + "|" + a.PersonID + "|" + a.MedicationID
}

// Sink receives alerts for delivery.
type Sink interface {
	Deliver(ctx context.Context, alert Alert) error
}
