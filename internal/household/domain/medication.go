package household

import (
	"errors"
	"time"
)

// Medication describes one tracked medication and its stock parameters.
type Medication struct {
	ID                string        `json:"id"`
	Name              string        `json:"name"`
	DoseUnits         int           `json:"dose_units"`          // units consumed per dose
	UnitsPerContainer int           `json:"units_per_container"` // container size for refills
	LowStockThreshold int           `json:"low_stock_threshold"` // units
	RefillsRemaining  int           `json:"refills_remaining"`
	RenewalInterval   time.Duration `json:"renewal_interval,omitempty"` // zero disables renewal reminders
	LastRenewal       time.Time     `json:"last_renewal,omitempty"`
}

// Validate checks medication invariants.
func (m Medication) Validate() error {
	if m.ID == "" {
		return errors.New("medication: empty id")
	}
	if m.Name == "" {
		return errors.New("medication: empty name")
	}
	if m.DoseUnits <= 0 {
		return errors.New("medication: dose units must be positive")
	}
	if m.UnitsPerContainer < 0 {
		return errors.New("medication: negative container size")
	}
	if m.LowStockThreshold < 0 {
		return errors.New("medication: negative low stock threshold")
	}
	if m.RefillsRemaining < 0 {
		return errors.New("medication: negative refills remaining")
	}
	if m.RenewalInterval < 0 {
		return errors.New("medication: negative renewal interval")
	}
	if m.RenewalInterval > 0 && m.LastRenewal.IsZero() {
		return errors.New("medication: renewal interval without last renewal date")
	}
	return nil
}

// RenewalDue reports whether a prescription renewal reminder is due at the
// given instant, using the configured lead time.
func (m Medication) RenewalDue(now time.Time, lead time.Duration) bool {
	if m.RenewalInterval <= 0 || m.LastRenewal.IsZero() {
		return false
	}
	due := m.LastRenewal.Add(m.RenewalInterval - lead)
	return !now.Before(due)
}
