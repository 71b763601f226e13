package events

import "time"

// DoseRecorded is raised after a dose event has been appended to the
// dose-history log, including rejected duplicates.
type DoseRecorded struct {
	DoseEventID    string    `json:"dose_event_id"`
	PersonID       string    `json:"person_id"`
	MedicationID   string    `json:"medication_id"`
	Classification string    `json:"classification"`
	Units          int       `json:"units"`
	RecordedAt     time.Time `json:"recorded_at"`
	OccurredAt     time.Time `json:"occurred_at"`
}

// InventoryAdjusted is raised after the ledger count changed.
type InventoryAdjusted struct {
	MedicationID string    `json:"medication_id"`
	Delta        int       `json:"delta"`
	Remaining    int       `json:"remaining"`
	Reason       string    `json:"reason"`
	OccurredAt   time.Time `json:"occurred_at"`
}
