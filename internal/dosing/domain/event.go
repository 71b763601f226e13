package dosing

import (
	"context"
	"errors"
	"time"
)

// Classification is the reconciliation outcome for one dose event.
type Classification string

const (
	ClassificationOnTime     Classification = "on_time"
	ClassificationEarly      Classification = "early"
	ClassificationLate       Classification = "late"
	ClassificationDuplicate  Classification = "duplicate"
	ClassificationUnexpected Classification = "unexpected"
)

// Accepted reports whether the classification consumed inventory.
func (c Classification) Accepted() bool {
	switch c {
	case ClassificationOnTime, ClassificationEarly, ClassificationLate, ClassificationUnexpected:
		return true
	}
	return false
}

// Source identifies how a dose event entered the system.
type Source string

const (
	SourceScan   Source = "scan"
	SourceManual Source = "manual"
)

// DoseEvent is an immutable dose-history record.
type DoseEvent struct {
	ID             string         `json:"id"`
	PersonID       string         `json:"person_id"`
	MedicationID   string         `json:"medication_id"`
	TagID          string         `json:"tag_id,omitempty"`
	Source         Source         `json:"source"`
	Classification Classification `json:"classification"`
	ExpectedAt     time.Time      `json:"expected_at,omitempty"` // zero for unexpected doses
	RecordedAt     time.Time      `json:"recorded_at"`
	Units          int            `json:"units"` // consumed units, zero for duplicates
}

// Validate checks event invariants.
func (e DoseEvent) Validate() error {
	if e.ID == "" {
		return errors.New("dose event: empty id")
	}
	if e.PersonID == "" {
		return errors.New("dose event: empty person id")
	}
	if e.MedicationID == "" {
		return errors.New("dose event: empty medication id")
	}
	if e.RecordedAt.IsZero() {
		return errors.New("dose event: zero recorded time")
	}
	if e.Classification == "" {
		return errors.New("dose event: empty classification")
	}
	if e.Units < 0 {
		return errors.New("dose event: negative units")
	}
	return nil
}

// Accepted reports whether the event consumed inventory.
func (e DoseEvent) Accepted() bool {
	return e.Classification.Accepted()
}

// DefaultDedupResolution is the scan source timestamp resolution.
const DefaultDedupResolution = time.Second

// DedupKey identifies one physical scan for re-delivery suppression.
// Two deliveries of the same scan share a key; two distinct scans of the
// same tag inside the business duplicate window do not.
func DedupKey(tagID string, at time.Time, resolution time.Duration) string {
	if resolution <= 0 {
		resolution = DefaultDedupResolution
	}
	return tagID + "|" + at.UTC().Truncate(resolution).Format(time.RFC3339Nano)
}

// EventRepository is the append-only dose-history log.
type EventRepository interface {
	Append(ctx context.Context, event *DoseEvent) error
	LastAccepted(ctx context.Context, personID, medicationID string) (*DoseEvent, error)
	ListAcceptedSince(ctx context.Context, personID, medicationID string, since time.Time) ([]DoseEvent, error)
	List(ctx context.Context, from, to time.Time) ([]DoseEvent, error)
}
