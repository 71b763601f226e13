package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	dosing "medtrack/internal/dosing/domain"
)

const defaultDoseEventsTable = "dose_events"

// EventRepository is a Postgres implementation of the dose-history log.
type EventRepository struct {
	db    *sql.DB
	table string
}

// NewEventRepository constructs a repository.
func NewEventRepository(db *sql.DB, opts ...EventOption) *EventRepository {
	repo := &EventRepository{db: db, table: defaultDoseEventsTable}
	for _, opt := range opts {
		opt(repo)
	}
	return repo
}

// EventOption configures the repository.
type EventOption func(*EventRepository)

// WithEventTable overrides the default table name.
func WithEventTable(table string) EventOption {
	return func(repo *EventRepository) {
		if table != "" {
			repo.table = table
		}
	}
}

// Append inserts an event. The log is append-only; conflicts are rejected.
func (r *EventRepository) Append(ctx context.Context, event *dosing.DoseEvent) error {
	if r == nil || r.db == nil {
		return errors.New("dose event repo: nil db")
	}
	if event == nil {
		return errors.New("dose event repo: nil event")
	}
	if err := event.Validate(); err != nil {
		return err
	}

	query := fmt.Sprintf(`
INSERT INTO %s (
	id,
	person_id,
	medication_id,
	tag_id,
	source,
	classification,
	expected_at,
	recorded_at,
	units
) VALUES (
	$1, $2, $3, $4, $5, $6, $7, $8, $9
)`, r.table)

	var expected sql.NullTime
	if !event.ExpectedAt.IsZero() {
		expected = sql.NullTime{Time: event.ExpectedAt.UTC(), Valid: true}
	}

	_, err := r.db.ExecContext(
		ctx,
		query,
		event.ID,
		event.PersonID,
		event.MedicationID,
		event.TagID,
		string(event.Source),
		string(event.Classification),
		expected,
		event.RecordedAt.UTC(),
		event.Units,
	)
	return err
}

// LastAccepted returns the most recent accepted event for a pair, or nil.
func (r *EventRepository) LastAccepted(ctx context.Context, personID, medicationID string) (*dosing.DoseEvent, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("dose event repo: nil db")
	}
	if personID == "" || medicationID == "" {
		return nil, errors.New("dose event repo: empty pair")
	}

	query := fmt.Sprintf(`
SELECT id, person_id, medication_id, tag_id, source, classification, expected_at, recorded_at, units
FROM %s
WHERE person_id = $1 AND medication_id = $2 AND classification <> 'duplicate'
ORDER BY recorded_at DESC
LIMIT 1`, r.table)

	event, err := scanEvent(r.db.QueryRowContext(ctx, query, personID, medicationID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return event, nil
}

// ListAcceptedSince returns accepted pair events at or after since.
func (r *EventRepository) ListAcceptedSince(ctx context.Context, personID, medicationID string, since time.Time) ([]dosing.DoseEvent, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("dose event repo: nil db")
	}

	query := fmt.Sprintf(`
SELECT id, person_id, medication_id, tag_id, source, classification, expected_at, recorded_at, units
FROM %s
WHERE person_id = $1 AND medication_id = $2 AND classification <> 'duplicate' AND recorded_at >= $3
ORDER BY recorded_at ASC`, r.table)

	rows, err := r.db.QueryContext(ctx, query, personID, medicationID, since.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectEvents(rows)
}

// List returns all events inside [from, to), oldest first.
func (r *EventRepository) List(ctx context.Context, from, to time.Time) ([]dosing.DoseEvent, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("dose event repo: nil db")
	}
	if to.IsZero() {
		to = time.Now().UTC().Add(24 * time.Hour)
	}

	query := fmt.Sprintf(`
SELECT id, person_id, medication_id, tag_id, source, classification, expected_at, recorded_at, units
FROM %s
WHERE recorded_at >= $1 AND recorded_at < $2
ORDER BY recorded_at ASC`, r.table)

	rows, err := r.db.QueryContext(ctx, query, from.UTC(), to.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectEvents(rows)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (*dosing.DoseEvent, error) {
	var event dosing.DoseEvent
	var source, classification string
	var expected sql.NullTime
	if err := row.Scan(
		&event.ID,
		&event.PersonID,
		&event.MedicationID,
		&event.TagID,
		&source,
		&classification,
		&expected,
		&event.RecordedAt,
		&event.Units,
	); err != nil {
		return nil, err
	}
	event.Source = dosing.Source(source)
	event.Classification = dosing.Classification(classification)
	if expected.Valid {
		event.ExpectedAt = expected.Time.UTC()
	}
	event.RecordedAt = event.RecordedAt.UTC()
	return &event, nil
}

func collectEvents(rows *sql.Rows) ([]dosing.DoseEvent, error) {
	var out []dosing.DoseEvent
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *event)
	}
	return out, rows.Err()
}
