package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	inventory "medtrack/internal/inventory/domain"
)

const defaultInventoryTable = "inventory"

// InventoryRepository is a Postgres implementation for inventory records.
type InventoryRepository struct {
	db    *sql.DB
	table string
}

// NewInventoryRepository constructs a repository.
func NewInventoryRepository(db *sql.DB, opts ...InventoryOption) *InventoryRepository {
	repo := &InventoryRepository{db: db, table: defaultInventoryTable}
	for _, opt := range opts {
		opt(repo)
	}
	return repo
}

// InventoryOption configures the repository.
type InventoryOption func(*InventoryRepository)

// WithInventoryTable overrides the default table name.
func WithInventoryTable(table string) InventoryOption {
	return func(repo *InventoryRepository) {
		if table != "" {
			repo.table = table
		}
	}
}

// Get loads a record by medication id.
func (r *InventoryRepository) Get(ctx context.Context, medicationID string) (*inventory.Record, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("inventory repo: nil db")
	}
	if medicationID == "" {
		return nil, errors.New("inventory repo: empty medication id")
	}

	query := fmt.Sprintf(`
SELECT medication_id, count, shortfall, last_updated
FROM %s
WHERE medication_id = $1
LIMIT 1`, r.table)

	var record inventory.Record
	if err := r.db.QueryRowContext(ctx, query, medicationID).Scan(
		&record.MedicationID,
		&record.Count,
		&record.Shortfall,
		&record.LastUpdated,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, inventory.ErrNotFound
		}
		return nil, err
	}
	record.LastUpdated = record.LastUpdated.UTC()
	return &record, nil
}

// Save upserts a record.
func (r *InventoryRepository) Save(ctx context.Context, record *inventory.Record) error {
	if r == nil || r.db == nil {
		return errors.New("inventory repo: nil db")
	}
	if record == nil {
		return errors.New("inventory repo: nil record")
	}
	if record.MedicationID == "" {
		return errors.New("inventory repo: empty medication id")
	}

	query := fmt.Sprintf(`
INSERT INTO %s (
	medication_id,
	count,
	shortfall,
	last_updated
) VALUES (
	$1, $2, $3, $4
)
ON CONFLICT (medication_id)
DO UPDATE SET
	count = EXCLUDED.count,
	shortfall = EXCLUDED.shortfall,
	last_updated = EXCLUDED.last_updated`, r.table)

	_, err := r.db.ExecContext(
		ctx,
		query,
		record.MedicationID,
		record.Count,
		record.Shortfall,
		record.LastUpdated.UTC(),
	)
	return err
}

// List returns all records ordered by medication id.
func (r *InventoryRepository) List(ctx context.Context) ([]inventory.Record, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("inventory repo: nil db")
	}

	query := fmt.Sprintf(`
SELECT medication_id, count, shortfall, last_updated
FROM %s
ORDER BY medication_id`, r.table)

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []inventory.Record
	for rows.Next() {
		var record inventory.Record
		if err := rows.Scan(
			&record.MedicationID,
			&record.Count,
			&record.Shortfall,
			&record.LastUpdated,
		); err != nil {
			return nil, err
		}
		record.LastUpdated = record.LastUpdated.UTC()
		out = append(out, record)
	}
	return out, rows.Err()
}
