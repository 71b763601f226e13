package memory

import (
	"context"
	"errors"
	"sort"
	"sync"

	inventory "medtrack/internal/inventory/domain"
)

// InventoryRepository is an in-memory repository for demo/testing.
type InventoryRepository struct {
	mu   sync.RWMutex
	data map[string]inventory.Record
}

// NewInventoryRepository constructs a repository.
func NewInventoryRepository() *InventoryRepository {
	return &InventoryRepository{data: make(map[string]inventory.Record)}
}

// Get loads a record by medication id.
func (r *InventoryRepository) Get(ctx context.Context, medicationID string) (*inventory.Record, error) {
	_ = ctx
	if medicationID == "" {
		return nil, errors.New("inventory repo: empty medication id")
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	record, ok := r.data[medicationID]
	if !ok {
		return nil, inventory.ErrNotFound
	}
	copy := record
	return &copy, nil
}

// Save upserts a record.
func (r *InventoryRepository) Save(ctx context.Context, record *inventory.Record) error {
	_ = ctx
	if record == nil {
		return errors.New("inventory repo: nil record")
	}
	if record.MedicationID == "" {
		return errors.New("inventory repo: empty medication id")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.data[record.MedicationID] = *record
	return nil
}

// List returns all records ordered by medication id.
func (r *InventoryRepository) List(ctx context.Context) ([]inventory.Record, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]inventory.Record, 0, len(r.data))
	for _, record := range r.data {
		out = append(out, record)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MedicationID < out[j].MedicationID })
	return out, nil
}
