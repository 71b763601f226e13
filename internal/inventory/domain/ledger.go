package inventory

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	household "medtrack/internal/household/domain"
	"medtrack/internal/observability/metrics"
)

// Record tracks remaining units for one medication.
type Record struct {
	MedicationID string    `json:"medication_id"`
	Count        int       `json:"count"`
	Shortfall    int       `json:"shortfall"` // units that could not be decremented
	LastUpdated  time.Time `json:"last_updated"`
}

// Repository persists inventory records.
type Repository interface {
	Get(ctx context.Context, medicationID string) (*Record, error)
	Save(ctx context.Context, record *Record) error
	List(ctx context.Context) ([]Record, error)
}

// Clock provides time.
type Clock interface {
	Now() time.Time
}

// Ledger applies inventory mutations and derives stock signals.
type Ledger struct {
	repo   Repository
	meds   map[string]household.Medication
	clock  Clock
	logger *log.Logger
}

// LedgerOption customizes the ledger.
type LedgerOption func(*Ledger)

// WithClock overrides the default clock.
func WithClock(clock Clock) LedgerOption {
	return func(l *Ledger) {
		if clock != nil {
			l.clock = clock
		}
	}
}

// NewLedger constructs an inventory ledger.
func NewLedger(repo Repository, meds map[string]household.Medication, logger *log.Logger, opts ...LedgerOption) (*Ledger, error) {
	if repo == nil {
		return nil, errors.New("inventory: nil repository")
	}
	ledger := &Ledger{
		repo:   repo,
		meds:   meds,
		clock:  systemClock{},
		logger: logger,
	}
	for _, opt := range opts {
		opt(ledger)
	}
	return ledger, nil
}

// Seed initializes a record when none exists yet.
func (l *Ledger) Seed(ctx context.Context, medicationID string, units int) error {
	if l == nil {
		return errors.New("inventory: nil ledger")
	}
	if _, err := l.repo.Get(ctx, medicationID); err == nil {
		return nil
	} else if !errors.Is(err, ErrNotFound) {
		return err
	}
	if units < 0 {
		units = 0
	}
	return l.repo.Save(ctx, &Record{
		MedicationID: medicationID,
		Count:        units,
		LastUpdated:  l.clock.Now().UTC(),
	})
}

// Decrement consumes units, saturating at zero. Dosing must never fail on
// bookkeeping, so a shortfall is recorded instead of an error.
func (l *Ledger) Decrement(ctx context.Context, medicationID string, units int) (int, error) {
	if l == nil {
		return 0, errors.New("inventory: nil ledger")
	}
	if medicationID == "" {
		return 0, errors.New("inventory: empty medication id")
	}
	if units <= 0 {
		return 0, fmt.Errorf("inventory: non-positive units %d", units)
	}
	record, err := l.load(ctx, medicationID)
	if err != nil {
		return 0, err
	}
	if record.Count < units {
		shortfall := units - record.Count
		record.Shortfall += shortfall
		metrics.AddInventoryShortfall(shortfall)
		if l.logger != nil {
			l.logger.Printf("inventory underflow: medication=%s requested=%d available=%d", medicationID, units, record.Count)
		}
		record.Count = 0
	} else {
		record.Count -= units
	}
	record.LastUpdated = l.clock.Now().UTC()
	if err := l.repo.Save(ctx, record); err != nil {
		return 0, err
	}
	return record.Count, nil
}

// Refill adds units to the current count.
func (l *Ledger) Refill(ctx context.Context, medicationID string, units int) (int, error) {
	if l == nil {
		return 0, errors.New("inventory: nil ledger")
	}
	if units <= 0 {
		return 0, fmt.Errorf("inventory: non-positive refill %d", units)
	}
	record, err := l.load(ctx, medicationID)
	if err != nil {
		return 0, err
	}
	record.Count += units
	record.LastUpdated = l.clock.Now().UTC()
	if err := l.repo.Save(ctx, record); err != nil {
		return 0, err
	}
	return record.Count, nil
}

// SetCount replaces the current count.
func (l *Ledger) SetCount(ctx context.Context, medicationID string, units int) (int, error) {
	if l == nil {
		return 0, errors.New("inventory: nil ledger")
	}
	if units < 0 {
		return 0, fmt.Errorf("inventory: negative count %d", units)
	}
	record, err := l.load(ctx, medicationID)
	if err != nil {
		return 0, err
	}
	record.Count = units
	record.LastUpdated = l.clock.Now().UTC()
	if err := l.repo.Save(ctx, record); err != nil {
		return 0, err
	}
	return record.Count, nil
}

// Count returns the current unit count.
func (l *Ledger) Count(ctx context.Context, medicationID string) (int, error) {
	record, err := l.load(ctx, medicationID)
	if err != nil {
		return 0, err
	}
	return record.Count, nil
}

// IsLow compares the current count against the medication's threshold.
func (l *Ledger) IsLow(ctx context.Context, medicationID string) (bool, error) {
	med, ok := l.meds[medicationID]
	if !ok {
		return false, fmt.Errorf("inventory: unknown medication %s", medicationID)
	}
	count, err := l.Count(ctx, medicationID)
	if err != nil {
		return false, err
	}
	return count <= med.LowStockThreshold, nil
}

// DepletionForecast projects the date the inventory reaches zero at the
// given average daily consumption. ok is false when the rate is zero.
func (l *Ledger) DepletionForecast(ctx context.Context, medicationID string, dailyRate float64) (time.Time, bool, error) {
	if dailyRate <= 0 {
		return time.Time{}, false, nil
	}
	count, err := l.Count(ctx, medicationID)
	if err != nil {
		return time.Time{}, false, err
	}
	days := float64(count) / dailyRate
	forecast := l.clock.Now().UTC().Add(time.Duration(days * float64(24*time.Hour)))
	return forecast, true, nil
}

func (l *Ledger) load(ctx context.Context, medicationID string) (*Record, error) {
	record, err := l.repo.Get(ctx, medicationID)
	if err == nil {
		return record, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	return &Record{MedicationID: medicationID}, nil
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }
