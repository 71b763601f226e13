package application

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	dosing "medtrack/internal/dosing/domain"
	"medtrack/internal/dosing/application/events"
	"medtrack/internal/eventing"
	household "medtrack/internal/household/domain"
	inventory "medtrack/internal/inventory/domain"
	"medtrack/internal/observability/metrics"
	schedule "medtrack/internal/schedule/domain"
)

// ScanDedupConsumer is the processed-store consumer name under which
// scan re-delivery keys are recorded.
const ScanDedupConsumer = "scan-ingest"

const (
	dedupConsumer = ScanDedupConsumer

	defaultPersistTimeout = 5 * time.Second
)

// Publisher publishes application events.
type Publisher interface {
	Publish(ctx context.Context, event any) error
}

// Clock provides time.
type Clock interface {
	Now() time.Time
}

// Scan is one raw NFC scan delivered by a reader.
type Scan struct {
	TagID     string    `json:"tag_id"`
	ScannedAt time.Time `json:"scanned_at"`
	DeviceID  string    `json:"device_id,omitempty"`
}

// Processor reconciles incoming dose events against schedules and inventory.
// All classify-and-apply sequences are serialized by a single-writer lock.
type Processor struct {
	mu sync.Mutex

	resolver  household.TagResolver
	schedules map[string]schedule.Schedule
	meds      map[string]household.Medication
	events    dosing.EventRepository
	ledger    *inventory.Ledger
	dedup     eventing.ProcessedStore
	publisher Publisher
	clock     Clock
	logger    *log.Logger

	dedupResolution time.Duration
	persistTimeout  time.Duration
}

// ProcessorOption customizes the processor.
type ProcessorOption func(*Processor)

// WithClock assigns a clock.
func WithClock(clock Clock) ProcessorOption {
	return func(p *Processor) {
		if clock != nil {
			p.clock = clock
		}
	}
}

// WithPublisher assigns an event publisher.
func WithPublisher(publisher Publisher) ProcessorOption {
	return func(p *Processor) {
		p.publisher = publisher
	}
}

// WithDedupStore assigns the scan re-delivery suppression store.
func WithDedupStore(store eventing.ProcessedStore) ProcessorOption {
	return func(p *Processor) {
		p.dedup = store
	}
}

// WithDedupResolution overrides the scan timestamp resolution.
func WithDedupResolution(resolution time.Duration) ProcessorOption {
	return func(p *Processor) {
		if resolution > 0 {
			p.dedupResolution = resolution
		}
	}
}

// WithPersistTimeout overrides the bound on repository and ledger calls.
func WithPersistTimeout(timeout time.Duration) ProcessorOption {
	return func(p *Processor) {
		if timeout > 0 {
			p.persistTimeout = timeout
		}
	}
}

// WithLogger assigns a logger.
func WithLogger(logger *log.Logger) ProcessorOption {
	return func(p *Processor) {
		p.logger = logger
	}
}

// NewProcessor constructs a dose event processor.
func NewProcessor(
	resolver household.TagResolver,
	schedules []schedule.Schedule,
	meds map[string]household.Medication,
	eventRepo dosing.EventRepository,
	ledger *inventory.Ledger,
	opts ...ProcessorOption,
) (*Processor, error) {
	if resolver == nil {
		return nil, errors.New("dosing: nil tag resolver")
	}
	if eventRepo == nil {
		return nil, errors.New("dosing: nil event repository")
	}
	if ledger == nil {
		return nil, errors.New("dosing: nil inventory ledger")
	}

	byPair := make(map[string]schedule.Schedule, len(schedules))
	for _, sched := range schedules {
		if err := sched.Validate(); err != nil {
			return nil, err
		}
		byPair[sched.PairKey()] = sched
	}

	processor := &Processor{
		resolver:        resolver,
		schedules:       byPair,
		meds:            meds,
		events:          eventRepo,
		ledger:          ledger,
		clock:           systemClock{},
		dedupResolution: dosing.DefaultDedupResolution,
		persistTimeout:  defaultPersistTimeout,
	}
	for _, opt := range opts {
		opt(processor)
	}
	return processor, nil
}

// ProcessScan resolves, dedups, classifies and applies one raw scan.
func (p *Processor) ProcessScan(ctx context.Context, scan Scan) (*dosing.DoseEvent, error) {
	if p == nil {
		return nil, errors.New("dosing: nil processor")
	}
	if scan.TagID == "" {
		return nil, errors.New("dosing: empty tag id")
	}
	at := scan.ScannedAt
	if at.IsZero() {
		at = p.clock.Now()
	}
	at = at.UTC()

	ctx, cancel := p.persistContext(ctx)
	defer cancel()

	binding, ok := p.resolver.Resolve(scan.TagID)
	if !ok {
		if p.logger != nil {
			p.logger.Printf("scan rejected: unbound tag %s", redactTag(scan.TagID))
		}
		return nil, fmt.Errorf("%w: %s", dosing.ErrUnboundTag, scan.TagID)
	}

	dedupKey := dosing.DedupKey(scan.TagID, at, p.dedupResolution)
	if p.dedup != nil {
		seen, err := p.dedup.HasProcessed(ctx, dedupKey, dedupConsumer)
		if err != nil {
			return nil, err
		}
		if seen {
			return nil, dosing.ErrDuplicateScan
		}
	}

	event, err := p.record(ctx, binding.PersonID, binding.MedicationID, scan.TagID, dosing.SourceScan, at)
	if err != nil {
		return nil, err
	}

	// Marked only after the log append succeeded, so a failed event stays
	// retryable under the same dedup key.
	if p.dedup != nil {
		if err := p.dedup.MarkProcessed(ctx, dedupKey, dedupConsumer); err != nil && p.logger != nil {
			p.logger.Printf("dedup mark failed for tag %s: %v", redactTag(scan.TagID), err)
		}
	}
	return event, nil
}

// RecordManual appends a caregiver-entered dose for a known pair.
func (p *Processor) RecordManual(ctx context.Context, personID, medicationID string, at time.Time) (*dosing.DoseEvent, error) {
	if p == nil {
		return nil, errors.New("dosing: nil processor")
	}
	if personID == "" || medicationID == "" {
		return nil, errors.New("dosing: empty person or medication id")
	}
	if _, ok := p.meds[medicationID]; !ok {
		return nil, fmt.Errorf("dosing: unknown medication %s", medicationID)
	}
	if at.IsZero() {
		at = p.clock.Now()
	}
	ctx, cancel := p.persistContext(ctx)
	defer cancel()
	return p.record(ctx, personID, medicationID, "", dosing.SourceManual, at.UTC())
}

// persistContext bounds store calls so a hung repository surfaces a
// retryable error instead of wedging the single-writer lock.
func (p *Processor) persistContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if p.persistTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, p.persistTimeout)
}

func (p *Processor) record(ctx context.Context, personID, medicationID, tagID string, source dosing.Source, at time.Time) (*dosing.DoseEvent, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	med, ok := p.meds[medicationID]
	if !ok {
		return nil, fmt.Errorf("dosing: unknown medication %s", medicationID)
	}

	sched, hasSchedule := p.schedules[schedule.PairKey(personID, medicationID)]
	last, err := p.events.LastAccepted(ctx, personID, medicationID)
	if err != nil {
		return nil, err
	}

	classification, expected := classify(sched, hasSchedule, last, at)

	units := 0
	if classification.Accepted() {
		units = med.DoseUnits
	}

	event := &dosing.DoseEvent{
		ID:             uuid.NewString(),
		PersonID:       personID,
		MedicationID:   medicationID,
		TagID:          tagID,
		Source:         source,
		Classification: classification,
		ExpectedAt:     expected,
		RecordedAt:     at,
		Units:          units,
	}
	if err := event.Validate(); err != nil {
		return nil, err
	}
	if err := p.events.Append(ctx, event); err != nil {
		return nil, err
	}

	if units > 0 {
		if _, err := p.ledger.Decrement(ctx, medicationID, units); err != nil && p.logger != nil {
			p.logger.Printf("inventory decrement failed: medication=%s units=%d err=%v", medicationID, units, err)
		}
	}

	metrics.IncDoseEvent(string(classification))
	if p.logger != nil {
		p.logger.Printf("dose recorded: person=%s medication=%s classification=%s units=%d", personID, medicationID, classification, units)
	}
	p.publish(ctx, event)
	return event, nil
}

func (p *Processor) publish(ctx context.Context, event *dosing.DoseEvent) {
	if p.publisher == nil {
		return
	}
	payload := events.DoseRecorded{
		DoseEventID:    event.ID,
		PersonID:       event.PersonID,
		MedicationID:   event.MedicationID,
		Classification: string(event.Classification),
		Units:          event.Units,
		RecordedAt:     event.RecordedAt,
		OccurredAt:     p.clock.Now().UTC(),
	}
	if err := p.publisher.Publish(ctx, payload); err != nil && p.logger != nil {
		p.logger.Printf("publish dose recorded failed: %v", err)
	}
}

// classify applies the reconciliation rules for one event.
func classify(sched schedule.Schedule, hasSchedule bool, last *dosing.DoseEvent, at time.Time) (dosing.Classification, time.Time) {
	if !hasSchedule {
		return dosing.ClassificationUnexpected, time.Time{}
	}
	if last != nil && at.Sub(last.RecordedAt) < sched.MinSpacing {
		return dosing.ClassificationDuplicate, time.Time{}
	}

	var ref time.Time
	switch {
	case last != nil:
		ref = last.RecordedAt
	case sched.Kind == schedule.KindDaily:
		// No history yet; anchor the first expectation at the start of
		// the event's day.
		year, month, day := at.UTC().Date()
		ref = time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	}

	expected := sched.NextExpected(ref)
	switch {
	case sched.WithinGrace(expected, at):
		return dosing.ClassificationOnTime, expected
	case at.Before(expected):
		return dosing.ClassificationEarly, expected
	default:
		return dosing.ClassificationLate, expected
	}
}

// Replay reclassifies the dose-history log for a window against the current
// schedules without touching inventory or the log itself.
func (p *Processor) Replay(ctx context.Context, from, to time.Time) ([]dosing.DoseEvent, error) {
	if p == nil {
		return nil, errors.New("dosing: nil processor")
	}
	ctx, cancel := p.persistContext(ctx)
	defer cancel()
	history, err := p.events.List(ctx, from, to)
	if err != nil {
		return nil, err
	}
	sort.Slice(history, func(i, j int) bool { return history[i].RecordedAt.Before(history[j].RecordedAt) })

	lastByPair := make(map[string]*dosing.DoseEvent)
	out := make([]dosing.DoseEvent, 0, len(history))
	for _, event := range history {
		key := schedule.PairKey(event.PersonID, event.MedicationID)
		sched, hasSchedule := p.schedules[key]
		classification, expected := classify(sched, hasSchedule, lastByPair[key], event.RecordedAt)

		replayed := event
		replayed.Classification = classification
		replayed.ExpectedAt = expected
		if classification.Accepted() {
			copy := replayed
			lastByPair[key] = &copy
		}
		out = append(out, replayed)
	}
	return out, nil
}

func redactTag(tagID string) string {
	if len(tagID) <= 4 {
		return "****"
	}
	return "****" + tagID[len(tagID)-4:]
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }
