package application

import (
	"context"
	"errors"
	"testing"
	"time"

	dosing "medtrack/internal/dosing/domain"
	dosingmem "medtrack/internal/dosing/infrastructure/memory"
	eventingmem "medtrack/internal/eventing/infrastructure/memory"
	household "medtrack/internal/household/domain"
	inventory "medtrack/internal/inventory/domain"
	inventorymem "medtrack/internal/inventory/infrastructure/memory"
	schedule "medtrack/internal/schedule/domain"
)

type fakeClock struct {
	now time.Time
}

func (f *fakeClock) Now() time.Time { return f.now }

type recordingPublisher struct {
	published []any
}

func (r *recordingPublisher) Publish(_ context.Context, event any) error {
	r.published = append(r.published, event)
	return nil
}

func testSchedule() schedule.Schedule {
	return schedule.Schedule{
		PersonID:     "alice",
		MedicationID: "ibuprofen",
		Kind:         schedule.KindDaily,
		Times:        []schedule.TimeOfDay{{Hour: 8}, {Hour: 20}},
		Grace:        30 * time.Minute,
		MinSpacing:   4 * time.Hour,
	}
}

type fixture struct {
	processor *Processor
	events    *dosingmem.EventRepository
	ledger    *inventory.Ledger
	clock     *fakeClock
	publisher *recordingPublisher
}

func newFixture(t *testing.T, schedules []schedule.Schedule, initialUnits int) *fixture {
	t.Helper()

	meds := map[string]household.Medication{
		"ibuprofen": {
			ID:                "ibuprofen",
			Name:              "Ibuprofen",
			DoseUnits:         1,
			UnitsPerContainer: 30,
			LowStockThreshold: 5,
		},
	}
	clock := &fakeClock{now: time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)}

	ledger, err := inventory.NewLedger(inventorymem.NewInventoryRepository(), meds, nil, inventory.WithClock(clock))
	if err != nil {
		t.Fatalf("new ledger: %v", err)
	}
	if err := ledger.Seed(context.Background(), "ibuprofen", initialUnits); err != nil {
		t.Fatalf("seed: %v", err)
	}

	events := dosingmem.NewEventRepository()
	publisher := &recordingPublisher{}
	resolver := household.NewStaticTagResolver([]household.TagBinding{
		{TagID: "tag-1", PersonID: "alice", MedicationID: "ibuprofen"},
	})

	processor, err := NewProcessor(
		resolver,
		schedules,
		meds,
		events,
		ledger,
		WithClock(clock),
		WithPublisher(publisher),
		WithDedupStore(eventingmem.NewProcessedStore()),
	)
	if err != nil {
		t.Fatalf("new processor: %v", err)
	}
	return &fixture{processor: processor, events: events, ledger: ledger, clock: clock, publisher: publisher}
}

func (f *fixture) seedAccepted(t *testing.T, at time.Time) {
	t.Helper()
	err := f.events.Append(context.Background(), &dosing.DoseEvent{
		ID:             "seed-1",
		PersonID:       "alice",
		MedicationID:   "ibuprofen",
		Source:         dosing.SourceScan,
		Classification: dosing.ClassificationOnTime,
		RecordedAt:     at,
		Units:          1,
	})
	if err != nil {
		t.Fatalf("seed event: %v", err)
	}
}

func TestProcessScanClassifications(t *testing.T) {
	lastEvening := time.Date(2026, 3, 1, 20, 5, 0, 0, time.UTC)
	cases := []struct {
		name string
		at   time.Time
		want dosing.Classification
	}{
		{"on time inside grace", time.Date(2026, 3, 2, 8, 25, 0, 0, time.UTC), dosing.ClassificationOnTime},
		{"late past grace", time.Date(2026, 3, 2, 8, 45, 0, 0, time.UTC), dosing.ClassificationLate},
		{"early before slot", time.Date(2026, 3, 2, 7, 50, 0, 0, time.UTC), dosing.ClassificationEarly},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t, []schedule.Schedule{testSchedule()}, 10)
			f.seedAccepted(t, lastEvening)

			event, err := f.processor.ProcessScan(context.Background(), Scan{TagID: "tag-1", ScannedAt: tc.at})
			if err != nil {
				t.Fatalf("process scan: %v", err)
			}
			if event.Classification != tc.want {
				t.Fatalf("classification = %s, want %s", event.Classification, tc.want)
			}
			count, err := f.ledger.Count(context.Background(), "ibuprofen")
			if err != nil {
				t.Fatalf("count: %v", err)
			}
			if count != 9 {
				t.Fatalf("inventory = %d, want 9 (accepted dose decrements)", count)
			}
		})
	}
}

func TestProcessScanFirstDoseOfDay(t *testing.T) {
	f := newFixture(t, []schedule.Schedule{testSchedule()}, 10)
	event, err := f.processor.ProcessScan(context.Background(), Scan{
		TagID:     "tag-1",
		ScannedAt: time.Date(2026, 3, 2, 8, 10, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("process scan: %v", err)
	}
	if event.Classification != dosing.ClassificationOnTime {
		t.Fatalf("classification = %s, want on_time", event.Classification)
	}
}

func TestProcessScanDuplicateWithinMinSpacing(t *testing.T) {
	f := newFixture(t, []schedule.Schedule{testSchedule()}, 10)
	ctx := context.Background()

	first, err := f.processor.ProcessScan(ctx, Scan{TagID: "tag-1", ScannedAt: time.Date(2026, 3, 2, 8, 10, 0, 0, time.UTC)})
	if err != nil {
		t.Fatalf("first scan: %v", err)
	}
	if !first.Accepted() {
		t.Fatalf("first classification = %s, want accepted", first.Classification)
	}

	second, err := f.processor.ProcessScan(ctx, Scan{TagID: "tag-1", ScannedAt: time.Date(2026, 3, 2, 9, 10, 0, 0, time.UTC)})
	if err != nil {
		t.Fatalf("second scan: %v", err)
	}
	if second.Classification != dosing.ClassificationDuplicate {
		t.Fatalf("second classification = %s, want duplicate", second.Classification)
	}
	if second.Units != 0 {
		t.Fatalf("duplicate units = %d, want 0", second.Units)
	}

	count, err := f.ledger.Count(ctx, "ibuprofen")
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 9 {
		t.Fatalf("inventory = %d, want 9 (duplicate must not decrement)", count)
	}
}

func TestProcessScanExactMinSpacingIsNotDuplicate(t *testing.T) {
	f := newFixture(t, []schedule.Schedule{testSchedule()}, 10)
	ctx := context.Background()

	if _, err := f.processor.ProcessScan(ctx, Scan{TagID: "tag-1", ScannedAt: time.Date(2026, 3, 2, 8, 10, 0, 0, time.UTC)}); err != nil {
		t.Fatalf("first scan: %v", err)
	}
	second, err := f.processor.ProcessScan(ctx, Scan{TagID: "tag-1", ScannedAt: time.Date(2026, 3, 2, 12, 10, 0, 0, time.UTC)})
	if err != nil {
		t.Fatalf("second scan: %v", err)
	}
	if second.Classification == dosing.ClassificationDuplicate {
		t.Fatal("exactly min spacing apart must classify normally")
	}
}

func TestProcessScanDedupKeySuppression(t *testing.T) {
	f := newFixture(t, []schedule.Schedule{testSchedule()}, 10)
	ctx := context.Background()
	at := time.Date(2026, 3, 2, 8, 10, 0, 0, time.UTC)

	if _, err := f.processor.ProcessScan(ctx, Scan{TagID: "tag-1", ScannedAt: at}); err != nil {
		t.Fatalf("first delivery: %v", err)
	}
	if _, err := f.processor.ProcessScan(ctx, Scan{TagID: "tag-1", ScannedAt: at}); !errors.Is(err, dosing.ErrDuplicateScan) {
		t.Fatalf("expected ErrDuplicateScan, got %v", err)
	}

	count, err := f.ledger.Count(ctx, "ibuprofen")
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 9 {
		t.Fatalf("inventory = %d, want 9 (re-delivery must not decrement)", count)
	}
	history, err := f.events.List(ctx, time.Time{}, time.Time{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(history) != 1 {
		t.Fatalf("history length = %d, want 1", len(history))
	}
}

func TestProcessScanUnboundTag(t *testing.T) {
	f := newFixture(t, []schedule.Schedule{testSchedule()}, 10)
	if _, err := f.processor.ProcessScan(context.Background(), Scan{TagID: "mystery", ScannedAt: f.clock.now}); !errors.Is(err, dosing.ErrUnboundTag) {
		t.Fatalf("expected ErrUnboundTag, got %v", err)
	}
}

func TestProcessScanWithoutScheduleIsUnexpected(t *testing.T) {
	f := newFixture(t, nil, 10)
	event, err := f.processor.ProcessScan(context.Background(), Scan{
		TagID:     "tag-1",
		ScannedAt: time.Date(2026, 3, 2, 13, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("process scan: %v", err)
	}
	if event.Classification != dosing.ClassificationUnexpected {
		t.Fatalf("classification = %s, want unexpected", event.Classification)
	}
	count, err := f.ledger.Count(context.Background(), "ibuprofen")
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 9 {
		t.Fatalf("inventory = %d, want 9 (unexpected still decrements)", count)
	}
}

type stalledEventRepository struct {
	*dosingmem.EventRepository
}

func (s *stalledEventRepository) LastAccepted(ctx context.Context, personID, medicationID string) (*dosing.DoseEvent, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestProcessScanBoundsStoreCalls(t *testing.T) {
	meds := map[string]household.Medication{
		"ibuprofen": {ID: "ibuprofen", Name: "Ibuprofen", DoseUnits: 1, UnitsPerContainer: 30, LowStockThreshold: 5},
	}
	clock := &fakeClock{now: time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)}
	ledger, err := inventory.NewLedger(inventorymem.NewInventoryRepository(), meds, nil, inventory.WithClock(clock))
	if err != nil {
		t.Fatalf("new ledger: %v", err)
	}
	resolver := household.NewStaticTagResolver([]household.TagBinding{
		{TagID: "tag-1", PersonID: "alice", MedicationID: "ibuprofen"},
	})
	repo := &stalledEventRepository{EventRepository: dosingmem.NewEventRepository()}

	processor, err := NewProcessor(
		resolver,
		[]schedule.Schedule{testSchedule()},
		meds,
		repo,
		ledger,
		WithClock(clock),
		WithPersistTimeout(20*time.Millisecond),
	)
	if err != nil {
		t.Fatalf("new processor: %v", err)
	}

	_, err = processor.ProcessScan(context.Background(), Scan{TagID: "tag-1", ScannedAt: clock.now})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded from a stalled store, got %v", err)
	}
}

func TestRecordManual(t *testing.T) {
	f := newFixture(t, []schedule.Schedule{testSchedule()}, 10)
	event, err := f.processor.RecordManual(context.Background(), "alice", "ibuprofen", time.Date(2026, 3, 2, 8, 20, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("record manual: %v", err)
	}
	if event.Source != dosing.SourceManual {
		t.Fatalf("source = %s, want manual", event.Source)
	}
	if event.Classification != dosing.ClassificationOnTime {
		t.Fatalf("classification = %s, want on_time", event.Classification)
	}
	if len(f.publisher.published) != 1 {
		t.Fatalf("published events = %d, want 1", len(f.publisher.published))
	}
}

func TestReplayReproducesClassifications(t *testing.T) {
	f := newFixture(t, []schedule.Schedule{testSchedule()}, 10)
	ctx := context.Background()

	scans := []time.Time{
		time.Date(2026, 3, 2, 8, 10, 0, 0, time.UTC),
		time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC),
		time.Date(2026, 3, 2, 20, 15, 0, 0, time.UTC),
	}
	var recorded []dosing.DoseEvent
	for _, at := range scans {
		event, err := f.processor.ProcessScan(ctx, Scan{TagID: "tag-1", ScannedAt: at})
		if err != nil {
			t.Fatalf("process scan at %s: %v", at, err)
		}
		recorded = append(recorded, *event)
	}

	replayed, err := f.processor.Replay(ctx, time.Time{}, time.Time{})
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if len(replayed) != len(recorded) {
		t.Fatalf("replayed %d events, want %d", len(replayed), len(recorded))
	}
	for i := range recorded {
		if replayed[i].Classification != recorded[i].Classification {
			t.Fatalf("event %d replayed as %s, originally %s", i, replayed[i].Classification, recorded[i].Classification)
		}
	}
}
