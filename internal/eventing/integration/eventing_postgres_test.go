package integration_test

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"testing"
	"time"

	"medtrack/internal/dosing/application/events"
	"medtrack/internal/eventing"
	"medtrack/internal/eventing/eventbus"
	eventingrepo "medtrack/internal/eventing/infrastructure/postgres"

	_ "github.com/jackc/pgx/v5/stdlib"
)

func TestEventing_IdempotentConsumer(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()

	ctx := context.Background()
	_, _ = db.ExecContext(ctx, "DELETE FROM processed_events")
	_, _ = db.ExecContext(ctx, "DELETE FROM dead_letter_events")
	_, _ = db.ExecContext(ctx, "DELETE FROM event_outbox")

	baseBus := eventbus.NewInMemoryBus()
	registry := eventing.NewRegistry()
	registry.Register(events.DoseRecorded{})

	outboxStore := eventingrepo.NewOutboxStore(db)
	processedStore := eventingrepo.NewProcessedStore(db)
	dlqStore := eventingrepo.NewDLQStore(db)
	dispatcher := eventing.NewDispatcher(baseBus, outboxStore, registry, dlqStore)
	publisher := eventing.NewPublisher(outboxStore, dispatcher, "household-test", baseBus)

	count := 0
	eventing.Subscribe(baseBus, eventbus.EventTypeOf[events.DoseRecorded](), "consumer-a", func(ctx context.Context, event any) error {
		count++
		return nil
	}, processedStore)

	eventID := "evt-dup-001"
	ctx = eventing.WithEventID(ctx, eventID)
	ctx = eventing.WithHouseholdID(ctx, "household-test")

	payload := events.DoseRecorded{
		DoseEventID:    "dose-1",
		PersonID:       "alice",
		MedicationID:   "ibuprofen",
		Classification: "on_time",
		Units:          1,
		RecordedAt:     time.Date(2026, time.March, 2, 8, 10, 0, 0, time.UTC),
		OccurredAt:     time.Date(2026, time.March, 2, 8, 10, 0, 0, time.UTC),
	}

	if err := publisher.Publish(ctx, payload); err != nil {
		t.Fatalf("publish event: %v", err)
	}
	if err := publisher.Publish(ctx, payload); err != nil {
		t.Fatalf("publish duplicate: %v", err)
	}

	_ = dispatcher.Dispatch(ctx, 10)

	if count != 1 {
		t.Fatalf("expected handler once, got %d", count)
	}
}

func TestEventing_DLQOnFailure(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()

	ctx := context.Background()
	_, _ = db.ExecContext(ctx, "DELETE FROM processed_events")
	_, _ = db.ExecContext(ctx, "DELETE FROM dead_letter_events")
	_, _ = db.ExecContext(ctx, "DELETE FROM event_outbox")

	baseBus := eventbus.NewInMemoryBus()
	registry := eventing.NewRegistry()
	registry.Register(events.DoseRecorded{})

	outboxStore := eventingrepo.NewOutboxStore(db)
	processedStore := eventingrepo.NewProcessedStore(db)
	dlqStore := eventingrepo.NewDLQStore(db)
	dispatcher := eventing.NewDispatcher(baseBus, outboxStore, registry, dlqStore)
	publisher := eventing.NewPublisher(outboxStore, dispatcher, "household-test", baseBus)

	eventing.Subscribe(baseBus, eventbus.EventTypeOf[events.DoseRecorded](), "consumer-fail", func(ctx context.Context, event any) error {
		return errors.New("boom")
	}, processedStore)

	payload := events.DoseRecorded{
		DoseEventID:    "dose-2",
		PersonID:       "alice",
		MedicationID:   "ibuprofen",
		Classification: "late",
		Units:          1,
		RecordedAt:     time.Date(2026, time.March, 2, 9, 0, 0, 0, time.UTC),
		OccurredAt:     time.Date(2026, time.March, 2, 9, 0, 0, 0, time.UTC),
	}

	if err := publisher.Publish(ctx, payload); err != nil {
		t.Fatalf("publish event: %v", err)
	}

	_ = dispatcher.Dispatch(ctx, 10)

	var dlqCount int
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM dead_letter_events").Scan(&dlqCount); err != nil {
		t.Fatalf("count dlq: %v", err)
	}
	if dlqCount != 1 {
		t.Fatalf("expected 1 dlq record, got %d", dlqCount)
	}
}

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	dsn := os.Getenv("PG_DSN")
	if dsn == "" {
		t.Skip("PG_DSN not set")
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if !tableExists(db, "event_outbox") ||
		!tableExists(db, "processed_events") ||
		!tableExists(db, "dead_letter_events") {
		db.Close()
		t.Skip("missing tables; run migrations")
	}
	return db
}

func tableExists(db *sql.DB, table string) bool {
	var exists bool
	err := db.QueryRow(`
SELECT EXISTS (
	SELECT 1
	FROM information_schema.tables
	WHERE table_schema = 'public' AND table_name = $1
)`, table).Scan(&exists)
	if err != nil {
		return false
	}
	return exists
}
