package dosing

import (
	"testing"
	"time"
)

func TestDedupKeyTruncatesToResolution(t *testing.T) {
	base := time.Date(2026, 3, 2, 8, 10, 0, 123456789, time.UTC)
	a := DedupKey("tag-1", base, time.Second)
	b := DedupKey("tag-1", base.Add(400*time.Millisecond), time.Second)
	if a != b {
		t.Fatalf("same scan within resolution produced different keys: %s vs %s", a, b)
	}
	c := DedupKey("tag-1", base.Add(2*time.Second), time.Second)
	if a == c {
		t.Fatal("distinct scans outside resolution must not share a key")
	}
	if DedupKey("tag-2", base, time.Second) == a {
		t.Fatal("different tags must not share a key")
	}
}

func TestClassificationAccepted(t *testing.T) {
	accepted := []Classification{ClassificationOnTime, ClassificationEarly, ClassificationLate, ClassificationUnexpected}
	for _, c := range accepted {
		if !c.Accepted() {
			t.Fatalf("%s should be accepted", c)
		}
	}
	if ClassificationDuplicate.Accepted() {
		t.Fatal("duplicate must not be accepted")
	}
}

func TestConsumptionRate(t *testing.T) {
	now := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	events := []DoseEvent{
		{Classification: ClassificationOnTime, Units: 1, RecordedAt: now.Add(-24 * time.Hour)},
		{Classification: ClassificationLate, Units: 1, RecordedAt: now.Add(-48 * time.Hour)},
		{Classification: ClassificationDuplicate, Units: 0, RecordedAt: now.Add(-20 * time.Hour)},
	}
	rate := ConsumptionRate(events, DefaultConsumptionEvents, now)
	want := 2.0 / 2.0 // two accepted units across the two days they span
	if rate != want {
		t.Fatalf("rate = %f, want %f", rate, want)
	}
	if ConsumptionRate(nil, 0, now) != 0 {
		t.Fatal("empty history must yield zero rate")
	}
}

func TestConsumptionRateUsesEventSpanNotFixedWindow(t *testing.T) {
	now := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)

	// Pair started dosing three days ago, two doses per day. The rate must
	// come from those three days, not get diluted across a fixed window.
	var events []DoseEvent
	for i := 1; i <= 6; i++ {
		events = append(events, DoseEvent{
			Classification: ClassificationOnTime,
			Units:          1,
			RecordedAt:     now.Add(-time.Duration(i) * 12 * time.Hour),
		})
	}
	rate := ConsumptionRate(events, DefaultConsumptionEvents, now)
	if want := 6.0 / 3.0; rate != want {
		t.Fatalf("rate = %f, want %f", rate, want)
	}

	// A single fresh dose spans less than a day; the rate uses a one-day
	// floor instead of blowing up.
	single := []DoseEvent{{Classification: ClassificationOnTime, Units: 2, RecordedAt: now.Add(-time.Hour)}}
	if rate := ConsumptionRate(single, DefaultConsumptionEvents, now); rate != 2.0 {
		t.Fatalf("sub-day rate = %f, want 2.0", rate)
	}
}

func TestConsumptionRateLimitsToRecentEvents(t *testing.T) {
	now := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	events := []DoseEvent{
		{Classification: ClassificationOnTime, Units: 1, RecordedAt: now.Add(-10 * 24 * time.Hour)},
		{Classification: ClassificationOnTime, Units: 1, RecordedAt: now.Add(-9 * 24 * time.Hour)},
		{Classification: ClassificationOnTime, Units: 1, RecordedAt: now.Add(-8 * 24 * time.Hour)},
		{Classification: ClassificationOnTime, Units: 1, RecordedAt: now.Add(-2 * 24 * time.Hour)},
		{Classification: ClassificationOnTime, Units: 1, RecordedAt: now.Add(-24 * time.Hour)},
	}
	rate := ConsumptionRate(events, 3, now)
	if want := 3.0 / 8.0; rate != want {
		t.Fatalf("rate = %f, want %f (last three events only)", rate, want)
	}
}
