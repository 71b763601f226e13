package schedule

import (
	"errors"
	"testing"
	"time"
)

func validDaily() Schedule {
	return Schedule{
		PersonID:     "alice",
		MedicationID: "ibuprofen",
		Kind:         KindDaily,
		Times:        []TimeOfDay{{Hour: 8}, {Hour: 20}},
		Grace:        30 * time.Minute,
		MinSpacing:   4 * time.Hour,
	}
}

func TestValidateDaily(t *testing.T) {
	if err := validDaily().Validate(); err != nil {
		t.Fatalf("expected valid schedule, got %v", err)
	}
}

func TestValidateRejectsEmptyTimes(t *testing.T) {
	s := validDaily()
	s.Times = nil
	if err := s.Validate(); !errors.Is(err, ErrInvalidSchedule) {
		t.Fatalf("expected ErrInvalidSchedule, got %v", err)
	}
}

func TestValidateRejectsWideGrace(t *testing.T) {
	s := validDaily()
	s.Grace = 2 * time.Hour
	if err := s.Validate(); !errors.Is(err, ErrInvalidSchedule) {
		t.Fatalf("expected ErrInvalidSchedule for grace >= half spacing, got %v", err)
	}
	// Exactly half is still ambiguous and rejected.
	s.Grace = 2 * time.Hour
	s.MinSpacing = 4 * time.Hour
	if err := s.Validate(); !errors.Is(err, ErrInvalidSchedule) {
		t.Fatalf("expected ErrInvalidSchedule at boundary, got %v", err)
	}
}

func TestValidateRejectsNonPositiveInterval(t *testing.T) {
	s := Schedule{
		PersonID:     "alice",
		MedicationID: "ibuprofen",
		Kind:         KindInterval,
		Every:        0,
		Anchor:       time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC),
		Grace:        15 * time.Minute,
		MinSpacing:   2 * time.Hour,
	}
	if err := s.Validate(); !errors.Is(err, ErrInvalidSchedule) {
		t.Fatalf("expected ErrInvalidSchedule, got %v", err)
	}
}

func TestNextExpectedDaily(t *testing.T) {
	s := validDaily()
	cases := []struct {
		after time.Time
		want  time.Time
	}{
		{
			after: time.Date(2026, 3, 1, 7, 0, 0, 0, time.UTC),
			want:  time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC),
		},
		{
			after: time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC),
			want:  time.Date(2026, 3, 1, 20, 0, 0, 0, time.UTC),
		},
		{
			after: time.Date(2026, 3, 1, 21, 0, 0, 0, time.UTC),
			want:  time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC),
		},
	}
	for _, tc := range cases {
		if got := s.NextExpected(tc.after); !got.Equal(tc.want) {
			t.Fatalf("NextExpected(%s) = %s, want %s", tc.after, got, tc.want)
		}
	}
}

func TestNextExpectedDailyUnsortedTimes(t *testing.T) {
	s := validDaily()
	s.Times = []TimeOfDay{{Hour: 20}, {Hour: 8}}
	after := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	want := time.Date(2026, 3, 1, 20, 0, 0, 0, time.UTC)
	if got := s.NextExpected(after); !got.Equal(want) {
		t.Fatalf("NextExpected = %s, want %s", got, want)
	}
}

func TestNextExpectedInterval(t *testing.T) {
	anchor := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	s := Schedule{
		PersonID:     "alice",
		MedicationID: "ibuprofen",
		Kind:         KindInterval,
		Every:        8 * time.Hour,
		Anchor:       anchor,
		Grace:        30 * time.Minute,
		MinSpacing:   4 * time.Hour,
	}
	if err := s.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}

	lastDose := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	want := time.Date(2026, 3, 1, 20, 0, 0, 0, time.UTC)
	if got := s.NextExpected(lastDose); !got.Equal(want) {
		t.Fatalf("NextExpected(last dose) = %s, want %s", got, want)
	}

	// Before any dose the anchor acts as the virtual last dose.
	early := anchor.Add(-2 * time.Hour)
	want = anchor.Add(8 * time.Hour)
	if got := s.NextExpected(early); !got.Equal(want) {
		t.Fatalf("NextExpected(pre-anchor) = %s, want %s", got, want)
	}
}

func TestWithinGrace(t *testing.T) {
	s := validDaily()
	expected := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

	if !s.WithinGrace(expected, expected.Add(25*time.Minute)) {
		t.Fatal("expected 08:25 to be on-time for an 08:00 slot with 30m grace")
	}
	if s.WithinGrace(expected, expected.Add(45*time.Minute)) {
		t.Fatal("expected 08:45 to fall outside the grace window")
	}
	// No grace before the slot unless configured.
	if s.WithinGrace(expected, expected.Add(-10*time.Minute)) {
		t.Fatal("expected 07:50 to fall before the window")
	}

	s.GraceBefore = 15 * time.Minute
	if !s.WithinGrace(expected, expected.Add(-10*time.Minute)) {
		t.Fatal("expected 07:50 on-time with a 15m leading grace")
	}
}

func TestParseTimeOfDay(t *testing.T) {
	tod, err := ParseTimeOfDay("08:30")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if tod.Hour != 8 || tod.Minute != 30 {
		t.Fatalf("unexpected time of day %+v", tod)
	}
	if _, err := ParseTimeOfDay("25:00"); !errors.Is(err, ErrInvalidSchedule) {
		t.Fatalf("expected ErrInvalidSchedule, got %v", err)
	}
}

func TestDosesPerDay(t *testing.T) {
	if got := validDaily().DosesPerDay(); got != 2 {
		t.Fatalf("daily doses per day = %d, want 2", got)
	}
	s := Schedule{Kind: KindInterval, Every: 8 * time.Hour}
	if got := s.DosesPerDay(); got != 3 {
		t.Fatalf("interval doses per day = %d, want 3", got)
	}
}
