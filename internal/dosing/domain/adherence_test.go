package dosing

import (
	"testing"
	"time"

	schedule "medtrack/internal/schedule/domain"
)

func adherenceSchedule() schedule.Schedule {
	return schedule.Schedule{
		PersonID:     "alice",
		MedicationID: "ibuprofen",
		Kind:         schedule.KindDaily,
		Times:        []schedule.TimeOfDay{{Hour: 8}, {Hour: 20}},
		Grace:        30 * time.Minute,
		MinSpacing:   4 * time.Hour,
	}
}

func adherenceEvent(classification Classification, at time.Time) DoseEvent {
	return DoseEvent{
		ID:             "evt-" + at.Format("150405"),
		PersonID:       "alice",
		MedicationID:   "ibuprofen",
		Source:         SourceScan,
		Classification: classification,
		RecordedAt:     at,
		Units:          1,
	}
}

func TestDailyAdherenceGradesDays(t *testing.T) {
	day1 := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	day2 := day1.AddDate(0, 0, 1)
	events := []DoseEvent{
		adherenceEvent(ClassificationOnTime, day1.Add(8*time.Hour)),
		adherenceEvent(ClassificationLate, day1.Add(21*time.Hour)),
		adherenceEvent(ClassificationOnTime, day2.Add(8*time.Hour)),
		adherenceEvent(ClassificationDuplicate, day2.Add(9*time.Hour)),
	}

	rows := DailyAdherence(adherenceSchedule(), events)
	if len(rows) != 2 {
		t.Fatalf("rows = %d, want 2", len(rows))
	}
	if rows[0].Day != day1 || rows[0].Status != DayTaken || rows[0].Accepted != 2 {
		t.Fatalf("day1 = %+v", rows[0])
	}
	if rows[1].Day != day2 || rows[1].Status != DayPartiallyTaken || rows[1].Accepted != 1 {
		t.Fatalf("day2 = %+v", rows[1])
	}
}

func TestDailyAdherenceIgnoresOtherPairs(t *testing.T) {
	at := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	other := adherenceEvent(ClassificationOnTime, at)
	other.MedicationID = "vitamin-d"

	rows := DailyAdherence(adherenceSchedule(), []DoseEvent{other})
	if len(rows) != 0 {
		t.Fatalf("rows = %d, want 0", len(rows))
	}
}

func TestGradeDay(t *testing.T) {
	if gradeDay(2, 0) != DayNotTaken {
		t.Fatal("0 accepted should be not_taken")
	}
	if gradeDay(2, 1) != DayPartiallyTaken {
		t.Fatal("1 of 2 should be partially_taken")
	}
	if gradeDay(2, 2) != DayTaken {
		t.Fatal("2 of 2 should be taken")
	}
}
