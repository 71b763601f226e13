package dosing

import (
	"sort"
	"time"

	schedule "medtrack/internal/schedule/domain"
)

// DayStatus summarizes adherence for one pair on one calendar day.
type DayStatus string

const (
	DayNotTaken       DayStatus = "not_taken"
	DayPartiallyTaken DayStatus = "partially_taken"
	DayTaken          DayStatus = "taken"
)

// DayAdherence is the adherence summary for one (person, medication) day.
type DayAdherence struct {
	PersonID     string    `json:"person_id"`
	MedicationID string    `json:"medication_id"`
	Day          time.Time `json:"day"`
	Expected     int       `json:"expected"`
	Accepted     int       `json:"accepted"`
	Status       DayStatus `json:"status"`
}

// DailyAdherence buckets accepted doses into UTC days and grades each day
// against the schedule's expected dose count. Days without any event are
// omitted; callers render gaps as not_taken.
func DailyAdherence(sched schedule.Schedule, events []DoseEvent) []DayAdherence {
	expected := sched.DosesPerDay()
	byDay := make(map[time.Time]int)
	for _, event := range events {
		if event.PersonID != sched.PersonID || event.MedicationID != sched.MedicationID {
			continue
		}
		if !event.Classification.Accepted() {
			continue
		}
		at := event.RecordedAt.UTC()
		day := time.Date(at.Year(), at.Month(), at.Day(), 0, 0, 0, 0, time.UTC)
		byDay[day]++
	}

	result := make([]DayAdherence, 0, len(byDay))
	for day, accepted := range byDay {
		result = append(result, DayAdherence{
			PersonID:     sched.PersonID,
			MedicationID: sched.MedicationID,
			Day:          day,
			Expected:     expected,
			Accepted:     accepted,
			Status:       gradeDay(expected, accepted),
		})
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Day.Before(result[j].Day) })
	return result
}

func gradeDay(expected, accepted int) DayStatus {
	switch {
	case accepted <= 0:
		return DayNotTaken
	case expected > 0 && accepted < expected:
		return DayPartiallyTaken
	default:
		return DayTaken
	}
}
