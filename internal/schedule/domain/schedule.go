package schedule

import (
	"fmt"
	"sort"
	"time"
)

// Kind selects how expected dose times are generated.
type Kind string

const (
	// KindDaily schedules fixed times of day.
	KindDaily Kind = "daily"
	// KindInterval schedules a fixed interval anchored to the last accepted dose.
	KindInterval Kind = "interval"
)

// TimeOfDay is a wall-clock dose time.
type TimeOfDay struct {
	Hour   int
	Minute int
}

// ParseTimeOfDay parses "15:04" formatted times.
func ParseTimeOfDay(value string) (TimeOfDay, error) {
	t, err := time.Parse("15:04", value)
	if err != nil {
		return TimeOfDay{}, fmt.Errorf("%w: bad time of day %q", ErrInvalidSchedule, value)
	}
	return TimeOfDay{Hour: t.Hour(), Minute: t.Minute()}, nil
}

// String formats the time as "15:04".
func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

func (t TimeOfDay) valid() bool {
	return t.Hour >= 0 && t.Hour <= 23 && t.Minute >= 0 && t.Minute <= 59
}

// Schedule defines the expected dosing cadence for one (person, medication) pair.
type Schedule struct {
	PersonID     string
	MedicationID string
	Kind         Kind
	Times        []TimeOfDay   // daily kind
	Every        time.Duration // interval kind
	Anchor       time.Time     // interval kind: virtual last dose before the first scan
	Grace        time.Duration // on-time window after an expected time
	GraceBefore  time.Duration // on-time window before an expected time
	MinSpacing   time.Duration // doses closer than this are duplicates
}

// Validate checks schedule invariants.
func (s Schedule) Validate() error {
	if s.PersonID == "" {
		return fmt.Errorf("%w: empty person id", ErrInvalidSchedule)
	}
	if s.MedicationID == "" {
		return fmt.Errorf("%w: empty medication id", ErrInvalidSchedule)
	}
	if s.Grace < 0 || s.GraceBefore < 0 {
		return fmt.Errorf("%w: negative grace window", ErrInvalidSchedule)
	}
	if s.MinSpacing <= 0 {
		return fmt.Errorf("%w: min spacing must be positive", ErrInvalidSchedule)
	}
	grace := s.Grace
	if s.GraceBefore > grace {
		grace = s.GraceBefore
	}
	if 2*grace >= s.MinSpacing {
		return fmt.Errorf("%w: grace window %s is not below half of min spacing %s", ErrInvalidSchedule, grace, s.MinSpacing)
	}
	switch s.Kind {
	case KindDaily:
		if len(s.Times) == 0 {
			return fmt.Errorf("%w: daily schedule without dose times", ErrInvalidSchedule)
		}
		for _, tod := range s.Times {
			if !tod.valid() {
				return fmt.Errorf("%w: dose time %s out of range", ErrInvalidSchedule, tod)
			}
		}
	case KindInterval:
		if s.Every <= 0 {
			return fmt.Errorf("%w: interval must be positive", ErrInvalidSchedule)
		}
		if s.Anchor.IsZero() {
			return fmt.Errorf("%w: interval schedule without anchor", ErrInvalidSchedule)
		}
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidSchedule, s.Kind)
	}
	return nil
}

// NextExpected returns the earliest expected dose time strictly after the
// given instant. For interval schedules the instant is the last accepted
// dose; callers pass the anchor when no dose exists yet.
func (s Schedule) NextExpected(after time.Time) time.Time {
	after = after.UTC()
	switch s.Kind {
	case KindDaily:
		return s.nextDaily(after)
	case KindInterval:
		base := after
		if base.Before(s.Anchor.UTC()) {
			base = s.Anchor.UTC()
		}
		return base.Add(s.Every)
	default:
		return time.Time{}
	}
}

func (s Schedule) nextDaily(after time.Time) time.Time {
	times := append([]TimeOfDay(nil), s.Times...)
	sort.Slice(times, func(i, j int) bool {
		if times[i].Hour != times[j].Hour {
			return times[i].Hour < times[j].Hour
		}
		return times[i].Minute < times[j].Minute
	})
	day := time.Date(after.Year(), after.Month(), after.Day(), 0, 0, 0, 0, time.UTC)
	for offset := 0; offset < 2; offset++ {
		date := day.AddDate(0, 0, offset)
		for _, tod := range times {
			candidate := date.Add(time.Duration(tod.Hour)*time.Hour + time.Duration(tod.Minute)*time.Minute)
			if candidate.After(after) {
				return candidate
			}
		}
	}
	return time.Time{}
}

// WithinGrace reports whether an actual dose time counts as on-time for the
// expected slot.
func (s Schedule) WithinGrace(expected, actual time.Time) bool {
	if expected.IsZero() || actual.IsZero() {
		return false
	}
	expected = expected.UTC()
	actual = actual.UTC()
	if actual.Before(expected.Add(-s.GraceBefore)) {
		return false
	}
	return !actual.After(expected.Add(s.Grace))
}

// DosesPerDay returns the expected number of doses in one day.
func (s Schedule) DosesPerDay() int {
	switch s.Kind {
	case KindDaily:
		return len(s.Times)
	case KindInterval:
		if s.Every <= 0 {
			return 0
		}
		n := int(24 * time.Hour / s.Every)
		if n < 1 {
			n = 1
		}
		return n
	default:
		return 0
	}
}

// PairKey identifies the (person, medication) pair.
func (s Schedule) PairKey() string {
	return PairKey(s.PersonID, s.MedicationID)
}

// PairKey builds the canonical key for a (person, medication) pair.
func PairKey(personID, medicationID string) string {
	return personID + "|" + medicationID
}
