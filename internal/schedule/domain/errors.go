package schedule

import "errors"

// ErrInvalidSchedule indicates a schedule that failed construction-time
// validation. Fatal to that schedule; surfaced to the configuration layer.
var ErrInvalidSchedule = errors.New("schedule: invalid")
