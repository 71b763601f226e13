package dosing

import (
	"sort"
	"time"
)

// DefaultConsumptionEvents is how many recent accepted doses feed the
// average daily consumption.
const DefaultConsumptionEvents = 14

// DefaultConsumptionLookback bounds how far back accepted doses are
// fetched when deriving consumption.
const DefaultConsumptionLookback = 90 * 24 * time.Hour

// ConsumptionRate returns average units consumed per day across the last
// limit accepted events, measured over their actual span up to now. A pair
// that started dosing recently is rated on the days it actually dosed, not
// a fixed window. Zero when nothing was consumed.
func ConsumptionRate(events []DoseEvent, limit int, now time.Time) float64 {
	if limit <= 0 {
		limit = DefaultConsumptionEvents
	}
	accepted := make([]DoseEvent, 0, len(events))
	for _, event := range events {
		if event.Accepted() && event.Units > 0 {
			accepted = append(accepted, event)
		}
	}
	if len(accepted) == 0 {
		return 0
	}
	sort.Slice(accepted, func(i, j int) bool { return accepted[i].RecordedAt.Before(accepted[j].RecordedAt) })
	if len(accepted) > limit {
		accepted = accepted[len(accepted)-limit:]
	}

	total := 0
	for _, event := range accepted {
		total += event.Units
	}
	days := now.Sub(accepted[0].RecordedAt).Hours() / 24
	if days < 1 {
		days = 1
	}
	return float64(total) / days
}
