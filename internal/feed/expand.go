package feed

import (
	"log/slog"
	"time"

	"github.com/teambition/rrule-go"
)

// Safety cap so a broken RRULE cannot blow up a search horizon.
const maxOccurrencesPerEvent = 1000

// Expand replaces RRULE-bearing events with their concrete occurrences inside
// [rangeStart, rangeEnd). Non-recurring events pass through untouched. EXDATE
// instances are excluded; the event duration is preserved per occurrence.
func Expand(events []Event, rangeStart, rangeEnd time.Time, logger *slog.Logger) []Event {
	out := make([]Event, 0, len(events))
	for _, ev := range events {
		if ev.RRule == "" {
			out = append(out, ev)
			continue
		}

		r, err := rrule.StrToRRule(ev.RRule)
		if err != nil {
			if logger != nil {
				logger.Debug("skipping unparseable RRULE", "rrule", ev.RRule, "summary", ev.Summary, "error", err)
			}
			// Keep the base instance rather than losing the event.
			out = append(out, ev)
			continue
		}

		var set rrule.Set
		set.DTStart(ev.Start)
		set.RRule(r)
		for _, ex := range ev.ExDates {
			set.ExDate(ex)
		}

		dur := ev.End.Sub(ev.Start)
		occurrences := set.Between(rangeStart, rangeEnd, true)
		if len(occurrences) > maxOccurrencesPerEvent {
			if logger != nil {
				logger.Debug("recurrence expansion truncated", "summary", ev.Summary, "count", len(occurrences))
			}
			occurrences = occurrences[:maxOccurrencesPerEvent]
		}
		for _, start := range occurrences {
			occ := ev
			occ.RRule = ""
			occ.ExDates = nil
			occ.Start = start.UTC()
			occ.End = start.Add(dur).UTC()
			out = append(out, occ)
		}
	}
	return out
}
