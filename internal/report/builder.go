package report

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"time"

	"github.com/smartslot/slotplanner/internal/feed"
	"github.com/smartslot/slotplanner/internal/geo"
	"github.com/smartslot/slotplanner/internal/interval"
	"github.com/smartslot/slotplanner/internal/slot"
)

// Site is a geocoded reseller candidate. Resellers whose address failed to
// geocode never reach the builder.
type Site struct {
	Name  string
	Point geo.Point
}

// Builder produces the per-day report. It reuses the slot searcher for
// reseller placements and the interval engine for admin windows.
type Builder struct {
	Searcher   *slot.Searcher
	Thresholds Thresholds
	Bands      []Band

	DayStart time.Duration
	DayEnd   time.Duration
	Buffer   time.Duration

	// TopResellers bounds how many nearby resellers get a placement search.
	TopResellers int
	// VisitDuration is the assumed length of a reseller visit.
	VisitDuration time.Duration

	Location *time.Location
	Logger   *slog.Logger
}

// DayInput carries one day's already-parsed and already-geocoded data.
type DayInput struct {
	Date         time.Time // local midnight
	Events       []feed.Event
	Appointments []slot.Appointment
	Notes        []string
}

func (b *Builder) logger() *slog.Logger {
	if b.Logger == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return b.Logger
}

// Build classifies each day and, for open days, proposes a reseller visit, an
// admin window, or an explicit "none" with its reason.
func (b *Builder) Build(ctx context.Context, days []DayInput, home geo.Point, sites []Site) []Item {
	items := make([]Item, 0, len(days))
	for _, day := range days {
		items = append(items, b.buildDay(ctx, day, home, sites))
	}
	return items
}

func (b *Builder) buildDay(ctx context.Context, day DayInput, home geo.Point, sites []Site) Item {
	item := Item{
		Date:       day.Date,
		Counts:     make(map[Category]int),
		EventCount: len(day.Events),
		Notes:      day.Notes,
	}

	hasAllDay := false
	for _, ev := range day.Events {
		item.Counts[Classify(ev.Summary)]++
		if ev.AllDay {
			hasAllDay = true
		}
	}

	if b.Thresholds.IsFull(item.Counts, hasAllDay) {
		item.IsFull = true
		return item
	}

	if sugg, ok := b.suggestReseller(ctx, day, home, sites); ok {
		item.Suggestion = &sugg
		return item
	}
	if sugg, ok := b.suggestAdminWindow(day); ok {
		item.Suggestion = &sugg
		return item
	}

	item.Suggestion = &Suggestion{
		Kind:   SuggestNone,
		Reason: "no feasible reseller visit and no free admin window",
	}
	return item
}

// suggestReseller ranks sites by minimum distance to the day's resolved
// event locations (home when nothing resolved), then runs the placement
// search against the closest few and keeps the cheapest feasible one.
func (b *Builder) suggestReseller(ctx context.Context, day DayInput, home geo.Point, sites []Site) (Suggestion, bool) {
	if len(sites) == 0 {
		return Suggestion{}, false
	}

	refs := []geo.Point{}
	for _, a := range day.Appointments {
		if a.Loc != nil {
			refs = append(refs, *a.Loc)
		}
	}
	if len(refs) == 0 {
		refs = append(refs, home)
	}

	ranked := RankSites(sites, refs)
	if b.TopResellers > 0 && len(ranked) > b.TopResellers {
		ranked = ranked[:b.TopResellers]
	}

	dayStart := day.Date.Add(b.DayStart)
	dayEnd := day.Date.Add(b.DayEnd)

	var best Suggestion
	found := false
	for _, site := range ranked {
		target := site.Point
		cand, ok := b.Searcher.FindBestSlot(ctx, dayStart, dayEnd, home, day.Appointments, &target, b.VisitDuration)
		if !ok {
			continue
		}
		if !found || cand.Cost() < best.TravelIn+best.TravelOut {
			best = Suggestion{
				Kind:         SuggestReseller,
				ResellerName: site.Name,
				Start:        cand.Start,
				End:          cand.End,
				TravelIn:     cand.TravelIn,
				TravelOut:    cand.TravelOut,
			}
			found = true
		}
	}
	if found {
		b.logger().Debug("reseller suggestion", "date", day.Date.Format("2006-01-02"), "reseller", best.ResellerName)
	}
	return best, found
}

// RankSites orders sites by their minimum haversine distance to any of the
// reference points.
func RankSites(sites []Site, refs []geo.Point) []Site {
	type scored struct {
		site Site
		km   float64
	}
	scores := make([]scored, 0, len(sites))
	for _, s := range sites {
		min := -1.0
		for _, ref := range refs {
			if d := geo.Haversine(s.Point, ref); min < 0 || d < min {
				min = d
			}
		}
		scores = append(scores, scored{site: s, km: min})
	}
	sort.SliceStable(scores, func(i, j int) bool { return scores[i].km < scores[j].km })

	out := make([]Site, len(scores))
	for i, s := range scores {
		out[i] = s.site
	}
	return out
}

// suggestAdminWindow picks the largest free block across the configured
// bands, after buffering the day's busy intervals.
func (b *Builder) suggestAdminWindow(day DayInput) (Suggestion, bool) {
	dayStart := day.Date.Add(b.DayStart)
	dayEnd := day.Date.Add(b.DayEnd)
	busy := BusyIntervals(day.Events, dayStart, dayEnd, b.Buffer)

	var best interval.Interval
	bestLabel := ""
	for _, band := range b.Bands {
		bandStart := day.Date.Add(band.Start)
		bandEnd := day.Date.Add(band.End)
		if bandStart.Before(dayStart) {
			bandStart = dayStart
		}
		if bandEnd.After(dayEnd) {
			bandEnd = dayEnd
		}
		if !bandEnd.After(bandStart) {
			continue
		}

		block, ok := interval.Largest(interval.FreeBlocks(bandStart, bandEnd, busy))
		if !ok {
			continue
		}
		if bestLabel == "" || block.Duration() > best.Duration() {
			best = block
			bestLabel = band.Label
		}
	}
	if bestLabel == "" {
		return Suggestion{}, false
	}
	return Suggestion{
		Kind:      SuggestAdmin,
		BandLabel: bestLabel,
		Start:     best.Start,
		End:       best.End,
	}, true
}

// BusyIntervals converts a day's events into buffered, merged busy intervals
// clamped to the day window. All-day events expand to the full window.
func BusyIntervals(events []feed.Event, dayStart, dayEnd time.Time, buffer time.Duration) []interval.Interval {
	ivs := make([]interval.Interval, 0, len(events))
	for _, ev := range events {
		iv := interval.Interval{Start: ev.Start, End: ev.End}
		if ev.AllDay {
			iv = interval.Interval{Start: dayStart, End: dayEnd}
		}
		iv = interval.Buffered(iv, buffer, dayStart, dayEnd)
		if iv.End.After(iv.Start) {
			ivs = append(ivs, iv)
		}
	}
	return interval.Merge(ivs)
}

// Summary renders counts in a stable order for logging and display.
func (i Item) Summary() string {
	return fmt.Sprintf("%d events (%d training, %d demo, %d reseller, %d other)",
		i.EventCount,
		i.Counts[CategoryTraining],
		i.Counts[CategoryDemo],
		i.Counts[CategoryReseller],
		i.Counts[CategoryOther])
}
