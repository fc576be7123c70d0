package slot

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/smartslot/slotplanner/internal/geo"
)

// ErrNoSlot means the whole horizon was searched without a feasible
// placement. Constraints are never relaxed silently.
var ErrNoSlot = errors.New("slot: no feasible slot in horizon")

// TravelEstimator supplies driving minutes between two points at a departure
// time. Nil endpoints must yield zero.
type TravelEstimator interface {
	Minutes(ctx context.Context, from, to *geo.Point, departAt time.Time) int
}

// Appointment is one existing calendar entry on a day's timeline. Loc is nil
// when the location is unknown or an online meeting.
type Appointment struct {
	Label string
	Start time.Time
	End   time.Time
	Loc   *geo.Point
}

// Candidate is one feasible placement of the new appointment.
type Candidate struct {
	Start     time.Time
	End       time.Time
	TravelIn  int // minutes from the predecessor
	TravelOut int // minutes to the successor
	PrevLabel string
	NextLabel string

	Day         time.Time // midnight of the day searched, local
	HasExisting bool      // the day already held at least one appointment
	Notes       []string  // advisory notes, e.g. unresolved locations
}

// Cost is the total incremental travel in minutes.
func (c Candidate) Cost() int { return c.TravelIn + c.TravelOut }

// RankMode orders per-day best candidates across the horizon.
type RankMode string

const (
	// RankTravel prefers the lowest total incremental travel.
	RankTravel RankMode = "travel"
	// RankEarliest prefers the earliest calendar date.
	RankEarliest RankMode = "earliest"
)

// Searcher runs the placement search. Buffer pads departures after existing
// appointments and arrivals before them; timeline anchors are exempt.
type Searcher struct {
	Travel TravelEstimator
	Buffer time.Duration
}

// node is an ordered anchor in the day: day-start, an appointment, day-end.
type node struct {
	label  string
	start  time.Time
	end    time.Time
	loc    *geo.Point
	anchor bool
}

// FindBestSlot scans every gap between consecutive timeline nodes of one day
// and keeps the cheapest feasible placement, ties broken by earliest start.
// Existing appointments are never moved or split.
func (s *Searcher) FindBestSlot(ctx context.Context, dayStart, dayEnd time.Time, home geo.Point, existing []Appointment, target *geo.Point, duration time.Duration) (Candidate, bool) {
	timeline := buildTimeline(dayStart, dayEnd, home, existing)

	var best Candidate
	found := false

	for i := 0; i+1 < len(timeline); i++ {
		prev, next := timeline[i], timeline[i+1]

		depart := prev.end
		if !prev.anchor {
			depart = depart.Add(s.Buffer)
		}

		travelIn := s.Travel.Minutes(ctx, prev.loc, target, depart)
		start := depart.Add(time.Duration(travelIn) * time.Minute)
		end := start.Add(duration)

		travelOut := s.Travel.Minutes(ctx, target, next.loc, end)
		arrival := end.Add(time.Duration(travelOut) * time.Minute)
		if !next.anchor {
			arrival = arrival.Add(s.Buffer)
		}

		if arrival.After(next.start) {
			continue
		}

		cand := Candidate{
			Start:     start,
			End:       end,
			TravelIn:  travelIn,
			TravelOut: travelOut,
			PrevLabel: prev.label,
			NextLabel: next.label,
		}
		if !found || cand.Cost() < best.Cost() ||
			(cand.Cost() == best.Cost() && cand.Start.Before(best.Start)) {
			best = cand
			found = true
		}
	}
	return best, found
}

// buildTimeline orders the day: home-anchored day-start, merged existing
// appointments, home-anchored day-end. Appointments are clamped to the day
// window (those entirely outside are dropped) so the timeline stays ordered
// and no candidate can land before day-start or after day-end. Overlapping
// appointments coalesce into a single block keeping the first known location.
func buildTimeline(dayStart, dayEnd time.Time, home geo.Point, existing []Appointment) []node {
	sorted := make([]Appointment, 0, len(existing))
	for _, a := range existing {
		if !a.End.After(dayStart) || !a.Start.Before(dayEnd) {
			continue
		}
		if a.Start.Before(dayStart) {
			a.Start = dayStart
		}
		if a.End.After(dayEnd) {
			a.End = dayEnd
		}
		sorted = append(sorted, a)
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Start.Before(sorted[j].Start) })

	nodes := []node{{label: "day start", start: dayStart, end: dayStart, loc: &home, anchor: true}}
	for _, a := range sorted {
		if len(nodes) > 1 {
			last := &nodes[len(nodes)-1]
			if !a.Start.After(last.end) {
				if a.End.After(last.end) {
					last.end = a.End
				}
				if last.loc == nil {
					last.loc = a.Loc
				}
				continue
			}
		}
		nodes = append(nodes, node{label: a.Label, start: a.Start, end: a.End, loc: a.Loc})
	}
	nodes = append(nodes, node{label: "day end", start: dayEnd, end: dayEnd, loc: &home, anchor: true})
	return nodes
}

// HorizonRequest drives a multi-day search.
type HorizonRequest struct {
	From         time.Time // first day, any time within it, in Location
	Days         int
	SkipWeekends bool
	Location     *time.Location

	DayStart time.Duration // offset from local midnight
	DayEnd   time.Duration

	Home     geo.Point
	Target   *geo.Point
	Duration time.Duration

	Rank RankMode

	// Appointments maps "2006-01-02" local date keys to that day's entries.
	Appointments map[string][]Appointment
}

// SearchHorizon finds each day's best slot and ranks them. Days that already
// hold at least one appointment beat fully empty days in either mode, which
// keeps an empty (possibly failed) feed from recommending arbitrary dates.
func (s *Searcher) SearchHorizon(ctx context.Context, req HorizonRequest) ([]Candidate, error) {
	loc := req.Location
	if loc == nil {
		loc = time.Local
	}
	if req.Days <= 0 {
		req.Days = 1
	}

	first := req.From.In(loc)
	midnight := time.Date(first.Year(), first.Month(), first.Day(), 0, 0, 0, 0, loc)

	var candidates []Candidate
	for day := 0; day < req.Days; day++ {
		date := midnight.AddDate(0, 0, day)
		if req.SkipWeekends && (date.Weekday() == time.Saturday || date.Weekday() == time.Sunday) {
			continue
		}

		existing := req.Appointments[date.Format("2006-01-02")]
		best, ok := s.FindBestSlot(ctx, date.Add(req.DayStart), date.Add(req.DayEnd), req.Home, existing, req.Target, req.Duration)
		if !ok {
			continue
		}
		best.Day = date
		best.HasExisting = len(existing) > 0
		candidates = append(candidates, best)
	}

	if len(candidates) == 0 {
		return nil, ErrNoSlot
	}
	rankCandidates(candidates, req.Rank)
	return candidates, nil
}

func rankCandidates(candidates []Candidate, mode RankMode) {
	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.HasExisting != b.HasExisting {
			return a.HasExisting
		}
		if mode == RankEarliest {
			return a.Start.Before(b.Start)
		}
		if a.Cost() != b.Cost() {
			return a.Cost() < b.Cost()
		}
		return a.Start.Before(b.Start)
	})
}
