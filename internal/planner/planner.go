// Package planner wires the pipeline: feed events are geocoded, turned into
// per-day timelines, and fed to the slot search or the day report builder.
// Each stage is independently testable; nothing here touches HTTP beyond the
// injected providers.
package planner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/smartslot/slotplanner/internal/config"
	"github.com/smartslot/slotplanner/internal/feed"
	"github.com/smartslot/slotplanner/internal/geo"
	"github.com/smartslot/slotplanner/internal/geocode"
	"github.com/smartslot/slotplanner/internal/report"
	"github.com/smartslot/slotplanner/internal/reseller"
	"github.com/smartslot/slotplanner/internal/slot"
	"github.com/smartslot/slotplanner/internal/travel"
)

// Planner holds the resolver stack for one process. The geocode and travel
// caches live for the planner's lifetime and are shared across searches.
type Planner struct {
	cfg      *config.Config
	geocoder *geocode.Resolver
	travels  *travel.Resolver
	searcher *slot.Searcher
	loc      *time.Location
	logger   *slog.Logger

	dayStart time.Duration
	dayEnd   time.Duration
	buffer   time.Duration
}

// New builds a Planner from configuration. Providers without credentials are
// left out of the chain rather than failing at call time.
func New(cfg *config.Config, logger *slog.Logger) (*Planner, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	dayStart, err := config.ParseClock(cfg.Schedule.DayStart)
	if err != nil {
		return nil, fmt.Errorf("parsing schedule day_start: %w", err)
	}
	dayEnd, err := config.ParseClock(cfg.Schedule.DayEnd)
	if err != nil {
		return nil, fmt.Errorf("parsing schedule day_end: %w", err)
	}
	if dayEnd <= dayStart {
		return nil, fmt.Errorf("schedule day_end %q is not after day_start %q", cfg.Schedule.DayEnd, cfg.Schedule.DayStart)
	}

	geocodeTimeout := time.Duration(cfg.Geocode.TimeoutSeconds) * time.Second
	var providers []geocode.Provider
	if cfg.Geocode.DistanceMatrixKey != "" {
		providers = append(providers, geocode.NewDistanceMatrix(cfg.Geocode.DistanceMatrixKey, geocodeTimeout))
	}
	providers = append(providers, geocode.NewNominatim(geocodeTimeout))
	geocoder := geocode.NewResolver(providers, cfg.Geocode.Overrides, cfg.Geocode.Country, logger)

	var router travel.Router
	if cfg.Travel.DistanceMatrixKey != "" {
		router = travel.NewDistanceMatrixRouter(cfg.Travel.DistanceMatrixKey, time.Duration(cfg.Travel.TimeoutSeconds)*time.Second)
	}
	travels := travel.NewResolver(router, travel.Options{
		Margin:      cfg.Travel.Margin,
		Buffer:      time.Duration(cfg.Travel.BufferMinutes) * time.Minute,
		AvgSpeedKmh: cfg.Travel.AvgSpeedKmh,
		Timeout:     time.Duration(cfg.Travel.TimeoutSeconds) * time.Second,
	}, logger)

	buffer := time.Duration(cfg.Schedule.BufferMinutes) * time.Minute

	return &Planner{
		cfg:      cfg,
		geocoder: geocoder,
		travels:  travels,
		searcher: &slot.Searcher{Travel: travels, Buffer: buffer},
		loc:      time.Local,
		logger:   logger,
		dayStart: dayStart,
		dayEnd:   dayEnd,
		buffer:   buffer,
	}, nil
}

// SuggestRequest asks for the best insertion of one new appointment.
type SuggestRequest struct {
	FeedText []byte
	Address  string
	Duration time.Duration
	From     time.Time
	Days     int
	Rank     slot.RankMode
}

// SuggestResult carries the ranked candidates plus advisory notes. Notes
// never abort a search; they explain degraded legs.
type SuggestResult struct {
	Candidates []slot.Candidate
	Notes      []string
}

// Suggest runs the full pipeline: parse, expand, geocode, search.
func (p *Planner) Suggest(ctx context.Context, req SuggestRequest) (*SuggestResult, error) {
	events, err := feed.Parse(req.FeedText, p.loc)
	if err != nil {
		return nil, fmt.Errorf("parsing calendar feed: %w", err)
	}

	days := req.Days
	if days <= 0 {
		days = p.cfg.Schedule.HorizonDays
	}
	from := req.From
	if from.IsZero() {
		from = time.Now().In(p.loc)
	}
	horizonEnd := from.AddDate(0, 0, days+1)
	events = feed.Expand(events, from.AddDate(0, 0, -1), horizonEnd, p.logger)

	home, err := p.resolveHome(ctx)
	if err != nil {
		return nil, err
	}

	var notes []string
	target, err := p.geocoder.Resolve(ctx, req.Address)
	targetPtr := &target
	if err != nil {
		targetPtr = nil
		notes = append(notes, fmt.Sprintf("appointment address %q could not be geocoded; travel estimated as 0 min", req.Address))
	}

	appointments, missed := p.buildTimelines(ctx, events)
	if missed > 0 {
		notes = append(notes, fmt.Sprintf("%d locations could not be geocoded; travel estimated as 0 min", missed))
	}

	candidates, err := p.searcher.SearchHorizon(ctx, slot.HorizonRequest{
		From:         from,
		Days:         days,
		SkipWeekends: p.cfg.Schedule.SkipWeekends,
		Location:     p.loc,
		DayStart:     p.dayStart,
		DayEnd:       p.dayEnd,
		Home:         home,
		Target:       targetPtr,
		Duration:     req.Duration,
		Rank:         req.Rank,
		Appointments: appointments,
	})
	if err != nil {
		if errors.Is(err, slot.ErrNoSlot) {
			return &SuggestResult{Notes: notes}, err
		}
		return nil, err
	}
	return &SuggestResult{Candidates: candidates, Notes: notes}, nil
}

// ReportRequest asks for the per-day classification over the horizon.
type ReportRequest struct {
	FeedText  []byte
	From      time.Time
	Days      int
	Resellers []reseller.Reseller
}

// Report runs parse, expand, geocode and the day report builder.
func (p *Planner) Report(ctx context.Context, req ReportRequest) ([]report.Item, error) {
	events, err := feed.Parse(req.FeedText, p.loc)
	if err != nil {
		return nil, fmt.Errorf("parsing calendar feed: %w", err)
	}

	days := req.Days
	if days <= 0 {
		days = p.cfg.Schedule.HorizonDays
	}
	from := req.From
	if from.IsZero() {
		from = time.Now().In(p.loc)
	}
	events = feed.Expand(events, from.AddDate(0, 0, -1), from.AddDate(0, 0, days+1), p.logger)

	home, err := p.resolveHome(ctx)
	if err != nil {
		return nil, err
	}

	appointments, missed := p.buildTimelines(ctx, events)
	grouped := feed.GroupByDay(events, p.loc)
	sites := p.geocodeResellers(ctx, req.Resellers)

	bands := make([]report.Band, 0, len(p.cfg.Report.Bands))
	for _, b := range p.cfg.Report.Bands {
		start, errS := config.ParseClock(b.Start)
		end, errE := config.ParseClock(b.End)
		if errS != nil || errE != nil || end <= start {
			p.logger.Debug("skipping malformed admin band", "label", b.Label)
			continue
		}
		bands = append(bands, report.Band{Label: b.Label, Start: start, End: end})
	}

	builder := &report.Builder{
		Searcher: p.searcher,
		Thresholds: report.Thresholds{
			MaxTrainings:   p.cfg.Report.Thresholds.MaxTrainings,
			MaxDemos:       p.cfg.Report.Thresholds.MaxDemos,
			ComboDemos:     p.cfg.Report.Thresholds.ComboDemos,
			ComboTrainings: p.cfg.Report.Thresholds.ComboTrainings,
		},
		Bands:         bands,
		DayStart:      p.dayStart,
		DayEnd:        p.dayEnd,
		Buffer:        p.buffer,
		TopResellers:  p.cfg.Report.TopResellers,
		VisitDuration: time.Duration(p.cfg.Report.VisitMinutes) * time.Minute,
		Location:      p.loc,
		Logger:        p.logger,
	}

	first := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, p.loc)
	var inputs []report.DayInput
	for d := 0; d < days; d++ {
		date := first.AddDate(0, 0, d)
		if p.cfg.Schedule.SkipWeekends && (date.Weekday() == time.Saturday || date.Weekday() == time.Sunday) {
			continue
		}
		key := date.Format("2006-01-02")
		input := report.DayInput{
			Date:         date,
			Events:       grouped[key],
			Appointments: appointments[key],
		}
		if missed > 0 {
			input.Notes = []string{fmt.Sprintf("%d locations could not be geocoded; travel estimated as 0 min", missed)}
		}
		inputs = append(inputs, input)
	}

	return builder.Build(ctx, inputs, home, sites), nil
}

func (p *Planner) resolveHome(ctx context.Context) (geo.Point, error) {
	if p.cfg.Home.Address == "" {
		return geo.Point{}, fmt.Errorf("home address not configured: set home.address or SLOTPLANNER_HOME_ADDRESS")
	}
	home, err := p.geocoder.Resolve(ctx, p.cfg.Home.Address)
	if err != nil {
		return geo.Point{}, fmt.Errorf("geocoding home address: %w", err)
	}
	if p.cfg.Home.Label != "" {
		home.Label = p.cfg.Home.Label
	}
	return home, nil
}

// buildTimelines groups events by local day and geocodes their locations,
// returning per-day appointments plus the count of unresolved locations.
// Distinct labels resolve concurrently; the caches make this idempotent.
func (p *Planner) buildTimelines(ctx context.Context, events []feed.Event) (map[string][]slot.Appointment, int) {
	labels := make(map[string]struct{})
	for _, ev := range events {
		if ev.Location != "" && !ev.AllDay {
			labels[ev.Location] = struct{}{}
		}
	}

	points := make(map[string]*geo.Point, len(labels))
	missed := 0
	var mu sync.Mutex
	var wg sync.WaitGroup
	for label := range labels {
		wg.Add(1)
		go func(label string) {
			defer wg.Done()
			pt, err := p.geocoder.Resolve(ctx, label)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				points[label] = nil
				if !errors.Is(err, geocode.ErrMeetingLabel) {
					missed++
				}
				return
			}
			points[label] = &pt
		}(label)
	}
	wg.Wait()

	grouped := feed.GroupByDay(events, p.loc)
	out := make(map[string][]slot.Appointment, len(grouped))
	for key, dayEvents := range grouped {
		date, err := time.ParseInLocation("2006-01-02", key, p.loc)
		if err != nil {
			continue
		}
		winStart := date.Add(p.dayStart)
		winEnd := date.Add(p.dayEnd)

		var appts []slot.Appointment
		for _, ev := range dayEvents {
			a := slot.Appointment{
				Label: ev.Summary,
				Start: ev.Start.In(p.loc),
				End:   ev.End.In(p.loc),
			}
			if ev.AllDay {
				a.Start = winStart
				a.End = winEnd
			} else if ev.Location != "" {
				a.Loc = points[ev.Location]
			}
			appts = append(appts, a)
		}
		sort.Slice(appts, func(i, j int) bool { return appts[i].Start.Before(appts[j].Start) })
		out[key] = appts
	}
	return out, missed
}

// geocodeResellers resolves reseller addresses once per run; failures simply
// drop that reseller from ranking.
func (p *Planner) geocodeResellers(ctx context.Context, resellers []reseller.Reseller) []report.Site {
	sites := make([]report.Site, 0, len(resellers))
	for _, r := range resellers {
		pt, err := p.geocoder.Resolve(ctx, r.Address)
		if err != nil {
			p.logger.Debug("reseller address could not be geocoded", "name", r.Name, "address", r.Address)
			continue
		}
		pt.Label = r.Name
		sites = append(sites, report.Site{Name: r.Name, Point: pt})
	}
	return sites
}
