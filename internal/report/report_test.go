package report

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartslot/slotplanner/internal/feed"
	"github.com/smartslot/slotplanner/internal/geo"
	"github.com/smartslot/slotplanner/internal/slot"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		summary string
		want    Category
	}{
		{"Formation chez Dupont", CategoryTraining},
		{"TRAINING session", CategoryTraining},
		{"Démo produit", CategoryDemo},
		{"demo day", CategoryDemo},
		{"Visite revendeur Anvers", CategoryReseller},
		{"Reseller onboarding", CategoryReseller},
		{"Réunion d'équipe", CategoryOther},
		{"", CategoryOther},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Classify(tc.summary), tc.summary)
	}
}

func TestThresholdsIsFull(t *testing.T) {
	th := DefaultThresholds()

	counts := func(trainings, demos int) map[Category]int {
		return map[Category]int{CategoryTraining: trainings, CategoryDemo: demos}
	}

	assert.False(t, th.IsFull(counts(3, 0), false))
	assert.True(t, th.IsFull(counts(4, 0), false), "four trainings fill the day")
	assert.False(t, th.IsFull(counts(0, 1), false))
	assert.True(t, th.IsFull(counts(0, 2), false), "two demos fill the day")
	assert.True(t, th.IsFull(counts(2, 1), false), "one demo plus two trainings fill the day")
	assert.False(t, th.IsFull(counts(1, 1), false))
	assert.True(t, th.IsFull(counts(0, 0), true), "an all-day event always fills the day")
}

func mkPoint(t *testing.T, name string, lat, lon float64) geo.Point {
	t.Helper()
	p, err := geo.NewPoint(name, lat, lon)
	require.NoError(t, err)
	return p
}

func TestRankSitesByMinDistance(t *testing.T) {
	brussels := mkPoint(t, "Bruxelles", 50.8503, 4.3517)
	liege := mkPoint(t, "Liège", 50.6326, 5.5797)
	ghent := mkPoint(t, "Gand", 51.0543, 3.7174)

	sites := []Site{
		{Name: "Far", Point: liege},
		{Name: "Near", Point: brussels},
		{Name: "Mid", Point: ghent},
	}

	ranked := RankSites(sites, []geo.Point{mkPoint(t, "ref", 50.85, 4.36)})
	require.Len(t, ranked, 3)
	assert.Equal(t, "Near", ranked[0].Name)
	assert.Equal(t, "Far", ranked[2].Name)
}

func TestRankSitesUsesClosestReference(t *testing.T) {
	// One reference near each site; both sites should score near zero and
	// keep their stable order.
	a := mkPoint(t, "a", 50.85, 4.35)
	b := mkPoint(t, "b", 50.63, 5.58)
	sites := []Site{{Name: "A", Point: a}, {Name: "B", Point: b}}

	ranked := RankSites(sites, []geo.Point{b, a})
	require.Len(t, ranked, 2)
	assert.Equal(t, "A", ranked[0].Name)
}

func dayAt(h, m int) time.Time {
	return time.Date(2026, 2, 2, h, m, 0, 0, time.UTC)
}

func TestBusyIntervals(t *testing.T) {
	dayStart := dayAt(7, 30)
	dayEnd := dayAt(16, 30)

	events := []feed.Event{
		{Summary: "A", Start: dayAt(9, 0), End: dayAt(10, 0)},
		{Summary: "B", Start: dayAt(10, 0), End: dayAt(11, 0)},
		{Summary: "C", Start: dayAt(14, 0), End: dayAt(15, 0)},
	}

	busy := BusyIntervals(events, dayStart, dayEnd, 15*time.Minute)
	require.Len(t, busy, 2, "adjacent buffered events merge")
	assert.Equal(t, dayAt(8, 45), busy[0].Start)
	assert.Equal(t, dayAt(11, 15), busy[0].End)
	assert.Equal(t, dayAt(13, 45), busy[1].Start)
	assert.Equal(t, dayAt(15, 15), busy[1].End)
}

func TestBusyIntervalsAllDay(t *testing.T) {
	dayStart := dayAt(7, 30)
	dayEnd := dayAt(16, 30)

	events := []feed.Event{{Summary: "Salon", AllDay: true,
		Start: time.Date(2026, 2, 2, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2026, 2, 3, 0, 0, 0, 0, time.UTC)}}

	busy := BusyIntervals(events, dayStart, dayEnd, 15*time.Minute)
	require.Len(t, busy, 1)
	assert.Equal(t, dayStart, busy[0].Start)
	assert.Equal(t, dayEnd, busy[0].End)
}

// zeroTravel makes every leg free so placement always succeeds when a gap
// physically exists.
type zeroTravel struct{}

func (zeroTravel) Minutes(context.Context, *geo.Point, *geo.Point, time.Time) int { return 0 }

func testBuilder() *Builder {
	return &Builder{
		Searcher:   &slot.Searcher{Travel: zeroTravel{}},
		Thresholds: DefaultThresholds(),
		Bands: []Band{
			{Label: "morning", Start: 9 * time.Hour, End: 11 * time.Hour},
			{Label: "afternoon", Start: 13*time.Hour + 30*time.Minute, End: 16 * time.Hour},
		},
		DayStart:      7*time.Hour + 30*time.Minute,
		DayEnd:        16*time.Hour + 30*time.Minute,
		Buffer:        15 * time.Minute,
		TopResellers:  3,
		VisitDuration: time.Hour,
		Location:      time.UTC,
	}
}

func TestBuildFullDayGetsNoSuggestion(t *testing.T) {
	b := testBuilder()
	home := mkPoint(t, "home", 50.85, 4.35)

	day := DayInput{
		Date: time.Date(2026, 2, 2, 0, 0, 0, 0, time.UTC),
		Events: []feed.Event{
			{Summary: "Démo A", Start: dayAt(9, 0), End: dayAt(10, 0)},
			{Summary: "Démo B", Start: dayAt(11, 0), End: dayAt(12, 0)},
		},
	}

	items := b.Build(context.Background(), []DayInput{day}, home, nil)
	require.Len(t, items, 1)
	assert.True(t, items[0].IsFull)
	assert.Nil(t, items[0].Suggestion)
	assert.Equal(t, 2, items[0].Counts[CategoryDemo])
}

func TestBuildSuggestsReseller(t *testing.T) {
	b := testBuilder()
	home := mkPoint(t, "home", 50.85, 4.35)
	site := Site{Name: "Dealer BXL", Point: mkPoint(t, "dealer", 50.86, 4.36)}

	day := DayInput{
		Date: time.Date(2026, 2, 2, 0, 0, 0, 0, time.UTC),
		Events: []feed.Event{
			{Summary: "Formation", Start: dayAt(9, 0), End: dayAt(10, 0)},
		},
		Appointments: []slot.Appointment{
			{Label: "Formation", Start: dayAt(9, 0), End: dayAt(10, 0)},
		},
	}

	items := b.Build(context.Background(), []DayInput{day}, home, []Site{site})
	require.Len(t, items, 1)
	require.NotNil(t, items[0].Suggestion)
	assert.Equal(t, SuggestReseller, items[0].Suggestion.Kind)
	assert.Equal(t, "Dealer BXL", items[0].Suggestion.ResellerName)
	assert.True(t, items[0].Suggestion.End.Sub(items[0].Suggestion.Start) == time.Hour)
}

func TestBuildFallsBackToAdminWindow(t *testing.T) {
	b := testBuilder()
	home := mkPoint(t, "home", 50.85, 4.35)

	// No sites at all, so the admin window is the only option. The morning
	// band is busy; the afternoon band is free.
	day := DayInput{
		Date: time.Date(2026, 2, 2, 0, 0, 0, 0, time.UTC),
		Events: []feed.Event{
			{Summary: "Formation", Start: dayAt(9, 0), End: dayAt(11, 0)},
		},
	}

	items := b.Build(context.Background(), []DayInput{day}, home, nil)
	require.Len(t, items, 1)
	require.NotNil(t, items[0].Suggestion)
	assert.Equal(t, SuggestAdmin, items[0].Suggestion.Kind)
	assert.Equal(t, "afternoon", items[0].Suggestion.BandLabel)
	assert.Equal(t, dayAt(13, 30), items[0].Suggestion.Start)
	assert.Equal(t, dayAt(16, 0), items[0].Suggestion.End)
}

func TestBuildExplainsWhenNothingFits(t *testing.T) {
	b := testBuilder()
	home := mkPoint(t, "home", 50.85, 4.35)

	// One long event below the fullness thresholds that still blankets both
	// admin bands, and no reseller sites.
	day := DayInput{
		Date: time.Date(2026, 2, 2, 0, 0, 0, 0, time.UTC),
		Events: []feed.Event{
			{Summary: "Réunion régionale", Start: dayAt(8, 0), End: dayAt(16, 30)},
		},
	}

	items := b.Build(context.Background(), []DayInput{day}, home, nil)
	require.Len(t, items, 1)
	require.NotNil(t, items[0].Suggestion)
	assert.Equal(t, SuggestNone, items[0].Suggestion.Kind)
	assert.NotEmpty(t, items[0].Suggestion.Reason)
}

func TestItemSummary(t *testing.T) {
	item := Item{
		EventCount: 3,
		Counts: map[Category]int{
			CategoryTraining: 2,
			CategoryDemo:     1,
		},
	}
	assert.Equal(t, "3 events (2 training, 1 demo, 0 reseller, 0 other)", item.Summary())
}
