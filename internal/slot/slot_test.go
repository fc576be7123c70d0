package slot

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartslot/slotplanner/internal/geo"
)

// stubTravel returns fixed minutes for legs into and out of the target and
// zero for everything else.
type stubTravel struct {
	target *geo.Point
	in     int
	out    int
}

func (s stubTravel) Minutes(_ context.Context, from, to *geo.Point, _ time.Time) int {
	if to == s.target {
		return s.in
	}
	if from == s.target {
		return s.out
	}
	return 0
}

func day(h, m int) time.Time {
	return time.Date(2026, 2, 2, h, m, 0, 0, time.UTC)
}

func mustPoint(t *testing.T, label string, lat, lon float64) geo.Point {
	t.Helper()
	p, err := geo.NewPoint(label, lat, lon)
	require.NoError(t, err)
	return p
}

func TestFindBestSlotAroundOneAppointment(t *testing.T) {
	home := mustPoint(t, "home", 50.85, 4.35)
	target := mustPoint(t, "client", 50.88, 4.40)
	travel := stubTravel{target: &target, in: 20, out: 15}
	s := &Searcher{Travel: travel, Buffer: 0}

	existing := []Appointment{{Label: "Formation", Start: day(10, 0), End: day(11, 0)}}

	cand, ok := s.FindBestSlot(context.Background(), day(7, 30), day(16, 30), home, existing, &target, time.Hour)
	require.True(t, ok)
	assert.Equal(t, day(7, 50), cand.Start)
	assert.Equal(t, day(8, 50), cand.End)
	assert.Equal(t, 20, cand.TravelIn)
	assert.Equal(t, 15, cand.TravelOut)
	assert.Equal(t, 35, cand.Cost())
	assert.Equal(t, "day start", cand.PrevLabel)
	assert.Equal(t, "Formation", cand.NextLabel)
}

func TestFindBestSlotNoSlackIsInfeasible(t *testing.T) {
	home := mustPoint(t, "home", 50.85, 4.35)
	target := mustPoint(t, "client", 50.88, 4.40)
	travel := stubTravel{target: &target, in: 20, out: 15}
	s := &Searcher{Travel: travel, Buffer: 0}

	existing := []Appointment{{Label: "Formation", Start: day(10, 0), End: day(11, 0)}}

	_, ok := s.FindBestSlot(context.Background(), day(10, 0), day(11, 30), home, existing, &target, time.Hour)
	assert.False(t, ok)
}

func TestFindBestSlotBufferDelaysDeparture(t *testing.T) {
	home := mustPoint(t, "home", 50.85, 4.35)
	target := mustPoint(t, "client", 50.88, 4.40)
	travel := stubTravel{target: &target, in: 10, out: 10}
	s := &Searcher{Travel: travel, Buffer: 15 * time.Minute}

	// Only the gap after the existing appointment is open.
	existing := []Appointment{{Label: "Démo", Start: day(7, 30), End: day(12, 0)}}

	cand, ok := s.FindBestSlot(context.Background(), day(7, 30), day(16, 30), home, existing, &target, time.Hour)
	require.True(t, ok)
	// 12:00 end + 15 buffer + 10 travel.
	assert.Equal(t, day(12, 25), cand.Start)
}

func TestFindBestSlotNeverMovesExistingEvents(t *testing.T) {
	home := mustPoint(t, "home", 50.85, 4.35)
	target := mustPoint(t, "client", 50.88, 4.40)
	travel := stubTravel{target: &target, in: 5, out: 5}
	s := &Searcher{Travel: travel, Buffer: 0}

	existing := []Appointment{
		{Label: "A", Start: day(8, 0), End: day(10, 0)},
		{Label: "B", Start: day(10, 30), End: day(12, 30)},
		{Label: "C", Start: day(13, 0), End: day(16, 0)},
	}

	cand, ok := s.FindBestSlot(context.Background(), day(7, 30), day(16, 30), home, existing, &target, 2*time.Hour)
	// No gap holds 2 hours plus travel; the day contributes nothing.
	assert.False(t, ok)
	assert.Zero(t, cand.Cost())
}

func TestFindBestSlotMergesOverlappingAppointments(t *testing.T) {
	home := mustPoint(t, "home", 50.85, 4.35)
	target := mustPoint(t, "client", 50.88, 4.40)
	travel := stubTravel{target: &target, in: 10, out: 10}
	s := &Searcher{Travel: travel, Buffer: 0}

	existing := []Appointment{
		{Label: "A", Start: day(8, 30), End: day(11, 0)},
		{Label: "B", Start: day(10, 0), End: day(12, 0)},
	}

	cand, ok := s.FindBestSlot(context.Background(), day(7, 30), day(16, 30), home, existing, &target, time.Hour)
	require.True(t, ok)
	// The merged block runs 08:30-12:00; the morning gap is too small, so the
	// candidate lands after the whole block, not inside the overlap.
	assert.Equal(t, day(12, 10), cand.Start)
	assert.Equal(t, "day end", cand.NextLabel)
}

func TestFindBestSlotIgnoresPreWindowAppointment(t *testing.T) {
	home := mustPoint(t, "home", 50.85, 4.35)
	target := mustPoint(t, "client", 50.88, 4.40)
	travel := stubTravel{target: &target, in: 10, out: 10}
	s := &Searcher{Travel: travel, Buffer: 15 * time.Minute}

	// An early appointment entirely before the work window must not pull the
	// candidate in front of day-start.
	existing := []Appointment{{Label: "Sport", Start: day(6, 0), End: day(7, 0)}}

	cand, ok := s.FindBestSlot(context.Background(), day(7, 30), day(16, 30), home, existing, &target, time.Hour)
	require.True(t, ok)
	assert.False(t, cand.Start.Before(day(7, 30)), "candidate starts before the work window")
	assert.Equal(t, day(7, 40), cand.Start)
	assert.Equal(t, "day start", cand.PrevLabel)
}

func TestFindBestSlotClampsOverlappingAppointmentToWindow(t *testing.T) {
	home := mustPoint(t, "home", 50.85, 4.35)
	target := mustPoint(t, "client", 50.88, 4.40)
	travel := stubTravel{target: &target, in: 10, out: 10}
	s := &Searcher{Travel: travel, Buffer: 0}

	existing := []Appointment{
		{Label: "Petit-déjeuner client", Start: day(6, 0), End: day(8, 0)},
		{Label: "Réunion tardive", Start: day(16, 0), End: day(18, 0)},
	}

	cand, ok := s.FindBestSlot(context.Background(), day(7, 30), day(16, 30), home, existing, &target, time.Hour)
	require.True(t, ok)
	// The clamped blocks occupy 07:30-08:00 and 16:00-16:30; the candidate
	// sits between them and inside the window.
	assert.Equal(t, day(8, 10), cand.Start)
	assert.False(t, cand.End.Add(time.Duration(cand.TravelOut)*time.Minute).After(day(16, 0)))
}

func horizonReq(home geo.Point, target *geo.Point, appts map[string][]Appointment, rank RankMode) HorizonRequest {
	return HorizonRequest{
		From:         time.Date(2026, 2, 2, 8, 0, 0, 0, time.UTC),
		Days:         2,
		Location:     time.UTC,
		DayStart:     7*time.Hour + 30*time.Minute,
		DayEnd:       16*time.Hour + 30*time.Minute,
		Home:         home,
		Target:       target,
		Duration:     time.Hour,
		Rank:         rank,
		Appointments: appts,
	}
}

// dayTravel charges different leg costs per weekday so the two days rank
// differently.
type dayTravel struct {
	target *geo.Point
	byDay  map[time.Weekday]int
}

func (d dayTravel) Minutes(_ context.Context, from, to *geo.Point, departAt time.Time) int {
	if to == d.target || from == d.target {
		return d.byDay[departAt.Weekday()]
	}
	return 0
}

func TestSearchHorizonRankTravelVsEarliest(t *testing.T) {
	home := mustPoint(t, "home", 50.85, 4.35)
	target := mustPoint(t, "client", 50.88, 4.40)

	appts := map[string][]Appointment{
		"2026-02-02": {{Label: "A", Start: day(10, 0), End: day(11, 0)}},
		"2026-02-03": {{Label: "B", Start: day(10, 0).AddDate(0, 0, 1), End: day(11, 0).AddDate(0, 0, 1)}},
	}

	// Monday costs 20 per leg, Tuesday 5 per leg.
	travel := dayTravel{target: &target, byDay: map[time.Weekday]int{
		time.Monday:  20,
		time.Tuesday: 5,
	}}
	s := &Searcher{Travel: travel, Buffer: 0}

	ranked, err := s.SearchHorizon(context.Background(), horizonReq(home, &target, appts, RankTravel))
	require.NoError(t, err)
	assert.Equal(t, time.Tuesday, ranked[0].Day.Weekday(), "travel mode prefers the cheaper day")

	ranked, err = s.SearchHorizon(context.Background(), horizonReq(home, &target, appts, RankEarliest))
	require.NoError(t, err)
	assert.Equal(t, time.Monday, ranked[0].Day.Weekday(), "earliest mode prefers the earlier day regardless of cost")
}

func TestSearchHorizonPrefersDaysWithAppointments(t *testing.T) {
	home := mustPoint(t, "home", 50.85, 4.35)
	target := mustPoint(t, "client", 50.88, 4.40)

	// Only Tuesday has an existing appointment; Monday is empty.
	appts := map[string][]Appointment{
		"2026-02-03": {{Label: "B", Start: day(10, 0).AddDate(0, 0, 1), End: day(11, 0).AddDate(0, 0, 1)}},
	}
	travel := stubTravel{target: &target, in: 10, out: 10}
	s := &Searcher{Travel: travel, Buffer: 0}

	for _, rank := range []RankMode{RankTravel, RankEarliest} {
		ranked, err := s.SearchHorizon(context.Background(), horizonReq(home, &target, appts, rank))
		require.NoError(t, err)
		assert.True(t, ranked[0].HasExisting, "mode %s must prefer the non-empty day", rank)
	}
}

func TestSearchHorizonSkipsWeekends(t *testing.T) {
	home := mustPoint(t, "home", 50.85, 4.35)
	target := mustPoint(t, "client", 50.88, 4.40)
	travel := stubTravel{target: &target, in: 10, out: 10}
	s := &Searcher{Travel: travel, Buffer: 0}

	req := horizonReq(home, &target, nil, RankEarliest)
	req.From = time.Date(2026, 2, 6, 8, 0, 0, 0, time.UTC) // a Friday
	req.Days = 3
	req.SkipWeekends = true

	ranked, err := s.SearchHorizon(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, ranked, 1)
	assert.Equal(t, time.Friday, ranked[0].Day.Weekday())
}

func TestSearchHorizonNoSlot(t *testing.T) {
	home := mustPoint(t, "home", 50.85, 4.35)
	target := mustPoint(t, "client", 50.88, 4.40)
	travel := stubTravel{target: &target, in: 10, out: 10}
	s := &Searcher{Travel: travel, Buffer: 0}

	// Both days fully blocked.
	full := func(d int) []Appointment {
		return []Appointment{{
			Label: "Salon",
			Start: time.Date(2026, 2, 2+d, 7, 30, 0, 0, time.UTC),
			End:   time.Date(2026, 2, 2+d, 16, 30, 0, 0, time.UTC),
		}}
	}
	appts := map[string][]Appointment{
		"2026-02-02": full(0),
		"2026-02-03": full(1),
	}

	_, err := s.SearchHorizon(context.Background(), horizonReq(home, &target, appts, RankTravel))
	assert.ErrorIs(t, err, ErrNoSlot)
}
