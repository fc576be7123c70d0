package feed

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

const userAgent = "slotplanner/1.0 (calendar fetch)"

// Event is one parsed calendar entry. Start and End are UTC-normalized;
// all-day events span local midnight to midnight.
type Event struct {
	Summary  string
	Location string
	Start    time.Time
	End      time.Time
	AllDay   bool

	// RRule and ExDates are carried for recurrence expansion; Expand
	// consumes them and emits concrete occurrences.
	RRule   string
	ExDates []time.Time
}

// Fetch retrieves raw calendar text from an https URL or a local file path.
// Parsing never fetches; this is the collaborator side of the contract.
func Fetch(ctx context.Context, source string, timeout time.Duration) ([]byte, error) {
	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		client := &http.Client{Timeout: timeout}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, source, nil)
		if err != nil {
			return nil, fmt.Errorf("creating request: %w", err)
		}
		req.Header.Set("User-Agent", userAgent)
		req.Header.Set("Accept", "text/calendar,text/plain")

		resp, err := client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("fetching calendar: %w", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("calendar fetch returned status %d", resp.StatusCode)
		}
		return io.ReadAll(resp.Body)
	}

	data, err := os.ReadFile(source)
	if err != nil {
		return nil, fmt.Errorf("reading calendar file: %w", err)
	}
	return data, nil
}

// GroupByDay groups events by date string (YYYY-MM-DD in the given location).
// An event appears under every local day in [Start, End), so a multi-day event
// blocks each day it covers, not just the first.
func GroupByDay(events []Event, loc *time.Location) map[string][]Event {
	grouped := make(map[string][]Event)
	for _, e := range events {
		start := e.Start.In(loc)
		day := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, loc)
		end := e.End.In(loc)
		for day.Before(end) {
			key := day.Format("2006-01-02")
			grouped[key] = append(grouped[key], e)
			day = day.AddDate(0, 0, 1)
		}
	}
	return grouped
}
