package travel

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"time"

	"github.com/samber/mo"

	"github.com/smartslot/slotplanner/internal/geo"
)

// Router is one traffic-aware routing backend. None means the provider could
// not produce a usable duration for the leg.
type Router interface {
	Route(ctx context.Context, from, to geo.Point, departAt time.Time) (mo.Option[time.Duration], error)
}

// DistanceMatrixRouter queries the distancematrix.ai distance matrix,
// preferring the traffic-aware duration when available.
type DistanceMatrixRouter struct {
	APIKey  string
	BaseURL string
	Client  *http.Client
}

func NewDistanceMatrixRouter(apiKey string, timeout time.Duration) *DistanceMatrixRouter {
	return &DistanceMatrixRouter{
		APIKey:  apiKey,
		BaseURL: "https://api.distancematrix.ai/maps/api/distancematrix/json",
		Client:  &http.Client{Timeout: timeout},
	}
}

func (d *DistanceMatrixRouter) Route(ctx context.Context, from, to geo.Point, departAt time.Time) (mo.Option[time.Duration], error) {
	none := mo.None[time.Duration]()
	if d.APIKey == "" {
		return none, fmt.Errorf("distancematrix API key not configured")
	}

	params := url.Values{}
	params.Set("origins", fmt.Sprintf("%f,%f", from.Lat, from.Lon))
	params.Set("destinations", fmt.Sprintf("%f,%f", to.Lat, to.Lon))
	params.Set("key", d.APIKey)
	if !departAt.IsZero() {
		params.Set("departure_time", fmt.Sprintf("%d", departAt.Unix()))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.BaseURL+"?"+params.Encode(), nil)
	if err != nil {
		return none, fmt.Errorf("creating request: %w", err)
	}

	resp, err := d.Client.Do(req)
	if err != nil {
		return none, fmt.Errorf("calling router: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return none, fmt.Errorf("router returned status %d", resp.StatusCode)
	}

	var payload struct {
		Status string `json:"status"`
		Rows   []struct {
			Elements []struct {
				Status   string `json:"status"`
				Duration struct {
					Value float64 `json:"value"`
				} `json:"duration"`
				DurationInTraffic struct {
					Value float64 `json:"value"`
				} `json:"duration_in_traffic"`
			} `json:"elements"`
		} `json:"rows"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return none, fmt.Errorf("parsing router response: %w", err)
	}
	if payload.Status != "OK" || len(payload.Rows) == 0 || len(payload.Rows[0].Elements) == 0 {
		return none, nil
	}
	element := payload.Rows[0].Elements[0]
	if element.Status != "OK" {
		return none, nil
	}

	seconds := element.DurationInTraffic.Value
	if seconds <= 0 {
		seconds = element.Duration.Value
	}
	if seconds <= 0 || math.IsNaN(seconds) || math.IsInf(seconds, 0) {
		return none, nil
	}
	return mo.Some(time.Duration(seconds * float64(time.Second))), nil
}
