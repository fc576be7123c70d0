package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/samber/mo"

	"github.com/smartslot/slotplanner/internal/geo"
)

const providerUserAgent = "slotplanner/1.0 (geocode)"

// Provider is one geocoding backend. A None return means the provider had no
// usable coordinates for the address (a miss, not an error).
type Provider interface {
	Name() string
	Geocode(ctx context.Context, address string) (mo.Option[geo.Point], error)
}

// DistanceMatrix is the primary commercial geocoder.
type DistanceMatrix struct {
	APIKey   string
	BaseURL  string
	Language string
	Region   string
	Client   *http.Client
}

// NewDistanceMatrix builds the primary provider with the service defaults.
func NewDistanceMatrix(apiKey string, timeout time.Duration) *DistanceMatrix {
	return &DistanceMatrix{
		APIKey:   apiKey,
		BaseURL:  "https://api.distancematrix.ai/maps/api/geocode/json",
		Language: "fr",
		Region:   "be",
		Client:   &http.Client{Timeout: timeout},
	}
}

func (d *DistanceMatrix) Name() string { return "distancematrix" }

func (d *DistanceMatrix) Geocode(ctx context.Context, address string) (mo.Option[geo.Point], error) {
	none := mo.None[geo.Point]()
	if d.APIKey == "" {
		return none, fmt.Errorf("distancematrix API key not configured")
	}

	params := url.Values{}
	params.Set("address", address)
	params.Set("key", d.APIKey)
	params.Set("language", d.Language)
	params.Set("region", d.Region)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.BaseURL+"?"+params.Encode(), nil)
	if err != nil {
		return none, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", providerUserAgent)

	resp, err := d.Client.Do(req)
	if err != nil {
		return none, fmt.Errorf("calling geocoder: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return none, fmt.Errorf("geocoder returned status %d", resp.StatusCode)
	}

	var payload struct {
		Status  string `json:"status"`
		Results []struct {
			FormattedAddress string `json:"formatted_address"`
			Geometry         struct {
				Location struct {
					Lat float64 `json:"lat"`
					Lng float64 `json:"lng"`
				} `json:"location"`
			} `json:"geometry"`
		} `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return none, fmt.Errorf("parsing geocoder response: %w", err)
	}
	if payload.Status != "OK" || len(payload.Results) == 0 {
		return none, nil
	}

	best := payload.Results[0]
	lat, lon := best.Geometry.Location.Lat, best.Geometry.Location.Lng
	if !finite(lat) || !finite(lon) {
		return none, nil
	}
	label := best.FormattedAddress
	if label == "" {
		label = address
	}
	point, err := geo.NewPoint(label, lat, lon)
	if err != nil {
		return none, nil
	}
	return mo.Some(point), nil
}

// Nominatim is the free public fallback geocoder.
type Nominatim struct {
	BaseURL string
	Client  *http.Client
}

func NewNominatim(timeout time.Duration) *Nominatim {
	return &Nominatim{
		BaseURL: "https://nominatim.openstreetmap.org/search",
		Client:  &http.Client{Timeout: timeout},
	}
}

func (n *Nominatim) Name() string { return "nominatim" }

func (n *Nominatim) Geocode(ctx context.Context, address string) (mo.Option[geo.Point], error) {
	none := mo.None[geo.Point]()

	params := url.Values{}
	params.Set("q", address)
	params.Set("format", "json")
	params.Set("limit", "1")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, n.BaseURL+"?"+params.Encode(), nil)
	if err != nil {
		return none, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", providerUserAgent)

	resp, err := n.Client.Do(req)
	if err != nil {
		return none, fmt.Errorf("calling geocoder: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return none, fmt.Errorf("geocoder returned status %d", resp.StatusCode)
	}

	var results []struct {
		Lat         string `json:"lat"`
		Lon         string `json:"lon"`
		DisplayName string `json:"display_name"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
		return none, fmt.Errorf("parsing geocoder response: %w", err)
	}
	if len(results) == 0 {
		return none, nil
	}

	lat, errLat := strconv.ParseFloat(results[0].Lat, 64)
	lon, errLon := strconv.ParseFloat(results[0].Lon, 64)
	if errLat != nil || errLon != nil || !finite(lat) || !finite(lon) {
		return none, nil
	}
	label := results[0].DisplayName
	if label == "" {
		label = address
	}
	point, err := geo.NewPoint(label, lat, lon)
	if err != nil {
		return none, nil
	}
	return mo.Some(point), nil
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
