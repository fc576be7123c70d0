package geo

import (
	"fmt"
	"math"
)

const earthRadiusKm = 6371.0

// Point is a resolved location. Immutable once created.
type Point struct {
	Label string
	Lat   float64
	Lon   float64
}

// NewPoint validates coordinates and returns a Point.
func NewPoint(label string, lat, lon float64) (Point, error) {
	if !math.IsInf(lat, 0) && !math.IsNaN(lat) && lat >= -90 && lat <= 90 &&
		!math.IsInf(lon, 0) && !math.IsNaN(lon) && lon >= -180 && lon <= 180 {
		return Point{Label: label, Lat: lat, Lon: lon}, nil
	}
	return Point{}, fmt.Errorf("invalid coordinates (%v, %v) for %q", lat, lon, label)
}

// Haversine returns the great-circle distance between two points in kilometers.
func Haversine(a, b Point) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLon := (b.Lon - a.Lon) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusKm * math.Asin(math.Sqrt(h))
}
