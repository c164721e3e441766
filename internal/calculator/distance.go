// Package calculator provides GPS distance calculations using the Haversine formula
// and the small amount of arithmetic behind trip and daily performance figures.
package calculator

import (
	"math"
	"time"
)

const (
	// EarthRadiusMiles is the Earth's mean radius in statute miles
	EarthRadiusMiles = 3959.0
)

// Point represents a GPS coordinate in decimal degrees
type Point struct {
	Latitude  float64 `json:"lat"`
	Longitude float64 `json:"lng"`
}

// RoutePoint is a timestamped GPS fix recorded while a trip is active
type RoutePoint struct {
	Latitude  float64   `json:"lat"`
	Longitude float64   `json:"lng"`
	Timestamp time.Time `json:"timestamp"`
}

// Point returns the coordinate part of the fix
func (r RoutePoint) Point() Point {
	return Point{Latitude: r.Latitude, Longitude: r.Longitude}
}

// DistanceMiles calculates the great-circle distance between two points in miles
func DistanceMiles(a, b Point) float64 {
	return Haversine(a.Latitude, a.Longitude, b.Latitude, b.Longitude)
}

// Haversine calculates the great-circle distance between two points
// on the Earth's surface given their latitudes and longitudes in decimal degrees
//
// Formula:
// a = sin²(Δφ/2) + cos φ1 ⋅ cos φ2 ⋅ sin²(Δλ/2)
// c = 2 ⋅ atan2( √a, √(1−a) )
// d = R ⋅ c
//
// where:
// φ is latitude, λ is longitude, R is earth's radius (3959 mi)
// Δφ is the difference in latitude, Δλ is the difference in longitude
func Haversine(lat1, lon1, lat2, lon2 float64) float64 {
	lat1Rad := degreesToRadians(lat1)
	lat2Rad := degreesToRadians(lat2)

	deltaLat := degreesToRadians(lat2 - lat1)
	deltaLon := degreesToRadians(lon2 - lon1)

	a := math.Sin(deltaLat/2)*math.Sin(deltaLat/2) +
		math.Cos(lat1Rad)*math.Cos(lat2Rad)*
			math.Sin(deltaLon/2)*math.Sin(deltaLon/2)

	// Floating point noise can push a marginally outside [0, 1]
	a = math.Min(math.Max(a, 0), 1)

	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return EarthRadiusMiles * c
}

// degreesToRadians converts degrees to radians
func degreesToRadians(degrees float64) float64 {
	return degrees * math.Pi / 180
}

// RouteDistance sums the segment distances of an ordered polyline.
// Routes with fewer than two points have no length.
func RouteDistance(points []RoutePoint) float64 {
	var total float64
	for i := 1; i < len(points); i++ {
		total += DistanceMiles(points[i-1].Point(), points[i].Point())
	}
	return total
}

// TripDistance returns the distance driven on a trip. Recorded route points are
// preferred; with fewer than two of them the straight line from start to end is
// used, and 0 when either end is unknown.
func TripDistance(points []RoutePoint, start, end *Point) float64 {
	if len(points) > 1 {
		return RouteDistance(points)
	}
	if start == nil || end == nil {
		return 0
	}
	return DistanceMiles(*start, *end)
}

// ValidCoordinate reports whether lat/lng are finite and inside WGS84 bounds
func ValidCoordinate(lat, lng float64) bool {
	if math.IsNaN(lat) || math.IsNaN(lng) || math.IsInf(lat, 0) || math.IsInf(lng, 0) {
		return false
	}
	return lat >= -90 && lat <= 90 && lng >= -180 && lng <= 180
}

// DriveMinutes converts an elapsed driving period to whole minutes
func DriveMinutes(start, end time.Time) int {
	if end.Before(start) {
		return 0
	}
	return int(math.Round(float64(end.Sub(start)) / float64(time.Minute)))
}
