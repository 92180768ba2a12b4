// Package geo provides great-circle distance and point-in-polygon tests.
// Pure functions, no I/O.
package geo

import (
	"math"

	"homeroute/internal/model"
)

// EarthRadiusKm is the mean radius of Earth in kilometers.
const EarthRadiusKm = 6371.0

// DistanceKm returns the haversine great-circle distance between two points
// in kilometers. Symmetric; 0 for identical points.
func DistanceKm(a, b model.Coordinate) float64 {
	if a == b {
		return 0
	}
	dLat := rad(b.Lat - a.Lat)
	dLng := rad(b.Lng - a.Lng)
	sinLat := math.Sin(dLat / 2)
	sinLng := math.Sin(dLng / 2)
	h := sinLat*sinLat + math.Cos(rad(a.Lat))*math.Cos(rad(b.Lat))*sinLng*sinLng
	return 2 * EarthRadiusKm * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

// PointInPolygon reports whether p lies inside ring using even-odd ray
// casting. The ring need not be closed; the last vertex wraps to the first.
// Points exactly on an edge may be reported either way depending on the
// edge's direction; callers must not rely on boundary behavior.
func PointInPolygon(p model.Coordinate, ring []model.Coordinate) bool {
	if len(ring) < 3 {
		return false
	}
	inside := false
	j := len(ring) - 1
	for i := 0; i < len(ring); i++ {
		vi, vj := ring[i], ring[j]
		if (vi.Lat > p.Lat) != (vj.Lat > p.Lat) {
			x := (vj.Lng-vi.Lng)*(p.Lat-vi.Lat)/(vj.Lat-vi.Lat) + vi.Lng
			if p.Lng < x {
				inside = !inside
			}
		}
		j = i
	}
	return inside
}

func rad(deg float64) float64 { return deg * math.Pi / 180 }
