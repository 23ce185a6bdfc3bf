package geometry

import (
	"math"

	"github.com/CGroll04/sweetspots/module/proximity/domain"
)

// Box is an axis-aligned lat/lon rectangle.
type Box struct {
	MinLat, MaxLat float64
	MinLon, MaxLon float64
}

func (b Box) Contains(p domain.GeoPoint) bool {
	return p.Lat >= b.MinLat && p.Lat <= b.MaxLat && p.Lon >= b.MinLon && p.Lon <= b.MaxLon
}

// SegmentBox returns the bounding box of a-b grown by padMeters on every side.
func SegmentBox(a, b domain.GeoPoint, padMeters float64) Box {
	midLat := (a.Lat + b.Lat) / 2
	dLat := toDeg(padMeters / earthRadiusMeters)
	// near the poles the longitude pad degenerates; cap it at the full range
	dLon := 180.0
	if c := math.Cos(toRad(midLat)); c > 1e-9 {
		dLon = math.Min(dLat/c, 180)
	}
	return Box{
		MinLat: math.Min(a.Lat, b.Lat) - dLat,
		MaxLat: math.Max(a.Lat, b.Lat) + dLat,
		MinLon: math.Min(a.Lon, b.Lon) - dLon,
		MaxLon: math.Max(a.Lon, b.Lon) + dLon,
	}
}

// WithinCorridor reports whether p lies inside the padded box of any
// consecutive pair of polyline points. A single-point polyline is treated as
// a zero-length segment. An empty polyline gives no corridor and returns true
// so that callers never reroute on missing geometry.
func WithinCorridor(p domain.GeoPoint, polyline []domain.GeoPoint, toleranceMeters float64) bool {
	switch len(polyline) {
	case 0:
		return true
	case 1:
		return SegmentBox(polyline[0], polyline[0], toleranceMeters).Contains(p)
	}
	for i := 1; i < len(polyline); i++ {
		if SegmentBox(polyline[i-1], polyline[i], toleranceMeters).Contains(p) {
			return true
		}
	}
	return false
}
