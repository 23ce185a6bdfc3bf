package service

import (
	"io"
	"log/slog"

	"github.com/CGroll04/sweetspots/module/proximity/domain"
)

// metersPerDegree is the length of one degree of latitude on the haversine sphere.
const metersPerDegree = 111194.93

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeAuth struct {
	monitor bool
	notify  bool
}

func (f *fakeAuth) CanMonitor() bool { return f.monitor }
func (f *fakeAuth) CanNotify() bool  { return f.notify }

func north(meters float64) domain.GeoPoint {
	return domain.GeoPoint{Lat: meters / metersPerDegree}
}

func spotAt(id string, meters float64) domain.PointOfInterest {
	return domain.PointOfInterest{ID: id, Name: id, Coordinate: north(meters), RadiusMeters: 100, WantsMonitoring: true}
}
