package service

import (
	"log/slog"
	"math"
	"sort"

	"github.com/CGroll04/sweetspots/module/proximity/domain"
	"github.com/CGroll04/sweetspots/module/proximity/geometry"
	"github.com/CGroll04/sweetspots/module/proximity/internal/metrics"
)

// Limits imposed by the device's region-monitoring service.
const (
	PlatformRegionCap = 20
	MinRegionRadius   = 50.0
	MaxRegionRadius   = 50000.0
)

type ReconciliationPlan struct {
	Install []domain.RegionSpec `json:"install"`
	Remove  []string            `json:"remove"`
	// Deficiency is set when monitoring is wanted but authorization is below Always.
	Deficiency bool `json:"deficiency"`
	// Degraded is set when no user location was available and the nearest
	// spots could not be chosen.
	Degraded bool `json:"degraded"`
}

func (p ReconciliationPlan) Empty() bool {
	return len(p.Install) == 0 && len(p.Remove) == 0
}

type monitorAuthorizer interface {
	CanMonitor() bool
}

// GeofenceSynchronizer decides which spots to monitor and diffs that choice
// against the regions it believes are installed. It is not safe for
// concurrent use; SyncLoop owns it.
type GeofenceSynchronizer struct {
	auth      monitorAuthorizer
	capacity  int
	log       *slog.Logger
	installed map[string]domain.MonitoredRegion
	// spots holds the spot behind each installed region; previous holds the
	// ones from the sync before so a retained region keeps its spot.
	spots    map[string]domain.PointOfInterest
	previous map[string]domain.PointOfInterest
}

// NewGeofenceSynchronizer caps capacity at PlatformRegionCap; non-positive
// values select the platform cap.
func NewGeofenceSynchronizer(auth monitorAuthorizer, capacity int, log *slog.Logger) *GeofenceSynchronizer {
	if capacity <= 0 || capacity > PlatformRegionCap {
		capacity = PlatformRegionCap
	}
	return &GeofenceSynchronizer{
		auth:      auth,
		capacity:  capacity,
		log:       log,
		installed: make(map[string]domain.MonitoredRegion),
		spots:     make(map[string]domain.PointOfInterest),
	}
}

func (s *GeofenceSynchronizer) Capacity() int {
	return s.capacity
}

// Wanted reports whether any region should be installed at all. When it is
// false a sync removes everything and needs no candidates.
func (s *GeofenceSynchronizer) Wanted(globallyEnabled bool) bool {
	return globallyEnabled && s.auth.CanMonitor()
}

// Synchronize computes the plan that moves the installed set to the desired
// one and records the desired set as installed.
func (s *GeofenceSynchronizer) Synchronize(candidates []domain.PointOfInterest, userLocation *domain.GeoPoint, globallyEnabled bool) ReconciliationPlan {
	var plan ReconciliationPlan

	var desired []domain.PointOfInterest
	switch {
	case !globallyEnabled:
	case !s.auth.CanMonitor():
		plan.Deficiency = true
	default:
		desired, plan.Degraded = s.selectDesired(candidates, userLocation)
	}

	desiredRegions := make(map[string]domain.RegionSpec, len(desired))
	desiredSpots := make(map[string]domain.PointOfInterest, len(desired))
	for _, poi := range desired {
		region := s.regionFor(poi)
		desiredRegions[region.ID] = region
		desiredSpots[poi.ID] = poi

		current, ok := s.installed[region.ID]
		if ok && current == region {
			continue
		}
		plan.Install = append(plan.Install, region)
	}

	for id := range s.installed {
		if _, ok := desiredRegions[id]; !ok {
			plan.Remove = append(plan.Remove, id)
		}
	}
	sort.Strings(plan.Remove)

	s.installed = desiredRegions
	s.previous = s.spots
	s.spots = desiredSpots
	metrics.MonitoredRegions.Set(float64(len(s.installed)))

	return plan
}

// selectDesired filters candidates wanting monitoring and keeps at most
// capacity of them: the nearest when a location is known, otherwise the
// insertion-order prefix.
func (s *GeofenceSynchronizer) selectDesired(candidates []domain.PointOfInterest, userLocation *domain.GeoPoint) ([]domain.PointOfInterest, bool) {
	seen := make(map[string]struct{}, len(candidates))
	wanted := make([]domain.PointOfInterest, 0, len(candidates))
	for _, c := range candidates {
		if !c.WantsMonitoring || c.ID == "" {
			continue
		}
		if _, dup := seen[c.ID]; dup {
			continue
		}
		seen[c.ID] = struct{}{}
		wanted = append(wanted, c)
	}

	degraded := userLocation == nil
	if !degraded {
		origin := *userLocation
		dist := make(map[string]float64, len(wanted))
		for _, c := range wanted {
			dist[c.ID] = geometry.Distance(origin, c.Coordinate)
		}
		sort.SliceStable(wanted, func(i, j int) bool {
			return dist[wanted[i].ID] < dist[wanted[j].ID]
		})
	} else if len(wanted) > s.capacity {
		s.log.Warn("no user location, monitoring spots in insertion order", "candidates", len(wanted), "capacity", s.capacity)
	}

	if len(wanted) > s.capacity {
		wanted = wanted[:s.capacity]
	}
	return wanted, degraded
}

func (s *GeofenceSynchronizer) regionFor(poi domain.PointOfInterest) domain.RegionSpec {
	radius := ClampRadius(poi.RadiusMeters)
	if radius != poi.RadiusMeters {
		metrics.RadiusClampedTotal.Inc()
		s.log.Warn("spot radius out of range, clamped", "spot_id", poi.ID, "radius", poi.RadiusMeters, "clamped", radius)
	}
	return domain.RegionSpec{ID: poi.ID, Center: poi.Coordinate, RadiusMeters: radius}
}

// Forget drops id from the installed view so the next sync installs it again.
func (s *GeofenceSynchronizer) Forget(id string) {
	delete(s.installed, id)
	delete(s.spots, id)
	metrics.MonitoredRegions.Set(float64(len(s.installed)))
}

// Retain puts a region back into the installed view after a failed removal or
// reinstall so the next sync retries it.
func (s *GeofenceSynchronizer) Retain(region domain.MonitoredRegion) {
	s.installed[region.ID] = region
	if _, ok := s.spots[region.ID]; !ok {
		if poi, ok := s.previous[region.ID]; ok {
			s.spots[region.ID] = poi
		}
	}
	metrics.MonitoredRegions.Set(float64(len(s.installed)))
}

// Installed returns the installed view sorted by id.
func (s *GeofenceSynchronizer) Installed() []domain.MonitoredRegion {
	out := make([]domain.MonitoredRegion, 0, len(s.installed))
	for _, r := range s.installed {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Monitored returns the spots behind the installed view, sorted by id.
func (s *GeofenceSynchronizer) Monitored() []domain.PointOfInterest {
	out := make([]domain.PointOfInterest, 0, len(s.spots))
	for id, poi := range s.spots {
		if _, ok := s.installed[id]; ok {
			out = append(out, poi)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ClampRadius forces a radius into the platform's legal range. NaN falls back
// to the minimum.
func ClampRadius(r float64) float64 {
	if math.IsNaN(r) || r < MinRegionRadius {
		return MinRegionRadius
	}
	if r > MaxRegionRadius {
		return MaxRegionRadius
	}
	return r
}
