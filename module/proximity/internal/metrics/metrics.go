package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	SyncRunsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sweetspots_geofence_sync_runs_total",
		Help: "Geofence reconciliation runs by trigger",
	}, []string{"trigger"})
	RegionsInstalledTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sweetspots_regions_installed_total",
		Help: "Region install operations issued",
	})
	RegionsRemovedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sweetspots_regions_removed_total",
		Help: "Region remove operations issued",
	})
	RegionOpFailuresTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sweetspots_region_op_failures_total",
		Help: "Region install/remove operations the device adapter rejected",
	}, []string{"op"})
	MonitoredRegions = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "sweetspots_monitored_regions",
		Help: "Regions currently believed installed",
	})
	RadiusClampedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sweetspots_radius_clamped_total",
		Help: "Spot radii clamped into the platform range",
	})
	StaleRegionEventsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sweetspots_stale_region_events_total",
		Help: "Region events for ids no longer monitored",
	})
	AlertsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sweetspots_alerts_total",
		Help: "Alert requests by outcome",
	}, []string{"outcome"})
	NavigationTransitionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sweetspots_navigation_transitions_total",
		Help: "Navigation state transitions by target state",
	}, []string{"state"})
	RouteCalculationMs = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "sweetspots_route_calculation_ms",
		Help:    "Route provider round trip in milliseconds",
		Buckets: []float64{50, 100, 200, 500, 1000, 2000, 5000, 10000, 15000},
	})
)

func init() {
	prometheus.MustRegister(SyncRunsTotal)
	prometheus.MustRegister(RegionsInstalledTotal)
	prometheus.MustRegister(RegionsRemovedTotal)
	prometheus.MustRegister(RegionOpFailuresTotal)
	prometheus.MustRegister(MonitoredRegions)
	prometheus.MustRegister(RadiusClampedTotal)
	prometheus.MustRegister(StaleRegionEventsTotal)
	prometheus.MustRegister(AlertsTotal)
	prometheus.MustRegister(NavigationTransitionsTotal)
	prometheus.MustRegister(RouteCalculationMs)
}

func Handler() http.Handler { return promhttp.Handler() }
