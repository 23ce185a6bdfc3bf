package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/CGroll04/sweetspots/module/proximity/domain"
	"github.com/CGroll04/sweetspots/module/proximity/geometry"
	"github.com/CGroll04/sweetspots/module/proximity/internal/metrics"
	"github.com/CGroll04/sweetspots/module/proximity/internal/repository/database"
	"github.com/CGroll04/sweetspots/module/proximity/internal/repository/monitor"
)

type SyncTrigger string

const (
	TriggerStartup    SyncTrigger = "startup"
	TriggerDataChange SyncTrigger = "data_change"
	TriggerPermission SyncTrigger = "permission"
	TriggerForeground SyncTrigger = "foreground"
	TriggerPeriodic   SyncTrigger = "periodic"
	TriggerMoved      SyncTrigger = "moved"
	TriggerToggle     SyncTrigger = "toggle"
)

type SyncConfig struct {
	Interval time.Duration
	// MoveThresholdMeters triggers a resync once the user has moved this far
	// from the position used by the last sync.
	MoveThresholdMeters float64
	Enabled             bool
}

// MonitoringStatus is the read-only view of the last sync.
type MonitoringStatus struct {
	Enabled    bool                     `json:"enabled"`
	Capacity   int                      `json:"capacity"`
	Installed  []domain.MonitoredRegion `json:"installed"`
	Deficiency bool                     `json:"deficiency"`
	Degraded   bool                     `json:"degraded"`
	LastSync   time.Time                `json:"last_sync"`
	LastError  string                   `json:"last_error,omitempty"`
}

// SyncLoop serializes every reconciliation on one goroutine. Triggers that
// arrive while a sync is pending collapse into one run.
type SyncLoop struct {
	spots   database.SpotRepository
	monitor monitor.RegionMonitor
	sync    *GeofenceSynchronizer
	router  *RegionEventRouter
	cfg     SyncConfig
	log     *slog.Logger

	triggers chan SyncTrigger
	enabled  atomic.Bool

	posMu    sync.Mutex
	lastFix  *domain.GeoPoint
	syncedAt *domain.GeoPoint

	status atomic.Pointer[MonitoringStatus]
}

func NewSyncLoop(
	spots database.SpotRepository,
	mon monitor.RegionMonitor,
	synchronizer *GeofenceSynchronizer,
	router *RegionEventRouter,
	cfg SyncConfig,
	log *slog.Logger,
) *SyncLoop {
	l := &SyncLoop{
		spots:    spots,
		monitor:  mon,
		sync:     synchronizer,
		router:   router,
		cfg:      cfg,
		log:      log,
		triggers: make(chan SyncTrigger, 1),
	}
	l.enabled.Store(cfg.Enabled)
	l.status.Store(&MonitoringStatus{Enabled: cfg.Enabled, Capacity: synchronizer.Capacity()})
	return l
}

// Trigger requests a resync without blocking. A pending request is replaced.
func (l *SyncLoop) Trigger(reason SyncTrigger) {
	select {
	case l.triggers <- reason:
		return
	default:
	}
	select {
	case <-l.triggers:
	default:
	}
	select {
	case l.triggers <- reason:
	default:
	}
}

// Foreground requests a resync when the app returns to the foreground.
func (l *SyncLoop) Foreground() {
	l.Trigger(TriggerForeground)
}

func (l *SyncLoop) Enabled() bool {
	return l.enabled.Load()
}

func (l *SyncLoop) SetEnabled(enabled bool) {
	if l.enabled.Swap(enabled) != enabled {
		l.Trigger(TriggerToggle)
	}
}

// UpdateLocation records a fix and triggers a resync after a significant move.
func (l *SyncLoop) UpdateLocation(pos domain.GeoPoint) {
	l.posMu.Lock()
	l.lastFix = &pos
	moved := l.syncedAt == nil ||
		(l.cfg.MoveThresholdMeters > 0 && geometry.Distance(*l.syncedAt, pos) >= l.cfg.MoveThresholdMeters)
	l.posMu.Unlock()

	if moved {
		l.Trigger(TriggerMoved)
	}
}

func (l *SyncLoop) LastFix() *domain.GeoPoint {
	l.posMu.Lock()
	defer l.posMu.Unlock()
	if l.lastFix == nil {
		return nil
	}
	p := *l.lastFix
	return &p
}

func (l *SyncLoop) Status() MonitoringStatus {
	return *l.status.Load()
}

func (l *SyncLoop) Run(ctx context.Context) error {
	var tick <-chan time.Time
	if l.cfg.Interval > 0 {
		t := time.NewTicker(l.cfg.Interval)
		defer t.Stop()
		tick = t.C
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case reason := <-l.triggers:
			l.runOnce(ctx, reason)
		case <-tick:
			l.runOnce(ctx, TriggerPeriodic)
		}
	}
}

func (l *SyncLoop) runOnce(ctx context.Context, reason SyncTrigger) {
	metrics.SyncRunsTotal.WithLabelValues(string(reason)).Inc()

	status := MonitoringStatus{
		Enabled:  l.enabled.Load(),
		Capacity: l.sync.Capacity(),
		LastSync: time.Now(),
	}
	plan, err := l.Reconcile(ctx)
	if err != nil {
		l.log.Error("geofence sync failed", "trigger", reason, "err", err)
		status.LastError = err.Error()
	} else {
		status.Deficiency = plan.Deficiency
		status.Degraded = plan.Degraded
		l.log.Info("geofence sync",
			"trigger", reason,
			"install", len(plan.Install),
			"remove", len(plan.Remove),
			"deficiency", plan.Deficiency,
			"degraded", plan.Degraded,
		)
	}
	status.Installed = l.sync.Installed()
	l.status.Store(&status)
}

// Reconcile loads the spot snapshot, plans against the installed set and
// applies the plan to the device. It must only run on the Run goroutine.
func (l *SyncLoop) Reconcile(ctx context.Context) (ReconciliationPlan, error) {
	enabled := l.enabled.Load()

	// disabled or unauthorized removes everything, so a failing store must not block it
	var spots []domain.PointOfInterest
	if l.sync.Wanted(enabled) {
		var err error
		spots, err = l.spots.ListSpots(ctx)
		if err != nil {
			return ReconciliationPlan{}, fmt.Errorf("list spots: %w", err)
		}
	}

	loc := l.LastFix()
	before := make(map[string]domain.MonitoredRegion)
	for _, r := range l.sync.Installed() {
		before[r.ID] = r
	}

	plan := l.sync.Synchronize(spots, loc, enabled)

	l.posMu.Lock()
	l.syncedAt = loc
	l.posMu.Unlock()

	if plan.Deficiency {
		l.log.Warn("monitoring wanted but location access is not Always")
	}
	l.apply(ctx, plan, before)
	l.router.SetMonitored(l.sync.Monitored())
	return plan, nil
}

// apply removes before installing so the device never exceeds its cap. A
// region whose removal failed still holds a slot, so new installs that would
// not fit are deferred to a later sync.
func (l *SyncLoop) apply(ctx context.Context, plan ReconciliationPlan, before map[string]domain.MonitoredRegion) {
	onDevice := len(before)
	for _, id := range plan.Remove {
		if err := l.monitor.RemoveRegion(ctx, id); err != nil {
			metrics.RegionOpFailuresTotal.WithLabelValues("remove").Inc()
			l.log.Error("remove region failed", "region_id", id, "err", err)
			if r, ok := before[id]; ok {
				l.sync.Retain(r)
			}
			continue
		}
		metrics.RegionsRemovedTotal.Inc()
		onDevice--
	}

	for _, r := range plan.Install {
		old, replacing := before[r.ID]
		if !replacing && onDevice >= l.sync.Capacity() {
			l.log.Warn("region cap reached, deferring install", "region_id", r.ID, "capacity", l.sync.Capacity())
			l.sync.Forget(r.ID)
			continue
		}
		if err := l.monitor.InstallRegion(ctx, r); err != nil {
			metrics.RegionOpFailuresTotal.WithLabelValues("install").Inc()
			l.log.Error("install region failed", "region_id", r.ID, "err", err)
			if replacing {
				// the previous geometry is still on the device
				l.sync.Retain(old)
			} else {
				l.sync.Forget(r.ID)
			}
			continue
		}
		metrics.RegionsInstalledTotal.Inc()
		if !replacing {
			onDevice++
		}
	}
}
