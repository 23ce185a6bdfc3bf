package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/CGroll04/sweetspots/module/proximity/domain"
	"github.com/CGroll04/sweetspots/module/proximity/internal/metrics"
	"github.com/CGroll04/sweetspots/module/proximity/internal/repository/publisher"
)

type notifyAuthorizer interface {
	CanNotify() bool
}

// RegionEventRouter turns device region callbacks into alert requests for the
// spots selected by the most recent sync.
type RegionEventRouter struct {
	publisher publisher.AlertPublisher
	auth      notifyAuthorizer
	log       *slog.Logger
	index     atomic.Pointer[map[string]domain.PointOfInterest]
}

func NewRegionEventRouter(pub publisher.AlertPublisher, auth notifyAuthorizer, log *slog.Logger) *RegionEventRouter {
	r := &RegionEventRouter{publisher: pub, auth: auth, log: log}
	r.SetMonitored(nil)
	return r
}

// SetMonitored swaps the lookup set. Called by SyncLoop after each sync.
func (r *RegionEventRouter) SetMonitored(spots []domain.PointOfInterest) {
	idx := make(map[string]domain.PointOfInterest, len(spots))
	for _, s := range spots {
		idx[s.ID] = s
	}
	r.index.Store(&idx)
}

// OnRegionEvent maps a region event to an alert. Unknown ids and exits yield nil.
func (r *RegionEventRouter) OnRegionEvent(regionID string, eventType domain.RegionEventType) *domain.AlertRequest {
	spot, ok := (*r.index.Load())[regionID]
	if !ok {
		metrics.StaleRegionEventsTotal.Inc()
		r.log.Debug("discarding event for unmonitored region", "region_id", regionID, "event", eventType)
		return nil
	}
	if eventType != domain.RegionEnter {
		return nil
	}
	return alertFor(spot)
}

// HandleRegionEvent routes the event and hands any resulting alert to the
// notification dispatcher.
func (r *RegionEventRouter) HandleRegionEvent(ctx context.Context, ev domain.RegionEvent) error {
	alert := r.OnRegionEvent(ev.RegionID, ev.Type)
	if alert == nil {
		return nil
	}
	if !r.auth.CanNotify() {
		metrics.AlertsTotal.WithLabelValues("not_authorized").Inc()
		r.log.Warn("notifications not authorized, dropping alert", "target_id", alert.TargetID)
		return nil
	}
	if err := r.publisher.PublishAlert(ctx, alert); err != nil {
		metrics.AlertsTotal.WithLabelValues("failed").Inc()
		return fmt.Errorf("publish alert for %s: %w", alert.TargetID, err)
	}
	metrics.AlertsTotal.WithLabelValues("published").Inc()
	return nil
}

func alertFor(spot domain.PointOfInterest) *domain.AlertRequest {
	name := spot.Name
	if name == "" {
		name = "a saved spot"
	}
	return &domain.AlertRequest{
		Title:    "You're near " + name,
		Body:     fmt.Sprintf("You are within %.0f m of %s.", ClampRadius(spot.RadiusMeters), name),
		TargetID: spot.ID,
	}
}
