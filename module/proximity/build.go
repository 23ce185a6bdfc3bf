package proximity

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/gin-gonic/gin"
	amqp "github.com/rabbitmq/amqp091-go"
	goredis "github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/CGroll04/sweetspots/module/proximity/domain"
	handler "github.com/CGroll04/sweetspots/module/proximity/internal/handler/http"
	"github.com/CGroll04/sweetspots/module/proximity/internal/handler/subscriber"
	"github.com/CGroll04/sweetspots/module/proximity/internal/metrics"
	"github.com/CGroll04/sweetspots/module/proximity/internal/repository/database/postgres"
	monitormqtt "github.com/CGroll04/sweetspots/module/proximity/internal/repository/monitor/mqtt"
	permissionredis "github.com/CGroll04/sweetspots/module/proximity/internal/repository/permission/redis"
	"github.com/CGroll04/sweetspots/module/proximity/internal/repository/publisher/rabbitmq"
	"github.com/CGroll04/sweetspots/module/proximity/internal/repository/route/googlemaps"
	"github.com/CGroll04/sweetspots/module/proximity/service"
)

type Options struct {
	DeviceID          string
	OwnerID           string
	PostgresDSN       string
	GoogleMapsAPIKey  string
	RegionCap         int
	MonitoringEnabled bool
	ResyncInterval    time.Duration
	MoveThreshold     float64
	RouteTimeout      time.Duration
	ArrivalHold       time.Duration
}

type Module struct {
	Gate      *service.PermissionGate
	SyncLoop  *service.SyncLoop
	Navigator *service.Navigator

	opts        Options
	log         *slog.Logger
	navHandler  *handler.NavigationHandler
	monHandler  *handler.MonitoringHandler
	subscribers []interface{ Start() error }
}

func Build(db *sql.DB, amqpConn *amqp.Connection, mqttClient mqtt.Client, rdb *goredis.Client, opts Options, log *slog.Logger) (*Module, error) {
	spotRepo := postgres.NewSpotRepo(db, opts.OwnerID)

	alertPub, err := rabbitmq.NewAlertPublisher(amqpConn, opts.DeviceID)
	if err != nil {
		return nil, fmt.Errorf("alert publisher: %w", err)
	}

	routes, err := googlemaps.NewProvider(opts.GoogleMapsAPIKey)
	if err != nil {
		return nil, fmt.Errorf("route provider: %w", err)
	}

	gate := service.NewPermissionGate(permissionredis.NewAuthorizationStore(rdb, opts.DeviceID), log.With("component", "permission"))
	router := service.NewRegionEventRouter(alertPub, gate, log.With("component", "region_router"))
	synchronizer := service.NewGeofenceSynchronizer(gate, opts.RegionCap, log.With("component", "geofence"))

	syncLoop := service.NewSyncLoop(
		spotRepo,
		monitormqtt.NewRegionMonitor(mqttClient, opts.DeviceID),
		synchronizer,
		router,
		service.SyncConfig{
			Interval:            opts.ResyncInterval,
			MoveThresholdMeters: opts.MoveThreshold,
			Enabled:             opts.MonitoringEnabled,
		},
		log.With("component", "sync"),
	)
	gate.OnChange(func(domain.Authorization) { syncLoop.Trigger(service.TriggerPermission) })

	nav := service.NewNavigator(routes, service.NavigatorConfig{
		RouteTimeout: opts.RouteTimeout,
		ArrivalHold:  opts.ArrivalHold,
	}, log.With("component", "navigator"))

	subLog := log.With("component", "subscriber")
	return &Module{
		Gate:       gate,
		SyncLoop:   syncLoop,
		Navigator:  nav,
		opts:       opts,
		log:        log,
		navHandler: handler.NewNavigationHandler(nav, spotRepo),
		monHandler: handler.NewMonitoringHandler(syncLoop, gate),
		subscribers: []interface{ Start() error }{
			subscriber.NewAuthorizationSubscriber(mqttClient, opts.DeviceID, gate, subLog),
			subscriber.NewLocationSubscriber(mqttClient, opts.DeviceID, subLog, nav, syncLoop),
			subscriber.NewRegionEventSubscriber(mqttClient, opts.DeviceID, router, subLog),
			subscriber.NewLifecycleSubscriber(mqttClient, opts.DeviceID, syncLoop, subLog),
		},
	}, nil
}

func (m *Module) RegisterRoutes(r *gin.RouterGroup) {
	m.navHandler.Register(r)
	m.monHandler.Register(r)
}

// MetricsHandler serves the module's Prometheus metrics.
func MetricsHandler() http.Handler {
	return metrics.Handler()
}

func (m *Module) StartSubscribers() error {
	for _, s := range m.subscribers {
		if err := s.Start(); err != nil {
			return err
		}
	}
	return nil
}

// Run restores the last authorization, requests the startup sync and runs the
// actors until ctx ends or one of them fails.
func (m *Module) Run(ctx context.Context) error {
	if err := m.Gate.Restore(ctx); err != nil {
		m.log.Warn("starting without stored authorization", "err", err)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return m.SyncLoop.Run(ctx) })
	g.Go(func() error { return m.Navigator.Run(ctx) })

	if m.opts.PostgresDSN != "" {
		listener, err := postgres.NewSpotChangeListener(m.opts.PostgresDSN, m.opts.OwnerID, func() {
			m.SyncLoop.Trigger(service.TriggerDataChange)
		}, m.log.With("component", "spot_listener"))
		if err != nil {
			m.log.Warn("spot change notifications disabled", "err", err)
		} else {
			g.Go(func() error { return listener.Run(ctx) })
		}
	}

	m.SyncLoop.Trigger(service.TriggerStartup)
	return g.Wait()
}
