package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	"github.com/CGroll04/sweetspots/config"
	"github.com/CGroll04/sweetspots/module/proximity"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config", "err", err)
		os.Exit(1)
	}
	log := config.NewLogger(cfg)

	if err := run(cfg, log); err != nil {
		log.Error("server stopped", "err", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *slog.Logger) error {
	db, err := config.NewPostgres(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	amqpConn, err := config.NewRabbitMQ(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = amqpConn.Close() }()

	mqttClient, err := config.NewMQTT(cfg)
	if err != nil {
		return err
	}
	defer mqttClient.Disconnect(250)

	rdb, err := config.NewRedis(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = rdb.Close() }()

	mod, err := proximity.Build(db, amqpConn, mqttClient, rdb, proximity.Options{
		DeviceID:          cfg.DeviceID,
		OwnerID:           cfg.OwnerID,
		PostgresDSN:       cfg.PostgresDSN,
		GoogleMapsAPIKey:  cfg.GoogleMapsAPIKey,
		RegionCap:         cfg.RegionCap,
		MonitoringEnabled: cfg.MonitoringEnabled,
		ResyncInterval:    cfg.ResyncInterval,
		MoveThreshold:     cfg.MoveThreshold,
		RouteTimeout:      cfg.RouteTimeout,
		ArrivalHold:       cfg.ArrivalHold,
	}, log)
	if err != nil {
		return err
	}

	if err := mod.StartSubscribers(); err != nil {
		return err
	}

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), config.AccessLog(log))

	config.NewHealthChecker(db, amqpConn, mqttClient, rdb).Register(r)
	r.GET("/metrics", gin.WrapH(proximity.MetricsHandler()))
	mod.RegisterRoutes(&r.RouterGroup)

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("listening", "addr", srv.Addr, "device_id", cfg.DeviceID)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return mod.Run(ctx)
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Info("shutdown complete")
	return nil
}
