package subscriber

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/CGroll04/sweetspots/module/proximity/domain"
)

const handleTimeout = 5 * time.Second

type regionEventRouter interface {
	HandleRegionEvent(ctx context.Context, ev domain.RegionEvent) error
}

type regionEventMessage struct {
	RegionID string `json:"region_id"`
	Event    string `json:"event"`
}

// RegionEventSubscriber forwards the device's region enter/exit callbacks.
type RegionEventSubscriber struct {
	client   mqtt.Client
	deviceID string
	router   regionEventRouter
	log      *slog.Logger
}

func NewRegionEventSubscriber(client mqtt.Client, deviceID string, router regionEventRouter, log *slog.Logger) *RegionEventSubscriber {
	return &RegionEventSubscriber{client: client, deviceID: deviceID, router: router, log: log}
}

func (s *RegionEventSubscriber) Start() error {
	return subscribe(s.client, RegionEventTopic(s.deviceID), s.handleMessage)
}

func (s *RegionEventSubscriber) handleMessage(_ mqtt.Client, msg mqtt.Message) {
	var raw regionEventMessage
	if err := json.Unmarshal(msg.Payload(), &raw); err != nil {
		s.log.Warn("invalid region event message", "err", err)
		return
	}

	if err := validateRegionEventMessage(&raw); err != nil {
		s.log.Warn("region event validation error", "err", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), handleTimeout)
	defer cancel()

	ev := domain.RegionEvent{RegionID: raw.RegionID, Type: domain.RegionEventType(raw.Event)}
	if err := s.router.HandleRegionEvent(ctx, ev); err != nil {
		s.log.Error("region event handling error", "region_id", ev.RegionID, "err", err)
	}
}

func validateRegionEventMessage(msg *regionEventMessage) error {
	if msg.RegionID == "" {
		return fmt.Errorf("region_id: required")
	}
	switch domain.RegionEventType(msg.Event) {
	case domain.RegionEnter, domain.RegionExit:
		return nil
	}
	return fmt.Errorf("event: must be %q or %q", domain.RegionEnter, domain.RegionExit)
}
