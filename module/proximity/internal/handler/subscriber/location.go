package subscriber

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/CGroll04/sweetspots/module/proximity/domain"
)

// locationSink receives every accepted fix. Implementations must not block.
type locationSink interface {
	UpdateLocation(pos domain.GeoPoint)
}

type locationMessage struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Timestamp int64   `json:"timestamp"`
}

// LocationSubscriber fans device position fixes out to the navigator and the
// sync loop. Fixes older than the newest accepted one are dropped.
type LocationSubscriber struct {
	client   mqtt.Client
	deviceID string
	sinks    []locationSink
	log      *slog.Logger

	last time.Time
}

func NewLocationSubscriber(client mqtt.Client, deviceID string, log *slog.Logger, sinks ...locationSink) *LocationSubscriber {
	return &LocationSubscriber{
		client:   client,
		deviceID: deviceID,
		sinks:    sinks,
		log:      log,
	}
}

func (s *LocationSubscriber) Start() error {
	return subscribe(s.client, LocationTopic(s.deviceID), s.handleMessage)
}

func (s *LocationSubscriber) handleMessage(_ mqtt.Client, msg mqtt.Message) {
	var raw locationMessage
	if err := json.Unmarshal(msg.Payload(), &raw); err != nil {
		s.log.Warn("invalid location message", "err", err)
		return
	}

	if err := validateLocationMessage(&raw); err != nil {
		s.log.Warn("location validation error", "err", err)
		return
	}

	pos := domain.Position{
		Point:     domain.GeoPoint{Lat: raw.Latitude, Lon: raw.Longitude},
		Timestamp: time.Unix(raw.Timestamp, 0),
	}
	// paho delivers messages for one subscription in order, so this needs no lock
	if pos.Timestamp.Before(s.last) {
		s.log.Debug("dropping out-of-order fix", "timestamp", pos.Timestamp)
		return
	}
	s.last = pos.Timestamp

	for _, sink := range s.sinks {
		sink.UpdateLocation(pos.Point)
	}
}

func validateLocationMessage(msg *locationMessage) error {
	if msg.Latitude < -90 || msg.Latitude > 90 {
		return fmt.Errorf("latitude: must be between -90 and 90")
	}
	if msg.Longitude < -180 || msg.Longitude > 180 {
		return fmt.Errorf("longitude: must be between -180 and 180")
	}
	if msg.Timestamp <= 0 {
		return fmt.Errorf("timestamp: must be positive")
	}
	return nil
}
