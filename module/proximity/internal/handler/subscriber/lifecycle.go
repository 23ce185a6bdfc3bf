package subscriber

import (
	"encoding/json"
	"log/slog"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

const eventForeground = "foreground"

type foregroundNotifier interface {
	Foreground()
}

type lifecycleMessage struct {
	Event string `json:"event"`
}

// LifecycleSubscriber listens for app lifecycle events. Only foreground
// transitions matter; they request a geofence resync.
type LifecycleSubscriber struct {
	client   mqtt.Client
	deviceID string
	notifier foregroundNotifier
	log      *slog.Logger
}

func NewLifecycleSubscriber(client mqtt.Client, deviceID string, notifier foregroundNotifier, log *slog.Logger) *LifecycleSubscriber {
	return &LifecycleSubscriber{client: client, deviceID: deviceID, notifier: notifier, log: log}
}

func (s *LifecycleSubscriber) Start() error {
	return subscribe(s.client, LifecycleTopic(s.deviceID), s.handleMessage)
}

func (s *LifecycleSubscriber) handleMessage(_ mqtt.Client, msg mqtt.Message) {
	var raw lifecycleMessage
	if err := json.Unmarshal(msg.Payload(), &raw); err != nil {
		s.log.Warn("invalid lifecycle message", "err", err)
		return
	}
	if raw.Event == eventForeground {
		s.notifier.Foreground()
	}
}
