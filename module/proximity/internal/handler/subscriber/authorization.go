package subscriber

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/CGroll04/sweetspots/module/proximity/domain"
)

type authorizationUpdater interface {
	Update(ctx context.Context, auth domain.Authorization) error
}

type authorizationMessage struct {
	Location      string `json:"location"`
	Notifications bool   `json:"notifications"`
}

// AuthorizationSubscriber records the permission state the device reports.
type AuthorizationSubscriber struct {
	client   mqtt.Client
	deviceID string
	gate     authorizationUpdater
	log      *slog.Logger
}

func NewAuthorizationSubscriber(client mqtt.Client, deviceID string, gate authorizationUpdater, log *slog.Logger) *AuthorizationSubscriber {
	return &AuthorizationSubscriber{client: client, deviceID: deviceID, gate: gate, log: log}
}

func (s *AuthorizationSubscriber) Start() error {
	return subscribe(s.client, AuthorizationTopic(s.deviceID), s.handleMessage)
}

func (s *AuthorizationSubscriber) handleMessage(_ mqtt.Client, msg mqtt.Message) {
	auth, err := parseAuthorizationMessage(msg.Payload())
	if err != nil {
		s.log.Warn("invalid authorization message", "err", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), handleTimeout)
	defer cancel()

	if err := s.gate.Update(ctx, auth); err != nil {
		s.log.Error("authorization update error", "err", err)
	}
}

func parseAuthorizationMessage(payload []byte) (domain.Authorization, error) {
	var raw authorizationMessage
	if err := json.Unmarshal(payload, &raw); err != nil {
		return domain.Authorization{}, fmt.Errorf("decode: %w", err)
	}
	state, err := domain.ParseAuthorizationState(raw.Location)
	if err != nil {
		return domain.Authorization{}, fmt.Errorf("location: %w", err)
	}
	return domain.Authorization{Location: state, Notifications: raw.Notifications}, nil
}
