package mqtt

import (
	"context"
	"encoding/json"
	"fmt"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/CGroll04/sweetspots/module/proximity/domain"
	"github.com/CGroll04/sweetspots/module/proximity/internal/repository/monitor"
)

var _ monitor.RegionMonitor = (*RegionMonitor)(nil)

const (
	OpInstall = "install"
	OpRemove  = "remove"
)

type publisherClient interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) pahomqtt.Token
}

// RegionMonitor forwards install/remove commands to the device, which owns
// the actual region-monitoring service.
type RegionMonitor struct {
	client publisherClient
	topic  string
}

func NewRegionMonitor(client pahomqtt.Client, deviceID string) *RegionMonitor {
	return &RegionMonitor{client: client, topic: CommandTopic(deviceID)}
}

func CommandTopic(deviceID string) string {
	return fmt.Sprintf("/sweetspots/device/%s/region/command", deviceID)
}

type regionCommand struct {
	Op       string        `json:"op"`
	RegionID string        `json:"region_id"`
	Center   *commandPoint `json:"center,omitempty"`
	Radius   float64       `json:"radius_meters,omitempty"`
}

type commandPoint struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

func (m *RegionMonitor) InstallRegion(ctx context.Context, region domain.RegionSpec) error {
	return m.publish(ctx, regionCommand{
		Op:       OpInstall,
		RegionID: region.ID,
		Center:   &commandPoint{Latitude: region.Center.Lat, Longitude: region.Center.Lon},
		Radius:   region.RadiusMeters,
	})
}

func (m *RegionMonitor) RemoveRegion(ctx context.Context, id string) error {
	return m.publish(ctx, regionCommand{Op: OpRemove, RegionID: id})
}

func (m *RegionMonitor) publish(ctx context.Context, cmd regionCommand) error {
	payload, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("marshal region command: %w", err)
	}

	token := m.client.Publish(m.topic, 1, false, payload)
	select {
	case <-token.Done():
	case <-ctx.Done():
		return ctx.Err()
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s %s: %w", cmd.Op, cmd.RegionID, err)
	}
	return nil
}
