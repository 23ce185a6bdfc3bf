package subscriber

import (
	"fmt"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// Device topics, one set per device id.
const (
	locationTopicFmt      = "/sweetspots/device/%s/location"
	regionEventTopicFmt   = "/sweetspots/device/%s/region/event"
	authorizationTopicFmt = "/sweetspots/device/%s/authorization"
	lifecycleTopicFmt     = "/sweetspots/device/%s/lifecycle"
)

func LocationTopic(deviceID string) string      { return fmt.Sprintf(locationTopicFmt, deviceID) }
func RegionEventTopic(deviceID string) string   { return fmt.Sprintf(regionEventTopicFmt, deviceID) }
func AuthorizationTopic(deviceID string) string { return fmt.Sprintf(authorizationTopicFmt, deviceID) }
func LifecycleTopic(deviceID string) string     { return fmt.Sprintf(lifecycleTopicFmt, deviceID) }

func subscribe(client mqtt.Client, topic string, handler mqtt.MessageHandler) error {
	token := client.Subscribe(topic, 1, handler)
	token.Wait()
	if err := token.Error(); err != nil {
		return fmt.Errorf("subscribe %s: %w", topic, err)
	}
	return nil
}
