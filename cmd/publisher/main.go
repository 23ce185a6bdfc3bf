package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strconv"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	goredis "github.com/redis/go-redis/v9"

	"github.com/CGroll04/sweetspots/module/proximity/domain"
	"github.com/CGroll04/sweetspots/module/proximity/geometry"
)

// stepMeters is how far the simulated user walks per tick.
const stepMeters = 40.0

type locationMessage struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Timestamp int64   `json:"timestamp"`
}

type regionCommand struct {
	Op       string `json:"op"`
	RegionID string `json:"region_id"`
	Center   *struct {
		Latitude  float64 `json:"latitude"`
		Longitude float64 `json:"longitude"`
	} `json:"center"`
	Radius float64 `json:"radius_meters"`
}

// device plays the phone: it owns the installed regions and reports
// enter/exit transitions as the simulated user walks.
type device struct {
	client mqtt.Client
	id     string

	mu      sync.Mutex
	regions map[string]domain.RegionSpec
	inside  map[string]bool
}

func (d *device) topic(suffix string) string {
	return fmt.Sprintf("/sweetspots/device/%s/%s", d.id, suffix)
}

func (d *device) publish(suffix string, v any) {
	payload, _ := json.Marshal(v)
	topic := d.topic(suffix)
	token := d.client.Publish(topic, 1, false, payload)
	token.Wait()
	log.Printf("published to %s: %s", topic, payload)
}

func (d *device) reportAuthorization() {
	d.publish("authorization", map[string]any{"location": "always", "notifications": true})
}

func (d *device) handleCommand(_ mqtt.Client, msg mqtt.Message) {
	var cmd regionCommand
	if err := json.Unmarshal(msg.Payload(), &cmd); err != nil {
		log.Printf("invalid region command: %v", err)
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	switch cmd.Op {
	case "install":
		if cmd.Center == nil {
			return
		}
		d.regions[cmd.RegionID] = domain.RegionSpec{
			ID:           cmd.RegionID,
			Center:       domain.GeoPoint{Lat: cmd.Center.Latitude, Lon: cmd.Center.Longitude},
			RadiusMeters: cmd.Radius,
		}
	case "remove":
		delete(d.regions, cmd.RegionID)
		delete(d.inside, cmd.RegionID)
	}
	log.Printf("region %s %s (%d installed)", cmd.Op, cmd.RegionID, len(d.regions))
}

func (d *device) moveTo(p domain.GeoPoint) {
	d.publish("location", locationMessage{Latitude: p.Lat, Longitude: p.Lon, Timestamp: time.Now().Unix()})

	d.mu.Lock()
	var events []domain.RegionEvent
	for id, r := range d.regions {
		in := geometry.Distance(p, r.Center) <= r.RadiusMeters
		if in == d.inside[id] {
			continue
		}
		d.inside[id] = in
		ev := domain.RegionEvent{RegionID: id, Type: domain.RegionExit}
		if in {
			ev.Type = domain.RegionEnter
		}
		events = append(events, ev)
	}
	d.mu.Unlock()

	for _, ev := range events {
		d.publish("region/event", map[string]string{"region_id": ev.RegionID, "event": string(ev.Type)})
	}
}

// listenForUpgrades grants Always whenever the server asks for it.
func (d *device) listenForUpgrades(ctx context.Context, rdb *goredis.Client) {
	sub := rdb.Subscribe(ctx, "sweetspots:auth:upgrade:"+d.id)
	defer func() { _ = sub.Close() }()
	for {
		select {
		case <-ctx.Done():
			return
		case <-sub.Channel():
			log.Printf("upgrade requested, granting always")
			d.reportAuthorization()
		}
	}
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintf(os.Stderr, "usage: %s <interval_seconds>\n", os.Args[0])
		os.Exit(1)
	}

	intervalSec, err := strconv.Atoi(os.Args[1])
	if err != nil || intervalSec <= 0 {
		fmt.Fprintf(os.Stderr, "error: interval must be a positive integer\n")
		os.Exit(1)
	}

	broker := "tcp://localhost:1883"
	if v := os.Getenv("MQTT_BROKER"); v != "" {
		broker = v
	}
	deviceID := "device-1"
	if v := os.Getenv("DEVICE_ID"); v != "" {
		deviceID = v
	}

	// defaults walk from Union Station to St. Lawrence Market, Toronto
	start := domain.GeoPoint{Lat: envFloat("START_LAT", 43.6453), Lon: envFloat("START_LON", -79.3806)}
	target := domain.GeoPoint{Lat: envFloat("TARGET_LAT", 43.6487), Lon: envFloat("TARGET_LON", -79.3716)}

	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID("sweetspots-device-" + deviceID)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		log.Fatalf("mqtt connect: %v", token.Error())
	}
	defer client.Disconnect(250)

	d := &device{
		client:  client,
		id:      deviceID,
		regions: map[string]domain.RegionSpec{},
		inside:  map[string]bool{},
	}

	if token := client.Subscribe(d.topic("region/command"), 1, d.handleCommand); token.Wait() && token.Error() != nil {
		log.Fatalf("subscribe: %v", token.Error())
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if host := os.Getenv("REDIS_HOST"); host != "" {
		port := os.Getenv("REDIS_PORT")
		if port == "" {
			port = "6379"
		}
		rdb := goredis.NewClient(&goredis.Options{Addr: host + ":" + port, Password: os.Getenv("REDIS_PASS")})
		defer func() { _ = rdb.Close() }()
		go d.listenForUpgrades(ctx, rdb)
	}

	d.reportAuthorization()
	d.publish("lifecycle", map[string]string{"event": "foreground"})

	total := geometry.Distance(start, target)
	log.Printf("connected to %s as %s, walking %.0f m every %ds...", broker, deviceID, total, intervalSec)

	ticker := time.NewTicker(time.Duration(intervalSec) * time.Second)
	defer ticker.Stop()

	walked := 0.0
	for range ticker.C {
		frac := 1.0
		if total > 0 {
			frac = walked / total
		}
		if frac > 1 {
			frac = 1
		}
		d.moveTo(domain.GeoPoint{
			Lat: start.Lat + (target.Lat-start.Lat)*frac,
			Lon: start.Lon + (target.Lon-start.Lon)*frac,
		})
		if frac == 1 {
			log.Printf("arrived")
			return
		}
		walked += stepMeters
	}
}
