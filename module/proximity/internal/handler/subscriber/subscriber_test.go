package subscriber

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/CGroll04/sweetspots/module/proximity/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeMQTTMessage struct {
	topic   string
	payload []byte
}

func (f *fakeMQTTMessage) Duplicate() bool   { return false }
func (f *fakeMQTTMessage) Qos() byte         { return 0 }
func (f *fakeMQTTMessage) Retained() bool    { return false }
func (f *fakeMQTTMessage) Topic() string     { return f.topic }
func (f *fakeMQTTMessage) MessageID() uint16 { return 0 }
func (f *fakeMQTTMessage) Payload() []byte   { return f.payload }
func (f *fakeMQTTMessage) Ack()              {}

func jsonMessage(t *testing.T, topic string, v any) *fakeMQTTMessage {
	t.Helper()
	payload, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return &fakeMQTTMessage{topic: topic, payload: payload}
}

type recordingSink struct {
	fixes []domain.GeoPoint
}

func (r *recordingSink) UpdateLocation(pos domain.GeoPoint) {
	r.fixes = append(r.fixes, pos)
}

type mockRouter struct {
	handleRegionEventFn func(ctx context.Context, ev domain.RegionEvent) error
}

func (m *mockRouter) HandleRegionEvent(ctx context.Context, ev domain.RegionEvent) error {
	return m.handleRegionEventFn(ctx, ev)
}

type mockGate struct {
	updateFn func(ctx context.Context, auth domain.Authorization) error
}

func (m *mockGate) Update(ctx context.Context, auth domain.Authorization) error {
	return m.updateFn(ctx, auth)
}

type countingNotifier struct {
	calls int
}

func (c *countingNotifier) Foreground() { c.calls++ }

func TestTopics(t *testing.T) {
	if got := LocationTopic("phone-1"); got != "/sweetspots/device/phone-1/location" {
		t.Errorf("unexpected location topic %s", got)
	}
	if got := RegionEventTopic("phone-1"); got != "/sweetspots/device/phone-1/region/event" {
		t.Errorf("unexpected region topic %s", got)
	}
	if got := AuthorizationTopic("phone-1"); got != "/sweetspots/device/phone-1/authorization" {
		t.Errorf("unexpected authorization topic %s", got)
	}
	if got := LifecycleTopic("phone-1"); got != "/sweetspots/device/phone-1/lifecycle" {
		t.Errorf("unexpected lifecycle topic %s", got)
	}
}

func TestLocationSubscriber_FansOut(t *testing.T) {
	nav, sync := &recordingSink{}, &recordingSink{}
	sub := NewLocationSubscriber(nil, "phone-1", discardLogger(), nav, sync)

	msg := locationMessage{Latitude: 43.6532, Longitude: -79.3832, Timestamp: 1715003456}
	sub.handleMessage(nil, jsonMessage(t, LocationTopic("phone-1"), msg))

	want := domain.GeoPoint{Lat: 43.6532, Lon: -79.3832}
	for name, sink := range map[string]*recordingSink{"navigator": nav, "sync": sync} {
		if len(sink.fixes) != 1 || sink.fixes[0] != want {
			t.Errorf("%s: expected %+v, got %+v", name, want, sink.fixes)
		}
	}
}

func TestLocationSubscriber_DropsOutOfOrder(t *testing.T) {
	sink := &recordingSink{}
	sub := NewLocationSubscriber(nil, "phone-1", discardLogger(), sink)
	topic := LocationTopic("phone-1")

	sub.handleMessage(nil, jsonMessage(t, topic, locationMessage{Latitude: 1, Longitude: 1, Timestamp: 200}))
	sub.handleMessage(nil, jsonMessage(t, topic, locationMessage{Latitude: 2, Longitude: 2, Timestamp: 100}))
	sub.handleMessage(nil, jsonMessage(t, topic, locationMessage{Latitude: 3, Longitude: 3, Timestamp: 200}))

	if len(sink.fixes) != 2 || sink.fixes[1].Lat != 3 {
		t.Fatalf("expected the stale fix to be dropped, got %+v", sink.fixes)
	}
}

func TestLocationSubscriber_InvalidMessages(t *testing.T) {
	sink := &recordingSink{}
	sub := NewLocationSubscriber(nil, "phone-1", discardLogger(), sink)

	sub.handleMessage(nil, &fakeMQTTMessage{payload: []byte("invalid")})
	sub.handleMessage(nil, jsonMessage(t, "", locationMessage{Latitude: 91, Longitude: 0, Timestamp: 1}))

	if len(sink.fixes) != 0 {
		t.Fatalf("expected no fixes, got %+v", sink.fixes)
	}
}

func TestValidateLocationMessage(t *testing.T) {
	tests := []struct {
		name    string
		msg     locationMessage
		wantErr bool
	}{
		{"valid", locationMessage{Latitude: 0, Longitude: 0, Timestamp: 1}, false},
		{"lat too low", locationMessage{Latitude: -91, Longitude: 0, Timestamp: 1}, true},
		{"lat too high", locationMessage{Latitude: 91, Longitude: 0, Timestamp: 1}, true},
		{"lon too low", locationMessage{Latitude: 0, Longitude: -181, Timestamp: 1}, true},
		{"lon too high", locationMessage{Latitude: 0, Longitude: 181, Timestamp: 1}, true},
		{"zero timestamp", locationMessage{Latitude: 0, Longitude: 0, Timestamp: 0}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateLocationMessage(&tt.msg)
			if (err != nil) != tt.wantErr {
				t.Errorf("expected error=%v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestRegionEventSubscriber(t *testing.T) {
	var got *domain.RegionEvent
	router := &mockRouter{handleRegionEventFn: func(_ context.Context, ev domain.RegionEvent) error {
		got = &ev
		return nil
	}}
	sub := NewRegionEventSubscriber(nil, "phone-1", router, discardLogger())

	sub.handleMessage(nil, jsonMessage(t, "", regionEventMessage{RegionID: "bakery", Event: "enter"}))

	if got == nil {
		t.Fatal("expected HandleRegionEvent to be called")
	}
	if got.RegionID != "bakery" || got.Type != domain.RegionEnter {
		t.Errorf("unexpected event %+v", *got)
	}
}

func TestRegionEventSubscriber_RejectsInvalid(t *testing.T) {
	router := &mockRouter{handleRegionEventFn: func(context.Context, domain.RegionEvent) error {
		t.Fatal("HandleRegionEvent should not be called")
		return nil
	}}
	sub := NewRegionEventSubscriber(nil, "phone-1", router, discardLogger())

	sub.handleMessage(nil, &fakeMQTTMessage{payload: []byte("{")})
	sub.handleMessage(nil, jsonMessage(t, "", regionEventMessage{Event: "enter"}))
	sub.handleMessage(nil, jsonMessage(t, "", regionEventMessage{RegionID: "a", Event: "dwell"}))
}

func TestRegionEventSubscriber_RouterErrorIsLogged(t *testing.T) {
	router := &mockRouter{handleRegionEventFn: func(context.Context, domain.RegionEvent) error {
		return errors.New("broker down")
	}}
	sub := NewRegionEventSubscriber(nil, "phone-1", router, discardLogger())
	sub.handleMessage(nil, jsonMessage(t, "", regionEventMessage{RegionID: "a", Event: "exit"}))
}

func TestAuthorizationSubscriber(t *testing.T) {
	var got *domain.Authorization
	gate := &mockGate{updateFn: func(_ context.Context, auth domain.Authorization) error {
		got = &auth
		return nil
	}}
	sub := NewAuthorizationSubscriber(nil, "phone-1", gate, discardLogger())

	sub.handleMessage(nil, jsonMessage(t, "", authorizationMessage{Location: "always", Notifications: true}))

	want := domain.Authorization{Location: domain.AuthAlways, Notifications: true}
	if got == nil || *got != want {
		t.Fatalf("expected %+v, got %+v", want, got)
	}
}

func TestParseAuthorizationMessage(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    domain.Authorization
		wantErr bool
	}{
		{"when in use", `{"location":"when_in_use","notifications":false}`, domain.Authorization{Location: domain.AuthWhenInUse}, false},
		{"denied", `{"location":"denied","notifications":true}`, domain.Authorization{Location: domain.AuthDenied, Notifications: true}, false},
		{"unknown state", `{"location":"sometimes"}`, domain.Authorization{}, true},
		{"bad json", `nope`, domain.Authorization{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseAuthorizationMessage([]byte(tt.payload))
			if (err != nil) != tt.wantErr {
				t.Fatalf("expected error=%v, got %v", tt.wantErr, err)
			}
			if got != tt.want {
				t.Errorf("expected %+v, got %+v", tt.want, got)
			}
		})
	}
}

func TestLifecycleSubscriber(t *testing.T) {
	n := &countingNotifier{}
	sub := NewLifecycleSubscriber(nil, "phone-1", n, discardLogger())

	sub.handleMessage(nil, jsonMessage(t, "", lifecycleMessage{Event: "foreground"}))
	sub.handleMessage(nil, jsonMessage(t, "", lifecycleMessage{Event: "background"}))
	sub.handleMessage(nil, &fakeMQTTMessage{payload: []byte("x")})

	if n.calls != 1 {
		t.Fatalf("expected 1 foreground notification, got %d", n.calls)
	}
}
