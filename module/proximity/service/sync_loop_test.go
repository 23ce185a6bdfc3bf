package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/CGroll04/sweetspots/module/proximity/domain"
)

type mockSpotRepository struct {
	mu    sync.Mutex
	spots []domain.PointOfInterest
	err   error
}

func (m *mockSpotRepository) ListSpots(context.Context) ([]domain.PointOfInterest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.PointOfInterest(nil), m.spots...), m.err
}

func (m *mockSpotRepository) GetSpot(_ context.Context, id string) (*domain.PointOfInterest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.spots {
		if s.ID == id {
			s := s
			return &s, nil
		}
	}
	return nil, errors.New("not found")
}

type mockRegionMonitor struct {
	mu         sync.Mutex
	installed  map[string]domain.RegionSpec
	installErr map[string]error
	removeErr  map[string]error
	ops        []string
}

func newMockRegionMonitor() *mockRegionMonitor {
	return &mockRegionMonitor{
		installed:  map[string]domain.RegionSpec{},
		installErr: map[string]error{},
		removeErr:  map[string]error{},
	}
}

func (m *mockRegionMonitor) InstallRegion(_ context.Context, r domain.RegionSpec) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ops = append(m.ops, "install:"+r.ID)
	if err := m.installErr[r.ID]; err != nil {
		return err
	}
	if _, ok := m.installed[r.ID]; !ok && len(m.installed) >= PlatformRegionCap {
		return errors.New("region cap exceeded")
	}
	m.installed[r.ID] = r
	return nil
}

func (m *mockRegionMonitor) RemoveRegion(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ops = append(m.ops, "remove:"+id)
	if err := m.removeErr[id]; err != nil {
		return err
	}
	delete(m.installed, id)
	return nil
}

func (m *mockRegionMonitor) ids() map[string]bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := map[string]bool{}
	for id := range m.installed {
		out[id] = true
	}
	return out
}

func newTestSyncLoop(spots *mockSpotRepository, mon *mockRegionMonitor, capacity int, auth *fakeAuth) (*SyncLoop, *RegionEventRouter) {
	router := NewRegionEventRouter(nil, auth, discardLogger())
	synchronizer := NewGeofenceSynchronizer(auth, capacity, discardLogger())
	loop := NewSyncLoop(spots, mon, synchronizer, router, SyncConfig{MoveThresholdMeters: 500, Enabled: true}, discardLogger())
	return loop, router
}

func TestSyncLoop_ReconcileInstallsNearest(t *testing.T) {
	spots := &mockSpotRepository{spots: []domain.PointOfInterest{spotAt("far", 50000), spotAt("near", 100), spotAt("mid", 5000)}}
	mon := newMockRegionMonitor()
	loop, router := newTestSyncLoop(spots, mon, 2, &fakeAuth{monitor: true, notify: true})
	loop.UpdateLocation(north(0))

	if _, err := loop.Reconcile(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got := mon.ids()
	if len(got) != 2 || !got["near"] || !got["mid"] {
		t.Fatalf("expected near and mid installed, got %v", got)
	}
	if router.OnRegionEvent("near", domain.RegionEnter) == nil {
		t.Error("expected router to know the monitored spot")
	}
	if router.OnRegionEvent("far", domain.RegionEnter) != nil {
		t.Error("expected router to ignore the unmonitored spot")
	}
}

func TestSyncLoop_RemovesBeforeInstalling(t *testing.T) {
	var all []domain.PointOfInterest
	for i := 0; i < 30; i++ {
		all = append(all, spotAt(fmt.Sprintf("s%02d", i), float64(i)*1000))
	}
	spots := &mockSpotRepository{spots: all}
	mon := newMockRegionMonitor()
	loop, _ := newTestSyncLoop(spots, mon, PlatformRegionCap, &fakeAuth{monitor: true})
	ctx := context.Background()

	loop.UpdateLocation(north(0))
	loop.Reconcile(ctx)
	firstOps := len(mon.ops)

	// walk to the other end so ten regions swap out at full cap
	loop.UpdateLocation(north(29000))
	if _, err := loop.Reconcile(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ops := mon.ops[firstOps:]
	if len(ops) != 20 {
		t.Fatalf("expected 10 removes and 10 installs, got %v", ops)
	}
	for i, op := range ops {
		if isRemove := strings.HasPrefix(op, "remove:"); isRemove != (i < 10) {
			t.Fatalf("expected removals first, got %v", ops)
		}
	}
	got := mon.ids()
	if len(got) != PlatformRegionCap || !got["s29"] || got["s00"] {
		t.Fatalf("unexpected installed set %v", got)
	}
}

func TestSyncLoop_RetriesFailedInstall(t *testing.T) {
	spots := &mockSpotRepository{spots: []domain.PointOfInterest{spotAt("a", 100)}}
	mon := newMockRegionMonitor()
	mon.installErr["a"] = errors.New("device busy")
	loop, _ := newTestSyncLoop(spots, mon, PlatformRegionCap, &fakeAuth{monitor: true})
	ctx := context.Background()

	loop.Reconcile(ctx)
	if mon.ids()["a"] {
		t.Fatal("install should have failed")
	}

	delete(mon.installErr, "a")
	loop.Reconcile(ctx)
	if !mon.ids()["a"] {
		t.Fatal("expected install to be retried")
	}
}

func TestSyncLoop_RetriesFailedRemove(t *testing.T) {
	spots := &mockSpotRepository{spots: []domain.PointOfInterest{spotAt("a", 100)}}
	mon := newMockRegionMonitor()
	loop, _ := newTestSyncLoop(spots, mon, PlatformRegionCap, &fakeAuth{monitor: true})
	ctx := context.Background()
	loop.Reconcile(ctx)

	mon.removeErr["a"] = errors.New("device busy")
	loop.SetEnabled(false)
	loop.Reconcile(ctx)
	if !mon.ids()["a"] {
		t.Fatal("remove should have failed")
	}

	delete(mon.removeErr, "a")
	loop.Reconcile(ctx)
	if len(mon.ids()) != 0 {
		t.Fatalf("expected removal to be retried, still installed: %v", mon.ids())
	}
}

func TestSyncLoop_FailedRemoveDefersInstallsPastCapacity(t *testing.T) {
	spots := &mockSpotRepository{spots: []domain.PointOfInterest{
		spotAt("a", 0), spotAt("b", 1000), spotAt("c", 20000), spotAt("d", 21000),
	}}
	mon := newMockRegionMonitor()
	loop, router := newTestSyncLoop(spots, mon, 2, &fakeAuth{monitor: true, notify: true})
	ctx := context.Background()

	loop.UpdateLocation(north(0))
	loop.Reconcile(ctx)
	if got := mon.ids(); len(got) != 2 || !got["a"] || !got["b"] {
		t.Fatalf("expected a and b installed, got %v", got)
	}

	mon.removeErr["a"] = errors.New("device busy")
	loop.UpdateLocation(north(20400))
	loop.Reconcile(ctx)

	got := mon.ids()
	if len(got) != 2 || !got["a"] || !got["c"] {
		t.Fatalf("expected a retained and c installed, got %v", got)
	}
	if n := len(loop.sync.Installed()); n != 2 {
		t.Fatalf("expected installed view within capacity 2, got %d", n)
	}
	if router.OnRegionEvent("a", domain.RegionEnter) == nil {
		t.Error("expected events for the retained region to be routed")
	}
	if router.OnRegionEvent("d", domain.RegionEnter) != nil {
		t.Error("expected deferred region to be unknown to the router")
	}

	delete(mon.removeErr, "a")
	loop.Reconcile(ctx)
	if got := mon.ids(); len(got) != 2 || !got["c"] || !got["d"] {
		t.Fatalf("expected c and d after retry, got %v", got)
	}
}

func TestSyncLoop_FailedReinstallKeepsOldRegion(t *testing.T) {
	spots := &mockSpotRepository{spots: []domain.PointOfInterest{spotAt("a", 100)}}
	mon := newMockRegionMonitor()
	loop, _ := newTestSyncLoop(spots, mon, PlatformRegionCap, &fakeAuth{monitor: true})
	ctx := context.Background()
	loop.Reconcile(ctx)

	spots.mu.Lock()
	spots.spots[0].RadiusMeters = 300
	spots.mu.Unlock()
	mon.installErr["a"] = errors.New("device busy")
	loop.Reconcile(ctx)

	installed := loop.sync.Installed()
	if len(installed) != 1 || installed[0].RadiusMeters != 100 {
		t.Fatalf("expected the old geometry in the installed view, got %+v", installed)
	}

	delete(mon.installErr, "a")
	spots.mu.Lock()
	spots.spots[0].WantsMonitoring = false
	spots.mu.Unlock()
	loop.Reconcile(ctx)
	if got := mon.ids(); len(got) != 0 {
		t.Fatalf("expected the region to be removed from the device, got %v", got)
	}
}

func TestSyncLoop_DisableWithStoreDown(t *testing.T) {
	tests := []struct {
		name    string
		disable func(loop *SyncLoop, auth *fakeAuth)
	}{
		{name: "toggle off", disable: func(loop *SyncLoop, _ *fakeAuth) { loop.SetEnabled(false) }},
		{name: "permission downgrade", disable: func(_ *SyncLoop, auth *fakeAuth) { auth.monitor = false }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spots := &mockSpotRepository{spots: []domain.PointOfInterest{spotAt("a", 100)}}
			mon := newMockRegionMonitor()
			auth := &fakeAuth{monitor: true}
			loop, _ := newTestSyncLoop(spots, mon, PlatformRegionCap, auth)
			ctx := context.Background()
			loop.Reconcile(ctx)

			spots.mu.Lock()
			spots.err = errors.New("db down")
			spots.mu.Unlock()
			tt.disable(loop, auth)

			if _, err := loop.Reconcile(ctx); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got := mon.ids(); len(got) != 0 {
				t.Fatalf("expected all regions removed, got %v", got)
			}
		})
	}
}

func TestSyncLoop_DisableRemovesEverything(t *testing.T) {
	spots := &mockSpotRepository{spots: []domain.PointOfInterest{spotAt("a", 100), spotAt("b", 200)}}
	mon := newMockRegionMonitor()
	loop, router := newTestSyncLoop(spots, mon, PlatformRegionCap, &fakeAuth{monitor: true})
	ctx := context.Background()
	loop.Reconcile(ctx)

	loop.SetEnabled(false)
	loop.Reconcile(ctx)
	if len(mon.ids()) != 0 {
		t.Fatalf("expected no regions, got %v", mon.ids())
	}
	if router.OnRegionEvent("a", domain.RegionEnter) != nil {
		t.Fatal("expected events to be discarded after disabling")
	}
}

func TestSyncLoop_ListError(t *testing.T) {
	spots := &mockSpotRepository{err: errors.New("db down")}
	loop, _ := newTestSyncLoop(spots, newMockRegionMonitor(), PlatformRegionCap, &fakeAuth{monitor: true})

	loop.runOnce(context.Background(), TriggerStartup)
	if st := loop.Status(); st.LastError == "" {
		t.Fatal("expected last error to be recorded")
	}
}

func TestSyncLoop_UpdateLocationTriggersOnSignificantMove(t *testing.T) {
	spots := &mockSpotRepository{}
	loop, _ := newTestSyncLoop(spots, newMockRegionMonitor(), PlatformRegionCap, &fakeAuth{monitor: true})

	drain := func() (SyncTrigger, bool) {
		select {
		case r := <-loop.triggers:
			return r, true
		default:
			return "", false
		}
	}

	// first fix always triggers
	loop.UpdateLocation(north(0))
	if r, ok := drain(); !ok || r != TriggerMoved {
		t.Fatalf("expected moved trigger, got %q %v", r, ok)
	}

	loop.Reconcile(context.Background())
	loop.UpdateLocation(north(100))
	if r, ok := drain(); ok {
		t.Fatalf("unexpected trigger %q for a short move", r)
	}

	loop.UpdateLocation(north(600))
	if r, ok := drain(); !ok || r != TriggerMoved {
		t.Fatalf("expected moved trigger, got %q %v", r, ok)
	}
}

func TestSyncLoop_TriggersCoalesce(t *testing.T) {
	loop, _ := newTestSyncLoop(&mockSpotRepository{}, newMockRegionMonitor(), PlatformRegionCap, &fakeAuth{monitor: true})

	loop.Trigger(TriggerDataChange)
	loop.Trigger(TriggerPermission)
	loop.Trigger(TriggerForeground)

	if n := len(loop.triggers); n != 1 {
		t.Fatalf("expected one pending trigger, got %d", n)
	}
	if r := <-loop.triggers; r != TriggerForeground {
		t.Fatalf("expected latest trigger to win, got %q", r)
	}
}

func TestSyncLoop_Run(t *testing.T) {
	spots := &mockSpotRepository{spots: []domain.PointOfInterest{spotAt("a", 100)}}
	mon := newMockRegionMonitor()
	loop, _ := newTestSyncLoop(spots, mon, PlatformRegionCap, &fakeAuth{monitor: true})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- loop.Run(ctx) }()

	loop.Trigger(TriggerStartup)
	eventually(t, func() bool { return len(loop.Status().Installed) == 1 }, "expected region installed by run loop")

	spots.mu.Lock()
	spots.spots = append(spots.spots, spotAt("b", 200))
	spots.mu.Unlock()
	loop.Trigger(TriggerDataChange)
	eventually(t, func() bool { return mon.ids()["b"] }, "expected data change to install b")

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("run loop did not stop")
	}
}

func TestSyncLoop_DeficiencyStatus(t *testing.T) {
	spots := &mockSpotRepository{spots: []domain.PointOfInterest{spotAt("a", 100)}}
	loop, _ := newTestSyncLoop(spots, newMockRegionMonitor(), PlatformRegionCap, &fakeAuth{monitor: false})

	loop.runOnce(context.Background(), TriggerPermission)
	st := loop.Status()
	if !st.Deficiency {
		t.Fatal("expected deficiency in status")
	}
	if len(st.Installed) != 0 {
		t.Fatalf("expected nothing installed, got %v", st.Installed)
	}
}
