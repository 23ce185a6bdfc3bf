package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/CGroll04/sweetspots/module/proximity/domain"
	"github.com/CGroll04/sweetspots/module/proximity/internal/repository/permission"
)

// PermissionGate mirrors the device's authorization state. The engine never
// changes it; reports arrive from the device and upgrades are only requested.
type PermissionGate struct {
	store permission.AuthorizationStore
	log   *slog.Logger

	mu       sync.RWMutex
	auth     domain.Authorization
	onChange []func(domain.Authorization)
}

func NewPermissionGate(store permission.AuthorizationStore, log *slog.Logger) *PermissionGate {
	return &PermissionGate{store: store, log: log}
}

// Restore loads the last known authorization from the store.
func (g *PermissionGate) Restore(ctx context.Context) error {
	auth, err := g.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("restore authorization: %w", err)
	}
	g.mu.Lock()
	g.auth = auth
	g.mu.Unlock()
	return nil
}

// OnChange registers fn to run after every authorization change.
func (g *PermissionGate) OnChange(fn func(domain.Authorization)) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.onChange = append(g.onChange, fn)
}

func (g *PermissionGate) Authorization() domain.Authorization {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.auth
}

// CanMonitor reports whether background region monitoring may be installed.
func (g *PermissionGate) CanMonitor() bool {
	return g.Authorization().Location == domain.AuthAlways
}

func (g *PermissionGate) CanNotify() bool {
	return g.Authorization().Notifications
}

// Update records a device report. Listeners fire only when the state differs.
func (g *PermissionGate) Update(ctx context.Context, auth domain.Authorization) error {
	g.mu.Lock()
	changed := g.auth != auth
	g.auth = auth
	listeners := append([]func(domain.Authorization){}, g.onChange...)
	g.mu.Unlock()

	if !changed {
		return nil
	}

	g.log.Info("authorization changed", "location", auth.Location.String(), "notifications", auth.Notifications)

	for _, fn := range listeners {
		fn(auth)
	}
	if err := g.store.Save(ctx, auth); err != nil {
		return fmt.Errorf("save authorization: %w", err)
	}
	return nil
}

// RequestUpgrade is fire-and-forget: the result is observed via Update.
func (g *PermissionGate) RequestUpgrade(ctx context.Context) error {
	if g.CanMonitor() {
		return nil
	}
	if err := g.store.RequestUpgrade(ctx); err != nil {
		return fmt.Errorf("request authorization upgrade: %w", err)
	}
	return nil
}
