package monitor

import (
	"context"

	"github.com/CGroll04/sweetspots/module/proximity/domain"
)

// RegionMonitor installs and removes circular regions on the device's
// region-monitoring service.
type RegionMonitor interface {
	InstallRegion(ctx context.Context, region domain.RegionSpec) error
	RemoveRegion(ctx context.Context, id string) error
}
