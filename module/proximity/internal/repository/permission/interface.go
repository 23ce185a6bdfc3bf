package permission

import (
	"context"

	"github.com/CGroll04/sweetspots/module/proximity/domain"
)

type AuthorizationStore interface {
	Load(ctx context.Context) (domain.Authorization, error)
	Save(ctx context.Context, auth domain.Authorization) error
	// RequestUpgrade asks the device to prompt for Always access. The outcome
	// arrives later as a new authorization report.
	RequestUpgrade(ctx context.Context) error
}
