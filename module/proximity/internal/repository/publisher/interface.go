package publisher

import (
	"context"

	"github.com/CGroll04/sweetspots/module/proximity/domain"
)

type AlertPublisher interface {
	PublishAlert(ctx context.Context, alert *domain.AlertRequest) error
}
