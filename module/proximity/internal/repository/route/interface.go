package route

import (
	"context"
	"errors"

	"github.com/CGroll04/sweetspots/module/proximity/domain"
)

var ErrNoRoute = errors.New("no route found")

type Provider interface {
	CalculateRoute(ctx context.Context, origin, destination domain.GeoPoint, mode domain.TransportMode) (*domain.Route, error)
}
