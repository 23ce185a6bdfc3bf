package database

import (
	"context"
	"errors"

	"github.com/CGroll04/sweetspots/module/proximity/domain"
)

var ErrSpotNotFound = errors.New("spot not found")

type SpotRepository interface {
	ListSpots(ctx context.Context) ([]domain.PointOfInterest, error)
	GetSpot(ctx context.Context, id string) (*domain.PointOfInterest, error)
}
