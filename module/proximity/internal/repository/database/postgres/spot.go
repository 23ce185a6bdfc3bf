package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/CGroll04/sweetspots/module/proximity/domain"
	"github.com/CGroll04/sweetspots/module/proximity/internal/repository/database"
)

var _ database.SpotRepository = (*SpotRepo)(nil)

// SpotRepo reads the owner's spots. The engine never writes them.
type SpotRepo struct {
	db      *sql.DB
	ownerID string
}

func NewSpotRepo(db *sql.DB, ownerID string) *SpotRepo {
	return &SpotRepo{db: db, ownerID: ownerID}
}

func (r *SpotRepo) ListSpots(ctx context.Context) ([]domain.PointOfInterest, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, name, latitude, longitude, radius_meters, wants_monitoring FROM spots WHERE owner_id = $1 AND deleted_at IS NULL ORDER BY created_at ASC, id ASC`,
		r.ownerID,
	)
	if err != nil {
		return nil, fmt.Errorf("query spots: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var results []domain.PointOfInterest
	for rows.Next() {
		var p domain.PointOfInterest
		if err := rows.Scan(&p.ID, &p.Name, &p.Coordinate.Lat, &p.Coordinate.Lon, &p.RadiusMeters, &p.WantsMonitoring); err != nil {
			return nil, fmt.Errorf("scan spot: %w", err)
		}
		results = append(results, p)
	}
	return results, rows.Err()
}

func (r *SpotRepo) GetSpot(ctx context.Context, id string) (*domain.PointOfInterest, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, name, latitude, longitude, radius_meters, wants_monitoring FROM spots WHERE owner_id = $1 AND id = $2 AND deleted_at IS NULL`,
		r.ownerID, id,
	)

	var p domain.PointOfInterest
	if err := row.Scan(&p.ID, &p.Name, &p.Coordinate.Lat, &p.Coordinate.Lon, &p.RadiusMeters, &p.WantsMonitoring); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrSpotNotFound
		}
		return nil, fmt.Errorf("get spot %s: %w", id, err)
	}
	return &p, nil
}
