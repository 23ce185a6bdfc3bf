package googlemaps

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"googlemaps.github.io/maps"

	"github.com/CGroll04/sweetspots/module/proximity/domain"
	"github.com/CGroll04/sweetspots/module/proximity/internal/repository/route"
)

var _ route.Provider = (*Provider)(nil)

var travelModes = map[domain.TransportMode]maps.Mode{
	domain.TransportDriving: maps.TravelModeDriving,
	domain.TransportWalking: maps.TravelModeWalking,
	domain.TransportCycling: maps.TravelModeBicycling,
	domain.TransportTransit: maps.TravelModeTransit,
}

// Provider calculates routes with the Google Maps Directions API. Only the
// first route returned is used.
type Provider struct {
	client *maps.Client
}

func NewProvider(apiKey string, opts ...maps.ClientOption) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("google maps api key is empty")
	}
	client, err := maps.NewClient(append([]maps.ClientOption{maps.WithAPIKey(apiKey)}, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("maps client: %w", err)
	}
	return &Provider{client: client}, nil
}

func (p *Provider) CalculateRoute(ctx context.Context, origin, destination domain.GeoPoint, mode domain.TransportMode) (*domain.Route, error) {
	travelMode, ok := travelModes[mode]
	if !ok {
		travelMode = maps.TravelModeDriving
	}

	routes, _, err := p.client.Directions(ctx, &maps.DirectionsRequest{
		Origin:      latLng(origin),
		Destination: latLng(destination),
		Mode:        travelMode,
	})
	if err != nil {
		if strings.Contains(err.Error(), "ZERO_RESULTS") || strings.Contains(err.Error(), "NOT_FOUND") {
			return nil, fmt.Errorf("directions: %w", route.ErrNoRoute)
		}
		return nil, fmt.Errorf("directions: %w", err)
	}
	if len(routes) == 0 {
		return nil, route.ErrNoRoute
	}

	return toRoute(routes[0])
}

func toRoute(r maps.Route) (*domain.Route, error) {
	out := &domain.Route{}
	for _, leg := range r.Legs {
		out.DistanceMeters += float64(leg.Distance.Meters)
		out.ExpectedTravelTime += leg.Duration

		for _, step := range leg.Steps {
			points, err := step.Polyline.Decode()
			if err != nil {
				return nil, fmt.Errorf("decode step polyline: %w", err)
			}
			polyline := make([]domain.GeoPoint, 0, len(points))
			for _, pt := range points {
				polyline = append(polyline, domain.GeoPoint{Lat: pt.Lat, Lon: pt.Lng})
			}
			out.Steps = append(out.Steps, domain.RouteStep{
				Instruction:    stripHTML(step.HTMLInstructions),
				Polyline:       polyline,
				DistanceMeters: float64(step.Distance.Meters),
				Duration:       step.Duration,
			})
		}
	}
	if len(out.Steps) == 0 {
		return nil, route.ErrNoRoute
	}
	return out, nil
}

func latLng(p domain.GeoPoint) string {
	return fmt.Sprintf("%f,%f", p.Lat, p.Lon)
}

// stripHTML removes tags from Google's instruction markup.
func stripHTML(s string) string {
	out := make([]rune, 0, len(s))
	inTag := false
	for _, r := range s {
		switch {
		case r == '<':
			inTag = true
		case r == '>':
			inTag = false
			// block tags separate sentences in the markup
			out = append(out, ' ')
		case !inTag:
			out = append(out, r)
		}
	}
	return strings.Join(strings.Fields(string(out)), " ")
}
