package domain

import (
	"fmt"
	"time"
)

type TransportMode string

const (
	TransportDriving TransportMode = "driving"
	TransportWalking TransportMode = "walking"
	TransportCycling TransportMode = "cycling"
	TransportTransit TransportMode = "transit"
)

func ParseTransportMode(s string) (TransportMode, error) {
	switch m := TransportMode(s); m {
	case TransportDriving, TransportWalking, TransportCycling, TransportTransit:
		return m, nil
	case "":
		return TransportDriving, nil
	}
	return "", fmt.Errorf("unknown transport mode %q", s)
}

type RouteStep struct {
	Instruction    string        `json:"instruction"`
	Polyline       []GeoPoint    `json:"polyline"`
	DistanceMeters float64       `json:"distance_meters"`
	Duration       time.Duration `json:"duration"`
}

type Route struct {
	Steps              []RouteStep   `json:"steps"`
	DistanceMeters     float64       `json:"distance_meters"`
	ExpectedTravelTime time.Duration `json:"expected_travel_time"`
}

type FailureReason string

const (
	FailureNoRouteFound  FailureReason = "no_route_found"
	FailureProviderError FailureReason = "provider_error"
)

// SessionState is a closed set: Idle, Calculating, Navigating, Rerouting, Arrived, Failed.
type SessionState interface {
	Tag() string
	sessionState()
}

type Idle struct{}

type Calculating struct{}

type Navigating struct {
	Route     *Route
	StepIndex int
}

type Rerouting struct{}

type Arrived struct {
	Route *Route
}

type Failed struct {
	Reason FailureReason
	Err    error
}

func (Idle) Tag() string        { return "idle" }
func (Calculating) Tag() string { return "calculating" }
func (Navigating) Tag() string  { return "navigating" }
func (Rerouting) Tag() string   { return "rerouting" }
func (Arrived) Tag() string     { return "arrived" }
func (Failed) Tag() string      { return "failed" }

func (Idle) sessionState()        {}
func (Calculating) sessionState() {}
func (Navigating) sessionState()  {}
func (Rerouting) sessionState()   {}
func (Arrived) sessionState()     {}
func (Failed) sessionState()      {}

// CurrentStep returns the step being navigated, or nil when the index is out of range.
func (n Navigating) CurrentStep() *RouteStep {
	if n.Route == nil || n.StepIndex < 0 || n.StepIndex >= len(n.Route.Steps) {
		return nil
	}
	return &n.Route.Steps[n.StepIndex]
}

type NavigationRequest struct {
	Destination PointOfInterest
	// Origin defaults to the last known position when nil.
	Origin *GeoPoint
	Mode   TransportMode
	// Replace confirms that an already active session may be discarded.
	Replace bool
}
