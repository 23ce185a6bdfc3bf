package service

import (
	"time"

	"github.com/CGroll04/sweetspots/module/proximity/domain"
	"github.com/CGroll04/sweetspots/module/proximity/geometry"
)

// Progress is the read-only navigation projection served to clients.
type Progress struct {
	SessionID          string                  `json:"session_id,omitempty"`
	State              string                  `json:"state"`
	Destination        *domain.PointOfInterest `json:"destination,omitempty"`
	Mode               domain.TransportMode    `json:"transport_mode,omitempty"`
	StepIndex          int                     `json:"step_index"`
	StepCount          int                     `json:"step_count"`
	Instruction        string                  `json:"instruction,omitempty"`
	DistanceToNextStep float64                 `json:"distance_to_next_step_meters"`
	RemainingDistance  float64                 `json:"remaining_distance_meters"`
	RemainingTime      time.Duration           `json:"remaining_time"`
	FailureReason      string                  `json:"failure_reason,omitempty"`
	Error              string                  `json:"error,omitempty"`
}

// meters per second used when the route carries no travel time
var fallbackSpeeds = map[domain.TransportMode]float64{
	domain.TransportDriving: 13.9,
	domain.TransportWalking: 1.4,
	domain.TransportCycling: 4.2,
	domain.TransportTransit: 8.3,
}

func fillRouteProgress(p *Progress, r *domain.Route, stepIndex int, pos domain.GeoPoint, mode domain.TransportMode) {
	if r == nil || stepIndex < 0 || stepIndex >= len(r.Steps) {
		return
	}
	step := r.Steps[stepIndex]
	p.StepIndex = stepIndex
	p.StepCount = len(r.Steps)
	p.Instruction = step.Instruction

	if n := len(step.Polyline); n > 0 {
		p.DistanceToNextStep = geometry.Distance(pos, step.Polyline[n-1])
	}

	remaining := p.DistanceToNextStep
	for _, st := range r.Steps[stepIndex+1:] {
		remaining += stepLength(st)
	}
	p.RemainingDistance = remaining
	p.RemainingTime = remainingTime(r, remaining, mode)
}

// DeriveProgress computes display values for a route position without a session.
func DeriveProgress(r *domain.Route, stepIndex int, pos domain.GeoPoint, mode domain.TransportMode) Progress {
	p := Progress{State: domain.Navigating{}.Tag()}
	fillRouteProgress(&p, r, stepIndex, pos, mode)
	return p
}

func stepLength(st domain.RouteStep) float64 {
	if st.DistanceMeters > 0 {
		return st.DistanceMeters
	}
	return geometry.PathLength(st.Polyline)
}

func routeLength(r *domain.Route) float64 {
	if r.DistanceMeters > 0 {
		return r.DistanceMeters
	}
	var total float64
	for _, st := range r.Steps {
		total += stepLength(st)
	}
	return total
}

// remainingTime scales the provider's estimate by the share of distance left,
// falling back to a nominal speed for the transport mode.
func remainingTime(r *domain.Route, remaining float64, mode domain.TransportMode) time.Duration {
	if total := routeLength(r); r.ExpectedTravelTime > 0 && total > 0 {
		share := remaining / total
		if share > 1 {
			share = 1
		}
		return time.Duration(float64(r.ExpectedTravelTime) * share).Round(time.Second)
	}
	speed, ok := fallbackSpeeds[mode]
	if !ok {
		speed = fallbackSpeeds[domain.TransportDriving]
	}
	return (time.Duration(remaining/speed) * time.Second).Round(time.Second)
}
