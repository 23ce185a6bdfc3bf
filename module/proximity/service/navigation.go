package service

import (
	"errors"

	"github.com/google/uuid"

	"github.com/CGroll04/sweetspots/module/proximity/domain"
	"github.com/CGroll04/sweetspots/module/proximity/geometry"
	"github.com/CGroll04/sweetspots/module/proximity/internal/metrics"
	"github.com/CGroll04/sweetspots/module/proximity/internal/repository/route"
)

const (
	OffRouteToleranceMeters = 50.0
	StepCompletionMeters    = 25.0
)

var (
	ErrSessionActive = errors.New("navigation session already active")
	ErrNoOrigin      = errors.New("no origin and no known position")
)

// RouteRequest asks for a route calculation. Generation identifies the
// session attempt that issued it; results for older generations are dropped.
type RouteRequest struct {
	Generation  uint64
	Origin      domain.GeoPoint
	Destination domain.GeoPoint
	Mode        domain.TransportMode
}

// NavigationSession is the navigation state machine. It performs no I/O and
// is not safe for concurrent use; Navigator owns it.
type NavigationSession struct {
	id          string
	state       domain.SessionState
	destination domain.PointOfInterest
	mode        domain.TransportMode
	generation  uint64
	position    *domain.GeoPoint

	onTransition func(from, to domain.SessionState)
}

func NewNavigationSession() *NavigationSession {
	return &NavigationSession{state: domain.Idle{}}
}

// OnTransition installs a hook that observes every state change.
func (s *NavigationSession) OnTransition(fn func(from, to domain.SessionState)) {
	s.onTransition = fn
}

func (s *NavigationSession) State() domain.SessionState {
	return s.state
}

func (s *NavigationSession) ID() string {
	return s.id
}

func (s *NavigationSession) Destination() domain.PointOfInterest {
	return s.destination
}

func (s *NavigationSession) Mode() domain.TransportMode {
	return s.mode
}

func (s *NavigationSession) Generation() uint64 {
	return s.generation
}

// Active reports whether a session exists that a new start would replace.
func (s *NavigationSession) Active() bool {
	_, idle := s.state.(domain.Idle)
	return !idle
}

// InProgress reports whether the session is still working toward its
// destination. Arrived and Failed sessions are finished.
func (s *NavigationSession) InProgress() bool {
	switch s.state.(type) {
	case domain.Calculating, domain.Navigating, domain.Rerouting:
		return true
	}
	return false
}

// Start begins a new session. Replacing a session in progress requires
// req.Replace; a finished one is replaced freely. The previous attempt's
// generation is invalidated either way.
func (s *NavigationSession) Start(req domain.NavigationRequest) (RouteRequest, error) {
	if s.InProgress() && !req.Replace {
		return RouteRequest{}, ErrSessionActive
	}
	if req.Origin == nil {
		return RouteRequest{}, ErrNoOrigin
	}
	mode := req.Mode
	if mode == "" {
		mode = domain.TransportDriving
	}

	s.id = uuid.NewString()
	s.destination = req.Destination
	s.mode = mode
	origin := *req.Origin
	s.position = &origin
	return s.calculate(origin), nil
}

func (s *NavigationSession) calculate(origin domain.GeoPoint) RouteRequest {
	s.generation++
	s.transition(domain.Calculating{})
	return RouteRequest{
		Generation:  s.generation,
		Origin:      origin,
		Destination: s.destination.Coordinate,
		Mode:        s.mode,
	}
}

// ApplyRoute settles a calculation. It returns false when the result belongs
// to a superseded attempt and was ignored.
func (s *NavigationSession) ApplyRoute(generation uint64, r *domain.Route, err error) bool {
	if generation != s.generation {
		return false
	}
	if _, ok := s.state.(domain.Calculating); !ok {
		return false
	}

	switch {
	case errors.Is(err, route.ErrNoRoute):
		s.transition(domain.Failed{Reason: domain.FailureNoRouteFound, Err: err})
	case err != nil:
		s.transition(domain.Failed{Reason: domain.FailureProviderError, Err: err})
	case r == nil || len(r.Steps) == 0:
		s.transition(domain.Failed{Reason: domain.FailureNoRouteFound, Err: route.ErrNoRoute})
	default:
		s.transition(domain.Navigating{Route: r, StepIndex: firstInstructedStep(r)})
	}
	return true
}

// OnLocationUpdate advances the session for a new fix. It returns true when
// the fix left the current step's corridor; the session is then Rerouting and
// the caller must follow up with Reroute.
func (s *NavigationSession) OnLocationUpdate(pos domain.GeoPoint) bool {
	nav, ok := s.state.(domain.Navigating)
	if !ok {
		return false
	}
	s.position = &pos

	step := nav.CurrentStep()
	if step == nil {
		s.transition(domain.Arrived{Route: nav.Route})
		return false
	}

	// off-route wins over a step advance in the same update
	if !geometry.WithinCorridor(pos, step.Polyline, OffRouteToleranceMeters) {
		s.transition(domain.Rerouting{})
		return true
	}

	if len(step.Polyline) == 0 {
		return false
	}
	end := step.Polyline[len(step.Polyline)-1]
	if geometry.Distance(pos, end) >= StepCompletionMeters {
		return false
	}

	next := nav.StepIndex + 1
	if next >= len(nav.Route.Steps) {
		s.transition(domain.Arrived{Route: nav.Route})
		return false
	}
	s.transition(domain.Navigating{Route: nav.Route, StepIndex: next})
	return false
}

// Reroute restarts calculation from the last fix with the same destination
// and transport mode. Only valid while Rerouting.
func (s *NavigationSession) Reroute() (RouteRequest, bool) {
	if _, ok := s.state.(domain.Rerouting); !ok || s.position == nil {
		return RouteRequest{}, false
	}
	return s.calculate(*s.position), true
}

// Stop discards the session and its route from any state.
func (s *NavigationSession) Stop() {
	s.generation++
	s.id = ""
	s.destination = domain.PointOfInterest{}
	s.mode = ""
	s.position = nil
	if _, idle := s.state.(domain.Idle); !idle {
		s.transition(domain.Idle{})
	}
}

// Progress projects the session for display.
func (s *NavigationSession) Progress() Progress {
	p := Progress{SessionID: s.id, State: s.state.Tag()}
	if s.Active() {
		dest := s.destination
		p.Destination = &dest
		p.Mode = s.mode
	}

	switch st := s.state.(type) {
	case domain.Navigating:
		if s.position != nil {
			fillRouteProgress(&p, st.Route, st.StepIndex, *s.position, s.mode)
		}
	case domain.Arrived:
		if st.Route != nil {
			p.StepCount = len(st.Route.Steps)
			p.StepIndex = p.StepCount - 1
		}
	case domain.Failed:
		p.FailureReason = string(st.Reason)
		if st.Err != nil {
			p.Error = st.Err.Error()
		}
	}
	return p
}

func (s *NavigationSession) transition(to domain.SessionState) {
	from := s.state
	s.state = to
	metrics.NavigationTransitionsTotal.WithLabelValues(to.Tag()).Inc()
	if s.onTransition != nil {
		s.onTransition(from, to)
	}
}

// firstInstructedStep skips leading steps with no instruction text.
func firstInstructedStep(r *domain.Route) int {
	for i, st := range r.Steps {
		if st.Instruction != "" {
			return i
		}
	}
	return 0
}
