package service

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/CGroll04/sweetspots/module/proximity/domain"
	"github.com/CGroll04/sweetspots/module/proximity/internal/metrics"
	"github.com/CGroll04/sweetspots/module/proximity/internal/repository/route"
)

type NavigatorConfig struct {
	// RouteTimeout bounds a single route calculation.
	RouteTimeout time.Duration
	// ArrivalHold keeps Arrived on display before stopping; zero disables.
	ArrivalHold time.Duration
}

type navCommand struct {
	start *domain.NavigationRequest
	reply chan error
}

type routeResult struct {
	generation uint64
	route      *domain.Route
	err        error
}

// Navigator owns a NavigationSession on a single goroutine. Commands,
// position fixes and route results all arrive as messages to Run.
type Navigator struct {
	provider route.Provider
	cfg      NavigatorConfig
	log      *slog.Logger

	cmds      chan navCommand
	positions chan domain.GeoPoint
	results   chan routeResult

	progress atomic.Pointer[Progress]
	route    atomic.Pointer[domain.Route]

	// owned by Run
	session  *NavigationSession
	cancel   context.CancelFunc
	pending  *domain.GeoPoint
	lastFix  *domain.GeoPoint
	arrival  *time.Timer
	arrivalC <-chan time.Time
}

func NewNavigator(provider route.Provider, cfg NavigatorConfig, log *slog.Logger) *Navigator {
	if cfg.RouteTimeout <= 0 {
		cfg.RouteTimeout = 15 * time.Second
	}
	n := &Navigator{
		provider:  provider,
		cfg:       cfg,
		log:       log,
		cmds:      make(chan navCommand),
		positions: make(chan domain.GeoPoint, 1),
		results:   make(chan routeResult),
		session:   NewNavigationSession(),
	}
	n.session.OnTransition(func(from, to domain.SessionState) {
		n.log.Info("navigation transition", "session_id", n.session.ID(), "from", from.Tag(), "to", to.Tag())
	})
	n.publish()
	return n
}

// Start begins navigation, cancelling any in-flight calculation when req.Replace
// confirms the replacement.
func (n *Navigator) Start(ctx context.Context, req domain.NavigationRequest) error {
	return n.send(ctx, navCommand{start: &req, reply: make(chan error, 1)})
}

// Stop ends any session and discards its route.
func (n *Navigator) Stop(ctx context.Context) error {
	return n.send(ctx, navCommand{reply: make(chan error, 1)})
}

func (n *Navigator) send(ctx context.Context, cmd navCommand) error {
	select {
	case n.cmds <- cmd:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-cmd.reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// UpdateLocation offers a fix without blocking. An unprocessed older fix is
// replaced.
func (n *Navigator) UpdateLocation(pos domain.GeoPoint) {
	select {
	case n.positions <- pos:
		return
	default:
	}
	select {
	case <-n.positions:
	default:
	}
	select {
	case n.positions <- pos:
	default:
	}
}

// Progress returns the projection as of the last processed message.
func (n *Navigator) Progress() Progress {
	return *n.progress.Load()
}

// Route returns the active route, or nil.
func (n *Navigator) Route() *domain.Route {
	return n.route.Load()
}

func (n *Navigator) Run(ctx context.Context) error {
	defer n.cancelInflight()
	defer n.disarmArrival()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case cmd := <-n.cmds:
			err := n.handleCommand(ctx, cmd)
			// callers observe their own command in Progress once Start or Stop returns
			n.publish()
			cmd.reply <- err
			continue
		case pos := <-n.positions:
			n.handlePosition(ctx, pos)
		case res := <-n.results:
			n.handleResult(ctx, res)
		case <-n.arrivalC:
			n.disarmArrival()
			n.log.Info("arrival hold elapsed, stopping session", "session_id", n.session.ID())
			n.session.Stop()
		}
		n.publish()
	}
}

func (n *Navigator) handleCommand(ctx context.Context, cmd navCommand) error {
	if cmd.start == nil {
		n.cancelInflight()
		n.disarmArrival()
		n.pending = nil
		n.session.Stop()
		return nil
	}

	req := *cmd.start
	if req.Origin == nil && n.lastFix != nil {
		origin := *n.lastFix
		req.Origin = &origin
	}
	rr, err := n.session.Start(req)
	if err != nil {
		return err
	}
	n.disarmArrival()
	n.pending = nil
	n.launch(ctx, rr)
	return nil
}

func (n *Navigator) handlePosition(ctx context.Context, pos domain.GeoPoint) {
	n.lastFix = &pos

	switch n.session.State().(type) {
	case domain.Calculating, domain.Rerouting:
		// held until the new route lands; only the latest fix is kept
		n.pending = &pos
		return
	case domain.Navigating:
	default:
		return
	}

	if n.session.OnLocationUpdate(pos) {
		if rr, ok := n.session.Reroute(); ok {
			n.launch(ctx, rr)
		}
		return
	}
	if _, arrived := n.session.State().(domain.Arrived); arrived {
		n.armArrival()
	}
}

func (n *Navigator) handleResult(ctx context.Context, res routeResult) {
	if !n.session.ApplyRoute(res.generation, res.route, res.err) {
		n.log.Debug("dropping stale route result", "generation", res.generation)
		return
	}
	n.cancelInflight()

	if f, failed := n.session.State().(domain.Failed); failed {
		n.log.Warn("route calculation failed", "reason", f.Reason, "err", f.Err)
		n.pending = nil
		return
	}
	if n.pending != nil {
		pos := *n.pending
		n.pending = nil
		n.handlePosition(ctx, pos)
	}
}

func (n *Navigator) launch(ctx context.Context, rr RouteRequest) {
	n.cancelInflight()
	calcCtx, cancel := context.WithTimeout(ctx, n.cfg.RouteTimeout)
	n.cancel = cancel

	go func() {
		defer cancel()
		start := time.Now()
		r, err := n.provider.CalculateRoute(calcCtx, rr.Origin, rr.Destination, rr.Mode)
		metrics.RouteCalculationMs.Observe(float64(time.Since(start).Milliseconds()))

		select {
		case n.results <- routeResult{generation: rr.Generation, route: r, err: err}:
		case <-ctx.Done():
		}
	}()
}

func (n *Navigator) cancelInflight() {
	if n.cancel != nil {
		n.cancel()
		n.cancel = nil
	}
}

func (n *Navigator) armArrival() {
	if n.cfg.ArrivalHold <= 0 || n.arrival != nil {
		return
	}
	n.arrival = time.NewTimer(n.cfg.ArrivalHold)
	n.arrivalC = n.arrival.C
}

func (n *Navigator) disarmArrival() {
	if n.arrival != nil {
		n.arrival.Stop()
		n.arrival = nil
	}
	n.arrivalC = nil
}

func (n *Navigator) publish() {
	p := n.session.Progress()
	n.progress.Store(&p)

	switch st := n.session.State().(type) {
	case domain.Navigating:
		n.route.Store(st.Route)
	case domain.Arrived:
		n.route.Store(st.Route)
	default:
		n.route.Store(nil)
	}
}
