package core

import (
	"context"
	"errors"
	"fmt"
	"net/netip"
	"time"

	"github.com/encodeous/spindle/perf"
	"github.com/encodeous/spindle/rib"
	"github.com/encodeous/spindle/state"
	"github.com/jellydator/ttlcache/v3"
	"golang.org/x/sync/errgroup"
)

// Engine computes the converged BGP and main RIBs of every virtual router. An engine is not safe for concurrent
// use, Run spreads the work of a round over its own worker pool.
type Engine struct {
	ctx      *EngineContext
	obs      Observer
	routers  map[state.NodeVrf]*VirtualRouter
	order    []state.NodeVrf
	sessions []*session
	// round is never reset, so route ages stay monotonic across runs
	round    int
	// logged outlives a run, a policy failure that repeats on every run is only logged once per interval
	logged   *ttlcache.Cache[string, PolicyWarning]
	warned   map[string]struct{}
	warnings []PolicyWarning
	counters map[state.BgpEdge]*SessionCounters
	changed  []ChangedPrefix
	// aborted is the error of a run that stopped after changing state, the RIBs it left behind are partial
	aborted error
}

func New(ectx *EngineContext) (*Engine, error) {
	if err := state.ValidateTopology(ectx.Topology, ectx.Network); err != nil {
		return nil, err
	}
	e := &Engine{
		ctx:     ectx,
		obs:     logObserver{log: ectx.Log},
		routers: make(map[state.NodeVrf]*VirtualRouter),
		order:   ectx.Network.NodeVrfs(),
	}
	e.logged = ttlcache.New[string, PolicyWarning](
		ttlcache.WithTTL[string, PolicyWarning](ectx.Options.WarningInterval),
		ttlcache.WithCapacity[string, PolicyWarning](state.MaxLoggedWarnings),
		ttlcache.WithDisableTouchOnHit[string, PolicyWarning](),
	)
	for _, nv := range e.order {
		cfg, _ := ectx.Network.Vrf(nv)
		e.routers[nv] = newVirtualRouter(ectx, nv, cfg)
	}
	for _, edge := range ectx.Topology.Edges() {
		from, ok := ectx.Network.Vrf(edge.From.NodeVrf())
		if !ok {
			return nil, &TopologyError{Edge: edge, Endpoint: edge.From, Reason: "vrf not defined"}
		}
		to, ok := ectx.Network.Vrf(edge.To.NodeVrf())
		if !ok {
			return nil, &TopologyError{Edge: edge, Endpoint: edge.To, Reason: "vrf not defined"}
		}
		e.sessions = append(e.sessions, newSession(edge, from, to))
	}
	return e, nil
}

// SetObserver replaces the default observer, which logs to the context's logger
func (e *Engine) SetObserver(o Observer) {
	e.obs = o
}

func (e *Engine) Context() *EngineContext {
	return e.ctx
}

func (e *Engine) Router(node, vrf string) (*VirtualRouter, bool) {
	vr, ok := e.routers[state.NodeVrf{Hostname: node, Vrf: vrf}]
	return vr, ok
}

// Withdraw stops node from originating prefix into BGP. The next Run converges the network without it.
func (e *Engine) Withdraw(node, vrf string, prefix netip.Prefix) error {
	if e.aborted != nil {
		return e.errAborted()
	}
	vr, ok := e.Router(node, vrf)
	if !ok {
		return fmt.Errorf("vrf %s/%s not defined", node, vrf)
	}
	vr.withdrawn[prefix.Masked()] = struct{}{}
	return nil
}

// Restore undoes a Withdraw
func (e *Engine) Restore(node, vrf string, prefix netip.Prefix) error {
	if e.aborted != nil {
		return e.errAborted()
	}
	vr, ok := e.Router(node, vrf)
	if !ok {
		return fmt.Errorf("vrf %s/%s not defined", node, vrf)
	}
	delete(vr.withdrawn, prefix.Masked())
	return nil
}

func (e *Engine) log(event EngineEvent, desc string, args ...any) {
	e.obs.Log(event, desc, args...)
}

// Run executes rounds until a round produces no advertisements and no local changes. Once a run fails after
// executing a round, the engine refuses further runs and a new one has to be built from the context.
func (e *Engine) Run(ctx context.Context) (*Result, error) {
	if e.aborted != nil {
		return nil, e.errAborted()
	}
	opts := e.ctx.Options
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}
	perf.Computations.Add(1)
	e.warned = make(map[string]struct{})
	e.warnings = make([]PolicyWarning, 0)
	e.counters = make(map[state.BgpEdge]*SessionCounters)
	for _, s := range e.sessions {
		e.counters[s.edge] = &SessionCounters{}
	}

	rounds := 0
	for it := 0; ; it++ {
		if it >= opts.MaxRounds {
			err := &NonConvergenceError{Round: it, Cap: opts.MaxRounds, LastChanged: e.changed}
			e.log(ConvergenceFailure, "round budget exhausted", "rounds", it, "changing", len(e.changed))
			return nil, e.abort(err)
		}
		if err := ctx.Err(); err != nil {
			if it == 0 {
				return nil, e.interrupted(ctx, it)
			}
			return nil, e.abort(e.interrupted(ctx, it))
		}
		e.round++
		start := time.Now()
		changed, err := e.step(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil, e.abort(e.interrupted(ctx, it))
			}
			return nil, e.abort(err)
		}
		elapsed := time.Since(start)
		perf.RoundLatency.Add(float64(elapsed.Microseconds()))
		perf.RoundsPerSecond.Add(1)
		e.log(RoundComplete, "round complete", "round", e.round, "changed", changed, "elapsed", elapsed)
		if !changed {
			e.log(Converged, "converged", "rounds", rounds, "iterations", it+1)
			return e.result(rounds, it+1), nil
		}
		rounds++
	}
}

func (e *Engine) abort(err error) error {
	e.aborted = err
	return err
}

func (e *Engine) errAborted() error {
	return fmt.Errorf("%w: a previous run was aborted and left partial state: %w", ErrNonConvergence, e.aborted)
}

func (e *Engine) interrupted(ctx context.Context, it int) error {
	e.log(ConvergenceFailure, "computation interrupted", "rounds", it, "cause", context.Cause(ctx))
	return &NonConvergenceError{Round: it, Cap: e.ctx.Options.MaxRounds, Cause: context.Cause(ctx), LastChanged: e.changed}
}

func (e *Engine) warn(w PolicyWarning) {
	k := w.key()
	if _, ok := e.warned[k]; ok {
		return
	}
	e.warned[k] = struct{}{}
	e.warnings = append(e.warnings, w)
	if e.logged.Get(k) != nil {
		return
	}
	e.logged.Set(k, w, ttlcache.DefaultTTL)
	e.log(PolicyFailure, "policy failed, route rejected", "node", w.Node.String(), "policy", w.Policy,
		"direction", w.Direction.String(), "reason", w.Reason)
}

// step runs a single round and reports whether anything changed
func (e *Engine) step(ctx context.Context) (bool, error) {
	round := e.round
	e.changed = make([]ChangedPrefix, 0)
	changed := false

	// local origination
	for _, nv := range e.order {
		vr := e.routers[nv]
		changes, other := vr.originate(round, e.warn)
		for _, c := range changes {
			e.bestChanged(vr, c, LocalRouteChanged)
		}
		if other || len(changes) > 0 {
			changed = true
		}
	}

	snaps := make(map[state.NodeVrf]*routerSnapshot, len(e.order))
	for _, nv := range e.order {
		snaps[nv] = e.routers[nv].snapshot()
	}

	deltas := make([]sessionDelta, len(e.sessions))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.ctx.Options.Workers)
	for i, s := range e.sessions {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			deltas[i] = s.propagate(round, snaps[s.edge.From.NodeVrf()], snaps[s.edge.To.NodeVrf()])
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return false, err
	}

	advs, wds := 0, 0
	for i, s := range e.sessions {
		d := deltas[i]
		c := e.counters[s.edge]
		for _, adv := range d.adverts {
			if adv.Withdrawn {
				delete(s.adjRibOut, adv.Route.Prefix)
				c.Withdrawals++
				wds++
			} else {
				s.adjRibOut[adv.Route.Prefix] = adv.Route
				c.Advertisements++
				advs++
			}
			e.obs.Advertise(round, s.edge, adv)
		}
		to := e.routers[s.edge.To.NodeVrf()]
		for _, imp := range d.imports {
			if imp.route != nil {
				e.bestChanged(to, to.bgp.Add(*imp.route), BestRouteChanged)
			} else {
				e.bestChanged(to, to.bgp.Remove(imp.prefix, s.receivedKey()), BackupPromoted)
			}
		}
		for _, w := range d.warnings {
			e.warn(w)
		}
	}
	perf.AdvertisementsPerRound.Add(float64(advs))
	perf.WithdrawalsPerRound.Add(float64(wds))
	if advs+wds > 0 {
		changed = true
	}

	for _, nv := range e.order {
		e.routers[nv].recomputeMain()
	}
	if e.leak(round) {
		changed = true
	}

	if e.ctx.Options.DebugInvariants {
		if err := e.checkInvariants(); err != nil {
			e.log(InvariantViolation, "invariant violated", "round", round, "error", err)
			return false, err
		}
	}
	return changed, nil
}

// bestChanged records a best route transition on vr. kind is the event used when a best route is replaced.
func (e *Engine) bestChanged(vr *VirtualRouter, c rib.BestChange, kind EngineEvent) {
	if !c.Changed() {
		return
	}
	e.changed = append(e.changed, ChangedPrefix{Node: vr.Id, Prefix: c.Prefix})
	switch {
	case c.New == nil:
		e.log(BestRouteWithdrawn, "best route withdrawn", "node", vr.Id.String(), "prefix", c.Prefix, "old", c.Old.String())
	case c.Old == nil:
		if kind == BackupPromoted {
			kind = BestRouteChanged
		}
		e.log(kind, "best route installed", "node", vr.Id.String(), "prefix", c.Prefix, "new", c.New.String())
	default:
		e.log(kind, "best route changed", "node", vr.Id.String(), "prefix", c.Prefix, "old", c.Old.String(), "new", c.New.String())
	}
}

func (e *Engine) checkInvariants() error {
	errs := make([]error, 0)
	for _, nv := range e.order {
		vr := e.routers[nv]
		if err := vr.bgp.CheckInvariants(); err != nil {
			errs = append(errs, fmt.Errorf("%s bgp rib: %w", nv, err))
		}
		if err := vr.main.CheckInvariants(); err != nil {
			errs = append(errs, fmt.Errorf("%s main rib: %w", nv, err))
		}
	}
	return errors.Join(errs...)
}
