package core

import (
	"github.com/encodeous/spindle/rib"
	"github.com/encodeous/spindle/state"
	"github.com/google/uuid"
)

type SessionCounters struct {
	Advertisements int
	Withdrawals    int
}

// NodeResult is the converged state of a single (node, vrf)
type NodeResult struct {
	BestBgp   []state.Route
	BackupBgp []state.Route
	MainRib   []state.Route
	Fib       *Fib `yaml:"-"`
}

// Result is the outcome of a converged computation. Every route list is sorted by prefix, then by preference.
type Result struct {
	RunId uuid.UUID
	// Rounds is the number of rounds that changed something, Iterations includes the final quiescent round
	Rounds     int
	Iterations int
	Converged  bool
	Nodes      map[state.NodeVrf]*NodeResult
	Sessions   map[state.BgpEdge]SessionCounters
	Warnings   []PolicyWarning
}

func (e *Engine) result(rounds, iterations int) *Result {
	res := &Result{
		RunId:      e.ctx.RunId,
		Rounds:     rounds,
		Iterations: iterations,
		Converged:  true,
		Nodes:      make(map[state.NodeVrf]*NodeResult, len(e.routers)),
		Sessions:   make(map[state.BgpEdge]SessionCounters, len(e.sessions)),
		Warnings:   e.warnings,
	}
	for _, nv := range e.order {
		vr := e.routers[nv]
		nr := &NodeResult{
			BestBgp:   vr.bgp.BestRoutes(),
			BackupBgp: make([]state.Route, 0),
			MainRib:   vr.main.All(),
			Fib: BuildFib(vr.main, func(vrf string) (*rib.Rib, bool) {
				other, ok := e.routers[state.NodeVrf{Hostname: nv.Hostname, Vrf: vrf}]
				if !ok {
					return nil, false
				}
				return other.main, true
			}),
		}
		if e.ctx.Options.BackupsEnabled() {
			nr.BackupBgp = vr.bgp.BackupRoutes()
		}
		res.Nodes[nv] = nr
	}
	for _, s := range e.sessions {
		res.Sessions[s.edge] = *e.counters[s.edge]
	}
	return res
}

func (r *Result) node(node, vrf string) (*NodeResult, bool) {
	nr, ok := r.Nodes[state.NodeVrf{Hostname: node, Vrf: vrf}]
	return nr, ok
}

// BestBgpRoutes returns the best BGP route of every prefix known to node in vrf
func (r *Result) BestBgpRoutes(node, vrf string) []state.Route {
	if nr, ok := r.node(node, vrf); ok {
		return nr.BestBgp
	}
	return []state.Route{}
}

// BackupBgpRoutes returns every non-best BGP candidate of node in vrf
func (r *Result) BackupBgpRoutes(node, vrf string) []state.Route {
	if nr, ok := r.node(node, vrf); ok {
		return nr.BackupBgp
	}
	return []state.Route{}
}

func (r *Result) MainRib(node, vrf string) []state.Route {
	if nr, ok := r.node(node, vrf); ok {
		return nr.MainRib
	}
	return []state.Route{}
}

func (r *Result) Fib(node, vrf string) (*Fib, bool) {
	nr, ok := r.node(node, vrf)
	if !ok {
		return nil, false
	}
	return nr.Fib, true
}

// BestBgpRoute returns the best BGP route for prefix, used by tests and inspection
func (r *Result) BestBgpRoute(node, vrf string, prefix string) (state.Route, bool) {
	for _, rt := range r.BestBgpRoutes(node, vrf) {
		if rt.Prefix.String() == prefix {
			return rt, true
		}
	}
	return state.Route{}, false
}

// Backups returns the backup BGP routes of a single prefix
func (r *Result) Backups(node, vrf string, prefix string) []state.Route {
	out := make([]state.Route, 0)
	for _, rt := range r.BackupBgpRoutes(node, vrf) {
		if rt.Prefix.String() == prefix {
			out = append(out, rt)
		}
	}
	return out
}
