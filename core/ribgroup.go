package core

import (
	"maps"
	"slices"

	"github.com/encodeous/spindle/policy"
	"github.com/encodeous/spindle/rib"
	"github.com/encodeous/spindle/state"
)

// leakedRoute rewrites a route of src for installation in another vrf
func leakedRoute(r state.Route, src string) state.Route {
	r.SrcVrf = src
	if r.NextHop.Kind != state.NextHopIp && r.NextHop.Kind != state.NextHopDiscard {
		r.NextHop = state.NhVrf(src)
	}
	return r
}

// leak recomputes every rib group. The leaked RIB of a target for a source is replaced as a whole, so running it
// twice on the same main RIBs changes nothing. It returns true when any leaked RIB changed.
func (e *Engine) leak(round int) bool {
	// target -> source vrf -> routes
	want := make(map[state.NodeVrf]map[string][]state.Route)
	for _, nv := range e.order {
		vr := e.routers[nv]
		for _, rg := range vr.cfg.RibGroups {
			routes := make([]state.Route, 0)
			for _, r := range vr.main.BestRoutes() {
				if r.SrcVrf != "" {
					continue
				}
				out, accept, err := vr.eval(r, rg.Policy, policy.Leak)
				if err != nil {
					e.warn(PolicyWarning{Round: round, Node: nv, Session: rg.Name, Policy: rg.Policy, Direction: policy.Leak, Reason: err.Error()})
					continue
				}
				if accept {
					routes = append(routes, leakedRoute(out, nv.Vrf))
				}
			}
			for _, t := range rg.Targets {
				target := state.NodeVrf{Hostname: nv.Hostname, Vrf: t}
				if target == nv {
					continue
				}
				if want[target] == nil {
					want[target] = make(map[string][]state.Route)
				}
				want[target][nv.Vrf] = append(want[target][nv.Vrf], routes...)
			}
		}
	}

	changed := false
	for _, nv := range e.order {
		vr := e.routers[nv]
		srcs := want[nv]
		next := make(map[string]*rib.Rib, len(srcs))
		for _, src := range slices.Sorted(maps.Keys(srcs)) {
			lr := rib.New(vr.cmp)
			for _, r := range srcs[src] {
				lr.Add(r)
			}
			next[src] = lr
		}
		if leakedEqual(vr.leaked, next) {
			continue
		}
		changed = true
		vr.leaked = next
		vr.recomputeMain()
		e.log(LeakChanged, "leaked routes changed", "node", nv.String(), "sources", len(next))
	}
	return changed
}

func leakedEqual(a, b map[string]*rib.Rib) bool {
	return maps.EqualFunc(a, b, func(x, y *rib.Rib) bool {
		return slices.EqualFunc(x.All(), y.All(), state.Route.Equal)
	})
}
