package rib

import (
	"errors"
	"fmt"
	"maps"
	"net/netip"
	"slices"

	"github.com/encodeous/spindle/state"
)

var ErrComparatorContract = errors.New("comparator contract violated")

type ComparatorError struct {
	Prefix netip.Prefix
	A, B   state.Route
	Reason string
}

func (e *ComparatorError) Error() string {
	return fmt.Sprintf("%v at %s: %s (%s vs %s)", ErrComparatorContract, e.Prefix, e.Reason, e.A, e.B)
}

func (e *ComparatorError) Unwrap() error {
	return ErrComparatorContract
}

// BestChange describes the effect of a mutation on the best route of a prefix
type BestChange struct {
	Prefix netip.Prefix
	Old    *state.Route
	New    *state.Route
}

func (b BestChange) Changed() bool {
	if b.Old == nil || b.New == nil {
		return b.Old != b.New
	}
	return !b.Old.Equal(*b.New)
}

// Rib holds the candidate routes of one (node, vrf, protocol). For every prefix, candidates are kept ordered best
// first, the head is the best route and the rest are backups.
type Rib struct {
	cmp    Comparator
	routes map[netip.Prefix][]state.Route
}

func New(c Comparator) *Rib {
	return &Rib{
		cmp:    c,
		routes: make(map[netip.Prefix][]state.Route),
	}
}

func (r *Rib) Comparator() Comparator {
	return r.cmp
}

func (r *Rib) best(prefix netip.Prefix) *state.Route {
	rs := r.routes[prefix]
	if len(rs) == 0 {
		return nil
	}
	b := rs[0]
	return &b
}

func (r *Rib) change(prefix netip.Prefix, old *state.Route) BestChange {
	return BestChange{Prefix: prefix, Old: old, New: r.best(prefix)}
}

// order puts candidates in preference order. The result never depends on the order routes arrived in.
func (r *Rib) order(rs []state.Route) {
	r.cmp.Sort(rs)
}

// Add inserts route, replacing any candidate for the same prefix with the same key
func (r *Rib) Add(route state.Route) BestChange {
	old := r.best(route.Prefix)
	key := route.Key()
	rs := slices.DeleteFunc(slices.Clone(r.routes[route.Prefix]), func(x state.Route) bool {
		return x.Key() == key
	})
	rs = append(rs, route)
	r.order(rs)
	r.routes[route.Prefix] = rs
	return r.change(route.Prefix, old)
}

// Remove withdraws the candidate with the given key
func (r *Rib) Remove(prefix netip.Prefix, key state.RouteKey) BestChange {
	old := r.best(prefix)
	rs := slices.DeleteFunc(slices.Clone(r.routes[prefix]), func(x state.Route) bool {
		return x.Key() == key
	})
	r.set(prefix, rs)
	return r.change(prefix, old)
}

// RemoveAll withdraws every candidate with the given key, returning the changes in prefix order
func (r *Rib) RemoveAll(key state.RouteKey) []BestChange {
	out := make([]BestChange, 0)
	for _, p := range r.Prefixes() {
		if !slices.ContainsFunc(r.routes[p], func(x state.Route) bool { return x.Key() == key }) {
			continue
		}
		if c := r.Remove(p, key); c.Changed() {
			out = append(out, c)
		}
	}
	return out
}

// Replace sets the candidates of prefix to routes
func (r *Rib) Replace(prefix netip.Prefix, routes []state.Route) BestChange {
	old := r.best(prefix)
	rs := slices.Clone(routes)
	r.order(rs)
	rs = slices.CompactFunc(rs, state.Route.Equal)
	r.set(prefix, rs)
	return r.change(prefix, old)
}

func (r *Rib) set(prefix netip.Prefix, rs []state.Route) {
	if len(rs) == 0 {
		delete(r.routes, prefix)
	} else {
		r.routes[prefix] = rs
	}
}

func (r *Rib) Best(prefix netip.Prefix) (state.Route, bool) {
	rs := r.routes[prefix]
	if len(rs) == 0 {
		return state.Route{}, false
	}
	return rs[0], true
}

func (r *Rib) Backups(prefix netip.Prefix) []state.Route {
	rs := r.routes[prefix]
	if len(rs) < 2 {
		return []state.Route{}
	}
	return slices.Clone(rs[1:])
}

// Routes returns every candidate for prefix, best first
func (r *Rib) Routes(prefix netip.Prefix) []state.Route {
	return slices.Clone(r.routes[prefix])
}

func (r *Rib) Prefixes() []netip.Prefix {
	return slices.SortedFunc(maps.Keys(r.routes), state.ComparePrefix)
}

func (r *Rib) BestRoutes() []state.Route {
	out := make([]state.Route, 0, len(r.routes))
	for _, p := range r.Prefixes() {
		out = append(out, r.routes[p][0])
	}
	return out
}

func (r *Rib) BackupRoutes() []state.Route {
	out := make([]state.Route, 0)
	for _, p := range r.Prefixes() {
		out = append(out, r.routes[p][1:]...)
	}
	return out
}

// All returns every candidate route in prefix order
func (r *Rib) All() []state.Route {
	out := make([]state.Route, 0)
	for _, p := range r.Prefixes() {
		out = append(out, r.routes[p]...)
	}
	return out
}

// Len returns the number of prefixes with at least one candidate
func (r *Rib) Len() int {
	return len(r.routes)
}

// Clone returns an independent copy, used as a read only snapshot
func (r *Rib) Clone() *Rib {
	c := New(r.cmp)
	for p, rs := range r.routes {
		c.routes[p] = slices.Clone(rs)
	}
	return c
}

// CheckInvariants verifies that no candidate beats the best route, that candidates are stored in the order Sort
// gives them, that the comparator is antisymmetric over neighbouring candidates, and that no two candidates share a
// key. A backup only competes with the best route directly when it leads its neighbouring AS or shares it with the
// best route, the others already lost to a route of their own AS.
func (r *Rib) CheckInvariants() error {
	for _, p := range r.Prefixes() {
		rs := r.routes[p]
		keys := make(map[state.RouteKey]struct{}, len(rs))
		leaders := make(map[neighbour]struct{}, len(rs))
		for i, x := range rs {
			if x.Prefix != p {
				return &ComparatorError{Prefix: p, A: x, B: x, Reason: "route stored under the wrong prefix"}
			}
			if _, ok := keys[x.Key()]; ok {
				return &ComparatorError{Prefix: p, A: x, B: x, Reason: "duplicate route key " + x.Key().String()}
			}
			keys[x.Key()] = struct{}{}
			n := neighbourOf(x)
			_, seen := leaders[n]
			leaders[n] = struct{}{}
			if i == 0 {
				continue
			}
			if (r.cmp.Opts.AlwaysCompareMed || !seen || n == neighbourOf(rs[0])) && r.cmp.Preferred(x, rs[0]) {
				return &ComparatorError{Prefix: p, A: rs[0], B: x, Reason: "backup is preferred over best"}
			}
			ab, ba := r.cmp.Compare(rs[i-1], x), r.cmp.Compare(x, rs[i-1])
			if sign(ab) != -sign(ba) {
				return &ComparatorError{Prefix: p, A: rs[i-1], B: x, Reason: "comparison is not antisymmetric"}
			}
		}
		want := slices.Clone(rs)
		r.cmp.Sort(want)
		for i := range rs {
			if !rs[i].Equal(want[i]) {
				return &ComparatorError{Prefix: p, A: want[i], B: rs[i], Reason: "candidates are not in preference order"}
			}
		}
	}
	return nil
}

func sign(x int) int {
	switch {
	case x < 0:
		return -1
	case x > 0:
		return 1
	}
	return 0
}

// Merge builds a main RIB from protocol RIBs. Every candidate is kept, the best route of each prefix is the
// candidate with the lowest administrative distance, ties broken by c.
func Merge(c Comparator, ribs ...*Rib) *Rib {
	all := make(map[netip.Prefix][]state.Route)
	for _, src := range ribs {
		if src == nil {
			continue
		}
		for p, rs := range src.routes {
			all[p] = append(all[p], rs...)
		}
	}
	out := New(c)
	for p, rs := range all {
		out.Replace(p, rs)
	}
	return out
}
