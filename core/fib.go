package core

import (
	"fmt"
	"net/netip"

	"github.com/encodeous/spindle/rib"
	"github.com/encodeous/spindle/state"
	"github.com/gaissmai/bart"
)

type FibAction uint8

const (
	FibUnresolved FibAction = iota
	FibForward
	FibDiscard
	// FibReceive is used for the addresses of the router itself
	FibReceive
)

func (a FibAction) String() string {
	switch a {
	case FibForward:
		return "forward"
	case FibDiscard:
		return "discard"
	case FibReceive:
		return "receive"
	}
	return "unresolved"
}

func (a FibAction) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// FibEntry is the forwarding decision for a prefix after recursive next hop resolution
type FibEntry struct {
	Prefix    netip.Prefix
	Action    FibAction
	NextHopIp netip.Addr `yaml:"next_hop_ip,omitempty"`
	Interface string     `yaml:",omitempty"`
	Vrf       string     `yaml:",omitempty"`
	Route     state.Route
}

func (f FibEntry) String() string {
	s := fmt.Sprintf("%s %s", f.Prefix, f.Action)
	if f.NextHopIp.IsValid() {
		s += " via " + f.NextHopIp.String()
	}
	if f.Interface != "" {
		s += " dev " + f.Interface
	}
	if f.Vrf != "" {
		s += " vrf " + f.Vrf
	}
	return s
}

// VrfResolver returns the main RIB of another vrf of the same node
type VrfResolver func(vrf string) (*rib.Rib, bool)

type Fib struct {
	table   bart.Table[FibEntry]
	entries []FibEntry
}

type resolver struct {
	best     *bart.Table[state.Route]
	otherVrf VrfResolver
}

func bestTable(m *rib.Rib) *bart.Table[state.Route] {
	tbl := new(bart.Table[state.Route])
	for _, r := range m.BestRoutes() {
		tbl.Insert(r.Prefix, r)
	}
	return tbl
}

// BuildFib resolves every best route of main into a forwarding entry
func BuildFib(main *rib.Rib, otherVrf VrfResolver) *Fib {
	res := resolver{best: bestTable(main), otherVrf: otherVrf}
	f := &Fib{entries: make([]FibEntry, 0, main.Len())}
	for _, r := range main.BestRoutes() {
		e := res.resolve(r)
		f.table.Insert(r.Prefix, e)
		f.entries = append(f.entries, e)
	}
	return f
}

func (res resolver) resolve(r state.Route) FibEntry {
	e := FibEntry{Prefix: r.Prefix, Route: r}
	cur := r
	for depth := 0; depth <= state.MaxResolutionDepth; depth++ {
		nh := cur.NextHop
		switch nh.Kind {
		case state.NextHopDiscard:
			e.Action = FibDiscard
			return e
		case state.NextHopInterface:
			e.Interface = nh.Interface
			e.Action = FibForward
			if cur.Protocol == state.Local && depth == 0 {
				e.Action = FibReceive
			}
			return e
		case state.NextHopVrf:
			e.Vrf = nh.Vrf
			if _, ok := res.otherVrf(nh.Vrf); ok {
				e.Action = FibForward
			}
			return e
		case state.NextHopIp:
			pfx, ok := lookupExcluding(res.best, nh.Ip, cur.Prefix)
			if !ok {
				return e
			}
			e.NextHopIp = nh.Ip
			cur, _ = res.best.Get(pfx)
		default:
			return e
		}
	}
	return FibEntry{Prefix: r.Prefix, Route: r}
}

// Lookup returns the entry for the longest prefix that contains addr
func (f *Fib) Lookup(addr netip.Addr) (FibEntry, bool) {
	return f.table.Lookup(addr)
}

func (f *Fib) Get(prefix netip.Prefix) (FibEntry, bool) {
	return f.table.Get(prefix)
}

// Entries returns every entry in prefix order
func (f *Fib) Entries() []FibEntry {
	out := make([]FibEntry, len(f.entries))
	copy(out, f.entries)
	return out
}

// Coverage returns the smallest set of prefixes covering every destination the FIB can deliver traffic to
func (f *Fib) Coverage() []netip.Prefix {
	prefixes := make([]netip.Prefix, 0, len(f.entries))
	for _, e := range f.entries {
		if e.Action == FibForward || e.Action == FibReceive {
			prefixes = append(prefixes, e.Prefix)
		}
	}
	return state.CoalescePrefix(prefixes)
}
