package rib

import (
	"cmp"
	"net/netip"
	"slices"

	"github.com/encodeous/spindle/state"
)

type CompareOptions struct {
	// AlwaysCompareMed compares MED between paths from different neighbouring ASes
	AlwaysCompareMed bool
	// CompareRouterIdBeforeAge prefers the lower router id before the older path
	CompareRouterIdBeforeAge bool
	// IgnoreAdminDistance skips the administrative distance, which only ranks routes across protocols
	IgnoreAdminDistance bool
}

// Comparator ranks candidate routes for the same prefix. It only reads the routes it is given, so it is safe for
// concurrent use.
//
// Compare is a strict total order. Unless AlwaysCompareMed is set it does not look at MED, since MED is only
// meaningful between paths from the same neighbouring AS. Sort applies MED inside each neighbouring AS and is what
// orders the candidates of a RIB.
type Comparator struct {
	Opts CompareOptions
}

func NewComparator(cfg state.EngineCfg) Comparator {
	return Comparator{Opts: CompareOptions{
		AlwaysCompareMed:         cfg.AlwaysCompareMed,
		CompareRouterIdBeforeAge: cfg.CompareRouterIdBeforeAge,
	}}
}

// WithinProtocol returns the comparator of a single protocol RIB. Administrative distance is left to the main RIB
// merge, so a locally originated route still wins on weight over an eBGP path.
func (c Comparator) WithinProtocol() Comparator {
	c.Opts.IgnoreAdminDistance = true
	return c
}

// Compare returns a negative number when a ranks before b
func (c Comparator) Compare(a, b state.Route) int {
	return c.compare(a, b, c.Opts.AlwaysCompareMed)
}

// compareWithin orders routes of the same neighbouring AS, MED included
func (c Comparator) compareWithin(a, b state.Route) int {
	return c.compare(a, b, true)
}

func (c Comparator) compare(a, b state.Route, med bool) int {
	if !c.Opts.IgnoreAdminDistance {
		if x := cmp.Compare(a.AdminDistance, b.AdminDistance); x != 0 {
			return x
		}
	}
	aBgp, bBgp := a.IsBgp(), b.IsBgp()
	if aBgp != bBgp {
		// same distance, different families: non bgp routes first
		if bBgp {
			return -1
		}
		return 1
	}
	if aBgp {
		if x := c.compareBgp(a.Bgp, b.Bgp, med); x != 0 {
			return x
		}
	} else if x := cmp.Compare(a.Metric, b.Metric); x != 0 {
		return x
	}
	return CompareStructural(a, b)
}

// Preferred reports whether a wins over b when they are the only two candidates
func (c Comparator) Preferred(a, b state.Route) bool {
	if c.Opts.AlwaysCompareMed || neighbourOf(a) == neighbourOf(b) {
		return c.compareWithin(a, b) < 0
	}
	return c.Compare(a, b) < 0
}

// neighbour identifies the routes whose MED can be compared. Non BGP routes carry no MED and share one group.
type neighbour struct {
	bgp bool
	asn uint32
}

func neighbourOf(r state.Route) neighbour {
	if !r.IsBgp() {
		return neighbour{}
	}
	return neighbour{bgp: true, asn: r.Bgp.AsPath.First()}
}

// Sort orders the candidates of a prefix, preferred first. Candidates are grouped by neighbouring AS and each group
// is ordered with MED. The groups are then merged by repeatedly taking the group head that ranks first by Compare,
// so the best route is the best of the group winners and every backup follows the winner of its own group.
func (c Comparator) Sort(rs []state.Route) {
	if c.Opts.AlwaysCompareMed {
		slices.SortFunc(rs, c.Compare)
		return
	}
	groups := make(map[neighbour][]state.Route)
	for _, r := range rs {
		n := neighbourOf(r)
		groups[n] = append(groups[n], r)
	}
	queues := make([][]state.Route, 0, len(groups))
	for _, g := range groups {
		slices.SortFunc(g, c.compareWithin)
		queues = append(queues, g)
	}
	for i := range rs {
		next := -1
		for j, q := range queues {
			if len(q) > 0 && (next < 0 || c.Compare(q[0], queues[next][0]) < 0) {
				next = j
			}
		}
		rs[i] = queues[next][0]
		queues[next] = queues[next][1:]
	}
}

func (c Comparator) compareBgp(a, b *state.BgpAttrs, med bool) int {
	if x := cmp.Compare(b.Weight, a.Weight); x != 0 {
		return x
	}
	if x := cmp.Compare(b.LocalPref, a.LocalPref); x != 0 {
		return x
	}
	if x := cmp.Compare(a.AsPath.Length(), b.AsPath.Length()); x != 0 {
		return x
	}
	if x := cmp.Compare(a.Origin, b.Origin); x != 0 {
		return x
	}
	if med {
		if x := cmp.Compare(a.Med, b.Med); x != 0 {
			return x
		}
	}
	if x := cmp.Compare(ibgpRank(a), ibgpRank(b)); x != 0 {
		return x
	}
	if x := cmp.Compare(a.IgpMetric, b.IgpMetric); x != 0 {
		return x
	}
	age := cmp.Compare(a.Age, b.Age)
	rid := a.RouterId().Compare(b.RouterId())
	if c.Opts.CompareRouterIdBeforeAge {
		age, rid = rid, age
	}
	if age != 0 {
		return age
	}
	if rid != 0 {
		return rid
	}
	return a.PeerIp.Compare(b.PeerIp)
}

// locally originated and ebgp routes rank equally, both before ibgp
func ibgpRank(a *state.BgpAttrs) int {
	if a.IsLocal() || a.Ebgp {
		return 0
	}
	return 1
}

// CompareStructural is a total order over every field of a route. Two routes compare equal only when Equal is true.
func CompareStructural(a, b state.Route) int {
	if x := comparePrefix(a.Prefix, b.Prefix); x != 0 {
		return x
	}
	if x := cmp.Compare(a.AdminDistance, b.AdminDistance); x != 0 {
		return x
	}
	if x := cmp.Compare(a.Protocol, b.Protocol); x != 0 {
		return x
	}
	if x := cmp.Compare(a.Metric, b.Metric); x != 0 {
		return x
	}
	if x := a.NextHop.Compare(b.NextHop); x != 0 {
		return x
	}
	if x := cmp.Compare(a.Tag, b.Tag); x != 0 {
		return x
	}
	if x := cmp.Compare(a.SrcVrf, b.SrcVrf); x != 0 {
		return x
	}
	return compareAttrs(a.Bgp, b.Bgp)
}

func compareAttrs(a, b *state.BgpAttrs) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	}
	for _, x := range []int{
		cmp.Compare(a.Weight, b.Weight),
		cmp.Compare(a.LocalPref, b.LocalPref),
		a.AsPath.Compare(b.AsPath),
		cmp.Compare(a.Origin, b.Origin),
		cmp.Compare(a.Med, b.Med),
		a.Communities.Compare(b.Communities),
		a.OriginatorId.Compare(b.OriginatorId),
		slices.CompareFunc(a.ClusterList, b.ClusterList, netip.Addr.Compare),
		a.PeerIp.Compare(b.PeerIp),
		a.PeerRouterId.Compare(b.PeerRouterId),
		cmp.Compare(a.IgpMetric, b.IgpMetric),
		cmp.Compare(a.Age, b.Age),
		compareBool(a.Ebgp, b.Ebgp),
	} {
		if x != 0 {
			return x
		}
	}
	return 0
}

func compareBool(a, b bool) int {
	switch {
	case a == b:
		return 0
	case !a:
		return -1
	}
	return 1
}

func comparePrefix(a, b netip.Prefix) int {
	return state.ComparePrefix(a, b)
}
