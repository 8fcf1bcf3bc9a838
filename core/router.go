package core

import (
	"maps"
	"net/netip"
	"slices"

	"github.com/encodeous/spindle/policy"
	"github.com/encodeous/spindle/rib"
	"github.com/encodeous/spindle/state"
	"github.com/gaissmai/bart"
)

// VirtualRouter holds the RIBs of a single (node, vrf)
type VirtualRouter struct {
	Id   state.NodeVrf
	cfg  *state.VrfCfg
	eval policy.Evaluator
	cmp  rib.Comparator
	opts state.EngineCfg

	connected *rib.Rib
	static    *rib.Rib
	ospf      *rib.Rib
	aggregate *rib.Rib
	bgp       *rib.Rib
	// leaked holds the routes leaked into this vrf, keyed by source vrf
	leaked map[string]*rib.Rib
	main   *rib.Rib

	// IgpTable contains the non-BGP best routes of the main RIB, the value is the distance to the prefix
	IgpTable *bart.Table[uint32]

	local      map[netip.Prefix]state.Route
	suppressed map[netip.Prefix]struct{}
	withdrawn  map[netip.Prefix]struct{}
}

func newVirtualRouter(ectx *EngineContext, nv state.NodeVrf, cfg *state.VrfCfg) *VirtualRouter {
	c := ectx.Comparator()
	vr := &VirtualRouter{
		Id:         nv,
		cfg:        cfg,
		eval:       ectx.Evaluator(nv.Hostname),
		cmp:        c,
		opts:       ectx.Options,
		connected:  rib.New(c),
		static:     rib.New(c),
		ospf:       rib.New(c),
		aggregate:  rib.New(c),
		bgp:        rib.New(c.WithinProtocol()),
		leaked:     make(map[string]*rib.Rib),
		local:      make(map[netip.Prefix]state.Route),
		suppressed: make(map[netip.Prefix]struct{}),
		withdrawn:  make(map[netip.Prefix]struct{}),
	}
	vr.installConnected()
	vr.installOspf()
	vr.installStatic()
	vr.recomputeMain()
	return vr
}

func (vr *VirtualRouter) Bgp() *state.BgpProcessCfg {
	return vr.cfg.Bgp
}

func (vr *VirtualRouter) BgpRib() *rib.Rib {
	return vr.bgp
}

func (vr *VirtualRouter) MainRib() *rib.Rib {
	return vr.main
}

func (vr *VirtualRouter) installConnected() {
	for _, itf := range vr.cfg.Interfaces {
		if itf.Shutdown || !itf.Address.IsValid() {
			continue
		}
		addr := itf.Address.Addr()
		vr.connected.Add(state.Route{
			Prefix:        itf.Address.Masked(),
			Protocol:      state.Connected,
			AdminDistance: state.Connected.DefaultAdminDistance(),
			NextHop:       state.NhInterface(itf.Name),
		})
		vr.connected.Add(state.Route{
			Prefix:        netip.PrefixFrom(addr, addr.BitLen()),
			Protocol:      state.Local,
			AdminDistance: state.Local.DefaultAdminDistance(),
			NextHop:       state.NhInterface(itf.Name),
		})
	}
}

func (vr *VirtualRouter) installOspf() {
	for _, o := range vr.cfg.OspfRoutes {
		// the type was checked by the validator
		p, _ := o.Protocol()
		vr.ospf.Add(state.Route{
			Prefix:        o.Prefix,
			Protocol:      p,
			AdminDistance: p.DefaultAdminDistance(),
			Metric:        o.Cost,
			NextHop:       state.NhIp(o.NextHopIp),
		})
	}
}

// installStatic installs static routes until no more of them can be resolved. A static route with an IP next hop
// is only installed once the next hop is reachable through another connected, ospf or static route.
func (vr *VirtualRouter) installStatic() {
	pending := make([]state.StaticRouteCfg, 0)
	for _, s := range vr.cfg.StaticRoutes {
		if s.NextHop().Kind == state.NextHopIp {
			pending = append(pending, s)
		} else {
			vr.static.Add(staticRoute(s))
		}
	}
	for changed := true; changed && len(pending) > 0; {
		changed = false
		tbl := igpTable(rib.Merge(vr.cmp, vr.connected, vr.ospf, vr.static))
		pending = slices.DeleteFunc(pending, func(s state.StaticRouteCfg) bool {
			if _, ok := lookupExcluding(tbl, s.NextHopIp, s.Prefix); !ok {
				return false
			}
			vr.static.Add(staticRoute(s))
			changed = true
			return true
		})
	}
}

func staticRoute(s state.StaticRouteCfg) state.Route {
	return state.Route{
		Prefix:        s.Prefix,
		Protocol:      state.Static,
		AdminDistance: s.AdminDistance,
		NextHop:       s.NextHop(),
		Tag:           s.Tag,
	}
}

// igpTable builds a lookup table of the non-BGP best routes of m
func igpTable(m *rib.Rib) *bart.Table[uint32] {
	tbl := new(bart.Table[uint32])
	for _, p := range m.Prefixes() {
		for _, r := range m.Routes(p) {
			if r.Protocol.IsBgp() || r.Protocol == state.Aggregate {
				continue
			}
			tbl.Insert(p, r.Metric)
			break
		}
	}
	return tbl
}

// lookupExcluding finds the longest prefix in tbl that contains ip and is not exclude
func lookupExcluding[V any](tbl *bart.Table[V], ip netip.Addr, exclude netip.Prefix) (netip.Prefix, bool) {
	if !ip.IsValid() {
		return netip.Prefix{}, false
	}
	pfx, _, ok := tbl.LookupPrefixLPM(netip.PrefixFrom(ip, ip.BitLen()))
	for ok && pfx == exclude {
		if pfx.Bits() == 0 {
			return netip.Prefix{}, false
		}
		pfx, _, ok = tbl.LookupPrefixLPM(netip.PrefixFrom(ip, pfx.Bits()-1).Masked())
	}
	return pfx, ok
}

// IgpMetric returns the distance to nh through the IGP, or INF when it cannot be resolved
func (vr *VirtualRouter) IgpMetric(nh state.NextHop) uint32 {
	return resolveMetric(vr.IgpTable, nh)
}

func resolveMetric(tbl *bart.Table[uint32], nh state.NextHop) uint32 {
	switch nh.Kind {
	case state.NextHopIp:
		pfx, ok := lookupExcluding(tbl, nh.Ip, netip.Prefix{})
		if !ok {
			return state.INF
		}
		m, _ := tbl.Get(pfx)
		return m
	case state.NextHopDiscard, state.NextHopInterface:
		return 0
	}
	return state.INF
}

// recomputeMain rebuilds the main RIB from every protocol RIB, and the IGP table from the main RIB.
func (vr *VirtualRouter) recomputeMain() {
	best := rib.New(vr.cmp)
	for _, r := range vr.bgp.BestRoutes() {
		best.Add(r)
	}
	ribs := []*rib.Rib{vr.connected, vr.static, vr.ospf, vr.aggregate, best}
	for _, src := range slices.Sorted(maps.Keys(vr.leaked)) {
		ribs = append(ribs, vr.leaked[src])
	}
	vr.main = rib.Merge(vr.cmp, ribs...)
	vr.IgpTable = igpTable(vr.main)
}

// igpRoute returns the preferred non-BGP route for exactly prefix
func (vr *VirtualRouter) igpRoute(prefix netip.Prefix) (state.Route, bool) {
	for _, r := range vr.main.Routes(prefix) {
		if !r.Protocol.IsBgp() && r.Protocol != state.Aggregate {
			return r, true
		}
	}
	return state.Route{}, false
}

func (vr *VirtualRouter) localRoute(prefix netip.Prefix, nh state.NextHop, origin uint8) state.Route {
	return state.Route{
		Prefix:        prefix,
		Protocol:      state.Bgp,
		AdminDistance: state.Ibgp.DefaultAdminDistance(),
		NextHop:       nh,
		Bgp: &state.BgpAttrs{
			LocalPref:    state.DefaultLocalPref,
			Origin:       origin,
			Weight:       state.LocalWeight,
			PeerRouterId: vr.cfg.Bgp.RouterId,
		},
	}
}

func redistributes(want, have state.Protocol) bool {
	if want.IsOspf() {
		return have.IsOspf()
	}
	if want == state.Connected {
		return have == state.Connected || have == state.Local
	}
	return want == have
}

// originate recomputes the locally originated BGP routes from the previous round's main RIB. It returns the best
// route changes it made to the BGP RIB and whether anything else changed.
func (vr *VirtualRouter) originate(round int, warn func(PolicyWarning)) ([]rib.BestChange, bool) {
	bgpCfg := vr.cfg.Bgp
	if bgpCfg == nil {
		return nil, false
	}
	want := make(map[netip.Prefix]state.Route)
	offer := func(r state.Route) {
		if _, ok := vr.withdrawn[r.Prefix]; ok {
			return
		}
		if old, ok := want[r.Prefix]; !ok || vr.cmp.Preferred(r, old) {
			want[r.Prefix] = r
		}
	}

	for _, n := range bgpCfg.Networks {
		if igp, ok := vr.igpRoute(n); ok {
			offer(vr.localRoute(n, igp.NextHop, state.OriginIgp))
		}
	}
	for _, rd := range bgpCfg.Redistribute {
		for _, p := range vr.main.Prefixes() {
			igp, ok := vr.igpRoute(p)
			if !ok || !redistributes(rd.Protocol, igp.Protocol) || igp.SrcVrf != "" {
				continue
			}
			r := vr.localRoute(p, igp.NextHop, state.OriginIncomplete)
			r.Tag = igp.Tag
			r.Bgp.Med = igp.Metric
			out, accept, err := vr.eval(r, rd.Policy, policy.Redistribute)
			if err != nil {
				warn(PolicyWarning{Round: round, Node: vr.Id, Policy: rd.Policy, Direction: policy.Redistribute, Reason: err.Error()})
				continue
			}
			if accept {
				offer(out)
			}
		}
	}

	aggregates := make([]state.Route, 0)
	suppressed := make(map[netip.Prefix]struct{})
	if vr.opts.AggregatesEnabled() {
		for _, agg := range bgpCfg.Aggregates {
			contributors := make([]netip.Prefix, 0)
			for _, r := range vr.bgp.BestRoutes() {
				if r.Prefix.Bits() > agg.Prefix.Bits() && agg.Prefix.Overlaps(r.Prefix) {
					contributors = append(contributors, r.Prefix)
				}
			}
			if len(contributors) == 0 {
				continue
			}
			offer(vr.localRoute(agg.Prefix, state.NhDiscard(), state.OriginIgp))
			aggregates = append(aggregates, state.Route{
				Prefix:        agg.Prefix,
				Protocol:      state.Aggregate,
				AdminDistance: state.Aggregate.DefaultAdminDistance(),
				NextHop:       state.NhDiscard(),
			})
			if agg.SummaryOnly {
				for _, p := range contributors {
					suppressed[p] = struct{}{}
				}
			}
		}
	}

	changes := make([]rib.BestChange, 0)
	record := func(c rib.BestChange) {
		if c.Changed() {
			changes = append(changes, c)
		}
	}
	localKey := state.RouteKey{Protocol: state.Bgp}
	for _, p := range slices.SortedFunc(maps.Keys(vr.local), state.ComparePrefix) {
		if _, ok := want[p]; !ok {
			record(vr.bgp.Remove(p, localKey))
		}
	}
	for _, p := range slices.SortedFunc(maps.Keys(want), state.ComparePrefix) {
		if old, ok := vr.local[p]; !ok || !old.Equal(want[p]) {
			record(vr.bgp.Add(want[p]))
		}
	}
	changed := !maps.EqualFunc(vr.local, want, state.Route.Equal)
	vr.local = want

	slices.SortFunc(aggregates, rib.CompareStructural)
	aggregates = slices.CompactFunc(aggregates, state.Route.Equal)
	if !slices.EqualFunc(vr.aggregate.All(), aggregates, state.Route.Equal) {
		changed = true
		vr.aggregate = rib.New(vr.cmp)
		for _, r := range aggregates {
			vr.aggregate.Add(r)
		}
	}
	if !maps.Equal(vr.suppressed, suppressed) {
		changed = true
		vr.suppressed = suppressed
	}
	return changes, changed
}

// snapshot captures the state a session needs to read during the parallel phase
func (vr *VirtualRouter) snapshot() *routerSnapshot {
	s := &routerSnapshot{
		id:         vr.Id,
		cfg:        vr.cfg,
		eval:       vr.eval,
		igp:        vr.IgpTable,
		best:       make(map[netip.Prefix]state.Route),
		suppressed: maps.Clone(vr.suppressed),
	}
	if vr.cfg.Bgp != nil {
		s.asn = vr.cfg.Bgp.Asn
		s.routerId = vr.cfg.Bgp.RouterId
		s.clusterId = vr.cfg.Bgp.ClusterId
	}
	for _, r := range vr.bgp.BestRoutes() {
		s.best[r.Prefix] = r
	}
	return s
}

type routerSnapshot struct {
	id         state.NodeVrf
	cfg        *state.VrfCfg
	eval       policy.Evaluator
	asn        uint32
	routerId   netip.Addr
	clusterId  netip.Addr
	best       map[netip.Prefix]state.Route
	suppressed map[netip.Prefix]struct{}
	igp        *bart.Table[uint32]
}

// peerFor returns the configuration of the peer a route was learned from
func (s *routerSnapshot) peerFor(peerIp netip.Addr) (*state.BgpPeerCfg, bool) {
	if s.cfg.Bgp == nil {
		return nil, false
	}
	for i := range s.cfg.Bgp.Peers {
		if s.cfg.Bgp.Peers[i].RemoteIp == peerIp {
			return &s.cfg.Bgp.Peers[i], true
		}
	}
	return nil, false
}
