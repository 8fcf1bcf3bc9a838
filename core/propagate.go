package core

import (
	"maps"
	"net/netip"
	"slices"

	"github.com/encodeous/spindle/policy"
	"github.com/encodeous/spindle/state"
)

// session is the sending side of a directed BGP edge
type session struct {
	edge     state.BgpEdge
	sender   *state.BgpPeerCfg
	receiver *state.BgpPeerCfg
	ibgp     bool
	// adjRibOut is what the receiver last heard on this session
	adjRibOut map[netip.Prefix]state.Route
}

type importResult struct {
	prefix netip.Prefix
	// route is nil when the session's route for prefix must be removed from the receiver
	route *state.Route
}

type sessionDelta struct {
	adverts  []state.RouteAdvertisement[state.Route]
	imports  []importResult
	warnings []PolicyWarning
}

func newSession(edge state.BgpEdge, from, to *state.VrfCfg) *session {
	sender, _ := from.Peer(edge.From.Ip, edge.To.Ip)
	receiver, _ := to.Peer(edge.To.Ip, edge.From.Ip)
	return &session{
		edge:      edge,
		sender:    sender,
		receiver:  receiver,
		ibgp:      from.Bgp.Asn == to.Bgp.Asn,
		adjRibOut: make(map[netip.Prefix]state.Route),
	}
}

// receivedKey is the key the receiver stores routes from this session under
func (s *session) receivedKey() state.RouteKey {
	p := state.Bgp
	if s.ibgp {
		p = state.Ibgp
	}
	return state.RouteKey{Protocol: p, Peer: s.edge.From.Ip}
}

// propagate computes what the sender advertises on this session in a round, and what the receiver makes of it.
// It only reads the snapshots and the session's adjRibOut, the result is applied in the merge phase.
func (s *session) propagate(round int, from, to *routerSnapshot) sessionDelta {
	d := sessionDelta{}
	prefixes := slices.Collect(maps.Keys(from.best))
	for p := range s.adjRibOut {
		if _, ok := from.best[p]; !ok {
			prefixes = append(prefixes, p)
		}
	}
	slices.SortFunc(prefixes, state.ComparePrefix)

	for _, p := range prefixes {
		var want state.Route
		ok := false
		if best, has := from.best[p]; has {
			want, ok = s.export(round, from, best, &d)
		}
		prev, had := s.adjRibOut[p]
		switch {
		case !ok && !had:
			continue
		case ok && had && want.Equal(prev):
			continue
		case !ok:
			d.adverts = append(d.adverts, state.Withdraw(prev))
			d.imports = append(d.imports, importResult{prefix: p})
		default:
			d.adverts = append(d.adverts, state.Advertise(want))
			res := importResult{prefix: p}
			if r, accepted := s.importRoute(round, from, to, want, &d); accepted {
				res.route = &r
			}
			d.imports = append(d.imports, res)
		}
	}
	return d
}

func (s *session) warn(d *sessionDelta, round int, node state.NodeVrf, name string, dir policy.Direction, err error) {
	d.warnings = append(d.warnings, PolicyWarning{
		Round:     round,
		Node:      node,
		Session:   s.edge.String(),
		Policy:    name,
		Direction: dir,
		Reason:    err.Error(),
	})
}

// export applies the sender side rules and the export policy to the sender's best route
func (s *session) export(round int, from *routerSnapshot, best state.Route, d *sessionDelta) (state.Route, bool) {
	if !best.IsBgp() {
		return state.Route{}, false
	}
	a := best.Bgp
	if a.PeerIp == s.edge.To.Ip {
		return state.Route{}, false
	}
	if _, ok := from.suppressed[best.Prefix]; ok {
		return state.Route{}, false
	}
	if a.Communities.Has(state.NoAdvertise) {
		return state.Route{}, false
	}
	if !s.ibgp && a.Communities.Has(state.NoExport) {
		return state.Route{}, false
	}
	reflect := false
	if s.ibgp && !a.IsLocal() && !a.Ebgp {
		src, ok := from.peerFor(a.PeerIp)
		if !s.sender.RouteReflectorClient && !(ok && src.RouteReflectorClient) {
			return state.Route{}, false
		}
		reflect = true
	}

	out := best.WithBgp(func(o *state.BgpAttrs) {
		o.Weight = 0
		o.IgpMetric = 0
		o.Age = 0
		o.PeerIp = netip.Addr{}
		o.PeerRouterId = netip.Addr{}
		o.Ebgp = false
		if !s.sender.SendCommunity {
			o.Communities = state.CommunitySet{}
		}
		switch {
		case s.ibgp && reflect:
			if !o.OriginatorId.IsValid() {
				o.OriginatorId = a.PeerRouterId
			}
			o.ClusterList = append([]netip.Addr{from.clusterId}, o.ClusterList...)
		case !s.ibgp:
			o.AsPath = o.AsPath.Prepend(from.asn)
			o.LocalPref = state.DefaultLocalPref
			if !a.IsLocal() {
				o.Med = 0
			}
			o.OriginatorId = netip.Addr{}
			o.ClusterList = nil
		}
	})
	if !s.ibgp || s.sender.NextHopSelf || a.IsLocal() || best.NextHop.Kind != state.NextHopIp {
		out.NextHop = state.NhIp(s.edge.From.Ip)
	}
	out.Protocol = state.Bgp
	out.AdminDistance = 0
	out.Metric = 0
	out.Tag = 0
	out.SrcVrf = ""

	r, accept, err := from.eval(out, s.sender.ExportPolicy, policy.Export)
	if err != nil {
		s.warn(d, round, from.id, s.sender.ExportPolicy, policy.Export, err)
		return state.Route{}, false
	}
	return r, accept
}

// importRoute applies the receiver side loop checks, attributes and import policy to an advertised route
func (s *session) importRoute(round int, from, to *routerSnapshot, adv state.Route, d *sessionDelta) (state.Route, bool) {
	a := adv.Bgp
	if a.AsPath.Count(to.asn) > s.receiver.AllowAsIn {
		return state.Route{}, false
	}
	if s.ibgp {
		if (a.OriginatorId.IsValid() && a.OriginatorId == to.routerId) || slices.Contains(a.ClusterList, to.clusterId) {
			return state.Route{}, false
		}
	}
	r := adv.WithBgp(func(o *state.BgpAttrs) {
		o.PeerIp = s.edge.From.Ip
		o.PeerRouterId = from.routerId
		o.Ebgp = !s.ibgp
		o.Age = round
		o.Weight = 0
	})
	r.Protocol = s.receivedKey().Protocol
	r.AdminDistance = r.Protocol.DefaultAdminDistance()

	r, accept, err := to.eval(r, s.receiver.ImportPolicy, policy.Import)
	if err != nil {
		s.warn(d, round, to.id, s.receiver.ImportPolicy, policy.Import, err)
		return state.Route{}, false
	}
	if !accept {
		return state.Route{}, false
	}
	metric := resolveMetric(to.igp, r.NextHop)
	return r.WithBgp(func(o *state.BgpAttrs) {
		o.IgpMetric = metric
	}), true
}
