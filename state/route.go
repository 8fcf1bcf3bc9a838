package state

import (
	"fmt"
	"net/netip"
	"slices"
	"strings"

	"github.com/osrg/gobgp/v3/pkg/packet/bgp"
)

const (
	OriginIgp        uint8 = bgp.BGP_ORIGIN_ATTR_TYPE_IGP
	OriginEgp        uint8 = bgp.BGP_ORIGIN_ATTR_TYPE_EGP
	OriginIncomplete uint8 = bgp.BGP_ORIGIN_ATTR_TYPE_INCOMPLETE
)

var originNames = []string{"igp", "egp", "incomplete"}

func OriginString(o uint8) string {
	if int(o) < len(originNames) {
		return originNames[o]
	}
	return fmt.Sprintf("origin(%d)", o)
}

func ParseOrigin(s string) (uint8, error) {
	idx := slices.Index(originNames, strings.ToLower(strings.TrimSpace(s)))
	if idx < 0 {
		return 0, fmt.Errorf("unknown origin %q", s)
	}
	return uint8(idx), nil
}

// BgpAttrs holds the path attributes of a BGP route, plus the bookkeeping the best path selection reads.
type BgpAttrs struct {
	AsPath       AsPath
	LocalPref    uint32
	Origin       uint8
	Med          uint32
	Communities  CommunitySet
	OriginatorId netip.Addr
	ClusterList  []netip.Addr
	// PeerIp is the address of the session the route was received on, invalid for local routes
	PeerIp       netip.Addr
	PeerRouterId netip.Addr
	Weight       uint32
	// IgpMetric is the distance to the next hop, resolved when the route is imported
	IgpMetric uint32
	// Age is the round the route was received in
	Age  int
	Ebgp bool
}

func (a *BgpAttrs) Clone() *BgpAttrs {
	if a == nil {
		return nil
	}
	c := *a
	c.ClusterList = slices.Clone(a.ClusterList)
	return &c
}

func (a *BgpAttrs) IsLocal() bool {
	return !a.PeerIp.IsValid()
}

// RouterId returns the originator id when set, otherwise the router id of the peer the route was learned from
func (a *BgpAttrs) RouterId() netip.Addr {
	if a.OriginatorId.IsValid() {
		return a.OriginatorId
	}
	return a.PeerRouterId
}

func (a *BgpAttrs) Equal(o *BgpAttrs) bool {
	if a == nil || o == nil {
		return a == o
	}
	return a.AsPath.Equal(o.AsPath) &&
		a.LocalPref == o.LocalPref &&
		a.Origin == o.Origin &&
		a.Med == o.Med &&
		a.Communities.Equal(o.Communities) &&
		a.OriginatorId == o.OriginatorId &&
		slices.Equal(a.ClusterList, o.ClusterList) &&
		a.PeerIp == o.PeerIp &&
		a.PeerRouterId == o.PeerRouterId &&
		a.Weight == o.Weight &&
		a.IgpMetric == o.IgpMetric &&
		a.Age == o.Age &&
		a.Ebgp == o.Ebgp
}

// Route is a single routing entry. Routes are values, the Bgp pointer is never mutated after construction, use WithBgp
// to derive a modified copy.
type Route struct {
	Prefix        netip.Prefix
	Protocol      Protocol
	AdminDistance uint8
	Metric        uint32
	NextHop       NextHop
	Tag           uint32
	Bgp           *BgpAttrs `yaml:",omitempty"`
	// SrcVrf is set on routes leaked from another VRF
	SrcVrf string `yaml:",omitempty"`
}

// RouteKey identifies where a route came from. Within a RIB, a route replaces any other route for the same prefix
// with the same key.
type RouteKey struct {
	Protocol Protocol
	Peer     netip.Addr
	NextHop  NextHop
	SrcVrf   string
}

func (r Route) Key() RouteKey {
	k := RouteKey{Protocol: r.Protocol, SrcVrf: r.SrcVrf}
	if r.Bgp != nil && r.Protocol.IsBgp() {
		k.Peer = r.Bgp.PeerIp
	} else {
		k.NextHop = r.NextHop
	}
	return k
}

func (k RouteKey) String() string {
	s := k.Protocol.String()
	if k.Peer.IsValid() {
		s += " peer " + k.Peer.String()
	} else if k.NextHop.IsValid() {
		s += " via " + k.NextHop.String()
	}
	if k.SrcVrf != "" {
		s += " from " + k.SrcVrf
	}
	return s
}

// WithBgp returns a copy of r with f applied to a copy of its BGP attributes
func (r Route) WithBgp(f func(a *BgpAttrs)) Route {
	if r.Bgp == nil {
		r.Bgp = &BgpAttrs{LocalPref: DefaultLocalPref}
	} else {
		r.Bgp = r.Bgp.Clone()
	}
	f(r.Bgp)
	return r
}

func (r Route) IsBgp() bool {
	return r.Bgp != nil && r.Protocol.IsBgp()
}

func (r Route) Equal(o Route) bool {
	return r.Prefix == o.Prefix &&
		r.Protocol == o.Protocol &&
		r.AdminDistance == o.AdminDistance &&
		r.Metric == o.Metric &&
		r.NextHop == o.NextHop &&
		r.Tag == o.Tag &&
		r.SrcVrf == o.SrcVrf &&
		r.Bgp.Equal(o.Bgp)
}

func (r Route) String() string {
	sb := strings.Builder{}
	fmt.Fprintf(&sb, "%s %s ad=%d nh=%s", r.Prefix, r.Protocol, r.AdminDistance, r.NextHop)
	if r.Metric != 0 {
		fmt.Fprintf(&sb, " metric=%d", r.Metric)
	}
	if r.Tag != 0 {
		fmt.Fprintf(&sb, " tag=%d", r.Tag)
	}
	if r.Bgp != nil {
		a := r.Bgp
		fmt.Fprintf(&sb, " as-path=[%s] lp=%d origin=%s", a.AsPath, a.LocalPref, OriginString(a.Origin))
		if a.Med != 0 {
			fmt.Fprintf(&sb, " med=%d", a.Med)
		}
		if a.Weight != 0 {
			fmt.Fprintf(&sb, " weight=%d", a.Weight)
		}
		if a.Communities.Len() > 0 {
			fmt.Fprintf(&sb, " communities=[%s]", a.Communities)
		}
		if a.PeerIp.IsValid() {
			fmt.Fprintf(&sb, " peer=%s", a.PeerIp)
		}
	}
	if r.SrcVrf != "" {
		fmt.Fprintf(&sb, " src-vrf=%s", r.SrcVrf)
	}
	return sb.String()
}
