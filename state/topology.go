package state

import (
	"fmt"
	"net/netip"
	"slices"

	"github.com/osrg/gobgp/v3/pkg/packet/bgp"
)

// SessionId is one end of a BGP session
type SessionId struct {
	Hostname string
	Vrf      string
	Ip       netip.Addr
}

func (s SessionId) NodeVrf() NodeVrf {
	return NodeVrf{s.Hostname, s.Vrf}
}

func (s SessionId) Compare(o SessionId) int {
	if c := s.NodeVrf().Compare(o.NodeVrf()); c != 0 {
		return c
	}
	return s.Ip.Compare(o.Ip)
}

func (s SessionId) String() string {
	return fmt.Sprintf("%s/%s[%s]", s.Hostname, s.Vrf, s.Ip)
}

// BgpEdge is an established session, routes flow from From to To
type BgpEdge struct {
	From SessionId
	To   SessionId
}

func (e BgpEdge) Compare(o BgpEdge) int {
	if c := e.From.Compare(o.From); c != 0 {
		return c
	}
	return e.To.Compare(o.To)
}

func (e BgpEdge) Reverse() BgpEdge {
	return BgpEdge{From: e.To, To: e.From}
}

func (e BgpEdge) String() string {
	return e.From.String() + " -> " + e.To.String()
}

// BgpTopology is the immutable directed graph of BGP sessions
type BgpTopology struct {
	edges []BgpEdge
	out   map[NodeVrf][]BgpEdge
	in    map[NodeVrf][]BgpEdge
}

func NewBgpTopology(edges []BgpEdge) *BgpTopology {
	t := &BgpTopology{
		edges: slices.Clone(edges),
		out:   make(map[NodeVrf][]BgpEdge),
		in:    make(map[NodeVrf][]BgpEdge),
	}
	slices.SortFunc(t.edges, BgpEdge.Compare)
	t.edges = slices.Compact(t.edges)
	for _, e := range t.edges {
		t.out[e.From.NodeVrf()] = append(t.out[e.From.NodeVrf()], e)
		t.in[e.To.NodeVrf()] = append(t.in[e.To.NodeVrf()], e)
	}
	return t
}

// Edges returns every edge in sorted order
func (t *BgpTopology) Edges() []BgpEdge {
	return slices.Clone(t.edges)
}

func (t *BgpTopology) Len() int {
	return len(t.edges)
}

// Out returns the sessions nv advertises routes on
func (t *BgpTopology) Out(nv NodeVrf) []BgpEdge {
	return slices.Clone(t.out[nv])
}

// In returns the sessions nv receives routes on
func (t *BgpTopology) In(nv NodeVrf) []BgpEdge {
	return slices.Clone(t.in[nv])
}

// Sessions returns every distinct session endpoint
func (t *BgpTopology) Sessions() []SessionId {
	out := make([]SessionId, 0, len(t.edges)*2)
	for _, e := range t.edges {
		out = append(out, e.From, e.To)
	}
	slices.SortFunc(out, SessionId.Compare)
	return slices.Compact(out)
}

func RouteFamily(ip netip.Addr) bgp.RouteFamily {
	if ip.Unmap().Is4() {
		return bgp.RF_IPv4_UC
	}
	return bgp.RF_IPv6_UC
}

type peerRef struct {
	nv   NodeVrf
	asn  uint32
	vrf  *VrfCfg
	peer BgpPeerCfg
}

// InferBgpTopology builds the session graph from peer definitions. A session exists when both sides point at each
// other, agree on each other's AS number, own their local address and use the same address family.
func InferBgpTopology(cfg *NetworkCfg) *BgpTopology {
	byLocal := make(map[netip.Addr][]peerRef)
	for i := range cfg.Nodes {
		node := &cfg.Nodes[i]
		for j := range node.Vrfs {
			vrf := &node.Vrfs[j]
			if vrf.Bgp == nil {
				continue
			}
			for _, p := range vrf.Bgp.Peers {
				byLocal[p.LocalIp] = append(byLocal[p.LocalIp], peerRef{
					nv:   NodeVrf{node.Hostname, vrf.Name},
					asn:  vrf.Bgp.Asn,
					vrf:  vrf,
					peer: p,
				})
			}
		}
	}
	edges := make([]BgpEdge, 0)
	for _, refs := range byLocal {
		for _, local := range refs {
			if !local.vrf.HasAddress(local.peer.LocalIp) {
				continue
			}
			for _, remote := range byLocal[local.peer.RemoteIp] {
				if remote.nv == local.nv ||
					remote.peer.RemoteIp != local.peer.LocalIp ||
					remote.peer.RemoteAsn != local.asn ||
					local.peer.RemoteAsn != remote.asn ||
					!remote.vrf.HasAddress(remote.peer.LocalIp) ||
					RouteFamily(local.peer.LocalIp) != RouteFamily(remote.peer.LocalIp) {
					continue
				}
				edges = append(edges, BgpEdge{
					From: SessionId{local.nv.Hostname, local.nv.Vrf, local.peer.LocalIp},
					To:   SessionId{remote.nv.Hostname, remote.nv.Vrf, remote.peer.LocalIp},
				})
			}
		}
	}
	return NewBgpTopology(edges)
}

// TopologyFromConfig uses the explicit topology when one is configured, otherwise it is inferred
func TopologyFromConfig(cfg *NetworkCfg) *BgpTopology {
	if len(cfg.Topology) == 0 {
		return InferBgpTopology(cfg)
	}
	edges := make([]BgpEdge, 0, len(cfg.Topology))
	for _, e := range cfg.Topology {
		edges = append(edges, BgpEdge(e))
	}
	return NewBgpTopology(edges)
}

type TopologyError struct {
	Edge     BgpEdge
	Endpoint SessionId
	Reason   string
}

func (e *TopologyError) Error() string {
	return fmt.Sprintf("inconsistent topology: edge %s: endpoint %s: %s", e.Edge, e.Endpoint, e.Reason)
}

// ValidateTopology checks that every edge connects sessions present in the configuration
func ValidateTopology(topo *BgpTopology, cfg *NetworkCfg) error {
	for _, e := range topo.edges {
		for _, end := range []Pair[SessionId, SessionId]{{e.From, e.To}, {e.To, e.From}} {
			local, remote := end.V1, end.V2
			fail := func(reason string, args ...any) error {
				return &TopologyError{Edge: e, Endpoint: local, Reason: fmt.Sprintf(reason, args...)}
			}
			node, ok := cfg.Node(local.Hostname)
			if !ok {
				return fail("node %s not defined", local.Hostname)
			}
			vrf, ok := node.Vrf(local.Vrf)
			if !ok {
				return fail("vrf %s not defined on %s", local.Vrf, local.Hostname)
			}
			if vrf.Bgp == nil {
				return fail("vrf %s has no bgp process", local.Vrf)
			}
			if _, ok := vrf.Peer(local.Ip, remote.Ip); !ok {
				return fail("no peer from %s to %s", local.Ip, remote.Ip)
			}
		}
	}
	return nil
}
