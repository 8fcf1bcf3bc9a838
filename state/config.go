package state

import (
	"cmp"
	"fmt"
	"net"
	"net/netip"
	"slices"
	"strings"

	"github.com/cilium/cilium/pkg/ip"
	"github.com/goccy/go-yaml"
)

// NetworkCfg describes every device of the modelled network
type NetworkCfg struct {
	Nodes    []NodeCfg
	Topology []BgpEdgeCfg `yaml:",omitempty"` // inferred from peer definitions when empty
	Engine   EngineCfg    `yaml:",omitempty"`
}

type NodeCfg struct {
	Hostname    string
	Policies    []PolicyCfg     `yaml:",omitempty"`
	PrefixLists []PrefixListCfg `yaml:"prefix_lists,omitempty"`
	Vrfs        []VrfCfg
}

type VrfCfg struct {
	Name         string
	Interfaces   []InterfaceCfg   `yaml:",omitempty"`
	StaticRoutes []StaticRouteCfg `yaml:"static_routes,omitempty"`
	OspfRoutes   []OspfRouteCfg   `yaml:"ospf_routes,omitempty"`
	RibGroups    []RibGroupCfg    `yaml:"rib_groups,omitempty"`
	Bgp          *BgpProcessCfg   `yaml:",omitempty"`
}

type InterfaceCfg struct {
	Name     string
	Address  netip.Prefix `yaml:",omitempty"`
	Shutdown bool         `yaml:",omitempty"`
}

// StaticRouteCfg has exactly one of NextHopIp, NextHopInterface, Discard or NextVrf set
type StaticRouteCfg struct {
	Prefix           netip.Prefix
	NextHopIp        netip.Addr `yaml:"next_hop_ip,omitempty"`
	NextHopInterface string     `yaml:"next_hop_interface,omitempty"`
	Discard          bool       `yaml:",omitempty"`
	NextVrf          string     `yaml:"next_vrf,omitempty"`
	AdminDistance    uint8      `yaml:"admin_distance,omitempty"`
	Tag              uint32     `yaml:",omitempty"`
}

func (s StaticRouteCfg) NextHop() NextHop {
	switch {
	case s.Discard:
		return NhDiscard()
	case s.NextHopIp.IsValid():
		return NhIp(s.NextHopIp)
	case s.NextHopInterface != "":
		return NhInterface(s.NextHopInterface)
	case s.NextVrf != "":
		return NhVrf(s.NextVrf)
	}
	return NextHop{}
}

// OspfRouteCfg is a route computed by the IGP, taken as input
type OspfRouteCfg struct {
	Prefix    netip.Prefix
	Cost      uint32
	NextHopIp netip.Addr `yaml:"next_hop_ip"`
	Type      string     `yaml:",omitempty"` // intra, inter, e1 or e2
}

var ospfTypes = map[string]Protocol{
	"":      Ospf,
	"intra": Ospf,
	"inter": OspfIA,
	"e1":    OspfE1,
	"e2":    OspfE2,
}

func (o OspfRouteCfg) Protocol() (Protocol, error) {
	p, ok := ospfTypes[strings.ToLower(o.Type)]
	if !ok {
		return 0, fmt.Errorf("unknown ospf route type %s", o.Type)
	}
	return p, nil
}

// RibGroupCfg leaks the main RIB of the VRF it is declared on into Targets
type RibGroupCfg struct {
	Name    string
	Targets []string
	Policy  string `yaml:",omitempty"`
}

type BgpProcessCfg struct {
	Asn          uint32
	RouterId     netip.Addr        `yaml:"router_id"`
	ClusterId    netip.Addr        `yaml:"cluster_id,omitempty"` // router id when unset
	Networks     []netip.Prefix    `yaml:",omitempty"`
	Redistribute []RedistributeCfg `yaml:",omitempty"`
	Aggregates   []AggregateCfg    `yaml:",omitempty"`
	Peers        []BgpPeerCfg      `yaml:",omitempty"`
}

type RedistributeCfg struct {
	Protocol Protocol
	Policy   string `yaml:",omitempty"`
}

type AggregateCfg struct {
	Prefix      netip.Prefix
	SummaryOnly bool `yaml:"summary_only,omitempty"`
}

type BgpPeerCfg struct {
	LocalIp              netip.Addr `yaml:"local_ip"`
	RemoteIp             netip.Addr `yaml:"remote_ip"`
	RemoteAsn            uint32     `yaml:"remote_asn"`
	ImportPolicy         string     `yaml:"import_policy,omitempty"`
	ExportPolicy         string     `yaml:"export_policy,omitempty"`
	AllowAsIn            int        `yaml:"allow_as_in,omitempty"`
	RouteReflectorClient bool       `yaml:"route_reflector_client,omitempty"`
	NextHopSelf          bool       `yaml:"next_hop_self,omitempty"`
	SendCommunity        bool       `yaml:"send_community,omitempty"`
}

type BgpEdgeCfg struct {
	From SessionId
	To   SessionId
}

// ParseNetworkConfig decodes and expands a network description
func ParseNetworkConfig(data []byte) (*NetworkCfg, error) {
	cfg := &NetworkCfg{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	ExpandNetworkConfig(cfg)
	return cfg, nil
}

// ExpandNetworkConfig fills in derived values and puts the configuration into a canonical order
func ExpandNetworkConfig(cfg *NetworkCfg) {
	cfg.Engine = cfg.Engine.WithDefaults()
	for i := range cfg.Nodes {
		node := &cfg.Nodes[i]
		node.Hostname = strings.ToLower(strings.TrimSpace(node.Hostname))
		if len(node.Vrfs) == 0 {
			node.Vrfs = append(node.Vrfs, VrfCfg{Name: DefaultVrf})
		}
		for j := range node.Vrfs {
			vrf := &node.Vrfs[j]
			if vrf.Name == "" {
				vrf.Name = DefaultVrf
			}
			for k := range vrf.StaticRoutes {
				sr := &vrf.StaticRoutes[k]
				sr.Prefix = sr.Prefix.Masked()
				if sr.AdminDistance == 0 {
					sr.AdminDistance = Static.DefaultAdminDistance()
				}
			}
			for k := range vrf.OspfRoutes {
				vrf.OspfRoutes[k].Prefix = vrf.OspfRoutes[k].Prefix.Masked()
			}
			if vrf.Bgp != nil {
				if !vrf.Bgp.ClusterId.IsValid() {
					vrf.Bgp.ClusterId = vrf.Bgp.RouterId
				}
				for k := range vrf.Bgp.Networks {
					vrf.Bgp.Networks[k] = vrf.Bgp.Networks[k].Masked()
				}
				for k := range vrf.Bgp.Aggregates {
					vrf.Bgp.Aggregates[k].Prefix = vrf.Bgp.Aggregates[k].Prefix.Masked()
				}
			}
		}
	}
	slices.SortStableFunc(cfg.Nodes, func(a, b NodeCfg) int {
		return cmp.Compare(a.Hostname, b.Hostname)
	})
}

func (c *NetworkCfg) Node(hostname string) (*NodeCfg, bool) {
	idx := slices.IndexFunc(c.Nodes, func(n NodeCfg) bool {
		return n.Hostname == hostname
	})
	if idx < 0 {
		return nil, false
	}
	return &c.Nodes[idx], true
}

func (c *NetworkCfg) Vrf(nv NodeVrf) (*VrfCfg, bool) {
	node, ok := c.Node(nv.Hostname)
	if !ok {
		return nil, false
	}
	return node.Vrf(nv.Vrf)
}

// NodeVrfs returns every (node, vrf) in sorted order
func (c *NetworkCfg) NodeVrfs() []NodeVrf {
	out := make([]NodeVrf, 0)
	for _, n := range c.Nodes {
		for _, v := range n.Vrfs {
			out = append(out, NodeVrf{n.Hostname, v.Name})
		}
	}
	slices.SortFunc(out, NodeVrf.Compare)
	return out
}

func (n *NodeCfg) Vrf(name string) (*VrfCfg, bool) {
	idx := slices.IndexFunc(n.Vrfs, func(v VrfCfg) bool {
		return v.Name == name
	})
	if idx < 0 {
		return nil, false
	}
	return &n.Vrfs[idx], true
}

// Peer finds the peer definition of this VRF that uses localIp and points at remoteIp
func (v *VrfCfg) Peer(localIp, remoteIp netip.Addr) (*BgpPeerCfg, bool) {
	if v.Bgp == nil {
		return nil, false
	}
	idx := slices.IndexFunc(v.Bgp.Peers, func(p BgpPeerCfg) bool {
		return p.LocalIp == localIp && p.RemoteIp == remoteIp
	})
	if idx < 0 {
		return nil, false
	}
	return &v.Bgp.Peers[idx], true
}

// HasAddress is true if ip is assigned to an interface of the VRF that is not shut down. VRFs without interfaces
// accept any address.
func (v *VrfCfg) HasAddress(ip netip.Addr) bool {
	if len(v.Interfaces) == 0 {
		return true
	}
	return slices.ContainsFunc(v.Interfaces, func(i InterfaceCfg) bool {
		return !i.Shutdown && i.Address.IsValid() && i.Address.Addr() == ip
	})
}

func toIPNets(prefixes []netip.Prefix) []*net.IPNet {
	nets := make([]*net.IPNet, 0, len(prefixes))
	for _, p := range prefixes {
		if p.IsValid() {
			nets = append(nets, &net.IPNet{
				IP:   p.Addr().AsSlice(),
				Mask: net.CIDRMask(p.Bits(), p.Addr().BitLen()),
			})
		}
	}
	return nets
}

func fromIPNets(nets []*net.IPNet) []netip.Prefix {
	output := make([]netip.Prefix, 0, len(nets))
	for _, n := range nets {
		if addr, ok := netip.AddrFromSlice(n.IP); ok {
			ones, _ := n.Mask.Size()
			output = append(output, netip.PrefixFrom(addr.Unmap(), ones))
		}
	}
	return output
}

// CoalescePrefix merges adjacent and overlapping prefixes into the smallest covering set
func CoalescePrefix(prefixes []netip.Prefix) []netip.Prefix {
	ipv4, ipv6 := ip.CoalesceCIDRs(toIPNets(prefixes))
	out := fromIPNets(append(ipv4, ipv6...))
	slices.SortFunc(out, ComparePrefix)
	return out
}

// ComparePrefix orders prefixes by address, then by length
func ComparePrefix(a, b netip.Prefix) int {
	if c := a.Addr().Compare(b.Addr()); c != 0 {
		return c
	}
	return cmp.Compare(a.Bits(), b.Bits())
}
