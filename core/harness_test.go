package core

import (
	"fmt"
	"net/netip"
	"slices"
	"strings"
	"testing"

	"github.com/encodeous/spindle/state"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/require"
)

type HarnessEvent struct {
	Message string
	Args    []any
}

func MakeEvent(msg string, args ...any) HarnessEvent {
	return HarnessEvent{
		Message: msg,
		Args:    args,
	}
}

// EngineHarness records everything the engine reports
type EngineHarness struct {
	actions []HarnessEvent
}

func (h *EngineHarness) Advertise(round int, edge state.BgpEdge, adv state.RouteAdvertisement[state.Route]) {
	msg := "ADVERTISE"
	if adv.Withdrawn {
		msg = "WITHDRAW"
	}
	h.actions = append(h.actions, MakeEvent(msg, edge.From.Hostname, edge.To.Hostname, adv.Route.Prefix, round, adv.Route))
}

func (h *EngineHarness) Log(event EngineEvent, desc string, args ...any) {
	h.actions = append(h.actions, MakeEvent(event.String(), args...))
}

type HarnessEvents []HarnessEvent

func (h HarnessEvents) String() string {
	out := make([]string, 0)
	for _, action := range h {
		cur := action.Message
		for _, arg := range action.Args {
			cur += " " + fmt.Sprint(arg)
		}
		out = append(out, cur)
	}
	slices.Sort(out)
	return strings.Join(out, "\n")
}

// GetActions returns and clears the recorded events
func (h *EngineHarness) GetActions() HarnessEvents {
	x := h.actions
	h.actions = make([]HarnessEvent, 0)
	return x
}

func (e HarnessEvents) Filter(msg string) HarnessEvents {
	out := make(HarnessEvents, 0)
	for _, event := range e {
		if event.Message == msg {
			out = append(out, event)
		}
	}
	return out
}

func (e HarnessEvents) contains(msg string, args ...any) bool {
	for _, event := range e {
		if event.Message == msg {
			if len(event.Args) >= len(args) {
				match := true
				for i, arg := range args {
					if !cmp.Equal(event.Args[i], arg, cmpopts.EquateComparable(netip.Prefix{})) {
						match = false
						break
					}
				}
				if match {
					return true
				}
			}
		}
	}
	return false
}

func (e HarnessEvents) AssertContains(t *testing.T, msg string, args ...any) {
	t.Helper()
	if e.contains(msg, args...) {
		return
	}
	t.Fatal("Expected event not found: ", msg, " with args: ", args, " in ", e)
}

func (e HarnessEvents) AssertNotContains(t *testing.T, msg string, args ...any) {
	t.Helper()
	if e.contains(msg, args...) {
		t.Fatal("Unexpected event found: ", msg, " with args: ", args, " in ", e)
	}
}

// testNet builds network descriptions where every router has a single default vrf
type testNet struct {
	cfg *state.NetworkCfg
}

func newTestNet() *testNet {
	return &testNet{cfg: &state.NetworkCfg{}}
}

func (n *testNet) router(host string, asn uint32, rid string) *testNet {
	n.cfg.Nodes = append(n.cfg.Nodes, state.NodeCfg{
		Hostname: host,
		Vrfs: []state.VrfCfg{{
			Name: state.DefaultVrf,
			Bgp:  &state.BgpProcessCfg{Asn: asn, RouterId: netip.MustParseAddr(rid)},
		}},
	})
	return n
}

func (n *testNet) node(host string) *state.NodeCfg {
	node, ok := n.cfg.Node(host)
	if !ok {
		panic("node " + host + " not defined")
	}
	return node
}

func (n *testNet) vrf(host string) *state.VrfCfg {
	v, _ := n.node(host).Vrf(state.DefaultVrf)
	return v
}

// link adds a session between a and b
func (n *testNet) link(a, aIp, b, bIp string) *testNet {
	va, vb := n.vrf(a), n.vrf(b)
	aAddr, bAddr := netip.MustParseAddr(aIp), netip.MustParseAddr(bIp)
	va.Bgp.Peers = append(va.Bgp.Peers, state.BgpPeerCfg{LocalIp: aAddr, RemoteIp: bAddr, RemoteAsn: vb.Bgp.Asn})
	vb.Bgp.Peers = append(vb.Bgp.Peers, state.BgpPeerCfg{LocalIp: bAddr, RemoteIp: aAddr, RemoteAsn: va.Bgp.Asn})
	return n
}

// peer returns the peer definition of host towards remoteIp
func (n *testNet) peer(host, remoteIp string) *state.BgpPeerCfg {
	v := n.vrf(host)
	for i := range v.Bgp.Peers {
		if v.Bgp.Peers[i].RemoteIp.String() == remoteIp {
			return &v.Bgp.Peers[i]
		}
	}
	panic("peer " + remoteIp + " not defined on " + host)
}

// originate makes host announce prefix through a discard static route and a network statement
func (n *testNet) originate(host, prefix string) *testNet {
	v := n.vrf(host)
	p := netip.MustParsePrefix(prefix)
	v.StaticRoutes = append(v.StaticRoutes, state.StaticRouteCfg{Prefix: p, Discard: true})
	v.Bgp.Networks = append(v.Bgp.Networks, p)
	return n
}

func (n *testNet) policy(host string, p state.PolicyCfg) *testNet {
	node := n.node(host)
	node.Policies = append(node.Policies, p)
	return n
}

func (n *testNet) engine(t *testing.T) (*Engine, *EngineHarness) {
	t.Helper()
	ectx, err := NewEngineContext(n.cfg, nil)
	require.NoError(t, err)
	e, err := New(ectx)
	require.NoError(t, err)
	h := &EngineHarness{}
	e.SetObserver(h)
	return e, h
}

func u32(v uint32) *uint32 {
	return &v
}

func pfx(s string) netip.Prefix {
	return netip.MustParsePrefix(s)
}

func addr(s string) netip.Addr {
	return netip.MustParseAddr(s)
}

// setWeight is an accept-all policy that sets the weight of every route
func setWeight(name string, w uint32) state.PolicyCfg {
	return state.PolicyCfg{
		Name:       name,
		Default:    "accept",
		Statements: []state.StatementCfg{{Set: &state.SetCfg{Weight: u32(w)}}},
	}
}

// leafSpine is the withdrawal scenario: a and b both originate 5.5.5.5/32, s hears a directly and b through m,
// and prefers b through a weight set on import. l only peers with s.
func leafSpine() *testNet {
	n := newTestNet().
		router("a", 1, "1.1.1.1").
		router("b", 3, "3.3.3.3").
		router("m", 4, "4.4.4.4").
		router("s", 2, "2.2.2.2").
		router("l", 5, "5.0.0.1")
	n.link("a", "10.0.1.1", "s", "10.0.1.2").
		link("b", "10.0.2.1", "m", "10.0.2.2").
		link("m", "10.0.3.1", "s", "10.0.3.2").
		link("s", "10.0.4.1", "l", "10.0.4.2")
	n.originate("a", "5.5.5.5/32").originate("b", "5.5.5.5/32")
	n.policy("s", setWeight("from-m", 200))
	n.peer("s", "10.0.3.1").ImportPolicy = "from-m"
	return n
}

var routeCmp = cmp.Options{
	cmp.Comparer(state.Route.Equal),
	cmpopts.IgnoreFields(NodeResult{}, "Fib"),
}
