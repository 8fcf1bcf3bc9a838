package state

import (
	"net/netip"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNameValidator_Valid(t *testing.T) {
	assert.NoError(t, NameValidator("1"))
	assert.NoError(t, NameValidator("ab_cd"))
	assert.NoError(t, NameValidator("abcd-a.com"))
}

func TestNameValidator_Invalid(t *testing.T) {
	assert.Error(t, NameValidator("1A"))
	assert.Error(t, NameValidator("node name"))
	assert.Error(t, NameValidator(""))
	assert.Error(t, NameValidator("\t"))
	assert.Error(t, NameValidator("abcd-a.com\\hi"))
	assert.Error(t, NameValidator(strings.Repeat("a", 200)))
}

func validNode() NodeCfg {
	return NodeCfg{
		Hostname: "a",
		Vrfs: []VrfCfg{
			{
				Name: "default",
				Bgp: &BgpProcessCfg{
					Asn:      1,
					RouterId: netip.MustParseAddr("1.1.1.1"),
					Peers: []BgpPeerCfg{{
						LocalIp:   netip.MustParseAddr("10.0.0.1"),
						RemoteIp:  netip.MustParseAddr("10.0.0.2"),
						RemoteAsn: 2,
					}},
				},
			},
			{Name: "blue"},
		},
	}
}

func TestNetworkConfigValidator(t *testing.T) {
	for _, tc := range []struct {
		name   string
		modify func(cfg *NetworkCfg)
		err    string
	}{
		{name: "valid", modify: func(cfg *NetworkCfg) {}},
		{
			name: "duplicate node",
			modify: func(cfg *NetworkCfg) {
				cfg.Nodes = append(cfg.Nodes, validNode())
			},
			err: "duplicate node a",
		},
		{
			name: "duplicate vrf",
			modify: func(cfg *NetworkCfg) {
				cfg.Nodes[0].Vrfs[1].Name = "default"
			},
			err: "duplicate vrf default",
		},
		{
			name: "zero asn",
			modify: func(cfg *NetworkCfg) {
				cfg.Nodes[0].Vrfs[0].Bgp.Asn = 0
			},
			err: "bgp asn must not be 0",
		},
		{
			name: "mixed family peer",
			modify: func(cfg *NetworkCfg) {
				cfg.Nodes[0].Vrfs[0].Bgp.Peers[0].RemoteIp = netip.MustParseAddr("2001:db8::1")
			},
			err: "different address family",
		},
		{
			name: "duplicate peer",
			modify: func(cfg *NetworkCfg) {
				b := cfg.Nodes[0].Vrfs[0].Bgp
				b.Peers = append(b.Peers, b.Peers[0])
			},
			err: "duplicate bgp peer 10.0.0.2",
		},
		{
			name: "allow as in out of range",
			modify: func(cfg *NetworkCfg) {
				cfg.Nodes[0].Vrfs[0].Bgp.Peers[0].AllowAsIn = MaxAllowAsIn + 1
			},
			err: "allow_as_in must be between",
		},
		{
			name: "static without next hop",
			modify: func(cfg *NetworkCfg) {
				cfg.Nodes[0].Vrfs[0].StaticRoutes = []StaticRouteCfg{{Prefix: netip.MustParsePrefix("1.0.0.0/8")}}
			},
			err: "must have exactly one next hop",
		},
		{
			name: "rib group into unknown vrf",
			modify: func(cfg *NetworkCfg) {
				cfg.Nodes[0].Vrfs[0].RibGroups = []RibGroupCfg{{Name: "leak", Targets: []string{"red"}}}
			},
			err: "vrf red not defined",
		},
		{
			name: "rib group into itself",
			modify: func(cfg *NetworkCfg) {
				cfg.Nodes[0].Vrfs[0].RibGroups = []RibGroupCfg{{Name: "leak", Targets: []string{"default"}}}
			},
			err: "leaks into its own vrf",
		},
		{
			name: "bad prefix list range",
			modify: func(cfg *NetworkCfg) {
				cfg.Nodes[0].PrefixLists = []PrefixListCfg{{
					Name:    "pl",
					Entries: []PrefixListEntryCfg{{Prefix: netip.MustParsePrefix("10.0.0.0/8"), Ge: 4}},
				}}
			},
			err: "ge 4 out of range",
		},
		{
			name: "undefined policy is not an error",
			modify: func(cfg *NetworkCfg) {
				cfg.Nodes[0].Vrfs[0].Bgp.Peers[0].ImportPolicy = "missing"
			},
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			cfg := &NetworkCfg{Nodes: []NodeCfg{validNode()}}
			tc.modify(cfg)
			err := NetworkConfigValidator(cfg)
			if tc.err == "" {
				assert.NoError(t, err)
			} else {
				assert.ErrorContains(t, err, tc.err)
			}
		})
	}
}

func TestUnresolvedPolicies(t *testing.T) {
	node := validNode()
	node.Policies = []PolicyCfg{{Name: "defined"}}
	node.Vrfs[0].Bgp.Peers[0].ImportPolicy = "defined"
	node.Vrfs[0].Bgp.Peers[0].ExportPolicy = "missing"
	cfg := &NetworkCfg{Nodes: []NodeCfg{node}}
	assert.Equal(t, []string{"a/default peer 10.0.0.2: policy missing not defined"}, UnresolvedPolicies(cfg))
}
