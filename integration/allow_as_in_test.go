//go:build integration

package integration

import (
	"net/netip"
	"testing"

	"github.com/encodeous/spindle/core"
	"github.com/encodeous/spindle/state"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func assertOrigin(t *testing.T, res *core.Result) {
	t.Helper()
	r, ok := res.BestBgpRoute("leaf1", "default", "10.1.0.0/24")
	require.True(t, ok)
	assert.Equal(t, state.NhDiscard(), r.NextHop)
	assert.True(t, r.Bgp.AsPath.IsEmpty())
	assert.Empty(t, res.Backups("leaf1", "default", "10.1.0.0/24"))
}

func TestAllowAsInScenario(t *testing.T) {
	res, _ := Converge(t, "allow_as_in")
	assertOrigin(t, res)

	r, ok := res.BestBgpRoute("leaf2", "default", "10.1.0.0/24")
	require.True(t, ok)
	assert.Equal(t, "65000 65001", r.Bgp.AsPath.String())

	r, ok = res.BestBgpRoute("spine", "default", "10.1.0.0/24")
	require.True(t, ok)
	assert.Equal(t, "65001", r.Bgp.AsPath.String())

	for nv, nr := range res.Nodes {
		assert.Empty(t, nr.BackupBgp, nv.String())
	}
}

func TestAllowAsInDisabled(t *testing.T) {
	cfg := LoadScenario(t, "allow_as_in")
	leaf2, ok := cfg.Node("leaf2")
	require.True(t, ok)
	leaf2.Vrfs[0].Bgp.Peers[0].AllowAsIn = 0

	res, _, err := computeCfg(cfg)
	require.NoError(t, err)
	_, ok = res.BestBgpRoute("leaf2", "default", "10.1.0.0/24")
	assert.False(t, ok)
}

func TestAllowAsInFullMesh(t *testing.T) {
	res, _ := Converge(t, "allow_as_in_mesh")
	assertOrigin(t, res)

	r, ok := res.BestBgpRoute("leaf2", "default", "10.1.0.0/24")
	require.True(t, ok)
	assert.True(t, r.Bgp.AsPath.IsEmpty())
	assert.Equal(t, state.Ibgp, r.Protocol)
	assert.Equal(t, state.NhIp(netip.MustParseAddr("172.16.3.1")), r.NextHop)
	assert.Equal(t, []string{"65000 65001"}, paths(res.Backups("leaf2", "default", "10.1.0.0/24")))

	// leaf2 re-advertises its iBGP path, the spine keeps the older copy from leaf1
	r, ok = res.BestBgpRoute("spine", "default", "10.1.0.0/24")
	require.True(t, ok)
	assert.Equal(t, netip.MustParseAddr("172.16.1.1"), r.Bgp.PeerIp)
	backups := res.Backups("spine", "default", "10.1.0.0/24")
	require.Len(t, backups, 1)
	assert.Equal(t, "65001", backups[0].Bgp.AsPath.String())
	assert.Equal(t, netip.MustParseAddr("172.16.2.1"), backups[0].Bgp.PeerIp)

	cfg := LoadScenario(t, "allow_as_in_mesh")
	leaf2, ok := cfg.Node("leaf2")
	require.True(t, ok)
	leaf2.Vrfs[0].Bgp.Peers[0].AllowAsIn = 0
	res, _, err := computeCfg(cfg)
	require.NoError(t, err)
	assert.Empty(t, res.Backups("leaf2", "default", "10.1.0.0/24"))
}
