package rib

import (
	"errors"
	"math/rand/v2"
	"net/netip"
	"testing"

	"github.com/encodeous/spindle/state"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fromPeer(peer string, f func(a *state.BgpAttrs)) state.Route {
	return bgp(func(a *state.BgpAttrs) {
		a.PeerIp = netip.MustParseAddr(peer)
		if f != nil {
			f(a)
		}
	})
}

func TestRibAddReplacesSameKey(t *testing.T) {
	r := New(Comparator{})
	c := r.Add(fromPeer("10.0.0.1", nil))
	assert.True(t, c.Changed())
	assert.Nil(t, c.Old)

	c = r.Add(fromPeer("10.0.0.1", func(a *state.BgpAttrs) { a.LocalPref = 200 }))
	assert.True(t, c.Changed())
	assert.Len(t, r.Routes(testPrefix), 1)
	best, ok := r.Best(testPrefix)
	require.True(t, ok)
	assert.Equal(t, uint32(200), best.Bgp.LocalPref)

	// re-adding the same route is not a change
	c = r.Add(best)
	assert.False(t, c.Changed())
}

func TestRibPromotion(t *testing.T) {
	r := New(Comparator{})
	primary := fromPeer("10.0.0.1", func(a *state.BgpAttrs) { a.Weight = 200 })
	backup := fromPeer("10.0.0.2", nil)
	worst := fromPeer("10.0.0.3", func(a *state.BgpAttrs) { a.AsPath = state.NewAsPath(1, 2) })

	r.Add(worst)
	r.Add(primary)
	c := r.Add(backup)
	assert.False(t, c.Changed(), "adding a backup does not change the best route")
	assert.Empty(t, cmp.Diff([]state.Route{backup, worst}, r.Backups(testPrefix)))

	c = r.Remove(testPrefix, primary.Key())
	require.True(t, c.Changed())
	assert.True(t, c.Old.Equal(primary))
	assert.True(t, c.New.Equal(backup))
	assert.Empty(t, cmp.Diff([]state.Route{worst}, r.Backups(testPrefix)))

	r.Remove(testPrefix, backup.Key())
	c = r.Remove(testPrefix, worst.Key())
	assert.True(t, c.Changed())
	assert.Nil(t, c.New)
	assert.Equal(t, 0, r.Len())
	assert.Empty(t, r.Backups(testPrefix))
}

func TestRibOrderIndependent(t *testing.T) {
	rng := rand.New(rand.NewPCG(3, 4))
	routes := randomRoutes(rng, 12, []uint32{1, 2})
	// distinct keys so that every route is kept
	for i := range routes {
		routes[i].SrcVrf = string(rune('a' + i))
	}
	ref := New(Comparator{})
	for _, x := range routes {
		ref.Add(x)
	}
	for range 10 {
		rng.Shuffle(len(routes), func(i, j int) { routes[i], routes[j] = routes[j], routes[i] })
		r := New(Comparator{})
		for _, x := range routes {
			r.Add(x)
		}
		assert.Empty(t, cmp.Diff(ref.Routes(testPrefix), r.Routes(testPrefix)))
	}
}

func TestRibBestBeforeBackups(t *testing.T) {
	rng := rand.New(rand.NewPCG(5, 6))
	for _, c := range []Comparator{{}, {Opts: CompareOptions{AlwaysCompareMed: true}}} {
		for range 20 {
			r := New(c)
			routes := randomRoutes(rng, 40, []uint32{1, 2, 3})
			for i := range routes {
				routes[i].SrcVrf = string(rune('a' + i))
				r.Add(routes[i])
			}
			require.NoError(t, r.CheckInvariants())

			// winner of every neighbouring AS with MED, then the best of the winners
			winners := make(map[neighbour]state.Route)
			for _, x := range routes {
				n := neighbourOf(x)
				if w, ok := winners[n]; !ok || c.compareWithin(x, w) < 0 {
					winners[n] = x
				}
			}
			var want state.Route
			first := true
			for _, w := range winners {
				if first || c.Compare(w, want) < 0 {
					want, first = w, false
				}
			}
			best, ok := r.Best(testPrefix)
			require.True(t, ok)
			assert.True(t, best.Equal(want), "best %s, want %s", best, want)
			for _, b := range r.Backups(testPrefix) {
				assert.False(t, c.Preferred(b, best) && neighbourOf(b) == neighbourOf(best), b.String())
			}
		}
	}
}

func TestRibRemoveAll(t *testing.T) {
	r := New(Comparator{})
	p2 := netip.MustParsePrefix("6.6.6.0/24")
	a := fromPeer("10.0.0.1", nil)
	b := fromPeer("10.0.0.2", nil)
	a2 := a
	a2.Prefix = p2
	r.Add(a)
	r.Add(b)
	r.Add(a2)

	changes := r.RemoveAll(a.Key())
	require.Len(t, changes, 2)
	assert.Equal(t, testPrefix, changes[0].Prefix)
	assert.True(t, changes[0].New.Equal(b))
	assert.Equal(t, p2, changes[1].Prefix)
	assert.Nil(t, changes[1].New)
	assert.Equal(t, []netip.Prefix{testPrefix}, r.Prefixes())
}

func TestRibSnapshotIsolation(t *testing.T) {
	r := New(Comparator{})
	r.Add(fromPeer("10.0.0.1", nil))
	snap := r.Clone()
	r.Add(fromPeer("10.0.0.2", nil))
	r.Remove(testPrefix, fromPeer("10.0.0.1", nil).Key())
	assert.Len(t, snap.Routes(testPrefix), 1)
	best, _ := snap.Best(testPrefix)
	assert.Equal(t, netip.MustParseAddr("10.0.0.1"), best.Bgp.PeerIp)
}

func TestMerge(t *testing.T) {
	c := Comparator{}
	p := netip.MustParsePrefix("10.1.0.0/16")
	static := state.Route{Prefix: p, Protocol: state.Static, AdminDistance: 1, NextHop: state.NhDiscard()}
	ospf := state.Route{Prefix: p, Protocol: state.Ospf, AdminDistance: 110, Metric: 10, NextHop: state.NhIp(netip.MustParseAddr("10.0.0.2"))}
	ebgp := bgp(nil)

	staticRib, ospfRib, bgpRib := New(c), New(c), New(c)
	staticRib.Add(static)
	ospfRib.Add(ospf)
	bgpRib.Add(ebgp)

	main := Merge(c, bgpRib, ospfRib, staticRib, nil)
	assert.Equal(t, 2, main.Len())
	best, _ := main.Best(p)
	assert.True(t, best.Equal(static))
	assert.Empty(t, cmp.Diff([]state.Route{ospf}, main.Backups(p)))
	assert.Empty(t, cmp.Diff([]state.Route{ebgp, static}, main.BestRoutes()))
	assert.Empty(t, cmp.Diff([]state.Route{ospf}, main.BackupRoutes()))
}

func TestCheckInvariants(t *testing.T) {
	r := New(Comparator{})
	good := fromPeer("10.0.0.1", func(a *state.BgpAttrs) { a.Weight = 10 })
	bad := fromPeer("10.0.0.2", nil)
	r.routes[testPrefix] = []state.Route{bad, good}
	err := r.CheckInvariants()
	assert.ErrorIs(t, err, ErrComparatorContract)
	var ce *ComparatorError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, "backup is preferred over best", ce.Reason)

	r.routes[testPrefix] = []state.Route{good, good}
	assert.ErrorContains(t, r.CheckInvariants(), "duplicate route key")

	worse := fromPeer("10.0.0.3", nil)
	r.routes[testPrefix] = []state.Route{good, worse, bad}
	assert.ErrorContains(t, r.CheckInvariants(), "candidates are not in preference order")
}
