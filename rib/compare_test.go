package rib

import (
	"math/rand/v2"
	"net/netip"
	"testing"

	"github.com/encodeous/spindle/state"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
)

var testPrefix = netip.MustParsePrefix("5.5.5.5/32")

func bgp(f func(a *state.BgpAttrs)) state.Route {
	r := state.Route{
		Prefix:        testPrefix,
		Protocol:      state.Bgp,
		AdminDistance: state.Bgp.DefaultAdminDistance(),
		NextHop:       state.NhIp(netip.MustParseAddr("10.0.0.1")),
		Bgp: &state.BgpAttrs{
			AsPath:       state.NewAsPath(1),
			LocalPref:    state.DefaultLocalPref,
			PeerIp:       netip.MustParseAddr("10.0.0.1"),
			PeerRouterId: netip.MustParseAddr("1.1.1.1"),
			Ebgp:         true,
		},
	}
	if f != nil {
		f(r.Bgp)
	}
	return r
}

func TestComparatorKeys(t *testing.T) {
	c := Comparator{}
	for _, tc := range []struct {
		name   string
		better state.Route
		worse  state.Route
		opts   CompareOptions
	}{
		{
			name:   "admin distance",
			better: state.Route{Prefix: testPrefix, Protocol: state.Static, AdminDistance: 1, NextHop: state.NhDiscard()},
			worse:  bgp(nil),
		},
		{
			name: "weight beats admin distance within protocol",
			better: func() state.Route {
				r := bgp(func(a *state.BgpAttrs) {
					a.Weight = state.LocalWeight
					a.PeerIp = netip.Addr{}
					a.Ebgp = false
				})
				r.AdminDistance = state.Ibgp.DefaultAdminDistance()
				return r
			}(),
			worse: bgp(func(a *state.BgpAttrs) { a.AsPath = state.NewAsPath(2) }),
			opts:  CompareOptions{IgnoreAdminDistance: true},
		},
		{
			name:   "weight beats path length",
			better: bgp(func(a *state.BgpAttrs) { a.Weight = 200; a.AsPath = state.NewAsPath(4, 3) }),
			worse:  bgp(nil),
		},
		{
			name:   "local pref",
			better: bgp(func(a *state.BgpAttrs) { a.LocalPref = 200; a.AsPath = state.NewAsPath(4, 3) }),
			worse:  bgp(nil),
		},
		{
			name:   "as path length",
			better: bgp(func(a *state.BgpAttrs) { a.AsPath = state.NewAsPath(2) }),
			worse:  bgp(func(a *state.BgpAttrs) { a.AsPath = state.NewAsPath(1, 3) }),
		},
		{
			name: "as set counts once",
			better: bgp(func(a *state.BgpAttrs) {
				a.AsPath = state.NewAsPathFromSegments(
					state.AsSegment{Type: state.AsSequence, Asns: []uint32{1}},
					state.AsSegment{Type: state.AsSet, Asns: []uint32{5, 6, 7}},
				)
			}),
			worse: bgp(func(a *state.BgpAttrs) { a.AsPath = state.NewAsPath(1, 5, 6) }),
		},
		{
			name:   "origin",
			better: bgp(func(a *state.BgpAttrs) { a.Origin = state.OriginIgp; a.Weight = 0 }),
			worse:  bgp(func(a *state.BgpAttrs) { a.Origin = state.OriginIncomplete }),
		},
		{
			name:   "med same neighbour",
			better: bgp(func(a *state.BgpAttrs) { a.Med = 5; a.IgpMetric = 100 }),
			worse:  bgp(func(a *state.BgpAttrs) { a.Med = 10 }),
		},
		{
			name:   "med ignored across neighbours",
			better: bgp(func(a *state.BgpAttrs) { a.AsPath = state.NewAsPath(2); a.Med = 10 }),
			worse:  bgp(func(a *state.BgpAttrs) { a.Med = 5; a.IgpMetric = 100 }),
		},
		{
			name:   "always compare med",
			better: bgp(func(a *state.BgpAttrs) { a.Med = 5; a.IgpMetric = 100 }),
			worse:  bgp(func(a *state.BgpAttrs) { a.AsPath = state.NewAsPath(2); a.Med = 10 }),
			opts:   CompareOptions{AlwaysCompareMed: true},
		},
		{
			name:   "ebgp over ibgp",
			better: bgp(func(a *state.BgpAttrs) { a.IgpMetric = 100 }),
			worse:  bgp(func(a *state.BgpAttrs) { a.Ebgp = false }),
		},
		{
			name:   "igp metric",
			better: bgp(func(a *state.BgpAttrs) { a.IgpMetric = 1; a.Age = 10 }),
			worse:  bgp(func(a *state.BgpAttrs) { a.IgpMetric = 2 }),
		},
		{
			name:   "older",
			better: bgp(func(a *state.BgpAttrs) { a.Age = 1; a.PeerRouterId = netip.MustParseAddr("9.9.9.9") }),
			worse:  bgp(func(a *state.BgpAttrs) { a.Age = 2 }),
		},
		{
			name:   "router id before age",
			better: bgp(func(a *state.BgpAttrs) { a.Age = 2 }),
			worse:  bgp(func(a *state.BgpAttrs) { a.Age = 1; a.PeerRouterId = netip.MustParseAddr("9.9.9.9") }),
			opts:   CompareOptions{CompareRouterIdBeforeAge: true},
		},
		{
			name:   "originator id overrides peer router id",
			better: bgp(func(a *state.BgpAttrs) { a.PeerRouterId = netip.MustParseAddr("9.9.9.9"); a.OriginatorId = netip.MustParseAddr("0.0.0.1") }),
			worse:  bgp(nil),
		},
		{
			name:   "peer ip",
			better: bgp(nil),
			worse:  bgp(func(a *state.BgpAttrs) { a.PeerIp = netip.MustParseAddr("10.0.0.2") }),
		},
		{
			name:   "non bgp metric",
			better: state.Route{Prefix: testPrefix, Protocol: state.Ospf, AdminDistance: 110, Metric: 10},
			worse:  state.Route{Prefix: testPrefix, Protocol: state.Ospf, AdminDistance: 110, Metric: 20},
		},
		{
			name:   "structural tie break",
			better: state.Route{Prefix: testPrefix, Protocol: state.Static, AdminDistance: 1, NextHop: state.NhIp(netip.MustParseAddr("10.0.0.1"))},
			worse:  state.Route{Prefix: testPrefix, Protocol: state.Static, AdminDistance: 1, NextHop: state.NhIp(netip.MustParseAddr("10.0.0.2"))},
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			c.Opts = tc.opts
			assert.True(t, c.Preferred(tc.better, tc.worse))
			assert.False(t, c.Preferred(tc.worse, tc.better))
			assert.Zero(t, c.Compare(tc.better, tc.better))
			rs := []state.Route{tc.worse, tc.better}
			c.Sort(rs)
			assert.True(t, rs[0].Equal(tc.better))
		})
	}
}

func randomRoutes(rng *rand.Rand, n int, firstAs []uint32) []state.Route {
	pick := func(vals ...uint32) uint32 { return vals[rng.IntN(len(vals))] }
	out := make([]state.Route, 0, n)
	for range n {
		if rng.IntN(5) == 0 {
			out = append(out, state.Route{
				Prefix:        testPrefix,
				Protocol:      state.Static,
				AdminDistance: uint8(pick(1, 20)),
				Metric:        pick(0, 1),
				NextHop:       state.NhIp(netip.AddrFrom4([4]byte{10, 0, 0, byte(pick(1, 2))})),
			})
			continue
		}
		r := bgp(func(a *state.BgpAttrs) {
			path := []uint32{firstAs[rng.IntN(len(firstAs))]}
			for range rng.IntN(2) {
				path = append(path, pick(7, 8))
			}
			a.AsPath = state.NewAsPath(path...)
			a.Weight = pick(0, 0, 100)
			a.LocalPref = pick(100, 100, 200)
			a.Origin = uint8(pick(0, 2))
			a.Med = pick(0, 10)
			a.Ebgp = rng.IntN(2) == 0
			a.IgpMetric = pick(0, 5)
			a.Age = int(pick(0, 1))
			a.PeerRouterId = netip.AddrFrom4([4]byte{byte(pick(1, 2)), 0, 0, 1})
			a.PeerIp = netip.AddrFrom4([4]byte{10, 0, 0, byte(pick(1, 2))})
		})
		if rng.IntN(4) == 0 {
			r.AdminDistance = 200
			r.Protocol = state.Ibgp
		}
		out = append(out, r)
	}
	return out
}

func checkOrder(t *testing.T, c Comparator, routes []state.Route) {
	t.Helper()
	for _, a := range routes {
		for _, b := range routes {
			ab, ba := c.Compare(a, b), c.Compare(b, a)
			if sign(ab) != -sign(ba) {
				t.Fatalf("not antisymmetric:\n%s\n%s", a, b)
			}
			if (ab == 0) != a.Equal(b) {
				t.Fatalf("compare is zero for different routes:\n%s\n%s", a, b)
			}
			for _, x := range routes {
				if ab <= 0 && c.Compare(b, x) <= 0 && c.Compare(a, x) > 0 {
					t.Fatalf("not transitive:\n%s\n%s\n%s", a, b, x)
				}
			}
		}
	}
}

func TestComparatorTotalOrder(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	for _, opts := range []CompareOptions{
		{},
		{CompareRouterIdBeforeAge: true},
		{AlwaysCompareMed: true},
		{AlwaysCompareMed: true, CompareRouterIdBeforeAge: true},
		{IgnoreAdminDistance: true},
	} {
		for range 20 {
			checkOrder(t, Comparator{Opts: opts}, randomRoutes(rng, 30, []uint32{1, 2, 3}))
		}
	}
	// within one neighbouring AS MED is a plain key
	for range 20 {
		checkOrder(t, Comparator{Opts: CompareOptions{AlwaysCompareMed: true}}, randomRoutes(rng, 30, []uint32{1}))
	}
}

// a, b and d form a cycle when MED is compared pairwise: b beats a on MED, a beats d and d beats b on IGP metric
func medCycle(dMetric uint32) (a, b, d state.Route) {
	a = fromPeer("10.0.0.1", func(x *state.BgpAttrs) { x.AsPath = state.NewAsPath(1, 9); x.Med = 10; x.IgpMetric = 5 })
	b = fromPeer("10.0.0.2", func(x *state.BgpAttrs) { x.AsPath = state.NewAsPath(1, 9); x.Med = 5; x.IgpMetric = 10 })
	d = fromPeer("10.0.0.3", func(x *state.BgpAttrs) { x.AsPath = state.NewAsPath(2, 9); x.IgpMetric = dMetric })
	return a, b, d
}

func TestSortDeterministicMed(t *testing.T) {
	for _, tc := range []struct {
		name    string
		dMetric uint32
		want    func(a, b, d state.Route) []state.Route
	}{
		{
			name:    "other neighbour beats the med winner",
			dMetric: 7,
			want:    func(a, b, d state.Route) []state.Route { return []state.Route{d, b, a} },
		},
		{
			name:    "med winner beats the other neighbour",
			dMetric: 12,
			want:    func(a, b, d state.Route) []state.Route { return []state.Route{b, a, d} },
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			a, b, d := medCycle(tc.dMetric)
			want := tc.want(a, b, d)
			for _, in := range [][]state.Route{{a, b, d}, {a, d, b}, {b, a, d}, {b, d, a}, {d, a, b}, {d, b, a}} {
				r := New(Comparator{})
				for _, x := range in {
					r.Add(x)
				}
				assert.Empty(t, cmp.Diff(want, r.Routes(testPrefix)))
				assert.NoError(t, r.CheckInvariants())
			}
		})
	}
}
