package policy

import (
	"errors"
	"net/netip"
	"testing"

	"github.com/encodeous/spindle/state"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const policyNetwork = `
nodes:
  - hostname: s
    prefix_lists:
      - name: loopbacks
        entries:
          - prefix: 5.5.5.0/24
            le: 32
    policies:
      - name: from-m
        statements:
          - if:
              prefix_list: loopbacks
            then:
              - set:
                  weight: 200
                  add_communities: ["65000:7"]
              - accept: true
      - name: broken
        statements:
          - if:
              prefix_list: missing
            then:
              - accept: true
      - name: tag-only
        default: accept
        statements:
          - if:
              not:
                tag: 5
            then:
              - reject: true
    vrfs:
      - name: default
`

func TestLibraryEvaluator(t *testing.T) {
	cfg, err := state.ParseNetworkConfig([]byte(policyNetwork))
	require.NoError(t, err)
	lib, err := NewLibrary(cfg)
	require.NoError(t, err)

	eval := lib.Evaluator("s")
	r := bgpRoute("5.5.5.5/32", 3)

	got, ok, err := eval(r, "from-m", Import)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, uint32(200), got.Bgp.Weight)
	assert.True(t, got.Bgp.Communities.Has(state.Community{Origin: 65000, Value: 7}))

	_, ok, err = eval(bgpRoute("6.6.6.6/32", 3), "from-m", Import)
	assert.NoError(t, err)
	assert.False(t, ok)

	got, ok, err = eval(r, "", Export)
	assert.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, got.Equal(r))

	_, ok, err = eval(r, "undefined", Export)
	assert.False(t, ok)
	var pe *PolicyError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, Export, pe.Direction)
	assert.ErrorIs(t, err, ErrUndefined)
	assert.EqualError(t, err, "export policy undefined on s: policy not defined")

	_, ok, err = eval(r, "broken", Import)
	assert.False(t, ok)
	assert.ErrorContains(t, err, "prefix list missing not defined")

	tagged := state.Route{Prefix: netip.MustParsePrefix("1.0.0.0/8"), Protocol: state.Static, Tag: 5}
	_, ok, err = eval(tagged, "tag-only", Leak)
	assert.NoError(t, err)
	assert.True(t, ok)
	tagged.Tag = 6
	_, ok, err = eval(tagged, "tag-only", Leak)
	assert.NoError(t, err)
	assert.False(t, ok)

	// unknown node
	_, ok, err = lib.Evaluator("ghost")(r, "from-m", Import)
	assert.False(t, ok)
	assert.ErrorIs(t, err, ErrUndefined)
}

func TestCompile(t *testing.T) {
	weight := uint32(1)
	for _, tc := range []struct {
		name string
		cfg  state.PolicyCfg
		err  string
	}{
		{
			name: "two kinds in one statement",
			cfg:  state.PolicyCfg{Name: "p", Statements: []state.StatementCfg{{Accept: true, Reject: true}}},
			err:  "statement 0 must be exactly one of",
		},
		{
			name: "then without if",
			cfg:  state.PolicyCfg{Name: "p", Statements: []state.StatementCfg{{Accept: true, Then: []state.StatementCfg{{Reject: true}}}}},
			err:  "then/else without if",
		},
		{
			name: "empty set",
			cfg:  state.PolicyCfg{Name: "p", Statements: []state.StatementCfg{{Set: &state.SetCfg{}}}},
			err:  "set is empty",
		},
		{
			name: "bad origin",
			cfg:  state.PolicyCfg{Name: "p", Statements: []state.StatementCfg{{Set: &state.SetCfg{Origin: "bogus"}}}},
			err:  "unknown origin",
		},
		{
			name: "bad default",
			cfg:  state.PolicyCfg{Name: "p", Default: "maybe"},
			err:  "unknown default action",
		},
		{
			name: "nested",
			cfg: state.PolicyCfg{Name: "p", Default: "accept", Statements: []state.StatementCfg{{
				If:   &state.ConditionCfg{},
				Then: []state.StatementCfg{{Set: &state.SetCfg{Weight: &weight, Origin: "egp"}}},
			}}},
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			p, err := Compile(tc.cfg)
			if tc.err != "" {
				assert.ErrorContains(t, err, tc.err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, ActionAccept, p.Default)
			require.Len(t, p.Statements, 1)
			assert.Equal(t, ExprTrue, p.Statements[0].Cond.Kind)
			assert.Len(t, p.Statements[0].Then, 2)
		})
	}
}
