//go:build integration

package integration

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/encodeous/spindle/core"
	"github.com/encodeous/spindle/state"
	"github.com/stretchr/testify/require"
)

// LoadScenario parses testdata/<name>.yaml
func LoadScenario(t *testing.T, name string) *state.NetworkCfg {
	t.Helper()
	data, err := os.ReadFile(filepath.Join("testdata", name+".yaml"))
	require.NoError(t, err)
	cfg, err := state.ParseNetworkConfig(data)
	require.NoError(t, err)
	return cfg
}

// Converge computes the scenario and returns the engine for further runs
func Converge(t *testing.T, name string) (*core.Result, *core.Engine) {
	t.Helper()
	res, e, err := core.Compute(context.Background(), LoadScenario(t, name), nil)
	require.NoError(t, err)
	require.True(t, res.Converged)
	return res, e
}

func paths(routes []state.Route) []string {
	out := make([]string, 0, len(routes))
	for _, r := range routes {
		out = append(out, r.Bgp.AsPath.String())
	}
	return out
}
