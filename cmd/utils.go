package cmd

import (
	"fmt"
	"io"
	"maps"
	"slices"

	"github.com/encodeous/spindle/core"
	"github.com/encodeous/spindle/state"
)

type nodeSummary struct {
	Node    string
	Vrf     string
	Best    []state.Route `yaml:",omitempty"`
	Backups []state.Route `yaml:",omitempty"`
}

type sessionSummary struct {
	Edge           string
	Advertisements int
	Withdrawals    int
}

type resultSummary struct {
	RunId      string
	Rounds     int
	Iterations int
	Nodes      []nodeSummary
	Sessions   []sessionSummary
	Warnings   []string `yaml:",omitempty"`
}

func summarize(res *core.Result) resultSummary {
	out := resultSummary{
		RunId:      res.RunId.String(),
		Rounds:     res.Rounds,
		Iterations: res.Iterations,
	}
	for _, nv := range slices.SortedFunc(maps.Keys(res.Nodes), state.NodeVrf.Compare) {
		nr := res.Nodes[nv]
		out.Nodes = append(out.Nodes, nodeSummary{Node: nv.Hostname, Vrf: nv.Vrf, Best: nr.BestBgp, Backups: nr.BackupBgp})
	}
	for _, e := range slices.SortedFunc(maps.Keys(res.Sessions), state.BgpEdge.Compare) {
		c := res.Sessions[e]
		out.Sessions = append(out.Sessions, sessionSummary{Edge: e.String(), Advertisements: c.Advertisements, Withdrawals: c.Withdrawals})
	}
	for _, w := range res.Warnings {
		out.Warnings = append(out.Warnings, w.String())
	}
	return out
}

func printRoutes(w io.Writer, routes []state.Route) {
	for _, r := range routes {
		fmt.Fprintln(w, "  "+r.String())
	}
}

func printBgp(w io.Writer, best, backups []state.Route) {
	for _, r := range best {
		fmt.Fprintln(w, "  * "+r.String())
		for _, b := range backups {
			if b.Prefix == r.Prefix {
				fmt.Fprintln(w, "    "+b.String())
			}
		}
	}
}

func printResult(w io.Writer, res *core.Result) {
	s := summarize(res)
	fmt.Fprintf(w, "converged after %d rounds (run %s)\n", s.Rounds, s.RunId)
	for _, n := range s.Nodes {
		if len(n.Best) == 0 {
			continue
		}
		fmt.Fprintf(w, "%s/%s:\n", n.Node, n.Vrf)
		printBgp(w, n.Best, n.Backups)
	}
	fmt.Fprintln(w, "sessions:")
	for _, e := range s.Sessions {
		fmt.Fprintf(w, "  %s adv=%d wd=%d\n", e.Edge, e.Advertisements, e.Withdrawals)
	}
	for _, msg := range s.Warnings {
		fmt.Fprintln(w, "warning: "+msg)
	}
}
