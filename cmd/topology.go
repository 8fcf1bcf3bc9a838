package cmd

import (
	"fmt"

	"github.com/encodeous/spindle/core"
	"github.com/encodeous/spindle/state"
	"github.com/spf13/cobra"
)

var topologyCmd = &cobra.Command{
	Use:   "topology",
	Short: "Prints the BGP sessions of the network",
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := core.ReadNetworkConfig(configPath)
		if err != nil {
			panic(err)
		}
		ectx, err := core.NewEngineContext(cfg, nil)
		if err != nil {
			fmt.Println("Error:", err.Error())
			return
		}
		for _, e := range ectx.Topology.Edges() {
			from, _ := cfg.Vrf(e.From.NodeVrf())
			to, _ := cfg.Vrf(e.To.NodeVrf())
			kind := "ebgp"
			if from.Bgp.Asn == to.Bgp.Asn {
				kind = "ibgp"
			}
			fmt.Printf("%s %s %s\n", e, kind, state.RouteFamily(e.From.Ip))
		}
	},
	GroupID: "config",
}

func init() {
	rootCmd.AddCommand(topologyCmd)
}
