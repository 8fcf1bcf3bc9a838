package cmd

import (
	"fmt"

	"github.com/encodeous/spindle/core"
	"github.com/encodeous/spindle/state"
	"github.com/spf13/cobra"
)

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Validates the network description and its BGP topology",
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
		for _, msg := range state.UnresolvedPolicies(cfg) {
			fmt.Println("Warning:", msg, "(rejects every route)")
		}
		fmt.Printf("Configuration is valid: %d nodes, %d vrfs, %d sessions\n",
			len(cfg.Nodes), len(cfg.NodeVrfs()), ectx.Topology.Len())
	},
	GroupID: "config",
}

func init() {
	rootCmd.AddCommand(verifyCmd)
}
