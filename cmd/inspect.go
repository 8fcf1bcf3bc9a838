package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/encodeous/spindle/core"
	"github.com/encodeous/spindle/state"
	"github.com/spf13/cobra"
)

var (
	inspectVrf  = state.DefaultVrf
	inspectFib  = false
	inspectMain = false
)

var inspectCmd = &cobra.Command{
	Use:     "inspect <node>",
	Aliases: []string{"i"},
	Short:   "Prints the converged RIBs and FIB of a single node",
	Args:    cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := core.ReadNetworkConfig(configPath)
		if err != nil {
			panic(err)
		}
		level := slog.LevelWarn
		if verbose {
			level = slog.LevelDebug
		}
		logger, closer, err := core.NewLogger("spindle", level, logPath)
		if err != nil {
			panic(err)
		}
		defer closer.Close()

		res, _, err := core.Compute(context.Background(), cfg, logger)
		if err != nil {
			fmt.Println("Error:", err.Error())
			return
		}
		node := args[0]
		if _, ok := res.Nodes[state.NodeVrf{Hostname: node, Vrf: inspectVrf}]; !ok {
			fmt.Printf("Error: %s/%s not defined\n", node, inspectVrf)
			return
		}
		all := !inspectFib && !inspectMain
		if all || inspectMain {
			fmt.Printf("main rib of %s/%s:\n", node, inspectVrf)
			printRoutes(cmd.OutOrStdout(), res.MainRib(node, inspectVrf))
		}
		if all {
			fmt.Printf("bgp rib of %s/%s:\n", node, inspectVrf)
			printBgp(cmd.OutOrStdout(), res.BestBgpRoutes(node, inspectVrf), res.BackupBgpRoutes(node, inspectVrf))
		}
		if all || inspectFib {
			fib, _ := res.Fib(node, inspectVrf)
			fmt.Printf("fib of %s/%s:\n", node, inspectVrf)
			for _, e := range fib.Entries() {
				fmt.Println("  " + e.String())
			}
			fmt.Println("coverage:")
			for _, p := range fib.Coverage() {
				fmt.Println("  " + p.String())
			}
		}
	},
	GroupID: "compute",
}

func init() {
	rootCmd.AddCommand(inspectCmd)

	inspectCmd.Flags().StringVar(&inspectVrf, "vrf", inspectVrf, "vrf to inspect")
	inspectCmd.Flags().BoolVar(&inspectFib, "fib", inspectFib, "only print the fib")
	inspectCmd.Flags().BoolVar(&inspectMain, "main", inspectMain, "only print the main rib")
}
