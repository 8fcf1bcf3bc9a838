package cmd

import (
	"fmt"
	"os"

	"github.com/encodeous/spindle/core"
	"github.com/goccy/go-yaml"
	"github.com/spf13/cobra"
)

var runOpts = core.RunOptions{}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Converge the network and print the BGP routes of every node",
	Run: func(cmd *cobra.Command, args []string) {
		opts := runOpts
		opts.ConfigPath = configPath
		opts.LogPath = logPath
		opts.Verbose = verbose
		res, _, err := core.Execute(opts)
		if err != nil {
			fmt.Fprintln(os.Stderr, "Error:", err.Error())
			os.Exit(1)
		}
		if ok, _ := cmd.Flags().GetBool("yaml"); ok {
			out, err := yaml.Marshal(summarize(res))
			if err != nil {
				panic(err)
			}
			fmt.Print(string(out))
			return
		}
		printResult(os.Stdout, res)
	},
	GroupID: "compute",
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().IntVar(&runOpts.Workers, "workers", 0, "size of the worker pool, GOMAXPROCS when 0")
	runCmd.Flags().IntVar(&runOpts.MaxRounds, "max-rounds", 0, "round budget, overrides engine.max_rounds")
	runCmd.Flags().DurationVar(&runOpts.Timeout, "timeout", 0, "wall clock budget, overrides engine.timeout")
	runCmd.Flags().StringVar(&runOpts.DebugAddr, "debug-addr", "", "serve expvar metrics on this address")
	runCmd.Flags().Bool("yaml", false, "print the result as yaml")
}
