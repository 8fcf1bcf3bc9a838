package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	configPath = "network.yaml"
	logPath    = ""
	verbose    = false
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "spindle",
	Short: "Spindle data plane computation CLI",
	Long: `Spindle computes the converged BGP and forwarding state of a modelled network.
Every router, VRF, peering and policy is read from a single network description, no devices are contacted.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddGroup(&cobra.Group{
		ID:    "compute",
		Title: "Computation",
	})
	rootCmd.AddGroup(&cobra.Group{
		ID:    "config",
		Title: "Configuration",
	})
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", configPath, "network description")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", verbose, "log every engine event")
	rootCmd.PersistentFlags().StringVar(&logPath, "log", logPath, "also write logs to this file")
}
