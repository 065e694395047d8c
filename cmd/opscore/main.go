// Command opscore runs the event bus, agents and propagation rules behind
// the operations application.
package main

import (
	"os"

	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:           "opscore",
	Short:         "Reactive event core for the operations application",
	Long:          "opscore hosts the in-process event bus, the agents subscribed to it and the rules that propagate changes between business records.",
	SilenceUsage:  true,
	SilenceErrors: false,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to the YAML config (defaults and OPSCORE_* env only when empty)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
