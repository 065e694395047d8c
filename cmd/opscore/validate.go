package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/gyaneshwarpardhi/opscore/internal/agent/agents"
	"github.com/gyaneshwarpardhi/opscore/internal/config"
	"github.com/gyaneshwarpardhi/opscore/internal/effect"
	"github.com/gyaneshwarpardhi/opscore/internal/effect/counter"
	"github.com/gyaneshwarpardhi/opscore/internal/effect/document"
	"github.com/gyaneshwarpardhi/opscore/internal/effect/emit"
	"github.com/gyaneshwarpardhi/opscore/internal/rules"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check a config file without starting anything",
	Long:  "Parses the config, validates it and compiles its rules and agent overrides exactly as serve would.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		_ = args
		return checkConfig(configPath, cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

// checkConfig loads path and builds everything that depends on it. Effects
// and agents are only constructed here, so they get no store or bus.
func checkConfig(path string, out io.Writer) error {
	loader, err := config.NewLoader(path)
	if err != nil {
		return err
	}
	cfg := loader.Config()
	if err := config.Validate(cfg); err != nil {
		return err
	}
	reg, err := effect.NewRegistry(emit.New(nil), document.NewMerge(nil), counter.NewIncrement(nil))
	if err != nil {
		return err
	}
	set, err := rules.Build(rules.WithBuiltins(cfg.Rules), reg)
	if err != nil {
		return err
	}
	defs, err := agents.Definitions(agents.Deps{}, cfg.Agents)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "config ok: %d rules, %d agents, %d schedules\n", set.Len(), len(defs), len(cfg.Schedules))
	return nil
}
