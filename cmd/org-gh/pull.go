package main

import (
	"github.com/spf13/cobra"

	"github.com/tftio/org-gh/internal/engine"
)

var pullCmd = &cobra.Command{
	Use:   "pull <file>",
	Short: "Apply tracker-side changes to the outline",
	Long: `Execute only the tracker→outline half of the plan. The tracker is
never mutated; fields where the outline would win are skipped and
reported.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dryRun, _ := cmd.Flags().GetBool("dry-run")
		return runMode(engine.Request{
			Mode:   engine.ModePull,
			File:   args[0],
			DryRun: dryRun,
		})
	},
}

func init() {
	pullCmd.Flags().Bool("dry-run", false, "compute and report the plan without applying it")
}
