package main

import (
	"github.com/spf13/cobra"

	"github.com/tftio/org-gh/internal/engine"
)

var syncCmd = &cobra.Command{
	Use:   "sync <file>",
	Short: "Reconcile the outline and the tracker in both directions",
	Long: `Run a full three-way reconciliation: push outline-side changes,
pull remote-side changes, ingest new comments and pull-request events
into the log sections, and advance the baseline.

State conflicts (both sides changed to different keywords) are reported
and skipped unless --force makes the outline win.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		force, _ := cmd.Flags().GetBool("force")
		dryRun, _ := cmd.Flags().GetBool("dry-run")
		return runMode(engine.Request{
			Mode:   engine.ModeSync,
			File:   args[0],
			Force:  force,
			DryRun: dryRun,
		})
	},
}

func init() {
	syncCmd.Flags().Bool("force", false, "resolve state conflicts in the outline's favor")
	syncCmd.Flags().Bool("dry-run", false, "compute and report the plan without applying it")
}
