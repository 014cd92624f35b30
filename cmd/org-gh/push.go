package main

import (
	"github.com/spf13/cobra"

	"github.com/tftio/org-gh/internal/engine"
)

var pushCmd = &cobra.Command{
	Use:   "push <file>",
	Short: "Apply outline-side changes to the tracker",
	Long: `Execute only the outline→tracker half of the plan: create issues for
unbound headings and push changed fields. The outline is only written
to record bindings (issue number, URL, timestamps) for headings newly
bound to an issue, by creation or by title match.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		force, _ := cmd.Flags().GetBool("force")
		dryRun, _ := cmd.Flags().GetBool("dry-run")
		return runMode(engine.Request{
			Mode:   engine.ModePush,
			File:   args[0],
			Force:  force,
			DryRun: dryRun,
		})
	},
}

func init() {
	pushCmd.Flags().Bool("force", false, "resolve state conflicts in the outline's favor")
	pushCmd.Flags().Bool("dry-run", false, "compute and report the plan without applying it")
}
