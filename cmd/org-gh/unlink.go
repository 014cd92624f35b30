package main

import (
	"github.com/spf13/cobra"

	"github.com/tftio/org-gh/internal/engine"
)

var unlinkCmd = &cobra.Command{
	Use:   "unlink <file> <issue-number-or-title>",
	Short: "Detach a heading from its issue",
	Long: `Remove the GH_ISSUE and GH_URL properties from the matching heading
and drop its baseline entry. The remote issue is left untouched.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		dryRun, _ := cmd.Flags().GetBool("dry-run")
		return runMode(engine.Request{
			Mode:   engine.ModeUnlink,
			File:   args[0],
			Target: args[1],
			DryRun: dryRun,
		})
	},
}

func init() {
	unlinkCmd.Flags().Bool("dry-run", false, "report what would be unlinked without writing")
}
