package main

import (
	"github.com/spf13/cobra"

	"github.com/tftio/org-gh/internal/engine"
)

var initCmd = &cobra.Command{
	Use:   "init <file>",
	Short: "Bind an outline to a repository and create an empty baseline",
	Long: `Verify read access to the repository, add the #+GH_REPO: directive to
the outline when it is missing, and write an empty baseline next to the
file. No remote changes are made.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		repo, _ := cmd.Flags().GetString("repo")
		dryRun, _ := cmd.Flags().GetBool("dry-run")
		return runMode(engine.Request{
			Mode:   engine.ModeInit,
			File:   args[0],
			Repo:   repo,
			DryRun: dryRun,
		})
	},
}

func init() {
	initCmd.Flags().String("repo", "", "repository as owner/name (required unless the outline already has #+GH_REPO:)")
	initCmd.Flags().Bool("dry-run", false, "verify access only; write nothing")
}
