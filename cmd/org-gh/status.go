package main

import (
	"github.com/spf13/cobra"

	"github.com/tftio/org-gh/internal/engine"
)

var statusCmd = &cobra.Command{
	Use:   "status <file>",
	Short: "Show what a sync would do",
	Long: `Reconcile without applying anything and report the planned actions,
conflicts, and warnings.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMode(engine.Request{
			Mode: engine.ModeStatus,
			File: args[0],
		})
	},
}
