package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tftio/org-gh/internal/config"
	"github.com/tftio/org-gh/internal/engine"
	"github.com/tftio/org-gh/internal/github"
	"github.com/tftio/org-gh/internal/output"
	"github.com/tftio/org-gh/internal/types"
	"github.com/tftio/org-gh/internal/ui"
)

// Exit codes.
const (
	exitOK       = 0
	exitError    = 1
	exitConflict = 2
	exitConfig   = 3
	exitBusy     = 4
)

var (
	flagConfig  string
	flagToken   string
	flagJSON    bool
	flagSexp    bool
	flagQuiet   bool
	flagVerbose bool

	exitCode = exitOK
)

var rootCmd = &cobra.Command{
	Use:   "org-gh",
	Short: "Sync org-mode headings with GitHub issues",
	Long: `org-gh keeps an org-mode outline and a GitHub repository's issues in
step. Headings carrying a workflow keyword (TODO, DONE, ...) map to
issues; a three-way merge against the last-sync baseline reconciles
divergent edits on both sides.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flagConfig, "config", "", "path to the configuration file")
	pf.StringVar(&flagToken, "token", "", "GitHub token (overrides environment and config)")
	pf.BoolVar(&flagJSON, "json", false, "emit the structured result as JSON on stdout")
	pf.BoolVar(&flagSexp, "sexp", false, "emit the structured result as an s-expression on stdout")
	pf.BoolVarP(&flagQuiet, "quiet", "q", false, "suppress the human-readable report")
	pf.BoolVarP(&flagVerbose, "verbose", "v", false, "also report automatically resolved conflicts")

	rootCmd.AddCommand(initCmd, syncCmd, pushCmd, pullCmd, statusCmd, unlinkCmd)
}

// Execute runs the CLI and returns the process exit code.
func Execute() int {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitError
	}
	return exitCode
}

// runMode drives one engine mode and handles result emission and exit
// code mapping. Cobra never sees engine errors; they become structured
// output plus an exit code.
func runMode(req engine.Request) error {
	req.Token = flagToken

	cfg, err := config.Load(flagConfig)
	if err != nil {
		return finish(nil, req, err)
	}
	eng := engine.New(cfg, newGitHubAdapter)
	res, err := eng.Run(rootCtx, req)
	return finish(res, req, err)
}

// finish emits the result on stdout (when a machine format is
// selected) and the report on stderr, then records the exit code.
func finish(res *types.Result, req engine.Request, err error) error {
	if res == nil {
		res = &types.Result{Mode: req.Mode, File: req.File, DryRun: req.DryRun}
	}
	if err != nil {
		res.Success = false
		res.Error = err.Error()
	}

	switch {
	case flagSexp:
		if werr := output.Write(os.Stdout, output.FormatSexp, res); werr != nil {
			return werr
		}
	case flagJSON:
		if werr := output.Write(os.Stdout, output.FormatJSON, res); werr != nil {
			return werr
		}
	}
	ui.Report(os.Stderr, res, flagQuiet, flagVerbose)

	exitCode = computeExit(req, res, err)
	return nil
}

func computeExit(req engine.Request, res *types.Result, err error) int {
	if err != nil {
		var configErr *types.ConfigError
		var busyErr *types.BusyError
		switch {
		case errors.As(err, &configErr):
			return exitConfig
		case errors.As(err, &busyErr):
			return exitBusy
		default:
			return exitError
		}
	}
	if res.HasErrors() {
		return exitError
	}
	if res.HasConflicts() && !req.Force && (req.Mode == engine.ModeSync || req.Mode == engine.ModePush) {
		return exitConflict
	}
	return exitOK
}

// newGitHubAdapter wires the configured transport settings into a
// client for one repository.
func newGitHubAdapter(cfg *config.Config, token, owner, repo string) types.RemoteAdapter {
	c := github.NewClient(token, owner, repo)
	if cfg.GitHub.APIURL != "" {
		c = c.WithBaseURL(cfg.GitHub.APIURL)
	}
	if cfg.GitHub.Timeout > 0 {
		c.HTTPClient.Timeout = cfg.GitHub.Timeout
	}
	if cfg.GitHub.MaxAttempts > 0 {
		c.MaxAttempts = cfg.GitHub.MaxAttempts
	}
	if cfg.GitHub.Concurrency > 0 {
		c.Concurrency = cfg.GitHub.Concurrency
	}
	return c
}
