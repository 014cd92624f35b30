// org-gh synchronizes an org-mode outline with a GitHub repository's
// issues. Headings with a workflow keyword become issues; remote edits,
// comments, and closures flow back into the outline.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

// rootCtx is canceled on SIGINT/SIGTERM; in-flight remote work stops,
// committed mutations stay committed.
var rootCtx context.Context

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	rootCtx = ctx

	code := Execute()
	stop()
	os.Exit(code)
}
