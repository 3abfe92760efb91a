package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/google/subcommands"

	"github.com/atmx/position-engine/internal/app"
	"github.com/atmx/position-engine/internal/report"
	"github.com/atmx/position-engine/internal/store"
)

// runCmd performs one reconciliation and prints its report.
type runCmd struct {
	dryRun bool
}

func (*runCmd) Name() string     { return "run" }
func (*runCmd) Synopsis() string { return "reconcile open positions and print the summary" }
func (*runCmd) Usage() string {
	return `reconcile run [-dry-run]

  Reads the ledger, matches sells against buys in FIFO order, values the
  open positions at the latest close, and replaces the stored snapshot.
`
}

func (c *runCmd) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&c.dryRun, "dry-run", false, "Compute and print the snapshot without storing it.")
}

func (c *runCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	a, err := openApp(ctx, app.Options{DryRun: c.dryRun})
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return subcommands.ExitFailure
	}
	defer a.Close()

	snap, err := a.Reconcile.Run(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return subcommands.ExitFailure
	}

	var b strings.Builder
	report.Render(&b, snap)
	printMarkdown(b.String())
	return subcommands.ExitSuccess
}

// showCmd prints the last stored snapshot.
type showCmd struct{}

func (*showCmd) Name() string     { return "show" }
func (*showCmd) Synopsis() string { return "print the last stored snapshot" }
func (*showCmd) Usage() string {
	return `reconcile show

  Prints the snapshot stored by the last successful run.
`
}

func (*showCmd) SetFlags(*flag.FlagSet) {}

func (*showCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	a, err := openApp(ctx, app.Options{})
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return subcommands.ExitFailure
	}
	defer a.Close()

	snap, err := a.Reconcile.Latest(ctx)
	if errors.Is(err, store.ErrNoSnapshot) {
		fmt.Fprintln(os.Stderr, "No snapshot stored yet, use 'reconcile run' first.")
		return subcommands.ExitFailure
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return subcommands.ExitFailure
	}

	var b strings.Builder
	report.Render(&b, snap)
	printMarkdown(b.String())
	return subcommands.ExitSuccess
}
