// Command reconcile runs position reconciliations from the terminal and
// records ledger entries.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path"
	"syscall"

	"github.com/google/subcommands"

	"github.com/atmx/position-engine/internal/app"
	"github.com/atmx/position-engine/internal/config"
	"github.com/atmx/position-engine/internal/report"
	"github.com/atmx/position-engine/internal/store"
)

var (
	plain   = flag.Bool("plain", false, "Print raw markdown instead of styled terminal output.")
	width   = flag.Int("width", 120, "Word wrap width for styled output.")
	verbose = flag.Bool("v", false, "Log debug details.")
)

func main() {
	commander := subcommands.NewCommander(flag.CommandLine, path.Base(os.Args[0]))
	commander.Register(commander.HelpCommand(), "")
	commander.Register(commander.FlagsCommand(), "")

	commander.Register(&runCmd{}, "positions")
	commander.Register(&showCmd{}, "positions")
	commander.Register(&buyCmd{}, "ledger")
	commander.Register(&sellCmd{}, "ledger")

	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	status := commander.Execute(ctx)
	stop()
	os.Exit(int(status))
}

// openApp loads the configuration and wires the dependencies.
func openApp(ctx context.Context, opts app.Options) (*app.App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("configuration: %w", err)
	}
	return app.New(ctx, cfg, opts)
}

// openLedger opens only the configured store.
func openLedger(ctx context.Context) (store.Store, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("configuration: %w", err)
	}
	return app.OpenStore(ctx, cfg)
}

// printMarkdown writes md to stdout, styled unless -plain is set.
func printMarkdown(md string) {
	if *plain {
		fmt.Print(md)
		return
	}
	out, err := report.Terminal(md, *width)
	if err != nil {
		slog.Debug("styled output unavailable", "err", err)
		fmt.Print(md)
		return
	}
	fmt.Print(out)
}
