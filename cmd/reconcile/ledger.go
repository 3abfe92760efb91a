package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/google/subcommands"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/atmx/position-engine/internal/model"
)

// buyCmd appends a buy lot to the ledger.
type buyCmd struct {
	asset string
	qty   string
	price string
	fee   string
	date  string
}

func (*buyCmd) Name() string     { return "buy" }
func (*buyCmd) Synopsis() string { return "record a purchase in the ledger" }
func (*buyCmd) Usage() string {
	return `reconcile buy -a <asset> -q <quantity> -p <unit price> [-f <fee>] [-d <date>]

  Records a buy lot. Dates are YYYY-MM-DD or RFC 3339 and default to today.
`
}

func (c *buyCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.asset, "a", "", "Asset name as used in the ticker mapping.")
	f.StringVar(&c.qty, "q", "", "Quantity bought.")
	f.StringVar(&c.price, "p", "", "Unit price.")
	f.StringVar(&c.fee, "f", "0", "Fee paid.")
	f.StringVar(&c.date, "d", "", "Trade date, YYYY-MM-DD or RFC 3339.")
}

func (c *buyCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	asset := strings.TrimSpace(c.asset)
	if asset == "" {
		fmt.Fprintln(os.Stderr, "Error: -a is required")
		return subcommands.ExitUsageError
	}
	qty, err := decimal.NewFromString(c.qty)
	if err != nil || !qty.IsPositive() {
		fmt.Fprintf(os.Stderr, "Error: invalid quantity %q\n", c.qty)
		return subcommands.ExitUsageError
	}
	price, err := decimal.NewFromString(c.price)
	if err != nil || price.IsNegative() {
		fmt.Fprintf(os.Stderr, "Error: invalid unit price %q\n", c.price)
		return subcommands.ExitUsageError
	}
	fee, err := decimal.NewFromString(c.fee)
	if err != nil || fee.IsNegative() {
		fmt.Fprintf(os.Stderr, "Error: invalid fee %q\n", c.fee)
		return subcommands.ExitUsageError
	}
	date, err := model.ParseTradeDate(c.date)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return subcommands.ExitUsageError
	}

	st, err := openLedger(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return subcommands.ExitFailure
	}
	defer st.Close()

	lot := &model.BuyLot{
		ID:        uuid.New().String(),
		AssetID:   asset,
		Quantity:  qty,
		UnitPrice: price,
		Fee:       fee,
		TradeDate: date,
	}
	if err := st.InsertBuyLot(ctx, lot); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return subcommands.ExitFailure
	}
	fmt.Printf("recorded buy %s: %s x %s @ %s\n", lot.ID, lot.Quantity, lot.AssetID, lot.UnitPrice)
	return subcommands.ExitSuccess
}

// sellCmd appends a sell event to the ledger.
type sellCmd struct {
	asset string
	qty   string
	date  string
}

func (*sellCmd) Name() string     { return "sell" }
func (*sellCmd) Synopsis() string { return "record a sale in the ledger" }
func (*sellCmd) Usage() string {
	return `reconcile sell -a <asset> -q <quantity> [-d <date>]

  Records a sell event. Sales consume the oldest buys first on the next run.
`
}

func (c *sellCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.asset, "a", "", "Asset name as used in the ticker mapping.")
	f.StringVar(&c.qty, "q", "", "Quantity sold.")
	f.StringVar(&c.date, "d", "", "Trade date, YYYY-MM-DD or RFC 3339.")
}

func (c *sellCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	asset := strings.TrimSpace(c.asset)
	if asset == "" {
		fmt.Fprintln(os.Stderr, "Error: -a is required")
		return subcommands.ExitUsageError
	}
	qty, err := decimal.NewFromString(c.qty)
	if err != nil || !qty.IsPositive() {
		fmt.Fprintf(os.Stderr, "Error: invalid quantity %q\n", c.qty)
		return subcommands.ExitUsageError
	}
	date, err := model.ParseTradeDate(c.date)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return subcommands.ExitUsageError
	}

	st, err := openLedger(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return subcommands.ExitFailure
	}
	defer st.Close()

	ev := &model.SellEvent{
		ID:        uuid.New().String(),
		AssetID:   asset,
		Quantity:  qty,
		TradeDate: date,
	}
	if err := st.InsertSellEvent(ctx, ev); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return subcommands.ExitFailure
	}
	fmt.Printf("recorded sell %s: %s x %s\n", ev.ID, ev.Quantity, ev.AssetID)
	return subcommands.ExitSuccess
}
