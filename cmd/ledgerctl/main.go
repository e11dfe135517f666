// Command ledgerctl inspects and edits the inventory ledger directly.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"

	"github.com/anusha9573/SmartRefridgerator/internal/config"
	"github.com/anusha9573/SmartRefridgerator/internal/inventory"
	"github.com/anusha9573/SmartRefridgerator/internal/logger"
	"github.com/anusha9573/SmartRefridgerator/internal/store"
	"github.com/anusha9573/SmartRefridgerator/pkg/types"
)

const (
	flagStore      = "store"
	flagDatabase   = "database"
	flagCollection = "collection"
	flagTimeout    = "timeout"
)

func main() {
	logger.Init(logger.WARN, os.Stderr, false)
	if err := newApp(os.Stdout).Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "ledgerctl:", err)
		os.Exit(1)
	}
}

func newApp(out io.Writer) *cli.App {
	def := store.DefaultConfig()
	return &cli.App{
		Name:      "ledgerctl",
		Usage:     "inspect and edit the fridge inventory ledger",
		Writer:    out,
		ErrWriter: out,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    flagStore,
				Usage:   "ledger URI (mongodb://, postgres://, memory://)",
				Value:   def.URI,
				EnvVars: []string{config.EnvStoreURI},
			},
			&cli.StringFlag{Name: flagDatabase, Usage: "MongoDB database", Value: def.Database},
			&cli.StringFlag{Name: flagCollection, Usage: "collection or table", Value: def.Collection},
			&cli.DurationFlag{Name: flagTimeout, Usage: "per-command timeout", Value: 10 * time.Second},
		},
		Commands: []*cli.Command{
			{
				Name:   "ping",
				Usage:  "check that the ledger is reachable",
				Action: withLedger(pingAction),
			},
			{
				Name:   "list",
				Usage:  "print every item",
				Action: withLedger(listAction),
			},
			{
				Name:      "get",
				Usage:     "print one item",
				ArgsUsage: "<name>",
				Action:    withLedger(getAction),
			},
			{
				Name:      "add",
				Usage:     "record items put into the fridge",
				ArgsUsage: "<name> [count]",
				Action:    withLedger(applyAction(types.Added)),
			},
			{
				Name:      "remove",
				Usage:     "record items taken out of the fridge",
				ArgsUsage: "<name> [count]",
				Action:    withLedger(applyAction(types.Removed)),
			},
		},
	}
}

type ledgerAction func(ctx context.Context, c *cli.Context, l inventory.Ledger) error

// withLedger opens the ledger named by the global flags around action.
func withLedger(action ledgerAction) cli.ActionFunc {
	return func(c *cli.Context) error {
		ctx, cancel := context.WithTimeout(c.Context, c.Duration(flagTimeout))
		defer cancel()

		cfg := store.DefaultConfig()
		cfg.URI = c.String(flagStore)
		cfg.Database = c.String(flagDatabase)
		cfg.Collection = c.String(flagCollection)

		l, err := store.Open(ctx, cfg)
		if err != nil {
			return errors.Wrapf(err, "open %s", store.Redact(cfg.URI))
		}
		defer l.Close(context.Background())
		return action(ctx, c, l)
	}
}

func pingAction(ctx context.Context, c *cli.Context, l inventory.Ledger) error {
	items, err := l.List(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "ok: %s (%d items)\n", store.Redact(c.String(flagStore)), len(items))
	return nil
}

func listAction(ctx context.Context, c *cli.Context, l inventory.Ledger) error {
	items, err := l.List(ctx)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(c.App.Writer, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tQUANTITY\tUNIT")
	for _, it := range items {
		unit := "-"
		if it.Unit != nil {
			unit = *it.Unit
		}
		fmt.Fprintf(tw, "%s\t%d\t%s\n", it.Name, it.Quantity, unit)
	}
	return tw.Flush()
}

func getAction(ctx context.Context, c *cli.Context, l inventory.Ledger) error {
	if c.NArg() != 1 {
		return errors.New("get takes exactly one item name")
	}
	name := c.Args().First()
	rec, ok, err := l.Find(ctx, name)
	if err != nil {
		return err
	}
	if !ok {
		return errors.Errorf("%s not found", name)
	}
	fmt.Fprintf(c.App.Writer, "%s: %d\n", rec.Name, rec.Quantity)
	return nil
}

func applyAction(dir types.Direction) ledgerAction {
	return func(ctx context.Context, c *cli.Context, l inventory.Ledger) error {
		if c.NArg() < 1 || c.NArg() > 2 {
			return errors.Errorf("%s takes an item name and an optional count", dir)
		}
		name := c.Args().Get(0)
		count := 1
		if c.NArg() == 2 {
			n, err := strconv.Atoi(c.Args().Get(1))
			if err != nil {
				return errors.Wrap(err, "count")
			}
			count = n
		}

		res, err := inventory.NewReconciler(l).Apply(ctx, name, dir, count)
		if err != nil {
			return err
		}
		if res.Skipped {
			fmt.Fprintf(c.App.Writer, "%s not in ledger, nothing removed\n", name)
			return nil
		}
		fmt.Fprintf(c.App.Writer, "%s: %d\n", res.Name, res.Quantity)
		return nil
	}
}
