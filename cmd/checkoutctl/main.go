package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
)

func main() {
	app := &cli.App{
		Name:  "checkoutctl",
		Usage: "Inspect checkout attempts and finish interrupted orders",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Print results as JSON",
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "attempts",
				Usage: "Checkout attempt operations",
				Subcommands: []*cli.Command{
					{
						Name:  "list",
						Usage: "List recent checkout attempts",
						Flags: []cli.Flag{
							&cli.StringFlag{Name: "owner", Usage: "Only attempts of this owner id"},
							&cli.StringFlag{Name: "status", Usage: "Only attempts in this status, e.g. MATERIALIZING"},
							&cli.IntFlag{Name: "limit", Value: 50, Usage: "Maximum rows"},
							&cli.BoolFlag{Name: "stuck", Usage: "List reconciliation candidates instead"},
						},
						Action: listAttemptsCommand,
					},
					{
						Name:      "show",
						Usage:     "Show one checkout attempt",
						ArgsUsage: "<checkout-id>",
						Action:    showAttemptCommand,
					},
					{
						Name:      "reconcile",
						Usage:     "Re-run order materialization for a paid checkout",
						ArgsUsage: "<checkout-id>",
						Action:    reconcileAttemptCommand,
					},
				},
			},
			{
				Name:   "migrate",
				Usage:  "Apply order store migrations",
				Action: migrateCommand,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
