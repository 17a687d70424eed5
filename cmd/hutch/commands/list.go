// Copyright 2026 The Hutch Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"text/tabwriter"

	"github.com/spf13/pflag"

	"github.com/hutch-systems/hutch/cmd/hutch/cli"
	"github.com/hutch-systems/hutch/lib/machine"
)

// listParams holds the parameters for the list command.
type listParams struct {
	cli.ConfigFlag
	cli.JSONOutput
}

func listCommand() *cli.Command {
	var params listParams

	return &cli.Command{
		Name:    "list",
		Summary: "List machines with state and storage figures",
		Description: `List every machine the host knows about: identifier, alias, power
state, boot enablement, hostname, first address, and the dataset's
space figures. The same table is printed when hutch is run with no
arguments.`,
		Usage: "hutch list [flags]",
		Examples: []cli.Example{
			{
				Description: "Machine-readable output",
				Command:     "hutch list --json",
			},
		},
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("list", &params)
		},
		Run: func(ctx context.Context, args []string, logger *slog.Logger) error {
			if len(args) > 0 {
				return cli.Validation("unexpected argument: %s", args[0])
			}

			rt, err := newRuntime(&params.ConfigFlag, logger)
			if err != nil {
				return err
			}
			registry, err := rt.load(ctx)
			if err != nil {
				return err
			}

			if done, err := params.EmitJSON(registry.Records); done {
				return err
			}
			return renderTable(os.Stdout, registry.Records)
		},
	}
}

// renderTable writes the machine table. Empty optional fields render
// as "-" so columns stay aligned and scannable.
func renderTable(w io.Writer, records []machine.Record) error {
	tw := tabwriter.NewWriter(w, 2, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tALIAS\tSTATE\tBOOT\tHOSTNAME\tADDRESS\tUSED\tAVAIL\tREFER")
	for _, record := range records {
		state := "stopped"
		if record.Running {
			state = "running"
		}
		boot := "-"
		if record.Enabled {
			boot = "enabled"
		}
		address := "-"
		if len(record.Addresses) > 0 {
			address = record.Addresses[0]
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			record.ID, orDash(record.Alias), state, boot,
			orDash(record.Hostname), address,
			record.Used, record.Avail, record.Refer)
	}
	return tw.Flush()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
