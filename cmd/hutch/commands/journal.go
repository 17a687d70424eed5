// Copyright 2026 The Hutch Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/pflag"

	"github.com/hutch-systems/hutch/cmd/hutch/cli"
	"github.com/hutch-systems/hutch/lib/journal"
)

// journalParams holds the parameters for the journal command.
type journalParams struct {
	cli.ConfigFlag
	cli.JSONOutput
	Limit int `flag:"limit" desc:"show only the most recent N records (0 = all)"`
}

func journalCommand() *cli.Command {
	var params journalParams

	return &cli.Command{
		Name:    "journal",
		Summary: "Show the host-side operation journal",
		Description: `Print the append-only record of state-changing operations: every
create, destroy, rename, clone, power, enablement, naming, and
transfer attempt, including the ones that failed. The journal records
what hutch did to the host, not the machines' own logs.`,
		Usage: "hutch journal [flags]",
		Examples: []cli.Example{
			{
				Description: "The last ten operations",
				Command:     "hutch journal --limit 10",
			},
		},
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("journal", &params)
		},
		Run: func(ctx context.Context, args []string, logger *slog.Logger) error {
			if len(args) > 0 {
				return cli.Validation("unexpected argument: %s", args[0])
			}
			if params.Limit < 0 {
				return cli.Validation("--limit must be zero or positive")
			}

			cfg, err := params.Load()
			if err != nil {
				return cli.Validation("%v", err)
			}

			records, readErr := journal.Read(cfg.JournalPath, params.Limit)
			if readErr != nil {
				// A damaged tail does not invalidate the records before
				// it; show what survived and say so.
				fmt.Fprintf(os.Stderr, "warning: journal truncated: %v\n", readErr)
			}

			if done, err := params.EmitJSON(records); done {
				return err
			}
			return renderJournal(os.Stdout, records)
		},
	}
}

func renderJournal(w io.Writer, records []journal.Record) error {
	tw := tabwriter.NewWriter(w, 2, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tOPERATION\tMACHINE\tOUTCOME\tDETAIL")
	for _, record := range records {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			record.Time.Local().Format("2006-01-02 15:04:05"),
			record.Operation, record.Machine, record.Outcome,
			journalDetail(record))
	}
	return tw.Flush()
}

// journalDetail flattens a record's detail map into sorted key=value
// pairs, with the error message appended for failed operations.
func journalDetail(record journal.Record) string {
	keys := make([]string, 0, len(record.Detail))
	for key := range record.Detail {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys)+1)
	for _, key := range keys {
		parts = append(parts, key+"="+record.Detail[key])
	}
	if record.Error != "" {
		parts = append(parts, fmt.Sprintf("error=%q", record.Error))
	}
	if len(parts) == 0 {
		return "-"
	}
	return strings.Join(parts, " ")
}
