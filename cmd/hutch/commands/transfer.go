// Copyright 2026 The Hutch Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"filippo.io/age"
	"github.com/spf13/pflag"

	"github.com/hutch-systems/hutch/cmd/hutch/cli"
	"github.com/hutch-systems/hutch/lib/archive"
	"github.com/hutch-systems/hutch/lib/machine"
)

// backupParams holds the parameters for the backup command.
type backupParams struct {
	cli.ConfigFlag
}

// exportParams holds the parameters for the export command.
type exportParams struct {
	cli.ConfigFlag
	Compression string   `flag:"compression" desc:"payload compression: zstd, lz4, or none" default:"zstd"`
	Recipient   []string `flag:"recipient" desc:"age recipient to encrypt to (repeatable)"`
}

// importParams holds the parameters for the import command.
type importParams struct {
	cli.ConfigFlag
	IdentityFile string `flag:"identity-file" desc:"age identity file for encrypted archives"`
}

func backupCommand() *cli.Command {
	var params backupParams

	return &cli.Command{
		Name:    "backup",
		Summary: "Replicate a machine into its local backup dataset",
		Description: `Snapshot a stopped machine and replicate it into <id>-backup, replacing
any previous backup. Backup datasets never appear in the machine list;
the reserved -backup suffix hides them.`,
		Usage: "hutch backup ID [flags]",
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("backup", &params)
		},
		Run: func(ctx context.Context, args []string, logger *slog.Logger) error {
			if len(args) != 1 {
				return cli.Validation("backup takes exactly one machine")
			}

			rt, err := newRuntime(&params.ConfigFlag, logger)
			if err != nil {
				return err
			}
			registry, err := rt.load(ctx)
			if err != nil {
				return err
			}
			record, err := resolve(registry, args[0])
			if err != nil {
				return err
			}

			backupErr := rt.manager.Backup(ctx, registry, record.ID)
			rt.journal.Append("backup", record.ID, nil, backupErr)
			if backupErr != nil {
				return wrapMachineError(backupErr)
			}

			fmt.Printf("machine %s backed up to %s\n", record.ID, record.ID+machine.BackupSuffix)
			return nil
		},
	}
}

func exportCommand() *cli.Command {
	var params exportParams

	return &cli.Command{
		Name:    "export",
		Summary: "Export a machine into a portable archive file",
		Description: `Stream a stopped machine into an archive: a metadata header carrying
the identifier, alias, and hostname, followed by the compressed (and
optionally age-encrypted) dataset stream. A BLAKE3 checksum of the
file is written alongside as <file>.b3 so import can detect
corruption before touching the pool.`,
		Usage: "hutch export ID FILE [flags]",
		Examples: []cli.Example{
			{
				Description: "Export machine web with the default zstd compression",
				Command:     "hutch export web web.hutch",
			},
			{
				Description: "Encrypted export",
				Command:     "hutch export web web.hutch --recipient age1xyz...",
			},
		},
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("export", &params)
		},
		Run: func(ctx context.Context, args []string, logger *slog.Logger) error {
			if len(args) != 2 {
				return cli.Validation("export takes a machine and an output file")
			}

			compression, err := archive.ParseCompression(params.Compression)
			if err != nil {
				return cli.Validation("%v", err)
			}
			recipients, err := archive.ParseRecipients(params.Recipient)
			if err != nil {
				return cli.Validation("%v", err)
			}

			rt, err := newRuntime(&params.ConfigFlag, logger)
			if err != nil {
				return err
			}
			registry, err := rt.load(ctx)
			if err != nil {
				return err
			}
			record, err := resolve(registry, args[0])
			if err != nil {
				return err
			}
			path := args[1]

			detail := map[string]string{
				"path":        path,
				"compression": string(compression),
			}
			if len(recipients) > 0 {
				detail["encrypted"] = "true"
			}
			exportErr := rt.manager.Export(ctx, registry, record.ID, path, machine.ExportOptions{
				Compression: compression,
				Recipients:  recipients,
			})
			rt.journal.Append("export", record.ID, detail, exportErr)
			if exportErr != nil {
				return wrapMachineError(exportErr)
			}

			fmt.Printf("machine %s exported to %s\n", record.ID, path)
			return nil
		},
	}
}

func importCommand() *cli.Command {
	var params importParams

	return &cli.Command{
		Name:    "import",
		Summary: "Import a machine archive under a new identifier",
		Description: `Restore an exported archive into a free identifier: verify the
checksum sidecar when present, decrypt and decompress the payload,
receive it into the new dataset, and regenerate network and container
configuration. Imported machines are never auto-started and are not
boot-enabled.`,
		Usage: "hutch import ID FILE [flags]",
		Examples: []cli.Example{
			{
				Description: "Restore an archive as machine 9",
				Command:     "hutch import 9 web.hutch",
			},
			{
				Description: "Restore an encrypted archive",
				Command:     "hutch import 9 web.hutch --identity-file ~/.config/hutch/key.txt",
			},
		},
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("import", &params)
		},
		Run: func(ctx context.Context, args []string, logger *slog.Logger) error {
			if len(args) != 2 {
				return cli.Validation("import takes a new identifier and an archive file")
			}
			id, path := args[0], args[1]

			rt, err := newRuntime(&params.ConfigFlag, logger)
			if err != nil {
				return err
			}
			registry, err := rt.load(ctx)
			if err != nil {
				return err
			}

			identities, err := loadIdentities(params.IdentityFile)
			if err != nil {
				return err
			}

			importErr := rt.manager.Import(ctx, registry, id, path, identities)
			rt.journal.Append("import", id, map[string]string{"path": path}, importErr)
			if importErr != nil {
				if errors.Is(importErr, archive.ErrIdentityRequired) {
					return cli.Validation("%v", importErr).
						WithHint("Pass --identity-file with the matching age identity.")
				}
				return wrapMachineError(importErr)
			}

			fmt.Printf("machine %s imported from %s (stopped)\n", id, path)
			return nil
		},
	}
}

// loadIdentities reads the age identities named by path, or returns nil
// when no identity file was given.
func loadIdentities(path string) ([]age.Identity, error) {
	if path == "" {
		return nil, nil
	}
	identities, err := archive.LoadIdentities(path)
	if err != nil {
		return nil, cli.Validation("%v", err)
	}
	return identities, nil
}
