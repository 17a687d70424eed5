// Copyright 2026 The Hutch Authors
// SPDX-License-Identifier: Apache-2.0

package machine

import (
	"context"
	"fmt"
	"os"

	"filippo.io/age"

	"github.com/hutch-systems/hutch/lib/archive"
)

// Backup replicates a machine into its backup dataset (<id>-backup),
// replacing any previous backup. Backup datasets are invisible to the
// registry; restoring one is a manual zfs operation by design.
//
// The machine must be stopped: a backup of a running machine would be
// crash-consistent at best, and the policy here is consistency over
// convenience.
func (m *Manager) Backup(ctx context.Context, registry *Registry, id string) error {
	record, ok := registry.Lookup(id)
	if !ok {
		return &NotFoundError{Name: id}
	}
	if record.Running {
		return &ConflictError{Reason: fmt.Sprintf("machine %s is running; stop it first", record.ID)}
	}

	target := record.ID + BackupSuffix
	label := m.snapshotLabel("backup")
	if err := m.pool.Snapshot(ctx, record.ID, label); err != nil {
		return err
	}
	if err := m.pool.Replicate(ctx, record.ID, label, target, true); err != nil {
		return err
	}
	if err := m.pool.DestroySnapshot(ctx, record.ID, label); err != nil {
		return err
	}
	if err := m.pool.DestroySnapshot(ctx, target, label); err != nil {
		return err
	}

	m.logger.Info("backup complete", "machine", record.ID, "target", target)
	return nil
}

// ExportOptions configures Export.
type ExportOptions struct {
	// Compression selects the payload encoding. Required; the
	// command layer defaults it to zstd.
	Compression archive.Compression

	// Recipients, when non-empty, encrypts the payload to these age
	// recipients.
	Recipients []age.Recipient
}

// Export streams a machine into an archive file: snapshot, zfs send
// through the archive's compression (and optional encryption) layers,
// checksum sidecar, snapshot cleanup. The machine must be stopped,
// same policy as Backup.
//
// A failure mid-stream leaves a partial file at path; the snapshot is
// still cleaned up.
func (m *Manager) Export(ctx context.Context, registry *Registry, id, path string, opts ExportOptions) error {
	record, ok := registry.Lookup(id)
	if !ok {
		return &NotFoundError{Name: id}
	}
	if record.Running {
		return &ConflictError{Reason: fmt.Sprintf("machine %s is running; stop it first", record.ID)}
	}

	label := m.snapshotLabel("export")
	if err := m.pool.Snapshot(ctx, record.ID, label); err != nil {
		return err
	}
	defer func() {
		if err := m.pool.DestroySnapshot(ctx, record.ID, label); err != nil {
			m.logger.Warn("leaving export snapshot behind", "machine", record.ID,
				"label", label, "error", err)
		}
	}()

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	header := archive.Header{
		Machine:     record.ID,
		Alias:       record.Alias,
		Hostname:    record.Hostname,
		Snapshot:    label,
		Compression: opts.Compression,
		CreatedAt:   m.clock.Now().UTC(),
	}
	writer, err := archive.NewWriter(file, header, opts.Recipients)
	if err != nil {
		return err
	}

	if err := m.pool.Send(ctx, record.ID, label, writer); err != nil {
		return err
	}
	if err := writer.Close(); err != nil {
		return err
	}
	if err := file.Close(); err != nil {
		return err
	}

	if err := archive.WriteChecksum(path, writer.Sum()); err != nil {
		return err
	}

	m.logger.Info("export complete", "machine", record.ID, "path", path,
		"compression", string(opts.Compression), "encrypted", len(opts.Recipients) > 0)
	return nil
}

// Import receives an archive into a new machine identifier and
// regenerates its configuration the same way clone does. The checksum
// sidecar is verified first when present. Imported machines are
// neither enabled nor started.
func (m *Manager) Import(ctx context.Context, registry *Registry, id, path string, identities []age.Identity) error {
	if err := checkNewID(registry, id); err != nil {
		return err
	}

	verified, err := archive.VerifyChecksum(path)
	if err != nil {
		return err
	}
	if !verified {
		m.logger.Warn("no checksum sidecar, skipping verification", "path", path)
	}

	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	reader, err := archive.NewReader(file, identities)
	if err != nil {
		return err
	}
	defer reader.Close()

	if err := m.pool.Receive(ctx, id, reader, false); err != nil {
		return err
	}

	// The send stream carried the export snapshot; the received
	// dataset does not need it.
	if label := reader.Header().Snapshot; label != "" {
		if err := m.pool.DestroySnapshot(ctx, id, label); err != nil {
			m.logger.Warn("leaving received snapshot behind", "machine", id,
				"label", label, "error", err)
		}
	}

	if err := m.configureMachine(id, nil); err != nil {
		return err
	}

	m.logger.Info("import complete", "machine", id, "path", path,
		"source", reader.Header().Machine, "verified", verified)
	return nil
}
