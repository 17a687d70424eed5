// Copyright 2026 The Hutch Authors
// SPDX-License-Identifier: Apache-2.0

// Package zfs provides typed access to the zfs CLI for dataset
// operations. Every machine's root filesystem is a child dataset of
// one configured parent (tank/machines/12 for machine 12), and all
// operations go through Pool, which resolves leaf names against that
// parent. Callers never assemble full dataset paths themselves, which
// makes it structurally impossible to destroy or rename a dataset
// outside the machine subtree.
//
// Streaming operations (Send, Receive, Replicate) connect zfs
// send/receive to io interfaces so that export, import, and backup
// can route the stream through compression and encryption layers.
package zfs

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strings"
)

// Runner executes one external command. stdin and stdout may be nil
// when the command has no stream on that side. The returned error
// carries the utility's stderr, trimmed, so callers can surface the
// failure without re-running the command. Tests substitute a fake
// Runner to script zfs behavior without a pool.
type Runner func(ctx context.Context, stdin io.Reader, stdout io.Writer, name string, args ...string) error

// execRunner is the production Runner. It executes the real binary
// and attaches captured stderr to non-zero exits.
func execRunner(ctx context.Context, stdin io.Reader, stdout io.Writer, name string, args ...string) error {
	command := exec.CommandContext(ctx, name, args...)
	command.Stdin = stdin
	command.Stdout = stdout
	var stderr bytes.Buffer
	command.Stderr = &stderr

	if err := command.Run(); err != nil {
		message := strings.TrimSpace(stderr.String())
		if message == "" {
			return err
		}
		return fmt.Errorf("%w (stderr: %s)", err, message)
	}
	return nil
}

// Dataset describes one immediate child of the parent dataset as
// reported by zfs list. Used, Avail, and Refer keep the utility's
// human-readable rendering (e.g. "1.24G") — they are display values,
// not quantities hutch computes with.
type Dataset struct {
	// Name is the leaf name under the parent, e.g. "12" or "12-backup".
	Name string

	Used  string
	Avail string
	Refer string
}

// Pool wraps the zfs utility scoped to one parent dataset. All
// operations name datasets by their leaf under that parent — there is
// no way to run a zfs command against a dataset outside it.
type Pool struct {
	binary string
	parent string
	runner Runner
}

// New returns a Pool executing the given zfs binary against the given
// parent dataset (e.g. "tank/machines").
func New(binary, parent string) *Pool {
	return &Pool{binary: binary, parent: parent, runner: execRunner}
}

// NewWithRunner is New with a substitute Runner. Tests use this to
// script utility behavior.
func NewWithRunner(binary, parent string, runner Runner) *Pool {
	return &Pool{binary: binary, parent: parent, runner: runner}
}

// Parent returns the parent dataset this pool is scoped to.
func (p *Pool) Parent() string {
	return p.parent
}

// Path returns the full dataset name for a leaf, e.g. Path("12") on a
// pool scoped to "tank/machines" is "tank/machines/12".
func (p *Pool) Path(leaf string) string {
	return p.parent + "/" + leaf
}

// run executes a zfs subcommand and wraps failures with the full
// argument list, so errors read "zfs destroy -r tank/machines/12: ...".
func (p *Pool) run(ctx context.Context, stdin io.Reader, stdout io.Writer, args ...string) error {
	if err := p.runner(ctx, stdin, stdout, p.binary, args...); err != nil {
		return fmt.Errorf("zfs %s: %w", strings.Join(args, " "), err)
	}
	return nil
}

// List returns the immediate children of the parent dataset with their
// space accounting. The parent itself is not included. Note that
// backup datasets (-backup suffix) ARE included — filtering them is
// registry policy, not a storage concern.
func (p *Pool) List(ctx context.Context) ([]Dataset, error) {
	var stdout bytes.Buffer
	err := p.run(ctx, nil, &stdout,
		"list", "-H", "-d", "1", "-o", "name,used,avail,refer", p.parent)
	if err != nil {
		return nil, err
	}
	return p.parseList(stdout.String())
}

// parseList parses -H output: one dataset per line, fields separated
// by single tabs.
func (p *Pool) parseList(output string) ([]Dataset, error) {
	var datasets []Dataset
	for _, line := range strings.Split(output, "\n") {
		if line == "" {
			continue
		}
		fields := strings.Split(line, "\t")
		if len(fields) != 4 {
			return nil, fmt.Errorf("unexpected zfs list line %q", line)
		}
		if fields[0] == p.parent {
			continue
		}
		datasets = append(datasets, Dataset{
			Name:  strings.TrimPrefix(fields[0], p.parent+"/"),
			Used:  fields[1],
			Avail: fields[2],
			Refer: fields[3],
		})
	}
	return datasets, nil
}

// Create creates the dataset for a new machine. recordsize tunes the
// block size for the container workload (the config default is 16K,
// chosen for mixed small-file root filesystems).
func (p *Pool) Create(ctx context.Context, leaf, recordsize string) error {
	return p.run(ctx, nil, nil,
		"create", "-o", "recordsize="+recordsize, p.Path(leaf))
}

// DestroyRecursive destroys a dataset and everything under it,
// snapshots included. This is the irreversible step of machine
// destruction — callers are responsible for confirmation.
func (p *Pool) DestroyRecursive(ctx context.Context, leaf string) error {
	return p.run(ctx, nil, nil, "destroy", "-r", p.Path(leaf))
}

// Rename renames a dataset within the parent. The mountpoint follows
// the dataset automatically because children inherit it.
func (p *Pool) Rename(ctx context.Context, oldLeaf, newLeaf string) error {
	return p.run(ctx, nil, nil, "rename", p.Path(oldLeaf), p.Path(newLeaf))
}

// Snapshot creates leaf@label.
func (p *Pool) Snapshot(ctx context.Context, leaf, label string) error {
	return p.run(ctx, nil, nil, "snapshot", p.snapshotPath(leaf, label))
}

// DestroySnapshot destroys leaf@label.
func (p *Pool) DestroySnapshot(ctx context.Context, leaf, label string) error {
	return p.run(ctx, nil, nil, "destroy", p.snapshotPath(leaf, label))
}

// Send streams a raw replication stream of leaf@label to w. The -w
// flag sends blocks exactly as stored, so compressed or encrypted
// datasets travel without being rehydrated.
func (p *Pool) Send(ctx context.Context, leaf, label string, w io.Writer) error {
	return p.run(ctx, nil, w, "send", "-R", "-w", p.snapshotPath(leaf, label))
}

// Receive creates a dataset under the parent from a replication
// stream. When force is true a previous dataset of the same name is
// rolled back and replaced (-F), which is how backup refreshes an
// existing backup dataset. Without force the target must not exist.
func (p *Pool) Receive(ctx context.Context, leaf string, r io.Reader, force bool) error {
	args := []string{"receive"}
	if force {
		args = append(args, "-F")
	}
	args = append(args, p.Path(leaf))
	return p.run(ctx, r, nil, args...)
}

// Replicate copies source@label into a new dataset under the same
// parent by piping zfs send into zfs receive. The snapshot exists on
// both datasets afterwards; callers clean up with DestroySnapshot on
// each side. Clone and backup are both built on this.
func (p *Pool) Replicate(ctx context.Context, sourceLeaf, label, targetLeaf string, force bool) error {
	reader, writer := io.Pipe()

	sendDone := make(chan error, 1)
	go func() {
		err := p.runner(ctx, nil, writer, p.binary,
			"send", "-R", "-w", p.snapshotPath(sourceLeaf, label))
		// Closing with the send error propagates it to the receive
		// side's stdin read instead of presenting a truncated stream
		// as clean EOF.
		writer.CloseWithError(err)
		sendDone <- err
	}()

	receiveArgs := []string{"receive"}
	if force {
		receiveArgs = append(receiveArgs, "-F")
	}
	receiveArgs = append(receiveArgs, p.Path(targetLeaf))
	receiveErr := p.runner(ctx, reader, nil, p.binary, receiveArgs...)

	// If receive died first, unblock the sender's pending writes.
	reader.CloseWithError(receiveErr)
	sendErr := <-sendDone

	if sendErr != nil {
		return fmt.Errorf("zfs send -R -w %s: %w", p.snapshotPath(sourceLeaf, label), sendErr)
	}
	if receiveErr != nil {
		return fmt.Errorf("zfs %s: %w", strings.Join(receiveArgs, " "), receiveErr)
	}
	return nil
}

func (p *Pool) snapshotPath(leaf, label string) string {
	return p.Path(leaf) + "@" + label
}
