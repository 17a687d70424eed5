// Copyright 2026 The Hutch Authors
// SPDX-License-Identifier: Apache-2.0

package machine

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/hutch-systems/hutch/lib/clock"
	"github.com/hutch-systems/hutch/lib/config"
	"github.com/hutch-systems/hutch/lib/netconf"
	"github.com/hutch-systems/hutch/lib/nspawn"
	"github.com/hutch-systems/hutch/lib/zfs"
)

// fakeStorage implements Storage against a real temp directory, so
// the engine's file writes (network config, alias, ownership) run
// against actual subtrees.
type fakeStorage struct {
	root      string
	datasets  []string
	snapshots map[string][]string
	received  map[string][]byte
	calls     []string
	lastLabel string
	listErr   error
}

func newFakeStorage(root string) *fakeStorage {
	return &fakeStorage{
		root:      root,
		snapshots: make(map[string][]string),
		received:  make(map[string][]byte),
	}
}

// addDataset registers a dataset without going through Create, for
// seeding pre-existing machines.
func (f *fakeStorage) addDataset(leaf string) {
	f.datasets = append(f.datasets, leaf)
}

func (f *fakeStorage) record(format string, args ...any) {
	f.calls = append(f.calls, fmt.Sprintf(format, args...))
}

func (f *fakeStorage) has(leaf string) bool {
	for _, name := range f.datasets {
		if name == leaf {
			return true
		}
	}
	return false
}

func (f *fakeStorage) List(ctx context.Context) ([]zfs.Dataset, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	datasets := make([]zfs.Dataset, 0, len(f.datasets))
	for _, name := range f.datasets {
		datasets = append(datasets, zfs.Dataset{
			Name: name, Used: "1.2G", Avail: "10G", Refer: "900M",
		})
	}
	return datasets, nil
}

func (f *fakeStorage) Create(ctx context.Context, leaf, recordsize string) error {
	f.record("create %s", leaf)
	f.datasets = append(f.datasets, leaf)
	return os.MkdirAll(filepath.Join(f.root, leaf), 0755)
}

func (f *fakeStorage) DestroyRecursive(ctx context.Context, leaf string) error {
	f.record("destroy %s", leaf)
	for i, name := range f.datasets {
		if name == leaf {
			f.datasets = append(f.datasets[:i], f.datasets[i+1:]...)
			break
		}
	}
	return os.RemoveAll(filepath.Join(f.root, leaf))
}

func (f *fakeStorage) Rename(ctx context.Context, oldLeaf, newLeaf string) error {
	f.record("rename %s %s", oldLeaf, newLeaf)
	for i, name := range f.datasets {
		if name == oldLeaf {
			f.datasets[i] = newLeaf
		}
	}
	return os.Rename(filepath.Join(f.root, oldLeaf), filepath.Join(f.root, newLeaf))
}

func (f *fakeStorage) Snapshot(ctx context.Context, leaf, label string) error {
	f.record("snapshot %s@%s", leaf, label)
	f.snapshots[leaf] = append(f.snapshots[leaf], label)
	f.lastLabel = label
	return nil
}

func (f *fakeStorage) DestroySnapshot(ctx context.Context, leaf, label string) error {
	f.record("destroy-snapshot %s@%s", leaf, label)
	labels := f.snapshots[leaf]
	for i, have := range labels {
		if have == label {
			f.snapshots[leaf] = append(labels[:i], labels[i+1:]...)
			break
		}
	}
	return nil
}

func (f *fakeStorage) Send(ctx context.Context, leaf, label string, w io.Writer) error {
	f.record("send %s@%s", leaf, label)
	_, err := fmt.Fprintf(w, "zfs-stream:%s@%s", leaf, label)
	return err
}

func (f *fakeStorage) Receive(ctx context.Context, leaf string, r io.Reader, force bool) error {
	f.record("receive %s force=%v", leaf, force)
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	f.received[leaf] = data
	f.datasets = append(f.datasets, leaf)
	// A received machine image has a populated root filesystem.
	return seedSubtreeFiles(filepath.Join(f.root, leaf))
}

func (f *fakeStorage) Replicate(ctx context.Context, sourceLeaf, label, targetLeaf string, force bool) error {
	f.record("replicate %s@%s %s force=%v", sourceLeaf, label, targetLeaf, force)
	if !f.has(targetLeaf) {
		f.datasets = append(f.datasets, targetLeaf)
	}
	f.snapshots[targetLeaf] = append(f.snapshots[targetLeaf], label)
	source := filepath.Join(f.root, sourceLeaf)
	target := filepath.Join(f.root, targetLeaf)
	if err := os.RemoveAll(target); err != nil {
		return err
	}
	return copyTree(source, target)
}

func copyTree(source, target string) error {
	return filepath.WalkDir(source, func(path string, entry os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		relative, err := filepath.Rel(source, path)
		if err != nil {
			return err
		}
		destination := filepath.Join(target, relative)
		if entry.IsDir() {
			return os.MkdirAll(destination, 0755)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		return os.WriteFile(destination, data, 0644)
	})
}

// fakeSupervisor implements Supervisor in memory. Started and stopped
// machines can be configured to converge only after a number of
// ListRunning polls, for exercising the wait loops.
type fakeSupervisor struct {
	mu           sync.Mutex
	running      map[string]bool
	enabled      map[string]bool
	calls        []string
	startDelay   int
	stopDelay    int
	pendingStart map[string]int
	pendingStop  map[string]int
	listCount    int
	runIn        func(id string, argv []string) (string, int, error)
}

func newFakeSupervisor() *fakeSupervisor {
	return &fakeSupervisor{
		running:      make(map[string]bool),
		enabled:      make(map[string]bool),
		pendingStart: make(map[string]int),
		pendingStop:  make(map[string]int),
	}
}

func (f *fakeSupervisor) record(format string, args ...any) {
	f.calls = append(f.calls, fmt.Sprintf(format, args...))
}

func (f *fakeSupervisor) ListRunning(ctx context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCount++
	for id, remaining := range f.pendingStart {
		if remaining <= 1 {
			f.running[id] = true
			delete(f.pendingStart, id)
		} else {
			f.pendingStart[id] = remaining - 1
		}
	}
	for id, remaining := range f.pendingStop {
		if remaining <= 1 {
			delete(f.running, id)
			delete(f.pendingStop, id)
		} else {
			f.pendingStop[id] = remaining - 1
		}
	}
	var ids []string
	for id, up := range f.running {
		if up {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (f *fakeSupervisor) Start(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("start %s", id)
	if f.startDelay > 0 {
		f.pendingStart[id] = f.startDelay
	} else {
		f.running[id] = true
	}
	return nil
}

func (f *fakeSupervisor) Poweroff(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("poweroff %s", id)
	if f.stopDelay > 0 {
		f.pendingStop[id] = f.stopDelay
	} else {
		delete(f.running, id)
	}
	return nil
}

func (f *fakeSupervisor) Terminate(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("terminate %s", id)
	delete(f.running, id)
	return nil
}

func (f *fakeSupervisor) Enable(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("enable %s", id)
	f.enabled[id] = true
	return nil
}

func (f *fakeSupervisor) Disable(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("disable %s", id)
	delete(f.enabled, id)
	return nil
}

func (f *fakeSupervisor) IsEnabled(id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.enabled[id]
}

func (f *fakeSupervisor) RunIn(ctx context.Context, id string, argv []string) (string, int, error) {
	f.mu.Lock()
	hook := f.runIn
	f.record("run-in %s %v", id, argv)
	f.mu.Unlock()
	if hook != nil {
		return hook(id, argv)
	}
	return "", 0, nil
}

// fixture wires a Manager to fake collaborators over a temp
// directory standing in for the pool mountpoint.
type fixture struct {
	manager *Manager
	storage *fakeStorage
	sup     *fakeSupervisor
	clock   *clock.FakeClock
	cfg     *config.Config
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	tmp := t.TempDir()

	cfg := config.Default()
	cfg.Storage.Mountpoint = filepath.Join(tmp, "machines")
	cfg.Network.BridgeConfigFile = filepath.Join(tmp, "br0.network")
	cfg.Supervisor.MachinesDir = filepath.Join(tmp, "managed")
	cfg.Supervisor.NspawnDir = filepath.Join(tmp, "nspawn")
	cfg.Supervisor.WantsDir = filepath.Join(tmp, "wants")
	cfg.Supervisor.DropinDir = filepath.Join(tmp, "dropins")
	cfg.JournalPath = filepath.Join(tmp, "journal.cbor")
	cfg.ProfileDir = filepath.Join(tmp, "profiles")
	for _, dir := range []string{
		cfg.Storage.Mountpoint, cfg.Supervisor.MachinesDir,
		cfg.Supervisor.NspawnDir, cfg.Supervisor.WantsDir, cfg.Supervisor.DropinDir,
	} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			t.Fatal(err)
		}
	}
	bridge := "[Match]\nName=br0\n\n[Network]\nAddress=172.17.0.1/24\n"
	if err := os.WriteFile(cfg.Network.BridgeConfigFile, []byte(bridge), 0644); err != nil {
		t.Fatal(err)
	}

	storage := newFakeStorage(cfg.Storage.Mountpoint)
	sup := newFakeSupervisor()
	clk := clock.Fake(time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC))
	manager := New(cfg, storage, sup, clk, slog.New(slog.DiscardHandler))
	manager.bootstrap = func(ctx context.Context, argv []string) error {
		return seedSubtreeFiles(argv[len(argv)-1])
	}

	return &fixture{manager: manager, storage: storage, sup: sup, clock: clk, cfg: cfg}
}

// seedSubtreeFiles populates the minimum root filesystem the engine
// reads: the passwd ownership template and the directories its own
// writes land in.
func seedSubtreeFiles(root string) error {
	if err := os.MkdirAll(filepath.Join(root, "etc", "systemd", "network"), 0755); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Join(root, "root"), 0755); err != nil {
		return err
	}
	passwd := "root:x:0:0:root:/root:/bin/sh\n"
	return os.WriteFile(filepath.Join(root, "etc", "passwd"), []byte(passwd), 0644)
}

// seedMachine creates a pre-existing machine: dataset, subtree,
// optional alias/hostname/network files, and the managed-set link and
// supervisor config that a created machine would have. address is the
// bare IP without a prefix length.
func (f *fixture) seedMachine(t *testing.T, id, alias, hostname, address string) {
	t.Helper()
	f.storage.addDataset(id)
	subtree := filepath.Join(f.storage.root, id)
	if err := seedSubtreeFiles(subtree); err != nil {
		t.Fatal(err)
	}
	if alias != "" {
		writeTestFile(t, filepath.Join(subtree, "etc", "machine-alias"), alias+"\n")
	}
	if hostname != "" {
		writeTestFile(t, filepath.Join(subtree, "etc", "hostname"), hostname+"\n")
	}
	if address != "" {
		content := netconf.Render(address, "172.17.0.1")
		writeTestFile(t, filepath.Join(subtree, "etc", "systemd", "network", "host0.network"), content)
	}
	if err := os.Symlink(subtree, filepath.Join(f.cfg.Supervisor.MachinesDir, id)); err != nil {
		t.Fatal(err)
	}
	if err := nspawn.WriteConfig(f.cfg.Supervisor.NspawnDir, f.cfg.Supervisor.DropinDir,
		f.cfg.Network.Bridge, id, nil); err != nil {
		t.Fatal(err)
	}
}

func writeTestFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func (f *fixture) load(t *testing.T) *Registry {
	t.Helper()
	registry, err := f.manager.Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	return registry
}

// drive runs op in a goroutine and pumps the fake clock through every
// wait until op returns.
func (f *fixture) drive(op func() error) error {
	done := make(chan error, 1)
	go func() { done <- op() }()
	for {
		select {
		case err := <-done:
			return err
		case <-time.After(time.Millisecond):
			if f.clock.PendingCount() > 0 {
				f.clock.Advance(time.Second)
			}
		}
	}
}

func assertCalls(t *testing.T, got, want []string) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("calls = %q, want %q", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("calls[%d] = %q, want %q (full: %q)", i, got[i], want[i], got)
		}
	}
}
