// Copyright 2026 The Hutch Authors
// SPDX-License-Identifier: Apache-2.0

package machine

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/hutch-systems/hutch/lib/netconf"
)

// Record is one machine's state as discovered at load time. Every
// field except ID is derived fresh from its source on each load; only
// alias and hostname have durable backing files that hutch also
// writes.
type Record struct {
	ID        string   `json:"id"`
	Alias     string   `json:"alias,omitempty"`
	Hostname  string   `json:"hostname,omitempty"`
	Addresses []string `json:"addresses,omitempty"`
	Enabled   bool     `json:"enabled"`
	Running   bool     `json:"running"`

	// Used, Avail, and Refer are the dataset's space figures as zfs
	// renders them.
	Used  string `json:"used"`
	Avail string `json:"avail"`
	Refer string `json:"refer"`
}

// Registry is the reconciled machine namespace: every record plus a
// total name map covering identifiers and aliases. Build one with
// Manager.Load; a Registry is never updated in place.
type Registry struct {
	// Records holds every machine in numeric identifier order.
	Records []Record

	// names maps every addressable name (identifier or alias) to its
	// canonical identifier.
	names map[string]string
}

// Load builds the registry from host state: dataset enumeration seeds
// the machine list, then the activation links, the supervisor's live
// list, and the per-machine files fill in the attributes.
//
// Alias collisions (an alias equal to a machine identifier, or one
// alias claimed by two machines) return a *ConsistencyError and no
// registry.
func (m *Manager) Load(ctx context.Context) (*Registry, error) {
	datasets, err := m.pool.List(ctx)
	if err != nil {
		return nil, err
	}

	runningList, err := m.sup.ListRunning(ctx)
	if err != nil {
		return nil, err
	}
	running := make(map[string]bool, len(runningList))
	for _, id := range runningList {
		running[id] = true
	}

	var records []Record
	for _, dataset := range datasets {
		if strings.HasSuffix(dataset.Name, BackupSuffix) {
			continue
		}
		if _, err := strconv.Atoi(dataset.Name); err != nil {
			// A foreign dataset under the parent. Not ours to manage.
			m.logger.Debug("skipping non-machine dataset", "name", dataset.Name)
			continue
		}

		record := Record{
			ID:      dataset.Name,
			Enabled: m.sup.IsEnabled(dataset.Name),
			Running: running[dataset.Name],
			Used:    dataset.Used,
			Avail:   dataset.Avail,
			Refer:   dataset.Refer,
		}

		if record.Alias, err = readOptionalLine(m.aliasPath(record.ID)); err != nil {
			return nil, err
		}
		if record.Hostname, err = readOptionalLine(m.hostnamePath(record.ID)); err != nil {
			return nil, err
		}

		addresses, err := netconf.Addresses(m.networkPath(record.ID))
		if err != nil && !os.IsNotExist(err) {
			return nil, err
		}
		record.Addresses = addresses

		records = append(records, record)
	}

	sort.Slice(records, func(i, j int) bool {
		a, _ := strconv.Atoi(records[i].ID)
		b, _ := strconv.Atoi(records[j].ID)
		return a < b
	})

	names := make(map[string]string, len(records)*2)
	for _, record := range records {
		names[record.ID] = record.ID
	}
	aliasOwner := make(map[string]string)
	for _, record := range records {
		if record.Alias == "" {
			continue
		}
		if owner, taken := aliasOwner[record.Alias]; taken {
			return nil, &ConsistencyError{Reason: fmt.Sprintf(
				"alias %q is claimed by both machine %s and machine %s",
				record.Alias, owner, record.ID)}
		}
		if _, isID := names[record.Alias]; isID {
			return nil, &ConsistencyError{Reason: fmt.Sprintf(
				"alias %q of machine %s collides with a machine identifier",
				record.Alias, record.ID)}
		}
		aliasOwner[record.Alias] = record.ID
		names[record.Alias] = record.ID
	}

	return &Registry{Records: records, names: names}, nil
}

// Translate substitutes canonical identifiers for known names and
// passes unknown tokens through unchanged. It is total: flags and
// other non-name arguments survive translation for the collaborator
// command to interpret.
func (r *Registry) Translate(names []string) []string {
	translated := make([]string, len(names))
	for i, name := range names {
		if id, ok := r.names[name]; ok {
			translated[i] = id
		} else {
			translated[i] = name
		}
	}
	return translated
}

// Lookup resolves a name (identifier or alias) to its record.
func (r *Registry) Lookup(name string) (Record, bool) {
	id, ok := r.names[name]
	if !ok {
		return Record{}, false
	}
	for _, record := range r.Records {
		if record.ID == id {
			return record, true
		}
	}
	return Record{}, false
}

// IDs returns every machine identifier in registry order.
func (r *Registry) IDs() []string {
	ids := make([]string, len(r.Records))
	for i, record := range r.Records {
		ids[i] = record.ID
	}
	return ids
}
