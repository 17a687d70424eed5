// Copyright 2026 The Hutch Authors
// SPDX-License-Identifier: Apache-2.0

package watchui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/junegunn/fzf/src/util"

	"github.com/hutch-systems/hutch/lib/machine"
)

// FilterModel implements fzf-style fuzzy matching across a machine's
// identifier, alias, hostname, and addresses. The filter narrows the
// board client-side; the loader keeps refreshing the full set
// underneath it.
type FilterModel struct {
	// Input is the current filter query text.
	Input string

	// Active is true when the filter input has keyboard focus
	// (the user pressed / to start typing).
	Active bool
}

// haystack is the text a machine record is matched against: every
// searchable field joined with spaces.
func haystack(record machine.Record) string {
	fields := []string{record.ID, record.Alias, record.Hostname}
	fields = append(fields, record.Addresses...)
	return strings.Join(fields, " ")
}

// Matches returns true if the record matches the current filter. An
// empty filter matches everything.
func (filter *FilterModel) Matches(record machine.Record, slab *util.Slab) bool {
	if filter.Input == "" {
		return true
	}
	return FuzzyMatch(haystack(record), []rune(filter.Input), slab).Score > 0
}

// fzf's own defaults for slab sizing. One slab serves a whole Apply
// pass; the algorithm resets it per call.
const (
	slab16Size = 100 * 1024
	slab32Size = 2048
)

// Apply filters records, returning only those that match the current
// filter text. Registry order is preserved: the board is scanned by
// identifier, and rows must not jump around as the query grows.
func (filter *FilterModel) Apply(records []machine.Record) []machine.Record {
	if filter.Input == "" {
		return records
	}

	slab := util.MakeSlab(slab16Size, slab32Size)
	var result []machine.Record
	for _, record := range records {
		if filter.Matches(record, slab) {
			result = append(result, record)
		}
	}
	return result
}

// HandleRune processes a character typed while the filter is active.
// Returns true if the input changed.
func (filter *FilterModel) HandleRune(character rune) bool {
	filter.Input += string(character)
	return true
}

// HandleBackspace removes the last character from the filter input.
// Returns true if the input changed.
func (filter *FilterModel) HandleBackspace() bool {
	if len(filter.Input) == 0 {
		return false
	}
	runes := []rune(filter.Input)
	filter.Input = string(runes[:len(runes)-1])
	return true
}

// Clear resets the filter input and deactivates it.
func (filter *FilterModel) Clear() {
	filter.Input = ""
	filter.Active = false
}

// View renders the filter bar. When active, shows the input with a
// cursor. When inactive with text, shows the filter text. When
// inactive with no text, returns empty string (hidden).
func (filter *FilterModel) View(theme Theme, width int) string {
	if !filter.Active && filter.Input == "" {
		return ""
	}

	style := lipgloss.NewStyle().
		Foreground(theme.NormalText).
		Width(width)

	if filter.Active {
		cursor := lipgloss.NewStyle().
			Foreground(theme.HeaderForeground).
			Bold(true).
			Render("▎")
		return style.Render(" / " + filter.Input + cursor)
	}

	// Inactive but has text — show the filter as a subtle indicator.
	dimStyle := lipgloss.NewStyle().
		Foreground(theme.FaintText).
		Width(width)
	return dimStyle.Render(" filter: " + filter.Input)
}
