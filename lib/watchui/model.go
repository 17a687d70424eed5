// Copyright 2026 The Hutch Authors
// SPDX-License-Identifier: Apache-2.0

package watchui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"

	"github.com/hutch-systems/hutch/lib/machine"
)

// Loader fetches the current machine records. The watch command backs
// this with a full registry load, so every refresh sees exactly what
// "hutch list" would print.
type Loader func(ctx context.Context) ([]machine.Record, error)

// refreshTickMsg fires when the refresh interval elapses.
type refreshTickMsg struct{}

// recordsMsg delivers the result of an asynchronous load.
type recordsMsg struct {
	records []machine.Record
	err     error
}

// Column widths for the board table. ID is at most three digits;
// alias and hostname get fixed columns and truncate with an ellipsis.
const (
	columnWidthID       = 4
	columnWidthAlias    = 12
	columnWidthState    = 8
	columnWidthBoot     = 8
	columnWidthHostname = 18
	columnWidthAddress  = 16
)

// Model is the bubbletea model for the machine board.
type Model struct {
	ctx      context.Context
	loader   Loader
	interval time.Duration

	theme Theme
	keys  KeyMap

	// records is the last successful load in registry order; filtered
	// is the same set narrowed by the filter. A failed refresh keeps
	// the stale records visible and surfaces the error in the title.
	records  []machine.Record
	filtered []machine.Record
	loadErr  error
	loadedAt time.Time
	loading  bool

	filter FilterModel

	cursor       int
	scrollOffset int

	width  int
	height int
	ready  bool
}

// NewModel creates a machine board that reloads through loader every
// interval. The context bounds every load; cancelling it makes the
// next refresh fail rather than hang.
func NewModel(ctx context.Context, loader Loader, interval time.Duration) Model {
	return Model{
		ctx:      ctx,
		loader:   loader,
		interval: interval,
		theme:    DefaultTheme,
		keys:     DefaultKeyMap,
		loading:  true,
	}
}

// Init implements tea.Model: kick off the first load and the refresh
// timer.
func (model Model) Init() tea.Cmd {
	return tea.Batch(model.loadCmd(), model.tickCmd())
}

// loadCmd returns a tea.Cmd that runs the loader and delivers the
// result as a recordsMsg.
func (model Model) loadCmd() tea.Cmd {
	return func() tea.Msg {
		records, err := model.loader(model.ctx)
		return recordsMsg{records: records, err: err}
	}
}

// tickCmd schedules the next refresh tick.
func (model Model) tickCmd() tea.Cmd {
	return tea.Tick(model.interval, func(time.Time) tea.Msg {
		return refreshTickMsg{}
	})
}

// Update implements tea.Model.
func (model Model) Update(message tea.Msg) (tea.Model, tea.Cmd) {
	switch message := message.(type) {
	case tea.KeyMsg:
		if model.filter.Active {
			return model.handleFilterKeys(message)
		}

		switch {
		case key.Matches(message, model.keys.Quit):
			return model, tea.Quit

		case key.Matches(message, model.keys.Refresh):
			if model.loading {
				return model, nil
			}
			model.loading = true
			return model, model.loadCmd()

		case key.Matches(message, model.keys.FilterActivate):
			model.filter.Active = true
			model.cursor = 0
			model.scrollOffset = 0

		case key.Matches(message, model.keys.FilterClear):
			if model.filter.Input != "" {
				model.filter.Clear()
				model.applyFilter()
			}

		case key.Matches(message, model.keys.Up):
			model.moveCursor(-1)

		case key.Matches(message, model.keys.Down):
			model.moveCursor(1)

		case key.Matches(message, model.keys.PageUp):
			model.moveCursor(-model.visibleHeight())

		case key.Matches(message, model.keys.PageDown):
			model.moveCursor(model.visibleHeight())

		case key.Matches(message, model.keys.Home):
			model.cursor = 0
			model.clampScroll()

		case key.Matches(message, model.keys.End):
			model.cursor = len(model.filtered) - 1
			model.clampScroll()
		}

	case refreshTickMsg:
		commands := []tea.Cmd{model.tickCmd()}
		// A loader slower than the interval must not stack loads.
		if !model.loading {
			model.loading = true
			commands = append(commands, model.loadCmd())
		}
		return model, tea.Batch(commands...)

	case recordsMsg:
		model.loading = false
		model.loadErr = message.err
		if message.err == nil {
			model.records = message.records
			model.loadedAt = time.Now()
			model.applyFilter()
		}

	case tea.WindowSizeMsg:
		model.width = message.Width
		model.height = message.Height
		model.ready = true
		model.clampScroll()
	}
	return model, nil
}

// handleFilterKeys processes keystrokes while the filter input has
// focus. Regular characters go to the input, Esc clears then exits,
// Enter confirms and returns to list navigation.
func (model Model) handleFilterKeys(message tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(message, model.keys.Quit):
		// ctrl+c always quits, even in filter mode.
		if message.Type == tea.KeyCtrlC {
			return model, tea.Quit
		}
		// 'q' is a regular character in filter mode.
		model.filter.HandleRune('q')
		model.applyFilter()
		return model, nil

	case key.Matches(message, model.keys.FilterClear):
		// Esc with text clears the query but keeps typing focus;
		// Esc on an empty query leaves filter mode.
		if model.filter.Input != "" {
			model.filter.Input = ""
			model.applyFilter()
		} else {
			model.filter.Active = false
		}
		return model, nil

	case message.Type == tea.KeyEnter:
		model.filter.Active = false
		return model, nil

	case message.Type == tea.KeyBackspace:
		if model.filter.HandleBackspace() {
			model.applyFilter()
		}
		return model, nil

	case message.Type == tea.KeyRunes || message.Type == tea.KeySpace:
		for _, character := range message.Runes {
			model.filter.HandleRune(character)
		}
		model.applyFilter()
		return model, nil
	}

	return model, nil
}

// applyFilter re-derives the visible rows from the full record set,
// keeping the cursor on the same machine when it survives the filter.
func (model *Model) applyFilter() {
	var selectedID string
	if model.cursor >= 0 && model.cursor < len(model.filtered) {
		selectedID = model.filtered[model.cursor].ID
	}

	model.filtered = model.filter.Apply(model.records)

	model.cursor = 0
	for index, record := range model.filtered {
		if record.ID == selectedID {
			model.cursor = index
			break
		}
	}
	model.clampScroll()
}

func (model *Model) moveCursor(delta int) {
	model.cursor += delta
	model.clampScroll()
}

// clampScroll keeps the cursor inside the filtered set and the scroll
// offset positioned so the cursor is visible.
func (model *Model) clampScroll() {
	if model.cursor >= len(model.filtered) {
		model.cursor = len(model.filtered) - 1
	}
	if model.cursor < 0 {
		model.cursor = 0
	}

	visible := model.visibleHeight()
	if visible < 1 {
		visible = 1
	}
	if model.cursor < model.scrollOffset {
		model.scrollOffset = model.cursor
	}
	if model.cursor >= model.scrollOffset+visible {
		model.scrollOffset = model.cursor - visible + 1
	}
	if model.scrollOffset < 0 {
		model.scrollOffset = 0
	}
}

// visibleHeight is the number of machine rows that fit between the
// chrome lines: title, column header, separator, and help bar.
func (model Model) visibleHeight() int {
	return model.height - 4
}

// View implements tea.Model.
func (model Model) View() string {
	if !model.ready {
		return "Loading..."
	}

	var sections []string

	// Top chrome line: the filter bar replaces the title bar while
	// filtering so the layout doesn't shift.
	filterView := model.filter.View(model.theme, model.width)
	if filterView != "" {
		sections = append(sections, filterView)
	} else {
		sections = append(sections, model.renderTitle())
	}

	sections = append(sections, model.renderColumns())
	sections = append(sections, model.renderRows())

	separator := lipgloss.NewStyle().
		Foreground(model.theme.BorderColor).
		Render(strings.Repeat("─", model.width))
	sections = append(sections, separator)
	sections = append(sections, model.renderHelp())

	return strings.Join(sections, "\n")
}

// renderTitle renders the top chrome line: machine counts, the time
// of the last successful load, and the last load failure if any.
func (model Model) renderTitle() string {
	running := 0
	for _, record := range model.records {
		if record.Running {
			running++
		}
	}

	title := lipgloss.NewStyle().
		Foreground(model.theme.HeaderForeground).
		Bold(true).
		Render(" machines")
	counts := lipgloss.NewStyle().
		Foreground(model.theme.NormalText).
		Render(fmt.Sprintf("  %d running / %d total", running, len(model.records)))

	line := title + counts
	if !model.loadedAt.IsZero() {
		line += lipgloss.NewStyle().
			Foreground(model.theme.FaintText).
			Render("  refreshed " + model.loadedAt.Format("15:04:05"))
	}
	if model.loadErr != nil {
		line += lipgloss.NewStyle().
			Foreground(model.theme.ErrorText).
			Render(fmt.Sprintf("  load failed: %v", model.loadErr))
	}

	return ansi.Truncate(line, model.width, "…")
}

// renderColumns renders the column header row.
func (model Model) renderColumns() string {
	header := fmt.Sprintf("   %-*s %-*s %-*s %-*s %-*s %-*s %7s %7s",
		columnWidthID, "ID",
		columnWidthAlias, "ALIAS",
		columnWidthState, "STATE",
		columnWidthBoot, "BOOT",
		columnWidthHostname, "HOSTNAME",
		columnWidthAddress, "ADDRESS",
		"USED", "AVAIL")
	return lipgloss.NewStyle().
		Foreground(model.theme.FaintText).
		Render(ansi.Truncate(header, model.width, ""))
}

// renderRows renders exactly visibleHeight lines so the separator and
// help bar never move, padding with blanks below the last machine.
func (model Model) renderRows() string {
	visible := model.visibleHeight()
	if visible < 0 {
		visible = 0
	}

	lines := make([]string, 0, visible)
	for index := model.scrollOffset; index < model.scrollOffset+visible; index++ {
		if index >= len(model.filtered) {
			lines = append(lines, "")
			continue
		}
		lines = append(lines, model.renderRow(model.filtered[index], index == model.cursor))
	}

	// An empty board gets a hint instead of a wall of blank lines.
	if len(model.filtered) == 0 && len(lines) > 0 {
		message := " no machines"
		if len(model.records) > 0 {
			message = " no machines match the filter"
		}
		lines[0] = lipgloss.NewStyle().
			Foreground(model.theme.FaintText).
			Render(message)
	}

	return strings.Join(lines, "\n")
}

// rowCells formats the plain-text column portion of a row. Styling is
// applied afterwards so ANSI sequences never skew the padding.
func rowCells(record machine.Record) string {
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

	return fmt.Sprintf(" %-*s %-*s %-*s %-*s %-*s %-*s %7s %7s",
		columnWidthID, record.ID,
		columnWidthAlias, truncateCell(record.Alias, columnWidthAlias),
		columnWidthState, state,
		columnWidthBoot, boot,
		columnWidthHostname, truncateCell(record.Hostname, columnWidthHostname),
		columnWidthAddress, truncateCell(address, columnWidthAddress),
		record.Used, record.Avail)
}

// renderRow renders one machine: a state dot colored by power state,
// then the fixed columns. Selected rows use the uniform selection
// style so every cell stays readable against the highlight; stopped
// machines render faint so running ones stand out when scanning.
func (model Model) renderRow(record machine.Record, selected bool) string {
	cells := rowCells(record)

	if selected {
		style := lipgloss.NewStyle().
			Background(model.theme.SelectedBackground).
			Foreground(model.theme.SelectedForeground)
		row := style.Render(" ●" + cells)
		return style.MaxWidth(model.width).Render(ansi.Truncate(row, model.width, "…"))
	}

	dot := lipgloss.NewStyle().
		Foreground(model.theme.StateColor(record.Running)).
		Render("●")
	textColor := model.theme.NormalText
	if !record.Running {
		textColor = model.theme.FaintText
	}
	row := " " + dot + lipgloss.NewStyle().Foreground(textColor).Render(cells)
	return ansi.Truncate(row, model.width, "…")
}

// truncateCell shortens a value to fit its column, with an ellipsis
// when anything was cut.
func truncateCell(value string, width int) string {
	if ansi.StringWidth(value) <= width {
		return value
	}
	return ansi.Truncate(value, width-1, "") + "…"
}

// renderHelp renders the bottom help bar.
func (model Model) renderHelp() string {
	style := lipgloss.NewStyle().Foreground(model.theme.HelpText)

	help := " q quit  ↑↓ navigate  / filter  r refresh"
	if model.filter.Active {
		help = " Esc clear  Enter done  ctrl+c quit"
	}
	help += fmt.Sprintf("  %d/%d machines", len(model.filtered), len(model.records))

	return style.Render(ansi.Truncate(help, model.width, "…"))
}
