// Copyright 2026 The Hutch Authors
// SPDX-License-Identifier: Apache-2.0

// Package watchui implements the interactive machine board behind
// "hutch watch": a full-screen bubbletea view of every machine with
// its power state, boot enablement, hostname, address, and dataset
// space figures, refreshed on a fixed interval.
//
// The board is strictly read-only. It narrows with an fzf-style fuzzy
// filter (press /) but never mutates machine state; lifecycle changes
// stay on the plain commands so every state change runs through the
// operation journal.
//
// All bubbletea-facing code lives here so the rest of the CLI stays
// free of TUI concerns and their transitive dependencies.
package watchui
