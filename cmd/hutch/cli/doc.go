// Copyright 2026 The Hutch Authors
// SPDX-License-Identifier: Apache-2.0

// Package cli provides the command-line framework for hutch.
//
// The central type is [Command], which represents a named subcommand with
// optional nested [Command.Subcommands], a [pflag.FlagSet] factory, and a
// Run function. Commands are assembled into a tree in cmd/hutch/commands
// and dispatched via [Command.Execute], which handles flag parsing,
// subcommand routing, and structured help output with examples.
//
// When a user types an unknown subcommand or flag, the framework computes
// Levenshtein edit distance against all known names and suggests the
// closest match (threshold: distance <= 3). The root command is special:
// an unmatched first argument falls through to the root Run function,
// which treats it as a machine reference and opens a shell.
//
// Command parameters are declared as struct fields with flag/desc/default
// tags and bound through [FlagsFromParams]. Two embeddable helpers cover
// common needs: [JSONOutput] adds --json with [JSONOutput.EmitJSON], and
// [ConfigFlag] adds --config with a [ConfigFlag.Load] that falls back to
// HUTCH_CONFIG and the built-in defaults.
//
// Errors returned from Run functions are categorized via [ToolError];
// main maps each [ErrorCategory] to a distinct exit code so scripts can
// branch without parsing messages.
package cli
