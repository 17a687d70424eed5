// Copyright 2026 The Hutch Authors
// SPDX-License-Identifier: Apache-2.0

// Package commands builds the complete hutch CLI command tree.
//
// Every command follows the same shape: parse flags into a params
// struct, construct the shared [runtime] from the effective
// configuration, load the machine registry, run exactly one operation,
// and append a journal record for anything that changed state. The
// root command doubles as a dispatcher for bare machine references:
// "hutch web" opens an interactive shell in the machine aliased "web"
// by replacing the hutch process with machinectl.
package commands
