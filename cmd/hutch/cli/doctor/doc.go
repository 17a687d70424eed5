// Copyright 2026 The Hutch Authors
// SPDX-License-Identifier: Apache-2.0

// Package doctor provides the workflow infrastructure for the hutch
// doctor command.
//
// The doctor runs a series of host-environment health checks and
// reports results in a consistent format. Fixable failures carry fix
// closures that can be executed in --fix mode. The package provides:
//
//   - [Result] type with status, message, and optional fix action
//   - Constructors: [Pass], [Fail], [FailWithFix], [FailElevated], [Warn], [Skip]
//   - [ExecuteFixes] for running fix closures with elevation awareness
//   - [PrintChecklist] for human-readable output
//   - [BuildJSON] for machine-readable output
//   - [MarkRepaired] for cross-iteration repair tracking
//
// The checks themselves (what to check, how to fix) live in the doctor
// command's package. This package provides only the workflow.
package doctor
