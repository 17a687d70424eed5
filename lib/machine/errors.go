// Copyright 2026 The Hutch Authors
// SPDX-License-Identifier: Apache-2.0

package machine

// The engine reports precondition failures through typed errors so
// the command layer can map them to exit codes without string
// matching. Collaborator failures pass through unwrapped.

// NotFoundError reports an operation that targeted a machine that
// does not exist.
type NotFoundError struct {
	Name string
}

func (e *NotFoundError) Error() string {
	return "machine \"" + e.Name + "\" does not exist"
}

// ConflictError reports an operation that would collide with existing
// state: creating over a taken identifier or alias, destroying a
// running machine, renaming onto an existing machine.
type ConflictError struct {
	Reason string
}

func (e *ConflictError) Error() string {
	return e.Reason
}

// ValidationError reports malformed operator input: an identifier out
// of range, a reserved alias, an unreadable key file.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Reason
}

// ConsistencyError reports host state that violates the alias
// namespace invariants, discovered while building the registry. It is
// fatal: no partial registry is ever returned alongside it, because
// every lifecycle operation validates against the registry and a
// partial one would validate against fiction.
type ConsistencyError struct {
	Reason string
}

func (e *ConsistencyError) Error() string {
	return e.Reason
}
