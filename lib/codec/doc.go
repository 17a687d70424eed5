// Copyright 2026 The Hutch Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides hutch's standard CBOR encoding configuration.
//
// Hutch uses two serialization formats with a clear boundary:
//
//   - JSON for human-facing surfaces: CLI --json output and profile
//     files (JSONC).
//   - CBOR for durable on-disk records: the operation journal and
//     archive metadata headers.
//
// This package provides the shared CBOR encoding and decoding modes so
// that every hutch package encodes identically without duplicating
// configuration. The encoder uses Core Deterministic Encoding (RFC 8949
// §4.2): sorted map keys, smallest integer encoding, no
// indefinite-length items. Same logical data always produces identical
// bytes, which is what lets archive headers participate in checksums.
//
// For buffer-oriented operations (archive headers):
//
//	data, err := codec.Marshal(value)
//	err = codec.Unmarshal(data, &value)
//
// For stream-oriented operations (the journal file):
//
//	encoder := codec.NewEncoder(file)
//	decoder := codec.NewDecoder(file)
//
// # Struct Tag Rules
//
// The struct tag on a type documents its serialization format:
//
//   - `cbor` tag: this type is ONLY ever serialized as CBOR.
//     Examples: archive headers, journal records as written to disk.
//   - `json` tag: this type may be serialized as BOTH JSON and CBOR.
//     fxamacker/cbor v2 reads `json` tags as fallback when `cbor`
//     tags are absent, so a single `json` tag controls field naming
//     and omitempty for both formats. Example: journal records, which
//     are CBOR on disk and JSON in --json output.
//
// Never use both `cbor` and `json` tags on the same field. The tag
// choice documents the contract — doubling up is noise that obscures
// whether a type participates in JSON serialization.
package codec
