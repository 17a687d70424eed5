// Copyright 2026 The Hutch Authors
// SPDX-License-Identifier: Apache-2.0

package watchui

import "testing"

func TestFuzzyMatchBasic(t *testing.T) {
	result := FuzzyMatch("web.example.net", []rune("example"), nil)
	if result.Score <= 0 {
		t.Fatal("expected positive score for substring match")
	}
	if len(result.Positions) == 0 {
		t.Fatal("expected non-empty match positions")
	}
}

func TestFuzzyMatchNonContiguous(t *testing.T) {
	// "wen" should match "web.example.net" — w from web, e from
	// example, n from net.
	result := FuzzyMatch("web.example.net", []rune("wen"), nil)
	if result.Score <= 0 {
		t.Fatal("expected positive score for non-contiguous fuzzy match")
	}
}

func TestFuzzyMatchNoMatch(t *testing.T) {
	result := FuzzyMatch("web.example.net", []rune("xyz"), nil)
	if result.Score != 0 {
		t.Errorf("expected zero score for no match, got %d", result.Score)
	}
	if len(result.Positions) != 0 {
		t.Errorf("expected empty positions for no match, got %v", result.Positions)
	}
}

func TestFuzzyMatchCaseInsensitive(t *testing.T) {
	// Pattern is lowercase, text has uppercase. The wrapper lowercases
	// both sides, so this should match.
	result := FuzzyMatch("Web.Example.NET", []rune("web"), nil)
	if result.Score <= 0 {
		t.Fatalf("expected case-insensitive match, got score=%d", result.Score)
	}
}

func TestFuzzyMatchCaseInsensitiveAllCaps(t *testing.T) {
	result := FuzzyMatch("DB PRIMARY", []rune("db"), nil)
	if result.Score <= 0 {
		t.Fatalf("expected match for 'db' in 'DB PRIMARY', got score=%d", result.Score)
	}
}

func TestFuzzyMatchEmptyPattern(t *testing.T) {
	result := FuzzyMatch("anything", []rune{}, nil)
	if result.Score != 0 {
		t.Errorf("expected zero score for empty pattern, got %d", result.Score)
	}
}
