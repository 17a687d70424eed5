// Copyright 2026 The Hutch Authors
// SPDX-License-Identifier: Apache-2.0

package watchui

import (
	"strings"

	"github.com/junegunn/fzf/src/algo"
	"github.com/junegunn/fzf/src/util"
)

// FuzzyResult holds the outcome of matching a pattern against a text.
type FuzzyResult struct {
	// Score is fzf's match quality. Zero means no match.
	Score int

	// Positions are rune indices into the text that matched.
	Positions []int
}

// FuzzyMatch runs fzf's FuzzyMatchV2 algorithm against text. Matching
// is case-insensitive: the wrapper lowercases both sides before the
// algorithm runs. A nil slab is allowed; the algorithm allocates as
// needed. Callers iterating over many texts should reuse one slab.
func FuzzyMatch(text string, pattern []rune, slab *util.Slab) FuzzyResult {
	if len(pattern) == 0 {
		return FuzzyResult{}
	}

	lowered := []rune(strings.ToLower(string(pattern)))
	chars := util.ToChars([]byte(strings.ToLower(text)))
	result, positions := algo.FuzzyMatchV2(false, true, true, &chars, lowered, true, slab)
	if result.Score <= 0 {
		return FuzzyResult{}
	}

	match := FuzzyResult{Score: result.Score}
	if positions != nil {
		match.Positions = *positions
	}
	return match
}
