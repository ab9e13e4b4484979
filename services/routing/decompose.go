// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package routing

import (
	"regexp"
	"strings"
)

// =============================================================================
// Query Decomposition
// =============================================================================

// conjunctionMarkers are candidate split points, applied in this order.
var conjunctionMarkers = []string{" and ", ", ", " then ", " also ", " plus "}

// actionVerbs gates a split: the fragment after a marker must start with one.
var actionVerbs = map[string]bool{
	"set": true, "check": true, "get": true, "send": true, "text": true,
	"play": true, "find": true, "remind": true, "look": true, "search": true,
	"create": true, "wake": true, "tell": true, "show": true, "turn": true,
	"make": true, "start": true, "message": true, "ask": true, "add": true,
	"cancel": true, "stop": true, "open": true, "enter": true, "press": true,
	"hit": true, "type": true, "click": true,
}

// IsActionVerb reports whether word (any case) starts a new intent.
func IsActionVerb(word string) bool {
	return actionVerbs[strings.ToLower(word)]
}

// Decompose splits a multi-intent utterance into single-intent sub-queries.
//
// Description:
//
//	Each marker re-partitions the current fragment list in turn. A split is
//	kept only when the following fragment starts with an action verb;
//	otherwise the fragment is glued back onto its predecessor with the
//	marker text, so "message Tom and Jerry" stays whole. Fragments are
//	trimmed and empty ones dropped. Order follows the source utterance.
//
// Outputs:
//
//	[]string - Never empty. Single-intent input yields one element.
//
// Thread Safety: Pure function. Safe for concurrent use.
func Decompose(utterance string) []string {
	parts := []string{utterance}
	for _, marker := range conjunctionMarkers {
		next := make([]string, 0, len(parts))
		for _, part := range parts {
			candidates := strings.Split(part, marker)
			if len(candidates) == 1 {
				next = append(next, part)
				continue
			}
			merged := []string{candidates[0]}
			for _, c := range candidates[1:] {
				if IsActionVerb(firstWord(c)) {
					merged = append(merged, strings.TrimSpace(c))
				} else {
					merged[len(merged)-1] += marker + c
				}
			}
			next = append(next, merged...)
		}
		parts = next
	}

	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return []string{strings.TrimSpace(utterance)}
	}
	return out
}

func firstWord(s string) string {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

// =============================================================================
// Pronoun Resolution
// =============================================================================

var (
	properNamePattern = regexp.MustCompile(`\b[A-Z][a-z]+\b`)
	pronounPatterns   = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\bhim\b`),
		regexp.MustCompile(`(?i)\bher\b`),
		regexp.MustCompile(`(?i)\bthem\b`),
	}
)

// ResolvePronouns rewrites him/her/them in later sub-queries.
//
// Description:
//
//	Capitalized words are collected from all sub-queries in order of
//	appearance. Every sub-query after the first has whole-word,
//	case-insensitive him/her/them replaced with the first collected name.
//	The first sub-query is never rewritten. Always using the first name is
//	deliberate and deterministic; it does not pick the nearest antecedent.
//
// Outputs:
//
//	[]string - Same length and order as the input.
//
// Thread Safety: Pure function. Safe for concurrent use.
func ResolvePronouns(subQueries []string) []string {
	if len(subQueries) == 0 {
		return subQueries
	}
	var names []string
	for _, sq := range subQueries {
		names = append(names, properNamePattern.FindAllString(sq, -1)...)
	}

	resolved := make([]string, len(subQueries))
	resolved[0] = subQueries[0]
	for i, sq := range subQueries[1:] {
		if len(names) > 0 {
			for _, p := range pronounPatterns {
				sq = p.ReplaceAllLiteralString(sq, names[0])
			}
		}
		resolved[i+1] = sq
	}
	return resolved
}
