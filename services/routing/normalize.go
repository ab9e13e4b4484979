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
	"math"
	"strings"
)

// trailingPunct is stripped from the end of string arguments.
const trailingPunct = "?.!,"

// NormalizeArguments fixes common classifier argument defects in place.
//
// Negative numbers become their absolute value. Strings are trimmed and lose
// trailing '?', '.', '!' and ','.
func NormalizeArguments(call *FunctionCall) {
	if call == nil {
		return
	}
	if call.Arguments == nil {
		call.Arguments = map[string]any{}
		return
	}
	for k, v := range call.Arguments {
		switch val := v.(type) {
		case int:
			if val < 0 {
				call.Arguments[k] = -val
			}
		case float64:
			if val < 0 {
				call.Arguments[k] = math.Abs(val)
			}
		case string:
			call.Arguments[k] = cleanText(val)
		}
	}
}

// cleanText trims whitespace and trailing punctuation.
func cleanText(s string) string {
	return strings.TrimRight(strings.TrimSpace(s), trailingPunct)
}

// numericArg returns the argument as a float64 when it is numeric.
func numericArg(args map[string]any, key string) (float64, bool) {
	switch v := args[key].(type) {
	case int:
		return float64(v), true
	case float64:
		return v, true
	default:
		return 0, false
	}
}
