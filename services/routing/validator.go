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
)

var (
	// cjkPattern matches CJK unified ideographs. English-only tools never
	// legitimately receive them.
	cjkPattern = regexp.MustCompile(`[\x{4e00}-\x{9fff}]`)

	// isoDateTimePattern matches a literal timestamp prefix such as
	// "2024-05-01T".
	isoDateTimePattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}T`)
)

// ValidateCall schema- and range-checks a single proposed call.
//
// Description:
//
//	Rejects the call when:
//	  - the registry is non-nil and does not contain the tool,
//	  - any string argument contains CJK ideographs,
//	  - any string argument starts with an ISO-8601 date-time prefix,
//	  - set_alarm has a numeric hour outside [0,23] or minute outside [0,59],
//	  - set_timer has numeric minutes outside [1,1440].
//
//	Absent or non-numeric range arguments are not range-checked.
//
// Inputs:
//
//	call - The call to check. Not modified.
//	reg  - The requesting registry. Nil skips the name check.
//
// Outputs:
//
//	bool - True when the call is acceptable.
//
// Thread Safety: Pure function. Safe for concurrent use.
func ValidateCall(call FunctionCall, reg *ToolRegistry) bool {
	if reg != nil && !reg.Has(call.Name) {
		return false
	}

	for _, v := range call.Arguments {
		s, ok := v.(string)
		if !ok {
			continue
		}
		if cjkPattern.MatchString(s) {
			return false
		}
		if isoDateTimePattern.MatchString(s) {
			return false
		}
	}

	switch call.Name {
	case "set_alarm":
		if h, ok := numericArg(call.Arguments, "hour"); ok && (h < 0 || h > 23) {
			return false
		}
		if m, ok := numericArg(call.Arguments, "minute"); ok && (m < 0 || m > 59) {
			return false
		}
	case "set_timer":
		if m, ok := numericArg(call.Arguments, "minutes"); ok && (m < 1 || m > 1440) {
			return false
		}
	}
	return true
}
