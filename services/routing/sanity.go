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

var textWordPattern = regexp.MustCompile(`\btext\b`)

// SanityCheck cross-checks the chosen tool against keywords in the source
// sub-query.
//
// Description:
//
//	Matching is on the lower-cased utterance. The call is rejected when:
//	  - "remind" appears and the tool is not create_reminder,
//	  - "timer" appears and the tool is set_alarm,
//	  - "alarm" appears and the tool is set_timer,
//	  - the tool is set_alarm, "pm" appears, and the hour is below 12
//	    (a missing hour counts as 0),
//	  - the standalone word "text" appears and the tool is not send_message.
//
//	Keyword tests are substring tests except for "text".
//
// Thread Safety: Pure function. Safe for concurrent use.
func SanityCheck(call FunctionCall, utterance string) bool {
	q := strings.ToLower(utterance)
	name := call.Name

	if strings.Contains(q, "remind") && name != "create_reminder" {
		return false
	}
	if strings.Contains(q, "timer") && name == "set_alarm" {
		return false
	}
	if strings.Contains(q, "alarm") && name == "set_timer" {
		return false
	}
	if name == "set_alarm" && strings.Contains(q, "pm") {
		h, ok := numericArg(call.Arguments, "hour")
		if _, present := call.Arguments["hour"]; !present {
			h, ok = 0, true
		}
		if ok && h < 12 {
			return false
		}
	}
	if textWordPattern.MatchString(q) && name != "send_message" {
		return false
	}
	return true
}
