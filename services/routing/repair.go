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
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"regexp"
	"strings"
)

// =============================================================================
// Payload Repair
// =============================================================================

var (
	// leadingZeroPattern matches zero-padded bare numbers after a colon,
	// e.g. "minute":05.
	leadingZeroPattern = regexp.MustCompile(`:\s*0+(\d+)`)
)

const (
	fullWidthColon = "："
	escapeMarker   = "<escape>"
)

// RepairPayload applies literal fix-ups to a classifier payload that failed
// strict parsing.
//
// Description:
//
//	Applied in order:
//	  1. Strip zero padding from bare numbers after a colon (01 -> 1).
//	  2. Replace the full-width colon with an ASCII colon.
//	  3. Remove the <escape> marker token.
//
//	This is text substitution, not reparsing. Quoted values containing
//	":0N" are rewritten too; the repairer only runs after strict parsing has
//	already failed.
//
// Thread Safety: Stateless. Safe for concurrent use.
func RepairPayload(raw string) string {
	if raw == "" {
		return raw
	}
	out := leadingZeroPattern.ReplaceAllString(raw, ":$1")
	out = strings.ReplaceAll(out, fullWidthColon, ":")
	out = strings.ReplaceAll(out, escapeMarker, "")
	return out
}

// =============================================================================
// Payload Parsing
// =============================================================================

// ParseOutcome records how a classifier payload was recovered.
type ParseOutcome string

const (
	ParseStrict   ParseOutcome = "strict"
	ParseRepaired ParseOutcome = "repaired"
	ParseFailed   ParseOutcome = "failed"
)

// wirePayload is the classifier payload wire shape.
type wirePayload struct {
	FunctionCalls []wireCall `json:"function_calls"`
	Confidence    float64    `json:"confidence"`
	TotalTimeMs   float64    `json:"total_time_ms"`
}

type wireCall struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// ParseClassification parses a raw classifier payload.
//
// Description:
//
//	Tries strict JSON first. On failure, repairs the text once and retries.
//	If that fails too the classification is a total failure: no calls,
//	confidence 0, elapsed 0. Parse failures are never returned as errors.
//	Arguments of parsed calls are normalized with NormalizeArguments.
//
// Inputs:
//
//	raw - The payload string produced by the classifier.
//
// Outputs:
//
//	ClassificationResult - The parsed result. FunctionCalls is never nil.
//	ParseOutcome         - How the payload was recovered.
//
// Thread Safety: Stateless. Safe for concurrent use.
func ParseClassification(raw string) (ClassificationResult, ParseOutcome) {
	if p, err := decodePayload(raw); err == nil {
		return p.toResult(), ParseStrict
	}
	if p, err := decodePayload(RepairPayload(raw)); err == nil {
		return p.toResult(), ParseRepaired
	}
	return ClassificationResult{FunctionCalls: []FunctionCall{}}, ParseFailed
}

func decodePayload(raw string) (*wirePayload, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, fmt.Errorf("empty payload")
	}
	dec := json.NewDecoder(strings.NewReader(trimmed))
	var p wirePayload
	if err := dec.Decode(&p); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, fmt.Errorf("trailing data after payload")
	}
	return &p, nil
}

func (p *wirePayload) toResult() ClassificationResult {
	res := ClassificationResult{
		FunctionCalls: make([]FunctionCall, 0, len(p.FunctionCalls)),
		Confidence:    clamp01(p.Confidence),
		ElapsedMs:     math.Max(0, p.TotalTimeMs),
	}
	for _, wc := range p.FunctionCalls {
		call := FunctionCall{Name: wc.Name, Arguments: decodeArguments(wc.Arguments)}
		NormalizeArguments(&call)
		res.FunctionCalls = append(res.FunctionCalls, call)
	}
	return res
}

// decodeArguments accepts an argument object, or an object encoded as a
// JSON string. Anything else yields an empty map.
func decodeArguments(raw json.RawMessage) map[string]any {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return map[string]any{}
	}
	if raw[0] == '"' {
		var inner string
		if err := json.Unmarshal(raw, &inner); err != nil {
			return map[string]any{}
		}
		raw = []byte(inner)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var args map[string]any
	if err := dec.Decode(&args); err != nil || args == nil {
		return map[string]any{}
	}
	for k, v := range args {
		args[k] = NormalizeValue(v)
	}
	return args
}

// NormalizeValue maps numbers to int when integral and float64 otherwise.
// Other values are returned unchanged. Backends that decode arguments
// themselves use it to match the classifier payload's value types.
func NormalizeValue(v any) any {
	switch n := v.(type) {
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return int(i)
		}
		if f, err := n.Float64(); err == nil {
			return NormalizeValue(f)
		}
		return n.String()
	case float64:
		if n == math.Trunc(n) && math.Abs(n) < 1<<53 {
			return int(n)
		}
		return n
	case float32:
		return NormalizeValue(float64(n))
	case int64:
		return int(n)
	case int32:
		return int(n)
	default:
		return v
	}
}

func clamp01(v float64) float64 {
	switch {
	case math.IsNaN(v) || v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
