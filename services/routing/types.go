// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package routing turns a user utterance into validated tool invocations.
//
// An on-device intent classifier is tried first for every sub-query. Its
// output is repaired, its arguments are re-derived from the utterance text,
// and each call is validated and sanity-checked against lexical cues. When
// nothing acceptable survives, the sub-query falls back to a cloud model.
//
// Thread Safety:
//
//	All pure helpers in this package are safe for concurrent use. HybridRouter
//	is safe for concurrent use as long as its Classifiers are.
package routing

import (
	"encoding/json"
	"sort"
)

// =============================================================================
// Tool Schemas
// =============================================================================

// ToolParam describes one parameter of a tool.
type ToolParam struct {
	// Type is the JSON Schema type: "string", "integer", "number", "boolean".
	Type string `json:"type"`

	// Description explains the parameter to the model.
	Description string `json:"description,omitempty"`
}

// ToolParameters is the JSON Schema object describing a tool's arguments.
type ToolParameters struct {
	// Type is always "object".
	Type string `json:"type"`

	// Properties maps parameter names to their definitions.
	Properties map[string]ToolParam `json:"properties"`

	// Required lists parameter names that must be provided.
	Required []string `json:"required,omitempty"`

	// Order preserves declaration order of Properties. Not serialized.
	Order []string `json:"-"`
}

// Names returns the parameter names in declaration order.
//
// Falls back to lexical order when no declaration order was recorded.
func (p ToolParameters) Names() []string {
	if len(p.Order) == len(p.Properties) && len(p.Order) > 0 {
		out := make([]string, len(p.Order))
		copy(out, p.Order)
		return out
	}
	names := make([]string, 0, len(p.Properties))
	for name := range p.Properties {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// IsRequired reports whether the named parameter is required.
func (p ToolParameters) IsRequired(name string) bool {
	for _, r := range p.Required {
		if r == name {
			return true
		}
	}
	return false
}

// ToolSpec is a static, named action the router may select.
//
// Thread Safety: Immutable once registered; safe for concurrent reads.
type ToolSpec struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  ToolParameters `json:"parameters"`
}

// =============================================================================
// Conversation
// =============================================================================

// Message roles.
const (
	RoleUser   = "user"
	RoleSystem = "system"
)

// Message is one turn of a conversation. Only the last user message drives
// single-turn routing.
type Message struct {
	Role    string `json:"role" binding:"required,oneof=user system"`
	Content string `json:"content"`
}

// LastUserContent returns the content of the last user message, or "" when
// the conversation holds none. Trailing system turns are skipped.
func LastUserContent(messages []Message) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == RoleUser {
			return messages[i].Content
		}
	}
	return ""
}

// UserTexts returns the content of every user message in order.
func UserTexts(messages []Message) []string {
	texts := make([]string, 0, len(messages))
	for _, m := range messages {
		if m.Role == RoleUser {
			texts = append(texts, m.Content)
		}
	}
	return texts
}

// =============================================================================
// Calls and Results
// =============================================================================

// FunctionCall is a proposed tool invocation.
//
// Argument values are string, int or float64. The call is mutable while it
// moves through repair and slot filling and treated as immutable once
// accepted.
type FunctionCall struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// Clone returns a copy of the call with its own argument map.
func (c FunctionCall) Clone() FunctionCall {
	args := make(map[string]any, len(c.Arguments))
	for k, v := range c.Arguments {
		args[k] = v
	}
	return FunctionCall{Name: c.Name, Arguments: args}
}

// ClassificationResult is the parsed output of one classifier invocation.
type ClassificationResult struct {
	FunctionCalls []FunctionCall `json:"function_calls"`

	// Confidence is in [0,1]. Zero on parse failure or when the backend does
	// not report one.
	Confidence float64 `json:"confidence"`

	// ElapsedMs is the time the backend spent, never negative.
	ElapsedMs float64 `json:"total_time_ms"`
}

// Source is the provenance tag of a routing result.
type Source string

const (
	SourceOnDevice      Source = "on-device"
	SourceCloudFallback Source = "cloud-fallback"
	SourceNone          Source = "none"
)

// RoutingResult is the aggregated outcome of routing one utterance.
type RoutingResult struct {
	FunctionCalls []FunctionCall `json:"function_calls"`
	Source        Source         `json:"source"`

	// Confidence is nil when the answering backend reports none (cloud).
	Confidence *float64 `json:"confidence,omitempty"`

	// TotalTimeMs is the sum of every timed sub-operation actually executed.
	TotalTimeMs float64 `json:"total_time_ms"`

	// TranscriptionTimeMs is set by callers that transcribe audio first.
	TranscriptionTimeMs float64 `json:"transcription_time_ms"`

	// RoutingTimeMs is the wall time of the Route call as seen by the caller.
	RoutingTimeMs float64 `json:"routing_time_ms"`

	Error string `json:"error,omitempty"`

	// SubQueries is the decomposition that was routed. Diagnostic only.
	SubQueries []string `json:"sub_queries,omitempty"`
}

// MarshalIndent renders the result for logs and the CLI.
func (r *RoutingResult) MarshalIndent() string {
	b, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "{}"
	}
	return string(b)
}

func floatPtr(v float64) *float64 {
	return &v
}
