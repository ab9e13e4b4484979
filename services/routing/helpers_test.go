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
	"context"
	"sync"
	"testing"
)

// assistantTools is the tool set used across router tests.
func assistantTools() []ToolSpec {
	str := func(desc string) ToolParam { return ToolParam{Type: "string", Description: desc} }
	integer := func(desc string) ToolParam { return ToolParam{Type: "integer", Description: desc} }
	return []ToolSpec{
		{Name: "get_weather", Description: "Get current weather for a location", Parameters: ToolParameters{
			Properties: map[string]ToolParam{"location": str("City name")}, Required: []string{"location"},
		}},
		{Name: "set_alarm", Description: "Set an alarm for a given time", Parameters: ToolParameters{
			Properties: map[string]ToolParam{"hour": integer("Hour"), "minute": integer("Minute")},
			Required:   []string{"hour", "minute"},
			Order:      []string{"hour", "minute"},
		}},
		{Name: "set_timer", Description: "Set a countdown timer", Parameters: ToolParameters{
			Properties: map[string]ToolParam{"minutes": integer("Minutes")}, Required: []string{"minutes"},
		}},
		{Name: "create_reminder", Description: "Create a reminder", Parameters: ToolParameters{
			Properties: map[string]ToolParam{"title": str("Title"), "time": str("Time")},
			Required:   []string{"title", "time"},
			Order:      []string{"title", "time"},
		}},
		{Name: "send_message", Description: "Send a message to a contact", Parameters: ToolParameters{
			Properties: map[string]ToolParam{"recipient": str("Recipient"), "message": str("Message")},
			Required:   []string{"recipient", "message"},
			Order:      []string{"recipient", "message"},
		}},
		{Name: "search_contacts", Description: "Search contacts", Parameters: ToolParameters{
			Properties: map[string]ToolParam{"query": str("Name")}, Required: []string{"query"},
		}},
		{Name: "play_music", Description: "Play a song or playlist", Parameters: ToolParameters{
			Properties: map[string]ToolParam{"song": str("Song")}, Required: []string{"song"},
		}},
		{Name: "keyboard_shortcut", Description: "Press a key", Parameters: ToolParameters{
			Properties: map[string]ToolParam{"keys": str("Key")}, Required: []string{"keys"},
		}},
	}
}

func testRegistry(t *testing.T) *ToolRegistry {
	t.Helper()
	reg, err := NewToolRegistry(assistantTools(), DefaultDescriptionOverrides)
	if err != nil {
		t.Fatalf("NewToolRegistry: %v", err)
	}
	return reg
}

func userMessages(text string) []Message {
	return []Message{{Role: RoleUser, Content: text}}
}

// scriptedClassifier answers by sub-query text and records what it saw.
type scriptedClassifier struct {
	kind    Backend
	answers map[string]*ClassificationResult
	errFor  map[string]error

	mu    sync.Mutex
	calls []string
	tools [][]ToolSpec
}

func newScripted(kind Backend) *scriptedClassifier {
	return &scriptedClassifier{
		kind:    kind,
		answers: map[string]*ClassificationResult{},
		errFor:  map[string]error{},
	}
}

func (s *scriptedClassifier) on(text string, elapsedMs, confidence float64, calls ...FunctionCall) *scriptedClassifier {
	if calls == nil {
		calls = []FunctionCall{}
	}
	s.answers[text] = &ClassificationResult{FunctionCalls: calls, Confidence: confidence, ElapsedMs: elapsedMs}
	return s
}

func (s *scriptedClassifier) Classify(_ context.Context, messages []Message, tools []ToolSpec) (*ClassificationResult, error) {
	text := LastUserContent(messages)
	s.mu.Lock()
	s.calls = append(s.calls, text)
	s.tools = append(s.tools, tools)
	s.mu.Unlock()

	if err, ok := s.errFor[text]; ok {
		return nil, err
	}
	if res, ok := s.answers[text]; ok {
		out := *res
		out.FunctionCalls = append([]FunctionCall(nil), res.FunctionCalls...)
		return &out, nil
	}
	return &ClassificationResult{FunctionCalls: []FunctionCall{}}, nil
}

func (s *scriptedClassifier) Backend() Backend { return s.kind }

func (s *scriptedClassifier) seen() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

func call(name string, kv ...any) FunctionCall {
	args := map[string]any{}
	for i := 0; i+1 < len(kv); i += 2 {
		args[kv[i].(string)] = kv[i+1]
	}
	return FunctionCall{Name: name, Arguments: args}
}
