// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ondevice

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/tmc/langchaingo/llms"

	"github.com/AleutianAI/spike/services/routing"
)

type fakeGenerator struct {
	answer   string
	err      error
	messages []llms.MessageContent
	opts     llms.CallOptions
}

func (f *fakeGenerator) GenerateContent(_ context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	f.messages = messages
	for _, opt := range options {
		opt(&f.opts)
	}
	if f.err != nil {
		return nil, f.err
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: f.answer}}}, nil
}

// steppingClock advances by step on every call.
func steppingClock(step time.Duration) func() time.Time {
	t := time.Unix(0, 0)
	return func() time.Time {
		t = t.Add(step)
		return t
	}
}

func textOf(t *testing.T, m llms.MessageContent) string {
	t.Helper()
	if len(m.Parts) != 1 {
		t.Fatalf("parts = %d, want 1", len(m.Parts))
	}
	tc, ok := m.Parts[0].(llms.TextContent)
	if !ok {
		t.Fatalf("part is %T, want llms.TextContent", m.Parts[0])
	}
	return tc.Text
}

func TestOllamaEngine_Complete(t *testing.T) {
	gen := &fakeGenerator{answer: `[{"name":"set_timer","arguments":{"minutes":5}}]`}
	eng := &OllamaEngine{llm: gen, model: "functiongemma", now: steppingClock(25 * time.Millisecond)}

	req := CompletionRequest{
		Messages: []routing.Message{
			{Role: routing.RoleSystem, Content: SystemPrompt},
			{Role: routing.RoleUser, Content: "set a timer for 5 minutes"},
		},
		Tools:         []routing.ToolSpec{{Name: "set_timer", Description: "Set a countdown timer"}},
		ForceTools:    true,
		MaxTokens:     256,
		StopSequences: DefaultStopSequences,
	}
	raw, err := eng.Complete(context.Background(), req)
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}

	res, outcome := routing.ParseClassification(raw)
	if outcome != routing.ParseStrict {
		t.Fatalf("outcome = %s for payload %s", outcome, raw)
	}
	if len(res.FunctionCalls) != 1 || res.FunctionCalls[0].Arguments["minutes"] != 5 {
		t.Errorf("calls = %#v", res.FunctionCalls)
	}
	if res.Confidence != greedyConfidence {
		t.Errorf("confidence = %v", res.Confidence)
	}
	if res.ElapsedMs != 25 {
		t.Errorf("elapsed = %v, want 25", res.ElapsedMs)
	}

	if len(gen.messages) != 2 {
		t.Fatalf("messages = %d, want 2", len(gen.messages))
	}
	if gen.messages[0].Role != llms.ChatMessageTypeSystem || gen.messages[1].Role != llms.ChatMessageTypeHuman {
		t.Errorf("roles = %s, %s", gen.messages[0].Role, gen.messages[1].Role)
	}
	system := textOf(t, gen.messages[0])
	if !strings.HasPrefix(system, SystemPrompt) || !strings.Contains(system, `"set_timer"`) || !strings.Contains(system, toolCallInstruction) {
		t.Errorf("system prompt missing tools or instruction:\n%s", system)
	}
	if gen.opts.MaxTokens != 256 || len(gen.opts.StopWords) != 2 || gen.opts.Temperature != 0 {
		t.Errorf("call options = %+v", gen.opts)
	}
}

func TestOllamaEngine_NoSystemMessage(t *testing.T) {
	gen := &fakeGenerator{answer: "[]"}
	eng := &OllamaEngine{llm: gen, now: time.Now}

	_, err := eng.Complete(context.Background(), CompletionRequest{
		Messages: []routing.Message{{Role: routing.RoleUser, Content: "hi"}},
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if len(gen.messages) != 2 || gen.messages[0].Role != llms.ChatMessageTypeSystem {
		t.Fatalf("expected a synthesized system message, got %d messages", len(gen.messages))
	}
	if strings.Contains(textOf(t, gen.messages[0]), toolCallInstruction) {
		t.Error("instruction added without ForceTools")
	}
}

func TestOllamaEngine_GenerateError(t *testing.T) {
	eng := &OllamaEngine{llm: &fakeGenerator{err: errors.New("connection refused")}, now: time.Now}
	if _, err := eng.Complete(context.Background(), CompletionRequest{}); err == nil {
		t.Fatal("expected error")
	}
}

func TestCallsBody(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", "[]"},
		{"  [] ", "[]"},
		{`{"name":"x","arguments":{}}`, `[{"name":"x","arguments":{}}]`},
		{"```json\n[{\"name\":\"x\"}]\n```", `[{"name":"x"}]`},
		{"not json", "not json"},
	}
	for _, tt := range tests {
		if got := callsBody(tt.in); got != tt.want {
			t.Errorf("callsBody(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestWrapEnvelope_MalformedTextReachesRepairer(t *testing.T) {
	raw := wrapEnvelope(`[{"name":"set_alarm","arguments":{"hour":07,"minute":30}}]`, 12)
	res, outcome := routing.ParseClassification(raw)
	if outcome != routing.ParseRepaired {
		t.Fatalf("outcome = %s, want repaired", outcome)
	}
	if res.FunctionCalls[0].Arguments["hour"] != 7 {
		t.Errorf("hour = %#v", res.FunctionCalls[0].Arguments["hour"])
	}
}

func TestNewOllamaEngine_RequiresModel(t *testing.T) {
	if _, err := NewOllamaEngine(OllamaConfig{BaseURL: "http://localhost:11434"}); err == nil {
		t.Fatal("expected error for missing model")
	}
}
