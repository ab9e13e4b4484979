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
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/AleutianAI/spike/services/routing"
)

// fakeEngine records the reset/complete sequence and detects overlap.
type fakeEngine struct {
	payload  string
	resetErr error
	complErr error
	delay    time.Duration

	mu       sync.Mutex
	events   []string
	requests []CompletionRequest
	closes   int

	inFlight atomic.Int32
	overlap  atomic.Bool
}

func (f *fakeEngine) Reset(context.Context) error {
	f.mu.Lock()
	f.events = append(f.events, "reset")
	f.mu.Unlock()
	return f.resetErr
}

func (f *fakeEngine) Complete(_ context.Context, req CompletionRequest) (string, error) {
	if f.inFlight.Add(1) > 1 {
		f.overlap.Store(true)
	}
	defer f.inFlight.Add(-1)

	f.mu.Lock()
	f.events = append(f.events, "complete")
	f.requests = append(f.requests, req)
	f.mu.Unlock()

	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	return f.payload, f.complErr
}

func (f *fakeEngine) Close() error {
	f.mu.Lock()
	f.closes++
	f.mu.Unlock()
	return nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func userMsg(text string) []routing.Message {
	return []routing.Message{{Role: routing.RoleUser, Content: text}}
}

func TestHandle_Classify(t *testing.T) {
	eng := &fakeEngine{
		payload: `{"function_calls":[{"name":"set_timer","arguments":{"minutes":5}}],"confidence":0.8,"total_time_ms":42}`,
	}
	h := NewHandle(eng, WithLogger(quietLogger()))

	tools := []routing.ToolSpec{{Name: "set_timer"}}
	res, err := h.Classify(context.Background(), userMsg("timer 5 minutes"), tools)
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if len(res.FunctionCalls) != 1 || res.FunctionCalls[0].Arguments["minutes"] != 5 {
		t.Errorf("calls = %#v", res.FunctionCalls)
	}
	if res.Confidence != 0.8 || res.ElapsedMs != 42 {
		t.Errorf("confidence=%v elapsed=%v", res.Confidence, res.ElapsedMs)
	}

	req := eng.requests[0]
	if len(req.Messages) != 2 || req.Messages[0].Role != routing.RoleSystem || req.Messages[0].Content != SystemPrompt {
		t.Errorf("system prompt not prepended: %#v", req.Messages)
	}
	if !req.ForceTools || req.MaxTokens != DefaultMaxTokens || req.ConfidenceThreshold != DefaultConfidenceThreshold {
		t.Errorf("unexpected request options: %#v", req)
	}
	if len(req.StopSequences) != 2 {
		t.Errorf("stop sequences = %v", req.StopSequences)
	}
	if len(req.Tools) != 1 || req.Tools[0].Name != "set_timer" {
		t.Errorf("tools = %#v", req.Tools)
	}
	if got := eng.events; len(got) != 2 || got[0] != "reset" || got[1] != "complete" {
		t.Errorf("events = %v, want [reset complete]", got)
	}
	if h.Backend() != routing.BackendOnDevice {
		t.Errorf("backend = %s", h.Backend())
	}
}

func TestHandle_MalformedPayloadRepaired(t *testing.T) {
	eng := &fakeEngine{
		payload: `{"function_calls":[{"name"："set_alarm","arguments":{"hour":07,"minute":00}}],"confidence":0.6}`,
	}
	h := NewHandle(eng, WithLogger(quietLogger()))

	res, err := h.Classify(context.Background(), userMsg("alarm at 7"), nil)
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if len(res.FunctionCalls) != 1 {
		t.Fatalf("calls = %#v", res.FunctionCalls)
	}
	args := res.FunctionCalls[0].Arguments
	if args["hour"] != 7 || args["minute"] != 0 {
		t.Errorf("args = %#v", args)
	}
}

func TestHandle_FailuresBecomeEmptyResults(t *testing.T) {
	tests := []struct {
		name string
		eng  *fakeEngine
	}{
		{"garbage payload", &fakeEngine{payload: "I think you want a timer"}},
		{"reset error", &fakeEngine{resetErr: errors.New("reset failed")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHandle(tt.eng, WithLogger(quietLogger()))
			res, err := h.Classify(context.Background(), userMsg("hello"), nil)
			if err != nil {
				t.Fatalf("Classify returned error: %v", err)
			}
			if res == nil || res.FunctionCalls == nil || len(res.FunctionCalls) != 0 {
				t.Errorf("result = %#v, want empty", res)
			}
			if res.Confidence != 0 || res.ElapsedMs != 0 {
				t.Errorf("confidence=%v elapsed=%v, want zeros", res.Confidence, res.ElapsedMs)
			}
		})
	}
}

func TestHandle_CompletionErrorKeepsElapsed(t *testing.T) {
	eng := &fakeEngine{complErr: errors.New("model not loaded"), delay: 5 * time.Millisecond}
	h := NewHandle(eng, WithLogger(quietLogger()))

	res, err := h.Classify(context.Background(), userMsg("hello"), nil)
	if err != nil {
		t.Fatalf("Classify returned error: %v", err)
	}
	if res == nil || res.FunctionCalls == nil || len(res.FunctionCalls) != 0 {
		t.Fatalf("result = %#v, want empty", res)
	}
	if res.Confidence != 0 {
		t.Errorf("confidence = %v, want 0", res.Confidence)
	}
	if res.ElapsedMs < 5 {
		t.Errorf("elapsed = %v, want at least 5ms of failed completion", res.ElapsedMs)
	}
}

func TestHandle_SerializesEngineAccess(t *testing.T) {
	eng := &fakeEngine{
		payload: `{"function_calls":[],"confidence":0.5,"total_time_ms":1}`,
		delay:   2 * time.Millisecond,
	}
	h := NewHandle(eng, WithLogger(quietLogger()))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := h.Classify(context.Background(), userMsg("x"), nil); err != nil {
				t.Errorf("Classify: %v", err)
			}
		}()
	}
	wg.Wait()

	if eng.overlap.Load() {
		t.Error("engine was called concurrently")
	}
	eng.mu.Lock()
	defer eng.mu.Unlock()
	if len(eng.events) != 16 {
		t.Fatalf("events = %d, want 16", len(eng.events))
	}
	for i := 0; i < len(eng.events); i += 2 {
		if eng.events[i] != "reset" || eng.events[i+1] != "complete" {
			t.Fatalf("events[%d:%d] = %v, want reset then complete", i, i+2, eng.events[i:i+2])
		}
	}
}

func TestHandle_CancelledContext(t *testing.T) {
	eng := &fakeEngine{payload: `{"function_calls":[]}`}
	h := NewHandle(eng, WithLogger(quietLogger()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := h.Classify(ctx, userMsg("x"), nil); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
	if len(eng.events) != 0 {
		t.Errorf("engine used despite cancelled context: %v", eng.events)
	}
}

func TestHandle_Close(t *testing.T) {
	eng := &fakeEngine{payload: `{"function_calls":[]}`}
	h := NewHandle(eng, WithLogger(quietLogger()))

	if err := h.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := h.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if eng.closes != 1 {
		t.Errorf("engine closed %d times, want 1", eng.closes)
	}
	if _, err := h.Classify(context.Background(), userMsg("x"), nil); !errors.Is(err, ErrHandleClosed) {
		t.Errorf("err = %v, want ErrHandleClosed", err)
	}
}

func TestHandle_WithMaxTokens(t *testing.T) {
	eng := &fakeEngine{payload: `{"function_calls":[]}`}
	h := NewHandle(eng, WithMaxTokens(64), WithLogger(quietLogger()))
	if _, err := h.Classify(context.Background(), userMsg("x"), nil); err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if eng.requests[0].MaxTokens != 64 {
		t.Errorf("MaxTokens = %d, want 64", eng.requests[0].MaxTokens)
	}
}
