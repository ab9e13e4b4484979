// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package cloud

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"github.com/AleutianAI/spike/services/routing"
)

type fakeModels struct {
	resp     *genai.GenerateContentResponse
	err      error
	model    string
	contents []*genai.Content
	config   *genai.GenerateContentConfig
	calls    int
}

func (f *fakeModels) GenerateContent(_ context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	f.calls++
	f.model = model
	f.contents = contents
	f.config = config
	return f.resp, f.err
}

func callResponse(calls ...*genai.FunctionCall) *genai.GenerateContentResponse {
	parts := make([]*genai.Part, 0, len(calls))
	for _, c := range calls {
		parts = append(parts, &genai.Part{FunctionCall: c})
	}
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{Content: &genai.Content{Role: "model", Parts: parts}}},
	}
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func fixedStepClock(step time.Duration) func() time.Time {
	t := time.Unix(0, 0)
	return func() time.Time {
		t = t.Add(step)
		return t
	}
}

func weatherTool() routing.ToolSpec {
	return routing.ToolSpec{
		Name:        "get_weather",
		Description: "Get current weather for a location",
		Parameters: routing.ToolParameters{
			Type:       "object",
			Properties: map[string]routing.ToolParam{"location": {Type: "string", Description: "City name"}},
			Required:   []string{"location"},
		},
	}
}

func TestGeminiOracle_Classify(t *testing.T) {
	fake := &fakeModels{resp: callResponse(
		&genai.FunctionCall{Name: "get_weather", Args: map[string]any{"location": "Paris"}},
		&genai.FunctionCall{Name: "set_timer", Args: map[string]any{"minutes": float64(5), "ratio": 0.5}},
	)}
	o := newGeminiOracle(fake, GeminiConfig{}, WithLogger(quietLogger()))
	o.now = fixedStepClock(300 * time.Millisecond)

	msgs := []routing.Message{
		{Role: routing.RoleSystem, Content: "ignored"},
		{Role: routing.RoleUser, Content: "weather in Paris and a 5 minute timer"},
	}
	res, err := o.Classify(context.Background(), msgs, []routing.ToolSpec{weatherTool()})
	require.NoError(t, err)

	assert.Equal(t, DefaultModel, fake.model)
	require.Len(t, fake.contents, 1)
	require.Len(t, fake.contents[0].Parts, 1, "only user turns are sent")
	assert.Equal(t, "weather in Paris and a 5 minute timer", fake.contents[0].Parts[0].Text)

	require.Len(t, res.FunctionCalls, 2)
	assert.Equal(t, "Paris", res.FunctionCalls[0].Arguments["location"])
	assert.Equal(t, 5, res.FunctionCalls[1].Arguments["minutes"], "integral numbers become int")
	assert.Equal(t, 0.5, res.FunctionCalls[1].Arguments["ratio"])
	assert.Equal(t, 300.0, res.ElapsedMs)
	assert.Zero(t, res.Confidence)
	assert.Equal(t, routing.BackendCloud, o.Backend())
}

func TestGeminiOracle_Error(t *testing.T) {
	fake := &fakeModels{err: errors.New("429 quota exceeded")}
	o := newGeminiOracle(fake, GeminiConfig{Model: "gemini-x"}, WithLogger(quietLogger()))
	o.now = fixedStepClock(50 * time.Millisecond)

	res, err := o.Complete(context.Background(), []string{"hi"}, nil)
	require.Error(t, err)
	require.NotNil(t, res)
	assert.Equal(t, 50.0, res.ElapsedMs, "elapsed time is reported on failure")
	assert.Empty(t, res.FunctionCalls)
	assert.Equal(t, "gemini-x", fake.model)
	assert.Equal(t, 1, fake.calls, "no retry")
}

func TestGeminiOracle_NoUserContent(t *testing.T) {
	fake := &fakeModels{}
	o := newGeminiOracle(fake, GeminiConfig{}, WithLogger(quietLogger()))

	_, err := o.Classify(context.Background(), []routing.Message{{Role: routing.RoleSystem, Content: "x"}}, nil)
	assert.ErrorIs(t, err, ErrNoUserContent)
	assert.Zero(t, fake.calls)
}

func TestGeminiOracle_RateLimiterHonoursContext(t *testing.T) {
	fake := &fakeModels{resp: callResponse()}
	o := newGeminiOracle(fake, GeminiConfig{QPS: 0.001, Burst: 1}, WithLogger(quietLogger()))

	_, err := o.Complete(context.Background(), []string{"first"}, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = o.Complete(ctx, []string{"second"}, nil)
	require.Error(t, err)
	assert.Equal(t, 1, fake.calls, "second call must not reach the API")
}

func TestNewLimiter(t *testing.T) {
	assert.Nil(t, newLimiter(0, 5))
	l := newLimiter(2, 0)
	require.NotNil(t, l)
	assert.Equal(t, 1, l.Burst())
}

func TestToGeminiTools(t *testing.T) {
	assert.Nil(t, ToGeminiTools(nil))

	tools := ToGeminiTools([]routing.ToolSpec{weatherTool()})
	require.Len(t, tools, 1)
	require.Len(t, tools[0].FunctionDeclarations, 1)

	decl := tools[0].FunctionDeclarations[0]
	assert.Equal(t, "get_weather", decl.Name)
	assert.Equal(t, "Get current weather for a location", decl.Description)
	assert.Equal(t, genai.TypeObject, decl.Parameters.Type)
	assert.Equal(t, genai.TypeString, decl.Parameters.Properties["location"].Type)
	assert.Equal(t, "City name", decl.Parameters.Properties["location"].Description)
	assert.Equal(t, []string{"location"}, decl.Parameters.Required)
}

func TestFunctionCallsFrom(t *testing.T) {
	assert.Empty(t, FunctionCallsFrom(nil))

	resp := &genai.GenerateContentResponse{Candidates: []*genai.Candidate{
		{Content: &genai.Content{Parts: []*genai.Part{{Text: "sure"}, {FunctionCall: &genai.FunctionCall{Name: "a"}}}}},
		nil,
		{Content: nil},
		{Content: &genai.Content{Parts: []*genai.Part{{FunctionCall: &genai.FunctionCall{Name: "b", Args: map[string]any{"n": 2.0}}}}}},
	}}
	calls := FunctionCallsFrom(resp)
	require.Len(t, calls, 2)
	assert.Equal(t, "a", calls[0].Name)
	assert.NotNil(t, calls[0].Arguments)
	assert.Equal(t, 2, calls[1].Arguments["n"])
}

func TestGeminiTranscriber(t *testing.T) {
	fake := &fakeModels{resp: &genai.GenerateContentResponse{Candidates: []*genai.Candidate{
		{Content: &genai.Content{Parts: []*genai.Part{{Text: "  open safari and type hello \n"}}}},
	}}}
	tr := newGeminiTranscriber(fake, GeminiConfig{}, quietLogger())

	text, err := tr.Transcribe(context.Background(), []byte("RIFF...."), "")
	require.NoError(t, err)
	assert.Equal(t, "open safari and type hello", text)

	require.Len(t, fake.contents, 1)
	require.Len(t, fake.contents[0].Parts, 2)
	require.NotNil(t, fake.contents[0].Parts[1].InlineData)
	assert.Equal(t, DefaultAudioMIME, fake.contents[0].Parts[1].InlineData.MIMEType)
}

func TestGeminiTranscriber_EmptyAudio(t *testing.T) {
	fake := &fakeModels{}
	tr := newGeminiTranscriber(fake, GeminiConfig{}, quietLogger())

	text, err := tr.Transcribe(context.Background(), nil, "audio/wav")
	require.NoError(t, err)
	assert.Empty(t, text)
	assert.Zero(t, fake.calls)
}

func TestGeminiTranscriber_Error(t *testing.T) {
	fake := &fakeModels{err: errors.New("unavailable")}
	tr := newGeminiTranscriber(fake, GeminiConfig{}, quietLogger())

	_, err := tr.Transcribe(context.Background(), []byte("x"), "audio/m4a")
	assert.Error(t, err)
}
