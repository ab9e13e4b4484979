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
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"

	"github.com/AleutianAI/spike/services/routing"
)

// greedyConfidence is reported for Ollama completions. Ollama exposes no
// calibrated score for tool selection; decoding is greedy.
const greedyConfidence = 1.0

// toolCallInstruction is appended to the system prompt when tools are forced.
const toolCallInstruction = `Respond with only a JSON array of function calls, for example ` +
	`[{"name":"set_timer","arguments":{"minutes":5}}]. Use [] when no function applies.`

// contentGenerator is the part of llms.Model the engine uses.
type contentGenerator interface {
	GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error)
}

// OllamaConfig configures an OllamaEngine.
type OllamaConfig struct {
	// BaseURL of the Ollama server, e.g. http://localhost:11434.
	BaseURL string `validate:"required,url"`

	// Model is a locally pulled function-calling model.
	Model string `validate:"required"`
}

// OllamaEngine serves the on-device model from a local Ollama server.
//
// Description:
//
//	Tools are rendered into the system prompt. The model's text is placed
//	verbatim into the function_calls slot of the payload envelope, so a
//	malformed answer is left for the repairer rather than rejected here.
//	Ollama chat requests carry no state between calls; Reset is a no-op.
//
// Thread Safety: Safe for concurrent use, though Handle never needs it.
type OllamaEngine struct {
	llm   contentGenerator
	model string
	now   func() time.Time
}

// NewOllamaEngine creates an engine for cfg.
//
// Outputs:
//
//	*OllamaEngine - The engine. Nil on error.
//	error         - Non-nil if the langchaingo client could not be built.
func NewOllamaEngine(cfg OllamaConfig) (*OllamaEngine, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("ollama engine: model is required")
	}
	opts := []ollama.Option{ollama.WithModel(cfg.Model)}
	if cfg.BaseURL != "" {
		opts = append(opts, ollama.WithServerURL(cfg.BaseURL))
	}
	llm, err := ollama.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("ollama engine: creating client: %w", err)
	}
	return &OllamaEngine{llm: llm, model: cfg.Model, now: time.Now}, nil
}

// Model returns the configured model name.
func (e *OllamaEngine) Model() string {
	return e.model
}

// Reset is a no-op.
func (e *OllamaEngine) Reset(context.Context) error {
	return nil
}

// Close is a no-op.
func (e *OllamaEngine) Close() error {
	return nil
}

// Complete runs one generation and wraps the answer in the payload envelope.
func (e *OllamaEngine) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	content, err := buildContent(req)
	if err != nil {
		return "", err
	}

	opts := []llms.CallOption{llms.WithTemperature(0)}
	if req.MaxTokens > 0 {
		opts = append(opts, llms.WithMaxTokens(req.MaxTokens))
	}
	if len(req.StopSequences) > 0 {
		opts = append(opts, llms.WithStopWords(req.StopSequences))
	}

	start := e.now()
	resp, err := e.llm.GenerateContent(ctx, content, opts...)
	elapsedMs := float64(e.now().Sub(start).Microseconds()) / 1000
	if err != nil {
		return "", fmt.Errorf("ollama engine: generate: %w", err)
	}

	var text string
	if resp != nil && len(resp.Choices) > 0 && resp.Choices[0] != nil {
		text = resp.Choices[0].Content
	}
	return wrapEnvelope(text, elapsedMs), nil
}

// buildContent converts the request into langchaingo messages. Tool specs
// are appended to the first system message, or to a new one.
func buildContent(req CompletionRequest) ([]llms.MessageContent, error) {
	toolText, err := renderTools(req.Tools, req.ForceTools)
	if err != nil {
		return nil, err
	}

	out := make([]llms.MessageContent, 0, len(req.Messages)+1)
	systemDone := false
	for _, m := range req.Messages {
		switch m.Role {
		case routing.RoleSystem:
			text := m.Content
			if !systemDone {
				text += "\n\n" + toolText
				systemDone = true
			}
			out = append(out, llms.TextParts(llms.ChatMessageTypeSystem, text))
		default:
			out = append(out, llms.TextParts(llms.ChatMessageTypeHuman, m.Content))
		}
	}
	if !systemDone {
		out = append([]llms.MessageContent{llms.TextParts(llms.ChatMessageTypeSystem, toolText)}, out...)
	}
	return out, nil
}

// renderTools lists the tool specs as indented JSON.
func renderTools(tools []routing.ToolSpec, force bool) (string, error) {
	if tools == nil {
		tools = []routing.ToolSpec{}
	}
	b, err := json.MarshalIndent(tools, "", "  ")
	if err != nil {
		return "", fmt.Errorf("ollama engine: rendering tools: %w", err)
	}
	text := string(b)
	if force {
		text += "\n\n" + toolCallInstruction
	}
	return text, nil
}

// wrapEnvelope places the model's answer into the classifier payload shape.
func wrapEnvelope(text string, elapsedMs float64) string {
	return fmt.Sprintf(`{"function_calls":%s,"confidence":%g,"total_time_ms":%.3f}`,
		callsBody(text), greedyConfidence, elapsedMs)
}

// callsBody extracts the call list from model text. Code fences are
// removed and a lone object becomes a one-element array.
func callsBody(text string) string {
	t := strings.TrimSpace(text)
	if strings.HasPrefix(t, "```") {
		if nl := strings.IndexByte(t, '\n'); nl >= 0 {
			t = t[nl+1:]
		} else {
			t = strings.TrimPrefix(t, "```")
		}
		t = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(t), "```"))
	}
	switch {
	case t == "":
		return "[]"
	case strings.HasPrefix(t, "{"):
		return "[" + t + "]"
	default:
		return t
	}
}
