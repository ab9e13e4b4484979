// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package cloud provides the cloud fallback classifier and transcriber,
// both backed by the Gemini API.
package cloud

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"
	"google.golang.org/genai"

	"github.com/AleutianAI/spike/services/redact"
	"github.com/AleutianAI/spike/services/routing"
)

// DefaultModel is the Gemini model used when none is configured.
const DefaultModel = "gemini-2.5-flash"

// ErrNoUserContent is returned when a conversation has no user message.
var ErrNoUserContent = errors.New("cloud: conversation has no user content")

var cloudTracer = otel.Tracer("spike.cloud")

// contentGenerator is the part of genai.Models the oracle uses.
type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// GeminiConfig configures the cloud oracle and transcriber.
type GeminiConfig struct {
	// APIKey authenticates against the Gemini API.
	APIKey string `validate:"required"`

	// Model defaults to DefaultModel.
	Model string

	// QPS caps outbound requests per second. Zero disables the limit.
	QPS float64 `validate:"gte=0"`

	// Burst is the limiter bucket size. Defaults to 1.
	Burst int `validate:"gte=0"`
}

// NewClient creates the genai client shared by the oracle and transcriber.
func NewClient(ctx context.Context, cfg GeminiConfig) (*genai.Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("cloud: Gemini API key is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("cloud: creating Gemini client: %w", err)
	}
	return client, nil
}

// =============================================================================
// GeminiOracle
// =============================================================================

// GeminiOracle is the cloud fallback classifier.
//
// Description:
//
//	Sends the user turns of a conversation to Gemini with the tool specs as
//	function declarations and collects every function call in the answer.
//	Wall time is measured around the limiter wait and the remote call.
//	Failures are returned to the caller and never retried here.
//
// Thread Safety: Safe for concurrent use.
type GeminiOracle struct {
	models  contentGenerator
	model   string
	limiter *rate.Limiter
	logger  *slog.Logger
	now     func() time.Time
}

// OracleOption configures a GeminiOracle.
type OracleOption func(*GeminiOracle)

// WithLogger sets the oracle's logger.
func WithLogger(logger *slog.Logger) OracleOption {
	return func(o *GeminiOracle) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// NewGeminiOracle creates an oracle on top of client.
//
// Inputs:
//
//	client - A genai client. Must not be nil.
//	cfg    - Model and rate settings. APIKey is not read here.
//	opts   - Optional settings.
//
// Outputs:
//
//	*GeminiOracle - The oracle. Never nil.
func NewGeminiOracle(client *genai.Client, cfg GeminiConfig, opts ...OracleOption) *GeminiOracle {
	return newGeminiOracle(client.Models, cfg, opts...)
}

func newGeminiOracle(models contentGenerator, cfg GeminiConfig, opts ...OracleOption) *GeminiOracle {
	o := &GeminiOracle{
		models:  models,
		model:   cfg.Model,
		limiter: newLimiter(cfg.QPS, cfg.Burst),
		logger:  slog.Default(),
		now:     time.Now,
	}
	if o.model == "" {
		o.model = DefaultModel
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func newLimiter(qps float64, burst int) *rate.Limiter {
	if qps <= 0 {
		return nil
	}
	if burst <= 0 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(qps), burst)
}

// Backend reports routing.BackendCloud.
func (o *GeminiOracle) Backend() routing.Backend {
	return routing.BackendCloud
}

// Classify implements routing.Classifier using the user turns of messages.
func (o *GeminiOracle) Classify(ctx context.Context, messages []routing.Message, tools []routing.ToolSpec) (*routing.ClassificationResult, error) {
	return o.Complete(ctx, routing.UserTexts(messages), tools)
}

// Complete asks Gemini for function calls.
//
// Inputs:
//
//	ctx       - Bounds the limiter wait and the remote call.
//	userTexts - User turns, sent as the parts of one user content.
//	tools     - Tool specs, sent with their original descriptions.
//
// Outputs:
//
//	*routing.ClassificationResult - Calls and elapsed time. Confidence is
//	                                always 0. Non-nil with the elapsed
//	                                time even when err is non-nil.
//	error                         - Non-nil when the call failed.
//
// Thread Safety: Safe for concurrent use.
func (o *GeminiOracle) Complete(ctx context.Context, userTexts []string, tools []routing.ToolSpec) (*routing.ClassificationResult, error) {
	ctx, span := cloudTracer.Start(ctx, "cloud.GeminiOracle.Complete",
		trace.WithAttributes(
			attribute.String("model", o.model),
			attribute.Int("user_turns", len(userTexts)),
			attribute.Int("tool_count", len(tools)),
		),
	)
	defer span.End()

	res := &routing.ClassificationResult{FunctionCalls: []routing.FunctionCall{}}
	if len(userTexts) == 0 {
		return res, ErrNoUserContent
	}

	start := o.now()
	fail := func(outcome string, err error) (*routing.ClassificationResult, error) {
		res.ElapsedMs = msSince(start, o.now())
		cloudRequestsTotal.WithLabelValues(outcome).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
		o.logger.Warn("cloud classification failed",
			slog.String("model", o.model),
			slog.String("outcome", outcome),
			slog.String("error", redact.Error(err)),
		)
		return res, err
	}

	if o.limiter != nil {
		waitStart := time.Now()
		if err := o.limiter.Wait(ctx); err != nil {
			return fail("rate_limited", fmt.Errorf("cloud: waiting for rate limiter: %w", err))
		}
		limiterWaitSeconds.Observe(time.Since(waitStart).Seconds())
	}

	parts := make([]*genai.Part, 0, len(userTexts))
	for _, text := range userTexts {
		parts = append(parts, genai.NewPartFromText(text))
	}
	contents := []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}

	config := &genai.GenerateContentConfig{Tools: ToGeminiTools(tools)}
	resp, err := o.models.GenerateContent(ctx, o.model, contents, config)
	if err != nil {
		return fail("error", fmt.Errorf("cloud: Gemini generate: %w", err))
	}

	res.FunctionCalls = FunctionCallsFrom(resp)
	res.ElapsedMs = msSince(start, o.now())

	cloudRequestsTotal.WithLabelValues("ok").Inc()
	cloudLatencySeconds.Observe(res.ElapsedMs / 1000)
	span.SetAttributes(
		attribute.Int("function_calls", len(res.FunctionCalls)),
		attribute.Float64("elapsed_ms", res.ElapsedMs),
	)
	o.logger.Debug("cloud classification",
		slog.String("model", o.model),
		slog.Int("function_calls", len(res.FunctionCalls)),
		slog.Float64("elapsed_ms", res.ElapsedMs),
	)
	return res, nil
}

// =============================================================================
// Conversion Helpers
// =============================================================================

// ToGeminiTools converts tool specs into one genai.Tool of function
// declarations. Parameter types are upper-cased into genai.Type values.
func ToGeminiTools(tools []routing.ToolSpec) []*genai.Tool {
	if len(tools) == 0 {
		return nil
	}
	decls := make([]*genai.FunctionDeclaration, 0, len(tools))
	for _, t := range tools {
		props := make(map[string]*genai.Schema, len(t.Parameters.Properties))
		for name, p := range t.Parameters.Properties {
			props[name] = &genai.Schema{
				Type:        genai.Type(strings.ToUpper(p.Type)),
				Description: p.Description,
			}
		}
		decls = append(decls, &genai.FunctionDeclaration{
			Name:        t.Name,
			Description: t.Description,
			Parameters: &genai.Schema{
				Type:       genai.TypeObject,
				Properties: props,
				Required:   t.Parameters.Required,
			},
		})
	}
	return []*genai.Tool{{FunctionDeclarations: decls}}
}

// FunctionCallsFrom collects function calls from every candidate of resp.
// Integral numbers become int.
func FunctionCallsFrom(resp *genai.GenerateContentResponse) []routing.FunctionCall {
	calls := []routing.FunctionCall{}
	if resp == nil {
		return calls
	}
	for _, cand := range resp.Candidates {
		if cand == nil || cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if part == nil || part.FunctionCall == nil {
				continue
			}
			args := make(map[string]any, len(part.FunctionCall.Args))
			for k, v := range part.FunctionCall.Args {
				args[k] = routing.NormalizeValue(v)
			}
			calls = append(calls, routing.FunctionCall{Name: part.FunctionCall.Name, Arguments: args})
		}
	}
	return calls
}

func msSince(start, end time.Time) float64 {
	return float64(end.Sub(start).Microseconds()) / 1000
}
