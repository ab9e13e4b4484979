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
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/semaphore"

	"github.com/AleutianAI/spike/services/redact"
	"github.com/AleutianAI/spike/services/routing"
)

// SystemPrompt is prepended to every on-device conversation.
const SystemPrompt = "You are a model that can do function calling with the following functions"

const (
	// DefaultMaxTokens bounds the generated payload.
	DefaultMaxTokens = 256

	// DefaultConfidenceThreshold is passed to the runtime unchanged.
	DefaultConfidenceThreshold = 0.1
)

// DefaultStopSequences end generation at the model's turn markers.
var DefaultStopSequences = []string{"<|im_end|>", "<end_of_turn>"}

// ErrHandleClosed is returned by Classify after Close.
var ErrHandleClosed = errors.New("on-device handle is closed")

var handleTracer = otel.Tracer("spike.ondevice")

// Handle is the injected, lifecycle-scoped on-device classifier.
//
// Description:
//
//	Each Classify acquires exclusive use of the engine, resets it, runs one
//	completion, and releases it. The raw payload is parsed with
//	routing.ParseClassification, so malformed output is repaired or becomes
//	an empty result. Engine failures are logged and also become an empty
//	result, which sends the sub-query to the cloud.
//
// Thread Safety: Safe for concurrent use. Requests queue on the semaphore.
type Handle struct {
	engine    Engine
	sem       *semaphore.Weighted
	logger    *slog.Logger
	maxTokens int
	stop      []string
	threshold float64
	closed    bool
}

// HandleOption configures a Handle.
type HandleOption func(*Handle)

// WithLogger sets the handle's logger.
func WithLogger(logger *slog.Logger) HandleOption {
	return func(h *Handle) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// WithMaxTokens overrides DefaultMaxTokens.
func WithMaxTokens(n int) HandleOption {
	return func(h *Handle) {
		if n > 0 {
			h.maxTokens = n
		}
	}
}

// NewHandle wraps an engine.
//
// Inputs:
//
//	engine - The runtime. Must not be nil. Owned by the handle from now on.
//	opts   - Optional settings.
//
// Outputs:
//
//	*Handle - The handle. Never nil.
func NewHandle(engine Engine, opts ...HandleOption) *Handle {
	if engine == nil {
		panic("NewHandle: engine must not be nil")
	}
	h := &Handle{
		engine:    engine,
		sem:       semaphore.NewWeighted(1),
		logger:    slog.Default(),
		maxTokens: DefaultMaxTokens,
		stop:      DefaultStopSequences,
		threshold: DefaultConfidenceThreshold,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Backend reports routing.BackendOnDevice.
func (h *Handle) Backend() routing.Backend {
	return routing.BackendOnDevice
}

// Classify runs the on-device model on messages.
//
// Inputs:
//
//	ctx      - Bounds the wait for the engine and the completion itself.
//	messages - The conversation without a system prompt.
//	tools    - Tool specs offered to the model.
//
// Outputs:
//
//	*routing.ClassificationResult - Parsed result. Empty on any engine or
//	                                parse failure.
//	error                         - Non-nil only when ctx ended while
//	                                waiting or the handle is closed.
//
// Thread Safety: Safe for concurrent use.
func (h *Handle) Classify(ctx context.Context, messages []routing.Message, tools []routing.ToolSpec) (*routing.ClassificationResult, error) {
	ctx, span := handleTracer.Start(ctx, "ondevice.Handle.Classify",
		trace.WithAttributes(
			attribute.Int("message_count", len(messages)),
			attribute.Int("tool_count", len(tools)),
		),
	)
	defer span.End()

	waitStart := time.Now()
	if err := h.sem.Acquire(ctx, 1); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "engine wait cancelled")
		return nil, err
	}
	defer h.sem.Release(1)
	lockWaitSeconds.Observe(time.Since(waitStart).Seconds())

	if h.closed {
		return nil, ErrHandleClosed
	}

	empty := &routing.ClassificationResult{FunctionCalls: []routing.FunctionCall{}}

	if err := h.engine.Reset(ctx); err != nil {
		classifyTotal.WithLabelValues("engine_error").Inc()
		span.RecordError(err)
		h.logger.Warn("on-device reset failed", slog.String("error", redact.Error(err)))
		return empty, nil
	}

	req := CompletionRequest{
		Messages:            withSystemPrompt(messages),
		Tools:               tools,
		ForceTools:          true,
		MaxTokens:           h.maxTokens,
		StopSequences:       h.stop,
		ConfidenceThreshold: h.threshold,
	}

	start := time.Now()
	raw, err := h.engine.Complete(ctx, req)
	elapsed := time.Since(start)
	classifyDuration.Observe(elapsed.Seconds())
	if err != nil {
		classifyTotal.WithLabelValues("engine_error").Inc()
		span.RecordError(err)
		h.logger.Warn("on-device completion failed", slog.String("error", redact.Error(err)))
		// The failed completion still spent model time.
		empty.ElapsedMs = float64(elapsed) / float64(time.Millisecond)
		return empty, nil
	}

	res, outcome := routing.ParseClassification(raw)
	classifyTotal.WithLabelValues(string(outcome)).Inc()
	span.SetAttributes(
		attribute.String("parse_outcome", string(outcome)),
		attribute.Int("function_calls", len(res.FunctionCalls)),
		attribute.Float64("confidence", res.Confidence),
	)
	if outcome == routing.ParseFailed {
		h.logger.Debug("on-device payload unparseable", slog.Int("payload_len", len(raw)))
	}
	return &res, nil
}

// Close releases the engine after in-flight classifications finish.
// Later Classify calls return ErrHandleClosed.
func (h *Handle) Close() error {
	if err := h.sem.Acquire(context.Background(), 1); err != nil {
		return err
	}
	defer h.sem.Release(1)
	if h.closed {
		return nil
	}
	h.closed = true
	return h.engine.Close()
}

func withSystemPrompt(messages []routing.Message) []routing.Message {
	out := make([]routing.Message, 0, len(messages)+1)
	out = append(out, routing.Message{Role: routing.RoleSystem, Content: SystemPrompt})
	return append(out, messages...)
}
