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
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// MultiIntentConfidence is reported for every aggregated multi-intent
// result. It is a fixed value, not a combination of sub-query confidences.
const MultiIntentConfidence = 0.9

// keyboardShortcutTool is the synthetic tool used for literal key presses.
const keyboardShortcutTool = "keyboard_shortcut"

// keyboardShortcuts maps literal sub-query text to a key name. Only
// consulted on the multi-intent path.
var keyboardShortcuts = map[string]string{
	"enter":        "Return",
	"press enter":  "Return",
	"hit enter":    "Return",
	"tab":          "Tab",
	"press tab":    "Tab",
	"escape":       "Escape",
	"press escape": "Escape",
}

// routeState names the stages of one routing request.
type routeState string

const (
	stateDecomposing        routeState = "decomposing"
	statePerSubQueryRouting routeState = "per_sub_query_routing"
	stateAggregating        routeState = "aggregating"
	stateDone               routeState = "done"
)

// =============================================================================
// HybridRouter
// =============================================================================

// HybridRouter routes utterances through the on-device classifier and falls
// back to the cloud per sub-query.
//
// Description:
//
//	For each sub-query the on-device classifier proposes calls. Calls naming
//	unknown tools are dropped, arguments are re-derived by FillSlots, and a
//	call is accepted only if ValidateCall and SanityCheck both pass. When no
//	call survives, the cloud classifier answers that sub-query instead.
//
//	Sub-queries are routed one at a time: pronoun resolution and cost
//	accounting depend on earlier sub-query text.
//
// Thread Safety: Safe for concurrent use when both classifiers are.
type HybridRouter struct {
	registry *ToolRegistry
	onDevice Classifier
	cloud    Classifier
	logger   *slog.Logger
	now      func() time.Time
}

// Option configures a HybridRouter.
type Option func(*HybridRouter)

// WithLogger sets the router's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *HybridRouter) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithClock overrides the wall clock used for RoutingTimeMs.
func WithClock(now func() time.Time) Option {
	return func(r *HybridRouter) {
		if now != nil {
			r.now = now
		}
	}
}

// NewHybridRouter creates a router.
//
// Inputs:
//
//	registry - Tools for this router. Must not be nil.
//	onDevice - The on-device classifier. Must not be nil.
//	cloud    - The cloud fallback classifier. Must not be nil.
//	opts     - Optional settings.
//
// Outputs:
//
//	*HybridRouter - The router. Never nil.
func NewHybridRouter(registry *ToolRegistry, onDevice, cloud Classifier, opts ...Option) *HybridRouter {
	if registry == nil {
		panic("NewHybridRouter: registry must not be nil")
	}
	if onDevice == nil || cloud == nil {
		panic("NewHybridRouter: classifiers must not be nil")
	}
	r := &HybridRouter{
		registry: registry,
		onDevice: onDevice,
		cloud:    cloud,
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Registry returns the router's tool registry.
func (r *HybridRouter) Registry() *ToolRegistry {
	return r.registry
}

// Route decides the function calls for the last user message.
//
// Description:
//
//	Decomposes the utterance. A single sub-query takes the single-intent
//	path with the full conversation. Several sub-queries have pronouns
//	resolved and are routed independently, then aggregated.
//
// Inputs:
//
//	ctx      - Context for classifier calls. No deadline is imposed here.
//	messages - The conversation. Must contain a non-blank last message.
//
// Outputs:
//
//	*RoutingResult - The aggregated result. Nil on error.
//	error          - ErrEmptyUtterance, or *CloudInvocationError when a
//	                 needed cloud call failed.
//
// Thread Safety: Safe for concurrent use.
func (r *HybridRouter) Route(ctx context.Context, messages []Message) (*RoutingResult, error) {
	start := r.now()
	utterance := LastUserContent(messages)

	ctx, span := routerTracer.Start(ctx, "routing.HybridRouter.Route",
		trace.WithAttributes(
			attribute.String("utterance_preview", truncateForLog(utterance, 80)),
			attribute.Int("message_count", len(messages)),
			attribute.Int("tool_count", r.registry.Len()),
		),
	)
	defer span.End()

	if strings.TrimSpace(utterance) == "" {
		routeRequestsTotal.WithLabelValues("error").Inc()
		span.SetStatus(codes.Error, "empty utterance")
		return nil, ErrEmptyUtterance
	}

	r.enter(span, stateDecomposing)
	subQueries := Decompose(utterance)
	if len(subQueries) > 1 {
		subQueries = ResolvePronouns(subQueries)
	}
	routeSubQueries.Observe(float64(len(subQueries)))
	span.SetAttributes(attribute.Int("sub_queries", len(subQueries)))

	r.enter(span, statePerSubQueryRouting)
	var (
		result *RoutingResult
		err    error
	)
	if len(subQueries) <= 1 {
		result, err = r.routeSingle(ctx, messages, utterance)
	} else {
		result, err = r.routeMulti(ctx, messages, subQueries)
	}
	if err != nil {
		routeRequestsTotal.WithLabelValues("error").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "routing failed")
		r.logger.Warn("routing failed",
			slog.String("utterance", truncateForLog(utterance, 80)),
			slog.String("error", err.Error()),
		)
		return nil, err
	}

	result.SubQueries = subQueries
	result.RoutingTimeMs = msSince(start, r.now())
	r.enter(span, stateDone)

	routeRequestsTotal.WithLabelValues(string(result.Source)).Inc()
	routeElapsedMs.WithLabelValues(string(result.Source)).Observe(result.TotalTimeMs)
	span.SetAttributes(
		attribute.String("source", string(result.Source)),
		attribute.Int("function_calls", len(result.FunctionCalls)),
		attribute.Float64("total_time_ms", result.TotalTimeMs),
	)
	r.logger.Info("utterance routed",
		slog.String("source", string(result.Source)),
		slog.Int("sub_queries", len(subQueries)),
		slog.Int("function_calls", len(result.FunctionCalls)),
		slog.Float64("total_time_ms", result.TotalTimeMs),
	)
	return result, nil
}

// routeSingle handles an utterance with exactly one sub-query.
//
// The on-device attempt's elapsed time is always carried into the result,
// including when the attempt is rejected and the cloud answers.
func (r *HybridRouter) routeSingle(ctx context.Context, messages []Message, utterance string) (*RoutingResult, error) {
	local := r.classifyOnDevice(ctx, messages)
	accepted := r.acceptCalls(local.FunctionCalls, utterance)

	r.enter(trace.SpanFromContext(ctx), stateAggregating)
	if len(accepted) > 0 {
		return &RoutingResult{
			FunctionCalls: accepted,
			Source:        SourceOnDevice,
			Confidence:    floatPtr(local.Confidence),
			TotalTimeMs:   local.ElapsedMs,
		}, nil
	}

	routeFallbackTotal.WithLabelValues("single").Inc()
	cloud, err := r.classifyCloud(ctx, messages, utterance, local.ElapsedMs)
	if err != nil {
		return nil, err
	}
	return &RoutingResult{
		FunctionCalls: cloud.FunctionCalls,
		Source:        SourceCloudFallback,
		TotalTimeMs:   cloud.ElapsedMs + local.ElapsedMs,
	}, nil
}

// routeMulti handles an utterance decomposed into several sub-queries.
func (r *HybridRouter) routeMulti(ctx context.Context, messages []Message, subQueries []string) (*RoutingResult, error) {
	var (
		all       []FunctionCall
		totalMs   float64
		usedCloud bool
	)

	for _, sq := range subQueries {
		if call, ok := r.keyboardShortcut(sq); ok {
			routeShortcutTotal.Inc()
			all = append(all, call)
			continue
		}

		subMessages := []Message{{Role: RoleUser, Content: sq}}
		local := r.classifyOnDevice(ctx, subMessages)
		totalMs += local.ElapsedMs

		if accepted := r.acceptCalls(local.FunctionCalls, sq); len(accepted) > 0 {
			all = append(all, accepted...)
			continue
		}

		usedCloud = true
		routeFallbackTotal.WithLabelValues("sub_query").Inc()
		cloud, err := r.classifyCloud(ctx, subMessages, sq, totalMs)
		if err != nil {
			return nil, err
		}
		totalMs += cloud.ElapsedMs
		all = append(all, cloud.FunctionCalls...)
	}

	r.enter(trace.SpanFromContext(ctx), stateAggregating)
	if len(all) > 0 {
		source := SourceOnDevice
		if usedCloud {
			source = SourceCloudFallback
		}
		return &RoutingResult{
			FunctionCalls: all,
			Source:        source,
			Confidence:    floatPtr(MultiIntentConfidence),
			TotalTimeMs:   totalMs,
		}, nil
	}

	// Nothing from any sub-query: send the original utterance as a whole.
	routeFallbackTotal.WithLabelValues("whole_utterance").Inc()
	cloud, err := r.classifyCloud(ctx, messages, LastUserContent(messages), totalMs)
	if err != nil {
		return nil, err
	}
	return &RoutingResult{
		FunctionCalls: cloud.FunctionCalls,
		Source:        SourceCloudFallback,
		TotalTimeMs:   cloud.ElapsedMs + totalMs,
	}, nil
}

// classifyOnDevice runs the on-device classifier. Failures degrade to an
// empty result so the caller falls back.
func (r *HybridRouter) classifyOnDevice(ctx context.Context, messages []Message) ClassificationResult {
	res, err := r.onDevice.Classify(ctx, messages, r.registry.OnDeviceSpecs())
	if err != nil {
		r.logger.Warn("on-device classification failed, treating as empty",
			slog.String("backend", string(r.onDevice.Backend())),
			slog.String("error", err.Error()),
		)
		return ClassificationResult{FunctionCalls: []FunctionCall{}}
	}
	if res == nil {
		return ClassificationResult{FunctionCalls: []FunctionCall{}}
	}
	return *res
}

// classifyCloud runs the cloud classifier and drops calls naming unknown
// tools. priorMs is the time already accounted for this request and is
// reported on failure.
func (r *HybridRouter) classifyCloud(ctx context.Context, messages []Message, subQuery string, priorMs float64) (ClassificationResult, error) {
	r.logger.Info("falling back to cloud",
		slog.String("sub_query", truncateForLog(subQuery, 80)),
		slog.Float64("prior_time_ms", priorMs),
	)
	res, err := r.cloud.Classify(ctx, messages, r.registry.Specs())
	if err != nil {
		elapsed := priorMs
		if res != nil {
			elapsed += res.ElapsedMs
		}
		return ClassificationResult{}, &CloudInvocationError{
			ElapsedMs: elapsed,
			SubQuery:  subQuery,
			Err:       err,
		}
	}
	if res == nil {
		return ClassificationResult{FunctionCalls: []FunctionCall{}}, nil
	}
	out := *res
	known, dropped := r.registry.FilterKnown(out.FunctionCalls)
	if dropped > 0 {
		routeCallDecisions.WithLabelValues("unknown_tool").Add(float64(dropped))
		r.logger.Debug("dropped cloud calls naming unknown tools", slog.Int("dropped", dropped))
	}
	out.FunctionCalls = known
	return out, nil
}

// acceptCalls filters, slot-fills, validates and sanity-checks proposed
// calls against one sub-query.
func (r *HybridRouter) acceptCalls(calls []FunctionCall, subQuery string) []FunctionCall {
	accepted := make([]FunctionCall, 0, len(calls))
	for _, c := range calls {
		if !r.registry.Has(c.Name) {
			routeCallDecisions.WithLabelValues("unknown_tool").Inc()
			continue
		}
		filled := FillSlots(c, subQuery)
		if !ValidateCall(filled, r.registry) {
			routeCallDecisions.WithLabelValues("invalid").Inc()
			r.logger.Debug("call rejected by validator",
				slog.String("tool", filled.Name),
				slog.String("sub_query", truncateForLog(subQuery, 80)),
			)
			continue
		}
		if !SanityCheck(filled, subQuery) {
			routeCallDecisions.WithLabelValues("sanity").Inc()
			r.logger.Debug("call rejected by sanity check",
				slog.String("tool", filled.Name),
				slog.String("sub_query", truncateForLog(subQuery, 80)),
			)
			continue
		}
		routeCallDecisions.WithLabelValues("accepted").Inc()
		accepted = append(accepted, filled)
	}
	return accepted
}

// keyboardShortcut answers literal key-press sub-queries without a model
// call. Only available when the registry offers the keyboard shortcut tool.
func (r *HybridRouter) keyboardShortcut(subQuery string) (FunctionCall, bool) {
	if !r.registry.Has(keyboardShortcutTool) {
		return FunctionCall{}, false
	}
	keys, ok := keyboardShortcuts[strings.ToLower(strings.TrimSpace(subQuery))]
	if !ok {
		return FunctionCall{}, false
	}
	return FunctionCall{
		Name:      keyboardShortcutTool,
		Arguments: map[string]any{"keys": keys},
	}, true
}

func (r *HybridRouter) enter(span trace.Span, s routeState) {
	span.AddEvent("state", trace.WithAttributes(attribute.String("state", string(s))))
}

func msSince(start, end time.Time) float64 {
	return float64(end.Sub(start).Microseconds()) / 1000
}
