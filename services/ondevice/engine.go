// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package ondevice runs the on-device function-calling classifier.
//
// The runtime behind an Engine keeps conversational state between calls, so
// every classification resets it first. Handle serializes reset-then-complete
// with a weighted semaphore; it is the only path to the engine.
//
// Thread Safety:
//
//	Handle is safe for concurrent use. Engine implementations need not be;
//	Handle never calls an engine concurrently.
package ondevice

import (
	"context"

	"github.com/AleutianAI/spike/services/routing"
)

// CompletionRequest carries one classification request to the runtime.
type CompletionRequest struct {
	// Messages is the conversation, system prompt first.
	Messages []routing.Message

	// Tools are the specs offered to the model.
	Tools []routing.ToolSpec

	// ForceTools asks the runtime to answer with tool calls only.
	ForceTools bool

	// MaxTokens limits the generated output.
	MaxTokens int

	// StopSequences end generation early.
	StopSequences []string

	// ConfidenceThreshold is passed through to runtimes that gate on it.
	ConfidenceThreshold float64
}

// Engine is the on-device inference runtime.
//
// Description:
//
//	Complete returns the runtime's raw payload: a JSON object with
//	function_calls, confidence and total_time_ms. The payload may be
//	malformed; callers repair and parse it.
//
// Thread Safety: Implementations need not be safe for concurrent use.
type Engine interface {
	// Reset clears any state kept from the previous request.
	Reset(ctx context.Context) error

	// Complete runs one classification and returns the raw payload.
	Complete(ctx context.Context, req CompletionRequest) (string, error)

	// Close releases the runtime.
	Close() error
}
