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
)

// Backend identifies which side of the hybrid a Classifier runs on.
type Backend string

const (
	BackendOnDevice Backend = "on-device"
	BackendCloud    Backend = "cloud"
)

// Classifier proposes function calls for a conversation.
//
// Description:
//
//	Two variants exist: the on-device classifier (fast, occasionally wrong)
//	and the cloud model (slow, reliable). HybridRouter treats both through
//	this contract, which keeps it backend-agnostic and testable with fakes.
//
//	On-device implementations absorb malformed payloads and return an empty
//	result instead of an error. A cloud implementation returns an error when
//	the remote call fails; the router does not retry it.
//
// Thread Safety: Implementations must be safe for concurrent use. An
// implementation backed by a stateful runtime serializes access internally.
type Classifier interface {
	// Classify proposes calls for messages given the available tools.
	//
	// Inputs:
	//   - ctx: Context for the call. Routing does not impose a deadline.
	//   - messages: Conversation; the last user message drives routing.
	//   - tools: Tool specs to offer the model.
	//
	// Outputs:
	//   - *ClassificationResult: Proposed calls, confidence, elapsed time.
	//   - error: Non-nil only when the backend could not be invoked.
	Classify(ctx context.Context, messages []Message, tools []ToolSpec) (*ClassificationResult, error)

	// Backend reports which side of the hybrid this classifier runs on.
	Backend() Backend
}

// ClassifierFunc adapts a function to the Classifier interface.
type ClassifierFunc struct {
	Fn   func(ctx context.Context, messages []Message, tools []ToolSpec) (*ClassificationResult, error)
	Kind Backend
}

// Classify calls Fn.
func (f ClassifierFunc) Classify(ctx context.Context, messages []Message, tools []ToolSpec) (*ClassificationResult, error) {
	return f.Fn(ctx, messages, tools)
}

// Backend returns Kind.
func (f ClassifierFunc) Backend() Backend {
	return f.Kind
}
