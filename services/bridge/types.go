// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package bridge

import (
	"github.com/AleutianAI/spike/services/routing"
)

// Error codes returned in ErrorResponse.Code.
const (
	CodeInvalidRequest         = "INVALID_REQUEST"
	CodeRateLimited            = "RATE_LIMITED"
	CodeAudioMissing           = "AUDIO_MISSING"
	CodeAudioTooLarge          = "AUDIO_TOO_LARGE"
	CodeTranscriberUnavailable = "TRANSCRIBER_UNAVAILABLE"
	CodeTranscriptionFailed    = "TRANSCRIPTION_FAILED"
	CodeInternal               = "INTERNAL_ERROR"
	CodeEmptyUtterance         = string(routing.ErrCodeEmptyUtterance)
	CodeCloudInvocationFailure = string(routing.ErrCodeCloudFailure)
)

// EmptyTranscriptionError is the error text for silent or unintelligible
// audio.
const EmptyTranscriptionError = "Empty transcription"

// RouteRequest is the body of POST /v1/route.
//
// Exactly one of Text and Messages is normally set. When both are present
// Messages wins.
type RouteRequest struct {
	// Text is a single user utterance.
	Text string `json:"text" binding:"required_without=Messages,max=4096"`

	// Messages is a full conversation; the last user message drives routing.
	Messages []routing.Message `json:"messages" binding:"required_without=Text,omitempty,dive"`
}

// conversation returns the messages to route.
func (r RouteRequest) conversation() []routing.Message {
	if len(r.Messages) > 0 {
		return r.Messages
	}
	return []routing.Message{{Role: routing.RoleUser, Content: r.Text}}
}

// ActResponse is the body of POST /v1/transcribe_and_act.
type ActResponse struct {
	Transcription string                 `json:"transcription"`
	FunctionCalls []routing.FunctionCall `json:"function_calls"`
	Source        routing.Source         `json:"source"`

	// Confidence is 0 when the answering backend reports none.
	Confidence float64 `json:"confidence"`

	// TotalTimeMs is TranscriptionTimeMs + RoutingTimeMs.
	TotalTimeMs         float64 `json:"total_time_ms"`
	TranscriptionTimeMs float64 `json:"transcription_time_ms"`
	RoutingTimeMs       float64 `json:"routing_time_ms"`

	Error string `json:"error,omitempty"`
}

// ToolsResponse is the body of GET /v1/tools.
type ToolsResponse struct {
	Tools []routing.ToolSpec `json:"tools"`
	Count int                `json:"count"`
}

// ErrorResponse is the body of every non-routing error.
type ErrorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	RequestID string `json:"request_id,omitempty"`
}
