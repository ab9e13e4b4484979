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
	"errors"
	"fmt"
)

// ErrorCode classifies routing failures.
type ErrorCode string

const (
	// ErrCodeMalformedPayload means the classifier payload could not be parsed
	// even after repair. Recovered locally as an empty result.
	ErrCodeMalformedPayload ErrorCode = "MALFORMED_CLASSIFIER_PAYLOAD"

	// ErrCodeNoAcceptableCall means every proposed call was rejected. Drives
	// fallback; never surfaced.
	ErrCodeNoAcceptableCall ErrorCode = "NO_ACCEPTABLE_CALL"

	// ErrCodeCloudFailure means the cloud backend failed. Fatal for the
	// request.
	ErrCodeCloudFailure ErrorCode = "CLOUD_INVOCATION_FAILURE"

	// ErrCodeUnknownTool means a call named a tool outside the registry. The
	// call is dropped silently.
	ErrCodeUnknownTool ErrorCode = "UNKNOWN_TOOL_REFERENCE"

	// ErrCodeEmptyUtterance means there was nothing to route.
	ErrCodeEmptyUtterance ErrorCode = "EMPTY_UTTERANCE"
)

// RouterError is a typed routing error.
type RouterError struct {
	Code      ErrorCode
	Message   string
	Retryable bool
}

// NewRouterError creates a RouterError.
func NewRouterError(code ErrorCode, message string, retryable bool) *RouterError {
	return &RouterError{Code: code, Message: message, Retryable: retryable}
}

func (e *RouterError) Error() string {
	return fmt.Sprintf("routing [%s]: %s", e.Code, e.Message)
}

// ErrEmptyUtterance is returned by Route when the last message is blank.
var ErrEmptyUtterance = NewRouterError(ErrCodeEmptyUtterance, "utterance is empty", false)

// CloudInvocationError reports a failed cloud fallback together with the
// time already spent on the request.
//
// The cloud call is not retried at this layer.
type CloudInvocationError struct {
	// ElapsedMs is the timed work accumulated before and including the
	// failed call's own duration when the backend reported one.
	ElapsedMs float64

	// SubQuery is the text that was sent to the cloud.
	SubQuery string

	Err error
}

func (e *CloudInvocationError) Error() string {
	return fmt.Sprintf("routing [%s]: cloud fallback for %q failed after %.1fms: %v",
		ErrCodeCloudFailure, truncateForLog(e.SubQuery, 60), e.ElapsedMs, e.Err)
}

func (e *CloudInvocationError) Unwrap() error {
	return e.Err
}

// Code returns ErrCodeCloudFailure.
func (e *CloudInvocationError) Code() ErrorCode {
	return ErrCodeCloudFailure
}

// IsCloudFailure reports whether err is (or wraps) a CloudInvocationError.
func IsCloudFailure(err error) bool {
	var ce *CloudInvocationError
	return errors.As(err, &ce)
}

// truncateForLog shortens s to at most n runes for log and span attributes.
func truncateForLog(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
