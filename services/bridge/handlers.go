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
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/spike/services/journal"
	"github.com/AleutianAI/spike/services/redact"
	"github.com/AleutianAI/spike/services/routing"
)

// Journal origins.
const (
	originRoute      = "route"
	originTranscribe = "transcribe_and_act"
)

// HandleHealth handles GET /health.
func (s *Server) HandleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// HandleTools handles GET /v1/tools.
func (s *Server) HandleTools(c *gin.Context) {
	specs := s.router.Registry().Specs()
	c.JSON(http.StatusOK, ToolsResponse{Tools: specs, Count: len(specs)})
}

// HandleRoute handles POST /v1/route.
//
// Description:
//
//	Routes a text utterance or conversation and returns the routing result
//	wire shape. A cloud failure is answered with 502 and the same shape,
//	source "none", the error text and the time already spent.
//
// Response:
//
//	200 OK: routing.RoutingResult
//	400 Bad Request: ErrorResponse (invalid body or empty utterance)
//	502 Bad Gateway: routing.RoutingResult with error set
//
// Thread Safety: Safe for concurrent use.
func (s *Server) HandleRoute(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := s.logger.With(slog.String("request_id", requestID), slog.String("handler", "HandleRoute"))

	var req RouteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Debug("invalid route request", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:     err.Error(),
			Code:      CodeInvalidRequest,
			RequestID: requestID,
		})
		return
	}

	ctx := c.Request.Context()
	messages := req.conversation()
	utterance := routing.LastUserContent(messages)

	start := s.now()
	res, err := s.router.Route(ctx, messages)
	routingMs := msSince(start, s.now())
	if err != nil {
		status, body, ok := failureResult(err, routingMs)
		if !ok {
			s.writeRouteError(c, requestID, err)
			return
		}
		logger.Warn("routing failed", slog.String("error", redact.Error(err)))
		s.record(ctx, journal.Entry{
			RequestID: requestID,
			Origin:    originRoute,
			Utterance: utterance,
			Result:    body,
			Error:     redact.Error(err),
		})
		c.JSON(status, body)
		return
	}

	ensureCalls(res)
	s.record(ctx, journal.Entry{
		RequestID: requestID,
		Origin:    originRoute,
		Utterance: utterance,
		Result:    res,
	})
	c.JSON(http.StatusOK, res)
}

// HandleTranscribeAndAct handles POST /v1/transcribe_and_act.
//
// Description:
//
//	Accepts a multipart form with an "audio" file, transcribes it, routes
//	the transcript as a single user message and returns ActResponse. An
//	empty transcript is not routed: the response has source "none" and
//	error "Empty transcription".
//
// Response:
//
//	200 OK: ActResponse
//	400 Bad Request: ErrorResponse (missing audio)
//	413 Request Entity Too Large: ErrorResponse
//	502 Bad Gateway: ErrorResponse (transcription) or ActResponse (cloud)
//	503 Service Unavailable: ErrorResponse (no transcriber configured)
//
// Thread Safety: Safe for concurrent use.
func (s *Server) HandleTranscribeAndAct(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := s.logger.With(slog.String("request_id", requestID), slog.String("handler", "HandleTranscribeAndAct"))

	if s.transcriber == nil {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{
			Error:     "transcription is not configured",
			Code:      CodeTranscriberUnavailable,
			RequestID: requestID,
		})
		return
	}

	audio, mimeType, status, err := s.readAudio(c)
	if err != nil {
		code := CodeAudioMissing
		if status == http.StatusRequestEntityTooLarge {
			code = CodeAudioTooLarge
		}
		c.JSON(status, ErrorResponse{Error: err.Error(), Code: code, RequestID: requestID})
		return
	}

	ctx := c.Request.Context()
	transcript, transcriptionMs, err := s.transcribe(ctx, audio, mimeType)
	if err != nil {
		logger.Warn("transcription failed", slog.String("error", redact.Error(err)))
		c.JSON(http.StatusBadGateway, ErrorResponse{
			Error:     redact.Error(err),
			Code:      CodeTranscriptionFailed,
			RequestID: requestID,
		})
		return
	}

	if strings.TrimSpace(transcript) == "" {
		resp := ActResponse{
			FunctionCalls:       []routing.FunctionCall{},
			Source:              routing.SourceNone,
			TotalTimeMs:         transcriptionMs,
			TranscriptionTimeMs: transcriptionMs,
			Error:               EmptyTranscriptionError,
		}
		s.record(ctx, journal.Entry{
			RequestID: requestID,
			Origin:    originTranscribe,
			Result:    resp.routingResult(),
			Error:     EmptyTranscriptionError,
		})
		c.JSON(http.StatusOK, resp)
		return
	}

	messages := []routing.Message{{Role: routing.RoleUser, Content: transcript}}
	start := s.now()
	res, err := s.router.Route(ctx, messages)
	routingMs := msSince(start, s.now())
	if err != nil {
		status, body, ok := failureResult(err, routingMs)
		if !ok {
			s.writeRouteError(c, requestID, err)
			return
		}
		logger.Warn("routing failed", slog.String("error", redact.Error(err)))
		resp := newActResponse(transcript, body, transcriptionMs, routingMs)
		s.record(ctx, journal.Entry{
			RequestID: requestID,
			Origin:    originTranscribe,
			Utterance: transcript,
			Result:    resp.routingResult(),
			Error:     redact.Error(err),
		})
		c.JSON(status, resp)
		return
	}

	ensureCalls(res)
	resp := newActResponse(transcript, res, transcriptionMs, routingMs)
	s.record(ctx, journal.Entry{
		RequestID: requestID,
		Origin:    originTranscribe,
		Utterance: transcript,
		Result:    resp.routingResult(),
	})
	c.JSON(http.StatusOK, resp)
}

// readAudio reads the "audio" form file, enforcing the size cap.
func (s *Server) readAudio(c *gin.Context) ([]byte, string, int, error) {
	fh, err := c.FormFile("audio")
	if err != nil {
		return nil, "", http.StatusBadRequest, fmt.Errorf("multipart field \"audio\" is required: %w", err)
	}
	if fh.Size > s.maxAudioBytes {
		return nil, "", http.StatusRequestEntityTooLarge,
			fmt.Errorf("audio is %d bytes, limit is %d", fh.Size, s.maxAudioBytes)
	}
	f, err := fh.Open()
	if err != nil {
		return nil, "", http.StatusBadRequest, fmt.Errorf("open audio: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, s.maxAudioBytes+1))
	if err != nil {
		return nil, "", http.StatusBadRequest, fmt.Errorf("read audio: %w", err)
	}
	if int64(len(data)) > s.maxAudioBytes {
		return nil, "", http.StatusRequestEntityTooLarge,
			fmt.Errorf("audio exceeds limit of %d bytes", s.maxAudioBytes)
	}
	return data, fh.Header.Get("Content-Type"), http.StatusOK, nil
}

// transcribe runs the transcriber inside a span and times it.
func (s *Server) transcribe(ctx context.Context, audio []byte, mimeType string) (string, float64, error) {
	ctx, span := bridgeTracer.Start(ctx, "bridge.transcribe",
		trace.WithAttributes(
			attribute.Int("audio_bytes", len(audio)),
			attribute.String("mime_type", mimeType),
		),
	)
	defer span.End()

	start := s.now()
	text, err := s.transcriber.Transcribe(ctx, audio, mimeType)
	elapsed := s.now().Sub(start)
	bridgeTranscriptionSeconds.Observe(elapsed.Seconds())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "transcription failed")
		return "", float64(elapsed) / float64(time.Millisecond), err
	}
	span.SetAttributes(attribute.Int("transcript_len", len(text)))
	return text, float64(elapsed) / float64(time.Millisecond), nil
}

// writeRouteError answers routing errors that carry no partial result.
func (s *Server) writeRouteError(c *gin.Context, requestID string, err error) {
	var rerr *routing.RouterError
	if errors.As(err, &rerr) && rerr.Code == routing.ErrCodeEmptyUtterance {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:     rerr.Message,
			Code:      CodeEmptyUtterance,
			RequestID: requestID,
		})
		return
	}
	s.logger.Error("routing error",
		slog.String("request_id", requestID),
		slog.String("error", redact.Error(err)),
	)
	c.JSON(http.StatusInternalServerError, ErrorResponse{
		Error:     redact.Error(err),
		Code:      CodeInternal,
		RequestID: requestID,
	})
}

// record appends to the journal when one is configured. Failures are logged
// and never fail the request.
func (s *Server) record(ctx context.Context, e journal.Entry) {
	if s.recorder == nil {
		return
	}
	e.Timestamp = s.now()
	if err := s.recorder.Append(context.WithoutCancel(ctx), e); err != nil {
		bridgeJournalFailures.Inc()
		s.logger.Warn("journal append failed",
			slog.String("request_id", e.RequestID),
			slog.String("error", err.Error()),
		)
	}
}

// failureResult converts a cloud failure into a result that carries the
// error and the time already spent. ok is false for other errors.
func failureResult(err error, routingMs float64) (int, *routing.RoutingResult, bool) {
	var ce *routing.CloudInvocationError
	if !errors.As(err, &ce) {
		return 0, nil, false
	}
	return http.StatusBadGateway, &routing.RoutingResult{
		FunctionCalls: []routing.FunctionCall{},
		Source:        routing.SourceNone,
		TotalTimeMs:   ce.ElapsedMs,
		RoutingTimeMs: routingMs,
		Error:         redact.Error(err),
	}, true
}

func newActResponse(transcript string, res *routing.RoutingResult, transcriptionMs, routingMs float64) ActResponse {
	resp := ActResponse{
		Transcription:       transcript,
		FunctionCalls:       res.FunctionCalls,
		Source:              res.Source,
		TotalTimeMs:         transcriptionMs + routingMs,
		TranscriptionTimeMs: transcriptionMs,
		RoutingTimeMs:       routingMs,
		Error:               res.Error,
	}
	if res.Confidence != nil {
		resp.Confidence = *res.Confidence
	}
	if resp.FunctionCalls == nil {
		resp.FunctionCalls = []routing.FunctionCall{}
	}
	return resp
}

// routingResult is the journal form of an ActResponse.
func (r ActResponse) routingResult() *routing.RoutingResult {
	out := &routing.RoutingResult{
		FunctionCalls:       r.FunctionCalls,
		Source:              r.Source,
		TotalTimeMs:         r.TotalTimeMs,
		TranscriptionTimeMs: r.TranscriptionTimeMs,
		RoutingTimeMs:       r.RoutingTimeMs,
		Error:               r.Error,
	}
	if r.Confidence != 0 {
		c := r.Confidence
		out.Confidence = &c
	}
	return out
}

// ensureCalls replaces a nil call list so it encodes as [].
func ensureCalls(res *routing.RoutingResult) {
	if res.FunctionCalls == nil {
		res.FunctionCalls = []routing.FunctionCall{}
	}
}

func msSince(start, end time.Time) float64 {
	d := end.Sub(start)
	if d < 0 {
		return 0
	}
	return float64(d) / float64(time.Millisecond)
}
