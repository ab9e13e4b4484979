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
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/genai"
)

// transcribeInstruction asks for a verbatim English transcript.
const transcribeInstruction = "Transcribe this audio verbatim in English. " +
	"Return only the spoken words with no commentary. Return an empty response if nothing is spoken."

// DefaultAudioMIME is assumed when an upload carries no content type.
const DefaultAudioMIME = "audio/wav"

// GeminiTranscriber turns recorded speech into text.
//
// Thread Safety: Safe for concurrent use.
type GeminiTranscriber struct {
	models contentGenerator
	model  string
	logger *slog.Logger
}

// NewGeminiTranscriber creates a transcriber on top of client.
func NewGeminiTranscriber(client *genai.Client, cfg GeminiConfig, logger *slog.Logger) *GeminiTranscriber {
	return newGeminiTranscriber(client.Models, cfg, logger)
}

func newGeminiTranscriber(models contentGenerator, cfg GeminiConfig, logger *slog.Logger) *GeminiTranscriber {
	if logger == nil {
		logger = slog.Default()
	}
	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}
	return &GeminiTranscriber{models: models, model: model, logger: logger}
}

// Transcribe returns the spoken text in audio, trimmed. An empty string
// with a nil error means nothing was spoken.
func (t *GeminiTranscriber) Transcribe(ctx context.Context, audio []byte, mimeType string) (string, error) {
	ctx, span := cloudTracer.Start(ctx, "cloud.GeminiTranscriber.Transcribe",
		trace.WithAttributes(
			attribute.Int("audio_bytes", len(audio)),
			attribute.String("mime_type", mimeType),
		),
	)
	defer span.End()

	if len(audio) == 0 {
		return "", nil
	}
	if mimeType == "" || mimeType == "application/octet-stream" {
		mimeType = DefaultAudioMIME
	}

	start := time.Now()
	contents := []*genai.Content{genai.NewContentFromParts([]*genai.Part{
		genai.NewPartFromText(transcribeInstruction),
		genai.NewPartFromBytes(audio, mimeType),
	}, genai.RoleUser)}

	resp, err := t.models.GenerateContent(ctx, t.model, contents, nil)
	if err != nil {
		transcribeTotal.WithLabelValues("error").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "transcription failed")
		return "", fmt.Errorf("cloud: Gemini transcribe: %w", err)
	}

	var text string
	if resp != nil {
		text = strings.TrimSpace(resp.Text())
	}
	outcome := "ok"
	if text == "" {
		outcome = "empty"
	}
	transcribeTotal.WithLabelValues(outcome).Inc()
	t.logger.Debug("audio transcribed",
		slog.Int("audio_bytes", len(audio)),
		slog.Int("chars", len(text)),
		slog.Duration("elapsed", time.Since(start)),
	)
	return text, nil
}
