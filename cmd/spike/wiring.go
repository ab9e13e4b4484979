// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/AleutianAI/spike/services/bridge"
	"github.com/AleutianAI/spike/services/cloud"
	"github.com/AleutianAI/spike/services/config"
	"github.com/AleutianAI/spike/services/journal"
	"github.com/AleutianAI/spike/services/ondevice"
	"github.com/AleutianAI/spike/services/redact"
	"github.com/AleutianAI/spike/services/routing"
)

// errCloudDisabled is returned by the cloud stand-in when no API key is set.
var errCloudDisabled = errors.New("cloud fallback disabled: set GEMINI_API_KEY")

// app is the wired router and its collaborators.
type app struct {
	settings    *config.Settings
	registry    *routing.ToolRegistry
	router      *routing.HybridRouter
	handle      *ondevice.Handle
	transcriber bridge.Transcriber
	journal     *journal.Store
	logger      *slog.Logger
}

// loadSettings reads the environment and applies flag overrides.
func (o *rootOptions) loadSettings() (*config.Settings, error) {
	settings, err := config.LoadSettings()
	if err != nil {
		return nil, err
	}
	if o.toolsFile != "" {
		settings.ToolsFile = o.toolsFile
	}
	return settings, nil
}

// buildApp wires configuration into a HybridRouter.
//
// Description:
//
//	The on-device side is an Ollama engine behind a serializing Handle. The
//	cloud side is Gemini when GEMINI_API_KEY is set; otherwise every cloud
//	fallback fails with errCloudDisabled and the request reports the error.
//	The journal opens only when SPIKE_JOURNAL_DIR is set; an unavailable
//	journal is logged and skipped.
func buildApp(ctx context.Context, settings *config.Settings, logger *slog.Logger) (*app, error) {
	registry, err := config.LoadRegistry(ctx, settings.ToolsFile)
	if err != nil {
		return nil, fmt.Errorf("load tools: %w", err)
	}

	engine, err := ondevice.NewOllamaEngine(settings.OllamaConfig())
	if err != nil {
		return nil, fmt.Errorf("on-device engine: %w", err)
	}
	handle := ondevice.NewHandle(engine, ondevice.WithLogger(logger))

	a := &app{
		settings: settings,
		registry: registry,
		handle:   handle,
		logger:   logger,
	}

	var cloudClassifier routing.Classifier
	if settings.CloudEnabled() {
		client, err := cloud.NewClient(ctx, settings.GeminiConfig())
		if err != nil {
			_ = handle.Close()
			return nil, fmt.Errorf("cloud client: %w", err)
		}
		cloudClassifier = cloud.NewGeminiOracle(client, settings.GeminiConfig(), cloud.WithLogger(logger))
		a.transcriber = cloud.NewGeminiTranscriber(client, settings.GeminiConfig(), logger)
		logger.Info("Cloud fallback enabled", slog.String("model", settings.GeminiModel))
	} else {
		cloudClassifier = disabledCloud()
		logger.Warn("GEMINI_API_KEY not set, cloud fallback and transcription disabled")
	}

	if settings.JournalDir != "" {
		store, err := journal.Open(settings.JournalDir, journal.WithLogger(logger))
		if err != nil {
			logger.Warn("Decision journal unavailable, continuing without it",
				slog.String("path", settings.JournalDir),
				slog.String("error", err.Error()),
			)
		} else {
			a.journal = store
			logger.Info("Decision journal opened", slog.String("path", settings.JournalDir))
		}
	}

	a.router = routing.NewHybridRouter(registry, handle, cloudClassifier, routing.WithLogger(logger))
	logger.Info("Router ready",
		slog.Int("tools", registry.Len()),
		slog.String("ondevice_model", settings.OnDeviceModel),
		slog.String("ollama_url", redact.String(settings.OllamaBaseURL)),
	)
	return a, nil
}

// Close releases the on-device handle and the journal.
func (a *app) Close() error {
	var errs []error
	if err := a.handle.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close on-device handle: %w", err))
	}
	if a.journal != nil {
		if err := a.journal.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close journal: %w", err))
		}
	}
	return errors.Join(errs...)
}

// disabledCloud stands in for the cloud oracle when no key is configured.
func disabledCloud() routing.Classifier {
	return routing.ClassifierFunc{
		Kind: routing.BackendCloud,
		Fn: func(context.Context, []routing.Message, []routing.ToolSpec) (*routing.ClassificationResult, error) {
			return nil, errCloudDisabled
		},
	}
}
