// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/AleutianAI/spike/services/cloud"
	"github.com/AleutianAI/spike/services/ondevice"
)

// Environment variables read by LoadSettings.
const (
	EnvOllamaBaseURL  = "OLLAMA_BASE_URL"
	EnvOllamaURL      = "OLLAMA_URL"
	EnvOnDeviceModel  = "SPIKE_ONDEVICE_MODEL"
	EnvGeminiAPIKey   = "GEMINI_API_KEY"
	EnvGeminiModel    = "GEMINI_MODEL"
	EnvCloudQPS       = "SPIKE_CLOUD_QPS"
	EnvJournalDir     = "SPIKE_JOURNAL_DIR"
	EnvToolsFile      = "SPIKE_TOOLS_FILE"
	EnvTraceStdout    = "SPIKE_TRACE_STDOUT"
	EnvListenAddr     = "SPIKE_LISTEN_ADDR"
	EnvRequestRateQPS = "SPIKE_REQUEST_QPS"
)

const (
	// DefaultOllamaURL is used when no Ollama URL is set.
	DefaultOllamaURL = "http://localhost:11434"

	// DefaultOnDeviceModel is a small function-calling model served by Ollama.
	DefaultOnDeviceModel = "functiongemma:270m"

	// DefaultListenAddr matches the desktop client's expected bridge address.
	DefaultListenAddr = "127.0.0.1:8420"
)

// Settings holds runtime configuration.
//
// Description:
//
//	Populated from the environment by LoadSettings. GeminiAPIKey may be empty
//	for commands that never reach the cloud; CloudEnabled reports whether it
//	is set.
type Settings struct {
	OllamaBaseURL string `validate:"required,url"`
	OnDeviceModel string `validate:"required"`

	GeminiAPIKey string
	GeminiModel  string  `validate:"required"`
	CloudQPS     float64 `validate:"gte=0"`

	// JournalDir enables the decision journal when non-empty.
	JournalDir string

	// ToolsFile replaces the embedded tools.yaml when non-empty.
	ToolsFile string

	// TraceStdout exports spans to stdout.
	TraceStdout bool

	ListenAddr string `validate:"required,hostname_port"`

	// RequestQPS limits bridge requests per second. Zero disables the limit.
	RequestQPS float64 `validate:"gte=0"`
}

// LoadSettings reads Settings from the process environment.
func LoadSettings() (*Settings, error) {
	return LoadSettingsFrom(os.Getenv)
}

// LoadSettingsFrom reads Settings through getenv and validates them.
//
// Outputs:
//
//	*Settings - The settings. Nil on error.
//	error     - Non-nil on a malformed number or failed validation.
func LoadSettingsFrom(getenv func(string) string) (*Settings, error) {
	s := &Settings{
		OllamaBaseURL: ResolveOllamaURL(getenv),
		OnDeviceModel: orDefault(getenv(EnvOnDeviceModel), DefaultOnDeviceModel),
		GeminiAPIKey:  getenv(EnvGeminiAPIKey),
		GeminiModel:   orDefault(getenv(EnvGeminiModel), cloud.DefaultModel),
		JournalDir:    getenv(EnvJournalDir),
		ToolsFile:     getenv(EnvToolsFile),
		ListenAddr:    orDefault(getenv(EnvListenAddr), DefaultListenAddr),
	}

	var err error
	if s.CloudQPS, err = parseFloatEnv(getenv, EnvCloudQPS); err != nil {
		return nil, err
	}
	if s.RequestQPS, err = parseFloatEnv(getenv, EnvRequestRateQPS); err != nil {
		return nil, err
	}
	if v := getenv(EnvTraceStdout); v != "" {
		if s.TraceStdout, err = strconv.ParseBool(v); err != nil {
			return nil, fmt.Errorf("LoadSettings: %s: %w", EnvTraceStdout, err)
		}
	}

	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Validate checks field constraints.
func (s *Settings) Validate() error {
	if err := validate.Struct(s); err != nil {
		return fmt.Errorf("invalid settings: %w", err)
	}
	return nil
}

// CloudEnabled reports whether a Gemini API key is configured.
func (s *Settings) CloudEnabled() bool {
	return s.GeminiAPIKey != ""
}

// OllamaConfig returns the on-device engine settings.
func (s *Settings) OllamaConfig() ondevice.OllamaConfig {
	return ondevice.OllamaConfig{BaseURL: s.OllamaBaseURL, Model: s.OnDeviceModel}
}

// GeminiConfig returns the cloud settings.
func (s *Settings) GeminiConfig() cloud.GeminiConfig {
	return cloud.GeminiConfig{APIKey: s.GeminiAPIKey, Model: s.GeminiModel, QPS: s.CloudQPS, Burst: 1}
}

// ResolveOllamaURL resolves the Ollama server URL.
//
// Description:
//
//	Resolution order:
//	  1. OLLAMA_BASE_URL (preferred)
//	  2. OLLAMA_URL (deprecated, emits warning)
//	  3. http://localhost:11434 (default)
func ResolveOllamaURL(getenv func(string) string) string {
	if url := getenv(EnvOllamaBaseURL); url != "" {
		return url
	}
	if url := getenv(EnvOllamaURL); url != "" {
		slog.Warn("OLLAMA_URL is deprecated, use OLLAMA_BASE_URL instead",
			slog.String("ollama_url", url))
		return url
	}
	return DefaultOllamaURL
}

func parseFloatEnv(getenv func(string) string, key string) (float64, error) {
	v := strings.TrimSpace(getenv(key))
	if v == "" {
		return 0, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("LoadSettings: %s: %w", key, err)
	}
	return f, nil
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
