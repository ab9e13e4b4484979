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
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/spike/services/routing"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("SPIKE_TOOLS_FILE", "")
	var stdout, stderr bytes.Buffer
	cmd := newRootCmd(&stdout, &stderr)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), err
}

func TestToolsCommand_Table(t *testing.T) {
	out, err := execute(t, "tools")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.NotEmpty(t, lines)
	assert.True(t, strings.HasPrefix(lines[0], "TOOL"))
	assert.Contains(t, out, "set_alarm")
	assert.Contains(t, out, "hour*")
	assert.Contains(t, out, "12 tools")
}

func TestToolsCommand_JSON(t *testing.T) {
	out, err := execute(t, "tools", "--json")
	require.NoError(t, err)

	var specs []routing.ToolSpec
	require.NoError(t, json.Unmarshal([]byte(out), &specs))
	assert.Len(t, specs, 12)
}

func TestToolsCommand_MissingFile(t *testing.T) {
	_, err := execute(t, "tools", "--tools-file", "/nonexistent/tools.yaml")
	assert.Error(t, err)
}

func TestRouteCommand_RequiresUtterance(t *testing.T) {
	_, err := execute(t, "route")
	assert.Error(t, err)
}

func TestRootCommand_BadLogLevel(t *testing.T) {
	_, err := execute(t, "tools", "--log-level", "loud")
	assert.Error(t, err)
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
		err  bool
	}{
		{"debug", slog.LevelDebug, false},
		{"INFO", slog.LevelInfo, false},
		{"", slog.LevelInfo, false},
		{"warning", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"verbose", slog.LevelInfo, true},
	}
	for _, tt := range tests {
		got, err := parseLevel(tt.in)
		if (err != nil) != tt.err {
			t.Errorf("parseLevel(%q) error = %v, wantErr %v", tt.in, err, tt.err)
			continue
		}
		if got != tt.want {
			t.Errorf("parseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestRequestBurst(t *testing.T) {
	assert.Equal(t, 0, requestBurst(0))
	assert.Equal(t, 1, requestBurst(0.5))
	assert.Equal(t, 3, requestBurst(2.2))
}

func TestDisabledCloud(t *testing.T) {
	c := disabledCloud()
	assert.Equal(t, routing.BackendCloud, c.Backend())
	_, err := c.Classify(context.Background(), nil, nil)
	assert.True(t, errors.Is(err, errCloudDisabled))
}
