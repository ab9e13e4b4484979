// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads the tool registry and runtime settings.
package config

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/spike/services/routing"
)

// =============================================================================
// Embedded Default Tools
// =============================================================================

//go:embed tools.yaml
var defaultToolsYAML []byte

// MaxYAMLFileSize bounds tool files read from disk.
const MaxYAMLFileSize = 1 << 20

var configTracer = otel.Tracer("spike.config")

var validate = validator.New(validator.WithRequiredStructEnabled())

// =============================================================================
// Tools Configuration Types
// =============================================================================

// ToolsConfig is the tool registry as declared in YAML.
//
// Thread Safety: Immutable after loading; safe for concurrent use.
type ToolsConfig struct {
	// DescriptionOverrides replace descriptions shown to the on-device
	// model only.
	DescriptionOverrides map[string]string `yaml:"description_overrides"`

	// Tools in declaration order.
	Tools []ToolEntry `yaml:"tools" validate:"required,min=1,dive"`
}

// ToolEntry declares one tool.
type ToolEntry struct {
	Name        string          `yaml:"name" validate:"required"`
	Description string          `yaml:"description" validate:"required"`
	Parameters  ParametersEntry `yaml:"parameters"`
}

// ParametersEntry declares a tool's arguments.
type ParametersEntry struct {
	Properties OrderedParams `yaml:"properties"`
	Required   []string      `yaml:"required"`
}

// ParamEntry declares one argument.
type ParamEntry struct {
	Type        string `yaml:"type" validate:"required,oneof=string integer number boolean"`
	Description string `yaml:"description"`
}

// OrderedParams is a YAML mapping of parameters that remembers key order.
type OrderedParams struct {
	Names  []string
	ByName map[string]ParamEntry
}

// UnmarshalYAML decodes a mapping node, keeping declaration order.
func (p *OrderedParams) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: properties must be a mapping", node.Line)
	}
	p.Names = make([]string, 0, len(node.Content)/2)
	p.ByName = make(map[string]ParamEntry, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		key := node.Content[i].Value
		if _, dup := p.ByName[key]; dup {
			return fmt.Errorf("line %d: duplicate parameter %q", node.Content[i].Line, key)
		}
		var entry ParamEntry
		if err := node.Content[i+1].Decode(&entry); err != nil {
			return fmt.Errorf("parameter %q: %w", key, err)
		}
		p.Names = append(p.Names, key)
		p.ByName[key] = entry
	}
	return nil
}

// =============================================================================
// Singleton Default Tools Config
// =============================================================================

var (
	toolsConfigMu      sync.RWMutex
	toolsConfigOnce    sync.Once
	cachedToolsConfig  *ToolsConfig
	toolsConfigLoadErr error
)

// GetToolsConfig returns the cached embedded tools configuration.
//
// Description:
//
//	Loads the embedded tools.yaml on first call and caches the result,
//	including a load error, for subsequent calls.
//
// Inputs:
//
//	ctx - Context for tracing. Must not be nil.
//
// Outputs:
//
//	*ToolsConfig - The loaded configuration. Never nil on success.
//	error        - Non-nil if loading or validation failed.
//
// Thread Safety: Safe for concurrent use via sync.Once.
func GetToolsConfig(ctx context.Context) (*ToolsConfig, error) {
	if ctx == nil {
		return nil, fmt.Errorf("GetToolsConfig: ctx must not be nil")
	}

	toolsConfigMu.RLock()
	if cachedToolsConfig != nil || toolsConfigLoadErr != nil {
		cfg, err := cachedToolsConfig, toolsConfigLoadErr
		toolsConfigMu.RUnlock()
		return cfg, err
	}
	toolsConfigMu.RUnlock()

	toolsConfigMu.Lock()
	defer toolsConfigMu.Unlock()

	toolsConfigOnce.Do(func() {
		cachedToolsConfig, toolsConfigLoadErr = LoadToolsConfig(ctx, defaultToolsYAML)
	})
	return cachedToolsConfig, toolsConfigLoadErr
}

// ResetToolsConfig clears the cached config for testing.
//
// Thread Safety: Safe for concurrent use.
func ResetToolsConfig() {
	toolsConfigMu.Lock()
	defer toolsConfigMu.Unlock()
	cachedToolsConfig = nil
	toolsConfigLoadErr = nil
	toolsConfigOnce = sync.Once{}
}

// LoadToolsFile loads a tools configuration from a YAML file.
func LoadToolsFile(ctx context.Context, path string) (*ToolsConfig, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("LoadToolsFile: %w", err)
	}
	if info.Size() > MaxYAMLFileSize {
		return nil, fmt.Errorf("LoadToolsFile: %s exceeds maximum size (%d > %d)", path, info.Size(), MaxYAMLFileSize)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("LoadToolsFile: %w", err)
	}
	return LoadToolsConfig(ctx, data)
}

// LoadToolsConfig parses and validates a ToolsConfig from YAML bytes.
//
// Description:
//
//	Parses the YAML, validates struct constraints with validator, and checks
//	cross-field rules: unique tool names, required parameters that exist,
//	and overrides that name a declared tool.
//
// Inputs:
//
//	ctx  - Context for tracing.
//	data - Raw YAML bytes.
//
// Outputs:
//
//	*ToolsConfig - The validated configuration.
//	error        - Non-nil if parsing or validation fails.
func LoadToolsConfig(ctx context.Context, data []byte) (*ToolsConfig, error) {
	_, span := configTracer.Start(ctx, "config.LoadToolsConfig")
	defer span.End()

	if len(data) == 0 {
		return nil, fmt.Errorf("LoadToolsConfig: empty YAML data")
	}
	if len(data) > MaxYAMLFileSize {
		return nil, fmt.Errorf("LoadToolsConfig: YAML data exceeds maximum size (%d > %d)", len(data), MaxYAMLFileSize)
	}

	var cfg ToolsConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("LoadToolsConfig: parsing YAML: %w", err)
	}
	if err := validateToolsConfig(&cfg); err != nil {
		return nil, fmt.Errorf("LoadToolsConfig: validation: %w", err)
	}

	span.SetAttributes(
		attribute.Int("tools", len(cfg.Tools)),
		attribute.Int("description_overrides", len(cfg.DescriptionOverrides)),
	)
	slog.Info("tools config loaded",
		slog.Int("tools", len(cfg.Tools)),
		slog.Int("description_overrides", len(cfg.DescriptionOverrides)),
	)
	return &cfg, nil
}

func validateToolsConfig(cfg *ToolsConfig) error {
	if err := validate.Struct(cfg); err != nil {
		return err
	}

	seen := make(map[string]bool, len(cfg.Tools))
	for i, t := range cfg.Tools {
		if seen[t.Name] {
			return fmt.Errorf("tools[%d]: duplicate tool %q", i, t.Name)
		}
		seen[t.Name] = true

		for _, name := range t.Parameters.Properties.Names {
			if err := validate.Struct(t.Parameters.Properties.ByName[name]); err != nil {
				return fmt.Errorf("tools[%d] (%s): parameter %q: %w", i, t.Name, name, err)
			}
		}
		for _, req := range t.Parameters.Required {
			if _, ok := t.Parameters.Properties.ByName[req]; !ok {
				return fmt.Errorf("tools[%d] (%s): required parameter %q is not declared", i, t.Name, req)
			}
		}
	}

	for name := range cfg.DescriptionOverrides {
		if !seen[name] {
			return fmt.Errorf("description_overrides: unknown tool %q", name)
		}
	}
	return nil
}

// =============================================================================
// Registry Construction
// =============================================================================

// Specs converts the declared tools into routing specs.
func (c *ToolsConfig) Specs() []routing.ToolSpec {
	specs := make([]routing.ToolSpec, 0, len(c.Tools))
	for _, t := range c.Tools {
		props := make(map[string]routing.ToolParam, len(t.Parameters.Properties.Names))
		for _, name := range t.Parameters.Properties.Names {
			p := t.Parameters.Properties.ByName[name]
			props[name] = routing.ToolParam{Type: p.Type, Description: p.Description}
		}
		specs = append(specs, routing.ToolSpec{
			Name:        t.Name,
			Description: t.Description,
			Parameters: routing.ToolParameters{
				Type:       "object",
				Properties: props,
				Required:   append([]string(nil), t.Parameters.Required...),
				Order:      append([]string(nil), t.Parameters.Properties.Names...),
			},
		})
	}
	return specs
}

// Registry builds a routing.ToolRegistry from the configuration.
func (c *ToolsConfig) Registry() (*routing.ToolRegistry, error) {
	return routing.NewToolRegistry(c.Specs(), c.DescriptionOverrides)
}

// LoadRegistry returns the registry from path, or the embedded default when
// path is empty.
func LoadRegistry(ctx context.Context, path string) (*routing.ToolRegistry, error) {
	var (
		cfg *ToolsConfig
		err error
	)
	if path == "" {
		cfg, err = GetToolsConfig(ctx)
	} else {
		cfg, err = LoadToolsFile(ctx, path)
	}
	if err != nil {
		return nil, err
	}
	return cfg.Registry()
}
