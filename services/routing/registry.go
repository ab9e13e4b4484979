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
	"fmt"
	"sort"
)

// DefaultDescriptionOverrides disambiguates tools the on-device model tends
// to confuse.
var DefaultDescriptionOverrides = map[string]string{
	"set_timer":       "Set a countdown timer for a duration in minutes. NOT an alarm.",
	"set_alarm":       "Set an alarm for a specific time of day. NOT a timer.",
	"create_reminder": "Create a reminder with a title and time.",
}

// ToolRegistry holds the tools available to one routing request.
//
// Description:
//
//	Specs are kept in registration order. Description overrides are applied
//	only to the copy handed to the on-device classifier; the cloud model sees
//	the original descriptions.
//
// Thread Safety: Immutable after construction; safe for concurrent use.
type ToolRegistry struct {
	specs     []ToolSpec
	byName    map[string]int
	overrides map[string]string
}

// NewToolRegistry creates a registry from specs and description overrides.
//
// Inputs:
//
//	specs     - Tool specs. Names must be non-empty and unique.
//	overrides - Tool name to replacement description. Entries for tools not
//	            in specs are ignored. May be nil.
//
// Outputs:
//
//	*ToolRegistry - The registry. Nil on error.
//	error         - Non-nil on an empty or duplicate name.
func NewToolRegistry(specs []ToolSpec, overrides map[string]string) (*ToolRegistry, error) {
	r := &ToolRegistry{
		specs:     make([]ToolSpec, 0, len(specs)),
		byName:    make(map[string]int, len(specs)),
		overrides: make(map[string]string, len(overrides)),
	}
	for _, s := range specs {
		if s.Name == "" {
			return nil, fmt.Errorf("tool registry: tool with empty name")
		}
		if _, dup := r.byName[s.Name]; dup {
			return nil, fmt.Errorf("tool registry: duplicate tool %q", s.Name)
		}
		if s.Parameters.Type == "" {
			s.Parameters.Type = "object"
		}
		r.byName[s.Name] = len(r.specs)
		r.specs = append(r.specs, s)
	}
	for name, desc := range overrides {
		if _, ok := r.byName[name]; ok {
			r.overrides[name] = desc
		}
	}
	return r, nil
}

// MustToolRegistry is NewToolRegistry that panics on error. Intended for
// static tool sets and tests.
func MustToolRegistry(specs []ToolSpec, overrides map[string]string) *ToolRegistry {
	r, err := NewToolRegistry(specs, overrides)
	if err != nil {
		panic(err)
	}
	return r
}

// Has reports whether name is a registered tool.
func (r *ToolRegistry) Has(name string) bool {
	if r == nil {
		return false
	}
	_, ok := r.byName[name]
	return ok
}

// Lookup returns the spec for name with its original description.
func (r *ToolRegistry) Lookup(name string) (ToolSpec, bool) {
	if r == nil {
		return ToolSpec{}, false
	}
	i, ok := r.byName[name]
	if !ok {
		return ToolSpec{}, false
	}
	return r.specs[i], true
}

// Names returns the registered tool names sorted lexically.
func (r *ToolRegistry) Names() []string {
	if r == nil {
		return nil
	}
	names := make([]string, 0, len(r.specs))
	for _, s := range r.specs {
		names = append(names, s.Name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of registered tools.
func (r *ToolRegistry) Len() int {
	if r == nil {
		return 0
	}
	return len(r.specs)
}

// Specs returns the specs in registration order with original descriptions.
func (r *ToolRegistry) Specs() []ToolSpec {
	if r == nil {
		return nil
	}
	out := make([]ToolSpec, len(r.specs))
	copy(out, r.specs)
	return out
}

// OnDeviceSpecs returns the specs with description overrides applied.
func (r *ToolRegistry) OnDeviceSpecs() []ToolSpec {
	out := r.Specs()
	for i := range out {
		if desc, ok := r.overrides[out[i].Name]; ok {
			out[i].Description = desc
		}
	}
	return out
}

// FilterKnown drops calls naming tools outside the registry.
//
// Unknown references are classifier noise and are never reported as errors.
func (r *ToolRegistry) FilterKnown(calls []FunctionCall) (known []FunctionCall, dropped int) {
	known = make([]FunctionCall, 0, len(calls))
	for _, c := range calls {
		if !r.Has(c.Name) {
			dropped++
			continue
		}
		known = append(known, c)
	}
	return known, dropped
}
