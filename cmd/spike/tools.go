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
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/spike/services/config"
	"github.com/AleutianAI/spike/services/routing"
)

func newToolsCmd(opts *rootOptions) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "tools",
		Short: "Print the tool registry",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			if _, err := opts.logger(); err != nil {
				return err
			}
			path := opts.toolsFile
			if path == "" {
				path = strings.TrimSpace(os.Getenv(config.EnvToolsFile))
			}
			registry, err := config.LoadRegistry(ctx, path)
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(registry.Specs())
			}
			return printTools(cmd, registry)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print tool specs as JSON")
	return cmd
}

// printTools writes one row per tool: name, parameters (required marked
// with *), description.
func printTools(cmd *cobra.Command, registry *routing.ToolRegistry) error {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TOOL\tPARAMETERS\tDESCRIPTION")
	for _, spec := range registry.Specs() {
		params := make([]string, 0, len(spec.Parameters.Properties))
		for _, name := range spec.Parameters.Names() {
			if spec.Parameters.IsRequired(name) {
				name += "*"
			}
			params = append(params, name)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", spec.Name, strings.Join(params, ","), spec.Description)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(cmd.OutOrStdout(), "\n%d tools\n", registry.Len())
	return err
}
