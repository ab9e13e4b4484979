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
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/AleutianAI/spike/services/journal"
	"github.com/AleutianAI/spike/services/routing"
)

func newRouteCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "route <utterance...>",
		Short: "Route one utterance and print the result as JSON",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			logger, err := opts.logger()
			if err != nil {
				return err
			}
			settings, err := opts.loadSettings()
			if err != nil {
				return err
			}
			a, err := buildApp(ctx, settings, logger)
			if err != nil {
				return err
			}
			defer a.Close()

			utterance := strings.Join(args, " ")
			res, routeErr := a.router.Route(ctx, []routing.Message{{Role: routing.RoleUser, Content: utterance}})

			if a.journal != nil {
				e := journal.Entry{
					RequestID: uuid.NewString(),
					Timestamp: time.Now(),
					Origin:    "cli",
					Utterance: utterance,
					Result:    res,
				}
				if routeErr != nil {
					e.Error = routeErr.Error()
				}
				if err := a.journal.Append(ctx, e); err != nil {
					logger.Warn("journal append failed", slog.String("error", err.Error()))
				}
			}

			if routeErr != nil {
				return routeErr
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), res.MarshalIndent())
			return err
		},
	}
}
