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
	"math"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/AleutianAI/spike/services/bridge"
	"github.com/AleutianAI/spike/services/telemetry"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	var (
		addr  string
		debug bool
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP bridge",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), opts, addr, debug)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides SPIKE_LISTEN_ADDR)")
	cmd.Flags().BoolVar(&debug, "debug", false, "gin debug mode")
	return cmd
}

func runServe(parent context.Context, opts *rootOptions, addr string, debug bool) error {
	logger, err := opts.logger()
	if err != nil {
		return err
	}
	settings, err := opts.loadSettings()
	if err != nil {
		return err
	}
	if addr != "" {
		settings.ListenAddr = addr
	}

	if debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	shutdownTracing, err := telemetry.Setup(telemetry.Options{
		ServiceName: bridge.ServiceName,
		Stdout:      settings.TraceStdout,
		Writer:      opts.stderr,
		Logger:      logger,
	})
	if err != nil {
		return err
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(ctx); err != nil {
			logger.Warn("Tracing shutdown failed", slog.String("error", err.Error()))
		}
	}()

	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := buildApp(ctx, settings, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Warn("Shutdown cleanup failed", slog.String("error", err.Error()))
		}
	}()

	serverOpts := []bridge.Option{
		bridge.WithLogger(logger),
		bridge.WithRequestLimit(settings.RequestQPS, requestBurst(settings.RequestQPS)),
	}
	if a.transcriber != nil {
		serverOpts = append(serverOpts, bridge.WithTranscriber(a.transcriber))
	}
	if a.journal != nil {
		serverOpts = append(serverOpts, bridge.WithRecorder(a.journal))
	}

	srv := bridge.NewServer(a.router, serverOpts...)
	if err := srv.ListenAndServe(ctx, settings.ListenAddr); err != nil {
		return fmt.Errorf("serve: %w", err)
	}
	return nil
}

// requestBurst allows one second's worth of requests at once.
func requestBurst(qps float64) int {
	if qps <= 0 {
		return 0
	}
	return int(math.Max(1, math.Ceil(qps)))
}
