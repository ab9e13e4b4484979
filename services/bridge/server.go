// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package bridge exposes the hybrid router over HTTP.
//
// Endpoints:
//
//	POST /v1/route              - Route a text utterance or a conversation
//	POST /v1/transcribe_and_act - Transcribe uploaded audio, then route it
//	GET  /v1/tools              - List the tool registry
//	GET  /health                - Liveness check
//	GET  /metrics               - Prometheus metrics
package bridge

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"golang.org/x/time/rate"

	"github.com/AleutianAI/spike/services/journal"
	"github.com/AleutianAI/spike/services/routing"
)

// ServiceName is the otelgin server name.
const ServiceName = "spike-bridge"

// DefaultMaxAudioBytes caps an uploaded audio file.
const DefaultMaxAudioBytes = 25 << 20

var bridgeTracer = otel.Tracer("spike.bridge")

// Router routes conversations against a tool registry.
//
// *routing.HybridRouter satisfies this interface.
type Router interface {
	Route(ctx context.Context, messages []routing.Message) (*routing.RoutingResult, error)
	Registry() *routing.ToolRegistry
}

// Transcriber turns recorded audio into text.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, mimeType string) (string, error)
}

// Recorder persists routing decisions.
//
// *journal.Store satisfies this interface.
type Recorder interface {
	Append(ctx context.Context, e journal.Entry) error
}

// Server serves the bridge endpoints.
//
// Thread Safety: Safe for concurrent use once constructed.
type Server struct {
	router        Router
	transcriber   Transcriber
	recorder      Recorder
	limiter       *rate.Limiter
	logger        *slog.Logger
	now           func() time.Time
	maxAudioBytes int64
}

// Option configures a Server.
type Option func(*Server)

// WithTranscriber enables POST /v1/transcribe_and_act.
func WithTranscriber(t Transcriber) Option {
	return func(s *Server) { s.transcriber = t }
}

// WithRecorder journals every routed request.
func WithRecorder(r Recorder) Option {
	return func(s *Server) { s.recorder = r }
}

// WithRequestLimit limits requests to qps per second with the given burst.
// A non-positive qps disables the limit.
func WithRequestLimit(qps float64, burst int) Option {
	return func(s *Server) {
		if qps <= 0 {
			s.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(qps), burst)
	}
}

// WithLogger sets the server's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock overrides time.Now for timing measurements.
func WithClock(now func() time.Time) Option {
	return func(s *Server) {
		if now != nil {
			s.now = now
		}
	}
}

// WithMaxAudioBytes overrides DefaultMaxAudioBytes.
func WithMaxAudioBytes(n int64) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxAudioBytes = n
		}
	}
}

// NewServer creates a bridge server.
//
// Inputs:
//
//	router - The router. Must not be nil.
//	opts   - Optional transcriber, recorder, limits and logger.
//
// Outputs:
//
//	*Server - The server. Call Handler to obtain the http.Handler.
func NewServer(router Router, opts ...Option) *Server {
	if router == nil {
		panic("bridge.NewServer: router must not be nil")
	}
	s := &Server{
		router:        router,
		logger:        slog.Default(),
		now:           time.Now,
		maxAudioBytes: DefaultMaxAudioBytes,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler builds the gin engine with middleware and routes registered.
func (s *Server) Handler() *gin.Engine {
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(otelgin.Middleware(ServiceName))
	engine.Use(RequestIDMiddleware())
	engine.Use(s.loggingMiddleware())
	s.RegisterRoutes(engine)
	return engine
}

// RegisterRoutes registers every bridge endpoint on engine.
//
// The request limiter applies to /v1 only; health and metrics stay
// reachable under load.
func (s *Server) RegisterRoutes(engine *gin.Engine) {
	engine.GET("/health", s.HandleHealth)
	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := engine.Group("/v1")
	v1.Use(s.rateLimitMiddleware())
	{
		v1.POST("/route", s.HandleRoute)
		v1.POST("/transcribe_and_act", s.HandleTranscribeAndAct)
		v1.GET("/tools", s.HandleTools)
	}
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Starting Spike bridge", slog.String("address", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	case <-ctx.Done():
		s.logger.Info("Shutting down Spike bridge")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
