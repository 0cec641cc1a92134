// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package orchestrator

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/AleutianAI/conceptforge/pkg/extensions"
	"github.com/AleutianAI/conceptforge/pkg/logging"
	"github.com/AleutianAI/conceptforge/services/oracle"
	"github.com/AleutianAI/conceptforge/services/resolve"
	"github.com/AleutianAI/conceptforge/services/vocab"
)

// Service is the HTTP service lifecycle.
//
// Thread Safety:
//
//	Implementations are safe for concurrent use after construction;
//	Run blocks and is called at most once.
type Service interface {
	// Run starts the HTTP server and blocks until it stops.
	Run() error

	// Router exposes the configured Gin engine for testing.
	Router() *gin.Engine
}

type service struct {
	config ServiceConfig
	opts   extensions.ServiceOptions
	router *gin.Engine
	logger *logging.Logger
	orch   *Orchestrator
}

var _ Service = (*service)(nil)

// NewStack wires the full resolution stack: the ATHENA gateway with
// its cache, the oracle clients, the standard and fast exploration
// engines, and the build orchestrator on top.
func NewStack(cfg ServiceConfig, logger *logging.Logger) (*Orchestrator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logging.Default()
	}

	athenaOpts := []vocab.AthenaOption{vocab.WithLogger(logger)}
	if cfg.AthenaBaseURL != "" {
		athenaOpts = append(athenaOpts, vocab.WithBaseURL(cfg.AthenaBaseURL))
	}
	if cfg.AthenaRateLimit > 0 {
		athenaOpts = append(athenaOpts, vocab.WithRateLimit(cfg.AthenaRateLimit))
	}
	gateway := vocab.NewCachedGateway(
		vocab.NewAthenaClient(athenaOpts...),
		vocab.CacheConfig{MaxSize: cfg.CacheSize, TTL: cfg.CacheTTL},
	)

	oracleOpts := []oracle.OpenAIOption{oracle.WithLogger(logger)}
	if cfg.OracleModel != "" {
		oracleOpts = append(oracleOpts, oracle.WithModel(cfg.OracleModel))
	}
	client, err := oracle.NewOpenAIClient(oracleOpts...)
	if err != nil {
		return nil, fmt.Errorf("initialize oracle client: %w", err)
	}

	judge := oracle.NewJudge(client, logger)
	seeds := oracle.NewSeedSelector(client, logger)
	decomposer := oracle.NewDecomposer(client, logger)

	engine := resolve.NewEngine(gateway, judge, seeds,
		resolve.WithConfig(cfg.Resolve), resolve.WithLogger(logger))
	fastEngine := resolve.NewEngine(gateway, judge, seeds,
		resolve.WithConfig(resolve.FastConfig()), resolve.WithLogger(logger))

	return New(engine, decomposer,
		WithFastResolver(fastEngine),
		WithMaxParallel(cfg.MaxParallelSets),
		WithOrchestratorLogger(logger)), nil
}

// NewService exposes the resolution stack behind an HTTP surface. A
// nil opts runs with the no-op extension defaults: no authentication,
// no audit trail.
func NewService(cfg ServiceConfig, opts *extensions.ServiceOptions) (Service, error) {
	logger := logging.New(logging.Config{
		Level:   logging.ParseLevel(cfg.LogLevel),
		LogDir:  cfg.LogDir,
		Service: "conceptforge",
	})

	orch, err := NewStack(cfg, logger)
	if err != nil {
		return nil, err
	}

	s := &service{config: cfg, logger: logger, orch: orch}
	if opts != nil {
		s.opts = *opts
	} else {
		s.opts = extensions.DefaultOptions()
	}
	if s.opts.AuthProvider == nil {
		s.opts.AuthProvider = &extensions.NopAuthProvider{}
	}
	if s.opts.AuditLogger == nil {
		s.opts.AuditLogger = &extensions.NopAuditLogger{}
	}
	s.initRouter()
	return s, nil
}

func (s *service) Run() error {
	addr := fmt.Sprintf(":%d", s.config.Port)
	s.logger.Info("starting conceptforge server", "port", s.config.Port)
	return s.router.Run(addr)
}

func (s *service) Router() *gin.Engine {
	return s.router
}

func (s *service) initRouter() {
	if s.config.GinMode != "" {
		gin.SetMode(s.config.GinMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware("conceptforge"))

	router.GET("/health", HandleHealth())
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/v1/concepts")
	v1.Use(AuthMiddleware(s.opts.AuthProvider, s.opts.AuditLogger))
	v1.POST("/resolve", HandleResolve(s.orch, s.logger, s.opts.AuditLogger))
	v1.POST("/sets", HandleResolveSets(s.orch, s.logger, s.opts.AuditLogger))

	s.router = router
}
