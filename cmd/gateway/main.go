// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command gateway runs the LLM inference gateway: model lifecycle,
// router, session store, auth, rate limiter, journal, and the
// OpenAI-subset HTTP surface.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	otelginmw "go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"github.com/libraxisai/lbrx-gateway/internal/auth"
	"github.com/libraxisai/lbrx-gateway/internal/config"
	"github.com/libraxisai/lbrx-gateway/internal/httpapi"
	"github.com/libraxisai/lbrx-gateway/internal/journal"
	"github.com/libraxisai/lbrx-gateway/internal/kernel"
	"github.com/libraxisai/lbrx-gateway/internal/lifecycle"
	"github.com/libraxisai/lbrx-gateway/internal/metrics"
	"github.com/libraxisai/lbrx-gateway/internal/middleware"
	"github.com/libraxisai/lbrx-gateway/internal/preloader"
	"github.com/libraxisai/lbrx-gateway/internal/ratelimit"
	"github.com/libraxisai/lbrx-gateway/internal/registry"
	"github.com/libraxisai/lbrx-gateway/internal/router"
	"github.com/libraxisai/lbrx-gateway/internal/session"
	"github.com/libraxisai/lbrx-gateway/internal/session/memory"
	"github.com/libraxisai/lbrx-gateway/internal/session/redisstore"
	"github.com/libraxisai/lbrx-gateway/internal/tracing"
)

func main() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		slog.Warn("failed to load .env file", slog.Any("error", err))
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("error", err))
		os.Exit(1)
	}

	shutdownTracing, err := tracing.Setup(context.Background(), "lbrx-gateway")
	if err != nil {
		slog.Warn("tracing setup failed, continuing without a trace exporter", slog.Any("error", err))
		shutdownTracing = func(context.Context) error { return nil }
	}
	defer shutdownTracing(context.Background())
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{}))

	reg, err := registry.New(registry.DefaultCatalog())
	if err != nil {
		slog.Error("registry build failed", slog.Any("error", err))
		os.Exit(1)
	}
	if cfg.CatalogFile != "" {
		if overlay, err := registry.LoadCatalogFile(cfg.CatalogFile); err != nil {
			slog.Warn("model catalog file unreadable, using built-in catalog", slog.Any("error", err))
		} else if err := reg.Reload(overlay); err != nil {
			slog.Warn("model catalog file rejected, using built-in catalog", slog.Any("error", err))
		} else if err := registry.Watch(context.Background(), reg, cfg.CatalogFile); err != nil {
			slog.Warn("model catalog file watch failed, edits will require a restart", slog.Any("error", err))
		}
	}

	k := kernel.NewSimulated()
	mgr := lifecycle.New(k, reg, false)
	mgr.Initialize(context.Background(), cfg.DefaultModel)

	pl := preloader.New(reg, mgr, cfg.MaxModelMemoryGB)
	go pl.Run(context.Background())

	rt := router.New(reg, cfg.DefaultModel)

	var sessions session.Store
	if cfg.UsesRedisSessions() {
		rs, err := redisstore.New(cfg.RedisURL, "lbrx")
		if err != nil {
			slog.Error("redis session store init failed", slog.Any("error", err))
			os.Exit(1)
		}
		sessions = rs
	} else {
		sessions = memory.New()
	}

	authMgr := auth.New(cfg.EnableAuth, cfg.APIKeys, cfg.JWTSecret, cfg.JWTAlgorithm)
	limiter := ratelimit.New(cfg.RateLimitPerMinute, cfg.RateLimitPerHour)
	jnl, err := journal.Open("./queue")
	if err != nil {
		slog.Error("journal init failed", slog.Any("error", err))
		os.Exit(1)
	}

	handlers := httpapi.NewHandlers(mgr, reg, rt, sessions, cfg)

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(otelginmw.Middleware("lbrx-gateway"))
	engine.Use(middleware.CORS(cfg.AllowedOrigins))
	engine.Use(middleware.TrustedHost(cfg.TrustedHosts))
	engine.Use(middleware.SecurityHeaders())
	engine.Use(middleware.RequestID())
	engine.Use(middleware.Metrics())
	engine.Use(middleware.RateLimit(limiter))
	engine.Use(journal.Middleware(jnl))
	engine.Use(middleware.Auth(authMgr))

	api := engine.Group(cfg.APIPrefix)
	httpapi.RegisterRoutes(api, handlers)
	// /health is also exposed unprefixed for the supervisor's probe.
	engine.GET("/health", handlers.HandleHealth)

	if cfg.EnableMetrics {
		go func() {
			addr := fmt.Sprintf(":%d", cfg.MetricsPort)
			if err := metrics.Serve(context.Background(), addr); err != nil {
				slog.Error("metrics listener failed", slog.Any("error", err))
			}
		}()
	}

	addr := fmt.Sprintf("%s:%d", cfg.ServerHost, cfg.ServerPort)
	srv := &http.Server{Addr: addr, Handler: engine}

	go func() {
		var err error
		if cfg.TLSEnabled() {
			err = srv.ListenAndServeTLS(cfg.SSLCert, cfg.SSLKey)
		} else {
			err = srv.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", slog.Any("error", err))
			os.Exit(1)
		}
	}()
	slog.Info("gateway listening", slog.String("addr", addr))

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	slog.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("graceful shutdown failed", slog.Any("error", err))
		os.Exit(1)
	}
}
