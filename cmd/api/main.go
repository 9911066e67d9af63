// Copyright (c) 2026 Confira. All rights reserved.
// Author: dev@confira.app

// Command api is the entry point for the Confira HTTP API server.
//
// # Startup Sequence
//
//  1. Initialize structured logger.
//  2. Load configuration from environment variables.
//  3. Connect to PostgreSQL (pgxpool).
//  4. Connect to Redis.
//  5. Run database migrations (idempotent).
//  6. Wire domain services and the realtime channel.
//  7. Start background loops (hub, event bus, reaper, session sweep).
//  8. Start HTTP server with graceful shutdown.
//
// No business logic lives here. All wiring is explicit constructor injection.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/confira/confira/internal/api"
	"github.com/confira/confira/internal/auth"
	"github.com/confira/confira/internal/platform/config"
	"github.com/confira/confira/internal/platform/constants"
	"github.com/confira/confira/internal/platform/migration"
	pgstore "github.com/confira/confira/internal/platform/postgres"
	redisstore "github.com/confira/confira/internal/platform/redis"
	"github.com/confira/confira/internal/platform/sec"
	"github.com/confira/confira/internal/realtime"
	"github.com/confira/confira/internal/revocation"
	"github.com/confira/confira/internal/session"
)

func main() {
	// ── 1. Logger ──────────────────────────────────────────────────────────
	// Initialize first so that subsequent startup errors are structured JSON.
	rawLog := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	// Add global context to all log entries.
	log := rawLog.With(slog.String("app", "confira"))
	slog.SetDefault(log)

	log.Info("[Confira] service_initializing")

	// ── 2. Configuration ──────────────────────────────────────────────────
	cfg, err := config.Load()
	must(log, err, "load configuration")

	if cfg.Debug {
		debugLog := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		}))
		log = debugLog.With(slog.String("app", "confira"))
		slog.SetDefault(log)
		log.Debug("debug_logging_enabled")
	}

	log.Info("configuration_loaded",
		slog.String("environment", cfg.Environment),
		slog.String("port", cfg.ServerPort),
	)

	// Root context for startup. Use a 30s deadline so misconfiguration is
	// caught quickly rather than hanging indefinitely.
	startupCtx, startupCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer startupCancel()

	// ── 3. PostgreSQL ─────────────────────────────────────────────────────
	pool, err := pgstore.NewPool(startupCtx, cfg.DatabaseURL, log)
	must(log, err, "connect to postgres")
	defer func() {
		log.Info("closing postgres pool")
		pool.Close()
	}()

	// ── 4. Redis ──────────────────────────────────────────────────────────
	rdb, err := redisstore.NewClient(startupCtx, cfg.RedisURL, log)
	must(log, err, "connect to redis")
	defer func() {
		log.Info("closing redis client")
		if cerr := rdb.Close(); cerr != nil {
			log.Error("redis close error", slog.Any("error", cerr))
		}
	}()

	// ── 5. Migrations ─────────────────────────────────────────────────────
	must(log, migration.RunUp(cfg.DatabaseURL, cfg.MigrationPath, log), "run migrations")

	// ── 6. Token Service ──────────────────────────────────────────────────
	jwtSvc, err := sec.NewTokenService(cfg.JWTSecret, constants.AuthIssuer)
	must(log, err, "initialize jwt service")

	// ── 7. Health handlers (wired with real dependency checkers) ──────────
	liveness, readiness := api.NewHealthHandlers(api.HealthDependencies{
		CheckDatabase: func() error {
			return pgstore.Ping(context.Background(), pool)
		},
		CheckCache: func() error {
			return redisstore.Ping(context.Background(), rdb)
		},
	}, log)

	// ── 8. Domain Wiring ──────────────────────────────────────────────────
	// Revocation store: the single authority on dead credentials.
	revocationStore := revocation.NewRedisStore(rdb, log, cfg.RevocationFailClosed)

	// Realtime fan-out plumbing. The hub owns local sockets; the broadcaster
	// bridges processes over the shared bus.
	hub := realtime.NewHub(log)
	broadcaster := realtime.NewBroadcaster(rdb, hub, log)

	// Session registry over the durable store.
	sessionRepository := session.NewRepository(pool)
	sessionStatsCache := session.NewStatsCache(rdb, log)
	sessionRegistry := session.NewRegistry(
		sessionRepository,
		sessionStatsCache,
		revocationStore,
		broadcaster,
		cfg.AccessTokenTTL,
		cfg.ActivityWriteInterval,
		nil,
	)

	// Identity stores.
	userRepository := auth.NewUserRepository(pool)
	organizationRepository := auth.NewOrganizationRepository(pool)

	// Connection manager over the shared index.
	connectionIndex := realtime.NewRedisIndex(rdb, cfg.ConnectionStaleAfter)
	presenceCache := realtime.NewPresenceCache(rdb, log, cfg.PresenceCacheTTL)
	connectionManager := realtime.NewManager(
		connectionIndex,
		presenceCache,
		hub,
		broadcaster,
		jwtSvc,
		revocationStore,
		userRepository,
		sessionRegistry,
		cfg.ConnectionStaleAfter,
		log,
	)
	broadcaster.HandleDisconnects(connectionManager.DisconnectLocal)
	broadcaster.HandleSessionDisconnects(connectionManager.DisconnectSessionLocal)

	// Authentication service and handlers.
	authService := auth.NewService(
		userRepository,
		organizationRepository,
		sessionRegistry,
		jwtSvc,
		connectionManager,
		auth.NewVolatileCleaner(rdb),
		auth.TTLPolicy{
			AccessToken:  cfg.AccessTokenTTL,
			RefreshToken: cfg.RefreshTokenTTL,
			RememberMe:   cfg.RememberMeTTL,
		},
	)

	handlers := api.Handlers{
		Liveness:  liveness,
		Readiness: readiness,
		Auth:      auth.NewHandler(authService, cfg.AccessTokenTTL),
		Sessions:  session.NewHandler(sessionRegistry),
		Realtime:  realtime.NewHandler(connectionManager, hub, cfg, splitOrigins(cfg.ExtraOrigins), log),
	}

	// ── 9. Background Loops ───────────────────────────────────────────────
	appCtx, appCancel := context.WithCancel(context.Background())
	defer appCancel()

	go hub.Run(appCtx)
	go broadcaster.Run(appCtx)
	go reapLoop(appCtx, connectionManager, log)
	go sweepLoop(appCtx, sessionRegistry, log)

	// ── 10. HTTP Server ───────────────────────────────────────────────────
	server := api.NewServer(appCtx, cfg, log, jwtSvc, revocationStore, handlers)

	// ── 11. Graceful Shutdown ─────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGTERM, syscall.SIGINT)

	serverErr := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Block until OS signal or server error.
	select {
	case sig := <-quit:
		log.Info("shutdown signal received", slog.String("signal", sig.String()))
	case err := <-serverErr:
		log.Error("server startup error", slog.Any("error", err))
	}

	// Stop background loops before draining HTTP.
	appCancel()

	// Give in-flight requests enough time to complete.
	shutdownTimeout := constants.ShutdownTimeout
	log.Info("shutting down server", slog.Duration("timeout", shutdownTimeout))

	if err := server.Shutdown(shutdownTimeout); err != nil {
		log.Error("shutdown error", slog.Any("error", err))
		os.Exit(1)
	}

	log.Info("server stopped cleanly")
}

// reapLoop periodically drops stale realtime connections.
func reapLoop(ctx context.Context, manager *realtime.Manager, log *slog.Logger) {
	ticker := time.NewTicker(constants.ReaperInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if reaped := manager.ReapExpired(ctx); reaped > 0 {
				log.Info("stale_connections_reaped", slog.Int("count", reaped))
			}
		}
	}
}

// sweepLoop periodically purges expired session rows.
func sweepLoop(ctx context.Context, registry *session.Registry, log *slog.Logger) {
	ticker := time.NewTicker(constants.SessionSweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			deleted, err := registry.SweepExpired(ctx)
			if err != nil {
				log.Error("session_sweep_failed", slog.Any("error", err))
				continue
			}
			if deleted > 0 {
				log.Info("expired_sessions_swept", slog.Int64("count", deleted))
			}
		}
	}
}

// splitOrigins parses the comma-separated EXTRA_ORIGINS value.
func splitOrigins(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	origins := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	return origins
}

// must logs a structured fatal error and terminates the process if err is non-nil.
//
// It is intentionally limited to startup wiring. After startup, all errors
// must be returned and handled explicitly (never panic).
func must(log *slog.Logger, err error, context string) {
	if err != nil {
		log.Error("startup failure",
			slog.String("context", context),
			slog.Any("error", err),
		)
		os.Exit(1)
	}
}
