package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/Mo-Nouir/database-tests/internal/adapter/handler"
	"github.com/Mo-Nouir/database-tests/internal/app"
	"github.com/Mo-Nouir/database-tests/internal/core/config"
	"github.com/Mo-Nouir/database-tests/internal/core/migration"
	"github.com/Mo-Nouir/database-tests/internal/core/reconcile"
	"github.com/Mo-Nouir/database-tests/internal/core/security"
	"github.com/Mo-Nouir/database-tests/internal/core/telemetry"
	"github.com/Mo-Nouir/database-tests/internal/core/transfer"
	"github.com/Mo-Nouir/database-tests/internal/core/worker"
)

func main() {
	// 1. Setup Logger
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// 2. Load Config
	cfg, err := config.LoadConfig()
	if err != nil {
		slog.Error("❌ Invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. Open store and locker
	backend, err := app.OpenBackend(ctx, cfg)
	if err != nil {
		slog.Error("❌ Store unavailable", "store", cfg.Store, "error", err)
		os.Exit(1)
	}
	locker, closeLocker, err := app.NewLocker(ctx, cfg)
	if err != nil {
		slog.Error("❌ Locker unavailable", "backend", cfg.LockBackend, "error", err)
		backend.Close()
		os.Exit(1)
	}

	// 4. Telemetry
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := telemetry.NewMetrics(reg)
	tp := telemetry.NewTracerProvider("ledger-api", cfg.Env)

	// 5. Engines
	engine, err := transfer.New(backend.Store, locker, app.Policy(cfg),
		transfer.WithLogger(logger),
		transfer.WithMetrics(metrics),
		transfer.WithTracerProvider(tp),
	)
	if err != nil {
		slog.Error("❌ Invalid transfer policy", "error", err)
		os.Exit(1)
	}
	reconciler := reconcile.New(backend.Store, logger, metrics)
	validator := migration.NewValidator(backend.Target, logger)

	legacySrc, closeLegacy, err := app.OpenLegacy(ctx, cfg)
	if err != nil {
		slog.Warn("migration validation disabled", "reason", err)
		legacySrc, closeLegacy = nil, func() error { return nil }
	}

	// 6. Alerts and reconcile worker
	sinks, closeSinks := app.AlertSinks(cfg)
	if cfg.ReconcileInterval > 0 {
		go worker.NewReconcileWorker(reconciler, sinks, cfg.ReconcileInterval, logger).Run(ctx)
	}

	// 7. Setup Fiber
	server := fiber.New(fiber.Config{
		DisableStartupMessage: true,
	})
	server.Use(cors.New())

	var tokenHash string
	if cfg.OperatorToken != "" {
		tokenHash = security.HashToken(cfg.OperatorToken)
	} else {
		slog.Warn("⚠️ OPERATOR_TOKEN is empty, /v1/ops is disabled")
	}

	handler.RegisterRoutes(server, handler.Deps{
		Engine:            engine,
		Reconciler:        reconciler,
		Validator:         validator,
		Legacy:            legacySrc,
		OperatorTokenHash: tokenHash,
		Metrics:           metrics,
		Gatherer:          reg,
	})

	go func() {
		slog.Info("🚀 Server starting", "env", cfg.Env, "port", cfg.Port, "store", cfg.Store, "lock_backend", cfg.LockBackend)
		if err := server.Listen(":" + cfg.Port); err != nil {
			slog.Error("Server forced to shutdown", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	slog.Info("🛑 Shutting down server...")

	if err := server.ShutdownWithTimeout(10 * time.Second); err != nil {
		slog.Error("Server shutdown failed", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := tp.Shutdown(shutdownCtx); err != nil {
		slog.Error("Tracer shutdown failed", "error", err)
	}

	for _, r := range []struct {
		name  string
		close func() error
	}{
		{"alerts", closeSinks},
		{"legacy", closeLegacy},
		{"locker", closeLocker},
		{"store", backend.Close},
	} {
		if err := r.close(); err != nil {
			slog.Error("close failed", "resource", r.name, "error", err)
		}
	}

	slog.Info("👋 Server exited successfully")
}
