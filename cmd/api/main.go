package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/contrib/otelfiber"
	"github.com/gofiber/fiber/v2"
	_ "github.com/joho/godotenv/autoload"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"metarepo/internal/config"
	handlers "metarepo/internal/http/handler"
	"metarepo/internal/http/middleware"
	"metarepo/internal/logging"
	"metarepo/internal/otel"
	"metarepo/internal/service"
	"metarepo/internal/storage"
	"metarepo/internal/validator"
)

func main() {
	// Load configuration from environment variables (.env auto-loaded if present)
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("metarepo stopped", zap.Error(err))
	}
}

func run(cfg *config.AppConfig, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := otel.Init(ctx, logger)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer shutdownTracing(context.Background())

	// Storage backend selected by REPO_BACKEND
	backend, closeBackend, err := openBackend(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeBackend()

	docRepo, err := instrument(backend, cfg.Backend, prometheus.DefaultRegisterer)
	if err != nil {
		return fmt.Errorf("register repository metrics: %w", err)
	}

	// Object storage is optional; without it the "object" target class is not offered
	var objStore storage.Storage
	if cfg.MinIO.Endpoint != "" {
		objStore, err = storage.NewMinIO(cfg.MinIO)
		if err != nil {
			return fmt.Errorf("init object storage: %w", err)
		}
	}
	registry := validator.NewRegistry()
	if err := validator.RegisterBuiltins(registry, objStore); err != nil {
		return fmt.Errorf("register validators: %w", err)
	}

	locker, closeLocker, err := newLocker(ctx, cfg.Lock, logger)
	if err != nil {
		return err
	}
	defer closeLocker()

	authenticator, err := newAuthenticator(cfg.Identity, logger)
	if err != nil {
		return err
	}

	docSvc := service.NewDocumentService(docRepo, registry, locker, cfg.AdminGroup, logger)

	promMiddleware, err := middleware.NewPrometheusMiddleware(prometheus.DefaultRegisterer)
	if err != nil {
		return fmt.Errorf("register http metrics: %w", err)
	}

	app := fiber.New(fiber.Config{
		ErrorHandler:          handlers.ErrorHandler(),
		DisableStartupMessage: true,
	})

	// RequestID middleware adds/propagates X-Request-ID and stores it in context
	app.Use(middleware.RequestID())
	app.Use(otelfiber.Middleware())
	app.Use(promMiddleware.Handler())
	app.Use(middleware.Logger(logger))

	handlers.RegisterRoutes(app, docRepo, docSvc, middleware.Auth(authenticator))
	handlers.RegisterMetrics(app, prometheus.DefaultGatherer)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := app.ShutdownWithContext(shutdownCtx); err != nil {
			logger.Error("graceful shutdown failed", zap.Error(err))
		}
	}()

	logger.Info("metarepo listening",
		zap.String("addr", ":"+cfg.Port),
		zap.String("backend", cfg.Backend),
		zap.Strings("site_classes", registry.Names(validator.KindSite)),
		zap.Strings("target_classes", registry.Names(validator.KindTarget)),
	)
	if err := app.Listen(":" + cfg.Port); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}
