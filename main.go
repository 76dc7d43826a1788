package main

import (
	"context"
	"log"
	"os/signal"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/healthcheck"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"frame-extractor/config"
	"frame-extractor/extractor"
	"frame-extractor/metrics"
	"frame-extractor/pipeline"
	"frame-extractor/preview"
	"frame-extractor/routes"
	"frame-extractor/session"
	"frame-extractor/storage"
	"frame-extractor/tracing"
	"frame-extractor/validation"
)

var logger *zap.Logger

func main() {
	logger, _ = zap.NewProduction()
	defer func(logger *zap.Logger) {
		_ = logger.Sync()
	}(logger)

	config, err := env.ParseAs[config.Config]()
	if err != nil {
		logger.Fatal(err.Error())
	}
	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		logger.Fatal("invalid configuration", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := tracing.InitTracer(ctx, config.OtelEndpoint)
	if err != nil {
		logger.Fatal("failed to initialize tracing", zap.Error(err))
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	counters := metrics.InitializeMetrics(registry, prometheus.Labels{"service": tracing.ServiceName})

	store, err := session.NewStore(config.WorkDir, time.Duration(config.SessionTTL)*time.Second, config.MaxSessions, logger)
	if err != nil {
		logger.Fatal("failed to create session store", zap.Error(err))
	}
	store.OnChange = func(active int64) {
		counters.ActiveSessions.Set(float64(active))
	}

	renderer, err := preview.NewRenderer(preview.Options{
		Width:   config.PreviewWidth,
		Quality: config.JpegQuality,
		Webp:    config.Webp,
		TTL:     time.Duration(config.SessionTTL) * time.Second,
	}, logger)
	if err != nil {
		logger.Fatal("failed to create preview renderer", zap.Error(err))
	}

	opener, err := extractor.NewOpener(config.Decoder)
	if err != nil {
		logger.Fatal("invalid decoder", zap.Error(err))
	}

	// Interfaces stay nil unless offloading is on
	var uploader pipeline.ArchiveUploader
	var linker routes.ArchiveLinker
	if config.S3Enabled {
		archives, err := storage.NewArchiveStore(storage.ArchiveStoreConfig{
			Endpoint:   config.S3Endpoint,
			AccessKey:  config.S3AccessKey,
			SecretKey:  config.S3SecretKey,
			UseSSL:     config.S3UseSSL,
			Region:     config.S3Region,
			Bucket:     config.S3Bucket,
			Prefix:     config.S3Prefix,
			PresignTTL: time.Duration(config.S3PresignTTL) * time.Second,
		})
		if err != nil {
			logger.Fatal("failed to create archive store", zap.Error(err))
		}

		bucketCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		err = archives.EnsureBucket(bucketCtx)
		cancel()
		if err != nil {
			logger.Fatal("failed to prepare archive bucket", zap.Error(err))
		}

		uploader, linker = archives, archives
		logger.Info("archive offload enabled", zap.String("endpoint", config.S3Endpoint), zap.String("bucket", config.S3Bucket))
	}

	pipe := pipeline.New(extractor.New(opener, logger), uploader, counters, logger)

	bodyLimit := 8 << 30
	if config.MaxVideoSize > 0 {
		// headroom for the form fields around the file
		bodyLimit = (config.MaxVideoSize + 1) * 1024 * 1024
	}

	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		BodyLimit:             bodyLimit,
	})

	var shuttingDown atomic.Bool

	app.Use(recover.New())
	app.Use(healthcheck.New(healthcheck.Config{
		ReadinessProbe: func(c *fiber.Ctx) bool {
			return !shuttingDown.Load()
		},
	}))
	app.Use(compress.New(compress.Config{
		// Streamed progress must not be buffered and frames are already compressed
		Next: func(c *fiber.Ctx) bool {
			return c.Method() == fiber.MethodPost || strings.Contains(c.Path(), "/frames/") ||
				strings.Contains(c.Path(), "/preview/") || strings.HasSuffix(c.Path(), "/archive")
		},
	}))

	if len(config.AllowedOrigins) > 0 {
		app.Use(cors.New(cors.Config{
			AllowOriginsFunc: func(origin string) bool {
				return validation.ValidateOrigin(logger, origin, config.AllowedOrigins)
			},
			AllowMethods:  "GET,POST,DELETE",
			ExposeHeaders: "X-Extraction-Id,Content-Disposition",
		}))
	}

	if *config.Metrics {
		app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))
	}

	if config.RateLimit > 0 {
		limiterStorage, err := storage.NewRistrettoStorage(100_000)
		if err != nil {
			logger.Fatal("failed to create limiter storage", zap.Error(err))
		}
		defer limiterStorage.Close()

		app.Use("/extractions", limiter.New(limiter.Config{
			Max:        config.RateLimit,
			Expiration: time.Minute,
			Storage:    limiterStorage,
			Next: func(c *fiber.Ctx) bool {
				return c.Method() != fiber.MethodPost
			},
			LimitReached: func(c *fiber.Ctx) error {
				return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{"error": "too many uploads, try again later"})
			},
		}))
	}

	routes.RegisterExtractionRoutes(logger, store, pipe, renderer, linker, &config, app, counters)

	go func() {
		logger.Info("server starting", zap.String("address", config.Address), zap.String("decoder", config.Decoder))
		if err := app.Listen(config.Address); err != nil {
			log.Fatal(err)
		}
	}()

	<-ctx.Done()
	shuttingDown.Store(true)
	logger.Info("shutting down")

	if err := app.ShutdownWithTimeout(30 * time.Second); err != nil {
		logger.Error("server shutdown failed", zap.Error(err))
	}

	renderer.Close()
	if err := store.Close(); err != nil {
		logger.Error("failed to clean up sessions", zap.Error(err))
	}

	tracerCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := shutdownTracer(tracerCtx); err != nil {
		logger.Error("failed to flush traces", zap.Error(err))
	}
}
