package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/zap"

	httpapi "citysync/internal/api/http"
	"citysync/internal/config"
	"citysync/internal/pipeline"
	"citysync/internal/scheduler"
	"citysync/internal/source"
	"citysync/internal/store"
)

// jobTimeout bounds a whole scheduled job run, across all of its
// per-entity HTTP round trips.
const jobTimeout = 15 * time.Minute

func main() {
	// Load configuration.
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	zlog, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer func() { _ = zlog.Sync() }()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	pg, err := store.Open(ctx, cfg.Postgres)
	cancel()
	if err != nil {
		zlog.Fatal("failed to open store", zap.Error(err))
	}
	defer pg.Close()

	if err := pg.CreateSchema(context.Background()); err != nil {
		zlog.Fatal("failed to create schema", zap.Error(err))
	}

	// Shared HTTP client for outbound API calls.
	httpClient := &http.Client{
		Timeout: cfg.HTTPTimeout,
	}

	jobs := pipeline.New(
		pg,
		source.NewCityClient(httpClient, cfg.CityAPIKey),
		source.NewWeatherClient(httpClient, cfg.WeatherAPIKey),
		source.NewAeroDataClient(httpClient, cfg.FlightsAPIKey),
		zlog,
	)

	// Scheduler that periodically runs the refresh jobs.
	sched := scheduler.New(jobs, jobTimeout, zlog)
	if err := sched.Start(); err != nil {
		zlog.Fatal("failed to start scheduler", zap.Error(err))
	}
	defer sched.Stop()

	// Basic app configuration
	app := fiber.New(fiber.Config{
		AppName:               "citysync",
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			// Centralized error response
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{
				"error":   true,
				"message": err.Error(),
			})
		},
	})

	// Global middleware
	app.Use(logger.New())
	app.Use(recover.New())

	// Basic health endpoint
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "ok",
			"service": "citysync",
		})
	})

	// Job trigger routes.
	httpapi.RegisterRoutes(app, jobs, cfg.Cities)

	go func() {
		if err := app.Listen(":" + cfg.Port); err != nil {
			zlog.Error("fiber server stopped", zap.Error(err))
		}
	}()

	// Wait for termination signal
	sigCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-sigCtx.Done()

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		zlog.Error("error during shutdown", zap.Error(err))
	}
}
