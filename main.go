package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"voxmeter/internal/api"
	"voxmeter/internal/billing"
	"voxmeter/internal/config"
	"voxmeter/internal/daemon"
	"voxmeter/internal/database"
	"voxmeter/internal/logger"
	"voxmeter/internal/middleware"
	"voxmeter/internal/monitoring"
	"voxmeter/internal/paypal"
	"voxmeter/internal/repository"
	"voxmeter/internal/service"
	"voxmeter/internal/validator"
	"voxmeter/internal/vapi"

	"github.com/gofiber/fiber/v2"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
)

func main() {
	_ = godotenv.Load()

	cfg := config.NewConfig()

	telemetry, err := monitoring.NewOpenTelemetry(cfg.Telemetry)
	if err != nil {
		log.Fatalf("Failed to initialize telemetry: %v", err)
	}

	appLogger := logger.New(cfg)

	db, err := database.NewPostgresDatabase(cfg.Database)
	if err != nil {
		appLogger.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := db.Close(); err != nil {
			appLogger.Error("Failed to close database connection", "error", err)
		}
	}()

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer func() {
		if err := redisClient.Close(); err != nil {
			appLogger.Error("Failed to close redis connection", "error", err)
		}
	}()

	repo := repository.NewDatabaseRepository(db)
	pricing := billing.NewPricing(cfg.Billing)

	paypalClient := paypal.NewClient(cfg.PayPal, appLogger.Logger)
	vapiClient := vapi.NewClient(cfg.Vapi, appLogger.Logger)

	usageService := service.NewUsageService(repo, pricing, telemetry, appLogger.Logger)
	creditService := service.NewCreditService(repo, pricing, appLogger.Logger)
	phoneService := service.NewPhoneProviderService(repo, vapiClient, cfg.Vapi.DefaultPhoneNumberID, appLogger.Logger)
	rateLimiter := service.NewRateLimiter(redisClient)

	handler := api.NewApiHandler(
		repo,
		usageService,
		creditService,
		phoneService,
		paypalClient,
		rateLimiter,
		validator.New(),
		appLogger.Logger,
	)

	app := fiber.New(fiber.Config{
		AppName:      "voxmeter",
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	})
	app.Use(middleware.RequestLogger(appLogger.Logger))

	handler.RegisterRoutes(app, cfg.Auth)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	daemonManager := daemon.NewDaemonManager(appLogger.Logger)
	daemonManager.Add("period_rollover", daemon.PeriodRolloverTask(repo, cfg.Billing.PeriodRolloverEvery, appLogger.Logger))
	daemonManager.Start(ctx)

	go func() {
		addr := cfg.Server.Host + ":" + cfg.Server.Port
		appLogger.Info("Starting server", "addr", addr)
		if err := app.Listen(addr); err != nil {
			appLogger.Error("Server stopped", "error", err)
			cancel()
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
		appLogger.Info("Shutdown signal received")
	case <-ctx.Done():
	}

	cancel()
	daemonManager.Wait()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		appLogger.Error("Failed to shut down server", "error", err)
	}
	if err := telemetry.Shutdown(shutdownCtx); err != nil {
		appLogger.Error("Failed to shut down telemetry", "error", err)
	}
}
