package api

import (
	"log/slog"
	"os"
	"time"

	"voxmeter/internal/config"
	"voxmeter/internal/middleware"
	"voxmeter/internal/paypal"
	"voxmeter/internal/repository"
	"voxmeter/internal/service"
	"voxmeter/internal/validator"

	"github.com/gofiber/fiber/v2"
)

type ApiHandler struct {
	repo        repository.Repository
	usage       *service.UsageService
	credits     *service.CreditService
	phones      *service.PhoneProviderService
	paypal      *paypal.Client
	rateLimiter *service.RateLimiter
	validator   *validator.Validator
	logger      *slog.Logger
}

func NewApiHandler(
	repo repository.Repository,
	usage *service.UsageService,
	credits *service.CreditService,
	phones *service.PhoneProviderService,
	paypalClient *paypal.Client,
	rateLimiter *service.RateLimiter,
	v *validator.Validator,
	logger *slog.Logger,
) *ApiHandler {
	return &ApiHandler{
		repo:        repo,
		usage:       usage,
		credits:     credits,
		phones:      phones,
		paypal:      paypalClient,
		rateLimiter: rateLimiter,
		validator:   v,
		logger:      logger,
	}
}

// RegisterRoutes wires all endpoints onto the app.
func (h *ApiHandler) RegisterRoutes(app *fiber.App, authCfg config.AuthConfig) {
	app.Get("/health", h.Health)

	app.Post("/webhooks/call", h.HandleCallWebhook)
	app.Post("/webhooks/paypal", h.HandlePayPalWebhook)

	v1 := app.Group("/v1", middleware.AuthenticatedToken(authCfg))
	v1.Get("/usage", h.GetUsage)
	v1.Get("/usage/upgrade-options", h.GetUpgradeOptions)
	v1.Post("/validate/assistant", h.ValidateAssistant)
	v1.Post("/validate/call", h.ValidateCall)
	v1.Get("/phone-providers", h.ListPhoneProviders)
	v1.Post("/phone-providers", h.CreatePhoneProvider)
	v1.Delete("/phone-providers/:id", h.DeletePhoneProvider)
	v1.Post("/phone-providers/resolve", h.ResolvePhoneNumber)
	v1.Get("/credits/transactions", h.ListCreditTransactions)
	v1.Post("/credits/topup", h.CreateTopUpOrder)
	v1.Post("/credits/capture", h.CaptureTopUpOrder)
}

// Health returns the health status of the application
func (h *ApiHandler) Health(c *fiber.Ctx) error {
	if err := h.repo.HealthCheck(c.Context()); err != nil {
		return c.Status(503).JSON(fiber.Map{
			"status": "unhealthy",
			"error":  "database connection failed",
		})
	}

	return c.JSON(fiber.Map{
		"status":    "healthy",
		"timestamp": time.Now().Format(time.RFC3339),
		"version":   os.Getenv("VERSION"),
	})
}
