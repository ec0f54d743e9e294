package api

import (
	"encoding/json"
	"errors"

	"voxmeter/internal/middleware"
	"voxmeter/internal/model"
	"voxmeter/internal/repository"
	"voxmeter/internal/service"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

func (h *ApiHandler) GetUsage(c *fiber.Ctx) error {
	userID := middleware.UserID(c)
	summary := h.usage.GetCurrentUsage(c.Context(), userID)
	return c.JSON(fiber.Map{
		"status": "success",
		"usage":  summary,
	})
}

func (h *ApiHandler) GetUpgradeOptions(c *fiber.Ctx) error {
	userID := middleware.UserID(c)
	options := h.usage.GetUpgradeOptions(c.Context(), userID)
	return c.JSON(fiber.Map{
		"status":  "success",
		"options": options,
	})
}

func (h *ApiHandler) ValidateAssistant(c *fiber.Ctx) error {
	userID := middleware.UserID(c)
	result := h.usage.CanCreateAssistant(c.Context(), userID)
	return c.JSON(fiber.Map{
		"status": "success",
		"result": result,
	})
}

type validateCallRequest struct {
	EstimatedMinutes int `json:"estimated_minutes" validate:"gte=0,lte=600"`
}

func (h *ApiHandler) ValidateCall(c *fiber.Ctx) error {
	var req validateCallRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{
			"status": "error",
			"error":  "invalid request body",
		})
	}
	if err := h.validator.Validate(req); err != nil {
		return c.Status(400).JSON(fiber.Map{
			"status": "error",
			"error":  "estimated_minutes must be between 0 and 600",
		})
	}

	userID := middleware.UserID(c)
	result := h.usage.CanMakeCall(c.Context(), userID, req.EstimatedMinutes)
	return c.JSON(fiber.Map{
		"status": "success",
		"result": result,
	})
}

func (h *ApiHandler) ListPhoneProviders(c *fiber.Ctx) error {
	userID := middleware.UserID(c)
	providers, err := h.phones.ListProviders(c.Context(), userID)
	if err != nil {
		h.logger.ErrorContext(c.Context(), "Failed to list phone providers", "user_id", userID, "error", err)
		return c.Status(500).JSON(fiber.Map{
			"status": "error",
			"error":  "failed to list phone providers",
		})
	}
	return c.JSON(fiber.Map{
		"status":    "success",
		"providers": providers,
	})
}

type createPhoneProviderRequest struct {
	ProviderName string          `json:"provider_name" validate:"required,provider_name"`
	PhoneNumber  string          `json:"phone_number" validate:"required,e164"`
	Credentials  json.RawMessage `json:"credentials" validate:"required"`
	IsDefault    bool            `json:"is_default"`
}

func (h *ApiHandler) CreatePhoneProvider(c *fiber.Ctx) error {
	var req createPhoneProviderRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{
			"status": "error",
			"error":  "invalid request body",
		})
	}
	if err := h.validator.Validate(req); err != nil {
		return c.Status(400).JSON(fiber.Map{
			"status": "error",
			"error":  "provider_name must be twilio, plivo or nexmo and phone_number must be E.164",
		})
	}

	userID := middleware.UserID(c)
	provider, err := h.phones.CreateProvider(c.Context(), model.PhoneProvider{
		UserID:       userID,
		ProviderName: model.ProviderName(req.ProviderName),
		PhoneNumber:  req.PhoneNumber,
		Credentials:  req.Credentials,
		IsDefault:    req.IsDefault,
	})
	if err != nil {
		h.logger.ErrorContext(c.Context(), "Failed to create phone provider", "user_id", userID, "error", err)
		return c.Status(500).JSON(fiber.Map{
			"status": "error",
			"error":  "failed to create phone provider",
		})
	}

	return c.Status(201).JSON(fiber.Map{
		"status":   "success",
		"provider": provider,
	})
}

func (h *ApiHandler) DeletePhoneProvider(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(400).JSON(fiber.Map{
			"status": "error",
			"error":  "invalid provider id",
		})
	}

	userID := middleware.UserID(c)
	if err := h.phones.RemoveProvider(c.Context(), userID, id); err != nil {
		if errors.Is(err, repository.ErrPhoneProviderNotFound) {
			return c.Status(404).JSON(fiber.Map{
				"status": "error",
				"error":  "phone provider not found",
			})
		}
		h.logger.ErrorContext(c.Context(), "Failed to delete phone provider", "user_id", userID, "error", err)
		return c.Status(500).JSON(fiber.Map{
			"status": "error",
			"error":  "failed to delete phone provider",
		})
	}

	return c.JSON(fiber.Map{"status": "success"})
}

type resolvePhoneNumberRequest struct {
	TargetPhoneNumber string `json:"target_phone_number"`
}

func (h *ApiHandler) ResolvePhoneNumber(c *fiber.Ctx) error {
	var req resolvePhoneNumberRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{
			"status": "error",
			"error":  "invalid request body",
		})
	}

	userID := middleware.UserID(c)
	ref, err := h.phones.ResolvePhoneNumber(c.Context(), userID, req.TargetPhoneNumber)
	if err != nil {
		h.logger.ErrorContext(c.Context(), "Failed to resolve phone number", "user_id", userID, "error", err)
		return c.Status(500).JSON(fiber.Map{
			"status": "error",
			"error":  "failed to resolve phone number",
		})
	}
	if ref == nil {
		return c.Status(422).JSON(fiber.Map{
			"status": "error",
			"error":  service.NoProviderMessage(req.TargetPhoneNumber),
		})
	}

	return c.JSON(fiber.Map{
		"status":       "success",
		"phone_number": ref,
	})
}

func (h *ApiHandler) ListCreditTransactions(c *fiber.Ctx) error {
	userID := middleware.UserID(c)
	transactions, err := h.credits.ListTransactions(c.Context(), userID, c.QueryInt("limit", 50), c.QueryInt("offset", 0))
	if err != nil {
		h.logger.ErrorContext(c.Context(), "Failed to list credit transactions", "user_id", userID, "error", err)
		return c.Status(500).JSON(fiber.Map{
			"status": "error",
			"error":  "failed to list credit transactions",
		})
	}
	return c.JSON(fiber.Map{
		"status":       "success",
		"transactions": transactions,
	})
}

type topUpRequest struct {
	Amount string `json:"amount" validate:"required"`
}

func (h *ApiHandler) CreateTopUpOrder(c *fiber.Ctx) error {
	var req topUpRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{
			"status": "error",
			"error":  "invalid request body",
		})
	}

	amount, err := decimal.NewFromString(req.Amount)
	if err != nil || !amount.IsPositive() {
		return c.Status(400).JSON(fiber.Map{
			"status": "error",
			"error":  "amount must be a positive decimal",
		})
	}

	userID := middleware.UserID(c)
	if err := h.rateLimiter.CheckTopUp(c.Context(), userID); err != nil {
		if errors.Is(err, service.ErrTooManyAttempts) {
			return c.Status(429).JSON(fiber.Map{
				"status": "error",
				"error":  "too many top-up attempts, please wait",
			})
		}
		h.logger.ErrorContext(c.Context(), "Top-up rate limit check failed", "user_id", userID, "error", err)
	}

	order, err := h.paypal.CreateOrder(c.Context(), amount, "Credit top-up", "topup:"+userID)
	if err != nil {
		h.logger.ErrorContext(c.Context(), "Failed to create top-up order", "user_id", userID, "error", err)
		return c.Status(502).JSON(fiber.Map{
			"status": "error",
			"error":  "failed to create payment order",
		})
	}

	return c.Status(201).JSON(fiber.Map{
		"status": "success",
		"order":  order,
	})
}

type captureRequest struct {
	OrderID string `json:"order_id" validate:"required"`
}

// CaptureTopUpOrder captures an approved PayPal order and credits the user.
func (h *ApiHandler) CaptureTopUpOrder(c *fiber.Ctx) error {
	var req captureRequest
	if err := c.BodyParser(&req); err != nil || req.OrderID == "" {
		return c.Status(400).JSON(fiber.Map{
			"status": "error",
			"error":  "order_id is required",
		})
	}

	userID := middleware.UserID(c)

	details, err := h.paypal.GetOrder(c.Context(), req.OrderID)
	if err != nil {
		h.logger.ErrorContext(c.Context(), "Failed to fetch order for capture", "user_id", userID, "order_id", req.OrderID, "error", err)
		return c.Status(502).JSON(fiber.Map{
			"status": "error",
			"error":  "failed to fetch payment order",
		})
	}
	if len(details.PurchaseUnits) == 0 || details.PurchaseUnits[0].ReferenceID != "topup:"+userID {
		return c.Status(403).JSON(fiber.Map{
			"status": "error",
			"error":  "order does not belong to this user",
		})
	}

	result, err := h.paypal.CaptureOrder(c.Context(), req.OrderID)
	if err != nil {
		h.logger.ErrorContext(c.Context(), "Failed to capture order", "user_id", userID, "order_id", req.OrderID, "error", err)
		return c.Status(502).JSON(fiber.Map{
			"status": "error",
			"error":  "failed to capture payment",
		})
	}

	amount, err := decimal.NewFromString(details.PurchaseUnits[0].Amount.Value)
	if err != nil {
		h.logger.ErrorContext(c.Context(), "Unparseable captured amount", "order_id", req.OrderID, "value", details.PurchaseUnits[0].Amount.Value)
		return c.Status(500).JSON(fiber.Map{
			"status": "error",
			"error":  "failed to record captured payment",
		})
	}

	change, err := h.credits.AddCredits(c.Context(), userID, amount,
		model.CreditTransactionTopUp, "PayPal credit top-up", req.OrderID)
	if err != nil {
		if errors.Is(err, repository.ErrSubscriptionNotFound) {
			// First ever payment: activate PAYG with the captured amount.
			sub, err := h.credits.ActivateSubscription(c.Context(), userID, model.PlanTypePAYG, amount)
			if err != nil {
				h.logger.ErrorContext(c.Context(), "Failed to activate subscription on first payment",
					"user_id", userID, "order_id", req.OrderID, "error", err)
				return c.Status(500).JSON(fiber.Map{
					"status": "error",
					"error":  "payment captured but account activation failed, contact support",
				})
			}
			change = repository.BalanceChange{Before: decimal.Zero, After: sub.CreditBalance}
		} else {
			h.logger.ErrorContext(c.Context(), "Payment captured but crediting failed",
				"user_id", userID, "order_id", req.OrderID, "error", err)
			return c.Status(500).JSON(fiber.Map{
				"status": "error",
				"error":  "payment captured but crediting failed, contact support",
			})
		}
	}

	return c.JSON(fiber.Map{
		"status":        "success",
		"capture":       result,
		"balance_after": change.After,
	})
}
