package api

import (
	"encoding/json"
	"errors"
	"strings"

	"voxmeter/internal/model"
	"voxmeter/internal/paypal"
	"voxmeter/internal/repository"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
)

// callWebhookPayload is the end-of-call report delivered by the voice
// platform when a call finishes.
type callWebhookPayload struct {
	Message struct {
		Type string `json:"type"`
		Call struct {
			ID         string `json:"id"`
			CustomerID string `json:"customerId"`
			Metadata   struct {
				UserID string `json:"userId"`
			} `json:"metadata"`
		} `json:"call"`
		Assistant struct {
			ID   string `json:"id"`
			Name string `json:"name"`
		} `json:"assistant"`
		DurationSeconds float64 `json:"durationSeconds"`
	} `json:"message"`
}

// HandleCallWebhook ingests end-of-call reports and bills the call. The
// response is 200 for every accepted delivery: billing bookkeeping failures
// must not trigger vendor retries.
func (h *ApiHandler) HandleCallWebhook(c *fiber.Ctx) error {
	var payload callWebhookPayload
	if err := c.BodyParser(&payload); err != nil {
		return c.Status(400).JSON(fiber.Map{
			"status": "error",
			"error":  "invalid payload",
		})
	}

	msg := payload.Message
	if msg.Type != "end-of-call-report" {
		return c.JSON(fiber.Map{"status": "ignored"})
	}
	userID := msg.Call.Metadata.UserID
	if userID == "" || msg.Call.ID == "" {
		h.logger.WarnContext(c.Context(), "Call webhook missing identifiers",
			"call_id", msg.Call.ID, "user_id", userID)
		return c.JSON(fiber.Map{"status": "ignored"})
	}

	// Vendors redeliver on timeouts; a call must only be billed once.
	first, err := h.rateLimiter.MarkEventProcessed(c.Context(), "call:"+msg.Call.ID)
	if err != nil {
		h.logger.ErrorContext(c.Context(), "Webhook dedup check failed", "call_id", msg.Call.ID, "error", err)
	} else if !first {
		h.logger.InfoContext(c.Context(), "Duplicate call webhook ignored", "call_id", msg.Call.ID)
		return c.JSON(fiber.Map{"status": "duplicate"})
	}

	h.usage.TrackCallUsage(c.Context(), userID, msg.Assistant.ID, msg.Assistant.Name, msg.DurationSeconds)
	return c.JSON(fiber.Map{"status": "success"})
}

type paypalEvent struct {
	ID        string `json:"id"`
	EventType string `json:"event_type"`
	Resource  struct {
		ID       string `json:"id"`
		CustomID string `json:"custom_id"`
		Amount   struct {
			Value string `json:"value"`
		} `json:"amount"`
	} `json:"resource"`
}

// HandlePayPalWebhook verifies the event signature against PayPal's verify
// endpoint, then applies payment captures to the credit ledger.
func (h *ApiHandler) HandlePayPalWebhook(c *fiber.Ctx) error {
	body := c.Body()

	headers := paypal.WebhookHeaders{
		TransmissionID:   c.Get("paypal-transmission-id"),
		TransmissionSig:  c.Get("paypal-transmission-sig"),
		TransmissionTime: c.Get("paypal-transmission-time"),
		CertURL:          c.Get("paypal-cert-url"),
		AuthAlgo:         c.Get("paypal-auth-algo"),
	}

	verified, err := h.paypal.VerifyWebhookSignature(c.Context(), headers, json.RawMessage(body))
	if err != nil {
		h.logger.ErrorContext(c.Context(), "PayPal webhook verification failed", "error", err)
		return c.Status(502).JSON(fiber.Map{
			"status": "error",
			"error":  "verification unavailable",
		})
	}
	if !verified {
		h.logger.WarnContext(c.Context(), "Rejected PayPal webhook with invalid signature",
			"transmission_id", headers.TransmissionID)
		return c.Status(400).JSON(fiber.Map{
			"status": "error",
			"error":  "invalid signature",
		})
	}

	var event paypalEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return c.Status(400).JSON(fiber.Map{
			"status": "error",
			"error":  "invalid payload",
		})
	}

	first, err := h.rateLimiter.MarkEventProcessed(c.Context(), "paypal:"+event.ID)
	if err != nil {
		h.logger.ErrorContext(c.Context(), "Webhook dedup check failed", "event_id", event.ID, "error", err)
	} else if !first {
		return c.JSON(fiber.Map{"status": "duplicate"})
	}

	switch event.EventType {
	case "PAYMENT.CAPTURE.COMPLETED":
		return h.handleCaptureCompleted(c, event)
	default:
		h.logger.InfoContext(c.Context(), "Unhandled PayPal webhook event", "type", event.EventType)
		return c.JSON(fiber.Map{"status": "ignored"})
	}
}

func (h *ApiHandler) handleCaptureCompleted(c *fiber.Ctx, event paypalEvent) error {
	// custom_id carries the order reference, e.g. "topup:<user_id>".
	userID, ok := strings.CutPrefix(event.Resource.CustomID, "topup:")
	if !ok || userID == "" {
		h.logger.InfoContext(c.Context(), "Capture without top-up reference ignored",
			"event_id", event.ID, "custom_id", event.Resource.CustomID)
		return c.JSON(fiber.Map{"status": "ignored"})
	}

	amount, err := decimal.NewFromString(event.Resource.Amount.Value)
	if err != nil || !amount.IsPositive() {
		h.logger.ErrorContext(c.Context(), "Capture with unparseable amount",
			"event_id", event.ID, "value", event.Resource.Amount.Value)
		return c.Status(400).JSON(fiber.Map{
			"status": "error",
			"error":  "invalid amount",
		})
	}

	if _, err := h.credits.AddCredits(c.Context(), userID, amount,
		model.CreditTransactionTopUp, "PayPal credit top-up", event.Resource.ID); err != nil {
		if errors.Is(err, repository.ErrSubscriptionNotFound) {
			if _, err := h.credits.ActivateSubscription(c.Context(), userID, model.PlanTypePAYG, amount); err != nil {
				h.logger.ErrorContext(c.Context(), "Failed to activate subscription from webhook",
					"user_id", userID, "event_id", event.ID, "error", err)
				return c.Status(500).JSON(fiber.Map{"status": "error"})
			}
		} else {
			h.logger.ErrorContext(c.Context(), "Failed to credit captured payment",
				"user_id", userID, "event_id", event.ID, "error", err)
			return c.Status(500).JSON(fiber.Map{"status": "error"})
		}
	}

	return c.JSON(fiber.Map{"status": "success"})
}
