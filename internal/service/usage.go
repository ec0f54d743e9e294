package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"voxmeter/internal/billing"
	"voxmeter/internal/model"
	"voxmeter/internal/monitoring"
	"voxmeter/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// UsageService is the policy engine deciding whether a user may create an
// assistant or place a call, and recording usage afterwards.
//
// Every public method is fail-closed and never returns an error to the
// caller: internal failures are logged and converted into a denial (for
// permission checks) or a zero/blocked result (for reads). A bug here must
// never accidentally grant free usage, and a webhook must never fail because
// billing bookkeeping failed.
type UsageService struct {
	repo      repository.Repository
	pricing   billing.Pricing
	telemetry monitoring.Telemetry
	logger    *slog.Logger
}

func NewUsageService(repo repository.Repository, pricing billing.Pricing, telemetry monitoring.Telemetry, logger *slog.Logger) *UsageService {
	return &UsageService{
		repo:      repo,
		pricing:   pricing,
		telemetry: telemetry,
		logger:    logger,
	}
}

func denied(reason string) model.ValidationResult {
	return model.ValidationResult{Reason: reason, UpgradeRequired: true}
}

const noSubscriptionReason = "No active subscription. Please choose a plan to get started."

// CanCreateAssistant decides whether the user may create another assistant.
// A user with no subscription record has never paid and is always blocked.
func (s *UsageService) CanCreateAssistant(ctx context.Context, userID string) model.ValidationResult {
	sub, err := s.repo.GetActiveSubscriptionByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrSubscriptionNotFound) {
			s.telemetry.RecordValidationDenied(ctx, "assistant")
			return denied(noSubscriptionReason)
		}
		s.logger.ErrorContext(ctx, "Failed to load subscription for assistant check", "user_id", userID, "error", err)
		return denied("Unable to verify your subscription right now. Please try again.")
	}

	activeAssistants, err := s.repo.CountActiveAssistants(ctx, userID)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to count assistants", "user_id", userID, "error", err)
		return denied("Unable to verify your assistant usage right now. Please try again.")
	}

	if !s.pricing.CanCreateAssistant(&sub, activeAssistants) {
		s.telemetry.RecordValidationDenied(ctx, "assistant")
		return denied(fmt.Sprintf(
			"Assistant limit reached (%d of %s) and insufficient credits. Need $%s, balance $%s. Please upgrade or top up.",
			activeAssistants, formatLimit(sub.TotalAssistantLimit()),
			s.pricing.AssistantCreationCost.StringFixed(2), sub.CreditBalance.StringFixed(2)))
	}

	result := model.ValidationResult{CanCreate: true}
	if remaining := sub.AssistantsRemaining(activeAssistants); remaining == model.Unlimited || remaining > 0 {
		result.Reason = fmt.Sprintf("Using plan quota (%d of %s assistants)", activeAssistants, formatLimit(sub.TotalAssistantLimit()))
	} else {
		result.Reason = fmt.Sprintf("Creating this assistant will charge $%s from your credit balance",
			s.pricing.AssistantCreationCost.StringFixed(2))
	}
	return result
}

// CanMakeCall decides whether the user may place a call of the estimated
// length. Permitted when remaining quota covers it or the credit balance
// covers the estimated cost.
func (s *UsageService) CanMakeCall(ctx context.Context, userID string, estimatedMinutes int) model.ValidationResult {
	if estimatedMinutes <= 0 {
		estimatedMinutes = 1
	}

	sub, err := s.repo.GetActiveSubscriptionByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrSubscriptionNotFound) {
			s.telemetry.RecordValidationDenied(ctx, "call")
			return denied(noSubscriptionReason)
		}
		s.logger.ErrorContext(ctx, "Failed to load subscription for call check", "user_id", userID, "error", err)
		return denied("Unable to verify your subscription right now. Please try again.")
	}

	estimatedCost := s.pricing.EstimateCall(sub.PlanType, estimatedMinutes)

	if !s.pricing.CanMakeCall(&sub, estimatedMinutes) {
		s.telemetry.RecordValidationDenied(ctx, "call")
		result := denied(fmt.Sprintf(
			"Insufficient credits. Need $%s for an estimated %d minute call, balance $%s. Please top up or upgrade.",
			estimatedCost.StringFixed(2), estimatedMinutes, sub.CreditBalance.StringFixed(2)))
		result.Overage = s.estimateOverage(&sub, estimatedMinutes)
		return result
	}

	result := model.ValidationResult{CanCall: true}
	remaining := sub.MinutesRemaining()
	if remaining == model.Unlimited || remaining >= estimatedMinutes {
		result.Reason = fmt.Sprintf("Using plan minutes (%s remaining)", formatLimit(remaining))
	} else {
		result.Reason = fmt.Sprintf("This call will charge approximately $%s from your credit balance",
			estimatedCost.StringFixed(2))
		result.Overage = s.estimateOverage(&sub, estimatedMinutes)
	}
	return result
}

func (s *UsageService) estimateOverage(sub *model.Subscription, estimatedMinutes int) *model.OverageEstimate {
	remaining := sub.MinutesRemaining()
	if remaining == model.Unlimited || remaining >= estimatedMinutes {
		return nil
	}
	over := estimatedMinutes - remaining
	return &model.OverageEstimate{
		Minutes: over,
		Cost:    s.pricing.EstimateCall(sub.PlanType, over),
	}
}

// GetCurrentUsage returns the dashboard usage projection. A user without a
// subscription gets a fully blocked zero-quota summary, never an error.
func (s *UsageService) GetCurrentUsage(ctx context.Context, userID string) model.UsageSummary {
	sub, err := s.repo.GetActiveSubscriptionByUserID(ctx, userID)
	if err != nil {
		if !errors.Is(err, repository.ErrSubscriptionNotFound) {
			s.logger.ErrorContext(ctx, "Failed to load subscription for usage summary", "user_id", userID, "error", err)
		}
		return model.UsageSummary{
			UserID:        userID,
			PlanType:      model.PlanTypeNone,
			CreditBalance: decimal.Zero,
			Blocked:       true,
		}
	}

	activeAssistants, err := s.repo.CountActiveAssistants(ctx, userID)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to count assistants for usage summary", "user_id", userID, "error", err)
	}

	summary := model.UsageSummary{
		UserID:              userID,
		PlanType:            sub.PlanType,
		PlanName:            sub.PlanName,
		MinutesUsed:         sub.MinutesUsed,
		MinuteLimit:         sub.TotalMinuteLimit(),
		MinutesRemaining:    sub.MinutesRemaining(),
		AssistantsCreated:   activeAssistants,
		AssistantLimit:      sub.TotalAssistantLimit(),
		AssistantsRemaining: sub.AssistantsRemaining(activeAssistants),
		CreditBalance:       sub.CreditBalance,
		MinimumBalance:      sub.MinimumBalance,
		NeedsTopUp:          sub.NeedsTopUp(),
		MonthCost:           decimal.Zero,
		MonthOverageCost:    decimal.Zero,
		CurrentPeriodStart:  sub.CurrentPeriodStart,
		CurrentPeriodEnd:    sub.CurrentPeriodEnd,
	}

	month := model.MonthKey(time.Now())
	record, err := s.repo.GetMonthlyUsage(ctx, userID, month)
	if err != nil {
		if !errors.Is(err, repository.ErrUsageRecordNotFound) {
			s.logger.ErrorContext(ctx, "Failed to load monthly usage", "user_id", userID, "month", month, "error", err)
		}
		return summary
	}

	summary.MonthMinutes = record.TotalMinutes
	summary.MonthCost = record.TotalCost
	summary.MonthOverageCost = record.OverageCost
	return summary
}

// TrackCallUsage records a completed call: increments the minute counter,
// deducts cost from the credit balance (clamped at zero), appends the credit
// ledger entry, and rolls the monthly usage record forward. All writes are
// best-effort; failures are logged and swallowed so the call webhook that
// triggered us never fails over bookkeeping.
func (s *UsageService) TrackCallUsage(ctx context.Context, userID, assistantID, assistantName string, durationSeconds float64) {
	minutes := billing.BilledMinutes(durationSeconds)
	if minutes == 0 {
		return
	}

	sub, err := s.repo.GetActiveSubscriptionByUserID(ctx, userID)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to load subscription for call tracking",
			"user_id", userID, "assistant_id", assistantID, "error", err)
		return
	}

	charge := s.pricing.ChargeForCall(sub.PlanType, sub.TotalMinuteLimit(), sub.MinutesUsed, minutes)

	if err := s.repo.IncrementMinutesUsed(ctx, userID, minutes); err != nil {
		s.logger.ErrorContext(ctx, "Failed to increment minutes used",
			"user_id", userID, "minutes", minutes, "error", err)
	}

	if charge.Cost.IsPositive() {
		s.deductAndLedger(ctx, userID, assistantID, assistantName, minutes, charge.Cost)
	}

	overageCost := decimal.Zero
	if sub.PlanType != model.PlanTypePAYG {
		overageCost = charge.Cost
	}

	month := model.MonthKey(time.Now())
	recordID, err := s.repo.AddMonthlyUsage(ctx, userID, month, minutes, charge.Cost, overageCost)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to update monthly usage",
			"user_id", userID, "month", month, "error", err)
	} else if err := s.repo.AddAssistantUsage(ctx, recordID, assistantID, assistantName, minutes, charge.Cost); err != nil {
		s.logger.ErrorContext(ctx, "Failed to update assistant usage",
			"user_id", userID, "assistant_id", assistantID, "error", err)
	}

	cost, _ := charge.Cost.Float64()
	s.telemetry.RecordCallTracked(ctx, string(sub.PlanType), minutes, cost)

	s.logger.InfoContext(ctx, "Call usage tracked",
		"user_id", userID,
		"assistant_id", assistantID,
		"duration_seconds", durationSeconds,
		"minutes", minutes,
		"overage_minutes", charge.OverageMinutes,
		"cost", charge.Cost.StringFixed(2))
}

// deductAndLedger applies the deduction atomically and writes the matching
// ledger row. The ledger records the amount actually deducted: when the
// balance cannot cover the full cost the shortfall is noted in the
// description rather than letting the balance go negative.
func (s *UsageService) deductAndLedger(ctx context.Context, userID, assistantID, assistantName string, minutes int, cost decimal.Decimal) {
	change, err := s.repo.DeductCredits(ctx, userID, cost)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to deduct credits",
			"user_id", userID, "cost", cost.StringFixed(2), "error", err)
		return
	}

	deducted := change.Before.Sub(change.After)
	description := fmt.Sprintf("Call usage: %s (%d min)", assistantName, minutes)
	if deducted.LessThan(cost) {
		shortfall := cost.Sub(deducted)
		description = fmt.Sprintf("%s (balance depleted, $%s uncollected)", description, shortfall.StringFixed(2))
		s.logger.WarnContext(ctx, "Credit balance depleted, partial deduction",
			"user_id", userID,
			"cost", cost.StringFixed(2),
			"deducted", deducted.StringFixed(2),
			"shortfall", shortfall.StringFixed(2))
	}

	ledger := model.CreditTransaction{
		ID:            uuid.New(),
		UserID:        userID,
		Type:          model.CreditTransactionUsage,
		Amount:        deducted.Neg(),
		Description:   description,
		Reference:     assistantID,
		BalanceBefore: change.Before,
		BalanceAfter:  change.After,
		CreatedAt:     time.Now(),
	}
	if err := s.repo.CreateCreditTransaction(ctx, ledger); err != nil {
		s.logger.ErrorContext(ctx, "Failed to append credit ledger entry",
			"user_id", userID, "amount", ledger.Amount.StringFixed(2), "error", err)
	}
}

// GetUpgradeOptions lists the plans the user can move to. PAYG is the only
// plan sold today: no plan yields exactly the PAYG option, anything else
// yields nothing.
func (s *UsageService) GetUpgradeOptions(ctx context.Context, userID string) []model.UpgradeOption {
	sub, err := s.repo.GetActiveSubscriptionByUserID(ctx, userID)
	if err != nil && !errors.Is(err, repository.ErrSubscriptionNotFound) {
		s.logger.ErrorContext(ctx, "Failed to load subscription for upgrade options", "user_id", userID, "error", err)
		return []model.UpgradeOption{}
	}

	hasPlan := err == nil && sub.PlanType != model.PlanTypeNone
	if hasPlan {
		return []model.UpgradeOption{}
	}

	payg := billing.Catalog[model.PlanTypePAYG]
	return []model.UpgradeOption{
		{
			PlanType:    model.PlanTypePAYG,
			PlanName:    payg.Name,
			Price:       payg.MonthlyPrice,
			Description: fmt.Sprintf("Pay per minute at $%s/min from a prepaid credit balance", s.pricing.PerMinuteRate.StringFixed(2)),
		},
	}
}

func formatLimit(limit int) string {
	if limit == model.Unlimited {
		return "unlimited"
	}
	return fmt.Sprintf("%d", limit)
}
