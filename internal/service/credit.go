package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"voxmeter/internal/billing"
	"voxmeter/internal/model"
	"voxmeter/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CreditService applies credit top-ups and manages the subscription
// lifecycle. A subscription exists only after a first successful payment;
// until then every usage check is blocked by absence of the record.
type CreditService struct {
	repo    repository.Repository
	pricing billing.Pricing
	logger  *slog.Logger
}

func NewCreditService(repo repository.Repository, pricing billing.Pricing, logger *slog.Logger) *CreditService {
	return &CreditService{repo: repo, pricing: pricing, logger: logger}
}

// AddCredits atomically increments the balance and appends the matching
// ledger entry. Used by the payment capture flow and admin adjustments.
func (s *CreditService) AddCredits(ctx context.Context, userID string, amount decimal.Decimal, txType model.CreditTransactionType, description, reference string) (repository.BalanceChange, error) {
	if !amount.IsPositive() {
		return repository.BalanceChange{}, fmt.Errorf("top-up amount must be positive, got %s", amount)
	}

	change, err := s.repo.AddCredits(ctx, userID, amount)
	if err != nil {
		return repository.BalanceChange{}, fmt.Errorf("failed to add credits: %w", err)
	}

	ledger := model.CreditTransaction{
		ID:            uuid.New(),
		UserID:        userID,
		Type:          txType,
		Amount:        amount,
		Description:   description,
		Reference:     reference,
		BalanceBefore: change.Before,
		BalanceAfter:  change.After,
		CreatedAt:     time.Now(),
	}
	if err := s.repo.CreateCreditTransaction(ctx, ledger); err != nil {
		// The balance moved but the audit row is missing; loud log for reconciliation.
		s.logger.ErrorContext(ctx, "Failed to append credit ledger entry after top-up",
			"user_id", userID, "amount", amount.StringFixed(2), "reference", reference, "error", err)
	}

	s.logger.InfoContext(ctx, "Credits added",
		"user_id", userID,
		"type", txType,
		"amount", amount.StringFixed(2),
		"balance_after", change.After.StringFixed(2),
		"reference", reference)
	return change, nil
}

// ActivateSubscription starts a plan for the user after a successful
// payment, retiring any previous active subscription.
func (s *CreditService) ActivateSubscription(ctx context.Context, userID string, planType model.PlanType, initialCredit decimal.Decimal) (model.Subscription, error) {
	plan, ok := billing.PlanFor(planType)
	if !ok {
		return model.Subscription{}, fmt.Errorf("unknown plan type: %s", planType)
	}

	now := time.Now()
	sub := model.Subscription{
		ID:                 uuid.New(),
		UserID:             userID,
		PlanType:           plan.Type,
		PlanName:           plan.Name,
		MinuteLimit:        plan.MinuteLimit,
		AssistantLimit:     plan.AssistantLimit,
		CreditBalance:      initialCredit,
		MinimumBalance:     s.pricing.MinimumBalance,
		CurrentPeriodStart: now,
		CurrentPeriodEnd:   now.AddDate(0, 1, 0),
		IsActive:           true,
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	if err := s.repo.ReplaceActiveSubscription(ctx, sub); err != nil {
		return model.Subscription{}, fmt.Errorf("failed to activate subscription: %w", err)
	}

	if initialCredit.IsPositive() {
		ledger := model.CreditTransaction{
			ID:            uuid.New(),
			UserID:        userID,
			Type:          model.CreditTransactionTopUp,
			Amount:        initialCredit,
			Description:   fmt.Sprintf("Initial credit for %s plan", plan.Name),
			BalanceBefore: decimal.Zero,
			BalanceAfter:  initialCredit,
			CreatedAt:     now,
		}
		if err := s.repo.CreateCreditTransaction(ctx, ledger); err != nil {
			s.logger.ErrorContext(ctx, "Failed to append initial credit ledger entry",
				"user_id", userID, "error", err)
		}
	}

	s.logger.InfoContext(ctx, "Subscription activated",
		"user_id", userID,
		"plan_type", plan.Type,
		"initial_credit", initialCredit.StringFixed(2))
	return sub, nil
}

// ListTransactions returns the user's ledger history, newest first.
func (s *CreditService) ListTransactions(ctx context.Context, userID string, limit, offset int) ([]model.CreditTransaction, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	return s.repo.ListCreditTransactions(ctx, userID, limit, offset)
}
