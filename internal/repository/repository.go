package repository

import (
	"context"
	"errors"
	"time"

	"voxmeter/internal/model"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	ErrSubscriptionNotFound  = errors.New("subscription not found")
	ErrUsageRecordNotFound   = errors.New("usage record not found")
	ErrPhoneProviderNotFound = errors.New("phone provider not found")
	ErrAssistantNotFound     = errors.New("assistant not found")
)

// BalanceChange reports the before/after snapshot of an atomic balance
// mutation, for the ledger row that must accompany it.
type BalanceChange struct {
	Before decimal.Decimal
	After  decimal.Decimal
}

// Repository is the persistence contract for the billing subsystem.
type Repository interface {
	// Subscription operations
	GetActiveSubscriptionByUserID(ctx context.Context, userID string) (model.Subscription, error)
	CreateSubscription(ctx context.Context, sub model.Subscription) error
	// ReplaceActiveSubscription retires any active subscription for the user
	// and inserts the new one in a single transaction.
	ReplaceActiveSubscription(ctx context.Context, sub model.Subscription) error
	IncrementMinutesUsed(ctx context.Context, userID string, minutes int) error
	// DeductCredits atomically decrements the balance, clamped at zero, and
	// returns the before/after snapshot.
	DeductCredits(ctx context.Context, userID string, amount decimal.Decimal) (BalanceChange, error)
	// AddCredits atomically increments the balance and returns the snapshot.
	AddCredits(ctx context.Context, userID string, amount decimal.Decimal) (BalanceChange, error)
	// ResetElapsedPeriods starts a fresh billing period for every active
	// subscription whose period end has passed. Returns rows affected.
	ResetElapsedPeriods(ctx context.Context, now time.Time) (int64, error)

	// Credit ledger operations (append-only)
	CreateCreditTransaction(ctx context.Context, tx model.CreditTransaction) error
	ListCreditTransactions(ctx context.Context, userID string, limit, offset int) ([]model.CreditTransaction, error)

	// Monthly usage rollups
	AddMonthlyUsage(ctx context.Context, userID, month string, minutes int, cost, overageCost decimal.Decimal) (uuid.UUID, error)
	AddAssistantUsage(ctx context.Context, recordID uuid.UUID, assistantID, assistantName string, minutes int, cost decimal.Decimal) error
	GetMonthlyUsage(ctx context.Context, userID, month string) (model.UsageRecord, error)
	ListAssistantUsage(ctx context.Context, recordID uuid.UUID) ([]model.AssistantUsage, error)

	// Assistant operations
	CountActiveAssistants(ctx context.Context, userID string) (int, error)
	CreateAssistant(ctx context.Context, assistant model.Assistant) error
	DeactivateAssistant(ctx context.Context, userID string, id uuid.UUID) error

	// Phone provider operations
	GetDefaultPhoneProvider(ctx context.Context, userID string) (model.PhoneProvider, error)
	ListPhoneProviders(ctx context.Context, userID string) ([]model.PhoneProvider, error)
	// CreatePhoneProvider inserts a provider; when it is flagged default, any
	// existing default for the user is cleared in the same transaction.
	CreatePhoneProvider(ctx context.Context, provider model.PhoneProvider) error
	DeactivatePhoneProvider(ctx context.Context, userID string, id uuid.UUID) error
	SetVapiPhoneNumberID(ctx context.Context, id uuid.UUID, vapiPhoneNumberID string) error

	// Database operations
	HealthCheck(ctx context.Context) error
}
