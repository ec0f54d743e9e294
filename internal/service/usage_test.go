package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"voxmeter/internal/billing"
	"voxmeter/internal/model"
	"voxmeter/internal/monitoring"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testUsageService(repo *fakeRepo) *UsageService {
	pricing := billing.Pricing{
		PerMinuteRate:         decimal.RequireFromString("0.07"),
		OverageRate:           decimal.RequireFromString("0.12"),
		AssistantCreationCost: decimal.RequireFromString("5.00"),
		MinimumBalance:        decimal.RequireFromString("5.00"),
	}
	return NewUsageService(repo, pricing, &monitoring.OpenTelemetry{}, testLogger())
}

func paygSubscription(balance string) model.Subscription {
	return model.Subscription{
		UserID:         "user-1",
		PlanType:       model.PlanTypePAYG,
		PlanName:       "Pay As You Go",
		CreditBalance:  decimal.RequireFromString(balance),
		MinimumBalance: decimal.RequireFromString("5.00"),
		IsActive:       true,
	}
}

func TestCanMakeCallNoSubscription(t *testing.T) {
	svc := testUsageService(newFakeRepo())

	result := svc.CanMakeCall(context.Background(), "user-1", 5)

	assert.False(t, result.CanCall)
	assert.True(t, result.UpgradeRequired)
	assert.Contains(t, result.Reason, "No active subscription")
}

func TestCanMakeCallRepositoryFailureDenies(t *testing.T) {
	repo := newFakeRepo()
	repo.subErr = errors.New("connection refused")
	svc := testUsageService(repo)

	result := svc.CanMakeCall(context.Background(), "user-1", 5)

	assert.False(t, result.CanCall)
	assert.Contains(t, result.Reason, "try again")
}

func TestCanMakeCallPAYGBalance(t *testing.T) {
	repo := newFakeRepo().withSubscription(paygSubscription("0.35"))
	svc := testUsageService(repo)

	result := svc.CanMakeCall(context.Background(), "user-1", 5)

	assert.True(t, result.CanCall)
	require.NotNil(t, result.Overage)
	assert.Equal(t, 5, result.Overage.Minutes)
}

func TestCanMakeCallInsufficientBalance(t *testing.T) {
	repo := newFakeRepo().withSubscription(paygSubscription("0.10"))
	svc := testUsageService(repo)

	result := svc.CanMakeCall(context.Background(), "user-1", 5)

	assert.False(t, result.CanCall)
	assert.True(t, result.UpgradeRequired)
	assert.Contains(t, result.Reason, "Insufficient credits")
}

func TestCanMakeCallZeroMinutesTreatedAsOne(t *testing.T) {
	// An estimate of one minute needs $0.07.
	repo := newFakeRepo().withSubscription(paygSubscription("0.07"))
	svc := testUsageService(repo)

	result := svc.CanMakeCall(context.Background(), "user-1", 0)

	assert.True(t, result.CanCall)
}

func TestCanMakeCallQuotaPlanWithinQuota(t *testing.T) {
	repo := newFakeRepo().withSubscription(model.Subscription{
		UserID:      "user-1",
		PlanType:    model.PlanTypeStarter,
		MinuteLimit: 500,
		MinutesUsed: 100,
		IsActive:    true,
	})
	svc := testUsageService(repo)

	result := svc.CanMakeCall(context.Background(), "user-1", 10)

	assert.True(t, result.CanCall)
	assert.Nil(t, result.Overage)
	assert.Contains(t, result.Reason, "plan minutes")
}

func TestCanCreateAssistantNoSubscription(t *testing.T) {
	svc := testUsageService(newFakeRepo())

	result := svc.CanCreateAssistant(context.Background(), "user-1")

	assert.False(t, result.CanCreate)
	assert.True(t, result.UpgradeRequired)
}

func TestCanCreateAssistantChargesWhenQuotaFull(t *testing.T) {
	repo := newFakeRepo().withSubscription(model.Subscription{
		UserID:         "user-1",
		PlanType:       model.PlanTypeStarter,
		AssistantLimit: 5,
		CreditBalance:  decimal.RequireFromString("10.00"),
		IsActive:       true,
	})
	repo.activeAssistants = 5
	svc := testUsageService(repo)

	result := svc.CanCreateAssistant(context.Background(), "user-1")

	assert.True(t, result.CanCreate)
	assert.Contains(t, result.Reason, "$5.00")
}

func TestCanCreateAssistantDeniedWithoutQuotaOrCredits(t *testing.T) {
	repo := newFakeRepo().withSubscription(model.Subscription{
		UserID:         "user-1",
		PlanType:       model.PlanTypeStarter,
		AssistantLimit: 5,
		CreditBalance:  decimal.RequireFromString("1.00"),
		IsActive:       true,
	})
	repo.activeAssistants = 5
	svc := testUsageService(repo)

	result := svc.CanCreateAssistant(context.Background(), "user-1")

	assert.False(t, result.CanCreate)
	assert.True(t, result.UpgradeRequired)
}

func TestTrackCallUsagePAYGDeductsAndLedgers(t *testing.T) {
	repo := newFakeRepo().withSubscription(paygSubscription("10.00"))
	svc := testUsageService(repo)

	// 5 minute call at $0.07/min.
	svc.TrackCallUsage(context.Background(), "user-1", "asst-1", "Receptionist", 300)

	assert.Equal(t, 5, repo.minutesAdded)
	assert.True(t, repo.sub.CreditBalance.Equal(decimal.RequireFromString("9.65")),
		"balance = %s", repo.sub.CreditBalance)

	require.Len(t, repo.transactions, 1)
	tx := repo.transactions[0]
	assert.Equal(t, model.CreditTransactionUsage, tx.Type)
	assert.True(t, tx.Amount.Equal(decimal.RequireFromString("-0.35")), "amount = %s", tx.Amount)
	assert.True(t, tx.BalanceBefore.Equal(decimal.RequireFromString("10.00")))
	assert.True(t, tx.BalanceAfter.Equal(decimal.RequireFromString("9.65")))
	assert.Equal(t, "asst-1", tx.Reference)

	require.Len(t, repo.monthlyAdds, 1)
	assert.Equal(t, 5, repo.monthlyAdds[0].Minutes)
	assert.True(t, repo.monthlyAdds[0].OverageCost.IsZero())

	require.Len(t, repo.assistantAdds, 1)
	assert.Equal(t, "Receptionist", repo.assistantAdds[0].AssistantName)
}

func TestTrackCallUsagePartialMinuteRoundsUp(t *testing.T) {
	repo := newFakeRepo().withSubscription(paygSubscription("10.00"))
	svc := testUsageService(repo)

	svc.TrackCallUsage(context.Background(), "user-1", "asst-1", "Receptionist", 61)

	assert.Equal(t, 2, repo.minutesAdded)
	assert.True(t, repo.sub.CreditBalance.Equal(decimal.RequireFromString("9.86")),
		"balance = %s", repo.sub.CreditBalance)
}

func TestTrackCallUsageFractionalSecondRoundsUp(t *testing.T) {
	repo := newFakeRepo().withSubscription(paygSubscription("10.00"))
	svc := testUsageService(repo)

	svc.TrackCallUsage(context.Background(), "user-1", "asst-1", "Receptionist", 60.5)

	assert.Equal(t, 2, repo.minutesAdded)
	assert.True(t, repo.sub.CreditBalance.Equal(decimal.RequireFromString("9.86")),
		"balance = %s", repo.sub.CreditBalance)
}

func TestTrackCallUsageZeroDurationIgnored(t *testing.T) {
	repo := newFakeRepo().withSubscription(paygSubscription("10.00"))
	svc := testUsageService(repo)

	svc.TrackCallUsage(context.Background(), "user-1", "asst-1", "Receptionist", 0)

	assert.Equal(t, 0, repo.minutesAdded)
	assert.Empty(t, repo.transactions)
	assert.Empty(t, repo.monthlyAdds)
}

func TestTrackCallUsageClampsDepletedBalance(t *testing.T) {
	// Balance covers only part of the $0.35 cost; it clamps at zero and the
	// ledger records what was actually collected.
	repo := newFakeRepo().withSubscription(paygSubscription("0.02"))
	svc := testUsageService(repo)

	svc.TrackCallUsage(context.Background(), "user-1", "asst-1", "Receptionist", 300)

	assert.True(t, repo.sub.CreditBalance.IsZero(), "balance = %s", repo.sub.CreditBalance)

	require.Len(t, repo.transactions, 1)
	tx := repo.transactions[0]
	assert.True(t, tx.Amount.Equal(decimal.RequireFromString("-0.02")), "amount = %s", tx.Amount)
	assert.True(t, tx.BalanceAfter.IsZero())
	assert.Contains(t, tx.Description, "balance depleted")
	assert.Contains(t, tx.Description, "$0.33")
}

func TestTrackCallUsageQuotaPlanNoChargeWithinQuota(t *testing.T) {
	repo := newFakeRepo().withSubscription(model.Subscription{
		UserID:        "user-1",
		PlanType:      model.PlanTypeStarter,
		MinuteLimit:   500,
		MinutesUsed:   100,
		CreditBalance: decimal.RequireFromString("20.00"),
		IsActive:      true,
	})
	svc := testUsageService(repo)

	svc.TrackCallUsage(context.Background(), "user-1", "asst-1", "Receptionist", 600)

	assert.Equal(t, 10, repo.minutesAdded)
	assert.True(t, repo.sub.CreditBalance.Equal(decimal.RequireFromString("20.00")))
	assert.Empty(t, repo.transactions)
}

func TestTrackCallUsageQuotaPlanOverageCharged(t *testing.T) {
	repo := newFakeRepo().withSubscription(model.Subscription{
		UserID:        "user-1",
		PlanType:      model.PlanTypeStarter,
		MinuteLimit:   500,
		MinutesUsed:   498,
		CreditBalance: decimal.RequireFromString("20.00"),
		IsActive:      true,
	})
	svc := testUsageService(repo)

	// 5 minute call: 3 overage minutes at $0.12.
	svc.TrackCallUsage(context.Background(), "user-1", "asst-1", "Receptionist", 300)

	assert.True(t, repo.sub.CreditBalance.Equal(decimal.RequireFromString("19.64")),
		"balance = %s", repo.sub.CreditBalance)

	require.Len(t, repo.monthlyAdds, 1)
	assert.True(t, repo.monthlyAdds[0].OverageCost.Equal(decimal.RequireFromString("0.36")))
}

func TestGetCurrentUsageNoSubscription(t *testing.T) {
	svc := testUsageService(newFakeRepo())

	summary := svc.GetCurrentUsage(context.Background(), "user-1")

	assert.True(t, summary.Blocked)
	assert.Equal(t, model.PlanTypeNone, summary.PlanType)
	assert.True(t, summary.CreditBalance.IsZero())
}

func TestGetCurrentUsageIncludesMonthlyRollup(t *testing.T) {
	repo := newFakeRepo().withSubscription(paygSubscription("25.00"))
	repo.monthlyUsage = model.UsageRecord{
		UserID:       "user-1",
		TotalMinutes: 42,
		TotalCost:    decimal.RequireFromString("2.94"),
		OverageCost:  decimal.Zero,
	}
	repo.activeAssistants = 2
	svc := testUsageService(repo)

	summary := svc.GetCurrentUsage(context.Background(), "user-1")

	assert.False(t, summary.Blocked)
	assert.Equal(t, 42, summary.MonthMinutes)
	assert.True(t, summary.MonthCost.Equal(decimal.RequireFromString("2.94")))
	assert.Equal(t, 2, summary.AssistantsCreated)
	assert.False(t, summary.NeedsTopUp)
}

func TestGetCurrentUsageNeedsTopUp(t *testing.T) {
	repo := newFakeRepo().withSubscription(paygSubscription("4.50"))
	svc := testUsageService(repo)

	summary := svc.GetCurrentUsage(context.Background(), "user-1")

	assert.True(t, summary.NeedsTopUp)
}

func TestGetUpgradeOptions(t *testing.T) {
	t.Run("no subscription offers payg", func(t *testing.T) {
		svc := testUsageService(newFakeRepo())

		options := svc.GetUpgradeOptions(context.Background(), "user-1")

		require.Len(t, options, 1)
		assert.Equal(t, model.PlanTypePAYG, options[0].PlanType)
	})

	t.Run("existing plan offers nothing", func(t *testing.T) {
		repo := newFakeRepo().withSubscription(paygSubscription("10.00"))
		svc := testUsageService(repo)

		options := svc.GetUpgradeOptions(context.Background(), "user-1")

		assert.Empty(t, options)
	})
}
