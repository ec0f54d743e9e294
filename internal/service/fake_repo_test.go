package service

import (
	"context"
	"time"

	"voxmeter/internal/model"
	"voxmeter/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// fakeRepo is an in-memory Repository for service tests. Error fields force
// specific failures; everything else behaves like the real store, including
// the zero-clamp on deductions.
type fakeRepo struct {
	sub    model.Subscription
	hasSub bool
	subErr error

	activeAssistants int
	assistantsErr    error

	deductErr error

	defaultProvider    model.PhoneProvider
	defaultProviderErr error
	providers          []model.PhoneProvider

	monthlyUsage model.UsageRecord
	monthlyErr   error

	minutesAdded   int
	transactions   []model.CreditTransaction
	monthlyAdds    []monthlyAdd
	assistantAdds  []assistantAdd
	replacedSubs   []model.Subscription
	vapiIDsSet     map[uuid.UUID]string
	creditsAdded   []decimal.Decimal
	deactivatedIDs []uuid.UUID
}

type monthlyAdd struct {
	Month       string
	Minutes     int
	Cost        decimal.Decimal
	OverageCost decimal.Decimal
}

type assistantAdd struct {
	RecordID      uuid.UUID
	AssistantID   string
	AssistantName string
	Minutes       int
	Cost          decimal.Decimal
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{vapiIDsSet: make(map[uuid.UUID]string)}
}

func (f *fakeRepo) withSubscription(sub model.Subscription) *fakeRepo {
	f.sub = sub
	f.hasSub = true
	return f
}

func (f *fakeRepo) GetActiveSubscriptionByUserID(ctx context.Context, userID string) (model.Subscription, error) {
	if f.subErr != nil {
		return model.Subscription{}, f.subErr
	}
	if !f.hasSub {
		return model.Subscription{}, repository.ErrSubscriptionNotFound
	}
	return f.sub, nil
}

func (f *fakeRepo) CreateSubscription(ctx context.Context, sub model.Subscription) error {
	f.sub = sub
	f.hasSub = true
	return nil
}

func (f *fakeRepo) ReplaceActiveSubscription(ctx context.Context, sub model.Subscription) error {
	f.replacedSubs = append(f.replacedSubs, sub)
	f.sub = sub
	f.hasSub = true
	return nil
}

func (f *fakeRepo) IncrementMinutesUsed(ctx context.Context, userID string, minutes int) error {
	f.minutesAdded += minutes
	f.sub.MinutesUsed += minutes
	return nil
}

func (f *fakeRepo) DeductCredits(ctx context.Context, userID string, amount decimal.Decimal) (repository.BalanceChange, error) {
	if f.deductErr != nil {
		return repository.BalanceChange{}, f.deductErr
	}
	if !f.hasSub {
		return repository.BalanceChange{}, repository.ErrSubscriptionNotFound
	}
	before := f.sub.CreditBalance
	after := before.Sub(amount)
	if after.IsNegative() {
		after = decimal.Zero
	}
	f.sub.CreditBalance = after
	return repository.BalanceChange{Before: before, After: after}, nil
}

func (f *fakeRepo) AddCredits(ctx context.Context, userID string, amount decimal.Decimal) (repository.BalanceChange, error) {
	if !f.hasSub {
		return repository.BalanceChange{}, repository.ErrSubscriptionNotFound
	}
	before := f.sub.CreditBalance
	f.sub.CreditBalance = before.Add(amount)
	f.creditsAdded = append(f.creditsAdded, amount)
	return repository.BalanceChange{Before: before, After: f.sub.CreditBalance}, nil
}

func (f *fakeRepo) ResetElapsedPeriods(ctx context.Context, now time.Time) (int64, error) {
	return 0, nil
}

func (f *fakeRepo) CreateCreditTransaction(ctx context.Context, tx model.CreditTransaction) error {
	f.transactions = append(f.transactions, tx)
	return nil
}

func (f *fakeRepo) ListCreditTransactions(ctx context.Context, userID string, limit, offset int) ([]model.CreditTransaction, error) {
	return f.transactions, nil
}

func (f *fakeRepo) AddMonthlyUsage(ctx context.Context, userID, month string, minutes int, cost, overageCost decimal.Decimal) (uuid.UUID, error) {
	if f.monthlyErr != nil {
		return uuid.Nil, f.monthlyErr
	}
	f.monthlyAdds = append(f.monthlyAdds, monthlyAdd{Month: month, Minutes: minutes, Cost: cost, OverageCost: overageCost})
	return uuid.New(), nil
}

func (f *fakeRepo) AddAssistantUsage(ctx context.Context, recordID uuid.UUID, assistantID, assistantName string, minutes int, cost decimal.Decimal) error {
	f.assistantAdds = append(f.assistantAdds, assistantAdd{
		RecordID:      recordID,
		AssistantID:   assistantID,
		AssistantName: assistantName,
		Minutes:       minutes,
		Cost:          cost,
	})
	return nil
}

func (f *fakeRepo) GetMonthlyUsage(ctx context.Context, userID, month string) (model.UsageRecord, error) {
	if f.monthlyErr != nil {
		return model.UsageRecord{}, f.monthlyErr
	}
	if f.monthlyUsage.UserID == "" {
		return model.UsageRecord{}, repository.ErrUsageRecordNotFound
	}
	return f.monthlyUsage, nil
}

func (f *fakeRepo) ListAssistantUsage(ctx context.Context, recordID uuid.UUID) ([]model.AssistantUsage, error) {
	return nil, nil
}

func (f *fakeRepo) CountActiveAssistants(ctx context.Context, userID string) (int, error) {
	if f.assistantsErr != nil {
		return 0, f.assistantsErr
	}
	return f.activeAssistants, nil
}

func (f *fakeRepo) CreateAssistant(ctx context.Context, assistant model.Assistant) error {
	f.activeAssistants++
	return nil
}

func (f *fakeRepo) DeactivateAssistant(ctx context.Context, userID string, id uuid.UUID) error {
	if f.activeAssistants > 0 {
		f.activeAssistants--
	}
	return nil
}

func (f *fakeRepo) GetDefaultPhoneProvider(ctx context.Context, userID string) (model.PhoneProvider, error) {
	if f.defaultProviderErr != nil {
		return model.PhoneProvider{}, f.defaultProviderErr
	}
	if f.defaultProvider.UserID == "" {
		return model.PhoneProvider{}, repository.ErrPhoneProviderNotFound
	}
	return f.defaultProvider, nil
}

func (f *fakeRepo) ListPhoneProviders(ctx context.Context, userID string) ([]model.PhoneProvider, error) {
	return f.providers, nil
}

func (f *fakeRepo) CreatePhoneProvider(ctx context.Context, provider model.PhoneProvider) error {
	f.providers = append(f.providers, provider)
	if provider.IsDefault {
		f.defaultProvider = provider
	}
	return nil
}

func (f *fakeRepo) DeactivatePhoneProvider(ctx context.Context, userID string, id uuid.UUID) error {
	f.deactivatedIDs = append(f.deactivatedIDs, id)
	return nil
}

func (f *fakeRepo) SetVapiPhoneNumberID(ctx context.Context, id uuid.UUID, vapiPhoneNumberID string) error {
	f.vapiIDsSet[id] = vapiPhoneNumberID
	return nil
}

func (f *fakeRepo) HealthCheck(ctx context.Context) error {
	return nil
}

var _ repository.Repository = (*fakeRepo)(nil)
