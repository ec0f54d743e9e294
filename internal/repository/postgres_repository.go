package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"voxmeter/internal/database"
	"voxmeter/internal/model"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type DatabaseRepository struct {
	db database.Database
}

func NewDatabaseRepository(db database.Database) *DatabaseRepository {
	return &DatabaseRepository{db: db}
}

const subscriptionColumns = `id, user_id, plan_type, plan_name, minutes_used, minute_limit, extra_minutes,
	assistant_limit, extra_assistants, credit_balance, minimum_balance,
	current_period_start, current_period_end, is_active, created_at, updated_at`

func scanSubscription(row *sql.Row) (model.Subscription, error) {
	var s model.Subscription
	err := row.Scan(&s.ID, &s.UserID, &s.PlanType, &s.PlanName, &s.MinutesUsed, &s.MinuteLimit,
		&s.ExtraMinutes, &s.AssistantLimit, &s.ExtraAssistants, &s.CreditBalance, &s.MinimumBalance,
		&s.CurrentPeriodStart, &s.CurrentPeriodEnd, &s.IsActive, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Subscription{}, ErrSubscriptionNotFound
		}
		return model.Subscription{}, err
	}
	return s, nil
}

func (r *DatabaseRepository) GetActiveSubscriptionByUserID(ctx context.Context, userID string) (model.Subscription, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+subscriptionColumns+` FROM tbl_subscription WHERE user_id = $1 AND is_active = TRUE`, userID)
	return scanSubscription(row)
}

func (r *DatabaseRepository) CreateSubscription(ctx context.Context, sub model.Subscription) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO tbl_subscription (id, user_id, plan_type, plan_name, minutes_used, minute_limit, extra_minutes,
			assistant_limit, extra_assistants, credit_balance, minimum_balance,
			current_period_start, current_period_end, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		sub.ID, sub.UserID, sub.PlanType, sub.PlanName, sub.MinutesUsed, sub.MinuteLimit, sub.ExtraMinutes,
		sub.AssistantLimit, sub.ExtraAssistants, sub.CreditBalance, sub.MinimumBalance,
		sub.CurrentPeriodStart, sub.CurrentPeriodEnd, sub.IsActive, sub.CreatedAt, sub.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create subscription: %w", err)
	}
	return nil
}

func (r *DatabaseRepository) ReplaceActiveSubscription(ctx context.Context, sub model.Subscription) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`UPDATE tbl_subscription SET is_active = FALSE, updated_at = NOW() WHERE user_id = $1 AND is_active = TRUE`,
		sub.UserID); err != nil {
		return fmt.Errorf("failed to retire previous subscription: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO tbl_subscription (id, user_id, plan_type, plan_name, minutes_used, minute_limit, extra_minutes,
			assistant_limit, extra_assistants, credit_balance, minimum_balance,
			current_period_start, current_period_end, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		sub.ID, sub.UserID, sub.PlanType, sub.PlanName, sub.MinutesUsed, sub.MinuteLimit, sub.ExtraMinutes,
		sub.AssistantLimit, sub.ExtraAssistants, sub.CreditBalance, sub.MinimumBalance,
		sub.CurrentPeriodStart, sub.CurrentPeriodEnd, sub.IsActive, sub.CreatedAt, sub.UpdatedAt); err != nil {
		return fmt.Errorf("failed to insert subscription: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (r *DatabaseRepository) IncrementMinutesUsed(ctx context.Context, userID string, minutes int) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE tbl_subscription SET minutes_used = minutes_used + $1, updated_at = NOW()
		 WHERE user_id = $2 AND is_active = TRUE`, minutes, userID)
	if err != nil {
		return fmt.Errorf("failed to increment minutes used: %w", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return ErrSubscriptionNotFound
	}
	return nil
}

// DeductCredits clamps at zero inside the update so concurrent call webhooks
// for the same user cannot drive the balance negative or lose an update.
func (r *DatabaseRepository) DeductCredits(ctx context.Context, userID string, amount decimal.Decimal) (BalanceChange, error) {
	var change BalanceChange
	err := r.db.QueryRowContext(ctx, `
		UPDATE tbl_subscription s
		SET credit_balance = GREATEST(0, s.credit_balance - $2), updated_at = NOW()
		FROM (SELECT id, credit_balance FROM tbl_subscription
		      WHERE user_id = $1 AND is_active = TRUE FOR UPDATE) old
		WHERE s.id = old.id
		RETURNING old.credit_balance, s.credit_balance`,
		userID, amount).Scan(&change.Before, &change.After)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return change, ErrSubscriptionNotFound
		}
		return change, fmt.Errorf("failed to deduct credits: %w", err)
	}
	return change, nil
}

func (r *DatabaseRepository) AddCredits(ctx context.Context, userID string, amount decimal.Decimal) (BalanceChange, error) {
	var change BalanceChange
	err := r.db.QueryRowContext(ctx, `
		UPDATE tbl_subscription s
		SET credit_balance = s.credit_balance + $2, updated_at = NOW()
		FROM (SELECT id, credit_balance FROM tbl_subscription
		      WHERE user_id = $1 AND is_active = TRUE FOR UPDATE) old
		WHERE s.id = old.id
		RETURNING old.credit_balance, s.credit_balance`,
		userID, amount).Scan(&change.Before, &change.After)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return change, ErrSubscriptionNotFound
		}
		return change, fmt.Errorf("failed to add credits: %w", err)
	}
	return change, nil
}

func (r *DatabaseRepository) ResetElapsedPeriods(ctx context.Context, now time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE tbl_subscription
		SET minutes_used = 0,
		    current_period_start = current_period_end,
		    current_period_end = current_period_end + INTERVAL '1 month',
		    updated_at = NOW()
		WHERE is_active = TRUE AND current_period_end <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("failed to reset elapsed periods: %w", err)
	}
	return result.RowsAffected()
}

func (r *DatabaseRepository) CreateCreditTransaction(ctx context.Context, t model.CreditTransaction) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO tbl_credit_transaction (id, user_id, type, amount, description, reference,
			balance_before, balance_after, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		t.ID, t.UserID, t.Type, t.Amount, t.Description, t.Reference,
		t.BalanceBefore, t.BalanceAfter, t.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create credit transaction: %w", err)
	}
	return nil
}

func (r *DatabaseRepository) ListCreditTransactions(ctx context.Context, userID string, limit, offset int) ([]model.CreditTransaction, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, user_id, type, amount, description, reference, balance_before, balance_after, created_at
		FROM tbl_credit_transaction WHERE user_id = $1
		ORDER BY created_at DESC LIMIT $2 OFFSET $3`, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list credit transactions: %w", err)
	}
	defer rows.Close()

	var transactions []model.CreditTransaction
	for rows.Next() {
		var t model.CreditTransaction
		if err := rows.Scan(&t.ID, &t.UserID, &t.Type, &t.Amount, &t.Description, &t.Reference,
			&t.BalanceBefore, &t.BalanceAfter, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan credit transaction: %w", err)
		}
		transactions = append(transactions, t)
	}
	return transactions, rows.Err()
}

// AddMonthlyUsage lazily creates the month's rollup row and accumulates onto
// it. TotalCost and OverageCost only ever grow within a period.
func (r *DatabaseRepository) AddMonthlyUsage(ctx context.Context, userID, month string, minutes int, cost, overageCost decimal.Decimal) (uuid.UUID, error) {
	var id uuid.UUID
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO tbl_usage_record (id, user_id, month, total_minutes, total_cost, overage_cost, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW())
		ON CONFLICT (user_id, month) DO UPDATE SET
			total_minutes = tbl_usage_record.total_minutes + EXCLUDED.total_minutes,
			total_cost = tbl_usage_record.total_cost + EXCLUDED.total_cost,
			overage_cost = tbl_usage_record.overage_cost + EXCLUDED.overage_cost,
			updated_at = NOW()
		RETURNING id`,
		uuid.New(), userID, month, minutes, cost, overageCost).Scan(&id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to upsert monthly usage: %w", err)
	}
	return id, nil
}

func (r *DatabaseRepository) AddAssistantUsage(ctx context.Context, recordID uuid.UUID, assistantID, assistantName string, minutes int, cost decimal.Decimal) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO tbl_assistant_usage (usage_record_id, assistant_id, assistant_name, minutes, cost)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (usage_record_id, assistant_id) DO UPDATE SET
			assistant_name = EXCLUDED.assistant_name,
			minutes = tbl_assistant_usage.minutes + EXCLUDED.minutes,
			cost = tbl_assistant_usage.cost + EXCLUDED.cost`,
		recordID, assistantID, assistantName, minutes, cost)
	if err != nil {
		return fmt.Errorf("failed to upsert assistant usage: %w", err)
	}
	return nil
}

func (r *DatabaseRepository) GetMonthlyUsage(ctx context.Context, userID, month string) (model.UsageRecord, error) {
	var u model.UsageRecord
	err := r.db.QueryRowContext(ctx, `
		SELECT id, user_id, month, total_minutes, total_cost, overage_cost, created_at, updated_at
		FROM tbl_usage_record WHERE user_id = $1 AND month = $2`, userID, month).
		Scan(&u.ID, &u.UserID, &u.Month, &u.TotalMinutes, &u.TotalCost, &u.OverageCost, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.UsageRecord{}, ErrUsageRecordNotFound
		}
		return model.UsageRecord{}, err
	}
	return u, nil
}

func (r *DatabaseRepository) ListAssistantUsage(ctx context.Context, recordID uuid.UUID) ([]model.AssistantUsage, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT usage_record_id, assistant_id, assistant_name, minutes, cost
		FROM tbl_assistant_usage WHERE usage_record_id = $1 ORDER BY minutes DESC`, recordID)
	if err != nil {
		return nil, fmt.Errorf("failed to list assistant usage: %w", err)
	}
	defer rows.Close()

	var usages []model.AssistantUsage
	for rows.Next() {
		var u model.AssistantUsage
		if err := rows.Scan(&u.UsageRecordID, &u.AssistantID, &u.AssistantName, &u.Minutes, &u.Cost); err != nil {
			return nil, fmt.Errorf("failed to scan assistant usage: %w", err)
		}
		usages = append(usages, u)
	}
	return usages, rows.Err()
}

func (r *DatabaseRepository) CountActiveAssistants(ctx context.Context, userID string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM tbl_assistant WHERE user_id = $1 AND is_active = TRUE`, userID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count assistants: %w", err)
	}
	return count, nil
}

func (r *DatabaseRepository) CreateAssistant(ctx context.Context, a model.Assistant) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO tbl_assistant (id, user_id, name, vapi_assistant_id, is_active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		a.ID, a.UserID, a.Name, a.VapiAssistantID, a.IsActive, a.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create assistant: %w", err)
	}
	return nil
}

func (r *DatabaseRepository) DeactivateAssistant(ctx context.Context, userID string, id uuid.UUID) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE tbl_assistant SET is_active = FALSE WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("failed to deactivate assistant: %w", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return ErrAssistantNotFound
	}
	return nil
}

const phoneProviderColumns = `id, user_id, provider_name, credentials, phone_number, vapi_phone_number_id,
	is_default, is_active, created_at, updated_at`

func (r *DatabaseRepository) GetDefaultPhoneProvider(ctx context.Context, userID string) (model.PhoneProvider, error) {
	var p model.PhoneProvider
	err := r.db.QueryRowContext(ctx,
		`SELECT `+phoneProviderColumns+` FROM tbl_phone_provider
		 WHERE user_id = $1 AND is_default = TRUE AND is_active = TRUE`, userID).
		Scan(&p.ID, &p.UserID, &p.ProviderName, &p.Credentials, &p.PhoneNumber, &p.VapiPhoneNumberID,
			&p.IsDefault, &p.IsActive, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.PhoneProvider{}, ErrPhoneProviderNotFound
		}
		return model.PhoneProvider{}, err
	}
	return p, nil
}

func (r *DatabaseRepository) ListPhoneProviders(ctx context.Context, userID string) ([]model.PhoneProvider, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+phoneProviderColumns+` FROM tbl_phone_provider
		 WHERE user_id = $1 AND is_active = TRUE ORDER BY created_at`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list phone providers: %w", err)
	}
	defer rows.Close()

	var providers []model.PhoneProvider
	for rows.Next() {
		var p model.PhoneProvider
		if err := rows.Scan(&p.ID, &p.UserID, &p.ProviderName, &p.Credentials, &p.PhoneNumber,
			&p.VapiPhoneNumberID, &p.IsDefault, &p.IsActive, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan phone provider: %w", err)
		}
		providers = append(providers, p)
	}
	return providers, rows.Err()
}

func (r *DatabaseRepository) CreatePhoneProvider(ctx context.Context, p model.PhoneProvider) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// One active default per user.
	if p.IsDefault {
		if _, err := tx.ExecContext(ctx,
			`UPDATE tbl_phone_provider SET is_default = FALSE, updated_at = NOW()
			 WHERE user_id = $1 AND is_default = TRUE`, p.UserID); err != nil {
			return fmt.Errorf("failed to clear existing default provider: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO tbl_phone_provider (id, user_id, provider_name, credentials, phone_number,
			vapi_phone_number_id, is_default, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		p.ID, p.UserID, p.ProviderName, p.Credentials, p.PhoneNumber,
		p.VapiPhoneNumberID, p.IsDefault, p.IsActive, p.CreatedAt, p.UpdatedAt); err != nil {
		return fmt.Errorf("failed to create phone provider: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (r *DatabaseRepository) DeactivatePhoneProvider(ctx context.Context, userID string, id uuid.UUID) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE tbl_phone_provider SET is_active = FALSE, is_default = FALSE, updated_at = NOW()
		 WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("failed to deactivate phone provider: %w", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return ErrPhoneProviderNotFound
	}
	return nil
}

func (r *DatabaseRepository) SetVapiPhoneNumberID(ctx context.Context, id uuid.UUID, vapiPhoneNumberID string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE tbl_phone_provider SET vapi_phone_number_id = $1, updated_at = NOW() WHERE id = $2`,
		vapiPhoneNumberID, id)
	if err != nil {
		return fmt.Errorf("failed to set vapi phone number id: %w", err)
	}
	return nil
}

func (r *DatabaseRepository) HealthCheck(ctx context.Context) error {
	return r.db.PingContext(ctx)
}
