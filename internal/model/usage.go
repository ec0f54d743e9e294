package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MonthKey formats a time as the period key used by monthly usage rollups.
func MonthKey(t time.Time) string {
	return t.UTC().Format("2006-01")
}

// UsageRecord is the per-user-per-month usage rollup, created lazily on first
// tracked call of the month. TotalCost only ever increases within a period.
type UsageRecord struct {
	ID           uuid.UUID       `json:"id" db:"id"`
	UserID       string          `json:"user_id" db:"user_id"`
	Month        string          `json:"month" db:"month"`
	TotalMinutes int             `json:"total_minutes" db:"total_minutes"`
	TotalCost    decimal.Decimal `json:"total_cost" db:"total_cost"`
	OverageCost  decimal.Decimal `json:"overage_cost" db:"overage_cost"`
	CreatedAt    time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at" db:"updated_at"`
}

// AssistantUsage is the per-assistant slice of a monthly rollup.
type AssistantUsage struct {
	UsageRecordID uuid.UUID       `json:"usage_record_id" db:"usage_record_id"`
	AssistantID   string          `json:"assistant_id" db:"assistant_id"`
	AssistantName string          `json:"assistant_name" db:"assistant_name"`
	Minutes       int             `json:"minutes" db:"minutes"`
	Cost          decimal.Decimal `json:"cost" db:"cost"`
}

// UsageSummary is the read-only projection served to the dashboard.
type UsageSummary struct {
	UserID              string          `json:"user_id"`
	PlanType            PlanType        `json:"plan_type"`
	PlanName            string          `json:"plan_name"`
	MinutesUsed         int             `json:"minutes_used"`
	MinuteLimit         int             `json:"minute_limit"`
	MinutesRemaining    int             `json:"minutes_remaining"`
	AssistantsCreated   int             `json:"assistants_created"`
	AssistantLimit      int             `json:"assistant_limit"`
	AssistantsRemaining int             `json:"assistants_remaining"`
	CreditBalance       decimal.Decimal `json:"credit_balance"`
	MinimumBalance      decimal.Decimal `json:"minimum_balance"`
	NeedsTopUp          bool            `json:"needs_top_up"`
	MonthMinutes        int             `json:"month_minutes"`
	MonthCost           decimal.Decimal `json:"month_cost"`
	MonthOverageCost    decimal.Decimal `json:"month_overage_cost"`
	CurrentPeriodStart  time.Time       `json:"current_period_start"`
	CurrentPeriodEnd    time.Time       `json:"current_period_end"`
	Blocked             bool            `json:"blocked"`
}

// OverageEstimate describes the minutes (and cost) of a prospective call that
// would exceed the plan quota.
type OverageEstimate struct {
	Minutes int             `json:"minutes"`
	Cost    decimal.Decimal `json:"cost"`
}

// ValidationResult is the answer to "may this user create an assistant /
// place this call". Reason is phrased for direct display to the end user.
type ValidationResult struct {
	CanCreate       bool             `json:"can_create"`
	CanCall         bool             `json:"can_call"`
	Reason          string           `json:"reason"`
	UpgradeRequired bool             `json:"upgrade_required"`
	Overage         *OverageEstimate `json:"overage,omitempty"`
}
