package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type PlanType string

const (
	PlanTypeNone    PlanType = "none"
	PlanTypeTrial   PlanType = "trial"
	PlanTypePAYG    PlanType = "payg"
	PlanTypeStarter PlanType = "starter"
	PlanTypeGrowth  PlanType = "growth"
	PlanTypePro     PlanType = "pro"
)

// Unlimited marks a quota field as having no cap.
const Unlimited = -1

// Subscription is the per-user plan state. One active subscription per user;
// absence of a record means the user has never paid and is blocked.
type Subscription struct {
	ID              uuid.UUID       `json:"id" db:"id"`
	UserID          string          `json:"user_id" db:"user_id"`
	PlanType        PlanType        `json:"plan_type" db:"plan_type"`
	PlanName        string          `json:"plan_name" db:"plan_name"`
	MinutesUsed     int             `json:"minutes_used" db:"minutes_used"`
	MinuteLimit     int             `json:"minute_limit" db:"minute_limit"`
	ExtraMinutes    int             `json:"extra_minutes" db:"extra_minutes"`
	AssistantLimit  int             `json:"assistant_limit" db:"assistant_limit"`
	ExtraAssistants int             `json:"extra_assistants" db:"extra_assistants"`
	CreditBalance   decimal.Decimal `json:"credit_balance" db:"credit_balance"`
	MinimumBalance  decimal.Decimal `json:"minimum_balance" db:"minimum_balance"`
	CurrentPeriodStart time.Time    `json:"current_period_start" db:"current_period_start"`
	CurrentPeriodEnd   time.Time    `json:"current_period_end" db:"current_period_end"`
	IsActive        bool            `json:"is_active" db:"is_active"`
	CreatedAt       time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at" db:"updated_at"`
}

// TotalMinuteLimit returns the plan quota plus purchased add-on minutes.
// Unlimited stays unlimited regardless of add-ons.
func (s *Subscription) TotalMinuteLimit() int {
	if s.MinuteLimit == Unlimited {
		return Unlimited
	}
	return s.MinuteLimit + s.ExtraMinutes
}

// TotalAssistantLimit returns the plan quota plus purchased add-on slots.
func (s *Subscription) TotalAssistantLimit() int {
	if s.AssistantLimit == Unlimited {
		return Unlimited
	}
	return s.AssistantLimit + s.ExtraAssistants
}

// MinutesRemaining returns how many included minutes are left this period,
// or Unlimited for unmetered plans.
func (s *Subscription) MinutesRemaining() int {
	limit := s.TotalMinuteLimit()
	if limit == Unlimited {
		return Unlimited
	}
	remaining := limit - s.MinutesUsed
	if remaining < 0 {
		return 0
	}
	return remaining
}

// AssistantsRemaining returns the remaining assistant slots given the current
// count of active assistants (assistant count is derived, not stored).
func (s *Subscription) AssistantsRemaining(activeAssistants int) int {
	limit := s.TotalAssistantLimit()
	if limit == Unlimited {
		return Unlimited
	}
	remaining := limit - activeAssistants
	if remaining < 0 {
		return 0
	}
	return remaining
}

// CanAffordCall reports whether the credit balance covers the given cost.
func (s *Subscription) CanAffordCall(cost decimal.Decimal) bool {
	return s.CreditBalance.GreaterThanOrEqual(cost)
}

// CanAffordAssistant reports whether an assistant can be created either from
// plan quota headroom or by charging the creation cost against credits.
func (s *Subscription) CanAffordAssistant(cost decimal.Decimal, activeAssistants int) bool {
	if s.AssistantsRemaining(activeAssistants) == Unlimited || s.AssistantsRemaining(activeAssistants) > 0 {
		return true
	}
	return s.CreditBalance.GreaterThanOrEqual(cost)
}

// NeedsTopUp reports whether the balance has fallen to the top-up threshold.
func (s *Subscription) NeedsTopUp() bool {
	return s.CreditBalance.LessThanOrEqual(s.MinimumBalance)
}

// Plan describes a sellable plan in the catalog.
type Plan struct {
	Type           PlanType        `json:"type"`
	Name           string          `json:"name"`
	MinuteLimit    int             `json:"minute_limit"`
	AssistantLimit int             `json:"assistant_limit"`
	MonthlyPrice   decimal.Decimal `json:"monthly_price"`
}

// UpgradeOption is a plan the user could move to.
type UpgradeOption struct {
	PlanType    PlanType        `json:"plan_type"`
	PlanName    string          `json:"plan_name"`
	Price       decimal.Decimal `json:"price"`
	Description string          `json:"description"`
}
