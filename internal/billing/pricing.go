package billing

import (
	"math"

	"voxmeter/internal/config"
	"voxmeter/internal/model"

	"github.com/shopspring/decimal"
)

// Pricing carries the platform rates. All cost computation lives here so the
// usage validator's happy path and its fail-closed recovery path share one
// implementation.
type Pricing struct {
	PerMinuteRate         decimal.Decimal
	OverageRate           decimal.Decimal
	AssistantCreationCost decimal.Decimal
	MinimumBalance        decimal.Decimal
}

func NewPricing(cfg config.BillingConfig) Pricing {
	return Pricing{
		PerMinuteRate:         cfg.PerMinuteRate,
		OverageRate:           cfg.OverageRate,
		AssistantCreationCost: cfg.AssistantCreationCost,
		MinimumBalance:        cfg.MinimumBalance,
	}
}

// BilledMinutes converts a call duration to billable minutes. Vendors report
// fractional seconds; partial minutes always round up. This is billing
// policy, not rounding convenience.
func BilledMinutes(durationSeconds float64) int {
	if durationSeconds <= 0 {
		return 0
	}
	return int(math.Ceil(durationSeconds / 60))
}

// CallCharge is the outcome of costing a completed call.
type CallCharge struct {
	Minutes        int
	OverageMinutes int
	Cost           decimal.Decimal
}

// ChargeForCall costs a completed call against a subscription snapshot.
// PAYG charges every minute at the PAYG rate. Quota plans charge only the
// minutes that spill past the quota, at the overage rate. minutesUsed is the
// pre-call counter value.
func (p Pricing) ChargeForCall(planType model.PlanType, totalMinuteLimit, minutesUsed, minutes int) CallCharge {
	charge := CallCharge{Minutes: minutes}

	if planType == model.PlanTypePAYG {
		charge.Cost = p.PerMinuteRate.Mul(decimal.NewFromInt(int64(minutes)))
		return charge
	}

	if totalMinuteLimit == model.Unlimited {
		charge.Cost = decimal.Zero
		return charge
	}

	over := minutesUsed + minutes - totalMinuteLimit
	if over <= 0 {
		charge.Cost = decimal.Zero
		return charge
	}
	if over > minutes {
		over = minutes
	}
	charge.OverageMinutes = over
	charge.Cost = p.OverageRate.Mul(decimal.NewFromInt(int64(over)))
	return charge
}

// EstimateCall prices a prospective call of estimatedMinutes.
func (p Pricing) EstimateCall(planType model.PlanType, estimatedMinutes int) decimal.Decimal {
	rate := p.PerMinuteRate
	if planType != model.PlanTypePAYG {
		rate = p.OverageRate
	}
	return rate.Mul(decimal.NewFromInt(int64(estimatedMinutes)))
}

// CanMakeCall reports whether a call of estimatedMinutes is permitted: the
// remaining quota covers it, or the credit balance covers the estimated cost.
func (p Pricing) CanMakeCall(sub *model.Subscription, estimatedMinutes int) bool {
	remaining := sub.MinutesRemaining()
	if remaining == model.Unlimited || remaining >= estimatedMinutes {
		return true
	}
	return sub.CanAffordCall(p.EstimateCall(sub.PlanType, estimatedMinutes))
}

// CanCreateAssistant reports whether an assistant creation is permitted:
// quota headroom, or balance covering the creation cost.
func (p Pricing) CanCreateAssistant(sub *model.Subscription, activeAssistants int) bool {
	return sub.CanAffordAssistant(p.AssistantCreationCost, activeAssistants)
}
