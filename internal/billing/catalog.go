package billing

import (
	"voxmeter/internal/model"

	"github.com/shopspring/decimal"
)

// Catalog lists the sellable plans. PAYG is the only self-serve plan today;
// the quota tiers exist for accounts migrated from legacy pricing.
var Catalog = map[model.PlanType]model.Plan{
	model.PlanTypeTrial: {
		Type:           model.PlanTypeTrial,
		Name:           "Trial",
		MinuteLimit:    10,
		AssistantLimit: 1,
		MonthlyPrice:   decimal.Zero,
	},
	model.PlanTypePAYG: {
		Type:           model.PlanTypePAYG,
		Name:           "Pay As You Go",
		MinuteLimit:    0,
		AssistantLimit: 0,
		MonthlyPrice:   decimal.Zero,
	},
	model.PlanTypeStarter: {
		Type:           model.PlanTypeStarter,
		Name:           "Starter",
		MinuteLimit:    500,
		AssistantLimit: 5,
		MonthlyPrice:   decimal.RequireFromString("49.00"),
	},
	model.PlanTypeGrowth: {
		Type:           model.PlanTypeGrowth,
		Name:           "Growth",
		MinuteLimit:    1500,
		AssistantLimit: 10,
		MonthlyPrice:   decimal.RequireFromString("129.00"),
	},
	model.PlanTypePro: {
		Type:           model.PlanTypePro,
		Name:           "Pro",
		MinuteLimit:    5000,
		AssistantLimit: model.Unlimited,
		MonthlyPrice:   decimal.RequireFromString("299.00"),
	},
}

// PlanFor returns the catalog entry for a plan type.
func PlanFor(planType model.PlanType) (model.Plan, bool) {
	plan, ok := Catalog[planType]
	return plan, ok
}
