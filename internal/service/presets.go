package service

import (
	"github.com/timmy/pricebook/internal/category"
	"github.com/timmy/pricebook/internal/domain"
)

// Presets are the system pricing modes seeded into every installation.
// Their names and adjustments never change once seeded.
var Presets = []domain.PricingMode{
	{
		Name:        "Rush Job",
		Icon:        "zap",
		Description: "Expedited work at a 50% premium.",
		Kind:        domain.ModeKindMultiplier,
		Adjustments: domain.Adjustments{string(category.All): 1.5},
	},
	{
		Name:        "Premium Client",
		Icon:        "star",
		Description: "White-glove service pricing, 20% above standard.",
		Kind:        domain.ModeKindMultiplier,
		Adjustments: domain.Adjustments{string(category.All): 1.2},
	},
	{
		Name:        "Competitive Bid",
		Icon:        "target",
		Description: "Sharpen every price by 10% to win the bid.",
		Kind:        domain.ModeKindMultiplier,
		Adjustments: domain.Adjustments{string(category.All): 0.9},
	},
	{
		Name:        "Slow Season",
		Icon:        "snowflake",
		Description: "Discount labor 15% and everything else 5% to keep crews busy.",
		Kind:        domain.ModeKindMultiplier,
		Adjustments: domain.Adjustments{
			string(category.Labor): 0.85,
			string(category.All):   0.95,
		},
	},
	{
		Name:        "Materials Spike",
		Icon:        "trending-up",
		Description: "Pass supplier increases through with materials up 15%.",
		Kind:        domain.ModeKindMultiplier,
		Adjustments: domain.Adjustments{string(category.Materials): 1.15},
	},
	{
		Name:        "Reset to Baseline",
		Icon:        "rotate-ccw",
		Description: "Remove custom prices so every item uses its base price again.",
		Kind:        domain.ModeKindResetToBaseline,
		Adjustments: domain.Adjustments{},
	},
}
