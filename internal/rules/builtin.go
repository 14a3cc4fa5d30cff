package rules

import "github.com/open-insurance/kestrel/internal/domain"

func warnBand(reason string) []domain.RuleBand {
	one := 1.0
	return []domain.RuleBand{
		{LowerLimit: &one, Severity: domain.SeverityWarn, Reason: reason},
	}
}

// BuiltinRules returns the default plausibility rule set. Operators can
// replace or extend these at runtime; the defaults cover date sanity and
// physically implausible engine/power combinations.
//
// The engine/power thresholds line up with the resolver's bucket boundaries
// (2000cc closes the LARGE engine bucket, 75hp closes the LOW power bucket,
// 250hp closes the HIGH power bucket).
func BuiltinRules() []*domain.PlausibilityRule {
	return []*domain.PlausibilityRule{
		{
			ID:          "policy-date-far-future",
			Name:        "Policy date far in the future",
			Description: "Effective dates more than a year out are usually data-entry mistakes.",
			Expression:  "policy_offset_days > 365",
			Bands:       warnBand("policy effective date is more than 1 year in the future"),
			Enabled:     true,
		},
		{
			ID:          "policy-date-deep-past",
			Name:        "Policy date deep in the past",
			Description: "Backdated quotes beyond two years price against historical rates.",
			Expression:  "policy_offset_days < -730",
			Bands:       warnBand("policy effective date is more than 2 years in the past; historical rates apply"),
			Enabled:     true,
		},
		{
			ID:          "underpowered-large-engine",
			Name:        "Large engine with low power",
			Description: "Engines over 2000cc rarely produce 75hp or less.",
			Expression:  "engine_cc > 2000 && power_hp <= 75",
			Bands:       warnBand("implausible combination: engine over 2000cc with power of 75hp or less"),
			Enabled:     true,
		},
		{
			ID:          "overpowered-small-engine",
			Name:        "Small engine with very high power",
			Description: "Engines of 1000cc or less rarely produce more than 250hp.",
			Expression:  "engine_cc <= 1000 && power_hp > 250",
			Bands:       warnBand("implausible combination: engine of 1000cc or less with power over 250hp"),
			Enabled:     true,
		},
	}
}
