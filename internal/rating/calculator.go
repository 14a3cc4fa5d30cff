package rating

import (
	"fmt"

	"github.com/open-insurance/kestrel/internal/domain"
)

// Calculator turns resolved lookups into a premium breakdown.
type Calculator struct{}

// NewCalculator creates a calculator.
func NewCalculator() *Calculator {
	return &Calculator{}
}

// Compute multiplies the chosen factor of every lookup into a breakdown,
// preserving the resolution order (vehicle age, engine, power, coverage) so
// the audit trail is stable regardless of how the store returned the rows.
//
// Any Missing lookup fails the whole calculation with ErrMissingRatingData.
// There is no default multiplier: pricing never degrades silently, and the
// output is all-or-nothing.
func (c *Calculator) Compute(lookups []KeyLookup) (*domain.PremiumBreakdown, error) {
	if len(lookups) == 0 {
		return nil, fmt.Errorf("%w: no rating keys resolved", domain.ErrMissingRatingData)
	}

	breakdown := &domain.PremiumBreakdown{
		BaseFactor: 1.0,
		Lines:      make([]domain.BreakdownLine, 0, len(lookups)),
	}

	total := breakdown.BaseFactor
	for _, lookup := range lookups {
		chosen := lookup.Chosen()
		if chosen == nil {
			return nil, fmt.Errorf("%w: no valid factor for key %s", domain.ErrMissingRatingData, lookup.Key)
		}

		breakdown.Lines = append(breakdown.Lines, domain.BreakdownLine{
			RatingKey:  lookup.Key,
			Multiplier: chosen.Multiplier,
		})
		total *= chosen.Multiplier
	}

	breakdown.TotalMultiplier = total
	return breakdown, nil
}
