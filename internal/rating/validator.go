package rating

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/open-insurance/kestrel/internal/catalog"
	"github.com/open-insurance/kestrel/internal/domain"
	"github.com/open-insurance/kestrel/internal/rules"
)

// Vehicle characteristic bounds.
const (
	minEngineCapacityCC = 50
	maxEngineCapacityCC = 8000
	minPowerHP          = 10
	maxPowerHP          = 1000
)

// Age thresholds in whole years, applied at the policy as-of date.
const (
	ancientVehicleAge = 50 // warning for any type
	maxACVehicleAge   = 15 // hard limit for AC
	warnOCVehicleAge  = 30
	warnNNWVehicleAge = 25
)

// minACEngineCC is the capacity below which AC coverage draws a warning.
const minACEngineCC = 800

// resultBuilder accumulates findings during one validation pass. It is never
// handed to callers; Validate freezes it into a ValidationResult.
type resultBuilder struct {
	errors   []string
	warnings []string
}

func (b *resultBuilder) errorf(format string, args ...any) {
	b.errors = append(b.errors, fmt.Sprintf(format, args...))
}

func (b *resultBuilder) warnf(format string, args ...any) {
	b.warnings = append(b.warnings, fmt.Sprintf(format, args...))
}

func (b *resultBuilder) freeze() domain.ValidationResult {
	return domain.NewValidationResult(b.errors, b.warnings)
}

// Validator runs the four check categories over a quote and the admission
// checks over individual factors. All checks accumulate; nothing
// short-circuits, so a caller sees every problem at once.
type Validator struct {
	catalog *catalog.Service
	rules   *rules.Engine
	clock   func() time.Time
}

// NewValidator creates a validator. ruleEngine may be nil to disable
// configurable plausibility checks.
func NewValidator(cat *catalog.Service, ruleEngine *rules.Engine, clock func() time.Time) *Validator {
	if clock == nil {
		clock = time.Now
	}
	return &Validator{
		catalog: cat,
		rules:   ruleEngine,
		clock:   clock,
	}
}

// Validate combines vehicle characteristic checks, insurance-type rules, data
// availability over the resolved lookups, and plausibility rules into one
// frozen result.
func (v *Validator) Validate(ctx context.Context, it domain.InsuranceType, vehicle domain.VehicleProfile, asOf time.Time, lookups []KeyLookup) domain.ValidationResult {
	b := &resultBuilder{}

	v.checkVehicle(b, vehicle)
	v.checkTypeRules(b, it, vehicle, asOf)
	v.checkAvailability(b, it, asOf, lookups)
	v.checkPlausibility(ctx, b, it, vehicle, asOf)

	return b.freeze()
}

// checkVehicle validates physical ranges and date sanity. No data dependency.
func (v *Validator) checkVehicle(b *resultBuilder, vehicle domain.VehicleProfile) {
	if vehicle.EngineCapacityCC < minEngineCapacityCC || vehicle.EngineCapacityCC > maxEngineCapacityCC {
		b.errorf("engine capacity %dcc is outside the allowed range [%d, %d]",
			vehicle.EngineCapacityCC, minEngineCapacityCC, maxEngineCapacityCC)
	}

	if vehicle.PowerHP < minPowerHP || vehicle.PowerHP > maxPowerHP {
		b.errorf("power %dhp is outside the allowed range [%d, %d]",
			vehicle.PowerHP, minPowerHP, maxPowerHP)
	}

	now := v.clock()
	if vehicle.FirstRegistrationDate.After(now) {
		b.errorf("first registration date %s is in the future",
			vehicle.FirstRegistrationDate.Format(domain.DateLayout))
	} else if age := vehicle.AgeYears(now); age > ancientVehicleAge {
		b.warnf("vehicle is %d years old, over the %d year threshold", age, ancientVehicleAge)
	}
}

// checkTypeRules applies per-insurance-type age rules as of the policy date.
func (v *Validator) checkTypeRules(b *resultBuilder, it domain.InsuranceType, vehicle domain.VehicleProfile, asOf time.Time) {
	age := vehicle.AgeYears(asOf)

	switch it {
	case domain.InsuranceAC:
		if age > maxACVehicleAge {
			b.errorf("AC coverage is unavailable for vehicles older than %d years (vehicle is %d years old on %s)",
				maxACVehicleAge, age, asOf.Format(domain.DateLayout))
		}
		if vehicle.EngineCapacityCC < minACEngineCC {
			b.warnf("AC coverage on an engine under %dcc (%dcc)", minACEngineCC, vehicle.EngineCapacityCC)
		}
	case domain.InsuranceOC:
		if age > warnOCVehicleAge {
			b.warnf("OC coverage on a vehicle older than %d years (%d years old on %s)",
				warnOCVehicleAge, age, asOf.Format(domain.DateLayout))
		}
	case domain.InsuranceNNW:
		if age > warnNNWVehicleAge {
			b.warnf("NNW coverage on a vehicle older than %d years (%d years old on %s)",
				warnNNWVehicleAge, age, asOf.Format(domain.DateLayout))
		}
	default:
		b.errorf("unknown insurance type %q", string(it))
	}
}

// checkAvailability validates the resolved lookups: any missing key is a hard
// error, conflicting entries are a warning.
func (v *Validator) checkAvailability(b *resultBuilder, it domain.InsuranceType, asOf time.Time, lookups []KeyLookup) {
	for _, lookup := range lookups {
		switch lookup.Status {
		case LookupMissing:
			b.errorf("no rating factor for key %s (%s) valid on %s",
				lookup.Key, it, asOf.Format(domain.DateLayout))
		case LookupAmbiguous:
			b.warnf("%d conflicting rating factors for key %s (%s) valid on %s",
				len(lookup.Factors), lookup.Key, it, asOf.Format(domain.DateLayout))
		}
	}
}

// checkPlausibility runs the configurable warning-class rules. Rules can only
// ever add warnings.
func (v *Validator) checkPlausibility(ctx context.Context, b *resultBuilder, it domain.InsuranceType, vehicle domain.VehicleProfile, asOf time.Time) {
	if v.rules == nil {
		return
	}

	input := &rules.EvaluateInput{
		InsuranceType:    it,
		EngineCapacityCC: vehicle.EngineCapacityCC,
		PowerHP:          vehicle.PowerHP,
		VehicleAge:       vehicle.AgeYears(asOf),
		PolicyOffsetDays: daysBetween(v.clock(), asOf),
	}

	for _, finding := range v.rules.EvaluateAll(ctx, input) {
		if finding.Severity == domain.SeverityWarn {
			b.warnings = append(b.warnings, finding.Reason)
		}
	}
}

// ValidateFactor checks a single factor before admission into the catalog:
// field sanity, naming convention, and overlap against existing records.
// Overlap is always a warning - historical correction windows are legitimate.
func (v *Validator) ValidateFactor(ctx context.Context, f *domain.RatingFactor) (domain.ValidationResult, error) {
	b := &resultBuilder{}

	if f == nil {
		b.errorf("rating factor is required")
		return b.freeze(), nil
	}

	if !f.InsuranceType.Valid() {
		b.errorf("unknown insurance type %q", string(f.InsuranceType))
	}

	if f.RatingKey == "" {
		b.errorf("rating key is required")
	}

	if f.Multiplier < domain.MinMultiplier || f.Multiplier > domain.MaxMultiplier {
		b.errorf("multiplier %.4f is outside the allowed range [%.4f, %.4f]",
			f.Multiplier, domain.MinMultiplier, domain.MaxMultiplier)
	}

	if f.ValidFrom.IsZero() {
		b.errorf("validFrom is required")
	} else if f.ValidTo != nil && f.ValidFrom.After(*f.ValidTo) {
		b.errorf("validFrom %s is after validTo %s",
			f.ValidFrom.Format(domain.DateLayout), f.ValidTo.Format(domain.DateLayout))
	}

	if f.RatingKey != "" {
		v.checkKeyConvention(b, f)
	}

	// Overlap detection only makes sense for a factor that could be admitted.
	if len(b.errors) == 0 {
		overlapping, err := v.catalog.FindOverlapping(ctx, f.InsuranceType, f.RatingKey, f.ValidFrom, f.ValidTo)
		if err != nil {
			return domain.ValidationResult{}, fmt.Errorf("overlap check failed: %w", err)
		}

		count := 0
		for _, existing := range overlapping {
			if existing.ID != f.ID {
				count++
			}
		}
		if count > 0 {
			b.warnf("validity window overlaps %d existing factor(s) for key %s (%s)",
				count, f.RatingKey, f.InsuranceType)
		}
	}

	return b.freeze(), nil
}

// coveragePrefixes maps coverage key prefixes to the insurance type they
// belong to.
var coveragePrefixes = map[string]domain.InsuranceType{
	"OC_":  domain.InsuranceOC,
	"AC_":  domain.InsuranceAC,
	"NNW_": domain.InsuranceNNW,
}

// checkKeyConvention warns on keys outside the naming convention and on
// coverage keys attached to the wrong insurance type.
func (v *Validator) checkKeyConvention(b *resultBuilder, f *domain.RatingFactor) {
	known := strings.HasPrefix(f.RatingKey, PrefixVehicleAge) ||
		strings.HasPrefix(f.RatingKey, PrefixEngine) ||
		strings.HasPrefix(f.RatingKey, PrefixPower)

	for prefix, owner := range coveragePrefixes {
		if !strings.HasPrefix(f.RatingKey, prefix) {
			continue
		}
		known = true
		if f.InsuranceType != owner {
			b.warnf("rating key %s is prefixed for %s but attached to %s",
				f.RatingKey, owner, f.InsuranceType)
		}
	}

	if !known {
		b.warnf("rating key %s does not follow the naming convention", f.RatingKey)
	}
}

// daysBetween returns whole days from a to b at date granularity, negative
// when b precedes a.
func daysBetween(a, b time.Time) int {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	from := time.Date(ay, am, ad, 0, 0, 0, 0, time.UTC)
	to := time.Date(by, bm, bd, 0, 0, 0, 0, time.UTC)
	return int(to.Sub(from).Hours() / 24)
}
