package rating

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/open-insurance/kestrel/internal/catalog"
	"github.com/open-insurance/kestrel/internal/domain"
	"github.com/open-insurance/kestrel/internal/rules"
)

var tracer = otel.Tracer("kestrel-rating")

// Service is the rating engine facade the policy-issuance workflow calls.
// It is stateless between invocations; concurrent calls need no coordination
// because admitted factors are immutable.
type Service struct {
	catalog    *catalog.Service
	resolver   *Resolver
	validator  *Validator
	calculator *Calculator
	bus        domain.EventBus
	clock      func() time.Time
}

// NewService creates the rating service. ruleEngine may be nil to disable
// configurable plausibility rules; eventBus may be nil to disable lifecycle
// events.
func NewService(cat *catalog.Service, ruleEngine *rules.Engine, eventBus domain.EventBus) *Service {
	return newService(cat, ruleEngine, eventBus, time.Now)
}

// newService exists so tests can pin "today" for age-bucket derivation.
func newService(cat *catalog.Service, ruleEngine *rules.Engine, eventBus domain.EventBus, clock func() time.Time) *Service {
	return &Service{
		catalog:    cat,
		resolver:   NewResolver(cat, clock),
		validator:  NewValidator(cat, ruleEngine, clock),
		calculator: NewCalculator(),
		bus:        eventBus,
		clock:      clock,
	}
}

// ValidateRatingFactors runs the full validation pass for a quote: vehicle
// characteristics, insurance-type rules, data availability, and plausibility.
// A returned error means the catalog could not be consulted; business
// problems come back inside the ValidationResult.
func (s *Service) ValidateRatingFactors(ctx context.Context, it domain.InsuranceType, vehicle domain.VehicleProfile, asOf time.Time) (domain.ValidationResult, error) {
	ctx, span := tracer.Start(ctx, "rating.ValidateRatingFactors")
	defer span.End()
	span.SetAttributes(
		attribute.String("insurance_type", string(it)),
		attribute.String("as_of", asOf.Format(domain.DateLayout)),
	)

	lookups, err := s.resolver.Resolve(ctx, it, vehicle, asOf)
	if err != nil {
		span.RecordError(err)
		return domain.ValidationResult{}, err
	}

	result := s.validator.Validate(ctx, it, vehicle, asOf, lookups)
	span.SetAttributes(
		attribute.Bool("valid", result.Valid()),
		attribute.Int("errors", len(result.Errors())),
		attribute.Int("warnings", len(result.Warnings())),
	)
	return result, nil
}

// CanCalculatePremium reports whether a premium can be computed: validation
// produced zero errors. Warnings never block.
func (s *Service) CanCalculatePremium(ctx context.Context, it domain.InsuranceType, vehicle domain.VehicleProfile, asOf time.Time) (bool, error) {
	result, err := s.ValidateRatingFactors(ctx, it, vehicle, asOf)
	if err != nil {
		return false, err
	}
	return result.Valid(), nil
}

// GetMissingRatingFactors returns the rating keys with zero valid records, in
// resolution order. Intended for diagnostic surfaces.
func (s *Service) GetMissingRatingFactors(ctx context.Context, it domain.InsuranceType, vehicle domain.VehicleProfile, asOf time.Time) ([]string, error) {
	ctx, span := tracer.Start(ctx, "rating.GetMissingRatingFactors")
	defer span.End()

	lookups, err := s.resolver.Resolve(ctx, it, vehicle, asOf)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	var missing []string
	for _, lookup := range lookups {
		if lookup.Status == LookupMissing {
			missing = append(missing, lookup.Key)
		}
	}
	return missing, nil
}

// ValidateRatingFactor checks a single factor before admission: field sanity,
// naming convention, and overlap against already-admitted records.
func (s *Service) ValidateRatingFactor(ctx context.Context, f *domain.RatingFactor) (domain.ValidationResult, error) {
	ctx, span := tracer.Start(ctx, "rating.ValidateRatingFactor")
	defer span.End()

	result, err := s.validator.ValidateFactor(ctx, f)
	if err != nil {
		span.RecordError(err)
		return domain.ValidationResult{}, err
	}
	return result, nil
}

// AdmitRatingFactor validates a factor and, when it carries no errors,
// persists it into the catalog. The returned result still carries any
// warnings (overlap, naming) for the admitting operator to see.
func (s *Service) AdmitRatingFactor(ctx context.Context, f *domain.RatingFactor) (domain.ValidationResult, error) {
	ctx, span := tracer.Start(ctx, "rating.AdmitRatingFactor")
	defer span.End()

	result, err := s.validator.ValidateFactor(ctx, f)
	if err != nil {
		span.RecordError(err)
		return domain.ValidationResult{}, err
	}

	if !result.Valid() {
		return result, fmt.Errorf("%w: %s", domain.ErrInvalidRatingFactor, strings.Join(result.Errors(), "; "))
	}

	if err := s.catalog.Admit(ctx, f); err != nil {
		span.RecordError(err)
		return result, err
	}

	// Admission events are advisory; a publish failure never unwinds a
	// persisted factor.
	if s.bus != nil {
		payload, _ := json.Marshal(f)
		if err := s.bus.Publish(ctx, domain.TopicFactorAdmitted, payload); err != nil {
			slog.Warn("failed to publish factor admission",
				"factor_id", f.ID,
				"rating_key", f.RatingKey,
				"error", err,
			)
		}
	}

	return result, nil
}

// ComputePremiumMultiplier validates and then computes the premium breakdown.
// It either returns a complete breakdown or a typed failure - never a partial
// multiplier, never a silent default for missing data.
func (s *Service) ComputePremiumMultiplier(ctx context.Context, it domain.InsuranceType, vehicle domain.VehicleProfile, asOf time.Time) (*domain.PremiumBreakdown, error) {
	ctx, span := tracer.Start(ctx, "rating.ComputePremiumMultiplier")
	defer span.End()
	span.SetAttributes(
		attribute.String("insurance_type", string(it)),
		attribute.String("as_of", asOf.Format(domain.DateLayout)),
	)

	lookups, err := s.resolver.Resolve(ctx, it, vehicle, asOf)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	result := s.validator.Validate(ctx, it, vehicle, asOf, lookups)
	if !result.Valid() {
		if missing := missingKeys(lookups); len(missing) > 0 {
			return nil, fmt.Errorf("%w: no valid factors for %s (%s) on %s",
				domain.ErrMissingRatingData, strings.Join(missing, ", "), it, asOf.Format(domain.DateLayout))
		}
		return nil, fmt.Errorf("%w: %s", domain.ErrInvalidVehicle, strings.Join(result.Errors(), "; "))
	}

	breakdown, err := s.calculator.Compute(lookups)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	span.SetAttributes(attribute.Float64("total_multiplier", breakdown.TotalMultiplier))
	return breakdown, nil
}

func missingKeys(lookups []KeyLookup) []string {
	var missing []string
	for _, lookup := range lookups {
		if lookup.Status == LookupMissing {
			missing = append(missing, lookup.Key)
		}
	}
	return missing
}
