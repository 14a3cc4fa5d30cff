// Package rating implements the premium rating engine: deriving the required
// rating keys for a quote, validating business constraints and data
// availability, and computing the premium multiplier breakdown.
package rating

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/open-insurance/kestrel/internal/catalog"
	"github.com/open-insurance/kestrel/internal/domain"
)

// Rating key prefixes. Keys are namespaced by convention: the prefix names
// the pricing dimension.
const (
	PrefixVehicleAge = "VEHICLE_AGE_"
	PrefixEngine     = "ENGINE_"
	PrefixPower      = "POWER_"
)

// Coverage keys per insurance type.
const (
	KeyCoverageOC  = "OC_STANDARD"
	KeyCoverageAC  = "AC_COMPREHENSIVE"
	KeyCoverageNNW = "NNW_STANDARD"
)

// maxAgeBucket is the clamp for the vehicle-age bucket: every vehicle older
// than 10 years prices in the same bucket as a 10-year-old one.
const maxAgeBucket = 10

// LookupStatus classifies a per-key catalog lookup.
type LookupStatus string

const (
	// LookupMissing means zero valid factors: fatal to calculation.
	LookupMissing LookupStatus = "missing"

	// LookupResolved means exactly one valid factor.
	LookupResolved LookupStatus = "resolved"

	// LookupAmbiguous means conflicting factors: a warning, never a block.
	LookupAmbiguous LookupStatus = "ambiguous"
)

// KeyLookup is the result of resolving one required rating key.
type KeyLookup struct {
	Key    string
	Status LookupStatus

	// Factors holds the candidates, sorted by the documented tie-break:
	// latest ValidFrom first, then lowest ID. Empty when Missing.
	Factors []*domain.RatingFactor
}

// Chosen returns the factor a calculation would apply: the first candidate
// under the tie-break, or nil when Missing.
func (l KeyLookup) Chosen() *domain.RatingFactor {
	if len(l.Factors) == 0 {
		return nil
	}
	return l.Factors[0]
}

// Resolver derives the required rating keys for a quote and looks each one up
// in the catalog.
type Resolver struct {
	catalog *catalog.Service
	clock   func() time.Time
}

// NewResolver creates a resolver over the catalog.
func NewResolver(cat *catalog.Service, clock func() time.Time) *Resolver {
	if clock == nil {
		clock = time.Now
	}
	return &Resolver{
		catalog: cat,
		clock:   clock,
	}
}

// RequiredKeys returns the four rating keys a quote needs, in the fixed
// resolution order: vehicle age, engine, power, coverage.
//
// The age bucket is derived from the vehicle's age TODAY, while factor
// validity is checked against the policy's as-of date (see Resolve). The
// source system behaves this way and callers may depend on it; treat any
// change here as a product decision, not a cleanup.
func (r *Resolver) RequiredKeys(it domain.InsuranceType, vehicle domain.VehicleProfile) []string {
	return []string{
		AgeBucketKey(vehicle.AgeYears(r.clock())),
		EngineBucketKey(vehicle.EngineCapacityCC),
		PowerBucketKey(vehicle.PowerHP),
		CoverageKey(it),
	}
}

// Resolve derives the required keys and classifies each catalog lookup as
// Missing, Resolved, or Ambiguous. Lookups use the policy as-of date.
// A catalog failure propagates as-is; retrying is the caller's call since
// lookups are idempotent.
func (r *Resolver) Resolve(ctx context.Context, it domain.InsuranceType, vehicle domain.VehicleProfile, asOf time.Time) ([]KeyLookup, error) {
	if !it.Valid() {
		return nil, fmt.Errorf("unknown insurance type %q", string(it))
	}

	keys := r.RequiredKeys(it, vehicle)
	lookups := make([]KeyLookup, 0, len(keys))

	for _, key := range keys {
		factors, err := r.catalog.FindValid(ctx, it, key, asOf)
		if err != nil {
			return nil, fmt.Errorf("catalog lookup for %s failed: %w", key, err)
		}

		sortCandidates(factors)

		lookup := KeyLookup{Key: key, Factors: factors}
		switch len(factors) {
		case 0:
			lookup.Status = LookupMissing
		case 1:
			lookup.Status = LookupResolved
		default:
			lookup.Status = LookupAmbiguous
		}

		lookups = append(lookups, lookup)
	}

	return lookups, nil
}

// sortCandidates applies the deterministic tie-break for ambiguous lookups:
// the factor with the latest ValidFrom wins, lowest ID breaking exact ties.
// The store's return order must never leak into pricing.
func sortCandidates(factors []*domain.RatingFactor) {
	sort.SliceStable(factors, func(i, j int) bool {
		if !factors[i].ValidFrom.Equal(factors[j].ValidFrom) {
			return factors[i].ValidFrom.After(factors[j].ValidFrom)
		}
		return factors[i].ID < factors[j].ID
	})
}

// AgeBucketKey returns the vehicle-age rating key for a vehicle age in whole
// years. Ages above 10 clamp into the 10-year bucket.
func AgeBucketKey(ageYears int) string {
	if ageYears < 0 {
		ageYears = 0
	}
	if ageYears > maxAgeBucket {
		ageYears = maxAgeBucket
	}
	return fmt.Sprintf("%s%d", PrefixVehicleAge, ageYears)
}

// EngineBucketKey returns the engine-capacity rating key.
func EngineBucketKey(capacityCC int) string {
	switch {
	case capacityCC <= 1000:
		return PrefixEngine + "SMALL"
	case capacityCC <= 1600:
		return PrefixEngine + "MEDIUM"
	case capacityCC <= 2000:
		return PrefixEngine + "LARGE"
	default:
		return PrefixEngine + "XLARGE"
	}
}

// PowerBucketKey returns the power rating key.
func PowerBucketKey(powerHP int) string {
	switch {
	case powerHP <= 75:
		return PrefixPower + "LOW"
	case powerHP <= 150:
		return PrefixPower + "MEDIUM"
	case powerHP <= 250:
		return PrefixPower + "HIGH"
	default:
		return PrefixPower + "VERY_HIGH"
	}
}

// CoverageKey returns the per-type coverage rating key. The switch is
// exhaustive over the closed insurance type set; an unknown type yields ""
// and is rejected earlier by Resolve.
func CoverageKey(it domain.InsuranceType) string {
	switch it {
	case domain.InsuranceOC:
		return KeyCoverageOC
	case domain.InsuranceAC:
		return KeyCoverageAC
	case domain.InsuranceNNW:
		return KeyCoverageNNW
	}
	return ""
}
