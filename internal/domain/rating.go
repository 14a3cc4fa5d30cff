// Package domain defines the core types and interfaces for Kestrel.
package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// InsuranceType is the closed set of supported coverage types.
type InsuranceType string

const (
	// InsuranceOC is mandatory third-party liability coverage.
	InsuranceOC InsuranceType = "OC"

	// InsuranceAC is comprehensive own-damage coverage.
	InsuranceAC InsuranceType = "AC"

	// InsuranceNNW is personal accident coverage.
	InsuranceNNW InsuranceType = "NNW"
)

// Valid reports whether t is one of the supported insurance types.
func (t InsuranceType) Valid() bool {
	switch t {
	case InsuranceOC, InsuranceAC, InsuranceNNW:
		return true
	}
	return false
}

// Multiplier bounds for admissible rating factors.
const (
	MinMultiplier = 0.1
	MaxMultiplier = 5.0
)

// RatingFactor is a single priced rule: a multiplier attached to a rating key
// for one insurance type, applicable during an inclusive validity window.
// Factors are immutable once admitted; corrections are new records with new
// windows, never in-place updates.
type RatingFactor struct {
	ID            string        `json:"id"`
	InsuranceType InsuranceType `json:"insuranceType"`
	RatingKey     string        `json:"ratingKey"`
	Multiplier    float64       `json:"multiplier"`
	ValidFrom     time.Time     `json:"validFrom"`

	// ValidTo is nil for open-ended factors.
	ValidTo *time.Time `json:"validTo,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
}

// NewRatingFactor builds a rating factor, rejecting records that can never be
// admitted: unknown insurance type, empty key, multiplier outside
// [MinMultiplier, MaxMultiplier], missing ValidFrom, or an inverted window.
func NewRatingFactor(it InsuranceType, key string, multiplier float64, validFrom time.Time, validTo *time.Time) (*RatingFactor, error) {
	if !it.Valid() {
		return nil, fmt.Errorf("%w: unknown insurance type %q", ErrInvalidRatingFactor, string(it))
	}
	if key == "" {
		return nil, fmt.Errorf("%w: rating key is required", ErrInvalidRatingFactor)
	}
	if multiplier < MinMultiplier || multiplier > MaxMultiplier {
		return nil, fmt.Errorf("%w: multiplier %.4f outside [%.4f, %.4f]",
			ErrInvalidRatingFactor, multiplier, MinMultiplier, MaxMultiplier)
	}
	if validFrom.IsZero() {
		return nil, fmt.Errorf("%w: validFrom is required", ErrInvalidRatingFactor)
	}
	if validTo != nil && validFrom.After(*validTo) {
		return nil, fmt.Errorf("%w: validFrom %s after validTo %s",
			ErrInvalidRatingFactor, validFrom.Format(DateLayout), validTo.Format(DateLayout))
	}

	return &RatingFactor{
		ID:            uuid.New().String(),
		InsuranceType: it,
		RatingKey:     key,
		Multiplier:    multiplier,
		ValidFrom:     validFrom,
		ValidTo:       validTo,
		CreatedAt:     time.Now().UTC(),
	}, nil
}

// DateLayout is the date-granularity format used in messages and cache keys.
const DateLayout = "2006-01-02"

// ValidForDate reports whether the factor applies on day d. Both interval
// bounds are inclusive; comparisons are at date granularity.
func (f *RatingFactor) ValidForDate(d time.Time) bool {
	day := toDay(d)
	if day.Before(toDay(f.ValidFrom)) {
		return false
	}
	if f.ValidTo != nil && day.After(toDay(*f.ValidTo)) {
		return false
	}
	return true
}

// OverlapsWindow reports whether the factor's window intersects [from, to].
// A nil to means the candidate window is open-ended.
func (f *RatingFactor) OverlapsWindow(from time.Time, to *time.Time) bool {
	if to != nil && toDay(f.ValidFrom).After(toDay(*to)) {
		return false
	}
	if f.ValidTo != nil && toDay(*f.ValidTo).Before(toDay(from)) {
		return false
	}
	return true
}

func toDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// VehicleProfile describes the vehicle being rated. It is an input value,
// never persisted by the engine.
type VehicleProfile struct {
	EngineCapacityCC      int       `json:"engineCapacityCc"`
	PowerHP               int       `json:"powerHp"`
	FirstRegistrationDate time.Time `json:"firstRegistrationDate"`
}

// AgeYears returns the number of whole years between first registration and
// asOf. Negative when the registration date is in the future.
func (v VehicleProfile) AgeYears(asOf time.Time) int {
	from := toDay(v.FirstRegistrationDate)
	to := toDay(asOf)
	years := to.Year() - from.Year()
	if from.AddDate(years, 0, 0).After(to) {
		years--
	}
	return years
}

// BreakdownLine is one applied multiplier in a premium breakdown.
type BreakdownLine struct {
	RatingKey  string  `json:"ratingKey"`
	Multiplier float64 `json:"multiplier"`
}

// PremiumBreakdown is the auditable result of a premium calculation. Lines
// are in the fixed resolution order: vehicle age, engine, power, coverage.
type PremiumBreakdown struct {
	BaseFactor      float64         `json:"baseFactor"`
	Lines           []BreakdownLine `json:"lines"`
	TotalMultiplier float64         `json:"totalMultiplier"`
}

// ValidationResult is the frozen outcome of one validation pass. It is
// immutable: accessors return copies, and instances are only produced through
// NewValidationResult.
type ValidationResult struct {
	valid    bool
	errors   []string
	warnings []string
}

// NewValidationResult freezes accumulated findings. The result is valid when
// there are no errors; warnings never block.
func NewValidationResult(errors, warnings []string) ValidationResult {
	return ValidationResult{
		valid:    len(errors) == 0,
		errors:   copyStrings(errors),
		warnings: copyStrings(warnings),
	}
}

// Valid reports whether the validation pass produced no errors.
func (r ValidationResult) Valid() bool { return r.valid }

// Errors returns the accumulated errors in detection order.
func (r ValidationResult) Errors() []string { return copyStrings(r.errors) }

// Warnings returns the accumulated warnings in detection order.
func (r ValidationResult) Warnings() []string { return copyStrings(r.warnings) }

func copyStrings(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}
