package domain

import "errors"

// Error taxonomy for the rating engine. Calculation-time failures wrap
// ErrMissingRatingData or ErrInvalidVehicle; admission-time rejections wrap
// ErrInvalidRatingFactor. Warning-class findings are never errors - they
// travel inside ValidationResult.
var (
	// ErrMissingRatingData marks a required rating key with zero valid
	// records. Always fatal to calculation, never retried internally.
	ErrMissingRatingData = errors.New("missing rating data")

	// ErrInvalidVehicle marks vehicle characteristic or date violations.
	// Fatal to the current request only.
	ErrInvalidVehicle = errors.New("invalid vehicle characteristics")

	// ErrInvalidRatingFactor marks a malformed factor rejected before
	// admission into the catalog.
	ErrInvalidRatingFactor = errors.New("invalid rating factor")
)
