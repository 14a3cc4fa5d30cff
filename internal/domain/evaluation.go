package domain

import (
	"time"
)

// EngineVersion is stamped into evaluation metadata.
const EngineVersion = "1.0.0"

// RatingEvaluation is the persisted audit record of one quote evaluation:
// the input snapshot, the validation outcome, and the breakdown when one was
// produced. Produced fresh per calculation; never read back by the engine.
type RatingEvaluation struct {
	ID            string         `json:"id"`
	QuoteID       string         `json:"quoteId"`
	InsuranceType InsuranceType  `json:"insuranceType"`
	Vehicle       VehicleProfile `json:"vehicle"`
	AsOf          time.Time      `json:"asOf"`

	Valid    bool     `json:"valid"`
	Errors   []string `json:"errors,omitempty"`
	Warnings []string `json:"warnings,omitempty"`

	// Breakdown is nil when validation blocked calculation.
	Breakdown       *PremiumBreakdown `json:"breakdown,omitempty"`
	TotalMultiplier float64           `json:"totalMultiplier"`

	Timestamp time.Time          `json:"timestamp"`
	Metadata  EvaluationMetadata `json:"metadata"`
}

// EvaluationMetadata contains processing information.
type EvaluationMetadata struct {
	TraceID       string `json:"traceId"`
	ResolveMs     int64  `json:"resolveMs"`
	ValidateMs    int64  `json:"validateMs"`
	ComputeMs     int64  `json:"computeMs"`
	TotalMs       int64  `json:"totalMs"`
	EngineVersion string `json:"engineVersion"`
}
