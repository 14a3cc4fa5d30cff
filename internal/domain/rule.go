package domain

// PlausibilityRule is a configurable warning-class check expressed as a CEL
// expression over the quote input. Rules can only ever produce warnings;
// blocking errors stay in compiled validator code.
type PlausibilityRule struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`

	// CEL expression to evaluate. Must return bool, int, or double.
	Expression string `json:"expression"`

	// Severity bands for score-to-finding mapping.
	Bands []RuleBand `json:"bands"`

	// Whether rule is active
	Enabled bool `json:"enabled"`
}

// RuleBand maps a score range to a finding severity.
type RuleBand struct {
	LowerLimit *float64 `json:"lowerLimit,omitempty"`
	UpperLimit *float64 `json:"upperLimit,omitempty"`
	Severity   string   `json:"severity"` // ".ok" or ".warn"
	Reason     string   `json:"reason"`
}

// RuleFinding is the outcome of one plausibility rule evaluation.
type RuleFinding struct {
	RuleID   string  `json:"ruleId"`
	Severity string  `json:"severity"`
	Score    float64 `json:"score"`
	Reason   string  `json:"reason"`
}

// Predefined finding severities
const (
	SeverityOK   = ".ok"
	SeverityWarn = ".warn"
)
