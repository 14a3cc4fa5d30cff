// Package rules provides the CEL-Go based plausibility rule engine.
//
// Plausibility rules are warning-class checks over the quote input. They can
// never block a calculation; blocking checks live in the rating validator.
package rules

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"
	"github.com/open-insurance/kestrel/internal/domain"
)

// Engine is the CEL-based plausibility rule engine.
//
// Rules are kept in a slice in load order, not a map: findings must come back
// in a stable order so repeated validations of the same input produce
// identical warning lists.
type Engine struct {
	mu       sync.RWMutex
	env      *cel.Env
	compiled []*CompiledRule
}

// CompiledRule holds a pre-compiled CEL program.
type CompiledRule struct {
	Config  *domain.PlausibilityRule
	Program cel.Program
}

// NewEngine creates a new plausibility rule engine.
func NewEngine() (*Engine, error) {
	// CEL environment with quote input variables
	env, err := cel.NewEnv(
		cel.Variable("vehicle", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("engine_cc", cel.IntType),
		cel.Variable("power_hp", cel.IntType),
		cel.Variable("vehicle_age", cel.IntType),
		cel.Variable("insurance_type", cel.StringType),
		// Signed days from now to the policy effective date
		cel.Variable("policy_offset_days", cel.IntType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &Engine{env: env}, nil
}

// ValidateRule compiles and validates a rule without loading it.
func (e *Engine) ValidateRule(cfg *domain.PlausibilityRule) error {
	if cfg == nil {
		return fmt.Errorf("rule config is required")
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	_, err := e.compileRule(cfg)
	return err
}

// LoadRule compiles and loads a rule into the engine. Loading a rule with an
// already-loaded ID replaces it in place, keeping its position.
func (e *Engine) LoadRule(cfg *domain.PlausibilityRule) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	compiled, err := e.compileRule(cfg)
	if err != nil {
		return err
	}

	for i, existing := range e.compiled {
		if existing.Config.ID == cfg.ID {
			e.compiled[i] = compiled
			return nil
		}
	}

	e.compiled = append(e.compiled, compiled)
	return nil
}

// LoadRules compiles and loads multiple rules in order.
func (e *Engine) LoadRules(configs []*domain.PlausibilityRule) error {
	for _, cfg := range configs {
		if cfg.Enabled {
			if err := e.LoadRule(cfg); err != nil {
				return err
			}
		}
	}
	return nil
}

// EvaluateInput holds the quote data for rule evaluation.
type EvaluateInput struct {
	InsuranceType    domain.InsuranceType
	EngineCapacityCC int
	PowerHP          int
	VehicleAge       int
	PolicyOffsetDays int
}

// EvaluateAll evaluates all loaded rules. Findings come back in rule load
// order regardless of evaluation scheduling.
func (e *Engine) EvaluateAll(ctx context.Context, input *EvaluateInput) []domain.RuleFinding {
	e.mu.RLock()
	ruleSet := make([]*CompiledRule, len(e.compiled))
	copy(ruleSet, e.compiled)
	e.mu.RUnlock()

	if len(ruleSet) == 0 {
		return nil
	}

	activation := map[string]any{
		"vehicle": map[string]any{
			"engine_cc":   input.EngineCapacityCC,
			"power_hp":    input.PowerHP,
			"vehicle_age": input.VehicleAge,
		},
		"engine_cc":          input.EngineCapacityCC,
		"power_hp":           input.PowerHP,
		"vehicle_age":        input.VehicleAge,
		"insurance_type":     string(input.InsuranceType),
		"policy_offset_days": input.PolicyOffsetDays,
	}

	findings := make([]domain.RuleFinding, len(ruleSet))
	for i, rule := range ruleSet {
		findings[i] = e.evaluateRule(rule, activation)
	}

	return findings
}

// evaluateRule evaluates a single rule and returns the finding.
func (e *Engine) evaluateRule(rule *CompiledRule, activation map[string]any) domain.RuleFinding {
	finding := domain.RuleFinding{
		RuleID: rule.Config.ID,
	}

	out, _, err := rule.Program.Eval(activation)
	if err != nil {
		// An unevaluable rule degrades to a warning naming itself; it must
		// not block or vanish silently.
		finding.Severity = domain.SeverityWarn
		finding.Reason = fmt.Sprintf("plausibility rule %s failed to evaluate: %v", rule.Config.ID, err)
		return finding
	}

	score := toScore(out)
	finding.Score = score
	finding.Severity, finding.Reason = matchBand(score, rule.Config.Bands)

	return finding
}

// toScore converts a CEL value to a numeric score.
func toScore(val ref.Val) float64 {
	switch v := val.(type) {
	case types.Bool:
		if v {
			return 1.0
		}
		return 0.0
	case types.Double:
		return float64(v)
	case types.Int:
		return float64(v)
	default:
		return 0.0
	}
}

// matchBand finds the matching band for a score.
// Bands are evaluated in order: lower inclusive, upper exclusive, a nil upper
// meaning infinity.
func matchBand(score float64, bands []domain.RuleBand) (string, string) {
	for _, band := range bands {
		lower := 0.0
		if band.LowerLimit != nil {
			lower = *band.LowerLimit
		}
		if score < lower {
			continue
		}
		if band.UpperLimit == nil || score < *band.UpperLimit {
			return band.Severity, band.Reason
		}
	}

	return domain.SeverityOK, ""
}

// RulesCount returns the number of loaded rules.
func (e *Engine) RulesCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.compiled)
}

// ReloadRules clears all existing rules and loads new ones.
func (e *Engine) ReloadRules(configs []*domain.PlausibilityRule) error {
	fresh := make([]*CompiledRule, 0, len(configs))

	e.mu.Lock()
	defer e.mu.Unlock()

	for _, cfg := range configs {
		if !cfg.Enabled {
			continue
		}

		compiled, err := e.compileRule(cfg)
		if err != nil {
			return err
		}
		fresh = append(fresh, compiled)
	}

	e.compiled = fresh
	return nil
}

// LoadedRules returns the currently loaded rule configurations in order.
func (e *Engine) LoadedRules() []*domain.PlausibilityRule {
	e.mu.RLock()
	defer e.mu.RUnlock()

	configs := make([]*domain.PlausibilityRule, 0, len(e.compiled))
	for _, compiled := range e.compiled {
		configs = append(configs, compiled.Config)
	}
	return configs
}

// Close cleans up the engine.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.compiled = nil
	return nil
}

func (e *Engine) compileRule(cfg *domain.PlausibilityRule) (*CompiledRule, error) {
	ast, issues := e.env.Compile(cfg.Expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile rule %s: %w", cfg.ID, issues.Err())
	}

	outputType := ast.OutputType()
	if outputType != cel.BoolType && outputType != cel.DoubleType && outputType != cel.IntType {
		return nil, fmt.Errorf("rule %s: expression must return bool, int, or double, got %s", cfg.ID, outputType)
	}

	program, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create program for rule %s: %w", cfg.ID, err)
	}

	return &CompiledRule{
		Config:  cfg,
		Program: program,
	}, nil
}
