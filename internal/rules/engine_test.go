package rules

import (
	"context"
	"strings"
	"testing"

	"github.com/open-insurance/kestrel/internal/domain"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	engine, err := NewEngine()
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	t.Cleanup(func() { engine.Close() })
	return engine
}

func TestValidateRule(t *testing.T) {
	engine := newTestEngine(t)

	tests := []struct {
		name       string
		expression string
		wantErr    bool
	}{
		{"bool expression", "engine_cc > 2000", false},
		{"int expression", "power_hp", false},
		{"vehicle map access", "vehicle.engine_cc == 1600", false},
		{"policy offset", "policy_offset_days < -730", false},
		{"syntax error", "engine_cc >", true},
		{"unknown variable", "chassis_length > 4", true},
		{"string output", `insurance_type + "!"`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := engine.ValidateRule(&domain.PlausibilityRule{
				ID:         "test-rule",
				Expression: tt.expression,
			})
			if tt.wantErr && err == nil {
				t.Error("expected error, got nil")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestLoadRuleReplacesInPlace(t *testing.T) {
	engine := newTestEngine(t)

	first := &domain.PlausibilityRule{ID: "r1", Expression: "engine_cc > 2000", Enabled: true}
	second := &domain.PlausibilityRule{ID: "r2", Expression: "power_hp > 250", Enabled: true}
	if err := engine.LoadRules([]*domain.PlausibilityRule{first, second}); err != nil {
		t.Fatalf("LoadRules: %v", err)
	}

	replacement := &domain.PlausibilityRule{ID: "r1", Expression: "engine_cc > 3000", Enabled: true}
	if err := engine.LoadRule(replacement); err != nil {
		t.Fatalf("LoadRule: %v", err)
	}

	if engine.RulesCount() != 2 {
		t.Fatalf("expected 2 rules, got %d", engine.RulesCount())
	}
	loaded := engine.LoadedRules()
	if loaded[0].ID != "r1" || loaded[0].Expression != "engine_cc > 3000" {
		t.Errorf("replacement did not keep position: %+v", loaded[0])
	}
}

func TestLoadRulesSkipsDisabled(t *testing.T) {
	engine := newTestEngine(t)

	rules := []*domain.PlausibilityRule{
		{ID: "on", Expression: "engine_cc > 2000", Enabled: true},
		{ID: "off", Expression: "power_hp > 250", Enabled: false},
	}
	if err := engine.LoadRules(rules); err != nil {
		t.Fatalf("LoadRules: %v", err)
	}
	if engine.RulesCount() != 1 {
		t.Errorf("expected 1 rule, got %d", engine.RulesCount())
	}
}

func TestEvaluateAllFindingsInLoadOrder(t *testing.T) {
	engine := newTestEngine(t)
	if err := engine.LoadRules(BuiltinRules()); err != nil {
		t.Fatalf("LoadRules: %v", err)
	}

	input := &EvaluateInput{
		InsuranceType:    domain.InsuranceOC,
		EngineCapacityCC: 2500,
		PowerHP:          70,
		VehicleAge:       5,
		PolicyOffsetDays: 0,
	}

	findings := engine.EvaluateAll(context.Background(), input)
	if len(findings) != len(BuiltinRules()) {
		t.Fatalf("expected one finding per rule, got %d", len(findings))
	}

	for i, want := range BuiltinRules() {
		if findings[i].RuleID != want.ID {
			t.Errorf("finding %d: got rule %s, want %s", i, findings[i].RuleID, want.ID)
		}
	}

	// Same input again must produce the identical finding list.
	again := engine.EvaluateAll(context.Background(), input)
	for i := range findings {
		if findings[i] != again[i] {
			t.Errorf("finding %d differs between runs: %+v vs %+v", i, findings[i], again[i])
		}
	}
}

func TestBuiltinUnderpoweredLargeEngine(t *testing.T) {
	engine := newTestEngine(t)
	if err := engine.LoadRules(BuiltinRules()); err != nil {
		t.Fatalf("LoadRules: %v", err)
	}

	tests := []struct {
		name     string
		engineCC int
		powerHP  int
		warn     bool
	}{
		{"large engine low power", 2001, 75, true},
		{"large engine adequate power", 2001, 76, false},
		{"boundary engine low power", 2000, 60, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			findings := engine.EvaluateAll(context.Background(), &EvaluateInput{
				InsuranceType:    domain.InsuranceOC,
				EngineCapacityCC: tt.engineCC,
				PowerHP:          tt.powerHP,
			})
			got := severityOf(findings, "underpowered-large-engine")
			want := domain.SeverityOK
			if tt.warn {
				want = domain.SeverityWarn
			}
			if got != want {
				t.Errorf("severity = %s, want %s", got, want)
			}
		})
	}
}

func TestBuiltinOverpoweredSmallEngine(t *testing.T) {
	engine := newTestEngine(t)
	if err := engine.LoadRules(BuiltinRules()); err != nil {
		t.Fatalf("LoadRules: %v", err)
	}

	findings := engine.EvaluateAll(context.Background(), &EvaluateInput{
		InsuranceType:    domain.InsuranceAC,
		EngineCapacityCC: 999,
		PowerHP:          300,
	})
	if severityOf(findings, "overpowered-small-engine") != domain.SeverityWarn {
		t.Error("expected warning for 999cc at 300hp")
	}

	findings = engine.EvaluateAll(context.Background(), &EvaluateInput{
		InsuranceType:    domain.InsuranceAC,
		EngineCapacityCC: 1001,
		PowerHP:          300,
	})
	if severityOf(findings, "overpowered-small-engine") != domain.SeverityOK {
		t.Error("expected no warning for 1001cc at 300hp")
	}
}

func TestBuiltinPolicyDateRules(t *testing.T) {
	engine := newTestEngine(t)
	if err := engine.LoadRules(BuiltinRules()); err != nil {
		t.Fatalf("LoadRules: %v", err)
	}

	tests := []struct {
		name   string
		offset int
		ruleID string
		warn   bool
	}{
		{"one year ahead", 365, "policy-date-far-future", false},
		{"beyond one year ahead", 366, "policy-date-far-future", true},
		{"two years back", -730, "policy-date-deep-past", false},
		{"beyond two years back", -731, "policy-date-deep-past", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			findings := engine.EvaluateAll(context.Background(), &EvaluateInput{
				InsuranceType:    domain.InsuranceOC,
				EngineCapacityCC: 1600,
				PowerHP:          100,
				PolicyOffsetDays: tt.offset,
			})
			got := severityOf(findings, tt.ruleID)
			want := domain.SeverityOK
			if tt.warn {
				want = domain.SeverityWarn
			}
			if got != want {
				t.Errorf("severity = %s, want %s", got, want)
			}
		})
	}
}

func TestMatchBand(t *testing.T) {
	low := 1.0
	high := 5.0

	bands := []domain.RuleBand{
		{LowerLimit: &low, UpperLimit: &high, Severity: domain.SeverityWarn, Reason: "in band"},
	}

	tests := []struct {
		score float64
		want  string
	}{
		{0.5, domain.SeverityOK},
		{1.0, domain.SeverityWarn},
		{4.99, domain.SeverityWarn},
		{5.0, domain.SeverityOK},
	}
	for _, tt := range tests {
		severity, _ := matchBand(tt.score, bands)
		if severity != tt.want {
			t.Errorf("matchBand(%.2f) = %s, want %s", tt.score, severity, tt.want)
		}
	}
}

func TestReloadRules(t *testing.T) {
	engine := newTestEngine(t)
	if err := engine.LoadRules(BuiltinRules()); err != nil {
		t.Fatalf("LoadRules: %v", err)
	}

	fresh := []*domain.PlausibilityRule{
		{ID: "only", Expression: "vehicle_age > 40", Enabled: true},
	}
	if err := engine.ReloadRules(fresh); err != nil {
		t.Fatalf("ReloadRules: %v", err)
	}
	if engine.RulesCount() != 1 {
		t.Errorf("expected 1 rule after reload, got %d", engine.RulesCount())
	}
	if engine.LoadedRules()[0].ID != "only" {
		t.Error("reload did not replace the rule set")
	}
}

func TestReloadRulesRejectsBadRuleWithoutClearing(t *testing.T) {
	engine := newTestEngine(t)
	if err := engine.LoadRules(BuiltinRules()); err != nil {
		t.Fatalf("LoadRules: %v", err)
	}

	bad := []*domain.PlausibilityRule{
		{ID: "broken", Expression: "no_such_var > 1", Enabled: true},
	}
	if err := engine.ReloadRules(bad); err == nil {
		t.Fatal("expected compile error")
	}
	if engine.RulesCount() != len(BuiltinRules()) {
		t.Error("failed reload must keep the previous rule set")
	}
}

func severityOf(findings []domain.RuleFinding, ruleID string) string {
	for _, f := range findings {
		if f.RuleID == ruleID {
			return f.Severity
		}
	}
	return ""
}

func TestCompileRuleOutputTypeError(t *testing.T) {
	engine := newTestEngine(t)
	err := engine.LoadRule(&domain.PlausibilityRule{ID: "strings", Expression: `"hello"`, Enabled: true})
	if err == nil {
		t.Fatal("expected output type error")
	}
	if !strings.Contains(err.Error(), "must return bool, int, or double") {
		t.Errorf("unexpected error: %v", err)
	}
}
