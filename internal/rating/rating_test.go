package rating

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/open-insurance/kestrel/internal/catalog"
	"github.com/open-insurance/kestrel/internal/domain"
	"github.com/open-insurance/kestrel/internal/rules"
)

// today is the pinned clock for all rating tests: age buckets derive from it,
// while factor validity is checked against each test's as-of date.
var today = time.Date(2025, time.June, 15, 12, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return today }

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// fakeRepo is an in-memory domain.Repository for exercising the rating engine
// without a database.
type fakeRepo struct {
	factors []*domain.RatingFactor
	findErr error
}

func (r *fakeRepo) SaveRatingFactor(ctx context.Context, f *domain.RatingFactor) error {
	r.factors = append(r.factors, f)
	return nil
}

func (r *fakeRepo) GetRatingFactor(ctx context.Context, id string) (*domain.RatingFactor, error) {
	for _, f := range r.factors {
		if f.ID == id {
			return f, nil
		}
	}
	return nil, nil
}

func (r *fakeRepo) ListRatingFactors(ctx context.Context, it domain.InsuranceType) ([]*domain.RatingFactor, error) {
	var out []*domain.RatingFactor
	for _, f := range r.factors {
		if f.InsuranceType == it {
			out = append(out, f)
		}
	}
	return out, nil
}

func (r *fakeRepo) FindValid(ctx context.Context, it domain.InsuranceType, key string, asOf time.Time) ([]*domain.RatingFactor, error) {
	if r.findErr != nil {
		return nil, r.findErr
	}
	var out []*domain.RatingFactor
	for _, f := range r.factors {
		if f.InsuranceType == it && f.RatingKey == key && f.ValidForDate(asOf) {
			out = append(out, f)
		}
	}
	return out, nil
}

func (r *fakeRepo) FindOverlapping(ctx context.Context, it domain.InsuranceType, key string, from time.Time, to *time.Time) ([]*domain.RatingFactor, error) {
	if r.findErr != nil {
		return nil, r.findErr
	}
	var out []*domain.RatingFactor
	for _, f := range r.factors {
		if f.InsuranceType == it && f.RatingKey == key && f.OverlapsWindow(from, to) {
			out = append(out, f)
		}
	}
	return out, nil
}

func (r *fakeRepo) SaveEvaluation(ctx context.Context, eval *domain.RatingEvaluation) error {
	return nil
}

func (r *fakeRepo) GetEvaluation(ctx context.Context, evalID string) (*domain.RatingEvaluation, error) {
	return nil, nil
}

func (r *fakeRepo) Ping(ctx context.Context) error { return nil }
func (r *fakeRepo) Close() error                   { return nil }

// seed adds an open-ended factor valid from 2024-01-01.
func (r *fakeRepo) seed(t *testing.T, it domain.InsuranceType, key string, multiplier float64) *domain.RatingFactor {
	t.Helper()
	f, err := domain.NewRatingFactor(it, key, multiplier, date(2024, time.January, 1), nil)
	if err != nil {
		t.Fatalf("NewRatingFactor: %v", err)
	}
	r.factors = append(r.factors, f)
	return f
}

// seedStandardOC seeds every key a 3-year-old 1600cc 132hp vehicle needs for
// OC coverage. Returns the expected total multiplier.
func (r *fakeRepo) seedStandardOC(t *testing.T) float64 {
	t.Helper()
	total := 1.0
	for _, f := range []struct {
		key        string
		multiplier float64
	}{
		{"VEHICLE_AGE_3", 1.15},
		{"ENGINE_MEDIUM", 1.05},
		{"POWER_MEDIUM", 1.10},
		{"OC_STANDARD", 1.0},
	} {
		r.seed(t, domain.InsuranceOC, f.key, f.multiplier)
		total *= f.multiplier
	}
	return total
}

// standardVehicle is 3 years old at the pinned clock: 1600cc, 132hp.
func standardVehicle() domain.VehicleProfile {
	return domain.VehicleProfile{
		EngineCapacityCC:      1600,
		PowerHP:               132,
		FirstRegistrationDate: date(2022, time.March, 10),
	}
}

func newTestEngine(t *testing.T) *rules.Engine {
	t.Helper()
	engine, err := rules.NewEngine()
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	if err := engine.LoadRules(rules.BuiltinRules()); err != nil {
		t.Fatalf("LoadRules: %v", err)
	}
	t.Cleanup(func() { engine.Close() })
	return engine
}

func newTestService(t *testing.T, repo *fakeRepo) *Service {
	t.Helper()
	return newService(catalog.NewService(repo, nil, 0), newTestEngine(t), nil, fixedClock)
}

func containsSubstring(list []string, sub string) bool {
	for _, s := range list {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
