// Benchmark tool for measuring rating engine throughput.
//
// Usage:
//
//	go run cmd/benchmark/main.go -n 100000
//
// This tool:
//  1. Seeds a temporary SQLite catalog with a full factor grid
//  2. Rates randomly generated vehicles in-process
//  3. Reports throughput and latency
package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	"github.com/open-insurance/kestrel/internal/cache"
	"github.com/open-insurance/kestrel/internal/catalog"
	"github.com/open-insurance/kestrel/internal/domain"
	"github.com/open-insurance/kestrel/internal/rating"
	"github.com/open-insurance/kestrel/internal/repository"
	"github.com/open-insurance/kestrel/internal/rules"
)

func main() {
	n := flag.Int("n", 10000, "number of quotes to rate")
	useCache := flag.Bool("cache", true, "enable lookup caching")
	flag.Parse()

	if err := run(*n, *useCache); err != nil {
		fmt.Fprintf(os.Stderr, "benchmark failed: %v\n", err)
		os.Exit(1)
	}
}

func run(n int, useCache bool) error {
	dir, err := os.MkdirTemp("", "kestrel-bench-")
	if err != nil {
		return err
	}
	defer os.RemoveAll(dir)

	repo, err := repository.New(domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: filepath.Join(dir, "bench.db"),
	})
	if err != nil {
		return err
	}
	defer repo.Close()

	var lookupCache domain.Cache
	if useCache {
		lookupCache = cache.NewLRUCache(10000)
		defer lookupCache.Close()
	}

	cat := catalog.NewService(repo, lookupCache, catalog.DefaultLookupTTL)

	ruleEngine, err := rules.NewEngine()
	if err != nil {
		return err
	}
	if err := ruleEngine.LoadRules(rules.BuiltinRules()); err != nil {
		return err
	}

	svc := rating.NewService(cat, ruleEngine, nil)

	ctx := context.Background()
	if err := seed(ctx, repo); err != nil {
		return err
	}

	types := []domain.InsuranceType{domain.InsuranceOC, domain.InsuranceAC, domain.InsuranceNNW}
	rng := rand.New(rand.NewSource(42))
	asOf := time.Now().UTC()

	fmt.Printf("rating %d quotes (cache=%v)...\n", n, useCache)

	var rated, rejected int
	start := time.Now()
	for i := 0; i < n; i++ {
		vehicle := domain.VehicleProfile{
			EngineCapacityCC:      600 + rng.Intn(3000),
			PowerHP:               40 + rng.Intn(300),
			FirstRegistrationDate: asOf.AddDate(-rng.Intn(14), 0, 0),
		}

		_, err := svc.ComputePremiumMultiplier(ctx, types[i%len(types)], vehicle, asOf)
		if err != nil {
			rejected++
		} else {
			rated++
		}
	}
	elapsed := time.Since(start)

	fmt.Printf("rated:     %d\n", rated)
	fmt.Printf("rejected:  %d\n", rejected)
	fmt.Printf("elapsed:   %s\n", elapsed)
	fmt.Printf("rate:      %.0f quotes/sec\n", float64(n)/elapsed.Seconds())
	fmt.Printf("mean:      %s/quote\n", elapsed/time.Duration(n))

	return nil
}

// seed admits one open-ended factor for every bucket of every insurance type.
func seed(ctx context.Context, repo domain.Repository) error {
	validFrom := time.Now().UTC().AddDate(-1, 0, 0)

	keys := []string{
		rating.KeyCoverageOC, rating.KeyCoverageAC, rating.KeyCoverageNNW,
		rating.EngineBucketKey(800), rating.EngineBucketKey(1400),
		rating.EngineBucketKey(1900), rating.EngineBucketKey(3000),
		rating.PowerBucketKey(60), rating.PowerBucketKey(120),
		rating.PowerBucketKey(200), rating.PowerBucketKey(300),
	}
	for age := 0; age <= 10; age++ {
		keys = append(keys, rating.AgeBucketKey(age))
	}

	for _, it := range []domain.InsuranceType{domain.InsuranceOC, domain.InsuranceAC, domain.InsuranceNNW} {
		for _, key := range keys {
			f, err := domain.NewRatingFactor(it, key, 0.8+rand.Float64(), validFrom, nil)
			if err != nil {
				return err
			}
			if err := repo.SaveRatingFactor(ctx, f); err != nil {
				return err
			}
		}
	}

	return nil
}
