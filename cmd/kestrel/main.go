// Kestrel - motor premium rating engine.
//
// Runs the rating pipeline as a bus-driven worker: quote requests arrive on
// the event bus, are validated and priced against the rating catalog, and the
// outcomes are published back and recorded for audit.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/open-insurance/kestrel/internal/bus"
	"github.com/open-insurance/kestrel/internal/cache"
	"github.com/open-insurance/kestrel/internal/catalog"
	"github.com/open-insurance/kestrel/internal/domain"
	"github.com/open-insurance/kestrel/internal/rating"
	"github.com/open-insurance/kestrel/internal/repository"
	"github.com/open-insurance/kestrel/internal/rules"
	"github.com/open-insurance/kestrel/internal/worker"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	// Initialize structured logger
	logLevel := slog.LevelInfo
	if os.Getenv("KESTREL_DEBUG") == "true" {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	slog.Info("starting kestrel",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)

	// Load configuration
	cfg := domain.DefaultConfig()
	if os.Getenv("KESTREL_MODE") == "distributed" {
		cfg = domain.DistributedConfig()
		slog.Info("running in distributed mode")
	}

	slog.Info("configuration loaded",
		"repository", cfg.Repository.Driver,
		"cache", cfg.Cache.Type,
		"eventbus", cfg.EventBus.Type,
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		slog.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Initialize Repository
	repo, err := repository.New(cfg.Repository)
	if err != nil {
		slog.Error("failed to initialize repository", "error", err)
		os.Exit(1)
	}
	defer repo.Close()
	slog.Info("repository initialized", "driver", cfg.Repository.Driver)

	// Initialize Cache
	cacheImpl, err := cache.New(cfg.Cache)
	if err != nil {
		slog.Error("failed to initialize cache", "error", err)
		os.Exit(1)
	}
	defer cacheImpl.Close()
	slog.Info("cache initialized", "type", cfg.Cache.Type)

	// Initialize EventBus
	busImpl, err := bus.New(cfg.EventBus)
	if err != nil {
		slog.Error("failed to initialize event bus", "error", err)
		os.Exit(1)
	}
	defer busImpl.Close()
	slog.Info("event bus initialized", "type", cfg.EventBus.Type)

	// Initialize Catalog
	cat := catalog.NewService(repo, cacheImpl, catalog.DefaultLookupTTL)

	// Initialize plausibility rule engine with the built-in rule set
	ruleEngine, err := rules.NewEngine()
	if err != nil {
		slog.Error("failed to initialize rule engine", "error", err)
		os.Exit(1)
	}
	if err := ruleEngine.LoadRules(rules.BuiltinRules()); err != nil {
		slog.Error("failed to load plausibility rules", "error", err)
		os.Exit(1)
	}
	slog.Info("rule engine initialized", "rules_count", ruleEngine.RulesCount())

	// Initialize Rating Service
	ratingSvc := rating.NewService(cat, ruleEngine, busImpl)
	slog.Info("rating service initialized")

	// Start the quote worker
	quoteWorker := worker.NewWorker(busImpl, repo, ratingSvc)
	if err := quoteWorker.Start(); err != nil {
		slog.Error("failed to start quote worker", "error", err)
		os.Exit(1)
	}
	defer quoteWorker.Stop()

	slog.Info("kestrel ready", "topic", domain.TopicQuoteRequested)

	<-ctx.Done()
	slog.Info("shutting down")
}
