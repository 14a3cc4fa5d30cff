// Package worker provides async quote processing over the event bus.
package worker

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/open-insurance/kestrel/internal/domain"
	"github.com/open-insurance/kestrel/internal/rating"
)

// Worker processes quote requests asynchronously from the EventBus: each
// request is validated and, when clean, priced; the outcome is persisted as a
// RatingEvaluation and published back on the bus.
type Worker struct {
	bus    domain.EventBus
	repo   domain.Repository
	rating *rating.Service

	subscriptions []domain.Subscription
	wg            sync.WaitGroup
	ctx           context.Context
	cancel        context.CancelFunc
}

// NewWorker creates a new async quote worker.
func NewWorker(bus domain.EventBus, repo domain.Repository, ratingSvc *rating.Service) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:    bus,
		repo:   repo,
		rating: ratingSvc,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start subscribes to the quote request topic.
func (w *Worker) Start() error {
	sub, err := w.bus.Subscribe(w.ctx, domain.TopicQuoteRequested, w.handleMessage)
	if err != nil {
		return err
	}
	w.subscriptions = append(w.subscriptions, sub)

	slog.Info("quote worker started", "topic", domain.TopicQuoteRequested)
	return nil
}

// QuoteRequest is the message payload for quote processing.
type QuoteRequest struct {
	QuoteID       string                `json:"quoteId"`
	TraceID       string                `json:"traceId,omitempty"`
	InsuranceType domain.InsuranceType  `json:"insuranceType"`
	Vehicle       domain.VehicleProfile `json:"vehicle"`
	AsOf          time.Time             `json:"asOf"`
}

// handleMessage tracks each in-flight quote so Stop can wait for it.
func (w *Worker) handleMessage(ctx context.Context, msg *domain.Message) error {
	w.wg.Add(1)
	defer w.wg.Done()
	return w.processQuote(ctx, msg)
}

// processQuote runs one quote through validate-then-compute.
func (w *Worker) processQuote(ctx context.Context, msg *domain.Message) error {
	start := time.Now()

	var req QuoteRequest
	if err := json.Unmarshal(msg.Payload, &req); err != nil {
		slog.Error("failed to parse quote request",
			"message_id", msg.ID,
			"error", err,
		)
		return err
	}

	traceID := req.TraceID
	if traceID == "" {
		if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
			traceID = sc.TraceID().String()
		} else {
			traceID = msg.ID
		}
	}
	asOf := req.AsOf
	if asOf.IsZero() {
		asOf = time.Now().UTC()
	}

	slog.Debug("processing quote",
		"quote_id", req.QuoteID,
		"insurance_type", req.InsuranceType,
		"trace_id", traceID,
	)

	// 1. Validate
	validateStart := time.Now()
	result, err := w.rating.ValidateRatingFactors(ctx, req.InsuranceType, req.Vehicle, asOf)
	if err != nil {
		slog.Error("quote validation failed",
			"quote_id", req.QuoteID,
			"error", err,
		)
		return err
	}
	validateMs := time.Since(validateStart).Milliseconds()

	eval := &domain.RatingEvaluation{
		ID:            uuid.New().String(),
		QuoteID:       req.QuoteID,
		InsuranceType: req.InsuranceType,
		Vehicle:       req.Vehicle,
		AsOf:          asOf,
		Valid:         result.Valid(),
		Errors:        result.Errors(),
		Warnings:      result.Warnings(),
		Timestamp:     time.Now().UTC(),
	}

	// 2. Compute when validation passed
	var computeMs int64
	if result.Valid() {
		computeStart := time.Now()
		breakdown, err := w.rating.ComputePremiumMultiplier(ctx, req.InsuranceType, req.Vehicle, asOf)
		computeMs = time.Since(computeStart).Milliseconds()
		if err != nil {
			// Rating data changed between validate and compute; record the
			// quote as rejected rather than dropping it.
			eval.Valid = false
			eval.Errors = append(eval.Errors, err.Error())
			slog.Warn("premium computation failed after clean validation",
				"quote_id", req.QuoteID,
				"error", err,
			)
		} else {
			eval.Breakdown = breakdown
			eval.TotalMultiplier = breakdown.TotalMultiplier
		}
	}

	eval.Metadata = domain.EvaluationMetadata{
		TraceID:       traceID,
		ValidateMs:    validateMs,
		ComputeMs:     computeMs,
		TotalMs:       time.Since(start).Milliseconds(),
		EngineVersion: domain.EngineVersion,
	}

	// 3. Save evaluation
	if w.repo != nil {
		if err := w.repo.SaveEvaluation(ctx, eval); err != nil {
			slog.Error("failed to save evaluation",
				"quote_id", req.QuoteID,
				"error", err,
			)
		}
	}

	// 4. Publish outcome
	topic := domain.TopicQuoteRated
	if !eval.Valid {
		topic = domain.TopicQuoteRejected
	}

	payload, _ := json.Marshal(eval)
	if err := w.bus.Publish(ctx, topic, payload); err != nil {
		slog.Error("failed to publish quote outcome",
			"quote_id", req.QuoteID,
			"topic", topic,
			"error", err,
		)
	}

	slog.Info("quote processed",
		"quote_id", req.QuoteID,
		"insurance_type", req.InsuranceType,
		"valid", eval.Valid,
		"total_multiplier", eval.TotalMultiplier,
		"duration_ms", eval.Metadata.TotalMs,
	)

	return nil
}

// Stop gracefully stops the worker.
func (w *Worker) Stop() error {
	w.cancel()

	for _, sub := range w.subscriptions {
		if err := sub.Unsubscribe(); err != nil {
			slog.Error("failed to unsubscribe",
				"topic", sub.Topic(),
				"error", err,
			)
		}
	}
	w.subscriptions = nil

	w.wg.Wait()

	slog.Info("quote worker stopped")
	return nil
}

// Stats returns worker statistics.
type Stats struct {
	SubscriptionCount int      `json:"subscriptionCount"`
	Topics            []string `json:"topics"`
}

// GetStats returns current worker statistics.
func (w *Worker) GetStats() Stats {
	topics := make([]string, len(w.subscriptions))
	for i, sub := range w.subscriptions {
		topics[i] = sub.Topic()
	}
	return Stats{
		SubscriptionCount: len(w.subscriptions),
		Topics:            topics,
	}
}
