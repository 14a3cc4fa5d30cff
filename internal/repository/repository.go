// Package repository provides data persistence implementations.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/open-insurance/kestrel/internal/domain"
)

var (
	ErrNotFound     = errors.New("record not found")
	ErrInvalidInput = errors.New("invalid input")
)

// SQLRepository implements domain.Repository using database/sql.
// Works with both SQLite and PostgreSQL drivers.
type SQLRepository struct {
	db     *sql.DB
	driver string
}

// New creates a new repository based on configuration.
func New(cfg domain.RepositoryConfig) (domain.Repository, error) {
	var db *sql.DB
	var err error

	switch cfg.Driver {
	case "sqlite":
		db, err = openSQLite(cfg)
	case "postgres":
		db, err = openPostgres(cfg)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	repo := &SQLRepository{
		db:     db,
		driver: cfg.Driver,
	}

	// Run migrations
	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return repo, nil
}

func (r *SQLRepository) migrate() error {
	for _, schema := range AllSchemas() {
		if _, err := r.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

// SaveRatingFactor stores a rating factor. Factors are append-only; an
// existing ID is an error, not an update.
func (r *SQLRepository) SaveRatingFactor(ctx context.Context, f *domain.RatingFactor) error {
	if f == nil || f.ID == "" {
		return fmt.Errorf("%w: factor with ID is required", ErrInvalidInput)
	}

	query := `
		INSERT INTO rating_factors (
			id, insurance_type, rating_key, multiplier, valid_from, valid_to, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	var validTo any
	if f.ValidTo != nil {
		validTo = f.ValidTo.UTC()
	}

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		f.ID, string(f.InsuranceType), f.RatingKey, f.Multiplier,
		f.ValidFrom.UTC(), validTo, f.CreatedAt.UTC(),
	)
	return err
}

// GetRatingFactor retrieves a rating factor by ID.
func (r *SQLRepository) GetRatingFactor(ctx context.Context, id string) (*domain.RatingFactor, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: id is required", ErrInvalidInput)
	}

	query := `
		SELECT id, insurance_type, rating_key, multiplier, valid_from, valid_to, created_at
		FROM rating_factors
		WHERE id = ?
	`

	row := r.db.QueryRowContext(ctx, r.rebind(query), id)
	f, err := scanRatingFactor(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return f, err
}

// ListRatingFactors retrieves all factors for an insurance type.
func (r *SQLRepository) ListRatingFactors(ctx context.Context, it domain.InsuranceType) ([]*domain.RatingFactor, error) {
	if !it.Valid() {
		return nil, fmt.Errorf("%w: unknown insurance type %q", ErrInvalidInput, string(it))
	}

	query := `
		SELECT id, insurance_type, rating_key, multiplier, valid_from, valid_to, created_at
		FROM rating_factors
		WHERE insurance_type = ?
		ORDER BY rating_key, valid_from
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), string(it))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectRatingFactors(rows)
}

// FindValid retrieves factors for (it, key) whose validity window contains
// asOf. Both bounds are inclusive at date granularity; a NULL valid_to is
// open-ended. Intraday components on asOf or on the stored timestamps must not
// change the answer, so the comparison uses day bounds rather than raw
// timestamps.
func (r *SQLRepository) FindValid(ctx context.Context, it domain.InsuranceType, key string, asOf time.Time) ([]*domain.RatingFactor, error) {
	if !it.Valid() || key == "" {
		return nil, fmt.Errorf("%w: insurance type and rating key are required", ErrInvalidInput)
	}

	query := `
		SELECT id, insurance_type, rating_key, multiplier, valid_from, valid_to, created_at
		FROM rating_factors
		WHERE insurance_type = ?
		  AND rating_key = ?
		  AND valid_from < ?
		  AND (valid_to IS NULL OR valid_to >= ?)
		ORDER BY valid_from DESC, id
	`

	dayStart, nextDay := dayBounds(asOf)
	rows, err := r.db.QueryContext(ctx, r.rebind(query), string(it), key, nextDay, dayStart)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectRatingFactors(rows)
}

// FindOverlapping retrieves factors for (it, key) whose validity window
// intersects [from, to] at date granularity. A nil to means the candidate
// window never closes.
func (r *SQLRepository) FindOverlapping(ctx context.Context, it domain.InsuranceType, key string, from time.Time, to *time.Time) ([]*domain.RatingFactor, error) {
	if !it.Valid() || key == "" {
		return nil, fmt.Errorf("%w: insurance type and rating key are required", ErrInvalidInput)
	}

	fromStart, _ := dayBounds(from)

	var (
		query string
		args  []any
	)

	if to == nil {
		query = `
			SELECT id, insurance_type, rating_key, multiplier, valid_from, valid_to, created_at
			FROM rating_factors
			WHERE insurance_type = ?
			  AND rating_key = ?
			  AND (valid_to IS NULL OR valid_to >= ?)
			ORDER BY valid_from, id
		`
		args = []any{string(it), key, fromStart}
	} else {
		_, toNextDay := dayBounds(*to)
		query = `
			SELECT id, insurance_type, rating_key, multiplier, valid_from, valid_to, created_at
			FROM rating_factors
			WHERE insurance_type = ?
			  AND rating_key = ?
			  AND valid_from < ?
			  AND (valid_to IS NULL OR valid_to >= ?)
			ORDER BY valid_from, id
		`
		args = []any{string(it), key, toNextDay, fromStart}
	}

	rows, err := r.db.QueryContext(ctx, r.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectRatingFactors(rows)
}

// SaveEvaluation stores a rating evaluation audit record.
func (r *SQLRepository) SaveEvaluation(ctx context.Context, eval *domain.RatingEvaluation) error {
	if eval == nil || eval.ID == "" {
		return fmt.Errorf("%w: evaluation with ID is required", ErrInvalidInput)
	}

	errs, _ := json.Marshal(eval.Errors)
	warnings, _ := json.Marshal(eval.Warnings)
	metadata, _ := json.Marshal(eval.Metadata)

	var breakdown any
	if eval.Breakdown != nil {
		b, _ := json.Marshal(eval.Breakdown)
		breakdown = string(b)
	}

	valid := 0
	if eval.Valid {
		valid = 1
	}

	query := `
		INSERT INTO rating_evaluations (
			id, quote_id, insurance_type, engine_capacity_cc, power_hp,
			first_registration, as_of, valid, errors, warnings,
			breakdown, total_multiplier, timestamp, metadata
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		eval.ID, eval.QuoteID, string(eval.InsuranceType),
		eval.Vehicle.EngineCapacityCC, eval.Vehicle.PowerHP,
		eval.Vehicle.FirstRegistrationDate.UTC(), eval.AsOf.UTC(),
		valid, string(errs), string(warnings),
		breakdown, eval.TotalMultiplier, eval.Timestamp.UTC(), string(metadata),
	)
	return err
}

// GetEvaluation retrieves a rating evaluation by ID.
func (r *SQLRepository) GetEvaluation(ctx context.Context, evalID string) (*domain.RatingEvaluation, error) {
	if evalID == "" {
		return nil, fmt.Errorf("%w: evaluation ID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, quote_id, insurance_type, engine_capacity_cc, power_hp,
			   first_registration, as_of, valid, errors, warnings,
			   breakdown, total_multiplier, timestamp, metadata
		FROM rating_evaluations
		WHERE id = ?
	`

	var (
		eval      domain.RatingEvaluation
		it        string
		valid     int
		errs      sql.NullString
		warnings  sql.NullString
		breakdown sql.NullString
		metadata  string
	)

	err := r.db.QueryRowContext(ctx, r.rebind(query), evalID).Scan(
		&eval.ID, &eval.QuoteID, &it,
		&eval.Vehicle.EngineCapacityCC, &eval.Vehicle.PowerHP,
		&eval.Vehicle.FirstRegistrationDate, &eval.AsOf,
		&valid, &errs, &warnings,
		&breakdown, &eval.TotalMultiplier, &eval.Timestamp, &metadata,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	eval.InsuranceType = domain.InsuranceType(it)
	eval.Valid = valid == 1

	if errs.Valid && errs.String != "" {
		json.Unmarshal([]byte(errs.String), &eval.Errors)
	}
	if warnings.Valid && warnings.String != "" {
		json.Unmarshal([]byte(warnings.String), &eval.Warnings)
	}
	if breakdown.Valid && breakdown.String != "" {
		var b domain.PremiumBreakdown
		if err := json.Unmarshal([]byte(breakdown.String), &b); err == nil {
			eval.Breakdown = &b
		}
	}
	json.Unmarshal([]byte(metadata), &eval.Metadata)

	return &eval, nil
}

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

// dayBounds returns the UTC midnight opening t's day and the midnight opening
// the next day. Window comparisons bind these instead of raw timestamps so
// that intraday components never shrink an inclusive date window.
func dayBounds(t time.Time) (dayStart, nextDay time.Time) {
	y, m, d := t.UTC().Date()
	dayStart = time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return dayStart, dayStart.AddDate(0, 0, 1)
}

// scanner abstracts *sql.Row and *sql.Rows for factor scanning.
type scanner interface {
	Scan(dest ...any) error
}

func scanRatingFactor(s scanner) (*domain.RatingFactor, error) {
	var (
		f       domain.RatingFactor
		it      string
		validTo sql.NullTime
	)

	if err := s.Scan(&f.ID, &it, &f.RatingKey, &f.Multiplier, &f.ValidFrom, &validTo, &f.CreatedAt); err != nil {
		return nil, err
	}

	f.InsuranceType = domain.InsuranceType(it)
	if validTo.Valid {
		t := validTo.Time
		f.ValidTo = &t
	}

	return &f, nil
}

func collectRatingFactors(rows *sql.Rows) ([]*domain.RatingFactor, error) {
	var factors []*domain.RatingFactor
	for rows.Next() {
		f, err := scanRatingFactor(rows)
		if err != nil {
			return nil, err
		}
		factors = append(factors, f)
	}
	return factors, rows.Err()
}

// rebind converts ? placeholders to $1, $2, ... for postgres.
func (r *SQLRepository) rebind(query string) string {
	if r.driver != "postgres" {
		return query
	}

	var result []byte
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			result = append(result, '$')
			result = append(result, fmt.Sprintf("%d", n)...)
			n++
		} else {
			result = append(result, query[i])
		}
	}
	return string(result)
}
