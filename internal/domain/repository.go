package domain

import (
	"context"
	"time"
)

// Repository defines the persistence interface for the rating catalog and
// evaluation audit records. Implementations return raw matching factors in no
// guaranteed order; interpretation of zero/one/many results belongs to the
// rating engine.
type Repository interface {
	// Rating factor operations
	SaveRatingFactor(ctx context.Context, f *RatingFactor) error
	GetRatingFactor(ctx context.Context, id string) (*RatingFactor, error)
	ListRatingFactors(ctx context.Context, it InsuranceType) ([]*RatingFactor, error)

	// FindValid returns factors for (it, key) whose validity window contains
	// asOf. Containment is at date granularity with inclusive bounds, matching
	// RatingFactor.ValidForDate.
	FindValid(ctx context.Context, it InsuranceType, key string, asOf time.Time) ([]*RatingFactor, error)

	// FindOverlapping returns factors for (it, key) whose validity window
	// intersects [from, to] at date granularity. A nil to means the candidate
	// window is open-ended.
	FindOverlapping(ctx context.Context, it InsuranceType, key string, from time.Time, to *time.Time) ([]*RatingFactor, error)

	// Evaluation audit records
	SaveEvaluation(ctx context.Context, eval *RatingEvaluation) error
	GetEvaluation(ctx context.Context, evalID string) (*RatingEvaluation, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// RepositoryConfig holds configuration for repository initialization.
type RepositoryConfig struct {
	// Driver is the database driver: "sqlite" or "postgres"
	Driver string

	// SQLite specific
	SQLitePath string

	// PostgreSQL specific
	PostgresHost     string
	PostgresPort     int
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	// Connection pool settings
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}
