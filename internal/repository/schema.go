package repository

// Schema definitions for the Kestrel catalog database.
// Compatible with both SQLite and PostgreSQL.

const schemaRatingFactors = `
CREATE TABLE IF NOT EXISTS rating_factors (
    id TEXT PRIMARY KEY,
    insurance_type TEXT NOT NULL,
    rating_key TEXT NOT NULL,
    multiplier REAL NOT NULL,
    valid_from TIMESTAMP NOT NULL,
    valid_to TIMESTAMP,
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_rating_factors_lookup ON rating_factors(insurance_type, rating_key, valid_from);
CREATE INDEX IF NOT EXISTS idx_rating_factors_type ON rating_factors(insurance_type);
`

const schemaRatingEvaluations = `
CREATE TABLE IF NOT EXISTS rating_evaluations (
    id TEXT PRIMARY KEY,
    quote_id TEXT NOT NULL,
    insurance_type TEXT NOT NULL,
    engine_capacity_cc INTEGER NOT NULL,
    power_hp INTEGER NOT NULL,
    first_registration TIMESTAMP NOT NULL,
    as_of TIMESTAMP NOT NULL,
    valid INTEGER NOT NULL,
    errors TEXT,
    warnings TEXT,
    breakdown TEXT,
    total_multiplier REAL NOT NULL DEFAULT 0,
    timestamp TIMESTAMP NOT NULL,
    metadata TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_rating_evaluations_quote ON rating_evaluations(quote_id);
CREATE INDEX IF NOT EXISTS idx_rating_evaluations_timestamp ON rating_evaluations(timestamp);
`

// AllSchemas returns every schema statement in migration order.
func AllSchemas() []string {
	return []string{
		schemaRatingFactors,
		schemaRatingEvaluations,
	}
}
