package storage

import (
	"context"
	"database/sql"
	"fmt"
)

// schema is applied idempotently on startup.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS products (
		id             UUID PRIMARY KEY,
		source         TEXT NOT NULL,
		external_id    TEXT NOT NULL,
		name           TEXT NOT NULL,
		description    TEXT NOT NULL DEFAULT '',
		price_amount   NUMERIC(14, 2),
		price_currency TEXT NOT NULL DEFAULT '',
		price_raw      TEXT NOT NULL DEFAULT '',
		source_url     TEXT NOT NULL DEFAULT '',
		image_url      TEXT NOT NULL DEFAULT '',
		category       TEXT NOT NULL DEFAULT '',
		rating         DOUBLE PRECISION NOT NULL DEFAULT 0,
		trending       BOOLEAN NOT NULL DEFAULT FALSE,
		discovered_at  TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS products_external_id_idx ON products (external_id, discovered_at DESC)`,
	`CREATE TABLE IF NOT EXISTS workflow_results (
		id          UUID PRIMARY KEY,
		product_ref TEXT NOT NULL,
		external_id TEXT NOT NULL DEFAULT '',
		status      TEXT NOT NULL,
		cancelled   BOOLEAN NOT NULL DEFAULT FALSE,
		platforms   TEXT[] NOT NULL DEFAULT '{}',
		payload     JSONB NOT NULL,
		started_at  TIMESTAMPTZ NOT NULL,
		finished_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS workflow_results_product_idx ON workflow_results (product_ref, finished_at DESC)`,
}

// Migrate creates the tables used by the Postgres stores.
func Migrate(ctx context.Context, db *sql.DB) error {
	for i, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema statement %d: %w", i+1, err)
		}
	}
	return nil
}
