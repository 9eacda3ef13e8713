package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/lib/pq"

	"ContentFactory/internal/domain"
	"ContentFactory/internal/ports"
)

// PostgresResults stores finalized workflow results as JSONB snapshots.
type PostgresResults struct {
	db *sql.DB
}

var _ ports.ResultRecorder = (*PostgresResults)(nil)

// NewPostgresResults wires a sql.DB implementation.
func NewPostgresResults(db *sql.DB) *PostgresResults {
	return &PostgresResults{db: db}
}

// Record upserts the result snapshot keyed by its id.
func (r *PostgresResults) Record(ctx context.Context, result domain.WorkflowResult) error {
	if r.db == nil {
		return nil
	}

	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}

	platforms := make([]string, 0, len(result.Attempts))
	for _, a := range result.Attempts {
		if a.Succeeded() {
			platforms = append(platforms, a.Platform)
		}
	}

	query, args, err := psql.Insert("workflow_results").
		Columns("id", "product_ref", "external_id", "status", "cancelled", "platforms", "payload", "started_at", "finished_at").
		Values(
			result.ID,
			result.ProductRef,
			result.Product.ExternalID,
			string(result.Status),
			result.Cancelled,
			pq.StringArray(platforms),
			payload,
			result.StartedAt.UTC(),
			result.FinishedAt.UTC(),
		).
		Suffix(`ON CONFLICT (id) DO UPDATE
			SET status = EXCLUDED.status,
			    cancelled = EXCLUDED.cancelled,
			    platforms = EXCLUDED.platforms,
			    payload = EXCLUDED.payload,
			    finished_at = EXCLUDED.finished_at`).
		ToSql()
	if err != nil {
		return fmt.Errorf("build result insert: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("upsert result %s: %w", result.ID, err)
	}
	return nil
}
