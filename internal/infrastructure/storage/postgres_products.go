package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"ContentFactory/internal/domain"
	"ContentFactory/internal/ports"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

var productColumns = []string{
	"id", "source", "external_id", "name", "description",
	"price_amount", "price_currency", "price_raw",
	"source_url", "image_url", "category", "rating", "trending", "discovered_at",
}

// PostgresProducts persists discovery records into Postgres. Every changed
// listing is a new row; the latest row per external id is the current one.
type PostgresProducts struct {
	db *sql.DB
}

var _ ports.ProductRepository = (*PostgresProducts)(nil)

// NewPostgresProducts wires a sql.DB implementation.
func NewPostgresProducts(db *sql.DB) *PostgresProducts {
	return &PostgresProducts{db: db}
}

// FindByExternalID returns the most recent record for a source-qualified id.
func (r *PostgresProducts) FindByExternalID(ctx context.Context, externalID string) (domain.Product, bool, error) {
	query, args, err := psql.Select(productColumns...).
		From("products").
		Where(sq.Eq{"external_id": externalID}).
		OrderBy("discovered_at DESC").
		Limit(1).
		ToSql()
	if err != nil {
		return domain.Product{}, false, fmt.Errorf("build find query: %w", err)
	}

	product, err := scanProduct(r.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Product{}, false, nil
	}
	if err != nil {
		return domain.Product{}, false, fmt.Errorf("find product %s: %w", externalID, err)
	}
	return product, true, nil
}

// Get loads a record by its internal id.
func (r *PostgresProducts) Get(ctx context.Context, id string) (domain.Product, error) {
	if _, err := uuid.Parse(id); err != nil {
		return domain.Product{}, fmt.Errorf("%w: %s", domain.ErrProductNotFound, id)
	}

	query, args, err := psql.Select(productColumns...).
		From("products").
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return domain.Product{}, fmt.Errorf("build get query: %w", err)
	}

	product, err := scanProduct(r.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Product{}, fmt.Errorf("%w: %s", domain.ErrProductNotFound, id)
	}
	if err != nil {
		return domain.Product{}, fmt.Errorf("get product %s: %w", id, err)
	}
	return product, nil
}

// Save inserts a new discovery record and returns it with its assigned id.
func (r *PostgresProducts) Save(ctx context.Context, product domain.Product) (domain.Product, error) {
	if product.ID == "" {
		product.ID = uuid.NewString()
	}

	var amount decimal.NullDecimal
	if product.Price.Known {
		amount = decimal.NullDecimal{Decimal: product.Price.Amount, Valid: true}
	}

	query, args, err := psql.Insert("products").
		Columns(productColumns...).
		Values(
			product.ID, product.Source, product.ExternalID, product.Name, product.Description,
			amount, product.Price.Currency, product.Price.Raw,
			product.SourceURL, product.ImageURL, product.Category, product.Rating, product.Trending,
			product.DiscoveredAt.UTC(),
		).
		ToSql()
	if err != nil {
		return domain.Product{}, fmt.Errorf("build insert: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return domain.Product{}, fmt.Errorf("insert product %s: %w", product.ExternalID, err)
	}
	return product, nil
}

// ListActive returns the current record of each listing, newest first.
func (r *PostgresProducts) ListActive(ctx context.Context, limit int) ([]domain.Product, error) {
	latest := psql.Select(productColumns...).
		Options("DISTINCT ON (external_id)").
		From("products").
		OrderBy("external_id", "discovered_at DESC")

	builder := psql.Select(productColumns...).
		FromSelect(latest, "latest").
		OrderBy("discovered_at DESC")
	if limit > 0 {
		builder = builder.Limit(uint64(limit))
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query products: %w", err)
	}

	var result []domain.Product
	for rows.Next() {
		product, err := scanProduct(rows)
		if err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("scan product: %w", err)
		}
		result = append(result, product)
	}

	if rowsErr := rows.Err(); rowsErr != nil {
		_ = rows.Close()
		return nil, fmt.Errorf("rows iteration: %w", rowsErr)
	}

	if closeErr := rows.Close(); closeErr != nil {
		return nil, fmt.Errorf("close rows: %w", closeErr)
	}

	return result, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(row rowScanner) (domain.Product, error) {
	var (
		p      domain.Product
		amount decimal.NullDecimal
	)
	err := row.Scan(
		&p.ID, &p.Source, &p.ExternalID, &p.Name, &p.Description,
		&amount, &p.Price.Currency, &p.Price.Raw,
		&p.SourceURL, &p.ImageURL, &p.Category, &p.Rating, &p.Trending, &p.DiscoveredAt,
	)
	if err != nil {
		return domain.Product{}, err
	}
	if amount.Valid {
		p.Price.Amount = amount.Decimal
		p.Price.Known = true
	}
	return p, nil
}
