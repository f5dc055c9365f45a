package pricegrid

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Schema is the SQL DDL for the default price_grid table. Execute it via
// [PostgresSource.Migrate] or apply it manually during deployment.
const Schema = `
CREATE TABLE IF NOT EXISTS %s (
    product_family          TEXT NOT NULL DEFAULT '',
    product_model           TEXT NOT NULL,
    variant                 TEXT NOT NULL DEFAULT '',
    condition               TEXT NOT NULL,
    trade_in_value_min_sgd  NUMERIC(12,2),
    trade_in_value_max_sgd  NUMERIC(12,2),
    brand_new_price_sgd     NUMERIC(12,2),
    source                  TEXT NOT NULL DEFAULT '',
    confidence              DOUBLE PRECISION NOT NULL DEFAULT 0,
    notes                   TEXT NOT NULL DEFAULT '',
    PRIMARY KEY (product_model, variant, condition)
);
`

// DB is the database interface used by [PostgresSource]. Both *pgxpool.Pool
// and *pgx.Conn satisfy this interface.
type DB interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresSource reads and writes grid rows in a PostgreSQL table.
type PostgresSource struct {
	db    DB
	table string
}

// NewPostgresSource returns a [PostgresSource] over table. An empty table name
// selects "price_grid".
func NewPostgresSource(db DB, table string) *PostgresSource {
	if table == "" {
		table = "price_grid"
	}
	return &PostgresSource{db: db, table: pgx.Identifier{table}.Sanitize()}
}

// OpenPostgres creates a connection pool to dsn, verifies it with a ping and
// runs [PostgresSource.Migrate]. The caller owns the returned pool and must
// close it.
func OpenPostgres(ctx context.Context, dsn, table string) (*PostgresSource, *pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("pricegrid: parse dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("pricegrid: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("pricegrid: ping: %w", err)
	}
	src := NewPostgresSource(pool, table)
	if err := src.Migrate(ctx); err != nil {
		pool.Close()
		return nil, nil, err
	}
	return src, pool, nil
}

// Migrate creates the grid table if it does not exist.
func (s *PostgresSource) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, fmt.Sprintf(Schema, s.table)); err != nil {
		return fmt.Errorf("pricegrid: migrate: %w", err)
	}
	return nil
}

// Entries returns every row ordered by family, model, variant and condition.
func (s *PostgresSource) Entries(ctx context.Context) ([]Entry, error) {
	query := `
		SELECT product_family, product_model, variant, condition,
		       trade_in_value_min_sgd::float8, trade_in_value_max_sgd::float8, brand_new_price_sgd::float8,
		       source, confidence, notes
		FROM ` + s.table + `
		ORDER BY product_family, product_model, variant, condition`

	rows, err := s.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("pricegrid: query: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(
			&e.ProductFamily, &e.ProductModel, &e.Variant, &e.Condition,
			&e.TradeInMin, &e.TradeInMax, &e.BrandNewPrice,
			&e.Source, &e.Confidence, &e.Notes,
		); err != nil {
			return nil, fmt.Errorf("pricegrid: scan: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("pricegrid: rows: %w", err)
	}
	return entries, nil
}

// Load reads every row and indexes it as a [Grid].
func (s *PostgresSource) Load(ctx context.Context, version string) (*Grid, error) {
	entries, err := s.Entries(ctx)
	if err != nil {
		return nil, err
	}
	return New(entries, version)
}

// Upsert writes entries, replacing rows with the same identity tuple. It
// returns the number of rows written.
func (s *PostgresSource) Upsert(ctx context.Context, entries []Entry) (int, error) {
	query := `
		INSERT INTO ` + s.table + ` (
			product_family, product_model, variant, condition,
			trade_in_value_min_sgd, trade_in_value_max_sgd, brand_new_price_sgd,
			source, confidence, notes
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		ON CONFLICT (product_model, variant, condition) DO UPDATE SET
			product_family         = EXCLUDED.product_family,
			trade_in_value_min_sgd = EXCLUDED.trade_in_value_min_sgd,
			trade_in_value_max_sgd = EXCLUDED.trade_in_value_max_sgd,
			brand_new_price_sgd    = EXCLUDED.brand_new_price_sgd,
			source                 = EXCLUDED.source,
			confidence             = EXCLUDED.confidence,
			notes                  = EXCLUDED.notes`

	n := 0
	for _, e := range entries {
		if _, err := s.db.Exec(ctx, query,
			e.ProductFamily, e.ProductModel, e.Variant, e.Condition,
			e.TradeInMin, e.TradeInMax, e.BrandNewPrice,
			e.Source, e.Confidence, e.Notes,
		); err != nil {
			return n, fmt.Errorf("pricegrid: upsert %s / %s / %s: %w", e.ProductModel, e.Variant, e.Condition, err)
		}
		n++
	}
	return n, nil
}
