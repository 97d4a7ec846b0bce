package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PgDatasource runs queries on a PostgreSQL connection pool.
type PgDatasource struct {
	pool *pgxpool.Pool
}

// OpenPostgres creates a pool for dsn (a postgres:// URL or key=value string).
func OpenPostgres(ctx context.Context, dsn string, maxConns int) (*PgDatasource, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = int32(maxConns)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create postgres pool: %w", err)
	}
	return &PgDatasource{pool: pool}, nil
}

func (p *PgDatasource) Ping(ctx context.Context) error { return p.pool.Ping(ctx) }

func (p *PgDatasource) Close() error {
	p.pool.Close()
	return nil
}

// Query returns every row as a column-name keyed map.
func (p *PgDatasource) Query(ctx context.Context, query string, args ...any) ([]map[string]any, error) {
	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return collectRows(rows)
}

func collectRows(rows pgx.Rows) ([]map[string]any, error) {
	defer rows.Close()

	fields := rows.FieldDescriptions()
	out := []map[string]any{}
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, err
		}
		row := make(map[string]any, len(fields))
		for i, f := range fields {
			row[f.Name] = normalize(values[i])
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func (p *PgDatasource) currentVersion(ctx context.Context) (int, error) {
	if _, err := p.pool.Exec(ctx, createVersionTable); err != nil {
		return 0, fmt.Errorf("create %s: %w", versionTable, err)
	}
	var v int
	if err := p.pool.QueryRow(ctx, "SELECT COALESCE(MAX(version), 0) FROM "+versionTable).Scan(&v); err != nil {
		return 0, fmt.Errorf("read %s: %w", versionTable, err)
	}
	return v, nil
}

func (p *PgDatasource) apply(ctx context.Context, m migration) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for _, stmt := range splitStatements(m.SQL) {
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	if _, err := tx.Exec(ctx, "INSERT INTO "+versionTable+" (version, name) VALUES ($1, $2)", m.Version, m.Name); err != nil {
		return err
	}
	return tx.Commit(ctx)
}
