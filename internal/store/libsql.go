package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/tursodatabase/go-libsql"
)

// SQLDatasource is a database/sql backed datasource using the libSQL driver
// (embedded SQLite files or remote libsql:// URLs).
type SQLDatasource struct {
	db *sql.DB
}

// OpenLibSQL opens dsn, e.g. "file:/var/lib/app/data.db".
func OpenLibSQL(dsn string, maxOpen int) (*SQLDatasource, error) {
	db, err := sql.Open("libsql", dsn)
	if err != nil {
		return nil, fmt.Errorf("open libsql: %w", err)
	}
	if maxOpen <= 0 {
		maxOpen = 1
	}
	db.SetMaxOpenConns(maxOpen)

	// Some PRAGMAs return rows, so QueryRow is used and the result ignored.
	for _, p := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	} {
		var result string
		_ = db.QueryRow(p).Scan(&result)
	}
	return &SQLDatasource{db: db}, nil
}

func (s *SQLDatasource) DB() *sql.DB { return s.db }

func (s *SQLDatasource) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *SQLDatasource) Close() error { return s.db.Close() }

// Query returns every row as a column-name keyed map. Text stored as bytes is
// returned as string.
func (s *SQLDatasource) Query(ctx context.Context, query string, args ...any) ([]map[string]any, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	out := []map[string]any{}
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		row := make(map[string]any, len(cols))
		for i, c := range cols {
			row[c] = normalize(values[i])
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func (s *SQLDatasource) currentVersion(ctx context.Context) (int, error) {
	if _, err := s.db.ExecContext(ctx, createVersionTable); err != nil {
		return 0, fmt.Errorf("create %s: %w", versionTable, err)
	}
	var v int
	if err := s.db.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM "+versionTable).Scan(&v); err != nil {
		return 0, fmt.Errorf("read %s: %w", versionTable, err)
	}
	return v, nil
}

func (s *SQLDatasource) apply(ctx context.Context, m migration) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	for _, stmt := range splitStatements(m.SQL) {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	if _, err := tx.ExecContext(ctx, "INSERT INTO "+versionTable+" (version, name) VALUES (?, ?)", m.Version, m.Name); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func normalize(v any) any {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}
