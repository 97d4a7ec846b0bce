// Package store opens the SQL datasources the query node runs against.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/dominossauro/lowcode/internal/logging"
	"github.com/dominossauro/lowcode/pkg/schema"
)

// Supported drivers.
const (
	DriverLibSQL   = "libsql"
	DriverPostgres = "postgres"
)

// Config describes one named datasource.
type Config struct {
	Driver string `json:"driver"`
	DSN    string `json:"dsn"`
	// Migrations is an optional directory of NNN_name.sql files applied in
	// version order when the datasource is opened.
	Migrations   string `json:"migrations,omitempty"`
	MaxOpenConns int    `json:"max_open_conns,omitempty"`
}

// Datasource runs queries against one database. Implementations must be safe
// for concurrent use.
type Datasource interface {
	Query(ctx context.Context, query string, args ...any) ([]map[string]any, error)
	Ping(ctx context.Context) error
	Close() error
}

// Manager routes queries to named datasources. It satisfies nodes.Querier.
type Manager struct {
	sources map[string]Datasource
	logger  *slog.Logger
}

// NewManager wraps already opened datasources.
func NewManager(sources map[string]Datasource, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = logging.Discard()
	}
	if sources == nil {
		sources = map[string]Datasource{}
	}
	return &Manager{sources: sources, logger: logger}
}

// Open connects every configured datasource, waits for it to answer a ping
// and applies its migrations. On any failure the ones already opened are closed.
func Open(ctx context.Context, cfgs map[string]Config, logger *slog.Logger) (*Manager, error) {
	m := NewManager(nil, logger)

	names := make([]string, 0, len(cfgs))
	for name := range cfgs {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		ds, err := openOne(ctx, name, cfgs[name])
		if err != nil {
			_ = m.Close()
			return nil, err
		}
		m.sources[name] = ds
		m.logger.Info("datasource ready", "datasource", name, "driver", cfgs[name].Driver)
	}
	return m, nil
}

func openOne(ctx context.Context, name string, cfg Config) (Datasource, error) {
	var (
		ds  Datasource
		err error
	)
	switch strings.ToLower(cfg.Driver) {
	case DriverLibSQL, "sqlite":
		ds, err = OpenLibSQL(cfg.DSN, cfg.MaxOpenConns)
	case DriverPostgres, "pgx", "postgresql":
		ds, err = OpenPostgres(ctx, cfg.DSN, cfg.MaxOpenConns)
	default:
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "datasource %q: unsupported driver %q", name, cfg.Driver)
	}
	if err != nil {
		return nil, fmt.Errorf("datasource %q: %w", name, err)
	}

	if err := PingWithRetry(ctx, ds, DefaultRetry); err != nil {
		_ = ds.Close()
		return nil, fmt.Errorf("datasource %q: %w", name, err)
	}

	if cfg.Migrations != "" {
		mg, ok := ds.(migrator)
		if !ok {
			_ = ds.Close()
			return nil, fmt.Errorf("datasource %q: driver %s does not support migrations", name, cfg.Driver)
		}
		if err := Migrate(ctx, mg, cfg.Migrations); err != nil {
			_ = ds.Close()
			return nil, fmt.Errorf("datasource %q: %w", name, err)
		}
	}
	return ds, nil
}

// Query runs query on the named datasource. Failures are STORE_ERROR.
func (m *Manager) Query(ctx context.Context, datasource, query string, args ...any) ([]map[string]any, error) {
	ds, ok := m.sources[datasource]
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeStore, "unknown datasource %q", datasource)
	}
	rows, err := ds.Query(ctx, query, args...)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeStore, "datasource %q: %s", datasource, err.Error()).WithCause(err)
	}
	return rows, nil
}

// Names returns the configured datasource names, sorted.
func (m *Manager) Names() []string {
	names := make([]string, 0, len(m.sources))
	for n := range m.sources {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Close closes every datasource.
func (m *Manager) Close() error {
	var errs []error
	for name, ds := range m.sources {
		if err := ds.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close datasource %q: %w", name, err))
		}
	}
	return errors.Join(errs...)
}
