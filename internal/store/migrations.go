package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

const versionTable = "lowcode_schema_version"

const createVersionTable = `CREATE TABLE IF NOT EXISTS ` + versionTable + ` (
	version INTEGER PRIMARY KEY,
	name TEXT NOT NULL,
	applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
)`

// migration is one versioned SQL script.
type migration struct {
	Version int
	Name    string
	SQL     string
}

// migrator is implemented by datasources that can apply migrations, each in
// its own transaction together with its version record.
type migrator interface {
	currentVersion(ctx context.Context) (int, error)
	apply(ctx context.Context, m migration) error
}

var migrationFile = regexp.MustCompile(`^(\d+)_([A-Za-z0-9_\-]+)\.sql$`)

// loadMigrations reads NNN_name.sql files from dir in version order. Other
// files are ignored; two files with the same version are an error.
func loadMigrations(dir string) ([]migration, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read migrations dir: %w", err)
	}

	var out []migration
	seen := map[int]string{}
	for _, e := range entries {
		match := migrationFile.FindStringSubmatch(e.Name())
		if e.IsDir() || match == nil {
			continue
		}
		version, _ := strconv.Atoi(match[1])
		if prev, dup := seen[version]; dup {
			return nil, fmt.Errorf("migration version %d used by %s and %s", version, prev, e.Name())
		}
		seen[version] = e.Name()

		raw, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("read migration %s: %w", e.Name(), err)
		}
		out = append(out, migration{Version: version, Name: match[2], SQL: string(raw)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out, nil
}

// Migrate applies every migration in dir newer than the recorded version.
func Migrate(ctx context.Context, m migrator, dir string) error {
	migrations, err := loadMigrations(dir)
	if err != nil {
		return err
	}
	current, err := m.currentVersion(ctx)
	if err != nil {
		return err
	}
	for _, mg := range migrations {
		if mg.Version <= current {
			continue
		}
		if err := m.apply(ctx, mg); err != nil {
			return fmt.Errorf("migration %d (%s): %w", mg.Version, mg.Name, err)
		}
	}
	return nil
}

// splitStatements splits a SQL script on semicolons, dropping chunks that
// hold only comments.
func splitStatements(script string) []string {
	var stmts []string
	for _, raw := range strings.Split(script, ";") {
		s := strings.TrimSpace(raw)
		if s == "" {
			continue
		}
		hasCode := false
		for _, l := range strings.Split(s, "\n") {
			l = strings.TrimSpace(l)
			if l != "" && !strings.HasPrefix(l, "--") {
				hasCode = true
				break
			}
		}
		if hasCode {
			stmts = append(stmts, s)
		}
	}
	return stmts
}
