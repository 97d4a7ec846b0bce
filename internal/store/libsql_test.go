package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDB(t *testing.T) *SQLDatasource {
	t.Helper()
	ds, err := OpenLibSQL("file:"+filepath.Join(t.TempDir(), "test.db"), 1)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ds.Close() })
	return ds
}

func writeMigration(t *testing.T, dir, name, sql string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(sql), 0o644))
}

func TestSQLDatasource_Query(t *testing.T) {
	ds := newTestDB(t)
	ctx := context.Background()

	_, err := ds.DB().ExecContext(ctx, `CREATE TABLE users (id INTEGER PRIMARY KEY, name TEXT NOT NULL)`)
	require.NoError(t, err)
	_, err = ds.DB().ExecContext(ctx, `INSERT INTO users (name) VALUES (?), (?)`, "ana", "bruno")
	require.NoError(t, err)

	rows, err := ds.Query(ctx, `SELECT id, name FROM users ORDER BY id`)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.EqualValues(t, 1, rows[0]["id"])
	assert.Equal(t, "ana", rows[0]["name"])
	assert.Equal(t, "bruno", rows[1]["name"])

	rows, err = ds.Query(ctx, `SELECT id FROM users WHERE name = ?`, "nobody")
	require.NoError(t, err)
	assert.NotNil(t, rows)
	assert.Empty(t, rows)

	_, err = ds.Query(ctx, `SELECT * FROM missing_table`)
	assert.Error(t, err)
}

func TestMigrate(t *testing.T) {
	ds := newTestDB(t)
	ctx := context.Background()
	dir := t.TempDir()

	writeMigration(t, dir, "001_users.sql", `
		-- users table
		CREATE TABLE users (id INTEGER PRIMARY KEY, name TEXT);
		INSERT INTO users (name) VALUES ('seed');
	`)
	writeMigration(t, dir, "README.md", "ignored")
	require.NoError(t, Migrate(ctx, ds, dir))

	writeMigration(t, dir, "002_email.sql", `ALTER TABLE users ADD COLUMN email TEXT;`)
	require.NoError(t, Migrate(ctx, ds, dir))
	require.NoError(t, Migrate(ctx, ds, dir), "re-running applies nothing")

	rows, err := ds.Query(ctx, `SELECT name, email FROM users`)
	require.NoError(t, err)
	require.Len(t, rows, 1, "seed inserted once")
	assert.Equal(t, "seed", rows[0]["name"])

	v, err := ds.currentVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, v)
}

func TestMigrate_FailureRollsBack(t *testing.T) {
	ds := newTestDB(t)
	ctx := context.Background()
	dir := t.TempDir()
	writeMigration(t, dir, "001_bad.sql", `CREATE TABLE ok (id INTEGER); CREATE TABLE broken (;`)

	err := Migrate(ctx, ds, dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "migration 1 (bad)")

	v, err := ds.currentVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, v)
}

func TestLoadMigrations_DuplicateVersion(t *testing.T) {
	dir := t.TempDir()
	writeMigration(t, dir, "001_a.sql", "SELECT 1;")
	writeMigration(t, dir, "01_b.sql", "SELECT 1;")

	_, err := loadMigrations(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "version 1")
}

func TestSplitStatements(t *testing.T) {
	stmts := splitStatements("-- only a comment;\nCREATE TABLE a (id INT);\n\n  ;SELECT 1")
	assert.Equal(t, []string{"CREATE TABLE a (id INT)", "SELECT 1"}, stmts)
}

func TestOpen_LibSQLWithMigrations(t *testing.T) {
	dir := t.TempDir()
	migrations := filepath.Join(dir, "migrations")
	require.NoError(t, os.Mkdir(migrations, 0o755))
	writeMigration(t, migrations, "001_items.sql", `CREATE TABLE items (id INTEGER PRIMARY KEY, title TEXT); INSERT INTO items (title) VALUES ('first');`)

	m, err := Open(context.Background(), map[string]Config{
		"default": {Driver: "libsql", DSN: "file:" + filepath.Join(dir, "app.db"), Migrations: migrations},
	}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })

	rows, err := m.Query(context.Background(), "default", "SELECT title FROM items")
	require.NoError(t, err)
	assert.Equal(t, []map[string]any{{"title": "first"}}, rows)
}
