package scheduler

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dominossauro/lowcode/internal/graph"
	"github.com/dominossauro/lowcode/pkg/schema"
)

// fakeSource returns one controller per call, named after the call count.
type fakeSource struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (f *fakeSource) LoadControllers(string) ([]*graph.Controller, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	c, err := graph.NewController("users", &schema.FlowDocument{})
	if err != nil {
		return nil, err
	}
	return []*graph.Controller{c}, nil
}

func (f *fakeSource) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func writeFlow(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestNewReloader_InvalidSpec(t *testing.T) {
	_, err := NewReloader("not a cron", t.TempDir(), &fakeSource{}, graph.NewCatalog(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse reload schedule")
}

func TestReloader_ManualOnly(t *testing.T) {
	dir := t.TempDir()
	src := &fakeSource{}
	catalog := graph.NewCatalog()

	r, err := NewReloader("", dir, src, catalog, nil)
	require.NoError(t, err)
	require.NoError(t, r.Start(context.Background()))
	require.NoError(t, r.Stop())

	writeFlow(t, dir, "users.json", `{}`)
	changed, err := r.Reload(context.Background(), false)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, 1, src.count())
	assert.Equal(t, []string{"users"}, catalog.Names())
}

func TestParser_AcceptsDescriptors(t *testing.T) {
	for _, spec := range []string{"@every 30s", "@hourly", "*/5 * * * *"} {
		_, err := Parser.Parse(spec)
		assert.NoError(t, err, spec)
	}
}

func TestReload_SkipsUnchangedDirectory(t *testing.T) {
	dir := t.TempDir()
	writeFlow(t, dir, "users.json", `{}`)
	src := &fakeSource{}
	cat := graph.NewCatalog()

	r, err := NewReloader("@every 1m", dir, src, cat, nil)
	require.NoError(t, err)

	changed, err := r.Reload(context.Background(), false)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, 0, src.count())

	writeFlow(t, dir, "users.json", `{"nodes": []}`)
	changed, err = r.Reload(context.Background(), false)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, []string{"users"}, cat.Names())
	assert.Equal(t, int64(1), r.Reloads())

	changed, err = r.Reload(context.Background(), false)
	require.NoError(t, err)
	assert.False(t, changed)
}

func TestReload_IgnoresNonFlowFiles(t *testing.T) {
	dir := t.TempDir()
	writeFlow(t, dir, "users.json", `{}`)
	before, err := Fingerprint(dir)
	require.NoError(t, err)

	writeFlow(t, dir, "notes.txt", "hello")
	after, err := Fingerprint(dir)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestReload_Force(t *testing.T) {
	dir := t.TempDir()
	src := &fakeSource{}

	r, err := NewReloader("@every 1m", dir, src, graph.NewCatalog(), nil)
	require.NoError(t, err)

	changed, err := r.Reload(context.Background(), true)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, 1, src.count())
}

func TestReload_FailureKeepsCatalog(t *testing.T) {
	dir := t.TempDir()
	cat := graph.NewCatalog()
	keep, err := graph.NewController("orders", &schema.FlowDocument{})
	require.NoError(t, err)
	require.NoError(t, cat.Register(keep))

	src := &fakeSource{err: errors.New("broken flow")}
	r, err := NewReloader("@every 1m", dir, src, cat, nil)
	require.NoError(t, err)

	_, err = r.Reload(context.Background(), true)
	require.Error(t, err)
	assert.Equal(t, []string{"orders"}, cat.Names())
	assert.Equal(t, int64(0), r.Reloads())
}

func TestReload_MissingDirectory(t *testing.T) {
	r, err := NewReloader("@every 1m", filepath.Join(t.TempDir(), "gone"), &fakeSource{}, graph.NewCatalog(), nil)
	require.NoError(t, err)

	_, err = r.Reload(context.Background(), true)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestReload_CancelledContext(t *testing.T) {
	r, err := NewReloader("@every 1m", t.TempDir(), &fakeSource{}, graph.NewCatalog(), nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = r.Reload(ctx, true)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestReloader_StartStop(t *testing.T) {
	dir := t.TempDir()
	writeFlow(t, dir, "users.json", `{}`)
	src := &fakeSource{}

	r, err := NewReloader("@every 1h", dir, src, graph.NewCatalog(), nil)
	require.NoError(t, err)
	r.after = func(time.Duration) <-chan time.Time { return time.After(time.Millisecond) }

	require.NoError(t, r.Start(context.Background()))
	assert.Error(t, r.Start(context.Background()), "double start")

	writeFlow(t, dir, "users.json", `{"nodes": []}`)
	require.Eventually(t, func() bool { return r.Reloads() == 1 }, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, r.Stop())
	require.NoError(t, r.Stop(), "stop is idempotent")
	assert.Equal(t, 1, src.count())
}
