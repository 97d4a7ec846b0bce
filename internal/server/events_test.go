package server

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dominossauro/lowcode/internal/engine"
	"github.com/dominossauro/lowcode/internal/graph"
	"github.com/dominossauro/lowcode/internal/nodes"
	"github.com/dominossauro/lowcode/internal/streaming"
	"github.com/dominossauro/lowcode/pkg/schema"
)

func TestEventStream(t *testing.T) {
	doc, err := schema.ParseDocument([]byte(usersDoc))
	require.NoError(t, err)
	ctrl, err := graph.NewController("users", doc)
	require.NoError(t, err)
	catalog := graph.NewCatalog()
	require.NoError(t, catalog.Register(ctrl))
	reg := nodes.NewRegistry(nil)
	require.NoError(t, nodes.RegisterBuiltins(reg, nodes.BuiltinConfig{}))

	hub := streaming.NewHub()
	exec := engine.NewExecutor(catalog, engine.NewInterpreter(reg, engine.WithObserver(hub)),
		engine.ExecutorConfig{Observer: hub})
	ts := httptest.NewServer(New(Deps{Executor: exec, Events: hub}).Handler())
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/_lowcode/events?controller=users&kind=request", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	require.Eventually(t, func() bool { return hub.Subscribers() == 1 }, time.Second, 10*time.Millisecond)

	flow, err := http.Get(ts.URL + "/users/7")
	require.NoError(t, err)
	flow.Body.Close()

	sc := bufio.NewScanner(resp.Body)
	var lines []string
	for sc.Scan() {
		line := sc.Text()
		if line == "" && len(lines) > 0 {
			break
		}
		if line != "" {
			lines = append(lines, line)
		}
	}
	require.Len(t, lines, 2, strings.Join(lines, "\n"))
	assert.Equal(t, "event: request", lines[0])
	assert.Contains(t, lines[1], `"controller":"users"`)
	assert.Contains(t, lines[1], `"status":200`)
}

func TestEventStreamNotMountedWithoutHub(t *testing.T) {
	rec := do(t, newTestServer(t, false).Handler(), http.MethodGet, "/_lowcode/events", "", "")
	// Falls through to flow dispatch, which knows no "_lowcode" controller.
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
