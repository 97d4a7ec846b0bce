package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dominossauro/lowcode/internal/nodes"
	"github.com/dominossauro/lowcode/pkg/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRun_FollowsEdgesToDeadEnd(t *testing.T) {
	step := &countingHandler{typ: "step", output: schema.OutputOut}
	c := newController(t, nil,
		n("a", "step", nil, "out", "b"),
		n("b", "step", nil, "out", "c"),
		n("c", "step", nil, "other", "a"),
	)
	exec := newExecution(c)

	require.NoError(t, NewInterpreter(newRegistry(t, step)).Run(context.Background(), exec, "a"))
	assert.Equal(t, []string{"a", "b", "c"}, step.visits())
}

func TestRun_MissingStartNodeHasNoSideEffects(t *testing.T) {
	step := &countingHandler{typ: "step", output: schema.OutputOut, data: func(nodes.Input) any { return 1 }}
	c := newController(t, nil, n("a", "step", nil))
	exec := newExecution(c)

	require.NoError(t, NewInterpreter(newRegistry(t, step)).Run(context.Background(), exec, "nope"))
	assert.Empty(t, step.visits())
	assert.Empty(t, exec.State.Outputs())
	assert.Empty(t, exec.State.Variables())
}

func TestRun_NeverVisitsANodeTwice(t *testing.T) {
	step := &countingHandler{typ: "step", output: schema.OutputOut}
	c := newController(t, nil,
		n("a", "step", nil, "out", "b"),
		n("b", "step", nil, "out", "c"),
		n("c", "step", nil, "out", "a"),
	)

	require.NoError(t, NewInterpreter(newRegistry(t, step)).Run(context.Background(), newExecution(c), "a"))
	assert.Equal(t, []string{"a", "b", "c"}, step.visits())
}

func TestRun_SelfLoopRunsOnce(t *testing.T) {
	step := &countingHandler{typ: "step", output: schema.OutputOut}
	c := newController(t, nil, n("a", "step", nil, "out", "a"))

	require.NoError(t, NewInterpreter(newRegistry(t, step)).Run(context.Background(), newExecution(c), "a"))
	assert.Equal(t, []string{"a"}, step.visits())
}

func TestRun_DanglingEdgeStops(t *testing.T) {
	step := &countingHandler{typ: "step", output: schema.OutputOut}
	c := newController(t, nil, n("a", "step", nil, "out", "ghost"))

	require.NoError(t, NewInterpreter(newRegistry(t, step)).Run(context.Background(), newExecution(c), "a"))
	assert.Equal(t, []string{"a"}, step.visits())
}

func TestRun_EmptyOutputIsDeadEnd(t *testing.T) {
	silent := &countingHandler{typ: "silent"}
	step := &countingHandler{typ: "step", output: schema.OutputOut}
	c := newController(t, nil,
		n("a", "silent", nil, "", "b", "out", "b"),
		n("b", "step", nil),
	)

	require.NoError(t, NewInterpreter(newRegistry(t, silent, step)).Run(context.Background(), newExecution(c), "a"))
	assert.Empty(t, step.visits())
}

func TestRun_RecordsOutcomeData(t *testing.T) {
	producer := &countingHandler{typ: "producer", output: "success", data: func(nodes.Input) any {
		return map[string]any{"user": map[string]any{"name": "Ana"}}
	}}
	nothing := &countingHandler{typ: "nothing", output: schema.OutputOut}
	c := newController(t, nil,
		n("p", "producer", nil, "success", "q"),
		n("q", "nothing", nil),
	)
	exec := newExecution(c)

	require.NoError(t, NewInterpreter(newRegistry(t, producer, nothing)).Run(context.Background(), exec, "p"))

	v, ok := exec.State.NodeOutput("p", "success")
	require.True(t, ok)
	assert.Equal(t, map[string]any{"user": map[string]any{"name": "Ana"}}, v)

	_, ok = exec.State.NodeOutputs("q")
	assert.False(t, ok, "nil data is not recorded")
}

func TestRun_ResolvesTemplatesPerStep(t *testing.T) {
	producer := &countingHandler{typ: "producer", output: schema.OutputOut, data: func(nodes.Input) any {
		return map[string]any{"name": "Ana"}
	}}
	consumer := &countingHandler{typ: "consumer", output: schema.OutputOut}
	c := newController(t, nil,
		n("p", "producer", nil, "out", "c"),
		n("c", "consumer", map[string]any{
			"greeting": "hi {{p.out.name}}",
			"missing":  "{{zzz.out.name}}",
		}),
	)

	require.NoError(t, NewInterpreter(newRegistry(t, producer, consumer)).Run(context.Background(), newExecution(c), "p"))

	require.Len(t, consumer.cfgs, 1)
	assert.Equal(t, "hi Ana", consumer.cfgs[0]["greeting"])
	assert.Equal(t, "{{zzz.out.name}}", consumer.cfgs[0]["missing"])

	stored, _ := c.Node("c")
	assert.Equal(t, "hi {{p.out.name}}", stored.Data["greeting"], "stored node is untouched")
}

func TestRun_UnknownTypeIsDeadEnd(t *testing.T) {
	step := &countingHandler{typ: "step", output: schema.OutputOut}
	c := newController(t, nil,
		n("a", "step", nil, "out", "b"),
		n("b", "doesNotExist", nil, "out", "c"),
		n("c", "step", nil),
	)
	obs := &recordingObserver{}

	err := NewInterpreter(newRegistry(t, step), WithObserver(obs)).Run(context.Background(), newExecution(c), "a")
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, step.visits())
	assert.Equal(t, []string{"step", "doesNotExist"}, obs.nodes)
}

func TestRun_TypeFallsBackToNodeType(t *testing.T) {
	step := &countingHandler{typ: "step", output: schema.OutputOut}
	c := newController(t, nil, schema.NodeDefinition{ID: "a", Type: "Step"})

	require.NoError(t, NewInterpreter(newRegistry(t, step)).Run(context.Background(), newExecution(c), "a"))
	assert.Equal(t, []string{"a"}, step.visits())
}

func TestRun_HandlerErrorPropagates(t *testing.T) {
	boom := errors.New("boom")
	bad := &countingHandler{typ: "bad", err: boom}
	step := &countingHandler{typ: "step", output: schema.OutputOut}
	c := newController(t, nil,
		n("a", "step", nil, "out", "b"),
		n("b", "bad", nil, "out", "c"),
		n("c", "step", nil),
	)

	err := NewInterpreter(newRegistry(t, bad, step)).Run(context.Background(), newExecution(c), "a")
	require.Error(t, err)

	var fe *schema.FlowError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, schema.ErrCodeHandlerFailed, fe.Code)
	assert.Equal(t, "b", fe.NodeID)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []string{"a"}, step.visits())
}

func TestRun_CancelledContext(t *testing.T) {
	step := &countingHandler{typ: "step", output: schema.OutputOut}
	c := newController(t, nil, n("a", "step", nil))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := NewInterpreter(newRegistry(t, step)).Run(ctx, newExecution(c), "a")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, step.visits())
}

func TestRun_NodeTimeout(t *testing.T) {
	slow := nodes.HandlerFunc{TypeTag: "slow", Fn: func(ctx context.Context, _ nodes.Input) (schema.Outcome, error) {
		select {
		case <-ctx.Done():
			return schema.Outcome{}, ctx.Err()
		case <-time.After(time.Second):
			return schema.Outcome{Output: schema.OutputOut}, nil
		}
	}}
	c := newController(t, nil, n("a", "slow", map[string]any{"timeout": "10ms"}))

	err := NewInterpreter(newRegistry(t, slow)).Run(context.Background(), newExecution(c), "a")
	require.Error(t, err)
	assert.Equal(t, schema.ErrCodeHandlerFailed, schema.Code(err))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRunSubflow(t *testing.T) {
	step := &countingHandler{typ: "step", output: schema.OutputOut}
	c := newController(t, nil,
		n("loop", "step", nil, "inLoop", "x"),
		n("x", "step", nil, "out", "y"),
		n("y", "step", nil),
	)
	interp := NewInterpreter(newRegistry(t, step))
	exec := newExecution(c)
	from, _ := c.Node("loop")

	require.NoError(t, interp.RunSubflow(context.Background(), exec, from, "inLoop"))
	require.NoError(t, interp.RunSubflow(context.Background(), exec, from, "inLoop"))
	require.NoError(t, interp.RunSubflow(context.Background(), exec, from, "unwired"))

	assert.Equal(t, []string{"x", "y", "x", "y"}, step.visits(), "each sub-traversal has its own visited set")
}

func TestLoop_EndToEnd(t *testing.T) {
	c := newController(t, nil,
		n("start", "variable", map[string]any{"variableName": "seen", "value": ""}, "out", "loop-1"),
		n("loop-1", "loop", map[string]any{"items": []any{"a", "b", "c"}},
			"inLoop", "body", "afterLoop", "done", "error", "failed"),
		n("body", "setVariableValue", map[string]any{
			"variableName": "last",
			"value":        "{{loop-1.currentItem.value}}",
		}),
		n("done", "variable", map[string]any{"variableName": "finished", "value": "{{loop-1.afterLoop.count}}"}),
		n("failed", "variable", map[string]any{"variableName": "finished", "value": "no"}),
	)
	exec := newExecution(c)

	require.NoError(t, NewInterpreter(newRegistry(t)).Run(context.Background(), exec, "start"))

	last, _ := exec.State.Variable("last")
	assert.Equal(t, "c", last)
	finished, _ := exec.State.Variable("finished")
	assert.Equal(t, "3", finished)

	after, ok := exec.State.NodeOutput("loop-1", "afterLoop")
	require.True(t, ok)
	assert.Equal(t, 3, after.(map[string]any)["count"])
}

func TestLoop_FailureOnSecondItem(t *testing.T) {
	fail := nodes.HandlerFunc{TypeTag: "failOnB", Fn: func(_ context.Context, in nodes.Input) (schema.Outcome, error) {
		item, _ := in.State.Variable("loopItem")
		if item == "b" {
			return schema.Outcome{}, errors.New("cannot process b")
		}
		in.State.SetVariable("processed-"+item.(string), true)
		return schema.Outcome{Output: schema.OutputOut}, nil
	}}
	c := newController(t, nil,
		n("loop-1", "loop", map[string]any{"items": []any{"a", "b", "c"}},
			"inLoop", "body", "error", "onError"),
		n("body", "failOnB", nil),
		n("onError", "variable", map[string]any{"variableName": "errIndex", "value": "{{loop-1.error.index}}"}),
	)
	exec := newExecution(c)

	require.NoError(t, NewInterpreter(newRegistry(t, fail)).Run(context.Background(), exec, "loop-1"))

	errData, ok := exec.State.NodeOutput("loop-1", "error")
	require.True(t, ok)
	assert.Equal(t, 1, errData.(map[string]any)["index"])
	assert.Contains(t, errData.(map[string]any)["error"], "cannot process b")

	idx, _ := exec.State.Variable("errIndex")
	assert.Equal(t, "1", idx)
	_, ok = exec.State.Variable("processed-a")
	assert.True(t, ok, "item a side effects are kept")
	_, ok = exec.State.Variable("processed-c")
	assert.False(t, ok)
}

func TestLoop_ReentryIsBounded(t *testing.T) {
	step := &countingHandler{typ: "step", output: schema.OutputOut}
	c := newController(t, nil,
		n("loop-1", "loop", map[string]any{"items": []any{"a", "b"}}, "inLoop", "body"),
		n("body", "step", nil, "out", "loop-1"),
	)
	exec := newExecution(c)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.NoError(t, NewInterpreter(newRegistry(t, step)).Run(ctx, exec, "loop-1"))

	assert.Len(t, step.visits(), MaxSubflowDepth, "one body visit per nesting level")

	errData, ok := exec.State.NodeOutput("loop-1", "error")
	require.True(t, ok)
	assert.Equal(t, "error in inLoop", errData.(map[string]any)["message"])
	assert.Equal(t, 1, errData.(map[string]any)["index"])
	assert.Contains(t, errData.(map[string]any)["error"], schema.ErrCodeHandlerFailed)
	assert.Contains(t, errData.(map[string]any)["error"], "nested deeper than 64")
}

func TestRunSubflow_DepthLimit(t *testing.T) {
	step := &countingHandler{typ: "step", output: schema.OutputOut}
	c := newController(t, nil,
		n("from", "step", nil, "inLoop", "x"),
		n("x", "step", nil),
	)
	interp := NewInterpreter(newRegistry(t, step))
	from, _ := c.Node("from")

	exec := newExecution(c)
	exec.depth = MaxSubflowDepth - 1
	require.NoError(t, interp.RunSubflow(context.Background(), exec, from, "inLoop"))
	assert.Equal(t, MaxSubflowDepth-1, exec.depth, "depth is restored after the sub-traversal")

	exec.depth = MaxSubflowDepth
	err := interp.RunSubflow(context.Background(), exec, from, "inLoop")
	require.Error(t, err)
	assert.Equal(t, schema.ErrCodeHandlerFailed, schema.Code(err))

	var fe *schema.FlowError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, "from", fe.NodeID)

	exec.depth = 0
	assert.Equal(t, err, interp.RunSubflow(context.Background(), exec, from, "inLoop"),
		"the execution stays tripped once the limit is hit")
	assert.Equal(t, []string{"x"}, step.visits())
}
