package expressions

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/dominossauro/lowcode/pkg/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProgramCache_CompilesOncePerExpression(t *testing.T) {
	var compiles atomic.Int32
	c := newProgramCache(func(expression string) (string, error) {
		compiles.Add(1)
		return "compiled:" + expression, nil
	})

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p, err := c.get("a + b")
			assert.NoError(t, err)
			assert.Equal(t, "compiled:a + b", p)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), compiles.Load())
	assert.Equal(t, 1, c.len())
}

func TestProgramCache_FailuresAreNotCached(t *testing.T) {
	var compiles int
	c := newProgramCache(func(string) (int, error) {
		compiles++
		return 0, errors.New("syntax")
	})

	_, err := c.get("(")
	require.Error(t, err)
	_, err = c.get("(")
	require.Error(t, err)
	assert.Equal(t, 2, compiles)
	assert.Equal(t, 0, c.len())
}

func TestExpressionError(t *testing.T) {
	cause := errors.New("boom")
	err := expressionError(schema.ErrCodeExpression, "jq evaluation failed for", ".x", cause)

	var fe *schema.FlowError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, schema.ErrCodeExpression, fe.Code)
	assert.Equal(t, `jq evaluation failed for ".x": boom`, fe.Message)
	assert.Equal(t, ".x", fe.Details["expression"])
	assert.ErrorIs(t, err, cause)
}
