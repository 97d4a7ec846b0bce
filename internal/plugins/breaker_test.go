package plugins

import (
	"testing"
	"time"

	"github.com/dominossauro/lowcode/pkg/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBreakers(threshold int, cooldown time.Duration) (*Breakers, *time.Time) {
	now := time.Unix(1_700_000_000, 0)
	b := NewBreakers(BreakerConfig{FailureThreshold: threshold, Cooldown: cooldown, HalfOpenMax: 1})
	b.now = func() time.Time { return now }
	return b, &now
}

func TestBreakers_OpensAfterThreshold(t *testing.T) {
	b, _ := newTestBreakers(3, time.Minute)

	assert.Equal(t, CircuitClosed, b.RecordFailure("mail"))
	assert.Equal(t, CircuitClosed, b.RecordFailure("mail"))
	require.NoError(t, b.Allow("mail"))
	assert.Equal(t, CircuitOpen, b.RecordFailure("mail"))

	err := b.Allow("mail")
	require.Error(t, err)
	assert.Equal(t, schema.ErrCodeCircuitOpen, schema.Code(err))

	assert.NoError(t, b.Allow("other"), "circuits are per type")
}

func TestBreakers_SuccessResets(t *testing.T) {
	b, _ := newTestBreakers(2, time.Minute)

	b.RecordFailure("mail")
	b.RecordSuccess("mail")
	assert.Equal(t, CircuitClosed, b.RecordFailure("mail"))
}

func TestBreakers_HalfOpenAfterCooldown(t *testing.T) {
	b, now := newTestBreakers(1, time.Minute)

	b.RecordFailure("mail")
	require.Error(t, b.Allow("mail"))

	*now = now.Add(time.Minute)
	require.NoError(t, b.Allow("mail"), "first trial call passes")
	assert.Equal(t, CircuitHalfOpen, b.State("mail"))
	assert.Error(t, b.Allow("mail"), "only one trial call at a time")

	assert.Equal(t, CircuitOpen, b.RecordFailure("mail"), "failed trial reopens")

	*now = now.Add(time.Minute)
	require.NoError(t, b.Allow("mail"))
	b.RecordSuccess("mail")
	assert.Equal(t, CircuitClosed, b.State("mail"))
}

func TestCircuitState_String(t *testing.T) {
	assert.Equal(t, "closed", CircuitClosed.String())
	assert.Equal(t, "open", CircuitOpen.String())
	assert.Equal(t, "half_open", CircuitHalfOpen.String())
	assert.Equal(t, "unknown", CircuitState(9).String())
}
