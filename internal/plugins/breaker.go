package plugins

import (
	"sync"
	"time"

	"github.com/dominossauro/lowcode/pkg/schema"
)

// CircuitState is the state of one node type's circuit breaker.
type CircuitState int

const (
	CircuitClosed CircuitState = iota
	CircuitOpen
	CircuitHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// BreakerConfig configures when an external node type stops being invoked.
type BreakerConfig struct {
	// FailureThreshold is the number of consecutive failures that opens the circuit.
	FailureThreshold int
	// Cooldown is how long an open circuit rejects calls before letting one through.
	Cooldown time.Duration
	// HalfOpenMax is the number of trial calls allowed while half-open.
	HalfOpenMax int
}

func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold: 5,
		Cooldown:         30 * time.Second,
		HalfOpenMax:      1,
	}
}

type breaker struct {
	mu                  sync.Mutex
	state               CircuitState
	consecutiveFailures int
	lastFailure         time.Time
	halfOpenAttempts    int
}

// Breakers tracks one circuit per external node type, so a crashing
// executable fails fast instead of being spawned on every request.
type Breakers struct {
	mu       sync.Mutex
	breakers map[string]*breaker
	config   BreakerConfig
	now      func() time.Time
}

func NewBreakers(config BreakerConfig) *Breakers {
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = 1
	}
	if config.HalfOpenMax <= 0 {
		config.HalfOpenMax = 1
	}
	return &Breakers{
		breakers: make(map[string]*breaker),
		config:   config,
		now:      time.Now,
	}
}

// Allow returns nil when a call to typeTag may proceed, or a CIRCUIT_OPEN error.
func (r *Breakers) Allow(typeTag string) error {
	b := r.get(typeTag)
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case CircuitOpen:
		if r.now().Sub(b.lastFailure) >= r.config.Cooldown {
			b.state = CircuitHalfOpen
			b.halfOpenAttempts = 1
			return nil
		}
		return schema.NewErrorf(schema.ErrCodeCircuitOpen,
			"node type %q disabled after %d consecutive failures", typeTag, b.consecutiveFailures).
			WithDetails(map[string]any{
				"type":                 typeTag,
				"consecutive_failures": b.consecutiveFailures,
				"cooldown_remaining":   (r.config.Cooldown - r.now().Sub(b.lastFailure)).String(),
			})
	case CircuitHalfOpen:
		if b.halfOpenAttempts >= r.config.HalfOpenMax {
			return schema.NewErrorf(schema.ErrCodeCircuitOpen,
				"node type %q is recovering, trial call in progress", typeTag)
		}
		b.halfOpenAttempts++
	}
	return nil
}

func (r *Breakers) RecordSuccess(typeTag string) {
	b := r.get(typeTag)
	b.mu.Lock()
	defer b.mu.Unlock()
	b.consecutiveFailures = 0
	b.halfOpenAttempts = 0
	b.state = CircuitClosed
}

// RecordFailure counts a failed call and returns the resulting state. Any
// failure while half-open reopens the circuit.
func (r *Breakers) RecordFailure(typeTag string) CircuitState {
	b := r.get(typeTag)
	b.mu.Lock()
	defer b.mu.Unlock()

	b.consecutiveFailures++
	b.lastFailure = r.now()
	if b.state == CircuitHalfOpen || b.consecutiveFailures >= r.config.FailureThreshold {
		b.state = CircuitOpen
	}
	return b.state
}

func (r *Breakers) State(typeTag string) CircuitState {
	b := r.get(typeTag)
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (r *Breakers) get(typeTag string) *breaker {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.breakers[typeTag]
	if !ok {
		b = &breaker{}
		r.breakers[typeTag] = b
	}
	return b
}
