package store

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"
)

// RetryPolicy controls how long Open waits for a datasource to come up.
type RetryPolicy struct {
	Attempts int
	Delay    time.Duration
	MaxDelay time.Duration
}

// DefaultRetry waits roughly 15s in total before giving up.
var DefaultRetry = RetryPolicy{Attempts: 5, Delay: 500 * time.Millisecond, MaxDelay: 8 * time.Second}

// Backoff returns the delay before retry number attempt (0-based): the base
// delay doubled per attempt, capped at MaxDelay.
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	delay := p.Delay
	for i := 0; i < attempt; i++ {
		delay *= 2
		if p.MaxDelay > 0 && delay >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	return delay
}

// IsTransient reports whether a connection error is worth retrying: network
// failures and timeouts, but not a cancelled context or bad credentials.
func IsTransient(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, p := range []string{
		"connection refused",
		"connection reset",
		"broken pipe",
		"i/o timeout",
		"no such host",
		"database is locked",
		"the database system is starting up",
		"too many connections",
	} {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}

// PingWithRetry pings ds until it answers, a non-transient error occurs or the
// policy is exhausted. Only opening a datasource is retried; queries never are.
func PingWithRetry(ctx context.Context, ds Datasource, p RetryPolicy) error {
	attempts := p.Attempts
	if attempts <= 0 {
		attempts = 1
	}
	var err error
	for attempt := 0; attempt < attempts; attempt++ {
		if err = ds.Ping(ctx); err == nil {
			return nil
		}
		if !IsTransient(err) || attempt == attempts-1 {
			break
		}
		select {
		case <-time.After(p.Backoff(attempt)):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return fmt.Errorf("ping: %w", err)
}
