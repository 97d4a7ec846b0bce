//go:build !linux

package isolation

import "log/slog"

// New returns Unconfined: only Linux can confine processes.
func New(logger *slog.Logger) Sandbox {
	if logger != nil {
		logger.Warn("process limits are not enforced on this platform")
	}
	return Unconfined{}
}
