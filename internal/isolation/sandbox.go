// Package isolation confines external node processes. On Linux with cgroups
// v2 a process gets its own cgroup carrying memory and CPU ceilings, plus a
// private network namespace unless networking is allowed. Elsewhere commands
// run unconfined.
package isolation

import (
	"fmt"
	"os/exec"
)

// Limits are the per-process ceilings a plugin declares in its manifest entry.
type Limits struct {
	MaxMemoryBytes int64 `json:"max_memory_bytes,omitempty"`
	MaxCPUPercent  int   `json:"max_cpu_percent,omitempty"`
	AllowNetwork   bool  `json:"allow_network"`
}

// Validate rejects values no platform could honour.
func (l Limits) Validate() error {
	if l.MaxMemoryBytes < 0 {
		return fmt.Errorf("max_memory_bytes must not be negative")
	}
	if l.MaxCPUPercent < 0 || l.MaxCPUPercent > 100 {
		return fmt.Errorf("max_cpu_percent must be between 0 and 100")
	}
	return nil
}

// Caps reports what a Sandbox can enforce.
type Caps struct {
	Memory  bool `json:"memory"`
	CPU     bool `json:"cpu"`
	Network bool `json:"network"`
}

// Sandbox prepares a not yet started command so it runs under limits. The
// returned cleanup must be called once the command has exited, even when
// Start failed.
type Sandbox interface {
	Prepare(cmd *exec.Cmd, limits Limits) (cleanup func(), err error)
	Capabilities() Caps
}

// Unconfined runs commands as they are.
type Unconfined struct{}

func (Unconfined) Prepare(*exec.Cmd, Limits) (func(), error) { return func() {}, nil }

func (Unconfined) Capabilities() Caps { return Caps{} }
