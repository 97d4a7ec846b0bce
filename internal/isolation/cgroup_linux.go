//go:build linux

package isolation

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/dominossauro/lowcode/internal/logging"
)

const (
	cgroupRoot     = "/sys/fs/cgroup"
	cgroupDir      = "lowcode"
	cpuPeriod      = 100000 // microseconds
	removeRetries  = 10
	removeInterval = 50 * time.Millisecond
)

// New returns a cgroup-backed Sandbox, or Unconfined when cgroups v2 cannot be
// used by this process.
func New(logger *slog.Logger) Sandbox {
	if logger == nil {
		logger = logging.Discard()
	}
	cg, err := NewCgroupSandbox(filepath.Join(cgroupRoot, cgroupDir), logger)
	if err != nil {
		logger.Warn("process limits disabled", "error", err)
		return Unconfined{}
	}
	return cg
}

// CgroupSandbox places each prepared command in a fresh child cgroup of base.
type CgroupSandbox struct {
	base   string
	caps   Caps
	logger *slog.Logger
}

// NewCgroupSandbox creates base under a cgroups v2 hierarchy and enables the
// memory and cpu controllers for its children.
func NewCgroupSandbox(base string, logger *slog.Logger) (*CgroupSandbox, error) {
	data, err := os.ReadFile(filepath.Join(filepath.Dir(base), "cgroup.controllers"))
	if err != nil {
		return nil, fmt.Errorf("cgroups v2 not available: %w", err)
	}
	controllers := parseControllers(string(data))

	if err := os.MkdirAll(base, 0o755); err != nil {
		return nil, fmt.Errorf("create cgroup %s: %w", base, err)
	}
	if err := enableControllers(base, controllers); err != nil {
		return nil, fmt.Errorf("enable cgroup controllers: %w", err)
	}
	return &CgroupSandbox{base: base, caps: capsFor(controllers), logger: logger}, nil
}

func (s *CgroupSandbox) Capabilities() Caps { return s.caps }

func (s *CgroupSandbox) Prepare(cmd *exec.Cmd, limits Limits) (func(), error) {
	path := filepath.Join(s.base, uuid.NewString())
	if err := os.Mkdir(path, 0o755); err != nil {
		return nil, fmt.Errorf("create cgroup: %w", err)
	}
	if err := s.writeLimits(path, limits); err != nil {
		s.remove(path)
		return nil, err
	}
	fd, err := syscall.Open(path, syscall.O_DIRECTORY|syscall.O_RDONLY, 0)
	if err != nil {
		s.remove(path)
		return nil, fmt.Errorf("open cgroup: %w", err)
	}

	attr := &syscall.SysProcAttr{UseCgroupFD: true, CgroupFD: fd}
	if !limits.AllowNetwork && s.caps.Network {
		attr.Cloneflags |= syscall.CLONE_NEWNET
	}
	cmd.SysProcAttr = attr

	var once sync.Once
	return func() {
		once.Do(func() {
			syscall.Close(fd)
			s.remove(path)
		})
	}, nil
}

func (s *CgroupSandbox) writeLimits(path string, limits Limits) error {
	if limits.MaxMemoryBytes > 0 && s.caps.Memory {
		if err := writeControl(path, "memory.max", strconv.FormatInt(limits.MaxMemoryBytes, 10)); err != nil {
			return fmt.Errorf("set memory.max: %w", err)
		}
		// Without this the ceiling only applies to RAM.
		_ = writeControl(path, "memory.swap.max", "0")
	}
	if limits.MaxCPUPercent > 0 && s.caps.CPU {
		if err := writeControl(path, "cpu.max", cpuMax(limits.MaxCPUPercent)); err != nil {
			return fmt.Errorf("set cpu.max: %w", err)
		}
	}
	return nil
}

// remove kills whatever is left in the cgroup and deletes it.
func (s *CgroupSandbox) remove(path string) {
	if err := writeControl(path, "cgroup.kill", "1"); err != nil {
		killProcs(path)
	}
	for range removeRetries {
		if err := os.Remove(path); err == nil {
			return
		}
		time.Sleep(removeInterval)
	}
	s.logger.Warn("cgroup left behind", "path", path)
}

func writeControl(path, file, value string) error {
	return os.WriteFile(filepath.Join(path, file), []byte(value), 0o644)
}

// cpuMax renders a percentage of one CPU in cpu.max "quota period" form.
func cpuMax(percent int) string {
	if percent <= 0 || percent > 100 {
		return fmt.Sprintf("max %d", cpuPeriod)
	}
	return fmt.Sprintf("%d %d", cpuPeriod*percent/100, cpuPeriod)
}

func killProcs(path string) {
	f, err := os.Open(filepath.Join(path, "cgroup.procs"))
	if err != nil {
		return
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		if pid, err := strconv.Atoi(strings.TrimSpace(sc.Text())); err == nil && pid > 0 {
			_ = syscall.Kill(pid, syscall.SIGKILL)
		}
	}
}

func parseControllers(data string) map[string]bool {
	m := make(map[string]bool)
	for _, c := range strings.Fields(data) {
		m[c] = true
	}
	return m
}

func capsFor(controllers map[string]bool) Caps {
	return Caps{
		Memory: controllers["memory"],
		CPU:    controllers["cpu"],
		// Network namespaces need no controller.
		Network: true,
	}
}

func enableControllers(base string, controllers map[string]bool) error {
	var enable []string
	for _, c := range []string{"memory", "cpu"} {
		if controllers[c] {
			enable = append(enable, "+"+c)
		}
	}
	if len(enable) == 0 {
		return nil
	}
	return writeControl(base, "cgroup.subtree_control", strings.Join(enable, " "))
}
