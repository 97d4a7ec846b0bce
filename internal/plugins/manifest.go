// Package plugins discovers node handlers that live outside the binary. A
// manifest maps type tags to executables that speak JSON over stdin/stdout.
package plugins

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/dominossauro/lowcode/internal/isolation"
	"github.com/dominossauro/lowcode/internal/logging"
	"github.com/dominossauro/lowcode/internal/nodes"
	"github.com/dominossauro/lowcode/pkg/schema"
)

// Manifest is the on-disk plugin declaration:
//
//	{"nodes": {"sendEmail": {"command": "./bin/send-email", "timeout": "5s"}}}
type Manifest struct {
	Nodes map[string]NodeSpec `json:"nodes"`
}

// NodeSpec describes how to launch one external node type.
type NodeSpec struct {
	Command string            `json:"command"`
	Args    []string          `json:"args,omitempty"`
	Env     map[string]string `json:"env,omitempty"`
	Dir     string            `json:"dir,omitempty"`
	Timeout string            `json:"timeout,omitempty"`
	// Limits confines the process when the host supports it.
	Limits *isolation.Limits `json:"limits,omitempty"`
}

const defaultTimeout = 30 * time.Second

func (s NodeSpec) timeout() time.Duration {
	if d, err := time.ParseDuration(s.Timeout); err == nil && d > 0 {
		return d
	}
	return defaultTimeout
}

// LoadManifest reads and checks a manifest. Relative commands and working
// directories are resolved against the manifest's directory.
func LoadManifest(path string) (*Manifest, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read plugin manifest: %w", err)
	}
	var m Manifest
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeInvalidDocument, "invalid plugin manifest %s: %s", path, err.Error()).
			WithCause(err)
	}

	base := filepath.Dir(path)
	for tag, spec := range m.Nodes {
		if spec.Command == "" {
			return nil, schema.NewErrorf(schema.ErrCodeValidation, "plugin %q has no command", tag)
		}
		if spec.Timeout != "" {
			if _, err := time.ParseDuration(spec.Timeout); err != nil {
				return nil, schema.NewErrorf(schema.ErrCodeValidation, "plugin %q: invalid timeout %q", tag, spec.Timeout)
			}
		}
		if spec.Limits != nil {
			if err := spec.Limits.Validate(); err != nil {
				return nil, schema.NewErrorf(schema.ErrCodeValidation, "plugin %q: %s", tag, err.Error())
			}
		}
		if isRelativePath(spec.Command) {
			spec.Command = filepath.Join(base, spec.Command)
		}
		if spec.Dir != "" && !filepath.IsAbs(spec.Dir) {
			spec.Dir = filepath.Join(base, spec.Dir)
		}
		m.Nodes[tag] = spec
	}
	return &m, nil
}

// isRelativePath reports whether cmd is a relative path ("./x", "bin/x") as
// opposed to an absolute path or a bare name looked up in PATH.
func isRelativePath(cmd string) bool {
	return !filepath.IsAbs(cmd) && filepath.Base(cmd) != cmd
}

// ManifestDiscoverer resolves unknown type tags against a manifest file. The
// manifest is re-read on every lookup so new entries are picked up without a
// restart; the registry caches whatever is found.
type ManifestDiscoverer struct {
	path     string
	breakers *Breakers
	sandbox  isolation.Sandbox
	logger   *slog.Logger
}

// NewManifestDiscoverer creates a discoverer. breakers may be nil to disable
// circuit breaking.
func NewManifestDiscoverer(path string, breakers *Breakers, logger *slog.Logger) *ManifestDiscoverer {
	if logger == nil {
		logger = logging.Discard()
	}
	return &ManifestDiscoverer{path: path, breakers: breakers, logger: logger}
}

// WithSandbox confines discovered handlers whose spec declares limits.
func (d *ManifestDiscoverer) WithSandbox(s isolation.Sandbox) *ManifestDiscoverer {
	d.sandbox = s
	return d
}

// Discover returns an ExecHandler for typeTag, or (nil, nil) when neither the
// manifest nor the tag exists.
func (d *ManifestDiscoverer) Discover(ctx context.Context, typeTag string) (nodes.Handler, error) {
	if d.path == "" {
		return nil, nil
	}
	m, err := LoadManifest(d.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	want := nodes.CanonicalType(typeTag)
	for tag, spec := range m.Nodes {
		if nodes.CanonicalType(tag) != want {
			continue
		}
		d.logger.InfoContext(ctx, "external node type discovered", "type", want, "command", spec.Command)
		return NewExecHandler(want, spec, d.breakers, d.logger).WithSandbox(d.sandbox), nil
	}
	return nil, nil
}
