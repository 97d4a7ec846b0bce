package plugins

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"sort"
	"strings"
	"time"

	"github.com/dominossauro/lowcode/internal/isolation"
	"github.com/dominossauro/lowcode/internal/logging"
	"github.com/dominossauro/lowcode/internal/nodes"
	"github.com/dominossauro/lowcode/pkg/schema"
)

const (
	maxStderr = 4 << 10
	// waitDelay bounds how long Run waits for orphaned children holding the
	// output pipes after the process itself was killed.
	waitDelay = 2 * time.Second
)

// Request is written as one JSON line to the executable's stdin.
type Request struct {
	Node      NodeRef                   `json:"node"`
	Variables map[string]any            `json:"variables"`
	Outputs   map[string]map[string]any `json:"outputs"`
	Request   map[string]any            `json:"request"`
}

// NodeRef is the node being executed, with its data already resolved.
type NodeRef struct {
	ID   string         `json:"id"`
	Type string         `json:"type"`
	Data map[string]any `json:"data"`
}

// Reply is read from the executable's stdout. A missing output means "out";
// an explicit empty string or an empty stdout ends the flow. Variables are merged into the
// execution context. A non-empty error fails the node.
type Reply struct {
	Output    *string        `json:"output"`
	Data      any            `json:"data,omitempty"`
	Variables map[string]any `json:"variables,omitempty"`
	Error     string         `json:"error,omitempty"`
}

// ExecHandler runs an external executable once per node execution.
type ExecHandler struct {
	typeTag  string
	spec     NodeSpec
	breakers *Breakers
	sandbox  isolation.Sandbox
	logger   *slog.Logger
}

// NewExecHandler creates a handler for spec. breakers and logger may be nil.
func NewExecHandler(typeTag string, spec NodeSpec, breakers *Breakers, logger *slog.Logger) *ExecHandler {
	if logger == nil {
		logger = logging.Discard()
	}
	return &ExecHandler{typeTag: typeTag, spec: spec, breakers: breakers, logger: logger}
}

// WithSandbox sets the sandbox used when the manifest entry declares limits. A nil
// sandbox runs the command unconfined.
func (h *ExecHandler) WithSandbox(s isolation.Sandbox) *ExecHandler {
	h.sandbox = s
	return h
}

func (h *ExecHandler) Type() string { return h.typeTag }

func (h *ExecHandler) Execute(ctx context.Context, in nodes.Input) (schema.Outcome, error) {
	if h.breakers != nil {
		if err := h.breakers.Allow(h.typeTag); err != nil {
			return schema.Outcome{}, err
		}
	}

	reply, err := h.call(ctx, in)
	if err != nil {
		// The caller going away says nothing about the plugin's health.
		if ctx.Err() != nil {
			return schema.Outcome{}, ctx.Err()
		}
		if h.breakers != nil {
			if state := h.breakers.RecordFailure(h.typeTag); state == CircuitOpen {
				h.logger.WarnContext(ctx, "external node circuit open", "type", h.typeTag)
			}
		}
		return schema.Outcome{}, err
	}
	if h.breakers != nil {
		h.breakers.RecordSuccess(h.typeTag)
	}

	if reply.Error != "" {
		return schema.Outcome{}, fmt.Errorf("%s: %s", h.typeTag, reply.Error)
	}

	names := make([]string, 0, len(reply.Variables))
	for name := range reply.Variables {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		in.State.SetVariable(name, reply.Variables[name])
	}

	output := schema.OutputOut
	if reply.Output != nil {
		output = schema.OutputKey(*reply.Output)
	}
	return schema.Outcome{Output: output, Data: reply.Data}, nil
}

func (h *ExecHandler) call(ctx context.Context, in nodes.Input) (*Reply, error) {
	payload, err := json.Marshal(Request{
		Node:      NodeRef{ID: in.Node.ID, Type: h.typeTag, Data: in.Node.Data},
		Variables: in.State.Variables(),
		Outputs:   in.State.Outputs(),
		Request:   in.State.Request().AsMap(),
	})
	if err != nil {
		return nil, fmt.Errorf("encode %s request: %w", h.typeTag, err)
	}
	payload = append(payload, '\n')

	ctx, cancel := context.WithTimeout(ctx, h.spec.timeout())
	defer cancel()

	cmd := exec.CommandContext(ctx, h.spec.Command, h.spec.Args...)
	cmd.Dir = h.spec.Dir
	cmd.WaitDelay = waitDelay
	cmd.Env = os.Environ()
	for k, v := range h.spec.Env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdin = bytes.NewReader(payload)
	cmd.Stdout = &stdout
	cmd.Stderr = &limitedWriter{buf: &stderr, max: maxStderr}

	if h.spec.Limits != nil && h.sandbox != nil {
		cleanup, err := h.sandbox.Prepare(cmd, *h.spec.Limits)
		if err != nil {
			return nil, fmt.Errorf("confine %s: %w", h.typeTag, err)
		}
		defer cleanup()
	}

	if err := cmd.Run(); err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%s timed out after %s: %w", h.typeTag, h.spec.timeout(), ctx.Err())
		}
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			return nil, fmt.Errorf("run %s: %w: %s", h.typeTag, err, msg)
		}
		return nil, fmt.Errorf("run %s: %w", h.typeTag, err)
	}

	raw := bytes.TrimSpace(stdout.Bytes())
	if len(raw) == 0 {
		end := ""
		return &Reply{Output: &end}, nil
	}
	var reply Reply
	if err := json.Unmarshal(raw, &reply); err != nil {
		return nil, fmt.Errorf("decode %s reply: %w", h.typeTag, err)
	}
	return &reply, nil
}

// limitedWriter keeps the first max bytes and silently drops the rest.
type limitedWriter struct {
	buf *bytes.Buffer
	max int
}

func (w *limitedWriter) Write(p []byte) (int, error) {
	if room := w.max - w.buf.Len(); room > 0 {
		if len(p) > room {
			w.buf.Write(p[:room])
		} else {
			w.buf.Write(p)
		}
	}
	return len(p), nil
}
