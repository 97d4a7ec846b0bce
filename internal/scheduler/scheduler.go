// Package scheduler re-reads the flows directory on a cron schedule and swaps
// the served controllers when the files changed.
package scheduler

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/dominossauro/lowcode/internal/graph"
	"github.com/dominossauro/lowcode/internal/loader"
	"github.com/dominossauro/lowcode/internal/logging"
)

// ControllerSource builds controllers from a directory. Satisfied by *loader.Loader.
type ControllerSource interface {
	LoadControllers(dir string) ([]*graph.Controller, error)
}

// Parser accepts standard five-field specs plus descriptors such as
// "@every 30s" and "@hourly".
var Parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Reloader keeps a catalog in sync with a flows directory. A failed load keeps
// the previous controllers serving.
type Reloader struct {
	dir      string
	source   ControllerSource
	catalog  *graph.Catalog
	schedule cron.Schedule
	logger   *slog.Logger

	now   func() time.Time
	after func(time.Duration) <-chan time.Time

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}

	reloading   atomic.Bool
	fingerprint string
	reloads     atomic.Int64
}

// NewReloader parses spec and records the directory's current state, so the
// first tick only reloads if something changed since the catalog was built.
// An empty spec gives a reloader that only reloads when Reload is called.
func NewReloader(spec, dir string, source ControllerSource, catalog *graph.Catalog, logger *slog.Logger) (*Reloader, error) {
	var schedule cron.Schedule
	if spec != "" {
		var err error
		if schedule, err = Parser.Parse(spec); err != nil {
			return nil, fmt.Errorf("parse reload schedule %q: %w", spec, err)
		}
	}
	if logger == nil {
		logger = logging.Discard()
	}
	r := &Reloader{
		dir:      dir,
		source:   source,
		catalog:  catalog,
		schedule: schedule,
		logger:   logger,
		now:      time.Now,
		after:    time.After,
	}
	r.fingerprint, _ = Fingerprint(dir)
	return r, nil
}

// Start launches the background loop. It is a no-op without a schedule.
func (r *Reloader) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.schedule == nil {
		return nil
	}
	if r.done != nil {
		return fmt.Errorf("reloader already started")
	}

	loopCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.done = make(chan struct{})
	go r.loop(loopCtx, r.done)

	r.logger.Info("flow reloader started", "dir", r.dir, "next", r.schedule.Next(r.now()))
	return nil
}

func (r *Reloader) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	for {
		now := r.now()
		wait := r.schedule.Next(now).Sub(now)
		select {
		case <-ctx.Done():
			return
		case <-r.after(wait):
			if _, err := r.Reload(ctx, false); err != nil {
				r.logger.Error("flow reload failed, keeping previous controllers", "dir", r.dir, "error", err)
			}
		}
	}
}

// Reload re-reads the directory. Unless force is set it does nothing when the
// directory fingerprint is unchanged. Overlapping calls return immediately.
// The bool reports whether the catalog was replaced.
func (r *Reloader) Reload(ctx context.Context, force bool) (bool, error) {
	if !r.reloading.CompareAndSwap(false, true) {
		return false, nil
	}
	defer r.reloading.Store(false)

	if err := ctx.Err(); err != nil {
		return false, err
	}

	fp, err := Fingerprint(r.dir)
	if err != nil {
		return false, err
	}
	if !force && fp == r.fingerprint {
		return false, nil
	}

	ctrls, err := r.source.LoadControllers(r.dir)
	if err != nil {
		return false, err
	}
	if err := r.catalog.Replace(ctrls); err != nil {
		return false, err
	}
	r.fingerprint = fp
	r.reloads.Add(1)
	r.logger.Info("flows reloaded", "dir", r.dir, "controllers", len(ctrls))
	return true, nil
}

// Reloads returns how many times the catalog has been replaced.
func (r *Reloader) Reloads() int64 { return r.reloads.Load() }

// Stop ends the loop and waits for it to exit.
func (r *Reloader) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel == nil {
		return nil
	}
	r.cancel()
	<-r.done
	r.cancel = nil
	r.done = nil
	r.logger.Info("flow reloader stopped")
	return nil
}

// Fingerprint hashes name, size and modification time of every flow file
// directly under dir.
func Fingerprint(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("read flows dir %s: %w", dir, err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	h := sha256.New()
	for _, e := range entries {
		if e.IsDir() || !loader.Supported(e.Name()) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			return "", fmt.Errorf("stat %s: %w", filepath.Join(dir, e.Name()), err)
		}
		fmt.Fprintf(h, "%s\x00%d\x00%d\n", e.Name(), info.Size(), info.ModTime().UnixNano())
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
