package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"
)

// Default timings for the sync loop.
const (
	DefaultTick      = 100 * time.Millisecond
	DefaultStaleness = 120 * time.Second
)

// Phase is the engine lifecycle state.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseBootstrapping
	PhaseSteady
	PhaseStopped
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseBootstrapping:
		return "bootstrapping"
	case PhaseSteady:
		return "steady"
	case PhaseStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// EngineConfig wires the engine to its collaborators.
type EngineConfig struct {
	// Primary is the materialized store. Required.
	Primary WatchedStore
	// Watched are extra stores whose edits are pushed but never rewritten,
	// e.g. a done file.
	Watched []WatchedStore
	// Batches are staging locations drained on every tick.
	Batches []BatchSource
	// Router owns the backends. Required.
	Router *Router

	Tick      time.Duration
	Staleness time.Duration
	// Strip lists metadata keys hidden from the materialized store.
	Strip []string
	// PropagateDeletes forwards tombstones for removed lines to the Router.
	PropagateDeletes bool

	Logger *slog.Logger
	Now    func() time.Time
}

// TickReport summarizes one Tick.
type TickReport struct {
	LocalChanges int
	Batches      int
	Pushed       int
	Skipped      int
	Failed       int
	Refreshed    bool
	RefreshErr   error
}

// Engine reconciles the materialized store with the backends. It is driven
// by Tick; Run adds the scheduler loop. Tick, Refresh and Bootstrap must not
// be called concurrently.
type Engine struct {
	cfg    EngineConfig
	logger *slog.Logger

	mu       sync.RWMutex
	phase    Phase
	dirty    bool
	lastPull time.Time
	ticks    uint64
	last     TickReport
}

// NewEngine validates cfg and applies defaults.
func NewEngine(cfg EngineConfig) (*Engine, error) {
	if cfg.Primary == nil {
		return nil, errors.New("engine: primary store is required")
	}
	if cfg.Router == nil {
		return nil, errors.New("engine: router is required")
	}
	for _, k := range cfg.Strip {
		if Reserved(k) {
			return nil, fmt.Errorf("engine: cannot strip %q: %w", k, ErrReservedKey)
		}
	}
	if cfg.Tick <= 0 {
		cfg.Tick = DefaultTick
	}
	if cfg.Staleness <= 0 {
		cfg.Staleness = DefaultStaleness
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &Engine{cfg: cfg, logger: cfg.Logger}, nil
}

// Phase returns the current lifecycle state.
func (e *Engine) Phase() Phase {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.phase
}

func (e *Engine) setPhase(p Phase) {
	e.mu.Lock()
	e.phase = p
	e.mu.Unlock()
}

// Bootstrap performs the initial pull-and-materialize.
func (e *Engine) Bootstrap(ctx context.Context) error {
	e.setPhase(PhaseBootstrapping)
	e.logger.Info("bootstrapping", "store", e.cfg.Primary.Path(), "backends", e.cfg.Router.Backends())

	if err := e.Refresh(ctx); err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}
	e.setPhase(PhaseSteady)
	return nil
}

// Refresh pulls every backend and writes the merged view to the primary
// store. On failure the refresh stays pending for the next tick.
func (e *Engine) Refresh(ctx context.Context) error {
	tasks := e.cfg.Router.FetchAllTagged(ctx)

	if err := e.cfg.Primary.Write(tasks, e.cfg.Strip...); err != nil {
		e.mu.Lock()
		e.dirty = true
		e.mu.Unlock()
		return fmt.Errorf("materialize %s: %w", e.cfg.Primary.Path(), err)
	}

	e.mu.Lock()
	e.dirty = false
	e.lastPull = e.cfg.Now()
	e.mu.Unlock()

	e.logger.Debug("materialized", "store", e.cfg.Primary.Path(), "tasks", len(tasks))
	return nil
}

// Tick runs one steady-state iteration: push local edits, ingest staged
// batches, then refresh when something changed or the last pull is stale.
func (e *Engine) Tick(ctx context.Context) TickReport {
	var report TickReport
	dirty := false

	stores := append([]WatchedStore{e.cfg.Primary}, e.cfg.Watched...)
	for _, s := range stores {
		changed, err := s.HasChanges()
		if err != nil {
			e.logger.Warn("change detection failed", "store", s.Path(), "error", err)
			continue
		}
		if !changed {
			continue
		}

		tasks := e.forwardable(s.Changes())
		e.logger.Info("local edits detected", "store", s.Path(), "tasks", len(tasks))
		report.LocalChanges += len(tasks)
		report.add(e.cfg.Router.Push(ctx, tasks))
		dirty = true
	}

	for _, src := range e.cfg.Batches {
		batches, err := src.Ready()
		if err != nil {
			e.logger.Warn("staging scan failed", "error", err)
			continue
		}
		for _, b := range batches {
			tasks, err := b.Read()
			if err != nil {
				e.logger.Warn("staged batch unreadable, discarding", "batch", b.Name(), "error", err)
			} else {
				e.logger.Info("ingesting batch", "batch", b.Name(), "tasks", len(tasks))
				report.add(e.cfg.Router.Push(ctx, tasks))
			}
			if err := b.Remove(); err != nil {
				e.logger.Warn("could not remove ingested batch", "batch", b.Name(), "error", err)
			}
			report.Batches++
			dirty = true
		}
	}

	e.mu.Lock()
	if dirty {
		e.dirty = true
	}
	refresh := e.dirty || e.cfg.Now().Sub(e.lastPull) >= e.cfg.Staleness
	e.mu.Unlock()

	if refresh {
		if err := e.Refresh(ctx); err != nil {
			report.RefreshErr = err
			if errors.Is(err, ErrLocked) || errors.Is(err, ErrUnreadChanges) || errors.Is(err, ErrReplacing) {
				e.logger.Info("refresh deferred", "reason", err)
			} else {
				e.logger.Warn("refresh failed", "error", err)
			}
		} else {
			report.Refreshed = true
		}
	}

	e.mu.Lock()
	e.ticks++
	e.last = report
	e.mu.Unlock()

	return report
}

// Run bootstraps and then ticks until ctx is done. A failed bootstrap is
// retried by the loop; only the context ends Run.
func (e *Engine) Run(ctx context.Context) error {
	if err := e.Bootstrap(ctx); err != nil {
		if ctx.Err() != nil {
			e.setPhase(PhaseStopped)
			return nil
		}
		e.logger.Warn("initial materialization failed, retrying on next tick", "error", err)
	}
	e.setPhase(PhaseSteady)

	ticker := time.NewTicker(e.cfg.Tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			e.setPhase(PhaseStopped)
			e.logger.Info("sync loop stopped")
			return nil
		case <-ticker.C:
			e.Tick(ctx)
		}
	}
}

func (e *Engine) forwardable(changes []Task) []Task {
	if e.cfg.PropagateDeletes {
		return changes
	}
	out := make([]Task, 0, len(changes))
	for _, t := range changes {
		if t.Deleted {
			e.logger.Debug("removed line not propagated", "line", t.Raw)
			continue
		}
		out = append(out, t)
	}
	return out
}

func (r *TickReport) add(p PushReport) {
	r.Pushed += p.Pushed
	r.Skipped += p.Skipped
	r.Failed += p.Failed
}
