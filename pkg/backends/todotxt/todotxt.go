// Package todotxt is a backend over a second todo.txt file.
//
// Every line gets a stable external-id the first time it is loaded. Completed
// tasks stay in the file but are hidden from FetchAll unless IncludeDone is
// set.
package todotxt

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sync"

	"github.com/google/uuid"

	"github.com/aretw0/todosync/pkg/adapters/fs"
	"github.com/aretw0/todosync/pkg/core"
	format "github.com/aretw0/todosync/pkg/todotxt"
)

// Options configure the backend.
type Options struct {
	Filename    string `mapstructure:"filename"`
	IncludeDone bool   `mapstructure:"include_done"`
}

// Backend stores tasks in a todo.txt file.
type Backend struct {
	opts   Options
	store  *fs.Store
	logger *slog.Logger

	mu    sync.Mutex
	tasks []core.Task
}

// New opens the file, which must exist, and loads it.
func New(opts Options, logger *slog.Logger) (*Backend, error) {
	if opts.Filename == "" {
		return nil, errors.New("todotxt: filename is required")
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	store, err := fs.Open(opts.Filename, format.New(), fs.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("todotxt: %w", err)
	}

	b := &Backend{opts: opts, store: store, logger: logger.With("backend", "todotxt", "file", store.Path())}
	if err := b.load(); err != nil {
		store.Close()
		return nil, err
	}
	return b, nil
}

func (b *Backend) SupportsCreate() bool { return true }
func (b *Backend) SupportsUpdate() bool { return true }

// FetchAll returns open tasks, and completed ones when configured.
func (b *Backend) FetchAll(ctx context.Context) ([]core.Task, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.reloadIfEdited(); err != nil {
		return nil, err
	}

	out := make([]core.Task, 0, len(b.tasks))
	for _, t := range b.tasks {
		if t.Done && !b.opts.IncludeDone {
			continue
		}
		out = append(out, t.Clone())
	}
	return out, nil
}

// FetchOne looks a task up by id among the visible tasks.
func (b *Backend) FetchOne(ctx context.Context, id string) (core.Task, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.reloadIfEdited(); err != nil {
		return core.Task{}, err
	}
	i := b.find(id)
	if i < 0 || (b.tasks[i].Done && !b.opts.IncludeDone) {
		return core.Task{}, fmt.Errorf("%w: task %s in %s", core.ErrNotFound, id, b.store.Path())
	}
	return b.tasks[i].Clone(), nil
}

// Create appends t with a fresh id. A task whose title is already present is
// skipped; this happens when a client re-sends a line before it has seen the
// id assigned to it.
func (b *Backend) Create(ctx context.Context, t core.Task) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.reloadIfEdited(); err != nil {
		return err
	}
	for _, existing := range b.tasks {
		if existing.Title == t.Title {
			b.logger.Debug("duplicate create skipped", "title", t.Title)
			return nil
		}
	}

	next := append(slices.Clone(b.tasks), t.WithoutMeta(core.MetaSource).WithMeta(core.MetaID, uuid.NewString()))
	return b.save(next)
}

// Update replaces the task with the given id, or appends it when the id is
// unknown.
func (b *Backend) Update(ctx context.Context, id string, t core.Task) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.reloadIfEdited(); err != nil {
		return err
	}

	t = t.WithoutMeta(core.MetaSource).WithMeta(core.MetaID, id)
	next := slices.Clone(b.tasks)
	if i := b.find(id); i >= 0 {
		next[i] = t
	} else {
		next = append(next, t)
	}
	return b.save(next)
}

// Delete removes the task with the given id.
func (b *Backend) Delete(ctx context.Context, id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.reloadIfEdited(); err != nil {
		return err
	}
	i := b.find(id)
	if i < 0 {
		return fmt.Errorf("%w: task %s in %s", core.ErrNotFound, id, b.store.Path())
	}
	return b.save(slices.Delete(slices.Clone(b.tasks), i, i+1))
}

// Close releases the file.
func (b *Backend) Close() error {
	return b.store.Close()
}

// ComponentType implements introspection.Component.
func (b *Backend) ComponentType() string { return "todotxt" }

// load reads the file and assigns ids to lines that lack one. New ids are
// written back so they stay stable; if that fails they are kept in memory
// and go out with the next successful save. Called with mu held.
func (b *Backend) load() error {
	tasks, err := b.store.Read()
	if err != nil {
		return fmt.Errorf("todotxt: %w", err)
	}

	assigned := 0
	for i, t := range tasks {
		if t.ExternalID() == "" {
			tasks[i] = t.WithMeta(core.MetaID, uuid.NewString())
			assigned++
		}
	}
	b.tasks = tasks

	if assigned > 0 {
		b.logger.Debug("assigned ids", "count", assigned)
		return b.save(tasks)
	}
	return nil
}

func (b *Backend) reloadIfEdited() error {
	changed, err := b.store.HasChanges()
	if err != nil {
		return fmt.Errorf("todotxt: %w", err)
	}
	if !changed {
		return nil
	}
	// The file itself is the source of truth; the change list is not needed.
	b.store.Changes()
	b.logger.Debug("file edited externally, reloading")
	return b.load()
}

// save writes tasks and only then makes them the in-memory state, so a
// failed write leaves the backend matching the file.
func (b *Backend) save(tasks []core.Task) error {
	if err := b.store.Write(tasks, core.MetaSource); err != nil {
		return fmt.Errorf("todotxt: save: %w", err)
	}
	b.tasks = tasks
	return nil
}

func (b *Backend) find(id string) int {
	return slices.IndexFunc(b.tasks, func(t core.Task) bool { return t.ExternalID() == id })
}

var _ core.Backend = (*Backend)(nil)
var _ core.Deleter = (*Backend)(nil)
