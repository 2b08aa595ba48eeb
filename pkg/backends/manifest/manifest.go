// Package manifest is a backend over a YAML task list.
//
//	tasks:
//	  - id: 0b7e...
//	    title: Renew passport
//	    priority: B
//	    due: 2024-06-01
//	    contexts: [errands]
//
// The file is read on every call and replaced atomically on every change, so
// it can be edited by hand between syncs.
package manifest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/aretw0/todosync/pkg/adapters/fs"
	"github.com/aretw0/todosync/pkg/core"
	"github.com/aretw0/todosync/pkg/todotxt"
)

// Options configure the backend.
type Options struct {
	Filename string `mapstructure:"filename"`
}

// Entry is one task in the manifest.
type Entry struct {
	ID        string            `yaml:"id"`
	Title     string            `yaml:"title"`
	Done      bool              `yaml:"done,omitempty"`
	Priority  string            `yaml:"priority,omitempty"`
	Created   string            `yaml:"created,omitempty"`
	Completed string            `yaml:"completed,omitempty"`
	Due       string            `yaml:"due,omitempty"`
	Contexts  []string          `yaml:"contexts,omitempty"`
	Projects  []string          `yaml:"projects,omitempty"`
	Meta      map[string]string `yaml:"meta,omitempty"`
}

type document struct {
	Tasks []Entry `yaml:"tasks"`
}

// Backend stores tasks in a YAML file.
type Backend struct {
	path   string
	logger *slog.Logger

	mu sync.Mutex
}

// New creates the manifest when it does not exist yet.
func New(opts Options, logger *slog.Logger) (*Backend, error) {
	if opts.Filename == "" {
		return nil, errors.New("manifest: filename is required")
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	b := &Backend{path: opts.Filename, logger: logger.With("backend", "manifest", "file", opts.Filename)}
	if _, err := os.Stat(opts.Filename); errors.Is(err, os.ErrNotExist) {
		if err := b.save(document{Tasks: []Entry{}}); err != nil {
			return nil, err
		}
		b.logger.Info("manifest created")
	} else if err != nil {
		return nil, fmt.Errorf("manifest: %w", err)
	}
	return b, nil
}

func (b *Backend) SupportsCreate() bool { return true }
func (b *Backend) SupportsUpdate() bool { return true }

// ComponentType implements introspection.Component.
func (b *Backend) ComponentType() string { return "manifest" }

func (b *Backend) FetchAll(ctx context.Context) ([]core.Task, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	doc, err := b.load()
	if err != nil {
		return nil, err
	}
	out := make([]core.Task, 0, len(doc.Tasks))
	for _, e := range doc.Tasks {
		out = append(out, e.Task())
	}
	return out, nil
}

func (b *Backend) FetchOne(ctx context.Context, id string) (core.Task, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	doc, err := b.load()
	if err != nil {
		return core.Task{}, err
	}
	i := find(doc, id)
	if i < 0 {
		return core.Task{}, fmt.Errorf("%w: %s in %s", core.ErrNotFound, id, b.path)
	}
	return doc.Tasks[i].Task(), nil
}

func (b *Backend) Create(ctx context.Context, t core.Task) error {
	return b.mutate(func(doc *document) error {
		doc.Tasks = append(doc.Tasks, EntryFrom(uuid.NewString(), t))
		return nil
	})
}

func (b *Backend) Update(ctx context.Context, id string, t core.Task) error {
	return b.mutate(func(doc *document) error {
		i := find(*doc, id)
		if i < 0 {
			return fmt.Errorf("%w: %s in %s", core.ErrNotFound, id, b.path)
		}
		doc.Tasks[i] = EntryFrom(id, t)
		return nil
	})
}

func (b *Backend) Delete(ctx context.Context, id string) error {
	return b.mutate(func(doc *document) error {
		i := find(*doc, id)
		if i < 0 {
			return fmt.Errorf("%w: %s in %s", core.ErrNotFound, id, b.path)
		}
		doc.Tasks = slices.Delete(doc.Tasks, i, i+1)
		return nil
	})
}

func (b *Backend) mutate(fn func(*document) error) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	doc, err := b.load()
	if err != nil {
		return err
	}
	if err := fn(&doc); err != nil {
		return err
	}
	return b.save(doc)
}

func (b *Backend) load() (document, error) {
	data, err := os.ReadFile(b.path)
	if err != nil {
		return document{}, fmt.Errorf("manifest: %w", err)
	}
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return document{}, fmt.Errorf("manifest: parse %s: %w", b.path, err)
	}
	// Entries without an id are given one so the router can bind them.
	changed := false
	for i := range doc.Tasks {
		if doc.Tasks[i].ID == "" {
			doc.Tasks[i].ID = uuid.NewString()
			changed = true
		}
	}
	if changed {
		if err := b.save(doc); err != nil {
			return document{}, err
		}
	}
	return doc, nil
}

func (b *Backend) save(doc document) error {
	data, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("manifest: encode: %w", err)
	}
	if err := fs.WriteFileAtomic(b.path, data, 0o644); err != nil {
		return fmt.Errorf("manifest: %w", err)
	}
	return nil
}

func find(doc document, id string) int {
	return slices.IndexFunc(doc.Tasks, func(e Entry) bool { return e.ID == id })
}

// EntryFrom converts a task. Routing metadata is not stored; id is.
func EntryFrom(id string, t core.Task) Entry {
	e := Entry{
		ID:       id,
		Title:    t.Title,
		Done:     t.Done,
		Priority: t.Priority,
		Contexts: slices.Clone(t.Contexts),
		Projects: slices.Clone(t.Projects),
	}
	if !t.Created.IsZero() {
		e.Created = t.Created.Format(todotxt.DateLayout)
	}
	if !t.Completed.IsZero() {
		e.Completed = t.Completed.Format(todotxt.DateLayout)
	}
	for k, v := range t.Metadata {
		switch k {
		case core.MetaSource, core.MetaID:
		case todotxt.DueKey:
			e.Due = v
		default:
			if e.Meta == nil {
				e.Meta = make(map[string]string)
			}
			e.Meta[k] = v
		}
	}
	return e
}

// Task converts the entry back, setting MetaID.
func (e Entry) Task() core.Task {
	t := core.Task{
		Title:    e.Title,
		Done:     e.Done,
		Priority: e.Priority,
		Contexts: slices.Clone(e.Contexts),
		Projects: slices.Clone(e.Projects),
		Metadata: core.Metadata{core.MetaID: e.ID},
	}
	if d, err := time.Parse(todotxt.DateLayout, e.Created); err == nil {
		t.Created = d
	}
	if d, err := time.Parse(todotxt.DateLayout, e.Completed); err == nil {
		t.Completed = d
	}
	if e.Due != "" {
		t.Metadata[todotxt.DueKey] = e.Due
	}
	for k, v := range e.Meta {
		t.Metadata[k] = v
	}
	return t
}

var _ core.Backend = (*Backend)(nil)
var _ core.Deleter = (*Backend)(nil)
