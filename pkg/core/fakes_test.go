package core_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/aretw0/todosync/pkg/core"
)

// MockBackend implements core.Backend in memory and records every call.
type MockBackend struct {
	mu        sync.Mutex
	canCreate bool
	canUpdate bool

	tasks    []core.Task
	fetchErr error
	panics   bool
	failOn   string // title that makes Create/Update fail

	created []core.Task
	updated map[string]core.Task
	nextID  int
}

func NewMockBackend(canCreate, canUpdate bool, tasks ...core.Task) *MockBackend {
	return &MockBackend{
		canCreate: canCreate,
		canUpdate: canUpdate,
		tasks:     tasks,
		updated:   make(map[string]core.Task),
	}
}

func (m *MockBackend) SupportsCreate() bool { return m.canCreate }
func (m *MockBackend) SupportsUpdate() bool { return m.canUpdate }

func (m *MockBackend) FetchAll(ctx context.Context) ([]core.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.panics {
		panic("backend exploded")
	}
	if m.fetchErr != nil {
		return nil, m.fetchErr
	}
	return append([]core.Task(nil), m.tasks...), nil
}

func (m *MockBackend) FetchOne(ctx context.Context, id string) (core.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.tasks {
		if t.ExternalID() == id {
			return t, nil
		}
	}
	return core.Task{}, core.ErrNotFound
}

func (m *MockBackend) Create(ctx context.Context, t core.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t.Title == m.failOn && m.failOn != "" {
		return errors.New("create rejected")
	}
	m.nextID++
	m.created = append(m.created, t)
	m.tasks = append(m.tasks, t.WithoutMeta(core.MetaSource).WithMeta(core.MetaID, fmt.Sprintf("n%d", m.nextID)))
	return nil
}

func (m *MockBackend) Update(ctx context.Context, id string, t core.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t.Title == m.failOn && m.failOn != "" {
		return errors.New("update rejected")
	}
	m.updated[id] = t
	for i, old := range m.tasks {
		if old.ExternalID() == id {
			m.tasks[i] = t.WithoutMeta(core.MetaSource)
		}
	}
	return nil
}

func (m *MockBackend) Created() []core.Task {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]core.Task(nil), m.created...)
}

// DeletingBackend adds core.Deleter to MockBackend.
type DeletingBackend struct {
	*MockBackend
	deleted []string
}

func (d *DeletingBackend) Delete(ctx context.Context, id string) error {
	d.deleted = append(d.deleted, id)
	return nil
}

// MemStore is an in-memory core.WatchedStore. Tests inject external edits
// with Edit.
type MemStore struct {
	path    string
	content []core.Task
	pending []core.Task
	edited  bool
	writes  int
	lockErr error
}

func (s *MemStore) Edit(changes ...core.Task) {
	s.pending = append(s.pending, changes...)
	s.edited = true
}

func (s *MemStore) HasChanges() (bool, error) { return s.edited, nil }

func (s *MemStore) Changes() []core.Task {
	out := s.pending
	s.pending = nil
	s.edited = false
	return out
}

func (s *MemStore) Write(tasks []core.Task, strip ...string) error {
	if s.edited {
		return core.ErrUnreadChanges
	}
	if s.lockErr != nil {
		return s.lockErr
	}
	cleaned := make([]core.Task, 0, len(tasks))
	for _, t := range tasks {
		cleaned = append(cleaned, t.WithoutMeta(strip...))
	}
	s.content = cleaned
	s.writes++
	return nil
}

func (s *MemStore) Read() ([]core.Task, error) { return s.content, nil }
func (s *MemStore) Path() string { return s.path }

// MemBatch is a staged batch held in memory.
type MemBatch struct {
	name    string
	tasks   []core.Task
	readErr error
	removed bool
}

func (b *MemBatch) Name() string { return b.name }
func (b *MemBatch) Read() ([]core.Task, error) { return b.tasks, b.readErr }
func (b *MemBatch) Remove() error { b.removed = true; return nil }

// MemStaging hands out its batches once.
type MemStaging struct {
	batches []*MemBatch
}

func (s *MemStaging) Ready() ([]core.Batch, error) {
	var out []core.Batch
	for _, b := range s.batches {
		if !b.removed {
			out = append(out, b)
		}
	}
	return out, nil
}

func task(title string, meta ...string) core.Task {
	t := core.Task{Title: title, Raw: title}
	for i := 0; i+1 < len(meta); i += 2 {
		t = t.WithMeta(meta[i], meta[i+1])
	}
	return t
}

func bufferLogger() (*slog.Logger, *bytes.Buffer) {
	buf := &bytes.Buffer{}
	return slog.New(slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug})), buf
}
