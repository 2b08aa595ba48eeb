package core

import "context"

// Backend is a task source and sink. Implementations report which mutating
// operations they support; the Router never calls Create or Update on a
// backend that reports them as unsupported.
type Backend interface {
	SupportsCreate() bool
	SupportsUpdate() bool

	// FetchAll returns every task the backend exposes. Each task must carry
	// MetaID; the Router stamps MetaSource.
	FetchAll(ctx context.Context) ([]Task, error)

	// FetchOne returns the task with the given backend id.
	FetchOne(ctx context.Context, id string) (Task, error)

	// Create stores a new task. The backend assigns the id.
	Create(ctx context.Context, t Task) error

	// Update replaces the task identified by id.
	Update(ctx context.Context, id string, t Task) error
}

// Deleter is implemented by backends that can remove tasks.
type Deleter interface {
	Delete(ctx context.Context, id string) error
}

// Formatter converts between todo lines and tasks. Format must be stable:
// the same task always yields the same line.
type Formatter interface {
	Parse(line string) (Task, error)
	Format(t Task, strip ...string) string
}

// WatchedStore is a line-oriented store that reports external edits.
type WatchedStore interface {
	// HasChanges checks for external edits without blocking and queues them.
	HasChanges() (bool, error)

	// Changes drains the queue filled by HasChanges.
	Changes() []Task

	// Write replaces the store content. It fails with ErrUnreadChanges when
	// external edits are pending, with ErrReplacing while the file is
	// missing and with ErrLocked when another writer holds the lock.
	Write(tasks []Task, strip ...string) error

	// Read parses the whole store, independent of change tracking.
	Read() ([]Task, error)

	Path() string
}

// Batch is one complete file found in a staging location.
type Batch interface {
	Name() string
	Read() ([]Task, error)
	Remove() error
}

// BatchSource lists staged batches ready for ingestion.
type BatchSource interface {
	Ready() ([]Batch, error)
}
