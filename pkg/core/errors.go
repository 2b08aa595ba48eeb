package core

import "errors"

// Common errors.
var (
	ErrReadOnly = errors.New("store is in read-only mode")

	// ErrLocked is returned when the store lock is held by another writer.
	// The operation should be retried on a later tick.
	ErrLocked = errors.New("store is locked by another writer")

	// ErrUnreadChanges is returned by Write when the store holds external
	// edits that have not been drained yet.
	ErrUnreadChanges = errors.New("store has unread changes")

	// ErrReplacing is returned by Write while the store file is missing,
	// as between the unlink and rename of an editor's atomic save.
	ErrReplacing = errors.New("store file is being replaced")

	// ErrUnsupported is returned when a backend lacks the capability an
	// operation needs (create, update or delete).
	ErrUnsupported = errors.New("operation not supported by backend")

	ErrUnknownBackend   = errors.New("backend is not registered")
	ErrDuplicateBackend = errors.New("backend already registered")
	ErrNoDefault        = errors.New("no default backend configured")

	ErrNotFound = errors.New("task not found")

	// ErrReservedKey rejects configuration that would hide source-id or
	// external-id from the materialized store.
	ErrReservedKey = errors.New("metadata key is reserved")

	// ErrMissingID flags a fetched task the backend returned without an external id.
	ErrMissingID = errors.New("task has no external id")
)
