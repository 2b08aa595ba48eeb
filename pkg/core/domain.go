// Package core holds the task domain and the reconciliation engine.
//
// It owns the ports (Backend, Formatter, WatchedStore, BatchSource) and the two
// services built on top of them: the Router, which decides which backend owns
// a task, and the Engine, which keeps the materialized store and the backends
// in step.
package core

import (
	"maps"
	"slices"
	"time"
)

// Reserved metadata keys managed by the engine.
const (
	// MetaSource names the backend that owns a task.
	MetaSource = "source-id"
	// MetaID is the identifier the owning backend uses for a task.
	MetaID = "external-id"
)

// Reserved reports whether key is managed by the engine. Reserved keys must
// survive in the materialized store, or edits could not be routed back.
func Reserved(key string) bool {
	return key == MetaSource || key == MetaID
}

// Metadata represents the free-form key:value pairs attached to a task.
type Metadata map[string]string

// TaskState describes how far a task is bound to a backend.
type TaskState int

const (
	// StateNew tasks carry neither source nor id and go to the default backend.
	StateNew TaskState = iota
	// StatePending tasks name a backend but have not been created there yet.
	StatePending
	// StateBound tasks exist in their backend.
	StateBound
)

func (s TaskState) String() string {
	switch s {
	case StateNew:
		return "new"
	case StatePending:
		return "pending"
	case StateBound:
		return "bound"
	default:
		return "unknown"
	}
}

// Task is the central entity of the domain: one line of a todo list.
type Task struct {
	Title     string
	Done      bool
	Completed time.Time // zero when unknown or open
	Priority  string    // "A".."Z", empty for none
	Created   time.Time
	Contexts  []string
	Projects  []string
	Metadata  Metadata

	// Raw is the line the task was parsed from, if any.
	Raw string
	// Deleted marks a tombstone for a line removed from a watched store.
	Deleted bool
}

// Meta returns the metadata value for key.
func (t Task) Meta(key string) (string, bool) {
	v, ok := t.Metadata[key]
	return v, ok
}

// HasMeta reports whether key is set.
func (t Task) HasMeta(key string) bool {
	_, ok := t.Metadata[key]
	return ok
}

// SourceID returns the owning backend id, or "".
func (t Task) SourceID() string { return t.Metadata[MetaSource] }

// ExternalID returns the backend identifier, or "".
func (t Task) ExternalID() string { return t.Metadata[MetaID] }

// State classifies the task by its reserved metadata.
func (t Task) State() TaskState {
	switch {
	case !t.HasMeta(MetaSource):
		return StateNew
	case !t.HasMeta(MetaID):
		return StatePending
	default:
		return StateBound
	}
}

// Clone returns a deep copy so callers can mutate metadata and tag slices freely.
func (t Task) Clone() Task {
	c := t
	c.Contexts = slices.Clone(t.Contexts)
	c.Projects = slices.Clone(t.Projects)
	if t.Metadata != nil {
		c.Metadata = maps.Clone(t.Metadata)
	}
	return c
}

// WithMeta returns a copy of t with key set to value.
func (t Task) WithMeta(key, value string) Task {
	c := t.Clone()
	if c.Metadata == nil {
		c.Metadata = make(Metadata)
	}
	c.Metadata[key] = value
	return c
}

// WithoutMeta returns a copy of t without the given keys.
func (t Task) WithoutMeta(keys ...string) Task {
	c := t.Clone()
	for _, k := range keys {
		delete(c.Metadata, k)
	}
	return c
}

// Tombstone builds the deletion marker for a removed task. Only the routing
// keys survive.
func Tombstone(removed Task) Task {
	t := Task{Deleted: true, Raw: removed.Raw, Metadata: make(Metadata)}
	for _, k := range []string{MetaSource, MetaID} {
		if v, ok := removed.Metadata[k]; ok {
			t.Metadata[k] = v
		}
	}
	return t
}
