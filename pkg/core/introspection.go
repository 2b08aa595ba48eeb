package core

import (
	"time"

	"github.com/aretw0/introspection"
)

// EngineState exposes the sync loop for observability.
type EngineState struct {
	Phase      string    `json:"phase"`
	Primary    string    `json:"primary"`
	Watched    []string  `json:"watched,omitempty"`
	Staging    int       `json:"staging"`
	Dirty      bool      `json:"dirty"`
	LastPull   time.Time `json:"last_pull"`
	Ticks      uint64    `json:"ticks"`
	LastPushed int       `json:"last_pushed"`
	LastFailed int       `json:"last_failed"`
	LastError  string    `json:"last_error,omitempty"`
}

// State implements introspection.Introspectable.
func (e *Engine) State() any {
	e.mu.RLock()
	defer e.mu.RUnlock()

	s := EngineState{
		Phase:      e.phase.String(),
		Primary:    e.cfg.Primary.Path(),
		Staging:    len(e.cfg.Batches),
		Dirty:      e.dirty,
		LastPull:   e.lastPull,
		Ticks:      e.ticks,
		LastPushed: e.last.Pushed,
		LastFailed: e.last.Failed,
	}
	for _, w := range e.cfg.Watched {
		s.Watched = append(s.Watched, w.Path())
	}
	if e.last.RefreshErr != nil {
		s.LastError = e.last.RefreshErr.Error()
	}
	return s
}

// ComponentType implements introspection.Component.
func (e *Engine) ComponentType() string {
	return "engine"
}

// BackendState describes one registered backend.
type BackendState struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Default   bool      `json:"default"`
	Create    bool      `json:"create"`
	Update    bool      `json:"update"`
	Delete    bool      `json:"delete"`
	LastFetch time.Time `json:"last_fetch,omitempty"`
	LastCount int       `json:"last_count"`
	LastError string    `json:"last_error,omitempty"`
}

// RouterState lists backends in registration order.
type RouterState struct {
	Backends []BackendState `json:"backends"`
}

// State implements introspection.Introspectable.
func (r *Router) State() any {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var s RouterState
	for _, id := range r.order {
		b := r.backends[id]
		_, canDelete := b.(Deleter)
		bs := BackendState{
			ID:      id,
			Type:    "backend",
			Default: id == r.defaultID,
			Create:  b.SupportsCreate(),
			Update:  b.SupportsUpdate(),
			Delete:  canDelete,
		}
		if comp, ok := b.(introspection.Component); ok {
			bs.Type = comp.ComponentType()
		}
		if st, ok := r.stats[id]; ok {
			bs.LastFetch = st.at
			bs.LastCount = st.count
			if st.err != nil {
				bs.LastError = st.err.Error()
			}
		}
		s.Backends = append(s.Backends, bs)
	}
	return s
}

// ComponentType implements introspection.Component.
func (r *Router) ComponentType() string {
	return "router"
}

var (
	_ introspection.Introspectable = (*Engine)(nil)
	_ introspection.Component      = (*Engine)(nil)
	_ introspection.Introspectable = (*Router)(nil)
	_ introspection.Component      = (*Router)(nil)
)
