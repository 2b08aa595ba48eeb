package fs

import (
	"time"

	"github.com/aretw0/introspection"
)

// StoreState exposes internal state for observability.
type StoreState struct {
	Path          string     `json:"path"`
	ReadOnly      bool       `json:"read_only"`
	Notifications bool       `json:"notifications"`
	Locked        bool       `json:"locked"`
	Lines         int        `json:"lines"`
	Pending       int        `json:"pending"`
	Writes        int        `json:"writes"`
	LastWrite     *time.Time `json:"last_write,omitempty"`
	LastEdit      *time.Time `json:"last_external_edit,omitempty"`
}

// State implements introspection.Introspectable.
func (s *Store) State() any {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := StoreState{
		Path:          s.path,
		ReadOnly:      s.opts.readOnly,
		Notifications: s.watcher != nil,
		Locked:        s.locked,
		Lines:         len(s.baseline),
		Pending:       len(s.queue),
		Writes:        s.writes,
	}
	if !s.lastWrite.IsZero() {
		t := s.lastWrite
		st.LastWrite = &t
	}
	if !s.lastEdit.IsZero() {
		t := s.lastEdit
		st.LastEdit = &t
	}
	return st
}

// ComponentType implements introspection.Component.
func (s *Store) ComponentType() string {
	return "store"
}

var _ introspection.Introspectable = (*Store)(nil)
var _ introspection.Component = (*Store)(nil)
