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

// Mode is the kind of operation a routed task needs.
type Mode int

const (
	// ModeCreateDefault creates a new task in the default backend.
	ModeCreateDefault Mode = iota
	// ModeCreateIn creates a task in the backend named by MetaSource.
	ModeCreateIn
	// ModeUpdate updates a bound task in its backend.
	ModeUpdate
	// ModeDelete removes a bound task from its backend.
	ModeDelete
)

func (m Mode) String() string {
	switch m {
	case ModeCreateDefault:
		return "create-default"
	case ModeCreateIn:
		return "create-in-backend"
	case ModeUpdate:
		return "update"
	case ModeDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// Route is the routing decision for one task.
type Route struct {
	BackendID  string
	Backend    Backend
	Mode       Mode
	ExternalID string
}

// PushReport summarizes a Push call.
type PushReport struct {
	Pushed  int
	Skipped int
	Failed  int
	Errors  []error
}

// RouterOption configures a Router.
type RouterOption func(*Router)

// WithRouterLogger sets the logger used for fetch and push diagnostics.
func WithRouterLogger(logger *slog.Logger) RouterOption {
	return func(r *Router) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithFetchTimeout bounds every backend call. Zero disables the bound.
func WithFetchTimeout(d time.Duration) RouterOption {
	return func(r *Router) {
		r.timeout = d
	}
}

type fetchStat struct {
	at    time.Time
	count int
	err   error
}

// Router holds the named backends plus a default backend and decides, for
// every task, which backend owns it.
type Router struct {
	mu        sync.RWMutex
	order     []string
	backends  map[string]Backend
	defaultID string
	stats     map[string]fetchStat

	logger  *slog.Logger
	timeout time.Duration
}

// NewRouter creates an empty Router.
func NewRouter(opts ...RouterOption) *Router {
	r := &Router{
		backends: make(map[string]Backend),
		stats:    make(map[string]fetchStat),
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Add registers a backend under id. Registration order is the fetch order.
func (r *Router) Add(id string, b Backend) error {
	if id == "" {
		return errors.New("backend id cannot be empty")
	}
	if b == nil {
		return fmt.Errorf("backend %q is nil", id)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.backends[id]; exists {
		return fmt.Errorf("%w: %q", ErrDuplicateBackend, id)
	}
	r.backends[id] = b
	r.order = append(r.order, id)
	return nil
}

// SetDefault makes the registered backend id the target for new tasks.
// The backend must support creation.
func (r *Router) SetDefault(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.backends[id]
	if !ok {
		return fmt.Errorf("%w: %q must be added before it can be the default", ErrUnknownBackend, id)
	}
	if !b.SupportsCreate() {
		return fmt.Errorf("%w: default backend %q cannot create tasks", ErrUnsupported, id)
	}
	r.defaultID = id
	return nil
}

// Default returns the default backend id, or "".
func (r *Router) Default() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.defaultID
}

// Backends returns the registered ids in registration order.
func (r *Router) Backends() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// Backend looks up a registered backend.
func (r *Router) Backend(id string) (Backend, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.backends[id]
	return b, ok
}

// FetchAllTagged fetches from every backend in registration order and stamps
// MetaSource on each task. A failing backend contributes nothing; tasks
// without MetaID are dropped with a warning.
func (r *Router) FetchAllTagged(ctx context.Context) []Task {
	var all []Task

	for _, id := range r.Backends() {
		b, _ := r.Backend(id)

		tasks, err := r.fetchAll(ctx, id, b)
		if err != nil {
			r.logger.Warn("backend fetch failed, skipping", "source", id, "error", err)
			r.record(id, 0, err)
			continue
		}

		added := 0
		for _, t := range tasks {
			t = t.WithMeta(MetaSource, id)
			if t.ExternalID() == "" {
				r.logger.Warn("backend returned a task without an id, discarded",
					"source", id, "title", t.Title)
				continue
			}
			all = append(all, t)
			added++
		}

		r.record(id, added, nil)
		r.logger.Debug("fetched tasks", "source", id, "count", added)
	}

	return all
}

// FetchOne fetches a single task from the named backend and tags it.
func (r *Router) FetchOne(ctx context.Context, sourceID, id string) (t Task, err error) {
	b, ok := r.Backend(sourceID)
	if !ok {
		return Task{}, fmt.Errorf("%w: %q", ErrUnknownBackend, sourceID)
	}

	ctx, cancel := r.bound(ctx)
	defer cancel()
	defer recoverInto(&err, sourceID)

	t, err = b.FetchOne(ctx, id)
	if err != nil {
		return Task{}, fmt.Errorf("fetch %s from %s: %w", id, sourceID, err)
	}
	return t.WithMeta(MetaSource, sourceID), nil
}

func (r *Router) fetchAll(ctx context.Context, id string, b Backend) (tasks []Task, err error) {
	ctx, cancel := r.bound(ctx)
	defer cancel()
	defer recoverInto(&err, id)

	tasks, err = b.FetchAll(ctx)
	if err == nil && ctx.Err() != nil {
		// The backend ignored the deadline; its result is still discarded.
		err = ctx.Err()
	}
	return tasks, err
}

// Route decides where t goes and in which mode. It fails when the resolved
// backend lacks the required capability.
func (r *Router) Route(t Task) (Route, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if t.Deleted {
		return r.routeDelete(t)
	}

	switch t.State() {
	case StateNew:
		if t.HasMeta(MetaID) {
			// Creating it again would duplicate the task it came from.
			return Route{}, fmt.Errorf("%w: external id %q has no source", ErrMissingID, t.ExternalID())
		}
		if r.defaultID == "" {
			return Route{}, ErrNoDefault
		}
		b := r.backends[r.defaultID]
		if !b.SupportsCreate() {
			return Route{}, fmt.Errorf("%w: cannot create tasks in %q", ErrUnsupported, r.defaultID)
		}
		return Route{BackendID: r.defaultID, Backend: b, Mode: ModeCreateDefault}, nil

	case StatePending:
		id := t.SourceID()
		b, ok := r.backends[id]
		if !ok {
			return Route{}, fmt.Errorf("%w: %q", ErrUnknownBackend, id)
		}
		if !b.SupportsCreate() {
			return Route{}, fmt.Errorf("%w: cannot create tasks in %q", ErrUnsupported, id)
		}
		return Route{BackendID: id, Backend: b, Mode: ModeCreateIn}, nil

	default:
		id := t.SourceID()
		b, ok := r.backends[id]
		if !ok {
			return Route{}, fmt.Errorf("%w: %q", ErrUnknownBackend, id)
		}
		if !b.SupportsUpdate() {
			return Route{}, fmt.Errorf("%w: cannot update tasks in %q", ErrUnsupported, id)
		}
		return Route{BackendID: id, Backend: b, Mode: ModeUpdate, ExternalID: t.ExternalID()}, nil
	}
}

func (r *Router) routeDelete(t Task) (Route, error) {
	id := t.SourceID()
	if id == "" || t.ExternalID() == "" {
		return Route{}, fmt.Errorf("%w: tombstone is not bound to a backend", ErrMissingID)
	}
	b, ok := r.backends[id]
	if !ok {
		return Route{}, fmt.Errorf("%w: %q", ErrUnknownBackend, id)
	}
	if _, ok := b.(Deleter); !ok {
		return Route{}, fmt.Errorf("%w: cannot delete tasks in %q", ErrUnsupported, id)
	}
	return Route{BackendID: id, Backend: b, Mode: ModeDelete, ExternalID: t.ExternalID()}, nil
}

// Push routes and dispatches every task on its own. A failure is logged and
// counted; it never stops the remaining tasks.
func (r *Router) Push(ctx context.Context, tasks []Task) PushReport {
	var report PushReport

	for i, t := range tasks {
		err := r.pushOne(ctx, t)
		switch {
		case err == nil:
			report.Pushed++
			r.logger.Debug("pushed task", "index", i, "line", t.Raw)
		case t.Deleted && (errors.Is(err, ErrUnsupported) || errors.Is(err, ErrMissingID)):
			report.Skipped++
			r.logger.Info("deletion not propagated", "line", t.Raw, "reason", err)
		default:
			report.Failed++
			report.Errors = append(report.Errors, err)
			r.logger.Warn("push failed", "index", i, "line", t.Raw, "error", err)
		}
	}

	return report
}

func (r *Router) pushOne(ctx context.Context, t Task) (err error) {
	route, err := r.Route(t)
	if err != nil {
		return err
	}
	defer recoverInto(&err, route.BackendID)

	ctx, cancel := r.bound(ctx)
	defer cancel()

	switch route.Mode {
	case ModeCreateDefault, ModeCreateIn:
		err = route.Backend.Create(ctx, t)
	case ModeUpdate:
		err = route.Backend.Update(ctx, route.ExternalID, t)
	case ModeDelete:
		err = route.Backend.(Deleter).Delete(ctx, route.ExternalID)
	}
	if err != nil {
		return fmt.Errorf("%s in %s: %w", route.Mode, route.BackendID, err)
	}
	return nil
}

func (r *Router) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, r.timeout)
}

func (r *Router) record(id string, count int, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stats[id] = fetchStat{at: time.Now(), count: count, err: err}
}

func recoverInto(err *error, source string) {
	if p := recover(); p != nil {
		*err = fmt.Errorf("backend %s panicked: %v", source, p)
	}
}
