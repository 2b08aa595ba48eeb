// Package intx is a read-only backend for the KOLOLA linked-data interchange
// API.
//
// The API returns a flat list of records that point at each other. Each
// event becomes a task; evidence records pointing at the event supply its
// status and due date. Fields are located with gjson paths evaluated over a
// per-event document (see index.document), so they can be remapped in
// configuration.
package intx

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/tidwall/gjson"

	"github.com/aretw0/todosync/pkg/core"
	"github.com/aretw0/todosync/pkg/todotxt"
)

const (
	// DefaultRefresh is how long fetched records are served from memory.
	DefaultRefresh = 120 * time.Second
	// DefaultTimeout bounds one API request.
	DefaultTimeout = 30 * time.Second

	maxBody = 32 << 20
)

// Options configure the backend. Domain, Query, Key and StatusURI are
// required. JP* fields are gjson paths; a path wrapped in double quotes is
// a literal value.
type Options struct {
	Domain    string            `mapstructure:"domain"`
	Query     string            `mapstructure:"query"`
	Key       string            `mapstructure:"key"`
	StatusURI string            `mapstructure:"status_uri"`
	DueURI    string            `mapstructure:"due_uri"`
	Endpoint  string            `mapstructure:"endpoint"`
	MapStatus map[string]string `mapstructure:"map_status"`

	JPID        string `mapstructure:"jp_id"`
	JPTitle     string `mapstructure:"jp_title"`
	JPStatus    string `mapstructure:"jp_status"`
	JPDue       string `mapstructure:"jp_due"`
	JPCreated   string `mapstructure:"jp_created"`
	JPCompleted string `mapstructure:"jp_completed"`
	JPPriority  string `mapstructure:"jp_priority"`

	Refresh time.Duration `mapstructure:"refresh"`
	Timeout time.Duration `mapstructure:"timeout"`
}

func evidencePath(uri string) string {
	return fmt.Sprintf(`references.eventevidence.#(data.evidenceid.uri==%q).data.value`, uri)
}

// withDefaults validates o and fills the default paths.
func (o Options) withDefaults() (Options, error) {
	var missing []string
	for name, v := range map[string]string{
		"domain": o.Domain, "query": o.Query, "key": o.Key, "status_uri": o.StatusURI,
	} {
		if v == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		slices.Sort(missing)
		return o, fmt.Errorf("intx: missing required options %s", strings.Join(missing, ", "))
	}

	if o.JPID == "" {
		o.JPID = "_id"
	}
	if o.JPTitle == "" {
		o.JPTitle = "data.name"
	}
	if o.JPStatus == "" {
		o.JPStatus = evidencePath(o.StatusURI)
	}
	if o.JPDue == "" && o.DueURI != "" {
		o.JPDue = evidencePath(o.DueURI)
	}
	if o.JPCreated == "" {
		o.JPCreated = "data.startdate"
	}
	if o.JPCompleted == "" {
		o.JPCompleted = "data.enddate"
	}
	if o.Refresh <= 0 {
		o.Refresh = DefaultRefresh
	}
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	return o, nil
}

// Backend serves events from the interchange API as tasks.
type Backend struct {
	opts   Options
	client *http.Client
	logger *slog.Logger
	now    func() time.Time

	mu      sync.Mutex
	tasks   []core.Task
	fetched time.Time
}

// New validates opts. Nothing is fetched until the first FetchAll.
func New(opts Options, logger *slog.Logger) (*Backend, error) {
	opts, err := opts.withDefaults()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Backend{
		opts:   opts,
		client: &http.Client{Timeout: opts.Timeout},
		logger: logger.With("backend", "intx", "domain", opts.Domain),
		now:    time.Now,
	}, nil
}

func (b *Backend) SupportsCreate() bool { return false }
func (b *Backend) SupportsUpdate() bool { return false }

// FetchAll returns the cached events, refreshing them once they are older
// than the refresh interval.
func (b *Backend) FetchAll(ctx context.Context) ([]core.Task, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.refreshIfStale(ctx); err != nil {
		return nil, err
	}
	out := make([]core.Task, len(b.tasks))
	for i, t := range b.tasks {
		out[i] = t.Clone()
	}
	return out, nil
}

// FetchOne returns one cached event.
func (b *Backend) FetchOne(ctx context.Context, id string) (core.Task, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.refreshIfStale(ctx); err != nil {
		return core.Task{}, err
	}
	for _, t := range b.tasks {
		if t.ExternalID() == id {
			return t.Clone(), nil
		}
	}
	return core.Task{}, fmt.Errorf("%w: event %s", core.ErrNotFound, id)
}

func (b *Backend) Create(context.Context, core.Task) error {
	return fmt.Errorf("intx: %w", core.ErrReadOnly)
}

func (b *Backend) Update(context.Context, string, core.Task) error {
	return fmt.Errorf("intx: %w", core.ErrReadOnly)
}

// ComponentType implements introspection.Component.
func (b *Backend) ComponentType() string { return "intx" }

func (b *Backend) refreshIfStale(ctx context.Context) error {
	if !b.fetched.IsZero() && b.now().Sub(b.fetched) < b.opts.Refresh {
		return nil
	}

	body, err := b.get(ctx)
	if err != nil {
		return err
	}
	idx, err := buildIndex(body)
	if err != nil {
		return fmt.Errorf("intx: %w", err)
	}

	b.tasks = b.tasksFrom(idx)
	b.fetched = b.now()
	b.logger.Debug("events fetched", "count", len(b.tasks))
	return nil
}

func (b *Backend) url() string {
	base := b.opts.Endpoint
	if base == "" {
		base = "https://" + b.opts.Domain + "/api/intx/"
	}
	sep := "?"
	if strings.Contains(base, "?") {
		sep = "&"
	}
	return base + sep + "search&q=" + url.QueryEscape(b.opts.Query) + "&token=" + url.QueryEscape(b.opts.Key)
}

func (b *Backend) get(ctx context.Context) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.url(), nil)
	if err != nil {
		return nil, fmt.Errorf("intx: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := b.client.Do(req)
	if err != nil {
		var uerr *url.Error
		if errors.As(err, &uerr) {
			// The url carries the API token.
			err = uerr.Err
		}
		return nil, fmt.Errorf("intx: request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("intx: unexpected status %s", resp.Status)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, fmt.Errorf("intx: read response: %w", err)
	}
	return body, nil
}

func (b *Backend) tasksFrom(idx *index) []core.Task {
	var out []core.Task
	now := b.now()

	for _, id := range idx.ofType(TypeEvent) {
		doc, err := idx.document(id)
		if err != nil {
			b.logger.Warn("event skipped", "id", id, "error", err)
			continue
		}

		uri := extract(doc, b.opts.JPID)
		eid := lastSegment(uri)
		t := core.Task{
			Title: extract(doc, b.opts.JPTitle),
			Done:  b.isDone(extract(doc, b.opts.JPStatus)),
		}
		if d, ok := todotxt.ParseDate(extract(doc, b.opts.JPCreated), now); ok {
			t.Created = d
		}
		if t.Done {
			if d, ok := todotxt.ParseDate(extract(doc, b.opts.JPCompleted), now); ok {
				t.Completed = d
			}
		}
		if p := strings.ToUpper(extract(doc, b.opts.JPPriority)); len(p) == 1 && p[0] >= 'A' && p[0] <= 'Z' {
			t.Priority = p
		}

		if eid != "" {
			t = t.WithMeta(core.MetaID, eid).
				WithMeta("href", "https://"+b.opts.Domain+"/#event:"+eid)
		}
		if due := extract(doc, b.opts.JPDue); due != "" {
			if d, ok := todotxt.ParseDate(due, now); ok {
				t = t.WithMeta(todotxt.DueKey, d.Format(todotxt.DateLayout))
			}
		}
		out = append(out, t)
	}
	return out
}

func (b *Backend) isDone(status string) bool {
	if mapped, ok := b.opts.MapStatus[status]; ok {
		status = mapped
	}
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "x", "done", "complete", "completed", "finished":
		return true
	}
	return false
}

// extract evaluates a path against doc. Arrays yield their first element
// and typed data fields yield their value.
func extract(doc []byte, path string) string {
	if path == "" {
		return ""
	}
	if len(path) >= 2 && strings.HasPrefix(path, `"`) && strings.HasSuffix(path, `"`) {
		return path[1 : len(path)-1]
	}
	return unwrap(gjson.GetBytes(doc, path))
}

func unwrap(r gjson.Result) string {
	for r.IsArray() {
		items := r.Array()
		if len(items) == 0 {
			return ""
		}
		r = items[0]
	}
	if r.IsObject() {
		if r.Get("type").String() == "data" {
			return unwrap(r.Get("value"))
		}
		return ""
	}
	return strings.TrimSpace(r.String())
}

var _ core.Backend = (*Backend)(nil)
