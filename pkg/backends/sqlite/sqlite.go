// Package sqlite is a backend over a SQLite task table.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"time"

	"github.com/google/uuid"
	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/aretw0/todosync/pkg/core"
	"github.com/aretw0/todosync/pkg/todotxt"
)

const schema = `
CREATE TABLE IF NOT EXISTS tasks (
	id         TEXT PRIMARY KEY,
	title      TEXT NOT NULL,
	done       INTEGER NOT NULL DEFAULT 0,
	priority   TEXT NOT NULL DEFAULT '',
	created    TEXT NOT NULL DEFAULT '',
	completed  TEXT NOT NULL DEFAULT '',
	contexts   TEXT NOT NULL DEFAULT '[]',
	projects   TEXT NOT NULL DEFAULT '[]',
	meta       TEXT NOT NULL DEFAULT '{}',
	updated_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_tasks_done ON tasks(done);
`

const columns = `id, title, done, priority, created, completed, contexts, projects, meta`

// Options configure the backend.
type Options struct {
	Path string `mapstructure:"path"`
}

// Backend stores tasks in a SQLite database.
type Backend struct {
	db     *sql.DB
	path   string
	logger *slog.Logger
}

// New opens (or creates) the database at opts.Path.
func New(opts Options, logger *slog.Logger) (*Backend, error) {
	if opts.Path == "" {
		return nil, errors.New("sqlite: path is required")
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s", opts.Path))
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %s: %w", opts.Path, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: ping %s: %w", opts.Path, err)
	}

	for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA busy_timeout=5000"} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("sqlite: %s: %w", pragma, err)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: schema: %w", err)
	}

	return &Backend{
		db:     db,
		path:   opts.Path,
		logger: logger.With("backend", "sqlite", "path", opts.Path),
	}, nil
}

func (b *Backend) SupportsCreate() bool { return true }
func (b *Backend) SupportsUpdate() bool { return true }

// ComponentType implements introspection.Component.
func (b *Backend) ComponentType() string { return "sqlite" }

// FetchAll returns every task in insertion order.
func (b *Backend) FetchAll(ctx context.Context) ([]core.Task, error) {
	rows, err := b.db.QueryContext(ctx, `SELECT `+columns+` FROM tasks ORDER BY rowid`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: query: %w", err)
	}
	defer rows.Close()

	var out []core.Task
	for rows.Next() {
		t, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: query: %w", err)
	}
	return out, nil
}

func (b *Backend) FetchOne(ctx context.Context, id string) (core.Task, error) {
	row := b.db.QueryRowContext(ctx, `SELECT `+columns+` FROM tasks WHERE id = ?`, id)
	t, err := scan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Task{}, fmt.Errorf("%w: %s in %s", core.ErrNotFound, id, b.path)
	}
	return t, err
}

func (b *Backend) Create(ctx context.Context, t core.Task) error {
	r, err := toRow(t)
	if err != nil {
		return err
	}
	_, err = b.db.ExecContext(ctx, `
		INSERT INTO tasks (`+columns+`, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		uuid.NewString(), r.title, r.done, r.priority, r.created, r.completed,
		r.contexts, r.projects, r.meta, now())
	if err != nil {
		return fmt.Errorf("sqlite: insert: %w", err)
	}
	return nil
}

func (b *Backend) Update(ctx context.Context, id string, t core.Task) error {
	r, err := toRow(t)
	if err != nil {
		return err
	}
	res, err := b.db.ExecContext(ctx, `
		UPDATE tasks
		SET title = ?, done = ?, priority = ?, created = ?, completed = ?,
		    contexts = ?, projects = ?, meta = ?, updated_at = ?
		WHERE id = ?`,
		r.title, r.done, r.priority, r.created, r.completed,
		r.contexts, r.projects, r.meta, now(), id)
	if err != nil {
		return fmt.Errorf("sqlite: update: %w", err)
	}
	return b.affected(res, id)
}

func (b *Backend) Delete(ctx context.Context, id string) error {
	res, err := b.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite: delete: %w", err)
	}
	return b.affected(res, id)
}

// Close checkpoints the WAL and closes the database.
func (b *Backend) Close() error {
	if _, err := b.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		b.logger.Warn("wal checkpoint failed", "error", err)
	}
	return b.db.Close()
}

func (b *Backend) affected(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s in %s", core.ErrNotFound, id, b.path)
	}
	return nil
}

type row struct {
	title, priority, created, completed string
	done                                bool
	contexts, projects, meta            string
}

func toRow(t core.Task) (row, error) {
	r := row{title: t.Title, done: t.Done, priority: t.Priority}
	if !t.Created.IsZero() {
		r.created = t.Created.Format(todotxt.DateLayout)
	}
	if !t.Completed.IsZero() {
		r.completed = t.Completed.Format(todotxt.DateLayout)
	}

	meta := maps.Clone(t.Metadata)
	delete(meta, core.MetaSource)
	delete(meta, core.MetaID)

	var err error
	if r.contexts, err = encode(t.Contexts, "[]"); err != nil {
		return row{}, err
	}
	if r.projects, err = encode(t.Projects, "[]"); err != nil {
		return row{}, err
	}
	if r.meta, err = encode(meta, "{}"); err != nil {
		return row{}, err
	}
	return r, nil
}

func encode[T any](v T, empty string) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("sqlite: encode: %w", err)
	}
	if string(data) == "null" {
		return empty, nil
	}
	return string(data), nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scan(s scanner) (core.Task, error) {
	var (
		id                       string
		r                        row
		contexts, projects, meta []byte
	)
	err := s.Scan(&id, &r.title, &r.done, &r.priority, &r.created, &r.completed, &contexts, &projects, &meta)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.Task{}, err
		}
		return core.Task{}, fmt.Errorf("sqlite: scan: %w", err)
	}

	t := core.Task{Title: r.title, Done: r.done, Priority: r.priority}
	if d, err := time.Parse(todotxt.DateLayout, r.created); err == nil {
		t.Created = d
	}
	if d, err := time.Parse(todotxt.DateLayout, r.completed); err == nil {
		t.Completed = d
	}
	if err := json.Unmarshal(contexts, &t.Contexts); err != nil {
		return core.Task{}, fmt.Errorf("sqlite: contexts of %s: %w", id, err)
	}
	if err := json.Unmarshal(projects, &t.Projects); err != nil {
		return core.Task{}, fmt.Errorf("sqlite: projects of %s: %w", id, err)
	}
	if err := json.Unmarshal(meta, &t.Metadata); err != nil {
		return core.Task{}, fmt.Errorf("sqlite: meta of %s: %w", id, err)
	}
	if len(t.Contexts) == 0 {
		t.Contexts = nil
	}
	if len(t.Projects) == 0 {
		t.Projects = nil
	}
	return t.WithMeta(core.MetaID, id), nil
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339)
}

var _ core.Backend = (*Backend)(nil)
var _ core.Deleter = (*Backend)(nil)
