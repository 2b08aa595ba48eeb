// Package fs implements line-oriented stores on the local filesystem.
//
// A Store owns one todo file. It remembers the content it last wrote or
// acknowledged (the baseline) and reports external edits as parsed tasks.
package fs

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/aretw0/todosync/pkg/core"
)

const eventBuffer = 64

// Option configures a Store.
type Option func(*options)

type options struct {
	logger   *slog.Logger
	readOnly bool
	polling  bool
	create   bool
	perm     os.FileMode
}

// WithLogger sets the store logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithReadOnly opens the file for reading only. Write fails with
// core.ErrReadOnly.
func WithReadOnly() Option {
	return func(o *options) {
		o.readOnly = true
	}
}

// WithPolling disables filesystem notifications and compares file
// metadata on every HasChanges call instead.
func WithPolling() Option {
	return func(o *options) {
		o.polling = true
	}
}

// WithCreate creates the file when it does not exist.
func WithCreate() Option {
	return func(o *options) {
		o.create = true
	}
}

// Store is a watched todo file.
type Store struct {
	path   string
	format core.Formatter
	opts   options
	logger *slog.Logger

	mu       sync.Mutex
	file     *os.File
	info     os.FileInfo
	watcher  *fsnotify.Watcher
	baseline []string
	queue    []core.Task

	touched  bool // content event seen since the last check
	replaced bool // identity event seen, maybe not resolved yet
	locked   bool
	closed   bool

	writes    int
	lastWrite time.Time
	lastEdit  time.Time
}

// Open opens path and takes its current content as the baseline.
func Open(path string, f core.Formatter, opts ...Option) (*Store, error) {
	o := options{perm: 0o644}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", path, err)
	}

	s := &Store{
		path:   abs,
		format: f,
		opts:   o,
		logger: o.logger.With("store", abs),
	}

	file, err := s.openFile()
	if err != nil {
		return nil, err
	}
	s.file = file

	if s.info, err = file.Stat(); err != nil {
		file.Close()
		return nil, fmt.Errorf("stat %s: %w", abs, err)
	}
	if s.baseline, err = readLines(file); err != nil {
		file.Close()
		return nil, fmt.Errorf("read %s: %w", abs, err)
	}

	if !o.polling {
		if err := s.watch(); err != nil {
			s.logger.Warn("file notifications unavailable, polling instead", "error", err)
		}
	}

	return s, nil
}

func (s *Store) openFile() (*os.File, error) {
	flag := os.O_RDWR
	if s.opts.readOnly {
		flag = os.O_RDONLY
	} else if s.opts.create {
		flag |= os.O_CREATE
	}
	file, err := os.OpenFile(s.path, flag, s.opts.perm)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", s.path, err)
	}
	return file, nil
}

// watch observes the parent directory so rename-over replacements of the
// file are seen as well as in-place writes.
func (s *Store) watch() error {
	w, err := fsnotify.NewBufferedWatcher(eventBuffer)
	if err != nil {
		return err
	}
	if err := w.Add(filepath.Dir(s.path)); err != nil {
		w.Close()
		return err
	}
	s.watcher = w
	return nil
}

// Path returns the absolute file path.
func (s *Store) Path() string { return s.path }

// HasChanges reports whether external edits are waiting in the queue. It
// never blocks: notifications already delivered are consumed and, if they
// concern the file, its content is compared with the baseline. Detected
// changes are queued and become the new baseline.
func (s *Store) HasChanges() (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false, os.ErrClosed
	}
	if err := s.observe(); err != nil {
		return len(s.queue) > 0, err
	}
	return len(s.queue) > 0, nil
}

// Changes drains the queue filled by HasChanges.
func (s *Store) Changes() []core.Task {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := s.queue
	s.queue = nil
	return out
}

// Write replaces the file content with tasks. Identical content is not
// written again. Write fails with core.ErrUnreadChanges while external
// edits are queued or newly detected, with core.ErrReplacing while the path
// is missing, and with core.ErrLocked when another writer holds the lock.
func (s *Store) Write(tasks []core.Task, strip ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return os.ErrClosed
	}
	if s.opts.readOnly {
		return fmt.Errorf("%w: %s", core.ErrReadOnly, s.path)
	}

	if err := s.observe(); err != nil {
		return err
	}
	if s.replaced {
		// The open handle is unlinked; writing to it would be lost.
		return fmt.Errorf("%w: %s", core.ErrReplacing, s.path)
	}
	if len(s.queue) > 0 {
		return fmt.Errorf("%w: %d pending in %s", core.ErrUnreadChanges, len(s.queue), s.path)
	}

	lines := make([]string, 0, len(tasks))
	for _, t := range tasks {
		if l := strings.TrimSpace(s.format.Format(t, strip...)); l != "" {
			lines = append(lines, l)
		}
	}
	if slices.Equal(lines, s.baseline) {
		return nil
	}

	release, err := s.lock()
	if err != nil {
		return err
	}
	defer release()

	if err := writeInPlace(s.file, render(lines)); err != nil {
		return fmt.Errorf("write %s: %w", s.path, err)
	}

	s.baseline = lines
	s.writes++
	s.lastWrite = time.Now()
	s.discardEvents()
	if info, err := s.file.Stat(); err == nil {
		s.info = info
	}

	s.logger.Debug("store written", "lines", len(lines))
	return nil
}

// Read parses the current file content, independent of change tracking.
func (s *Store) Read() ([]core.Task, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", s.path, err)
	}

	var out []core.Task
	for _, l := range splitLines(data) {
		t, err := s.format.Parse(l)
		if err != nil {
			continue
		}
		out = append(out, t)
	}
	return out, nil
}

// Lock takes the exclusive lock without waiting. The returned function
// releases it. A nested Lock on a store that already holds the lock returns
// a no-op release.
func (s *Store) Lock() (func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	release, err := s.lock()
	if err != nil {
		return nil, err
	}
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		release()
	}, nil
}

// Locked reports whether this store holds the lock.
func (s *Store) Locked() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.locked
}

// Writes returns the number of physical writes made by this store.
func (s *Store) Writes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes
}

// Close stops notifications and releases the file.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	var errs []error
	if s.watcher != nil {
		errs = append(errs, s.watcher.Close())
	}
	if s.locked {
		errs = append(errs, unlock(s.file))
		s.locked = false
	}
	errs = append(errs, s.file.Close())
	return errors.Join(errs...)
}

// lock must be called with mu held; so must the returned release.
func (s *Store) lock() (func(), error) {
	if s.locked {
		return func() {}, nil
	}
	if err := tryLock(s.file); err != nil {
		if errors.Is(err, core.ErrLocked) {
			s.logger.Info("store locked by another writer")
			return nil, fmt.Errorf("%w: %s", core.ErrLocked, s.path)
		}
		return nil, fmt.Errorf("lock %s: %w", s.path, err)
	}
	s.locked = true
	return func() {
		if err := unlock(s.file); err != nil {
			s.logger.Warn("unlock failed", "error", err)
		}
		s.locked = false
	}, nil
}

// observe collects notifications (or polls) and turns whatever changed into
// queued tasks. Called with mu held.
func (s *Store) observe() error {
	if s.watcher != nil {
		s.drainEvents()
	} else {
		s.poll()
	}

	if s.replaced {
		done, err := s.resolveIdentity()
		if err != nil {
			return err
		}
		if done {
			s.replaced = false
			s.touched = false
		}
	}

	if s.touched {
		s.touched = false
		lines, err := readLines(s.file)
		if err != nil {
			return fmt.Errorf("read %s: %w", s.path, err)
		}
		s.detect(lines)
	}
	return nil
}

func (s *Store) drainEvents() {
	for {
		select {
		case ev, ok := <-s.watcher.Events:
			if !ok {
				s.logger.Warn("notification channel closed, polling instead")
				s.watcher = nil
				s.poll()
				return
			}
			if filepath.Clean(ev.Name) != s.path {
				continue
			}
			if ev.Has(fsnotify.Write) {
				s.touched = true
			}
			if ev.Has(fsnotify.Create) || ev.Has(fsnotify.Rename) || ev.Has(fsnotify.Remove) {
				s.replaced = true
			}
		case err, ok := <-s.watcher.Errors:
			if ok {
				s.logger.Warn("notification error", "error", err)
			}
		default:
			return
		}
	}
}

// discardEvents drops notifications caused by our own write.
func (s *Store) discardEvents() {
	if s.watcher == nil {
		return
	}
	for {
		select {
		case ev, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) == s.path && !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Chmod) {
				// Someone else replaced the file meanwhile.
				s.replaced = true
			}
		default:
			return
		}
	}
}

func (s *Store) poll() {
	info, err := os.Stat(s.path)
	if err != nil {
		s.replaced = true
		return
	}
	if !os.SameFile(info, s.info) {
		s.replaced = true
		return
	}
	if info.Size() != s.info.Size() || !info.ModTime().Equal(s.info.ModTime()) {
		s.touched = true
		s.info = info
	}
}

// resolveIdentity checks whether the path now names a different file. If
// so, the old handle is diffed one last time against the baseline, then the
// new file is opened and diffed in turn. It reports false while the path is
// missing so the check is retried.
func (s *Store) resolveIdentity() (bool, error) {
	info, err := os.Stat(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("stat %s: %w", s.path, err)
	}

	current, err := s.file.Stat()
	if err == nil && os.SameFile(info, current) {
		lines, err := readLines(s.file)
		if err != nil {
			return false, fmt.Errorf("read %s: %w", s.path, err)
		}
		s.detect(lines)
		return true, nil
	}

	if old, err := readLines(s.file); err == nil {
		s.detect(old)
	}

	file, err := s.openFile()
	if err != nil {
		return false, err
	}

	wasLocked := s.locked
	if wasLocked {
		if err := tryLock(file); err != nil {
			s.logger.Warn("could not carry lock over to replaced file", "error", err)
			wasLocked = false
		}
		_ = unlock(s.file)
	}
	s.file.Close()

	s.file = file
	s.info = info
	s.locked = wasLocked

	lines, err := readLines(file)
	if err != nil {
		return true, fmt.Errorf("read %s: %w", s.path, err)
	}
	s.detect(lines)

	s.logger.Debug("store file replaced, reopened")
	return true, nil
}

func (s *Store) detect(lines []string) {
	if slices.Equal(lines, s.baseline) {
		return
	}

	cs := Diff(s.baseline, lines)
	found := tasks(cs, s.format)
	s.baseline = lines
	s.lastEdit = time.Now()

	s.logger.Debug("external edit",
		"added", len(cs.Added()), "changed", len(cs.Changed()), "removed", len(cs.Removed()))
	s.queue = append(s.queue, found...)
}

func readLines(f *os.File) ([]string, error) {
	data, err := io.ReadAll(io.NewSectionReader(f, 0, math.MaxInt64))
	if err != nil {
		return nil, err
	}
	return splitLines(data), nil
}

// splitLines trims every line and drops blank ones.
func splitLines(data []byte) []string {
	var out []string
	for _, l := range strings.Split(string(data), "\n") {
		if l = strings.TrimSpace(l); l != "" {
			out = append(out, l)
		}
	}
	return out
}

func render(lines []string) []byte {
	if len(lines) == 0 {
		return nil
	}
	return []byte(strings.Join(lines, "\n") + "\n")
}

// writeInPlace rewrites the open file so the handle and its lock stay valid.
func writeInPlace(f *os.File, data []byte) error {
	if err := f.Truncate(0); err != nil {
		return err
	}
	if _, err := f.WriteAt(data, 0); err != nil {
		return err
	}
	return f.Sync()
}

var _ core.WatchedStore = (*Store)(nil)
