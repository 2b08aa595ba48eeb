// Package staging ingests todo files dropped into a directory.
//
// Producers should write elsewhere (or under a hidden or .tmp name) and
// rename the finished file into the directory. Every matching regular file
// is then a complete batch.
package staging

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/aretw0/todosync/pkg/core"
	"github.com/aretw0/todosync/pkg/todotxt"
)

// DefaultMask matches plain text files.
const DefaultMask = "*.txt"

// partial suffixes mark files that are still being written.
var partial = []string{".tmp", ".part", "~"}

// Dir is a staging directory. It keeps no state between scans.
type Dir struct {
	path     string
	patterns []string
	format   core.Formatter
	logger   *slog.Logger
}

// NewDir validates mask, a list of glob patterns joined with "|", and
// checks that path is a directory.
func NewDir(path, mask string, f core.Formatter, logger *slog.Logger) (*Dir, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if strings.TrimSpace(mask) == "" {
		mask = DefaultMask
	}

	var patterns []string
	for _, p := range strings.Split(mask, "|") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if !doublestar.ValidatePattern(p) {
			return nil, fmt.Errorf("invalid staging pattern %q", p)
		}
		patterns = append(patterns, p)
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("staging dir: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("staging dir %s is not a directory", path)
	}

	return &Dir{
		path:     path,
		patterns: patterns,
		format:   f,
		logger:   logger.With("staging", path),
	}, nil
}

// Path returns the directory.
func (d *Dir) Path() string { return d.path }

// Ready lists complete batches sorted by name.
func (d *Dir) Ready() ([]core.Batch, error) {
	entries, err := os.ReadDir(d.path)
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", d.path, err)
	}

	var out []core.Batch
	for _, e := range entries {
		if !e.Type().IsRegular() || !d.accepts(e.Name()) {
			continue
		}
		out = append(out, &File{dir: d, name: e.Name()})
	}
	return out, nil
}

func (d *Dir) accepts(name string) bool {
	if strings.HasPrefix(name, ".") {
		return false
	}
	for _, suffix := range partial {
		if strings.HasSuffix(name, suffix) {
			return false
		}
	}
	for _, p := range d.patterns {
		if ok, _ := doublestar.Match(p, name); ok {
			return true
		}
	}
	return false
}

// File is one staged batch.
type File struct {
	dir  *Dir
	name string
}

// Name returns the file name within the staging directory.
func (f *File) Name() string { return f.name }

func (f *File) path() string { return filepath.Join(f.dir.path, f.name) }

// Read parses every non-blank line. Relative due dates such as
// "due:tomorrow" are resolved against the current day.
func (f *File) Read() ([]core.Task, error) {
	data, err := os.ReadFile(f.path())
	if err != nil {
		return nil, fmt.Errorf("read batch %s: %w", f.name, err)
	}

	now := time.Now()
	tasks := todotxt.ParseLines(f.dir.format, strings.Split(string(data), "\n"))
	for i, t := range tasks {
		tasks[i] = todotxt.NormalizeDue(t, now)
	}
	return tasks, nil
}

// Remove deletes the batch. A file that is already gone is not an error.
func (f *File) Remove() error {
	err := os.Remove(f.path())
	if errors.Is(err, fs.ErrNotExist) {
		f.dir.logger.Debug("batch already removed", "batch", f.name)
		return nil
	}
	return err
}

var _ core.BatchSource = (*Dir)(nil)
var _ core.Batch = (*File)(nil)
