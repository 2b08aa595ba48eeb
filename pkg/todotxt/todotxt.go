// Package todotxt reads and writes the todo.txt line format.
//
// A line is laid out as
//
//	[x [completed] [created]] | [(P) [created]] title @context +project key:value
//
// Tags may appear anywhere in the input; on output they follow the title
// in a fixed order so formatting is stable.
//
// Title words that would otherwise read as a marker, a tag or metadata are
// written with a leading backslash (\x, \10:30). Metadata values are
// percent-encoded where they hold whitespace, "%" or a leading "/".
package todotxt

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"slices"
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/aretw0/todosync/pkg/core"
)

// DateLayout is the todo.txt date format.
const DateLayout = "2006-01-02"

// PriorityKey carries the priority of completed tasks, which may not use
// the "(A)" prefix.
const PriorityKey = "pri"

// CreatedKey carries the creation date of completed tasks that have no
// completion date, since the line layout only allows a creation date after
// one.
const CreatedKey = "created"

// ErrEmptyLine is returned by Parse for blank input.
var ErrEmptyLine = errors.New("todotxt: empty line")

var (
	priorityRe = regexp.MustCompile(`^\(([A-Z])\)$`)
	dateRe     = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
)

// Formatter implements core.Formatter for todo.txt lines.
type Formatter struct{}

// New returns a todo.txt formatter.
func New() Formatter { return Formatter{} }

// Parse converts one line into a task.
func (Formatter) Parse(line string) (core.Task, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return core.Task{}, ErrEmptyLine
	}

	t := core.Task{Raw: line}
	words := strings.Fields(line)

	if words[0] == "x" {
		t.Done = true
		words = words[1:]
		if d, ok := date(words); ok {
			t.Completed = d
			words = words[1:]
			if d, ok := date(words); ok {
				t.Created = d
				words = words[1:]
			}
		}
	} else {
		if len(words) > 0 {
			if m := priorityRe.FindStringSubmatch(words[0]); m != nil {
				t.Priority = m[1]
				words = words[1:]
			}
		}
		if d, ok := date(words); ok {
			t.Created = d
			words = words[1:]
		}
	}

	var title []string
	for _, w := range words {
		switch {
		case len(w) > 1 && w[0] == '\\':
			title = append(title, w[1:])
		case len(w) > 1 && w[0] == '@':
			if !slices.Contains(t.Contexts, w[1:]) {
				t.Contexts = append(t.Contexts, w[1:])
			}
		case len(w) > 1 && w[0] == '+':
			if !slices.Contains(t.Projects, w[1:]) {
				t.Projects = append(t.Projects, w[1:])
			}
		default:
			if k, v, ok := metaToken(w); ok {
				if t.Metadata == nil {
					t.Metadata = make(core.Metadata)
				}
				t.Metadata[k] = v
				continue
			}
			title = append(title, w)
		}
	}
	t.Title = strings.Join(title, " ")

	if t.Done {
		if p, ok := t.Metadata[PriorityKey]; ok && priorityRe.MatchString("("+p+")") {
			t.Priority = p
			delete(t.Metadata, PriorityKey)
		}
		if t.Completed.IsZero() && t.Created.IsZero() {
			if d, ok := date([]string{t.Metadata[CreatedKey]}); ok {
				t.Created = d
				delete(t.Metadata, CreatedKey)
			}
		}
	}
	if len(t.Metadata) == 0 {
		t.Metadata = nil
	}

	return t, nil
}

// Format renders t as a single line, leaving out metadata keys listed in
// strip. Metadata is written sorted by key.
func (Formatter) Format(t core.Task, strip ...string) string {
	var parts []string

	if t.Done {
		parts = append(parts, "x")
		if !t.Completed.IsZero() {
			parts = append(parts, t.Completed.Format(DateLayout))
			if !t.Created.IsZero() {
				parts = append(parts, t.Created.Format(DateLayout))
			}
		}
	} else {
		if t.Priority != "" {
			parts = append(parts, "("+t.Priority+")")
		}
		if !t.Created.IsZero() {
			parts = append(parts, t.Created.Format(DateLayout))
		}
	}

	for i, w := range strings.Fields(t.Title) {
		if ambiguous(w, i == 0) {
			w = `\` + w
		}
		parts = append(parts, w)
	}
	for _, c := range t.Contexts {
		parts = append(parts, "@"+c)
	}
	for _, p := range t.Projects {
		parts = append(parts, "+"+p)
	}

	meta := make(map[string]string, len(t.Metadata)+1)
	for k, v := range t.Metadata {
		meta[k] = v
	}
	if t.Done && t.Priority != "" {
		meta[PriorityKey] = t.Priority
	}
	if t.Done && t.Completed.IsZero() && !t.Created.IsZero() {
		meta[CreatedKey] = t.Created.Format(DateLayout)
	}
	for _, k := range strip {
		delete(meta, k)
	}

	keys := make([]string, 0, len(meta))
	for k, v := range meta {
		// Empty values and keys with separators have no representation.
		if validKey(k) && v != "" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		parts = append(parts, k+":"+encodeValue(meta[k]))
	}

	return strings.Join(parts, " ")
}

// ParseLines parses every non-blank line, skipping blanks.
func ParseLines(f core.Formatter, lines []string) []core.Task {
	tasks := make([]core.Task, 0, len(lines))
	for _, l := range lines {
		t, err := f.Parse(l)
		if err != nil {
			continue
		}
		tasks = append(tasks, t)
	}
	return tasks
}

func date(words []string) (time.Time, bool) {
	if len(words) == 0 || !dateRe.MatchString(words[0]) {
		return time.Time{}, false
	}
	d, err := time.Parse(DateLayout, words[0])
	if err != nil {
		return time.Time{}, false
	}
	return d, true
}

func metaToken(w string) (string, string, bool) {
	k, v, ok := strings.Cut(w, ":")
	if !ok || !validKey(k) || !validValue(v) {
		return "", "", false
	}
	return k, decodeValue(v), true
}

// ambiguous reports whether a title word would not parse back as itself.
// first marks the word written right after the done, priority and date
// prefix.
func ambiguous(w string, first bool) bool {
	switch {
	case w[0] == '\\':
		return true
	case len(w) > 1 && (w[0] == '@' || w[0] == '+'):
		return true
	case first && (w == "x" || priorityRe.MatchString(w) || dateRe.MatchString(w)):
		return true
	}
	_, _, meta := metaToken(w)
	return meta
}

func encodeValue(v string) string {
	var b strings.Builder
	for i, r := range v {
		if r == '%' || unicode.IsSpace(r) || (i == 0 && r == '/') {
			for _, c := range []byte(string(r)) {
				fmt.Fprintf(&b, "%%%02X", c)
			}
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// decodeValue reverses encodeValue. Values that are not valid escapes, such
// as a hand-written "50%", are kept as they are.
func decodeValue(v string) string {
	if !strings.Contains(v, "%") {
		return v
	}
	d, err := url.PathUnescape(v)
	if err != nil {
		return v
	}
	return d
}

func validKey(k string) bool {
	return k != "" && !strings.ContainsAny(k, " \t:") && k[0] != '@' && k[0] != '+'
}

func validValue(v string) bool {
	return v != "" && !strings.ContainsAny(v, " \t") && v[0] != '/'
}

var _ core.Formatter = Formatter{}
