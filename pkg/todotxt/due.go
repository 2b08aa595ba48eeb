package todotxt

import (
	"strings"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"

	"github.com/aretw0/todosync/pkg/core"
)

// DueKey is the conventional due-date metadata key.
const DueKey = "due"

var natural = func() *when.Parser {
	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	return w
}()

// ParseDate reads a date that is either ISO formatted (a time part after the
// date is ignored) or written in English relative to now, e.g. "tomorrow"
// or "next friday". Hyphens and underscores count as spaces so relative
// dates survive as metadata values ("due:next-friday").
func ParseDate(s string, now time.Time) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	if len(s) >= len(DateLayout) {
		if d, err := time.Parse(DateLayout, s[:len(DateLayout)]); err == nil {
			return d, true
		}
	}

	text := strings.NewReplacer("-", " ", "_", " ").Replace(s)
	r, err := natural.Parse(text, now)
	if err != nil || r == nil {
		return time.Time{}, false
	}
	y, m, d := r.Time.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC), true
}

// NormalizeDue rewrites a relative due date into DateLayout. Tasks without
// a due date, or with one that cannot be read, are returned unchanged.
func NormalizeDue(t core.Task, now time.Time) core.Task {
	due, ok := t.Meta(DueKey)
	if !ok {
		return t
	}
	d, ok := ParseDate(due, now)
	if !ok {
		return t
	}
	if formatted := d.Format(DateLayout); formatted != due {
		return t.WithMeta(DueKey, formatted)
	}
	return t
}
