package todotxt_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/todosync/pkg/core"
	"github.com/aretw0/todosync/pkg/todotxt"
)

func day(s string) time.Time {
	d, _ := time.Parse(todotxt.DateLayout, s)
	return d
}

func TestParse(t *testing.T) {
	f := todotxt.New()

	tests := []struct {
		line string
		want core.Task
	}{
		{
			line: "(A) 2024-03-01 Call mom @phone +family due:2024-03-05",
			want: core.Task{
				Title:    "Call mom",
				Priority: "A",
				Created:  day("2024-03-01"),
				Contexts: []string{"phone"},
				Projects: []string{"family"},
				Metadata: core.Metadata{"due": "2024-03-05"},
			},
		},
		{
			line: "x 2024-03-04 2024-03-01 Pay rent pri:B",
			want: core.Task{
				Title:     "Pay rent",
				Done:      true,
				Completed: day("2024-03-04"),
				Created:   day("2024-03-01"),
				Priority:  "B",
			},
		},
		{
			line: "Read https://example.com/a:b later",
			want: core.Task{Title: "Read https://example.com/a:b later"},
		},
		{
			line: "  padded   words  ",
			want: core.Task{Title: "padded words"},
		},
		{
			line: "x done without dates",
			want: core.Task{Title: "done without dates", Done: true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			got, err := f.Parse(tt.line)
			require.NoError(t, err)
			tt.want.Raw = got.Raw
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParse_EmptyLine(t *testing.T) {
	_, err := todotxt.New().Parse("   ")
	assert.ErrorIs(t, err, todotxt.ErrEmptyLine)
}

func TestFormat_StableOrder(t *testing.T) {
	f := todotxt.New()
	task := core.Task{
		Title:    "Write report",
		Priority: "C",
		Contexts: []string{"work"},
		Projects: []string{"q1"},
		Metadata: core.Metadata{"zeta": "1", "alpha": "2", core.MetaSource: "main", core.MetaID: "abc"},
	}

	line := f.Format(task)
	assert.Equal(t, "(C) Write report @work +q1 alpha:2 external-id:abc source-id:main zeta:1", line)

	for i := 0; i < 10; i++ {
		assert.Equal(t, line, f.Format(task))
	}
}

func TestFormat_Strip(t *testing.T) {
	f := todotxt.New()
	task := core.Task{Title: "t", Metadata: core.Metadata{core.MetaSource: "main", core.MetaID: "1"}}

	assert.Equal(t, "t external-id:1", f.Format(task, core.MetaSource))
	// The task itself is untouched.
	assert.Equal(t, "main", task.SourceID())
}

func TestFormat_DoneKeepsPriorityAsMetadata(t *testing.T) {
	f := todotxt.New()
	task := core.Task{Title: "t", Done: true, Priority: "A", Completed: day("2024-01-02")}
	assert.Equal(t, "x 2024-01-02 t pri:A", f.Format(task))
}

func TestRoundTrip(t *testing.T) {
	f := todotxt.New()
	lines := []string{
		"(A) 2024-03-01 Call mom @phone +family due:2024-03-05",
		"x 2024-03-04 2024-03-01 Pay rent pri:B external-id:42 source-id:main",
		"Tags first @a +b in the middle",
		"Visit https://example.com/path",
	}

	for _, line := range lines {
		t.Run(line, func(t *testing.T) {
			first, err := f.Parse(line)
			require.NoError(t, err)

			formatted := f.Format(first)
			second, err := f.Parse(formatted)
			require.NoError(t, err)

			second.Raw, first.Raw = "", ""
			assert.Equal(t, first, second)
			assert.Equal(t, formatted, f.Format(second), "formatting must be idempotent")
		})
	}
}

func TestRoundTrip_Records(t *testing.T) {
	f := todotxt.New()
	tests := []struct {
		name string
		task core.Task
		line string
	}{
		{
			name: "title starting with x",
			task: core.Task{Title: "x marks the spot"},
			line: `\x marks the spot`,
		},
		{
			name: "done with only a creation date",
			task: core.Task{Title: "Old chore", Done: true, Created: day("2024-01-02")},
			line: "x Old chore created:2024-01-02",
		},
		{
			name: "title word with a colon",
			task: core.Task{Title: "Standup at 10:30"},
			line: `Standup at \10:30`,
		},
		{
			name: "metadata value with whitespace",
			task: core.Task{Title: "t", Metadata: core.Metadata{"note": "two words"}},
			line: "t note:two%20words",
		},
		{
			name: "title starting with a priority",
			task: core.Task{Title: "(B) is a grade"},
			line: `\(B) is a grade`,
		},
		{
			name: "title starting with a date",
			task: core.Task{Title: "2024-05-01 kickoff", Priority: "A"},
			line: `(A) \2024-05-01 kickoff`,
		},
		{
			name: "title with tag-like words",
			task: core.Task{Title: `email @bob about +1 and C:\temp`, Contexts: []string{"mail"}},
			line: `email \@bob about \+1 and \C:\temp @mail`,
		},
		{
			name: "metadata value with percent and leading slash",
			task: core.Task{Title: "t", Metadata: core.Metadata{"path": "/tmp/50%"}},
			line: "t path:%2Ftmp/50%25",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			line := f.Format(tt.task)
			assert.Equal(t, tt.line, line)

			got, err := f.Parse(line)
			require.NoError(t, err)
			got.Raw = ""
			assert.Equal(t, tt.task, got)
		})
	}
}

func TestParse_KeepsLiteralPercent(t *testing.T) {
	task, err := todotxt.New().Parse("Discount progress:50%")
	require.NoError(t, err)
	assert.Equal(t, "50%", task.Metadata["progress"])
}

func TestParseLines_SkipsBlanks(t *testing.T) {
	tasks := todotxt.ParseLines(todotxt.New(), []string{"a", "", "  ", "b"})
	require.Len(t, tasks, 2)
	assert.Equal(t, "a", tasks[0].Title)
	assert.Equal(t, "b", tasks[1].Title)
}

func TestParseDate(t *testing.T) {
	now := time.Date(2024, 3, 6, 10, 0, 0, 0, time.UTC) // a Wednesday

	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"2024-03-10", "2024-03-10", true},
		{"2024-03-10 12:30:00", "2024-03-10", true},
		{"tomorrow", "2024-03-07", true},
		{"", "", false},
		{"banana", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := todotxt.ParseDate(tt.in, now)
			require.Equal(t, tt.ok, ok)
			if ok {
				assert.Equal(t, tt.want, got.Format(todotxt.DateLayout))
			}
		})
	}
}

func TestNormalizeDue(t *testing.T) {
	now := time.Date(2024, 3, 6, 10, 0, 0, 0, time.UTC)

	task := core.Task{Title: "t", Metadata: core.Metadata{todotxt.DueKey: "tomorrow"}}
	got := todotxt.NormalizeDue(task, now)
	assert.Equal(t, "2024-03-07", got.Metadata[todotxt.DueKey])
	assert.Equal(t, "tomorrow", task.Metadata[todotxt.DueKey], "input is not mutated")

	plain := core.Task{Title: "no due"}
	assert.Equal(t, plain, todotxt.NormalizeDue(plain, now))
}
