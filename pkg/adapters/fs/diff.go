package fs

import (
	"github.com/pmezard/go-difflib/difflib"

	"github.com/aretw0/todosync/pkg/core"
)

// OpKind classifies a line-level difference.
type OpKind int

const (
	OpAdd OpKind = iota
	OpChange
	OpRemove
)

func (k OpKind) String() string {
	switch k {
	case OpAdd:
		return "add"
	case OpChange:
		return "change"
	case OpRemove:
		return "remove"
	default:
		return "unknown"
	}
}

// Op is one difference. Old is empty for adds, New is empty for removes.
type Op struct {
	Kind OpKind
	Old  string
	New  string
}

// ChangeSet is the ordered list of differences between two snapshots.
type ChangeSet []Op

// Added returns the added lines in order.
func (cs ChangeSet) Added() []string { return cs.lines(OpAdd, false) }

// Removed returns the removed lines in order.
func (cs ChangeSet) Removed() []string { return cs.lines(OpRemove, true) }

// Changed returns the edit-in-place operations.
func (cs ChangeSet) Changed() []Op {
	var out []Op
	for _, op := range cs {
		if op.Kind == OpChange {
			out = append(out, op)
		}
	}
	return out
}

func (cs ChangeSet) lines(kind OpKind, old bool) []string {
	var out []string
	for _, op := range cs {
		if op.Kind != kind {
			continue
		}
		if old {
			out = append(out, op.Old)
		} else {
			out = append(out, op.New)
		}
	}
	return out
}

// Diff computes the line differences from baseline to current. A replaced
// block pairs lines index by index as changes; the unpaired rest of the
// block becomes removes or adds.
func Diff(baseline, current []string) ChangeSet {
	var cs ChangeSet

	m := difflib.NewMatcherWithJunk(baseline, current, false, nil)
	for _, oc := range m.GetOpCodes() {
		switch oc.Tag {
		case 'e':
			continue
		case 'd':
			for _, l := range baseline[oc.I1:oc.I2] {
				cs = append(cs, Op{Kind: OpRemove, Old: l})
			}
		case 'i':
			for _, l := range current[oc.J1:oc.J2] {
				cs = append(cs, Op{Kind: OpAdd, New: l})
			}
		case 'r':
			n := min(oc.I2-oc.I1, oc.J2-oc.J1)
			for k := 0; k < n; k++ {
				cs = append(cs, Op{Kind: OpChange, Old: baseline[oc.I1+k], New: current[oc.J1+k]})
			}
			for _, l := range baseline[oc.I1+n : oc.I2] {
				cs = append(cs, Op{Kind: OpRemove, Old: l})
			}
			for _, l := range current[oc.J1+n : oc.J2] {
				cs = append(cs, Op{Kind: OpAdd, New: l})
			}
		}
	}

	return cs
}

// tasks converts a change set into records: adds and changes become parsed
// tasks, removes of bound lines become tombstones. A tombstone is dropped
// when its id reappears in the same set, which covers moved lines.
func tasks(cs ChangeSet, f core.Formatter) []core.Task {
	var (
		out        []core.Task
		tombstones []core.Task
		seen       = make(map[string]bool)
	)

	for _, op := range cs {
		switch op.Kind {
		case OpAdd, OpChange:
			t, err := f.Parse(op.New)
			if err != nil {
				continue
			}
			if id := t.ExternalID(); id != "" {
				seen[t.SourceID()+"\x00"+id] = true
			}
			out = append(out, t)
		case OpRemove:
			t, err := f.Parse(op.Old)
			if err != nil || t.ExternalID() == "" {
				continue
			}
			tombstones = append(tombstones, core.Tombstone(t))
		}
	}

	for _, t := range tombstones {
		if !seen[t.SourceID()+"\x00"+t.ExternalID()] {
			out = append(out, t)
		}
	}
	return out
}
