package route

import (
	"fmt"
	"strings"
)

// Entry pairs a predicate with the handler it selects.
type Entry[H any] struct {
	Match   Predicate
	Handler H
}

// Table is an ordered, first-match route table with an optional default.
//
// Register and RegisterDefault are configuration-time calls; once the
// table is handed to a server it must not be modified.
type Table[H any] struct {
	entries    []Entry[H]
	def        H
	hasDefault bool
}

// New returns an empty table.
func New[H any]() *Table[H] {
	return &Table[H]{}
}

// Register appends an entry. Entries are evaluated in registration order.
func (t *Table[H]) Register(p Predicate, h H) {
	t.entries = append(t.entries, Entry[H]{Match: p, Handler: h})
}

// RegisterDefault sets the handler used when no entry matches.
// A later call replaces an earlier one.
func (t *Table[H]) RegisterDefault(h H) {
	t.def = h
	t.hasDefault = true
}

// Resolve returns the handler of the first entry whose predicate matches,
// else the default handler. ok is false when nothing matched and no default
// is set; the request is then unroutable.
func (t *Table[H]) Resolve(method, path string) (h H, ok bool) {
	for _, e := range t.entries {
		if e.Match.Match(method, path) {
			return e.Handler, true
		}
	}
	if t.hasDefault {
		return t.def, true
	}
	var zero H
	return zero, false
}

// Entries returns a copy of the registered entries in order.
func (t *Table[H]) Entries() []Entry[H] {
	out := make([]Entry[H], len(t.entries))
	copy(out, t.entries)
	return out
}

// Len returns the number of registered entries, not counting the default.
func (t *Table[H]) Len() int { return len(t.entries) }

// HasDefault reports whether a default handler is set.
func (t *Table[H]) HasDefault() bool { return t.hasDefault }

// String lists the predicates in evaluation order, one per line.
func (t *Table[H]) String() string {
	var b strings.Builder
	for i, e := range t.entries {
		fmt.Fprintf(&b, "%d: %s\n", i, e.Match)
	}
	if t.hasDefault {
		b.WriteString("default\n")
	}
	return b.String()
}
