package validation

import (
	"errors"
	"iter"
	"slices"

	"github.com/liamcoop/rulecheck/errs"
)

// ErrNilEntry is returned by Log.Add when given a nil *Error.
var ErrNilEntry = errors.New("only validation errors may be added to a log")

// Log is an ordered, append-only record of findings.
//
// A Log is not safe for concurrent mutation.
type Log struct {
	entries []*Error
}

// NewLog returns an empty Log.
func NewLog() *Log {
	return &Log{}
}

// Add appends e to the log.
func (l *Log) Add(e *Error) error {
	if e == nil {
		return ErrNilEntry
	}
	l.entries = append(l.entries, e)
	return nil
}

// Extend appends every entry of seq, silently skipping nil entries.
func (l *Log) Extend(seq iter.Seq[*Error]) {
	if seq == nil {
		return
	}
	for e := range seq {
		_ = l.Add(e)
	}
}

// All iterates the log in insertion order.
func (l *Log) All() iter.Seq[*Error] {
	return func(yield func(*Error) bool) {
		if l == nil {
			return
		}
		for _, e := range l.entries {
			if !yield(e) {
				return
			}
		}
	}
}

// Len returns the number of entries.
func (l *Log) Len() int {
	if l == nil {
		return 0
	}
	return len(l.entries)
}

// At returns the i'th entry.
func (l *Log) At(i int) *Error {
	return l.entries[i]
}

// Entries returns a copy of the entries in insertion order.
func (l *Log) Entries() []*Error {
	if l == nil {
		return nil
	}
	return slices.Clone(l.entries)
}

// Equal reports whether l and other contain the same findings regardless of
// order: both logs have the same length and every entry of each is present in
// the other.
func (l *Log) Equal(other *Log) bool {
	if l.Len() != other.Len() {
		return false
	}
	return l.containsAll(other) && other.containsAll(l)
}

func (l *Log) containsAll(other *Log) bool {
	for e := range other.All() {
		if !l.contains(e) {
			return false
		}
	}
	return true
}

func (l *Log) contains(e *Error) bool {
	return slices.ContainsFunc(l.entries, e.Equal)
}

func (l *Log) filter(keep func(*Error) bool) []*Error {
	var out []*Error
	for e := range l.All() {
		if keep(e) {
			out = append(out, e)
		}
	}
	return out
}

// ErrorsCalled returns the entries with the given name.
func (l *Log) ErrorsCalled(name string) []*Error {
	return l.filter(func(e *Error) bool { return e.Name == name })
}

// ContainsErrorCalled reports whether an error or warning with the given name
// is present.
func (l *Log) ContainsErrorCalled(name string) bool {
	return len(l.ErrorsCalled(name)) > 0
}

// ByCategory returns the entries in the given category.
func (l *Log) ByCategory(category string) []*Error {
	return l.filter(func(e *Error) bool { return e.Category == category })
}

// ContainsErrorOfKind reports whether an entry has the given underlying kind.
func (l *Log) ContainsErrorOfKind(kind errs.Kind) bool {
	return len(l.filter(func(e *Error) bool { return e.Kind == kind })) > 0
}

// Errors returns the entries with error status.
func (l *Log) Errors() []*Error {
	return l.filter((*Error).IsError)
}

// Warnings returns the entries with warning status.
func (l *Log) Warnings() []*Error {
	return l.filter((*Error).IsWarning)
}

// ContainsErrors reports whether any entry has error status.
func (l *Log) ContainsErrors() bool {
	return len(l.Errors()) > 0
}

// ContainsWarnings reports whether any entry has warning status.
func (l *Log) ContainsWarnings() bool {
	return len(l.Warnings()) > 0
}

// Summary is a machine-readable digest of a log.
type Summary struct {
	Total      int      `json:"total"`
	Errors     int      `json:"errors"`
	Warnings   int      `json:"warnings"`
	Names      []string `json:"names"`
	Categories []string `json:"categories"`
}

// Summarize counts the entries of l. Names and Categories are sorted and
// de-duplicated.
func (l *Log) Summarize() Summary {
	s := Summary{Names: []string{}, Categories: []string{}}
	for e := range l.All() {
		s.Total++
		switch e.Status {
		case StatusError:
			s.Errors++
		case StatusWarning:
			s.Warnings++
		}
		s.Names = append(s.Names, e.Name)
		s.Categories = append(s.Categories, e.Category)
	}
	slices.Sort(s.Names)
	slices.Sort(s.Categories)
	s.Names = slices.Compact(s.Names)
	s.Categories = slices.Compact(s.Categories)
	return s
}
