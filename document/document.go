// Package document provides the queryable document tree that rules are
// evaluated against.
package document

// Node is an opaque handle to an element or attribute of a Document.
// A nil Node refers to the document element.
type Node any

// Document is a parsed tree that can be queried with XPath-style expressions.
type Document interface {
	// Select evaluates expr relative to from and returns the matching nodes
	// in document order. A nil from evaluates against the document element.
	// A boolean, numeric or string result selects from itself when it is
	// true, non-zero or non-empty.
	Select(from Node, expr string) ([]Node, error)

	// TextOf returns the text of an element or the value of an attribute.
	// ok is false when the node carries no text at all.
	TextOf(n Node) (text string, ok bool)
}

// SourceProvider exposes the raw source of a document for error reporting.
type SourceProvider interface {
	// SourceAround returns the source lines within radius of line (1-based).
	SourceAround(line, radius int) string
}
