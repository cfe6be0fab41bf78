// Package engine keeps named rulesets, compiles them once and evaluates
// documents against them.
package engine

import (
	"errors"
	"time"

	"github.com/liamcoop/rulecheck/validation"
)

var (
	ErrNotFound      = errors.New("ruleset not found")
	ErrAlreadyExists = errors.New("ruleset already exists")
	ErrNotCompiled   = errors.New("ruleset is not compiled")
)

// RulesetRecord is a stored ruleset definition. Definition holds the
// configuration text verbatim so key order and repeated keys survive
// storage.
type RulesetRecord struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Definition string    `json:"definition"`
	Active     bool      `json:"active"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// Result is the outcome of evaluating one ruleset against a document.
type Result struct {
	RulesetID   string
	RulesetName string
	Log         *validation.Log
	Error       error
}
