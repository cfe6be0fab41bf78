package validation

import (
	"regexp"
	"strconv"

	"github.com/liamcoop/rulecheck/errs"
)

// Status separates blocking errors from advisory warnings.
type Status string

const (
	StatusError   Status = "error"
	StatusWarning Status = "warning"
)

// Context carries the values a catalogue template may refer to.
// Zero-valued fields are treated as absent and their placeholders are left
// in the message unresolved.
type Context struct {
	LineNumber   int
	ColumnNumber int
	RuleKind     string
	Rule         string
	RuleContext  string
	Path         string
	ActualValue  string
	RulesFailed  int
	Err          error

	// Snippet is the document source around LineNumber, supplied by the
	// document provider.
	Snippet string
}

func (c Context) values() map[string]string {
	v := make(map[string]string, 9)
	if c.LineNumber > 0 {
		v["line_number"] = strconv.Itoa(c.LineNumber)
	}
	if c.ColumnNumber > 0 {
		v["column_number"] = strconv.Itoa(c.ColumnNumber)
	}
	if c.RuleKind != "" {
		v["rule_kind"] = c.RuleKind
	}
	if c.Rule != "" {
		v["rule"] = c.Rule
	}
	if c.RuleContext != "" {
		v["rule_context"] = c.RuleContext
	}
	if c.Path != "" {
		v["path"] = c.Path
	}
	if c.ActualValue != "" {
		v["actual_value"] = c.ActualValue
	}
	if c.RulesFailed > 0 {
		v["rules_failed"] = strconv.Itoa(c.RulesFailed)
	}
	if c.Err != nil {
		v["err"] = c.Err.Error()
	}
	return v
}

var placeholder = regexp.MustCompile(`\{([a-z_]+)\}`)

func resolve(template string, values map[string]string) string {
	return placeholder.ReplaceAllStringFunc(template, func(token string) string {
		if v, ok := values[token[1:len(token)-1]]; ok {
			return v
		}
		return token
	})
}

// Error is a single validation finding: an error or warning taken from the
// catalogue, with its messages resolved against a Context.
//
// Errors are values; two Errors are equal when every field is equal.
type Error struct {
	Name         string    `json:"name"`
	Category     string    `json:"category"`
	Status       Status    `json:"status"`
	Description  string    `json:"description"`
	Info         string    `json:"info"`
	Help         string    `json:"help"`
	Kind         errs.Kind `json:"kind"`
	ActualValue  string    `json:"actualValue,omitempty"`
	LineNumber   int       `json:"lineNumber,omitempty"`
	ColumnNumber int       `json:"columnNumber,omitempty"`
	Snippet      string    `json:"context,omitempty"`
}

// New builds the named Error. It returns a configuration error when name is
// not in the catalogue.
func New(name string, ctx Context) (*Error, error) {
	code, err := lookup(name)
	if err != nil {
		return nil, err
	}

	values := ctx.values()
	return &Error{
		Name:         name,
		Category:     code.Category,
		Status:       statusFor(name),
		Description:  code.Description,
		Info:         resolve(code.Info, values),
		Help:         resolve(code.Help, values),
		Kind:         code.Kind,
		ActualValue:  ctx.ActualValue,
		LineNumber:   ctx.LineNumber,
		ColumnNumber: ctx.ColumnNumber,
		Snippet:      ctx.Snippet,
	}, nil
}

// MustNew is like New but panics when name is not in the catalogue.
// It is intended for names fixed at compile time.
func MustNew(name string, ctx Context) *Error {
	e, err := New(name, ctx)
	if err != nil {
		panic(err)
	}
	return e
}

// Equal reports whether e and other describe the same finding.
func (e *Error) Equal(other *Error) bool {
	if e == nil || other == nil {
		return e == other
	}
	return *e == *other
}

// IsError reports whether e is blocking.
func (e *Error) IsError() bool { return e.Status == StatusError }

// IsWarning reports whether e is advisory.
func (e *Error) IsWarning() bool { return e.Status == StatusWarning }
