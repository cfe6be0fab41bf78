// Package policy decides whether a validation log is acceptable, using a
// CEL expression over a summary of the log.
package policy

import (
	"fmt"
	"strings"

	"github.com/google/cel-go/cel"

	"github.com/liamcoop/rulecheck/errs"
	"github.com/liamcoop/rulecheck/validation"
)

// DefaultExpression accepts a log with no errors; warnings are allowed.
const DefaultExpression = "errors == 0"

// costLimit bounds evaluation of tenant-supplied expressions.
const costLimit = 1000000

// Policy is a compiled conformance expression. It is safe for concurrent use.
type Policy struct {
	expr string
	prog cel.Program
}

var env = func() *cel.Env {
	e, err := cel.NewEnv(
		cel.Variable("errors", cel.IntType),
		cel.Variable("warnings", cel.IntType),
		cel.Variable("total", cel.IntType),
		cel.Variable("names", cel.ListType(cel.StringType)),
		cel.Variable("categories", cel.ListType(cel.StringType)),
	)
	if err != nil {
		panic(fmt.Sprintf("failed to create CEL environment: %v", err))
	}
	return e
}()

// Compile type-checks expr. Expressions statically typed as anything other
// than bool are rejected.
func Compile(expr string) (*Policy, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil, errs.Configurationf("policy expression must not be empty")
	}

	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, errs.Wrap(errs.KindConfiguration, "policy does not compile", issues.Err())
	}
	if out := ast.OutputType(); !out.IsExactType(cel.BoolType) && !out.IsExactType(cel.DynType) {
		return nil, errs.Configurationf("policy must evaluate to bool, not %s", out)
	}

	prog, err := env.Program(ast, cel.CostLimit(costLimit))
	if err != nil {
		return nil, errs.Wrap(errs.KindConfiguration, "policy program creation failed", err)
	}
	return &Policy{expr: expr, prog: prog}, nil
}

// MustCompile is like Compile but panics on error.
func MustCompile(expr string) *Policy {
	p, err := Compile(expr)
	if err != nil {
		panic(err)
	}
	return p
}

// Default returns the policy for DefaultExpression.
func Default() *Policy {
	return MustCompile(DefaultExpression)
}

// String returns the source expression.
func (p *Policy) String() string {
	return p.expr
}

// Allows evaluates the policy against log. A non-boolean result counts as
// not allowed.
func (p *Policy) Allows(log *validation.Log) (bool, error) {
	return p.AllowsSummary(log.Summarize())
}

// AllowsSummary evaluates the policy against an already computed summary.
func (p *Policy) AllowsSummary(s validation.Summary) (bool, error) {
	out, _, err := p.prog.Eval(map[string]any{
		"errors":     int64(s.Errors),
		"warnings":   int64(s.Warnings),
		"total":      int64(s.Total),
		"names":      s.Names,
		"categories": s.Categories,
	})
	if err != nil {
		return false, fmt.Errorf("policy evaluation failed: %w", err)
	}

	allowed, ok := out.Value().(bool)
	return ok && allowed, nil
}
