package rules

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/liamcoop/rulecheck/document"
	"github.com/liamcoop/rulecheck/errs"
)

// Unique fails when any text value is repeated across its paths within a
// context element.
type Unique struct {
	base
	Paths []string
}

func newUnique(b base, c Case) (*Unique, error) {
	r := &Unique{base: b, Paths: stringList(c, "paths")}
	if err := r.normalizeAll(r.Paths); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Unique) String() string {
	return fmt.Sprintf("Within each `%s`, the text contained within each of the elements and attributes matched by %s must be unique.", r.context, joinPaths(r.Paths, "and"))
}

func (r *Unique) Evaluate(doc document.Document) (Outcome, error) {
	return r.evaluate(doc, func(doc document.Document, el document.Node) (Outcome, error) {
		seen := make(map[string]struct{})
		for _, path := range dedupe(r.Paths) {
			texts, err := textsAt(doc, el, path)
			if err != nil {
				return Fail, err
			}
			for _, text := range texts {
				if _, dup := seen[text]; dup {
					return Fail, nil
				}
				seen[text] = struct{}{}
			}
		}
		return Pass, nil
	})
}

// Sum fails when the numeric values at its paths do not add up exactly to
// the configured total.
type Sum struct {
	base
	Paths []string
	Total decimal.Decimal

	totalText string
}

func newSum(b base, c Case) (*Sum, error) {
	text, err := numberText(c["sum"])
	if err != nil {
		return nil, err
	}
	total, err := decimal.NewFromString(text)
	if err != nil {
		return nil, errs.Wrap(errs.KindConfiguration, fmt.Sprintf("sum %q is not a decimal number", text), err)
	}

	r := &Sum{base: b, Paths: stringList(c, "paths"), Total: total, totalText: text}
	if err := r.normalizeAll(r.Paths); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Sum) String() string {
	return fmt.Sprintf("Within each `%s`, the sum of values matched at %s must be `%s`.", r.context, joinPaths(r.Paths, "and"), r.totalText)
}

func (r *Sum) Evaluate(doc document.Document) (Outcome, error) {
	return r.evaluate(doc, func(doc document.Document, el document.Node) (Outcome, error) {
		found := false
		sum := decimal.Zero
		for _, path := range dedupe(r.Paths) {
			texts, err := textsAt(doc, el, path)
			if err != nil {
				return Fail, err
			}
			for _, text := range texts {
				v, err := decimal.NewFromString(strings.TrimSpace(text))
				if err != nil {
					return Fail, errs.Dataf("value %q at %s is not a number", text, path)
				}
				sum = sum.Add(v)
				found = true
			}
		}

		if !found {
			return Skip, nil
		}
		if !sum.Equal(r.Total) {
			return Fail, nil
		}
		return Pass, nil
	})
}

// StartsWith fails when a text value at its paths does not begin with the
// single value found at Start.
type StartsWith struct {
	base
	Paths []string
	Start string
}

func newStartsWith(b base, c Case) (*StartsWith, error) {
	r := &StartsWith{base: b, Paths: stringList(c, "paths"), Start: stringParam(c, "start")}
	if err := r.normalizeAll(r.Paths, r.Start); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *StartsWith) String() string {
	if len(r.Paths) == 1 {
		return fmt.Sprintf("Each `%s` within each `%s` must start with the value present at `%s`.", r.Paths[0], r.context, r.Start)
	}
	return fmt.Sprintf("Each instance of %s within each `%s` must start with the value present at `%s`.", joinPaths(r.Paths, "and"), r.context, r.Start)
}

func (r *StartsWith) Evaluate(doc document.Document) (Outcome, error) {
	return r.evaluate(doc, func(doc document.Document, el document.Node) (Outcome, error) {
		prefixes, err := textsAt(doc, el, r.Start)
		if err != nil {
			return Fail, err
		}
		if len(prefixes) != 1 {
			return Fail, errs.Dataf("expected exactly one prefix at %s, found %d", r.Start, len(prefixes))
		}
		prefix := prefixes[0]

		for _, path := range r.Paths {
			texts, err := textsAt(doc, el, path)
			if err != nil {
				return Fail, err
			}
			for _, text := range texts {
				if !strings.HasPrefix(text, prefix) {
					return Fail, nil
				}
			}
		}
		return Pass, nil
	})
}
