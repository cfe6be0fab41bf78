package rules

import (
	"fmt"

	"github.com/liamcoop/rulecheck/document"
)

// AtLeastOne passes when at least one of its paths is present in at least
// one context element.
type AtLeastOne struct {
	base
	Paths []string
}

func newAtLeastOne(b base, c Case) (*AtLeastOne, error) {
	r := &AtLeastOne{base: b, Paths: stringList(c, "paths")}
	if err := r.normalizeAll(r.Paths); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *AtLeastOne) String() string {
	if len(r.Paths) == 1 {
		return fmt.Sprintf("`%s` must be present within each `%s`.", r.Paths[0], r.context)
	}
	return fmt.Sprintf("At least one of %s must be present within each `%s`.", joinPaths(r.Paths, "or"), r.context)
}

// Evaluate scans with an inverted check so that the first element holding
// one of the paths ends the scan, then inverts the result back.
func (r *AtLeastOne) Evaluate(doc document.Document) (Outcome, error) {
	out, err := r.evaluate(doc, r.absent)
	if err != nil {
		return Fail, err
	}
	return out.invert(), nil
}

// absent is Fail when el holds any of the paths.
func (r *AtLeastOne) absent(doc document.Document, el document.Node) (Outcome, error) {
	for _, path := range r.Paths {
		found, err := doc.Select(el, path)
		if err != nil {
			return Fail, err
		}
		if len(found) > 0 {
			return Fail, nil
		}
	}
	return Pass, nil
}

// NoMoreThanOne fails when its paths match more than one node in total
// within a context element.
type NoMoreThanOne struct {
	base
	Paths []string
}

func newNoMoreThanOne(b base, c Case) (*NoMoreThanOne, error) {
	r := &NoMoreThanOne{base: b, Paths: stringList(c, "paths")}
	if err := r.normalizeAll(r.Paths); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *NoMoreThanOne) String() string {
	if len(r.Paths) == 1 {
		return fmt.Sprintf("`%s` must occur zero or one times within each `%s`.", r.Paths[0], r.context)
	}
	return fmt.Sprintf("There must be no more than one element or attribute matched at %s within each `%s`.", joinPaths(r.Paths, "or"), r.context)
}

func (r *NoMoreThanOne) Evaluate(doc document.Document) (Outcome, error) {
	return r.evaluate(doc, func(doc document.Document, el document.Node) (Outcome, error) {
		total := 0
		for _, path := range dedupe(r.Paths) {
			found, err := doc.Select(el, path)
			if err != nil {
				return Fail, err
			}
			total += len(found)
		}
		if total > 1 {
			return Fail, nil
		}
		return Pass, nil
	})
}

// Dependent fails when only some of its paths are present within a context
// element.
type Dependent struct {
	base
	Paths []string
}

func newDependent(b base, c Case) (*Dependent, error) {
	r := &Dependent{base: b, Paths: stringList(c, "paths")}
	if err := r.normalizeAll(r.Paths); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Dependent) String() string {
	if len(r.Paths) == 1 {
		return fmt.Sprintf("Within each `%s`, either `%s` exists or it does not. As such, this Rule is always True.", r.context, r.Paths[0])
	}
	return fmt.Sprintf("Within each `%s`, either none of %s must exist, or they must all exist.", r.context, joinPaths(r.Paths, "or"))
}

func (r *Dependent) Evaluate(doc document.Document) (Outcome, error) {
	return r.evaluate(doc, func(doc document.Document, el document.Node) (Outcome, error) {
		paths := dedupe(r.Paths)
		present := 0
		for _, path := range paths {
			found, err := doc.Select(el, path)
			if err != nil {
				return Fail, err
			}
			if len(found) > 0 {
				present++
			}
		}
		if present != 0 && present != len(paths) {
			return Fail, nil
		}
		return Pass, nil
	})
}
