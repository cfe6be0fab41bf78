package rules

import (
	"fmt"
	"time"

	"github.com/dlclark/regexp2"

	"github.com/liamcoop/rulecheck/document"
	"github.com/liamcoop/rulecheck/errs"
)

// Regex checks every text value at its paths against a Perl-style regular
// expression. With Match set every value must match somewhere; otherwise
// no value may.
type Regex struct {
	base
	Paths   []string
	Pattern string
	Match   bool

	re *regexp2.Regexp
}

func newRegex(b base, c Case, match bool, timeout time.Duration) (*Regex, error) {
	pattern := stringParam(c, "regex")
	if pattern == "" {
		return nil, errs.Configurationf("%s rule in %q has an empty regex", b.kind, b.context)
	}
	re, err := regexp2.Compile(pattern, regexp2.None)
	if err != nil {
		return nil, errs.Wrap(errs.KindConfiguration, fmt.Sprintf("regex %q does not compile", pattern), err)
	}
	if timeout > 0 {
		re.MatchTimeout = timeout
	}

	r := &Regex{base: b, Paths: stringList(c, "paths"), Pattern: pattern, Match: match, re: re}
	if err := r.normalizeAll(r.Paths); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Regex) String() string {
	verb := "must match"
	if !r.Match {
		verb = "must not match"
	}
	if len(r.Paths) == 1 {
		return fmt.Sprintf("Each `%s` within each `%s` %s the regular expression `%s`.", r.Paths[0], r.context, verb, r.Pattern)
	}
	return fmt.Sprintf("Each instance of %s within each `%s` %s the regular expression `%s`.", joinPaths(r.Paths, "and"), r.context, verb, r.Pattern)
}

func (r *Regex) Evaluate(doc document.Document) (Outcome, error) {
	return r.evaluate(doc, func(doc document.Document, el document.Node) (Outcome, error) {
		for _, path := range r.Paths {
			texts, err := textsAt(doc, el, path)
			if err != nil {
				return Fail, err
			}
			for _, text := range texts {
				matched, err := r.re.MatchString(text)
				if err != nil {
					return Fail, errs.Wrap(errs.KindData, fmt.Sprintf("cannot match %q against %s", text, r.Pattern), err)
				}
				if matched != r.Match {
					return Fail, nil
				}
			}
		}
		return Pass, nil
	})
}
