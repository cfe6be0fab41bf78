// Package rules compiles ruleset configuration into typed rules and
// evaluates them against documents.
package rules

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/liamcoop/rulecheck/document"
	"github.com/liamcoop/rulecheck/errs"
)

// Now is the reserved DateOrder value meaning the evaluation-time instant.
const Now = "NOW"

// Rule is one compiled check against the elements selected by its context.
type Rule interface {
	Kind() Kind
	Context() string
	// Condition is the optional expression that exempts a context element
	// when it matches. Empty means no condition.
	Condition() string
	// NormalizedPaths returns every expression the rule queries, prefixed
	// with the context.
	NormalizedPaths() []string
	// String describes what the rule checks. Two rules of the same kind
	// with the same description are the same rule.
	String() string
	// Evaluate checks doc. A data error means the document held values the
	// rule could not interpret.
	Evaluate(doc document.Document) (Outcome, error)
}

type options struct {
	clock        func() time.Time
	regexTimeout time.Duration
}

// Option configures rule construction.
type Option func(*options)

// WithClock sets the source of the instant substituted for NOW.
func WithClock(clock func() time.Time) Option {
	return func(o *options) {
		if clock != nil {
			o.clock = clock
		}
	}
}

// WithRegexTimeout bounds each regular expression match. Zero means no limit.
func WithRegexTimeout(d time.Duration) Option {
	return func(o *options) {
		o.regexTimeout = d
	}
}

func buildOptions(opts []Option) options {
	o := options{clock: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// New builds a rule of kind from a case. The case is validated against the
// kind's schema first; every failure is a configuration error.
func New(kind Kind, context string, c Case, opts ...Option) (Rule, error) {
	if context == "" {
		return nil, errs.Configurationf("rule context must not be empty")
	}
	if !kind.Valid() {
		return nil, errs.Configurationf("%q is not a known rule kind", kind)
	}
	if err := ValidateCase(kind, c); err != nil {
		return nil, err
	}

	o := buildOptions(opts)
	b := base{kind: kind, context: context}
	if cond, ok := c["condition"]; ok {
		b.condition, _ = cond.(string)
		if b.condition == "" {
			return nil, errs.Configurationf("%s rule in %q has an empty condition", kind, context)
		}
	}

	switch kind {
	case KindAtLeastOne:
		return newAtLeastOne(b, c)
	case KindDateOrder:
		return newDateOrder(b, c, o.clock)
	case KindDependent:
		return newDependent(b, c)
	case KindNoMoreThanOne:
		return newNoMoreThanOne(b, c)
	case KindRegexMatches:
		return newRegex(b, c, true, o.regexTimeout)
	case KindRegexNoMatches:
		return newRegex(b, c, false, o.regexTimeout)
	case KindStartsWith:
		return newStartsWith(b, c)
	case KindSum:
		return newSum(b, c)
	case KindUnique:
		return newUnique(b, c)
	}
	return nil, errs.Configurationf("%q is not a known rule kind", kind)
}

// base holds what every kind shares and runs the common evaluation loop.
type base struct {
	kind       Kind
	context    string
	condition  string
	normalized []string
}

func (b *base) Kind() Kind        { return b.kind }
func (b *base) Context() string   { return b.context }
func (b *base) Condition() string { return b.condition }

func (b *base) NormalizedPaths() []string {
	return append([]string(nil), b.normalized...)
}

func (b *base) normalize(path string) (string, error) {
	if path == "" {
		return "", errs.Configurationf("%s rule in %q has an empty path", b.kind, b.context)
	}
	return b.context + "/" + path, nil
}

// normalizeAll sets the normalized paths: paths first, then the condition,
// then any extra expressions.
func (b *base) normalizeAll(paths []string, extra ...string) error {
	b.normalized = make([]string, 0, len(paths)+len(extra)+1)
	for _, p := range paths {
		n, err := b.normalize(p)
		if err != nil {
			return err
		}
		b.normalized = append(b.normalized, n)
	}
	if b.condition != "" {
		n, err := b.normalize(b.condition)
		if err != nil {
			return err
		}
		b.normalized = append(b.normalized, n)
	}
	for _, p := range extra {
		n, err := b.normalize(p)
		if err != nil {
			return err
		}
		b.normalized = append(b.normalized, n)
	}
	return nil
}

// evaluate runs check against every context element in document order.
// A matching condition on any element skips the whole rule, not only that
// element. The first Fail or Skip from check ends the scan.
func (b *base) evaluate(doc document.Document, check func(document.Document, document.Node) (Outcome, error)) (Outcome, error) {
	elements, err := doc.Select(nil, b.context)
	if err != nil {
		return Fail, err
	}
	if len(elements) == 0 {
		return Skip, nil
	}

	for _, el := range elements {
		if b.condition != "" {
			matched, err := doc.Select(el, b.condition)
			if err != nil {
				return Fail, err
			}
			if len(matched) > 0 {
				return Skip, nil
			}
		}

		out, err := check(doc, el)
		if err != nil {
			return Fail, err
		}
		if out != Pass {
			return out, nil
		}
	}
	return Pass, nil
}

// textsAt returns the text of every node path selects from el. Nodes with no
// text yield "".
func textsAt(doc document.Document, el document.Node, path string) ([]string, error) {
	nodes, err := doc.Select(el, path)
	if err != nil {
		return nil, err
	}
	texts := make([]string, len(nodes))
	for i, n := range nodes {
		texts[i], _ = doc.TextOf(n)
	}
	return texts, nil
}

// dedupe drops repeated paths, keeping the first occurrence.
func dedupe(paths []string) []string {
	seen := make(map[string]struct{}, len(paths))
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out
}

func stringList(c Case, key string) []string {
	switch v := c[key].(type) {
	case []string:
		return append([]string(nil), v...)
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

func stringParam(c Case, key string) string {
	s, _ := c[key].(string)
	return s
}

// numberText renders a numeric case value without losing precision.
func numberText(v any) (string, error) {
	switch n := v.(type) {
	case json.Number:
		return n.String(), nil
	case float64:
		return strconv.FormatFloat(n, 'f', -1, 64), nil
	case float32:
		return strconv.FormatFloat(float64(n), 'f', -1, 32), nil
	case int:
		return strconv.Itoa(n), nil
	case int64:
		return strconv.FormatInt(n, 10), nil
	case string:
		return n, nil
	}
	return "", errs.Configurationf("value %v of type %T is not a number", v, v)
}

// joinPaths formats paths for rule descriptions.
func joinPaths(paths []string, sep string) string {
	return "`" + strings.Join(paths, "` "+sep+" `") + "`"
}
