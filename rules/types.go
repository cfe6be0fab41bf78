package rules

import "fmt"

// Outcome is the tri-state result of evaluating a rule against a document.
type Outcome int

const (
	Skip Outcome = iota
	Pass
	Fail
)

func (o Outcome) String() string {
	switch o {
	case Pass:
		return "pass"
	case Fail:
		return "fail"
	case Skip:
		return "skip"
	}
	return fmt.Sprintf("Outcome(%d)", int(o))
}

// invert swaps Pass and Fail and leaves Skip alone.
func (o Outcome) invert() Outcome {
	switch o {
	case Pass:
		return Fail
	case Fail:
		return Pass
	}
	return o
}

// Kind names a rule kind as it appears in ruleset configuration.
type Kind string

const (
	KindAtLeastOne     Kind = "atleast_one"
	KindDateOrder      Kind = "date_order"
	KindDependent      Kind = "dependent"
	KindNoMoreThanOne  Kind = "no_more_than_one"
	KindRegexMatches   Kind = "regex_matches"
	KindRegexNoMatches Kind = "regex_no_matches"
	KindStartsWith     Kind = "startswith"
	KindSum            Kind = "sum"
	KindUnique         Kind = "unique"
)

// Kinds lists every rule kind in configuration order.
var Kinds = []Kind{
	KindAtLeastOne,
	KindDateOrder,
	KindDependent,
	KindNoMoreThanOne,
	KindRegexMatches,
	KindRegexNoMatches,
	KindStartsWith,
	KindSum,
	KindUnique,
}

// Valid reports whether k is a known rule kind.
func (k Kind) Valid() bool {
	_, ok := failureCodes[k]
	return ok
}

// failureCodes maps each kind to the validation error reported when a rule
// of that kind fails.
var failureCodes = map[Kind]string{
	KindAtLeastOne:     "err-rule-at-least-one-conformance-fail",
	KindDateOrder:      "err-rule-date-order-conformance-fail",
	KindDependent:      "err-rule-dependent-conformance-fail",
	KindNoMoreThanOne:  "err-rule-no-more-than-one-conformance-fail",
	KindRegexMatches:   "err-rule-regex-matches-conformance-fail",
	KindRegexNoMatches: "err-rule-regex-no-matches-conformance-fail",
	KindStartsWith:     "err-rule-starts-with-conformance-fail",
	KindSum:            "err-rule-sum-conformance-fail",
	KindUnique:         "err-rule-unique-conformance-fail",
}

const (
	codeRuleSkipped   = "warn-rule-skipped"
	codeRulesetFailed = "err-ruleset-conformance-fail"
)

// Case is one parameter set for a rule kind, as decoded from configuration:
// strings, json.Number or float64 numbers, and []any lists.
type Case map[string]any
