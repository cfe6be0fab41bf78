package rules

import (
	"fmt"
	"strings"

	"github.com/liamcoop/rulecheck/document"
	"github.com/liamcoop/rulecheck/errs"
	"github.com/liamcoop/rulecheck/internal/logger"
	"github.com/liamcoop/rulecheck/validation"
)

// Ruleset is an immutable, de-duplicated collection of rules.
type Ruleset struct {
	rules []Rule
	index map[string]struct{}
}

func ruleKey(r Rule) string {
	return string(r.Kind()) + "\x00" + r.String()
}

// NewRuleset collects rules, dropping any rule equal to one already
// collected.
func NewRuleset(rules ...Rule) *Ruleset {
	rs := &Ruleset{index: make(map[string]struct{}, len(rules))}
	for _, r := range rules {
		rs.add(r)
	}
	return rs
}

func (rs *Ruleset) add(r Rule) {
	key := ruleKey(r)
	if _, dup := rs.index[key]; dup {
		return
	}
	rs.index[key] = struct{}{}
	rs.rules = append(rs.rules, r)
}

// Parse compiles ruleset configuration text. Empty or whitespace-only text
// yields an empty ruleset. Invalid JSON, repeated keys at any level, schema
// violations and invalid cases are configuration errors.
func Parse(text string, opts ...Option) (*Ruleset, error) {
	rs := NewRuleset()
	if strings.TrimSpace(text) == "" {
		return rs, nil
	}

	decoded, err := decodeStrict(text)
	if err != nil {
		return nil, errs.Wrap(errs.KindConfiguration, "ruleset is not valid JSON", err)
	}
	if err := validateRuleset(plain(decoded)); err != nil {
		return nil, err
	}

	contexts, ok := decoded.(*object)
	if !ok {
		return nil, errs.Configurationf("ruleset must be a JSON object")
	}
	for _, context := range contexts.keys {
		kinds, ok := contexts.fields[context].(*object)
		if !ok {
			return nil, errs.Configurationf("rules for %q must be an object", context)
		}
		for _, kindName := range kinds.keys {
			kind := Kind(kindName)
			spec, ok := kinds.fields[kindName].(*object)
			if !ok {
				return nil, errs.Configurationf("%s rules for %q must be an object", kind, context)
			}
			cases, _ := spec.fields["cases"].([]any)
			for i, raw := range cases {
				c, ok := plain(raw).(map[string]any)
				if !ok {
					return nil, errs.Configurationf("case %d of %s rules for %q must be an object", i, kind, context)
				}
				r, err := New(kind, context, Case(c), opts...)
				if err != nil {
					return nil, fmt.Errorf("case %d of %s rules for %q: %w", i, kind, context, err)
				}
				rs.add(r)
			}
		}
	}
	return rs, nil
}

// Rules returns the rules in the order they were first seen.
func (rs *Ruleset) Rules() []Rule {
	return append([]Rule(nil), rs.rules...)
}

// Len returns the number of distinct rules.
func (rs *Ruleset) Len() int {
	return len(rs.rules)
}

// Equal reports whether both rulesets hold the same set of rules.
func (rs *Ruleset) Equal(other *Ruleset) bool {
	if rs == nil || other == nil {
		return rs == other
	}
	if len(rs.index) != len(other.index) {
		return false
	}
	for key := range rs.index {
		if _, ok := other.index[key]; !ok {
			return false
		}
	}
	return true
}

// IsValidFor reports whether no rule fails for doc. A rule that cannot
// interpret the document counts as failed; skipped rules do not.
func (rs *Ruleset) IsValidFor(doc document.Document) bool {
	for _, r := range rs.rules {
		out, err := r.Evaluate(doc)
		if err != nil || out == Fail {
			return false
		}
	}
	return true
}

// Evaluate checks doc against every rule and reports the findings. It never
// returns an error: a rule that cannot interpret the document is reported
// as failed. When any rule fails, exactly one ruleset-level error follows
// the per-rule entries.
func (rs *Ruleset) Evaluate(doc document.Document) *validation.Log {
	outcomes := make([]Outcome, len(rs.rules))
	causes := make([]error, len(rs.rules))
	for i, r := range rs.rules {
		outcomes[i], causes[i] = evaluateRule(r, doc)
	}

	log := validation.NewLog()
	failed := 0
	for i, r := range rs.rules {
		ctx := validation.Context{
			RuleKind:    string(r.Kind()),
			Rule:        r.String(),
			RuleContext: r.Context(),
			Path:        strings.Join(r.NormalizedPaths(), ", "),
			Err:         causes[i],
		}
		switch outcomes[i] {
		case Skip:
			logger.RulesSkipped.Add(1)
			_ = log.Add(validation.MustNew(codeRuleSkipped, ctx))
		case Fail:
			failed++
			logger.RulesFailed.Add(1)
			_ = log.Add(validation.MustNew(failureCodes[r.Kind()], ctx))
		}
	}

	if failed > 0 {
		_ = log.Add(validation.MustNew(codeRulesetFailed, validation.Context{RulesFailed: failed}))
	}
	return log
}

// evaluateRule turns any evaluation error into a failure.
func evaluateRule(r Rule, doc document.Document) (Outcome, error) {
	logger.RulesEvaluated.Add(1)
	out, err := r.Evaluate(doc)
	if err == nil {
		return out, nil
	}

	if errs.IsData(err) {
		logger.RuleDataErrors.Add(1)
		logger.Debug("rule could not interpret document", "kind", r.Kind(), "rule", r.String(), "error", err)
	} else {
		logger.Debug("rule evaluation failed", "kind", r.Kind(), "rule", r.String(), "error", err)
	}
	return Fail, err
}
