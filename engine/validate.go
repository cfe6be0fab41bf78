package engine

import (
	"fmt"

	"github.com/liamcoop/rulecheck/document"
	"github.com/liamcoop/rulecheck/internal/logger"
	"github.com/liamcoop/rulecheck/validation"
)

// Validate checks that raw is well-formed XML and, if it is, evaluates it
// against the listed rulesets, or every active ruleset when ids is empty.
// A document that is not well-formed is reported through the returned log,
// not as an error; rulesets are not evaluated against it.
func (en *Engine) Validate(raw []byte, ids []string) (*validation.Log, error) {
	log := document.Check(raw)
	if log.ContainsErrors() {
		logger.DocumentsValidated.Add(1)
		return log, nil
	}

	doc, err := document.ParseXML(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to parse document: %w", err)
	}

	var results []*Result
	if len(ids) > 0 {
		results, err = en.EvaluateSelected(ids, doc)
	} else {
		results, err = en.EvaluateAll(doc)
	}
	if err != nil {
		return nil, err
	}
	for _, res := range results {
		if res.Error != nil {
			return nil, res.Error
		}
	}

	log.Extend(MergeLogs(results).All())
	logger.DocumentsValidated.Add(1)
	return log, nil
}
