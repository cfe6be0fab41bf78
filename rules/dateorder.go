package rules

import (
	"fmt"
	"regexp"
	"time"

	"github.com/liamcoop/rulecheck/document"
	"github.com/liamcoop/rulecheck/errs"
)

// timezoneSuffix is what may follow the YYYY-MM-DD part of a date.
var timezoneSuffix = regexp.MustCompile(`^([+-]([01][0-9]|2[0-3]):([0-5][0-9])|Z)?$`)

const dateLayout = "2006-01-02"

// DateOrder fails when the date at Less is not strictly before the date at
// More. Either side may be Now.
type DateOrder struct {
	base
	Less string
	More string

	clock func() time.Time
}

func newDateOrder(b base, c Case, clock func() time.Time) (*DateOrder, error) {
	r := &DateOrder{base: b, Less: stringParam(c, "less"), More: stringParam(c, "more"), clock: clock}

	var paths []string
	for _, p := range []string{r.Less, r.More} {
		if p != Now {
			paths = append(paths, p)
		}
	}
	if err := r.normalizeAll(paths); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *DateOrder) String() string {
	switch {
	case r.Less == Now && r.More == Now:
		return fmt.Sprintf("`%s` must be chronologically before `%s`. Try working that one out.", r.Less, r.More)
	case r.Less == Now:
		return fmt.Sprintf("`%s` must be in the future within each `%s`.", r.More, r.context)
	case r.More == Now:
		return fmt.Sprintf("`%s` must be in the past within each `%s`.", r.Less, r.context)
	}
	return fmt.Sprintf("`%s` must be chronologically before `%s` within each `%s`.", r.Less, r.More, r.context)
}

func (r *DateOrder) Evaluate(doc document.Document) (Outcome, error) {
	return r.evaluate(doc, func(doc document.Document, el document.Node) (Outcome, error) {
		// dates are midnight in the clock's zone
		var now time.Time
		if r.Less == Now || r.More == Now {
			now = r.clock()
		}
		less, lessOK, err := r.dateAt(doc, el, r.Less, now)
		if err != nil {
			return Fail, err
		}
		more, moreOK, err := r.dateAt(doc, el, r.More, now)
		if err != nil {
			return Fail, err
		}

		if !lessOK || !moreOK {
			return Skip, nil
		}
		if !less.Before(more) {
			return Fail, nil
		}
		return Pass, nil
	})
}

// dateAt resolves one side of the comparison. ok is false when the path
// holds no date.
func (r *DateOrder) dateAt(doc document.Document, el document.Node, path string, now time.Time) (t time.Time, ok bool, err error) {
	if path == Now {
		return now, true, nil
	}

	values, err := textsAt(doc, el, path)
	if err != nil {
		return time.Time{}, false, err
	}
	if len(values) == 0 || values[0] == "" {
		return time.Time{}, false, nil
	}

	value := values[0]
	for _, v := range values[1:] {
		if v != value {
			return time.Time{}, false, errs.Dataf("more than one distinct date found at %s", path)
		}
	}
	if len(value) < len(dateLayout) {
		return time.Time{}, false, errs.Dataf("%q at %s is not a YYYY-MM-DD date", value, path)
	}
	if !timezoneSuffix.MatchString(value[len(dateLayout):]) {
		return time.Time{}, false, errs.Dataf("%q at %s has an invalid timezone suffix", value, path)
	}

	t, err = time.ParseInLocation(dateLayout, value[:len(dateLayout)], now.Location())
	if err != nil {
		return time.Time{}, false, errs.Wrap(errs.KindData, fmt.Sprintf("%q at %s is not a valid date", value, path), err)
	}
	return t, true, nil
}
