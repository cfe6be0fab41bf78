package rules

import (
	"encoding/json"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/liamcoop/rulecheck/document"
	"github.com/liamcoop/rulecheck/errs"
)

func mustDoc(t *testing.T, raw string) document.Document {
	t.Helper()
	doc, err := document.ParseXML([]byte(raw))
	if err != nil {
		t.Fatalf("ParseXML() failed: %v", err)
	}
	return doc
}

func mustRule(t *testing.T, kind Kind, context string, c Case, opts ...Option) Rule {
	t.Helper()
	r, err := New(kind, context, c, opts...)
	if err != nil {
		t.Fatalf("New(%s) failed: %v", kind, err)
	}
	return r
}

func paths(p ...string) []any {
	out := make([]any, len(p))
	for i, s := range p {
		out[i] = s
	}
	return out
}

func checkOutcome(t *testing.T, r Rule, doc document.Document, want Outcome) {
	t.Helper()
	got, err := r.Evaluate(doc)
	if err != nil {
		t.Fatalf("Evaluate() returned error: %v", err)
	}
	if got != want {
		t.Errorf("Evaluate() = %v, want %v", got, want)
	}
}

func TestNew_Configuration(t *testing.T) {
	tests := []struct {
		name    string
		kind    Kind
		context string
		c       Case
	}{
		{"empty context", KindAtLeastOne, "", Case{"paths": paths("a")}},
		{"unknown kind", Kind("sometimes"), "//a", Case{"paths": paths("a")}},
		{"missing paths", KindAtLeastOne, "//a", Case{}},
		{"empty paths", KindUnique, "//a", Case{"paths": paths()}},
		{"empty path", KindDependent, "//a", Case{"paths": paths("b", "")}},
		{"unknown parameter", KindNoMoreThanOne, "//a", Case{"paths": paths("b"), "extra": "x"}},
		{"wrong type", KindSum, "//a", Case{"paths": paths("b"), "sum": "100"}},
		{"missing sum", KindSum, "//a", Case{"paths": paths("b")}},
		{"empty regex", KindRegexMatches, "//a", Case{"paths": paths("b"), "regex": ""}},
		{"bad regex", KindRegexNoMatches, "//a", Case{"paths": paths("b"), "regex": "(unclosed"}},
		{"missing start", KindStartsWith, "//a", Case{"paths": paths("b")}},
		{"missing more", KindDateOrder, "//a", Case{"less": "b"}},
		{"empty condition", KindAtLeastOne, "//a", Case{"paths": paths("b"), "condition": ""}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.kind, tt.context, tt.c)
			if !errs.IsConfiguration(err) {
				t.Errorf("New() error = %v, want configuration error", err)
			}
		})
	}
}

func TestNew_AcceptsGoNativeCases(t *testing.T) {
	r := mustRule(t, KindSum, "//a", Case{"paths": []string{"b"}, "sum": 10})
	if got := r.(*Sum).Total.String(); got != "10" {
		t.Errorf("Total = %s, want 10", got)
	}
}

func TestNormalizedPaths(t *testing.T) {
	tests := []struct {
		name string
		kind Kind
		c    Case
		want []string
	}{
		{
			name: "paths",
			kind: KindAtLeastOne,
			c:    Case{"paths": paths("a", "@b")},
			want: []string{"//ctx/a", "//ctx/@b"},
		},
		{
			name: "paths and condition",
			kind: KindUnique,
			c:    Case{"paths": paths("a"), "condition": "@skip"},
			want: []string{"//ctx/a", "//ctx/@skip"},
		},
		{
			name: "start follows condition",
			kind: KindStartsWith,
			c:    Case{"paths": paths("a"), "start": "prefix", "condition": "c"},
			want: []string{"//ctx/a", "//ctx/c", "//ctx/prefix"},
		},
		{
			name: "NOW is not a path",
			kind: KindDateOrder,
			c:    Case{"less": "start", "more": Now},
			want: []string{"//ctx/start"},
		},
		{
			name: "both sides NOW",
			kind: KindDateOrder,
			c:    Case{"less": Now, "more": Now},
			want: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := mustRule(t, tt.kind, "//ctx", tt.c).NormalizedPaths()
			if !slices.Equal(got, tt.want) {
				t.Errorf("NormalizedPaths() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestString(t *testing.T) {
	tests := []struct {
		kind Kind
		c    Case
		want string
	}{
		{KindAtLeastOne, Case{"paths": paths("a")}, "`a` must be present within each `//x`."},
		{KindAtLeastOne, Case{"paths": paths("a", "b")}, "At least one of `a` or `b` must be present within each `//x`."},
		{KindNoMoreThanOne, Case{"paths": paths("a")}, "`a` must occur zero or one times within each `//x`."},
		{KindDependent, Case{"paths": paths("a", "b")}, "Within each `//x`, either none of `a` or `b` must exist, or they must all exist."},
		{KindRegexMatches, Case{"paths": paths("a"), "regex": "^z"}, "Each `a` within each `//x` must match the regular expression `^z`."},
		{KindRegexNoMatches, Case{"paths": paths("a", "b"), "regex": "^z"}, "Each instance of `a` and `b` within each `//x` must not match the regular expression `^z`."},
		{KindStartsWith, Case{"paths": paths("a"), "start": "p"}, "Each `a` within each `//x` must start with the value present at `p`."},
		{KindSum, Case{"paths": paths("a", "b"), "sum": json.Number("100.5")}, "Within each `//x`, the sum of values matched at `a` and `b` must be `100.5`."},
		{KindUnique, Case{"paths": paths("a")}, "Within each `//x`, the text contained within each of the elements and attributes matched by `a` must be unique."},
		{KindDateOrder, Case{"less": "a", "more": "b"}, "`a` must be chronologically before `b` within each `//x`."},
		{KindDateOrder, Case{"less": Now, "more": "b"}, "`b` must be in the future within each `//x`."},
		{KindDateOrder, Case{"less": "a", "more": Now}, "`a` must be in the past within each `//x`."},
	}

	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			if got := mustRule(t, tt.kind, "//x", tt.c).String(); got != tt.want {
				t.Errorf("String() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestEvaluate_NoContextElementsSkips(t *testing.T) {
	doc := mustDoc(t, `<root><other/></root>`)
	cases := map[Kind]Case{
		KindAtLeastOne:     {"paths": paths("a")},
		KindDateOrder:      {"less": "a", "more": "b"},
		KindDependent:      {"paths": paths("a", "b")},
		KindNoMoreThanOne:  {"paths": paths("a")},
		KindRegexMatches:   {"paths": paths("a"), "regex": "x"},
		KindRegexNoMatches: {"paths": paths("a"), "regex": "x"},
		KindStartsWith:     {"paths": paths("a"), "start": "b"},
		KindSum:            {"paths": paths("a"), "sum": json.Number("1")},
		KindUnique:         {"paths": paths("a")},
	}

	for _, kind := range Kinds {
		t.Run(string(kind), func(t *testing.T) {
			checkOutcome(t, mustRule(t, kind, "//missing", cases[kind]), doc, Skip)
		})
	}
}

func TestAtLeastOne(t *testing.T) {
	r := mustRule(t, KindAtLeastOne, "//item", Case{"paths": paths("a", "b")})

	checkOutcome(t, r, mustDoc(t, `<root><item><a/></item></root>`), Pass)
	checkOutcome(t, r, mustDoc(t, `<root><item><c/></item><item><b/></item></root>`), Pass)
	checkOutcome(t, r, mustDoc(t, `<root><item><c/></item><item/></root>`), Fail)
}

func TestNoMoreThanOne(t *testing.T) {
	r := mustRule(t, KindNoMoreThanOne, "//item", Case{"paths": paths("x")})

	checkOutcome(t, r, mustDoc(t, `<root><item><x/><x/></item></root>`), Fail)
	checkOutcome(t, r, mustDoc(t, `<root><item><x/></item><item><x/></item></root>`), Pass)

	// the same path listed twice still counts each node once
	dup := mustRule(t, KindNoMoreThanOne, "//item", Case{"paths": paths("x", "x")})
	checkOutcome(t, dup, mustDoc(t, `<root><item><x/></item></root>`), Pass)

	both := mustRule(t, KindNoMoreThanOne, "//item", Case{"paths": paths("x", "@y")})
	checkOutcome(t, both, mustDoc(t, `<root><item y="1"><x/></item></root>`), Fail)
}

func TestDependent(t *testing.T) {
	r := mustRule(t, KindDependent, "//item", Case{"paths": paths("a", "b", "a")})

	checkOutcome(t, r, mustDoc(t, `<root><item/></root>`), Pass)
	checkOutcome(t, r, mustDoc(t, `<root><item><a/><b/></item></root>`), Pass)
	checkOutcome(t, r, mustDoc(t, `<root><item><a/></item></root>`), Fail)
}

func TestRegex(t *testing.T) {
	doc := mustDoc(t, `<root><item code="GB-1"><name>abc</name><name/></item></root>`)

	matches := mustRule(t, KindRegexMatches, "//item", Case{"paths": paths("@code"), "regex": `[A-Z]{2}-\d`})
	checkOutcome(t, matches, doc, Pass)

	anchored := mustRule(t, KindRegexMatches, "//item", Case{"paths": paths("@code"), "regex": `^\d`})
	checkOutcome(t, anchored, doc, Fail)

	// an element without text is checked as ""
	emptyName := mustRule(t, KindRegexMatches, "//item", Case{"paths": paths("name"), "regex": `.`})
	checkOutcome(t, emptyName, doc, Fail)

	noMatches := mustRule(t, KindRegexNoMatches, "//item", Case{"paths": paths("name"), "regex": `\s`})
	checkOutcome(t, noMatches, doc, Pass)

	forbidden := mustRule(t, KindRegexNoMatches, "//item", Case{"paths": paths("name"), "regex": `b`})
	checkOutcome(t, forbidden, doc, Fail)
}

func TestStartsWith(t *testing.T) {
	r := mustRule(t, KindStartsWith, "//activity", Case{"paths": paths("id"), "start": "org/@ref"})

	checkOutcome(t, r, mustDoc(t, `<root><activity><org ref="GB"/><id>GB-1</id><id>GB-2</id></activity></root>`), Pass)
	checkOutcome(t, r, mustDoc(t, `<root><activity><org ref="GB"/><id>US-1</id></activity></root>`), Fail)

	for name, raw := range map[string]string{
		"no prefix":        `<root><activity><id>GB-1</id></activity></root>`,
		"ambiguous prefix": `<root><activity><org ref="GB"/><org ref="US"/><id>GB-1</id></activity></root>`,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := r.Evaluate(mustDoc(t, raw))
			if !errs.IsData(err) {
				t.Errorf("Evaluate() error = %v, want data error", err)
			}
		})
	}
}

func TestSum(t *testing.T) {
	r := mustRule(t, KindSum, "//budget", Case{"paths": paths("p"), "sum": json.Number("100")})

	checkOutcome(t, r, mustDoc(t, `<root><budget><p>60</p><p>40</p></budget></root>`), Pass)
	checkOutcome(t, r, mustDoc(t, `<root><budget><p>60</p><p>41</p></budget></root>`), Fail)
	checkOutcome(t, r, mustDoc(t, `<root><budget><p> 99.9 </p><p>0.1</p></budget></root>`), Pass)
	checkOutcome(t, r, mustDoc(t, `<root><budget><q>1</q></budget></root>`), Skip)

	for name, raw := range map[string]string{
		"non-numeric": `<root><budget><p>abc</p></budget></root>`,
		"empty":       `<root><budget><p/></budget></root>`,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := r.Evaluate(mustDoc(t, raw))
			if !errs.IsData(err) {
				t.Errorf("Evaluate() error = %v, want data error", err)
			}
		})
	}
}

func TestSum_ExactDecimal(t *testing.T) {
	r := mustRule(t, KindSum, "//b", Case{"paths": paths("p"), "sum": json.Number("0.3")})
	checkOutcome(t, r, mustDoc(t, `<r><b><p>0.1</p><p>0.2</p></b></r>`), Pass)
}

func TestUnique(t *testing.T) {
	r := mustRule(t, KindUnique, "//group", Case{"paths": paths("item/@id")})

	checkOutcome(t, r, mustDoc(t, `<root><group><item id="X"/><item id="X"/></group></root>`), Fail)
	checkOutcome(t, r, mustDoc(t, `<root><group><item id="X"/><item id="Y"/></group></root>`), Pass)
	checkOutcome(t, r, mustDoc(t, `<root><group><item id="X"/></group><group><item id="X"/></group></root>`), Pass)
}

func TestDateOrder(t *testing.T) {
	r := mustRule(t, KindDateOrder, "//period", Case{"less": "d1", "more": "d2"})

	tests := []struct {
		name string
		d1   string
		d2   string
		want Outcome
	}{
		{"before", "2020-01-01", "2020-01-02", Pass},
		{"equal", "2020-01-01", "2020-01-01", Fail},
		{"after", "2020-02-01", "2020-01-02", Fail},
		{"utc suffix", "2020-01-01Z", "2020-01-02", Pass},
		{"offset suffix", "2020-01-01+05:30", "2020-01-02-11:00", Pass},
		{"less missing", "", "2020-01-02", Skip},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := `<root><period><d1>` + tt.d1 + `</d1><d2>` + tt.d2 + `</d2></period></root>`
			checkOutcome(t, r, mustDoc(t, raw), tt.want)
		})
	}

	checkOutcome(t, r, mustDoc(t, `<root><period><d2>2020-01-01</d2></period></root>`), Skip)
}

func TestDateOrder_DataErrors(t *testing.T) {
	r := mustRule(t, KindDateOrder, "//period", Case{"less": "d1", "more": "d2"})

	tests := map[string]string{
		"not zero padded":   `<root><period><d1>2020-1-1</d1><d2>2020-01-02</d2></period></root>`,
		"bad suffix":        `<root><period><d1>2020-01-01T00:00</d1><d2>2020-01-02</d2></period></root>`,
		"hour out of range": `<root><period><d1>2020-01-01+24:00</d1><d2>2020-01-02</d2></period></root>`,
		"invalid day":       `<root><period><d1>2020-02-31</d1><d2>2020-03-02</d2></period></root>`,
		"distinct values":   `<root><period><d1>2020-01-01</d1><d1>2020-01-03</d1><d2>2020-01-02</d2></period></root>`,
		"more malformed":    `<root><period><d2>yesterday!</d2></period></root>`,
	}

	for name, raw := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := r.Evaluate(mustDoc(t, raw))
			if !errs.IsData(err) {
				t.Errorf("Evaluate() error = %v, want data error", err)
			}
		})
	}

	repeated := `<root><period><d1>2020-01-01</d1><d1>2020-01-01</d1><d2>2020-01-02</d2></period></root>`
	checkOutcome(t, r, mustDoc(t, repeated), Pass)
}

func TestDateOrder_Now(t *testing.T) {
	clock := WithClock(func() time.Time {
		return time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	})
	past := mustRule(t, KindDateOrder, "//a", Case{"less": "@date", "more": Now}, clock)
	future := mustRule(t, KindDateOrder, "//a", Case{"less": Now, "more": "@date"}, clock)

	doc2020 := mustDoc(t, `<r><a date="2020-01-01"/></r>`)
	doc2030 := mustDoc(t, `<r><a date="2030-01-01"/></r>`)

	checkOutcome(t, past, doc2020, Pass)
	checkOutcome(t, past, doc2030, Fail)
	checkOutcome(t, future, doc2020, Fail)
	checkOutcome(t, future, doc2030, Pass)
}

func TestDateOrder_NowInClockZone(t *testing.T) {
	brisbane := time.FixedZone("AEST", 10*60*60)
	clock := WithClock(func() time.Time {
		return time.Date(2020, 1, 2, 5, 0, 0, 0, brisbane)
	})
	past := mustRule(t, KindDateOrder, "//a", Case{"less": "@date", "more": Now}, clock)
	future := mustRule(t, KindDateOrder, "//a", Case{"less": Now, "more": "@date"}, clock)

	today := mustDoc(t, `<r><a date="2020-01-02"/></r>`)
	tomorrow := mustDoc(t, `<r><a date="2020-01-03"/></r>`)

	checkOutcome(t, past, today, Pass)
	checkOutcome(t, past, tomorrow, Fail)
	checkOutcome(t, future, today, Fail)
	checkOutcome(t, future, tomorrow, Pass)
}

func TestCondition_SkipsWholeRule(t *testing.T) {
	r := mustRule(t, KindAtLeastOne, "//item", Case{"paths": paths("a"), "condition": "@exempt"})

	// the first element is exempt, so the failing second element is never checked
	checkOutcome(t, r, mustDoc(t, `<root><item exempt="1"/><item/></root>`), Skip)

	// the first element passes before the exempt one is reached
	checkOutcome(t, r, mustDoc(t, `<root><item><a/></item><item exempt="1"/></root>`), Pass)

	unique := mustRule(t, KindNoMoreThanOne, "//item", Case{"paths": paths("x"), "condition": "@exempt"})
	checkOutcome(t, unique, mustDoc(t, `<root><item><x/><x/></item><item exempt="1"/></root>`), Fail)
	checkOutcome(t, unique, mustDoc(t, `<root><item exempt="1"/><item><x/><x/></item></root>`), Skip)
}

func TestCondition_Expressions(t *testing.T) {
	tests := []struct {
		name      string
		condition string
		doc       string
		want      Outcome
	}{
		{"count true", "count(c)>0", `<root><item><c/></item></root>`, Skip},
		{"count false", "count(c)>0", `<root><item/></root>`, Fail},
		{"comparison true", "@x='1'", `<root><item x="1"/></root>`, Skip},
		{"comparison false", "@x='1'", `<root><item x="2"/></root>`, Fail},
		{"number", "count(c)", `<root><item><c/><c/></item></root>`, Skip},
		{"string", "string(@x)", `<root><item x=""/></root>`, Fail},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := mustRule(t, KindAtLeastOne, "//item", Case{"paths": paths("a"), "condition": tt.condition})
			checkOutcome(t, r, mustDoc(t, tt.doc), tt.want)
		})
	}
}

func TestEvaluate_RelativeContext(t *testing.T) {
	r := mustRule(t, KindAtLeastOne, "item", Case{"paths": paths("a")})

	checkOutcome(t, r, mustDoc(t, `<root><item/></root>`), Fail)
	checkOutcome(t, r, mustDoc(t, `<root><item><a/></item></root>`), Pass)
}

func TestEvaluate_BooleanPath(t *testing.T) {
	r := mustRule(t, KindAtLeastOne, "//item", Case{"paths": paths("@x='1'")})

	checkOutcome(t, r, mustDoc(t, `<root><item x="1"/></root>`), Pass)
	checkOutcome(t, r, mustDoc(t, `<root><item x="2"/></root>`), Fail)
}

func TestEvaluate_InvalidExpressionIsDataError(t *testing.T) {
	r := mustRule(t, KindAtLeastOne, "//item[", Case{"paths": paths("a")})
	_, err := r.Evaluate(mustDoc(t, `<root><item/></root>`))
	if !errs.IsData(err) {
		t.Errorf("Evaluate() error = %v, want data error", err)
	}
}

func TestRegex_Timeout(t *testing.T) {
	r := mustRule(t, KindRegexMatches, "//a", Case{"paths": paths("."), "regex": `^(a+)+$`}, WithRegexTimeout(time.Millisecond))
	if got := r.(*Regex).re.MatchTimeout; got != time.Millisecond {
		t.Errorf("MatchTimeout = %v, want %v", got, time.Millisecond)
	}

	doc := mustDoc(t, `<r><a>`+strings.Repeat("a", 40)+`b</a></r>`)
	_, err := r.Evaluate(doc)
	if !errs.IsData(err) {
		t.Errorf("Evaluate() error = %v, want data error for a match that times out", err)
	}
}
