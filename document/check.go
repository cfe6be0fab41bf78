package document

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/text/encoding/ianaindex"

	"github.com/liamcoop/rulecheck/validation"
)

// snippetRadius is the number of lines either side of a failing line that are
// attached to a syntax error.
const snippetRadius = 1

// Check reports whether raw is well-formed XML. The returned log is empty
// when it is.
func Check(raw []byte) *validation.Log {
	log := validation.NewLog()

	if len(bytes.TrimSpace(raw)) == 0 {
		_ = log.Add(validation.MustNew("err-not-xml-empty-document", validation.Context{}))
		return log
	}

	src := &XML{lines: strings.Split(string(raw), "\n")}
	dec := xml.NewDecoder(bytes.NewReader(raw))
	dec.Strict = true
	dec.CharsetReader = charsetReader

	depth := 0
	seenRoot := false
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			_ = log.Add(syntaxError(src, dec, err))
			return log
		}

		switch t := tok.(type) {
		case xml.StartElement:
			if depth == 0 && seenRoot {
				line, col := dec.InputPos()
				_ = log.Add(validation.MustNew("err-not-xml-content-at-end", validation.Context{
					LineNumber:   line,
					ColumnNumber: col,
					Snippet:      src.SourceAround(line, snippetRadius),
				}))
				return log
			}
			seenRoot = true
			depth++
		case xml.EndElement:
			depth--
		case xml.CharData:
			if depth == 0 && seenRoot && len(bytes.TrimSpace(t)) > 0 {
				line, col := dec.InputPos()
				_ = log.Add(validation.MustNew("err-not-xml-content-at-end", validation.Context{
					LineNumber:   line,
					ColumnNumber: col,
					Snippet:      src.SourceAround(line, snippetRadius),
				}))
				return log
			}
		}
	}

	if !seenRoot {
		_ = log.Add(validation.MustNew("err-not-xml-empty-document", validation.Context{}))
	}
	return log
}

func syntaxError(src *XML, dec *xml.Decoder, err error) *validation.Error {
	name := "err-not-xml-uncategorised-xml-syntax-error"
	line, col := dec.InputPos()

	var syn *xml.SyntaxError
	if errors.As(err, &syn) {
		line = syn.Line
	}
	var enc *encodingError
	if errors.As(err, &enc) {
		name = "err-encoding-invalid"
	}

	return validation.MustNew(name, validation.Context{
		LineNumber:   line,
		ColumnNumber: col,
		Err:          err,
		Snippet:      src.SourceAround(line, snippetRadius),
	})
}

type encodingError struct {
	label string
	cause error
}

func (e *encodingError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("unsupported character encoding %q: %v", e.label, e.cause)
	}
	return fmt.Sprintf("unsupported character encoding %q", e.label)
}

func charsetReader(label string, input io.Reader) (io.Reader, error) {
	enc, err := ianaindex.IANA.Encoding(label)
	if err != nil {
		return nil, &encodingError{label: label, cause: err}
	}
	if enc == nil {
		return nil, &encodingError{label: label}
	}
	return enc.NewDecoder().Reader(input), nil
}
