package document

import (
	"bytes"
	"fmt"
	"math"
	"strings"

	"github.com/antchfx/xmlquery"
	"github.com/antchfx/xpath"

	"github.com/liamcoop/rulecheck/errs"
)

// compiled expressions are shared by every document; rulesets evaluate the
// same handful of expressions against many documents.
var compiled = newExprCache(maxCachedExprs)

func compile(expr string) (*exprPool, error) {
	if cached, ok := compiled.get(expr); ok {
		return cached, nil
	}
	c, err := xpath.Compile(expr)
	if err != nil {
		return nil, errs.Wrap(errs.KindData, fmt.Sprintf("cannot compile expression %q", expr), err)
	}
	pool := newExprPool(c, expr)
	compiled.put(expr, pool)
	return pool, nil
}

// XML is a Document backed by an xmlquery tree.
type XML struct {
	root  *xmlquery.Node
	lines []string
}

// ParseXML parses raw into a queryable document. Malformed input yields a
// data error; use Check for a categorised report of what is wrong.
func ParseXML(raw []byte) (*XML, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, errs.Dataf("document is empty")
	}
	root, err := xmlquery.Parse(bytes.NewReader(raw))
	if err != nil {
		return nil, errs.Wrap(errs.KindData, "document is not well-formed XML", err)
	}
	return &XML{
		root:  root,
		lines: strings.Split(string(raw), "\n"),
	}, nil
}

// Root returns the document element.
func (x *XML) Root() Node {
	for n := x.root.FirstChild; n != nil; n = n.NextSibling {
		if n.Type == xmlquery.ElementNode {
			return n
		}
	}
	return x.root
}

// Select implements Document. With a nil from, expr is evaluated with the
// document element as context node. Expressions that yield a boolean, number
// or string select the context node when the value is true, non-zero or
// non-empty, and nothing otherwise.
func (x *XML) Select(from Node, expr string) (nodes []Node, err error) {
	var nav *xmlquery.NodeNavigator
	var top *xmlquery.Node
	if from == nil {
		nav = xmlquery.CreateXPathNavigator(x.root)
		top = x.root
		if nav.MoveToChild() {
			for nav.NodeType() != xpath.ElementNode {
				if !nav.MoveToNext() {
					nav.MoveToParent()
					break
				}
			}
			top = nav.Current()
		}
	} else {
		n, ok := from.(*xmlquery.Node)
		if !ok || n == nil {
			return nil, errs.Dataf("node of type %T does not belong to an XML document", from)
		}
		nav = xmlquery.CreateXPathNavigator(n)
		top = n
	}

	pool, err := compile(expr)
	if err != nil {
		return nil, err
	}
	c := pool.get()

	// xpath panics on some runtime type errors, e.g. functions applied to
	// the wrong argument types. A copy that panicked is not reused.
	defer func() {
		if r := recover(); r != nil {
			nodes = nil
			err = errs.Dataf("cannot evaluate expression %q: %v", expr, r)
			return
		}
		pool.put(c)
	}()

	switch v := c.Evaluate(nav).(type) {
	case *xpath.NodeIterator:
		for v.MoveNext() {
			nodes = append(nodes, currentNode(v))
		}
		return nodes, nil
	case bool:
		if v {
			return []Node{top}, nil
		}
	case float64:
		if v != 0 && !math.IsNaN(v) {
			return []Node{top}, nil
		}
	case string:
		if v != "" {
			return []Node{top}, nil
		}
	}
	return nil, nil
}

// currentNode returns the node under the iterator. Attributes have no node
// of their own in an xmlquery tree, so one is built holding the value.
func currentNode(it *xpath.NodeIterator) *xmlquery.Node {
	nav := it.Current().(*xmlquery.NodeNavigator)
	if nav.NodeType() != xpath.AttributeNode {
		return nav.Current()
	}
	text := &xmlquery.Node{Type: xmlquery.TextNode, Data: nav.Value()}
	return &xmlquery.Node{
		Parent:     nav.Current(),
		Type:       xmlquery.AttributeNode,
		Data:       nav.LocalName(),
		Prefix:     nav.Prefix(),
		FirstChild: text,
		LastChild:  text,
	}
}

// TextOf implements Document. Element text is the character data before the
// first child element, matching the usual tree-API notion of "text".
func (x *XML) TextOf(n Node) (string, bool) {
	node, ok := n.(*xmlquery.Node)
	if !ok || node == nil {
		return "", false
	}

	switch node.Type {
	case xmlquery.AttributeNode:
		return attributeValue(node)
	case xmlquery.TextNode, xmlquery.CharDataNode:
		return node.Data, true
	case xmlquery.ElementNode:
		var b strings.Builder
		found := false
		for c := node.FirstChild; c != nil; c = c.NextSibling {
			if c.Type != xmlquery.TextNode && c.Type != xmlquery.CharDataNode {
				break
			}
			b.WriteString(c.Data)
			found = true
		}
		if !found || b.Len() == 0 {
			return "", false
		}
		return b.String(), true
	}
	return "", false
}

func attributeValue(node *xmlquery.Node) (string, bool) {
	if node.FirstChild != nil {
		return node.InnerText(), true
	}
	if node.Parent == nil {
		return "", false
	}
	for _, a := range node.Parent.Attr {
		if a.Name.Local == node.Data && a.Name.Space == node.Prefix {
			return a.Value, true
		}
	}
	return "", false
}

// SourceAround implements SourceProvider.
func (x *XML) SourceAround(line, radius int) string {
	if line < 1 || line > len(x.lines) {
		return ""
	}
	if radius < 0 {
		radius = 0
	}
	first := max(line-1-radius, 0)
	last := min(line+radius, len(x.lines))
	return strings.Join(x.lines[first:last], "\n")
}
