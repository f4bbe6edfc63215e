package selector

import (
	"strings"

	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"
)

type htmlElement struct{ n *html.Node }

// FromHTML wraps an element node of a parsed document. It returns nil for
// anything that is not an element.
func FromHTML(n *html.Node) Element {
	if n == nil || n.Type != html.ElementNode {
		return nil
	}
	return htmlElement{n}
}

func (e htmlElement) Tag() string { return strings.ToLower(e.n.Data) }

func (e htmlElement) ID() string { return Attr(e.n, "id") }

func (e htmlElement) Classes() []string { return strings.Fields(Attr(e.n, "class")) }

func (e htmlElement) Parent() Element {
	if p := e.n.Parent; p != nil && p.Type == html.ElementNode {
		return htmlElement{p}
	}
	return nil
}

func (e htmlElement) TypeIndex() (pos, count int) {
	if e.n.Parent == nil {
		return 1, 1
	}
	for c := e.n.Parent.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != html.ElementNode || c.Data != e.n.Data {
			continue
		}
		count++
		if c == e.n {
			pos = count
		}
	}
	return pos, count
}

// Node returns the underlying node of an element built by FromHTML.
func Node(el Element) (*html.Node, bool) {
	h, ok := el.(htmlElement)
	if !ok {
		return nil, false
	}
	return h.n, true
}

// Attr returns the value of the named attribute, or "".
func Attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			return a.Val
		}
	}
	return ""
}

// Resolve returns the first element under root matching sel. A selector that
// does not parse resolves to nothing.
func Resolve(root *html.Node, sel string) (*html.Node, bool) {
	if root == nil || strings.TrimSpace(sel) == "" {
		return nil, false
	}
	m, err := cascadia.Compile(sel)
	if err != nil {
		return nil, false
	}
	n := cascadia.Query(root, m)
	return n, n != nil
}

// ResolveAll returns every element under root matching sel.
func ResolveAll(root *html.Node, sel string) []*html.Node {
	if root == nil {
		return nil
	}
	m, err := cascadia.Compile(sel)
	if err != nil {
		return nil
	}
	return cascadia.QueryAll(root, m)
}
