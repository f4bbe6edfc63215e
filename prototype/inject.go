package prototype

import (
	"bytes"
	"fmt"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// BootstrapSrc is the script element added to served documents.
const BootstrapSrc = "/overlay/bootstrap.js"

// ShouldInject reports whether a response of contentType is a document that
// gets the overlay bootstrap.
func ShouldInject(contentType string) bool {
	return strings.Contains(strings.ToLower(contentType), "text/html")
}

// Inject parses an HTML document and appends the bootstrap script as the
// last child of <body>, after the prototype's own scripts. Documents that
// already carry the bootstrap are returned unchanged.
func Inject(body []byte) ([]byte, error) {
	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("prototype: inject: %w", err)
	}
	if hasBootstrap(doc) {
		return body, nil
	}
	b := findBody(doc)
	if b == nil {
		return nil, fmt.Errorf("prototype: inject: document has no body")
	}
	b.AppendChild(&html.Node{
		Type:     html.ElementNode,
		DataAtom: atom.Script,
		Data:     "script",
		Attr: []html.Attribute{
			{Key: "src", Val: BootstrapSrc},
			{Key: "data-pinup", Val: "bootstrap"},
		},
	})

	var buf bytes.Buffer
	buf.Grow(len(body) + 64)
	if err := html.Render(&buf, doc); err != nil {
		return nil, fmt.Errorf("prototype: inject: %w", err)
	}
	return buf.Bytes(), nil
}

// findBody returns the <body> element; html.Parse always synthesises one
// unless the document is a frameset.
func findBody(n *html.Node) *html.Node {
	if n.Type == html.ElementNode && n.DataAtom == atom.Body {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if b := findBody(c); b != nil {
			return b
		}
	}
	return nil
}

func hasBootstrap(n *html.Node) bool {
	if n.Type == html.ElementNode && n.DataAtom == atom.Script {
		for _, a := range n.Attr {
			if a.Key == "src" && a.Val == BootstrapSrc {
				return true
			}
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if hasBootstrap(c) {
			return true
		}
	}
	return false
}
