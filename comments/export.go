package comments

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
	"golang.org/x/net/html"

	"github.com/hazyhaar/pinup/selector"
)

// maxExcerpt bounds the markdown rendering of a resolved element, in runes.
const maxExcerpt = 400

var mdConverter = converter.NewConverter(
	converter.WithPlugins(
		base.NewBasePlugin(),
		commonmark.NewCommonmarkPlugin(),
		table.NewTablePlugin(),
	),
)

// ExportMeta carries what the markdown header needs. Document is the parsed
// entry document of the version; when set, every comment also reports
// whether its selector still resolves and what the element contains.
type ExportMeta struct {
	ProjectName  string
	VersionLabel string
	ExportedAt   time.Time
	Document     *html.Node
}

// Markdown renders list as a feedback export ready to paste into an editor
// assistant. list is expected newest first, as returned by Store.List.
func Markdown(meta ExportMeta, list []Comment) string {
	var b strings.Builder
	fmt.Fprintf(&b, "## PinUp Feedback Export\n")
	fmt.Fprintf(&b, "**Project:** %s\n", meta.ProjectName)
	fmt.Fprintf(&b, "**Version:** %s\n", meta.VersionLabel)
	fmt.Fprintf(&b, "**Exported:** %s\n", meta.ExportedAt.UTC().Format("2006-01-02 15:04"))
	fmt.Fprintf(&b, "**Comments:** %d items\n\n---\n\n", len(list))

	if len(list) == 0 {
		b.WriteString("*No comments for this version.*\n\n")
	}
	for i, c := range list {
		fmt.Fprintf(&b, "### 📌 Comment #%d\n", i+1)
		fmt.Fprintf(&b, "**Element:** `%s`\n", c.ElementSelector)
		if c.ElementText != "" {
			fmt.Fprintf(&b, "**Element Text:** \"%s\"\n", c.ElementText)
		}
		fmt.Fprintf(&b, "**Viewport:** %s (%dpx)\n", capitalize(string(c.DeviceType)), c.ViewportWidth)
		fmt.Fprintf(&b, "**Author:** %s\n", c.AuthorName)
		if meta.Document != nil {
			writeResolution(&b, meta.Document, c.ElementSelector)
		}
		fmt.Fprintf(&b, "\n**Feedback:**\n\"%s\"\n", c.Text)
		fmt.Fprintf(&b, "\n**Suggested action:**\n%s\n\n---\n\n", SuggestedAction(c))
	}
	b.WriteString("*Exported from PinUp*")
	return b.String()
}

func writeResolution(b *strings.Builder, doc *html.Node, sel string) {
	n, ok := selector.Resolve(doc, sel)
	if !ok {
		b.WriteString("**Resolves:** no (the selector matches nothing in the current document)\n")
		return
	}
	b.WriteString("**Resolves:** yes\n")
	md := elementMarkdown(n)
	if md == "" {
		return
	}
	fmt.Fprintf(b, "**Element content:**\n```markdown\n%s\n```\n", md)
}

func elementMarkdown(n *html.Node) string {
	var buf bytes.Buffer
	if err := html.Render(&buf, n); err != nil {
		return ""
	}
	md, err := mdConverter.ConvertString(buf.String())
	if err != nil {
		return ""
	}
	md = strings.TrimSpace(md)
	if r := []rune(md); len(r) > maxExcerpt {
		md = string(r[:maxExcerpt]) + "…"
	}
	return strings.ReplaceAll(md, "```", "'''")
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// SuggestedAction derives a one-line action from keywords in the selector
// and the feedback text.
func SuggestedAction(c Comment) string {
	sel := strings.ToLower(c.ElementSelector)
	text := strings.ToLower(c.Text)
	x := c.ElementSelector

	switch {
	case containsAny(sel, "button", "btn", "cta"):
		if containsAny(text, "small", "tap", "click") {
			return fmt.Sprintf("Increase tap target for %s on %s. Minimum 44x44px recommended.", x, c.DeviceType)
		}
		return fmt.Sprintf("Review button styling/behavior for %s.", x)
	case containsAny(sel, "h1", "h2", "h3", "title", "heading"):
		if containsAny(text, "generic", "specific", "change") {
			return fmt.Sprintf("Update heading text in %s to be more specific/compelling.", x)
		}
		return fmt.Sprintf("Review heading content in %s.", x)
	case containsAny(sel, "input", "form", "field"):
		return fmt.Sprintf("Review form field behavior/validation for %s.", x)
	case containsAny(sel, "card"):
		if containsAny(text, "hover", "effect", "animation") {
			return fmt.Sprintf("Add hover state/interaction to %s.", x)
		}
		return fmt.Sprintf("Review card component styling at %s.", x)
	case containsAny(sel, "nav", "menu", "header"):
		return fmt.Sprintf("Review navigation element at %s.", x)
	case containsAny(sel, "img", "image", "photo"):
		return fmt.Sprintf("Review image element at %s.", x)
	}
	return fmt.Sprintf("Review element at %s based on feedback.", x)
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
