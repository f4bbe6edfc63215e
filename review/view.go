package review

import (
	"bytes"
	"html/template"
	"log/slog"

	"github.com/hazyhaar/pinup/comments"
)

// PanelData is the input of the comment list fragment.
type PanelData struct {
	Comments    []comments.Comment
	Author      comments.Author
	Highlighted string
	Loading     bool
}

// PromptData is the input of the authoring prompt fragment.
type PromptData struct {
	Selector    string
	ElementText string
	Draft       string
	Error       string
	Submitting  bool
}

// cardView is the template-friendly projection of a Comment.
type cardView struct {
	ID          string
	Ordinal     int
	AuthorName  string
	Own         bool
	CanDelete   bool
	Text        string
	Selector    string
	Device      string
	Highlighted bool
}

var deviceIcons = map[comments.DeviceType]string{
	comments.Mobile:  "📱",
	comments.Tablet:  "📟",
	comments.Desktop: "🖥️",
}

var panelTmpl = template.Must(template.New("panel").Parse(`<div class="pinup-panel-header">
<span>Comments ({{len .Cards}})</span>
<button type="button" class="pinup-close" data-action="togglePanel" aria-label="Close comments">&times;</button>
</div>
{{- if .Loading}}
<p class="pinup-empty">Loading comments…</p>
{{- else if not .Cards}}
<p class="pinup-empty">Give feedback, ask a question, or just leave a note of appreciation. Click anywhere in the prototype to leave a comment.</p>
{{- else}}
<ol class="pinup-comments">
{{- range .Cards}}
<li class="pinup-card{{if .Highlighted}} pinup-card-highlighted{{end}}" data-id="{{.ID}}">
<div class="pinup-card-header"><span class="pinup-ordinal">{{.Ordinal}}</span> <span class="pinup-author">{{.AuthorName}}</span>
{{- if .Own}} <span class="pinup-you">(you)</span>{{end}}
{{- if .CanDelete}} <button type="button" class="pinup-delete" data-action="delete" data-id="{{.ID}}" data-confirm="Delete comment? This cannot be undone" title="Delete comment" aria-label="Delete comment">&times;</button>{{end}}
</div>
<p class="pinup-text">{{.Text}}</p>
<div class="pinup-meta"><code>{{.Selector}}</code> <span>{{.Device}}</span></div>
</li>
{{- end}}
</ol>
{{- if .Admin}}
<a class="pinup-export" href="{{.ExportURL}}" download>Export Comments</a>
{{- end}}
{{- end}}`))

var promptTmpl = template.Must(template.New("prompt").Parse(`<form class="pinup-prompt" data-action="submit" role="dialog" aria-modal="true" aria-labelledby="pinup-prompt-title">
<h2 id="pinup-prompt-title">Add Comment</h2>
<p class="pinup-target"><code>{{.Selector}}</code></p>
{{- if .ElementText}}
<p class="pinup-target-text">&ldquo;{{.ElementText}}&rdquo;</p>
{{- end}}
<textarea name="text" rows="4" placeholder="What's your feedback?" required{{if .Submitting}} disabled{{end}}>{{.Draft}}</textarea>
{{- if .Error}}
<p class="pinup-error" role="alert">{{.Error}}</p>
{{- end}}
<div class="pinup-buttons">
<button type="button" data-action="cancel"{{if .Submitting}} disabled{{end}}>Cancel</button>
<button type="submit"{{if .Submitting}} disabled{{end}}>{{if .Submitting}}Posting...{{else}}Post Comment{{end}}</button>
</div>
</form>`))

var noticeTmpl = template.Must(template.New("notice").Parse(`<div class="pinup-notice pinup-notice-{{.Level}}" role="status">{{.Text}}</div>`))

// View renders the host page fragments the controller pushes.
type View struct {
	panel, prompt, notice *template.Template
	// ExportURL is the markdown export link shown to admins; empty hides it.
	ExportURL string
}

// DefaultView returns the built-in fragments.
func DefaultView() *View {
	return &View{panel: panelTmpl, prompt: promptTmpl, notice: noticeTmpl}
}

// Panel renders the comment list.
func (v *View) Panel(d PanelData) string {
	cards := make([]cardView, len(d.Comments))
	for i, c := range d.Comments {
		cards[i] = cardView{
			ID:          c.ID,
			Ordinal:     i + 1,
			AuthorName:  c.AuthorName,
			Own:         c.AuthorName == d.Author.Name,
			CanDelete:   d.Author.CanDelete(c),
			Text:        c.Text,
			Selector:    shorten(c.ElementSelector, 30),
			Device:      deviceIcons[c.DeviceType],
			Highlighted: c.ID == d.Highlighted,
		}
	}
	return v.render(v.panel, struct {
		Cards     []cardView
		Loading   bool
		Admin     bool
		ExportURL string
	}{cards, d.Loading, d.Author.Type == comments.Admin && v.ExportURL != "", v.ExportURL})
}

// Prompt renders the authoring prompt.
func (v *View) Prompt(d PromptData) string {
	d.Selector = shorten(d.Selector, 60)
	d.ElementText = shorten(d.ElementText, 50)
	return v.render(v.prompt, d)
}

// Notice renders a transient message; level is "error" or "info".
func (v *View) Notice(text, level string) string {
	return v.render(v.notice, struct{ Text, Level string }{text, level})
}

func (v *View) render(t *template.Template, data any) string {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		slog.Error("review: render fragment", "template", t.Name(), "error", err)
		return ""
	}
	return buf.String()
}

// shorten truncates s to n runes followed by an ellipsis.
func shorten(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
