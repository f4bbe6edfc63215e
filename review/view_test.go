package review

import (
	"strings"
	"testing"

	"github.com/hazyhaar/pinup/comments"
)

func TestView_Panel(t *testing.T) {
	v := DefaultView()
	v.ExportURL = "/api/export?projectId=hotel&versionId=v1"
	list := []comments.Comment{
		{ID: "c1", AuthorName: "Alice", Text: "<b>bold</b>", ElementSelector: strings.Repeat("div > ", 10) + "a", DeviceType: comments.Mobile},
		{ID: "c2", AuthorName: "Bob", Text: "Typo", ElementSelector: "h1", DeviceType: comments.Desktop},
	}

	html := v.Panel(PanelData{Comments: list, Author: alice, Highlighted: "c2"})
	for _, want := range []string{
		"Comments (2)",
		"&lt;b&gt;bold&lt;/b&gt;",
		`<span class="pinup-ordinal">2</span>`,
		"(you)",
		"📱",
		`pinup-card pinup-card-highlighted" data-id="c2"`,
	} {
		if !strings.Contains(html, want) {
			t.Errorf("panel missing %q", want)
		}
	}
	if strings.Count(html, `data-action="delete"`) != 1 {
		t.Error("client should only delete their own comment")
	}
	if strings.Contains(html, "Export Comments") {
		t.Error("export shown to client")
	}

	html = v.Panel(PanelData{Comments: list, Author: studio})
	if strings.Count(html, `data-action="delete"`) != 2 || !strings.Contains(html, "Export Comments") {
		t.Error("admin should delete all and export")
	}
}

func TestView_PanelStates(t *testing.T) {
	v := DefaultView()
	if html := v.Panel(PanelData{Loading: true}); !strings.Contains(html, "Loading comments") {
		t.Error("missing loading state")
	}
	if html := v.Panel(PanelData{}); !strings.Contains(html, "Click anywhere in the prototype") {
		t.Error("missing empty state")
	}
}

func TestView_Prompt(t *testing.T) {
	v := DefaultView()
	html := v.Prompt(PromptData{
		Selector:    "button.cta",
		ElementText: strings.Repeat("x", 80),
		Draft:       "half written",
		Error:       noticeCreateFailed,
	})
	for _, want := range []string{"Add Comment", "half written", noticeCreateFailed, strings.Repeat("x", 50) + "...", "Post Comment"} {
		if !strings.Contains(html, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
	if strings.Contains(html, "disabled") {
		t.Error("idle prompt disabled")
	}

	html = v.Prompt(PromptData{Selector: "a", Submitting: true})
	if !strings.Contains(html, "Posting...") || !strings.Contains(html, "disabled") {
		t.Error("submitting prompt not disabled")
	}
}

func TestShorten(t *testing.T) {
	tests := []struct {
		in   string
		n    int
		want string
	}{
		{"short", 10, "short"},
		{"exactly10!", 10, "exactly10!"},
		{"héllo wörld", 5, "héllo..."},
	}
	for _, tt := range tests {
		if got := shorten(tt.in, tt.n); got != tt.want {
			t.Errorf("shorten(%q, %d) = %q, want %q", tt.in, tt.n, got, tt.want)
		}
	}
}
