package protocol

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestDecode_Variants(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want Message
	}{
		{"ready", `{"type":"ready"}`, Ready{}},
		{
			"elementClicked",
			`{"type":"elementClicked","selector":"main > h1","elementText":"Welcome","clickX":12,"clickY":88,"viewportWidth":1280,"viewportHeight":720}`,
			ElementClicked{Selector: "main > h1", ElementText: "Welcome", ClickX: 12, ClickY: 88, ViewportWidth: 1280, ViewportHeight: 720},
		},
		{
			"elementClicked without text",
			`{"type":"elementClicked","selector":"img","clickX":0,"clickY":100,"viewportWidth":375,"viewportHeight":812}`,
			ElementClicked{Selector: "img", ClickX: 0, ClickY: 100, ViewportWidth: 375, ViewportHeight: 812},
		},
		{"dotClicked", `{"type":"dotClicked","commentId":"c1"}`, DotClicked{CommentID: "c1"}},
		{"setCommentMode", `{"type":"setCommentMode","enabled":true}`, SetCommentMode{Enabled: true}},
		{
			"commentsUpdated",
			`{"type":"commentsUpdated","comments":[{"id":"a","selector":"#hero","clickX":50,"clickY":50},{"id":"b","selector":"","clickX":1,"clickY":2}]}`,
			CommentsUpdated{Comments: []CommentRef{{ID: "a", Selector: "#hero", ClickX: 50, ClickY: 50}, {ID: "b", ClickX: 1, ClickY: 2}}},
		},
		{"commentsUpdated empty", `{"type":"commentsUpdated","comments":[]}`, CommentsUpdated{Comments: []CommentRef{}}},
		{"setHighlight id", `{"type":"setHighlight","commentId":"c9"}`, SetHighlight{CommentID: "c9"}},
		{"setHighlight null", `{"type":"setHighlight","commentId":null}`, SetHighlight{}},
		{"extra fields ignored", `{"type":"dotClicked","commentId":"c1","source":"pinup"}`, DotClicked{CommentID: "c1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decode([]byte(tt.in))
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Fatalf("Decode (-want +got):\n%s", diff)
			}
		})
	}
}

func TestDecode_Malformed(t *testing.T) {
	tests := []struct {
		name string
		in   string
	}{
		{"not json", `{type:`},
		{"array", `[1,2]`},
		{"null", `null`},
		{"string", `"ready"`},
		{"missing type", `{"commentId":"c1"}`},
		{"type not a string", `{"type":7}`},
		{"dotClicked missing id", `{"type":"dotClicked"}`},
		{"dotClicked empty id", `{"type":"dotClicked","commentId":""}`},
		{"dotClicked numeric id", `{"type":"dotClicked","commentId":5}`},
		{"setCommentMode missing", `{"type":"setCommentMode"}`},
		{"setCommentMode string", `{"type":"setCommentMode","enabled":"yes"}`},
		{"elementClicked missing selector", `{"type":"elementClicked","clickX":1,"clickY":1,"viewportWidth":1,"viewportHeight":1}`},
		{"elementClicked out of range", `{"type":"elementClicked","selector":"p","clickX":101,"clickY":1,"viewportWidth":1,"viewportHeight":1}`},
		{"elementClicked negative", `{"type":"elementClicked","selector":"p","clickX":-1,"clickY":1,"viewportWidth":1,"viewportHeight":1}`},
		{"elementClicked fractional", `{"type":"elementClicked","selector":"p","clickX":1.5,"clickY":1,"viewportWidth":1,"viewportHeight":1}`},
		{"elementClicked missing viewport", `{"type":"elementClicked","selector":"p","clickX":1,"clickY":1}`},
		{"commentsUpdated missing list", `{"type":"commentsUpdated"}`},
		{"commentsUpdated null list", `{"type":"commentsUpdated","comments":null}`},
		{"commentsUpdated object list", `{"type":"commentsUpdated","comments":{}}`},
		{"commentsUpdated missing id", `{"type":"commentsUpdated","comments":[{"selector":"p","clickX":1,"clickY":1}]}`},
		{"commentsUpdated out of range", `{"type":"commentsUpdated","comments":[{"id":"a","selector":"p","clickX":1,"clickY":250}]}`},
		{"commentsUpdated duplicate", `{"type":"commentsUpdated","comments":[{"id":"a","selector":"p","clickX":1,"clickY":1},{"id":"a","selector":"p","clickX":1,"clickY":1}]}`},
		{"setHighlight missing", `{"type":"setHighlight"}`},
		{"setHighlight number", `{"type":"setHighlight","commentId":3}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := Decode([]byte(tt.in))
			if !errors.Is(err, ErrMalformed) {
				t.Fatalf("Decode = %v, %v; want ErrMalformed", m, err)
			}
		})
	}
}

func TestDecode_UnknownType(t *testing.T) {
	for _, in := range []string{`{"type":"PINUP_IFRAME_READY"}`, `{"type":""}`, `{"type":"resize","width":3}`} {
		if _, err := Decode([]byte(in)); !errors.Is(err, ErrUnknownType) {
			t.Errorf("Decode(%s) = %v, want ErrUnknownType", in, err)
		}
	}
}

func TestDecodeFrom_Direction(t *testing.T) {
	if _, err := DecodeFrom(ParentToChild, []byte(`{"type":"ready"}`)); !errors.Is(err, ErrUnknownType) {
		t.Fatalf("ready decoded as parent->child: %v", err)
	}
	if _, err := DecodeFrom(ChildToParent, []byte(`{"type":"setCommentMode","enabled":true}`)); !errors.Is(err, ErrUnknownType) {
		t.Fatalf("setCommentMode decoded as child->parent: %v", err)
	}
	m, err := DecodeFrom(ChildToParent, []byte(`{"type":"dotClicked","commentId":"x"}`))
	if err != nil || m != (DotClicked{CommentID: "x"}) {
		t.Fatalf("DecodeFrom = %v, %v", m, err)
	}
}

func TestEncode_WireShape(t *testing.T) {
	tests := []struct {
		msg  Message
		want string
	}{
		{Ready{}, `{"type":"ready"}`},
		{DotClicked{CommentID: "c1"}, `{"type":"dotClicked","commentId":"c1"}`},
		{SetCommentMode{}, `{"type":"setCommentMode","enabled":false}`},
		{SetHighlight{}, `{"type":"setHighlight","commentId":null}`},
		{SetHighlight{CommentID: "c2"}, `{"type":"setHighlight","commentId":"c2"}`},
		{CommentsUpdated{}, `{"type":"commentsUpdated","comments":[]}`},
		{
			ElementClicked{Selector: "h1", ElementText: "Hi", ClickX: 5, ClickY: 6, ViewportWidth: 7, ViewportHeight: 8},
			`{"type":"elementClicked","selector":"h1","elementText":"Hi","clickX":5,"clickY":6,"viewportWidth":7,"viewportHeight":8}`,
		},
	}
	for _, tt := range tests {
		got, err := Encode(tt.msg)
		if err != nil {
			t.Fatalf("Encode(%T): %v", tt.msg, err)
		}
		if !jsonEqual(t, got, []byte(tt.want)) {
			t.Errorf("Encode(%T) = %s, want %s", tt.msg, got, tt.want)
		}
	}
	if _, err := Encode(nil); err == nil {
		t.Fatal("Encode(nil): expected error")
	}
}

func TestEncodeDecode_CommentsUpdated(t *testing.T) {
	in := CommentsUpdated{Comments: []CommentRef{
		{ID: "b", Selector: "section.Pricing > div:nth-of-type(2)", ClickX: 10, ClickY: 90},
		{ID: "a", Selector: `#\31 23`, ClickX: 100, ClickY: 0},
	}}
	out, err := Decode(MustEncode(in))
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(Message(in), out); diff != "" {
		t.Fatalf("(-want +got):\n%s", diff)
	}
}

func TestClampPercent(t *testing.T) {
	for in, want := range map[int]int{-5: 0, 0: 0, 42: 42, 100: 100, 130: 100} {
		if got := ClampPercent(in); got != want {
			t.Errorf("ClampPercent(%d) = %d, want %d", in, got, want)
		}
	}
}

func jsonEqual(t *testing.T, a, b []byte) bool {
	t.Helper()
	var va, vb any
	if err := json.Unmarshal(a, &va); err != nil {
		t.Fatalf("unmarshal %s: %v", a, err)
	}
	if err := json.Unmarshal(b, &vb); err != nil {
		t.Fatalf("unmarshal %s: %v", b, err)
	}
	return cmp.Equal(va, vb)
}
