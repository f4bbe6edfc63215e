package review

import (
	"bytes"
	"html/template"
	"log/slog"
	"net/http"

	"github.com/hazyhaar/pinup/projects"
)

type loginData struct {
	ProjectID   string
	ProjectName string
	Error       string
}

type reviewData struct {
	Project     *projects.Project
	Current     projects.Version
	FrameURL    string
	WSURL       string
	UserName    string
	Admin       bool
	ExportURL   string
	SnapshotURL string
}

const pageHead = `<!DOCTYPE html>
<html lang="en"><head><meta charset="UTF-8"><meta name="viewport" content="width=device-width,initial-scale=1">
<link rel="stylesheet" href="/static/review.css">`

var loginPage = template.Must(template.New("login").Parse(pageHead + `
<title>{{.ProjectName}} · PinUp</title></head>
<body class="pinup-login">
<main class="pinup-login-card">
<h1>PinUp</h1>
<p class="pinup-subtitle">Prototype Review · {{.ProjectName}}</p>
<form method="post" action="/{{.ProjectID}}/login">
<label for="password">Password</label>
<input id="password" name="password" type="password" placeholder="Enter review password" required autofocus>
<label for="name">Your Name</label>
<input id="name" name="name" type="text" placeholder="How should we identify you?" required minlength="2">
<p class="pinup-hint">This will appear on your comments</p>
{{- if .Error}}
<div class="pinup-error" role="alert">{{.Error}}</div>
{{- end}}
<button type="submit">Enter Review →</button>
</form>
</main>
</body></html>`))

var reviewPage = template.Must(template.New("review").Parse(pageHead + `
<title>{{.Project.Name}} · PinUp</title></head>
<body class="pinup-review" data-ws-url="{{.WSURL}}">
<header class="pinup-topbar">
<span class="pinup-project">{{.Project.Name}}</span>
<nav class="pinup-versions">
{{- $cur := .Current.ID}}
{{- range .Project.Versions}}
<a href="?version={{.ID}}"{{if eq .ID $cur}} class="pinup-current" aria-current="page"{{end}}>{{.Label}}</a>
{{- end}}
</nav>
<span class="pinup-viewport" id="pinup-viewport"></span>
<button type="button" class="pinup-toggle" data-action="togglePanel">Comments <span id="pinup-count">0</span></button>
{{- if .Admin}}
<a class="pinup-export" href="{{.ExportURL}}" download>Export</a>
<a class="pinup-export" href="{{.SnapshotURL}}" target="_blank" rel="noopener">Snapshot</a>
{{- end}}
<span class="pinup-user">{{.UserName}}</span>
<a class="pinup-logout" href="/{{.Project.ID}}/logout">Log out</a>
</header>
<div class="pinup-main">
<div class="pinup-stage">
<iframe id="pinup-frame" src="{{.FrameURL}}" title="Prototype preview" sandbox="allow-scripts allow-same-origin allow-forms allow-popups allow-modals"></iframe>
<div id="pinup-unavailable" class="pinup-unavailable" hidden></div>
<div class="pinup-hint-bubble" id="pinup-hint" hidden>Click anywhere to add a comment</div>
</div>
<aside id="pinup-panel" class="pinup-panel" hidden></aside>
</div>
<div id="pinup-prompt" class="pinup-modal" hidden></div>
<div id="pinup-notices" class="pinup-notices" aria-live="polite"></div>
<script src="/static/bridge.js"></script>
</body></html>`))

var notFoundPage = template.Must(template.New("notfound").Parse(pageHead + `
<title>Not found · PinUp</title></head>
<body class="pinup-login"><main class="pinup-login-card"><h1>404</h1><p>This project does not exist.</p></main></body></html>`))

func renderPage(w http.ResponseWriter, code int, t *template.Template, data any) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		slog.Error("review: render page", "template", t.Name(), "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(code)
	w.Write(buf.Bytes())
}

func renderNotFound(w http.ResponseWriter) {
	renderPage(w, http.StatusNotFound, notFoundPage, nil)
}
