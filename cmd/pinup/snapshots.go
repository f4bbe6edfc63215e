package main

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/hazyhaar/pinup/auth"
	"github.com/hazyhaar/pinup/comments"
	"github.com/hazyhaar/pinup/horosafe"
	"github.com/hazyhaar/pinup/projects"
	"github.com/hazyhaar/pinup/prototype"
	"github.com/hazyhaar/pinup/snapshot"
)

// chromeSnapshots renders snapshots through headless Chrome. Locally served
// versions are fetched back from this server with a short-lived admin
// session; external versions are fetched directly.
type chromeSnapshots struct {
	renderer *snapshot.Renderer
	base     string
	secret   []byte
}

func (s *chromeSnapshots) Snapshot(ctx context.Context, p *projects.Project, v projects.Version, width int, list []comments.Comment) ([]byte, []string, error) {
	req := snapshot.Request{
		URL:      prototype.EntryURL(p, v),
		Width:    width,
		Comments: comments.Refs(list),
	}
	if v.Instrumentable() {
		token, err := auth.GenerateToken(s.secret, &auth.Claims{
			ProjectID: p.ID,
			UserName:  "pinup-snapshot",
			UserType:  projects.RoleAdmin,
		}, 5*time.Minute)
		if err != nil {
			return nil, nil, fmt.Errorf("snapshot session: %w", err)
		}
		req.URL = strings.TrimRight(s.base, "/") + req.URL
		req.Cookies = []*http.Cookie{{Name: auth.CookieName, Value: token, HttpOnly: true}}
	} else if err := horosafe.ValidateURL(req.URL); err != nil {
		return nil, nil, err
	}

	res, err := s.renderer.Render(ctx, req)
	if err != nil {
		return nil, nil, err
	}
	return res.PNG, res.Unresolved, nil
}
