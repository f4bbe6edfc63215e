// Package comments stores the numbered comments pinned onto prototype
// elements and exposes them over HTTP, as markdown exports and as MCP tools.
//
// The store follows the self-contained widget layout: New applies the schema
// on the caller's *sql.DB, handlers are mounted on a chi router, and every
// query is scoped by (project, version).
package comments

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"

	"github.com/hazyhaar/pinup/dbopen"
	"github.com/hazyhaar/pinup/idgen"
	"github.com/hazyhaar/pinup/overlay"
	"github.com/hazyhaar/pinup/protocol"
)

// MaxTextLen caps the stored feedback text, in runes.
const MaxTextLen = 5000

var (
	ErrNotFound = errors.New("comments: not found")
	ErrInvalid  = errors.New("comments: invalid draft")
)

// AuthorType distinguishes client reviewers from admins.
type AuthorType string

const (
	Client AuthorType = "client"
	Admin  AuthorType = "admin"
)

// DeviceType is derived from the viewport width at authoring time.
type DeviceType string

const (
	Mobile  DeviceType = "mobile"
	Tablet  DeviceType = "tablet"
	Desktop DeviceType = "desktop"
)

// DeviceFor classifies a viewport width.
func DeviceFor(width int) DeviceType {
	switch {
	case width < 768:
		return Mobile
	case width < 1024:
		return Tablet
	default:
		return Desktop
	}
}

// Comment is a persisted comment. It is never mutated after creation.
type Comment struct {
	ID              string     `json:"id"`
	ProjectID       string     `json:"projectId"`
	VersionID       string     `json:"versionId"`
	CreatedAt       time.Time  `json:"createdAt"`
	AuthorName      string     `json:"authorName"`
	AuthorType      AuthorType `json:"authorType"`
	Text            string     `json:"text"`
	ElementSelector string     `json:"elementSelector"`
	ElementText     string     `json:"elementText"`
	ClickX          int        `json:"clickX"`
	ClickY          int        `json:"clickY"`
	ViewportWidth   int        `json:"viewportWidth"`
	ViewportHeight  int        `json:"viewportHeight"`
	DeviceType      DeviceType `json:"deviceType"`
}

// Ref is the projection of c sent to the embedded runtime.
func (c Comment) Ref() protocol.CommentRef {
	return protocol.CommentRef{
		ID:       c.ID,
		Selector: c.ElementSelector,
		ClickX:   c.ClickX,
		ClickY:   c.ClickY,
	}
}

// Refs projects a list for a commentsUpdated message, preserving order.
func Refs(list []Comment) []protocol.CommentRef {
	out := make([]protocol.CommentRef, len(list))
	for i, c := range list {
		out[i] = c.Ref()
	}
	return out
}

// Author identifies who is acting on comments.
type Author struct {
	Name string
	Type AuthorType
}

// CanDelete reports whether a may delete c: admins delete anything, clients
// only what they wrote.
func (a Author) CanDelete(c Comment) bool {
	if a.Type == Admin {
		return true
	}
	return a.Name != "" && a.Name == c.AuthorName
}

// Draft is the author-supplied part of a new comment.
type Draft struct {
	ProjectID       string `json:"projectId"`
	VersionID       string `json:"versionId"`
	Text            string `json:"text"`
	ElementSelector string `json:"elementSelector"`
	ElementText     string `json:"elementText"`
	ClickX          int    `json:"clickX"`
	ClickY          int    `json:"clickY"`
	ViewportWidth   int    `json:"viewportWidth"`
	ViewportHeight  int    `json:"viewportHeight"`
}

// DraftFromClick seeds a draft from the click reported by the frame.
func DraftFromClick(projectID, versionID string, ec protocol.ElementClicked, text string) Draft {
	return Draft{
		ProjectID:       projectID,
		VersionID:       versionID,
		Text:            text,
		ElementSelector: ec.Selector,
		ElementText:     ec.ElementText,
		ClickX:          ec.ClickX,
		ClickY:          ec.ClickY,
		ViewportWidth:   ec.ViewportWidth,
		ViewportHeight:  ec.ViewportHeight,
	}
}

// Config holds the settings needed to create a Store.
type Config struct {
	DB     *sql.DB
	Logger *slog.Logger
	Now    func() time.Time // nil = time.Now
	NewID  idgen.Generator  // nil = idgen.Default
}

// Store persists comments in SQLite.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
	now    func() time.Time
	newID  idgen.Generator
	policy *bluemonday.Policy
}

const schema = `
CREATE TABLE IF NOT EXISTS pinup_comments (
    id               TEXT PRIMARY KEY,
    project_id       TEXT NOT NULL,
    version_id       TEXT NOT NULL,
    created_at       INTEGER NOT NULL,
    author_name      TEXT NOT NULL,
    author_type      TEXT NOT NULL CHECK (author_type IN ('client', 'admin')),
    text             TEXT NOT NULL,
    element_selector TEXT NOT NULL,
    element_text     TEXT NOT NULL DEFAULT '',
    click_x          INTEGER NOT NULL,
    click_y          INTEGER NOT NULL,
    viewport_width   INTEGER NOT NULL,
    viewport_height  INTEGER NOT NULL,
    device_type      TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_pinup_comments_version ON pinup_comments(project_id, version_id, created_at);
`

// New creates a Store and applies the database schema.
func New(cfg Config) (*Store, error) {
	if cfg.DB == nil {
		return nil, fmt.Errorf("comments: DB is required")
	}
	if err := dbopen.Apply(context.Background(), cfg.DB, "comments", schema); err != nil {
		return nil, err
	}
	s := &Store{
		db:     cfg.DB,
		logger: cfg.Logger,
		now:    cfg.Now,
		newID:  cfg.NewID,
		policy: bluemonday.StrictPolicy(),
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.newID == nil {
		s.newID = idgen.Default
	}
	return s, nil
}

const columns = `id, project_id, version_id, created_at, author_name, author_type, text,
	element_selector, element_text, click_x, click_y, viewport_width, viewport_height, device_type`

// List returns the comments of one version, newest first.
func (s *Store) List(ctx context.Context, projectID, versionID string) ([]Comment, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+columns+` FROM pinup_comments
		 WHERE project_id = ? AND version_id = ?
		 ORDER BY created_at DESC, id DESC`,
		projectID, versionID,
	)
	if err != nil {
		return nil, fmt.Errorf("comments: list: %w", err)
	}
	defer rows.Close()

	list := []Comment{}
	for rows.Next() {
		c, err := scan(rows)
		if err != nil {
			return nil, fmt.Errorf("comments: list: %w", err)
		}
		list = append(list, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("comments: list: %w", err)
	}
	return list, nil
}

// Get returns one comment or ErrNotFound.
func (s *Store) Get(ctx context.Context, id string) (Comment, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+columns+` FROM pinup_comments WHERE id = ?`, id)
	c, err := scan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Comment{}, ErrNotFound
	}
	if err != nil {
		return Comment{}, fmt.Errorf("comments: get: %w", err)
	}
	return c, nil
}

// Create validates and normalises d and stores it as a new comment by a.
// Text is stripped of markup and capped at MaxTextLen; element text is cut
// to overlay.MaxElementText; click percentages are clamped to 0..100.
func (s *Store) Create(ctx context.Context, a Author, d Draft) (Comment, error) {
	c, err := s.normalize(a, d)
	if err != nil {
		return Comment{}, err
	}
	_, err = dbopen.Exec(ctx, s.db,
		`INSERT INTO pinup_comments (`+columns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.ProjectID, c.VersionID, c.CreatedAt.UnixMilli(), c.AuthorName, string(c.AuthorType), c.Text,
		c.ElementSelector, c.ElementText, c.ClickX, c.ClickY, c.ViewportWidth, c.ViewportHeight, string(c.DeviceType),
	)
	if err != nil {
		return Comment{}, fmt.Errorf("comments: create: %w", err)
	}
	s.logger.Debug("comment created", "id", c.ID, "project", c.ProjectID, "version", c.VersionID, "author", c.AuthorName)
	return c, nil
}

// Delete removes a comment. It reports false when the id did not exist.
func (s *Store) Delete(ctx context.Context, id string) (bool, error) {
	res, err := dbopen.Exec(ctx, s.db, `DELETE FROM pinup_comments WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("comments: delete: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("comments: delete: %w", err)
	}
	return n > 0, nil
}

// Count returns the number of comments on one version.
func (s *Store) Count(ctx context.Context, projectID, versionID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM pinup_comments WHERE project_id = ? AND version_id = ?`,
		projectID, versionID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("comments: count: %w", err)
	}
	return n, nil
}

// Revision returns a token that changes whenever a comment is created or
// deleted: the newest creation time in the high bits, the row count in the
// low 20.
func (s *Store) Revision(ctx context.Context) (int64, error) {
	var n, newest int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(MAX(created_at), 0) FROM pinup_comments`,
	).Scan(&n, &newest)
	if err != nil {
		return 0, fmt.Errorf("comments: revision: %w", err)
	}
	return newest<<20 | n&(1<<20-1), nil
}

func (s *Store) normalize(a Author, d Draft) (Comment, error) {
	if d.ProjectID == "" || d.VersionID == "" {
		return Comment{}, fmt.Errorf("%w: projectId and versionId are required", ErrInvalid)
	}
	if a.Name == "" || (a.Type != Client && a.Type != Admin) {
		return Comment{}, fmt.Errorf("%w: author is required", ErrInvalid)
	}
	text := s.sanitize(d.Text)
	if r := []rune(text); len(r) > MaxTextLen {
		text = strings.TrimSpace(string(r[:MaxTextLen]))
	}
	sel := strings.TrimSpace(d.ElementSelector)
	if text == "" || sel == "" {
		return Comment{}, fmt.Errorf("%w: text and elementSelector are required", ErrInvalid)
	}
	vw, vh := max(d.ViewportWidth, 0), max(d.ViewportHeight, 0)
	return Comment{
		ID:              s.newID(),
		ProjectID:       d.ProjectID,
		VersionID:       d.VersionID,
		CreatedAt:       s.now().UTC().Truncate(time.Millisecond),
		AuthorName:      a.Name,
		AuthorType:      a.Type,
		Text:            text,
		ElementSelector: sel,
		ElementText:     overlay.Excerpt(s.sanitize(d.ElementText), overlay.MaxElementText),
		ClickX:          protocol.ClampPercent(d.ClickX),
		ClickY:          protocol.ClampPercent(d.ClickY),
		ViewportWidth:   vw,
		ViewportHeight:  vh,
		DeviceType:      DeviceFor(vw),
	}, nil
}

// sanitize strips all markup and returns plain text. Escaping happens at
// render time, so entities produced by the policy are decoded again.
func (s *Store) sanitize(v string) string {
	return strings.TrimSpace(html.UnescapeString(s.policy.Sanitize(v)))
}

type scanner interface {
	Scan(dest ...any) error
}

func scan(r scanner) (Comment, error) {
	var (
		c                  Comment
		created            int64
		authorType, device string
	)
	err := r.Scan(&c.ID, &c.ProjectID, &c.VersionID, &created, &c.AuthorName, &authorType, &c.Text,
		&c.ElementSelector, &c.ElementText, &c.ClickX, &c.ClickY, &c.ViewportWidth, &c.ViewportHeight, &device)
	if err != nil {
		return Comment{}, err
	}
	c.CreatedAt = time.UnixMilli(created).UTC()
	c.AuthorType = AuthorType(authorType)
	c.DeviceType = DeviceType(device)
	return c, nil
}
