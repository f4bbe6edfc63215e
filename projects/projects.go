// Package projects loads the catalogue of reviewable prototypes from YAML:
// each project has a shared client password and an ordered list of
// versions, served either from a local directory or from an external URL.
package projects

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"os"
	"path"
	"regexp"
	"sort"
	"strings"

	"golang.org/x/crypto/bcrypt"
	"gopkg.in/yaml.v3"

	"github.com/hazyhaar/pinup/horosafe"
)

var (
	ErrUnknownProject = errors.New("projects: unknown project")
	ErrUnknownVersion = errors.New("projects: unknown version")
	ErrBadPassword    = errors.New("projects: invalid password")
)

// Roles returned by Authenticate.
const (
	RoleClient = "client"
	RoleAdmin  = "admin"
)

// DefaultEntry is the document opened when a version does not name one.
const DefaultEntry = "index.html"

var slug = regexp.MustCompile(`^[a-z0-9-]+$`)

// reserved project ids collide with top-level routes.
var reserved = map[string]bool{
	"api": true, "static": true, "prototypes": true, "overlay": true,
	"mcp": true, "healthz": true, "admin": true,
}

// File is the on-disk shape of projects.yaml.
type File struct {
	Projects []Project `yaml:"projects"`
}

// Project is one reviewable prototype.
type Project struct {
	ID             string    `yaml:"id"`
	Name           string    `yaml:"name"`
	ClientPassword string    `yaml:"client_password"`
	Versions       []Version `yaml:"versions"`
}

// Version is one published iteration of a project. Exactly one of Dir and
// URL is set after defaults are applied.
type Version struct {
	ID    string `yaml:"id"`
	Label string `yaml:"label"`
	Dir   string `yaml:"dir"`   // relative to the prototypes directory
	URL   string `yaml:"url"`   // externally hosted, cannot be instrumented
	Entry string `yaml:"entry"` // document inside Dir, default index.html
}

// Instrumentable reports whether pinup serves the version itself and can
// therefore inject the overlay runtime.
func (v Version) Instrumentable() bool { return v.URL == "" }

// Version returns the version with the given id. An empty id selects the
// latest version, the last one listed.
func (p *Project) Version(id string) (Version, error) {
	if len(p.Versions) == 0 {
		return Version{}, fmt.Errorf("%w: project %s has no versions", ErrUnknownVersion, p.ID)
	}
	if id == "" {
		return p.Versions[len(p.Versions)-1], nil
	}
	for _, v := range p.Versions {
		if v.ID == id {
			return v, nil
		}
	}
	return Version{}, fmt.Errorf("%w: %s/%s", ErrUnknownVersion, p.ID, id)
}

// CheckClientPassword compares pw with the project password in constant time.
func (p *Project) CheckClientPassword(pw string) bool {
	if p.ClientPassword == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(pw), []byte(p.ClientPassword)) == 1
}

// Registry is the loaded, validated catalogue. It is read-only after
// construction and safe for concurrent use.
type Registry struct {
	byID      map[string]*Project
	order     []string
	adminHash []byte
}

// Load reads and validates a YAML catalogue.
func Load(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("projects: load: %w", err)
	}
	return Parse(data)
}

// Parse validates a YAML catalogue held in memory.
func Parse(data []byte) (*Registry, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("projects: parse: %w", err)
	}
	return NewRegistry(f.Projects)
}

// NewRegistry applies defaults to list and validates it.
func NewRegistry(list []Project) (*Registry, error) {
	r := &Registry{byID: make(map[string]*Project, len(list))}
	for i := range list {
		p := list[i]
		p.applyDefaults()
		if err := p.validate(); err != nil {
			return nil, err
		}
		if _, dup := r.byID[p.ID]; dup {
			return nil, fmt.Errorf("projects: duplicate project %q", p.ID)
		}
		r.byID[p.ID] = &p
		r.order = append(r.order, p.ID)
	}
	return r, nil
}

// SetAdminHash installs the bcrypt hash of the admin password. An empty hash
// disables admin logins.
func (r *Registry) SetAdminHash(hash string) error {
	if hash == "" {
		r.adminHash = nil
		return nil
	}
	if _, err := bcrypt.Cost([]byte(hash)); err != nil {
		return fmt.Errorf("projects: admin hash: %w", err)
	}
	r.adminHash = []byte(hash)
	return nil
}

// Get returns a project by id.
func (r *Registry) Get(id string) (*Project, error) {
	p, ok := r.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProject, id)
	}
	return p, nil
}

// Version resolves a project and one of its versions (empty id = latest).
func (r *Registry) Version(projectID, versionID string) (*Project, Version, error) {
	p, err := r.Get(projectID)
	if err != nil {
		return nil, Version{}, err
	}
	v, err := p.Version(versionID)
	if err != nil {
		return nil, Version{}, err
	}
	return p, v, nil
}

// All returns the projects in file order.
func (r *Registry) All() []*Project {
	out := make([]*Project, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.byID[id])
	}
	return out
}

// IDs returns the sorted project ids.
func (r *Registry) IDs() []string {
	ids := append([]string(nil), r.order...)
	sort.Strings(ids)
	return ids
}

// Authenticate checks a login password for a project. The admin password is
// tried first and grants admin on every project.
func (r *Registry) Authenticate(projectID, password string) (role string, err error) {
	p, err := r.Get(projectID)
	if err != nil {
		return "", err
	}
	if len(r.adminHash) > 0 && bcrypt.CompareHashAndPassword(r.adminHash, []byte(password)) == nil {
		return RoleAdmin, nil
	}
	if p.CheckClientPassword(password) {
		return RoleClient, nil
	}
	return "", ErrBadPassword
}

// HashPassword returns a bcrypt hash suitable for ADMIN_PASSWORD_HASH.
func HashPassword(pw string) (string, error) {
	if len(pw) < 8 {
		return "", errors.New("projects: password must be at least 8 characters")
	}
	h, err := bcrypt.GenerateFromPassword([]byte(pw), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("projects: hash: %w", err)
	}
	return string(h), nil
}

func (p *Project) applyDefaults() {
	p.ID = strings.TrimSpace(p.ID)
	if p.Name == "" {
		p.Name = p.ID
	}
	for i := range p.Versions {
		v := &p.Versions[i]
		if v.Label == "" {
			v.Label = v.ID
		}
		if v.URL == "" && v.Dir == "" {
			v.Dir = path.Join(p.ID, v.ID)
		}
		if v.URL == "" && v.Entry == "" {
			v.Entry = DefaultEntry
		}
	}
}

func (p *Project) validate() error {
	if err := validSlug(p.ID); err != nil {
		return fmt.Errorf("projects: project id: %w", err)
	}
	if reserved[p.ID] {
		return fmt.Errorf("projects: project id %q is reserved", p.ID)
	}
	if len(p.Versions) == 0 {
		return fmt.Errorf("projects: %s: at least one version is required", p.ID)
	}
	seen := make(map[string]bool, len(p.Versions))
	for _, v := range p.Versions {
		if err := validSlug(v.ID); err != nil {
			return fmt.Errorf("projects: %s: version id: %w", p.ID, err)
		}
		if seen[v.ID] {
			return fmt.Errorf("projects: %s: duplicate version %q", p.ID, v.ID)
		}
		seen[v.ID] = true
		if v.URL != "" && v.Dir != "" {
			return fmt.Errorf("projects: %s/%s: dir and url are exclusive", p.ID, v.ID)
		}
		if v.URL != "" {
			if err := horosafe.ValidateURL(v.URL); err != nil {
				return fmt.Errorf("projects: %s/%s: %w", p.ID, v.ID, err)
			}
			continue
		}
		if _, err := horosafe.SafePath("/", v.Dir); err != nil {
			return fmt.Errorf("projects: %s/%s: dir: %w", p.ID, v.ID, err)
		}
		if _, err := horosafe.SafePath("/", v.Entry); err != nil {
			return fmt.Errorf("projects: %s/%s: entry: %w", p.ID, v.ID, err)
		}
	}
	return nil
}

func validSlug(s string) error {
	if err := horosafe.ValidateIdentifier(s); err != nil {
		return err
	}
	if !slug.MatchString(s) {
		return fmt.Errorf("%q must match %s", s, slug)
	}
	return nil
}
