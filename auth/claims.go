// Package auth issues and verifies the review session: an HS256 JWT carried
// in an HttpOnly cookie that binds a display name and a role to one project.
package auth

import "github.com/golang-jwt/jwt/v5"

// Claims is the session payload.
type Claims struct {
	jwt.RegisteredClaims
	ProjectID string `json:"project_id"`
	UserName  string `json:"user_name"`
	UserType  string `json:"user_type"` // "client", "admin"
}

// IsAdmin reports whether the session carries the admin role.
func (c *Claims) IsAdmin() bool { return c.UserType == "admin" }
