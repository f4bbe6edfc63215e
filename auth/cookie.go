package auth

import (
	"net/http"
	"time"
)

// CookieName is the session cookie.
const CookieName = "pinup_session"

// SessionDuration is the lifetime of a login.
const SessionDuration = 24 * time.Hour

// SetSessionCookie writes the JWT token as an HttpOnly cookie. SameSite=Lax
// keeps the cookie on the same-origin prototype iframe and the websocket
// upgrade.
func SetSessionCookie(w http.ResponseWriter, token string, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(SessionDuration / time.Second),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   secure,
	})
}

// ClearSessionCookie removes the session cookie.
func ClearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	})
}

// Issue signs a session for name on project with role and sets the cookie.
func Issue(w http.ResponseWriter, secret []byte, projectID, name, role string, secure bool) (string, error) {
	token, err := GenerateToken(secret, &Claims{ProjectID: projectID, UserName: name, UserType: role}, SessionDuration)
	if err != nil {
		return "", err
	}
	SetSessionCookie(w, token, secure)
	return token, nil
}
