package server

import (
	"net/http"

	"github.com/google/uuid"
)

// authSessionCookieName is the name of the cookie tying authorization states to a browser
const authSessionCookieName = "azure_oauth2_session"

// sessionID returns the browser's session id, issuing a new session cookie when there is none.
func (s *Server) sessionID(w http.ResponseWriter, r *http.Request) string {
	if cookie, err := r.Cookie(authSessionCookieName); err == nil && cookie.Value != "" {
		return cookie.Value
	}

	sessionID := uuid.New().String()
	http.SetCookie(w, &http.Cookie{
		Name:     authSessionCookieName,
		Value:    sessionID,
		Path:     "/",
		HttpOnly: true,
		Secure:   getScheme(r) == "https",
		SameSite: http.SameSiteLaxMode,
	})
	return sessionID
}
