package auth

import (
	"net/http"
	"strings"
)

// SessionCookieName is the cookie that carries the session token in browsers.
const SessionCookieName = "warrantypanel_session"

// TokenFromRequest returns the session token from an "Authorization: Bearer"
// header, falling back to the session cookie. It returns "" when neither is
// present.
func TokenFromRequest(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		scheme, token, ok := strings.Cut(h, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
		return ""
	}

	if c, err := r.Cookie(SessionCookieName); err == nil {
		return c.Value
	}
	return ""
}
