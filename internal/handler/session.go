package handler

import (
	"net/http"
	"time"

	"github.com/google/uuid"
)

// SessionCookie identifies the shopper's page session.
const SessionCookie = "pd_session"

// sessionCookies reads and issues the page session cookie.
type sessionCookies struct {
	ttl    time.Duration
	secure bool
}

// existing returns the session id carried by the request, if it is a
// well-formed one.
func (s sessionCookies) existing(r *http.Request) (string, bool) {
	c, err := r.Cookie(SessionCookie)
	if err != nil {
		return "", false
	}
	id, err := uuid.Parse(c.Value)
	if err != nil {
		return "", false
	}
	return id.String(), true
}

// ensure returns the request's session id, issuing a new cookie when the
// request has none. The cookie lifetime is refreshed on every call.
func (s sessionCookies) ensure(w http.ResponseWriter, r *http.Request) string {
	id, ok := s.existing(r)
	if !ok {
		id = uuid.NewString()
	}
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    id,
		Path:     "/",
		MaxAge:   int(s.ttl.Seconds()),
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
	})
	return id
}
