package security

import (
	"crypto/sha256"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/sessions"
)

// SessionCookieName is the signed cookie carrying the principal token
const SessionCookieName = "hh_session"

const (
	sessionKindKey  = "kind"
	sessionTokenKey = "token"
)

// GenerateSessionID creates a new UUID for session identification
func GenerateSessionID() string {
	return uuid.New().String()
}

// IsSecureRequest determines if the request is over HTTPS
// Checks TLS connection, X-Forwarded-Proto header (for reverse proxies), and URL scheme
func IsSecureRequest(r *http.Request) bool {
	if r.TLS != nil {
		return true
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto == "https" {
		return true
	}
	return r.URL.Scheme == "https"
}

// CookieSessions keeps {kind, token} in one signed cookie. The token points
// at a parent or child session row; the cookie itself grants nothing.
type CookieSessions struct {
	store         *sessions.CookieStore
	secureCookies bool
}

// NewCookieSessions creates the cookie store. The secret is hashed to a fixed
// length signing key.
func NewCookieSessions(secret string, secureCookies bool) *CookieSessions {
	key := sha256.Sum256([]byte(secret))
	store := sessions.NewCookieStore(key[:])
	store.Options = &sessions.Options{
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
	return &CookieSessions{store: store, secureCookies: secureCookies}
}

// Save writes the principal cookie, expiring after ttl
func (c *CookieSessions) Save(w http.ResponseWriter, r *http.Request, kind PrincipalKind, token string, ttl time.Duration) error {
	session, _ := c.store.Get(r, SessionCookieName)
	session.Values[sessionKindKey] = string(kind)
	session.Values[sessionTokenKey] = token
	session.Options = c.options(r, int(ttl.Seconds()))
	if err := session.Save(r, w); err != nil {
		return fmt.Errorf("failed to save session cookie: %w", err)
	}
	return nil
}

// Load reads the principal cookie. A missing or tampered cookie yields ok=false.
func (c *CookieSessions) Load(r *http.Request) (PrincipalKind, string, bool) {
	session, err := c.store.Get(r, SessionCookieName)
	if err != nil || session.IsNew {
		return "", "", false
	}
	kind, _ := session.Values[sessionKindKey].(string)
	token, _ := session.Values[sessionTokenKey].(string)
	if token == "" {
		return "", "", false
	}
	switch PrincipalKind(kind) {
	case PrincipalParent, PrincipalChild:
		return PrincipalKind(kind), token, true
	}
	return "", "", false
}

// Clear expires the principal cookie
func (c *CookieSessions) Clear(w http.ResponseWriter, r *http.Request) error {
	session, _ := c.store.Get(r, SessionCookieName)
	session.Values = map[interface{}]interface{}{}
	session.Options = c.options(r, -1)
	return session.Save(r, w)
}

func (c *CookieSessions) options(r *http.Request, maxAge int) *sessions.Options {
	if maxAge == 0 {
		maxAge = -1
	}
	return &sessions.Options{
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   c.secureCookies || IsSecureRequest(r),
		SameSite: http.SameSiteLaxMode,
	}
}

// CreateTempCookie creates a short-lived cookie used during the OAuth redirect
func CreateTempCookie(r *http.Request, name, value string, ttl time.Duration) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Expires:  time.Now().Add(ttl),
		MaxAge:   int(ttl.Seconds()),
		HttpOnly: true,
		Secure:   IsSecureRequest(r),
		SameSite: http.SameSiteLaxMode,
	}
}

// CreateDeleteCookie creates a cookie for deletion with proper security flags
func CreateDeleteCookie(r *http.Request, name string) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   IsSecureRequest(r),
		SameSite: http.SameSiteLaxMode,
	}
}
