package handlers

import (
	"errors"
	"log"
	"net/http"

	"habitheroes/internal/security"
	"habitheroes/internal/service"
)

// Middleware holds dependencies for middleware functions
type Middleware struct {
	authService     *service.AuthService
	controlsService *service.ControlsService
	sessions        *security.CookieSessions
	csrf            *security.CSRFGenerator
	limiter         *security.RateLimiter
}

// NewMiddleware creates a new middleware instance
func NewMiddleware(authService *service.AuthService, controlsService *service.ControlsService, sessions *security.CookieSessions, csrf *security.CSRFGenerator, limiter *security.RateLimiter) *Middleware {
	return &Middleware{
		authService:     authService,
		controlsService: controlsService,
		sessions:        sessions,
		csrf:            csrf,
		limiter:         limiter,
	}
}

// LoadPrincipal resolves the session cookie into a principal. Requests
// without a valid session continue anonymously; the route guards decide.
func (m *Middleware) LoadPrincipal(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		kind, token, ok := m.sessions.Load(r)
		if !ok {
			next.ServeHTTP(w, r)
			return
		}

		p, err := m.authService.ResolvePrincipal(r.Context(), kind, token)
		if err != nil {
			if !errors.Is(err, service.ErrSessionNotFound) && !errors.Is(err, service.ErrSessionExpired) {
				log.Printf("Error resolving session: %v", err)
			}
			// Clear invalid cookie
			if err := m.sessions.Clear(w, r); err != nil {
				log.Printf("Error clearing session cookie: %v", err)
			}
			next.ServeHTTP(w, r)
			return
		}

		next.ServeHTTP(w, r.WithContext(security.WithPrincipal(r.Context(), p)))
	})
}

// RequireAuth rejects anonymous requests
func (m *Middleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if security.CurrentPrincipal(r.Context()) == nil {
			writeJSON(w, http.StatusUnauthorized, errorBody{Error: "authentication required"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireParent only admits signed-in parents
func (m *Middleware) RequireParent(next http.Handler) http.Handler {
	return m.RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !security.CurrentPrincipal(r.Context()).IsParent() {
			writeJSON(w, http.StatusForbidden, errorBody{Error: "parent access required"})
			return
		}
		next.ServeHTTP(w, r)
	}))
}

// RequireChild only admits signed-in children that parental controls let through
func (m *Middleware) RequireChild(next http.Handler) http.Handler {
	return m.RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p := security.CurrentPrincipal(r.Context())
		if !p.IsChild() {
			writeJSON(w, http.StatusForbidden, errorBody{Error: "child access required"})
			return
		}
		if !m.childAllowed(w, r, p) {
			return
		}
		next.ServeHTTP(w, r)
	}))
}

// RequireParentOrChild admits parents, and children that parental controls
// let through
func (m *Middleware) RequireParentOrChild(next http.Handler) http.Handler {
	return m.RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p := security.CurrentPrincipal(r.Context())
		if p.IsChild() && !m.childAllowed(w, r, p) {
			return
		}
		next.ServeHTTP(w, r)
	}))
}

func (m *Middleware) childAllowed(w http.ResponseWriter, r *http.Request, p *security.Principal) bool {
	if err := m.controlsService.CheckAccess(r.Context(), p.Child); err != nil {
		writeServiceError(w, r, err)
		return false
	}
	return true
}

// CSRFProtect checks the CSRF header on state-changing requests made with a session
func (m *Middleware) CSRFProtect(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p := security.CurrentPrincipal(r.Context())
		if m.csrf.Enabled() && p != nil && !isSafeMethod(r.Method) {
			if !m.csrf.ValidateToken(p.SessionToken, r.Header.Get(security.CSRFHeader)) {
				writeJSON(w, http.StatusForbidden, errorBody{Error: "invalid CSRF token"})
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

// RateLimit limits requests per client IP
func (m *Middleware) RateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !m.limiter.Allow(security.GetClientIP(r)) {
			writeJSON(w, http.StatusTooManyRequests, errorBody{Error: "too many requests, try again later"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func isSafeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	}
	return false
}
