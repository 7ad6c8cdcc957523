package handlers

import (
	"log"
	"net/http"
	"time"

	"habitheroes/internal/clock"
	"habitheroes/internal/models"
	"habitheroes/internal/security"
	"habitheroes/internal/service"
)

// AuthHandler handles parent and child sign-in
type AuthHandler struct {
	authService   *service.AuthService
	familyService *service.FamilyService
	sessions      *security.CookieSessions
	csrf          *security.CSRFGenerator
	clk           clock.Clock
	google        *GoogleAuth
	frontendURL   string
}

// NewAuthHandler creates a new auth handler. google may be nil when Google
// sign-in is not configured.
func NewAuthHandler(authService *service.AuthService, familyService *service.FamilyService, sessions *security.CookieSessions, csrf *security.CSRFGenerator, clk clock.Clock, google *GoogleAuth, frontendURL string) *AuthHandler {
	return &AuthHandler{
		authService:   authService,
		familyService: familyService,
		sessions:      sessions,
		csrf:          csrf,
		clk:           clk,
		google:        google,
		frontendURL:   frontendURL,
	}
}

type registerRequest struct {
	Email      string `json:"email"`
	Password   string `json:"password"`
	Name       string `json:"name"`
	FamilyCode string `json:"family_code"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type childLoginRequest struct {
	Username string `json:"username"`
	PIN      string `json:"pin"`
}

type sessionResponse struct {
	Kind      security.PrincipalKind `json:"kind"`
	User      *models.User           `json:"user,omitempty"`
	Child     *models.Child          `json:"child,omitempty"`
	FamilyID  int64                  `json:"family_id"`
	CSRFToken string                 `json:"csrf_token,omitempty"`
}

// Register creates a parent account and signs it in
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeServiceError(w, r, err)
		return
	}

	if _, err := h.authService.Register(r.Context(), req.Email, req.Password, req.Name, req.FamilyCode); err != nil {
		writeServiceError(w, r, err)
		return
	}

	session, _, err := h.authService.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	h.startParentSession(w, r, session, http.StatusCreated)
}

// Login signs a parent in with email and password
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeServiceError(w, r, err)
		return
	}

	session, _, err := h.authService.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	h.startParentSession(w, r, session, http.StatusOK)
}

// startParentSession sets the cookie for a new parent session and answers
// with the resolved principal
func (h *AuthHandler) startParentSession(w http.ResponseWriter, r *http.Request, session *models.Session, status int) {
	p, err := h.authService.ResolvePrincipal(r.Context(), security.PrincipalParent, session.ID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if err := h.sessions.Save(w, r, security.PrincipalParent, session.ID, h.ttl(session.ExpiresAt)); err != nil {
		respondWithError(w, http.StatusInternalServerError, "Internal server error", "Error saving session", err)
		return
	}
	writeJSON(w, status, h.describe(p))
}

// ChildLogin signs a child in with username and PIN
func (h *AuthHandler) ChildLogin(w http.ResponseWriter, r *http.Request) {
	var req childLoginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeServiceError(w, r, err)
		return
	}

	session, child, err := h.authService.ChildLogin(r.Context(), req.Username, req.PIN)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if err := h.sessions.Save(w, r, security.PrincipalChild, session.ID, h.ttl(session.ExpiresAt)); err != nil {
		respondWithError(w, http.StatusInternalServerError, "Internal server error", "Error saving session", err)
		return
	}

	p := &security.Principal{Kind: security.PrincipalChild, Child: child, FamilyID: child.FamilyID, SessionToken: session.ID}
	writeJSON(w, http.StatusOK, h.describe(p))
}

// Logout ends the current session, parent or child
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if p := security.CurrentPrincipal(r.Context()); p != nil {
		if err := h.authService.EndSession(r.Context(), p); err != nil {
			log.Printf("Error ending session: %v", err)
		}
	}
	if err := h.sessions.Clear(w, r); err != nil {
		log.Printf("Error clearing session cookie: %v", err)
	}
	w.WriteHeader(http.StatusNoContent)
}

// Me describes the signed-in caller
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.describe(security.CurrentPrincipal(r.Context())))
}

// CSRFToken issues the CSRF token bound to the current session
func (h *AuthHandler) CSRFToken(w http.ResponseWriter, r *http.Request) {
	p := security.CurrentPrincipal(r.Context())
	token, err := h.csrf.GenerateToken(p.SessionToken)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Internal server error", "Error generating CSRF token", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"csrf_token": token})
}

// Family returns the caller's family with its parents
func (h *AuthHandler) Family(w http.ResponseWriter, r *http.Request) {
	family, err := h.familyService.GetFamily(r.Context(), security.CurrentPrincipal(r.Context()))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, family)
}

// JoinFamily moves the calling parent into another family by code
func (h *AuthHandler) JoinFamily(w http.ResponseWriter, r *http.Request) {
	var req struct {
		FamilyCode string `json:"family_code"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeServiceError(w, r, err)
		return
	}

	family, err := h.familyService.JoinFamily(r.Context(), security.CurrentPrincipal(r.Context()), req.FamilyCode)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, family)
}

func (h *AuthHandler) describe(p *security.Principal) sessionResponse {
	resp := sessionResponse{Kind: p.Kind, User: p.User, Child: p.Child, FamilyID: p.FamilyID}
	if token, err := h.csrf.GenerateToken(p.SessionToken); err == nil {
		resp.CSRFToken = token
	}
	return resp
}

func (h *AuthHandler) ttl(expiresAt time.Time) time.Duration {
	return expiresAt.Sub(h.clk.Now())
}
