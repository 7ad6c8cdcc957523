package handlers

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"habitheroes/internal/security"
)

const (
	googleJWKSURL  = "https://www.googleapis.com/oauth2/v3/certs"
	oauthCookieTTL = 10 * time.Minute

	oauthStateCookie = "oauth_state"
	oauthNonceCookie = "oauth_nonce"
)

var googleIssuers = []string{"accounts.google.com", "https://accounts.google.com"}

// GoogleAuth holds the Google sign-in configuration for parents
type GoogleAuth struct {
	config          *oauth2.Config
	redirectBaseURL string
	jwksURL         string
	httpClient      *http.Client
}

// NewGoogleAuth returns nil when no client credentials are configured
func NewGoogleAuth(clientID, clientSecret, redirectBaseURL string) *GoogleAuth {
	if clientID == "" || clientSecret == "" {
		return nil
	}
	return &GoogleAuth{
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			Endpoint:     google.Endpoint,
			Scopes:       []string{"openid", "email", "profile"},
		},
		redirectBaseURL: redirectBaseURL,
		jwksURL:         googleJWKSURL,
		httpClient:      &http.Client{Timeout: 10 * time.Second},
	}
}

type googleIdentity struct {
	Subject string
	Email   string
	Name    string
}

// StartGoogle redirects to Google's consent screen
func (h *AuthHandler) StartGoogle(w http.ResponseWriter, r *http.Request) {
	if h.google == nil {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "Google sign-in is not configured"})
		return
	}

	state := security.GenerateSessionID()
	nonce := security.GenerateSessionID()
	http.SetCookie(w, security.CreateTempCookie(r, oauthStateCookie, state, oauthCookieTTL))
	http.SetCookie(w, security.CreateTempCookie(r, oauthNonceCookie, nonce, oauthCookieTTL))

	config := h.google.configFor(r)
	authURL := config.AuthCodeURL(state, oauth2.AccessTypeOnline, oauth2.SetAuthURLParam("nonce", nonce))
	http.Redirect(w, r, authURL, http.StatusFound)
}

// GoogleCallback completes Google sign-in and redirects back to the app
func (h *AuthHandler) GoogleCallback(w http.ResponseWriter, r *http.Request) {
	if h.google == nil {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "Google sign-in is not configured"})
		return
	}

	state := r.URL.Query().Get("state")
	code := r.URL.Query().Get("code")
	if code == "" {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "missing authorization code"})
		return
	}
	stateCookie, err := r.Cookie(oauthStateCookie)
	if err != nil || stateCookie.Value == "" || stateCookie.Value != state {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid OAuth state"})
		return
	}
	nonce := ""
	if cookie, err := r.Cookie(oauthNonceCookie); err == nil {
		nonce = cookie.Value
	}

	// Clear temporary OAuth cookies
	http.SetCookie(w, security.CreateDeleteCookie(r, oauthStateCookie))
	http.SetCookie(w, security.CreateDeleteCookie(r, oauthNonceCookie))

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	config := h.google.configFor(r)
	token, err := config.Exchange(ctx, code)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "failed to exchange OAuth code", "Google code exchange", err)
		return
	}
	idToken, _ := token.Extra("id_token").(string)
	if idToken == "" {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "missing Google id_token"})
		return
	}

	identity, err := h.google.verifyIDToken(ctx, idToken, nonce)
	if err != nil {
		respondWithError(w, http.StatusUnauthorized, "invalid Google token", "Google id_token", err)
		return
	}

	session, _, err := h.authService.GoogleLogin(r.Context(), identity.Subject, identity.Email, identity.Name)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if err := h.sessions.Save(w, r, security.PrincipalParent, session.ID, h.ttl(session.ExpiresAt)); err != nil {
		respondWithError(w, http.StatusInternalServerError, "Internal server error", "Error saving session", err)
		return
	}
	http.Redirect(w, r, h.frontendURL, http.StatusSeeOther)
}

func (g *GoogleAuth) configFor(r *http.Request) oauth2.Config {
	baseURL := strings.TrimSpace(g.redirectBaseURL)
	if baseURL == "" {
		scheme := "http"
		if security.IsSecureRequest(r) {
			scheme = "https"
		}
		baseURL = fmt.Sprintf("%s://%s", scheme, r.Host)
	}
	config := *g.config
	config.RedirectURL = strings.TrimRight(baseURL, "/") + "/api/auth/google/callback"
	return config
}

type googleTokenClaims struct {
	jwt.RegisteredClaims
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name"`
	Nonce         string `json:"nonce"`
}

type jwkSet struct {
	Keys []jwkKey `json:"keys"`
}

type jwkKey struct {
	Kid string `json:"kid"`
	Kty string `json:"kty"`
	N   string `json:"n"`
	E   string `json:"e"`
}

// verifyIDToken checks the signature, issuer, audience, expiry and nonce of
// a Google id_token
func (g *GoogleAuth) verifyIDToken(ctx context.Context, idToken, nonce string) (googleIdentity, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{"RS256"}),
		jwt.WithAudience(g.config.ClientID),
		jwt.WithExpirationRequired(),
	)
	claims := &googleTokenClaims{}
	_, err := parser.ParseWithClaims(idToken, claims, func(token *jwt.Token) (interface{}, error) {
		kid, _ := token.Header["kid"].(string)
		if kid == "" {
			return nil, errors.New("missing key id")
		}
		return g.fetchPublicKey(ctx, kid)
	})
	if err != nil {
		return googleIdentity{}, err
	}

	if !slices.Contains(googleIssuers, claims.Issuer) {
		return googleIdentity{}, errors.New("invalid Google issuer")
	}
	if nonce == "" || claims.Nonce != nonce {
		return googleIdentity{}, errors.New("invalid Google nonce")
	}
	if claims.Email == "" || !claims.EmailVerified {
		return googleIdentity{}, errors.New("Google email not verified")
	}

	return googleIdentity{Subject: claims.Subject, Email: claims.Email, Name: claims.Name}, nil
}

func (g *GoogleAuth) fetchPublicKey(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, g.jwksURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := g.httpClient.Do(request)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.New("failed to fetch Google public keys")
	}

	var set jwkSet
	if err := json.NewDecoder(resp.Body).Decode(&set); err != nil {
		return nil, err
	}

	for _, key := range set.Keys {
		if key.Kid != kid {
			continue
		}
		if key.Kty != "RSA" {
			return nil, errors.New("unexpected key type")
		}
		modulusBytes, err := base64.RawURLEncoding.DecodeString(key.N)
		if err != nil {
			return nil, err
		}
		exponentBytes, err := base64.RawURLEncoding.DecodeString(key.E)
		if err != nil {
			return nil, err
		}
		exponent := 0
		for _, b := range exponentBytes {
			exponent = exponent*256 + int(b)
		}
		return &rsa.PublicKey{
			N: new(big.Int).SetBytes(modulusBytes),
			E: exponent,
		}, nil
	}

	return nil, errors.New("Google public key not found")
}
