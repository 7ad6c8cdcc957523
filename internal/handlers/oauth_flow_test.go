package handlers

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testClientID = "client-123.apps.googleusercontent.com"

func newTestGoogle(t *testing.T) (*GoogleAuth, *rsa.PrivateKey) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	jwks := jwkSet{Keys: []jwkKey{{
		Kid: "test-key",
		Kty: "RSA",
		N:   base64.RawURLEncoding.EncodeToString(key.N.Bytes()),
		E:   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.E)).Bytes()),
	}}}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(jwks)
	}))
	t.Cleanup(server.Close)

	g := NewGoogleAuth(testClientID, "secret", "https://habits.example.com")
	require.NotNil(t, g)
	g.jwksURL = server.URL
	g.httpClient = server.Client()
	return g, key
}

func signIDToken(t *testing.T, key *rsa.PrivateKey, kid string, claims googleTokenClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = kid
	signed, err := token.SignedString(key)
	require.NoError(t, err)
	return signed
}

func validClaims() googleTokenClaims {
	now := time.Now()
	return googleTokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "https://accounts.google.com",
			Subject:   "google-sub-1",
			Audience:  jwt.ClaimStrings{testClientID},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		},
		Email:         "ana@example.com",
		EmailVerified: true,
		Name:          "Ana",
		Nonce:         "nonce-1",
	}
}

func TestNewGoogleAuthRequiresCredentials(t *testing.T) {
	assert.Nil(t, NewGoogleAuth("", "secret", ""))
	assert.Nil(t, NewGoogleAuth("id", "", ""))
	assert.NotNil(t, NewGoogleAuth("id", "secret", ""))
}

func TestGoogleRedirectURL(t *testing.T) {
	g := NewGoogleAuth("id", "secret", "https://habits.example.com/")
	config := g.configFor(httptest.NewRequest(http.MethodGet, "/api/auth/google/start", nil))
	assert.Equal(t, "https://habits.example.com/api/auth/google/callback", config.RedirectURL)

	g = NewGoogleAuth("id", "secret", "")
	config = g.configFor(httptest.NewRequest(http.MethodGet, "http://localhost:8080/api/auth/google/start", nil))
	assert.Equal(t, "http://localhost:8080/api/auth/google/callback", config.RedirectURL)
}

func TestVerifyIDToken(t *testing.T) {
	g, key := newTestGoogle(t)
	otherKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	tests := []struct {
		name    string
		token   func() string
		nonce   string
		wantErr bool
	}{
		{
			name:  "valid",
			token: func() string { return signIDToken(t, key, "test-key", validClaims()) },
			nonce: "nonce-1",
		},
		{
			name: "bare issuer",
			token: func() string {
				c := validClaims()
				c.Issuer = "accounts.google.com"
				return signIDToken(t, key, "test-key", c)
			},
			nonce: "nonce-1",
		},
		{
			name:    "nonce mismatch",
			token:   func() string { return signIDToken(t, key, "test-key", validClaims()) },
			nonce:   "other",
			wantErr: true,
		},
		{
			name:    "missing nonce cookie",
			token:   func() string { return signIDToken(t, key, "test-key", validClaims()) },
			wantErr: true,
		},
		{
			name: "wrong audience",
			token: func() string {
				c := validClaims()
				c.Audience = jwt.ClaimStrings{"someone-else"}
				return signIDToken(t, key, "test-key", c)
			},
			nonce:   "nonce-1",
			wantErr: true,
		},
		{
			name: "wrong issuer",
			token: func() string {
				c := validClaims()
				c.Issuer = "https://evil.example.com"
				return signIDToken(t, key, "test-key", c)
			},
			nonce:   "nonce-1",
			wantErr: true,
		},
		{
			name: "expired",
			token: func() string {
				c := validClaims()
				c.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Hour))
				return signIDToken(t, key, "test-key", c)
			},
			nonce:   "nonce-1",
			wantErr: true,
		},
		{
			name: "unverified email",
			token: func() string {
				c := validClaims()
				c.EmailVerified = false
				return signIDToken(t, key, "test-key", c)
			},
			nonce:   "nonce-1",
			wantErr: true,
		},
		{
			name:    "unknown key",
			token:   func() string { return signIDToken(t, key, "rotated-key", validClaims()) },
			nonce:   "nonce-1",
			wantErr: true,
		},
		{
			name:    "signed by another key",
			token:   func() string { return signIDToken(t, otherKey, "test-key", validClaims()) },
			nonce:   "nonce-1",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			identity, err := g.verifyIDToken(context.Background(), tt.token(), tt.nonce)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, googleIdentity{Subject: "google-sub-1", Email: "ana@example.com", Name: "Ana"}, identity)
		})
	}
}
