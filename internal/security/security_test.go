package security

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"habitheroes/internal/clock"
	"habitheroes/internal/models"
)

func TestPasswordHashing(t *testing.T) {
	hash, err := HashPassword("correct horse")
	require.NoError(t, err)
	assert.NotEqual(t, "correct horse", hash)
	assert.True(t, CheckPassword(hash, "correct horse"))
	assert.False(t, CheckPassword(hash, "wrong horse"))
	assert.False(t, CheckPassword("", "correct horse"))

	pinHash, err := HashPIN("0420")
	require.NoError(t, err)
	assert.True(t, CheckPIN(pinHash, "0420"))
	assert.False(t, CheckPIN(pinHash, "0421"))
}

func TestCSRFGenerator(t *testing.T) {
	g := NewCSRFGenerator("secret", true)
	assert.True(t, g.Enabled())

	token, err := g.GenerateToken("session-a")
	require.NoError(t, err)
	assert.True(t, g.ValidateToken("session-a", token))
	assert.False(t, g.ValidateToken("session-b", token))
	assert.False(t, g.ValidateToken("session-a", ""))

	_, err = g.GenerateToken("")
	assert.Error(t, err)

	other := NewCSRFGenerator("other-secret", true)
	assert.False(t, other.ValidateToken("session-a", token))
}

func TestRateLimiter(t *testing.T) {
	c := clock.NewManual(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	rl := NewRateLimiter(2, time.Minute, c)
	defer rl.Stop()

	assert.True(t, rl.Allow("1.1.1.1"))
	assert.True(t, rl.Allow("1.1.1.1"))
	assert.False(t, rl.Allow("1.1.1.1"))
	assert.True(t, rl.Allow("2.2.2.2"), "other clients have their own bucket")

	c.Advance(time.Minute)
	assert.True(t, rl.Allow("1.1.1.1"))

	c.Advance(3 * time.Minute)
	rl.Sweep()
	rl.mu.Lock()
	assert.Empty(t, rl.visitors)
	rl.mu.Unlock()
}

func TestGetClientIP(t *testing.T) {
	tests := []struct {
		name   string
		header map[string]string
		remote string
		want   string
	}{
		{"remote addr", nil, "10.0.0.1:5555", "10.0.0.1"},
		{"forwarded first hop", map[string]string{"X-Forwarded-For": "203.0.113.9, 10.0.0.2"}, "10.0.0.1:5555", "203.0.113.9"},
		{"real ip", map[string]string{"X-Real-IP": "198.51.100.4"}, "10.0.0.1:5555", "198.51.100.4"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.RemoteAddr = tt.remote
			for k, v := range tt.header {
				r.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, GetClientIP(r))
		})
	}
}

func TestCookieSessionsRoundTrip(t *testing.T) {
	store := NewCookieSessions("test-secret", false)

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/api/auth/login", nil)
	require.NoError(t, store.Save(w, r, PrincipalChild, "tok-123", time.Hour))

	cookies := w.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, SessionCookieName, cookies[0].Name)
	assert.True(t, cookies[0].HttpOnly)

	next := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
	next.AddCookie(cookies[0])
	kind, token, ok := store.Load(next)
	require.True(t, ok)
	assert.Equal(t, PrincipalChild, kind)
	assert.Equal(t, "tok-123", token)

	// A cookie signed with another key is rejected
	foreign := NewCookieSessions("other-secret", false)
	forged := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
	forged.AddCookie(cookies[0])
	_, _, ok = foreign.Load(forged)
	assert.False(t, ok)

	// No cookie at all
	_, _, ok = store.Load(httptest.NewRequest(http.MethodGet, "/", nil))
	assert.False(t, ok)
}

func TestPrincipal(t *testing.T) {
	parent := &Principal{Kind: PrincipalParent, User: &models.User{ID: 1, Name: "Pat"}, FamilyID: 7}
	child := &Principal{Kind: PrincipalChild, Child: &models.Child{ID: 3, FamilyID: 7, Name: "Sam"}, FamilyID: 7}

	sibling := &models.Child{ID: 4, FamilyID: 7}
	stranger := &models.Child{ID: 5, FamilyID: 8}

	assert.True(t, parent.IsParent())
	assert.False(t, parent.IsChild())
	assert.True(t, parent.CanActFor(sibling))
	assert.False(t, parent.CanActFor(stranger))
	assert.Equal(t, "Pat", parent.DisplayName())

	assert.True(t, child.IsChild())
	assert.True(t, child.CanActFor(child.Child))
	assert.False(t, child.CanActFor(sibling))

	var none *Principal
	assert.False(t, none.IsParent())
	assert.False(t, none.IsChild())

	ctx := WithPrincipal(httptest.NewRequest(http.MethodGet, "/", nil).Context(), parent)
	assert.Same(t, parent, CurrentPrincipal(ctx))
}
