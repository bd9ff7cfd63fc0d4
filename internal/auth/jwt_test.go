package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signedToken(t *testing.T, sub, email string) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sub,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Email: email,
	})
	s, err := tok.SignedString([]byte("any-key-works-because-we-never-verify-it"))
	require.NoError(t, err)
	return s
}

func TestJWTAuthenticator_ExtractsPrincipal(t *testing.T) {
	a := NewJWTAuthenticator()
	req := httptest.NewRequest(http.MethodPost, "/labs", nil)
	req.Header.Set("Authorization", "Bearer "+signedToken(t, "user-123", "Operator@Example.com"))

	p, err := a.Authenticate(req)
	require.NoError(t, err)
	assert.Equal(t, "user-123", p.UserID)
	assert.Equal(t, "operator@example.com", p.Email)
}

func TestJWTAuthenticator_RejectsMissingHeader(t *testing.T) {
	a := NewJWTAuthenticator()
	req := httptest.NewRequest(http.MethodPost, "/labs", nil)
	_, err := a.Authenticate(req)
	assert.Error(t, err)
}

func TestJWTAuthenticator_RejectsMissingSubject(t *testing.T) {
	a := NewJWTAuthenticator()
	req := httptest.NewRequest(http.MethodPost, "/labs", nil)
	req.Header.Set("Authorization", "Bearer "+signedToken(t, "", "someone@example.com"))
	_, err := a.Authenticate(req)
	assert.Error(t, err)
}

func TestAdminAllowlist_IsCaseInsensitiveAndFreshPerCall(t *testing.T) {
	list := NewAdminAllowlist([]string{"Admin@Example.com"})
	assert.True(t, list.IsAdmin(Principal{Email: "admin@example.com"}))
	assert.False(t, list.IsAdmin(Principal{Email: "nobody@example.com"}))
}

func TestRequireAdmin_RejectsNonAdminPrincipal(t *testing.T) {
	list := NewAdminAllowlist([]string{"admin@example.com"})
	handlerCalled := false
	h := RequireAdmin(list)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handlerCalled = true
	}))

	req := httptest.NewRequest(http.MethodGet, "/admin/runtime", nil)
	req = req.WithContext(WithPrincipal(req.Context(), Principal{Email: "nobody@example.com"}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.False(t, handlerCalled)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}
