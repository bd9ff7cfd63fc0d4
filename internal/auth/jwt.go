package auth

import (
	"errors"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// Authenticator extracts a Principal from an inbound request. The core
// only needs the result, not how it was obtained, so compose and
// firecracker callers never import this package directly - only
// internal/adminapi's HTTP layer does.
type Authenticator interface {
	Authenticate(r *http.Request) (Principal, error)
}

// claims is the minimal shape this core trusts out of an already-valid
// bearer token. Signature verification, issuer checks, and token
// refresh are the identity provider's job (spec.md §1); by the time a
// request reaches JWTAuthenticator it has already passed through
// whatever upstream gateway or middleware validates the signature.
type claims struct {
	jwt.RegisteredClaims
	Email string `json:"email"`
}

// JWTAuthenticator parses the claims of a bearer token without
// verifying its signature. It exists to give the core something
// concrete to depend on for Principal extraction while remaining
// honest that real verification lives outside this repository's scope.
type JWTAuthenticator struct {
	parser *jwt.Parser
}

// NewJWTAuthenticator builds a claims-only parser.
func NewJWTAuthenticator() *JWTAuthenticator {
	return &JWTAuthenticator{parser: jwt.NewParser(jwt.WithoutClaimsValidation())}
}

// Authenticate extracts the bearer token from the Authorization header
// and parses its claims unverified.
func (a *JWTAuthenticator) Authenticate(r *http.Request) (Principal, error) {
	token := extractBearerToken(r.Header.Get("Authorization"))
	if token == "" {
		return Principal{}, errors.New("missing or malformed Authorization header")
	}

	var c claims
	if _, _, err := a.parser.ParseUnverified(token, &c); err != nil {
		return Principal{}, errors.New("malformed bearer token")
	}
	if c.Subject == "" {
		return Principal{}, errors.New("token has no subject claim")
	}

	return Principal{UserID: c.Subject, Email: strings.ToLower(strings.TrimSpace(c.Email))}, nil
}

func extractBearerToken(header string) string {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// WithAuthenticated is middleware that resolves a Principal via a and
// stores it in the request context, rejecting the request with 401 on
// failure. It mirrors the teacher's bearer-extraction middleware shape
// but authenticates via a pluggable Authenticator instead of a fixed
// Keycloak client.
func WithAuthenticated(a Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, err := a.Authenticate(r)
			if err != nil {
				http.Error(w, `{"error":"unauthenticated"}`, http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
		})
	}
}
