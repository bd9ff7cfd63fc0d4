// Package auth implements the authorization contract the core requires
// from an external HTTP/JWT layer (explicitly out of scope per
// spec.md §1): extracting a Principal from an already-issued token and
// deriving admin status fresh from an operator-controlled allowlist.
// Verifying the token's signature against a real identity provider is
// an external collaborator's job.
package auth

import (
	"context"
	"errors"
)

type contextKey string

const principalContextKey contextKey = "principal"

// Principal is the authenticated caller a request acts as.
type Principal struct {
	UserID string // Subject claim (sub) from the JWT.
	Email  string // Used only to evaluate the admin allowlist; never trusted for ownership checks.
}

// WithPrincipal stores the authenticated caller in the context.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalContextKey, p)
}

// PrincipalFromContext retrieves the authenticated caller, erroring if
// the request never went through an Authenticator.
func PrincipalFromContext(ctx context.Context) (Principal, error) {
	p, ok := ctx.Value(principalContextKey).(Principal)
	if !ok {
		return Principal{}, errors.New("no principal in context - request is not authenticated")
	}
	return p, nil
}
