package shared

import (
	"context"

	"github.com/chambers-pm/chambers/internal/access"
)

type sessionContextKey struct{}
type principalContextKey struct{}
type policyContextKey struct{}

// ContextWithSession stores the session in context.
func ContextWithSession(ctx context.Context, sess *Session) context.Context {
	return context.WithValue(ctx, sessionContextKey{}, sess)
}

// SessionFromContext extracts the session from context.
func SessionFromContext(ctx context.Context) *Session {
	sess, _ := ctx.Value(sessionContextKey{}).(*Session)
	return sess
}

// ContextWithPrincipal attaches the resolved principal to the context.
func ContextWithPrincipal(ctx context.Context, principal access.Principal) context.Context {
	return context.WithValue(ctx, principalContextKey{}, &principal)
}

// PrincipalFromContext returns the principal resolved by the authorization guard.
func PrincipalFromContext(ctx context.Context) (access.Principal, bool) {
	p, ok := ctx.Value(principalContextKey{}).(*access.Principal)
	if !ok || p == nil {
		return access.Principal{}, false
	}
	return *p, true
}

// ContextWithPolicy attaches the policy computed for the current request.
func ContextWithPolicy(ctx context.Context, policy access.Policy) context.Context {
	return context.WithValue(ctx, policyContextKey{}, &policy)
}

// PolicyFromContext returns the request's policy, if the guard computed one.
func PolicyFromContext(ctx context.Context) (access.Policy, bool) {
	p, ok := ctx.Value(policyContextKey{}).(*access.Policy)
	if !ok || p == nil {
		return access.Policy{}, false
	}
	return *p, true
}
