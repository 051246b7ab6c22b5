package shared

import "errors"

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrInvalidCredentials indicates login failure.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrCSRFTokenMissing occurs when CSRF token missing.
	ErrCSRFTokenMissing = errors.New("csrf token missing")
	// ErrCSRFTokenMismatch occurs when CSRF tokens do not match.
	ErrCSRFTokenMismatch = errors.New("csrf token mismatch")
	// ErrUnauthenticated covers every credential that does not resolve to an
	// active identity. Callers must not learn which check failed.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrUnauthorized means the identity is valid but its policy denies the request.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrPolicyUnavailable means role/permission data could not be read.
	ErrPolicyUnavailable = errors.New("access policy unavailable")
	// ErrSessionNotFound is returned by the session store for unknown ids.
	ErrSessionNotFound = errors.New("session not found")
)
