package auth

import "errors"

// Sentinel errors for the auth service layer.
var (
	ErrNotFound        = errors.New("magic link not found")
	ErrExpired         = errors.New("magic link expired")
	ErrAlreadyUsed     = errors.New("magic link already used")
	ErrUnauthenticated = errors.New("not authenticated")
	ErrRateLimited     = errors.New("too many login requests")
	// ErrNotAuthorized never crosses the service boundary: RequestLink
	// answers an unknown address exactly like a known one.
	ErrNotAuthorized = errors.New("email not on admin allow-list")
)
