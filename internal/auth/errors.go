package auth

import "errors"

// Sentinel errors for the auth package.
var (
	ErrMissingHeader  = errors.New("missing authorization header")
	ErrInvalidHeader  = errors.New("invalid authorization header format")
	ErrInvalidToken   = errors.New("invalid or expired token")
	ErrInvalidSubject = errors.New("token subject is not a valid user id")
)
