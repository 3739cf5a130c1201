package auth

import "errors"

// Gate failures. The response never says which part of a credential was
// wrong.
var (
	ErrMissingCredential = errors.New("missing credentials")
	ErrInvalidCredential = errors.New("invalid credentials")
	ErrCredentialExpired = errors.New("credentials expired")
	ErrInsufficientRole  = errors.New("insufficient role")
)
