package storage

import "errors"

// Sentinel errors returned by every store implementation. Implementations
// may wrap them; compare with errors.Is.
var (
	ErrClientNotFound            = errors.New("client not found")
	ErrInvalidClientCredentials  = errors.New("invalid client credentials")
	ErrAuthorizationCodeNotFound = errors.New("authorization code not found")
	ErrAuthorizationCodeExpired  = errors.New("authorization code expired")
	ErrOAuthStateNotFound        = errors.New("oauth state not found")
	ErrOAuthStateExpired         = errors.New("oauth state expired")
	ErrTokenNotFound             = errors.New("token not found")
	ErrTokenExpired              = errors.New("token expired")
)
