package server

import (
	"crypto/subtle"
	"errors"

	"golang.org/x/oauth2"
)

// PKCEMethodS256 is the only accepted code_challenge_method.
const PKCEMethodS256 = "S256"

// PKCE verification errors.
var (
	ErrUnsupportedChallengeMethod = errors.New("unsupported code_challenge_method (only S256 is supported)")
	ErrMissingVerifier            = errors.New("code_verifier is required")
	ErrPKCEMismatch               = errors.New("code_verifier does not match code_challenge")
)

// VerifyPKCE checks verifier against challenge per RFC 7636. Any method other
// than S256 fails, including "plain". The verifier's length and alphabet are
// not policed; only the digest has to match.
func VerifyPKCE(verifier, challenge, method string) error {
	if method != PKCEMethodS256 {
		return ErrUnsupportedChallengeMethod
	}
	if verifier == "" {
		return ErrMissingVerifier
	}

	computed := oauth2.S256ChallengeFromVerifier(verifier)
	if challenge == "" || subtle.ConstantTimeCompare([]byte(computed), []byte(challenge)) != 1 {
		return ErrPKCEMismatch
	}
	return nil
}
