package providers

import (
	"context"
	"errors"
	"time"
)

// ErrSessionInvalid is returned by ValidateSession when the identity
// provider no longer accepts the session.
var ErrSessionInvalid = errors.New("identity provider session is invalid")

// Provider is the identity provider the authorization server delegates user
// authentication to. Social login is selected per request through
// AuthOptions.SocialProvider.
type Provider interface {
	// Name returns the provider name (e.g. "descope").
	Name() string

	// AuthorizationURL returns the URL that starts a login at the provider.
	AuthorizationURL(state string, opts *AuthOptions) string

	// ExchangeCode trades the provider's callback code for a verified
	// identity and a session reference.
	ExchangeCode(ctx context.Context, code string, opts *ExchangeOptions) (*Session, error)

	// ValidateSession checks a session reference previously returned by
	// ExchangeCode. It is called on every protected request.
	ValidateSession(ctx context.Context, session string) (*UserInfo, error)

	// HealthCheck verifies that the provider is reachable.
	HealthCheck(ctx context.Context) error
}

// AuthOptions configures the provider login redirect.
type AuthOptions struct {
	// SocialProvider selects the upstream social login. Empty lets the
	// provider show its own chooser.
	SocialProvider SocialProvider

	// PKCE between this server and the provider.
	CodeChallenge       string
	CodeChallengeMethod string

	// Scopes overrides the provider's configured scopes.
	Scopes []string
}

// ExchangeOptions configures the code exchange.
type ExchangeOptions struct {
	CodeVerifier string
}

// Session is the result of a successful login at the provider.
type Session struct {
	User *UserInfo

	// Reference is the opaque value stored as the grant's linked session
	// and later passed to ValidateSession.
	Reference string

	// ExpiresAt is zero when the provider did not report an expiry.
	ExpiresAt time.Time
}

// UserInfo represents user information from a provider
type UserInfo struct {
	// ID is the unique user identifier from the provider
	ID string

	// Email is the user's email address
	Email string

	EmailVerified bool

	// Name is the user's full name
	Name string

	GivenName  string
	FamilyName string
	Picture    string
	Locale     string
}
