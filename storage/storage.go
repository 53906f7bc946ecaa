package storage

import (
	"context"
	"time"
)

// ClientStore manages registered OAuth clients. Secrets are stored as bcrypt
// hashes only; see HashClientSecret.
type ClientStore interface {
	// SaveClient stores a client. Clients are immutable once saved.
	SaveClient(ctx context.Context, client *Client) error

	// GetClient returns the client or ErrClientNotFound.
	GetClient(ctx context.Context, clientID string) (*Client, error)

	// ValidateClientSecret returns ErrInvalidClientCredentials unless the
	// client exists and secret matches its stored hash.
	ValidateClientSecret(ctx context.Context, clientID, secret string) error
}

// FlowStore manages the short-lived records of an authorization flow.
//
// Both Consume methods are fetch-and-delete: of any number of concurrent
// callers for the same key, at most one receives the record.
type FlowStore interface {
	// PutAuthCode stores (or replaces) an authorization code.
	PutAuthCode(ctx context.Context, code *AuthorizationCode) error

	// ConsumeAuthCode removes and returns the code. It returns
	// ErrAuthorizationCodeNotFound for unknown or already consumed codes and
	// ErrAuthorizationCodeExpired for expired ones, which are removed too.
	ConsumeAuthCode(ctx context.Context, code string) (*AuthorizationCode, error)

	// PutOAuthState stores the state bound to an identity-provider redirect.
	PutOAuthState(ctx context.Context, state *OAuthState) error

	// ConsumeOAuthState removes and returns the state, reporting
	// ErrOAuthStateNotFound or ErrOAuthStateExpired.
	ConsumeOAuthState(ctx context.Context, state string) (*OAuthState, error)
}

// TokenStore manages issued access and refresh tokens.
//
// Expiry is lazy: implementations compare the record's expiry with their
// clock on read and never run a background sweeper. Records are keyed by the
// opaque token value itself, so implementations must not log keys in full.
type TokenStore interface {
	// PutAccessToken stores an access token.
	PutAccessToken(ctx context.Context, token *AccessToken) error

	// GetAccessToken returns the token, ErrTokenNotFound, or ErrTokenExpired.
	// An expired token is deleted; a valid one is left in place.
	GetAccessToken(ctx context.Context, token string) (*AccessToken, error)

	// DeleteAccessToken removes an access token. Unknown tokens are not an error.
	DeleteAccessToken(ctx context.Context, token string) error

	// PutRefreshToken stores a refresh token.
	PutRefreshToken(ctx context.Context, token *RefreshToken) error

	// GetRefreshToken follows the GetAccessToken contract for refresh tokens.
	GetRefreshToken(ctx context.Context, token string) (*RefreshToken, error)
}

// Store is implemented by backends that hold every record kind.
type Store interface {
	ClientStore
	FlowStore
	TokenStore
}

// Client types.
const (
	ClientTypeConfidential = "confidential"
	ClientTypePublic       = "public"
)

// Client is a dynamically registered OAuth client.
type Client struct {
	ClientID                string    `json:"client_id"`
	ClientSecretHash        string    `json:"client_secret_hash,omitempty"` // bcrypt
	ClientType              string    `json:"client_type"`
	ClientName              string    `json:"client_name,omitempty"`
	RedirectURIs            []string  `json:"redirect_uris"`
	GrantTypes              []string  `json:"grant_types"`
	ResponseTypes           []string  `json:"response_types"`
	Scope                   string    `json:"scope,omitempty"`
	TokenEndpointAuthMethod string    `json:"token_endpoint_auth_method"`
	CreatedAt               time.Time `json:"created_at"`
}

// IsPublic reports whether the client has no secret.
func (c *Client) IsPublic() bool {
	return c.ClientType == ClientTypePublic
}

// Identity is the end user behind a grant, as asserted by the identity
// provider. Machine-to-machine grants carry no identity.
type Identity struct {
	Subject        string `json:"subject"`
	Email          string `json:"email,omitempty"`
	Name           string `json:"name,omitempty"`
	SocialProvider string `json:"social_provider,omitempty"`

	// LinkedSession references the identity-provider session the grant was
	// issued from. It is re-validated on every protected request.
	LinkedSession string `json:"linked_session,omitempty"`
}

// AuthorizationCode is a single-use grant minted by the authorization
// endpoint. Identity stays nil until the identity-provider callback has
// authenticated the user; such pending codes are not redeemable.
type AuthorizationCode struct {
	Code                string    `json:"code"`
	ClientID            string    `json:"client_id"`
	RedirectURI         string    `json:"redirect_uri"`
	Scope               string    `json:"scope,omitempty"`
	CodeChallenge       string    `json:"code_challenge"`
	CodeChallengeMethod string    `json:"code_challenge_method"`
	ClientState         string    `json:"client_state,omitempty"`
	Identity            *Identity `json:"identity,omitempty"`
	CreatedAt           time.Time `json:"created_at"`
	ExpiresAt           time.Time `json:"expires_at"`
}

// OAuthState binds an identity-provider redirect to the authorization code
// it will complete and to the social provider that was chosen.
type OAuthState struct {
	State            string    `json:"state"`
	Code             string    `json:"code"`
	SocialProvider   string    `json:"social_provider"`
	ProviderVerifier string    `json:"provider_verifier"`
	CreatedAt        time.Time `json:"created_at"`
	ExpiresAt        time.Time `json:"expires_at"`
}

// AccessToken is an issued bearer credential.
type AccessToken struct {
	Token     string    `json:"token"`
	ClientID  string    `json:"client_id"`
	Scope     string    `json:"scope,omitempty"`
	TokenType string    `json:"token_type"`
	GrantType string    `json:"grant_type"`
	Identity  *Identity `json:"identity,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// RefreshToken is issued alongside user-bound access tokens.
type RefreshToken struct {
	Token     string    `json:"token"`
	ClientID  string    `json:"client_id"`
	Scope     string    `json:"scope,omitempty"`
	Identity  *Identity `json:"identity,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}
