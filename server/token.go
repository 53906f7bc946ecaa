package server

import (
	"context"
	"errors"
	"slices"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/giantswarm/descope-store-mcp/instrumentation"
	"github.com/giantswarm/descope-store-mcp/internal/util"
	"github.com/giantswarm/descope-store-mcp/providers"
	"github.com/giantswarm/descope-store-mcp/security"
	"github.com/giantswarm/descope-store-mcp/storage"
)

// TokenTypeBearer is the only issued token type.
const TokenTypeBearer = "Bearer"

// TokenRequest holds the token endpoint parameters. Client credentials from
// HTTP Basic authentication are merged in by the HTTP layer.
type TokenRequest struct {
	GrantType    string
	Code         string
	RedirectURI  string
	ClientID     string
	ClientSecret string
	CodeVerifier string
	RefreshToken string
	Scope        string
}

// TokenResponse is the successful token endpoint response (RFC 6749 5.1).
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	RefreshToken string `json:"refresh_token,omitempty"`
	Scope        string `json:"scope,omitempty"`
}

// Token handles a token endpoint request.
//
// Supported grant types are authorization_code (with a mandatory S256 PKCE
// verifier), client_credentials for confidential clients, and refresh_token.
// Refresh tokens are not rotated: the same refresh token keeps working until
// it expires, and each use returns a fresh access token.
//
// Errors are *OAuthError values that carry the RFC 6749 error code and HTTP
// status to respond with.
func (s *Server) Token(ctx context.Context, req TokenRequest) (*TokenResponse, error) {
	ctx, span := s.tracer.Start(ctx, "oauth.token")
	defer span.End()
	instrumentation.SetSpanAttributes(span, attribute.String(instrumentation.AttrGrantType, req.GrantType))
	instrumentation.AddOAuthFlowAttributes(span, req.ClientID, "", req.Scope)

	var (
		resp *TokenResponse
		err  error
	)
	switch req.GrantType {
	case GrantTypeAuthorizationCode:
		resp, err = s.exchangeAuthorizationCode(ctx, req)
	case GrantTypeClientCredentials:
		resp, err = s.clientCredentials(ctx, req)
	case GrantTypeRefreshToken:
		resp, err = s.refreshAccessToken(ctx, req)
		s.recordMetrics(func(m *instrumentation.Metrics) {
			m.RecordTokenRefresh(ctx, err == nil)
		})
	case "":
		err = ErrInvalidRequest("grant_type is required")
	default:
		err = ErrUnsupportedGrantType("grant_type " + req.GrantType + " is not supported")
	}

	if err != nil {
		instrumentation.RecordError(span, err)
		s.Logger.Debug("Token request rejected",
			"grant_type", req.GrantType,
			"client_id", req.ClientID,
			"error", err)
		return nil, err
	}

	s.recordMetrics(func(m *instrumentation.Metrics) {
		m.RecordTokenIssued(ctx, req.GrantType)
	})
	instrumentation.SetSpanSuccess(span)
	return resp, nil
}

func (s *Server) exchangeAuthorizationCode(ctx context.Context, req TokenRequest) (*TokenResponse, error) {
	if req.Code == "" {
		return nil, ErrInvalidRequest("code is required")
	}

	// Consume before any other check so a code is spent by its first use.
	code, err := s.flowStore.ConsumeAuthCode(ctx, req.Code)
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrAuthorizationCodeNotFound):
			s.recordMetrics(func(m *instrumentation.Metrics) { m.RecordCodeReuseDetected(ctx) })
			s.Logger.Warn("Unknown or already redeemed authorization code",
				"client_id", req.ClientID,
				"code_prefix", util.SafeTruncate(req.Code, tokenIDLogLength))
			return nil, ErrInvalidGrant("authorization code is invalid or has already been used")
		case errors.Is(err, storage.ErrAuthorizationCodeExpired):
			return nil, ErrInvalidGrant("authorization code has expired")
		default:
			return nil, ErrServerError("failed to redeem authorization code").WithCause(err)
		}
	}

	if req.CodeVerifier == "" {
		return nil, ErrInvalidRequest("code_verifier is required")
	}
	if req.ClientID == "" {
		return nil, ErrInvalidRequest("client_id is required")
	}
	if req.ClientID != code.ClientID {
		return nil, ErrInvalidGrant("authorization code was issued to another client")
	}
	if req.RedirectURI != code.RedirectURI {
		return nil, ErrInvalidGrant("redirect_uri does not match the authorization request")
	}
	if code.Identity == nil {
		return nil, ErrInvalidGrant("authorization has not been completed")
	}

	if err := VerifyPKCE(req.CodeVerifier, code.CodeChallenge, code.CodeChallengeMethod); err != nil {
		s.recordMetrics(func(m *instrumentation.Metrics) {
			m.RecordPKCEValidationFailed(ctx, code.CodeChallengeMethod)
		})
		if errors.Is(err, ErrUnsupportedChallengeMethod) {
			return nil, ErrInvalidRequest(err.Error())
		}
		return nil, ErrInvalidGrant(err.Error())
	}

	if _, err := s.authenticateClient(ctx, req.ClientID, req.ClientSecret); err != nil {
		return nil, err
	}

	resp, err := s.issueTokens(ctx, code.ClientID, code.Scope, GrantTypeAuthorizationCode, code.Identity, true)
	if err != nil {
		return nil, err
	}

	s.recordMetrics(func(m *instrumentation.Metrics) { m.RecordCodeExchange(ctx, code.ClientID) })
	s.Logger.Info("Authorization code exchanged",
		"client_id", code.ClientID,
		"user_id", code.Identity.Subject,
		"scope", code.Scope)
	return resp, nil
}

func (s *Server) clientCredentials(ctx context.Context, req TokenRequest) (*TokenResponse, error) {
	if req.ClientID == "" || req.ClientSecret == "" {
		return nil, ErrInvalidClient("client authentication failed")
	}
	if err := s.clientStore.ValidateClientSecret(ctx, req.ClientID, req.ClientSecret); err != nil {
		if errors.Is(err, storage.ErrInvalidClientCredentials) {
			s.Logger.Warn("Client credentials rejected", "client_id", req.ClientID)
			return nil, ErrInvalidClient("client authentication failed")
		}
		return nil, ErrServerError("failed to authenticate client").WithCause(err)
	}

	client, err := s.lookupClient(ctx, req.ClientID, ErrInvalidClient)
	if err != nil {
		return nil, err
	}
	if !slices.Contains(client.GrantTypes, GrantTypeClientCredentials) {
		return nil, ErrUnauthorizedClient("client is not allowed to use the client_credentials grant")
	}

	allowed := util.IntersectScopes(s.Config.DefaultScopes, util.ParseScope(client.Scope))
	granted := allowed
	if requested := util.ParseScope(req.Scope); len(requested) > 0 {
		granted = util.IntersectScopes(requested, allowed)
	}
	if len(granted) == 0 {
		return nil, ErrInvalidScope("none of the requested scopes can be granted")
	}

	return s.issueTokens(ctx, client.ClientID, util.FormatScope(granted), GrantTypeClientCredentials, nil, false)
}

// refreshAccessToken issues a new access token for a refresh token. Refresh
// tokens are not rotated; the same one is returned until it expires.
func (s *Server) refreshAccessToken(ctx context.Context, req TokenRequest) (*TokenResponse, error) {
	if req.RefreshToken == "" {
		return nil, ErrInvalidRequest("refresh_token is required")
	}

	refresh, err := s.tokenStore.GetRefreshToken(ctx, req.RefreshToken)
	if err != nil {
		if errors.Is(err, storage.ErrTokenNotFound) || errors.Is(err, storage.ErrTokenExpired) {
			return nil, ErrInvalidGrant("refresh token is invalid or expired")
		}
		return nil, ErrServerError("failed to redeem refresh token").WithCause(err)
	}

	if req.ClientID == "" {
		return nil, ErrInvalidRequest("client_id is required")
	}
	if req.ClientID != refresh.ClientID {
		return nil, ErrInvalidGrant("refresh token was issued to another client")
	}
	client, err := s.authenticateClient(ctx, req.ClientID, req.ClientSecret)
	if err != nil {
		return nil, err
	}
	if !slices.Contains(client.GrantTypes, GrantTypeRefreshToken) {
		return nil, ErrUnauthorizedClient("client is not allowed to use the refresh_token grant")
	}

	scope := refresh.Scope
	if requested := util.ParseScope(req.Scope); len(requested) > 0 {
		if !util.ScopeSubset(requested, util.ParseScope(refresh.Scope)) {
			return nil, ErrInvalidScope("requested scope exceeds the original grant")
		}
		scope = util.FormatScope(requested)
	}

	access, err := s.issueAccessToken(ctx, refresh.ClientID, scope, GrantTypeRefreshToken, refresh.Identity)
	if err != nil {
		return nil, err
	}

	return &TokenResponse{
		AccessToken:  access.Token,
		TokenType:    TokenTypeBearer,
		ExpiresIn:    s.ExpiresIn(access),
		RefreshToken: refresh.Token,
		Scope:        scope,
	}, nil
}

// authenticateClient checks that clientID exists and, when a secret was
// presented for a confidential client, that it matches. PKCE already binds
// code redemption to the client that started the flow.
func (s *Server) authenticateClient(ctx context.Context, clientID, secret string) (*storage.Client, error) {
	client, err := s.lookupClient(ctx, clientID, ErrInvalidClient)
	if err != nil {
		return nil, err
	}
	if secret == "" || client.IsPublic() {
		return client, nil
	}
	if err := s.clientStore.ValidateClientSecret(ctx, clientID, secret); err != nil {
		if errors.Is(err, storage.ErrInvalidClientCredentials) {
			return nil, ErrInvalidClient("client authentication failed")
		}
		return nil, ErrServerError("failed to authenticate client").WithCause(err)
	}
	return client, nil
}

func (s *Server) issueTokens(ctx context.Context, clientID, scope, grantType string, identity *storage.Identity, withRefresh bool) (*TokenResponse, error) {
	access, err := s.issueAccessToken(ctx, clientID, scope, grantType, identity)
	if err != nil {
		return nil, err
	}

	resp := &TokenResponse{
		AccessToken: access.Token,
		TokenType:   TokenTypeBearer,
		ExpiresIn:   s.ExpiresIn(access),
		Scope:       scope,
	}

	if withRefresh {
		now := s.now()
		refresh := &storage.RefreshToken{
			Token:     generateRandomToken(),
			ClientID:  clientID,
			Scope:     scope,
			Identity:  identity,
			CreatedAt: now,
			ExpiresAt: now.Add(time.Duration(s.Config.RefreshTokenTTL) * time.Second),
		}
		if err := s.tokenStore.PutRefreshToken(ctx, refresh); err != nil {
			return nil, ErrServerError("failed to issue token").WithCause(err)
		}
		resp.RefreshToken = refresh.Token
	}
	return resp, nil
}

func (s *Server) issueAccessToken(ctx context.Context, clientID, scope, grantType string, identity *storage.Identity) (*storage.AccessToken, error) {
	now := s.now()
	access := &storage.AccessToken{
		Token:     generateRandomToken(),
		ClientID:  clientID,
		Scope:     scope,
		TokenType: TokenTypeBearer,
		GrantType: grantType,
		Identity:  identity,
		CreatedAt: now,
		ExpiresAt: now.Add(time.Duration(s.Config.AccessTokenTTL) * time.Second),
	}
	if err := s.tokenStore.PutAccessToken(ctx, access); err != nil {
		return nil, ErrServerError("failed to issue token").WithCause(err)
	}

	s.Logger.Debug("Issued access token",
		"client_id", clientID,
		"grant_type", grantType,
		"token_prefix", util.SafeTruncate(access.Token, tokenIDLogLength))
	return access, nil
}

// ValidateAccessToken resolves a bearer token. Tokens carrying a linked
// identity provider session are re-validated with the provider on every
// call. The returned user is nil for machine-to-machine tokens.
//
// A session the provider reports as gone (providers.ErrSessionInvalid) makes
// the token invalid for good, so it is deleted and invalid_token returned.
// Any other provider failure yields server_error and leaves the token in
// place; the caller may retry once the provider is reachable again.
func (s *Server) ValidateAccessToken(ctx context.Context, token string) (*storage.AccessToken, *providers.UserInfo, error) {
	if token == "" {
		return nil, nil, ErrInvalidToken("missing access token")
	}

	access, err := s.tokenStore.GetAccessToken(ctx, token)
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrTokenNotFound):
			return nil, nil, ErrInvalidToken("unknown access token")
		case errors.Is(err, storage.ErrTokenExpired):
			return nil, nil, ErrInvalidToken("access token has expired")
		default:
			return nil, nil, ErrServerError("failed to validate access token").WithCause(err)
		}
	}

	if access.Identity == nil {
		return access, nil, nil
	}

	if access.Identity.LinkedSession == "" {
		return access, identityUserInfo(access.Identity), nil
	}

	var user *providers.UserInfo
	err = s.callProvider(ctx, "validate_session", func(ctx context.Context) error {
		var vErr error
		user, vErr = s.provider.ValidateSession(ctx, access.Identity.LinkedSession)
		return vErr
	})
	if err != nil {
		if !errors.Is(err, providers.ErrSessionInvalid) {
			return nil, nil, ErrServerError("failed to validate identity provider session").WithCause(err)
		}
		// The session will not come back; drop the token so later calls
		// skip the provider round trip.
		if delErr := s.tokenStore.DeleteAccessToken(ctx, token); delErr != nil {
			s.Logger.Warn("Failed to delete access token of revoked session",
				"token_prefix", util.SafeTruncate(token, tokenIDLogLength),
				"error", delErr)
		}
		return nil, nil, ErrInvalidToken("identity provider session is no longer valid").WithCause(err)
	}
	if user == nil {
		user = identityUserInfo(access.Identity)
	}
	return access, user, nil
}

// ExpiresIn returns the remaining lifetime of token in whole seconds.
func (s *Server) ExpiresIn(token *storage.AccessToken) int64 {
	return security.SecondsUntil(token.ExpiresAt, s.now())
}

func identityUserInfo(id *storage.Identity) *providers.UserInfo {
	return &providers.UserInfo{
		ID:    id.Subject,
		Email: id.Email,
		Name:  id.Name,
	}
}
