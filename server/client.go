package server

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/google/uuid"

	"github.com/giantswarm/descope-store-mcp/instrumentation"
	"github.com/giantswarm/descope-store-mcp/internal/util"
	"github.com/giantswarm/descope-store-mcp/storage"
)

// Token endpoint authentication methods (RFC 7591).
const (
	TokenEndpointAuthMethodNone  = "none"
	TokenEndpointAuthMethodBasic = "client_secret_basic"
	TokenEndpointAuthMethodPost  = "client_secret_post"
)

// Grant types.
const (
	GrantTypeAuthorizationCode = "authorization_code"
	GrantTypeClientCredentials = "client_credentials"
	GrantTypeRefreshToken      = "refresh_token"
)

// ResponseTypeCode is the only supported response type.
const ResponseTypeCode = "code"

// ClientIDPrefix keeps client IDs out of the token namespace.
const ClientIDPrefix = "mcp_client_"

var supportedGrantTypes = []string{GrantTypeAuthorizationCode, GrantTypeClientCredentials, GrantTypeRefreshToken}

// ClientRegistration is a dynamic client registration request (RFC 7591).
type ClientRegistration struct {
	ClientName              string
	RedirectURIs            []string
	GrantTypes              []string
	ResponseTypes           []string
	Scope                   string
	TokenEndpointAuthMethod string
}

// RegisterClient registers a new OAuth client. Registration is open. The
// returned secret is empty for public clients and is never retrievable again.
func (s *Server) RegisterClient(ctx context.Context, req ClientRegistration) (*storage.Client, string, error) {
	redirectURIs := filterRedirectURIs(req.RedirectURIs)
	if len(redirectURIs) == 0 {
		s.Logger.Warn("Client registration rejected: no acceptable redirect URI",
			"requested", len(req.RedirectURIs))
		return nil, "", ErrInvalidRedirectURI("at least one redirect URI must use https or http://localhost")
	}

	grantTypes := filterKnown(req.GrantTypes, supportedGrantTypes)
	if len(grantTypes) == 0 {
		grantTypes = []string{GrantTypeAuthorizationCode, GrantTypeRefreshToken}
	}

	scopes := util.IntersectScopes(util.ParseScope(req.Scope), s.Config.SupportedScopes)
	if len(scopes) == 0 {
		scopes = s.Config.SupportedScopes
	}

	clientType, authMethod := resolveClientTypeAndAuthMethod(req.TokenEndpointAuthMethod, grantTypes)

	var secret, secretHash string
	if clientType == storage.ClientTypeConfidential {
		secret = generateRandomToken()
		hash, err := storage.HashClientSecret(secret)
		if err != nil {
			return nil, "", ErrServerError("failed to register client").WithCause(err)
		}
		secretHash = hash
	}

	client := &storage.Client{
		ClientID:                generateClientID(),
		ClientSecretHash:        secretHash,
		ClientType:              clientType,
		ClientName:              req.ClientName,
		RedirectURIs:            redirectURIs,
		GrantTypes:              grantTypes,
		ResponseTypes:           []string{ResponseTypeCode},
		Scope:                   util.FormatScope(scopes),
		TokenEndpointAuthMethod: authMethod,
		CreatedAt:               s.now(),
	}

	if err := s.clientStore.SaveClient(ctx, client); err != nil {
		return nil, "", ErrServerError("failed to register client").WithCause(fmt.Errorf("failed to save client: %w", err))
	}

	s.recordMetrics(func(m *instrumentation.Metrics) {
		m.RecordClientRegistration(ctx, clientType)
	})
	s.Logger.Info("Registered new OAuth client",
		"client_id", client.ClientID,
		"client_name", client.ClientName,
		"client_type", client.ClientType,
		"grant_types", strings.Join(grantTypes, ","),
		"token_endpoint_auth_method", authMethod)

	return client, secret, nil
}

// resolveClientTypeAndAuthMethod makes clients confidential unless they ask
// for "none". client_credentials needs a secret, so it forces confidential.
func resolveClientTypeAndAuthMethod(authMethod string, grantTypes []string) (string, string) {
	wantsPublic := authMethod == TokenEndpointAuthMethodNone
	if wantsPublic && !slices.Contains(grantTypes, GrantTypeClientCredentials) {
		return storage.ClientTypePublic, TokenEndpointAuthMethodNone
	}

	if authMethod != TokenEndpointAuthMethodPost {
		authMethod = TokenEndpointAuthMethodBasic
	}
	return storage.ClientTypeConfidential, authMethod
}

// filterKnown keeps the values of requested present in known, without
// duplicates.
func filterKnown(requested, known []string) []string {
	var out []string
	for _, v := range requested {
		if slices.Contains(known, v) && !slices.Contains(out, v) {
			out = append(out, v)
		}
	}
	return out
}

func generateClientID() string {
	return ClientIDPrefix + strings.ReplaceAll(uuid.NewString(), "-", "")
}

// lookupClient maps store errors to OAuth errors. notFound decides how an
// unknown client is reported.
func (s *Server) lookupClient(ctx context.Context, clientID string, notFound func(string) *OAuthError) (*storage.Client, error) {
	client, err := s.clientStore.GetClient(ctx, clientID)
	if err != nil {
		if errors.Is(err, storage.ErrClientNotFound) {
			return nil, notFound("unknown client")
		}
		return nil, ErrServerError("failed to look up client").WithCause(err)
	}
	return client, nil
}
