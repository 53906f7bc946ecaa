package server

import (
	"context"
	"errors"
	"net/url"
	"slices"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/oauth2"

	"github.com/giantswarm/descope-store-mcp/instrumentation"
	"github.com/giantswarm/descope-store-mcp/internal/util"
	"github.com/giantswarm/descope-store-mcp/providers"
	"github.com/giantswarm/descope-store-mcp/storage"
)

// callbackStateFallback is returned to clients that sent no state of their own.
const callbackStateFallback = "authorized"

// AuthorizationRequest holds the authorization endpoint parameters.
type AuthorizationRequest struct {
	ClientID            string
	RedirectURI         string
	ResponseType        string
	Scope               string
	State               string
	CodeChallenge       string
	CodeChallengeMethod string

	// SocialProvider is the "provider" parameter.
	SocialProvider string
}

// AuthorizationResult tells the HTTP layer where to send the user agent.
type AuthorizationResult struct {
	// RedirectURL is the identity provider login URL.
	RedirectURL string

	// NeedsProviderChoice is set when neither the request nor the
	// configuration names a social provider. The request has been fully
	// validated; repeating it with a provider parameter continues the flow.
	NeedsProviderChoice bool
}

// Authorize validates an authorization request, mints a pending
// authorization code and returns the identity provider login URL.
func (s *Server) Authorize(ctx context.Context, req AuthorizationRequest) (*AuthorizationResult, error) {
	ctx, span := s.tracer.Start(ctx, "oauth.authorize")
	defer span.End()
	instrumentation.AddOAuthFlowAttributes(span, req.ClientID, "", req.Scope)

	result, err := s.authorize(ctx, req)
	if err != nil {
		instrumentation.RecordError(span, err)
		return nil, err
	}
	instrumentation.SetSpanSuccess(span)
	return result, nil
}

func (s *Server) authorize(ctx context.Context, req AuthorizationRequest) (*AuthorizationResult, error) {
	if req.ClientID == "" || req.RedirectURI == "" || req.CodeChallenge == "" {
		return nil, ErrInvalidRequest("client_id, redirect_uri and code_challenge are required")
	}
	if req.CodeChallengeMethod != PKCEMethodS256 {
		return nil, ErrInvalidRequest("code_challenge_method must be S256")
	}

	client, err := s.lookupClient(ctx, req.ClientID, ErrUnknownClient)
	if err != nil {
		return nil, err
	}
	if !slices.Contains(client.RedirectURIs, req.RedirectURI) {
		s.Logger.Warn("Authorization rejected: unregistered redirect URI",
			"client_id", req.ClientID)
		return nil, ErrInvalidRequest("redirect_uri is not registered for this client")
	}

	// The redirect target is verified; from here errors go back to the client.
	redirectErr := func(e *OAuthError) error {
		return e.withRedirect(req.RedirectURI, req.State)
	}

	if req.ResponseType != "" && req.ResponseType != ResponseTypeCode {
		return nil, redirectErr(ErrUnsupportedResponseType("only response_type=code is supported"))
	}
	if !slices.Contains(client.GrantTypes, GrantTypeAuthorizationCode) {
		return nil, redirectErr(ErrUnauthorizedClient("client is not allowed to use the authorization_code grant"))
	}

	clientScopes := util.ParseScope(client.Scope)
	requested := util.ParseScope(req.Scope)
	if !util.ScopeSubset(requested, clientScopes) {
		return nil, redirectErr(ErrInvalidScope("requested scope exceeds the client's registered scope"))
	}
	if len(requested) == 0 {
		requested = clientScopes
	}

	providerName := req.SocialProvider
	if providerName == "" {
		providerName = s.Config.DefaultSocialProvider
	}
	if providerName == "" {
		return &AuthorizationResult{NeedsProviderChoice: true}, nil
	}
	social, err := providers.ParseSocialProvider(providerName)
	if err != nil {
		return nil, redirectErr(ErrInvalidRequest("unsupported social provider"))
	}

	now := s.now()
	code := &storage.AuthorizationCode{
		Code:                generateRandomToken(),
		ClientID:            client.ClientID,
		RedirectURI:         req.RedirectURI,
		Scope:               util.FormatScope(requested),
		CodeChallenge:       req.CodeChallenge,
		CodeChallengeMethod: req.CodeChallengeMethod,
		ClientState:         req.State,
		CreatedAt:           now,
		ExpiresAt:           now.Add(time.Duration(s.Config.AuthorizationCodeTTL) * time.Second),
	}
	if err := s.flowStore.PutAuthCode(ctx, code); err != nil {
		return nil, redirectErr(ErrServerError("failed to start authorization").WithCause(err))
	}

	verifier := oauth2.GenerateVerifier()
	state := &storage.OAuthState{
		State:            generateRandomToken(),
		Code:             code.Code,
		SocialProvider:   social.String(),
		ProviderVerifier: verifier,
		CreatedAt:        now,
		ExpiresAt:        now.Add(time.Duration(s.Config.OAuthStateTTL) * time.Second),
	}
	if err := s.flowStore.PutOAuthState(ctx, state); err != nil {
		return nil, redirectErr(ErrServerError("failed to start authorization").WithCause(err))
	}

	loginURL := s.provider.AuthorizationURL(state.State, &providers.AuthOptions{
		SocialProvider:      social,
		CodeChallenge:       oauth2.S256ChallengeFromVerifier(verifier),
		CodeChallengeMethod: PKCEMethodS256,
	})

	s.recordMetrics(func(m *instrumentation.Metrics) {
		m.RecordAuthorizationStarted(ctx, client.ClientID, social.String())
	})
	s.Logger.Info("Authorization flow started",
		"client_id", client.ClientID,
		"social_provider", social.String(),
		"scope", code.Scope)

	return &AuthorizationResult{RedirectURL: loginURL}, nil
}

// Callback completes the identity provider round trip: it attaches the
// authenticated identity to the pending authorization code and returns the
// client redirect carrying that code.
func (s *Server) Callback(ctx context.Context, state, providerCode, providerError string) (string, error) {
	ctx, span := s.tracer.Start(ctx, "oauth.callback")
	defer span.End()

	redirectURL, social, err := s.callback(ctx, state, providerCode, providerError)
	instrumentation.SetSpanAttributes(span, attribute.String(instrumentation.AttrProvider, social))
	s.recordMetrics(func(m *instrumentation.Metrics) {
		m.RecordCallbackProcessed(ctx, social, err == nil)
	})
	if err != nil {
		instrumentation.RecordError(span, err)
		return "", err
	}
	instrumentation.SetSpanSuccess(span)
	return redirectURL, nil
}

func (s *Server) callback(ctx context.Context, state, providerCode, providerError string) (string, string, error) {
	if state == "" {
		return "", "", ErrInvalidRequest("state is required")
	}

	flowState, err := s.flowStore.ConsumeOAuthState(ctx, state)
	if err != nil {
		if errors.Is(err, storage.ErrOAuthStateNotFound) || errors.Is(err, storage.ErrOAuthStateExpired) {
			return "", "", ErrInvalidRequest("unknown or expired state")
		}
		return "", "", ErrServerError("failed to complete authorization").WithCause(err)
	}
	social := flowState.SocialProvider

	code, err := s.flowStore.ConsumeAuthCode(ctx, flowState.Code)
	if err != nil {
		if errors.Is(err, storage.ErrAuthorizationCodeNotFound) || errors.Is(err, storage.ErrAuthorizationCodeExpired) {
			return "", social, ErrInvalidGrant("authorization request expired")
		}
		return "", social, ErrServerError("failed to complete authorization").WithCause(err)
	}

	redirectErr := func(e *OAuthError) error {
		return e.withRedirect(code.RedirectURI, code.ClientState)
	}

	if providerError != "" {
		s.Logger.Info("Identity provider denied authorization",
			"client_id", code.ClientID,
			"social_provider", social,
			"provider_error", providerError)
		return "", social, redirectErr(ErrAccessDenied("the identity provider did not authorize the request"))
	}
	if providerCode == "" {
		return "", social, redirectErr(ErrInvalidRequest("missing code from identity provider"))
	}

	var session *providers.Session
	err = s.callProvider(ctx, "exchange_code", func(ctx context.Context) error {
		var exErr error
		session, exErr = s.provider.ExchangeCode(ctx, providerCode, &providers.ExchangeOptions{
			CodeVerifier: flowState.ProviderVerifier,
		})
		return exErr
	})
	if err == nil && (session == nil || session.User == nil || session.User.ID == "") {
		err = errors.New("identity provider returned no user")
	}
	if err != nil {
		s.Logger.Error("Identity provider code exchange failed",
			"client_id", code.ClientID,
			"social_provider", social,
			"error", err)
		return "", social, redirectErr(ErrServerError("failed to authenticate with the identity provider").WithCause(err))
	}

	code.Identity = &storage.Identity{
		Subject:        session.User.ID,
		Email:          session.User.Email,
		Name:           session.User.Name,
		SocialProvider: social,
		LinkedSession:  session.Reference,
	}
	if err := s.flowStore.PutAuthCode(ctx, code); err != nil {
		return "", social, redirectErr(ErrServerError("failed to complete authorization").WithCause(err))
	}

	clientState := code.ClientState
	if clientState == "" {
		clientState = callbackStateFallback
	}

	s.Logger.Info("User authenticated",
		"client_id", code.ClientID,
		"user_id", session.User.ID,
		"social_provider", social,
		"code_prefix", util.SafeTruncate(code.Code, tokenIDLogLength))

	return appendQuery(code.RedirectURI, url.Values{
		"code":  {code.Code},
		"state": {clientState},
	}), social, nil
}
