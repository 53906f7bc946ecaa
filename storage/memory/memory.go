package memory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/giantswarm/descope-store-mcp/instrumentation"
	"github.com/giantswarm/descope-store-mcp/internal/util"
	"github.com/giantswarm/descope-store-mcp/security"
	"github.com/giantswarm/descope-store-mcp/storage"
)

// tokenIDLogLength is how much of a token or code may appear in logs.
const tokenIDLogLength = 8

// Store is an in-memory storage.Store.
type Store struct {
	mu sync.RWMutex

	clients       map[string]*storage.Client
	authCodes     map[string]*storage.AuthorizationCode
	oauthStates   map[string]*storage.OAuthState
	accessTokens  map[string]*storage.AccessToken
	refreshTokens map[string]*storage.RefreshToken

	now    security.Clock
	logger *slog.Logger

	instrumentation *instrumentation.Instrumentation
	tracer          trace.Tracer

	// Read by metric callbacks without taking mu.
	clientsCount atomic.Int64
	tokensCount  atomic.Int64
	codesCount   atomic.Int64
}

var _ storage.Store = (*Store)(nil)

// New creates an empty store using the system clock.
func New() *Store {
	return &Store{
		clients:       make(map[string]*storage.Client),
		authCodes:     make(map[string]*storage.AuthorizationCode),
		oauthStates:   make(map[string]*storage.OAuthState),
		accessTokens:  make(map[string]*storage.AccessToken),
		refreshTokens: make(map[string]*storage.RefreshToken),
		now:           security.SystemClock,
		logger:        slog.Default(),
	}
}

// SetLogger sets a custom logger.
func (s *Store) SetLogger(logger *slog.Logger) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logger = logger
}

// SetClock replaces the clock used for expiry checks.
func (s *Store) SetClock(clock security.Clock) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = clock
}

// SetInstrumentation enables tracing, operation metrics and size gauges.
func (s *Store) SetInstrumentation(inst *instrumentation.Instrumentation) {
	s.mu.Lock()
	s.instrumentation = inst
	if inst != nil {
		s.tracer = inst.Tracer("storage")
	}
	s.mu.Unlock()

	if inst == nil {
		return
	}
	err := inst.RegisterStorageSizeCallbacks(
		s.clientsCount.Load,
		s.tokensCount.Load,
		s.codesCount.Load,
	)
	if err != nil {
		s.logger.Warn("Failed to register storage size metrics", "error", err)
	}
}

// ============================================================
// ClientStore
// ============================================================

// SaveClient stores a client.
func (s *Store) SaveClient(ctx context.Context, client *storage.Client) (err error) {
	ctx, span, start := s.startStorageSpan(ctx, "save_client")
	defer func() { s.recordStorageOperation(ctx, span, "save_client", err, start) }()

	if client == nil || client.ClientID == "" {
		return fmt.Errorf("invalid client")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.clients[client.ClientID]; !exists {
		s.clientsCount.Add(1)
	}
	c := *client
	s.clients[client.ClientID] = &c

	s.logger.Debug("Saved client", "client_id", client.ClientID)
	return nil
}

// GetClient returns a copy of the client.
func (s *Store) GetClient(ctx context.Context, clientID string) (_ *storage.Client, err error) {
	ctx, span, start := s.startStorageSpan(ctx, "get_client")
	defer func() { s.recordStorageOperation(ctx, span, "get_client", err, start) }()

	s.mu.RLock()
	defer s.mu.RUnlock()

	client, ok := s.clients[clientID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", storage.ErrClientNotFound, clientID)
	}
	c := *client
	return &c, nil
}

// ValidateClientSecret compares secret with the client's bcrypt hash.
func (s *Store) ValidateClientSecret(ctx context.Context, clientID, secret string) error {
	client, err := s.GetClient(ctx, clientID)
	if err != nil {
		client = nil
	}
	return storage.CompareClientSecret(client, secret)
}

// ============================================================
// FlowStore
// ============================================================

// PutAuthCode stores an authorization code, replacing any previous record
// for the same code.
func (s *Store) PutAuthCode(ctx context.Context, code *storage.AuthorizationCode) (err error) {
	ctx, span, start := s.startStorageSpan(ctx, "put_auth_code")
	defer func() { s.recordStorageOperation(ctx, span, "put_auth_code", err, start) }()

	if code == nil || code.Code == "" {
		return fmt.Errorf("invalid authorization code")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.authCodes[code.Code]; !exists {
		s.codesCount.Add(1)
	}
	s.authCodes[code.Code] = cloneAuthCode(code)

	s.logger.Debug("Saved authorization code", "code_prefix", util.SafeTruncate(code.Code, tokenIDLogLength))
	return nil
}

// ConsumeAuthCode removes and returns the code under one write lock.
func (s *Store) ConsumeAuthCode(ctx context.Context, code string) (_ *storage.AuthorizationCode, err error) {
	ctx, span, start := s.startStorageSpan(ctx, "consume_auth_code")
	defer func() { s.recordStorageOperation(ctx, span, "consume_auth_code", err, start) }()

	s.mu.Lock()
	defer s.mu.Unlock()

	authCode, ok := s.authCodes[code]
	if !ok {
		return nil, storage.ErrAuthorizationCodeNotFound
	}
	delete(s.authCodes, code)
	s.codesCount.Add(-1)

	if security.IsExpiredAt(authCode.ExpiresAt, s.now()) {
		s.logger.Debug("Evicted expired authorization code", "code_prefix", util.SafeTruncate(code, tokenIDLogLength))
		return nil, storage.ErrAuthorizationCodeExpired
	}
	return authCode, nil
}

// PutOAuthState stores identity-provider state.
func (s *Store) PutOAuthState(ctx context.Context, state *storage.OAuthState) (err error) {
	ctx, span, start := s.startStorageSpan(ctx, "put_oauth_state")
	defer func() { s.recordStorageOperation(ctx, span, "put_oauth_state", err, start) }()

	if state == nil || state.State == "" {
		return fmt.Errorf("invalid oauth state")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	st := *state
	s.oauthStates[state.State] = &st
	return nil
}

// ConsumeOAuthState removes and returns the state under one write lock.
func (s *Store) ConsumeOAuthState(ctx context.Context, state string) (_ *storage.OAuthState, err error) {
	ctx, span, start := s.startStorageSpan(ctx, "consume_oauth_state")
	defer func() { s.recordStorageOperation(ctx, span, "consume_oauth_state", err, start) }()

	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.oauthStates[state]
	if !ok {
		return nil, storage.ErrOAuthStateNotFound
	}
	delete(s.oauthStates, state)

	if security.IsExpiredAt(st.ExpiresAt, s.now()) {
		return nil, storage.ErrOAuthStateExpired
	}
	return st, nil
}

// ============================================================
// TokenStore
// ============================================================

// PutAccessToken stores an access token.
func (s *Store) PutAccessToken(ctx context.Context, token *storage.AccessToken) (err error) {
	ctx, span, start := s.startStorageSpan(ctx, "put_access_token")
	defer func() { s.recordStorageOperation(ctx, span, "put_access_token", err, start) }()

	if token == nil || token.Token == "" {
		return fmt.Errorf("invalid access token")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.accessTokens[token.Token]; !exists {
		s.tokensCount.Add(1)
	}
	s.accessTokens[token.Token] = cloneAccessToken(token)

	s.logger.Debug("Saved access token",
		"token_prefix", util.SafeTruncate(token.Token, tokenIDLogLength),
		"client_id", token.ClientID)
	return nil
}

// GetAccessToken returns a copy of the token. Expired tokens are evicted.
func (s *Store) GetAccessToken(ctx context.Context, token string) (_ *storage.AccessToken, err error) {
	ctx, span, start := s.startStorageSpan(ctx, "get_access_token")
	defer func() { s.recordStorageOperation(ctx, span, "get_access_token", err, start) }()

	s.mu.Lock()
	defer s.mu.Unlock()

	at, ok := s.accessTokens[token]
	if !ok {
		return nil, storage.ErrTokenNotFound
	}
	if security.IsExpiredAt(at.ExpiresAt, s.now()) {
		delete(s.accessTokens, token)
		s.tokensCount.Add(-1)
		s.logger.Debug("Evicted expired access token", "token_prefix", util.SafeTruncate(token, tokenIDLogLength))
		return nil, storage.ErrTokenExpired
	}
	return cloneAccessToken(at), nil
}

// DeleteAccessToken removes an access token.
func (s *Store) DeleteAccessToken(ctx context.Context, token string) (err error) {
	ctx, span, start := s.startStorageSpan(ctx, "delete_access_token")
	defer func() { s.recordStorageOperation(ctx, span, "delete_access_token", err, start) }()

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.accessTokens[token]; ok {
		delete(s.accessTokens, token)
		s.tokensCount.Add(-1)
	}
	return nil
}

// PutRefreshToken stores a refresh token.
func (s *Store) PutRefreshToken(ctx context.Context, token *storage.RefreshToken) (err error) {
	ctx, span, start := s.startStorageSpan(ctx, "put_refresh_token")
	defer func() { s.recordStorageOperation(ctx, span, "put_refresh_token", err, start) }()

	if token == nil || token.Token == "" {
		return fmt.Errorf("invalid refresh token")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rt := *token
	rt.Identity = cloneIdentity(token.Identity)
	s.refreshTokens[token.Token] = &rt
	return nil
}

// GetRefreshToken returns a copy of the refresh token. Expired tokens are evicted.
func (s *Store) GetRefreshToken(ctx context.Context, token string) (_ *storage.RefreshToken, err error) {
	ctx, span, start := s.startStorageSpan(ctx, "get_refresh_token")
	defer func() { s.recordStorageOperation(ctx, span, "get_refresh_token", err, start) }()

	s.mu.Lock()
	defer s.mu.Unlock()

	rt, ok := s.refreshTokens[token]
	if !ok {
		return nil, storage.ErrTokenNotFound
	}
	if security.IsExpiredAt(rt.ExpiresAt, s.now()) {
		delete(s.refreshTokens, token)
		return nil, storage.ErrTokenExpired
	}
	out := *rt
	out.Identity = cloneIdentity(rt.Identity)
	return &out, nil
}

// ============================================================
// Helpers
// ============================================================

func cloneIdentity(id *storage.Identity) *storage.Identity {
	if id == nil {
		return nil
	}
	c := *id
	return &c
}

func cloneAuthCode(code *storage.AuthorizationCode) *storage.AuthorizationCode {
	c := *code
	c.Identity = cloneIdentity(code.Identity)
	return &c
}

func cloneAccessToken(token *storage.AccessToken) *storage.AccessToken {
	t := *token
	t.Identity = cloneIdentity(token.Identity)
	return &t
}

func (s *Store) startStorageSpan(ctx context.Context, operation string) (context.Context, trace.Span, time.Time) {
	start := time.Now()
	if s.tracer == nil {
		return ctx, trace.SpanFromContext(ctx), start
	}

	ctx, span := s.tracer.Start(ctx, "storage."+operation,
		trace.WithAttributes(
			attribute.String(instrumentation.AttrStorageOperation, operation),
			attribute.String(instrumentation.AttrStorageType, "memory"),
		))
	return ctx, span, start
}

// recordStorageOperation records metrics and ends the span. Lookups that
// miss are reported as "miss" so they do not read as backend failures.
func (s *Store) recordStorageOperation(ctx context.Context, span trace.Span, operation string, err error, start time.Time) {
	if s.tracer != nil {
		defer span.End()
	}
	if s.instrumentation == nil {
		return
	}

	result := "success"
	switch {
	case err == nil:
		instrumentation.SetSpanSuccess(span)
	case isMiss(err):
		result = "miss"
	default:
		result = "error"
		instrumentation.RecordError(span, err)
	}

	durationMs := float64(time.Since(start).Microseconds()) / 1000
	s.instrumentation.Metrics().RecordStorageOperation(ctx, operation, result, durationMs)
}

func isMiss(err error) bool {
	return errors.Is(err, storage.ErrClientNotFound) ||
		errors.Is(err, storage.ErrAuthorizationCodeNotFound) ||
		errors.Is(err, storage.ErrAuthorizationCodeExpired) ||
		errors.Is(err, storage.ErrOAuthStateNotFound) ||
		errors.Is(err, storage.ErrOAuthStateExpired) ||
		errors.Is(err, storage.ErrTokenNotFound) ||
		errors.Is(err, storage.ErrTokenExpired)
}
