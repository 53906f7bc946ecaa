package valkey

import (
	"context"
	"fmt"

	"github.com/giantswarm/descope-store-mcp/internal/util"
	"github.com/giantswarm/descope-store-mcp/security"
	"github.com/giantswarm/descope-store-mcp/storage"
)

// PutAuthCode stores an authorization code, replacing any previous record.
func (s *Store) PutAuthCode(ctx context.Context, code *storage.AuthorizationCode) error {
	if code == nil {
		return fmt.Errorf("invalid authorization code")
	}
	if err := validateKey("authorization code", code.Code); err != nil {
		return err
	}

	ttl, err := s.ttlFor(code.ExpiresAt)
	if err != nil {
		return fmt.Errorf("authorization code: %w", err)
	}

	record := *code
	if record.Identity, err = s.sealIdentity(code.Identity); err != nil {
		return err
	}

	if err := s.setJSON(ctx, s.codeKey(code.Code), &record, ttl); err != nil {
		return fmt.Errorf("failed to save authorization code: %w", err)
	}

	s.logger.Debug("Saved authorization code", "code_prefix", util.SafeTruncate(code.Code, tokenIDLogLength))
	return nil
}

// ConsumeAuthCode atomically reads and deletes the code with GETDEL.
func (s *Store) ConsumeAuthCode(ctx context.Context, code string) (*storage.AuthorizationCode, error) {
	if validateKey("authorization code", code) != nil {
		return nil, storage.ErrAuthorizationCodeNotFound
	}

	var record storage.AuthorizationCode
	found, err := s.getDelJSON(ctx, s.codeKey(code), &record)
	if err != nil {
		return nil, fmt.Errorf("failed to consume authorization code: %w", err)
	}
	if !found {
		return nil, storage.ErrAuthorizationCodeNotFound
	}
	if security.IsExpiredAt(record.ExpiresAt, s.now()) {
		return nil, storage.ErrAuthorizationCodeExpired
	}
	if err := s.openIdentity(record.Identity); err != nil {
		return nil, err
	}
	return &record, nil
}

// PutOAuthState stores identity-provider state.
func (s *Store) PutOAuthState(ctx context.Context, state *storage.OAuthState) error {
	if state == nil {
		return fmt.Errorf("invalid oauth state")
	}
	if err := validateKey("oauth state", state.State); err != nil {
		return err
	}

	ttl, err := s.ttlFor(state.ExpiresAt)
	if err != nil {
		return fmt.Errorf("oauth state: %w", err)
	}
	if err := s.setJSON(ctx, s.stateKey(state.State), state, ttl); err != nil {
		return fmt.Errorf("failed to save oauth state: %w", err)
	}
	return nil
}

// ConsumeOAuthState atomically reads and deletes the state with GETDEL.
func (s *Store) ConsumeOAuthState(ctx context.Context, state string) (*storage.OAuthState, error) {
	if validateKey("oauth state", state) != nil {
		return nil, storage.ErrOAuthStateNotFound
	}

	var record storage.OAuthState
	found, err := s.getDelJSON(ctx, s.stateKey(state), &record)
	if err != nil {
		return nil, fmt.Errorf("failed to consume oauth state: %w", err)
	}
	if !found {
		return nil, storage.ErrOAuthStateNotFound
	}
	if security.IsExpiredAt(record.ExpiresAt, s.now()) {
		return nil, storage.ErrOAuthStateExpired
	}
	return &record, nil
}
