package valkey

import (
	"context"
	"fmt"

	"github.com/giantswarm/descope-store-mcp/internal/util"
	"github.com/giantswarm/descope-store-mcp/security"
	"github.com/giantswarm/descope-store-mcp/storage"
)

// PutAccessToken stores an access token.
func (s *Store) PutAccessToken(ctx context.Context, token *storage.AccessToken) error {
	if token == nil {
		return fmt.Errorf("invalid access token")
	}
	if err := validateKey("access token", token.Token); err != nil {
		return err
	}

	ttl, err := s.ttlFor(token.ExpiresAt)
	if err != nil {
		return fmt.Errorf("access token: %w", err)
	}

	record := *token
	if record.Identity, err = s.sealIdentity(token.Identity); err != nil {
		return err
	}
	if err := s.setJSON(ctx, s.tokenKey(token.Token), &record, ttl); err != nil {
		return fmt.Errorf("failed to save access token: %w", err)
	}

	s.logger.Debug("Saved access token",
		"token_prefix", util.SafeTruncate(token.Token, tokenIDLogLength),
		"client_id", token.ClientID)
	return nil
}

// GetAccessToken returns the token. Expired tokens are deleted.
func (s *Store) GetAccessToken(ctx context.Context, token string) (*storage.AccessToken, error) {
	if validateKey("access token", token) != nil {
		return nil, storage.ErrTokenNotFound
	}

	key := s.tokenKey(token)
	var record storage.AccessToken
	found, err := s.getJSON(ctx, key, &record)
	if err != nil {
		return nil, fmt.Errorf("failed to get access token: %w", err)
	}
	if !found {
		return nil, storage.ErrTokenNotFound
	}

	if security.IsExpiredAt(record.ExpiresAt, s.now()) {
		if err := s.del(ctx, key); err != nil {
			s.logger.Warn("Failed to evict expired access token",
				"token_prefix", util.SafeTruncate(token, tokenIDLogLength),
				"error", err)
		}
		return nil, storage.ErrTokenExpired
	}

	if err := s.openIdentity(record.Identity); err != nil {
		return nil, err
	}
	return &record, nil
}

// DeleteAccessToken removes an access token.
func (s *Store) DeleteAccessToken(ctx context.Context, token string) error {
	if validateKey("access token", token) != nil {
		return nil
	}
	if err := s.del(ctx, s.tokenKey(token)); err != nil {
		return fmt.Errorf("failed to delete access token: %w", err)
	}
	return nil
}

// PutRefreshToken stores a refresh token.
func (s *Store) PutRefreshToken(ctx context.Context, token *storage.RefreshToken) error {
	if token == nil {
		return fmt.Errorf("invalid refresh token")
	}
	if err := validateKey("refresh token", token.Token); err != nil {
		return err
	}

	ttl, err := s.ttlFor(token.ExpiresAt)
	if err != nil {
		return fmt.Errorf("refresh token: %w", err)
	}

	record := *token
	if record.Identity, err = s.sealIdentity(token.Identity); err != nil {
		return err
	}
	if err := s.setJSON(ctx, s.refreshKey(token.Token), &record, ttl); err != nil {
		return fmt.Errorf("failed to save refresh token: %w", err)
	}
	return nil
}

// GetRefreshToken returns the refresh token. Expired tokens are deleted.
func (s *Store) GetRefreshToken(ctx context.Context, token string) (*storage.RefreshToken, error) {
	if validateKey("refresh token", token) != nil {
		return nil, storage.ErrTokenNotFound
	}

	key := s.refreshKey(token)
	var record storage.RefreshToken
	found, err := s.getJSON(ctx, key, &record)
	if err != nil {
		return nil, fmt.Errorf("failed to get refresh token: %w", err)
	}
	if !found {
		return nil, storage.ErrTokenNotFound
	}

	if security.IsExpiredAt(record.ExpiresAt, s.now()) {
		if err := s.del(ctx, key); err != nil {
			s.logger.Warn("Failed to evict expired refresh token", "error", err)
		}
		return nil, storage.ErrTokenExpired
	}

	if err := s.openIdentity(record.Identity); err != nil {
		return nil, err
	}
	return &record, nil
}
