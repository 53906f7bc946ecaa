package valkey

import (
	"context"
	"fmt"

	"github.com/giantswarm/descope-store-mcp/storage"
)

// SaveClient stores a client without expiry.
func (s *Store) SaveClient(ctx context.Context, client *storage.Client) error {
	if client == nil {
		return fmt.Errorf("invalid client")
	}
	if err := validateKey("client id", client.ClientID); err != nil {
		return err
	}

	if err := s.setJSON(ctx, s.clientKey(client.ClientID), client, 0); err != nil {
		return fmt.Errorf("failed to save client: %w", err)
	}

	s.logger.Debug("Saved client", "client_id", client.ClientID)
	return nil
}

// GetClient returns the client or storage.ErrClientNotFound.
func (s *Store) GetClient(ctx context.Context, clientID string) (*storage.Client, error) {
	if err := validateKey("client id", clientID); err != nil {
		return nil, fmt.Errorf("%w: %s", storage.ErrClientNotFound, err)
	}

	var client storage.Client
	found, err := s.getJSON(ctx, s.clientKey(clientID), &client)
	if err != nil {
		return nil, fmt.Errorf("failed to get client: %w", err)
	}
	if !found {
		return nil, fmt.Errorf("%w: %s", storage.ErrClientNotFound, clientID)
	}
	return &client, nil
}

// ValidateClientSecret compares secret with the client's bcrypt hash.
func (s *Store) ValidateClientSecret(ctx context.Context, clientID, secret string) error {
	client, err := s.GetClient(ctx, clientID)
	if err != nil {
		client = nil
	}
	return storage.CompareClientSecret(client, secret)
}
