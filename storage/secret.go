package storage

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// dummySecretHash is compared against when the client is unknown or public so
// every call pays for one bcrypt comparison.
const dummySecretHash = "$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy"

// HashClientSecret returns the bcrypt hash stored in Client.ClientSecretHash.
func HashClientSecret(secret string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash client secret: %w", err)
	}
	return string(hash), nil
}

// CompareClientSecret checks secret against client, which may be nil when
// the lookup failed. Public clients never authenticate with a secret.
func CompareClientSecret(client *Client, secret string) error {
	hash := dummySecretHash
	usable := client != nil && !client.IsPublic() && client.ClientSecretHash != ""
	if usable {
		hash = client.ClientSecretHash
	}

	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(secret))
	if !usable || err != nil {
		return ErrInvalidClientCredentials
	}
	return nil
}
