package valkey

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	valkeygo "github.com/valkey-io/valkey-go"

	"github.com/giantswarm/descope-store-mcp/security"
	"github.com/giantswarm/descope-store-mcp/storage"
)

const (
	// DefaultKeyPrefix is the default prefix for all keys.
	DefaultKeyPrefix = "store-mcp:"

	// expiredRetention keeps expired records readable long enough to be
	// reported as expired instead of unknown.
	expiredRetention = time.Minute

	connectionVerifyTimeout = 5 * time.Second

	tokenIDLogLength = 8

	// MaxKeyLength bounds client IDs, codes, states and tokens accepted
	// from callers.
	MaxKeyLength = 512
)

// Config holds configuration for the Valkey storage backend.
type Config struct {
	// Address is the server address, e.g. "localhost:6379". Required.
	Address string

	Password string
	DB       int

	// KeyPrefix defaults to DefaultKeyPrefix.
	KeyPrefix string

	TLS *tls.Config

	Logger *slog.Logger
}

// Store is a Valkey-backed storage.Store.
type Store struct {
	client    valkeygo.Client
	prefix    string
	logger    *slog.Logger
	now       security.Clock
	encryptor *security.Encryptor
}

var _ storage.Store = (*Store)(nil)

// New connects to Valkey and verifies the connection with PING.
func New(cfg Config) (*Store, error) {
	if cfg.Address == "" {
		return nil, fmt.Errorf("valkey address is required")
	}

	opts := valkeygo.ClientOption{
		InitAddress: []string{cfg.Address},
		SelectDB:    cfg.DB,
		Password:    cfg.Password,
		TLSConfig:   cfg.TLS,
	}

	client, err := valkeygo.NewClient(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create valkey client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), connectionVerifyTimeout)
	defer cancel()

	if err := client.Do(ctx, client.B().Ping().Build()).Error(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to valkey: %w", err)
	}

	s := NewWithClient(client, cfg.KeyPrefix, cfg.Logger)
	s.logger.Info("Connected to Valkey storage",
		"address", cfg.Address,
		"db", cfg.DB,
		"prefix", s.prefix)
	return s, nil
}

// NewWithClient wraps an existing client. The caller keeps ownership of the
// connection settings; Close still closes the client.
func NewWithClient(client valkeygo.Client, keyPrefix string, logger *slog.Logger) *Store {
	if keyPrefix == "" {
		keyPrefix = DefaultKeyPrefix
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		client: client,
		prefix: keyPrefix,
		logger: logger,
		now:    security.SystemClock,
	}
}

// Close closes the client connection.
func (s *Store) Close() {
	s.client.Close()
	s.logger.Info("Valkey storage connection closed")
}

// SetLogger sets a custom logger.
func (s *Store) SetLogger(logger *slog.Logger) {
	s.logger = logger
}

// SetClock replaces the clock used for expiry checks and TTLs.
func (s *Store) SetClock(clock security.Clock) {
	s.now = clock
}

// SetEncryptor enables sealing of linked sessions at rest. Call before the
// store is shared.
func (s *Store) SetEncryptor(enc *security.Encryptor) {
	s.encryptor = enc
	if enc.IsEnabled() {
		s.logger.Info("Session encryption at rest enabled for Valkey storage")
	}
}

func (s *Store) clientKey(id string) string   { return s.prefix + "client:" + id }
func (s *Store) codeKey(code string) string   { return s.prefix + "code:" + code }
func (s *Store) stateKey(state string) string { return s.prefix + "state:" + state }
func (s *Store) tokenKey(token string) string { return s.prefix + "token:" + token }
func (s *Store) refreshKey(tok string) string { return s.prefix + "refresh:" + tok }

func isNilError(err error) bool {
	return valkeygo.IsValkeyNil(err)
}

func validateKey(kind, value string) error {
	if value == "" {
		return fmt.Errorf("invalid %s", kind)
	}
	if len(value) > MaxKeyLength {
		return fmt.Errorf("%s exceeds maximum length", kind)
	}
	return nil
}

// ttlFor returns the server-side TTL for a record expiring at expiresAt.
func (s *Store) ttlFor(expiresAt time.Time) (time.Duration, error) {
	ttl := expiresAt.Sub(s.now()) + expiredRetention
	if ttl <= 0 {
		return 0, fmt.Errorf("record already expired")
	}
	return ttl, nil
}

// setJSON writes v under key. A zero ttl stores the key without expiry.
func (s *Store) setJSON(ctx context.Context, key string, v any, ttl time.Duration) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}

	if ttl > 0 {
		return s.client.Do(ctx, s.client.B().Set().Key(key).Value(string(data)).Ex(ttl).Build()).Error()
	}
	return s.client.Do(ctx, s.client.B().Set().Key(key).Value(string(data)).Build()).Error()
}

// getJSON reads key into v. It returns false when the key does not exist.
func (s *Store) getJSON(ctx context.Context, key string, v any) (bool, error) {
	data, err := s.client.Do(ctx, s.client.B().Get().Key(key).Build()).ToString()
	return s.decode(data, err, v)
}

// getDelJSON atomically reads and deletes key.
func (s *Store) getDelJSON(ctx context.Context, key string, v any) (bool, error) {
	data, err := s.client.Do(ctx, s.client.B().Getdel().Key(key).Build()).ToString()
	return s.decode(data, err, v)
}

func (s *Store) decode(data string, err error, v any) (bool, error) {
	if err != nil {
		if isNilError(err) {
			return false, nil
		}
		return false, err
	}
	if err := json.Unmarshal([]byte(data), v); err != nil {
		return false, fmt.Errorf("failed to unmarshal record: %w", err)
	}
	return true, nil
}

func (s *Store) del(ctx context.Context, key string) error {
	return s.client.Do(ctx, s.client.B().Del().Key(key).Build()).Error()
}

// sealIdentity returns a copy of id whose linked session is sealed.
func (s *Store) sealIdentity(id *storage.Identity) (*storage.Identity, error) {
	if id == nil {
		return nil, nil
	}
	out := *id
	sealed, err := s.encryptor.Seal(id.LinkedSession)
	if err != nil {
		return nil, fmt.Errorf("failed to seal linked session: %w", err)
	}
	out.LinkedSession = sealed
	return &out, nil
}

// openIdentity reverses sealIdentity in place.
func (s *Store) openIdentity(id *storage.Identity) error {
	if id == nil {
		return nil
	}
	opened, err := s.encryptor.Open(id.LinkedSession)
	if err != nil {
		return fmt.Errorf("failed to open linked session: %w", err)
	}
	id.LinkedSession = opened
	return nil
}
