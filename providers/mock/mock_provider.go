// Package mock provides a configurable providers.Provider for tests.
package mock

import (
	"context"
	"fmt"
	"net/url"
	"sync"

	"github.com/giantswarm/descope-store-mcp/providers"
)

// MockProvider is a mock implementation of the Provider interface for testing
type MockProvider struct {
	NameFunc             func() string
	AuthorizationURLFunc func(state string, opts *providers.AuthOptions) string
	ExchangeCodeFunc     func(ctx context.Context, code string, opts *providers.ExchangeOptions) (*providers.Session, error)
	ValidateSessionFunc  func(ctx context.Context, session string) (*providers.UserInfo, error)
	HealthCheckFunc      func(ctx context.Context) error

	// CallCounts tracks how many times each method was called
	CallCounts map[string]int

	mu sync.RWMutex
}

var _ providers.Provider = (*MockProvider)(nil)

// DefaultUser is returned by the default ExchangeCode and ValidateSession.
var DefaultUser = providers.UserInfo{
	ID:            "mock-user-123",
	Email:         "mock@example.com",
	EmailVerified: true,
	Name:          "Mock User",
	GivenName:     "Mock",
	FamilyName:    "User",
}

// DefaultSessionReference is the session the default ExchangeCode returns
// and the only one the default ValidateSession accepts.
const DefaultSessionReference = "mock-session"

// NewMockProvider creates a new mock provider with default implementations
func NewMockProvider() *MockProvider {
	return &MockProvider{
		CallCounts: make(map[string]int),
		NameFunc: func() string {
			return "mock"
		},
		AuthorizationURLFunc: func(state string, opts *providers.AuthOptions) string {
			q := url.Values{"state": {state}}
			if opts != nil {
				q.Set("provider", opts.SocialProvider.String())
				q.Set("code_challenge", opts.CodeChallenge)
				q.Set("code_challenge_method", opts.CodeChallengeMethod)
			}
			return "https://idp.example.com/authorize?" + q.Encode()
		},
		ExchangeCodeFunc: func(ctx context.Context, code string, opts *providers.ExchangeOptions) (*providers.Session, error) {
			user := DefaultUser
			return &providers.Session{User: &user, Reference: DefaultSessionReference}, nil
		},
		ValidateSessionFunc: func(ctx context.Context, session string) (*providers.UserInfo, error) {
			if session != DefaultSessionReference {
				return nil, providers.ErrSessionInvalid
			}
			user := DefaultUser
			return &user, nil
		},
		HealthCheckFunc: func(ctx context.Context) error {
			return nil
		},
	}
}

// record increments the call counter for method. The lock is released
// before the configured function runs so it may call back into the mock.
func (m *MockProvider) record(method string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.CallCounts == nil {
		m.CallCounts = make(map[string]int)
	}
	m.CallCounts[method]++
}

// Name returns the provider name
func (m *MockProvider) Name() string {
	m.record("Name")
	m.mu.RLock()
	fn := m.NameFunc
	m.mu.RUnlock()
	if fn == nil {
		return "mock"
	}
	return fn()
}

// AuthorizationURL returns the configured login URL.
func (m *MockProvider) AuthorizationURL(state string, opts *providers.AuthOptions) string {
	m.record("AuthorizationURL")
	m.mu.RLock()
	fn := m.AuthorizationURLFunc
	m.mu.RUnlock()
	if fn == nil {
		return "https://idp.example.com/authorize?state=" + url.QueryEscape(state)
	}
	return fn(state, opts)
}

// ExchangeCode calls ExchangeCodeFunc.
func (m *MockProvider) ExchangeCode(ctx context.Context, code string, opts *providers.ExchangeOptions) (*providers.Session, error) {
	m.record("ExchangeCode")
	m.mu.RLock()
	fn := m.ExchangeCodeFunc
	m.mu.RUnlock()
	if fn == nil {
		return nil, fmt.Errorf("ExchangeCodeFunc not configured")
	}
	return fn(ctx, code, opts)
}

// ValidateSession calls ValidateSessionFunc.
func (m *MockProvider) ValidateSession(ctx context.Context, session string) (*providers.UserInfo, error) {
	m.record("ValidateSession")
	m.mu.RLock()
	fn := m.ValidateSessionFunc
	m.mu.RUnlock()
	if fn == nil {
		return nil, fmt.Errorf("ValidateSessionFunc not configured")
	}
	return fn(ctx, session)
}

// HealthCheck calls HealthCheckFunc.
func (m *MockProvider) HealthCheck(ctx context.Context) error {
	m.record("HealthCheck")
	m.mu.RLock()
	fn := m.HealthCheckFunc
	m.mu.RUnlock()
	if fn == nil {
		return nil
	}
	return fn(ctx)
}

// GetCallCount returns the number of calls to method.
func (m *MockProvider) GetCallCount(method string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.CallCounts[method]
}

// ResetCallCounts clears all call counters.
func (m *MockProvider) ResetCallCounts() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CallCounts = make(map[string]int)
}
