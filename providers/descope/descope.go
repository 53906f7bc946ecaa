package descope

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/giantswarm/descope-store-mcp/providers"
)

const (
	// DefaultBaseURL is Descope's public API host.
	DefaultBaseURL = "https://api.descope.com"

	// DefaultTimeout bounds every outbound call.
	DefaultTimeout = 10 * time.Second

	authorizePath = "/oauth2/v1/authorize"
	tokenPath     = "/oauth2/v1/token"
	userInfoPath  = "/oauth2/v1/userinfo"

	// maxResponseBytes limits how much of a provider response is read.
	maxResponseBytes = 1 << 20
)

// Config holds Descope provider configuration.
type Config struct {
	// ProjectID is the Descope project, used as the OAuth client ID. Required.
	ProjectID string

	// ClientSecret is optional; PKCE is always used.
	ClientSecret string

	// RedirectURL is this server's /oauth/callback URL. Required.
	RedirectURL string

	// BaseURL defaults to DefaultBaseURL.
	BaseURL string

	Scopes []string

	// HTTPClient is optional; the default has DefaultTimeout.
	HTTPClient *http.Client
}

// Provider implements providers.Provider for Descope.
type Provider struct {
	config     *oauth2.Config
	baseURL    string
	projectID  string
	httpClient *http.Client
}

var _ providers.Provider = (*Provider)(nil)

// NewProvider creates a Descope provider.
func NewProvider(cfg *Config) (*Provider, error) {
	if cfg == nil || cfg.ProjectID == "" {
		return nil, fmt.Errorf("project ID is required")
	}
	if cfg.RedirectURL == "" {
		return nil, fmt.Errorf("redirect URL is required")
	}

	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = []string{"openid", "email", "profile"}
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultTimeout}
	}

	return &Provider{
		config: &oauth2.Config{
			ClientID:     cfg.ProjectID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:  baseURL + authorizePath,
				TokenURL: baseURL + tokenPath,
			},
		},
		baseURL:    baseURL,
		projectID:  cfg.ProjectID,
		httpClient: httpClient,
	}, nil
}

// Name returns the provider name
func (p *Provider) Name() string {
	return "descope"
}

// AuthorizationURL returns the Descope authorize URL.
func (p *Provider) AuthorizationURL(state string, opts *providers.AuthOptions) string {
	if opts == nil {
		opts = &providers.AuthOptions{}
	}

	var authOpts []oauth2.AuthCodeOption
	if opts.CodeChallenge != "" {
		authOpts = append(authOpts,
			oauth2.SetAuthURLParam("code_challenge", opts.CodeChallenge),
			oauth2.SetAuthURLParam("code_challenge_method", opts.CodeChallengeMethod),
		)
	}
	if opts.SocialProvider != "" {
		authOpts = append(authOpts, oauth2.SetAuthURLParam("provider", opts.SocialProvider.String()))
	}

	if len(opts.Scopes) > 0 {
		cfg := *p.config
		cfg.Scopes = opts.Scopes
		return cfg.AuthCodeURL(state, authOpts...)
	}
	return p.config.AuthCodeURL(state, authOpts...)
}

// ExchangeCode exchanges the callback code and loads the user's profile.
func (p *Provider) ExchangeCode(ctx context.Context, code string, opts *providers.ExchangeOptions) (*providers.Session, error) {
	if opts == nil {
		opts = &providers.ExchangeOptions{}
	}

	token, err := providers.ExchangeCodeWithPKCE(ctx, p.config, p.httpClient, code, opts.CodeVerifier)
	if err != nil {
		return nil, err
	}
	if token.AccessToken == "" {
		return nil, fmt.Errorf("token response has no access token")
	}

	user, err := p.userInfo(ctx, token.AccessToken)
	if err != nil {
		return nil, err
	}

	return &providers.Session{
		User:      user,
		Reference: token.AccessToken,
		ExpiresAt: token.Expiry,
	}, nil
}

// ValidateSession calls the userinfo endpoint with the session's access
// token. Rejections map to providers.ErrSessionInvalid.
func (p *Provider) ValidateSession(ctx context.Context, session string) (*providers.UserInfo, error) {
	if session == "" {
		return nil, providers.ErrSessionInvalid
	}
	return p.userInfo(ctx, session)
}

// HealthCheck fetches the project's OIDC discovery document.
func (p *Provider) HealthCheck(ctx context.Context) error {
	discoveryURL := p.baseURL + "/" + p.projectID + "/.well-known/openid-configuration"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, discoveryURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create health check request: %w", err)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("descope health check failed: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("descope health check returned status %d", resp.StatusCode)
	}
	return nil
}

type userInfoResponse struct {
	Sub           string `json:"sub"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name"`
	GivenName     string `json:"given_name"`
	FamilyName    string `json:"family_name"`
	Picture       string `json:"picture"`
	Locale        string `json:"locale"`
}

func (p *Provider) userInfo(ctx context.Context, accessToken string) (*providers.UserInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+userInfoPath, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create userinfo request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to get user info: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, providers.ErrSessionInvalid
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("userinfo request failed with status %d", resp.StatusCode)
	}

	var info userInfoResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&info); err != nil {
		return nil, fmt.Errorf("failed to decode user info: %w", err)
	}
	if info.Sub == "" {
		return nil, fmt.Errorf("user info has no subject")
	}

	return &providers.UserInfo{
		ID:            info.Sub,
		Email:         info.Email,
		EmailVerified: info.EmailVerified,
		Name:          info.Name,
		GivenName:     info.GivenName,
		FamilyName:    info.FamilyName,
		Picture:       info.Picture,
		Locale:        info.Locale,
	}, nil
}
