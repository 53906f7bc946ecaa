package providers

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownSocialProvider is returned for names outside the supported set.
var ErrUnknownSocialProvider = errors.New("unknown social provider")

// SocialProvider identifies an upstream social login.
type SocialProvider string

const (
	SocialGoogle    SocialProvider = "google"
	SocialGitHub    SocialProvider = "github"
	SocialMicrosoft SocialProvider = "microsoft"
	SocialApple     SocialProvider = "apple"
	SocialFacebook  SocialProvider = "facebook"
	SocialGitLab    SocialProvider = "gitlab"
)

// SocialCapability describes how a social login is offered and what it
// guarantees about the identity it returns.
type SocialCapability struct {
	Provider    SocialProvider
	DisplayName string

	// EmailAlwaysShared is false for providers that let users hide or
	// relay their address, in which case orders need an explicit email.
	EmailAlwaysShared bool
}

// socialCapabilities is ordered as shown on the login page.
var socialCapabilities = []SocialCapability{
	{Provider: SocialGoogle, DisplayName: "Google", EmailAlwaysShared: true},
	{Provider: SocialGitHub, DisplayName: "GitHub", EmailAlwaysShared: false},
	{Provider: SocialMicrosoft, DisplayName: "Microsoft", EmailAlwaysShared: true},
	{Provider: SocialApple, DisplayName: "Apple", EmailAlwaysShared: false},
	{Provider: SocialFacebook, DisplayName: "Facebook", EmailAlwaysShared: false},
	{Provider: SocialGitLab, DisplayName: "GitLab", EmailAlwaysShared: true},
}

// SocialCapabilities returns the supported social logins in display order.
func SocialCapabilities() []SocialCapability {
	out := make([]SocialCapability, len(socialCapabilities))
	copy(out, socialCapabilities)
	return out
}

// ParseSocialProvider normalizes name and checks it against the supported
// set.
func ParseSocialProvider(name string) (SocialProvider, error) {
	p := SocialProvider(strings.ToLower(strings.TrimSpace(name)))
	if _, ok := p.Capability(); !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownSocialProvider, name)
	}
	return p, nil
}

// Capability returns the capability entry for p.
func (p SocialProvider) Capability() (SocialCapability, bool) {
	for _, c := range socialCapabilities {
		if c.Provider == p {
			return c, true
		}
	}
	return SocialCapability{}, false
}

// String implements fmt.Stringer.
func (p SocialProvider) String() string {
	return string(p)
}
