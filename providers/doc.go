// Package providers defines the identity provider interface used by the
// authorization server and the closed set of social logins it can offer.
//
// Implementations:
//   - providers/descope: Descope OIDC endpoints driven through golang.org/x/oauth2
//   - providers/mock: configurable provider for tests
//
// A login starts with AuthorizationURL, carrying the chosen SocialProvider
// and a PKCE challenge. The callback calls ExchangeCode, which returns the
// user's identity and a session Reference. That reference is stored on the
// issued grant and re-checked with ValidateSession on every protected
// request, so a session revoked at the provider stops working immediately.
package providers
