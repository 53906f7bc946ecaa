// Package descope implements providers.Provider against Descope's OIDC
// endpoints.
//
// The project ID doubles as the OAuth client ID. Social login is selected
// with Descope's "provider" authorization parameter, so one redirect
// handler serves every SocialProvider. The provider's access token becomes
// the linked session of the grants issued by this server and is validated
// against the userinfo endpoint on each request.
package descope
