// Package server implements the OAuth 2.1 authorization server core.
//
// It registers clients (RFC 7591), runs the authorization code flow with
// mandatory S256 PKCE through an identity provider, and issues tokens for the
// authorization_code, client_credentials and refresh_token grants. It also
// validates bearer tokens for the HTTP gate, including re-validation of the
// identity provider session linked to a grant.
//
// The package is transport-agnostic: the oauth package adapts it to HTTP.
// Protocol failures are returned as *OAuthError; when the client's redirect
// target is already verified the error carries it so the HTTP layer can
// deliver the error by redirect.
//
// Example usage:
//
//	provider, _ := descope.NewProvider(&descope.Config{
//	    ProjectID:   projectID,
//	    RedirectURL: "https://store-mcp.example.com/oauth/callback",
//	})
//	store := memory.New()
//
//	srv, err := server.New(provider, store, store, store, &server.Config{
//	    Issuer: "https://store-mcp.example.com",
//	}, logger)
//	if err != nil {
//	    log.Fatal(err)
//	}
package server
