// Package oauth is the HTTP face of the authorization server.
//
// Handler serves the discovery documents (RFC 8414, RFC 9728), dynamic
// client registration (RFC 7591), the authorization, callback and token
// endpoints, and the public login page. ValidateToken wraps the MCP endpoint
// and admits only requests carrying a live bearer token; the resolved token
// and user are available downstream through TokenInfoFromContext and
// UserInfoFromContext.
//
// Protocol decisions live in package server. This package only translates
// between HTTP and server calls, and writes errors either as JSON bodies or
// as redirects back to the client, as the returned *server.OAuthError
// dictates.
package oauth
