// Package security holds the HTTP hardening helpers used by the OAuth
// endpoints and the MCP gate: response security headers, request IDs,
// client IP extraction, expiry checks against an injectable clock, and
// AES-256-GCM sealing of identity-provider session references stored
// outside the process.
package security
