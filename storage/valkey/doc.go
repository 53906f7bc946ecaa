// Package valkey provides a Valkey (Redis-compatible) implementation of
// storage.Store for deployments that keep OAuth records outside the process.
//
// # Key Schema
//
// Every key starts with a configurable prefix (default "store-mcp:"):
//
//	{prefix}client:{clientID}   -> JSON(storage.Client), no TTL
//	{prefix}code:{code}         -> JSON(storage.AuthorizationCode)
//	{prefix}state:{state}       -> JSON(storage.OAuthState)
//	{prefix}token:{token}       -> JSON(storage.AccessToken)
//	{prefix}refresh:{token}     -> JSON(storage.RefreshToken)
//
// # Expiry
//
// Keys carry a server-side TTL of the record lifetime plus a short retention
// window. Within that window a lookup still finds the record, sees that its
// ExpiresAt has passed, deletes it and reports the *Expired sentinel, so
// callers observe the same lazy-expiry contract as the in-memory store.
//
// # Atomic consume
//
// ConsumeAuthCode and ConsumeOAuthState use GETDEL, a single server-side
// command, so one code or state is returned to at most one caller even
// across server instances.
//
// # Encryption
//
// With SetEncryptor, identity-provider session references are sealed with
// AES-256-GCM before they are written.
package valkey
