// Package storage defines the persistence contracts of the authorization
// server and the records that flow through them:
//   - ClientStore: dynamically registered clients
//   - FlowStore: authorization codes and identity-provider state, both
//     consumed at most once
//   - TokenStore: access and refresh tokens with lazy expiry
//
// Implementations live in subpackages:
//   - storage/memory: in-process store, the default
//   - storage/valkey: Valkey/Redis-compatible external store
//
// Expiry is lazy in every implementation: an expired record is reported with
// its *Expired sentinel and removed by the lookup that observed it.
package storage
