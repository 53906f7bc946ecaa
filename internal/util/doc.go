// Package util provides small helpers shared by the OAuth server, the HTTP
// adapter and the storage backends.
//
// Key utilities:
//   - SafeTruncate: shortens tokens and codes before they reach a log line
//   - ParseScope / FormatScope: convert between the space-delimited wire form
//     and a deduplicated slice
//   - ScopeSubset / IntersectScopes: scope policy checks
package util
