// Package catalog is a client for the external store API that backs the MCP
// tools: product listing, product lookup and order creation.
//
// Every call is bounded by the client timeout and makes exactly one request;
// failures are returned to the caller, never retried.
package catalog
