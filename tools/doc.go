// Package tools registers the store tools on an MCP server:
// search_products, get_product, compare_products and create_order.
//
// Tools forward to the store API and render Markdown. Upstream failures
// become a generic tool error and are logged; the caller never sees the
// upstream detail. When scopes are enforced, the bearer token placed on the
// context by the OAuth gate must carry products:read for the read tools and
// orders:write for create_order.
package tools
