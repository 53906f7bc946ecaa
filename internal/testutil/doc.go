// Package testutil holds test helpers: a controllable clock and PKCE
// fixtures. It is imported only from _test.go files.
package testutil
