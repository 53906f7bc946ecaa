// Package config loads the server configuration.
//
// Values are resolved in order: built-in defaults, the YAML file given with
// --config (a missing file means defaults), environment variables, then
// command-line flags applied by the caller. Validate runs last.
package config
