package server

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

// validateHTTPSEnforcement rejects a plain-HTTP issuer unless it is
// localhost or AllowInsecureHTTP is set.
func (s *Server) validateHTTPSEnforcement() error {
	if s.Config.Issuer == "" {
		return fmt.Errorf("issuer is required")
	}

	issuerURL, err := url.Parse(s.Config.Issuer)
	if err != nil {
		return fmt.Errorf("invalid issuer URL: %w", err)
	}

	switch issuerURL.Scheme {
	case "https":
		return nil
	case "http":
		hostname := issuerURL.Hostname()
		if isLocalhostHostname(hostname) {
			if !s.Config.AllowInsecureHTTP {
				s.Logger.Warn("Running OAuth over HTTP on localhost",
					"issuer", s.Config.Issuer,
					"to_suppress", "Set AllowInsecureHTTP=true in Config")
			}
			return nil
		}
		if !s.Config.AllowInsecureHTTP {
			return fmt.Errorf("issuer must use HTTPS (got http://%s); set AllowInsecureHTTP=true to override", hostname)
		}
		s.Logger.Error("Running OAuth server over plain HTTP",
			"issuer", s.Config.Issuer,
			"hostname", hostname,
			"risk", "Tokens and client secrets exposed to network sniffing")
		return nil
	default:
		return fmt.Errorf("invalid issuer URL scheme: %s (must be http or https)", issuerURL.Scheme)
	}
}

// isLocalhostHostname reports whether hostname is localhost or a loopback IP.
func isLocalhostHostname(hostname string) bool {
	if hostname == "localhost" {
		return true
	}
	hostname = strings.TrimSuffix(strings.TrimPrefix(hostname, "["), "]")
	if ip := net.ParseIP(hostname); ip != nil {
		return ip.IsLoopback()
	}
	return false
}

// isAllowedRedirectURI accepts absolute https URIs and http URIs on
// localhost (any port). Fragments are never allowed (RFC 6749 3.1.2).
func isAllowedRedirectURI(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" || u.Fragment != "" || u.User != nil {
		return false
	}
	switch u.Scheme {
	case "https":
		return true
	case "http":
		return u.Hostname() == "localhost"
	default:
		return false
	}
}

// filterRedirectURIs keeps the allowed URIs in order, without duplicates.
func filterRedirectURIs(uris []string) []string {
	var out []string
	seen := make(map[string]bool, len(uris))
	for _, uri := range uris {
		if seen[uri] || !isAllowedRedirectURI(uri) {
			continue
		}
		seen[uri] = true
		out = append(out, uri)
	}
	return out
}
