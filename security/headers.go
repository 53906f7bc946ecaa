package security

import (
	"net/http"
	"net/url"
)

const (
	// apiContentSecurityPolicy forbids every resource; JSON endpoints load nothing.
	apiContentSecurityPolicy = "default-src 'none'; frame-ancestors 'none'"

	// pageContentSecurityPolicy is used for the login page, which carries an
	// inline stylesheet and nothing else.
	pageContentSecurityPolicy = "default-src 'none'; style-src 'unsafe-inline'; frame-ancestors 'none'; form-action 'self'"
)

// SetSecurityHeaders sets security headers on OAuth and API responses.
func SetSecurityHeaders(w http.ResponseWriter, serverURL string) {
	setCommonHeaders(w, serverURL)
	w.Header().Set("Content-Security-Policy", apiContentSecurityPolicy)
}

// SetPageSecurityHeaders sets security headers on server-rendered HTML pages.
func SetPageSecurityHeaders(w http.ResponseWriter, serverURL string) {
	setCommonHeaders(w, serverURL)
	w.Header().Set("Content-Security-Policy", pageContentSecurityPolicy)
}

func setCommonHeaders(w http.ResponseWriter, serverURL string) {
	h := w.Header()
	h.Set("X-Frame-Options", "DENY")
	h.Set("X-Content-Type-Options", "nosniff")
	h.Set("Referrer-Policy", "no-referrer")

	// HSTS only makes sense when we are actually served over TLS.
	if parsed, err := url.Parse(serverURL); err == nil && parsed.Scheme == "https" {
		h.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
	}

	// Token responses and error pages must never be cached.
	h.Set("Cache-Control", "no-store")
	h.Set("Pragma", "no-cache")
}
