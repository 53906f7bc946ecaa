package oauth

import (
	"html/template"
	"net/http"
	"net/url"

	"github.com/giantswarm/descope-store-mcp/providers"
	"github.com/giantswarm/descope-store-mcp/security"
)

const loginPageTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Sign in to the store</title>
<style>
body { font-family: system-ui, sans-serif; background: #f5f5f7; display: flex; justify-content: center; padding-top: 10vh; margin: 0; }
main { background: #fff; border-radius: 12px; padding: 2rem 2.5rem; box-shadow: 0 2px 12px rgba(0,0,0,.08); min-width: 280px; }
h1 { font-size: 1.25rem; margin: 0 0 1.5rem; }
a { display: block; padding: .75rem 1rem; margin-bottom: .5rem; border: 1px solid #d0d0d5; border-radius: 8px; color: #1d1d1f; text-decoration: none; }
a:hover { background: #f0f0f3; }
a small { display: block; color: #6e6e73; font-size: .75rem; margin-top: .2rem; }
</style>
</head>
<body>
<main>
<h1>Sign in to continue</h1>
{{range .Providers}}<a href="{{.URL}}">Continue with {{.DisplayName}}{{if .EmailNeedsConsent}}<small>Your email is shared only if you allow it.</small>{{end}}</a>
{{end}}
</main>
</body>
</html>
`

var loginPageTmpl = template.Must(template.New("login").Parse(loginPageTemplate))

type loginProvider struct {
	DisplayName string
	URL         string

	// EmailNeedsConsent marks providers that may withhold the email
	// address, which create_order falls back to.
	EmailNeedsConsent bool
}

type loginPageData struct {
	Providers []loginProvider
}

// ServeLogin renders the provider choice for an authorization request. It is
// reached directly or by ServeAuthorization when no provider was chosen.
func (h *Handler) ServeLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	h.renderLoginPage(w, r.URL.Query())
}

// renderLoginPage lists every social provider, each linking back to the
// authorization endpoint with the original parameters plus provider=.
func (h *Handler) renderLoginPage(w http.ResponseWriter, authParams url.Values) {
	data := loginPageData{}
	for _, c := range providers.SocialCapabilities() {
		params := url.Values{}
		for k, v := range authParams {
			params[k] = v
		}
		params.Set("provider", string(c.Provider))

		data.Providers = append(data.Providers, loginProvider{
			DisplayName:       c.DisplayName,
			URL:               "/oauth/authorize?" + params.Encode(),
			EmailNeedsConsent: !c.EmailAlwaysShared,
		})
	}

	security.SetPageSecurityHeaders(w, h.server.Config.Issuer)
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := loginPageTmpl.Execute(w, data); err != nil {
		h.logger.Error("Failed to render login page", "error", err)
	}
}
