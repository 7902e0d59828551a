package api

import (
	_ "embed"
	"net/http"
	"strings"

	"workflowguard/backend/internal/auth"
)

//go:embed openapi.yaml
var openAPISpec string

// SpecHandler serves the OpenAPI YAML spec with any runtime placeholders
// replaced. The embedded file contains {oktaIssuer} so clients don't have
// to know the actual tenant or issuer URL; we substitute it here before returning.
func SpecHandler(oktaIssuer string) http.HandlerFunc {
	spec := strings.ReplaceAll(openAPISpec, "{oktaIssuer}", oktaIssuer)
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/yaml")
		_, _ = w.Write([]byte(spec))
	}
}

// SwaggerHandler returns an HTTP handler that serves the Swagger UI. The UI
// is configured with OAuth2 PKCE settings so users can "Authorize" against
// the same Okta tenant used by the application.
func SwaggerHandler(oktaDomain, clientID string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		scheme := "http"
		if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
			scheme = "https"
		}
		oauth2Redirect := scheme + "://" + r.Host + "/docs/oauth2-redirect.html"

		html := strings.NewReplacer(
			"${SPEC_URL}", "/openapi.yaml",
			"${OAUTH2_REDIRECT}", oauth2Redirect,
			"${OKTA_DOMAIN}", oktaDomain,
			"${CLIENT_ID}", clientID,
			"${SCOPES}", strings.Join(auth.AllScopes, " "),
		).Replace(swaggerHTML)
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(html))
	}
}

// OAuthRedirectHandler serves the OAuth2 redirect page used by Swagger UI
func OAuthRedirectHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html")
	_, _ = w.Write([]byte(oauthRedirectHTML))
}

const swaggerHTML = `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8" />
  <title>WorkflowGuard API</title>
  <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist/swagger-ui.css" />
</head>
<body>
  <div id="swagger-ui"></div>
  <script src="https://unpkg.com/swagger-ui-dist/swagger-ui-bundle.js"></script>
  <script>
  window.onload = function() {
    const ui = SwaggerUIBundle({
      url: "${SPEC_URL}",
      dom_id: '#swagger-ui',
      presets: [SwaggerUIBundle.presets.apis],
      layout: "BaseLayout",
      oauth2RedirectUrl: "${OAUTH2_REDIRECT}",
    });
    window.ui = ui;

    // PKCE is used, so no client secret is configured.
    ui.initOAuth({
      clientId: "${CLIENT_ID}",
      scopes: "${SCOPES}",
      usePkceWithAuthorizationCodeGrant: true,
      additionalQueryStringParams: { issuer: "${OKTA_DOMAIN}" },
    });
  }
  </script>
</body>
</html>`

const oauthRedirectHTML = `<!DOCTYPE html>
<html lang="en">
<head><meta charset="UTF-8"/><title>OAuth2 Redirect</title></head>
<body>
<script>
if (window.opener && window.opener.swaggerUIRedirectCallback) {
  window.opener.swaggerUIRedirectCallback(window.location.href);
}
</script>
</body>
</html>`
