// internal/analysis/auth/summary/scanconfig.go
package summary

import (
	"bytes"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/xkilldash9x/harrier/api/schemas"
)

// snippet mirrors the authentication block a scanner configuration expects.
type snippet struct {
	Authentication authBlock `yaml:"authentication"`
}

type authBlock struct {
	Type        string       `yaml:"type"`
	CookieName  string       `yaml:"cookieName,omitempty"`
	CookieValue string       `yaml:"cookieValue,omitempty"`
	TokenValue  string       `yaml:"tokenValue,omitempty"`
	OAuth2      *oauth2Block `yaml:"oauth2,omitempty"`
	Custom      *customBlock `yaml:"customAuthn,omitempty"`
}

type oauth2Block struct {
	TokenURL     string `yaml:"tokenUrl"`
	ClientID     string `yaml:"clientId"`
	ClientSecret string `yaml:"clientSecret"`
}

type customBlock struct {
	Headers map[string]string `yaml:"headers"`
}

const manualSnippet = "# Authentication type could not be automatically determined\n" +
	"# Please configure manually based on your application\n"

func scanConfig(mechanism schemas.ScanMechanism, a *schemas.AuthAnalysis) schemas.ScanConfig {
	cfg := schemas.ScanConfig{Mechanism: mechanism, Notes: []string{}}

	var block authBlock
	switch mechanism {
	case schemas.ScanMechanismCookie:
		s, ok := firstSession(a, schemas.SessionCookie)
		if !ok {
			cfg.Snippet = "# Cookie-based auth detected but no session cookie was observed\n"
			cfg.Notes = append(cfg.Notes, "Capture a logged-in request to identify the session cookie")
			return cfg
		}
		block = authBlock{Type: "cookieAuthn", CookieName: s.Type.CookieName, CookieValue: "${AUTH_COOKIE}"}
		cfg.Notes = append(cfg.Notes,
			"Set AUTH_COOKIE environment variable with "+s.Type.CookieName,
			"Ensure cookie includes HttpOnly and Secure flags",
		)

	case schemas.ScanMechanismToken:
		block = authBlock{Type: "tokenAuthn", TokenValue: "Bearer ${AUTH_TOKEN}"}
		cfg.Notes = append(cfg.Notes, "Extract token from login response", "Set AUTH_TOKEN environment variable")
		if len(a.JWTTokens) > 0 {
			cfg.Notes = append(cfg.Notes, "Token should be refreshed periodically")
		}

	case schemas.ScanMechanismOAuth2:
		block = authBlock{Type: "oauth2", OAuth2: &oauth2Block{
			TokenURL:     tokenEndpoint(a),
			ClientID:     "${OAUTH_CLIENT_ID}",
			ClientSecret: "${OAUTH_CLIENT_SECRET}",
		}}
		cfg.Notes = append(cfg.Notes, "Configure OAuth 2.0 client credentials", "The scanner will obtain tokens automatically")

	case schemas.ScanMechanismHeader:
		header, env := "Authorization", "BASIC_CREDENTIALS"
		value := "Basic ${BASIC_CREDENTIALS}"
		if s, ok := firstSession(a, schemas.SessionAPIKey); ok {
			header, env = s.Type.HeaderName, "API_KEY"
			value = "${API_KEY}"
		}
		block = authBlock{Type: "customAuthn", Custom: &customBlock{Headers: map[string]string{header: value}}}
		cfg.Notes = append(cfg.Notes, "Set "+env+" environment variable")

	default:
		cfg.Mechanism = schemas.ScanMechanismUnknown
		cfg.Snippet = manualSnippet
		cfg.Notes = append(cfg.Notes, "Manual configuration required", "Refer to the scanner documentation")
		return cfg
	}

	out, err := render(snippet{Authentication: block})
	if err != nil {
		cfg.Snippet = manualSnippet
		return cfg
	}
	cfg.Snippet = out
	return cfg
}

func render(s snippet) (string, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(s); err != nil {
		return "", err
	}
	if err := enc.Close(); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// tokenEndpoint returns the URL of the first observed token exchange, or a
// placeholder when the flow never reached one.
func tokenEndpoint(a *schemas.AuthAnalysis) string {
	for _, f := range a.Flows {
		for _, s := range f.Steps {
			if s.Role == schemas.RoleTokenExchange && !strings.HasSuffix(s.URL, "...") {
				return s.URL
			}
		}
	}
	return "${OAUTH_TOKEN_URL}"
}
