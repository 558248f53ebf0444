// internal/analysis/auth/advanced/exposure.go
package advanced

import (
	"net/url"
	"strings"

	"github.com/xkilldash9x/harrier/api/schemas"
	"github.com/xkilldash9x/harrier/internal/analysis/core"
)

var (
	tokenParamMarkers     = []string{"token=", "access_token=", "auth_token=", "bearer%20"}
	identityParamMarkers  = []string{"username=", "user=", "email="}
	sensitiveParamMarkers = []string{"api_key=", "apikey=", "secret=", "key="}
)

func tokenExposures(entries []schemas.Entry) []schemas.TokenExposure {
	out := make([]schemas.TokenExposure, 0)
	for i := range entries {
		req := &entries[i].Request
		location := core.Truncate(req.URL, maxLocationLength)

		if hasTokenInURL(req.URL) {
			kind, msg := schemas.ExposureTokenInURL, "Authentication token found in URL (will be logged)"
			if hasTokenQueryParam(req.URL) {
				kind, msg = schemas.ExposureTokenInQueryParam, "Authentication token passed as query parameter (will be logged)"
			}
			out = append(out, exposure(schemas.SeverityCritical, kind, msg, location, i))
		}
		if hasCredentialsInURL(req.URL) {
			out = append(out, exposure(schemas.SeverityCritical, schemas.ExposureCredentialsInURL,
				"Credentials (username/password) found in URL", location, i))
		}
		if core.ContainsAny(strings.ToLower(req.URL), sensitiveParamMarkers...) {
			out = append(out, exposure(schemas.SeverityWarning, schemas.ExposureSensitiveDataInURL,
				"Potentially sensitive data in URL", location, i))
		}
		for _, h := range req.Headers {
			if strings.EqualFold(h.Name, "referer") && hasTokenInURL(h.Value) {
				out = append(out, exposure(schemas.SeverityWarning, schemas.ExposureTokenInReferer,
					"Token leaked in Referer header", core.Truncate(h.Value, maxLocationLength), i))
			}
		}
	}
	return out
}

func exposure(sev schemas.Severity, kind schemas.ExposureKind, msg, location string, idx int) schemas.TokenExposure {
	return schemas.TokenExposure{Severity: sev, Kind: kind, Message: msg, Location: location, EntryIndex: idx}
}

// hasTokenInURL matches token-looking parameters or a JWT header prefix.
func hasTokenInURL(u string) bool {
	return core.ContainsAny(strings.ToLower(u), tokenParamMarkers...) || strings.Contains(u, "eyJ")
}

// hasTokenQueryParam reports whether the token sits in a named query
// parameter rather than in the path or fragment.
func hasTokenQueryParam(raw string) bool {
	parsed, err := url.Parse(raw)
	if err != nil {
		return false
	}
	for name := range parsed.Query() {
		switch strings.ToLower(name) {
		case "token", "access_token", "auth_token", "id_token":
			return true
		}
	}
	return false
}

func hasCredentialsInURL(u string) bool {
	lower := strings.ToLower(u)
	return core.ContainsAny(lower, identityParamMarkers...) && strings.Contains(lower, "password=")
}
