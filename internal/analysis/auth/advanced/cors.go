// internal/analysis/auth/advanced/cors.go
package advanced

import (
	"strings"

	"github.com/xkilldash9x/harrier/api/schemas"
)

func corsIssues(entries []schemas.Entry) []schemas.CORSIssue {
	out := make([]schemas.CORSIssue, 0)
	for i := range entries {
		e := &entries[i]
		allowOrigin, hasAllowOrigin := e.Response.Header("access-control-allow-origin")
		credentials, _ := e.Response.Header("access-control-allow-credentials")
		requestOrigin, isCORS := e.Request.Header("origin")

		if hasAllowOrigin {
			switch {
			case allowOrigin == "*" && strings.EqualFold(strings.TrimSpace(credentials), "true"):
				out = append(out, schemas.CORSIssue{
					Severity:      schemas.SeverityCritical,
					Kind:          schemas.CORSWildcardWithCredentials,
					Message:       "CORS wildcard (*) used with credentials (security risk)",
					AllowOrigin:   allowOrigin,
					RequestOrigin: requestOrigin,
					EntryIndex:    i,
				})
			case strings.HasPrefix(allowOrigin, "http://"):
				out = append(out, schemas.CORSIssue{
					Severity:      schemas.SeverityWarning,
					Kind:          schemas.CORSInsecureOrigin,
					Message:       "CORS allows insecure HTTP origin",
					AllowOrigin:   allowOrigin,
					RequestOrigin: requestOrigin,
					EntryIndex:    i,
				})
			}
			continue
		}

		if isCORS {
			out = append(out, schemas.CORSIssue{
				Severity:      schemas.SeverityInfo,
				Kind:          schemas.CORSMissingHeaders,
				Message:       "Cross-origin request without CORS headers",
				RequestOrigin: requestOrigin,
				EntryIndex:    i,
			})
		}
	}
	return out
}
