// internal/analysis/auth/summary/summary.go

// Package summary turns an AuthAnalysis into the digest shown to users: the
// primary authentication method, how sessions are carried, the key endpoints,
// a scanner configuration snippet and a deduplicated view of the findings.
package summary

import (
	"fmt"
	"net/url"

	"github.com/xkilldash9x/harrier/api/schemas"
)

const maxKeyEndpoints = 10

// Summarize builds the summary. It never fails; an analysis with nothing in
// it yields a "None Detected" primary method.
func Summarize(a *schemas.AuthAnalysis) *schemas.AuthSummary {
	primary, mechanism := primaryMethod(a)
	return &schemas.AuthSummary{
		PrimaryMethod:    primary,
		SessionMechanism: sessionMechanism(a),
		KeyEndpoints:     keyEndpoints(a),
		ScanConfig:       scanConfig(mechanism, a),
		AdditionalInfo:   additionalInfo(a),
	}
}

// primaryMethod walks the signals in priority order and returns the first
// that applies, along with the scanner mechanism it implies.
func primaryMethod(a *schemas.AuthAnalysis) (schemas.PrimaryMethod, schemas.ScanMechanism) {
	for _, f := range a.Flows {
		if !f.Kind.IsOAuth2() {
			continue
		}
		name := f.DisplayName()
		if f.PKCE {
			name = "OAuth 2.0 Authorization Code with PKCE"
		}
		return schemas.PrimaryMethod{
			MethodType:  name,
			Description: "OAuth 2.0 flow detected with token-based authentication",
			Confidence:  schemas.ConfidenceHigh,
		}, schemas.ScanMechanismOAuth2
	}

	if len(a.SAMLFlows) > 0 {
		mechanism := schemas.ScanMechanismUnknown
		if _, ok := firstSession(a, schemas.SessionCookie); ok {
			mechanism = schemas.ScanMechanismCookie
		}
		return schemas.PrimaryMethod{
			MethodType:  "SAML SSO",
			Description: fmt.Sprintf("%d SAML flow(s) detected", len(a.SAMLFlows)),
			Confidence:  schemas.ConfidenceHigh,
		}, mechanism
	}

	if len(a.JWTTokens) > 0 {
		alg := a.JWTTokens[0].Header.Alg
		if alg == "" {
			alg = "unknown"
		}
		return schemas.PrimaryMethod{
			MethodType:  "JWT Bearer Token",
			Description: fmt.Sprintf("JWT tokens in Authorization header (algorithm: %s)", alg),
			Confidence:  schemas.ConfidenceHigh,
		}, schemas.ScanMechanismToken
	}

	if len(a.Sessions) > 0 {
		s := a.Sessions[0]
		switch s.Type.Kind {
		case schemas.SessionCookie:
			return schemas.PrimaryMethod{
				MethodType:  "Cookie-Based Session",
				Description: "Session cookie: " + s.Type.CookieName,
				Confidence:  schemas.ConfidenceHigh,
			}, schemas.ScanMechanismCookie
		case schemas.SessionBearerToken:
			name := "Bearer Token"
			if s.Type.IsJWT {
				name = "JWT Bearer Token"
			}
			return schemas.PrimaryMethod{
				MethodType:  name,
				Description: "Token-based authentication in Authorization header",
				Confidence:  schemas.ConfidenceHigh,
			}, schemas.ScanMechanismToken
		case schemas.SessionAPIKey:
			return schemas.PrimaryMethod{
				MethodType:  "API Key",
				Description: fmt.Sprintf("API key in %s header", s.Type.HeaderName),
				Confidence:  schemas.ConfidenceHigh,
			}, schemas.ScanMechanismHeader
		}
	}

	if hasFlow(a, schemas.FlowFormBased) {
		return schemas.PrimaryMethod{
			MethodType:  "Form-Based Login",
			Description: "Traditional form-based authentication flow detected",
			Confidence:  schemas.ConfidenceMedium,
		}, schemas.ScanMechanismCookie
	}
	if hasFlow(a, schemas.FlowJSONAPI) {
		return schemas.PrimaryMethod{
			MethodType:  "JSON API Authentication",
			Description: "JSON-based authentication endpoint detected",
			Confidence:  schemas.ConfidenceMedium,
		}, schemas.ScanMechanismToken
	}
	if a.HasMethod(schemas.MethodBasic) {
		return schemas.PrimaryMethod{
			MethodType:  "HTTP Basic Authentication",
			Description: "Username and password in Authorization header",
			Confidence:  schemas.ConfidenceHigh,
		}, schemas.ScanMechanismHeader
	}
	if len(a.Methods) > 0 {
		return schemas.PrimaryMethod{
			MethodType:  "Unknown Authentication",
			Description: fmt.Sprintf("%d authentication method(s) detected but type unclear", len(a.Methods)),
			Confidence:  schemas.ConfidenceLow,
		}, schemas.ScanMechanismUnknown
	}
	return schemas.PrimaryMethod{
		MethodType:  "None Detected",
		Description: "No authentication detected",
		Confidence:  schemas.ConfidenceLow,
	}, schemas.ScanMechanismUnknown
}

func sessionMechanism(a *schemas.AuthAnalysis) schemas.SessionMechanism {
	if len(a.JWTTokens) > 0 {
		var lifetime int64
		c := a.JWTTokens[0].Claims
		if c.Exp != nil && c.Iat != nil {
			lifetime = *c.Exp - *c.Iat
		}
		return schemas.SessionMechanism{
			MechanismType: "Stateless (JWT)",
			Details:       fmt.Sprintf("JWT tokens with %d-second lifetime", lifetime),
		}
	}
	if s, ok := firstSession(a, schemas.SessionCookie); ok {
		return schemas.SessionMechanism{
			MechanismType: "Stateful (Server-Side Sessions)",
			Details:       fmt.Sprintf("Session cookie: %s (%d requests)", s.Type.CookieName, s.RequestCount),
		}
	}
	if _, ok := firstSession(a, schemas.SessionBearerToken); ok {
		return schemas.SessionMechanism{
			MechanismType: "Token-Based",
			Details:       "Bearer tokens in Authorization header",
		}
	}
	if _, ok := firstSession(a, schemas.SessionAPIKey); ok {
		return schemas.SessionMechanism{
			MechanismType: "API Key",
			Details:       "Static API key authentication",
		}
	}
	return schemas.SessionMechanism{
		MechanismType: "Unknown",
		Details:       "Could not determine session mechanism",
	}
}

// keyEndpoints lists the distinct paths touched by flows, OAuth and form
// flows first, then SAML.
func keyEndpoints(a *schemas.AuthAnalysis) []schemas.EndpointInfo {
	out := make([]schemas.EndpointInfo, 0)
	seen := make(map[string]struct{})
	add := func(method, rawURL, purpose string) {
		if len(out) >= maxKeyEndpoints {
			return
		}
		path := endpointPath(rawURL)
		if path == "" {
			return
		}
		if _, dup := seen[path]; dup {
			return
		}
		seen[path] = struct{}{}
		out = append(out, schemas.EndpointInfo{Method: method, Path: path, Purpose: purpose})
	}

	for _, f := range a.Flows {
		for _, s := range f.Steps {
			add(s.Method, s.URL, s.Description)
		}
	}
	for _, f := range a.SAMLFlows {
		for _, s := range f.Steps {
			add(s.Method, s.URL, s.Description)
		}
	}
	return out
}

// endpointPath reduces an absolute URL to its path, marking a query with
// "?...". Relative or unparsable URLs yield "".
func endpointPath(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return ""
	}
	path := u.Path
	if path == "" {
		path = "/"
	}
	if u.RawQuery != "" {
		path += "?..."
	}
	return path
}

func additionalInfo(a *schemas.AuthAnalysis) []string {
	out := make([]string, 0)
	logins, logouts := 0, 0
	for _, ev := range a.Events {
		switch ev.Kind {
		case schemas.EventLoginSuccess:
			logins++
		case schemas.EventLogout:
			logouts++
		}
	}
	if logins > 0 {
		out = append(out, fmt.Sprintf("%d login event(s) detected", logins))
	}
	if logouts > 0 {
		out = append(out, fmt.Sprintf("%d logout event(s) detected", logouts))
	}
	if patterns := a.Advanced.RefreshPatterns; len(patterns) > 0 {
		total := 0
		for _, p := range patterns {
			total += p.RefreshCount
		}
		out = append(out, fmt.Sprintf("Token refresh pattern detected (%d refresh operations)", total))
	}
	return out
}

func firstSession(a *schemas.AuthAnalysis, kind schemas.SessionKind) (schemas.AuthSession, bool) {
	for _, s := range a.Sessions {
		if s.Type.Kind == kind {
			return s, true
		}
	}
	return schemas.AuthSession{}, false
}

func hasFlow(a *schemas.AuthAnalysis, kind schemas.FlowKind) bool {
	for _, f := range a.Flows {
		if f.Kind == kind {
			return true
		}
	}
	return false
}
