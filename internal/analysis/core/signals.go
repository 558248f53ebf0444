// internal/analysis/core/signals.go
package core

import (
	"strings"
	"unicode/utf8"

	"github.com/xkilldash9x/harrier/api/schemas"
)

// MaxURLLength bounds every URL copied into a flow step, event or issue.
const MaxURLLength = 80

// ContainsAny reports whether s contains at least one of the needles.
func ContainsAny(s string, needles ...string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}

// Truncate shortens s to at most max bytes, replacing the tail with "...".
// The cut never splits a UTF-8 sequence.
func Truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	if max <= 3 {
		return strings.Repeat(".", max)
	}
	cut := max - 3
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}

// TruncateURL applies the standard URL display length.
func TruncateURL(u string) string {
	return Truncate(u, MaxURLLength)
}

// Prefix returns at most n leading bytes of s.
func Prefix(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// IsInsecureURL reports whether u uses plain HTTP.
func IsInsecureURL(u string) bool {
	return strings.HasPrefix(strings.ToLower(u), "http://")
}

// IsSecureURL reports whether u uses HTTPS.
func IsSecureURL(u string) bool {
	return strings.HasPrefix(strings.ToLower(u), "https://")
}

// -- Tokens --

// BearerToken returns the credential of an "Authorization: Bearer" header.
func BearerToken(req *schemas.Request) (string, bool) {
	v, ok := req.Header("authorization")
	if !ok || !strings.HasPrefix(v, "Bearer ") {
		return "", false
	}
	return strings.TrimSpace(v[len("Bearer "):]), true
}

// HasBearer reports whether the request carries a Bearer credential.
func HasBearer(req *schemas.Request) bool {
	_, ok := BearerToken(req)
	return ok
}

// SplitJWT splits a candidate into its three segments. Any segment may be
// empty; only the count is checked.
func SplitJWT(token string) (header, payload, signature string, ok bool) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return "", "", "", false
	}
	return parts[0], parts[1], parts[2], true
}

// IsJWTShape reports whether token has exactly three non-empty dot separated
// segments.
func IsJWTShape(token string) bool {
	h, p, s, ok := SplitJWT(token)
	return ok && h != "" && p != "" && s != ""
}

// -- Cookies and headers --

// IsAuthCookieName is the base "looks like an auth cookie" predicate.
func IsAuthCookieName(name string) bool {
	lower := strings.ToLower(name)
	return lower == "sid" || ContainsAny(lower, "session", "auth", "token", "jwt")
}

// IsSessionCookieName extends IsAuthCookieName with well known framework
// session cookies and the cookie name prefixes reserved for secure cookies.
func IsSessionCookieName(name string) bool {
	if IsAuthCookieName(name) {
		return true
	}
	lower := strings.ToLower(name)
	switch lower {
	case "connect.sid", "jsessionid", "phpsessid":
		return true
	}
	return strings.HasPrefix(lower, "__host-") || strings.HasPrefix(lower, "__secure-")
}

// IsSessionSetCookieName is the narrower predicate used when looking for a
// session being established by a response.
func IsSessionSetCookieName(name string) bool {
	return ContainsAny(strings.ToLower(name), "session", "auth", "token")
}

// IsAPIKeyHeader matches the header names that classify a request as API key
// authenticated.
func IsAPIKeyHeader(name string) bool {
	switch strings.ToLower(name) {
	case "x-api-key", "api-key", "apikey":
		return true
	}
	return false
}

// IsAPIKeySessionHeader matches the header names whose values identify an API
// key session.
func IsAPIKeySessionHeader(name string) bool {
	if IsAPIKeyHeader(name) {
		return true
	}
	switch strings.ToLower(name) {
	case "x-api-token", "api-token":
		return true
	}
	return false
}

// HasAuthCookie reports whether any request cookie looks like an auth cookie.
func HasAuthCookie(req *schemas.Request) bool {
	for _, c := range req.Cookies {
		if IsAuthCookieName(c.Name) {
			return true
		}
	}
	return false
}

// SetsSessionCookie reports whether the response sets a session-looking cookie.
func SetsSessionCookie(resp *schemas.Response) bool {
	for _, c := range resp.Cookies {
		if IsSessionSetCookieName(c.Name) {
			return true
		}
	}
	return false
}

// SendsSessionCookie reports whether the request presents a session-looking
// cookie.
func SendsSessionCookie(req *schemas.Request) bool {
	for _, c := range req.Cookies {
		if IsSessionSetCookieName(c.Name) {
			return true
		}
	}
	return false
}

// -- Content types and bodies --

// IsJSON reports whether a declared content type is JSON.
func IsJSON(mimeType string) bool {
	return strings.Contains(strings.ToLower(mimeType), "application/json")
}

// IsHTML reports whether a declared content type is HTML.
func IsHTML(mimeType string) bool {
	return strings.Contains(strings.ToLower(mimeType), "text/html")
}

// IsFormBody reports whether a declared content type is an HTML form encoding.
func IsFormBody(mimeType string) bool {
	lower := strings.ToLower(mimeType)
	return strings.Contains(lower, "application/x-www-form-urlencoded") ||
		strings.Contains(lower, "multipart/form-data")
}

// HasCredentialFields reports whether a body carries a password together with
// a username or email.
func HasCredentialFields(body string) bool {
	return strings.Contains(body, "password") && ContainsAny(body, "username", "email")
}

// HasJSONCredentialFields is HasCredentialFields restricted to quoted JSON keys.
func HasJSONCredentialFields(body string) bool {
	return strings.Contains(body, `"password"`) && ContainsAny(body, `"username"`, `"email"`)
}

// HasTokenKey reports whether a JSON body carries a token-looking key.
func HasTokenKey(body string) bool {
	return ContainsAny(body, `"token"`, `"access_token"`, `"accessToken"`)
}

// IsTokenRefreshRequest matches a POST to a token or refresh endpoint whose
// body carries a refresh token grant.
func IsTokenRefreshRequest(req *schemas.Request) bool {
	if req.Method != "POST" {
		return false
	}
	if !ContainsAny(strings.ToLower(req.URL), "/token", "/refresh") {
		return false
	}
	body, _ := req.BodyText()
	return ContainsAny(body, "grant_type=refresh_token", `"refresh_token"`, "refreshToken")
}
