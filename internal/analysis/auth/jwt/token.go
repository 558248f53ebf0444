// internal/analysis/auth/jwt/token.go
package jwt

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	json "github.com/json-iterator/go"

	"github.com/xkilldash9x/harrier/api/schemas"
	"github.com/xkilldash9x/harrier/internal/analysis/core"
)

var (
	// segmentParser only decodes segments. Nothing here verifies signatures.
	segmentParser = jwt.NewParser(jwt.WithPaddingAllowed())

	errNotObject = errors.New("segment is not a JSON object")
)

var headerFields = map[string]bool{"alg": true, "typ": true, "kid": true}

var claimFields = map[string]bool{
	"iss": true, "sub": true, "aud": true, "exp": true, "nbf": true, "iat": true, "jti": true,
}

// decodeSegment base64url-decodes one segment into a JSON object. Standard
// alphabet input is accepted as well by mapping it onto the URL alphabet.
func decodeSegment(seg string) (map[string]any, error) {
	seg = strings.NewReplacer("+", "-", "/", "_").Replace(seg)
	raw, err := segmentParser.DecodeSegment(seg)
	if err != nil {
		return nil, fmt.Errorf("decoding segment: %w", err)
	}
	var obj map[string]any
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, fmt.Errorf("parsing segment: %w", err)
	}
	if obj == nil {
		return nil, errNotObject
	}
	return obj, nil
}

// parseToken decodes a three-segment candidate. It fails when the header or
// payload is not a base64url encoded JSON object.
func parseToken(raw, timestamp string) (schemas.JWTToken, error) {
	h, p, sig, ok := core.SplitJWT(raw)
	if !ok {
		return schemas.JWTToken{}, errors.New("token does not have three segments")
	}
	headerObj, err := decodeSegment(h)
	if err != nil {
		return schemas.JWTToken{}, fmt.Errorf("header: %w", err)
	}
	claimsObj, err := decodeSegment(p)
	if err != nil {
		return schemas.JWTToken{}, fmt.Errorf("claims: %w", err)
	}

	return schemas.JWTToken{
		RawToken:     displayToken(raw),
		Header:       buildHeader(headerObj),
		Claims:       buildClaims(claimsObj),
		HasSignature: sig != "",
		FirstSeen:    timestamp,
		LastSeen:     timestamp,
	}, nil
}

func buildHeader(obj map[string]any) schemas.JWTHeader {
	return schemas.JWTHeader{
		Alg:   stringField(obj, "alg"),
		Typ:   stringField(obj, "typ"),
		Kid:   stringField(obj, "kid"),
		Extra: extraFields(obj, headerFields),
	}
}

func buildClaims(obj map[string]any) schemas.JWTClaims {
	return schemas.JWTClaims{
		Iss:   stringField(obj, "iss"),
		Sub:   stringField(obj, "sub"),
		Aud:   obj["aud"],
		Exp:   intField(obj, "exp"),
		Nbf:   intField(obj, "nbf"),
		Iat:   intField(obj, "iat"),
		Jti:   stringField(obj, "jti"),
		Extra: extraFields(obj, claimFields),
	}
}

func stringField(obj map[string]any, key string) string {
	s, _ := obj[key].(string)
	return s
}

// intField accepts only integral JSON numbers.
func intField(obj map[string]any, key string) *int64 {
	f, ok := obj[key].(float64)
	if !ok || f != math.Trunc(f) || f >= math.MaxInt64 || f < math.MinInt64 {
		return nil
	}
	v := int64(f)
	return &v
}

func extraFields(obj map[string]any, known map[string]bool) map[string]any {
	var extra map[string]any
	for k, v := range obj {
		if known[k] {
			continue
		}
		if extra == nil {
			extra = make(map[string]any)
		}
		extra[k] = v
	}
	return extra
}

// displayToken keeps the first and last 25 characters of long tokens.
func displayToken(raw string) string {
	if len(raw) > 50 {
		return raw[:25] + "..." + raw[len(raw)-25:]
	}
	return raw
}

// -- Security rules --

const longLivedSeconds = 86400

// sensitiveKeywords flag claim names that should never travel in an encoded
// but unencrypted payload.
var sensitiveKeywords = []string{
	"password", "pwd", "secret", "apikey", "api_key", "ssn", "creditcard",
	"privatekey", "private_key", "credential", "access_key",
}

// auditToken evaluates the per-token rules against a newly observed token.
func auditToken(tok schemas.JWTToken, entryIndex int) []schemas.JWTIssue {
	var issues []schemas.JWTIssue
	add := func(sev schemas.Severity, kind schemas.JWTIssueKind, msg string) {
		issues = append(issues, schemas.JWTIssue{
			Severity:     sev,
			Kind:         kind,
			Message:      msg,
			TokenPreview: tok.RawToken,
			EntryIndex:   entryIndex,
		})
	}

	switch alg := tok.Header.Alg; {
	case strings.EqualFold(alg, "none"):
		add(schemas.SeverityCritical, schemas.JWTNoAlgorithm, "JWT using 'none' algorithm (no signature verification)")
	case strings.EqualFold(alg, "HS256"), strings.EqualFold(alg, "HS384"), strings.EqualFold(alg, "HS512"):
		add(schemas.SeverityInfo, schemas.JWTWeakAlgorithm, fmt.Sprintf("JWT using symmetric algorithm %s (shared secret)", alg))
	}

	exp, iat := tok.Claims.Exp, tok.Claims.Iat
	switch {
	case exp == nil:
		add(schemas.SeverityWarning, schemas.JWTMissingExpiration, "JWT missing expiration claim (exp)")
	case iat != nil && *exp-*iat > longLivedSeconds:
		add(schemas.SeverityWarning, schemas.JWTLongLivedToken, fmt.Sprintf("JWT has long lifetime: %d hours", (*exp-*iat)/3600))
	}

	if !tok.HasSignature {
		add(schemas.SeverityCritical, schemas.JWTMissingSignature, "JWT missing signature component")
	}

	if claim, ok := sensitiveClaim(tok.Claims.Extra); ok {
		add(schemas.SeverityWarning, schemas.JWTSensitiveClaims, fmt.Sprintf("JWT payload carries sensitive claim '%s'", claim))
	}
	return issues
}

// sensitiveClaim returns the alphabetically first claim name matching a
// sensitive keyword.
func sensitiveClaim(claims map[string]any) (string, bool) {
	names := make([]string, 0, len(claims))
	for k := range claims {
		names = append(names, k)
	}
	sort.Strings(names)
	for _, name := range names {
		lower := strings.ToLower(name)
		for _, kw := range sensitiveKeywords {
			if strings.Contains(lower, kw) {
				return name, true
			}
		}
	}
	return "", false
}
