package schemas

import (
	"fmt"
)

// -- Authentication Analysis Schemas --

// AuthMethodKind is the coarse authentication signal found on a request.
type AuthMethodKind string

const (
	MethodBasic  AuthMethodKind = "basic"
	MethodBearer AuthMethodKind = "bearer"
	MethodAPIKey AuthMethodKind = "api_key"
	MethodOAuth  AuthMethodKind = "oauth"
	MethodJWT    AuthMethodKind = "jwt"
	MethodCookie AuthMethodKind = "cookie"
	MethodCustom AuthMethodKind = "custom"
)

// AuthMethod is comparable so a set of methods can be kept in a map. Header is
// only set for MethodAPIKey and MethodCustom and holds the header name as seen.
type AuthMethod struct {
	Kind   AuthMethodKind `json:"kind"`
	Header string         `json:"header,omitempty"`
}

// DisplayName returns the human readable method name.
func (m AuthMethod) DisplayName() string {
	switch m.Kind {
	case MethodBasic:
		return "Basic Auth"
	case MethodBearer:
		return "Bearer Token"
	case MethodAPIKey:
		return fmt.Sprintf("API Key (%s)", m.Header)
	case MethodOAuth:
		return "OAuth"
	case MethodJWT:
		return "JWT"
	case MethodCookie:
		return "Cookie-based"
	case MethodCustom:
		return fmt.Sprintf("Custom (%s)", m.Header)
	default:
		return string(m.Kind)
	}
}

// SessionKind distinguishes how a persisted credential travels.
type SessionKind string

const (
	SessionCookie      SessionKind = "cookie"
	SessionBearerToken SessionKind = "bearer_token"
	SessionAPIKey      SessionKind = "api_key"
)

// SessionType identifies the credential carrier. CookieName is set for cookie
// sessions, IsJWT for bearer sessions and HeaderName for API key sessions.
type SessionType struct {
	Kind       SessionKind `json:"kind"`
	CookieName string      `json:"cookie_name,omitempty"`
	IsJWT      bool        `json:"is_jwt,omitempty"`
	HeaderName string      `json:"header_name,omitempty"`
}

// SessionAttributes are the cookie security attributes of a cookie session,
// taken from the first request that carried the cookie. SameSite is never
// populated because the archive format does not record it.
type SessionAttributes struct {
	HTTPOnly bool   `json:"http_only"`
	Secure   bool   `json:"secure"`
	SameSite string `json:"same_site,omitempty"`
	Expires  string `json:"expires,omitempty"`
	Path     string `json:"path,omitempty"`
	Domain   string `json:"domain,omitempty"`
}

// AuthSession groups the entries that carried one credential identity.
type AuthSession struct {
	Type         SessionType        `json:"type"`
	Identifier   string             `json:"identifier"` // Redacted display value.
	FirstSeen    string             `json:"first_seen"`
	LastSeen     string             `json:"last_seen"`
	RequestCount int                `json:"request_count"`
	DurationMs   int64              `json:"duration_ms"`
	EntryIndices []int              `json:"entry_indices"`
	Attributes   *SessionAttributes `json:"attributes,omitempty"`
}

// -- Flows --

// FlowKind is the reconstructed authentication protocol.
type FlowKind string

const (
	FlowOAuth2AuthorizationCode FlowKind = "oauth2_authorization_code"
	FlowOAuth2ClientCredentials FlowKind = "oauth2_client_credentials"
	FlowOAuth2Implicit          FlowKind = "oauth2_implicit"
	FlowFormBased               FlowKind = "form_based"
	FlowJSONAPI                 FlowKind = "json_api"
)

// IsOAuth2 reports whether the kind is one of the OAuth 2.0 grants.
func (k FlowKind) IsOAuth2() bool {
	switch k {
	case FlowOAuth2AuthorizationCode, FlowOAuth2ClientCredentials, FlowOAuth2Implicit:
		return true
	}
	return false
}

// FlowRole is the part a step plays in its flow.
type FlowRole string

const (
	RoleLoginPage                 FlowRole = "login_page"
	RoleCredentialsSubmission     FlowRole = "credentials_submission"
	RoleAuthorizationRequest      FlowRole = "authorization_request"
	RoleAuthorizationCallback     FlowRole = "authorization_callback"
	RoleTokenExchange             FlowRole = "token_exchange"
	RoleTokenResponse             FlowRole = "token_response"
	RoleFirstAuthenticatedRequest FlowRole = "first_authenticated_request"
)

// FlowStep is one entry participating in a flow.
type FlowStep struct {
	EntryIndex  int      `json:"entry_index"`
	Timestamp   string   `json:"timestamp"`
	Role        FlowRole `json:"role"`
	Method      string   `json:"method"`
	URL         string   `json:"url"` // Truncated to 80 characters.
	Status      int      `json:"status"`
	Description string   `json:"description"`
}

// AuthFlow is a reconstructed multi-step authentication. Steps are in
// non-decreasing entry index order.
type AuthFlow struct {
	Kind       FlowKind   `json:"kind"`
	PKCE       bool       `json:"pkce,omitempty"`
	StartTime  string     `json:"start_time"`
	EndTime    string     `json:"end_time"`
	DurationMs int64      `json:"duration_ms"`
	Steps      []FlowStep `json:"steps"`
}

// DisplayName returns the human readable flow name.
func (f AuthFlow) DisplayName() string {
	switch f.Kind {
	case FlowOAuth2AuthorizationCode:
		if f.PKCE {
			return "OAuth 2.0 Authorization Code (with PKCE)"
		}
		return "OAuth 2.0 Authorization Code"
	case FlowOAuth2ClientCredentials:
		return "OAuth 2.0 Client Credentials"
	case FlowOAuth2Implicit:
		return "OAuth 2.0 Implicit"
	case FlowFormBased:
		return "Form-based Login"
	case FlowJSONAPI:
		return "JSON API Authentication"
	default:
		return "Unknown"
	}
}

// -- SAML --

// SAMLFlowKind is the reconstructed SAML exchange.
type SAMLFlowKind string

const (
	SAMLSPInitiated  SAMLFlowKind = "sp_initiated"
	SAMLIdPInitiated SAMLFlowKind = "idp_initiated"
	SAMLLogout       SAMLFlowKind = "single_logout"
)

// DisplayName returns the human readable SAML flow name.
func (k SAMLFlowKind) DisplayName() string {
	switch k {
	case SAMLSPInitiated:
		return "SAML SP-Initiated SSO"
	case SAMLIdPInitiated:
		return "SAML IdP-Initiated SSO"
	case SAMLLogout:
		return "SAML Single Logout"
	default:
		return "SAML"
	}
}

// SAMLStepRole is the part a step plays in a SAML exchange.
type SAMLStepRole string

const (
	SAMLRoleAuthnRequest             SAMLStepRole = "authn_request"
	SAMLRoleIdPRedirect              SAMLStepRole = "idp_redirect"
	SAMLRoleResponse                 SAMLStepRole = "saml_response"
	SAMLRoleAssertionConsumerService SAMLStepRole = "assertion_consumer_service"
	SAMLRoleLogoutRequest            SAMLStepRole = "logout_request"
	SAMLRoleLogoutResponse           SAMLStepRole = "logout_response"
)

// SAMLStep is one entry participating in a SAML exchange.
type SAMLStep struct {
	EntryIndex  int          `json:"entry_index"`
	Timestamp   string       `json:"timestamp"`
	Role        SAMLStepRole `json:"role"`
	Method      string       `json:"method"`
	URL         string       `json:"url"`
	Status      int          `json:"status"`
	Description string       `json:"description"`
}

// SAMLFlow is a reconstructed SAML exchange. Entity IDs are filled when the
// protocol message could be decoded and carried an Issuer.
type SAMLFlow struct {
	Kind        SAMLFlowKind `json:"kind"`
	StartTime   string       `json:"start_time"`
	EndTime     string       `json:"end_time"`
	DurationMs  int64        `json:"duration_ms"`
	Steps       []SAMLStep   `json:"steps"`
	IdPEntityID string       `json:"idp_entity_id,omitempty"`
	SPEntityID  string       `json:"sp_entity_id,omitempty"`
}

// SAMLIssue is a transport problem on a SAML message.
type SAMLIssue struct {
	Severity   Severity `json:"severity"`
	Message    string   `json:"message"`
	EntryIndex int      `json:"entry_index"`
}

// -- Events --

// EventKind is an atomic point-in-time authentication observation.
type EventKind string

const (
	EventLoginSuccess   EventKind = "login_success"
	EventLoginFailure   EventKind = "login_failure"
	EventLogout         EventKind = "logout"
	EventTokenRefresh   EventKind = "token_refresh"
	EventSessionExpired EventKind = "session_expired"
	EventPasswordReset  EventKind = "password_reset"
)

// EventDetails is the free-text part of an event.
type EventDetails struct {
	Description    string `json:"description"`
	CredentialType string `json:"credential_type,omitempty"`
	ErrorMessage   string `json:"error_message,omitempty"`
}

// AuthEvent is a single-entry observation.
type AuthEvent struct {
	Kind       EventKind    `json:"kind"`
	Timestamp  string       `json:"timestamp"`
	EntryIndex int          `json:"entry_index"`
	Method     string       `json:"method"`
	URL        string       `json:"url"`
	Status     int          `json:"status"`
	Details    EventDetails `json:"details"`
}

// -- JWT --

// JWTHeader is the decoded JOSE header. Extra holds every other member.
type JWTHeader struct {
	Alg   string         `json:"alg,omitempty"`
	Typ   string         `json:"typ,omitempty"`
	Kid   string         `json:"kid,omitempty"`
	Extra map[string]any `json:"extra,omitempty"`
}

// JWTClaims is the decoded payload. Numeric dates are seconds since the epoch;
// Aud is kept as decoded since it may be a string or a list.
type JWTClaims struct {
	Iss   string         `json:"iss,omitempty"`
	Sub   string         `json:"sub,omitempty"`
	Aud   any            `json:"aud,omitempty"`
	Exp   *int64         `json:"exp,omitempty"`
	Nbf   *int64         `json:"nbf,omitempty"`
	Iat   *int64         `json:"iat,omitempty"`
	Jti   string         `json:"jti,omitempty"`
	Extra map[string]any `json:"extra,omitempty"`
}

// JWTToken is one token identity observed in the archive. UsageCount always
// equals len(EntryIndices).
type JWTToken struct {
	RawToken     string    `json:"raw_token"` // Truncated for display.
	Header       JWTHeader `json:"header"`
	Claims       JWTClaims `json:"claims"`
	HasSignature bool      `json:"has_signature"`
	FirstSeen    string    `json:"first_seen"`
	LastSeen     string    `json:"last_seen"`
	UsageCount   int       `json:"usage_count"`
	EntryIndices []int     `json:"entry_indices"`
}

// JWTIssueKind classifies a token problem.
type JWTIssueKind string

const (
	JWTNoAlgorithm       JWTIssueKind = "no_algorithm"
	JWTWeakAlgorithm     JWTIssueKind = "weak_algorithm"
	JWTLongLivedToken    JWTIssueKind = "long_lived_token"
	JWTMissingExpiration JWTIssueKind = "missing_expiration"
	JWTMissingSignature  JWTIssueKind = "missing_signature"
	JWTTokenInURL        JWTIssueKind = "token_in_url"
	JWTSensitiveClaims   JWTIssueKind = "sensitive_claims"
)

// JWTIssue is a security problem found on a token.
type JWTIssue struct {
	Severity     Severity     `json:"severity"`
	Kind         JWTIssueKind `json:"kind"`
	Message      string       `json:"message"`
	TokenPreview string       `json:"token_preview"`
	EntryIndex   int          `json:"entry_index"`
}

// -- Security notes --

// Note categories.
const (
	CategoryAuthMethod = "Authentication Method"
	CategoryCookie     = "Cookie Security"
	CategoryToken      = "Token Security"
	CategoryAPIKey     = "API Key Security"
	CategoryTransport  = "Transport Security"
)

// SecurityNote is a cross-cutting observation derived from methods and
// sessions. Subject names the cookie or header concerned and is kept out of
// Message so that identical conditions aggregate together.
type SecurityNote struct {
	Severity   Severity `json:"severity"`
	Category   string   `json:"category"`
	Message    string   `json:"message"`
	Subject    string   `json:"subject,omitempty"`
	EntryIndex *int     `json:"entry_index,omitempty"`
}

// Key returns the aggregation identity of the note.
func (n SecurityNote) Key() FindingKey {
	return FindingKey{Category: n.Category, Message: n.Message}
}

// -- Advanced security --

// ExposureKind classifies how a credential leaked.
type ExposureKind string

const (
	ExposureTokenInURL         ExposureKind = "token_in_url"
	ExposureTokenInQueryParam  ExposureKind = "token_in_query_param"
	ExposureTokenInReferer     ExposureKind = "token_in_referer"
	ExposureCredentialsInURL   ExposureKind = "credentials_in_url"
	ExposureSensitiveDataInURL ExposureKind = "sensitive_data_in_url"
)

// Label returns the human readable exposure name.
func (k ExposureKind) Label() string {
	switch k {
	case ExposureTokenInURL:
		return "Token in URL"
	case ExposureTokenInQueryParam:
		return "Token in query parameter"
	case ExposureTokenInReferer:
		return "Token in Referer header"
	case ExposureCredentialsInURL:
		return "Credentials in URL"
	case ExposureSensitiveDataInURL:
		return "Sensitive data in URL"
	default:
		return string(k)
	}
}

// TokenExposure is a credential observed somewhere it should not be.
type TokenExposure struct {
	Severity   Severity     `json:"severity"`
	Kind       ExposureKind `json:"kind"`
	Message    string       `json:"message"`
	Location   string       `json:"location"` // Truncated to 100 characters.
	EntryIndex int          `json:"entry_index"`
}

// CORSIssueKind classifies a CORS misconfiguration.
type CORSIssueKind string

const (
	CORSWildcardWithCredentials CORSIssueKind = "wildcard_with_credentials"
	CORSInsecureOrigin          CORSIssueKind = "insecure_origin"
	CORSMissingHeaders          CORSIssueKind = "missing_cors_headers"
)

// Label returns the human readable CORS issue name.
func (k CORSIssueKind) Label() string {
	switch k {
	case CORSWildcardWithCredentials:
		return "wildcard with credentials"
	case CORSInsecureOrigin:
		return "insecure origin"
	case CORSMissingHeaders:
		return "missing CORS headers"
	default:
		return string(k)
	}
}

// CORSIssue is a CORS finding on one response.
type CORSIssue struct {
	Severity      Severity      `json:"severity"`
	Kind          CORSIssueKind `json:"kind"`
	Message       string        `json:"message"`
	AllowOrigin   string        `json:"allow_origin,omitempty"`
	RequestOrigin string        `json:"request_origin,omitempty"`
	EntryIndex    int           `json:"entry_index"`
}

// CSPFindingKind classifies a Content-Security-Policy problem.
type CSPFindingKind string

const (
	CSPMissing        CSPFindingKind = "missing_csp"
	CSPUnsafeInline   CSPFindingKind = "unsafe_inline"
	CSPUnsafeEval     CSPFindingKind = "unsafe_eval"
	CSPWildcardSource CSPFindingKind = "wildcard_source"
)

// Label returns the human readable CSP finding name.
func (k CSPFindingKind) Label() string {
	switch k {
	case CSPMissing:
		return "missing CSP"
	case CSPUnsafeInline:
		return "unsafe-inline"
	case CSPUnsafeEval:
		return "unsafe-eval"
	case CSPWildcardSource:
		return "wildcard source"
	default:
		return string(k)
	}
}

// CSPFinding is a CSP problem. The aggregate missing-policy finding has no
// single entry, so EntryIndex is nil for it.
type CSPFinding struct {
	Severity   Severity       `json:"severity"`
	Kind       CSPFindingKind `json:"kind"`
	Message    string         `json:"message"`
	Policy     string         `json:"policy,omitempty"`
	EntryIndex *int           `json:"entry_index,omitempty"`
	Count      int            `json:"count,omitempty"`
}

// RefreshPatternKind describes how a client renews its tokens.
type RefreshPatternKind string

const (
	RefreshOnDemand          RefreshPatternKind = "on_demand_refresh"
	RefreshAutomaticRotation RefreshPatternKind = "automatic_rotation"
)

// TokenRefreshPattern summarises all refresh operations in the archive.
// FrequencySeconds is the mean gap between refreshes, or zero when the
// timestamps could not be parsed.
type TokenRefreshPattern struct {
	Kind             RefreshPatternKind `json:"kind"`
	RefreshCount     int                `json:"refresh_count"`
	FrequencySeconds float64            `json:"frequency_seconds,omitempty"`
	Description      string             `json:"description"`
	EntryIndices     []int              `json:"entry_indices"`
}

// AdvancedSecurity is the output of the advanced security analyzer.
type AdvancedSecurity struct {
	TokenExposures  []TokenExposure       `json:"token_exposures"`
	CORSIssues      []CORSIssue           `json:"cors_issues"`
	CSPFindings     []CSPFinding          `json:"csp_findings"`
	RefreshPatterns []TokenRefreshPattern `json:"refresh_patterns"`
}

// AuthAnalysis is the aggregate result of one engine run. It is built once
// and not modified afterwards.
type AuthAnalysis struct {
	RunID         string           `json:"run_id"`
	EntryCount    int              `json:"entry_count"`
	Methods       []AuthMethod     `json:"methods"`
	Sessions      []AuthSession    `json:"sessions"`
	Flows         []AuthFlow       `json:"flows"`
	Events        []AuthEvent      `json:"events"`
	SecurityNotes []SecurityNote   `json:"security_notes"`
	JWTTokens     []JWTToken       `json:"jwt_tokens"`
	JWTIssues     []JWTIssue       `json:"jwt_issues"`
	SAMLFlows     []SAMLFlow       `json:"saml_flows"`
	SAMLIssues    []SAMLIssue      `json:"saml_issues"`
	Advanced      AdvancedSecurity `json:"advanced_security"`
}

// HasMethod reports whether a method of the given kind was detected.
func (a *AuthAnalysis) HasMethod(kind AuthMethodKind) bool {
	for _, m := range a.Methods {
		if m.Kind == kind {
			return true
		}
	}
	return false
}
