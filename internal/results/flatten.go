// internal/results/flatten.go
package results

import (
	"time"

	"github.com/google/uuid"
	json "github.com/json-iterator/go"

	"github.com/xkilldash9x/harrier/api/schemas"
	"github.com/xkilldash9x/harrier/internal/analysis/auth/notes"
	"github.com/xkilldash9x/harrier/internal/analysis/auth/summary"
	"github.com/xkilldash9x/harrier/internal/analysis/core"
)

// Module names recorded on flat findings. They match the analyzer names.
const (
	moduleJWT      = "jwt_analyzer"
	moduleSAML     = "saml_detector"
	moduleNotes    = "security_notes"
	moduleAdvanced = "advanced_security"
)

// Categories for records that do not carry their own.
const (
	CategoryJWT  = "JWT"
	CategorySAML = "SAML"
)

// rule is the report metadata attached to one kind of record.
type rule struct {
	name           string
	recommendation string
	cwe            string
}

var jwtRules = map[schemas.JWTIssueKind]rule{
	schemas.JWTNoAlgorithm:       {"JWT Accepted Without Algorithm", "Reject tokens with alg=none and pin the accepted algorithms on the verifier.", "CWE-347"},
	schemas.JWTWeakAlgorithm:     {"JWT Signed With Shared Secret", "Use a high-entropy secret or move to an asymmetric algorithm such as RS256 or ES256.", "CWE-326"},
	schemas.JWTLongLivedToken:    {"Long-Lived JWT", "Shorten access token lifetime and rely on refresh tokens for renewal.", "CWE-613"},
	schemas.JWTMissingExpiration: {"JWT Without Expiration", "Issue every token with an exp claim.", "CWE-613"},
	schemas.JWTMissingSignature:  {"Unsigned JWT", "Only accept signed tokens and verify the signature server-side.", "CWE-347"},
	schemas.JWTTokenInURL:        {"JWT In URL", "Send tokens in the Authorization header instead of the URL.", "CWE-598"},
	schemas.JWTSensitiveClaims:   {"Sensitive Data In JWT Payload", "Keep secrets and personal data out of token claims, which are only encoded.", "CWE-312"},
}

var noteRules = map[string]rule{
	notes.MsgBasicAuth:       {"Basic Authentication In Use", "Serve Basic credentials only over HTTPS, or move to a token based scheme.", "CWE-522"},
	notes.MsgAPIKeyAuth:      {"API Key Authentication In Use", "Keep API keys out of client-side code and rotate them regularly.", "CWE-522"},
	notes.MsgMissingHTTPOnly: {"Session Cookie Without HttpOnly", "Set the HttpOnly attribute on session cookies.", "CWE-1004"},
	notes.MsgMissingSecure:   {"Session Cookie Without Secure", "Set the Secure attribute on session cookies served over HTTPS.", "CWE-614"},
	notes.MsgMissingSameSite: {"Session Cookie Without SameSite", "Set SameSite=Lax or SameSite=Strict on session cookies.", "CWE-1275"},
	notes.MsgJWTReminder:     {"JWT Validation Reminder", "Verify the signature and expiry of every token server-side.", "CWE-347"},
	notes.MsgAPIKeyInQuery:   {"API Key In Query String", "Send API keys in a request header.", "CWE-598"},
	notes.MsgPlainHTTPAuth:   {"Credentials Over Plain HTTP", "Serve every authenticated endpoint over HTTPS.", "CWE-319"},
}

var exposureRules = map[schemas.ExposureKind]rule{
	schemas.ExposureTokenInURL:         {"Token In URL", "Move tokens out of the URL and into the Authorization header.", "CWE-598"},
	schemas.ExposureTokenInQueryParam:  {"Token In Query Parameter", "Move tokens out of the query string and into the Authorization header.", "CWE-598"},
	schemas.ExposureTokenInReferer:     {"Token Leaked Via Referer", "Keep tokens out of URLs and set a strict Referrer-Policy.", "CWE-200"},
	schemas.ExposureCredentialsInURL:   {"Credentials In URL", "Never embed user credentials in URLs.", "CWE-598"},
	schemas.ExposureSensitiveDataInURL: {"Sensitive Data In URL", "Send secrets in the request body or headers.", "CWE-598"},
}

var corsRules = map[schemas.CORSIssueKind]rule{
	schemas.CORSWildcardWithCredentials: {"Wildcard CORS With Credentials", "Reflect an allow-list of trusted origins instead of '*'.", "CWE-942"},
	schemas.CORSInsecureOrigin:          {"CORS Trusts Insecure Origin", "Only allow HTTPS origins.", "CWE-942"},
	schemas.CORSMissingHeaders:          {"Missing CORS Headers", "Return explicit CORS headers for cross-origin API calls.", "CWE-942"},
}

var cspRules = map[schemas.CSPFindingKind]rule{
	schemas.CSPMissing:        {"Missing Content-Security-Policy", "Serve a Content-Security-Policy on HTML responses.", "CWE-693"},
	schemas.CSPUnsafeInline:   {"CSP Allows unsafe-inline", "Replace unsafe-inline with nonces or hashes.", "CWE-693"},
	schemas.CSPUnsafeEval:     {"CSP Allows unsafe-eval", "Remove unsafe-eval from the policy.", "CWE-693"},
	schemas.CSPWildcardSource: {"CSP Wildcard Source", "List explicit sources instead of wildcards.", "CWE-693"},
}

var samlRule = rule{"Insecure SAML Transport", "Serve SAML endpoints over HTTPS only.", "CWE-319"}

// evidence is the structured context stored alongside a flat finding.
type evidence struct {
	Kind          string `json:"kind,omitempty"`
	Subject       string `json:"subject,omitempty"`
	Location      string `json:"location,omitempty"`
	TokenPreview  string `json:"token_preview,omitempty"`
	AllowOrigin   string `json:"allow_origin,omitempty"`
	RequestOrigin string `json:"request_origin,omitempty"`
	Policy        string `json:"policy,omitempty"`
	Count         int    `json:"count,omitempty"`
}

type flattener struct {
	runID      string
	entries    []schemas.Entry
	observedAt time.Time
	out        []schemas.Finding
}

// Flatten converts every issue-bearing record of an analysis into flat,
// report-ready findings. The result is in Prioritize order.
func Flatten(a *schemas.AuthAnalysis, entries []schemas.Entry, observedAt time.Time) []schemas.Finding {
	f := &flattener{runID: a.RunID, entries: entries, observedAt: observedAt, out: []schemas.Finding{}}

	for _, issue := range a.JWTIssues {
		f.add(moduleJWT, CategoryJWT, issue.Severity, issue.Message, issue.EntryIndex,
			jwtRules[issue.Kind], evidence{Kind: string(issue.Kind), TokenPreview: issue.TokenPreview})
	}
	for _, issue := range a.SAMLIssues {
		f.add(moduleSAML, CategorySAML, issue.Severity, issue.Message, issue.EntryIndex, samlRule, evidence{})
	}
	for _, note := range a.SecurityNotes {
		f.add(moduleNotes, note.Category, note.Severity, note.Message, indexOrNone(note.EntryIndex),
			noteRules[note.Message], evidence{Subject: note.Subject})
	}
	for _, exp := range a.Advanced.TokenExposures {
		f.add(moduleAdvanced, summary.CategoryTokenExposure, exp.Severity, exp.Message, exp.EntryIndex,
			exposureRules[exp.Kind], evidence{Kind: string(exp.Kind), Location: exp.Location})
	}
	for _, issue := range a.Advanced.CORSIssues {
		f.add(moduleAdvanced, summary.CategoryCORS, issue.Severity, issue.Message, issue.EntryIndex,
			corsRules[issue.Kind], evidence{Kind: string(issue.Kind), AllowOrigin: issue.AllowOrigin, RequestOrigin: issue.RequestOrigin})
	}
	for _, finding := range a.Advanced.CSPFindings {
		f.add(moduleAdvanced, summary.CategoryCSP, finding.Severity, finding.Message, indexOrNone(finding.EntryIndex),
			cspRules[finding.Kind], evidence{Kind: string(finding.Kind), Policy: finding.Policy, Count: finding.Count})
	}

	Prioritize(f.out)
	return f.out
}

func (f *flattener) add(module, category string, sev schemas.Severity, message string, entryIndex int, r rule, ev evidence) {
	finding := schemas.Finding{
		ID:                uuid.New().String(),
		RunID:             f.runID,
		ObservedAt:        f.observedAt,
		Target:            f.target(entryIndex),
		Module:            module,
		VulnerabilityName: r.name,
		Category:          category,
		Severity:          sev,
		Description:       message,
		EntryIndex:        entryIndex,
		Recommendation:    r.recommendation,
	}
	if r.cwe != "" {
		finding.CWE = []string{r.cwe}
	}
	if raw, err := json.Marshal(ev); err == nil && string(raw) != "{}" {
		finding.Evidence = raw
	}
	f.out = append(f.out, finding)
}

func (f *flattener) target(entryIndex int) string {
	if entryIndex < 0 || entryIndex >= len(f.entries) {
		return ""
	}
	return core.TruncateURL(f.entries[entryIndex].Request.URL)
}

func indexOrNone(idx *int) int {
	if idx == nil {
		return -1
	}
	return *idx
}
