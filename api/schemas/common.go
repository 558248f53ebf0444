package schemas

import (
	"time"
)

// -- Summary Schemas --

// ConfidenceLevel rates how directly a signal identifies the primary
// authentication mechanism.
type ConfidenceLevel string

const (
	ConfidenceHigh   ConfidenceLevel = "high"
	ConfidenceMedium ConfidenceLevel = "medium"
	ConfidenceLow    ConfidenceLevel = "low"
)

// PrimaryMethod is the single most representative authentication mechanism.
type PrimaryMethod struct {
	MethodType  string          `json:"method_type"`
	Description string          `json:"description"`
	Confidence  ConfidenceLevel `json:"confidence"`
}

// SessionMechanism describes how authenticated state is carried.
type SessionMechanism struct {
	MechanismType string `json:"mechanism_type"`
	Details       string `json:"details"`
}

// EndpointInfo is an authentication-relevant endpoint seen in a flow.
type EndpointInfo struct {
	Method  string `json:"method"`
	Path    string `json:"path"`
	Purpose string `json:"purpose"`
}

// ScanMechanism keys the scan-tool authentication configuration.
type ScanMechanism string

const (
	ScanMechanismCookie  ScanMechanism = "cookie"
	ScanMechanismToken   ScanMechanism = "token"
	ScanMechanismOAuth2  ScanMechanism = "oauth2"
	ScanMechanismHeader  ScanMechanism = "header"
	ScanMechanismUnknown ScanMechanism = "unknown"
)

// ScanConfig is a ready-to-edit authentication block for an automated scanner.
type ScanConfig struct {
	Mechanism ScanMechanism `json:"mechanism"`
	Snippet   string        `json:"snippet"`
	Notes     []string      `json:"notes"`
}

// AuthSummary is the human oriented digest of an AuthAnalysis.
type AuthSummary struct {
	PrimaryMethod    PrimaryMethod    `json:"primary_method"`
	SessionMechanism SessionMechanism `json:"session_mechanism"`
	KeyEndpoints     []EndpointInfo   `json:"key_endpoints"`
	ScanConfig       ScanConfig       `json:"scan_config"`
	AdditionalInfo   []string         `json:"additional_info"`
}

// AggregatedFinding is a group of findings sharing one FindingKey.
type AggregatedFinding struct {
	Key           FindingKey `json:"key"`
	Severity      Severity   `json:"severity"`
	Count         int        `json:"count"`
	SampleEntries []int      `json:"sample_entries"`
}

// FindingsView is the deduplicated findings, bucketed by severity and sorted
// by count descending within each bucket.
type FindingsView struct {
	Critical []AggregatedFinding `json:"critical"`
	Warning  []AggregatedFinding `json:"warning"`
	Info     []AggregatedFinding `json:"info"`
}

// Total returns the number of distinct groups across all buckets.
func (v FindingsView) Total() int {
	return len(v.Critical) + len(v.Warning) + len(v.Info)
}

// -- Result Schemas --

// ResultEnvelope is the top level wrapper for everything produced by one run
// over one archive.
type ResultEnvelope struct {
	RunID     string        `json:"run_id"`
	Source    string        `json:"source"`
	Timestamp time.Time     `json:"timestamp"`
	Analysis  *AuthAnalysis `json:"analysis,omitempty"`
	Summary   *AuthSummary  `json:"summary,omitempty"`
	View      *FindingsView `json:"findings_view,omitempty"`
	Findings  []Finding     `json:"findings"`
}
