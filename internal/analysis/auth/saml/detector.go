// internal/analysis/auth/saml/detector.go

// Package saml reconstructs SP-initiated, IdP-initiated and single logout
// SAML exchanges and flags protocol messages sent over plain HTTP.
package saml

import (
	"context"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/harrier/api/schemas"
	"github.com/xkilldash9x/harrier/internal/analysis/core"
)

// Lookahead windows, counted in entries after the step they are relative to.
const (
	idpWindow            = 10
	responseWindow       = 15
	acsWindow            = 5
	logoutResponseWindow = 5
)

// Detector is the SAML detection analyzer.
type Detector struct {
	*core.BaseAnalyzer
}

// NewDetector creates a SAML detector.
func NewDetector(logger *zap.Logger) *Detector {
	return &Detector{
		BaseAnalyzer: core.NewBaseAnalyzer(
			"saml_detector",
			"Reconstructs SAML SSO and logout exchanges.",
			core.TypePassive,
			logger,
		),
	}
}

// Analyze publishes flows and issues to Result.SAMLFlows and Result.SAMLIssues.
func (d *Detector) Analyze(ctx context.Context, analysisCtx *core.AnalysisContext) error {
	flows, issues := Detect(analysisCtx.Entries)
	analysisCtx.Result.SAMLFlows = flows
	analysisCtx.Result.SAMLIssues = issues
	d.Logger.Debug("Detected SAML flows", zap.Int("flows", len(flows)), zap.Int("issues", len(issues)))
	return nil
}

// Detect returns the SAML flows sorted by start time and the transport issues
// in entry order.
func Detect(entries []schemas.Entry) ([]schemas.SAMLFlow, []schemas.SAMLIssue) {
	flows := make([]schemas.SAMLFlow, 0)
	consumed := make(map[int]bool)

	for i := range entries {
		if !isAuthnRequest(&entries[i]) {
			continue
		}
		if f, ok := spInitiated(entries, i); ok {
			for _, s := range f.Steps {
				consumed[s.EntryIndex] = true
			}
			flows = append(flows, f)
		}
	}

	for i := range entries {
		if isSAMLResponse(&entries[i]) && !consumed[i] {
			flows = append(flows, idpInitiated(entries, i))
		}
	}

	for i := range entries {
		if isLogoutRequest(&entries[i]) {
			flows = append(flows, logout(entries, i))
		}
	}

	sort.SliceStable(flows, func(i, j int) bool {
		return flows[i].StartTime < flows[j].StartTime
	})
	return flows, transportIssues(entries)
}

func spInitiated(entries []schemas.Entry, anchor int) (schemas.SAMLFlow, bool) {
	steps := []schemas.SAMLStep{newStep(entries, anchor, schemas.SAMLRoleAuthnRequest, "SAML AuthnRequest sent to IdP")}

	respIdx, hasResp := findWithin(entries, anchor, responseWindow, isSAMLResponse)

	// The IdP interaction must happen before the response comes back.
	idpLimit := idpWindow
	if hasResp && respIdx-anchor-1 < idpLimit {
		idpLimit = respIdx - anchor - 1
	}
	if idx, ok := findWithin(entries, anchor, idpLimit, isIdPInteraction); ok {
		steps = append(steps, newStep(entries, idx, schemas.SAMLRoleIdPRedirect, "User authentication at IdP"))
	}

	var idpEntity string
	if hasResp {
		steps = append(steps, newStep(entries, respIdx, schemas.SAMLRoleResponse, "SAML Response received from IdP"))
		if idx, ok := findWithin(entries, respIdx, acsWindow, isACS); ok {
			steps = append(steps, newStep(entries, idx, schemas.SAMLRoleAssertionConsumerService, "Assertion Consumer Service processed response"))
		}
		idpEntity = issuer(&entries[respIdx].Request, "SAMLResponse")
	}

	if len(steps) < 2 {
		return schemas.SAMLFlow{}, false
	}
	f := newFlow(schemas.SAMLSPInitiated, steps)
	f.SPEntityID = issuer(&entries[anchor].Request, "SAMLRequest")
	f.IdPEntityID = idpEntity
	return f, true
}

// idpInitiated treats an unsolicited response as the anchor. A lone response
// is a valid flow.
func idpInitiated(entries []schemas.Entry, anchor int) schemas.SAMLFlow {
	steps := []schemas.SAMLStep{newStep(entries, anchor, schemas.SAMLRoleResponse, "SAML Response received from IdP")}
	if idx, ok := findWithin(entries, anchor, acsWindow, isACS); ok {
		steps = append(steps, newStep(entries, idx, schemas.SAMLRoleAssertionConsumerService, "Assertion Consumer Service processed response"))
	}
	f := newFlow(schemas.SAMLIdPInitiated, steps)
	f.IdPEntityID = issuer(&entries[anchor].Request, "SAMLResponse")
	return f
}

func logout(entries []schemas.Entry, anchor int) schemas.SAMLFlow {
	steps := []schemas.SAMLStep{newStep(entries, anchor, schemas.SAMLRoleLogoutRequest, "SAML Logout Request")}
	if idx, ok := findWithin(entries, anchor, logoutResponseWindow, isLogoutResponse); ok {
		steps = append(steps, newStep(entries, idx, schemas.SAMLRoleLogoutResponse, "SAML Logout Response"))
	}
	return newFlow(schemas.SAMLLogout, steps)
}

func transportIssues(entries []schemas.Entry) []schemas.SAMLIssue {
	issues := make([]schemas.SAMLIssue, 0)
	for i := range entries {
		e := &entries[i]
		if !core.IsInsecureURL(e.Request.URL) {
			continue
		}
		if isAuthnRequest(e) {
			issues = append(issues, schemas.SAMLIssue{
				Severity:   schemas.SeverityCritical,
				Message:    "SAML AuthnRequest sent over unencrypted HTTP",
				EntryIndex: i,
			})
		}
		if isSAMLResponse(e) {
			issues = append(issues, schemas.SAMLIssue{
				Severity:   schemas.SeverityCritical,
				Message:    "SAML Response sent over unencrypted HTTP",
				EntryIndex: i,
			})
		}
	}
	return issues
}

// -- Step plumbing --

// findWithin returns the first index in from+1..from+window that matches.
func findWithin(entries []schemas.Entry, from, window int, match func(*schemas.Entry) bool) (int, bool) {
	for i := from + 1; i <= from+window && i < len(entries); i++ {
		if match(&entries[i]) {
			return i, true
		}
	}
	return 0, false
}

func newStep(entries []schemas.Entry, idx int, role schemas.SAMLStepRole, description string) schemas.SAMLStep {
	e := &entries[idx]
	return schemas.SAMLStep{
		EntryIndex:  idx,
		Timestamp:   e.StartedDateTime,
		Role:        role,
		Method:      e.Request.Method,
		URL:         core.TruncateURL(e.Request.URL),
		Status:      e.Response.Status,
		Description: description,
	}
}

func newFlow(kind schemas.SAMLFlowKind, steps []schemas.SAMLStep) schemas.SAMLFlow {
	start := steps[0].Timestamp
	end := steps[len(steps)-1].Timestamp
	return schemas.SAMLFlow{
		Kind:       kind,
		StartTime:  start,
		EndTime:    end,
		DurationMs: core.DurationMs(start, end),
		Steps:      steps,
	}
}

// -- Predicates --

func isAuthnRequest(e *schemas.Entry) bool {
	if core.ContainsAny(strings.ToLower(e.Request.URL), "/saml/sso", "/saml2/sso", "samlrequest=") {
		return true
	}
	body, _ := e.Request.BodyText()
	return strings.Contains(body, "SAMLRequest")
}

func isSAMLResponse(e *schemas.Entry) bool {
	if strings.Contains(strings.ToLower(e.Request.URL), "samlresponse=") {
		return true
	}
	body, _ := e.Request.BodyText()
	return strings.Contains(body, "SAMLResponse")
}

func isLogoutRequest(e *schemas.Entry) bool {
	return core.ContainsAny(strings.ToLower(e.Request.URL), "/saml/logout", "/saml2/logout", "samllogoutrequest=")
}

func isLogoutResponse(e *schemas.Entry) bool {
	return strings.Contains(strings.ToLower(e.Request.URL), "samllogoutresponse=")
}

func isIdPInteraction(e *schemas.Entry) bool {
	return core.ContainsAny(strings.ToLower(e.Request.URL), "/idp/", "/sso/", "/auth/")
}

func isACS(e *schemas.Entry) bool {
	return core.ContainsAny(strings.ToLower(e.Request.URL), "/acs", "/saml/acs", "/consume")
}
