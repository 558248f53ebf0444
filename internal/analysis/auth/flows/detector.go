// internal/analysis/auth/flows/detector.go

// Package flows reconstructs multi-step authentication protocol executions:
// OAuth 2.0 grants, HTML form logins and JSON API logins.
package flows

import (
	"context"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/harrier/api/schemas"
	"github.com/xkilldash9x/harrier/internal/analysis/core"
)

const (
	descAuthRequest    = "Authorization request initiated"
	descCallback       = "Authorization code received"
	descTokenExchange  = "Token exchange request"
	descFirstAuth      = "First authenticated request"
	descClientCreds    = "Client credentials token request"
	descImplicit       = "Implicit flow authorization (token in redirect)"
	descLoginPage      = "Login page loaded"
	descCredentials    = "Credentials submitted"
	descJSONAuth       = "JSON authentication request"
	descTokenInJSONRes = "Token received in JSON response"
)

// Detector is the flow detection analyzer.
type Detector struct {
	*core.BaseAnalyzer
}

// NewDetector creates a flow detector.
func NewDetector(logger *zap.Logger) *Detector {
	return &Detector{
		BaseAnalyzer: core.NewBaseAnalyzer(
			"flow_detector",
			"Reconstructs OAuth 2.0, form-based and JSON API login flows.",
			core.TypePassive,
			logger,
		),
	}
}

// Analyze publishes the flows to Result.Flows.
func (d *Detector) Analyze(ctx context.Context, analysisCtx *core.AnalysisContext) error {
	flows := Detect(analysisCtx.Entries)
	analysisCtx.Result.Flows = flows
	d.Logger.Debug("Detected authentication flows", zap.Int("count", len(flows)))
	return nil
}

// Detect runs every flow family and returns the flows sorted by start time.
func Detect(entries []schemas.Entry) []schemas.AuthFlow {
	flows := make([]schemas.AuthFlow, 0)
	flows = append(flows, authorizationCode(entries)...)
	flows = append(flows, clientCredentials(entries)...)
	flows = append(flows, implicit(entries)...)
	flows = append(flows, formLogin(entries)...)
	flows = append(flows, jsonLogin(entries)...)

	sort.SliceStable(flows, func(i, j int) bool {
		return flows[i].StartTime < flows[j].StartTime
	})
	return flows
}

func authorizationCode(entries []schemas.Entry) []schemas.AuthFlow {
	var flows []schemas.AuthFlow
	for i := range entries {
		if !isAuthorizeRequest(&entries[i]) {
			continue
		}
		pkce := hasPKCEChallenge(&entries[i])
		steps := runStages(entries, i, schemas.RoleAuthorizationRequest, descAuthRequest, []stage{
			{role: schemas.RoleAuthorizationCallback, description: descCallback, window: callbackWindow, match: isAuthorizationCallback},
			{role: schemas.RoleTokenExchange, description: descTokenExchange, window: exchangeWindow, match: codeExchangeMatcher(pkce)},
			{role: schemas.RoleFirstAuthenticatedRequest, description: descFirstAuth, window: bearerWindow, match: hasBearer},
		})
		if len(steps) > 1 {
			flows = append(flows, newFlow(schemas.FlowOAuth2AuthorizationCode, pkce, steps))
		}
	}
	return flows
}

func clientCredentials(entries []schemas.Entry) []schemas.AuthFlow {
	var flows []schemas.AuthFlow
	for i := range entries {
		if !isClientCredentialsRequest(&entries[i]) {
			continue
		}
		steps := runStages(entries, i, schemas.RoleTokenExchange, descClientCreds, []stage{
			{role: schemas.RoleFirstAuthenticatedRequest, description: descFirstAuth, window: bearerWindow, match: hasBearer},
		})
		flows = append(flows, newFlow(schemas.FlowOAuth2ClientCredentials, false, steps))
	}
	return flows
}

// implicit flows are single-step: the token arrives in a URL fragment that
// never reaches the server.
func implicit(entries []schemas.Entry) []schemas.AuthFlow {
	var flows []schemas.AuthFlow
	for i := range entries {
		if !isImplicitRequest(&entries[i]) {
			continue
		}
		steps := runStages(entries, i, schemas.RoleAuthorizationRequest, descImplicit, nil)
		flows = append(flows, newFlow(schemas.FlowOAuth2Implicit, false, steps))
	}
	return flows
}

func formLogin(entries []schemas.Entry) []schemas.AuthFlow {
	var flows []schemas.AuthFlow
	for i := range entries {
		if !isLoginPage(&entries[i]) {
			continue
		}
		steps := runStages(entries, i, schemas.RoleLoginPage, descLoginPage, []stage{
			{
				role:        schemas.RoleCredentialsSubmission,
				description: descCredentials,
				window:      submissionWindow,
				match:       isFormSubmission,
				proceed:     func(e *schemas.Entry) bool { return core.SetsSessionCookie(&e.Response) },
			},
			{
				role:        schemas.RoleFirstAuthenticatedRequest,
				description: descFirstAuth,
				window:      sessionWindow,
				match:       func(e *schemas.Entry) bool { return core.SendsSessionCookie(&e.Request) },
			},
		})
		if len(steps) > 1 {
			flows = append(flows, newFlow(schemas.FlowFormBased, false, steps))
		}
	}
	return flows
}

func jsonLogin(entries []schemas.Entry) []schemas.AuthFlow {
	var flows []schemas.AuthFlow
	for i := range entries {
		if !isJSONLogin(&entries[i]) {
			continue
		}
		steps := runStages(entries, i, schemas.RoleCredentialsSubmission, descJSONAuth, []stage{
			{role: schemas.RoleTokenResponse, description: descTokenInJSONRes, match: hasJSONTokenResponse},
			{role: schemas.RoleFirstAuthenticatedRequest, description: descFirstAuth, window: bearerWindow, match: hasBearer},
		})
		if len(steps) > 1 {
			flows = append(flows, newFlow(schemas.FlowJSONAPI, false, steps))
		}
	}
	return flows
}

// -- Predicates --

func isPost(e *schemas.Entry) bool {
	return strings.EqualFold(e.Request.Method, "POST")
}

func lowerURL(e *schemas.Entry) string {
	return strings.ToLower(e.Request.URL)
}

func hasBearer(e *schemas.Entry) bool {
	return core.HasBearer(&e.Request)
}

func isAuthorizeRequest(e *schemas.Entry) bool {
	return strings.Contains(lowerURL(e), "/authorize")
}

func hasPKCEChallenge(e *schemas.Entry) bool {
	return strings.Contains(e.Request.URL, "code_challenge=") &&
		strings.Contains(e.Request.URL, "code_challenge_method=")
}

func isAuthorizationCallback(e *schemas.Entry) bool {
	return core.ContainsAny(e.Request.URL, "?code=", "&code=")
}

func codeExchangeMatcher(pkce bool) matcher {
	return func(e *schemas.Entry) bool {
		if !isPost(e) || !strings.Contains(lowerURL(e), "/token") {
			return false
		}
		body, _ := e.Request.BodyText()
		if !strings.Contains(body, "grant_type=authorization_code") {
			return false
		}
		return !pkce || strings.Contains(body, "code_verifier=")
	}
}

func isClientCredentialsRequest(e *schemas.Entry) bool {
	if !isPost(e) || !strings.Contains(lowerURL(e), "/token") {
		return false
	}
	body, _ := e.Request.BodyText()
	return strings.Contains(body, "grant_type=client_credentials")
}

func isImplicitRequest(e *schemas.Entry) bool {
	return isAuthorizeRequest(e) && strings.Contains(e.Request.URL, "response_type=token")
}

func isLoginPage(e *schemas.Entry) bool {
	return strings.EqualFold(e.Request.Method, "GET") &&
		core.ContainsAny(lowerURL(e), "/login", "/signin", "/auth/login") &&
		core.IsHTML(e.Response.Content.MimeType)
}

func isFormSubmission(e *schemas.Entry) bool {
	if !isPost(e) || !core.ContainsAny(lowerURL(e), "/login", "/signin", "/auth") {
		return false
	}
	body, mime := e.Request.BodyText()
	return core.IsFormBody(mime) && core.HasCredentialFields(body)
}

func isJSONLogin(e *schemas.Entry) bool {
	if !isPost(e) || !core.ContainsAny(lowerURL(e), "/login", "/auth/login", "/api/login", "/api/auth") {
		return false
	}
	body, mime := e.Request.BodyText()
	return core.IsJSON(mime) && core.HasJSONCredentialFields(body)
}

func hasJSONTokenResponse(e *schemas.Entry) bool {
	return e.Response.Status == 200 &&
		core.IsJSON(e.Response.Content.MimeType) &&
		core.HasTokenKey(e.Response.Content.Text)
}
