// internal/analysis/auth/events/detector.go

// Package events finds single-transaction authentication events such as
// logins, logouts, token refreshes and expired sessions.
package events

import (
	"context"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/harrier/api/schemas"
	"github.com/xkilldash9x/harrier/internal/analysis/core"
)

// Detector is the event detection analyzer.
type Detector struct {
	*core.BaseAnalyzer
}

// NewDetector creates an event detector.
func NewDetector(logger *zap.Logger) *Detector {
	return &Detector{
		BaseAnalyzer: core.NewBaseAnalyzer(
			"event_detector",
			"Detects login, logout, refresh, expiry and password reset events.",
			core.TypePassive,
			logger,
		),
	}
}

// Analyze publishes the events to Result.Events.
func (d *Detector) Analyze(ctx context.Context, analysisCtx *core.AnalysisContext) error {
	events := Detect(analysisCtx.Entries, analysisCtx.Fields)
	analysisCtx.Result.Events = events
	d.Logger.Debug("Detected authentication events", zap.Int("count", len(events)))
	return nil
}

type rule func(idx int, e *schemas.Entry, finder core.FieldFinder) (schemas.AuthEvent, bool)

// rules run in this order; ties in the final timestamp sort keep it.
var rules = []rule{loginEvent, logoutEvent, refreshEvent, expiredEvent, passwordResetEvent}

// Detect returns the events sorted by timestamp. A nil finder selects the
// tolerant scanner.
func Detect(entries []schemas.Entry, finder core.FieldFinder) []schemas.AuthEvent {
	if finder == nil {
		finder = core.ScanFieldFinder{}
	}
	events := make([]schemas.AuthEvent, 0)
	for _, r := range rules {
		for i := range entries {
			if ev, ok := r(i, &entries[i], finder); ok {
				events = append(events, ev)
			}
		}
	}
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Timestamp < events[j].Timestamp
	})
	return events
}

func newEvent(kind schemas.EventKind, idx int, e *schemas.Entry, details schemas.EventDetails) schemas.AuthEvent {
	return schemas.AuthEvent{
		Kind:       kind,
		Timestamp:  e.StartedDateTime,
		EntryIndex: idx,
		Method:     e.Request.Method,
		URL:        core.TruncateURL(e.Request.URL),
		Status:     e.Response.Status,
		Details:    details,
	}
}

// -- Rules --

func loginEvent(idx int, e *schemas.Entry, finder core.FieldFinder) (schemas.AuthEvent, bool) {
	if !isLoginAttempt(e) {
		return schemas.AuthEvent{}, false
	}
	details := schemas.EventDetails{CredentialType: credentialType(e)}
	if isSuccessfulLogin(e) {
		details.Description = "User successfully authenticated"
		return newEvent(schemas.EventLoginSuccess, idx, e, details), true
	}
	details.Description = "Login attempt failed"
	details.ErrorMessage = errorMessage(e, finder)
	return newEvent(schemas.EventLoginFailure, idx, e, details), true
}

func logoutEvent(idx int, e *schemas.Entry, _ core.FieldFinder) (schemas.AuthEvent, bool) {
	method := strings.ToUpper(e.Request.Method)
	if (method != "GET" && method != "POST") || !core.ContainsAny(strings.ToLower(e.Request.URL), "/logout", "/signout") {
		return schemas.AuthEvent{}, false
	}
	return newEvent(schemas.EventLogout, idx, e, schemas.EventDetails{Description: "User logged out"}), true
}

func refreshEvent(idx int, e *schemas.Entry, finder core.FieldFinder) (schemas.AuthEvent, bool) {
	if !core.IsTokenRefreshRequest(&e.Request) {
		return schemas.AuthEvent{}, false
	}
	details := schemas.EventDetails{CredentialType: "refresh_token"}
	if e.Response.Status == 200 {
		details.Description = "Access token refreshed successfully"
	} else {
		details.Description = "Token refresh failed"
		details.ErrorMessage = errorMessage(e, finder)
	}
	return newEvent(schemas.EventTokenRefresh, idx, e, details), true
}

func expiredEvent(idx int, e *schemas.Entry, finder core.FieldFinder) (schemas.AuthEvent, bool) {
	if !isSessionExpired(e) {
		return schemas.AuthEvent{}, false
	}
	return newEvent(schemas.EventSessionExpired, idx, e, schemas.EventDetails{
		Description:  "Session expired or invalid",
		ErrorMessage: errorMessage(e, finder),
	}), true
}

func passwordResetEvent(idx int, e *schemas.Entry, _ core.FieldFinder) (schemas.AuthEvent, bool) {
	if !strings.EqualFold(e.Request.Method, "POST") {
		return schemas.AuthEvent{}, false
	}
	u := strings.ToLower(e.Request.URL)
	if !core.ContainsAny(u, "/reset", "/forgot") {
		return schemas.AuthEvent{}, false
	}
	body, _ := e.Request.BodyText()
	if !core.ContainsAny(u, "password", "pwd") && !core.ContainsAny(strings.ToLower(body), "password", "pwd") {
		return schemas.AuthEvent{}, false
	}
	return newEvent(schemas.EventPasswordReset, idx, e, schemas.EventDetails{Description: "Password reset request"}), true
}

// -- Predicates --

func isLoginAttempt(e *schemas.Entry) bool {
	if !strings.EqualFold(e.Request.Method, "POST") {
		return false
	}
	u := strings.ToLower(e.Request.URL)
	body, _ := e.Request.BodyText()

	if core.ContainsAny(u, "/login", "/signin", "/auth/login", "/api/auth", "/authenticate") &&
		strings.Contains(body, "password") &&
		core.ContainsAny(body, "username", "email", `"user"`) {
		return true
	}
	// Resource owner password grant.
	return strings.Contains(u, "/token") && strings.Contains(body, "grant_type=password")
}

// isSuccessfulLogin requires a 200 or 201 that hands back a session cookie or
// a token. A redirect alone is not success: failed logins commonly bounce
// back to the form.
func isSuccessfulLogin(e *schemas.Entry) bool {
	status := e.Response.Status
	if status != 200 && status != 201 {
		return false
	}
	if core.SetsSessionCookie(&e.Response) {
		return true
	}
	return core.IsJSON(e.Response.Content.MimeType) && core.HasTokenKey(e.Response.Content.Text)
}

// isSessionExpired matches a 401 on a request that carried credentials.
// Unauthenticated 401s say nothing about a session.
func isSessionExpired(e *schemas.Entry) bool {
	if e.Response.Status != 401 {
		return false
	}
	_, hasAuth := e.Request.Header("authorization")
	_, hasCookie := e.Request.Header("cookie")
	if !hasAuth && !hasCookie && len(e.Request.Cookies) == 0 {
		return false
	}
	text := strings.ToLower(e.Response.Content.Text)
	return text == "" || core.ContainsAny(text, "expired", "invalid", "unauthorized")
}

func credentialType(e *schemas.Entry) string {
	body, _ := e.Request.BodyText()
	switch {
	case strings.Contains(body, "username"):
		return "username_password"
	case strings.Contains(body, "email"):
		return "email_password"
	case strings.Contains(body, "grant_type=password"):
		return "oauth_password"
	}
	return ""
}

// errorMessage pulls the first "error" or "message" string out of a JSON
// response body.
func errorMessage(e *schemas.Entry, finder core.FieldFinder) string {
	if !core.IsJSON(e.Response.Content.MimeType) || e.Response.Content.Text == "" {
		return ""
	}
	for _, key := range []string{"error", "message"} {
		if v, ok := finder.FindStringField(e.Response.Content.Text, key); ok {
			return v
		}
	}
	return ""
}
