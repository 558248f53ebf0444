// internal/analysis/auth/notes/analyzer.go

// Package notes derives cross-cutting security notes from the detected
// methods and sessions, plus a transport check over the raw entries.
package notes

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/harrier/api/schemas"
	"github.com/xkilldash9x/harrier/internal/analysis/core"
)

// Note messages. Cookie and header names go in SecurityNote.Subject.
const (
	MsgBasicAuth       = "Basic Authentication detected - credentials encoded in header (use HTTPS)"
	MsgAPIKeyAuth      = "API Key authentication detected"
	MsgMissingHTTPOnly = "Session cookie missing HttpOnly flag (vulnerable to XSS)"
	MsgMissingSecure   = "Session cookie on HTTPS connection missing Secure flag"
	MsgMissingSameSite = "Session cookie missing SameSite attribute (consider setting to Lax or Strict)"
	MsgJWTReminder     = "JWT tokens detected - ensure tokens are validated and not expired"
	MsgAPIKeyInQuery   = "API key detected in query parameter (prefer header-based authentication)"
	MsgPlainHTTPAuth   = "Authentication credentials sent over unencrypted HTTP connection (use HTTPS)"
)

// Analyzer is the security note analyzer. It reads Result.Methods and
// Result.Sessions, so it must run after the passive analyzers.
type Analyzer struct {
	*core.BaseAnalyzer
}

// NewAnalyzer creates a security note analyzer.
func NewAnalyzer(logger *zap.Logger) *Analyzer {
	return &Analyzer{
		BaseAnalyzer: core.NewBaseAnalyzer(
			"security_notes",
			"Derives security notes from authentication methods, sessions and transport.",
			core.TypeDerived,
			logger,
		),
	}
}

// Analyze publishes the notes to Result.SecurityNotes.
func (a *Analyzer) Analyze(ctx context.Context, analysisCtx *core.AnalysisContext) error {
	result := analysisCtx.Result
	notes := Derive(analysisCtx.Entries, result.Methods, result.Sessions, analysisCtx.Options)
	result.SecurityNotes = notes
	a.Logger.Debug("Derived security notes", zap.Int("count", len(notes)))
	return nil
}

// Derive builds the notes in a fixed order: method notes, session notes in
// session order, then the transport note.
func Derive(entries []schemas.Entry, methods []schemas.AuthMethod, sessions []schemas.AuthSession, opts core.Options) []schemas.SecurityNote {
	out := make([]schemas.SecurityNote, 0)
	out = append(out, methodNotes(methods)...)
	out = append(out, sessionNotes(entries, sessions, opts)...)
	if n, ok := transportNote(entries); ok {
		out = append(out, n)
	}
	return out
}

func methodNotes(methods []schemas.AuthMethod) []schemas.SecurityNote {
	var out []schemas.SecurityNote
	for _, m := range methods {
		switch m.Kind {
		case schemas.MethodBasic:
			out = append(out, schemas.SecurityNote{
				Severity: schemas.SeverityWarning,
				Category: schemas.CategoryAuthMethod,
				Message:  MsgBasicAuth,
			})
		case schemas.MethodAPIKey:
			out = append(out, schemas.SecurityNote{
				Severity: schemas.SeverityInfo,
				Category: schemas.CategoryAuthMethod,
				Message:  MsgAPIKeyAuth,
				Subject:  m.Header,
			})
		}
	}
	return out
}

func sessionNotes(entries []schemas.Entry, sessions []schemas.AuthSession, opts core.Options) []schemas.SecurityNote {
	var out []schemas.SecurityNote
	for _, s := range sessions {
		if len(s.EntryIndices) == 0 {
			continue
		}
		first := s.EntryIndices[0]

		switch s.Type.Kind {
		case schemas.SessionCookie:
			attrs := s.Attributes
			if attrs == nil {
				continue
			}
			note := func(sev schemas.Severity, msg string) schemas.SecurityNote {
				return schemas.SecurityNote{
					Severity:   sev,
					Category:   schemas.CategoryCookie,
					Message:    msg,
					Subject:    s.Type.CookieName,
					EntryIndex: intPtr(first),
				}
			}
			if !attrs.HTTPOnly {
				out = append(out, note(schemas.SeverityWarning, MsgMissingHTTPOnly))
			}
			if !attrs.Secure && first < len(entries) && core.IsSecureURL(entries[first].Request.URL) {
				out = append(out, note(schemas.SeverityWarning, MsgMissingSecure))
			}
			if opts.SameSiteNotes && attrs.SameSite == "" {
				out = append(out, note(schemas.SeverityInfo, MsgMissingSameSite))
			}

		case schemas.SessionBearerToken:
			if s.Type.IsJWT {
				out = append(out, schemas.SecurityNote{
					Severity:   schemas.SeverityInfo,
					Category:   schemas.CategoryToken,
					Message:    MsgJWTReminder,
					EntryIndex: intPtr(first),
				})
			}

		case schemas.SessionAPIKey:
			if first < len(entries) && apiKeyInQuery(entries[first].Request.URL) {
				out = append(out, schemas.SecurityNote{
					Severity:   schemas.SeverityWarning,
					Category:   schemas.CategoryAPIKey,
					Message:    MsgAPIKeyInQuery,
					Subject:    s.Type.HeaderName,
					EntryIndex: intPtr(first),
				})
			}
		}
	}
	return out
}

func apiKeyInQuery(u string) bool {
	return core.ContainsAny(strings.ToLower(u), "api_key=", "apikey=", "key=")
}

// transportNote reports only the first plain HTTP request that carries
// authentication material.
func transportNote(entries []schemas.Entry) (schemas.SecurityNote, bool) {
	for i := range entries {
		req := &entries[i].Request
		if !core.IsInsecureURL(req.URL) || !carriesAuth(req) {
			continue
		}
		return schemas.SecurityNote{
			Severity:   schemas.SeverityCritical,
			Category:   schemas.CategoryTransport,
			Message:    MsgPlainHTTPAuth,
			EntryIndex: intPtr(i),
		}, true
	}
	return schemas.SecurityNote{}, false
}

func carriesAuth(req *schemas.Request) bool {
	for _, h := range req.Headers {
		if strings.EqualFold(h.Name, "authorization") || core.IsAPIKeySessionHeader(h.Name) {
			return true
		}
	}
	return core.HasAuthCookie(req)
}

func intPtr(i int) *int { return &i }
