// internal/analysis/auth/jwt/analyzer.go

// Package jwt finds, decodes, deduplicates and audits JSON Web Tokens carried
// in request headers, JSON response bodies and URLs.
package jwt

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/harrier/api/schemas"
	"github.com/xkilldash9x/harrier/internal/analysis/core"
)

// dedupKeyLength is the token prefix used to group repeated observations.
const dedupKeyLength = 20

// bodyTokenFields are the JSON members that commonly carry issued tokens.
var bodyTokenFields = []string{"token", "access_token", "accessToken", "id_token", "idToken"}

// Analyzer is the JWT analyzer.
type Analyzer struct {
	*core.BaseAnalyzer
}

// NewAnalyzer creates a JWT analyzer.
func NewAnalyzer(logger *zap.Logger) *Analyzer {
	return &Analyzer{
		BaseAnalyzer: core.NewBaseAnalyzer(
			"jwt_analyzer",
			"Decodes JWTs from headers, JSON bodies and URLs and audits their structure.",
			core.TypePassive,
			logger,
		),
	}
}

// Analyze publishes tokens and issues to Result.JWTTokens and Result.JWTIssues.
func (a *Analyzer) Analyze(ctx context.Context, analysisCtx *core.AnalysisContext) error {
	tokens, issues := Scan(analysisCtx.Entries, analysisCtx.Fields)
	analysisCtx.Result.JWTTokens = tokens
	analysisCtx.Result.JWTIssues = issues
	a.Logger.Debug("JWT analysis complete", zap.Int("tokens", len(tokens)), zap.Int("issues", len(issues)))
	return nil
}

// scanner holds the per-call grouping state.
type scanner struct {
	order  []string
	tokens map[string]*schemas.JWTToken
	issues []schemas.JWTIssue
}

// Scan returns the distinct tokens in first-seen order and the issues in the
// order they were found. A nil finder selects the tolerant scanner.
func Scan(entries []schemas.Entry, finder core.FieldFinder) ([]schemas.JWTToken, []schemas.JWTIssue) {
	if finder == nil {
		finder = core.ScanFieldFinder{}
	}
	s := &scanner{tokens: make(map[string]*schemas.JWTToken)}

	for idx := range entries {
		e := &entries[idx]

		for _, h := range e.Request.Headers {
			if !strings.EqualFold(h.Name, "authorization") || !strings.HasPrefix(h.Value, "Bearer ") {
				continue
			}
			s.observe(strings.TrimSpace(h.Value[len("Bearer "):]), idx, e.StartedDateTime)
		}

		if core.IsJSON(e.Response.Content.MimeType) && e.Response.Content.Text != "" {
			for _, field := range bodyTokenFields {
				if v, ok := finder.FindStringField(e.Response.Content.Text, field); ok {
					s.observe(v, idx, e.StartedDateTime)
				}
			}
		}

		if u := e.Request.URL; strings.Contains(u, "Bearer%20") || strings.Contains(u, "eyJ") {
			s.issues = append(s.issues, schemas.JWTIssue{
				Severity:     schemas.SeverityCritical,
				Kind:         schemas.JWTTokenInURL,
				Message:      fmt.Sprintf("JWT token found in URL at entry %d", idx),
				TokenPreview: core.TruncateURL(u),
				EntryIndex:   idx,
			})
		}
	}

	tokens := make([]schemas.JWTToken, 0, len(s.order))
	for _, key := range s.order {
		tok := s.tokens[key]
		tok.UsageCount = len(tok.EntryIndices)
		tokens = append(tokens, *tok)
	}
	issues := s.issues
	if issues == nil {
		issues = []schemas.JWTIssue{}
	}
	return tokens, issues
}

// observe records one sighting. Repeats only update bookkeeping; new tokens
// are decoded and audited once. Undecodable candidates are dropped.
func (s *scanner) observe(raw string, idx int, timestamp string) {
	if _, _, _, ok := core.SplitJWT(raw); !ok {
		return
	}
	key := core.Prefix(raw, dedupKeyLength)
	if tok, ok := s.tokens[key]; ok {
		tok.LastSeen = timestamp
		if n := len(tok.EntryIndices); tok.EntryIndices[n-1] != idx {
			tok.EntryIndices = append(tok.EntryIndices, idx)
		}
		return
	}

	tok, err := parseToken(raw, timestamp)
	if err != nil {
		return
	}
	tok.EntryIndices = []int{idx}
	s.tokens[key] = &tok
	s.order = append(s.order, key)
	s.issues = append(s.issues, auditToken(tok, idx)...)
}
