// internal/analysis/auth/methods/detector.go

// Package methods classifies the coarse authentication signals carried by
// each request into a set of methods.
package methods

import (
	"context"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/harrier/api/schemas"
	"github.com/xkilldash9x/harrier/internal/analysis/core"
)

// Detector is the method detection analyzer.
type Detector struct {
	*core.BaseAnalyzer
}

// NewDetector creates a method detector.
func NewDetector(logger *zap.Logger) *Detector {
	return &Detector{
		BaseAnalyzer: core.NewBaseAnalyzer(
			"method_detector",
			"Classifies Authorization, API key, custom and cookie authentication signals.",
			core.TypePassive,
			logger,
		),
	}
}

// Analyze publishes the detected methods to Result.Methods.
func (d *Detector) Analyze(ctx context.Context, analysisCtx *core.AnalysisContext) error {
	methods := Detect(analysisCtx.Entries)
	analysisCtx.Result.Methods = methods
	d.Logger.Debug("Detected authentication methods", zap.Int("count", len(methods)))
	return nil
}

// Detect returns the distinct methods observed across all entries, sorted by
// display name.
func Detect(entries []schemas.Entry) []schemas.AuthMethod {
	seen := make(map[schemas.AuthMethod]struct{})
	for i := range entries {
		for _, m := range entryMethods(&entries[i].Request) {
			seen[m] = struct{}{}
		}
	}

	out := make([]schemas.AuthMethod, 0, len(seen))
	for m := range seen {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].DisplayName() < out[j].DisplayName()
	})
	return out
}

func entryMethods(req *schemas.Request) []schemas.AuthMethod {
	var found []schemas.AuthMethod
	for _, h := range req.Headers {
		name := strings.ToLower(h.Name)
		switch {
		case name == "authorization":
			if m, ok := classifyAuthorization(h.Value); ok {
				found = append(found, m)
			}
		case core.IsAPIKeyHeader(name):
			found = append(found, schemas.AuthMethod{Kind: schemas.MethodAPIKey, Header: h.Name})
		case name == "cookie":
			// Archives without a parsed cookie list still carry the raw header.
			if core.ContainsAny(strings.ToLower(h.Value), "session", "auth", "token", "jwt", "sid") {
				found = append(found, schemas.AuthMethod{Kind: schemas.MethodCookie})
			}
		case strings.Contains(name, "auth") || strings.Contains(name, "token"):
			found = append(found, schemas.AuthMethod{Kind: schemas.MethodCustom, Header: h.Name})
		}
	}
	if core.HasAuthCookie(req) {
		found = append(found, schemas.AuthMethod{Kind: schemas.MethodCookie})
	}
	return found
}

func classifyAuthorization(value string) (schemas.AuthMethod, bool) {
	switch {
	case strings.HasPrefix(value, "Basic "):
		return schemas.AuthMethod{Kind: schemas.MethodBasic}, true
	case strings.HasPrefix(value, "Bearer "):
		token := strings.TrimSpace(value[len("Bearer "):])
		if core.IsJWTShape(token) {
			return schemas.AuthMethod{Kind: schemas.MethodJWT}, true
		}
		return schemas.AuthMethod{Kind: schemas.MethodBearer}, true
	case strings.HasPrefix(value, "OAuth "):
		return schemas.AuthMethod{Kind: schemas.MethodOAuth}, true
	}
	return schemas.AuthMethod{}, false
}
