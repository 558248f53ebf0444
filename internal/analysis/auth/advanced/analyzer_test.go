// internal/analysis/auth/advanced/analyzer_test.go
package advanced

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xkilldash9x/harrier/api/schemas"
	"github.com/xkilldash9x/harrier/internal/analysis/core"
)

func get(url string) schemas.Entry {
	return schemas.Entry{
		StartedDateTime: "2024-01-01T00:00:00Z",
		Request:         schemas.Request{Method: "GET", URL: url},
		Response:        schemas.Response{Status: 200},
	}
}

func htmlPage(body string, headers ...schemas.NVPair) schemas.Entry {
	e := get("https://app.example/")
	e.Response.Headers = headers
	e.Response.Content = schemas.Content{MimeType: "text/html; charset=utf-8", Text: body}
	return e
}

func refresh(ts string) schemas.Entry {
	return schemas.Entry{
		StartedDateTime: ts,
		Request: schemas.Request{
			Method:   "POST",
			URL:      "https://idp.example/oauth/token",
			PostData: &schemas.PostData{MimeType: "application/x-www-form-urlencoded", Text: "grant_type=refresh_token&refresh_token=r"},
		},
		Response: schemas.Response{Status: 200},
	}
}

func TestTokenExposures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		entry schemas.Entry
		want  []schemas.ExposureKind
	}{
		{"access token query param", get("https://api.example/data?access_token=abc"), []schemas.ExposureKind{schemas.ExposureTokenInQueryParam}},
		{"jwt in path", get("https://api.example/verify/eyJhbGciOiJIUzI1NiJ9.e30.sig"), []schemas.ExposureKind{schemas.ExposureTokenInURL}},
		{"credentials", get("https://app.example/login?username=a&password=b"), []schemas.ExposureKind{schemas.ExposureCredentialsInURL}},
		{"api key", get("https://api.example/v1?api_key=k"), []schemas.ExposureKind{schemas.ExposureSensitiveDataInURL}},
		{"clean", get("https://app.example/home?page=2"), nil},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			var got []schemas.ExposureKind
			for _, e := range tokenExposures([]schemas.Entry{tt.entry}) {
				got = append(got, e.Kind)
				assert.Equal(t, 0, e.EntryIndex)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTokenExposures_RefererAndTruncation(t *testing.T) {
	t.Parallel()

	long := "https://app.example/cb?token=" + strings.Repeat("x", 200)
	e := get("https://cdn.example/pixel.gif")
	e.Request.Headers = []schemas.NVPair{{Name: "Referer", Value: long}}

	out := tokenExposures([]schemas.Entry{e})
	require.Len(t, out, 1)
	assert.Equal(t, schemas.ExposureTokenInReferer, out[0].Kind)
	assert.Equal(t, schemas.SeverityWarning, out[0].Severity)
	assert.Len(t, out[0].Location, maxLocationLength)
	assert.True(t, strings.HasSuffix(out[0].Location, "..."))
}

func TestCORSIssues(t *testing.T) {
	t.Parallel()

	wildcard := get("https://api.example/me")
	wildcard.Response.Headers = []schemas.NVPair{
		{Name: "Access-Control-Allow-Origin", Value: "*"},
		{Name: "Access-Control-Allow-Credentials", Value: "true"},
	}
	insecure := get("https://api.example/me")
	insecure.Response.Headers = []schemas.NVPair{{Name: "access-control-allow-origin", Value: "http://partner.example"}}
	missing := get("https://api.example/me")
	missing.Request.Headers = []schemas.NVPair{{Name: "Origin", Value: "https://app.example"}}
	wildcardOnly := get("https://api.example/public")
	wildcardOnly.Response.Headers = []schemas.NVPair{{Name: "Access-Control-Allow-Origin", Value: "*"}}

	issues := corsIssues([]schemas.Entry{wildcard, insecure, missing, wildcardOnly})
	require.Len(t, issues, 3)

	assert.Equal(t, schemas.CORSWildcardWithCredentials, issues[0].Kind)
	assert.Equal(t, schemas.SeverityCritical, issues[0].Severity)
	assert.Equal(t, 0, issues[0].EntryIndex)

	assert.Equal(t, schemas.CORSInsecureOrigin, issues[1].Kind)
	assert.Equal(t, "http://partner.example", issues[1].AllowOrigin)

	assert.Equal(t, schemas.CORSMissingHeaders, issues[2].Kind)
	assert.Equal(t, schemas.SeverityInfo, issues[2].Severity)
	assert.Equal(t, "https://app.example", issues[2].RequestOrigin)
}

func TestCSPFindings(t *testing.T) {
	t.Parallel()

	entries := []schemas.Entry{
		htmlPage("<html></html>", schemas.NVPair{Name: "Content-Security-Policy", Value: "default-src 'self'; script-src 'self' 'unsafe-inline' 'unsafe-eval' *.cdn.example"}),
		htmlPage("<html></html>"),
		htmlPage(`<html><head><meta http-equiv="Content-Security-Policy" content="default-src 'self'; img-src data: https:"></head><body></body></html>`),
		htmlPage("<html><body>no policy</body></html>"),
		get("https://api.example/json"),
	}

	findings := cspFindings(entries)
	require.Len(t, findings, 4)

	kinds := []schemas.CSPFindingKind{findings[0].Kind, findings[1].Kind, findings[2].Kind}
	assert.Equal(t, []schemas.CSPFindingKind{schemas.CSPUnsafeInline, schemas.CSPUnsafeEval, schemas.CSPWildcardSource}, kinds)
	require.NotNil(t, findings[0].EntryIndex)
	assert.Equal(t, 0, *findings[0].EntryIndex)

	last := findings[3]
	assert.Equal(t, schemas.CSPMissing, last.Kind)
	assert.Equal(t, schemas.SeverityInfo, last.Severity)
	assert.Equal(t, 2, last.Count)
	assert.Nil(t, last.EntryIndex)
	assert.Equal(t, "2 HTML response(s) without Content-Security-Policy header", last.Message)
}

func TestCSPFindings_MetaPolicyEvaluated(t *testing.T) {
	t.Parallel()

	page := htmlPage(`<head><META HTTP-EQUIV="content-security-policy" CONTENT="script-src 'unsafe-eval'"></head>`)
	findings := cspFindings([]schemas.Entry{page})
	require.Len(t, findings, 1)
	assert.Equal(t, schemas.CSPUnsafeEval, findings[0].Kind)
	assert.Equal(t, "script-src 'unsafe-eval'", findings[0].Policy)
}

func TestHasWildcardSource(t *testing.T) {
	t.Parallel()

	assert.True(t, hasWildcardSource("default-src *"))
	assert.True(t, hasWildcardSource("img-src 'self' https://*.example.com"))
	assert.False(t, hasWildcardSource("img-src data: 'self'"))
	assert.False(t, hasWildcardSource("default-src 'self'"))
}

func TestRefreshPatterns(t *testing.T) {
	t.Parallel()

	t.Run("single refresh is not a pattern", func(t *testing.T) {
		t.Parallel()
		assert.Empty(t, refreshPatterns([]schemas.Entry{refresh("2024-01-01T00:00:00Z")}))
	})

	t.Run("two refreshes are on demand", func(t *testing.T) {
		t.Parallel()
		out := refreshPatterns([]schemas.Entry{refresh("2024-01-01T00:00:00Z"), get("https://x"), refresh("2024-01-01T00:05:00Z")})
		require.Len(t, out, 1)
		assert.Equal(t, schemas.RefreshOnDemand, out[0].Kind)
		assert.Equal(t, []int{0, 2}, out[0].EntryIndices)
		assert.InDelta(t, 300.0, out[0].FrequencySeconds, 0.001)
		assert.Equal(t, "Token refreshed 2 times during session", out[0].Description)
	})

	t.Run("three refreshes rotate", func(t *testing.T) {
		t.Parallel()
		out := refreshPatterns([]schemas.Entry{refresh("bad"), refresh("2024-01-01T00:00:00Z"), refresh("2024-01-01T00:01:00Z")})
		require.Len(t, out, 1)
		assert.Equal(t, schemas.RefreshAutomaticRotation, out[0].Kind)
		assert.Equal(t, 3, out[0].RefreshCount)
		assert.InDelta(t, 60.0, out[0].FrequencySeconds, 0.001)
	})
}

func TestAnalyzer_Analyze(t *testing.T) {
	t.Parallel()

	a := NewAnalyzer(zap.NewNop())
	assert.Equal(t, "advanced_security", a.Name())

	ac := core.NewAnalysisContext(nil, zap.NewNop(), nil, core.DefaultOptions())
	require.NoError(t, a.Analyze(context.Background(), ac))
	assert.NotNil(t, ac.Result.Advanced.TokenExposures)
	assert.Empty(t, ac.Result.Advanced.TokenExposures)
	assert.Empty(t, ac.Result.Advanced.CORSIssues)
	assert.Empty(t, ac.Result.Advanced.CSPFindings)
	assert.Empty(t, ac.Result.Advanced.RefreshPatterns)
}
