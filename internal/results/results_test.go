// internal/results/results_test.go
package results

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xkilldash9x/harrier/api/schemas"
	"github.com/xkilldash9x/harrier/internal/analysis/auth/notes"
	"github.com/xkilldash9x/harrier/internal/results/providers"
)

// -- Mock Definitions --

type MockStore struct {
	mock.Mock
}

func (m *MockStore) PersistRun(ctx context.Context, envelope *schemas.ResultEnvelope) error {
	args := m.Called(ctx, envelope)
	return args.Error(0)
}

func (m *MockStore) GetFindingsByRunID(ctx context.Context, runID string) ([]schemas.Finding, error) {
	args := m.Called(ctx, runID)
	findings, _ := args.Get(0).([]schemas.Finding)
	return findings, args.Error(1)
}

type MockCWEProvider struct {
	mock.Mock
}

func (m *MockCWEProvider) GetCWE(id string) (*providers.CWEEntry, error) {
	args := m.Called(id)
	entry, _ := args.Get(0).(*providers.CWEEntry)
	return entry, args.Error(1)
}

// -- Fixtures --

func intPtr(i int) *int { return &i }

func fixtureEntries() []schemas.Entry {
	urls := []string{
		"https://api.example.com/v1/me",
		"https://api.example.com/v1/orders",
		"https://app.example.com/callback?access_token=abc",
	}
	entries := make([]schemas.Entry, len(urls))
	for i, u := range urls {
		entries[i] = schemas.Entry{Request: schemas.Request{Method: "GET", URL: u}}
	}
	return entries
}

func fixtureAnalysis() *schemas.AuthAnalysis {
	return &schemas.AuthAnalysis{
		RunID:      "run-1",
		EntryCount: 3,
		JWTIssues: []schemas.JWTIssue{
			{Severity: schemas.SeverityCritical, Kind: schemas.JWTNoAlgorithm, Message: "JWT uses 'none' algorithm", TokenPreview: "eyJhbGciOiJub25lIn0...", EntryIndex: 1},
		},
		SecurityNotes: []schemas.SecurityNote{
			{Severity: schemas.SeverityWarning, Category: schemas.CategoryCookie, Message: notes.MsgMissingHTTPOnly, Subject: "sid"},
		},
		Advanced: schemas.AdvancedSecurity{
			TokenExposures: []schemas.TokenExposure{
				{Severity: schemas.SeverityWarning, Kind: schemas.ExposureTokenInQueryParam, Message: "Authentication token passed as query parameter (will be logged)", Location: "https://app.example.com/callback?access_token=abc", EntryIndex: 2},
			},
			CORSIssues: []schemas.CORSIssue{
				{Severity: schemas.SeverityCritical, Kind: schemas.CORSWildcardWithCredentials, Message: "CORS allows any origin with credentials", AllowOrigin: "*", EntryIndex: 0},
			},
			CSPFindings: []schemas.CSPFinding{
				{Severity: schemas.SeverityInfo, Kind: schemas.CSPMissing, Message: "No Content-Security-Policy on 2 HTML responses", Count: 2},
			},
		},
	}
}

// -- Flatten --

func TestFlatten(t *testing.T) {
	t.Parallel()
	observed := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	findings := Flatten(fixtureAnalysis(), fixtureEntries(), observed)
	require.Len(t, findings, 5)

	names := make([]string, len(findings))
	for i, f := range findings {
		names[i] = f.VulnerabilityName
	}
	assert.Equal(t, []string{
		"Wildcard CORS With Credentials",
		"JWT Accepted Without Algorithm",
		"Token In Query Parameter",
		"Session Cookie Without HttpOnly",
		"Missing Content-Security-Policy",
	}, names)

	seen := map[string]bool{}
	for _, f := range findings {
		assert.Equal(t, "run-1", f.RunID)
		assert.Equal(t, observed, f.ObservedAt)
		require.NotEmpty(t, f.ID)
		assert.False(t, seen[f.ID], "finding IDs must be unique")
		seen[f.ID] = true
	}

	cors := findings[0]
	assert.Equal(t, "advanced_security", cors.Module)
	assert.Equal(t, "CORS", cors.Category)
	assert.Equal(t, []string{"CWE-942"}, cors.CWE)
	assert.Equal(t, "https://api.example.com/v1/me", cors.Target)
	assert.JSONEq(t, `{"kind":"wildcard_with_credentials","allow_origin":"*"}`, string(cors.Evidence))

	jwtFinding := findings[1]
	assert.Equal(t, "jwt_analyzer", jwtFinding.Module)
	assert.Equal(t, CategoryJWT, jwtFinding.Category)
	assert.Equal(t, 1, jwtFinding.EntryIndex)
	assert.Equal(t, []string{"CWE-347"}, jwtFinding.CWE)

	cookie := findings[3]
	assert.Equal(t, "security_notes", cookie.Module)
	assert.Equal(t, schemas.CategoryCookie, cookie.Category)
	assert.Equal(t, -1, cookie.EntryIndex)
	assert.Empty(t, cookie.Target)
	assert.Equal(t, []string{"CWE-1004"}, cookie.CWE)
	assert.JSONEq(t, `{"subject":"sid"}`, string(cookie.Evidence))

	csp := findings[4]
	assert.Equal(t, -1, csp.EntryIndex)
	assert.JSONEq(t, `{"kind":"missing_csp","count":2}`, string(csp.Evidence))
}

func TestFlatten_NotesWithEntryAndSAML(t *testing.T) {
	t.Parallel()
	a := &schemas.AuthAnalysis{
		RunID: "run-2",
		SAMLIssues: []schemas.SAMLIssue{
			{Severity: schemas.SeverityCritical, Message: "SAML Response sent over unencrypted HTTP", EntryIndex: 0},
		},
		SecurityNotes: []schemas.SecurityNote{
			{Severity: schemas.SeverityCritical, Category: schemas.CategoryTransport, Message: notes.MsgPlainHTTPAuth, EntryIndex: intPtr(2)},
		},
	}

	findings := Flatten(a, fixtureEntries(), time.Time{})
	require.Len(t, findings, 2)

	assert.Equal(t, "saml_detector", findings[0].Module)
	assert.Equal(t, CategorySAML, findings[0].Category)
	assert.Nil(t, findings[0].Evidence)

	assert.Equal(t, 2, findings[1].EntryIndex)
	assert.Equal(t, "Credentials Over Plain HTTP", findings[1].VulnerabilityName)
	assert.Equal(t, []string{"CWE-319"}, findings[1].CWE)
}

func TestFlatten_OutOfRangeEntryHasNoTarget(t *testing.T) {
	t.Parallel()
	a := &schemas.AuthAnalysis{
		JWTIssues: []schemas.JWTIssue{{Severity: schemas.SeverityWarning, Kind: schemas.JWTMissingExpiration, Message: "JWT has no expiration", EntryIndex: 9}},
	}
	findings := Flatten(a, fixtureEntries(), time.Time{})
	require.Len(t, findings, 1)
	assert.Empty(t, findings[0].Target)
}

func TestFlatten_Empty(t *testing.T) {
	t.Parallel()
	findings := Flatten(&schemas.AuthAnalysis{}, nil, time.Time{})
	assert.NotNil(t, findings)
	assert.Empty(t, findings)
}

// -- Prioritize --

func TestPrioritize(t *testing.T) {
	t.Parallel()
	findings := []schemas.Finding{
		{VulnerabilityName: "b", Severity: schemas.SeverityInfo, EntryIndex: 0},
		{VulnerabilityName: "run-level", Severity: schemas.SeverityWarning, EntryIndex: -1},
		{VulnerabilityName: "z", Severity: schemas.SeverityWarning, EntryIndex: 3},
		{VulnerabilityName: "a", Severity: schemas.SeverityWarning, EntryIndex: 3},
		{VulnerabilityName: "c", Severity: schemas.SeverityCritical, EntryIndex: 7},
	}

	Prioritize(findings)

	got := make([]string, len(findings))
	for i, f := range findings {
		got[i] = f.VulnerabilityName
	}
	assert.Equal(t, []string{"c", "a", "z", "run-level", "b"}, got)
}

// -- Enricher --

func TestEnricher_EnrichFinding(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		finding  schemas.Finding
		wantName string
		wantDesc string
	}{
		{
			name:     "fills empty name and short description",
			finding:  schemas.Finding{CWE: []string{"CWE-613"}, Description: "short"},
			wantName: "Insufficient Session Expiration",
			wantDesc: "The product allows an attacker to reuse old session credentials or session IDs for authorization.",
		},
		{
			name:     "keeps specific values",
			finding:  schemas.Finding{CWE: []string{"CWE-613"}, VulnerabilityName: "Long-Lived JWT", Description: "JWT token has very long expiration (> 24 hours)"},
			wantName: "Long-Lived JWT",
			wantDesc: "JWT token has very long expiration (> 24 hours)",
		},
	}

	enricher := NewEnricher(providers.NewInMemoryCWEProvider(), zap.NewNop())
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			f := tt.finding
			enricher.EnrichFinding(&f)
			assert.Equal(t, tt.wantName, f.VulnerabilityName)
			assert.Equal(t, tt.wantDesc, f.Description)
		})
	}
}

func TestEnricher_SkipsWithoutCWE(t *testing.T) {
	t.Parallel()
	provider := new(MockCWEProvider)
	enricher := NewEnricher(provider, zap.NewNop())

	f := schemas.Finding{Description: "x"}
	enricher.EnrichFinding(&f)

	assert.Equal(t, "x", f.Description)
	provider.AssertNotCalled(t, "GetCWE", mock.Anything)
}

func TestEnricher_ProviderError(t *testing.T) {
	t.Parallel()
	provider := new(MockCWEProvider)
	provider.On("GetCWE", "CWE-1").Return(nil, errors.New("lookup failed")).Once()
	enricher := NewEnricher(provider, zap.NewNop())

	f := schemas.Finding{CWE: []string{"CWE-1"}}
	enricher.EnrichFinding(&f)

	assert.Empty(t, f.VulnerabilityName)
	provider.AssertExpectations(t)
}

// -- Pipeline --

func TestPipeline_ProcessRun(t *testing.T) {
	t.Parallel()
	store := new(MockStore)
	stored := []schemas.Finding{
		{ID: "1", Severity: schemas.SeverityInfo, EntryIndex: 0, VulnerabilityName: "Missing CORS Headers"},
		{ID: "2", Severity: schemas.SeverityCritical, EntryIndex: 4, CWE: []string{"CWE-319"}},
		{ID: "3", Severity: schemas.SeverityWarning, EntryIndex: 1, VulnerabilityName: "Token In URL"},
	}
	store.On("GetFindingsByRunID", mock.Anything, "run-9").Return(stored, nil).Once()

	p := NewPipeline(store, zap.NewNop())
	report, err := p.ProcessRun(context.Background(), "run-9")
	require.NoError(t, err)

	assert.Equal(t, "run-9", report.RunID)
	require.Len(t, report.Findings, 3)
	assert.Equal(t, "2", report.Findings[0].ID)
	assert.Equal(t, "Cleartext Transmission of Sensitive Information", report.Findings[0].VulnerabilityName)
	assert.Equal(t, "3", report.Findings[1].ID)
	assert.Equal(t, map[string]int{"total": 3, "critical": 1, "warning": 1, "info": 1}, report.Summary)
	store.AssertExpectations(t)

	raw, err := report.ToJSON()
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"run_id": "run-9"`)
}

func TestPipeline_ProcessRun_StoreError(t *testing.T) {
	t.Parallel()
	store := new(MockStore)
	cause := errors.New("connection refused")
	store.On("GetFindingsByRunID", mock.Anything, "run-x").Return(nil, cause).Once()

	p := NewPipeline(store, zap.NewNop())
	report, err := p.ProcessRun(context.Background(), "run-x")

	assert.Nil(t, report)
	require.Error(t, err)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "run-x")
}

func TestPipeline_ProcessRun_NoStore(t *testing.T) {
	t.Parallel()
	p := NewPipeline(nil, zap.NewNop())
	_, err := p.ProcessRun(context.Background(), "run-1")
	assert.Error(t, err)
}

func TestPipeline_Findings(t *testing.T) {
	t.Parallel()
	p := NewPipeline(nil, zap.NewNop())

	findings := p.Findings(fixtureAnalysis(), fixtureEntries(), time.Now())

	require.Len(t, findings, 5)
	assert.Equal(t, schemas.SeverityCritical, findings[0].Severity)
	for _, f := range findings {
		assert.NotEmpty(t, f.VulnerabilityName)
		assert.NotEmpty(t, f.CWE)
	}
}

func TestSummarize_Empty(t *testing.T) {
	t.Parallel()
	assert.Equal(t, map[string]int{"total": 0, "critical": 0, "warning": 0, "info": 0}, Summarize(nil))
}
