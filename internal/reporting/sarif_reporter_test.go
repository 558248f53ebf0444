// File: internal/reporting/sarif_reporter_test.go
package reporting_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/harrier/api/schemas"
	"github.com/xkilldash9x/harrier/internal/reporting"
	"github.com/xkilldash9x/harrier/internal/reporting/sarif"
)

// MockWriteCloser allows capturing output and simulating I/O errors.
type MockWriteCloser struct {
	Buffer    *bytes.Buffer
	FailWrite bool
	FailClose bool
	Closed    bool
}

func (m *MockWriteCloser) Write(p []byte) (n int, err error) {
	if m.FailWrite {
		return 0, errors.New("simulated write error")
	}
	return m.Buffer.Write(p)
}

func (m *MockWriteCloser) Close() error {
	m.Closed = true
	if m.FailClose {
		return errors.New("simulated close error")
	}
	return nil
}

func newMockWriter() *MockWriteCloser {
	return &MockWriteCloser{Buffer: new(bytes.Buffer)}
}

func setupSARIFTest(_ *testing.T) (*reporting.SARIFReporter, *MockWriteCloser) {
	writer := newMockWriter()
	return reporting.NewSARIFReporter(writer, "v1.2.3-test"), writer
}

func decodeSARIF(t *testing.T, raw []byte) sarif.Log {
	t.Helper()
	var log sarif.Log
	require.NoError(t, json.Unmarshal(raw, &log), "Output should be valid SARIF JSON")
	require.Len(t, log.Runs, 1)
	return log
}

func TestSARIFReporter_Initialization(t *testing.T) {
	reporter, writer := setupSARIFTest(t)
	require.NoError(t, reporter.Close())
	assert.True(t, writer.Closed)

	log := decodeSARIF(t, writer.Buffer.Bytes())
	assert.Equal(t, reporting.SARIFVersion, log.Version)
	run := log.Runs[0]
	require.NotNil(t, run.Tool)
	require.NotNil(t, run.Tool.Driver)
	assert.Equal(t, reporting.ToolName, run.Tool.Driver.Name)
	assert.Equal(t, "v1.2.3-test", *run.Tool.Driver.Version)
	require.NotNil(t, run.Results)
	assert.Empty(t, run.Results)
	assert.Empty(t, run.Tool.Driver.Rules)
	assert.Empty(t, run.Invocations)
}

func TestSARIFReporter_WriteAndClose(t *testing.T) {
	reporter, writer := setupSARIFTest(t)

	cors := schemas.Finding{
		Target:            "https://api.example.com/v1/me",
		Module:            "advanced_security",
		Category:          "CORS",
		Severity:          schemas.SeverityCritical,
		VulnerabilityName: "Wildcard CORS With Credentials",
		Description:       "CORS allows any origin with credentials",
		Recommendation:    "Reflect an allow-list of trusted origins instead of '*'.",
		EntryIndex:        0,
		Evidence:          json.RawMessage(`{"allow_origin":"*"}`),
		CWE:               []string{"CWE-942"},
	}
	corsAgain := cors
	corsAgain.Target = "https://api.example.com/v1/orders"
	corsAgain.EntryIndex = 4

	cookie := schemas.Finding{
		Module:            "security_notes",
		Category:          schemas.CategoryCookie,
		Severity:          schemas.SeverityWarning,
		VulnerabilityName: "Session Cookie Without HttpOnly",
		Description:       "Session cookie missing HttpOnly flag (vulnerable to XSS)",
		Recommendation:    "Set the HttpOnly attribute on session cookies.",
		EntryIndex:        -1,
		CWE:               []string{"CWE-1004"},
	}
	unnamed := schemas.Finding{Severity: schemas.SeverityInfo, VulnerabilityName: "Missing CORS Headers", EntryIndex: 2, Target: "https://api.example.com/x"}

	envelope := &schemas.ResultEnvelope{
		RunID:     "run-1",
		Source:    "capture.har",
		Timestamp: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		Findings:  []schemas.Finding{cors, corsAgain, cookie, unnamed},
	}
	require.NoError(t, reporter.Write(envelope))
	require.NoError(t, reporter.Close())

	log := decodeSARIF(t, writer.Buffer.Bytes())
	run := log.Runs[0]
	require.Len(t, run.Results, 4)
	require.Len(t, run.Tool.Driver.Rules, 3)

	require.NotNil(t, run.AutomationDetails)
	assert.Equal(t, "run-1", run.AutomationDetails.ID)
	require.Len(t, run.Invocations, 1)
	assert.Equal(t, "2024-05-01T12:00:00Z", *run.Invocations[0].StartTimeUTC)

	first := run.Results[0]
	assert.Equal(t, "HARRIER-WILDCARD-CORS-WITH-CREDENTIALS", first.RuleID)
	assert.Equal(t, sarif.LevelError, first.Level)
	assert.Equal(t, "CORS allows any origin with credentials", *first.Message.Text)
	require.Len(t, first.Locations, 1)
	assert.Equal(t, "https://api.example.com/v1/me", *first.Locations[0].PhysicalLocation.ArtifactLocation.URI)
	require.NotNil(t, first.Properties)
	assert.Equal(t, "advanced_security", (*first.Properties)["module"])
	assert.EqualValues(t, 0, (*first.Properties)["entryIndex"])
	assert.Equal(t, map[string]any{"allow_origin": "*"}, (*first.Properties)["evidence"])

	assert.Equal(t, first.RuleID, run.Results[1].RuleID, "same rule content must share a rule")

	runLevel := run.Results[2]
	assert.Equal(t, sarif.LevelWarning, runLevel.Level)
	require.Len(t, runLevel.Locations, 1)
	assert.Equal(t, "capture.har", *runLevel.Locations[0].PhysicalLocation.ArtifactLocation.URI)
	_, hasIndex := (*runLevel.Properties)["entryIndex"]
	assert.False(t, hasIndex)

	last := run.Results[3]
	assert.Equal(t, sarif.LevelNote, last.Level)
	assert.Equal(t, "Missing CORS Headers", *last.Message.Text)

	rules := make(map[string]*sarif.ReportingDescriptor)
	for _, r := range run.Tool.Driver.Rules {
		rules[r.ID] = r
	}
	corsRule := rules[first.RuleID]
	require.NotNil(t, corsRule)
	assert.Equal(t, "Reflect an allow-list of trusted origins instead of '*'.", *corsRule.Help.Text)
	assertCWE(t, []string{"CWE-942"}, (*corsRule.Properties)["CWE"])
}

func TestSARIFReporter_RuleCollisionHandling(t *testing.T) {
	reporter, writer := setupSARIFTest(t)
	const shared = "Token In URL"

	findings := []schemas.Finding{
		{VulnerabilityName: shared, Category: "Token Exposure", CWE: []string{"CWE-598"}},
		{VulnerabilityName: shared, Category: "JWT", CWE: []string{"CWE-598"}},
		{VulnerabilityName: shared, Category: "Token Exposure", CWE: []string{"CWE-598"}},
		{VulnerabilityName: shared, Category: "Token Exposure", CWE: []string{"CWE-200", "CWE-598"}},
		{VulnerabilityName: shared, Category: "Token Exposure", CWE: []string{"CWE-598", "CWE-200"}},
	}
	require.NoError(t, reporter.Write(&schemas.ResultEnvelope{Findings: findings}))
	require.NoError(t, reporter.Close())

	run := decodeSARIF(t, writer.Buffer.Bytes()).Runs[0]
	require.Len(t, run.Results, 5)
	require.Len(t, run.Tool.Driver.Rules, 3)

	assert.Equal(t, "HARRIER-TOKEN-IN-URL", run.Results[0].RuleID)
	assert.Equal(t, "HARRIER-TOKEN-IN-URL-1", run.Results[1].RuleID)
	assert.Equal(t, run.Results[0].RuleID, run.Results[2].RuleID)
	assert.Equal(t, "HARRIER-TOKEN-IN-URL-2", run.Results[3].RuleID)
	assert.Equal(t, run.Results[3].RuleID, run.Results[4].RuleID, "CWE order must not matter")
}

func TestSARIFReporter_RuleIDSanitization(t *testing.T) {
	reporter, writer := setupSARIFTest(t)

	tests := []struct {
		name       string
		expectedID string
	}{
		{"Simple", "HARRIER-SIMPLE"},
		{"Token In URL / Referer", "HARRIER-TOKEN-IN-URL-REFERER"},
		{"!Leading/Trailing!", "HARRIER-LEADING-TRAILING"},
		{"Mixed.Case_Test-1", "HARRIER-MIXED.CASE_TEST-1"},
		{"", "HARRIER-UNNAMED-FINDING"},
		{"!@#", "HARRIER-UNKNOWN-FINDING"},
		{"A-!/--B", "HARRIER-A-B"},
	}
	for _, tt := range tests {
		require.NoError(t, reporter.Write(&schemas.ResultEnvelope{Findings: []schemas.Finding{{VulnerabilityName: tt.name}}}))
	}
	require.NoError(t, reporter.Close())

	run := decodeSARIF(t, writer.Buffer.Bytes()).Runs[0]
	require.Len(t, run.Results, len(tests))
	for i, tt := range tests {
		assert.Equal(t, tt.expectedID, run.Results[i].RuleID, "case %q", tt.name)
	}
}

func TestSARIFReporter_Concurrency(t *testing.T) {
	reporter, writer := setupSARIFTest(t)

	const goroutines = 20
	const perGoroutine = 10
	const uniqueRules = 4

	var wg sync.WaitGroup
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for j := 0; j < perGoroutine; j++ {
				f := schemas.Finding{VulnerabilityName: fmt.Sprintf("Finding %d", (id+j)%uniqueRules)}
				assert.NoError(t, reporter.Write(&schemas.ResultEnvelope{Findings: []schemas.Finding{f}}))
			}
		}(i)
	}
	wg.Wait()
	require.NoError(t, reporter.Close())

	run := decodeSARIF(t, writer.Buffer.Bytes()).Runs[0]
	assert.Len(t, run.Results, goroutines*perGoroutine)
	assert.Len(t, run.Tool.Driver.Rules, uniqueRules)
}

func TestSARIFReporter_ErrorHandling(t *testing.T) {
	t.Run("close error", func(t *testing.T) {
		writer := &MockWriteCloser{Buffer: new(bytes.Buffer), FailClose: true}
		err := reporting.NewSARIFReporter(writer, "v1").Close()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to close output writer")
	})

	t.Run("encode error", func(t *testing.T) {
		writer := &MockWriteCloser{Buffer: new(bytes.Buffer), FailWrite: true}
		reporter := reporting.NewSARIFReporter(writer, "v1")
		require.NoError(t, reporter.Write(&schemas.ResultEnvelope{Findings: []schemas.Finding{{Description: "force write"}}}))

		err := reporter.Close()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to encode SARIF output")
		assert.True(t, writer.Closed, "writer is closed even when encoding fails")
	})
}

func assertCWE(t *testing.T, expected []string, actual any) {
	t.Helper()
	list, ok := actual.([]any)
	require.True(t, ok, "CWE should decode as a list, got %T", actual)
	got := make([]string, len(list))
	for i, v := range list {
		got[i], ok = v.(string)
		require.True(t, ok)
	}
	assert.ElementsMatch(t, expected, got)
}
