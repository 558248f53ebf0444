// internal/analysis/auth/engine_test.go
package auth

import (
	"context"
	"errors"
	"testing"

	fuzz "github.com/AdaLogics/go-fuzz-headers"
	gojwt "github.com/golang-jwt/jwt/v5"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/xkilldash9x/harrier/api/schemas"
	"github.com/xkilldash9x/harrier/internal/analysis/core"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func mintJWT(t testing.TB) string {
	t.Helper()
	token := gojwt.NewWithClaims(gojwt.SigningMethodHS256, gojwt.MapClaims{
		"sub": "user-1",
		"iat": 1700000000,
		"exp": 1700003600,
	})
	signed, err := token.SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return signed
}

// fixture is a small but complete login session: a form login, an API call
// with a bearer JWT, a credentialed wildcard CORS response and a logout.
func fixture(t testing.TB) []schemas.Entry {
	t.Helper()
	jwt := mintJWT(t)
	return []schemas.Entry{
		{
			StartedDateTime: "2024-01-01T10:00:00Z",
			Request:         schemas.Request{Method: "GET", URL: "https://app.example/login"},
			Response: schemas.Response{
				Status:  200,
				Content: schemas.Content{MimeType: "text/html", Text: "<html><form></form></html>"},
			},
		},
		{
			StartedDateTime: "2024-01-01T10:00:05Z",
			Request: schemas.Request{
				Method:   "POST",
				URL:      "https://app.example/login",
				PostData: &schemas.PostData{MimeType: "application/x-www-form-urlencoded", Text: "username=alice&password=hunter2"},
			},
			Response: schemas.Response{
				Status:  200,
				Cookies: []schemas.HARCookie{{Name: "sessionid", Value: "abcdef0123456789"}},
			},
		},
		{
			StartedDateTime: "2024-01-01T10:00:06Z",
			Request: schemas.Request{
				Method:  "GET",
				URL:     "https://app.example/dashboard",
				Cookies: []schemas.HARCookie{{Name: "sessionid", Value: "abcdef0123456789"}},
			},
			Response: schemas.Response{Status: 200, Content: schemas.Content{MimeType: "text/html", Text: "<html></html>"}},
		},
		{
			StartedDateTime: "2024-01-01T10:00:07Z",
			Request: schemas.Request{
				Method: "GET",
				URL:    "https://api.example/v1/me",
				Headers: []schemas.NVPair{
					{Name: "Authorization", Value: "Bearer " + jwt},
					{Name: "Origin", Value: "https://app.example"},
				},
			},
			Response: schemas.Response{
				Status: 200,
				Headers: []schemas.NVPair{
					{Name: "Access-Control-Allow-Origin", Value: "*"},
					{Name: "Access-Control-Allow-Credentials", Value: "true"},
				},
				Content: schemas.Content{MimeType: "application/json", Text: `{"id":1}`},
			},
		},
		{
			StartedDateTime: "2024-01-01T10:05:00Z",
			Request:         schemas.Request{Method: "POST", URL: "https://app.example/logout"},
			Response:        schemas.Response{Status: 302},
		},
	}
}

var ignoreRunID = cmpopts.IgnoreFields(schemas.AuthAnalysis{}, "RunID")

func TestEngine_Analyze(t *testing.T) {
	engine := NewEngine(zap.NewNop())
	result, err := engine.Analyze(context.Background(), fixture(t))
	require.NoError(t, err)

	assert.NotEmpty(t, result.RunID)
	assert.Equal(t, 5, result.EntryCount)
	assert.True(t, result.HasMethod(schemas.MethodJWT))
	assert.True(t, result.HasMethod(schemas.MethodCookie))

	require.Len(t, result.Flows, 1)
	assert.Equal(t, schemas.FlowFormBased, result.Flows[0].Kind)

	require.Len(t, result.JWTTokens, 1)
	assert.Equal(t, "user-1", result.JWTTokens[0].Claims.Sub)

	require.Len(t, result.Advanced.CORSIssues, 1)
	assert.Equal(t, schemas.CORSWildcardWithCredentials, result.Advanced.CORSIssues[0].Kind)
	assert.Equal(t, 3, result.Advanced.CORSIssues[0].EntryIndex)

	var kinds []schemas.EventKind
	for _, ev := range result.Events {
		kinds = append(kinds, ev.Kind)
	}
	assert.Equal(t, []schemas.EventKind{schemas.EventLoginSuccess, schemas.EventLogout}, kinds)

	// Notes are derived from the passive results, so they must see the sessions.
	assert.NotEmpty(t, result.SecurityNotes)
}

func TestEngine_Idempotent(t *testing.T) {
	entries := fixture(t)
	engine := NewEngine(zap.NewNop())

	first, err := engine.Analyze(context.Background(), entries)
	require.NoError(t, err)
	second, err := engine.Analyze(context.Background(), entries)
	require.NoError(t, err)

	assert.NotEqual(t, first.RunID, second.RunID)
	if diff := cmp.Diff(first, second, ignoreRunID); diff != "" {
		t.Errorf("repeated analysis differs (-first +second):\n%s", diff)
	}
}

func TestEngine_SequentialMatchesParallel(t *testing.T) {
	entries := fixture(t)

	parallel, err := NewEngine(zap.NewNop()).Analyze(context.Background(), entries)
	require.NoError(t, err)

	opts := DefaultOptions()
	opts.Parallel = false
	sequential, err := NewEngine(zap.NewNop(), WithOptions(opts)).Analyze(context.Background(), entries)
	require.NoError(t, err)

	if diff := cmp.Diff(parallel, sequential, ignoreRunID); diff != "" {
		t.Errorf("sequential run differs from parallel (-parallel +sequential):\n%s", diff)
	}
}

func TestEngine_DoesNotMutateInput(t *testing.T) {
	entries := fixture(t)
	snapshot := fixture(t)

	_, err := NewEngine(zap.NewNop()).Analyze(context.Background(), entries)
	require.NoError(t, err)
	assert.Equal(t, snapshot, entries)
}

func TestEngine_EmptyInput(t *testing.T) {
	result, err := NewEngine(zap.NewNop()).Analyze(context.Background(), nil)
	require.NoError(t, err)

	assert.Empty(t, result.Methods)
	assert.Empty(t, result.Sessions)
	assert.Empty(t, result.Flows)
	assert.Empty(t, result.Events)
	assert.Empty(t, result.JWTTokens)
	assert.Empty(t, result.JWTIssues)
	assert.Empty(t, result.SAMLFlows)
	assert.Empty(t, result.SecurityNotes)
	assert.NotNil(t, result.Methods)
	assert.NotNil(t, result.Advanced.CSPFindings)
}

func TestEngine_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := NewEngine(zap.NewNop()).Analyze(ctx, fixture(t))
	assert.Nil(t, result)
	assert.ErrorIs(t, err, context.Canceled)
}

type failingAnalyzer struct {
	*core.BaseAnalyzer
}

func (failingAnalyzer) Analyze(context.Context, *core.AnalysisContext) error {
	return errors.New("boom")
}

func TestEngine_AnalyzerErrorIsWrapped(t *testing.T) {
	bad := failingAnalyzer{core.NewBaseAnalyzer("bad", "always fails", core.TypePassive, nil)}

	for _, parallel := range []bool{true, false} {
		opts := DefaultOptions()
		opts.Parallel = parallel
		engine := NewEngine(zap.NewNop(), WithOptions(opts), WithAnalyzers([]core.Analyzer{bad}, nil))

		_, err := engine.Analyze(context.Background(), nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "analyzer 'bad' failed")
	}
}

func TestEngine_LogsCompletion(t *testing.T) {
	obsCore, logs := observer.New(zapcore.InfoLevel)
	engine := NewEngine(zap.New(obsCore))

	_, err := engine.Analyze(context.Background(), fixture(t))
	require.NoError(t, err)

	entries := logs.FilterMessage("Authentication analysis complete").All()
	require.Len(t, entries, 1)
	assert.Equal(t, int64(5), entries[0].ContextMap()["entries"])
}

func FuzzEngine_Analyze(f *testing.F) {
	f.Add([]byte("seed"))
	f.Add([]byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08})

	engine := NewEngine(zap.NewNop())
	f.Fuzz(func(t *testing.T, data []byte) {
		consumer := fuzz.NewConsumer(data)
		var entries []schemas.Entry
		if err := consumer.CreateSlice(&entries); err != nil {
			return
		}
		result, err := engine.Analyze(context.Background(), entries)
		require.NoError(t, err)
		assert.Equal(t, len(entries), result.EntryCount)
	})
}
