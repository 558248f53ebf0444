// internal/analysis/auth/saml/detector_test.go
package saml

import (
	"bytes"
	"compress/flate"
	"context"
	"encoding/base64"
	"fmt"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xkilldash9x/harrier/api/schemas"
	"github.com/xkilldash9x/harrier/internal/analysis/core"
)

const (
	authnRequestXML = `<samlp:AuthnRequest xmlns:samlp="urn:oasis:names:tc:SAML:2.0:protocol" xmlns:saml="urn:oasis:names:tc:SAML:2.0:assertion" ID="id1" Version="2.0"><saml:Issuer>https://sp.example.com/metadata</saml:Issuer></samlp:AuthnRequest>`
	responseXML     = `<samlp:Response xmlns:samlp="urn:oasis:names:tc:SAML:2.0:protocol" xmlns:saml="urn:oasis:names:tc:SAML:2.0:assertion"><saml:Issuer> https://idp.example.com/entity </saml:Issuer><saml:Assertion/></samlp:Response>`
)

// redirectEncode applies the HTTP-Redirect binding: raw DEFLATE then base64.
func redirectEncode(t *testing.T, xml string) string {
	t.Helper()
	var buf bytes.Buffer
	w, err := flate.NewWriter(&buf, flate.DefaultCompression)
	require.NoError(t, err)
	_, err = w.Write([]byte(xml))
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return base64.StdEncoding.EncodeToString(buf.Bytes())
}

func at(sec int, method, rawURL string) schemas.Entry {
	return schemas.Entry{
		StartedDateTime: fmt.Sprintf("2024-05-01T09:00:%02dZ", sec),
		Request:         schemas.Request{Method: method, URL: rawURL},
		Response:        schemas.Response{Status: 200},
	}
}

func postForm(sec int, rawURL string, form url.Values) schemas.Entry {
	e := at(sec, "POST", rawURL)
	e.Request.PostData = &schemas.PostData{MimeType: "application/x-www-form-urlencoded", Text: form.Encode()}
	return e
}

func stepIndices(f schemas.SAMLFlow) []int {
	out := make([]int, 0, len(f.Steps))
	for _, s := range f.Steps {
		out = append(out, s.EntryIndex)
	}
	return out
}

func TestDetect_SPInitiated(t *testing.T) {
	t.Parallel()

	req := url.QueryEscape(redirectEncode(t, authnRequestXML))
	entries := []schemas.Entry{
		at(0, "GET", "https://sp.example.com/saml/sso?SAMLRequest="+req),
		at(1, "GET", "https://idp.example.com/idp/login"),
		postForm(2, "https://sp.example.com/saml/acs", url.Values{"SAMLResponse": {base64.StdEncoding.EncodeToString([]byte(responseXML))}}),
		at(3, "GET", "https://sp.example.com/saml/acs/complete"),
	}

	flows, issues := Detect(entries)
	require.Len(t, flows, 1)
	f := flows[0]
	assert.Equal(t, schemas.SAMLSPInitiated, f.Kind)
	assert.Equal(t, "SAML SP-Initiated SSO", f.Kind.DisplayName())
	assert.Equal(t, []int{0, 1, 2, 3}, stepIndices(f))
	assert.Equal(t, schemas.SAMLRoleAssertionConsumerService, f.Steps[3].Role)
	assert.Equal(t, "https://sp.example.com/metadata", f.SPEntityID)
	assert.Equal(t, "https://idp.example.com/entity", f.IdPEntityID)
	assert.Equal(t, int64(3000), f.DurationMs)
	assert.Empty(t, issues)
}

func TestDetect_StepsStayInEntryOrder(t *testing.T) {
	t.Parallel()

	entries := []schemas.Entry{
		at(0, "GET", "https://sp.example.com/saml2/sso"),
		at(1, "POST", "https://sp.example.com/callback?SAMLResponse=abc"),
		at(2, "GET", "https://idp.example.com/idp/profile"),
	}

	flows, _ := Detect(entries)
	require.Len(t, flows, 1)
	assert.Equal(t, []int{0, 1}, stepIndices(flows[0]), "an IdP step after the response is not part of the flow")
	assert.Empty(t, flows[0].IdPEntityID, "undecodable message leaves the entity empty")
}

func TestDetect_LoneAuthnRequestIsDiscarded(t *testing.T) {
	t.Parallel()

	flows, _ := Detect([]schemas.Entry{at(0, "GET", "https://sp.example.com/saml/sso")})
	assert.Empty(t, flows)
}

func TestDetect_IdPInitiated(t *testing.T) {
	t.Parallel()

	entries := []schemas.Entry{
		at(0, "GET", "https://app.example.com/home"),
		postForm(1, "http://sp.example.com/saml/consume", url.Values{"SAMLResponse": {base64.StdEncoding.EncodeToString([]byte(responseXML))}}),
	}

	flows, issues := Detect(entries)
	require.Len(t, flows, 1)
	f := flows[0]
	assert.Equal(t, schemas.SAMLIdPInitiated, f.Kind)
	require.Len(t, f.Steps, 1, "a lone response is a valid IdP-initiated flow")
	assert.Equal(t, "https://idp.example.com/entity", f.IdPEntityID)

	require.Len(t, issues, 1)
	assert.Equal(t, schemas.SeverityCritical, issues[0].Severity)
	assert.Equal(t, "SAML Response sent over unencrypted HTTP", issues[0].Message)
	assert.Equal(t, 1, issues[0].EntryIndex)
}

func TestDetect_Logout(t *testing.T) {
	t.Parallel()

	entries := []schemas.Entry{
		at(0, "GET", "https://sp.example.com/saml/logout?SAMLLogoutRequest=x"),
		at(1, "GET", "https://sp.example.com/done?SAMLLogoutResponse=y"),
	}

	flows, _ := Detect(entries)
	require.Len(t, flows, 1)
	assert.Equal(t, schemas.SAMLLogout, flows[0].Kind)
	assert.Equal(t, []int{0, 1}, stepIndices(flows[0]))
}

func TestDetect_InsecureAuthnRequest(t *testing.T) {
	t.Parallel()

	entries := []schemas.Entry{
		at(0, "GET", "http://sp.example.com/saml/sso?SAMLRequest=abc"),
	}
	_, issues := Detect(entries)
	require.Len(t, issues, 1)
	assert.Equal(t, "SAML AuthnRequest sent over unencrypted HTTP", issues[0].Message)
}

func TestDecodeMessage(t *testing.T) {
	t.Parallel()

	xml, ok := decodeMessage(base64.StdEncoding.EncodeToString([]byte(authnRequestXML)))
	require.True(t, ok)
	assert.Equal(t, authnRequestXML, string(xml))

	xml, ok = decodeMessage(redirectEncode(t, responseXML))
	require.True(t, ok)
	assert.Equal(t, responseXML, string(xml))

	_, ok = decodeMessage("%%%not base64")
	assert.False(t, ok)
}

func TestDetector_Analyze(t *testing.T) {
	t.Parallel()

	d := NewDetector(zap.NewNop())
	ac := core.NewAnalysisContext(nil, nil, nil, core.DefaultOptions())
	require.NoError(t, d.Analyze(context.Background(), ac))
	assert.NotNil(t, ac.Result.SAMLFlows)
	assert.NotNil(t, ac.Result.SAMLIssues)
}
