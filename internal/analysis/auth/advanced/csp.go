// internal/analysis/auth/advanced/csp.go
package advanced

import (
	"fmt"
	"strings"

	"golang.org/x/net/html"

	"github.com/xkilldash9x/harrier/api/schemas"
	"github.com/xkilldash9x/harrier/internal/analysis/core"
)

var cspHeaders = []string{"content-security-policy", "content-security-policy-report-only"}

func cspFindings(entries []schemas.Entry) []schemas.CSPFinding {
	out := make([]schemas.CSPFinding, 0)
	missing := 0

	for i := range entries {
		resp := &entries[i].Response
		if !core.IsHTML(resp.Content.MimeType) {
			continue
		}

		policies := headerPolicies(resp)
		if len(policies) == 0 {
			if policy, ok := metaPolicy(&resp.Content); ok {
				policies = append(policies, policy)
			}
		}
		if len(policies) == 0 {
			missing++
			continue
		}
		for _, policy := range policies {
			out = append(out, evaluatePolicy(policy, i)...)
		}
	}

	if missing > 0 {
		out = append(out, schemas.CSPFinding{
			Severity: schemas.SeverityInfo,
			Kind:     schemas.CSPMissing,
			Message:  fmt.Sprintf("%d HTML response(s) without Content-Security-Policy header", missing),
			Count:    missing,
		})
	}
	return out
}

func headerPolicies(resp *schemas.Response) []string {
	var policies []string
	for _, h := range resp.Headers {
		for _, name := range cspHeaders {
			if strings.EqualFold(h.Name, name) {
				policies = append(policies, h.Value)
			}
		}
	}
	return policies
}

// metaPolicy returns the policy of the first <meta http-equiv> CSP tag in
// the document. Encoded bodies are skipped.
func metaPolicy(content *schemas.Content) (string, bool) {
	if content.Text == "" || content.Encoding != "" {
		return "", false
	}
	z := html.NewTokenizer(strings.NewReader(content.Text))
	for {
		switch z.Next() {
		case html.ErrorToken:
			return "", false
		case html.StartTagToken, html.SelfClosingTagToken:
			tok := z.Token()
			switch tok.Data {
			case "meta":
				if policy, ok := cspMetaContent(tok.Attr); ok {
					return policy, true
				}
			case "body":
				// Meta policies only take effect from the head.
				return "", false
			}
		}
	}
}

func cspMetaContent(attrs []html.Attribute) (string, bool) {
	var equiv, content string
	for _, a := range attrs {
		switch strings.ToLower(a.Key) {
		case "http-equiv":
			equiv = a.Val
		case "content":
			content = a.Val
		}
	}
	if !strings.EqualFold(strings.TrimSpace(equiv), "content-security-policy") || content == "" {
		return "", false
	}
	return content, true
}

func evaluatePolicy(policy string, idx int) []schemas.CSPFinding {
	var out []schemas.CSPFinding
	add := func(kind schemas.CSPFindingKind, msg string) {
		entry := idx
		out = append(out, schemas.CSPFinding{
			Severity:   schemas.SeverityWarning,
			Kind:       kind,
			Message:    msg,
			Policy:     policy,
			EntryIndex: &entry,
		})
	}

	lower := strings.ToLower(policy)
	if strings.Contains(lower, "'unsafe-inline'") {
		add(schemas.CSPUnsafeInline, "CSP allows 'unsafe-inline' (XSS risk)")
	}
	if strings.Contains(lower, "'unsafe-eval'") {
		add(schemas.CSPUnsafeEval, "CSP allows 'unsafe-eval' (code injection risk)")
	}
	if hasWildcardSource(lower) {
		add(schemas.CSPWildcardSource, "CSP uses wildcard source (overly permissive)")
	}
	return out
}

// hasWildcardSource looks for a source expression containing '*' in any
// directive. data: sources are not host expressions and are ignored.
func hasWildcardSource(policy string) bool {
	for _, directive := range strings.Split(policy, ";") {
		fields := strings.Fields(directive)
		if len(fields) < 2 {
			continue
		}
		for _, src := range fields[1:] {
			if strings.Contains(src, "*") && !strings.HasPrefix(src, "data:") {
				return true
			}
		}
	}
	return false
}
