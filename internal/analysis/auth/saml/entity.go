// internal/analysis/auth/saml/entity.go
package saml

import (
	"bytes"
	"compress/flate"
	"encoding/base64"
	"io"
	"net/url"
	"strings"

	"github.com/beevik/etree"

	"github.com/xkilldash9x/harrier/api/schemas"
)

// maxMessageSize bounds an inflated protocol message.
const maxMessageSize = 1 << 20

// messageParam returns the raw value of a SAML protocol parameter from the
// request query or, failing that, from a form encoded body.
func messageParam(req *schemas.Request, name string) (string, bool) {
	if u, err := url.Parse(req.URL); err == nil {
		if v := u.Query().Get(name); v != "" {
			return v, true
		}
	}
	if body, _ := req.BodyText(); body != "" {
		if form, err := url.ParseQuery(body); err == nil {
			if v := form.Get(name); v != "" {
				return v, true
			}
		}
	}
	return "", false
}

// decodeMessage turns a transported SAML parameter back into XML. The
// redirect binding deflates before encoding, the POST binding does not.
func decodeMessage(value string) ([]byte, bool) {
	// Unescaped '+' in a query string arrives as a space.
	value = strings.ReplaceAll(strings.TrimSpace(value), " ", "+")
	raw, err := base64.StdEncoding.DecodeString(value)
	if err != nil {
		if raw, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(value, "=")); err != nil {
			return nil, false
		}
	}
	if trimmed := bytes.TrimSpace(raw); len(trimmed) > 0 && trimmed[0] == '<' {
		return trimmed, true
	}

	inflated, err := io.ReadAll(io.LimitReader(flate.NewReader(bytes.NewReader(raw)), maxMessageSize))
	if err != nil || len(inflated) == 0 {
		return nil, false
	}
	return inflated, true
}

// issuer extracts the Issuer of the SAML message named by param. Any decoding
// problem yields an empty result.
func issuer(req *schemas.Request, param string) string {
	value, ok := messageParam(req, param)
	if !ok {
		return ""
	}
	xml, ok := decodeMessage(value)
	if !ok {
		return ""
	}
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(xml); err != nil {
		return ""
	}
	el := doc.FindElement("//Issuer")
	if el == nil {
		return ""
	}
	return strings.TrimSpace(el.Text())
}
