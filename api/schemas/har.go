package schemas

import (
	"strings"
)

// -- HAR (HTTP Archive) Schemas --

// HAR is the root object of an HTTP Archive. Only the parts of the 1.2 format
// the auth analysis reads are modelled; unknown fields are ignored on decode.
// See http://www.softwareishard.com/blog/har-12-spec/.
type HAR struct {
	Log HARLog `json:"log"`
}

// HARLog holds the creator metadata and the ordered list of recorded entries.
type HARLog struct {
	Version string  `json:"version"`
	Creator Creator `json:"creator"`
	Pages   []Page  `json:"pages,omitempty"`
	Entries []Entry `json:"entries"`
}

// Creator identifies the tool that recorded the archive.
type Creator struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// Page is a top-level page load grouping entries by Pageref.
type Page struct {
	StartedDateTime string `json:"startedDateTime"`
	ID              string `json:"id"`
	Title           string `json:"title"`
}

// Entry is one recorded request/response pair. Its position in HARLog.Entries
// is the "entry index" used for cross-referencing in every analysis record.
type Entry struct {
	Pageref string `json:"pageref,omitempty"`
	// StartedDateTime is kept verbatim. Recorders disagree on precision and
	// offsets, so parsing happens at the point of use with a parse-or-zero policy.
	StartedDateTime string   `json:"startedDateTime"`
	Time            float64  `json:"time"`
	Request         Request  `json:"request"`
	Response        Response `json:"response"`
}

// Request is the request half of an entry.
type Request struct {
	Method      string      `json:"method"`
	URL         string      `json:"url"`
	HTTPVersion string      `json:"httpVersion"`
	Cookies     []HARCookie `json:"cookies"`
	Headers     []NVPair    `json:"headers"`
	QueryString []NVPair    `json:"queryString"`
	PostData    *PostData   `json:"postData,omitempty"`
	HeadersSize int64       `json:"headersSize"`
	BodySize    int64       `json:"bodySize"`
}

// Response is the response half of an entry.
type Response struct {
	Status      int         `json:"status"`
	StatusText  string      `json:"statusText"`
	HTTPVersion string      `json:"httpVersion"`
	Cookies     []HARCookie `json:"cookies"`
	Headers     []NVPair    `json:"headers"`
	Content     Content     `json:"content"`
	RedirectURL string      `json:"redirectURL"`
	HeadersSize int64       `json:"headersSize"`
	BodySize    int64       `json:"bodySize"`
}

// NVPair is a name/value pair used for headers and query strings.
type NVPair struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// HARCookie is a cookie as recorded in the archive. The format has no SameSite
// attribute, which is why session attributes can never report one.
type HARCookie struct {
	Name     string `json:"name"`
	Value    string `json:"value"`
	Path     string `json:"path,omitempty"`
	Domain   string `json:"domain,omitempty"`
	Expires  string `json:"expires,omitempty"`
	HTTPOnly bool   `json:"httpOnly,omitempty"`
	Secure   bool   `json:"secure,omitempty"`
}

// PostData is the request body.
type PostData struct {
	MimeType string   `json:"mimeType"`
	Text     string   `json:"text"`
	Params   []NVPair `json:"params,omitempty"`
}

// Content is the response body.
type Content struct {
	Size     int64  `json:"size"`
	MimeType string `json:"mimeType"`
	Text     string `json:"text,omitempty"`
	Encoding string `json:"encoding,omitempty"` // e.g. "base64"
}

// Header returns the value of the first header matching name, ignoring case.
func (r *Request) Header(name string) (string, bool) {
	return lookupHeader(r.Headers, name)
}

// Header returns the value of the first header matching name, ignoring case.
func (r *Response) Header(name string) (string, bool) {
	return lookupHeader(r.Headers, name)
}

// BodyText returns the request body text and its declared content type.
func (r *Request) BodyText() (text, mimeType string) {
	if r.PostData == nil {
		return "", ""
	}
	return r.PostData.Text, r.PostData.MimeType
}

func lookupHeader(headers []NVPair, name string) (string, bool) {
	for _, h := range headers {
		if strings.EqualFold(h.Name, name) {
			return h.Value, true
		}
	}
	return "", false
}

// NewHAR creates an empty archive carrying this tool as creator. Tests and the
// loader use it as the zero value for a well-formed document.
func NewHAR() *HAR {
	return &HAR{
		Log: HARLog{
			Version: "1.2",
			Creator: Creator{
				Name:    "harrier",
				Version: "1.0",
			},
			Entries: make([]Entry, 0),
		},
	}
}
