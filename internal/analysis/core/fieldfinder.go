// internal/analysis/core/fieldfinder.go
package core

import (
	"strings"

	jsoniter "github.com/json-iterator/go"
	"github.com/tidwall/gjson"
)

// FieldFinder extracts the string value of a named field from a response or
// request body. Detectors depend only on this interface so the lookup policy
// can change without touching detection logic.
type FieldFinder interface {
	FindStringField(body, key string) (string, bool)
}

// ScanFieldFinder locates `"key"` followed by a colon and a quoted value using
// plain substring scanning. It never parses the document, so it tolerates
// truncated and malformed bodies and finds the first match at any depth.
type ScanFieldFinder struct{}

// FindStringField implements FieldFinder.
func (ScanFieldFinder) FindStringField(body, key string) (string, bool) {
	needle := `"` + key + `"`
	offset := 0
	for offset < len(body) {
		i := strings.Index(body[offset:], needle)
		if i < 0 {
			return "", false
		}
		pos := offset + i + len(needle)
		if v, ok := scanStringValue(body, pos); ok {
			return v, true
		}
		offset = pos
	}
	return "", false
}

// scanStringValue expects optional whitespace, a colon, optional whitespace
// and a double-quoted string starting at pos. Escapes are skipped, not decoded.
func scanStringValue(body string, pos int) (string, bool) {
	pos = skipSpace(body, pos)
	if pos >= len(body) || body[pos] != ':' {
		return "", false
	}
	pos = skipSpace(body, pos+1)
	if pos >= len(body) || body[pos] != '"' {
		return "", false
	}
	start := pos + 1
	for i := start; i < len(body); i++ {
		switch body[i] {
		case '\\':
			i++
		case '"':
			return body[start:i], true
		}
	}
	return "", false
}

func skipSpace(s string, pos int) int {
	for pos < len(s) {
		switch s[pos] {
		case ' ', '\t', '\n', '\r':
			pos++
		default:
			return pos
		}
	}
	return pos
}

// maxStrictDepth bounds container nesting for StrictFieldFinder. Deeper
// documents are treated as invalid.
const maxStrictDepth = 512

// StrictFieldFinder only answers for syntactically valid JSON. It walks the
// document once, in order, and returns the first string member named key at
// any depth, which matches what ScanFieldFinder finds on well-formed input.
type StrictFieldFinder struct{}

// FindStringField implements FieldFinder.
func (StrictFieldFinder) FindStringField(body, key string) (string, bool) {
	iter := jsoniter.ParseString(jsoniter.ConfigDefault, body)
	w := memberWalker{key: key}
	w.walk(iter, 0)
	// The walk has bounded the nesting, so validating the whole body here
	// only has to reject trailing data.
	if iter.Error != nil || !gjson.Valid(body) {
		return "", false
	}
	return w.value, w.found
}

// memberWalker records the first string member named key. Each value is read
// exactly once, so a walk is linear in the size of the body.
type memberWalker struct {
	key   string
	value string
	found bool
}

func (w *memberWalker) walk(iter *jsoniter.Iterator, depth int) {
	if depth > maxStrictDepth {
		iter.ReportError("FindStringField", "nesting too deep")
		return
	}
	switch iter.WhatIsNext() {
	case jsoniter.ObjectValue:
		iter.ReadObjectCB(func(it *jsoniter.Iterator, field string) bool {
			if !w.found && field == w.key && it.WhatIsNext() == jsoniter.StringValue {
				w.value, w.found = it.ReadString(), true
				return it.Error == nil
			}
			w.walk(it, depth+1)
			return it.Error == nil
		})
	case jsoniter.ArrayValue:
		iter.ReadArrayCB(func(it *jsoniter.Iterator) bool {
			w.walk(it, depth+1)
			return it.Error == nil
		})
	default:
		iter.Skip()
	}
}
