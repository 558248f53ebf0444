// internal/har/compression.go
package har

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"compress/zlib"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/andybalholm/brotli"

	"github.com/xkilldash9x/harrier/api/schemas"
)

// ErrUnsupportedEncoding is returned for a Content-Encoding layer that cannot
// be decoded.
var ErrUnsupportedEncoding = errors.New("unsupported content encoding")

// maxDecodedBody caps a single decompressed body.
const maxDecodedBody = 16 << 20

var (
	gzipReaderPool = sync.Pool{
		New: func() interface{} {
			return new(gzip.Reader)
		},
	}
	brotliReaderPool = sync.Pool{
		New: func() interface{} {
			return brotli.NewReader(nil)
		},
	}
)

var emptyReader = strings.NewReader("")

func getGzipReader(r io.Reader) (*gzip.Reader, error) {
	zr := gzipReaderPool.Get().(*gzip.Reader)
	if err := zr.Reset(r); err != nil {
		gzipReaderPool.Put(zr)
		return nil, err
	}
	return zr, nil
}

func putGzipReader(zr *gzip.Reader) {
	// Reset with an empty reader rather than nil; the EOF error is expected.
	_ = zr.Reset(emptyReader)
	gzipReaderPool.Put(zr)
}

func getBrotliReader(r io.Reader) *brotli.Reader {
	br := brotliReaderPool.Get().(*brotli.Reader)
	_ = br.Reset(r)
	return br
}

func putBrotliReader(br *brotli.Reader) {
	_ = br.Reset(emptyReader)
	brotliReaderPool.Put(br)
}

// decompress undoes the listed Content-Encoding layers. Layers are listed in
// the order they were applied, so they are removed in reverse.
func decompress(data []byte, encodings []string) ([]byte, error) {
	for i := len(encodings) - 1; i >= 0; i-- {
		encoding := strings.ToLower(strings.TrimSpace(encodings[i]))
		var (
			out []byte
			err error
		)
		switch encoding {
		case "", "identity":
			continue
		case "gzip", "x-gzip":
			out, err = gunzip(data)
		case "deflate":
			out, err = inflate(data)
		case "br":
			out, err = unbrotli(data)
		default:
			return nil, fmt.Errorf("%w: %s", ErrUnsupportedEncoding, encoding)
		}
		if err != nil {
			return nil, fmt.Errorf("%s layer: %w", encoding, err)
		}
		data = out
	}
	return data, nil
}

func gunzip(data []byte) ([]byte, error) {
	zr, err := getGzipReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer putGzipReader(zr)
	return readCapped(zr)
}

func unbrotli(data []byte) ([]byte, error) {
	br := getBrotliReader(bytes.NewReader(data))
	defer putBrotliReader(br)
	return readCapped(br)
}

// inflate accepts both zlib-wrapped and raw deflate streams, since servers
// disagree on what "deflate" means.
func inflate(data []byte) ([]byte, error) {
	if zr, err := zlib.NewReader(bytes.NewReader(data)); err == nil {
		defer zr.Close()
		if out, err := readCapped(zr); err == nil {
			return out, nil
		}
	}
	fr := flate.NewReader(bytes.NewReader(data))
	defer fr.Close()
	return readCapped(fr)
}

func readCapped(r io.Reader) ([]byte, error) {
	out, err := io.ReadAll(io.LimitReader(r, maxDecodedBody+1))
	if err != nil {
		return nil, err
	}
	if len(out) > maxDecodedBody {
		return nil, fmt.Errorf("decoded body exceeds %d bytes", maxDecodedBody)
	}
	return out, nil
}

// DecodeBody turns a base64 encoded textual response body back into text,
// removing any compression the recorder left in place. Binary content types
// are left untouched. When decompression fails the recorder most likely
// stored the already-decoded bytes, so those are used as-is.
func DecodeBody(resp *schemas.Response) error {
	c := &resp.Content
	if !strings.EqualFold(c.Encoding, "base64") || !isTextual(c.MimeType) {
		return nil
	}
	raw, err := base64.StdEncoding.DecodeString(c.Text)
	if err != nil {
		return fmt.Errorf("invalid base64 body: %w", err)
	}

	var encodings []string
	for _, h := range resp.Headers {
		if strings.EqualFold(h.Name, "content-encoding") {
			encodings = append(encodings, strings.Split(h.Value, ",")...)
		}
	}
	data, err := decompress(raw, encodings)
	switch {
	case errors.Is(err, ErrUnsupportedEncoding):
		return err
	case err != nil:
		data = raw
	}

	c.Text = string(data)
	c.Encoding = ""
	return nil
}

func isTextual(mimeType string) bool {
	m := strings.ToLower(mimeType)
	for _, marker := range []string{"text/", "json", "xml", "javascript", "x-www-form-urlencoded"} {
		if strings.Contains(m, marker) {
			return true
		}
	}
	return false
}
