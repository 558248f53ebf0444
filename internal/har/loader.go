// internal/har/loader.go

// Package har reads HTTP Archive files into the transaction model used by
// the analysis engine.
package har

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/andybalholm/brotli"
	json "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/harrier/api/schemas"
)

// Loader reads archives from disk or a stream.
type Loader struct {
	logger       *zap.Logger
	decodeBodies bool
}

// NewLoader creates a loader. With decodeBodies set, base64 and compressed
// response bodies are decoded to text after parsing.
func NewLoader(logger *zap.Logger, decodeBodies bool) *Loader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loader{logger: logger.Named("har_loader"), decodeBodies: decodeBodies}
}

// LoadFile reads a .har file. Gzip input is detected by its magic bytes and
// brotli input by a .br extension.
func (l *Loader) LoadFile(path string) (*schemas.HAR, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open archive: %w", err)
	}
	defer f.Close()

	var r io.Reader = f
	if strings.EqualFold(filepath.Ext(path), ".br") {
		r = brotli.NewReader(f)
	}
	archive, err := l.Load(r)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", filepath.Base(path), err)
	}
	return archive, nil
}

// Load parses an archive from r.
func (l *Loader) Load(r io.Reader) (*schemas.HAR, error) {
	br := bufio.NewReader(r)
	if magic, err := br.Peek(2); err == nil && magic[0] == 0x1f && magic[1] == 0x8b {
		zr, err := getGzipReader(br)
		if err != nil {
			return nil, fmt.Errorf("invalid gzip stream: %w", err)
		}
		defer putGzipReader(zr)
		r = zr
	} else {
		r = br
	}

	archive := &schemas.HAR{}
	if err := json.NewDecoder(r).Decode(archive); err != nil {
		return nil, fmt.Errorf("failed to decode archive: %w", err)
	}
	if archive.Log.Entries == nil {
		archive.Log.Entries = make([]schemas.Entry, 0)
	}

	if l.decodeBodies {
		decoded := 0
		for i := range archive.Log.Entries {
			resp := &archive.Log.Entries[i].Response
			wasEncoded := resp.Content.Encoding != ""
			if err := DecodeBody(resp); err != nil {
				l.logger.Debug("Leaving response body encoded", zap.Int("entry_index", i), zap.Error(err))
				continue
			}
			if wasEncoded && resp.Content.Encoding == "" {
				decoded++
			}
		}
		if decoded > 0 {
			l.logger.Debug("Decoded response bodies", zap.Int("count", decoded))
		}
	}

	l.logger.Info("Archive loaded",
		zap.Int("entries", len(archive.Log.Entries)),
		zap.String("creator", archive.Log.Creator.Name),
	)
	return archive, nil
}
