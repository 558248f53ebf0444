// internal/reporting/reporter.go
package reporting

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/xkilldash9x/harrier/api/schemas"
)

// Output formats accepted by New.
const (
	FormatJSON  = "json"
	FormatSARIF = "sarif"
	FormatText  = "text"
)

// ErrUnsupportedFormat is returned by New for an unknown format name.
var ErrUnsupportedFormat = errors.New("unsupported output format")

// Reporter defines the interface for writing analysis results to an output.
type Reporter interface {
	// Write processes a single result envelope.
	Write(result *schemas.ResultEnvelope) error
	// Close finalizes the report and closes any underlying resources (e.g., file handles).
	Close() error
}

// nopWriteCloser wraps an io.Writer and provides a no-op Close method.
type nopWriteCloser struct {
	io.Writer
}

func (nwc *nopWriteCloser) Close() error {
	return nil
}

// New creates a reporter for the format, writing to outputPath or to stdout
// when the path is empty or "stdout".
func New(format, outputPath, toolVersion string) (Reporter, error) {
	if !IsSupportedFormat(format) {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}

	if outputPath == "" || outputPath == "stdout" {
		return NewForStream(format, os.Stdout, toolVersion)
	}
	f, err := os.Create(outputPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create output file %s: %w", outputPath, err)
	}
	return NewWithWriter(format, f, toolVersion)
}

// NewForStream creates a reporter for a stream the caller keeps owning.
// Closing the reporter flushes the report but leaves w open.
func NewForStream(format string, w io.Writer, toolVersion string) (Reporter, error) {
	return NewWithWriter(format, &nopWriteCloser{w}, toolVersion)
}

// NewWithWriter creates a reporter that takes ownership of writer.
func NewWithWriter(format string, writer io.WriteCloser, toolVersion string) (Reporter, error) {
	switch format {
	case FormatSARIF:
		return NewSARIFReporter(writer, toolVersion), nil
	case FormatJSON:
		return NewJSONReporter(writer), nil
	case FormatText:
		return NewTextReporter(writer), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}
}

// IsSupportedFormat reports whether New accepts format.
func IsSupportedFormat(format string) bool {
	switch format {
	case FormatJSON, FormatSARIF, FormatText:
		return true
	}
	return false
}
