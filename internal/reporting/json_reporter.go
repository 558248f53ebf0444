// internal/reporting/json_reporter.go
package reporting

import (
	"fmt"
	"io"
	"sync"

	json "github.com/json-iterator/go"

	"github.com/xkilldash9x/harrier/api/schemas"
)

// JSONReporter writes each envelope as an indented JSON document.
type JSONReporter struct {
	mu      sync.Mutex
	writer  io.WriteCloser
	encoder *json.Encoder
}

// NewJSONReporter creates a reporter that writes JSON to writer.
func NewJSONReporter(writer io.WriteCloser) *JSONReporter {
	encoder := json.NewEncoder(writer)
	encoder.SetIndent("", "  ")
	return &JSONReporter{writer: writer, encoder: encoder}
}

// Write encodes the envelope immediately.
func (r *JSONReporter) Write(result *schemas.ResultEnvelope) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.encoder.Encode(result); err != nil {
		return fmt.Errorf("failed to encode JSON output: %w", err)
	}
	return nil
}

// Close closes the underlying writer.
func (r *JSONReporter) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.writer.Close(); err != nil {
		return fmt.Errorf("failed to close output writer: %w", err)
	}
	return nil
}
