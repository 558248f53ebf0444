package schemas

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// -- Finding Schemas --

// Severity ranks an auth security finding. The zero value is SeverityInfo and
// the constants are declared in ascending order so that numeric comparison
// matches the Critical > Warning > Info ordering.
type Severity int

const (
	SeverityInfo Severity = iota
	SeverityWarning
	SeverityCritical
)

var severityNames = map[Severity]string{
	SeverityInfo:     "info",
	SeverityWarning:  "warning",
	SeverityCritical: "critical",
}

// String returns the lowercase wire name of the severity.
func (s Severity) String() string {
	if name, ok := severityNames[s]; ok {
		return name
	}
	return fmt.Sprintf("severity(%d)", int(s))
}

// Rank returns an integer where larger means more severe.
func (s Severity) Rank() int {
	return int(s)
}

// Compare returns -1, 0 or 1 when s is less, equally or more severe than other.
func (s Severity) Compare(other Severity) int {
	switch {
	case s < other:
		return -1
	case s > other:
		return 1
	default:
		return 0
	}
}

// ParseSeverity maps a wire name back to a Severity.
func ParseSeverity(name string) (Severity, error) {
	for sev, n := range severityNames {
		if strings.EqualFold(n, name) {
			return sev, nil
		}
	}
	return SeverityInfo, fmt.Errorf("unknown severity %q", name)
}

// MarshalText implements encoding.TextMarshaler.
func (s Severity) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Severity) UnmarshalText(text []byte) error {
	sev, err := ParseSeverity(string(text))
	if err != nil {
		return err
	}
	*s = sev
	return nil
}

// FindingKey is the composite identity used to aggregate repeated findings.
// Category and message are compared as separate fields so that two findings
// which would format to the same joined string stay distinct.
type FindingKey struct {
	Category string `json:"category"`
	Message  string `json:"message"`
}

// Finding is the flat, report-ready form of any auth finding. The analysis
// records in auth.go are converted to this shape for SARIF output and storage.
type Finding struct {
	ID    string `json:"id"`
	RunID string `json:"run_id"`

	ObservedAt time.Time `json:"observed_at"`

	Target string `json:"target"` // Truncated URL of the entry that produced the finding.
	Module string `json:"module"` // Detector that reported the finding.

	VulnerabilityName string   `json:"vulnerability_name"`
	Category          string   `json:"category"`
	Severity          Severity `json:"severity"`
	Description       string   `json:"description"`

	// EntryIndex is -1 for findings not tied to a single entry.
	EntryIndex int `json:"entry_index"`

	Evidence json.RawMessage `json:"evidence,omitempty"`

	Recommendation string   `json:"recommendation"`
	CWE            []string `json:"cwe,omitempty"`
}
