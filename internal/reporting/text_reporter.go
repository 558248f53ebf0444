// internal/reporting/text_reporter.go
package reporting

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"

	"github.com/xkilldash9x/harrier/api/schemas"
)

// Severity colors.
var (
	colorCritical = lipgloss.Color("#FF3838")
	colorWarning  = lipgloss.Color("#FFB800")
	colorInfo     = lipgloss.Color("#4D96FF")
	colorBrand    = lipgloss.Color("#7D56F4")
	colorMuted    = lipgloss.Color("#6B7280")
)

// TextReporter renders a terminal report. Styling degrades to plain text
// when the writer is not a terminal.
type TextReporter struct {
	mu     sync.Mutex
	writer io.WriteCloser

	title    lipgloss.Style
	section  lipgloss.Style
	label    lipgloss.Style
	muted    lipgloss.Style
	severity map[schemas.Severity]lipgloss.Style
}

// NewTextReporter creates a reporter that writes styled text to writer.
func NewTextReporter(writer io.WriteCloser) *TextReporter {
	out := io.Writer(writer)
	if nwc, ok := writer.(*nopWriteCloser); ok {
		out = nwc.Writer
	}
	re := lipgloss.NewRenderer(out)
	return &TextReporter{
		writer:  writer,
		title:   re.NewStyle().Bold(true).Foreground(colorBrand),
		section: re.NewStyle().Bold(true).Underline(true),
		label:   re.NewStyle().Foreground(colorMuted),
		muted:   re.NewStyle().Foreground(colorMuted).Italic(true),
		severity: map[schemas.Severity]lipgloss.Style{
			schemas.SeverityCritical: re.NewStyle().Bold(true).Foreground(colorCritical),
			schemas.SeverityWarning:  re.NewStyle().Foreground(colorWarning),
			schemas.SeverityInfo:     re.NewStyle().Foreground(colorInfo),
		},
	}
}

// Write renders one envelope.
func (r *TextReporter) Write(result *schemas.ResultEnvelope) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var b strings.Builder
	b.WriteString(r.title.Render("Harrier authentication report"))
	b.WriteString("\n")
	r.field(&b, "Source", result.Source)
	r.field(&b, "Run", result.RunID)
	if result.Analysis != nil {
		r.field(&b, "Entries", strconv.Itoa(result.Analysis.EntryCount))
	}

	if result.Summary != nil {
		r.writeSummary(&b, result.Summary)
	}
	if result.View != nil {
		r.writeView(&b, result.View)
	} else {
		r.writeFindings(&b, result.Findings)
	}
	if result.Summary != nil {
		r.writeScanConfig(&b, result.Summary.ScanConfig)
	}

	if _, err := io.WriteString(r.writer, b.String()); err != nil {
		return fmt.Errorf("failed to write text report: %w", err)
	}
	return nil
}

// Close closes the underlying writer.
func (r *TextReporter) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.writer.Close(); err != nil {
		return fmt.Errorf("failed to close output writer: %w", err)
	}
	return nil
}

func (r *TextReporter) field(b *strings.Builder, name, value string) {
	if value == "" {
		return
	}
	fmt.Fprintf(b, "%s %s\n", r.label.Render(name+":"), value)
}

func (r *TextReporter) heading(b *strings.Builder, text string) {
	b.WriteString("\n")
	b.WriteString(r.section.Render(text))
	b.WriteString("\n")
}

func (r *TextReporter) writeSummary(b *strings.Builder, s *schemas.AuthSummary) {
	r.heading(b, "Summary")
	r.field(b, "Primary method", fmt.Sprintf("%s (%s confidence)", s.PrimaryMethod.MethodType, s.PrimaryMethod.Confidence))
	r.field(b, "Description", s.PrimaryMethod.Description)
	r.field(b, "Session", fmt.Sprintf("%s - %s", s.SessionMechanism.MechanismType, s.SessionMechanism.Details))

	if len(s.KeyEndpoints) > 0 {
		b.WriteString(r.label.Render("Key endpoints:"))
		b.WriteString("\n")
		for _, ep := range s.KeyEndpoints {
			fmt.Fprintf(b, "  %-6s %s %s\n", ep.Method, ep.Path, r.muted.Render("("+ep.Purpose+")"))
		}
	}
	for _, info := range s.AdditionalInfo {
		fmt.Fprintf(b, "  - %s\n", info)
	}
}

func (r *TextReporter) writeView(b *strings.Builder, v *schemas.FindingsView) {
	r.heading(b, fmt.Sprintf("Findings (%d distinct)", v.Total()))
	if v.Total() == 0 {
		b.WriteString(r.muted.Render("No security findings"))
		b.WriteString("\n")
		return
	}
	buckets := []struct {
		sev    schemas.Severity
		groups []schemas.AggregatedFinding
	}{
		{schemas.SeverityCritical, v.Critical},
		{schemas.SeverityWarning, v.Warning},
		{schemas.SeverityInfo, v.Info},
	}
	for _, bucket := range buckets {
		for _, g := range bucket.groups {
			fmt.Fprintf(b, "  %s %s: %s x%d %s\n",
				r.badge(bucket.sev), g.Key.Category, g.Key.Message, g.Count,
				r.muted.Render("entries "+joinInts(g.SampleEntries)))
		}
	}
}

func (r *TextReporter) writeFindings(b *strings.Builder, findings []schemas.Finding) {
	r.heading(b, fmt.Sprintf("Findings (%d)", len(findings)))
	if len(findings) == 0 {
		b.WriteString(r.muted.Render("No security findings"))
		b.WriteString("\n")
		return
	}
	for _, f := range findings {
		fmt.Fprintf(b, "  %s %s: %s\n", r.badge(f.Severity), f.VulnerabilityName, f.Description)
		if f.Target != "" {
			fmt.Fprintf(b, "      %s\n", r.muted.Render(f.Target))
		}
	}
}

func (r *TextReporter) writeScanConfig(b *strings.Builder, cfg schemas.ScanConfig) {
	r.heading(b, fmt.Sprintf("Scanner configuration (%s)", cfg.Mechanism))
	b.WriteString(cfg.Snippet)
	if !strings.HasSuffix(cfg.Snippet, "\n") {
		b.WriteString("\n")
	}
	for _, note := range cfg.Notes {
		fmt.Fprintf(b, "  %s\n", r.muted.Render("# "+note))
	}
}

func (r *TextReporter) badge(sev schemas.Severity) string {
	style, ok := r.severity[sev]
	if !ok {
		style = r.label
	}
	return style.Render("[" + sev.String() + "]")
}

func joinInts(values []int) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = strconv.Itoa(v)
	}
	return strings.Join(parts, ",")
}
