package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/nao1215/scopecrawl/internal/database"
	"github.com/nao1215/scopecrawl/internal/model"
)

// SimpleWriter outputs human-readable text reports for terminal display.
// It uses plain ASCII formatting so the output can be piped to files.
type SimpleWriter struct {
	baseWriter

	// showEmpty controls whether groups with no exchanges are shown.
	showEmpty bool

	// verbose lists out-of-scope resources too.
	verbose bool

	// summaryOnly omits the resource lists and the site map.
	summaryOnly bool
}

// SimpleWriterOption configures a SimpleWriter.
type SimpleWriterOption func(*SimpleWriter)

// WithShowEmpty configures the writer to show empty sections.
func WithShowEmpty(show bool) SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.showEmpty = show
	}
}

// WithVerbose enables verbose output with additional details.
func WithVerbose(verbose bool) SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.verbose = verbose
	}
}

// WithSummaryOnly limits the output to the header and the summary counts.
func WithSummaryOnly() SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.summaryOnly = true
	}
}

// NewSimpleWriter creates a SimpleWriter that outputs to the given writer.
func NewSimpleWriter(output io.Writer, opts ...SimpleWriterOption) *SimpleWriter {
	w := &SimpleWriter{
		baseWriter: newBaseWriter(output),
	}

	for _, opt := range opts {
		opt(w)
	}

	return w
}

// Write outputs the report in human-readable format.
func (w *SimpleWriter) Write(report *CrawlReport) (int, error) {
	var sb strings.Builder

	w.writeHeader(&sb, report)
	w.writeSummary(&sb, report)
	if !w.summaryOnly {
		w.writeEntries(&sb, "IN SCOPE", report.InScope, true)
		w.writeEntries(&sb, "OUT OF SCOPE", report.OutOfScope, w.verbose)
		w.writeEntries(&sb, "ERRORS", report.Errors, true)
		w.writeSiteMap(&sb, report.SiteMap)
	}
	w.writeFooter(&sb)

	return io.WriteString(w.output, sb.String())
}

func rule(sb *strings.Builder, c string) {
	sb.WriteString(strings.Repeat(c, 70))
	sb.WriteString("\n")
}

// writeHeader writes the report header with session information.
func (w *SimpleWriter) writeHeader(sb *strings.Builder, report *CrawlReport) {
	sb.WriteString("\n")
	rule(sb, "=")
	sb.WriteString("                        SCOPECRAWL REPORT\n")
	rule(sb, "=")
	sb.WriteString("\n")

	fmt.Fprintf(sb, "Session:   %s\n", report.SessionID)
	fmt.Fprintf(sb, "Target:    %s\n", report.Target)
	fmt.Fprintf(sb, "Start URL: %s\n", report.StartURL)
	fmt.Fprintf(sb, "Started:   %s\n", report.StartedAt.Format("2006-01-02 15:04:05 MST"))
	if d := report.Duration(); d > 0 {
		fmt.Fprintf(sb, "Duration:  %s\n", d.Round(time.Millisecond))
	}

	switch {
	case report.Error != "":
		fmt.Fprintf(sb, "Status:    %s - %s\n", strings.ToUpper(report.State), report.Error)
	default:
		fmt.Fprintf(sb, "Status:    %s\n", strings.ToUpper(report.State))
	}
	sb.WriteString("\n")
}

// writeSummary writes the count of exchanges per resource state.
func (w *SimpleWriter) writeSummary(sb *strings.Builder, report *CrawlReport) {
	rule(sb, "-")
	sb.WriteString("SUMMARY\n")
	rule(sb, "-")
	sb.WriteString("\n")

	for _, state := range model.AllResourceStates() {
		n := report.Counts[state]
		if n == 0 && !w.showEmpty {
			continue
		}
		fmt.Fprintf(sb, "  %-15s %d\n", state.Label()+":", n)
	}
	sb.WriteString("\n")
	fmt.Fprintf(sb, "  %-15s %d requests\n", "TOTAL:", report.Total)
	sb.WriteString("\n")
}

func (w *SimpleWriter) writeEntries(sb *strings.Builder, title string, entries []Entry, show bool) {
	if !show || (len(entries) == 0 && !w.showEmpty) {
		return
	}

	rule(sb, "-")
	sb.WriteString(title + "\n")
	rule(sb, "-")
	sb.WriteString("\n")

	if len(entries) == 0 {
		sb.WriteString("  None\n\n")
		return
	}
	for _, e := range entries {
		status := "---"
		if e.StatusCode != 0 {
			status = fmt.Sprintf("%d", e.StatusCode)
		}
		fmt.Fprintf(sb, "  [%s] %-6s %s", status, e.Method, e.URL)
		if e.State != model.ResourceStateProcessed {
			fmt.Fprintf(sb, " (%s)", e.State.Label())
		}
		sb.WriteString("\n")
	}
	sb.WriteString("\n")
}

func (w *SimpleWriter) writeSiteMap(sb *strings.Builder, roots []*database.SiteNode) {
	if len(roots) == 0 {
		return
	}
	rule(sb, "-")
	sb.WriteString("SITE MAP\n")
	rule(sb, "-")
	sb.WriteString("\n")
	sb.WriteString(siteTreeText(roots))
	sb.WriteString("\n")
}

// siteTreeText renders the site map as an indented tree.
func siteTreeText(roots []*database.SiteNode) string {
	var sb strings.Builder
	var walk func(nodes []*database.SiteNode, depth int)
	walk = func(nodes []*database.SiteNode, depth int) {
		for _, n := range nodes {
			fmt.Fprintf(&sb, "%s%s (%d)\n", strings.Repeat("  ", depth+1), n.Name, n.Hits)
			walk(n.Children, depth+1)
		}
	}
	walk(roots, 0)
	return sb.String()
}

// writeFooter writes the report footer.
func (w *SimpleWriter) writeFooter(sb *strings.Builder) {
	rule(sb, "=")
	sb.WriteString("Report generated by scopecrawl\n")
	sb.WriteString("https://github.com/nao1215/scopecrawl\n")
	rule(sb, "=")
}
