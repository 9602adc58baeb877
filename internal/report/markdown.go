package report

import (
	"io"
	"strconv"

	"github.com/nao1215/markdown"
	"github.com/nao1215/markdown/mermaid/piechart"

	"github.com/nao1215/scopecrawl/internal/model"
)

// MarkdownWriter outputs reports in Markdown format for sharing.
type MarkdownWriter struct {
	baseWriter
}

// NewMarkdownWriter creates a MarkdownWriter that outputs to the given writer.
func NewMarkdownWriter(output io.Writer) *MarkdownWriter {
	return &MarkdownWriter{
		baseWriter: newBaseWriter(output),
	}
}

// Write outputs the report in Markdown format.
func (w *MarkdownWriter) Write(report *CrawlReport) (int, error) {
	md := markdown.NewMarkdown(w.output)

	w.writeHeader(md, report)
	w.writeSummary(md, report)
	w.writeEntries(md, "In Scope", report.InScope, "No in-scope resources were found.")
	w.writeEntries(md, "Out of Scope", report.OutOfScope, "No request left the scope.")
	w.writeEntries(md, "Errors", report.Errors, "No upstream errors.")
	if len(report.SiteMap) > 0 {
		md.H2("Site Map")
		md.PlainText("")
		md.CodeBlocks(markdown.SyntaxHighlightText, siteTreeText(report.SiteMap))
		md.PlainText("")
	}
	w.writeFooter(md)

	return len(md.String()), md.Build()
}

// writeHeader writes the report header with session information.
func (w *MarkdownWriter) writeHeader(md *markdown.Markdown, report *CrawlReport) {
	md.H1("Scopecrawl Report")
	md.PlainText("")

	rows := [][]string{
		{"Session", "`" + report.SessionID + "`"},
		{"Target", report.Target},
		{"Start URL", "`" + report.StartURL + "`"},
		{"Started", report.StartedAt.Format("2006-01-02 15:04:05 MST")},
	}
	if d := report.Duration(); d > 0 {
		rows = append(rows, []string{"Duration", d.String()})
	}
	rows = append(rows, []string{"Status", w.getStatusText(report)})

	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows:   rows,
	})
	md.PlainText("")
}

// getStatusText returns the status text based on report state.
func (w *MarkdownWriter) getStatusText(report *CrawlReport) string {
	switch {
	case report.Failed():
		if report.Error != "" {
			return "❌ Failed - " + report.Error
		}
		return "❌ Failed"
	case report.State == "completed":
		return "✅ Completed"
	default:
		return "⏳ " + report.State
	}
}

// writeSummary writes the resource state summary.
func (w *MarkdownWriter) writeSummary(md *markdown.Markdown, report *CrawlReport) {
	md.H2("Summary")
	md.PlainText("")

	states := model.AllResourceStates()
	rows := make([][]string, 0, len(states)+1)
	for _, state := range states {
		rows = append(rows, []string{state.Label(), strconv.Itoa(report.Counts[state])})
	}
	rows = append(rows, []string{"**Total**", "**" + strconv.Itoa(report.Total) + "**"})
	md.Table(markdown.TableSet{
		Header: []string{"State", "Requests"},
		Rows:   rows,
	})
	md.PlainText("")

	if report.Total > 0 {
		w.writePieChart(md, report)
	}
	w.writeAlert(md, report)
}

// writePieChart writes a mermaid pie chart of the resource states.
func (w *MarkdownWriter) writePieChart(md *markdown.Markdown, report *CrawlReport) {
	chart := piechart.NewPieChart(
		io.Discard,
		piechart.WithTitle("Requests by State"),
		piechart.WithShowData(true),
	)
	for _, state := range model.AllResourceStates() {
		if n := report.Counts[state]; n > 0 {
			chart.LabelAndIntValue(state.Label(), uint64(n))
		}
	}

	md.PlainText("")
	md.CodeBlocks(markdown.SyntaxHighlightMermaid, chart.String())
	md.PlainText("")
}

// writeAlert writes an alert that matches the outcome of the crawl.
func (w *MarkdownWriter) writeAlert(md *markdown.Markdown, report *CrawlReport) {
	switch {
	case report.Failed():
		md.Cautionf("The crawl failed: %s", report.Error)
	case len(report.Errors) > 0:
		md.Warningf("%d request(s) could not be fetched from the upstream server.", len(report.Errors))
	case report.Found() == 0:
		md.Importantf("No in-scope resources were found from %s.", report.StartURL)
	default:
		md.Tip("The crawl completed without upstream errors.")
	}
	md.PlainText("")
}

func (w *MarkdownWriter) writeEntries(md *markdown.Markdown, title string, entries []Entry, empty string) {
	md.H2(title)
	md.PlainText("")

	if len(entries) == 0 {
		md.PlainText(empty)
		md.PlainText("")
		return
	}

	rows := make([][]string, len(entries))
	for i, e := range entries {
		status := "-"
		if e.StatusCode != 0 {
			status = strconv.Itoa(e.StatusCode)
		}
		rows[i] = []string{
			e.Method,
			truncateString(e.URL, 80),
			status,
			e.State.Label(),
		}
	}
	md.Table(markdown.TableSet{
		Header: []string{"Method", "URL", "Status", "State"},
		Rows:   rows,
	})
	md.PlainText("")
}

// writeFooter writes the report footer.
func (w *MarkdownWriter) writeFooter(md *markdown.Markdown) {
	md.HorizontalRule()
	md.PlainText("")
	md.PlainTextf("*Report generated by [scopecrawl](https://github.com/nao1215/scopecrawl)*")
}
