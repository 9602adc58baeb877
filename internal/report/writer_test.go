package report

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/nao1215/scopecrawl/internal/database"
	"github.com/nao1215/scopecrawl/internal/model"
)

// createTestReport creates a report with sample data for testing.
func createTestReport() *CrawlReport {
	started := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
	session := database.SessionRecord{
		ID:          "0b6c2f5e",
		DisplayName: "http://app.test/app/",
		StartURL:    "http://app.test/app/",
		State:       "completed",
		Total:       4,
		StartedAt:   started,
		FinishedAt:  started.Add(90 * time.Second),
	}
	results := &database.Results{
		InScope: []database.HistoryRecord{
			{Seq: 1, Method: "GET", URL: "http://app.test/app/", StatusCode: 200, State: model.ResourceStateProcessed},
			{Seq: 2, Method: "GET", URL: "http://cdn.test/app.js", StatusCode: 200, State: model.ResourceStateThirdParty},
		},
		OutOfScope: []database.HistoryRecord{
			{Seq: 3, Method: "GET", URL: "http://app.test/other/", StatusCode: 403, State: model.ResourceStateOutOfScope, Synthetic: true},
		},
		Errors: []database.HistoryRecord{
			{Seq: 4, Method: "GET", URL: "http://app.test/app/down", State: model.ResourceStateIOError},
		},
	}
	report := NewCrawlReport(session, results)
	report.SiteMap = []*database.SiteNode{
		{Name: "http://app.test", Hits: 1, Children: []*database.SiteNode{{Name: "app", Hits: 1}}},
	}
	return report
}

func TestNewCrawlReport(t *testing.T) {
	t.Parallel()

	t.Run("groups and counts", func(t *testing.T) {
		t.Parallel()

		r := createTestReport()
		if r.Total != 4 || r.Found() != 2 || len(r.OutOfScope) != 1 || len(r.Errors) != 1 {
			t.Errorf("report = %+v", r)
		}
		if r.Counts[model.ResourceStateThirdParty] != 1 || r.Counts[model.ResourceStateExcluded] != 0 {
			t.Errorf("counts = %v", r.Counts)
		}
		if r.Duration() != 90*time.Second {
			t.Errorf("Duration() = %v", r.Duration())
		}
	})

	t.Run("nil results", func(t *testing.T) {
		t.Parallel()

		r := NewCrawlReport(database.SessionRecord{ID: "x", State: "failed"}, nil)
		if r.Total != 0 || !r.Failed() || len(r.Counts) != len(model.AllResourceStates()) {
			t.Errorf("report = %+v", r)
		}
		if r.Duration() != 0 {
			t.Errorf("Duration() = %v for an unfinished crawl", r.Duration())
		}
	})
}

func TestSimpleWriter(t *testing.T) {
	t.Parallel()

	t.Run("writes header and summary", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		if _, err := NewSimpleWriter(&buf).Write(createTestReport()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		output := buf.String()
		for _, want := range []string{"SCOPECRAWL REPORT", "0b6c2f5e", "COMPLETED", "Third Party:", "TOTAL:", "1m30s"} {
			if !strings.Contains(output, want) {
				t.Errorf("expected output to contain %q", want)
			}
		}
		if strings.Contains(output, "Excluded:") {
			t.Error("empty states should be hidden by default")
		}
	})

	t.Run("lists in-scope resources and errors", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		if _, err := NewSimpleWriter(&buf).Write(createTestReport()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		output := buf.String()
		if !strings.Contains(output, "[200] GET    http://app.test/app/\n") {
			t.Error("expected processed resource line")
		}
		if !strings.Contains(output, "http://cdn.test/app.js (Third Party)") {
			t.Error("expected third-party resource to be labeled")
		}
		if !strings.Contains(output, "[---] GET    http://app.test/app/down (I/O Error)") {
			t.Error("expected error line")
		}
		if strings.Contains(output, "http://app.test/other/") {
			t.Error("out-of-scope resources are listed only in verbose mode")
		}
		if !strings.Contains(output, "SITE MAP") || !strings.Contains(output, "    app (1)") {
			t.Error("expected site map")
		}
	})

	t.Run("verbose lists out-of-scope resources", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		if _, err := NewSimpleWriter(&buf, WithVerbose(true)).Write(createTestReport()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(buf.String(), "[403] GET    http://app.test/other/ (Out of Scope)") {
			t.Error("expected out-of-scope resource in verbose output")
		}
	})

	t.Run("show empty", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		r := NewCrawlReport(database.SessionRecord{ID: "x", State: "failed", Error: "all browser workers failed"}, nil)
		if _, err := NewSimpleWriter(&buf, WithShowEmpty(true)).Write(r); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		output := buf.String()
		if !strings.Contains(output, "Excluded:") || !strings.Contains(output, "None") {
			t.Error("expected empty sections")
		}
		if !strings.Contains(output, "FAILED - all browser workers failed") {
			t.Error("expected failure status")
		}
	})
}

func TestMarkdownWriter(t *testing.T) {
	t.Parallel()

	t.Run("writes tables and chart", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		n, err := NewMarkdownWriter(&buf).Write(createTestReport())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if n == 0 {
			t.Error("expected non-zero byte count")
		}

		output := buf.String()
		for _, want := range []string{
			"# Scopecrawl Report",
			"## Summary",
			"```mermaid",
			"Requests by State",
			"## In Scope",
			"http://cdn.test/app.js",
			"## Site Map",
			"[!WARNING]",
			"✅ Completed",
		} {
			if !strings.Contains(output, want) {
				t.Errorf("expected output to contain %q", want)
			}
		}
	})

	t.Run("failed crawl", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		r := NewCrawlReport(database.SessionRecord{ID: "x", State: "failed", Error: "all browser workers failed"}, nil)
		if _, err := NewMarkdownWriter(&buf).Write(r); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		output := buf.String()
		if !strings.Contains(output, "[!CAUTION]") || !strings.Contains(output, "❌ Failed - all browser workers failed") {
			t.Errorf("expected failure alert, got:\n%s", output)
		}
		if strings.Contains(output, "```mermaid") {
			t.Error("no chart expected for an empty crawl")
		}
	})
}

func TestJSONWriter(t *testing.T) {
	t.Parallel()

	t.Run("compact output", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		if _, err := NewJSONWriter(&buf, "v1.2.3").Write(createTestReport()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if strings.Count(buf.String(), "\n") != 1 {
			t.Error("compact output should be a single line")
		}

		var decoded struct {
			Version string `json:"version"`
			Report  struct {
				SessionID string         `json:"session_id"`
				Counts    map[string]int `json:"counts"`
				InScope   []struct {
					URL   string `json:"url"`
					State string `json:"state"`
				} `json:"in_scope"`
			} `json:"report"`
		}
		if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
			t.Fatalf("invalid JSON: %v", err)
		}
		if decoded.Version != "v1.2.3" || decoded.Report.SessionID != "0b6c2f5e" || decoded.Report.Counts["third_party"] != 1 {
			t.Errorf("decoded = %+v", decoded)
		}
		if len(decoded.Report.InScope) != 2 || decoded.Report.InScope[1].State != "third_party" {
			t.Errorf("in_scope = %+v", decoded.Report.InScope)
		}
	})

	t.Run("pretty print", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		if _, err := NewJSONWriter(&buf, "v1.2.3", WithPrettyPrint()).Write(createTestReport()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		var decoded JSONReport
		if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
			t.Fatalf("invalid JSON: %v", err)
		}
		if decoded.Report == nil || decoded.Report.Total != 4 {
			t.Errorf("decoded = %+v", decoded)
		}
		if !strings.Contains(buf.String(), "\n  \"version\"") {
			t.Error("expected indented output")
		}
	})
}

type failingWriter struct{}

func (failingWriter) Write(*CrawlReport) (int, error) { return 0, errors.New("disk full") }

func TestTee(t *testing.T) {
	t.Parallel()

	t.Run("writes to all writers", func(t *testing.T) {
		t.Parallel()

		var text, js bytes.Buffer
		n, err := Tee{NewSimpleWriter(&text), NewJSONWriter(&js, "dev")}.Write(createTestReport())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if n != text.Len()+js.Len() {
			t.Errorf("n = %d, want %d", n, text.Len()+js.Len())
		}
	})

	t.Run("keeps writing after an error", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		n, err := Tee{failingWriter{}, NewSimpleWriter(&buf)}.Write(createTestReport())
		if err == nil || !strings.Contains(err.Error(), "disk full") {
			t.Fatalf("err = %v, want the failing writer's error", err)
		}
		if buf.Len() == 0 || n != buf.Len() {
			t.Errorf("later writer wrote %d bytes, n = %d", buf.Len(), n)
		}
	})
}

func TestTruncateString(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		input  string
		maxLen int
		want   string
	}{
		{"short", 10, "short"},
		{"exactly10!", 10, "exactly10!"},
		{"this is too long", 10, "this is..."},
		{"abc", 2, "ab"},
	}
	for _, tc := range testCases {
		if got := truncateString(tc.input, tc.maxLen); got != tc.want {
			t.Errorf("truncateString(%q, %d) = %q, want %q", tc.input, tc.maxLen, got, tc.want)
		}
	}
}
