package main

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/nao1215/scopecrawl/internal/config"
	"github.com/nao1215/scopecrawl/internal/database"
	"github.com/nao1215/scopecrawl/internal/report"
)

// loadReport builds the report of a stored session. fallback is used when
// the session row is missing, for example after a failed database write.
func loadReport(ctx context.Context, db *database.CrawlDB, sessionID string, fallback database.SessionRecord) (*report.CrawlReport, error) {
	rec, err := db.GetSession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	if rec == nil {
		rec = &fallback
	}

	results, err := db.Results(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load results: %w", err)
	}

	r := report.NewCrawlReport(*rec, results)

	tree, err := db.SiteTree(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load site map: %w", err)
	}
	r.SiteMap = siteMapFor(tree, results)
	return r, nil
}

// siteMapFor keeps the site map roots of the hosts a session reached.
func siteMapFor(tree []*database.SiteNode, results *database.Results) []*database.SiteNode {
	hosts := make(map[string]bool)
	for _, rec := range results.InScope {
		u, err := url.Parse(rec.URL)
		if err != nil || u.Host == "" {
			continue
		}
		hosts[strings.ToLower(u.Scheme)+"://"+strings.ToLower(u.Host)] = true
	}

	var roots []*database.SiteNode
	for _, n := range tree {
		if hosts[n.Name] {
			roots = append(roots, n)
		}
	}
	return roots
}

// outputReport writes r in the configured format to out. With a report
// file the full report goes to the file and out receives a text summary.
func outputReport(cfg *config.Config, r *report.CrawlReport, out io.Writer) error {
	if cfg.ReportFile == "" {
		_, err := newReportWriter(cfg, out).Write(r)
		return err
	}

	if dir := filepath.Dir(cfg.ReportFile); dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}

	// Reports carry URLs of authenticated sessions; only the owner may read them.
	f, err := os.OpenFile(cfg.ReportFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer f.Close()

	_, err = report.Tee{
		newReportWriter(cfg, f),
		report.NewSimpleWriter(out, report.WithSummaryOnly()),
	}.Write(r)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Report written to %s\n", cfg.ReportFile)
	return nil
}

// newReportWriter selects the writer for the configured format.
func newReportWriter(cfg *config.Config, out io.Writer) report.Writer {
	switch {
	case cfg.JSONReport:
		return report.NewJSONWriter(out, getVersion(), report.WithPrettyPrint())
	case cfg.MarkdownReport:
		return report.NewMarkdownWriter(out)
	default:
		return report.NewSimpleWriter(out, report.WithVerbose(cfg.Verbose))
	}
}
