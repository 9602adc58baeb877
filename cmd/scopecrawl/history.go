package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nao1215/scopecrawl/internal/config"
	"github.com/nao1215/scopecrawl/internal/database"
)

// errNoSessions is returned when the database holds no crawl to show.
var errNoSessions = errors.New("no crawl sessions found")

// NewHistoryCmd creates the history command.
// It shows crawls stored in the result database.
func NewHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history [session-id]",
		Short: "Show stored crawl sessions",
		Long: `History shows crawls stored in the result database.

Without arguments the report of the latest crawl is printed. Pass a
session ID to print the report of an earlier crawl.

Examples:
  # Show the latest crawl
  scopecrawl history

  # List all stored crawls
  scopecrawl history --list

  # Show a specific crawl as Markdown
  scopecrawl history -m 0b4c2f9e-8f0e-4c53-9a39-7d1c0f3f9d21`,
		Args: cobra.MaximumNArgs(1),
		RunE: runHistoryCmd,
	}

	cmd.Flags().BoolP("list", "l", false,
		"List all stored crawl sessions")
	cmd.Flags().String("db-dir", config.XDGDataDir(),
		"Directory of the result database")
	cmd.Flags().BoolP("json", "j", false,
		"Output JSON report (mutually exclusive with --markdown)")
	cmd.Flags().BoolP("markdown", "m", false,
		"Output Markdown report (mutually exclusive with --json)")
	cmd.Flags().StringP("output", "o", "",
		"Write report to specified file path (creates directories if needed)")

	return cmd
}

func runHistoryCmd(cmd *cobra.Command, args []string) error {
	flags := cmd.Flags()

	list, err := flags.GetBool("list")
	if err != nil {
		return err
	}
	if list && len(args) > 0 {
		return errors.New("--list does not take a session ID")
	}

	cfg := config.NewConfig()
	cfg.Verbose = getVerboseFlag(cmd)
	if cfg.DBDir, err = flags.GetString("db-dir"); err != nil {
		return err
	}
	if cfg.JSONReport, err = flags.GetBool("json"); err != nil {
		return err
	}
	if cfg.MarkdownReport, err = flags.GetBool("markdown"); err != nil {
		return err
	}
	if cfg.ReportFile, err = flags.GetString("output"); err != nil {
		return err
	}
	if cfg.JSONReport && cfg.MarkdownReport {
		return config.ErrConflictingReportFormats
	}
	if cfg.DBDir == "" {
		return config.ErrNoDBDir
	}

	db, err := database.Open(cfg.DBDir, database.Options{CreateIfNotExists: false, EnableWAL: true})
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	ctx := context.Background()
	out := cmd.OutOrStdout()

	if list {
		return listSessions(ctx, db, out)
	}

	var rec *database.SessionRecord
	if len(args) == 1 {
		rec, err = db.GetSession(ctx, args[0])
		if err != nil {
			return err
		}
		if rec == nil {
			return fmt.Errorf("%w: %s", errNoSessions, args[0])
		}
	} else {
		rec, err = db.LatestSession(ctx)
		if err != nil {
			return err
		}
		if rec == nil {
			return fmt.Errorf("%w (use 'scopecrawl crawl' first)", errNoSessions)
		}
	}

	r, err := loadReport(ctx, db, rec.ID, *rec)
	if err != nil {
		return err
	}
	return outputReport(cfg, r, out)
}

// listSessions prints every stored session, newest first.
func listSessions(ctx context.Context, db *database.CrawlDB, out io.Writer) error {
	sessions, err := db.ListSessions(ctx)
	if err != nil {
		return err
	}
	if len(sessions) == 0 {
		fmt.Fprintln(out, "No crawl sessions found in the database.")
		fmt.Fprintln(out, "\nUse 'scopecrawl crawl <url>' to crawl an application.")
		return nil
	}

	fmt.Fprintf(out, "Crawl sessions (%d):\n\n", len(sessions))
	fmt.Fprintf(out, "  %-36s  %-19s  %-9s  %7s  %s\n", "ID", "Started", "State", "Total", "Target")
	fmt.Fprintln(out, "  "+strings.Repeat("-", 100))
	for _, s := range sessions {
		fmt.Fprintf(out, "  %-36s  %-19s  %-9s  %7d  %s\n",
			s.ID,
			s.StartedAt.Local().Format("2006-01-02 15:04:05"),
			s.State,
			s.Total,
			s.DisplayName,
		)
	}
	fmt.Fprintln(out, "\nUse 'scopecrawl history <id>' to show the report of a session.")
	return nil
}
