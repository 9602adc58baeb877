package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"github.com/nao1215/scopecrawl/internal/auth"
	"github.com/nao1215/scopecrawl/internal/browser"
	"github.com/nao1215/scopecrawl/internal/config"
	"github.com/nao1215/scopecrawl/internal/database"
	"github.com/nao1215/scopecrawl/internal/explorer"
	"github.com/nao1215/scopecrawl/internal/hub"
	"github.com/nao1215/scopecrawl/internal/log"
	"github.com/nao1215/scopecrawl/internal/model"
	"github.com/nao1215/scopecrawl/internal/report"
	"github.com/nao1215/scopecrawl/internal/session"
	"github.com/nao1215/scopecrawl/internal/upstream"
)

// errThresholdNotMet is returned when fewer in-scope resources than
// --fail-if-found-less-than were found.
var errThresholdNotMet = errors.New("found fewer in-scope resources than required")

// NewCrawlCmd creates the crawl command.
func NewCrawlCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "crawl [start-url]",
		Short: "Crawl a web application and classify its traffic",
		Long: `Crawl explores a web application starting at the given URL.

Each browser talks to the network through its own intercepting proxy.
Every request is classified as processed, out of scope, out of context,
excluded, third party or I/O error. With the strict scope check policy,
requests that are not processed are answered with a 403 page instead of
being forwarded.

Examples:
  # Crawl an application with one headless Chrome
  scopecrawl crawl https://app.example.com/

  # Crawl only below /shop/ with three browsers
  scopecrawl crawl --subtree -b 3 https://app.example.com/shop/

  # Crawl as a user defined in the configuration file
  scopecrawl crawl --user alice https://app.example.com/

  # Only visit URLs matching the configuration file's scope
  scopecrawl crawl --in-scope-only https://app.example.com/

  # Route traffic through an embedded Tor daemon
  scopecrawl crawl --tor http://<v3-address>.onion/

  # Write a Markdown report
  scopecrawl crawl -m -o report.md https://app.example.com/`,
		Args: cobra.ExactArgs(1),
		RunE: runCrawlCmd,
	}

	defaults := model.NewOptions()

	// Browser and limit flags
	cmd.Flags().IntP("browsers", "b", defaults.NumberOfBrowsers,
		"Number of browsers crawling in parallel")
	cmd.Flags().String("browser", defaults.BrowserID,
		"Browser to use: chrome-headless, chrome or http")
	cmd.Flags().IntP("depth", "d", defaults.MaxCrawlDepth,
		"Maximum crawl depth (0 = unlimited)")
	cmd.Flags().Int("states", defaults.MaxCrawlStates,
		"Maximum number of pages to visit (0 = unlimited)")
	cmd.Flags().DurationP("duration", "t", defaults.MaxDuration,
		"Maximum crawl duration (0 = unlimited)")
	cmd.Flags().Float64("rate", config.DefaultRequestsPerSecond,
		"Maximum navigations per second and browser (0 = unlimited)")

	// Scope flags
	cmd.Flags().String("policy", defaults.ScopeCheckPolicy.String(),
		"Scope check policy: strict blocks off-scope requests, flexible only labels them")
	cmd.Flags().BoolP("subtree", "s", false,
		"Only crawl below the start URL's path")
	cmd.Flags().Bool("in-scope-only", false,
		"Only crawl URLs matching the configuration file's scope")
	cmd.Flags().String("context", "",
		"Restrict the crawl to a context from the configuration file")
	cmd.Flags().StringP("user", "u", "",
		"Crawl as a user from the configuration file")
	cmd.Flags().String("mode", model.ModeStandard.String(),
		"Operating mode: safe, protect, standard or attack")

	// Upstream flags
	cmd.Flags().Bool("tor", false,
		"Route traffic through an embedded Tor daemon")
	cmd.Flags().DurationP("tor-timeout", "T", config.DefaultTorStartupTimeout,
		"Timeout for embedded Tor startup")
	cmd.Flags().StringP("proxy", "x", "",
		"Route traffic through a SOCKS5 proxy (e.g., 127.0.0.1:9050)")

	// Configuration file
	cmd.Flags().StringP("config", "c", "",
		"Configuration file path (default: .scopecrawl in current or home directory)")

	// Report flags
	cmd.Flags().BoolP("json", "j", false,
		"Output JSON report (mutually exclusive with --markdown)")
	cmd.Flags().BoolP("markdown", "m", false,
		"Output Markdown report (mutually exclusive with --json)")
	cmd.Flags().StringP("output", "o", "",
		"Write report to specified file path (creates directories if needed)")
	cmd.Flags().Bool("no-db", false,
		"Do not keep the crawl in the result database")
	cmd.Flags().String("metrics-addr", config.DefaultMetricsAddr,
		"Serve Prometheus metrics on this address while crawling (e.g., :9090)")
	cmd.Flags().Int("fail-if-found-less-than", 0,
		"Exit with an error when fewer in-scope resources are found")
	cmd.Flags().Int("warn-if-found-less-than", 0,
		"Print a warning when fewer in-scope resources are found")

	return cmd
}

func runCrawlCmd(cmd *cobra.Command, args []string) error {
	cfg, err := buildConfig(cmd, args)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	logger := setupLogger(cfg.Verbose)
	slog.SetDefault(logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case <-sigCh:
			logger.Info("received shutdown signal, stopping crawl...")
			cancel()
		case <-ctx.Done():
		}
	}()

	return runCrawl(ctx, cfg, logger, cmd.OutOrStdout(), cmd.ErrOrStderr())
}

// getVerboseFlag retrieves the verbose flag from the command or its parent.
func getVerboseFlag(cmd *cobra.Command) bool {
	verbose, err := cmd.Flags().GetBool("verbose")
	if err != nil {
		verbose, err = cmd.Root().PersistentFlags().GetBool("verbose")
		if err != nil {
			return false
		}
	}
	return verbose
}

// buildConfig creates a Config from the defaults, the configuration file
// and the command flags, in that order of precedence.
func buildConfig(cmd *cobra.Command, args []string) (*config.Config, error) {
	cfg := config.NewConfig()
	cfg.Verbose = getVerboseFlag(cmd)
	if len(args) > 0 {
		cfg.StartURL = args[0]
	}

	flags := cmd.Flags()
	var err error

	cfg.ConfigFilePath, err = flags.GetString("config")
	if err != nil {
		return nil, err
	}
	configPath := config.FindConfigFile(cfg.ConfigFilePath)
	switch {
	case configPath != "":
		cfg.File, err = config.LoadConfigFile(configPath, cfg.Options)
		if err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
		cfg.Options = cfg.File.Options.Clone()
	case cfg.ConfigFilePath != "":
		return nil, fmt.Errorf("configuration file not found: %s", cfg.ConfigFilePath)
	}

	if err := applyOptionFlags(cmd, &cfg.Options); err != nil {
		return nil, err
	}

	if cfg.SubtreeOnly, err = flags.GetBool("subtree"); err != nil {
		return nil, err
	}
	if cfg.InScopeOnly, err = flags.GetBool("in-scope-only"); err != nil {
		return nil, err
	}
	if cfg.ContextName, err = flags.GetString("context"); err != nil {
		return nil, err
	}
	if cfg.UserName, err = flags.GetString("user"); err != nil {
		return nil, err
	}
	mode, err := flags.GetString("mode")
	if err != nil {
		return nil, err
	}
	if cfg.Mode, err = model.ParseMode(mode); err != nil {
		return nil, err
	}

	if cfg.UseTor, err = flags.GetBool("tor"); err != nil {
		return nil, err
	}
	if cfg.TorStartupTimeout, err = flags.GetDuration("tor-timeout"); err != nil {
		return nil, err
	}
	if cfg.ProxyAddress, err = flags.GetString("proxy"); err != nil {
		return nil, err
	}
	if cfg.RequestsPerSecond, err = flags.GetFloat64("rate"); err != nil {
		return nil, err
	}

	if cfg.JSONReport, err = flags.GetBool("json"); err != nil {
		return nil, err
	}
	if cfg.MarkdownReport, err = flags.GetBool("markdown"); err != nil {
		return nil, err
	}
	if cfg.ReportFile, err = flags.GetString("output"); err != nil {
		return nil, err
	}
	noDB, err := flags.GetBool("no-db")
	if err != nil {
		return nil, err
	}
	cfg.SaveToDB = !noDB
	if cfg.MetricsAddr, err = flags.GetString("metrics-addr"); err != nil {
		return nil, err
	}
	if cfg.FailIfFoundLessThan, err = flags.GetInt("fail-if-found-less-than"); err != nil {
		return nil, err
	}
	if cfg.WarnIfFoundLessThan, err = flags.GetInt("warn-if-found-less-than"); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyOptionFlags overrides the crawl options with the flags set on the
// command line. Unset flags keep the values from the configuration file.
func applyOptionFlags(cmd *cobra.Command, opts *model.Options) error {
	flags := cmd.Flags()
	var err error

	if flags.Changed("browsers") {
		if opts.NumberOfBrowsers, err = flags.GetInt("browsers"); err != nil {
			return err
		}
	}
	if flags.Changed("browser") {
		if opts.BrowserID, err = flags.GetString("browser"); err != nil {
			return err
		}
	}
	if flags.Changed("depth") {
		if opts.MaxCrawlDepth, err = flags.GetInt("depth"); err != nil {
			return err
		}
	}
	if flags.Changed("states") {
		if opts.MaxCrawlStates, err = flags.GetInt("states"); err != nil {
			return err
		}
	}
	if flags.Changed("duration") {
		if opts.MaxDuration, err = flags.GetDuration("duration"); err != nil {
			return err
		}
	}
	if flags.Changed("policy") {
		policy, err := flags.GetString("policy")
		if err != nil {
			return err
		}
		if opts.ScopeCheckPolicy, err = model.ParseScopeCheckPolicy(policy); err != nil {
			return err
		}
	}
	return nil
}

// setupLogger creates a structured logger that redacts credentials.
func setupLogger(verbose bool) *slog.Logger {
	return log.NewSecureLogger(os.Stderr, verbose)
}

// runCrawl executes one crawl and writes its report.
func runCrawl(ctx context.Context, cfg *config.Config, logger *slog.Logger, out, errOut io.Writer) error {
	target, err := cfg.Target()
	if err != nil {
		return fmt.Errorf("invalid crawl target: %w", err)
	}
	globalScope, err := cfg.GlobalScope()
	if err != nil {
		return fmt.Errorf("invalid scope: %w", err)
	}

	logger.Info("starting crawl",
		slog.String("start_url", cfg.StartURL),
		slog.String("mode", cfg.Mode.String()),
		slog.Int("browsers", cfg.Options.NumberOfBrowsers),
		slog.Bool("save_to_db", cfg.SaveToDB),
	)

	transport, stopUpstream, err := buildTransport(ctx, cfg, logger, out)
	if err != nil {
		return err
	}
	defer stopUpstream()

	launcher, err := browser.NewLauncher(cfg.Options.BrowserID, logger)
	if err != nil {
		return err
	}

	registry := prometheus.NewRegistry()
	metrics := session.NewMetrics(registry)
	if cfg.MetricsAddr != "" {
		stopMetrics := serveMetrics(cfg.MetricsAddr, registry, logger)
		defer stopMetrics()
	}

	db, closeDB, err := openResultDB(cfg, logger)
	if err != nil {
		return err
	}
	defer closeDB()

	svc := session.NewService(session.Deps{
		Launcher:   launcher,
		Engine:     newEngine(cfg, logger),
		Auth:       auth.NewRegistry(logger, auth.NewCredentialHandler(logger)),
		Transport:  upstream.WithHeaders(transport, cfg.UpstreamHeaders()),
		Exclusions: cfg.Exclusions(),
		Scope:      globalScope,
		Metrics:    metrics,
		Logger:     logger,
	})

	recorder := database.NewRecorder(db,
		func() database.SessionRecord { return sessionRecord(svc.Result(), target) },
		database.WithRecorderLogger(logger),
	)
	defer svc.Subscribe(recorder)()
	if cfg.Verbose {
		defer svc.Subscribe(progressListener(errOut))()
	}

	fmt.Fprintf(out, "Crawling %s...\n", session.DisplayName(target))
	status, crawlErr := svc.Run(ctx, target, cfg.Mode)
	if status.ID == "" {
		return fmt.Errorf("failed to start crawl: %w", crawlErr)
	}
	fmt.Fprintf(out, "Crawl %s in %s\n\n", status.State, status.FinishedAt.Sub(status.StartedAt).Round(time.Millisecond))

	if n := recorder.Failures(); n > 0 {
		fmt.Fprintf(errOut, "Warning: %d result(s) could not be stored in the database.\n", n)
	}

	// The crawl context may be cancelled by now; the report is still written.
	r, err := loadReport(context.WithoutCancel(ctx), db, status.ID, sessionRecord(status, target))
	if err != nil {
		return err
	}
	if err := outputReport(cfg, r, out); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}

	if crawlErr != nil {
		return fmt.Errorf("crawl failed: %w", crawlErr)
	}
	return checkThresholds(cfg, r, errOut)
}

// buildTransport returns the upstream transport and a function releasing it.
func buildTransport(ctx context.Context, cfg *config.Config, logger *slog.Logger, out io.Writer) (http.RoundTripper, func(), error) {
	noop := func() {}

	switch {
	case cfg.ProxyAddress != "":
		if status := upstream.CheckSOCKS5(ctx, cfg.ProxyAddress); status != upstream.ProxyStatusOK {
			return nil, noop, fmt.Errorf("SOCKS5 proxy check failed: %s (make sure a proxy is running at %s)",
				status, cfg.ProxyAddress)
		}
		t, err := upstream.SOCKS5(cfg.ProxyAddress)
		if err != nil {
			return nil, noop, err
		}
		logger.Info("SOCKS5 proxy connection verified", slog.String("address", cfg.ProxyAddress))
		return t, noop, nil

	case cfg.UseTor:
		fmt.Fprintln(out, "Starting embedded Tor daemon...")
		fmt.Fprintf(out, "This may take 1-3 minutes while Tor bootstraps and connects to the network.\n\n")

		tor := upstream.NewEmbeddedTor(
			upstream.WithStartupTimeout(cfg.TorStartupTimeout),
			upstream.WithTorLogger(logger),
		)
		if err := tor.Start(ctx); err != nil {
			return nil, noop, fmt.Errorf("failed to start embedded Tor: %w", err)
		}
		stop := func() {
			logger.Info("stopping embedded Tor daemon...")
			if err := tor.Stop(); err != nil {
				logger.Error("failed to stop embedded Tor", slog.Any("error", err))
			}
		}
		t, err := tor.Transport()
		if err != nil {
			stop()
			return nil, noop, err
		}
		fmt.Fprintf(out, "Embedded Tor daemon started (SOCKS proxy: %s)\n\n", tor.SocksAddr())
		return t, stop, nil

	default:
		return upstream.Direct(), noop, nil
	}
}

// newEngine creates the crawl engine, throttled when a rate is configured.
func newEngine(cfg *config.Config, logger *slog.Logger) explorer.Engine {
	opts := []explorer.CrawlerOption{explorer.WithLogger(logger)}
	if cfg.RequestsPerSecond > 0 {
		opts = append(opts, explorer.WithRateLimit(rate.Limit(cfg.RequestsPerSecond), 1))
	}
	return explorer.NewCrawler(opts...)
}

// serveMetrics serves reg on addr until the returned function is called.
func serveMetrics(addr string, reg *prometheus.Registry, logger *slog.Logger) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", slog.String("addr", addr), slog.Any("error", err))
		}
	}()
	logger.Info("serving metrics", slog.String("addr", addr))

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			logger.Warn("failed to stop metrics server", slog.Any("error", err))
		}
	}
}

// openResultDB opens the result database. With SaveToDB off the database
// lives in a temporary directory that is removed on close.
func openResultDB(cfg *config.Config, logger *slog.Logger) (*database.CrawlDB, func(), error) {
	dir := cfg.DBDir
	var tmpDir string
	if !cfg.SaveToDB {
		var err error
		tmpDir, err = os.MkdirTemp("", config.AppName+"-*")
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create temporary directory: %w", err)
		}
		dir = tmpDir
	}

	db, err := database.Open(dir, database.DefaultOptions())
	if err != nil {
		if tmpDir != "" {
			_ = os.RemoveAll(tmpDir)
		}
		return nil, nil, fmt.Errorf("failed to open database: %w", err)
	}
	logger.Debug("database opened", slog.String("path", db.Path()))

	return db, func() {
		if err := db.Close(); err != nil {
			logger.Warn("failed to close database", slog.Any("error", err))
		}
		if tmpDir != "" {
			_ = os.RemoveAll(tmpDir)
		}
	}, nil
}

// sessionRecord converts a session status into its stored form.
func sessionRecord(st session.Status, target *model.Target) database.SessionRecord {
	rec := database.SessionRecord{
		ID:          st.ID,
		DisplayName: st.DisplayName,
		StartURL:    target.StartURI().String(),
		State:       st.State.String(),
		Total:       st.Total,
		StartedAt:   st.StartedAt,
		FinishedAt:  st.FinishedAt,
	}
	if st.Err != nil {
		rec.Error = st.Err.Error()
	}
	return rec
}

// progressListener prints every classified request.
func progressListener(w io.Writer) hub.Listener {
	return &hub.ListenerFuncs{
		Found: func(ex model.Exchange) {
			fmt.Fprintf(w, "  [%s] %s %s\n", ex.State.Label(), ex.Request.Method, log.RedactURL(ex.Request.URL))
		},
	}
}

// checkThresholds applies --warn-if-found-less-than and --fail-if-found-less-than.
func checkThresholds(cfg *config.Config, r *report.CrawlReport, errOut io.Writer) error {
	found := r.Found()
	if cfg.FailIfFoundLessThan > 0 && found < cfg.FailIfFoundLessThan {
		return fmt.Errorf("%w: %d < %d", errThresholdNotMet, found, cfg.FailIfFoundLessThan)
	}
	if cfg.WarnIfFoundLessThan > 0 && found < cfg.WarnIfFoundLessThan {
		fmt.Fprintf(errOut, "Warning: found %d in-scope resource(s), expected at least %d\n",
			found, cfg.WarnIfFoundLessThan)
	}
	return nil
}
