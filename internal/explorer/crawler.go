package explorer

import (
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/nao1215/scopecrawl/internal/browser"
)

// Crawler is the built-in exploration engine. It explores the application
// breadth-first, sharing one frontier among all browser slots.
type Crawler struct {
	logger  *slog.Logger
	limit   rate.Limit
	burst   int
	rngSeed uint64

	mu    sync.Mutex
	stats Stats
}

// Stats contains crawl statistics.
type Stats struct {
	// PagesVisited is the number of distinct documents loaded.
	PagesVisited int

	// URLsQueued is the number of unique URLs ever queued.
	URLsQueued int

	// Actions is the number of navigations performed.
	Actions int
}

// CrawlerOption configures a Crawler.
type CrawlerOption func(*Crawler)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) CrawlerOption {
	return func(c *Crawler) {
		c.logger = logger
	}
}

// WithRateLimit limits each browser slot to r navigations per second.
func WithRateLimit(r rate.Limit, burst int) CrawlerOption {
	return func(c *Crawler) {
		c.limit = r
		c.burst = burst
	}
}

// WithSeed makes random form inputs reproducible.
func WithSeed(seed uint64) CrawlerOption {
	return func(c *Crawler) {
		c.rngSeed = seed
	}
}

// NewCrawler creates a Crawler. Without WithRateLimit navigations are unthrottled.
func NewCrawler(opts ...CrawlerOption) *Crawler {
	c := &Crawler{
		logger:  slog.Default(),
		limit:   rate.Inf,
		burst:   1,
		rngSeed: uint64(time.Now().UnixNano()),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Stats returns the statistics of the last run.
func (c *Crawler) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

// queueItem is one pending navigation.
type queueItem struct {
	url   string
	depth int
}

// frontier is the BFS queue shared by all slots. take blocks until an item
// is available, or returns false once the queue is drained and no slot is
// still working on a page that could add more.
type frontier struct {
	mu      sync.Mutex
	cond    *sync.Cond
	queue   []queueItem
	queued  map[string]bool
	visited map[string]bool
	busy    int
	done    bool
}

func newFrontier() *frontier {
	f := &frontier{queued: make(map[string]bool), visited: make(map[string]bool)}
	f.cond = sync.NewCond(&f.mu)
	return f
}

// push queues rawURL unless it was queued before. It returns whether it was added.
func (f *frontier) push(rawURL string, depth int) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := normalizeURL(rawURL)
	if f.done || f.queued[key] {
		return false
	}
	f.queued[key] = true
	f.queue = append(f.queue, queueItem{url: rawURL, depth: depth})
	f.cond.Signal()
	return true
}

func (f *frontier) take() (queueItem, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for !f.done && len(f.queue) == 0 && f.busy > 0 {
		f.cond.Wait()
	}
	if f.done || len(f.queue) == 0 {
		f.done = true
		f.cond.Broadcast()
		return queueItem{}, false
	}
	item := f.queue[0]
	f.queue = f.queue[1:]
	f.busy++
	return item, true
}

// finish marks the page taken by a slot as handled.
func (f *frontier) finish() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.busy--
	f.cond.Broadcast()
}

// visit records a loaded document. It returns false for documents that were
// already loaded, e.g. through a redirect.
func (f *frontier) visit(rawURL string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := normalizeURL(rawURL)
	if f.visited[key] {
		return false
	}
	f.visited[key] = true
	return true
}

func (f *frontier) stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.done = true
	f.cond.Broadcast()
}

// Run explores cfg.StartURL until the frontier is exhausted, a limit is
// reached or ctx is cancelled. Cancellation and the duration limit end the
// run without an error.
func (c *Crawler) Run(ctx context.Context, cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if cfg.Limits.MaxDuration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Limits.MaxDuration)
		defer cancel()
	}

	c.mu.Lock()
	c.stats = Stats{}
	c.mu.Unlock()

	f := newFrontier()
	stopWaiting := context.AfterFunc(ctx, f.stop)
	defer stopWaiting()

	if !cfg.InScope(cfg.StartURL) {
		c.logger.Warn("start URL is out of scope, nothing to explore", slog.String("url", cfg.StartURL))
		return nil
	}
	f.push(cfg.StartURL, 0)
	c.count(func(s *Stats) { s.URLsQueued++ })

	var (
		startedMu sync.Mutex
		started   int
	)
	g, gctx := errgroup.WithContext(ctx)
	for slot := range cfg.Browsers {
		g.Go(func() error {
			b, err := cfg.Provider(gctx, slot)
			if err != nil {
				c.logger.Warn("browser slot unavailable", slog.Int("slot", slot), slog.Any("error", err))
				return nil
			}
			startedMu.Lock()
			started++
			startedMu.Unlock()
			if cfg.Release != nil {
				defer cfg.Release(slot)
			}
			c.explore(gctx, slot, b, f, cfg)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	stats := c.Stats()
	c.logger.Info("exploration finished",
		slog.Int("pages", stats.PagesVisited),
		slog.Int("queued", stats.URLsQueued),
		slog.Int("actions", stats.Actions),
	)

	if started == 0 && ctx.Err() == nil {
		return ErrNoBrowsers
	}
	return nil
}

// explore is the loop of one browser slot.
func (c *Crawler) explore(ctx context.Context, slot int, b browser.Browser, f *frontier, cfg Config) {
	limits := cfg.Limits
	limiter := rate.NewLimiter(c.limit, c.burst)
	extractor := newActionExtractor(limits, rand.New(rand.NewPCG(c.rngSeed, uint64(slot)))) //nolint:gosec // form inputs need no crypto randomness
	logger := c.logger.With(slog.Int("slot", slot))

	for {
		item, ok := f.take()
		if !ok {
			return
		}
		c.visit(ctx, logger, b, f, item, cfg, limiter, extractor)
		f.finish()
		if ctx.Err() != nil {
			f.stop()
			return
		}
	}
}

func (c *Crawler) visit(ctx context.Context, logger *slog.Logger, b browser.Browser, f *frontier, item queueItem,
	cfg Config, limiter *rate.Limiter, extractor *actionExtractor) {
	limits := cfg.Limits

	if item.depth > 0 && !sleep(ctx, limits.EventWait) {
		return
	}
	if err := limiter.Wait(ctx); err != nil {
		return
	}

	c.count(func(s *Stats) { s.Actions++ })
	if err := b.Navigate(ctx, item.url); err != nil {
		logger.Debug("navigation failed", slog.String("url", item.url), slog.Any("error", err))
		return
	}
	if !sleep(ctx, limits.ReloadWait) {
		return
	}

	page, err := b.Snapshot(ctx)
	if err != nil {
		logger.Debug("snapshot failed", slog.String("url", item.url), slog.Any("error", err))
		return
	}
	if page.URL == "" {
		page.URL = item.url
	}
	if !f.visit(page.URL) {
		return
	}

	reachedStates := false
	c.count(func(s *Stats) {
		s.PagesVisited++
		reachedStates = limits.MaxStates > 0 && s.PagesVisited >= limits.MaxStates
	})
	logger.Debug("page visited", slog.String("url", page.URL), slog.Int("depth", item.depth))
	if reachedStates {
		logger.Info("maximum number of crawl states reached", slog.Int("states", limits.MaxStates))
		f.stop()
		return
	}
	if limits.MaxDepth > 0 && item.depth >= limits.MaxDepth {
		return
	}

	targets, err := extractor.extract(page.URL, page.HTML)
	if err != nil {
		logger.Debug("document parse failed", slog.String("url", page.URL), slog.Any("error", err))
		return
	}
	for _, target := range targets {
		if !cfg.InScope(target) {
			continue
		}
		if f.push(target, item.depth+1) {
			c.count(func(s *Stats) { s.URLsQueued++ })
		}
	}
}

func (c *Crawler) count(update func(*Stats)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	update(&c.stats)
}

// sleep waits d or until ctx ends. It reports whether the full wait elapsed.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// ErrNoBrowsers is returned when no browser slot could be provided.
var ErrNoBrowsers = errors.New("no browser could be started")
