package database

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/nao1215/scopecrawl/internal/model"
)

// Recorder is a crawl listener that persists sessions, history and the
// site map. Storage errors are logged and counted; they never stop a crawl.
type Recorder struct {
	db       *CrawlDB
	describe func() SessionRecord
	logger   *slog.Logger
	timeout  time.Duration

	mu        sync.Mutex
	sessionID string
	failures  int
}

// RecorderOption configures a Recorder.
type RecorderOption func(*Recorder)

// WithRecorderLogger sets the logger.
func WithRecorderLogger(logger *slog.Logger) RecorderOption {
	return func(r *Recorder) {
		r.logger = logger
	}
}

// WithWriteTimeout bounds every database write. The default is 10 seconds.
func WithWriteTimeout(d time.Duration) RecorderOption {
	return func(r *Recorder) {
		r.timeout = d
	}
}

// NewRecorder creates a Recorder writing to db. describe is called when a
// crawl starts and stops and must return the current session.
func NewRecorder(db *CrawlDB, describe func() SessionRecord, opts ...RecorderOption) *Recorder {
	r := &Recorder{
		db:       db,
		describe: describe,
		logger:   slog.Default(),
		timeout:  10 * time.Second,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// OnStarted stores the new session.
func (r *Recorder) OnStarted() {
	rec := r.describe()

	r.mu.Lock()
	r.sessionID = rec.ID
	r.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()
	r.check("begin session", r.db.BeginSession(ctx, rec))
}

// OnFound stores ex in the history and in-scope resources in the site map.
func (r *Recorder) OnFound(ex model.Exchange) {
	r.mu.Lock()
	sessionID := r.sessionID
	r.mu.Unlock()
	if sessionID == "" {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	_, err := r.db.InsertHistory(ctx, sessionID, ex)
	r.check("insert history", err)
	if ex.State.IsInScope() {
		r.check("add site node", r.db.AddSiteNode(ctx, ex.Request.URL, ex.State))
	}
}

// OnStopped stores the final state of the session.
func (r *Recorder) OnStopped() {
	rec := r.describe()

	r.mu.Lock()
	if rec.ID == "" {
		rec.ID = r.sessionID
	}
	r.sessionID = ""
	r.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()
	r.check("finish session", r.db.FinishSession(ctx, rec))
}

// Failures returns the number of failed writes.
func (r *Recorder) Failures() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.failures
}

func (r *Recorder) check(op string, err error) {
	if err == nil {
		return
	}
	r.mu.Lock()
	r.failures++
	r.mu.Unlock()
	r.logger.Warn("failed to record crawl result", slog.String("op", op), slog.Any("error", err))
}
