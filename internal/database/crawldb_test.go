package database

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nao1215/scopecrawl/internal/model"
)

// setupTestDB creates a temporary database for testing.
func setupTestDB(t *testing.T) *CrawlDB {
	t.Helper()

	db, err := Open(t.TempDir(), DefaultOptions())
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func exchange(seq uint64, rawURL string, state model.ResourceState, status int) model.Exchange {
	ex := model.Exchange{
		WorkerID: 1,
		Seq:      seq,
		Request:  model.RequestSnapshot{Method: http.MethodGet, URL: rawURL, Time: time.Now()},
		State:    state,
	}
	if state != model.ResourceStateIOError {
		ex.Response = &model.ResponseSnapshot{
			StatusCode: status,
			Reason:     http.StatusText(status),
			Body:       []byte("body of " + rawURL),
			Synthetic:  status == http.StatusForbidden,
			Elapsed:    15 * time.Millisecond,
		}
	}
	return ex
}

func TestOpen(t *testing.T) {
	t.Parallel()

	t.Run("creates database in new directory", func(t *testing.T) {
		t.Parallel()

		dbDir := filepath.Join(t.TempDir(), "newdir", "subdir")
		db, err := Open(dbDir, DefaultOptions())
		if err != nil {
			t.Fatalf("failed to open database: %v", err)
		}
		defer db.Close()

		dbPath := filepath.Join(dbDir, FileName)
		if _, err := os.Stat(dbPath); os.IsNotExist(err) {
			t.Error("database file was not created")
		}
		if db.Path() != dbPath {
			t.Errorf("Path() = %q, want %q", db.Path(), dbPath)
		}
	})

	t.Run("CreateIfNotExists=false returns error when database does not exist", func(t *testing.T) {
		t.Parallel()

		dbDir := filepath.Join(t.TempDir(), "nonexistent-db")
		_, err := Open(dbDir, Options{CreateIfNotExists: false, EnableWAL: true})
		if err == nil {
			t.Fatal("expected error when CreateIfNotExists=false and database does not exist")
		}
		if !strings.Contains(err.Error(), "database not found") {
			t.Errorf("unexpected error message: %v", err)
		}
		if _, statErr := os.Stat(dbDir); !os.IsNotExist(statErr) {
			t.Error("database directory should not have been created")
		}
	})

	t.Run("CreateIfNotExists=false opens existing database", func(t *testing.T) {
		t.Parallel()

		dbDir := filepath.Join(t.TempDir(), "existing-db")
		db1, err := Open(dbDir, DefaultOptions())
		if err != nil {
			t.Fatalf("failed to create database: %v", err)
		}
		ctx := context.Background()
		if err := db1.BeginSession(ctx, SessionRecord{ID: "s1", DisplayName: "app", StartURL: "http://a.test/"}); err != nil {
			t.Fatalf("BeginSession() error: %v", err)
		}
		db1.Close()

		db2, err := Open(dbDir, Options{CreateIfNotExists: false, EnableWAL: true})
		if err != nil {
			t.Fatalf("failed to open existing database: %v", err)
		}
		defer db2.Close()

		s, err := db2.GetSession(ctx, "s1")
		if err != nil {
			t.Fatalf("GetSession() error: %v", err)
		}
		if s == nil {
			t.Error("expected session to persist")
		}
	})
}

func TestDefaultOptions(t *testing.T) {
	t.Parallel()

	opts := DefaultOptions()
	if !opts.CreateIfNotExists {
		t.Error("expected CreateIfNotExists to be true by default")
	}
	if !opts.EnableWAL {
		t.Error("expected EnableWAL to be true by default")
	}
}

func TestSessions(t *testing.T) {
	t.Parallel()

	db := setupTestDB(t)
	ctx := context.Background()

	older := time.Now().Add(-time.Hour)
	if err := db.BeginSession(ctx, SessionRecord{ID: "old", DisplayName: "old", StartURL: "http://a.test/", StartedAt: older}); err != nil {
		t.Fatalf("BeginSession() error: %v", err)
	}
	if err := db.BeginSession(ctx, SessionRecord{ID: "new", DisplayName: "context: app", StartURL: "http://a.test/app/"}); err != nil {
		t.Fatalf("BeginSession() error: %v", err)
	}

	t.Run("requires an id", func(t *testing.T) {
		if err := db.BeginSession(ctx, SessionRecord{}); err == nil {
			t.Error("expected error for empty session id")
		}
	})

	t.Run("running session", func(t *testing.T) {
		s, err := db.GetSession(ctx, "new")
		if err != nil {
			t.Fatalf("GetSession() error: %v", err)
		}
		if s.State != "running" || !s.FinishedAt.IsZero() || s.DisplayName != "context: app" {
			t.Errorf("session = %+v", s)
		}
	})

	t.Run("finish session", func(t *testing.T) {
		err := db.FinishSession(ctx, SessionRecord{ID: "new", State: "failed", Total: 7, Error: "all browser workers failed"})
		if err != nil {
			t.Fatalf("FinishSession() error: %v", err)
		}
		s, err := db.GetSession(ctx, "new")
		if err != nil {
			t.Fatalf("GetSession() error: %v", err)
		}
		if s.State != "failed" || s.Total != 7 || s.Error == "" || s.FinishedAt.IsZero() {
			t.Errorf("session = %+v", s)
		}
	})

	t.Run("finish unknown session", func(t *testing.T) {
		if err := db.FinishSession(ctx, SessionRecord{ID: "missing", State: "completed"}); err == nil {
			t.Error("expected error for unknown session")
		}
	})

	t.Run("missing session is nil", func(t *testing.T) {
		s, err := db.GetSession(ctx, "missing")
		if err != nil || s != nil {
			t.Errorf("GetSession() = %v, %v", s, err)
		}
	})

	t.Run("list newest first", func(t *testing.T) {
		sessions, err := db.ListSessions(ctx)
		if err != nil {
			t.Fatalf("ListSessions() error: %v", err)
		}
		if len(sessions) != 2 || sessions[0].ID != "new" || sessions[1].ID != "old" {
			t.Errorf("sessions = %+v", sessions)
		}
		latest, err := db.LatestSession(ctx)
		if err != nil || latest == nil || latest.ID != "new" {
			t.Errorf("LatestSession() = %+v, %v", latest, err)
		}
	})
}

func TestHistoryAndResults(t *testing.T) {
	t.Parallel()

	db := setupTestDB(t)
	ctx := context.Background()
	if err := db.BeginSession(ctx, SessionRecord{ID: "s", StartURL: "http://a.test/"}); err != nil {
		t.Fatalf("BeginSession() error: %v", err)
	}

	exchanges := []model.Exchange{
		exchange(1, "http://a.test/", model.ResourceStateProcessed, http.StatusOK),
		exchange(2, "http://cdn.test/lib.js", model.ResourceStateThirdParty, http.StatusOK),
		exchange(3, "http://b.test/", model.ResourceStateOutOfScope, http.StatusForbidden),
		exchange(4, "http://a.test/logout", model.ResourceStateExcluded, http.StatusForbidden),
		exchange(5, "http://a.test/down", model.ResourceStateIOError, 0),
	}
	for _, ex := range exchanges {
		id, err := db.InsertHistory(ctx, "s", ex)
		if err != nil {
			t.Fatalf("InsertHistory() error: %v", err)
		}
		if id == 0 {
			t.Error("expected non-zero ID")
		}
	}

	t.Run("history keeps order and fields", func(t *testing.T) {
		records, err := db.History(ctx, "s")
		if err != nil {
			t.Fatalf("History() error: %v", err)
		}
		if len(records) != len(exchanges) {
			t.Fatalf("got %d records, want %d", len(records), len(exchanges))
		}
		first := records[0]
		if first.Seq != 1 || first.URL != "http://a.test/" || first.StatusCode != http.StatusOK ||
			first.State != model.ResourceStateProcessed || first.Elapsed != 15*time.Millisecond {
			t.Errorf("first record = %+v", first)
		}
		if first.BodyHash != BodyHash([]byte("body of http://a.test/")) {
			t.Errorf("body hash = %q", first.BodyHash)
		}
		if !records[2].Synthetic || records[2].StatusCode != http.StatusForbidden {
			t.Errorf("out-of-scope record = %+v", records[2])
		}
		if records[4].StatusCode != 0 || records[4].BodyHash != "" {
			t.Errorf("io error record = %+v", records[4])
		}
	})

	t.Run("results are grouped", func(t *testing.T) {
		results, err := db.Results(ctx, "s")
		if err != nil {
			t.Fatalf("Results() error: %v", err)
		}
		if len(results.InScope) != 2 || len(results.OutOfScope) != 2 || len(results.Errors) != 1 {
			t.Errorf("results = %d in scope, %d out of scope, %d errors",
				len(results.InScope), len(results.OutOfScope), len(results.Errors))
		}
		if results.Total() != 5 {
			t.Errorf("Total() = %d, want 5", results.Total())
		}
		counts := results.CountByState()
		if counts[model.ResourceStateExcluded] != 1 || counts[model.ResourceStateProcessed] != 1 {
			t.Errorf("CountByState() = %v", counts)
		}
	})

	t.Run("unknown session has no history", func(t *testing.T) {
		records, err := db.History(ctx, "other")
		if err != nil || len(records) != 0 {
			t.Errorf("History() = %v, %v", records, err)
		}
	})
}

func TestBodyHash(t *testing.T) {
	t.Parallel()

	if BodyHash(nil) != "" {
		t.Error("empty body should have no hash")
	}
	h := BodyHash([]byte("hello"))
	if len(h) != 64 || h != BodyHash([]byte("hello")) || h == BodyHash([]byte("hello!")) {
		t.Errorf("BodyHash() = %q", h)
	}
}

func TestSiteTree(t *testing.T) {
	t.Parallel()

	db := setupTestDB(t)
	ctx := context.Background()

	for _, u := range []string{
		"http://a.test/app/page?x=1",
		"http://a.test/app/page#frag",
		"http://a.test/app/other",
		"http://A.TEST/",
		"https://cdn.test/lib.js",
	} {
		if err := db.AddSiteNode(ctx, u, model.ResourceStateProcessed); err != nil {
			t.Fatalf("AddSiteNode(%q) error: %v", u, err)
		}
	}

	t.Run("relative URL is rejected", func(t *testing.T) {
		if err := db.AddSiteNode(ctx, "/relative", model.ResourceStateProcessed); err == nil {
			t.Error("expected error for relative URL")
		}
	})

	roots, err := db.SiteTree(ctx)
	if err != nil {
		t.Fatalf("SiteTree() error: %v", err)
	}
	if len(roots) != 2 || roots[0].Name != "http://a.test" || roots[1].Name != "https://cdn.test" {
		t.Fatalf("roots = %+v", roots)
	}

	host := roots[0]
	if host.Hits != 4 {
		t.Errorf("host hits = %d, want 4", host.Hits)
	}
	if len(host.Children) != 1 || host.Children[0].Name != "app" {
		t.Fatalf("host children = %+v", host.Children)
	}
	app := host.Children[0]
	if len(app.Children) != 2 || app.Children[0].Name != "other" || app.Children[1].Name != "page" {
		t.Fatalf("app children = %+v", app.Children)
	}
	page := app.Children[1]
	if page.Hits != 2 || page.URL != "http://a.test/app/page" || page.LastState != "processed" {
		t.Errorf("page = %+v", page)
	}
}

func TestRecorder(t *testing.T) {
	t.Parallel()

	db := setupTestDB(t)

	var (
		mu      sync.Mutex
		current = SessionRecord{ID: "rec", DisplayName: "app", StartURL: "http://a.test/app/", State: "running"}
	)
	describe := func() SessionRecord {
		mu.Lock()
		defer mu.Unlock()
		return current
	}
	r := NewRecorder(db, describe)

	// Events outside a session are ignored.
	r.OnFound(exchange(0, "http://a.test/early", model.ResourceStateProcessed, http.StatusOK))

	r.OnStarted()
	r.OnFound(exchange(1, "http://a.test/app/", model.ResourceStateProcessed, http.StatusOK))
	r.OnFound(exchange(2, "http://b.test/", model.ResourceStateOutOfScope, http.StatusForbidden))

	mu.Lock()
	current.State = "completed"
	current.Total = 2
	mu.Unlock()
	r.OnStopped()

	if r.Failures() != 0 {
		t.Errorf("Failures() = %d, want 0", r.Failures())
	}

	ctx := context.Background()
	s, err := db.GetSession(ctx, "rec")
	if err != nil || s == nil {
		t.Fatalf("GetSession() = %v, %v", s, err)
	}
	if s.State != "completed" || s.Total != 2 {
		t.Errorf("session = %+v", s)
	}

	records, err := db.History(ctx, "rec")
	if err != nil {
		t.Fatalf("History() error: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("got %d history records, want 2", len(records))
	}

	roots, err := db.SiteTree(ctx)
	if err != nil {
		t.Fatalf("SiteTree() error: %v", err)
	}
	if len(roots) != 1 || roots[0].Name != "http://a.test" {
		t.Errorf("only in-scope resources belong in the site map, got %+v", roots)
	}

	t.Run("write failures are counted", func(t *testing.T) {
		closed, err := Open(t.TempDir(), DefaultOptions())
		if err != nil {
			t.Fatal(err)
		}
		_ = closed.Close()

		r := NewRecorder(closed, describe, WithWriteTimeout(time.Second))
		r.OnStarted()
		r.OnStopped()
		if r.Failures() != 2 {
			t.Errorf("Failures() = %d, want 2", r.Failures())
		}
	})
}
