package database

import (
	"context"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/crypto/sha3"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/nao1215/scopecrawl/internal/model"
)

// FileName is the name of the database file inside the database directory.
const FileName = "scopecrawl.db"

// CrawlDB is the SQLite result store: crawl sessions, the request history
// and the hierarchical site map.
type CrawlDB struct {
	db     *sql.DB
	dbPath string
}

// Options configures CrawlDB behavior.
type Options struct {
	// CreateIfNotExists creates the database file if it doesn't exist.
	CreateIfNotExists bool

	// EnableWAL enables Write-Ahead Logging.
	EnableWAL bool
}

// DefaultOptions returns the default database options.
func DefaultOptions() Options {
	return Options{
		CreateIfNotExists: true,
		EnableWAL:         true,
	}
}

// Open opens or creates the CrawlDB in dbDir.
// If CreateIfNotExists is false and the database doesn't exist, an error is returned.
func Open(dbDir string, opts Options) (*CrawlDB, error) {
	dbPath := filepath.Join(dbDir, FileName)

	if !opts.CreateIfNotExists {
		if _, err := os.Stat(dbPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("database not found at %s (use CreateIfNotExists option to create)", dbPath)
		} else if err != nil {
			return nil, fmt.Errorf("failed to check database path: %w", err)
		}
	} else {
		if err := os.MkdirAll(dbDir, 0750); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	// mode=rw refuses to create a missing file, mode=rwc allows it.
	dsn := dbPath + "?mode=rw"
	if opts.CreateIfNotExists {
		dsn = dbPath + "?mode=rwc"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(1) // SQLite only supports one writer
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	cdb := &CrawlDB{
		db:     db,
		dbPath: dbPath,
	}

	if opts.EnableWAL {
		if _, err := db.ExecContext(context.Background(), "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}

	if err := cdb.createTables(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return cdb, nil
}

// Path returns the database file path.
func (cdb *CrawlDB) Path() string { return cdb.dbPath }

// Close closes the database connection.
func (cdb *CrawlDB) Close() error {
	return cdb.db.Close()
}

func (cdb *CrawlDB) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		display_name TEXT NOT NULL,
		start_url TEXT NOT NULL,
		state TEXT NOT NULL DEFAULT 'running',
		total INTEGER NOT NULL DEFAULT 0,
		error TEXT NOT NULL DEFAULT '',
		started_at DATETIME NOT NULL,
		finished_at DATETIME
	);

	CREATE INDEX IF NOT EXISTS idx_sessions_started ON sessions(started_at);

	-- One row per intercepted exchange.
	CREATE TABLE IF NOT EXISTS history (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL REFERENCES sessions(id),
		worker_id INTEGER NOT NULL,
		seq INTEGER NOT NULL,
		method TEXT NOT NULL,
		url TEXT NOT NULL,
		status_code INTEGER NOT NULL DEFAULT 0,
		status_reason TEXT NOT NULL DEFAULT '',
		state TEXT NOT NULL,
		body_hash TEXT NOT NULL DEFAULT '',
		synthetic INTEGER NOT NULL DEFAULT 0,
		elapsed_ms INTEGER NOT NULL DEFAULT 0,
		timestamp DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_history_session ON history(session_id);
	CREATE INDEX IF NOT EXISTS idx_history_url ON history(url);
	CREATE INDEX IF NOT EXISTS idx_history_state ON history(state);

	-- Site map: one node per host and path segment.
	CREATE TABLE IF NOT EXISTS site_nodes (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		parent_id INTEGER NOT NULL DEFAULT 0,
		name TEXT NOT NULL,
		url TEXT NOT NULL,
		hits INTEGER NOT NULL DEFAULT 1,
		last_state TEXT NOT NULL DEFAULT '',
		last_seen DATETIME DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(parent_id, name)
	);

	CREATE INDEX IF NOT EXISTS idx_site_nodes_url ON site_nodes(url);
	`

	_, err := cdb.db.ExecContext(context.Background(), schema)
	return err
}

// SessionRecord is a stored crawl session.
type SessionRecord struct {
	ID          string
	DisplayName string
	StartURL    string
	State       string
	Total       int
	Error       string
	StartedAt   time.Time
	FinishedAt  time.Time
}

// BeginSession stores a new running session.
func (cdb *CrawlDB) BeginSession(ctx context.Context, s SessionRecord) error {
	if s.ID == "" {
		return errors.New("session id is required")
	}
	if s.StartedAt.IsZero() {
		s.StartedAt = time.Now()
	}
	if s.State == "" {
		s.State = "running"
	}

	query := `
	INSERT INTO sessions (id, display_name, start_url, state, started_at)
	VALUES (?, ?, ?, ?, ?)
	ON CONFLICT(id) DO NOTHING
	`
	if _, err := cdb.db.ExecContext(ctx, query, s.ID, s.DisplayName, s.StartURL, s.State, formatTimestamp(s.StartedAt)); err != nil {
		return fmt.Errorf("failed to begin session: %w", err)
	}
	return nil
}

// FinishSession records the final state of a session.
func (cdb *CrawlDB) FinishSession(ctx context.Context, s SessionRecord) error {
	if s.FinishedAt.IsZero() {
		s.FinishedAt = time.Now()
	}
	query := `
	UPDATE sessions SET state = ?, total = ?, error = ?, finished_at = ?
	WHERE id = ?
	`
	result, err := cdb.db.ExecContext(ctx, query, s.State, s.Total, s.Error, formatTimestamp(s.FinishedAt), s.ID)
	if err != nil {
		return fmt.Errorf("failed to finish session: %w", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("session %s not found", s.ID)
	}
	return nil
}

// GetSession returns the session with id, or nil if there is none.
func (cdb *CrawlDB) GetSession(ctx context.Context, id string) (*SessionRecord, error) {
	query := `
	SELECT id, display_name, start_url, state, total, error, started_at, finished_at
	FROM sessions WHERE id = ?
	`
	s, err := scanSession(cdb.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return s, nil
}

// LatestSession returns the most recently started session, or nil.
func (cdb *CrawlDB) LatestSession(ctx context.Context) (*SessionRecord, error) {
	query := `
	SELECT id, display_name, start_url, state, total, error, started_at, finished_at
	FROM sessions ORDER BY started_at DESC LIMIT 1
	`
	s, err := scanSession(cdb.db.QueryRowContext(ctx, query))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest session: %w", err)
	}
	return s, nil
}

// ListSessions returns all sessions, newest first.
func (cdb *CrawlDB) ListSessions(ctx context.Context) ([]SessionRecord, error) {
	query := `
	SELECT id, display_name, start_url, state, total, error, started_at, finished_at
	FROM sessions ORDER BY started_at DESC
	`
	rows, err := cdb.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []SessionRecord
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, *s)
	}
	return sessions, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*SessionRecord, error) {
	var (
		s          SessionRecord
		startedAt  string
		finishedAt sql.NullString
	)
	if err := row.Scan(&s.ID, &s.DisplayName, &s.StartURL, &s.State, &s.Total, &s.Error, &startedAt, &finishedAt); err != nil {
		return nil, err
	}
	s.StartedAt = parseTimestamp(startedAt)
	if finishedAt.Valid {
		s.FinishedAt = parseTimestamp(finishedAt.String)
	}
	return &s, nil
}

// HistoryRecord is one stored exchange.
type HistoryRecord struct {
	ID           int64
	SessionID    string
	WorkerID     int
	Seq          uint64
	Method       string
	URL          string
	StatusCode   int
	StatusReason string
	State        model.ResourceState
	BodyHash     string
	Synthetic    bool
	Elapsed      time.Duration
	Timestamp    time.Time
}

// BodyHash returns the hex SHA3-256 digest of a captured body, or "" for
// an empty body.
func BodyHash(body []byte) string {
	if len(body) == 0 {
		return ""
	}
	sum := sha3.Sum256(body)
	return hex.EncodeToString(sum[:])
}

// InsertHistory stores ex as part of session sessionID.
func (cdb *CrawlDB) InsertHistory(ctx context.Context, sessionID string, ex model.Exchange) (int64, error) {
	var (
		statusCode int
		reason     string
		bodyHash   string
		synthetic  bool
		elapsed    time.Duration
	)
	if ex.Response != nil {
		statusCode = ex.Response.StatusCode
		reason = ex.Response.Reason
		bodyHash = BodyHash(ex.Response.Body)
		synthetic = ex.Response.Synthetic
		elapsed = ex.Response.Elapsed
	}

	query := `
	INSERT INTO history (session_id, worker_id, seq, method, url, status_code, status_reason, state, body_hash, synthetic, elapsed_ms)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	result, err := cdb.db.ExecContext(ctx, query,
		sessionID,
		ex.WorkerID,
		int64(ex.Seq), //nolint:gosec // sequence numbers stay far below MaxInt64
		ex.Request.Method,
		ex.Request.URL,
		statusCode,
		reason,
		ex.State.String(),
		bodyHash,
		synthetic,
		elapsed.Milliseconds(),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert history record: %w", err)
	}
	return result.LastInsertId()
}

// History returns the exchanges of a session in storage order.
func (cdb *CrawlDB) History(ctx context.Context, sessionID string) ([]HistoryRecord, error) {
	query := `
	SELECT id, session_id, worker_id, seq, method, url, status_code, status_reason, state, body_hash, synthetic, elapsed_ms, timestamp
	FROM history
	WHERE session_id = ?
	ORDER BY id
	`
	rows, err := cdb.db.QueryContext(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	var records []HistoryRecord
	for rows.Next() {
		var (
			r         HistoryRecord
			seq       int64
			state     string
			elapsedMS int64
			timestamp string
		)
		if err := rows.Scan(&r.ID, &r.SessionID, &r.WorkerID, &seq, &r.Method, &r.URL, &r.StatusCode,
			&r.StatusReason, &state, &r.BodyHash, &r.Synthetic, &elapsedMS, &timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan history record: %w", err)
		}
		r.Seq = uint64(seq) //nolint:gosec // stored from a uint64
		r.Elapsed = time.Duration(elapsedMS) * time.Millisecond
		r.Timestamp = parseTimestamp(timestamp)
		if r.State, err = model.ParseResourceState(state); err != nil {
			return nil, fmt.Errorf("history record %d: %w", r.ID, err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// Results is the full-results view of a session.
type Results struct {
	// InScope holds processed and third-party exchanges.
	InScope []HistoryRecord

	// OutOfScope holds out-of-scope, out-of-context and excluded exchanges.
	OutOfScope []HistoryRecord

	// Errors holds exchanges whose upstream fetch failed.
	Errors []HistoryRecord
}

// Total returns the number of exchanges in all groups.
func (r *Results) Total() int {
	return len(r.InScope) + len(r.OutOfScope) + len(r.Errors)
}

// CountByState returns the number of exchanges per state.
func (r *Results) CountByState() map[model.ResourceState]int {
	counts := make(map[model.ResourceState]int)
	for _, group := range [][]HistoryRecord{r.InScope, r.OutOfScope, r.Errors} {
		for _, rec := range group {
			counts[rec.State]++
		}
	}
	return counts
}

// Results groups the history of a session.
func (cdb *CrawlDB) Results(ctx context.Context, sessionID string) (*Results, error) {
	records, err := cdb.History(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	results := &Results{}
	for _, r := range records {
		switch {
		case r.State == model.ResourceStateIOError:
			results.Errors = append(results.Errors, r)
		case r.State.IsInScope():
			results.InScope = append(results.InScope, r)
		default:
			results.OutOfScope = append(results.OutOfScope, r)
		}
	}
	return results, nil
}

// timestampFormats contains the timestamp formats that SQLite may return.
// The order matters: more specific formats should come first.
var timestampFormats = []string{
	"2006-01-02 15:04:05.000",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05Z",
	"2006-01-02T15:04:05",
	time.RFC3339,
	time.RFC3339Nano,
}

func formatTimestamp(t time.Time) string {
	return t.UTC().Format("2006-01-02 15:04:05.000")
}

// parseTimestamp tries each known format and returns the zero time if none matches.
func parseTimestamp(s string) time.Time {
	for _, format := range timestampFormats {
		if t, err := time.Parse(format, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
