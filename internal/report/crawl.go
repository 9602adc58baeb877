package report

import (
	"time"

	"github.com/nao1215/scopecrawl/internal/database"
	"github.com/nao1215/scopecrawl/internal/model"
)

// Entry is one exchange in a report.
type Entry struct {
	WorkerID   int                 `json:"worker_id"`
	Seq        uint64              `json:"seq"`
	Method     string              `json:"method"`
	URL        string              `json:"url"`
	StatusCode int                 `json:"status_code,omitempty"`
	State      model.ResourceState `json:"state"`
	Synthetic  bool                `json:"synthetic,omitempty"`
	Elapsed    time.Duration       `json:"elapsed"`
}

// CrawlReport is the outcome of one crawl session: its exchanges grouped
// into in-scope resources, out-of-scope resources and errors.
type CrawlReport struct {
	SessionID  string    `json:"session_id"`
	Target     string    `json:"target"`
	StartURL   string    `json:"start_url"`
	State      string    `json:"state"`
	Error      string    `json:"error,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at,omitzero"`

	Counts map[model.ResourceState]int `json:"counts"`
	Total  int                         `json:"total"`

	InScope    []Entry `json:"in_scope"`
	OutOfScope []Entry `json:"out_of_scope"`
	Errors     []Entry `json:"errors"`

	// SiteMap is optional; it is rendered when set.
	SiteMap []*database.SiteNode `json:"site_map,omitempty"`
}

// NewCrawlReport builds a report from a stored session and its results.
func NewCrawlReport(session database.SessionRecord, results *database.Results) *CrawlReport {
	r := &CrawlReport{
		SessionID:  session.ID,
		Target:     session.DisplayName,
		StartURL:   session.StartURL,
		State:      session.State,
		Error:      session.Error,
		StartedAt:  session.StartedAt,
		FinishedAt: session.FinishedAt,
		Counts:     make(map[model.ResourceState]int),
	}
	for _, state := range model.AllResourceStates() {
		r.Counts[state] = 0
	}
	if results == nil {
		return r
	}

	r.InScope = entries(results.InScope)
	r.OutOfScope = entries(results.OutOfScope)
	r.Errors = entries(results.Errors)
	for state, n := range results.CountByState() {
		r.Counts[state] = n
	}
	r.Total = results.Total()
	return r
}

func entries(records []database.HistoryRecord) []Entry {
	out := make([]Entry, 0, len(records))
	for _, rec := range records {
		out = append(out, Entry{
			WorkerID:   rec.WorkerID,
			Seq:        rec.Seq,
			Method:     rec.Method,
			URL:        rec.URL,
			StatusCode: rec.StatusCode,
			State:      rec.State,
			Synthetic:  rec.Synthetic,
			Elapsed:    rec.Elapsed,
		})
	}
	return out
}

// Duration returns how long the crawl ran, or 0 if it has not finished.
func (r *CrawlReport) Duration() time.Duration {
	if r.FinishedAt.IsZero() || r.StartedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// Failed reports whether the crawl ended in the failed state.
func (r *CrawlReport) Failed() bool {
	return r.State == "failed"
}

// Found returns the number of in-scope resources.
func (r *CrawlReport) Found() int {
	return len(r.InScope)
}
