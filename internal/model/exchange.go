package model

import (
	"net/http"
	"time"
)

// MaxBodySize is the maximum number of response body bytes kept in a snapshot.
// The browser always receives the full body.
const MaxBodySize = 1024 * 1024 // 1 MB

// RequestSnapshot is the part of an intercepted request reported to listeners.
type RequestSnapshot struct {
	Method string      `json:"method"`
	URL    string      `json:"url"`
	Header http.Header `json:"header,omitempty"`
	Time   time.Time   `json:"time"`
}

// ResponseSnapshot is the part of a response reported to listeners.
type ResponseSnapshot struct {
	StatusCode int         `json:"status_code"`
	Reason     string      `json:"reason"`
	Header     http.Header `json:"header,omitempty"`

	// Body holds at most MaxBodySize bytes of the response body.
	Body []byte `json:"-"`

	// Synthetic is true when the proxy generated the response itself
	// instead of fetching it.
	Synthetic bool `json:"synthetic,omitempty"`

	Elapsed time.Duration `json:"elapsed"`
}

// Exchange is one request and its response (or failure) as seen by a
// worker's proxy, together with the state assigned to it.
type Exchange struct {
	// WorkerID identifies the browser worker whose proxy saw the request.
	WorkerID int `json:"worker_id"`

	// Seq is the arrival order of the request within its worker.
	Seq uint64 `json:"seq"`

	Request RequestSnapshot `json:"request"`

	// Response is nil when the upstream fetch failed.
	Response *ResponseSnapshot `json:"response,omitempty"`

	State ResourceState `json:"state"`
}
