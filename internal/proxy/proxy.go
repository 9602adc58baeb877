package proxy

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/elazarl/goproxy"

	"github.com/nao1215/scopecrawl/internal/model"
	"github.com/nao1215/scopecrawl/internal/scope"
)

const (
	// readHeaderTimeout bounds how long a browser may take to send request headers.
	readHeaderTimeout = 30 * time.Second

	// drainTimeout bounds how long Stop waits for tunnelled exchanges to be
	// reported before it reports the rest as I/O errors.
	drainTimeout = 5 * time.Second
)

// hopHeaders are connection-level headers that must not be forwarded.
var hopHeaders = []string{
	"Connection",
	"Proxy-Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// Proxy is the interception proxy of one browser worker. It listens on an
// ephemeral loopback port, classifies every request against a scope.Policy
// and reports each exchange to its sink exactly once, in arrival order.
//
// A new Proxy starts in bootstrap mode: it forwards everything without
// classification and reports nothing. EnableScopeChecks leaves that mode.
type Proxy struct {
	id        int
	policy    *scope.Policy
	transport http.RoundTripper
	user      model.User
	ca        *CA
	logger    *slog.Logger
	blockBody []byte

	allowAll   atomic.Bool
	enableOnce sync.Once
	emitter    *orderedEmitter

	baseCtx    context.Context
	cancelBase context.CancelFunc

	mu       sync.Mutex
	gp       *goproxy.ProxyHttpServer
	listener *trackingListener
	server   *http.Server
	closed   bool
	handlers sync.WaitGroup
	flights  map[uint64]*flight
	pending  sync.WaitGroup
	serveErr chan error
}

// flight is one request reported by the proxy, from classification until
// its exchange reaches the emitter.
type flight struct {
	exchange model.Exchange
	class    model.ResourceState
	blocked  bool

	body    []byte
	elapsed time.Duration
	err     error

	once sync.Once
}

// Option configures a Proxy.
type Option func(*Proxy)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Proxy) {
		p.logger = logger
	}
}

// WithTransport sets the RoundTripper used to reach upstream servers.
func WithTransport(rt http.RoundTripper) Option {
	return func(p *Proxy) {
		p.transport = rt
	}
}

// WithUser authenticates every forwarded request as user.
func WithUser(user model.User) Option {
	return func(p *Proxy) {
		p.user = user
	}
}

// WithCA sets the certificate authority used for CONNECT tunnels.
func WithCA(ca *CA) Option {
	return func(p *Proxy) {
		p.ca = ca
	}
}

// WithLanguage selects the locale of the blocked-request body.
func WithLanguage(lang string) Option {
	return func(p *Proxy) {
		p.blockBody = []byte(BlockMessage(lang))
	}
}

// New creates a proxy for worker id. sink receives every reported exchange.
func New(id int, policy *scope.Policy, sink func(model.Exchange), opts ...Option) *Proxy {
	p := &Proxy{
		id:        id,
		policy:    policy,
		logger:    slog.Default(),
		blockBody: []byte(BlockMessage(model.DefaultLanguage)),
		emitter:   newOrderedEmitter(sink),
		flights:   make(map[uint64]*flight),
	}
	p.allowAll.Store(true)

	for _, opt := range opts {
		opt(p)
	}

	if p.transport == nil {
		t := http.DefaultTransport.(*http.Transport).Clone()
		t.Proxy = nil
		p.transport = t
	}
	p.logger = p.logger.With(slog.Int("worker", id))
	return p
}

// Start binds the proxy to 127.0.0.1 on an ephemeral port and starts serving.
func (p *Proxy) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrProxyClosed
	}
	if p.listener != nil {
		return ErrProxyStarted
	}
	if p.ca == nil {
		ca, err := NewCA()
		if err != nil {
			return err
		}
		p.ca = ca
	}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return fmt.Errorf("failed to bind proxy: %w", err)
	}

	p.baseCtx, p.cancelBase = context.WithCancel(context.Background())
	p.gp = p.newGoproxy()
	p.listener = newTrackingListener(ln)
	p.server = &http.Server{
		Handler:           p,
		ReadHeaderTimeout: readHeaderTimeout,
		ErrorLog:          slog.NewLogLogger(p.logger.Handler(), slog.LevelDebug),
	}
	p.serveErr = make(chan error, 1)
	go func() {
		p.serveErr <- p.server.Serve(p.listener)
	}()

	p.logger.Debug("proxy listening", slog.String("addr", ln.Addr().String()))
	return nil
}

// newGoproxy wires the classification hooks into a goproxy server that
// intercepts every CONNECT tunnel with the crawl CA.
func (p *Proxy) newGoproxy() *goproxy.ProxyHttpServer {
	gp := goproxy.NewProxyHttpServer()
	gp.Logger = printfLogger{p.logger}
	gp.CertStore = p.ca
	gp.NonproxyHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "scopecrawl proxy: absolute request URI required", http.StatusBadRequest)
	})

	mitm := &goproxy.ConnectAction{
		Action:    goproxy.ConnectMitm,
		TLSConfig: goproxy.TLSConfigFromCA(&p.ca.keyPair),
	}
	gp.OnRequest().HandleConnectFunc(func(host string, _ *goproxy.ProxyCtx) (*goproxy.ConnectAction, string) {
		return mitm, host
	})
	gp.OnRequest().DoFunc(p.onRequest)
	gp.OnResponse().DoFunc(p.onResponse)
	return gp
}

// Addr returns the listening address, or "" before Start.
func (p *Proxy) Addr() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.listener == nil {
		return ""
	}
	return p.listener.Addr().String()
}

// CA returns the certificate authority that signs tunnelled hosts.
func (p *Proxy) CA() *CA {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ca
}

// EnableScopeChecks leaves bootstrap mode. Only the first call has an effect.
func (p *Proxy) EnableScopeChecks() {
	p.enableOnce.Do(func() {
		p.allowAll.Store(false)
		p.logger.Debug("proxy enforcing scope", slog.String("policy", p.policy.CheckPolicy().String()))
	})
}

// Bootstrapping reports whether the proxy is still in bootstrap mode.
func (p *Proxy) Bootstrapping() bool {
	return p.allowAll.Load()
}

// Stop closes the listener and every open connection, aborts in-flight
// upstream requests and waits until their exchanges have been reported.
// It is safe to call more than once and on a proxy that never started.
func (p *Proxy) Stop() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	server, ln := p.server, p.listener
	p.mu.Unlock()

	if server == nil {
		return nil
	}

	p.cancelBase()
	err := server.Close()
	ln.closeConns()
	p.handlers.Wait()
	p.drain()

	if serveErr := <-p.serveErr; serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
		err = errors.Join(err, serveErr)
	}
	p.logger.Debug("proxy stopped")
	return err
}

// drain waits for every reserved exchange to be reported. Exchanges still
// missing after drainTimeout are reported as I/O errors.
func (p *Proxy) drain() {
	done := make(chan struct{})
	go func() {
		p.pending.Wait()
		close(done)
	}()

	select {
	case <-done:
		return
	case <-time.After(drainTimeout):
	}

	p.mu.Lock()
	left := make([]*flight, 0, len(p.flights))
	for _, f := range p.flights {
		left = append(left, f)
	}
	p.mu.Unlock()

	for _, f := range left {
		ex := f.exchange
		ex.State = model.ResourceStateIOError
		p.settle(f, &ex)
	}
	<-done
}

// ServeHTTP hands requests to goproxy while the proxy is open.
func (p *Proxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		http.Error(w, "proxy is shutting down", http.StatusServiceUnavailable)
		return
	}
	p.handlers.Add(1)
	gp := p.gp
	p.mu.Unlock()
	defer p.handlers.Done()

	gp.ServeHTTP(w, r)
}

// onRequest classifies a request. Blocked requests are answered here and
// never reach the upstream transport.
func (p *Proxy) onRequest(r *http.Request, ctx *goproxy.ProxyCtx) (*http.Request, *http.Response) {
	// Tunnelled requests inherit UserData and RoundTripper from the CONNECT context.
	ctx.UserData = nil
	ctx.RoundTripper = goproxy.RoundTripperFunc(p.roundTrip)
	r.URL.Host = stripDefaultPort(r.URL.Host, r.URL.Scheme)

	if p.allowAll.Load() {
		return r, nil
	}

	f, ok := p.begin(r)
	if !ok {
		return r, textResponse(r, http.StatusServiceUnavailable, "proxy is shutting down")
	}
	ctx.UserData = f

	f.class = scope.Classify(f.exchange.Request.URL, p.policy)
	if f.class != model.ResourceStateProcessed && p.policy.CheckPolicy() == model.ScopeCheckStrict {
		f.blocked = true
		f.body = p.blockBody
		p.logger.Debug("request blocked",
			slog.String("url", f.exchange.Request.URL),
			slog.String("state", f.class.String()))
		return r, blockedResponse(r, p.blockBody)
	}
	return r, nil
}

// begin reserves the next arrival sequence number for r.
func (p *Proxy) begin(r *http.Request) (*flight, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, false
	}

	seq := p.emitter.reserve()
	f := &flight{
		exchange: model.Exchange{
			WorkerID: p.id,
			Seq:      seq,
			Request: model.RequestSnapshot{
				Method: r.Method,
				URL:    r.URL.String(),
				Header: r.Header.Clone(),
				Time:   time.Now(),
			},
		},
	}
	p.flights[seq] = f
	p.pending.Add(1)
	return f, true
}

// roundTrip sends r upstream and buffers the response. A transport failure
// becomes a 502 for the browser and is recorded on the flight.
func (p *Proxy) roundTrip(r *http.Request, ctx *goproxy.ProxyCtx) (*http.Response, error) {
	f, _ := ctx.UserData.(*flight)

	reqCtx, cancel := context.WithCancel(r.Context())
	defer cancel()
	stop := context.AfterFunc(p.baseCtx, cancel)
	defer stop()

	out := r.Clone(reqCtx)
	out.RequestURI = ""
	if r.ContentLength == 0 {
		out.Body = nil
	}
	removeHopHeaders(out.Header)
	if p.user != nil && userOwns(p.user, out.URL.String()) {
		p.user.ApplyCredentials(out.Header)
	}

	start := time.Now()
	body, resp, err := p.fetch(out)
	if err != nil {
		if f == nil {
			p.logger.Debug("bootstrap request failed", slog.String("url", r.URL.String()), slog.Any("error", err))
		} else {
			f.err = err
			p.logger.Debug("upstream request failed", slog.String("url", r.URL.String()), slog.Any("error", err))
		}
		return textResponse(r, http.StatusBadGateway, "scopecrawl proxy: upstream request failed"), nil
	}

	if f != nil {
		f.body = body
		f.elapsed = time.Since(start)
	}
	return resp, nil
}

func (p *Proxy) fetch(req *http.Request) ([]byte, *http.Response, error) {
	resp, err := p.transport.RoundTrip(req)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("reading response body: %w", err)
	}
	removeHopHeaders(resp.Header)
	resp.Body = io.NopCloser(bytes.NewReader(body))
	resp.ContentLength = int64(len(body))
	return body, resp, nil
}

// onResponse labels the exchange of a classified request and reports it.
func (p *Proxy) onResponse(resp *http.Response, ctx *goproxy.ProxyCtx) *http.Response {
	f, _ := ctx.UserData.(*flight)
	if f == nil {
		return resp
	}

	ex := f.exchange
	switch {
	case f.blocked:
		ex.State = f.class
		ex.Response = p.snapshot(resp, f, true)
	case f.err != nil || resp == nil:
		ex.State = model.ResourceStateIOError
	case f.class != model.ResourceStateProcessed:
		ex.State = model.ResourceStateThirdParty
		ex.Response = p.snapshot(resp, f, false)
	default:
		ex.State = model.ResourceStateProcessed
		ex.Response = p.snapshot(resp, f, false)
	}
	p.settle(f, &ex)
	return resp
}

func (p *Proxy) snapshot(resp *http.Response, f *flight, synthetic bool) *model.ResponseSnapshot {
	body := f.body
	if len(body) > model.MaxBodySize {
		body = body[:model.MaxBodySize]
	}
	elapsed := f.elapsed
	if synthetic {
		elapsed = time.Since(f.exchange.Request.Time)
	}
	return &model.ResponseSnapshot{
		StatusCode: resp.StatusCode,
		Reason:     reasonPhrase(resp),
		Header:     sentHeader(resp.Header),
		Body:       append([]byte(nil), body...),
		Synthetic:  synthetic,
		Elapsed:    elapsed,
	}
}

// settle hands the exchange of f to the emitter. Only the first call for a
// flight has an effect.
func (p *Proxy) settle(f *flight, ex *model.Exchange) {
	f.once.Do(func() {
		p.mu.Lock()
		delete(p.flights, f.exchange.Seq)
		p.mu.Unlock()

		p.emitter.complete(f.exchange.Seq, ex)
		p.pending.Done()
	})
}

// printfLogger routes goproxy's log lines to slog at debug level.
type printfLogger struct {
	logger *slog.Logger
}

func (l printfLogger) Printf(format string, v ...any) {
	l.logger.Debug(strings.TrimSpace(fmt.Sprintf(format, v...)), slog.String("component", "goproxy"))
}

func removeHopHeaders(h http.Header) {
	if c := h.Get("Connection"); c != "" {
		for f := range strings.SplitSeq(c, ",") {
			if f = strings.TrimSpace(f); f != "" {
				h.Del(f)
			}
		}
	}
	for _, k := range hopHeaders {
		h.Del(k)
	}
}

// userOwns reports whether rawURL may carry user's credentials: the user has
// no context or the URL belongs to it.
func userOwns(user model.User, rawURL string) bool {
	c := user.Context()
	return c == nil || c.IsInContext(rawURL)
}

// reasonPhrase extracts the reason phrase from resp.Status ("200 OK" -> "OK").
func reasonPhrase(resp *http.Response) string {
	if _, reason, ok := strings.Cut(resp.Status, " "); ok && reason != "" {
		return reason
	}
	return http.StatusText(resp.StatusCode)
}

// stripDefaultPort drops the port of authority when it is the default
// port of scheme. Tunnelled requests carry the CONNECT authority, which
// always has one.
func stripDefaultPort(authority, scheme string) string {
	host, port, err := net.SplitHostPort(authority)
	if err != nil {
		return authority
	}
	if (scheme == "https" && port == "443") || (scheme == "http" && port == "80") {
		if strings.Contains(host, ":") {
			return "[" + host + "]"
		}
		return host
	}
	return authority
}
