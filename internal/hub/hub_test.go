package hub

import (
	"bytes"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/nao1215/scopecrawl/internal/model"
)

// eventLog records the events a listener receives.
type eventLog struct {
	mu     sync.Mutex
	events []string
}

func (e *eventLog) add(ev string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, ev)
}

func (e *eventLog) list() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.events...)
}

func (e *eventLog) listener(name string) *ListenerFuncs {
	return &ListenerFuncs{
		Started: func() { e.add(name + ":started") },
		Found:   func(ex model.Exchange) { e.add(name + ":found:" + ex.Request.URL) },
		Stopped: func() { e.add(name + ":stopped") },
	}
}

func exchange(url string) model.Exchange {
	return model.Exchange{Request: model.RequestSnapshot{URL: url}}
}

func TestHubDeliversInOrder(t *testing.T) {
	t.Parallel()

	log := &eventLog{}
	h := New()
	h.Add(log.listener("a"))
	h.Add(log.listener("b"))

	h.Started()
	h.Found(exchange("http://a.test/"))
	h.Stopped()

	want := []string{
		"a:started", "b:started",
		"a:found:http://a.test/", "b:found:http://a.test/",
		"a:stopped", "b:stopped",
	}
	got := log.list()
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("events = %v, want %v", got, want)
	}
}

func TestHubRemove(t *testing.T) {
	t.Parallel()

	log := &eventLog{}
	h := New()
	a := log.listener("a")
	h.Add(a)
	h.Add(log.listener("b"))

	if !h.Remove(a) {
		t.Fatal("Remove() = false, want true")
	}
	if h.Remove(a) {
		t.Error("second Remove() = true, want false")
	}
	if h.Len() != 1 {
		t.Errorf("Len() = %d, want 1", h.Len())
	}

	h.Started()
	if got := log.list(); len(got) != 1 || got[0] != "b:started" {
		t.Errorf("events = %v", got)
	}
}

func TestHubPanicIsolation(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	h := New(WithLogger(slog.New(slog.NewTextHandler(&buf, nil))))
	log := &eventLog{}
	h.Add(&ListenerFuncs{Found: func(model.Exchange) { panic("boom") }})
	h.Add(log.listener("after"))

	h.Found(exchange("http://a.test/x"))

	if got := log.list(); len(got) != 1 || got[0] != "after:found:http://a.test/x" {
		t.Errorf("events = %v", got)
	}
	if !strings.Contains(buf.String(), "crawl listener panicked") || !strings.Contains(buf.String(), "boom") {
		t.Errorf("panic not logged: %s", buf.String())
	}
}

func TestHubMutationDuringDispatch(t *testing.T) {
	t.Parallel()

	h := New()
	log := &eventLog{}
	late := log.listener("late")

	var self *ListenerFuncs
	self = &ListenerFuncs{
		Found: func(ex model.Exchange) {
			log.add("self:found:" + ex.Request.URL)
			h.Remove(self)
			h.Add(late)
		},
	}
	h.Add(self)

	h.Found(exchange("1"))
	h.Found(exchange("2"))

	want := []string{"self:found:1", "late:found:2"}
	if got := log.list(); strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("events = %v, want %v", got, want)
	}
}

func TestHubConcurrentUse(t *testing.T) {
	t.Parallel()

	h := New()
	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l := &ListenerFuncs{}
			h.Add(l)
			h.Found(exchange("x"))
			if i%2 == 0 {
				h.Remove(l)
			}
		}()
	}
	wg.Wait()
	if h.Len() != 10 {
		t.Errorf("Len() = %d, want 10", h.Len())
	}
}

func TestListenerFuncsNilFields(t *testing.T) {
	t.Parallel()

	var l Listener = &ListenerFuncs{}
	l.OnStarted()
	l.OnFound(model.Exchange{})
	l.OnStopped()
}
