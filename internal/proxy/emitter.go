package proxy

import (
	"sync"

	"github.com/nao1215/scopecrawl/internal/model"
)

// orderedEmitter delivers exchanges to the sink in arrival order. Exchanges
// that complete early wait in pending until every earlier sequence number
// has been resolved, either with an exchange or as skipped.
type orderedEmitter struct {
	sink func(model.Exchange)

	mu      sync.Mutex
	issued  uint64
	next    uint64
	pending map[uint64]*model.Exchange
	skipped map[uint64]struct{}
}

func newOrderedEmitter(sink func(model.Exchange)) *orderedEmitter {
	return &orderedEmitter{
		sink:    sink,
		pending: make(map[uint64]*model.Exchange),
		skipped: make(map[uint64]struct{}),
	}
}

// reserve hands out the next arrival sequence number.
func (e *orderedEmitter) reserve() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	seq := e.issued
	e.issued++
	return seq
}

// complete resolves seq with ex. A nil ex marks seq as producing no event.
// The sink is called with the lock held so deliveries never interleave.
func (e *orderedEmitter) complete(seq uint64, ex *model.Exchange) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if seq < e.next {
		return // already resolved
	}
	if _, dup := e.pending[seq]; dup {
		return
	}
	if _, dup := e.skipped[seq]; dup {
		return
	}
	if ex == nil {
		e.skipped[seq] = struct{}{}
	} else {
		e.pending[seq] = ex
	}

	for {
		if ready, ok := e.pending[e.next]; ok {
			delete(e.pending, e.next)
			e.next++
			if e.sink != nil {
				e.sink(*ready)
			}
			continue
		}
		if _, ok := e.skipped[e.next]; ok {
			delete(e.skipped, e.next)
			e.next++
			continue
		}
		return
	}
}
