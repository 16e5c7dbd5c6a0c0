// Package msgfabric implements the point-to-point message edges blocks
// use to exchange tagged messages, plus a request/reply helper for
// synchronous control calls into a running block.
package msgfabric

import (
	"context"
	"sync"
	"sync/atomic"
)

// Edge is one point-to-point message connection: a bounded channel from
// a single writer (an output port) toward a reader (an input port's fan-in
// multiplexer). Capacity bounds how far a sender can run ahead of a slow
// receiver before blocking the sender's driver.
func NewEdge[M any](capacity int) chan M {
	return make(chan M, capacity)
}

// InputPort is the reader side of a message input: zero or more upstream
// Edges are Attach-ed to it, each served by its own forwarding goroutine
// so that a single edge's messages always arrive at the port in the
// order the sender produced them, even though many edges may fan into
// the same port.
type InputPort[M any] struct {
	out chan M

	mu      sync.Mutex
	wg      sync.WaitGroup
	closing chan struct{}
}

// NewInputPort creates an input port whose fan-in channel holds up to
// capacity undelivered messages across all attached edges combined.
func NewInputPort[M any](capacity int) *InputPort[M] {
	return &InputPort[M]{
		out:     make(chan M, capacity),
		closing: make(chan struct{}),
	}
}

// Attach registers an upstream edge, starting a goroutine that forwards
// every message from src into the port's fan-in channel, preserving
// src's own ordering.
func (p *InputPort[M]) Attach(src <-chan M) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		for {
			select {
			case m, ok := <-src:
				if !ok {
					return
				}
				select {
				case p.out <- m:
				case <-p.closing:
					return
				}
			case <-p.closing:
				return
			}
		}
	}()
}

// Chan returns the port's fan-in channel for the block driver to select
// on alongside its stream buffer notifiers.
func (p *InputPort[M]) Chan() <-chan M {
	return p.out
}

// Close stops every forwarding goroutine attached to this port. It does
// not close the underlying edges, which upstream writers own.
func (p *InputPort[M]) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	select {
	case <-p.closing:
		return
	default:
		close(p.closing)
	}
	p.wg.Wait()
}

// Caller implements a synchronous request/reply call over the message
// fabric: a caller allocates a reply slot, hands its ID to the send
// callback (which embeds it in the outgoing message as its reply ID),
// and blocks until Reply(id, ...) is invoked or ctx is canceled.
// Grounded on jangala-dev-devicecode-go's Connection.Request/RequestWait/
// Reply (a one-shot reply topic plus a buffered channel), adapted from
// topic-addressed pub/sub to direct port addressing, and on the "make a
// channel, submit, receive one result" pattern used for blocking calls.
type Caller[M any] struct {
	mu      sync.Mutex
	pending map[uint64]chan M
	nextID  atomic.Uint64
}

// NewCaller creates an empty request/reply table.
func NewCaller[M any]() *Caller[M] {
	return &Caller[M]{pending: make(map[uint64]chan M)}
}

// Call allocates a reply ID, invokes send with it, and waits for the
// matching Reply or ctx cancellation.
func (c *Caller[M]) Call(ctx context.Context, send func(replyID uint64) error) (M, error) {
	var zero M

	id := c.nextID.Add(1)
	ch := make(chan M, 1)
	c.mu.Lock()
	c.pending[id] = ch
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}()

	if err := send(id); err != nil {
		return zero, err
	}

	select {
	case m := <-ch:
		return m, nil
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// Reply delivers msg to the caller waiting on replyID, if any is still
// waiting. It returns false if the call already timed out or no such ID
// is outstanding.
func (c *Caller[M]) Reply(replyID uint64, msg M) bool {
	c.mu.Lock()
	ch, ok := c.pending[replyID]
	c.mu.Unlock()
	if !ok {
		return false
	}
	select {
	case ch <- msg:
		return true
	default:
		return false
	}
}
